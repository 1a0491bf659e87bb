package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPresigner_RequiresBucket(t *testing.T) {
	_, err := NewPresigner(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)

	_, err = NewPresigner(context.Background(), S3Config{Region: "us-east-1", Bucket: "b", Endpoint: "not a url"})
	assert.Error(t, err)
}

func TestPresigner_PresignPut(t *testing.T) {
	p, err := NewPresigner(context.Background(), S3Config{
		Region:     "us-east-1",
		Bucket:     "chirp-attachments",
		AccessKey:  "test-access",
		SecretKey:  "test-secret",
		Endpoint:   "http://localhost:9000",
		PresignTTL: 5 * time.Minute,
	})
	require.NoError(t, err)

	url, headers, err := p.PresignPut(context.Background(), "attachments/u/1/photo.png", "image/png", 1024)
	require.NoError(t, err)
	assert.Contains(t, url, "http://localhost:9000/chirp-attachments/attachments/u/1/photo.png")
	assert.Contains(t, url, "X-Amz-Signature=")
	assert.Contains(t, url, "X-Amz-Expires=300")
	assert.Equal(t, "image/png", headers["Content-Type"])
	assert.Equal(t, "1024", headers["Content-Length"])

	_, _, err = p.PresignPut(context.Background(), "", "image/png", 1)
	assert.Error(t, err)
}

func TestPresigner_FileURL(t *testing.T) {
	withBase := &Presigner{cfg: S3Config{Bucket: "b", Region: "eu-west-1", PublicBase: "https://cdn.example.com/"}}
	assert.Equal(t, "https://cdn.example.com/a/b.png", withBase.FileURL("a/b.png"))

	withEndpoint := &Presigner{cfg: S3Config{Bucket: "b", Region: "eu-west-1", Endpoint: "http://minio:9000"}}
	assert.Equal(t, "http://minio:9000/b/a/b.png", withEndpoint.FileURL("a/b.png"))

	plain := &Presigner{cfg: S3Config{Bucket: "b", Region: "eu-west-1"}}
	assert.Equal(t, "https://b.s3.eu-west-1.amazonaws.com/a/b.png", plain.FileURL("a/b.png"))
	assert.Empty(t, plain.FileURL(""))
}
