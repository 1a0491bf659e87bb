package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Config struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	PublicBase string
	PresignTTL time.Duration
}

// Presigner issues presigned PUT URLs for message attachments.
type Presigner struct {
	cfg     S3Config
	presign *s3.PresignClient
}

func NewPresigner(ctx context.Context, cfg S3Config) (*Presigner, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}
	if cfg.Endpoint != "" {
		if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
			return nil, fmt.Errorf("invalid s3 endpoint: %w", err)
		}
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// MinIO and other S3-compatible stores need path-style addressing.
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Presigner{cfg: cfg, presign: s3.NewPresignClient(client)}, nil
}

func (p *Presigner) PresignPut(ctx context.Context, key, contentType string, sizeBytes int64) (string, map[string]string, error) {
	if key == "" {
		return "", nil, errors.New("object key is required")
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(p.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}
	if sizeBytes > 0 {
		input.ContentLength = aws.Int64(sizeBytes)
	}

	presigned, err := p.presign.PresignPutObject(ctx, input, func(po *s3.PresignOptions) {
		if p.cfg.PresignTTL > 0 {
			po.Expires = p.cfg.PresignTTL
		}
	})
	if err != nil {
		return "", nil, err
	}

	headers := map[string]string{}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	if sizeBytes > 0 {
		headers["Content-Length"] = strconv.FormatInt(sizeBytes, 10)
	}
	return presigned.URL, headers, nil
}

// FileURL is the address clients store on the message once the upload is done.
func (p *Presigner) FileURL(key string) string {
	if key == "" {
		return ""
	}
	switch {
	case p.cfg.PublicBase != "":
		return strings.TrimRight(p.cfg.PublicBase, "/") + "/" + key
	case p.cfg.Endpoint != "":
		return strings.TrimRight(p.cfg.Endpoint, "/") + "/" + p.cfg.Bucket + "/" + key
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.cfg.Bucket, p.cfg.Region, key)
	}
}
