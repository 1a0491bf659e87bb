package services

import (
	"context"
	"fmt"
	"path"
	"strings"

	chirp_errors "chirp-dm/pkg/errors"

	"github.com/google/uuid"
)

const MaxAttachmentSize = 25 << 20

// Presigner issues direct-upload URLs for object storage.
type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string, sizeBytes int64) (string, map[string]string, error)
	FileURL(key string) string
}

type AttachmentService struct {
	presigner Presigner
}

func NewAttachmentService(p Presigner) *AttachmentService {
	return &AttachmentService{presigner: p}
}

type PresignInput struct {
	FileName    string
	ContentType string
	Size        int64
}

type PresignResult struct {
	Key       string
	UploadURL string
	Headers   map[string]string
	FileURL   string
	Name      string
	Size      int64
}

// Presign returns an upload URL under attachments/<user>/<id>/<name>. The
// client uploads, then sends a message carrying FileURL, Name and Size.
func (s *AttachmentService) Presign(ctx context.Context, userID uuid.UUID, in PresignInput) (PresignResult, error) {
	if s.presigner == nil {
		return PresignResult{}, fmt.Errorf("attachment storage not configured")
	}
	name := sanitizeFileName(in.FileName)
	if name == "" {
		return PresignResult{}, invalid("file_name is required")
	}
	if strings.TrimSpace(in.ContentType) == "" {
		return PresignResult{}, invalid("content_type is required")
	}
	if in.Size <= 0 || in.Size > MaxAttachmentSize {
		return PresignResult{}, fmt.Errorf("%w: size must be between 1 and %d bytes", chirp_errors.ErrInvalidInput, MaxAttachmentSize)
	}

	key := path.Join("attachments", userID.String(), uuid.NewString(), name)
	url, headers, err := s.presigner.PresignPut(ctx, key, in.ContentType, in.Size)
	if err != nil {
		return PresignResult{}, err
	}
	return PresignResult{
		Key:       key,
		UploadURL: url,
		Headers:   headers,
		FileURL:   s.presigner.FileURL(key),
		Name:      name,
		Size:      in.Size,
	}, nil
}

func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}
