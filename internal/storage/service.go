package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yxshee/marketplace-storefront/internal/variants"
)

var (
	ErrUnsupportedType = errors.New("unsupported asset type")
	ErrEmptyUpload     = errors.New("empty upload")
	ErrTooLarge        = errors.New("upload exceeds size limit")
	ErrUploadFailed    = errors.New("asset upload failed")
)

// Asset is a stored upload as returned to clients.
type Asset struct {
	SecureURL    string       `json:"secure_url"`
	PublicID     string       `json:"public_id"`
	ResourceType ResourceType `json:"resource_type"`
	Bytes        int64        `json:"bytes"`
}

type UploadInput struct {
	ResourceType ResourceType
	Filename     string
	ContentType  string
}

// Service validates uploads and hands them to the configured driver.
type Service struct {
	backend  Storage
	maxBytes int64
	logger   *logrus.Entry
}

var _ variants.ImageUploader = (*Service)(nil)

func NewService(backend Storage, maxBytes int64, logger *logrus.Entry) *Service {
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{backend: backend, maxBytes: maxBytes, logger: logger}
}

// Upload buffers at most maxBytes of body, checks the file type, and stores it.
func (s *Service) Upload(ctx context.Context, body io.Reader, input UploadInput) (Asset, error) {
	ext, ok := safeExt(input.ResourceType, input.Filename)
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s %q", ErrUnsupportedType, input.ResourceType, input.Filename)
	}
	if body == nil {
		return Asset{}, ErrEmptyUpload
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(body, s.maxBytes+1))
	if err != nil {
		return Asset{}, fmt.Errorf("%w: read: %v", ErrUploadFailed, err)
	}
	if n == 0 {
		return Asset{}, ErrEmptyUpload
	}
	if n > s.maxBytes {
		return Asset{}, ErrTooLarge
	}

	contentType := strings.TrimSpace(input.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(buf.Bytes())
	}
	if !strings.HasPrefix(contentType, string(input.ResourceType)+"/") {
		return Asset{}, fmt.Errorf("%w: content type %s", ErrUnsupportedType, contentType)
	}

	result, err := s.backend.Put(ctx, bytes.NewReader(buf.Bytes()), PutInput{
		Filename:    "asset" + ext,
		ContentType: contentType,
		Size:        n,
	})
	if err != nil {
		s.logger.WithError(err).WithField("resource_type", input.ResourceType).Warn("asset upload failed")
		return Asset{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	s.logger.WithFields(logrus.Fields{"public_id": result.Key, "bytes": n}).Debug("asset stored")
	return Asset{SecureURL: result.URL, PublicID: result.Key, ResourceType: input.ResourceType, Bytes: n}, nil
}

// UploadImage lets the variant editor store bulk and per-row images.
func (s *Service) UploadImage(ctx context.Context, image variants.ImageUpload) (string, error) {
	asset, err := s.Upload(ctx, image.Body, UploadInput{
		ResourceType: ResourceImage,
		Filename:     image.Filename,
		ContentType:  image.ContentType,
	})
	if err != nil {
		return "", err
	}
	return asset.SecureURL, nil
}

// Delete removes a stored asset by public id.
func (s *Service) Delete(ctx context.Context, publicID string) error {
	if strings.TrimSpace(publicID) == "" {
		return ErrEmptyUpload
	}
	return s.backend.Delete(ctx, publicID)
}
