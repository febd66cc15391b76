// Package storage uploads seller assets (product images and videos) to the
// local filesystem or S3 and returns their public URLs.
package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"
)

type PutInput struct {
	Filename    string
	ContentType string
	Size        int64
}

type PutResult struct {
	Key string
	URL string
}

// Storage is a write-once object store.
type Storage interface {
	Put(ctx context.Context, r io.Reader, in PutInput) (PutResult, error)
	Delete(ctx context.Context, key string) error
}

// ResourceType is the kind of asset being uploaded.
type ResourceType string

const (
	ResourceImage ResourceType = "image"
	ResourceVideo ResourceType = "video"
)

var allowedExtensions = map[ResourceType]map[string]struct{}{
	ResourceImage: {".png": {}, ".jpg": {}, ".jpeg": {}, ".webp": {}, ".gif": {}},
	ResourceVideo: {".mp4": {}, ".webm": {}, ".mov": {}},
}

// ParseResourceType accepts "image" and "video"; anything else is rejected.
func ParseResourceType(raw string) (ResourceType, bool) {
	resourceType := ResourceType(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := allowedExtensions[resourceType]
	return resourceType, ok
}

func safeExt(resourceType ResourceType, filename string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	_, ok := allowedExtensions[resourceType][ext]
	return ext, ok
}
