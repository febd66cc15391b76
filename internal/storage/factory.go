package storage

import (
	"context"
	"fmt"

	"github.com/yxshee/marketplace-storefront/internal/config"
)

// FromConfig builds the driver named by STORAGE_DRIVER.
func FromConfig(ctx context.Context, cfg config.Config) (Storage, error) {
	switch cfg.StorageDriver {
	case "", "local":
		return NewLocal(cfg.LocalUploadDir, cfg.LocalUploadURLPrefix), nil
	case "s3":
		if cfg.S3Region == "" || cfg.S3Bucket == "" || cfg.S3PublicBaseURL == "" {
			return nil, fmt.Errorf("s3 storage requires S3_REGION, S3_BUCKET and S3_PUBLIC_BASE_URL")
		}
		return NewS3(ctx, S3Config{
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			Prefix:        cfg.S3Prefix,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
