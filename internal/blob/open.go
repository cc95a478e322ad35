package blob

import (
	"context"
	"fmt"

	"imagehost/internal/config"
)

// Open builds the backend selected by BLOB_BACKEND.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendLocal:
		return NewLocalStore(cfg.UploadDir, cfg.PublicBaseURL)
	case config.BlobBackendMinio:
		return NewMinioStore(ctx, MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Bucket:    cfg.BlobBucket,
		})
	case config.BlobBackendS3:
		return NewS3Store(ctx, S3Config{
			BaseEndpoint: cfg.S3BaseEndpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.BlobBucket,
		})
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}
