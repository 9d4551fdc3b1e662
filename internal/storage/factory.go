package storage

import (
	"context"
	"fmt"

	"vidproc/internal/adapters/storage/gcs"
	"vidproc/internal/adapters/storage/localfs"
	"vidproc/internal/adapters/storage/s3"
	"vidproc/internal/config"
)

// NewGateway builds the gateway selected by cfg.StorageProvider.
func NewGateway(ctx context.Context, cfg config.Config) (Gateway, error) {
	switch cfg.StorageProvider {
	case "", "gcs":
		c, err := gcs.New(ctx, gcs.Options{
			Endpoint:        cfg.GCSEndpoint,
			CredentialsJSON: cfg.GoogleCredentialsJSON,
		})
		if err != nil {
			return nil, err
		}
		return c, nil

	case "s3":
		c, err := s3.New(s3.Options{
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Region:       cfg.S3Region,
			UsePathStyle: cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return c, nil

	case "localfs":
		return localfs.New(cfg.StorageLocalRoot), nil

	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.StorageProvider)
	}
}
