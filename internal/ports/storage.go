package ports

import "context"

// StorageGateway moves objects between buckets and local files.
// Implementations: gcs, s3 (minio), localfs.
type StorageGateway interface {
	Provider() string

	// Download writes bucket/key to localPath, replacing any existing file.
	Download(ctx context.Context, bucket, key, localPath string) error
	// Upload stores localPath as bucket/key.
	Upload(ctx context.Context, localPath, bucket, key string) error
	// MakePublic grants anonymous read access to bucket/key.
	MakePublic(ctx context.Context, bucket, key string) error
	Delete(ctx context.Context, bucket, key string) error
}

// Pinger is implemented by gateways that can check connectivity to a bucket.
type Pinger interface {
	Ping(ctx context.Context, bucket string) error
}
