package s3

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client implements ports.StorageGateway on any S3-compatible store.
type Client struct {
	client *minio.Client
}

type Options struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Region       string
	UsePathStyle bool
}

func New(o Options) (*Client, error) {
	host, secure, err := normalizeEndpoint(o.Endpoint)
	if err != nil {
		return nil, err
	}

	lookup := minio.BucketLookupAuto
	if o.UsePathStyle {
		lookup = minio.BucketLookupPath
	}

	c, err := minio.New(host, &minio.Options{
		Creds:        credentials.NewStaticV4(o.AccessKey, o.SecretKey, ""),
		Secure:       secure,
		Region:       o.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, err
	}
	return &Client{client: c}, nil
}

func (c *Client) Provider() string { return "s3" }

func (c *Client) Download(ctx context.Context, bucket, key, localPath string) error {
	// FGetObject writes to a .part file and renames it when complete.
	if err := c.client.FGetObject(ctx, bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("s3 download s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (c *Client) Upload(ctx context.Context, localPath, bucket, key string) error {
	_, err := c.client.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return fmt.Errorf("s3 upload s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// MakePublic copies the object onto itself with a public-read canned ACL.
func (c *Client) MakePublic(ctx context.Context, bucket, key string) error {
	src := minio.CopySrcOptions{Bucket: bucket, Object: key}
	dst := minio.CopyDestOptions{
		Bucket:          bucket,
		Object:          key,
		ReplaceMetadata: true,
		UserMetadata: map[string]string{
			"x-amz-acl":    "public-read",
			"Content-Type": contentType(key),
		},
	}
	if _, err := c.client.CopyObject(ctx, dst, src); err != nil {
		return fmt.Errorf("s3 make public s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("object key is empty")
	}
	return c.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}

func (c *Client) Ping(ctx context.Context, bucket string) error {
	ok, err := c.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", bucket)
	}
	return nil
}

func contentType(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	switch ext {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func normalizeEndpoint(raw string) (host string, secure bool, err error) {
	if raw == "" {
		return "", false, errors.New("S3_ENDPOINT is required")
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Host == "" {
			return "", false, errors.New("invalid S3_ENDPOINT")
		}
		return u.Host, u.Scheme == "https", nil
	}
	return raw, false, nil
}
