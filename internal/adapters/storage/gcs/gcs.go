package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Client implements ports.StorageGateway on Google Cloud Storage.
type Client struct {
	client *storage.Client
}

type Options struct {
	// Endpoint overrides the API endpoint, e.g. a fake-gcs-server URL.
	// Requests to a custom endpoint are sent unauthenticated.
	Endpoint string
	// CredentialsJSON is a service account key. Empty means application
	// default credentials.
	CredentialsJSON string
}

func New(ctx context.Context, o Options) (*Client, error) {
	var opts []option.ClientOption

	switch {
	case o.Endpoint != "":
		opts = append(opts, option.WithEndpoint(o.Endpoint), option.WithoutAuthentication())
	case o.CredentialsJSON != "":
		creds, err := google.CredentialsFromJSON(ctx, []byte(o.CredentialsJSON), storage.ScopeFullControl)
		if err != nil {
			return nil, fmt.Errorf("gcs credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	}

	c, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &Client{client: c}, nil
}

func (c *Client) Provider() string { return "gcs" }

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Download(ctx context.Context, bucket, key, localPath string) error {
	r, err := c.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return describe(err, "download", bucket, key)
	}
	defer r.Close()

	if err := writeFile(localPath, r); err != nil {
		return fmt.Errorf("gs://%s/%s → %s: %w", bucket, key, localPath, err)
	}
	return nil
}

func (c *Client) Upload(ctx context.Context, localPath, bucket, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	// Canceling ctx aborts the upload; Close commits it.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := c.client.Bucket(bucket).Object(key).NewWriter(wctx)
	if _, err := io.Copy(w, f); err != nil {
		cancel()
		_ = w.Close()
		return describe(err, "upload", bucket, key)
	}
	if err := w.Close(); err != nil {
		return describe(err, "upload", bucket, key)
	}
	return nil
}

func (c *Client) MakePublic(ctx context.Context, bucket, key string) error {
	acl := c.client.Bucket(bucket).Object(key).ACL()
	if err := acl.Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
		return describe(err, "make public", bucket, key)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	if err := c.client.Bucket(bucket).Object(key).Delete(ctx); err != nil {
		return describe(err, "delete", bucket, key)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context, bucket string) error {
	_, err := c.client.Bucket(bucket).Attrs(ctx)
	return err
}

// IsNotFound reports whether err means the bucket or object does not exist.
func IsNotFound(err error) bool {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func describe(err error, op, bucket, key string) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return fmt.Errorf("gcs %s gs://%s/%s: http %d: %w", op, bucket, key, gerr.Code, err)
	}
	return fmt.Errorf("gcs %s gs://%s/%s: %w", op, bucket, key, err)
}

func writeFile(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, dst)
}
