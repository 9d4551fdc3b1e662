package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalFS implements ports.StorageGateway on the local filesystem.
// Each bucket is a directory under root and each key a file inside it.
type LocalFS struct {
	root string
}

func New(root string) *LocalFS {
	return &LocalFS{root: root}
}

func (l *LocalFS) Provider() string { return "localfs" }

func (l *LocalFS) objectPath(bucket, key string) (string, error) {
	if bucket == "" || key == "" {
		return "", fmt.Errorf("bucket and key are required")
	}
	base := filepath.Join(l.root, bucket)
	p := filepath.Join(base, filepath.FromSlash(key))
	rel, err := filepath.Rel(base, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return p, nil
}

func (l *LocalFS) Download(ctx context.Context, bucket, key, localPath string) error {
	src, err := l.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := copyFile(ctx, src, localPath); err != nil {
		return fmt.Errorf("localfs download %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (l *LocalFS) Upload(ctx context.Context, localPath, bucket, key string) error {
	dst, err := l.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := copyFile(ctx, localPath, dst); err != nil {
		return fmt.Errorf("localfs upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

// MakePublic only checks the object exists; local files carry no ACL.
func (l *LocalFS) MakePublic(ctx context.Context, bucket, key string) error {
	p, err := l.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err != nil {
		return fmt.Errorf("localfs make public %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (l *LocalFS) Delete(ctx context.Context, bucket, key string) error {
	p, err := l.objectPath(bucket, key)
	if err != nil {
		return err
	}
	return os.Remove(p)
}

func (l *LocalFS) Ping(ctx context.Context, bucket string) error {
	st, err := os.Stat(filepath.Join(l.root, bucket))
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("bucket %s is not a directory", bucket)
	}
	return nil
}

// copyFile writes src to a temp file next to dst and renames it into place,
// so a failed copy never leaves a truncated dst behind.
func copyFile(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".part-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
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
