// Package scratch manages the two local directories a job stages files in:
// one for downloaded raw videos and one for transcoder output.
package scratch

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"vidproc/internal/pkg/errors"
	"vidproc/internal/pkg/logger"
)

type Dirs struct {
	raw       string
	processed string
	log       *logger.Logger
}

func New(rawDir, processedDir string, log *logger.Logger) *Dirs {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Dirs{
		raw:       filepath.Clean(rawDir),
		processed: filepath.Clean(processedDir),
		log:       log.WithComponent("scratch"),
	}
}

// EnsureDirs creates both directories if they are absent.
func (d *Dirs) EnsureDirs() error {
	for _, dir := range []string{d.raw, d.processed} {
		if _, err := os.Stat(dir); err == nil {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "scratch.ensure", "failed to create %s", dir)
		}
		d.log.Info("directory created", "path", dir)
	}
	return nil
}

func (d *Dirs) RawDir() string       { return d.raw }
func (d *Dirs) ProcessedDir() string { return d.processed }

// RawPath is where a raw video named name is downloaded to.
func (d *Dirs) RawPath(name string) (string, error) {
	return resolve(d.raw, name)
}

// ProcessedPath is where the transcoder writes the output named name.
func (d *Dirs) ProcessedPath(name string) (string, error) {
	return resolve(d.processed, name)
}

// resolve joins name under dir and refuses names that would land outside it.
func resolve(dir, name string) (string, error) {
	if name == "" {
		return "", errors.BadRequest("file name is empty")
	}
	if filepath.IsAbs(name) || strings.ContainsRune(name, 0) {
		return "", errors.BadRequestf("invalid file name %q", name).WithField("name", name)
	}
	// Only canonical names: "x/../a" or "a//b" would share a file with
	// "a" or "a/b" while holding a different job lock.
	if path.Clean(name) != name {
		return "", errors.BadRequestf("file name %q is not in canonical form", name).WithField("name", name)
	}
	p := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.BadRequestf("file name %q escapes scratch directory", name).WithField("name", name)
	}
	return p, nil
}

// Prepare creates the parent directory of path. Object names may contain
// slashes, so a local file can sit in a subdirectory of the scratch root.
func Prepare(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// Remove deletes path. A path that does not exist is not an error.
func (d *Dirs) Remove(path string) error {
	err := os.Remove(path)
	switch {
	case err == nil:
		d.log.Debug("file deleted", "path", path)
		return nil
	case os.IsNotExist(err):
		d.log.Debug("file not found, skipping delete", "path", path)
		return nil
	default:
		d.log.Warn("failed to delete file", "path", path, "error", err.Error())
		return errors.WrapWithCode(err, errors.CodeCleanupFailed, "scratch.remove", "failed to delete "+path)
	}
}

// RemoveAll deletes every path concurrently and waits for all of them.
// Failures are joined; one failure never stops the other deletes.
func (d *Dirs) RemoveAll(ctx context.Context, paths ...string) error {
	var g errgroup.Group
	errs := make([]error, len(paths))

	for i, p := range paths {
		if p == "" {
			continue
		}
		g.Go(func() error {
			errs[i] = d.Remove(p)
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		d.log.FromContext(ctx).Warn("cleanup incomplete", "error", err.Error())
		return errors.WrapWithCode(err, errors.CodeCleanupFailed, "scratch.cleanup", "failed to delete scratch files")
	}
	return nil
}
