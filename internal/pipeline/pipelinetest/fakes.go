// Package pipelinetest provides in-memory stand-ins for the storage gateway
// and the transcoder.
package pipelinetest

import (
	"context"
	"fmt"
	"os"
	"sync"

	"vidproc/internal/transcoder"
)

// Call is one recorded collaborator call.
type Call struct {
	Op     string
	Bucket string
	Key    string
}

// Storage is an in-memory ports.StorageGateway. Objects are keyed by
// "bucket/key". Set the *Err fields to make an operation fail.
type Storage struct {
	mu      sync.Mutex
	objects map[string][]byte
	public  map[string]bool
	calls   []Call

	DownloadErr   error
	UploadErr     error
	MakePublicErr error
	DeleteErr     error
}

func NewStorage() *Storage {
	return &Storage{
		objects: make(map[string][]byte),
		public:  make(map[string]bool),
	}
}

func (s *Storage) Provider() string { return "fake" }

// Put seeds an object.
func (s *Storage) Put(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = data
}

// Object returns a stored object.
func (s *Storage) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[bucket+"/"+key]
	return b, ok
}

func (s *Storage) IsPublic(bucket, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.public[bucket+"/"+key]
}

// Calls returns a copy of the recorded calls.
func (s *Storage) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Storage) record(op, bucket, key string) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Op: op, Bucket: bucket, Key: key})
	s.mu.Unlock()
}

func (s *Storage) Download(ctx context.Context, bucket, key, localPath string) error {
	s.record("download", bucket, key)
	if s.DownloadErr != nil {
		return s.DownloadErr
	}
	data, ok := s.Object(bucket, key)
	if !ok {
		return fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return os.WriteFile(localPath, data, 0o644)
}

func (s *Storage) Upload(ctx context.Context, localPath, bucket, key string) error {
	s.record("upload", bucket, key)
	if s.UploadErr != nil {
		return s.UploadErr
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	s.Put(bucket, key, data)
	return nil
}

func (s *Storage) MakePublic(ctx context.Context, bucket, key string) error {
	s.record("make_public", bucket, key)
	if s.MakePublicErr != nil {
		return s.MakePublicErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[bucket+"/"+key]; !ok {
		return fmt.Errorf("object %s/%s not found", bucket, key)
	}
	s.public[bucket+"/"+key] = true
	return nil
}

func (s *Storage) Delete(ctx context.Context, bucket, key string) error {
	s.record("delete", bucket, key)
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, bucket+"/"+key)
	delete(s.public, bucket+"/"+key)
	return nil
}

// TranscodeFunc adapts a function to transcoder.Transcoder.
type TranscodeFunc func(ctx context.Context, inputPath, outputPath string, scale transcoder.Scale) error

func (f TranscodeFunc) Transcode(ctx context.Context, inputPath, outputPath string, scale transcoder.Scale) error {
	return f(ctx, inputPath, outputPath, scale)
}

// Transcoder copies input to output and records each call.
type Transcoder struct {
	mu     sync.Mutex
	calls  []string
	scales []transcoder.Scale

	// Err, when set, is returned after a partial output file was written.
	Err error
}

func (t *Transcoder) Transcode(ctx context.Context, inputPath, outputPath string, scale transcoder.Scale) error {
	t.mu.Lock()
	t.calls = append(t.calls, inputPath)
	t.scales = append(t.scales, scale)
	t.mu.Unlock()

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	if t.Err != nil {
		_ = os.WriteFile(outputPath, data[:len(data)/2], 0o644)
		return t.Err
	}
	return os.WriteFile(outputPath, append([]byte("360p:"), data...), 0o644)
}

func (t *Transcoder) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

func (t *Transcoder) Scales() []transcoder.Scale {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]transcoder.Scale(nil), t.scales...)
}
