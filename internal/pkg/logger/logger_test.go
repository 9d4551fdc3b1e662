package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func newBufLogger(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{
		Level:       level,
		Format:      "json",
		Output:      &buf,
		ServiceName: "video-processing-test",
	}), &buf
}

func TestLoggerOutput(t *testing.T) {
	log, buf := newBufLogger("debug")

	log.Info("download completed", "bucket", "raw")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v", err)
	}

	if entry["msg"] != "download completed" {
		t.Errorf("expected msg='download completed', got %v", entry["msg"])
	}
	if entry["bucket"] != "raw" {
		t.Errorf("expected bucket='raw', got %v", entry["bucket"])
	}
	if entry["service"] != "video-processing-test" {
		t.Errorf("expected service attribute, got %v", entry["service"])
	}
	if ts, ok := entry["time"].(string); !ok || !strings.HasSuffix(ts, "Z") {
		t.Errorf("expected UTC RFC3339 time, got %v", entry["time"])
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "TEXT", Output: &buf})

	log.Info("hello")

	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text handler output, got: %s", buf.String())
	}
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		logFn     func(*Logger)
		shouldLog bool
	}{
		{"info logs info", "info", func(l *Logger) { l.Info("x") }, true},
		{"info drops debug", "info", func(l *Logger) { l.Debug("x") }, false},
		{"debug logs debug", "debug", func(l *Logger) { l.Debug("x") }, true},
		{"error drops warn", "error", func(l *Logger) { l.Warn("x") }, false},
		{"warn logs error", "warn", func(l *Logger) { l.Error("x") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newBufLogger(tt.level)
			tt.logFn(log)
			if got := buf.Len() > 0; got != tt.shouldLog {
				t.Errorf("expected shouldLog=%v, got %v", tt.shouldLog, got)
			}
		})
	}
}

func TestWithHelpers(t *testing.T) {
	log, buf := newBufLogger("info")

	log.WithComponent("pipeline").
		WithJobID("job-1").
		WithVideo("clip 1.mp4").
		WithRequestID("req-1").
		Info("stage")

	out := buf.String()
	for _, want := range []string{`"component":"pipeline"`, `"job_id":"job-1"`, `"video":"clip 1.mp4"`, `"request_id":"req-1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestWithError(t *testing.T) {
	log, buf := newBufLogger("info")

	if log.WithError(nil) != log {
		t.Error("WithError(nil) should return same logger")
	}

	log.WithError(context.DeadlineExceeded).Info("timed out")
	if !strings.Contains(buf.String(), "deadline exceeded") {
		t.Errorf("expected error in output, got: %s", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	log, buf := newBufLogger("info")

	ctx := context.Background()
	ctx = ContextWithRequestID(ctx, "req-abc")
	ctx = ContextWithJobID(ctx, "job-xyz")
	ctx = ContextWithVideo(ctx, "clip1.mp4")

	log.FromContext(ctx).Info("test message")

	out := buf.String()
	for _, want := range []string{"req-abc", "job-xyz", "clip1.mp4"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got: %s", want, out)
		}
	}
}

func TestFromContextEmpty(t *testing.T) {
	log, _ := newBufLogger("info")
	if log.FromContext(context.Background()) != log {
		t.Error("expected same logger when context carries no ids")
	}
}

func TestLogError(t *testing.T) {
	log, buf := newBufLogger("info")

	log.LogError(context.Background(), "ignored", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected nil error to log nothing, got: %s", buf.String())
	}

	log.LogError(ContextWithVideo(context.Background(), "a.mp4"), "upload failed", context.Canceled)
	out := buf.String()
	if !strings.Contains(out, "context canceled") || !strings.Contains(out, "a.mp4") || !strings.Contains(out, `"source"`) {
		t.Errorf("unexpected LogError output: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{" Info ", "INFO"},
		{"warning", "WARN"},
		{"ERROR", "ERROR"},
		{"verbose", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input).String(); got != tt.expected {
				t.Errorf("parseLevel(%q) = %s, expected %s", tt.input, got, tt.expected)
			}
		})
	}
}
