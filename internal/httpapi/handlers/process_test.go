package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vidproc/internal/envelope"
	"vidproc/internal/pipeline"
	"vidproc/internal/pkg/errors"
	"vidproc/internal/pkg/logger"
)

type stubProcessor struct {
	err   error
	names []string
}

func (s *stubProcessor) Process(_ context.Context, name string) (pipeline.Result, error) {
	s.names = append(s.names, name)
	return pipeline.Result{InputName: name, OutputName: envelope.ProcessedName(name)}, s.err
}

func pushBody(data string) string {
	return `{"message":{"data":"` + data + `","messageId":"1"},"subscription":"projects/p/subscriptions/s"}`
}

func TestProcessVideoStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"success", nil, http.StatusOK, MsgCompleted},
		{"unsafe name", errors.BadRequest("escapes scratch dir"), http.StatusBadRequest, MsgBadRequest},
		{"duplicate", errors.Conflict("busy"), http.StatusConflict, MsgConflict},
		{"transcode failure", errors.WrapWithCode(stderrors.New("exit 1"), errors.CodeTranscodeFailed, "op", "msg"), http.StatusInternalServerError, MsgFailed},
		{"download failure", errors.WrapWithCode(stderrors.New("404"), errors.CodeDownloadFailed, "op", "msg"), http.StatusInternalServerError, MsgFailed},
		{"lock backend down", errors.Wrap(stderrors.New("dial tcp"), "pipeline.lock", "lock"), http.StatusInternalServerError, MsgFailed},
		{"plain error", stderrors.New("boom"), http.StatusInternalServerError, MsgFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &stubProcessor{err: tt.err}
			h := New(Deps{Processor: proc, Log: logger.Discard()})

			req := httptest.NewRequest("POST", "/process-video", strings.NewReader(pushBody(envelope.Encode("clip1.mp4"))))
			rec := httptest.NewRecorder()
			h.ProcessVideo(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, rec.Body.String())
			}
			if len(proc.names) != 1 || proc.names[0] != "clip1.mp4" {
				t.Errorf("expected one job for clip1.mp4, got %v", proc.names)
			}
		})
	}
}

func TestProcessVideoRejectsInvalidEnvelopes(t *testing.T) {
	bodies := map[string]string{
		"empty body":         "",
		"not json":           "hello",
		"no message":         `{}`,
		"no data":            `{"message":{}}`,
		"null data":          `{"message":{"data":null}}`,
		"bad base64":         pushBody("!!!"),
		"data not json":      pushBody("aGVsbG8="),
		"missing name":       pushBody("e30="),
		"empty name":         pushBody("eyJuYW1lIjoiIn0="),
		"numeric name":       pushBody("eyJuYW1lIjo0Mn0="),
		"array payload":      pushBody("WyJhIl0="),
		"envelope not object": `[1,2,3]`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			proc := &stubProcessor{}
			h := New(Deps{Processor: proc, Log: logger.Discard()})

			rec := httptest.NewRecorder()
			h.ProcessVideo(rec, httptest.NewRequest("POST", "/process-video", strings.NewReader(body)))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
			if rec.Body.String() != MsgBadRequest {
				t.Errorf("unexpected body %q", rec.Body.String())
			}
			if len(proc.names) != 0 {
				t.Errorf("expected no job to start, got %v", proc.names)
			}
		})
	}
}

func TestProcessVideoLogsFailureDetails(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantStack bool
	}{
		{"internal error", errors.New(errors.CodeInternal, "lock backend down").WithField("lock_key", "video:lock:clip1.mp4"), true},
		{"unavailable", errors.WrapWithCode(stderrors.New("dial tcp"), errors.CodeUnavailable, "pipeline.lock", "lock").WithField("lock_key", "video:lock:clip1.mp4"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := logger.New(logger.Config{Output: &buf, Level: "error"})
			h := New(Deps{Processor: &stubProcessor{err: tt.err}, Log: log})

			req := httptest.NewRequest("POST", "/process-video", strings.NewReader(pushBody(envelope.Encode("clip1.mp4"))))
			h.ProcessVideo(httptest.NewRecorder(), req)

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("expected one JSON log line, got %q: %v", buf.String(), err)
			}
			fields, _ := entry["fields"].(map[string]any)
			if fields["lock_key"] != "video:lock:clip1.mp4" {
				t.Errorf("expected error fields in log, got %v", entry["fields"])
			}
			if _, ok := entry["stack"]; ok != tt.wantStack {
				t.Errorf("expected stack present=%v, got %v", tt.wantStack, ok)
			}
		})
	}
}

func TestProcessVideoDoesNotRelogStageFailures(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Output: &buf, Level: "error"})
	err := errors.WrapWithCode(stderrors.New("exit 1"), errors.CodeTranscodeFailed, "transcode", "ffmpeg failed")
	h := New(Deps{Processor: &stubProcessor{err: err}, Log: log})

	req := httptest.NewRequest("POST", "/process-video", strings.NewReader(pushBody(envelope.Encode("clip1.mp4"))))
	h.ProcessVideo(httptest.NewRecorder(), req)

	if buf.Len() != 0 {
		t.Errorf("expected no error log from the handler, got %s", buf.String())
	}
}
