package webhook_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/justapithecus/conduit/chunk"
	"github.com/justapithecus/conduit/output"
	"github.com/justapithecus/conduit/outputs/webhook"
)

func newChunk(t *testing.T, payload string) chunk.Chunk {
	t.Helper()
	c := chunk.NewMemoryChunk("k")
	if err := c.Append([]byte(payload)); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestSink_WriteSuccess(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = buf[:n]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := webhook.New(webhook.Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.Write(newChunk(t, "payload")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if string(gotBody) != "payload" {
		t.Fatalf("unexpected body: %q", gotBody)
	}
}

func TestSink_4xxIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s, err := webhook.New(webhook.Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	err = s.Write(newChunk(t, "payload"))
	var werr *output.WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("expected *output.WriteError, got %v", err)
	}
	if werr.Kind != output.Fatal {
		t.Fatalf("expected Fatal, got %v", werr.Kind)
	}
}

func TestSink_5xxIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, err := webhook.New(webhook.Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	err = s.Write(newChunk(t, "payload"))
	var werr *output.WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("expected *output.WriteError, got %v", err)
	}
	if werr.Kind != output.Transient {
		t.Fatalf("expected Transient, got %v", werr.Kind)
	}
}

func TestNew_RequiresURL(t *testing.T) {
	if _, err := webhook.New(webhook.Config{}); err == nil {
		t.Fatal("expected error for empty URL")
	}
}
