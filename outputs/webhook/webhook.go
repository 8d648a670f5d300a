// Package webhook implements an HTTP POST output.Sink, grounded on the
// teacher's adapter/webhook package: one POST per flushed chunk, with
// 4xx responses classified Fatal and everything else Transient so the
// BufferedOutput retry/backoff layer (spec.md §4.3) handles the rest.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/justapithecus/conduit/chunk"
	"github.com/justapithecus/conduit/iox"
	"github.com/justapithecus/conduit/output"
)

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 10 * time.Second

// Config configures the webhook sink.
type Config struct {
	// URL is the HTTP endpoint to POST each chunk's payload to. Required.
	URL string
	// Headers are added to every request.
	Headers map[string]string
	// Timeout is the per-request timeout. Default 10s.
	Timeout time.Duration
}

// Sink POSTs each flushed chunk's raw payload to a configured URL.
type Sink struct {
	cfg    Config
	client *http.Client
}

// New creates a webhook sink. Returns an error if URL is empty.
func New(cfg Config) (*Sink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook output: Config.URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Sink{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Write POSTs c's payload. 4xx responses are wrapped as Fatal (the
// BufferedOutput drops the chunk without retrying); everything else is
// Transient.
func (s *Sink) Write(c chunk.Chunk) error {
	data, err := c.Read()
	if err != nil {
		return fmt.Errorf("webhook output: read chunk: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return &output.WriteError{Kind: output.Fatal, Err: fmt.Errorf("webhook output: build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &output.WriteError{Kind: output.Transient, Err: fmt.Errorf("webhook output: request: %w", err)}
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	statusErr := &StatusError{Code: resp.StatusCode}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &output.WriteError{Kind: output.Fatal, Err: statusErr}
	}
	return &output.WriteError{Kind: output.Transient, Err: statusErr}
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("webhook output: unexpected status %d", e.Code) }

// Close releases idle connections.
func (s *Sink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
