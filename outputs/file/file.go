// Package file implements a durable output.Sink that appends flushed
// chunk payloads to a directory of plain files, one per tag, grounded on
// the teacher's lode/file_writer.go atomic-append pattern.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/justapithecus/conduit/chunk"
)

// Config configures the file sink.
type Config struct {
	// Dir is the directory flushed chunks are written into. Required.
	Dir string
	// FileFunc derives the destination file name from a chunk's Key.
	// Defaults to using the key verbatim.
	FileFunc func(key string) string
}

// Sink appends each flushed chunk's payload to "<Dir>/<FileFunc(key)>".
type Sink struct {
	cfg Config

	mu    sync.Mutex
	files map[string]*os.File
}

// New creates a file sink, creating Dir if it does not exist.
func New(cfg Config) (*Sink, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("file output: Config.Dir is required")
	}
	if cfg.FileFunc == nil {
		cfg.FileFunc = func(key string) string { return key + ".log" }
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("file output: create dir %s: %w", cfg.Dir, err)
	}
	return &Sink{cfg: cfg, files: make(map[string]*os.File)}, nil
}

// Write appends c's payload to the file for c.Key(), opening and caching
// the file handle on first use.
func (s *Sink) Write(c chunk.Chunk) error {
	data, err := c.Read()
	if err != nil {
		return fmt.Errorf("file output: read chunk: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[c.Key()]
	if !ok {
		path := filepath.Join(s.cfg.Dir, s.cfg.FileFunc(c.Key()))
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("file output: open %s: %w", path, err)
		}
		s.files[c.Key()] = f
	}

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("file output: write: %w", err)
	}
	return nil
}

// Close flushes and closes every open file handle.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for key, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("file output: close %s: %w", key, err)
		}
	}
	s.files = make(map[string]*os.File)
	return firstErr
}
