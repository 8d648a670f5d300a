// Package memory implements an in-memory output.Sink for tests and
// development (the "memory" plugin). Grounded on the teacher's
// policy.StubSink: records every write for inspection instead of
// persisting anywhere.
package memory

import (
	"sync"

	"github.com/justapithecus/conduit/chunk"
)

// Sink accumulates written chunk payloads in memory. Safe for concurrent
// use by the Output flusher.
type Sink struct {
	mu      sync.Mutex
	writes  [][]byte
	closed  bool
	failNext int
}

// New creates an empty memory sink.
func New() *Sink {
	return &Sink{}
}

// FailNext(true) makes one more upcoming Write call return an error, for
// exercising the BufferedOutput retry path in tests; repeated calls
// accumulate, so n calls fail the next n Writes. FailNext(false) cancels
// every pending failure.
func (s *Sink) FailNext(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fail {
		s.failNext++
	} else {
		s.failNext = 0
	}
}

// Write copies the chunk's bytes into the in-memory log.
func (s *Sink) Write(c chunk.Chunk) error {
	data, err := c.Read()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return errWriteFailed
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.writes = append(s.writes, cp)
	return nil
}

// Close marks the sink closed. Further Writes still succeed; Close only
// exists to satisfy output.Sink.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Writes returns a copy of every payload written so far, in write order.
func (s *Sink) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	copy(out, s.writes)
	return out
}

// Closed reports whether Close has been called.
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var errWriteFailed = &writeFailedError{}

type writeFailedError struct{}

func (*writeFailedError) Error() string { return "memory: simulated write failure" }
