// Package output implements the buffered-output side of spec.md §4.3: an
// Output wraps a Buffer and a downstream Sink, runs a background flusher
// with retry/backoff, and exposes the accessors spec.md §6 calls for.
package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/conduit/chunk"
)

// ErrorKind classifies a Sink.Write failure for the retry layer
// (spec.md §6/§7).
type ErrorKind int

const (
	// Unknown is treated as Transient.
	Unknown ErrorKind = iota
	// Transient errors are retried with backoff.
	Transient
	// Fatal errors drop the chunk (after logging) without retrying it.
	Fatal
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// WriteError wraps a Sink.Write failure with its classification. Sinks
// that don't care about the distinction may return a plain error, which
// the retry layer treats as Unknown (== Transient).
type WriteError struct {
	Kind ErrorKind
	Err  error
}

func (e *WriteError) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// Sink is the collector interface a buffered Output flushes chunks to
// (spec.md §6 "Collector interface (Output)"). Concrete sinks live under
// outputs/ (memory, file, webhook, redis, s3).
type Sink interface {
	// Write persists one chunk. Return a *WriteError to classify the
	// failure; any other error is treated as Transient.
	Write(c chunk.Chunk) error
	// Close releases sink resources (connections, file handles).
	Close() error
}

// Stats is the observability snapshot spec.md §6 calls for:
// "BufferQueueLength, BufferTotalQueuedBytes, RetryCount, LastErrorAt".
type Stats struct {
	BufferQueueLength      int
	BufferTotalQueuedBytes int64
	RetryCount             int64
	LastErrorAt            time.Time
	Dead                   bool
}

// observer is the thread-safe holder for retry/backoff state and the
// Stats snapshot, split out of BufferedOutput so it can be read by the
// TUI/metrics collector without taking the flusher's own locks.
type observer struct {
	mu          sync.Mutex
	errorCount  int
	nextRetryAt time.Time
	retryCount  int64
	lastErrorAt time.Time
	dead        bool
}

func (o *observer) snapshot() (errorCount int, nextRetryAt time.Time, dead bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.errorCount, o.nextRetryAt, o.dead
}

func (o *observer) recordFailure(retryWait, maxRetryWait time.Duration, retryLimit int, now time.Time) (dead bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errorCount++
	o.retryCount++
	o.lastErrorAt = now

	backoff := retryWait << uint(o.errorCount-1) // RetryWait * 2^(errorHistory-1)
	if maxRetryWait > 0 && backoff > maxRetryWait {
		backoff = maxRetryWait
	}
	o.nextRetryAt = now.Add(backoff)

	if retryLimit > 0 && o.errorCount >= retryLimit {
		o.errorCount = 0
		o.nextRetryAt = time.Time{}
		o.dead = true
		return true
	}
	return false
}

func (o *observer) recordSuccess() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errorCount = 0
	o.nextRetryAt = time.Time{}
	o.dead = false
}

func (o *observer) stats(queueLength int, queuedBytes int64) Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Stats{
		BufferQueueLength:      queueLength,
		BufferTotalQueuedBytes: queuedBytes,
		RetryCount:             o.retryCount,
		LastErrorAt:            o.lastErrorAt,
		Dead:                   o.dead,
	}
}
