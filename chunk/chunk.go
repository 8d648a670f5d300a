// Package chunk implements the append-only, size-bounded byte batch
// described in spec.md §3/§4.1: a Chunk is identified by a routing key,
// accepts appends only while open, and exposes a non-blocking advisory
// lock so a Buffer's pop path can guarantee at most one concurrent writer
// per chunk even when multiple flusher goroutines scan the queue.
package chunk

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Append once the chunk has been moved to the
// flush queue (closed for append from the producer's perspective).
var ErrClosed = errors.New("chunk: append on closed chunk")

// ErrPurged is returned by Append and Read after Purge, which is terminal.
var ErrPurged = errors.New("chunk: operation on purged chunk")

// Chunk is the abstract contract concrete backings (memory, file, ...)
// implement. See spec.md §3 for the full invariant list and §9 "Dynamic
// dispatch on Chunk/Buffer/Output" for why this is a capability interface
// rather than a base class.
type Chunk interface {
	// ID returns this chunk's unique identity, used for queue removal by
	// identity rather than by value.
	ID() ID
	// Key returns the bucketing key this chunk was created for.
	Key() string
	// Append adds bytes to the chunk. Only legal while the chunk is open;
	// returns ErrClosed once Close has been called.
	Append(b []byte) error
	// Size returns the payload length in bytes.
	Size() int64
	// Empty reports Size() == 0.
	Empty() bool
	// Read returns the full payload.
	Read() ([]byte, error)
	// Close marks the chunk closed for append. Bytes remain readable
	// until Purge. Idempotent.
	Close() error
	// Purge is terminal and idempotent; subsequent operations are
	// undefined (concrete backings return ErrPurged defensively).
	Purge() error
	// TryLock acquires the chunk's advisory lock without blocking.
	// Returns false if another holder already has it.
	TryLock() bool
	// Unlock releases the advisory lock. Must be called on every exit
	// path following a successful TryLock.
	Unlock()
	// CreatedAt returns the wall-clock time the chunk was opened, used by
	// time-windowed keys and TUI display.
	CreatedAt() time.Time
}

// guard is the non-reentrant advisory lock embedded in every concrete
// Chunk. It is deliberately a plain sync.Mutex used only via TryLock —
// never Lock — so a second TryLock from the same goroutine fails exactly
// like one from a different goroutine (see spec.md §9: "never reentrant").
type guard struct {
	mu sync.Mutex
}

func (g *guard) TryLock() bool { return g.mu.TryLock() }
func (g *guard) Unlock()       { g.mu.Unlock() }
