// Package buffer implements the Output's local two-stage store: an
// open-chunk-per-key map plus a FIFO flush queue, as specified in
// spec.md §3 ("Buffer state") and §4.2.
package buffer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/justapithecus/conduit/chunk"
	"github.com/justapithecus/conduit/log"
)

// Defaults per spec.md §3.
const (
	DefaultChunkLimit int64 = 8 * 1024 * 1024
	DefaultQueueLimit int   = 256
)

// ErrQueueFull is returned by Append when the flush queue is already at
// QueueLimit and the current write cannot be absorbed into the open
// chunk for its key.
var ErrQueueFull = errors.New("buffer: queue full")

// ErrChunkTooLarge is returned by Append when a single write exceeds
// ChunkLimit on its own. spec.md §9 leaves this an open design choice
// ("the source logs a warning and proceeds... an implementer MUST choose
// one policy... the recommended policy is to fail Append with
// ChunkTooLarge"); this implementation takes the recommended policy — see
// DESIGN.md.
var ErrChunkTooLarge = errors.New("buffer: record exceeds chunk limit")

// NewChunkFunc constructs a fresh open Chunk for key. Concrete Buffers
// (memory- or file-backed) supply this at construction.
type NewChunkFunc func(key string) (chunk.Chunk, error)

// Config configures a Buffer.
type Config struct {
	// ChunkLimit is the maximum bytes a single open chunk may hold.
	ChunkLimit int64
	// QueueLimit is the maximum number of chunks the flush queue may hold.
	QueueLimit int
	// NewChunk constructs chunks for this Buffer. Required.
	NewChunk NewChunkFunc
	// Logger receives warn-level backpressure/lifecycle events. Optional.
	Logger *log.Logger
}

func (c *Config) setDefaults() {
	if c.ChunkLimit <= 0 {
		c.ChunkLimit = DefaultChunkLimit
	}
	if c.QueueLimit <= 0 {
		c.QueueLimit = DefaultQueueLimit
	}
	if c.Logger == nil {
		c.Logger = log.Noop()
	}
}

// Buffer holds the open-chunk-per-key map and the FIFO flush queue.
//
// Lock order is Buffer -> Queue, never the reverse (spec.md §5). The
// Buffer lock guards bufMu/m and the Append/Push decision; the Queue
// sub-lock guards queueMu/queue mutation and the queueEmpty snapshot used
// for the flush-trigger signal.
type Buffer struct {
	cfg Config

	bufMu sync.Mutex
	m     map[string]chunk.Chunk

	queueMu sync.Mutex
	queue   []chunk.Chunk
}

// New creates a Buffer with the given configuration, applying defaults
// for zero-valued ChunkLimit/QueueLimit.
func New(cfg Config) (*Buffer, error) {
	if cfg.NewChunk == nil {
		return nil, errors.New("buffer: Config.NewChunk is required")
	}
	cfg.setDefaults()
	return &Buffer{
		cfg: cfg,
		m:   make(map[string]chunk.Chunk),
	}, nil
}

// Append appends bytes under key, creating the key's open chunk if this
// is the first write seen for it. Returns FlushTrigger=true exactly when
// this call moved the buffer from an empty queue to a non-empty one —
// the caller (an Output) uses this to wake its flusher immediately
// rather than waiting for the next periodic tick (spec.md §4.2).
func (b *Buffer) Append(key string, data []byte) (flushTrigger bool, err error) {
	b.bufMu.Lock()
	defer b.bufMu.Unlock()

	c, ok := b.m[key]
	if !ok {
		nc, err := b.cfg.NewChunk(key)
		if err != nil {
			return false, fmt.Errorf("buffer: create chunk for key %q: %w", key, err)
		}
		b.m[key] = nc
		c = nc
	}

	if c.Size()+int64(len(data)) <= b.cfg.ChunkLimit {
		if err := c.Append(data); err != nil {
			return false, fmt.Errorf("buffer: append to open chunk: %w", err)
		}
		return false, nil
	}

	// The open chunk cannot hold this write. Check backpressure before
	// mutating any further state (spec.md step 3).
	b.queueMu.Lock()
	full := len(b.queue) >= b.cfg.QueueLimit
	b.queueMu.Unlock()
	if full {
		b.cfg.Logger.Warn("buffer queue full, rejecting append", map[string]any{
			"key": key, "queue_limit": b.cfg.QueueLimit,
		})
		return false, ErrQueueFull
	}

	if int64(len(data)) > b.cfg.ChunkLimit {
		return false, fmt.Errorf("%w: %d bytes > limit %d", ErrChunkTooLarge, len(data), b.cfg.ChunkLimit)
	}

	nc, err := b.cfg.NewChunk(key)
	if err != nil {
		return false, fmt.Errorf("buffer: create replacement chunk for key %q: %w", key, err)
	}
	if err := nc.Append(data); err != nil {
		_ = nc.Purge()
		return false, fmt.Errorf("buffer: append to new chunk: %w", err)
	}

	old := c
	if err := old.Close(); err != nil {
		b.cfg.Logger.Warn("failed to close rotated chunk", map[string]any{"key": key, "error": err.Error()})
	}

	b.queueMu.Lock()
	triggerFlush := len(b.queue) == 0
	if notifier, ok := old.(chunk.EnqueueNotifier); ok {
		if err := notifier.OnEnqueue(); err != nil {
			b.queueMu.Unlock()
			return false, fmt.Errorf("buffer: enqueue hook: %w", err)
		}
	}
	b.queue = append(b.queue, old)
	b.queueMu.Unlock()

	b.m[key] = nc
	return triggerFlush, nil
}

// Push forcibly moves the open chunk for key to the queue, returning
// false if there is no chunk for key or it is empty.
func (b *Buffer) Push(key string) (bool, error) {
	b.bufMu.Lock()
	defer b.bufMu.Unlock()

	c, ok := b.m[key]
	if !ok || c.Empty() {
		return false, nil
	}

	if err := c.Close(); err != nil {
		return false, fmt.Errorf("buffer: close chunk for push: %w", err)
	}

	b.queueMu.Lock()
	if notifier, ok := c.(chunk.EnqueueNotifier); ok {
		if err := notifier.OnEnqueue(); err != nil {
			b.queueMu.Unlock()
			return false, fmt.Errorf("buffer: enqueue hook: %w", err)
		}
	}
	b.queue = append(b.queue, c)
	b.queueMu.Unlock()

	delete(b.m, key)
	return true, nil
}

// Writer is the subset of Output used by Pop to flush one chunk. Kept
// narrow so tests can stub it without building a full Output.
type Writer interface {
	Write(c chunk.Chunk) error
}

// Pop selects one queued chunk, writes it through w, purges it on
// success, and reports whether the queue still has work. Selection mode
// is controlled by parallelPop:
//
//   - false (serial): only the queue head is considered; if its TryLock
//     fails, Pop returns MoreWork=false (another flusher owns it).
//   - true (parallel): the queue is scanned head-to-tail for the first
//     chunk whose TryLock succeeds.
//
// Per spec.md §9, popping an empty selected chunk is treated as a
// defensive no-op that still purges and removes it from the queue.
func (b *Buffer) Pop(w Writer, parallelPop bool) (moreWork bool, err error) {
	c := b.selectForPop(parallelPop)
	if c == nil {
		return false, nil
	}
	defer c.Unlock()

	if c.Empty() {
		moreWork := b.removeFromQueue(c)
		if err := c.Purge(); err != nil {
			return moreWork, fmt.Errorf("buffer: purge empty chunk: %w", err)
		}
		return moreWork, nil
	}

	if err := w.Write(c); err != nil {
		// Leave c on the queue, retry-visible, per spec.md §4.2 step 2.
		return false, err
	}

	moreWork = b.removeFromQueue(c)
	if err := c.Purge(); err != nil {
		return moreWork, fmt.Errorf("buffer: purge after write: %w", err)
	}
	return moreWork, nil
}

// selectForPop picks a queued chunk under lock and leaves it locked for
// the caller; returns nil if nothing is eligible right now.
func (b *Buffer) selectForPop(parallelPop bool) chunk.Chunk {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()

	if len(b.queue) == 0 {
		return nil
	}

	if !parallelPop {
		head := b.queue[0]
		if !head.TryLock() {
			return nil
		}
		return head
	}

	for _, c := range b.queue {
		if c.TryLock() {
			return c
		}
	}
	return nil
}

// removeFromQueue removes c from the queue by identity (ChunkID) and
// reports whether the queue still holds any chunk.
func (b *Buffer) removeFromQueue(c chunk.Chunk) (queueNonEmpty bool) {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()

	for i, qc := range b.queue {
		if qc.ID() == c.ID() {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			break
		}
	}
	return len(b.queue) > 0
}

// Keys returns the current set of keys with an open chunk.
func (b *Buffer) Keys() []string {
	b.bufMu.Lock()
	defer b.bufMu.Unlock()
	keys := make([]string, 0, len(b.m))
	for k := range b.m {
		keys = append(keys, k)
	}
	return keys
}

// QueueSize returns the number of chunks currently queued for flush.
func (b *Buffer) QueueSize() int {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	return len(b.queue)
}

// TotalQueuedBytes sums Size() over every chunk in the open map and the
// flush queue (spec.md invariant 6).
func (b *Buffer) TotalQueuedBytes() int64 {
	var total int64

	b.bufMu.Lock()
	for _, c := range b.m {
		total += c.Size()
	}
	b.bufMu.Unlock()

	b.queueMu.Lock()
	for _, c := range b.queue {
		total += c.Size()
	}
	b.queueMu.Unlock()

	return total
}

// Clear drops everything without flushing — for shutdown/tests only.
func (b *Buffer) Clear() {
	b.bufMu.Lock()
	for k, c := range b.m {
		_ = c.Close()
		delete(b.m, k)
	}
	b.bufMu.Unlock()

	b.queueMu.Lock()
	b.queue = nil
	b.queueMu.Unlock()
}

// Shutdown closes every chunk in the open map and the flush queue without
// purging them, so a durable backing can persist them for the next run
// (spec.md §4.2 Shutdown).
func (b *Buffer) Shutdown() {
	b.bufMu.Lock()
	for _, c := range b.m {
		_ = c.Close()
	}
	b.bufMu.Unlock()

	b.queueMu.Lock()
	for _, c := range b.queue {
		_ = c.Close()
	}
	b.queueMu.Unlock()
}

// Resume installs externally-reconstructed Map/Queue state, as produced
// by a concrete Buffer's crash-recovery scan on Start (spec.md §4.2
// "Resume() → (Map, Queue) — called on Start by concrete subclasses;
// returns persisted state or empty").
func (b *Buffer) Resume(m map[string]chunk.Chunk, queue []chunk.Chunk) {
	b.bufMu.Lock()
	defer b.bufMu.Unlock()
	b.queueMu.Lock()
	defer b.queueMu.Unlock()

	if m != nil {
		b.m = m
	}
	b.queue = append([]chunk.Chunk(nil), queue...)
}
