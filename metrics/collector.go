// Package metrics provides per-Output metrics collection.
//
// The Collector accumulates counters for one BufferedOutput's lifetime.
// It is a leaf package with no internal dependencies; buffer/queue state
// is absorbed from an output.Stats snapshot rather than tracked live, so
// this package never needs to import the output package either.
package metrics

import (
	"sync"
	"time"
)

// Snapshot is an immutable point-in-time view of one Output's metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Routing (absorbed from router.EventRouter at emit time)
	EmitsReceived  int64
	EmitsRouted    int64
	EmitsDiscarded int64
	NoMatchCount   int64

	// Write path
	WritesSucceeded int64
	WritesFailed    int64
	RetryCount      int64
	LastErrorAt     time.Time
	Dead            bool

	// Buffer state (absorbed from output.Stats)
	BufferQueueLength      int
	BufferTotalQueuedBytes int64

	// Dimensions (informational, set at construction)
	Plugin string
	Label  string
}

// Collector accumulates metrics for a single Output.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	emitsReceived  int64
	emitsRouted    int64
	emitsDiscarded int64
	noMatchCount   int64

	writesSucceeded int64
	writesFailed    int64
	retryCount      int64
	lastErrorAt     time.Time
	dead            bool

	bufferQueueLength      int
	bufferTotalQueuedBytes int64

	plugin string
	label  string
}

// NewCollector creates a Collector with dimension labels identifying the
// Output plugin type and, if this Output belongs to a named label scope,
// that label's name.
func NewCollector(plugin, label string) *Collector {
	return &Collector{plugin: plugin, label: label}
}

// IncEmitReceived records one Emit call reaching the router.
func (c *Collector) IncEmitReceived() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.emitsReceived++
	c.mu.Unlock()
}

// IncEmitRouted records one Emit call that matched a rule and was
// dispatched to a collector.
func (c *Collector) IncEmitRouted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.emitsRouted++
	c.mu.Unlock()
}

// IncEmitDiscarded records one Emit call that reached this rule's target
// but was not delivered: its filter chain emptied the stream, or the
// Output (or any fan-out sub-output) returned an error. Tags with no
// matching rule are not counted here.
func (c *Collector) IncEmitDiscarded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.emitsDiscarded++
	c.mu.Unlock()
}

// IncNoMatch records one tag for which no MatchRule matched.
func (c *Collector) IncNoMatch() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.noMatchCount++
	c.mu.Unlock()
}

// IncWriteSucceeded records a successful Sink.Write.
func (c *Collector) IncWriteSucceeded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.writesSucceeded++
	c.mu.Unlock()
}

// IncWriteFailed records a failed Sink.Write and its retry bookkeeping.
func (c *Collector) IncWriteFailed(dead bool, at time.Time) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.writesFailed++
	c.retryCount++
	c.lastErrorAt = at
	c.dead = dead
	c.mu.Unlock()
}

// ResetDead clears the dead flag after a successful write following a
// previously dead output (e.g. after manual intervention or sink
// recovery).
func (c *Collector) ResetDead() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.dead = false
	c.mu.Unlock()
}

// AbsorbBufferStats copies the current queue length and queued byte total
// from an output.Stats snapshot. Called on each Stats() poll rather than
// tracked incrementally, since the Buffer already owns this state.
func (c *Collector) AbsorbBufferStats(queueLength int, totalQueuedBytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.bufferQueueLength = queueLength
	c.bufferTotalQueuedBytes = totalQueuedBytes
	c.mu.Unlock()
}

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		EmitsReceived:  c.emitsReceived,
		EmitsRouted:    c.emitsRouted,
		EmitsDiscarded: c.emitsDiscarded,
		NoMatchCount:   c.noMatchCount,

		WritesSucceeded: c.writesSucceeded,
		WritesFailed:    c.writesFailed,
		RetryCount:      c.retryCount,
		LastErrorAt:     c.lastErrorAt,
		Dead:            c.dead,

		BufferQueueLength:      c.bufferQueueLength,
		BufferTotalQueuedBytes: c.bufferTotalQueuedBytes,

		Plugin: c.plugin,
		Label:  c.label,
	}
}
