package output

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/conduit/buffer"
	"github.com/justapithecus/conduit/chunk"
	"github.com/justapithecus/conduit/log"
	"github.com/justapithecus/conduit/metrics"
	"github.com/justapithecus/conduit/types"
)

// Defaults per spec.md §4.3.
const (
	DefaultFlushInterval = 1 * time.Second
	DefaultRetryWait     = 1 * time.Second
	DefaultMaxRetryWait  = 30 * time.Second
	DefaultRetryLimit    = 8
)

// KeyFunc derives the Buffer key for a record. The default buckets
// purely by tag; time-windowed outputs (e.g. hourly files) override this.
type KeyFunc func(tag string, t int64) string

func defaultKeyFunc(tag string, _ int64) string { return tag }

// Config configures a BufferedOutput.
type Config struct {
	// Buffer backs this Output. Required.
	Buffer *buffer.Buffer
	// Sink is the downstream collector chunks are flushed to. Required.
	Sink Sink
	// KeyFunc derives the Buffer key from (tag, time). Defaults to the tag.
	KeyFunc KeyFunc
	// FlushInterval is the periodic flusher tick when no FlushTrigger
	// fires. Default 1s.
	FlushInterval time.Duration
	// RetryWait is the base retry backoff. Default 1s.
	RetryWait time.Duration
	// MaxRetryWait caps the exponential backoff. Default 30s.
	MaxRetryWait time.Duration
	// RetryLimit is the number of consecutive failures before the output
	// is declared dead and drops its queued chunks. Zero selects the
	// default 8; a negative value disables the dead-output cutoff
	// (retries forever).
	RetryLimit int
	// ParallelPop selects Buffer.Pop's scan mode. Default true.
	ParallelPop bool
	// DeadLetterSink, if set, receives queued chunks when this output is
	// declared dead instead of silently dropping them (spec.md §4.3:
	// "drop (or secondary-route) remaining chunks per policy").
	DeadLetterSink Sink
	// Logger receives lifecycle/backpressure/retry logs. Optional.
	Logger *log.Logger
	// Metrics receives write-path counters (successes, failures, retries,
	// dead state) and buffer-state snapshots. Optional; nil-receiver safe.
	Metrics *metrics.Collector
}

func (c *Config) setDefaults() {
	if c.KeyFunc == nil {
		c.KeyFunc = defaultKeyFunc
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.RetryWait <= 0 {
		c.RetryWait = DefaultRetryWait
	}
	if c.MaxRetryWait <= 0 {
		c.MaxRetryWait = DefaultMaxRetryWait
	}
	if c.RetryLimit == 0 {
		c.RetryLimit = DefaultRetryLimit
	}
	if c.Logger == nil {
		c.Logger = log.Noop()
	}
}

// BufferedOutput wraps a Buffer and a downstream Sink, running a
// background flusher with retry/backoff (spec.md §4.3).
type BufferedOutput struct {
	cfg      Config
	observer observer

	wakeCh chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a BufferedOutput. Call Start to launch its flusher.
func New(cfg Config) (*BufferedOutput, error) {
	if cfg.Buffer == nil {
		return nil, errors.New("output: Config.Buffer is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("output: Config.Sink is required")
	}
	cfg.setDefaults()
	return &BufferedOutput{
		cfg:    cfg,
		wakeCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Emit formats each record in stream and appends it to the Buffer under
// KeyFunc(tag, time). If any Append reports FlushTrigger, the flusher is
// woken immediately instead of waiting for its next periodic tick
// (spec.md §4.3 Emit).
func (o *BufferedOutput) Emit(tag string, stream types.EventStream) error {
	for {
		entry, ok := stream.Next()
		if !ok {
			return nil
		}

		payload, err := chunk.EncodeEntry(entry)
		if err != nil {
			return fmt.Errorf("output: encode entry: %w", err)
		}

		key := o.cfg.KeyFunc(tag, entry.Time)
		trigger, err := o.cfg.Buffer.Append(key, payload)
		if err != nil {
			return err
		}
		if trigger {
			o.wake()
		}
	}
}

func (o *BufferedOutput) wake() {
	select {
	case o.wakeCh <- struct{}{}:
	default:
	}
}

// Start launches the background flusher loop. Safe to call once; later
// calls are no-ops.
func (o *BufferedOutput) Start(ctx context.Context) {
	o.startOnce.Do(func() {
		go o.flushLoop(ctx)
	})
}

func (o *BufferedOutput) flushLoop(ctx context.Context) {
	defer close(o.doneCh)
	ticker := time.NewTicker(o.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			o.cfg.Buffer.Shutdown()
			return
		case <-ctx.Done():
			o.cfg.Buffer.Shutdown()
			return
		case <-o.wakeCh:
		case <-ticker.C:
		}
		o.drain()
	}
}

// drain pops chunks until the queue is empty, the sink is in backoff, or
// the output has just been declared dead.
func (o *BufferedOutput) drain() {
	_, nextRetryAt, _ := o.observer.snapshot()
	if !nextRetryAt.IsZero() && time.Now().Before(nextRetryAt) {
		return
	}

	for {
		if o.cfg.Buffer.QueueSize() == 0 {
			return
		}
		more, err := o.cfg.Buffer.Pop(sinkWriter{o}, o.cfg.ParallelPop)
		if err != nil {
			o.handleWriteFailure(err)
			return
		}
		o.observer.recordSuccess()
		o.cfg.Metrics.IncWriteSucceeded()
		o.cfg.Metrics.ResetDead()
		if !more {
			return
		}
	}
}

func (o *BufferedOutput) handleWriteFailure(err error) {
	var kind ErrorKind
	var werr *WriteError
	if errors.As(err, &werr) {
		kind = werr.Kind
	}

	if kind == Fatal {
		// The failed chunk is still queued. This flusher is the Buffer's
		// only popper, so the same chunk is again the first one selectable;
		// pop it with the no-op writer to remove and purge it.
		_, _ = o.cfg.Buffer.Pop(deadLetterWriter{}, o.cfg.ParallelPop)
		o.cfg.Logger.Error("fatal write error, chunk dropped", map[string]any{"error": err.Error()})
		o.cfg.Metrics.IncWriteFailed(false, time.Now())
		o.observer.recordSuccess()
		return
	}

	dead := o.observer.recordFailure(o.cfg.RetryWait, o.cfg.MaxRetryWait, o.cfg.RetryLimit, time.Now())
	o.cfg.Metrics.IncWriteFailed(dead, time.Now())
	o.cfg.Logger.Warn("buffered output write failed", map[string]any{"error": err.Error(), "dead": dead})
	if dead {
		o.dropQueued()
	}
}

// dropQueued drains the queue without a functioning sink, per spec.md
// §4.3: "drop (or secondary-route) remaining chunks per policy". Each
// chunk is routed to DeadLetterSink when configured, else purged
// silently.
func (o *BufferedOutput) dropQueued() {
	sink := o.cfg.DeadLetterSink
	for {
		more, err := o.cfg.Buffer.Pop(deadLetterWriter{sink}, true)
		if err != nil {
			// Even the dead-letter route failed; give up and Clear the
			// Buffer (queued and open chunks alike, without purging them)
			// rather than spin forever on a permanently broken secondary.
			o.cfg.Buffer.Clear()
			return
		}
		if !more {
			return
		}
	}
}

type sinkWriter struct{ o *BufferedOutput }

func (w sinkWriter) Write(c chunk.Chunk) error { return w.o.cfg.Sink.Write(c) }

type deadLetterWriter struct{ sink Sink }

func (w deadLetterWriter) Write(c chunk.Chunk) error {
	if w.sink == nil {
		return nil
	}
	return w.sink.Write(c)
}

// Shutdown stops the flusher and closes the underlying Buffer's chunks
// (without purging) and the Sink. It waits up to grace for any in-flight
// Sink.Write to finish, then returns regardless (spec.md §5:
// "after a configurable grace period they are abandoned").
func (o *BufferedOutput) Shutdown(grace time.Duration) error {
	o.stopOnce.Do(func() { close(o.stopCh) })

	select {
	case <-o.doneCh:
	case <-time.After(grace):
	}
	return o.cfg.Sink.Close()
}

// Observe returns a map of observability fields suitable for a monitor
// endpoint or the TUI, per spec.md §9 "Monitor info via instance
// introspection... re-architect as an explicit Observe() → map[string]
// value method per plugin."
func (o *BufferedOutput) Observe() map[string]any {
	s := o.Stats()
	return map[string]any{
		"buffer_queue_length":       s.BufferQueueLength,
		"buffer_total_queued_bytes": s.BufferTotalQueuedBytes,
		"retry_count":               s.RetryCount,
		"last_error_at":             s.LastErrorAt,
		"dead":                      s.Dead,
	}
}

// Stats returns the structured observability snapshot.
func (o *BufferedOutput) Stats() Stats {
	queueLength := o.cfg.Buffer.QueueSize()
	totalQueuedBytes := o.cfg.Buffer.TotalQueuedBytes()
	o.cfg.Metrics.AbsorbBufferStats(queueLength, totalQueuedBytes)
	return o.observer.stats(queueLength, totalQueuedBytes)
}
