package output_test

import (
	"context"
	"testing"
	"time"

	"github.com/justapithecus/conduit/buffer"
	"github.com/justapithecus/conduit/chunk"
	"github.com/justapithecus/conduit/output"
	"github.com/justapithecus/conduit/outputs/memory"
	"github.com/justapithecus/conduit/types"
)

func newTestOutput(t *testing.T, sink *memory.Sink, retryLimit int) *output.BufferedOutput {
	t.Helper()
	b, err := buffer.New(buffer.Config{
		ChunkLimit: 64,
		QueueLimit: 16,
		NewChunk: func(key string) (chunk.Chunk, error) {
			return chunk.NewMemoryChunk(key), nil
		},
	})
	if err != nil {
		t.Fatalf("buffer.New: %v", err)
	}
	out, err := output.New(output.Config{
		Buffer:        b,
		Sink:          sink,
		FlushInterval: 10 * time.Millisecond,
		RetryWait:     10 * time.Millisecond,
		MaxRetryWait:  40 * time.Millisecond,
		RetryLimit:    retryLimit,
		ParallelPop:   true,
	})
	if err != nil {
		t.Fatalf("output.New: %v", err)
	}
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// TestBufferedOutput_EmitFlushesEventually mirrors spec.md S3: records
// emitted for one tag eventually land in the sink once their chunk
// rotates into the queue and the flusher drains it.
func TestBufferedOutput_EmitFlushesEventually(t *testing.T) {
	sink := memory.New()
	out := newTestOutput(t, sink, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out.Start(ctx)
	defer out.Shutdown(100 * time.Millisecond)

	// Two records that each fit ChunkLimit (64) but not together: the
	// second Append rotates the first record's chunk into the queue.
	rec := types.Record{"message": "hello"}
	stream := types.NewMultiStream([]types.Entry{{Time: 1, Record: rec}, {Time: 2, Record: rec}})
	if err := out.Emit("app.access", stream); err != nil {
		t.Fatalf("emit: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(sink.Writes()) > 0 })
}

// TestBufferedOutput_RetryBackoffThenDead mirrors spec.md S4: a
// permanently failing sink accumulates RetryCount and is declared dead
// after RetryLimit consecutive failures, at which point queued chunks
// are dropped rather than retried forever.
func TestBufferedOutput_RetryBackoffThenDead(t *testing.T) {
	sink := memory.New()
	out := newTestOutput(t, sink, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out.Start(ctx)
	defer out.Shutdown(100 * time.Millisecond)

	for i := 0; i < 3; i++ {
		sink.FailNext(true)
	}

	big := make([]byte, 20)
	for i := range big {
		big[i] = 'x'
	}
	// Two records that each fit ChunkLimit (64) but not together: the
	// second Append rotates the first record's chunk into the queue,
	// triggering the flusher.
	rec := types.Record{"data": string(big)}
	stream := types.NewMultiStream([]types.Entry{{Time: 1, Record: rec}, {Time: 2, Record: rec}})
	if err := out.Emit("app.access", stream); err != nil {
		t.Fatalf("emit: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return out.Stats().Dead })

	stats := out.Stats()
	if stats.RetryCount == 0 {
		t.Fatalf("expected RetryCount > 0, got %d", stats.RetryCount)
	}
}

func TestBufferedOutput_ObserveReportsQueueState(t *testing.T) {
	sink := memory.New()
	out := newTestOutput(t, sink, 8)

	fields := out.Observe()
	if _, ok := fields["buffer_queue_length"]; !ok {
		t.Fatal("expected buffer_queue_length field")
	}
	if _, ok := fields["dead"]; !ok {
		t.Fatal("expected dead field")
	}
}

func TestNew_RequiresBufferAndSink(t *testing.T) {
	if _, err := output.New(output.Config{}); err == nil {
		t.Fatal("expected error for missing Buffer/Sink")
	}
}
