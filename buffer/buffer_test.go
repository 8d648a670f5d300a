package buffer_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/justapithecus/conduit/buffer"
	"github.com/justapithecus/conduit/chunk"
)

func newTestBuffer(t *testing.T, chunkLimit int64, queueLimit int) *buffer.Buffer {
	t.Helper()
	b, err := buffer.New(buffer.Config{
		ChunkLimit: chunkLimit,
		QueueLimit: queueLimit,
		NewChunk: func(key string) (chunk.Chunk, error) {
			return chunk.NewMemoryChunk(key), nil
		},
	})
	if err != nil {
		t.Fatalf("buffer.New: %v", err)
	}
	return b
}

// TestAppend_Scenario1_Backpressure mirrors spec.md S1: ChunkLimit=10,
// QueueLimit=2. Each payload fills a chunk, so the 2nd/3rd Append rotate
// chunks into the queue; with two chunks queued the 4th must fail with
// ErrQueueFull, and so must the 5th, since a rejected Append changes
// nothing.
func TestAppend_Scenario1_Backpressure(t *testing.T) {
	b := newTestBuffer(t, 10, 2)
	payload := []byte("aaaaaaaaaa") // 10 bytes, exactly ChunkLimit

	for i := 0; i < 2; i++ {
		if _, err := b.Append("k", payload); err != nil {
			t.Fatalf("append %d: unexpected error: %v", i, err)
		}
	}
	if _, err := b.Append("k", payload); err != nil {
		t.Fatalf("3rd append: unexpected error: %v", err)
	}
	if _, err := b.Append("k", payload); !errors.Is(err, buffer.ErrQueueFull) {
		t.Fatalf("4th append: expected ErrQueueFull, got %v", err)
	}
	_, err := b.Append("k", payload)
	if !errors.Is(err, buffer.ErrQueueFull) {
		t.Fatalf("5th append: expected ErrQueueFull, got %v", err)
	}
}

// TestAppend_Scenario2_FlushTrigger mirrors spec.md S2.
func TestAppend_Scenario2_FlushTrigger(t *testing.T) {
	b := newTestBuffer(t, 10, 2)
	payload := []byte("aaaaaaaaaa")

	if _, err := b.Append("k", payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	trigger, err := b.Append("k", payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !trigger {
		t.Fatalf("expected FlushTrigger=true on first enqueue")
	}

	trigger, err = b.Append("k", payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trigger {
		t.Fatalf("expected FlushTrigger=false while queue still non-empty")
	}
}

func TestAppend_OversizeRecordFailsChunkTooLarge(t *testing.T) {
	b := newTestBuffer(t, 10, 2)
	_, err := b.Append("k", make([]byte, 11))
	if !errors.Is(err, buffer.ErrChunkTooLarge) {
		t.Fatalf("expected ErrChunkTooLarge, got %v", err)
	}
}

func TestAppend_NeverSplitsBetweenMapAndQueue(t *testing.T) {
	b := newTestBuffer(t, 20, 16) // 50 appends of 5 bytes rotate 12 chunks
	for i := 0; i < 50; i++ {
		if _, err := b.Append("k", []byte("xxxxx")); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	total := int64(0)
	for _, k := range b.Keys() {
		_ = k
	}
	total = b.TotalQueuedBytes()
	if total != 50*5 {
		t.Fatalf("expected total bytes 250, got %d", total)
	}
}

type recordingWriter struct {
	mu      sync.Mutex
	written []chunk.ID
	fail    bool
}

func (w *recordingWriter) Write(c chunk.Chunk) error {
	if w.fail {
		return errors.New("write failed")
	}
	w.mu.Lock()
	w.written = append(w.written, c.ID())
	w.mu.Unlock()
	return nil
}

func TestPop_PurgesOnlyOnSuccess(t *testing.T) {
	b := newTestBuffer(t, 5, 10)
	if _, err := b.Append("k", []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Append("k", []byte("world")); err != nil {
		t.Fatal(err)
	}
	if b.QueueSize() != 1 {
		t.Fatalf("expected 1 queued chunk, got %d", b.QueueSize())
	}

	w := &recordingWriter{fail: true}
	if _, err := b.Pop(w, true); err == nil {
		t.Fatal("expected write error to propagate")
	}
	if b.QueueSize() != 1 {
		t.Fatalf("failed write must not remove chunk from queue, got %d", b.QueueSize())
	}

	w.fail = false
	more, err := b.Pop(w, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if more {
		t.Fatalf("expected no more work after draining the only queued chunk")
	}
	if b.QueueSize() != 0 {
		t.Fatalf("expected queue empty after successful pop, got %d", b.QueueSize())
	}
	if len(w.written) != 1 {
		t.Fatalf("expected exactly one write, got %d", len(w.written))
	}
}

func TestPop_EmptyQueueReturnsNoMoreWork(t *testing.T) {
	b := newTestBuffer(t, 5, 10)
	w := &recordingWriter{}
	more, err := b.Pop(w, true)
	if err != nil || more {
		t.Fatalf("expected (false, nil), got (%v, %v)", more, err)
	}
}

func TestPop_SerialModeRespectsQueueHead(t *testing.T) {
	b := newTestBuffer(t, 5, 10)
	for _, key := range []string{"a", "b", "a"} {
		if _, err := b.Append(key, []byte("xxxxx")); err != nil {
			t.Fatal(err)
		}
		if _, err := b.Append(key, []byte("xxxxx")); err != nil {
			t.Fatal(err)
		}
	}
	// Queue is a, b, a, a: the second round on "a" finds its open chunk
	// already full, so both of its Appends rotate a chunk.
	if b.QueueSize() != 4 {
		t.Fatalf("expected 4 queued chunks, got %d", b.QueueSize())
	}

	w := &recordingWriter{}
	for b.QueueSize() > 0 {
		if _, err := b.Pop(w, false); err != nil {
			t.Fatalf("pop: %v", err)
		}
	}
	if len(w.written) != 4 {
		t.Fatalf("expected 4 writes, got %d", len(w.written))
	}
}

func TestAppend_PerKeyOrderPreserved(t *testing.T) {
	b := newTestBuffer(t, 5, 50)
	for i := 0; i < 20; i++ {
		payload := []byte{byte('a' + i%5), byte('a' + i%5)}
		if _, err := b.Append("k", payload); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	w := &recordingWriter{}
	var drained [][]byte
	for b.QueueSize() > 0 {
		// Peek at queue contents via Keys/QueueSize isn't enough; read the
		// chunk bytes before they're purged by wrapping the writer.
		_ = w
		if _, err := b.Pop(&captureWriter{inner: w, out: &drained}, true); err != nil {
			t.Fatalf("pop: %v", err)
		}
	}

	// Each chunk holds two 2-byte appends; the 9 rotated chunks carry
	// appends 0..17 and must, concatenated in drain order, reproduce them
	// in append order (spec.md §8 invariant 5, single key).
	var got []byte
	for _, d := range drained {
		if len(d)%2 != 0 {
			t.Fatalf("corrupted chunk payload: %q", d)
		}
		got = append(got, d...)
	}
	if len(got) != 36 {
		t.Fatalf("expected 36 drained bytes, got %d", len(got))
	}
	for j, c := range got {
		if want := byte('a' + (j/2)%5); c != want {
			t.Fatalf("byte %d = %q, want %q (append order broken): %q", j, c, want, got)
		}
	}
}

type captureWriter struct {
	inner *recordingWriter
	out   *[][]byte
}

func (w *captureWriter) Write(c chunk.Chunk) error {
	data, err := c.Read()
	if err != nil {
		return err
	}
	*w.out = append(*w.out, data)
	return w.inner.Write(c)
}

// TestConcurrentPop_Scenario3_NoDoubleWrite mirrors spec.md S3: two
// flushers race against an interleaved queue (keys a, b, a, a) with
// parallelPop=true. Per-chunk TryLock must prevent a double-write (the
// winning flusher excludes the other from its own chunk) — invariant #3,
// "no chunk delivered to Output.Write more than once".
func TestConcurrentPop_Scenario3_NoDoubleWrite(t *testing.T) {
	b := newTestBuffer(t, 5, 10)
	for _, key := range []string{"a", "b", "a"} {
		if _, err := b.Append(key, []byte("xxxxx")); err != nil {
			t.Fatal(err)
		}
		if _, err := b.Append(key, []byte("xxxxx")); err != nil {
			t.Fatal(err)
		}
	}
	if b.QueueSize() != 4 {
		t.Fatalf("expected 4 queued chunks, got %d", b.QueueSize())
	}

	w := &recordingWriter{}
	var wg sync.WaitGroup
	errs := make(chan error, 64)

	flusher := func() {
		defer wg.Done()
		for {
			more, err := b.Pop(w, true)
			if err != nil {
				errs <- err
				return
			}
			if !more && b.QueueSize() == 0 {
				return
			}
		}
	}

	wg.Add(2)
	go flusher()
	go flusher()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected pop error: %v", err)
	}

	if b.QueueSize() != 0 {
		t.Fatalf("expected queue drained, got %d remaining", b.QueueSize())
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.written) != 4 {
		t.Fatalf("expected exactly 4 writes, got %d: %v", len(w.written), w.written)
	}
	seen := make(map[chunk.ID]bool, len(w.written))
	for _, id := range w.written {
		if seen[id] {
			t.Fatalf("chunk %v delivered to Write more than once", id)
		}
		seen[id] = true
	}
}

func TestConcurrentAppendRespectsQueueLimit(t *testing.T) {
	b := newTestBuffer(t, 5, 4)
	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.Append("k", []byte("xxxxx")); err != nil && !errors.Is(err, buffer.ErrQueueFull) {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.QueueSize() > 4 {
		t.Fatalf("queue limit violated: %d > 4", b.QueueSize())
	}
}
