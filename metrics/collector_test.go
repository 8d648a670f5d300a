package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("s3", "backups")

	c.IncEmitReceived()
	c.IncEmitReceived()
	c.IncEmitReceived()
	c.IncEmitRouted()
	c.IncEmitRouted()
	c.IncEmitDiscarded()
	c.IncNoMatch()
	c.IncNoMatch()
	c.IncWriteSucceeded()
	c.IncWriteFailed(false, time.Unix(1700000000, 0))

	s := c.Snapshot()

	if s.EmitsReceived != 3 {
		t.Errorf("EmitsReceived = %d, want 3", s.EmitsReceived)
	}
	if s.EmitsRouted != 2 {
		t.Errorf("EmitsRouted = %d, want 2", s.EmitsRouted)
	}
	if s.EmitsDiscarded != 1 {
		t.Errorf("EmitsDiscarded = %d, want 1", s.EmitsDiscarded)
	}
	if s.NoMatchCount != 2 {
		t.Errorf("NoMatchCount = %d, want 2", s.NoMatchCount)
	}
	if s.WritesSucceeded != 1 {
		t.Errorf("WritesSucceeded = %d, want 1", s.WritesSucceeded)
	}
	if s.WritesFailed != 1 {
		t.Errorf("WritesFailed = %d, want 1", s.WritesFailed)
	}
	if s.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", s.RetryCount)
	}
	if s.Dead {
		t.Error("Dead should be false")
	}
	if !s.LastErrorAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("LastErrorAt = %v, want %v", s.LastErrorAt, time.Unix(1700000000, 0))
	}
}

func TestCollector_Dimensions(t *testing.T) {
	c := NewCollector("webhook", "alerts")
	s := c.Snapshot()

	if s.Plugin != "webhook" {
		t.Errorf("Plugin = %q, want %q", s.Plugin, "webhook")
	}
	if s.Label != "alerts" {
		t.Errorf("Label = %q, want %q", s.Label, "alerts")
	}
}

func TestCollector_WriteFailed_TracksDeadAndRetries(t *testing.T) {
	c := NewCollector("redis", "")

	c.IncWriteFailed(false, time.Unix(1, 0))
	c.IncWriteFailed(false, time.Unix(2, 0))
	c.IncWriteFailed(true, time.Unix(3, 0))

	s := c.Snapshot()
	if s.WritesFailed != 3 {
		t.Errorf("WritesFailed = %d, want 3", s.WritesFailed)
	}
	if s.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", s.RetryCount)
	}
	if !s.Dead {
		t.Error("Dead should be true after a dead write failure")
	}
	if !s.LastErrorAt.Equal(time.Unix(3, 0)) {
		t.Errorf("LastErrorAt = %v, want %v", s.LastErrorAt, time.Unix(3, 0))
	}
}

func TestCollector_ResetDead(t *testing.T) {
	c := NewCollector("s3", "")
	c.IncWriteFailed(true, time.Unix(1, 0))

	if s := c.Snapshot(); !s.Dead {
		t.Fatal("expected Dead true after a dead write failure")
	}

	c.ResetDead()

	if s := c.Snapshot(); s.Dead {
		t.Error("expected Dead false after ResetDead")
	}
}

func TestCollector_AbsorbBufferStats(t *testing.T) {
	c := NewCollector("memory", "")
	c.AbsorbBufferStats(7, 4096)

	s := c.Snapshot()
	if s.BufferQueueLength != 7 {
		t.Errorf("BufferQueueLength = %d, want 7", s.BufferQueueLength)
	}
	if s.BufferTotalQueuedBytes != 4096 {
		t.Errorf("BufferTotalQueuedBytes = %d, want 4096", s.BufferTotalQueuedBytes)
	}

	// A later poll replaces, not accumulates.
	c.AbsorbBufferStats(2, 512)
	s = c.Snapshot()
	if s.BufferQueueLength != 2 {
		t.Errorf("BufferQueueLength = %d, want 2", s.BufferQueueLength)
	}
	if s.BufferTotalQueuedBytes != 512 {
		t.Errorf("BufferTotalQueuedBytes = %d, want 512", s.BufferTotalQueuedBytes)
	}
}

func TestCollector_SnapshotImmutability(t *testing.T) {
	c := NewCollector("file", "")
	c.IncEmitReceived()
	c.IncWriteSucceeded()

	s1 := c.Snapshot()

	c.IncEmitReceived()
	c.IncWriteSucceeded()
	c.IncWriteSucceeded()

	if s1.EmitsReceived != 1 {
		t.Errorf("s1.EmitsReceived = %d, want 1 (snapshot should be frozen)", s1.EmitsReceived)
	}
	if s1.WritesSucceeded != 1 {
		t.Errorf("s1.WritesSucceeded = %d, want 1 (snapshot should be frozen)", s1.WritesSucceeded)
	}

	s2 := c.Snapshot()
	if s2.EmitsReceived != 2 {
		t.Errorf("s2.EmitsReceived = %d, want 2", s2.EmitsReceived)
	}
	if s2.WritesSucceeded != 3 {
		t.Errorf("s2.WritesSucceeded = %d, want 3", s2.WritesSucceeded)
	}
}

func TestCollector_NilReceiverSafety(t *testing.T) {
	var c *Collector

	// None of these should panic.
	c.IncEmitReceived()
	c.IncEmitRouted()
	c.IncEmitDiscarded()
	c.IncNoMatch()
	c.IncWriteSucceeded()
	c.IncWriteFailed(true, time.Now())
	c.ResetDead()
	c.AbsorbBufferStats(3, 10)

	s := c.Snapshot()
	if s != (Snapshot{}) {
		t.Errorf("nil collector snapshot should be zero value, got %+v", s)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("memory", "")
	const goroutines = 10
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				c.IncEmitReceived()
				c.IncEmitRouted()
				c.IncWriteSucceeded()
			}
		}()
	}

	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * iterations)

	if s.EmitsReceived != want {
		t.Errorf("EmitsReceived = %d, want %d", s.EmitsReceived, want)
	}
	if s.EmitsRouted != want {
		t.Errorf("EmitsRouted = %d, want %d", s.EmitsRouted, want)
	}
	if s.WritesSucceeded != want {
		t.Errorf("WritesSucceeded = %d, want %d", s.WritesSucceeded, want)
	}
}

func TestCollector_ZeroValueSnapshot(t *testing.T) {
	c := NewCollector("s3", "")
	s := c.Snapshot()

	if s.EmitsReceived != 0 || s.EmitsRouted != 0 || s.EmitsDiscarded != 0 || s.NoMatchCount != 0 {
		t.Error("fresh collector should have zero routing counters")
	}
	if s.WritesSucceeded != 0 || s.WritesFailed != 0 || s.RetryCount != 0 {
		t.Error("fresh collector should have zero write counters")
	}
	if s.Dead {
		t.Error("fresh collector should not be dead")
	}
	if !s.LastErrorAt.IsZero() {
		t.Error("fresh collector should have zero LastErrorAt")
	}
	if s.BufferQueueLength != 0 || s.BufferTotalQueuedBytes != 0 {
		t.Error("fresh collector should have zero buffer stats")
	}
}
