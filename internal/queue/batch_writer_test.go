package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/smukkama/carbon-footprint/internal/protocol"
)

type fakeSource struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []kafka.Message
}

func newFakeSource() *fakeSource {
	return &fakeSource{msgs: make(chan kafka.Message, 16)}
}

func (f *fakeSource) Consume(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-f.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (f *fakeSource) Commit(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeSource) commits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.committed)
}

func (f *fakeSource) offsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.committed))
	for i, m := range f.committed {
		out[i] = m.Offset
	}
	return out
}

// fakeSink fails its first failures writes, or every write when err is set
type fakeSink struct {
	mu       sync.Mutex
	events   []*protocol.EmissionsEvent
	calls    int
	failures int
	err      error
}

func (f *fakeSink) WriteEvents(_ context.Context, events []*protocol.EmissionsEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.calls <= f.failures {
		return errors.New("influx unavailable")
	}
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeSink) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func eventMessage(t *testing.T, offset int64) kafka.Message {
	t.Helper()
	data, err := protocol.EncodeEmissionsEvent(&protocol.EmissionsEvent{
		RecordID:   uuid.New(),
		RecordedAt: time.Now().UTC(),
		Total:      float64(offset),
	})
	if err != nil {
		t.Fatalf("Failed to encode event: %v", err)
	}
	return kafka.Message{Offset: offset, Value: data}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestBatchWriter_FlushesFullBatch(t *testing.T) {
	src := newFakeSource()
	sink := &fakeSink{}
	bw := NewBatchWriter(src, sink, 2, time.Hour, nil)
	bw.Start(context.Background())
	defer bw.Stop()

	src.msgs <- eventMessage(t, 1)
	src.msgs <- eventMessage(t, 2)
	waitFor(t, "first batch", func() bool { return sink.count() == 2 })

	src.msgs <- kafka.Message{Offset: 3, Value: []byte("garbage")}
	src.msgs <- eventMessage(t, 4)
	waitFor(t, "second batch", func() bool { return src.commits() == 4 })

	if sink.count() != 3 {
		t.Errorf("Expected 3 events written, got %d", sink.count())
	}
}

func TestBatchWriter_FlushesOnInterval(t *testing.T) {
	src := newFakeSource()
	sink := &fakeSink{}
	bw := NewBatchWriter(src, sink, 100, 10*time.Millisecond, nil)
	bw.Start(context.Background())
	defer bw.Stop()

	src.msgs <- eventMessage(t, 1)
	waitFor(t, "interval flush", func() bool { return sink.count() == 1 })
}

func TestBatchWriter_FlushesOnStop(t *testing.T) {
	src := newFakeSource()
	sink := &fakeSink{}
	bw := NewBatchWriter(src, sink, 100, time.Hour, nil)
	bw.Start(context.Background())

	src.msgs <- eventMessage(t, 1)
	waitFor(t, "message consumed", func() bool { return len(src.msgs) == 0 })
	// Give run a moment to move the message from the channel into the batch.
	time.Sleep(20 * time.Millisecond)
	bw.Stop()

	if sink.count() != 1 {
		t.Errorf("Expected pending event flushed on stop, got %d", sink.count())
	}
}

func TestBatchWriter_NoCommitOnSinkError(t *testing.T) {
	src := newFakeSource()
	sink := &fakeSink{err: errors.New("influx down")}
	bw := NewBatchWriter(src, sink, 1, time.Hour, nil)
	bw.retryBackoff = time.Millisecond
	bw.maxBackoff = 5 * time.Millisecond
	bw.Start(context.Background())

	src.msgs <- eventMessage(t, 1)
	src.msgs <- eventMessage(t, 2)
	waitFor(t, "repeated sink write attempts", func() bool { return sink.writes() >= 3 })
	bw.Stop()

	if src.commits() != 0 {
		t.Errorf("Expected no commits after sink failure, got %v", src.offsets())
	}
}

func TestBatchWriter_RetriesFailedBatchBeforeLaterOnes(t *testing.T) {
	src := newFakeSource()
	sink := &fakeSink{failures: 2}
	bw := NewBatchWriter(src, sink, 2, time.Hour, nil)
	bw.retryBackoff = time.Millisecond
	bw.maxBackoff = 5 * time.Millisecond
	bw.Start(context.Background())
	defer bw.Stop()

	for offset := int64(1); offset <= 4; offset++ {
		src.msgs <- eventMessage(t, offset)
	}
	waitFor(t, "all batches committed", func() bool { return src.commits() == 4 })

	offsets := src.offsets()
	for i, want := range []int64{1, 2, 3, 4} {
		if offsets[i] != want {
			t.Fatalf("Expected commits in order [1 2 3 4], got %v", offsets)
		}
	}
	if sink.count() != 4 {
		t.Fatalf("Expected 4 events written, got %d", sink.count())
	}
	for i, ev := range sink.events {
		if ev.Total != float64(i+1) {
			t.Errorf("Expected event %d written in order, got total %v", i+1, ev.Total)
		}
	}
}
