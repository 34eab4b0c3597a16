package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/smukkama/carbon-footprint/internal/protocol"
)

// MessageSource is the consuming side of the emissions topic
type MessageSource interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// EventSink receives decoded events in batches
type EventSink interface {
	WriteEvents(ctx context.Context, events []*protocol.EmissionsEvent) error
}

const (
	minRetryBackoff = 500 * time.Millisecond
	maxRetryBackoff = 30 * time.Second
)

// BatchWriter consumes emissions events and writes them to a sink in
// batches. Offsets are committed only after the sink accepted the batch.
// A failed batch is retried with backoff and no further messages are taken
// until it succeeds, so a later commit never moves past unwritten events.
type BatchWriter struct {
	source        MessageSource
	sink          EventSink
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	retryBackoff time.Duration
	maxBackoff   time.Duration

	cancel  context.CancelFunc
	stopCh  chan struct{}
	wg      sync.WaitGroup
	fetchWG sync.WaitGroup
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter(source MessageSource, sink EventSink, batchSize int, flushInterval time.Duration, logger *slog.Logger) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchWriter{
		source:        source,
		sink:          sink,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
		retryBackoff:  minRetryBackoff,
		maxBackoff:    maxRetryBackoff,
		stopCh:        make(chan struct{}),
	}
}

// Start begins consuming and writing to the sink
func (bw *BatchWriter) Start(ctx context.Context) {
	fetchCtx, cancel := context.WithCancel(ctx)
	bw.cancel = cancel

	msgCh := make(chan kafka.Message, bw.batchSize)
	bw.fetchWG.Add(1)
	go bw.fetch(fetchCtx, msgCh)

	bw.wg.Add(1)
	go bw.run(ctx, msgCh)
}

// Stop flushes the pending batch and stops consuming
func (bw *BatchWriter) Stop() {
	close(bw.stopCh)
	bw.wg.Wait()
	bw.cancel()
	bw.fetchWG.Wait()
}

func (bw *BatchWriter) fetch(ctx context.Context, msgCh chan<- kafka.Message) {
	defer bw.fetchWG.Done()

	for {
		msg, err := bw.source.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			bw.logger.Warn("consume_failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		select {
		case msgCh <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (bw *BatchWriter) run(ctx context.Context, msgCh <-chan kafka.Message) {
	defer bw.wg.Done()

	var batch []kafka.Message
	ticker := time.NewTicker(bw.flushInterval)
	defer ticker.Stop()

	// retry is non-nil while a failed batch is pending
	var retry <-chan time.Time
	backoff := bw.retryBackoff

	flush := func() {
		if err := bw.flush(ctx, batch); err != nil {
			bw.logger.Warn("batch_retry_scheduled", "messages", len(batch), "backoff", backoff)
			retry = time.After(backoff)
			backoff = min(backoff*2, bw.maxBackoff)
			return
		}
		batch = nil
		retry = nil
		backoff = bw.retryBackoff
	}

	for {
		in := msgCh
		if retry != nil {
			in = nil
		}

		select {
		case <-bw.stopCh:
			if len(batch) > 0 {
				if err := bw.flush(ctx, batch); err != nil {
					bw.logger.Error("batch_left_uncommitted", "messages", len(batch), "error", err)
				}
			}
			return

		case <-ctx.Done():
			return

		case <-retry:
			flush()

		case <-ticker.C:
			if retry == nil && len(batch) > 0 {
				flush()
			}

		case msg := <-in:
			batch = append(batch, msg)
			if len(batch) >= bw.batchSize {
				flush()
			}
		}
	}
}

// flush writes the decodable events of batch and commits every message
// once the sink succeeds. Undecodable messages are logged and committed
// with the batch so they are not redelivered forever. On error nothing is
// committed and the caller retries the same batch.
func (bw *BatchWriter) flush(ctx context.Context, batch []kafka.Message) error {
	if len(batch) == 0 {
		return nil
	}

	events := make([]*protocol.EmissionsEvent, 0, len(batch))
	for _, msg := range batch {
		ev, err := protocol.DecodeEmissionsEvent(msg.Value)
		if err != nil {
			bw.logger.Warn("dropping_invalid_event", "partition", msg.Partition, "offset", msg.Offset, "error", err)
			continue
		}
		events = append(events, ev)
	}

	if len(events) > 0 {
		if err := bw.sink.WriteEvents(ctx, events); err != nil {
			bw.logger.Error("sink_write_failed", "events", len(events), "error", err)
			return err
		}
	}

	if err := bw.source.Commit(ctx, batch...); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		bw.logger.Error("commit_failed", "error", err)
		return err
	}
	bw.logger.Info("batch_flushed", "events", len(events), "messages", len(batch))
	return nil
}
