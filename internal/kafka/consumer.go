package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/ariefcatur/warung-orders/internal/logger"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
)

// Handler returns nil only when the message was fully processed and its
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	defaultRetryWait = 200 * time.Millisecond
	maxRetryWait     = 10 * time.Second
)

type Consumer struct {
	r         reader
	workers   int
	retryWait time.Duration
	log       *logger.Logger
}

func NewConsumer(brokers []string, group string, topics []string, workers int, log *logger.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // commit per message
	})
	return newConsumer(r, workers, log)
}

func newConsumer(r reader, workers int, log *logger.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Consumer{r: r, workers: workers, retryWait: defaultRetryWait, log: log}
}

// Start hands messages to the worker pool until ctx is cancelled or the
// reader fails. Every message of a partition goes to the same worker, so
// offsets are handled and committed in order. It returns after every
// worker has drained.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan kafka.Message, c.workers)
	var g errgroup.Group
	for i := range lanes {
		lane := make(chan kafka.Message, 4)
		lanes[i] = lane
		g.Go(func() error {
			for m := range lane {
				if !c.handle(ctx, h, m) {
					return nil
				}
			}
			return nil
		})
	}

	err := c.dispatch(ctx, lanes)
	for _, lane := range lanes {
		close(lane)
	}
	_ = g.Wait()
	return err
}

func (c *Consumer) dispatch(ctx context.Context, lanes []chan kafka.Message) error {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case lanes[m.Partition%len(lanes)] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// handle retries m until the handler accepts it, then commits. A message
// is never skipped: committing a later offset of the partition would
// acknowledge it too. It reports false once ctx is done.
func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) bool {
	attrs := []slog.Attr{
		slog.String("topic", m.Topic),
		slog.Int("partition", m.Partition),
		slog.Int64("offset", m.Offset),
	}
	wait := c.retryWait
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			break
		}
		c.log.Error(ctx, "kafka_handle_failed", "retrying message", err,
			append(attrs, slog.Int("attempt", attempt), slog.Duration("backoff", wait))...)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return false
		}
		wait = min(wait*2, maxRetryWait)
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.log.Error(ctx, "kafka_commit_failed", "offset commit failed", err, attrs...)
	}
	return ctx.Err() == nil
}
