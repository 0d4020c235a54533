package projector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkax "github.com/ariefcatur/warung-orders/internal/kafka"
	"github.com/ariefcatur/warung-orders/internal/logger"
	"github.com/ariefcatur/warung-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	FieldSubmitted = "submitted"
	FieldItems     = "items"
	// FieldStatusPrefix counts transitions into a status, e.g. "status:completed".
	FieldStatusPrefix = "status:"
)

type Cache interface {
	MarkProcessed(ctx context.Context, service, eventID string) (bool, error)
	ForgetProcessed(ctx context.Context, service, eventID string) error
	BumpStats(ctx context.Context, day string, deltas map[string]int64) error
	InvalidateOrder(ctx context.Context, orderID string) error
}

// Service folds order events into per-day counters and keeps the public
// order cache from serving a stale status.
type Service struct {
	Cache    Cache
	Name     string
	Location *time.Location
	Log      *logger.Logger
}

// HandleEvent is the consumer handler. A nil return commits the offset, so
// a failed projection releases its dedup mark and reports the error.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	if t := kafkax.HeaderValue(m, kafkax.HeaderEventType); t != "" && !handled(t) {
		s.Log.Debug(ctx, "event_skipped", "event type not projected",
			slog.String("topic", m.Topic), slog.String("event_type", t))
		return nil
	}

	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Log.Warn(ctx, "event_malformed", "skipping undecodable message",
			slog.String("topic", m.Topic), slog.String("error", err.Error()))
		return nil
	}

	var (
		orderID string
		deltas  map[string]int64
		err     error
	)
	switch env.EventType {
	case orders.EventOrderSubmitted:
		orderID, deltas, err = submittedDeltas(env)
	case orders.EventOrderStatusChanged:
		orderID, deltas, err = statusDeltas(env)
	default:
		return nil
	}
	if err != nil {
		s.Log.Warn(ctx, "event_malformed", "skipping event with bad payload",
			slog.String("event_id", env.EventID), slog.String("error", err.Error()))
		return nil
	}

	first, err := s.Cache.MarkProcessed(ctx, s.Name, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !first {
		return nil
	}

	if err := s.project(ctx, env, orderID, deltas); err != nil {
		if ferr := s.Cache.ForgetProcessed(ctx, s.Name, env.EventID); ferr != nil {
			s.Log.Error(ctx, "dedup_release_failed", "event will be skipped on redelivery", ferr,
				slog.String("event_id", env.EventID))
		}
		return err
	}
	s.Log.Debug(ctx, "event_projected", "event applied",
		slog.String("event_id", env.EventID),
		slog.String("event_type", env.EventType),
		slog.String("order_id", orderID))
	return nil
}

func handled(eventType string) bool {
	return eventType == orders.EventOrderSubmitted || eventType == orders.EventOrderStatusChanged
}

func (s *Service) project(ctx context.Context, env orders.Envelope, orderID string, deltas map[string]int64) error {
	if err := s.Cache.BumpStats(ctx, s.day(env.OccurredAt), deltas); err != nil {
		return fmt.Errorf("bump stats: %w", err)
	}
	if err := s.Cache.InvalidateOrder(ctx, orderID); err != nil {
		return fmt.Errorf("invalidate %s: %w", orderID, err)
	}
	return nil
}

func (s *Service) day(t time.Time) string {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	return Day(t, loc)
}

// Day is the stats bucket for t.
func Day(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

func submittedDeltas(env orders.Envelope) (string, map[string]int64, error) {
	p, err := kafkax.UnwrapPayload[orders.OrderSubmittedPayload](env.Payload)
	if err != nil {
		return "", nil, err
	}
	var items int64
	for _, it := range p.Items {
		items += int64(it.Qty)
	}
	return p.OrderID, map[string]int64{
		FieldSubmitted: 1,
		FieldItems:     items,
	}, nil
}

func statusDeltas(env orders.Envelope) (string, map[string]int64, error) {
	p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
	if err != nil {
		return "", nil, err
	}
	return p.OrderID, map[string]int64{FieldStatusPrefix + string(p.To): 1}, nil
}
