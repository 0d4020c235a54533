package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderSubmitted     = "OrderSubmitted"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type OrderSubmittedPayload struct {
	OrderID     string    `json:"order_id"`
	TableLabel  string    `json:"table_label"`
	Status      Status    `json:"status"`
	TotalAmount string    `json:"total_amount"`
	Items       []ItemQty `json:"items"`
	CreatedAt   time.Time `json:"created_at"`
}

type OrderStatusChangedPayload struct {
	OrderID  string       `json:"order_id"`
	From     Status       `json:"from"`
	To       Status       `json:"to"`
	Effect   Effect       `json:"effect"`
	Adjusted []Adjustment `json:"adjusted,omitempty"`
}

// NewSubmittedEvent builds the envelope published after a successful Submit.
func NewSubmittedEvent(producer, traceID string, o *Order) (Envelope, error) {
	items := make([]ItemQty, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, ItemQty{ProductID: l.ProductID.String(), Qty: l.Quantity})
	}
	return newEnvelope(EventOrderSubmitted, producer, traceID, o.ID, OrderSubmittedPayload{
		OrderID:     o.ID.String(),
		TableLabel:  o.Customer.Table,
		Status:      o.Status,
		TotalAmount: o.TotalAmount.String(),
		Items:       items,
		CreatedAt:   o.CreatedAt,
	})
}

// NewStatusChangedEvent builds the envelope published after a committed transition.
func NewStatusChangedEvent(producer, traceID string, c *StatusChange) (Envelope, error) {
	return newEnvelope(EventOrderStatusChanged, producer, traceID, c.ID, OrderStatusChangedPayload{
		OrderID:  c.ID.String(),
		From:     c.From,
		To:       c.Status,
		Effect:   c.Effect,
		Adjusted: c.Adjusted,
	})
}

func newEnvelope(eventType, producer, traceID string, orderID uuid.UUID, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: orderID.String(),
		Payload:       b,
	}, nil
}
