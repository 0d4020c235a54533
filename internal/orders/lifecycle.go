package orders

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ariefcatur/warung-orders/internal/logger"
	"github.com/google/uuid"
)

const (
	baseMinutes    = 5
	perItemMinutes = 2
)

// Lifecycle drives submission and status transitions. Every workflow runs
// in one Store transaction, so a failure leaves neither the ledger nor the
// stock half-applied.
type Lifecycle struct {
	store Store
	now   func() time.Time
	loc   *time.Location
	log   *logger.Logger
}

type Option func(*Lifecycle)

func WithClock(now func() time.Time) Option { return func(l *Lifecycle) { l.now = now } }

func WithLocation(loc *time.Location) Option { return func(l *Lifecycle) { l.loc = loc } }

func WithLogger(log *logger.Logger) Option { return func(l *Lifecycle) { l.log = log } }

func NewLifecycle(store Store, opts ...Option) *Lifecycle {
	l := &Lifecycle{store: store, now: time.Now, loc: time.Local, log: logger.Discard()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Submit validates the request, assigns a table label when none was given,
// resolves the cart and stores the order as pending. Stock is not touched.
func (l *Lifecycle) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	customer, err := validateSubmit(req)
	if err != nil {
		return nil, err
	}

	var o *Order
	err = l.store.Tx(ctx, func(q Queries) error {
		if customer.Table == "" {
			label, err := NewTableAssigner(q, l.now, l.loc).NextLabel(ctx)
			if err != nil {
				return err
			}
			customer.Table = label
		}

		catalog, err := q.ListProducts(ctx)
		if err != nil {
			return persistence("list products", err)
		}
		lines, err := ResolveCart(req.Cart, catalog)
		if err != nil {
			return err
		}

		o = &Order{
			Customer:  customer,
			Note:      req.Note,
			Lines:     lines,
			CreatedAt: l.now(),
		}
		_, err = NewOrderLedger(q).Create(ctx, o)
		return err
	})
	if err != nil {
		l.log.Error(ctx, "order_submit_failed", "order submission failed", err,
			slog.String("kind", string(KindOf(err))))
		return nil, err
	}

	if req.Total != nil && !req.Total.Equal(o.TotalAmount) {
		l.log.Warn(ctx, "order_total_mismatch", "client total differs from computed total",
			slog.String("order_id", o.ID.String()),
			slog.String("client_total", req.Total.String()),
			slog.String("total", o.TotalAmount.String()))
	}
	l.log.Info(ctx, "order_submitted", "order created",
		slog.String("order_id", o.ID.String()),
		slog.String("table", o.Customer.Table),
		slog.Int("lines", len(o.Lines)))

	return &SubmitResult{
		OrderID:     o.ID,
		TableLabel:  o.Customer.Table,
		TotalAmount: o.TotalAmount,
		Order:       o,
	}, nil
}

func validateSubmit(req SubmitRequest) (Customer, error) {
	c := req.Customer
	c.Name = strings.TrimSpace(c.Name)
	c.Table = strings.TrimSpace(c.Table)
	if c.Phone != nil {
		if p := strings.TrimSpace(*c.Phone); p != "" {
			c.Phone = &p
		} else {
			c.Phone = nil
		}
	}
	if c.Name == "" {
		return Customer{}, newError(KindInvalidInput, "customer name is required")
	}
	if len(req.Cart) == 0 {
		return Customer{}, newError(KindInvalidInput, "cart is empty")
	}
	for name, e := range req.Cart {
		if strings.TrimSpace(name) == "" {
			return Customer{}, newError(KindInvalidInput, "cart contains an entry without a product name")
		}
		if e.Quantity <= 0 {
			return Customer{}, newError(KindInvalidInput, "quantity for '%s' must be greater than 0", name)
		}
	}
	return c, nil
}

// SetStatus moves an order to status. The current status is read under the
// order's row lock, the stock effect is applied, and the new status is
// written, all in one transaction. A reduce only happens while the order
// holds no stock and a restore only while it does, so overwrite chains such
// as processing->pending->processing never deduct twice.
func (l *Lifecycle) SetStatus(ctx context.Context, id, status string) (*StatusChange, error) {
	to, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	oid, err := parseOrderID(id)
	if err != nil {
		return nil, err
	}

	var change *StatusChange
	err = l.store.Tx(ctx, func(q Queries) error {
		ledger := NewOrderLedger(q)
		o, err := ledger.Lock(ctx, oid)
		if err != nil {
			return err
		}
		c := &StatusChange{ID: oid, From: o.Status, Status: to, Effect: EffectNone}
		if o.Status == to {
			change = c
			return nil
		}

		reduced := o.StockReduced
		stock := NewProductStock(q)
		switch effect := Plan(o.Status, to); {
		case effect == EffectReduce && !reduced:
			c.Adjusted, err = stock.ReduceLines(ctx, o.Lines)
			c.Effect, reduced = EffectReduce, true
		case effect == EffectRestore && reduced:
			c.Adjusted, err = stock.RestoreLines(ctx, o.Lines)
			c.Effect, reduced = EffectRestore, false
		}
		if err != nil {
			return err
		}

		found, err := ledger.UpdateStatus(ctx, oid, to, reduced)
		if err != nil {
			return err
		}
		if !found {
			return newError(KindNotFound, "transaction not found")
		}
		c.Changed = true
		change = c
		return nil
	})
	if err != nil {
		l.log.Error(ctx, "order_status_failed", "status change rejected", err,
			slog.String("order_id", id),
			slog.String("status", status),
			slog.String("kind", string(KindOf(err))))
		return nil, err
	}

	if change.Changed {
		l.log.Info(ctx, "order_status_changed", "order status updated",
			slog.String("order_id", id),
			slog.String("from", string(change.From)),
			slog.String("to", string(change.Status)),
			slog.String("effect", string(change.Effect)))
	}
	return change, nil
}

func (l *Lifecycle) ListOrders(ctx context.Context) ([]OrderSummary, error) {
	var out []OrderSummary
	err := l.store.Tx(ctx, func(q Queries) error {
		var err error
		out, err = NewOrderLedger(q).GetAll(ctx)
		return err
	})
	return out, err
}

// GetOrder returns the full order with its lines.
func (l *Lifecycle) GetOrder(ctx context.Context, id string) (*Order, error) {
	oid, err := parseOrderID(id)
	if err != nil {
		return nil, err
	}
	var o *Order
	err = l.store.Tx(ctx, func(q Queries) error {
		o, err = NewOrderLedger(q).GetByID(ctx, oid)
		return err
	})
	return o, err
}

// GetPublicOrder strips customer identity except the table and adds the
// estimated preparation time.
func (l *Lifecycle) GetPublicOrder(ctx context.Context, id string) (*PublicOrder, error) {
	o, err := l.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PublicOrder{
		ID:              o.ID,
		Status:          o.Status,
		Timestamp:       o.CreatedAt,
		CustomerDetails: PublicDetails{Table: o.Customer.Table},
		EstimatedTime:   EstimatedMinutes(o.Lines),
	}, nil
}

// ListProducts is the catalog lookup exposed to the table-side client.
func (l *Lifecycle) ListProducts(ctx context.Context) ([]Product, error) {
	var out []Product
	err := l.store.Tx(ctx, func(q Queries) error {
		var err error
		out, err = q.ListProducts(ctx)
		return persistence("list products", err)
	})
	return out, err
}

// EstimatedMinutes is a display heuristic: 5 minutes plus 2 per item.
func EstimatedMinutes(lines []OrderLine) int {
	qty := 0
	for _, line := range lines {
		qty += line.Quantity
	}
	return baseMinutes + perItemMinutes*qty
}

func parseOrderID(id string) (uuid.UUID, error) {
	oid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, newError(KindNotFound, "transaction not found")
	}
	return oid, nil
}
