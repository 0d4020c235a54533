package orders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLedger is the system of record for orders and their lines.
type OrderLedger struct{ q Queries }

func NewOrderLedger(q Queries) *OrderLedger { return &OrderLedger{q: q} }

// Create persists the order header and all lines together. Subtotals and
// the total are recomputed here; whatever the caller put there is ignored.
func (l *OrderLedger) Create(ctx context.Context, o *Order) (uuid.UUID, error) {
	if len(o.Lines) == 0 {
		return uuid.Nil, newError(KindInvalidInput, "order must contain at least one item")
	}
	for _, line := range o.Lines {
		if line.ProductID == uuid.Nil {
			return uuid.Nil, newError(KindUnresolvedProduct, "missing product_id in item '%s'", line.ProductName)
		}
	}

	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	o.UpdatedAt = o.CreatedAt
	o.Status = StatusPending
	o.StockReduced = false
	o.Customer.Table = strings.TrimSpace(o.Customer.Table)

	total := decimal.Zero
	for i := range o.Lines {
		line := &o.Lines[i]
		line.ID = uuid.New()
		line.OrderID = o.ID
		line.Subtotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		total = total.Add(line.Subtotal)
	}
	o.TotalAmount = total

	if err := l.q.InsertOrder(ctx, o); err != nil {
		return uuid.Nil, persistence("insert order", err)
	}
	return o.ID, nil
}

func (l *OrderLedger) GetAll(ctx context.Context) ([]OrderSummary, error) {
	out, err := l.q.ListOrders(ctx)
	return out, persistence("list orders", err)
}

func (l *OrderLedger) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := l.q.GetOrder(ctx, id)
	if err != nil {
		return nil, persistence("get order", err)
	}
	return o, nil
}

// Lock reads the order under a row lock held until the transaction ends.
func (l *OrderLedger) Lock(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := l.q.LockOrder(ctx, id)
	if err != nil {
		return nil, persistence("lock order", err)
	}
	return o, nil
}

// GetMostRecentToday returns nil when nothing was ordered today in loc.
func (l *OrderLedger) GetMostRecentToday(ctx context.Context, now time.Time, loc *time.Location) (*Order, error) {
	start, end := dayBounds(now, loc)
	o, err := l.q.LatestOrderBetween(ctx, start, end)
	if err != nil {
		return nil, persistence("latest order today", err)
	}
	return o, nil
}

// UpdateStatus writes status and the stock flag unconditionally and reports
// whether the order existed.
func (l *OrderLedger) UpdateStatus(ctx context.Context, id uuid.UUID, s Status, stockReduced bool) (bool, error) {
	ok, err := l.q.UpdateOrderStatus(ctx, id, s, stockReduced, time.Now())
	if err != nil {
		return false, persistence("update status", err)
	}
	return ok, nil
}
