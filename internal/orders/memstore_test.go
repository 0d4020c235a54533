package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is a Store for tests. Tx holds one mutex for its whole duration
// and works on a copy of the state that is swapped in only on success, so
// it gives the same serialization and rollback guarantees the Postgres
// locks give.
type memStore struct {
	mu         sync.Mutex
	st         *memState
	failInsert error
}

type memState struct {
	products   map[uuid.UUID]Product
	orders     map[uuid.UUID]*Order
	lockedDays []time.Time
}

func newMemStore(products ...Product) *memStore {
	st := &memState{
		products: make(map[uuid.UUID]Product),
		orders:   make(map[uuid.UUID]*Order),
	}
	for _, p := range products {
		st.products[p.ID] = p
	}
	return &memStore{st: st}
}

func (m *memStore) Tx(ctx context.Context, fn func(q Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.st.clone()
	if err := fn(&memQueries{st: c, failInsert: m.failInsert}); err != nil {
		return err
	}
	m.st = c
	return nil
}

func (m *memStore) stock(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.products[id].Stock
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.st.orders)
}

func (s *memState) clone() *memState {
	c := &memState{
		products:   make(map[uuid.UUID]Product, len(s.products)),
		orders:     make(map[uuid.UUID]*Order, len(s.orders)),
		lockedDays: append([]time.Time(nil), s.lockedDays...),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = copyOrder(v)
	}
	return c
}

func copyOrder(o *Order) *Order {
	cp := *o
	cp.Lines = append([]OrderLine(nil), o.Lines...)
	return &cp
}

type memQueries struct {
	st         *memState
	failInsert error
}

func (q *memQueries) ListProducts(ctx context.Context) ([]Product, error) {
	out := make([]Product, 0, len(q.st.products))
	for _, p := range q.st.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (q *memQueries) LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Product, error) {
	out := make(map[uuid.UUID]Product, len(ids))
	for _, id := range ids {
		if p, ok := q.st.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (q *memQueries) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (Product, error) {
	p, ok := q.st.products[id]
	if !ok {
		return Product{}, newError(KindNotFound, "product %s not found", id)
	}
	if p.Stock < qty {
		return Product{}, newError(KindInsufficientStock, "insufficient stock for product %s", id)
	}
	p.Stock -= qty
	q.st.products[id] = p
	return p, nil
}

func (q *memQueries) IncrementStock(ctx context.Context, id uuid.UUID, qty int) (Product, error) {
	p, ok := q.st.products[id]
	if !ok {
		return Product{}, newError(KindNotFound, "product %s not found", id)
	}
	p.Stock += qty
	q.st.products[id] = p
	return p, nil
}

func (q *memQueries) InsertOrder(ctx context.Context, o *Order) error {
	if q.failInsert != nil {
		return q.failInsert
	}
	q.st.orders[o.ID] = copyOrder(o)
	return nil
}

func (q *memQueries) ListOrders(ctx context.Context) ([]OrderSummary, error) {
	out := make([]OrderSummary, 0, len(q.st.orders))
	for _, o := range q.st.orders {
		out = append(out, OrderSummary{
			ID:          o.ID,
			Customer:    o.Customer,
			TotalAmount: o.TotalAmount,
			Note:        o.Note,
			Status:      o.Status,
			ItemCount:   len(o.Lines),
			CreatedAt:   o.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (q *memQueries) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, ok := q.st.orders[id]
	if !ok {
		return nil, newError(KindNotFound, "transaction not found")
	}
	return copyOrder(o), nil
}

func (q *memQueries) LockOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return q.GetOrder(ctx, id)
}

func (q *memQueries) LatestOrderBetween(ctx context.Context, from, to time.Time) (*Order, error) {
	var latest *Order
	for _, o := range q.st.orders {
		if o.CreatedAt.Before(from) || !o.CreatedAt.Before(to) {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
			latest = o
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copyOrder(latest), nil
}

func (q *memQueries) UpdateOrderStatus(ctx context.Context, id uuid.UUID, s Status, stockReduced bool, at time.Time) (bool, error) {
	o, ok := q.st.orders[id]
	if !ok {
		return false, nil
	}
	o.Status = s
	o.StockReduced = stockReduced
	o.UpdatedAt = at
	return true, nil
}

func (q *memQueries) LockDay(ctx context.Context, day time.Time) error {
	q.st.lockedDays = append(q.st.lockedDays, day)
	return nil
}
