package orders

import (
	"bytes"
	"context"
	"sort"

	"github.com/google/uuid"
)

// ProductStock owns per-product stock counts.
type ProductStock struct{ q Queries }

func NewProductStock(q Queries) *ProductStock { return &ProductStock{q: q} }

// Reduce decrements one product's stock, refusing to go below zero.
func (s *ProductStock) Reduce(ctx context.Context, productID uuid.UUID, qty int) (Product, error) {
	if qty <= 0 {
		return Product{}, newError(KindInvalidInput, "quantity must be greater than 0")
	}
	p, err := s.q.DecrementStock(ctx, productID, qty)
	if err != nil {
		return Product{}, persistence("reduce stock", err)
	}
	return p, nil
}

// Restore increments one product's stock; it only reverses a prior Reduce.
func (s *ProductStock) Restore(ctx context.Context, productID uuid.UUID, qty int) (Product, error) {
	if qty <= 0 {
		return Product{}, newError(KindInvalidInput, "quantity must be greater than 0")
	}
	p, err := s.q.IncrementStock(ctx, productID, qty)
	if err != nil {
		return Product{}, persistence("restore stock", err)
	}
	return p, nil
}

// ReduceLines reduces stock for every line or for none. All affected rows
// are locked and checked before the first decrement; every shortage is
// reported on the returned error.
func (s *ProductStock) ReduceLines(ctx context.Context, lines []OrderLine) ([]Adjustment, error) {
	need, ids := aggregate(lines)
	locked, err := s.lock(ctx, ids, lines)
	if err != nil {
		return nil, err
	}

	var short []Shortage
	for _, id := range ids {
		p := locked[id]
		if p.Stock < need[id] {
			short = append(short, Shortage{
				ProductID:   id.String(),
				ProductName: p.Name,
				Required:    need[id],
				Available:   p.Stock,
			})
		}
	}
	if len(short) > 0 {
		e := newError(KindInsufficientStock, "insufficient stock for '%s'", short[0].ProductName)
		e.Shortages = short
		return nil, e
	}

	out := make([]Adjustment, 0, len(ids))
	for _, id := range ids {
		p, err := s.Reduce(ctx, id, need[id])
		if err != nil {
			return nil, err
		}
		out = append(out, Adjustment{ProductID: id, Delta: -need[id], Stock: p.Stock})
	}
	return out, nil
}

// RestoreLines is the inverse of ReduceLines.
func (s *ProductStock) RestoreLines(ctx context.Context, lines []OrderLine) ([]Adjustment, error) {
	need, ids := aggregate(lines)
	if _, err := s.lock(ctx, ids, lines); err != nil {
		return nil, err
	}
	out := make([]Adjustment, 0, len(ids))
	for _, id := range ids {
		p, err := s.Restore(ctx, id, need[id])
		if err != nil {
			return nil, err
		}
		out = append(out, Adjustment{ProductID: id, Delta: need[id], Stock: p.Stock})
	}
	return out, nil
}

func (s *ProductStock) lock(ctx context.Context, ids []uuid.UUID, lines []OrderLine) (map[uuid.UUID]Product, error) {
	locked, err := s.q.LockProducts(ctx, ids)
	if err != nil {
		return nil, persistence("lock products", err)
	}
	for _, l := range lines {
		if _, ok := locked[l.ProductID]; !ok {
			return nil, newError(KindNotFound, "product '%s' not found", l.ProductName)
		}
	}
	return locked, nil
}

// aggregate sums quantities per product and returns the ids in a stable
// order so concurrent batches lock rows in the same sequence.
func aggregate(lines []OrderLine) (map[uuid.UUID]int, []uuid.UUID) {
	need := make(map[uuid.UUID]int, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		if _, seen := need[l.ProductID]; !seen {
			ids = append(ids, l.ProductID)
		}
		need[l.ProductID] += l.Quantity
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return need, ids
}
