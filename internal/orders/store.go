package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store runs fn inside a single transaction. Any error returned by fn rolls
// back every write fn made through q.
type Store interface {
	Tx(ctx context.Context, fn func(q Queries) error) error
}

// Queries is the statement set the components run inside a transaction.
// Implementations return *Error values with KindNotFound and
// KindInsufficientStock where noted.
type Queries interface {
	ListProducts(ctx context.Context) ([]Product, error)
	// LockProducts row-locks the given products in id order. Missing ids are
	// simply absent from the result.
	LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Product, error)
	// DecrementStock applies stock = stock - qty only when stock >= qty.
	// NotFound or InsufficientStock otherwise.
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) (Product, error)
	// IncrementStock returns NotFound for a missing product.
	IncrementStock(ctx context.Context, id uuid.UUID, qty int) (Product, error)

	InsertOrder(ctx context.Context, o *Order) error
	ListOrders(ctx context.Context) ([]OrderSummary, error)
	// GetOrder and LockOrder return NotFound for a missing order. LockOrder
	// holds the row lock until the transaction ends.
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	LockOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	// LatestOrderBetween returns nil, nil when no order was created in [from, to).
	LatestOrderBetween(ctx context.Context, from, to time.Time) (*Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, s Status, stockReduced bool, at time.Time) (bool, error)

	// LockDay serializes table assignment for one calendar day.
	LockDay(ctx context.Context, day time.Time) error
}
