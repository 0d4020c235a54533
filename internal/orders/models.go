package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Category  string          `json:"category"`
	Img       *string         `json:"img,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Customer struct {
	Name  string  `json:"name"`
	Phone *string `json:"phone,omitempty"`
	Table string  `json:"table"`
}

// StockReduced is set while the order's lines are deducted from stock.
type Order struct {
	ID           uuid.UUID       `json:"id"`
	Customer     Customer        `json:"customer"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Note         string          `json:"note"`
	Status       Status          `json:"status"`
	StockReduced bool            `json:"stock_reduced"`
	Lines        []OrderLine     `json:"items"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// OrderLine snapshots name and price at creation time; later catalog
// changes do not touch it.
type OrderLine struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// OrderSummary is a list row: the header plus how many lines it has.
type OrderSummary struct {
	ID          uuid.UUID       `json:"id"`
	Customer    Customer        `json:"customer"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Note        string          `json:"note"`
	Status      Status          `json:"status"`
	ItemCount   int             `json:"item_count"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CartEntry is what the table-side client sends per product name.
type CartEntry struct {
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ProductID string          `json:"product_id,omitempty"`
}

// UnmarshalJSON accepts the field spellings older table-side clients send
// (qty, price, unitPrice, productId) next to the canonical ones.
func (e *CartEntry) UnmarshalJSON(b []byte) error {
	var raw struct {
		Quantity       *int             `json:"quantity"`
		Qty            *int             `json:"qty"`
		UnitPrice      *decimal.Decimal `json:"unit_price"`
		UnitPriceCamel *decimal.Decimal `json:"unitPrice"`
		Price          *decimal.Decimal `json:"price"`
		ProductID      string           `json:"product_id"`
		ProductIDCamel string           `json:"productId"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*e = CartEntry{ProductID: raw.ProductID}
	switch {
	case raw.Quantity != nil:
		e.Quantity = *raw.Quantity
	case raw.Qty != nil:
		e.Quantity = *raw.Qty
	}
	switch {
	case raw.UnitPrice != nil:
		e.UnitPrice = *raw.UnitPrice
	case raw.UnitPriceCamel != nil:
		e.UnitPrice = *raw.UnitPriceCamel
	case raw.Price != nil:
		e.UnitPrice = *raw.Price
	}
	if e.ProductID == "" {
		e.ProductID = raw.ProductIDCamel
	}
	return nil
}

type Cart map[string]CartEntry

type SubmitRequest struct {
	Customer Customer         `json:"customer"`
	Cart     Cart             `json:"cart"`
	Note     string           `json:"note"`
	Total    *decimal.Decimal `json:"total,omitempty"`
}

type SubmitResult struct {
	OrderID     uuid.UUID       `json:"orderId"`
	TableLabel  string          `json:"tableLabel"`
	TotalAmount decimal.Decimal `json:"total"`
	Order       *Order          `json:"-"`
}

// PublicOrder is the limited view served to unauthenticated callers.
type PublicOrder struct {
	ID              uuid.UUID     `json:"id"`
	Status          Status        `json:"status"`
	Timestamp       time.Time     `json:"timestamp"`
	CustomerDetails PublicDetails `json:"customerDetails"`
	EstimatedTime   int           `json:"estimatedTime"`
}

type PublicDetails struct {
	Table string `json:"table"`
}

// StatusChange reports the outcome of SetStatus.
type StatusChange struct {
	ID       uuid.UUID    `json:"id"`
	From     Status       `json:"from"`
	Status   Status       `json:"status"`
	Effect   Effect       `json:"effect"`
	Changed  bool         `json:"changed"`
	Adjusted []Adjustment `json:"adjusted,omitempty"`
}

// Adjustment is one product's stock movement caused by a transition.
type Adjustment struct {
	ProductID uuid.UUID `json:"product_id"`
	Delta     int       `json:"delta"`
	Stock     int       `json:"stock"`
}
