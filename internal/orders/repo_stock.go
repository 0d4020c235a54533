package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const productColumns = `id, name, price, stock, category, img, created_at, updated_at`

func (q *pgQueries) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := q.db.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LockProducts takes the row locks in id order so two batches touching the
// same products cannot deadlock.
func (q *pgQueries) LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Product, error) {
	out := make(map[uuid.UUID]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	rows, err := q.db.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE id = ANY($1::uuid[])
		ORDER BY id
		FOR UPDATE`, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (q *pgQueries) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (Product, error) {
	p, err := scanProduct(q.db.QueryRow(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
		RETURNING `+productColumns, id, qty))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Product{}, err
	}

	// Nothing updated: either the product is gone or the stock is short.
	var stock int
	err = q.db.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, newError(KindNotFound, "product %s not found", id)
	}
	if err != nil {
		return Product{}, err
	}
	e := newError(KindInsufficientStock, "insufficient stock for product %s", id)
	e.Shortages = []Shortage{{ProductID: id.String(), Required: qty, Available: stock}}
	return Product{}, e
}

func (q *pgQueries) IncrementStock(ctx context.Context, id uuid.UUID, qty int) (Product, error) {
	p, err := scanProduct(q.db.QueryRow(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+productColumns, id, qty))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, newError(KindNotFound, "product %s not found", id)
	}
	return p, err
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Category, &p.Img, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
