package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by pgx.Tx and *pgxpool.Pool.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxStarter is satisfied by *pgxpool.Pool.
type TxStarter interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Repo is the Postgres Store.
type Repo struct{ DB TxStarter }

func (r *Repo) Tx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return persistence("begin tx", err)
	}
	done := false
	defer func() {
		if !done {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(&pgQueries{db: tx}); err != nil {
		return err
	}
	done = true
	if err := tx.Commit(ctx); err != nil {
		return persistence("commit", err)
	}
	return nil
}

type pgQueries struct{ db querier }

const orderColumns = `id, customer_name, customer_phone, table_number, total_amount, note, status, stock_reduced, created_at, updated_at`

func (q *pgQueries) InsertOrder(ctx context.Context, o *Order) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.Customer.Name, o.Customer.Phone, o.Customer.Table,
		o.TotalAmount, o.Note, string(o.Status), o.StockReduced, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, l := range o.Lines {
		_, err = q.db.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, quantity, unit_price, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			l.ID, o.ID, l.ProductID, l.ProductName, l.Quantity, l.UnitPrice, l.Subtotal)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (q *pgQueries) ListOrders(ctx context.Context) ([]OrderSummary, error) {
	rows, err := q.db.Query(ctx, `
		SELECT o.id, o.customer_name, o.customer_phone, o.table_number, o.total_amount, o.note,
		       o.status, o.created_at, COUNT(i.id)
		FROM orders o
		LEFT JOIN order_items i ON i.order_id = o.id
		GROUP BY o.id
		ORDER BY o.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []OrderSummary{}
	for rows.Next() {
		var s OrderSummary
		var status string
		if err := rows.Scan(&s.ID, &s.Customer.Name, &s.Customer.Phone, &s.Customer.Table,
			&s.TotalAmount, &s.Note, &status, &s.CreatedAt, &s.ItemCount); err != nil {
			return nil, err
		}
		s.Status = Status(status)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *pgQueries) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return q.loadOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (q *pgQueries) LockOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return q.loadOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (q *pgQueries) loadOrder(ctx context.Context, query string, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, newError(KindNotFound, "transaction not found")
	}
	if err != nil {
		return nil, err
	}
	o.Lines, err = q.listLines(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (q *pgQueries) LatestOrderBetween(ctx context.Context, from, to time.Time) (*Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT 1`, from, to))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

func (q *pgQueries) UpdateOrderStatus(ctx context.Context, id uuid.UUID, s Status, stockReduced bool, at time.Time) (bool, error) {
	ct, err := q.db.Exec(ctx, `
		UPDATE orders SET status = $2, stock_reduced = $3, updated_at = $4
		WHERE id = $1`, id, string(s), stockReduced, at)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// tableLockSpace keeps the per-day advisory keys apart from other users of
// pg_advisory_xact_lock in the same database.
const tableLockSpace int64 = 0x7461626c

func (q *pgQueries) LockDay(ctx context.Context, day time.Time) error {
	key := tableLockSpace<<32 | int64(day.Year()*10000+int(day.Month())*100+day.Day())
	_, err := q.db.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key)
	return err
}

func (q *pgQueries) listLines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price, subtotal
		FROM order_items WHERE order_id = $1 ORDER BY product_name`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderLine
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName,
			&l.Quantity, &l.UnitPrice, &l.Subtotal); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	o := &Order{}
	var status string
	err := row.Scan(&o.ID, &o.Customer.Name, &o.Customer.Phone, &o.Customer.Table,
		&o.TotalAmount, &o.Note, &status, &o.StockReduced, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	return o, nil
}
