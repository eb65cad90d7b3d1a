package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"storefront-orderflow/internal/voucher"

	"github.com/google/uuid"
)

type Repository interface {
	CreateOrderTx(ctx context.Context, o *Order) error
	GetOrderDetail(ctx context.Context, id string) (*Order, error)
	FetchOrders(ctx context.Context, filter ListFilter) ([]*Order, error)
	UpdateState(ctx context.Context, o *Order, expectedVersion int64) error
}

// Redeemer performs the conditional voucher increment inside the order
// transaction.
type Redeemer interface {
	Redeem(ctx context.Context, exec voucher.Execer, id uuid.UUID) error
}

type repository struct {
	db       *sql.DB
	vouchers Redeemer
}

func NewRepository(db *sql.DB, vouchers Redeemer) Repository {
	return &repository{db: db, vouchers: vouchers}
}

const orderColumns = `
	o.id, o.user_id, o.status, o.payment_status, o.payment_method,
	o.subtotal, o.vat, o.shipping_fee, o.discount_amount, o.total_amount,
	o.voucher_id, o.address, o.version, o.created_at, o.updated_at
`

// CreateOrderTx inserts the order and its items and redeems the voucher in
// one transaction. A voucher exhausted by a concurrent order rolls the whole
// order back with voucher.ErrExhausted.
func (r *repository) CreateOrderTx(ctx context.Context, o *Order) error {
	address, err := json.Marshal(o.Address)
	if err != nil {
		return fmt.Errorf("marshal address: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 1. Insert order
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, status, payment_status, payment_method,
			subtotal, vat, shipping_fee, discount_amount, total_amount,
			voucher_id, address, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		o.ID, o.UserID, o.Status, o.PaymentStatus, o.PaymentMethod,
		o.Subtotal, o.VAT, o.ShippingFee, o.DiscountAmount, o.TotalAmount,
		o.VoucherID, address, o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	// 2. Insert item snapshots
	for i, item := range o.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, position, product_id, quantity, unit_price, color_id
			) VALUES ($1,$2,$3,$4,$5,$6)
		`,
			o.ID, i, item.ProductID, item.Quantity, item.UnitPrice, item.ColorID,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	// 3. Redeem voucher
	if o.VoucherID != nil {
		if err := r.vouchers.Redeem(ctx, tx, *o.VoucherID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *repository) GetOrderDetail(ctx context.Context, id string) (*Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, id)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	items, err := r.fetchItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	if o.Items == nil {
		o.Items = []Item{}
	}
	return o, nil
}

func (r *repository) FetchOrders(ctx context.Context, filter ListFilter) ([]*Order, error) {
	var (
		where []string
		args  []any
	)

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		where = append(where, fmt.Sprintf("o.user_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("o.status = $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders o`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY o.created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		orders []*Order
		ids    []string
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return []*Order{}, nil
	}

	items, err := r.fetchItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.Items = items[o.ID]
		if o.Items == nil {
			o.Items = []Item{}
		}
	}
	return orders, nil
}

func (r *repository) fetchItems(ctx context.Context, orderIDs []string) (map[string][]Item, error) {
	placeholders := make([]string, len(orderIDs))
	args := make([]any, len(orderIDs))
	for i, id := range orderIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, quantity, unit_price, color_id
		FROM order_items
		WHERE order_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY order_id, position
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]Item, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			item    Item
			colorID sql.NullString
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Quantity, &item.UnitPrice, &colorID); err != nil {
			return nil, err
		}
		if colorID.Valid {
			c := colorID.String
			item.ColorID = &c
		}
		out[orderID] = append(out[orderID], item)
	}
	return out, rows.Err()
}

// UpdateState writes status fields only if nobody else wrote the order
// since expectedVersion was read.
func (r *repository) UpdateState(ctx context.Context, o *Order, expectedVersion int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, payment_status = $2, version = $3, updated_at = $4
		WHERE id = $5 AND version = $6
	`, o.Status, o.PaymentStatus, o.Version, o.UpdatedAt, o.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update order state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists bool
	err = r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrOrderNotFound
	}
	return ErrConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o         Order
		voucherID uuid.NullUUID
		address   []byte
	)

	err := row.Scan(
		&o.ID, &o.UserID, &o.Status, &o.PaymentStatus, &o.PaymentMethod,
		&o.Subtotal, &o.VAT, &o.ShippingFee, &o.DiscountAmount, &o.TotalAmount,
		&voucherID, &address, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if voucherID.Valid {
		id := voucherID.UUID
		o.VoucherID = &id
	}
	if len(address) > 0 {
		if err := json.Unmarshal(address, &o.Address); err != nil {
			return nil, fmt.Errorf("decode address: %w", err)
		}
	}
	return &o, nil
}
