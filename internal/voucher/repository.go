package voucher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Execer is satisfied by both *sql.DB and *sql.Tx so redemption can join
// the order-creation transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository interface {
	GetByCode(ctx context.Context, code string) (*Voucher, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Voucher, error)
	Create(ctx context.Context, in CreateInput) (*Voucher, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Redeem(ctx context.Context, exec Execer, id uuid.UUID) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const selectVoucher = `
	SELECT id, code, discount_type, discount_value, max_discount,
		min_order_value, usage_limit, used_count, start_date, end_date,
		is_active, created_at, updated_at
	FROM vouchers
`

func (r *repository) GetByCode(ctx context.Context, code string) (*Voucher, error) {
	row := r.db.QueryRowContext(ctx, selectVoucher+` WHERE code = $1`, NormalizeCode(code))
	return scanVoucher(row)
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Voucher, error) {
	row := r.db.QueryRowContext(ctx, selectVoucher+` WHERE id = $1`, id)
	return scanVoucher(row)
}

func scanVoucher(row *sql.Row) (*Voucher, error) {
	var (
		v                            Voucher
		maxDiscount, minOrder, limit sql.NullInt64
		startDate, endDate           sql.NullTime
	)

	err := row.Scan(
		&v.ID, &v.Code, &v.DiscountType, &v.DiscountValue, &maxDiscount,
		&minOrder, &limit, &v.UsedCount, &startDate, &endDate,
		&v.IsActive, &v.CreatedAt, &v.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan voucher: %w", err)
	}

	v.MaxDiscount = nullInt(maxDiscount)
	v.MinOrderValue = nullInt(minOrder)
	v.UsageLimit = nullInt(limit)
	v.StartDate = nullTime(startDate)
	v.EndDate = nullTime(endDate)
	return &v, nil
}

func (r *repository) Create(ctx context.Context, in CreateInput) (*Voucher, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	now := time.Now()
	v := &Voucher{
		ID:            uuid.New(),
		Code:          NormalizeCode(in.Code),
		DiscountType:  in.DiscountType,
		DiscountValue: in.DiscountValue,
		MaxDiscount:   in.MaxDiscount,
		MinOrderValue: in.MinOrderValue,
		UsageLimit:    in.UsageLimit,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO vouchers (
			id, code, discount_type, discount_value, max_discount,
			min_order_value, usage_limit, used_count, start_date, end_date,
			is_active, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8,$9,$10,$11,$12)
	`,
		v.ID, v.Code, v.DiscountType, v.DiscountValue, v.MaxDiscount,
		v.MinOrderValue, v.UsageLimit, v.StartDate, v.EndDate,
		v.IsActive, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == PgUniqueViolation {
			return nil, ErrDuplicateCode
		}
		return nil, fmt.Errorf("insert voucher: %w", err)
	}

	return v, nil
}

func (r *repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE vouchers SET is_active = $1, updated_at = NOW() WHERE id = $2
	`, active, id)
	if err != nil {
		return fmt.Errorf("update voucher: %w", err)
	}
	return requireRow(res)
}

// Redeem increments used_count only while the voucher is active and below
// usage_limit, so two checkouts racing for the last unit cannot both succeed.
// When nothing was updated the row is re-read to tell a deactivated voucher
// apart from an exhausted one.
func (r *repository) Redeem(ctx context.Context, exec Execer, id uuid.UUID) error {
	if exec == nil {
		exec = r.db
	}

	res, err := exec.ExecContext(ctx, `
		UPDATE vouchers
		SET used_count = used_count + 1, updated_at = NOW()
		WHERE id = $1
		  AND is_active
		  AND (usage_limit IS NULL OR used_count < usage_limit)
	`, id)
	if err != nil {
		return fmt.Errorf("redeem voucher: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("redeem voucher: %w", err)
	}
	if n == 0 {
		return rejectReason(ctx, exec, id)
	}
	return nil
}

func rejectReason(ctx context.Context, exec Execer, id uuid.UUID) error {
	var active bool
	err := exec.QueryRowContext(ctx, `SELECT is_active FROM vouchers WHERE id = $1`, id).Scan(&active)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("redeem voucher: %w", err)
	case !active:
		return ErrInactive
	default:
		return ErrExhausted
	}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
