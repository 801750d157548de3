package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evermart/coupon-service/internal/domain/coupon"
)

const (
	// FOR UPDATE serializes concurrent redemptions of the same coupon: the
	// second transaction blocks on the row lock until the first commits, so
	// its ledger counts always include the first redemption. This closes the
	// check-then-act race without raising the isolation level.
	lockCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE code = $1 FOR UPDATE`

	insertUsageSQL = `INSERT INTO coupon_usages (id, coupon_id, user_id, order_id)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING created_at`
)

var _ coupon.Ledger = (*LedgerRepository)(nil)

// LedgerRepository implements coupon.Ledger backed by PostgreSQL. Redemption
// is the only write path into the coupon_usages table.
type LedgerRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewLedgerRepository returns a LedgerRepository that uses the given pool.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool, now: time.Now}
}

// Redeem atomically re-checks eligibility and appends a usage ledger entry.
//
// The transaction locks the coupon row, re-counts ledger entries under the
// lock, re-runs every eligibility check against current state, and only then
// inserts. Any failed check rolls the transaction back and surfaces a
// *coupon.IneligibleError; no partial ledger entry is ever left behind.
func (r *LedgerRepository) Redeem(ctx context.Context, req coupon.RedeemRequest) (*coupon.Redemption, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	c, err := fetchCoupon(ctx, tx, lockCouponByCodeSQL, req.Code)
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			return nil, &coupon.IneligibleError{Reason: coupon.ReasonNotFound}
		}
		return nil, err
	}

	usage, err := countUsage(ctx, tx, c.ID, req.UserID)
	if err != nil {
		return nil, err
	}

	res := coupon.Evaluate(c, usage, coupon.Input{
		UserID:      req.UserID,
		CartTotal:   req.CartTotal,
		CategoryIDs: req.CategoryIDs,
		Now:         r.now(),
	})
	if !res.Valid {
		return nil, &coupon.IneligibleError{Reason: res.Reason}
	}

	entry := coupon.Redemption{
		ID:         uuid.New().String(),
		CouponID:   c.ID,
		CouponCode: c.Code,
		UserID:     req.UserID,
		OrderID:    req.OrderID,
	}
	err = tx.QueryRow(ctx, insertUsageSQL,
		entry.ID, entry.CouponID, entry.UserID, entry.OrderID,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("recording usage for coupon %q: %w", c.Code, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &entry, nil
}
