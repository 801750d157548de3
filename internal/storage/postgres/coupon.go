package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evermart/coupon-service/internal/domain/coupon"
)

const couponColumns = `id, code, name, discount_type, value, min_order_value,
	max_discount, total_limit, per_user_limit, valid_from, valid_until,
	active, category_ids, retired_at, created_at, updated_at`

const (
	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	insertCouponSQL = `INSERT INTO coupons (id, code, name, discount_type, value,
		min_order_value, max_discount, total_limit, per_user_limit,
		valid_from, valid_until, active, category_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	updateCouponSQL = `UPDATE coupons SET
		name = COALESCE($2, name),
		discount_type = COALESCE($3, discount_type),
		value = COALESCE($4, value),
		min_order_value = COALESCE($5, min_order_value),
		max_discount = COALESCE($6, max_discount),
		total_limit = COALESCE($7, total_limit),
		per_user_limit = COALESCE($8, per_user_limit),
		valid_from = COALESCE($9, valid_from),
		valid_until = COALESCE($10, valid_until),
		active = COALESCE($11, active),
		category_ids = COALESCE($12, category_ids),
		updated_at = now()
		WHERE code = $1
		RETURNING id`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC, code`

	listCouponsForUserSQL = `SELECT ` + couponColumns + ` FROM coupons c
		WHERE c.active
		  AND (c.valid_from IS NULL OR c.valid_from <= $2)
		  AND (c.valid_until IS NULL OR c.valid_until >= $2)
		  AND (NOT EXISTS (SELECT 1 FROM coupon_assignments a WHERE a.coupon_id = c.id)
		       OR EXISTS (SELECT 1 FROM coupon_assignments a
		                  WHERE a.coupon_id = c.id AND a.user_id = $1))
		ORDER BY c.code`

	getAssignmentsSQL = `SELECT user_id FROM coupon_assignments
		WHERE coupon_id = $1 ORDER BY user_id`

	getAssignmentsForSQL = `SELECT coupon_id, user_id FROM coupon_assignments
		WHERE coupon_id = ANY($1) ORDER BY coupon_id, user_id`

	insertAssignmentsSQL = `INSERT INTO coupon_assignments (coupon_id, user_id)
		SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`

	pruneAssignmentsSQL = `DELETE FROM coupon_assignments
		WHERE coupon_id = $1 AND NOT (user_id = ANY($2::text[]))`

	countUsageSQL = `SELECT count(*),
		count(*) FILTER (WHERE user_id = $2)
		FROM coupon_usages WHERE coupon_id = $1`

	couponHasUsageSQL = `SELECT EXISTS (SELECT 1 FROM coupon_usages WHERE coupon_id = $1)`

	retireCouponSQL = `UPDATE coupons
		SET active = FALSE, retired_at = now(), updated_at = now()
		WHERE id = $1`

	deleteCouponSQL = `DELETE FROM coupons WHERE id = $1`
)

// dbtx is the subset of pgx query methods shared by pools and transactions,
// letting coupon row helpers run both standalone and inside the redemption
// transaction.
type dbtx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// GetByCode looks up a coupon by its exact, case-sensitive code.
// Returns coupon.ErrNotFound when no such coupon exists.
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return fetchCoupon(ctx, r.pool, getCouponByCodeSQL, code)
}

// Create persists the coupon and its user assignments in one transaction.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	_, err = tx.Exec(ctx, insertCouponSQL,
		c.ID, c.Code, c.Name, string(c.DiscountType), c.Value,
		c.MinOrderValue, c.MaxDiscount, c.TotalLimit, c.PerUserLimit,
		c.ValidFrom, c.ValidUntil, c.Active, categoriesArg(c.CategoryIDs),
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 = unique_violation on the coupon code.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return coupon.ErrCodeExists
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}

	if len(c.AssignedUserIDs) > 0 {
		if _, err := tx.Exec(ctx, insertAssignmentsSQL, c.ID, c.AssignedUserIDs); err != nil {
			return fmt.Errorf("assigning users to coupon %q: %w", c.Code, err)
		}
	}

	return tx.Commit(ctx)
}

// Update applies the partial update and, when an assignment set is provided,
// synchronizes assignments to exactly that set (removals and upserts) in the
// same transaction.
func (r *CouponRepository) Update(ctx context.Context, code string, upd coupon.Update) (*coupon.Coupon, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var id string
	err = tx.QueryRow(ctx, updateCouponSQL,
		code, upd.Name, discountTypeArg(upd.DiscountType), upd.Value,
		upd.MinOrderValue, upd.MaxDiscount, upd.TotalLimit, upd.PerUserLimit,
		upd.ValidFrom, upd.ValidUntil, upd.Active, upd.CategoryIDs,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("updating coupon %q: %w", code, err)
	}

	if upd.AssignedUserIDs != nil {
		if _, err := tx.Exec(ctx, pruneAssignmentsSQL, id, upd.AssignedUserIDs); err != nil {
			return nil, fmt.Errorf("pruning assignments for coupon %q: %w", code, err)
		}
		if len(upd.AssignedUserIDs) > 0 {
			if _, err := tx.Exec(ctx, insertAssignmentsSQL, id, upd.AssignedUserIDs); err != nil {
				return nil, fmt.Errorf("upserting assignments for coupon %q: %w", code, err)
			}
		}
	}

	updated, err := fetchCoupon(ctx, tx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

// Delete removes the coupon when it has no usage history; otherwise it
// retires the coupon in place so ledger entries stay referentially intact.
func (r *CouponRepository) Delete(ctx context.Context, code string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var id string
	err = tx.QueryRow(ctx, `SELECT id FROM coupons WHERE code = $1`, code).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, coupon.ErrNotFound
		}
		return false, fmt.Errorf("finding coupon %q: %w", code, err)
	}

	var hasUsage bool
	if err := tx.QueryRow(ctx, couponHasUsageSQL, id).Scan(&hasUsage); err != nil {
		return false, fmt.Errorf("checking usage for coupon %q: %w", code, err)
	}

	if hasUsage {
		if _, err := tx.Exec(ctx, retireCouponSQL, id); err != nil {
			return false, fmt.Errorf("retiring coupon %q: %w", code, err)
		}
	} else {
		if _, err := tx.Exec(ctx, deleteCouponSQL, id); err != nil {
			return false, fmt.Errorf("deleting coupon %q: %w", code, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return hasUsage, nil
}

// List returns all coupons with their assignment sets.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	return r.listCoupons(ctx, listCouponsSQL)
}

// ListForUser returns coupons redeemable by userID at the given time.
func (r *CouponRepository) ListForUser(ctx context.Context, userID string, now time.Time) ([]coupon.Coupon, error) {
	return r.listCoupons(ctx, listCouponsForUserSQL, userID, now)
}

// CountUsage returns the ledger counts for the coupon, total and for the
// given user. An empty userID yields a zero per-user count.
func (r *CouponRepository) CountUsage(ctx context.Context, couponID, userID string) (coupon.Usage, error) {
	return countUsage(ctx, r.pool, couponID, userID)
}

func (r *CouponRepository) listCoupons(ctx context.Context, sql string, args ...any) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}

	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	if len(coupons) == 0 {
		return coupons, nil
	}

	ids := make([]string, len(coupons))
	index := make(map[string]*coupon.Coupon, len(coupons))
	for i := range coupons {
		ids[i] = coupons[i].ID
		index[coupons[i].ID] = &coupons[i]
	}

	assignmentRows, err := r.pool.Query(ctx, getAssignmentsForSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("loading assignments: %w", err)
	}
	defer assignmentRows.Close()

	for assignmentRows.Next() {
		var couponID, userID string
		if err := assignmentRows.Scan(&couponID, &userID); err != nil {
			return nil, fmt.Errorf("loading assignments: %w", err)
		}
		if c, ok := index[couponID]; ok {
			c.AssignedUserIDs = append(c.AssignedUserIDs, userID)
		}
	}
	if err := assignmentRows.Err(); err != nil {
		return nil, fmt.Errorf("loading assignments: %w", err)
	}

	return coupons, nil
}

// fetchCoupon loads a single coupon row plus its assignment set using the
// given query. Returns coupon.ErrNotFound when the query matches no row.
func fetchCoupon(ctx context.Context, q dbtx, sql string, args ...any) (*coupon.Coupon, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("finding coupon: %w", err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon: %w", err)
	}

	assigned, err := loadAssignments(ctx, q, c.ID)
	if err != nil {
		return nil, err
	}
	c.AssignedUserIDs = assigned
	return &c, nil
}

func loadAssignments(ctx context.Context, q dbtx, couponID string) ([]string, error) {
	rows, err := q.Query(ctx, getAssignmentsSQL, couponID)
	if err != nil {
		return nil, fmt.Errorf("loading assignments: %w", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("loading assignments: %w", err)
	}
	return users, nil
}

func countUsage(ctx context.Context, q dbtx, couponID, userID string) (coupon.Usage, error) {
	var u coupon.Usage
	err := q.QueryRow(ctx, countUsageSQL, couponID, userID).Scan(&u.Total, &u.ByUser)
	if err != nil {
		return coupon.Usage{}, fmt.Errorf("counting usage for coupon %q: %w", couponID, err)
	}
	return u, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &discountType, &c.Value, &c.MinOrderValue,
		&c.MaxDiscount, &c.TotalLimit, &c.PerUserLimit, &c.ValidFrom,
		&c.ValidUntil, &c.Active, &c.CategoryIDs, &c.RetiredAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	return c, err
}

// categoriesArg normalizes a nil slice to an empty array so the NOT NULL
// column default applies consistently.
func categoriesArg(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// discountTypeArg converts the optional domain enum to a nullable text arg.
func discountTypeArg(t *coupon.DiscountType) *string {
	if t == nil {
		return nil
	}
	s := string(*t)
	return &s
}
