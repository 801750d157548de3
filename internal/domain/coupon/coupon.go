// Package coupon contains the coupon domain model: discount rules, the
// eligibility decision logic, and the redemption contract enforced against
// the append-only usage ledger.
package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage of the cart total.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixedAmount subtracts a fixed monetary amount.
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixedAmount
}

// Reason identifies why a coupon cannot be applied. Reasons are stable
// wire-level codes surfaced to API clients.
type Reason string

const (
	ReasonNotFound              Reason = "NOT_FOUND"
	ReasonInactive              Reason = "INACTIVE"
	ReasonNotStarted            Reason = "NOT_STARTED"
	ReasonExpired               Reason = "EXPIRED"
	ReasonMinOrderNotMet        Reason = "MIN_ORDER_NOT_MET"
	ReasonCategoryMismatch      Reason = "CATEGORY_MISMATCH"
	ReasonUsageLimitExceeded    Reason = "USAGE_LIMIT_EXCEEDED"
	ReasonNotAssigned           Reason = "NOT_ASSIGNED"
	ReasonUserUsageLimitReached Reason = "USER_USAGE_LIMIT_EXCEEDED"
	// ReasonInvalid is the generic fallback for state that changed between
	// a speculative validation and the redemption transaction.
	ReasonInvalid Reason = "INVALID"
)

var (
	// ErrNotFound is returned by repositories when no coupon matches a code.
	ErrNotFound = errors.New("coupon not found")
	// ErrCodeExists is returned when creating a coupon whose code is taken.
	ErrCodeExists = errors.New("coupon code already exists")
)

// IneligibleError is returned by the redemption transaction when any
// eligibility check fails. The transaction is rolled back and no ledger
// entry is written.
type IneligibleError struct {
	Reason Reason
}

func (e *IneligibleError) Error() string {
	return "coupon ineligible: " + string(e.Reason)
}

// Coupon is a discount rule with a unique, case-sensitive redemption code.
//
// Zero values encode absent optional constraints: a zero MinOrderValue means
// no minimum, a zero MaxDiscount means no cap, zero limits mean unlimited,
// nil window bounds mean unbounded, and empty restriction slices mean the
// coupon is unrestricted.
type Coupon struct {
	ID            string
	Code          string
	Name          string
	DiscountType  DiscountType
	Value         decimal.Decimal
	MinOrderValue decimal.Decimal
	MaxDiscount   decimal.Decimal
	TotalLimit    int
	PerUserLimit  int
	ValidFrom     *time.Time
	ValidUntil    *time.Time
	Active        bool

	// CategoryIDs restricts the coupon to carts containing at least one of
	// these categories.
	CategoryIDs []string
	// AssignedUserIDs restricts eligibility to exactly this set of users.
	AssignedUserIDs []string

	RetiredAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Usage holds ledger counts for one coupon, scoped to a requesting user.
type Usage struct {
	// Total is the number of ledger entries for the coupon.
	Total int64
	// ByUser is the number of ledger entries for (coupon, user).
	ByUser int64
}

// Redemption is a single usage ledger entry. Entries are immutable once
// written and are never deleted.
type Redemption struct {
	ID         string
	CouponID   string
	CouponCode string
	UserID     string
	OrderID    string
	CreatedAt  time.Time
}

// RedeemRequest carries the full cart context into the redemption
// transaction so every eligibility check can be re-run under the row lock.
type RedeemRequest struct {
	Code        string
	UserID      string
	OrderID     string
	CartTotal   decimal.Decimal
	CategoryIDs []string
}

// Update describes a partial administrative update. Nil fields are left
// unchanged; a non-nil AssignedUserIDs replaces the assignment set exactly.
type Update struct {
	Name            *string
	DiscountType    *DiscountType
	Value           *decimal.Decimal
	MinOrderValue   *decimal.Decimal
	MaxDiscount     *decimal.Decimal
	TotalLimit      *int
	PerUserLimit    *int
	ValidFrom       *time.Time
	ValidUntil      *time.Time
	Active          *bool
	CategoryIDs     []string
	AssignedUserIDs []string
}

// Repository provides persistence for coupon definitions and read access to
// usage ledger counts.
type Repository interface {
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, code string, upd Update) (*Coupon, error)
	// Delete removes a coupon without usage history, or retires it
	// (deactivates, keeps the row) when ledger entries reference it.
	// The returned flag reports whether the coupon was retired.
	Delete(ctx context.Context, code string) (bool, error)
	List(ctx context.Context) ([]Coupon, error)
	// ListForUser returns coupons that are active, inside their validity
	// window at now, and either unrestricted or assigned to userID.
	ListForUser(ctx context.Context, userID string, now time.Time) ([]Coupon, error)
	CountUsage(ctx context.Context, couponID, userID string) (Usage, error)
}

// Ledger performs the atomic redemption transaction: re-check eligibility
// and append a usage entry in one database transaction, such that two
// concurrent redemptions can never both succeed past a limit.
type Ledger interface {
	Redeem(ctx context.Context, req RedeemRequest) (*Redemption, error)
}
