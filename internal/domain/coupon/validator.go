package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator answers whether a coupon may currently be applied for a given
// user and cart. The check is read-only and speculative: a valid result does
// not reserve anything, and a later redemption may still fail.
type Validator interface {
	Validate(ctx context.Context, userID, code string, cartTotal decimal.Decimal, categoryIDs []string) (Result, error)
}

// RepoValidator implements Validator by loading the coupon and its usage
// counts from a Repository and evaluating the eligibility checks.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the coupon by its exact code and evaluates all
// eligibility checks. An unknown code yields a NOT_FOUND result, not an
// error; errors are reserved for infrastructure failures.
func (v *RepoValidator) Validate(ctx context.Context, userID, code string, cartTotal decimal.Decimal, categoryIDs []string) (Result, error) {
	c, err := v.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ineligible(ReasonNotFound), nil
		}
		return Result{}, errors.Wrap(err, "lookup coupon")
	}

	usage, err := v.repo.CountUsage(ctx, c.ID, userID)
	if err != nil {
		return Result{}, errors.Wrap(err, "count usage")
	}

	return Evaluate(c, usage, Input{
		UserID:      userID,
		CartTotal:   cartTotal,
		CategoryIDs: categoryIDs,
		Now:         v.now(),
	}), nil
}
