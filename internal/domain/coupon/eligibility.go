package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

// Input carries the request context for an eligibility decision.
type Input struct {
	// UserID is empty for anonymous checks.
	UserID      string
	CartTotal   decimal.Decimal
	CategoryIDs []string
	Now         time.Time
}

// Result is the structured outcome of an eligibility check. Ineligibility is
// not an error: callers render Reason directly to the client.
type Result struct {
	Valid    bool
	Reason   Reason
	Discount decimal.Decimal
}

func ineligible(r Reason) Result {
	return Result{Reason: r}
}

// Evaluate runs the ordered eligibility checks for a loaded coupon against
// current usage counts. The first failing check wins. It is a pure function:
// the same inputs always produce the same result, which lets the redemption
// transaction re-run the exact decision the speculative validation made.
//
// The NOT_FOUND check happens at lookup time, before Evaluate is called.
func Evaluate(c *Coupon, usage Usage, in Input) Result {
	if !c.Active {
		return ineligible(ReasonInactive)
	}
	if c.ValidFrom != nil && in.Now.Before(*c.ValidFrom) {
		return ineligible(ReasonNotStarted)
	}
	if c.ValidUntil != nil && in.Now.After(*c.ValidUntil) {
		return ineligible(ReasonExpired)
	}
	if c.MinOrderValue.IsPositive() && in.CartTotal.LessThan(c.MinOrderValue) {
		return ineligible(ReasonMinOrderNotMet)
	}
	if len(c.CategoryIDs) > 0 && !intersects(c.CategoryIDs, in.CategoryIDs) {
		return ineligible(ReasonCategoryMismatch)
	}
	if c.TotalLimit > 0 && usage.Total >= int64(c.TotalLimit) {
		return ineligible(ReasonUsageLimitExceeded)
	}
	if len(c.AssignedUserIDs) > 0 && !contains(c.AssignedUserIDs, in.UserID) {
		return ineligible(ReasonNotAssigned)
	}
	if c.PerUserLimit > 0 && in.UserID != "" && usage.ByUser >= int64(c.PerUserLimit) {
		return ineligible(ReasonUserUsageLimitReached)
	}

	return Result{
		Valid:    true,
		Discount: Discount(c, in.CartTotal),
	}
}

// intersects reports whether the two sets share at least one element.
func intersects(restriction, present []string) bool {
	set := make(map[string]struct{}, len(restriction))
	for _, id := range restriction {
		set[id] = struct{}{}
	}
	for _, id := range present {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

func contains(ids []string, id string) bool {
	if id == "" {
		return false
	}
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
