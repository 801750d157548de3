package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefinitionError reports an invalid coupon definition submitted through the
// administrative API.
type DefinitionError struct {
	Field string
	Msg   string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid coupon definition: %s %s", e.Field, e.Msg)
}

// Service covers the coupon lifecycle: administrative CRUD, the per-user
// coupon listing, and redemption. Eligibility validation lives in Validator;
// the atomicity of redemption lives in Ledger.
type Service struct {
	repo   Repository
	ledger Ledger
	now    func() time.Time
}

// NewService creates a coupon Service.
func NewService(repo Repository, ledger Ledger) *Service {
	return &Service{repo: repo, ledger: ledger, now: time.Now}
}

// Create validates the definition, assigns an ID, and persists the coupon
// together with its optional user assignments.
func (s *Service) Create(ctx context.Context, c *Coupon) (*Coupon, error) {
	if err := validateDefinition(c); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c.ID = uuid.New().String()
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the coupon with the given code.
func (s *Service) Get(ctx context.Context, code string) (*Coupon, error) {
	return s.repo.GetByCode(ctx, code)
}

// List returns all coupons, including inactive and retired ones.
func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	return s.repo.List(ctx)
}

// ListForUser returns the coupons currently redeemable by the given user:
// active, inside their validity window, and either unrestricted or assigned
// to the user.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Coupon, error) {
	return s.repo.ListForUser(ctx, userID, s.now())
}

// Update applies a partial update and synchronizes the assignment set when
// one is provided.
func (s *Service) Update(ctx context.Context, code string, upd Update) (*Coupon, error) {
	if upd.DiscountType != nil && !upd.DiscountType.Valid() {
		return nil, &DefinitionError{Field: "discountType", Msg: "must be percentage or fixed_amount"}
	}
	if upd.Value != nil && !upd.Value.IsPositive() {
		return nil, &DefinitionError{Field: "value", Msg: "must be positive"}
	}
	if upd.TotalLimit != nil && *upd.TotalLimit < 0 {
		return nil, &DefinitionError{Field: "totalLimit", Msg: "must not be negative"}
	}
	if upd.PerUserLimit != nil && *upd.PerUserLimit < 0 {
		return nil, &DefinitionError{Field: "perUserLimit", Msg: "must not be negative"}
	}
	return s.repo.Update(ctx, code, upd)
}

// Delete removes or retires the coupon. Coupons referenced by ledger entries
// are retired rather than deleted so the audit trail stays queryable.
func (s *Service) Delete(ctx context.Context, code string) (bool, error) {
	return s.repo.Delete(ctx, code)
}

// Redeem runs the redemption transaction. Failures carry an IneligibleError
// with the reason; the ledger is untouched on failure.
func (s *Service) Redeem(ctx context.Context, req RedeemRequest) (*Redemption, error) {
	if req.UserID == "" {
		return nil, &DefinitionError{Field: "userId", Msg: "is required"}
	}
	if req.Code == "" {
		return nil, &DefinitionError{Field: "code", Msg: "is required"}
	}
	return s.ledger.Redeem(ctx, req)
}

func validateDefinition(c *Coupon) error {
	if c.Code == "" {
		return &DefinitionError{Field: "code", Msg: "is required"}
	}
	if !c.DiscountType.Valid() {
		return &DefinitionError{Field: "discountType", Msg: "must be percentage or fixed_amount"}
	}
	if !c.Value.IsPositive() {
		return &DefinitionError{Field: "value", Msg: "must be positive"}
	}
	if c.DiscountType == DiscountPercentage && c.Value.GreaterThan(hundred) {
		return &DefinitionError{Field: "value", Msg: "percentage must not exceed 100"}
	}
	if c.MinOrderValue.IsNegative() {
		return &DefinitionError{Field: "minOrderValue", Msg: "must not be negative"}
	}
	if c.MaxDiscount.IsNegative() {
		return &DefinitionError{Field: "maxDiscount", Msg: "must not be negative"}
	}
	if c.TotalLimit < 0 {
		return &DefinitionError{Field: "totalLimit", Msg: "must not be negative"}
	}
	if c.PerUserLimit < 0 {
		return &DefinitionError{Field: "perUserLimit", Msg: "must not be negative"}
	}
	if c.ValidFrom != nil && c.ValidUntil != nil && c.ValidUntil.Before(*c.ValidFrom) {
		return &DefinitionError{Field: "validUntil", Msg: "must not precede validFrom"}
	}
	return nil
}
