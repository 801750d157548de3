package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	active := func(mutate func(c *Coupon)) *Coupon {
		c := &Coupon{
			ID:           "c1",
			Code:         "SAVE10",
			DiscountType: DiscountPercentage,
			Value:        d("10"),
			Active:       true,
		}
		if mutate != nil {
			mutate(c)
		}
		return c
	}

	tests := []struct {
		name       string
		coupon     *Coupon
		usage      Usage
		in         Input
		wantValid  bool
		wantReason Reason
		wantAmount decimal.Decimal
	}{
		{
			name:       "unrestricted coupon is valid",
			coupon:     active(nil),
			in:         Input{UserID: "u1", CartTotal: d("100"), Now: fixedNow},
			wantValid:  true,
			wantAmount: d("10"),
		},
		{
			name:       "inactive",
			coupon:     active(func(c *Coupon) { c.Active = false }),
			in:         Input{UserID: "u1", CartTotal: d("100"), Now: fixedNow},
			wantReason: ReasonInactive,
		},
		{
			name:       "not started",
			coupon:     active(func(c *Coupon) { c.ValidFrom = &futureTime }),
			in:         Input{UserID: "u1", CartTotal: d("100"), Now: fixedNow},
			wantReason: ReasonNotStarted,
		},
		{
			name:       "expired",
			coupon:     active(func(c *Coupon) { c.ValidUntil = &pastTime }),
			in:         Input{UserID: "u1", CartTotal: d("100"), Now: fixedNow},
			wantReason: ReasonExpired,
		},
		{
			name:      "boundary instants are inside the window",
			coupon:    active(func(c *Coupon) { c.ValidFrom = &fixedNow; c.ValidUntil = &fixedNow }),
			in:        Input{UserID: "u1", CartTotal: d("100"), Now: fixedNow},
			wantValid: true, wantAmount: d("10"),
		},
		{
			name:       "minimum order not met",
			coupon:     active(func(c *Coupon) { c.MinOrderValue = d("50") }),
			in:         Input{UserID: "u1", CartTotal: d("49.99"), Now: fixedNow},
			wantReason: ReasonMinOrderNotMet,
		},
		{
			name:      "minimum order met exactly",
			coupon:    active(func(c *Coupon) { c.MinOrderValue = d("50") }),
			in:        Input{UserID: "u1", CartTotal: d("50"), Now: fixedNow},
			wantValid: true, wantAmount: d("5"),
		},
		{
			name:       "category restriction without overlap",
			coupon:     active(func(c *Coupon) { c.CategoryIDs = []string{"books", "music"} }),
			in:         Input{UserID: "u1", CartTotal: d("100"), CategoryIDs: []string{"toys"}, Now: fixedNow},
			wantReason: ReasonCategoryMismatch,
		},
		{
			name:      "category restriction with one overlap",
			coupon:    active(func(c *Coupon) { c.CategoryIDs = []string{"books", "music"} }),
			in:        Input{UserID: "u1", CartTotal: d("100"), CategoryIDs: []string{"toys", "books"}, Now: fixedNow},
			wantValid: true, wantAmount: d("10"),
		},
		{
			name:       "total usage limit reached",
			coupon:     active(func(c *Coupon) { c.TotalLimit = 3 }),
			usage:      Usage{Total: 3},
			in:         Input{UserID: "u1", CartTotal: d("100"), Now: fixedNow},
			wantReason: ReasonUsageLimitExceeded,
		},
		{
			name:      "total usage below limit",
			coupon:    active(func(c *Coupon) { c.TotalLimit = 3 }),
			usage:     Usage{Total: 2},
			in:        Input{UserID: "u1", CartTotal: d("100"), Now: fixedNow},
			wantValid: true, wantAmount: d("10"),
		},
		{
			name:       "assigned coupon rejects other users",
			coupon:     active(func(c *Coupon) { c.AssignedUserIDs = []string{"u2", "u3"} }),
			in:         Input{UserID: "u1", CartTotal: d("100"), Now: fixedNow},
			wantReason: ReasonNotAssigned,
		},
		{
			name:       "assigned coupon rejects anonymous checks",
			coupon:     active(func(c *Coupon) { c.AssignedUserIDs = []string{"u1"} }),
			in:         Input{CartTotal: d("100"), Now: fixedNow},
			wantReason: ReasonNotAssigned,
		},
		{
			name:      "assigned coupon accepts assigned user",
			coupon:    active(func(c *Coupon) { c.AssignedUserIDs = []string{"u1"} }),
			in:        Input{UserID: "u1", CartTotal: d("100"), Now: fixedNow},
			wantValid: true, wantAmount: d("10"),
		},
		{
			name:       "per-user limit reached",
			coupon:     active(func(c *Coupon) { c.PerUserLimit = 1 }),
			usage:      Usage{Total: 5, ByUser: 1},
			in:         Input{UserID: "u1", CartTotal: d("100"), Now: fixedNow},
			wantReason: ReasonUserUsageLimitReached,
		},
		{
			name:      "per-user limit skipped for anonymous checks",
			coupon:    active(func(c *Coupon) { c.PerUserLimit = 1 }),
			usage:     Usage{Total: 5},
			in:        Input{CartTotal: d("100"), Now: fixedNow},
			wantValid: true, wantAmount: d("10"),
		},
		{
			name: "inactive wins over expired",
			coupon: active(func(c *Coupon) {
				c.Active = false
				c.ValidUntil = &pastTime
			}),
			in:         Input{UserID: "u1", CartTotal: d("100"), Now: fixedNow},
			wantReason: ReasonInactive,
		},
		{
			name: "total limit wins over assignment",
			coupon: active(func(c *Coupon) {
				c.TotalLimit = 1
				c.AssignedUserIDs = []string{"u2"}
			}),
			usage:      Usage{Total: 1},
			in:         Input{UserID: "u1", CartTotal: d("100"), Now: fixedNow},
			wantReason: ReasonUsageLimitExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.coupon, tt.usage, tt.in)

			if !tt.wantValid {
				require.False(t, got.Valid)
				assert.Equal(t, tt.wantReason, got.Reason)
				assert.True(t, got.Discount.IsZero())
				return
			}

			require.True(t, got.Valid, "reason: %s", got.Reason)
			assert.Empty(t, got.Reason)
			assert.True(t, tt.wantAmount.Equal(got.Discount), "want %s, got %s", tt.wantAmount, got.Discount)
		})
	}
}

func TestEvaluate_CappedPercentageEndToEnd(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	c := &Coupon{
		Code:         "HALFOFF",
		DiscountType: DiscountPercentage,
		Value:        d("50"),
		MaxDiscount:  d("100"),
		Active:       true,
	}

	got := Evaluate(c, Usage{}, Input{UserID: "u1", CartTotal: d("1000"), Now: now})

	require.True(t, got.Valid)
	assert.True(t, d("100").Equal(got.Discount), "got %s", got.Discount)
}
