package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLedger struct {
	redemption *Redemption
	err        error
	gotReq     RedeemRequest
}

func (m *mockLedger) Redeem(_ context.Context, req RedeemRequest) (*Redemption, error) {
	m.gotReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.redemption, nil
}

func newTestService(repo Repository, ledger Ledger, now time.Time) *Service {
	s := NewService(repo, ledger)
	s.now = func() time.Time { return now }
	return s
}

func TestService_Create(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("assigns id and timestamps", func(t *testing.T) {
		repo := &mockRepo{}
		svc := newTestService(repo, &mockLedger{}, fixedNow)

		created, err := svc.Create(context.Background(), &Coupon{
			Code:         "SAVE10",
			DiscountType: DiscountPercentage,
			Value:        d("10"),
			Active:       true,
		})

		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, fixedNow, created.CreatedAt)
		assert.Equal(t, fixedNow, created.UpdatedAt)
		assert.Same(t, created, repo.created)
	})

	invalid := []struct {
		name   string
		coupon *Coupon
		field  string
	}{
		{"missing code", &Coupon{DiscountType: DiscountPercentage, Value: d("10")}, "code"},
		{"unknown discount type", &Coupon{Code: "X1", DiscountType: "bogus", Value: d("10")}, "discountType"},
		{"zero value", &Coupon{Code: "X1", DiscountType: DiscountPercentage, Value: d("0")}, "value"},
		{"negative value", &Coupon{Code: "X1", DiscountType: DiscountFixedAmount, Value: d("-5")}, "value"},
		{"percentage over 100", &Coupon{Code: "X1", DiscountType: DiscountPercentage, Value: d("101")}, "value"},
		{"negative min order", &Coupon{Code: "X1", DiscountType: DiscountPercentage, Value: d("10"), MinOrderValue: d("-1")}, "minOrderValue"},
		{"negative max discount", &Coupon{Code: "X1", DiscountType: DiscountPercentage, Value: d("10"), MaxDiscount: d("-1")}, "maxDiscount"},
		{"negative total limit", &Coupon{Code: "X1", DiscountType: DiscountPercentage, Value: d("10"), TotalLimit: -1}, "totalLimit"},
		{"negative per-user limit", &Coupon{Code: "X1", DiscountType: DiscountPercentage, Value: d("10"), PerUserLimit: -1}, "perUserLimit"},
	}

	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepo{}
			svc := newTestService(repo, &mockLedger{}, fixedNow)

			_, err := svc.Create(context.Background(), tt.coupon)

			var defErr *DefinitionError
			require.ErrorAs(t, err, &defErr)
			assert.Equal(t, tt.field, defErr.Field)
			assert.Nil(t, repo.created)
		})
	}

	t.Run("window must be ordered", func(t *testing.T) {
		from := fixedNow
		until := fixedNow.Add(-time.Hour)
		svc := newTestService(&mockRepo{}, &mockLedger{}, fixedNow)

		_, err := svc.Create(context.Background(), &Coupon{
			Code:         "X1",
			DiscountType: DiscountPercentage,
			Value:        d("10"),
			ValidFrom:    &from,
			ValidUntil:   &until,
		})

		var defErr *DefinitionError
		require.ErrorAs(t, err, &defErr)
		assert.Equal(t, "validUntil", defErr.Field)
	})

	t.Run("duplicate code surfaces ErrCodeExists", func(t *testing.T) {
		repo := &mockRepo{createErr: ErrCodeExists}
		svc := newTestService(repo, &mockLedger{}, fixedNow)

		_, err := svc.Create(context.Background(), &Coupon{
			Code:         "TAKEN",
			DiscountType: DiscountPercentage,
			Value:        d("10"),
		})
		require.ErrorIs(t, err, ErrCodeExists)
	})
}

func TestService_Update(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("rejects invalid field values before the repository", func(t *testing.T) {
		bad := DiscountType("bogus")
		svc := newTestService(&mockRepo{}, &mockLedger{}, fixedNow)

		_, err := svc.Update(context.Background(), "SAVE10", Update{DiscountType: &bad})

		var defErr *DefinitionError
		require.ErrorAs(t, err, &defErr)
		assert.Equal(t, "discountType", defErr.Field)
	})

	t.Run("passes valid updates through", func(t *testing.T) {
		want := &Coupon{ID: "c1", Code: "SAVE10"}
		svc := newTestService(&mockRepo{updated: want}, &mockLedger{}, fixedNow)

		name := "renamed"
		got, err := svc.Update(context.Background(), "SAVE10", Update{Name: &name})

		require.NoError(t, err)
		assert.Same(t, want, got)
	})
}

func TestService_ListForUser(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	repo := &mockRepo{forUser: []Coupon{{Code: "SAVE10"}}}
	svc := newTestService(repo, &mockLedger{}, fixedNow)

	got, err := svc.ListForUser(context.Background(), "u1")

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u1", repo.gotUserID)
	assert.Equal(t, fixedNow, repo.gotNow)
}

func TestService_Redeem(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("requires user id", func(t *testing.T) {
		svc := newTestService(&mockRepo{}, &mockLedger{}, fixedNow)

		_, err := svc.Redeem(context.Background(), RedeemRequest{Code: "SAVE10"})

		var defErr *DefinitionError
		require.ErrorAs(t, err, &defErr)
		assert.Equal(t, "userId", defErr.Field)
	})

	t.Run("requires code", func(t *testing.T) {
		svc := newTestService(&mockRepo{}, &mockLedger{}, fixedNow)

		_, err := svc.Redeem(context.Background(), RedeemRequest{UserID: "u1"})

		var defErr *DefinitionError
		require.ErrorAs(t, err, &defErr)
		assert.Equal(t, "code", defErr.Field)
	})

	t.Run("delegates to the ledger transaction", func(t *testing.T) {
		want := &Redemption{ID: "r1", CouponCode: "SAVE10", UserID: "u1"}
		ledger := &mockLedger{redemption: want}
		svc := newTestService(&mockRepo{}, ledger, fixedNow)

		req := RedeemRequest{Code: "SAVE10", UserID: "u1", OrderID: "o1", CartTotal: d("100")}
		got, err := svc.Redeem(context.Background(), req)

		require.NoError(t, err)
		assert.Same(t, want, got)
		assert.Equal(t, req, ledger.gotReq)
	})

	t.Run("ineligible redemption surfaces the reason", func(t *testing.T) {
		ledger := &mockLedger{err: &IneligibleError{Reason: ReasonUsageLimitExceeded}}
		svc := newTestService(&mockRepo{}, ledger, fixedNow)

		_, err := svc.Redeem(context.Background(), RedeemRequest{Code: "SAVE10", UserID: "u1"})

		var inErr *IneligibleError
		require.ErrorAs(t, err, &inErr)
		assert.Equal(t, ReasonUsageLimitExceeded, inErr.Reason)
	})
}

func TestService_Delete(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("reports retirement", func(t *testing.T) {
		svc := newTestService(&mockRepo{retired: true}, &mockLedger{}, fixedNow)

		retired, err := svc.Delete(context.Background(), "SAVE10")
		require.NoError(t, err)
		assert.True(t, retired)
	})

	t.Run("unknown coupon surfaces ErrNotFound", func(t *testing.T) {
		svc := newTestService(&mockRepo{deleteErr: ErrNotFound}, &mockLedger{}, fixedNow)

		_, err := svc.Delete(context.Background(), "BOGUS")
		require.ErrorIs(t, err, ErrNotFound)
	})
}
