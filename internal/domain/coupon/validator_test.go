package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	coupon   *Coupon
	getErr   error
	usage    Usage
	usageErr error

	created    *Coupon
	createErr  error
	updated    *Coupon
	updateErr  error
	retired    bool
	deleteErr  error
	list       []Coupon
	listErr    error
	forUser    []Coupon
	forUserErr error

	gotUserID string
	gotNow    time.Time
}

func (m *mockRepo) GetByCode(_ context.Context, _ string) (*Coupon, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.coupon, nil
}

func (m *mockRepo) Create(_ context.Context, c *Coupon) error {
	m.created = c
	return m.createErr
}

func (m *mockRepo) Update(_ context.Context, _ string, _ Update) (*Coupon, error) {
	return m.updated, m.updateErr
}

func (m *mockRepo) Delete(_ context.Context, _ string) (bool, error) {
	return m.retired, m.deleteErr
}

func (m *mockRepo) List(_ context.Context) ([]Coupon, error) {
	return m.list, m.listErr
}

func (m *mockRepo) ListForUser(_ context.Context, userID string, now time.Time) ([]Coupon, error) {
	m.gotUserID = userID
	m.gotNow = now
	return m.forUser, m.forUserErr
}

func (m *mockRepo) CountUsage(_ context.Context, _, _ string) (Usage, error) {
	if m.usageErr != nil {
		return Usage{}, m.usageErr
	}
	return m.usage, nil
}

func newValidator(repo Repository, now time.Time) *RepoValidator {
	v := NewRepoValidator(repo)
	v.now = func() time.Time { return now }
	return v
}

func TestRepoValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("valid coupon returns discount", func(t *testing.T) {
		repo := &mockRepo{coupon: &Coupon{
			ID:           "c1",
			Code:         "SAVE10",
			DiscountType: DiscountPercentage,
			Value:        d("10"),
			Active:       true,
		}}
		v := newValidator(repo, fixedNow)

		res, err := v.Validate(context.Background(), "u1", "SAVE10", d("100"), nil)

		require.NoError(t, err)
		require.True(t, res.Valid)
		assert.True(t, d("10").Equal(res.Discount), "got %s", res.Discount)
	})

	t.Run("unknown code is a result, not an error", func(t *testing.T) {
		repo := &mockRepo{getErr: ErrNotFound}
		v := newValidator(repo, fixedNow)

		res, err := v.Validate(context.Background(), "u1", "BOGUS", d("100"), nil)

		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, ReasonNotFound, res.Reason)
	})

	t.Run("repository failure is an error", func(t *testing.T) {
		repo := &mockRepo{getErr: errors.New("connection refused")}
		v := newValidator(repo, fixedNow)

		_, err := v.Validate(context.Background(), "u1", "SAVE10", d("100"), nil)
		require.Error(t, err)
	})

	t.Run("usage counts feed the limit checks", func(t *testing.T) {
		repo := &mockRepo{
			coupon: &Coupon{
				ID:           "c1",
				Code:         "ONCE",
				DiscountType: DiscountFixedAmount,
				Value:        d("5"),
				PerUserLimit: 1,
				Active:       true,
			},
			usage: Usage{Total: 10, ByUser: 1},
		}
		v := newValidator(repo, fixedNow)

		res, err := v.Validate(context.Background(), "u1", "ONCE", d("100"), nil)

		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, ReasonUserUsageLimitReached, res.Reason)
	})

	t.Run("usage count failure is an error", func(t *testing.T) {
		repo := &mockRepo{
			coupon:   &Coupon{ID: "c1", Code: "SAVE10", Active: true},
			usageErr: errors.New("timeout"),
		}
		v := newValidator(repo, fixedNow)

		_, err := v.Validate(context.Background(), "u1", "SAVE10", d("100"), nil)
		require.Error(t, err)
	})
}
