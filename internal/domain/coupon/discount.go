package coupon

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Discount computes the monetary discount the coupon grants on the given
// cart total. The result is capped at MaxDiscount when one is set, clamped
// so it never exceeds the cart total, floored at zero, and rounded to two
// decimal places. Pure function; money stays in exact decimal arithmetic
// throughout.
func Discount(c *Coupon, cartTotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		amount = cartTotal.Mul(c.Value).Div(hundred)
	case DiscountFixedAmount:
		amount = c.Value
	default:
		return zero
	}

	if c.MaxDiscount.IsPositive() && amount.GreaterThan(c.MaxDiscount) {
		amount = c.MaxDiscount
	}

	// A discount larger than the cart would leave a negative payable total.
	amount = decimal.Min(amount, cartTotal)

	return floorAtZero(amount).Round(2)
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
