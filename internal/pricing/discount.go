package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type discountKind int

const (
	kindNone discountKind = iota
	kindPercentage
	kindFixedAmount
)

// Discount is a promo reduction of either kind. The zero value applies
// nothing. Construct via Percentage or FixedAmount; dispatch on the kind
// happens only inside Apply.
type Discount struct {
	kind  discountKind
	value decimal.Decimal
}

// Percentage builds a discount that removes value percent of the running
// amount.
func Percentage(value decimal.Decimal) Discount {
	return Discount{kind: kindPercentage, value: value}
}

// FixedAmount builds a discount that removes a flat amount.
func FixedAmount(value decimal.Decimal) Discount {
	return Discount{kind: kindFixedAmount, value: value}
}

// IsZero reports whether the discount would have no effect.
func (d Discount) IsZero() bool {
	return d.kind == kindNone || !d.value.IsPositive()
}

// Apply subtracts the discount from amount. The reduction is rounded to two
// decimal places (half up) and is capped so the remainder never goes
// negative. It returns the new running amount and the amount removed.
func (d Discount) Apply(amount decimal.Decimal) (remaining, reduced decimal.Decimal) {
	if d.IsZero() || !amount.IsPositive() {
		return amount, decimal.Zero
	}
	switch d.kind {
	case kindPercentage:
		reduced = amount.Mul(d.value).Div(decimal.NewFromInt(100)).Round(2)
	case kindFixedAmount:
		reduced = d.value.Round(2)
	}
	if reduced.GreaterThan(amount) {
		reduced = amount
	}
	return amount.Sub(reduced), reduced
}

// Describe renders the discount for the explanation trail.
func (d Discount) Describe() string {
	switch d.kind {
	case kindPercentage:
		return fmt.Sprintf("%s%% off", d.value.String())
	case kindFixedAmount:
		return fmt.Sprintf("flat %s off", d.value.StringFixed(2))
	default:
		return "no discount"
	}
}
