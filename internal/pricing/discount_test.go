package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPercentageApply(t *testing.T) {
	remaining, reduced := Percentage(dec("10")).Apply(dec("150"))
	requireDec(t, "135", remaining)
	requireDec(t, "15.00", reduced)
}

func TestFixedAmountApplyCapped(t *testing.T) {
	remaining, reduced := FixedAmount(dec("200")).Apply(dec("150"))
	requireDec(t, "0", remaining)
	requireDec(t, "150", reduced)
}

func TestZeroDiscountIsNoop(t *testing.T) {
	var d Discount
	require.True(t, d.IsZero())
	remaining, reduced := d.Apply(dec("150"))
	requireDec(t, "150", remaining)
	requireDec(t, "0", reduced)

	require.True(t, Percentage(dec("-5")).IsZero())
}

func TestApplyOnNonPositiveAmount(t *testing.T) {
	remaining, reduced := Percentage(dec("50")).Apply(dec("0"))
	requireDec(t, "0", remaining)
	requireDec(t, "0", reduced)
}
