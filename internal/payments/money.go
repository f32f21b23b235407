package payments

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a two-decimal amount into integer cents, rounding
// half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// Int64 returns a pointer to v for optional gateway amounts.
func Int64(v int64) *int64 {
	return &v
}
