package money

import (
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/apperr"
)

// Scale is the number of fractional digits carried by an amount. Amounts are
// stored as int64 minor units (paise).
const Scale = 2

var (
	hundred  = decimal.NewFromInt(100)
	maxMinor = decimal.NewFromInt(1 << 53)
)

// ErrInvalidAmount is returned for amounts that cannot be represented in minor units.
var ErrInvalidAmount = apperr.New(apperr.KindValidation, "invalid_amount", "invalid amount")

// FromDecimal converts a major-unit decimal into minor units. More than two
// fractional digits is rejected rather than rounded.
func FromDecimal(d decimal.Decimal) (int64, error) {
	minor := d.Mul(hundred)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, ErrInvalidAmount.With("amount has more than two decimal places", map[string]any{"amount": d.String()})
	}
	if minor.Abs().GreaterThan(maxMinor) {
		return 0, ErrInvalidAmount.With("amount out of range", map[string]any{"amount": d.String()})
	}
	return minor.IntPart(), nil
}

// Parse reads a major-unit amount such as "50000" or "12.50".
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount.With("amount is not a number", map[string]any{"amount": s})
	}
	return FromDecimal(d)
}

// MustParse is Parse for constants and tests.
func MustParse(s string) int64 {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// ToDecimal converts minor units back to a major-unit decimal.
func ToDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -Scale)
}

// Format renders minor units as a fixed two-digit decimal string.
func Format(minor int64) string {
	return ToDecimal(minor).StringFixed(Scale)
}

// Bounds is the inclusive range a single transfer or request amount must fall in.
type Bounds struct {
	Min int64
	Max int64
}

// Validate checks amount against the bounds, returning a validation error.
func (b Bounds) Validate(amount int64) error {
	if amount <= 0 {
		return apperr.Validation("amount_not_positive", "amount must be positive")
	}
	if amount < b.Min || amount > b.Max {
		return apperr.Validation("amount_out_of_bounds", "amount must be between %s and %s", Format(b.Min), Format(b.Max)).
			With("", map[string]any{"min": Format(b.Min), "max": Format(b.Max), "amount": Format(amount)})
	}
	return nil
}
