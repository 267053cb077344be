package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Format renders cents for display, e.g. "$1,234.50" for USD and
// "1,234.50 EUR" for other currencies.
func Format(cents int64, currency string) string {
	amount := decimal.New(cents, -2)
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Abs()
	}

	fixed := amount.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	grouped := groupThousands(whole) + "." + frac

	switch strings.ToUpper(currency) {
	case "", "USD":
		return sign + "$" + grouped
	default:
		return sign + grouped + " " + strings.ToUpper(currency)
	}
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
