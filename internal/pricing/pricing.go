// Package pricing derives discounts and cart totals from line items. All
// amounts are integer cents; nothing here holds state.
package pricing

import "github.com/mlionhart/hartmart/internal/domain"

// DefaultShippingCents is the flat shipping charge for a non-empty cart.
const DefaultShippingCents int64 = 2000

type Totals struct {
	Subtotal int64 `json:"subtotal_cents"`
	Shipping int64 `json:"shipping_cents"`
	Grand    int64 `json:"total_cents"`
}

// Policy holds the configurable pricing values.
type Policy struct {
	ShippingCents int64
}

func DefaultPolicy() Policy {
	return Policy{ShippingCents: DefaultShippingCents}
}

// DiscountPercent returns the percentage by which price undercuts oldPrice,
// rounded half up. It is 0 when oldPrice is absent or not above price.
func DiscountPercent(priceCents, oldPriceCents int64) int {
	if oldPriceCents <= 0 || oldPriceCents <= priceCents {
		return 0
	}
	diff := oldPriceCents - priceCents
	return int((diff*200 + oldPriceCents) / (2 * oldPriceCents))
}

func LineTotal(item domain.LineItem) int64 {
	return item.UnitPriceCents * int64(item.Quantity)
}

func Subtotal(items []domain.LineItem) int64 {
	var total int64
	for _, item := range items {
		total += LineTotal(item)
	}
	return total
}

// ShippingFee is flat regardless of contents, and zero with nothing to ship.
func (p Policy) ShippingFee(items []domain.LineItem) int64 {
	if len(items) == 0 {
		return 0
	}
	return p.ShippingCents
}

func (p Policy) GrandTotal(items []domain.LineItem) int64 {
	return Subtotal(items) + p.ShippingFee(items)
}

func (p Policy) Totals(items []domain.LineItem) Totals {
	subtotal := Subtotal(items)
	shipping := p.ShippingFee(items)
	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Grand:    subtotal + shipping,
	}
}
