package domain

import "fmt"

const MaxRating = 5

// Product is a catalog record. Prices are in cents; OldPriceCents is zero
// when the product has no reference price.
type Product struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	PriceCents    int64  `json:"price_cents"`
	OldPriceCents int64  `json:"old_price_cents,omitempty"`
	Rating        int    `json:"rating"`
	Category      string `json:"category"`
	Image         string `json:"image"`
	IsNew         bool   `json:"is_new"`
}

func (p Product) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidProduct)
	}
	if p.PriceCents < 0 {
		return fmt.Errorf("%w: product %s: price cannot be negative, got %d", ErrInvalidProduct, p.ID, p.PriceCents)
	}
	if p.OldPriceCents != 0 && p.OldPriceCents < p.PriceCents {
		return fmt.Errorf("%w: product %s: old price %d is below price %d", ErrInvalidProduct, p.ID, p.OldPriceCents, p.PriceCents)
	}
	if p.Rating < 0 || p.Rating > MaxRating {
		return fmt.Errorf("%w: product %s: rating must be 0-%d, got %d", ErrInvalidProduct, p.ID, MaxRating, p.Rating)
	}
	return nil
}
