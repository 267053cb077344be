package domain

// LineItem is one product entry of a cart or an order. UnitPriceCents and
// Title are captured when the product is added, so later catalog changes do
// not alter a pending cart.
type LineItem struct {
	ProductID      string `json:"product_id" bson:"product_id"`
	Title          string `json:"title" bson:"title"`
	Quantity       int    `json:"quantity" bson:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents" bson:"unit_price_cents"`
}

// CopyItems returns a copy of items that shares no backing array.
func CopyItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
