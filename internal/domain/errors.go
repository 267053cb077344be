package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidProduct    = errors.New("invalid product")
	ErrEmptyCart         = errors.New("cart is empty, nothing to checkout")
	ErrUnauthenticated   = errors.New("buyer is not authenticated")
	ErrCheckoutFailed    = errors.New("checkout failed")
	ErrPersistenceFailed = errors.New("order could not be saved after payment")
)
