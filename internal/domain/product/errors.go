package product

import "errors"

var (
	// ErrNotFound is returned when a product row does not exist in the
	// record of truth.
	ErrNotFound = errors.New("product: not found")
	// ErrInvalidQuantity is returned by bootstrap when a negative stock is
	// supplied.
	ErrInvalidQuantity = errors.New("product: quantity must be >= 0")
)
