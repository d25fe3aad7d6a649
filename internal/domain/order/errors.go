package order

import "errors"

// Sentinel errors for the order outcome taxonomy. Handlers map these to
// HTTP status and body; services never know about HTTP.
var (
	// ErrValidation marks input validation failures (400).
	ErrValidation = errors.New("order: validation failed")
	// ErrThrottled marks an admission-cap rejection (302 to the holding area).
	ErrThrottled = errors.New("order: throttled")
	// ErrDuplicate marks an idempotency-marker hit (200 ignored).
	ErrDuplicate = errors.New("order: duplicate request")
	// ErrSoldOut marks a failed atomic reservation (409).
	ErrSoldOut = errors.New("order: sold out")
	// ErrReservedNotLogged marks the partial-failure window: the counter
	// store decrement succeeded but the durable log produce failed. The
	// decrement is never compensated (see package services).
	ErrReservedNotLogged = errors.New("order: reserved but not logged")
	// ErrUnknownProduct marks /init being called for a product that has no
	// durable row yet.
	ErrUnknownProduct = errors.New("order: product has no durable row")
)
