// Package product holds the Product aggregate shared by the counter store
// and the record of truth.
package product

// Product is identified by an opaque id and tracks remaining stock. The
// counter-store representation and the durable row are kept in sync only
// through the reservation and fulfillment paths described in the services
// package; nothing in this package mutates either store directly.
type Product struct {
	ID    string
	Stock int
}

const (
	// MaxIDLength is a product identifier length bound. The hot-path
	// validation in domain/order does not use it; it bounds productId by
	// order.MaxFieldLength instead.
	MaxIDLength = 128
)
