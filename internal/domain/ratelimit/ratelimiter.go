// Package ratelimit defines the admission-shaping contract applied before
// any request reaches validation. The concrete fixed-second-bucket
// implementation lives in internal/infrastructure/redisstore.
package ratelimit

import "context"

// AdmissionGate decides whether a request may proceed past admission. It is
// the only external round trip that is fail-closed: an error here must be
// treated as "not admitted" by the caller.
type AdmissionGate interface {
	// Allow atomically increments the counter for the current bucket and
	// reports whether the resulting count is within cap.
	Allow(ctx context.Context, cap int) (bool, error)
}

// Config holds the admission cap and bucket width. BucketWidth defaults to
// one second; it is configurable mainly for tests.
type Config struct {
	Cap         int
	BucketWidth int // seconds
}
