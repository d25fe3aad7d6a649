package redisstore

import (
	"fmt"
	"time"

	"context"

	"github.com/redis/go-redis/v9"
)

// admissionScript atomically increments the current-second bucket and sets
// its expiry only the first time the key is created in this bucket, so the
// bucket naturally expires without a second round trip. ttl is expressed in
// whole seconds and is kept at least 2x the bucket width so a bucket never
// expires while still in use.
const admissionScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`

// AdmissionGate implements ratelimit.AdmissionGate against the
// rate:{unixSecond} key family.
type AdmissionGate struct {
	client      *redis.Client
	bucketWidth time.Duration
}

// NewAdmissionGate creates a gate whose buckets are always one wall-clock
// second long. bucketWidth only sets the bucket key's expiry (twice the
// width, at least two seconds); it defaults to one second when zero.
func NewAdmissionGate(client *redis.Client, bucketWidth time.Duration) *AdmissionGate {
	if bucketWidth <= 0 {
		bucketWidth = time.Second
	}
	return &AdmissionGate{client: client, bucketWidth: bucketWidth}
}

// Allow increments the bucket for the current wall-clock second and
// reports whether the resulting count is within cap.
func (g *AdmissionGate) Allow(ctx context.Context, cap int) (bool, error) {
	bucket := time.Now().Unix()
	key := fmt.Sprintf("rate:%d", bucket)
	ttlSeconds := int(g.bucketWidth.Seconds()) * 2
	if ttlSeconds < 2 {
		ttlSeconds = 2
	}

	result, err := g.client.Eval(ctx, admissionScript, []string{key}, ttlSeconds).Result()
	if err != nil {
		return false, fmt.Errorf("admission script failed: %w", err)
	}
	count, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected admission script result type %T", result)
	}
	return int(count) <= cap, nil
}
