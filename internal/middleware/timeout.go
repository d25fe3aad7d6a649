package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// Timeout bounds the request-scoped context passed to every handler (and,
// transitively, every external call it makes) to d. It does not abort the
// handler itself; Redis/Kafka/Postgres calls observe ctx.Done() on their
// own and return the appropriate error, which the handler maps to a 500.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
