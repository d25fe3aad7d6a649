// Package middleware holds the gin middleware wrapping the ingestion hot
// path: admission shaping, request-id propagation, and the per-request
// deadline.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flashgate/flashgate/internal/domain/ratelimit"
)

// Admission runs step 1 of the hot path: it increments the current-second
// bucket and either lets the request through or redirects it to the
// waiting room. A counter-store failure here is fail-closed: the request
// never reaches validation or reservation.
func Admission(gate ratelimit.AdmissionGate, cap int, waitingRoomURL string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := gate.Allow(c.Request.Context(), cap)
		if err != nil {
			logger.Error("admission check failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"status": "error",
				"msg":    "Order processing failed",
			})
			c.Abort()
			return
		}
		if !allowed {
			c.Redirect(http.StatusFound, waitingRoomURL)
			c.Abort()
			return
		}
		c.Next()
	}
}
