// Package handlers binds the ingestion HTTP surface to IngestionService,
// translating outcomes to specific status codes and body shapes as plain
// gin.HandlerFunc methods returning gin.H bodies.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flashgate/flashgate/internal/domain/order"
)

// IngestionService is the subset of services.IngestionService the handler
// needs, kept as an interface so handler tests can use a fake.
type IngestionService interface {
	Init(ctx context.Context, productID string, quantity int) error
	Order(ctx context.Context, productID, userID, idempotencyToken string) error
}

// OrderHandler exposes POST /init and POST /order.
type OrderHandler struct {
	service IngestionService
	logger  *zap.Logger
}

// NewOrderHandler binds a handler to the given service.
func NewOrderHandler(service IngestionService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{service: service, logger: logger}
}

type initRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"`
}

// Init handles POST /init.
func (h *OrderHandler) Init(c *gin.Context) {
	var req initRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "msg": "invalid request"})
		return
	}

	if err := h.service.Init(c.Request.Context(), req.ProductID, req.Quantity); err != nil {
		if errors.Is(err, order.ErrUnknownProduct) {
			c.JSON(http.StatusConflict, gin.H{"status": "product_unknown", "msg": "product has no durable row yet"})
			return
		}
		h.logger.Error("init failed", zap.String("product_id", req.ProductID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "msg": "init failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "msg": "product initialized"})
}

type orderRequest struct {
	ProductID string `json:"productId"`
	UserID    string `json:"userId"`
}

// Order handles POST /order. Admission (step 1) has already run in
// middleware by the time this is reached.
func (h *OrderHandler) Order(c *gin.Context) {
	idempotencyKey := c.GetHeader("x-idempotency-key")

	var req orderRequest
	// Body is optional-ish in shape; missing fields are caught by
	// ValidateRequest rather than gin binding, so every bad_request case
	// funnels through one code path.
	_ = c.ShouldBindJSON(&req)

	err := h.service.Order(c.Request.Context(), req.ProductID, req.UserID, idempotencyKey)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "success", "msg": "Order accepted"})
	case errors.Is(err, order.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing Idempotency Key"})
	case errors.Is(err, order.ErrDuplicate):
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "msg": "Duplicate request"})
	case errors.Is(err, order.ErrSoldOut):
		c.JSON(http.StatusConflict, gin.H{"status": "sold_out", "msg": "Inventory empty"})
	default:
		h.logger.Error("order processing failed",
			zap.String("product_id", req.ProductID),
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "msg": "Order processing failed"})
	}
}
