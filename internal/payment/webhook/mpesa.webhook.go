package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	"eastleigh-be/internal/logger"
	"eastleigh-be/internal/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxCallbackBytes = 1 << 20

// Reconciler applies a raw gateway callback.
type Reconciler interface {
	Reconcile(ctx context.Context, raw []byte) error
}

type Handler struct {
	Reconciler Reconciler
}

func NewWebhookHandler(r Reconciler) *Handler {
	return &Handler{Reconciler: r}
}

// MpesaCallback receives Daraja STK callbacks. Any 2xx stops the gateway from
// redelivering, so duplicates are acknowledged with 200 as well.
func (h *Handler) MpesaCallback(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromCtx(ctx)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Failed to read callback body"})
		return
	}

	err = h.Reconciler.Reconcile(ctx, body)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Callback processed successfully"})
	case errors.Is(err, payment.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid callback format"})
	case errors.Is(err, payment.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Payment not found"})
	default:
		log.Error("Callback processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to process callback"})
	}
}
