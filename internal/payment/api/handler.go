package api

import (
	"errors"
	"net/http"

	"eastleigh-be/internal/logger"
	"eastleigh-be/internal/payment"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type initiateRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	UserID      string `json:"userId" binding:"required"`
	PropertyID  string `json:"propertyId" binding:"required"`
}

type Handler struct {
	svc payment.Service
}

func NewHandler(svc payment.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) StkPush(c *gin.Context) {
	h.initiate(c, payment.MethodMpesa)
}

func (h *Handler) EvcPlus(c *gin.Context) {
	h.initiate(c, payment.MethodEVC)
}

func (h *Handler) initiate(c *gin.Context, method payment.Method) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.svc.Initiate(c.Request.Context(), payment.InitiateInput{
		Method:      method,
		PhoneNumber: req.PhoneNumber,
		UserID:      req.UserID,
		PropertyID:  req.PropertyID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":   true,
		"data":      res.GatewayResponse,
		"paymentId": res.Payment.ID,
	})
}

func (h *Handler) Status(c *gin.Context) {
	p, err := h.svc.GetStatus(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": p.View()})
}

func (h *Handler) ByProperty(c *gin.Context) {
	propertyID := c.Param("propertyId")
	if _, err := uuid.Parse(propertyID); err != nil {
		fail(c, http.StatusBadRequest, "Invalid property ID.")
		return
	}

	p, err := h.svc.GetByProperty(c.Request.Context(), propertyID)
	if errors.Is(err, payment.ErrPaymentNotFound) {
		fail(c, http.StatusNotFound, "Payment not found for this property.")
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Payment data retrieved successfully.",
		"payment": p.View(),
	})
}

// writeError maps the payment error taxonomy onto status codes. Internal
// errors are logged and never echoed to the client.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, payment.ErrValidation), errors.Is(err, payment.ErrUnknownProvider):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrPropertyNotFound):
		fail(c, http.StatusNotFound, "Property not found, cannot proceed with payment")
	case errors.Is(err, payment.ErrUserNotFound):
		fail(c, http.StatusNotFound, "Cannot proceed with payment. User not found in the database")
	case errors.Is(err, payment.ErrPaymentNotFound):
		fail(c, http.StatusNotFound, "Payment not found")
	case errors.Is(err, payment.ErrGateway):
		fail(c, http.StatusInternalServerError, "Failed to make payment: "+err.Error())
	default:
		logger.FromCtx(c.Request.Context()).Error("payment request failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Internal server error")
	}
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}
