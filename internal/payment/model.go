package payment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodMpesa Method = "MPESA"
	MethodEVC   Method = "EVC"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transition is defined out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Payment is one charge attempt against a gateway, keyed by the
// gateway-assigned TransactionID.
type Payment struct {
	ID              uuid.UUID
	TransactionID   string
	ReceiptNumber   string
	ProviderReceipt string
	Amount          decimal.Decimal
	PhoneNumber     string
	PaymentMethod   Method
	PaymentStatus   Status
	TransactionDate time.Time
	UserID          string
	PropertyID      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Completion carries the optional fields a successful callback may report.
// Nil fields leave the stored value unchanged.
type Completion struct {
	Amount          *decimal.Decimal
	ProviderReceipt *string
	TransactionDate *time.Time
	PhoneNumber     *string
}

type InitiateInput struct {
	Method      Method
	PhoneNumber string
	UserID      string
	PropertyID  string
}

type InitiateResult struct {
	Payment         *Payment
	GatewayResponse json.RawMessage
}

// ChargeRequest is what the initiator hands to a Gateway.
type ChargeRequest struct {
	PhoneNumber   string
	Amount        decimal.Decimal
	ReceiptNumber string
	Description   string
}

// ChargeResponse is the accepted gateway answer: the correlation id the
// callback will carry plus the untouched response body.
type ChargeResponse struct {
	TransactionID string
	Raw           json.RawMessage
}

// StatusView is the client-facing shape of a status query.
type StatusView struct {
	TransactionID   string          `json:"transactionId"`
	PaymentStatus   Status          `json:"paymentStatus"`
	AmountPaid      decimal.Decimal `json:"amountPaid"`
	ReceiptNumber   string          `json:"receiptNumber"`
	TransactionDate time.Time       `json:"transactionDate"`
	PhoneNumber     string          `json:"phoneNumber"`
	PaymentMethod   Method          `json:"paymentMethod"`
}

func (p *Payment) View() StatusView {
	return StatusView{
		TransactionID:   p.TransactionID,
		PaymentStatus:   p.PaymentStatus,
		AmountPaid:      p.Amount,
		ReceiptNumber:   p.ReceiptNumber,
		TransactionDate: p.TransactionDate,
		PhoneNumber:     p.PhoneNumber,
		PaymentMethod:   p.PaymentMethod,
	}
}
