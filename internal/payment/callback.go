package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"eastleigh-be/internal/logger"
	"eastleigh-be/internal/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const callbackDateLayout = "20060102150405"

// Metadata item names sent by Daraja on a successful STK callback.
const (
	itemAmount          = "Amount"
	itemReceiptNumber   = "MpesaReceiptNumber"
	itemTransactionDate = "TransactionDate"
	itemPhoneNumber     = "PhoneNumber"
)

var callbackValidator = validator.New()

type CallbackItem struct {
	Name  string          `json:"Name" validate:"required"`
	Value json.RawMessage `json:"Value,omitempty"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item" validate:"dive"`
}

type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID" validate:"required"`
	CheckoutRequestID string            `json:"CheckoutRequestID" validate:"required"`
	ResultCode        *int              `json:"ResultCode" validate:"required"`
	ResultDesc        string            `json:"ResultDesc" validate:"required"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type stkBody struct {
	STKCallback *STKCallback `json:"stkCallback" validate:"required"`
}

type callbackEnvelope struct {
	Body *stkBody `json:"Body" validate:"required"`
}

// ParseCallback decodes and validates a raw gateway callback. Any shape
// problem is reported as ErrValidation.
func ParseCallback(raw []byte) (*STKCallback, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: callback is not valid JSON", ErrValidation)
	}

	if err := callbackValidator.Struct(env); err != nil {
		var fields validator.ValidationErrors
		if !errors.As(err, &fields) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		missing := make([]string, 0, len(fields))
		for _, fe := range fields {
			missing = append(missing, strings.TrimPrefix(fe.Namespace(), "callbackEnvelope."))
		}
		return nil, fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	return env.Body.STKCallback, nil
}

func (cb *STKCallback) Succeeded() bool {
	return cb.ResultCode != nil && *cb.ResultCode == 0
}

func (cb *STKCallback) item(name string) (json.RawMessage, bool) {
	if cb.CallbackMetadata == nil {
		return nil, false
	}
	for _, it := range cb.CallbackMetadata.Item {
		if it.Name == name && len(it.Value) > 0 && string(it.Value) != "null" {
			return it.Value, true
		}
	}
	return nil, false
}

// scalar returns a metadata value as text whether it was sent as a JSON
// string or a JSON number.
func scalar(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(v))
}

// Completion extracts the optional fields of a success callback. Fields that
// are absent or unparseable stay nil and leave the stored value unchanged.
func (cb *STKCallback) Completion(loc *time.Location) Completion {
	var c Completion

	if v, ok := cb.item(itemAmount); ok {
		if amount, err := decimal.NewFromString(scalar(v)); err == nil {
			c.Amount = &amount
		}
	}
	if v, ok := cb.item(itemReceiptNumber); ok {
		if s := scalar(v); s != "" {
			c.ProviderReceipt = &s
		}
	}
	if v, ok := cb.item(itemTransactionDate); ok {
		if t, err := time.ParseInLocation(callbackDateLayout, scalar(v), loc); err == nil {
			c.TransactionDate = &t
		}
	}
	if v, ok := cb.item(itemPhoneNumber); ok {
		if s := scalar(v); s != "" {
			c.PhoneNumber = &s
		}
	}
	return c
}

// Reconciler applies gateway callbacks to pending payments.
type Reconciler struct {
	repo    Repository
	metrics *metrics.Payments
	loc     *time.Location
}

func NewReconciler(repo Repository, m *metrics.Payments) *Reconciler {
	return &Reconciler{repo: repo, metrics: m, loc: nairobiLocation()}
}

// Reconcile moves the payment named by the callback into its terminal state.
// Repeated delivery of the same callback is a no-op that returns nil.
func (r *Reconciler) Reconcile(ctx context.Context, raw []byte) (err error) {
	ctx, span := tracer.Start(ctx, "Payment.Reconcile")
	defer func() { endSpan(span, err) }()

	log := logger.FromCtx(ctx)

	cb, err := ParseCallback(raw)
	if err != nil {
		r.metrics.Callback(metrics.OutcomeMalformed)
		log.Warn("Rejected malformed callback", zap.Error(err))
		return err
	}

	span.SetAttributes(
		attribute.String("payment.transaction_id", cb.CheckoutRequestID),
		attribute.Int("payment.result_code", *cb.ResultCode),
	)
	log = log.With(
		zap.String("transaction_id", cb.CheckoutRequestID),
		zap.Int("result_code", *cb.ResultCode),
		zap.String("result_desc", cb.ResultDesc),
	)

	callbackID, saveErr := r.repo.SaveCallback(ctx, cb.CheckoutRequestID, *cb.ResultCode, raw)
	if saveErr != nil {
		log.Warn("Failed to record callback", zap.Error(saveErr))
	}

	outcome, err := r.apply(ctx, log, cb)
	r.metrics.Callback(outcome)

	if saveErr == nil {
		r.markCallback(ctx, log, callbackID, err)
	}
	return err
}

func (r *Reconciler) apply(ctx context.Context, log *zap.Logger, cb *STKCallback) (string, error) {
	p, err := r.repo.GetByTransactionID(ctx, cb.CheckoutRequestID)
	if errors.Is(err, ErrPaymentNotFound) {
		log.Warn("Callback for unknown transaction")
		return metrics.OutcomeNotFound, err
	}
	if err != nil {
		log.Error("Failed to load payment for callback", zap.Error(err))
		return metrics.OutcomeError, err
	}

	if p.PaymentStatus.Terminal() {
		log.Info("Duplicate callback ignored", zap.String("payment_status", string(p.PaymentStatus)))
		return metrics.OutcomeDuplicate, nil
	}

	var updated bool
	if cb.Succeeded() {
		updated, err = r.repo.CompletePending(ctx, cb.CheckoutRequestID, cb.Completion(r.loc))
	} else {
		updated, err = r.repo.FailPending(ctx, cb.CheckoutRequestID)
	}
	if err != nil {
		log.Error("Failed to update payment from callback", zap.Error(err))
		return metrics.OutcomeError, err
	}

	// A concurrent delivery of the same callback won the conditional update.
	if !updated {
		log.Info("Payment already reconciled by a concurrent callback")
		return metrics.OutcomeDuplicate, nil
	}

	if cb.Succeeded() {
		log.Info("Payment completed")
	} else {
		log.Info("Payment failed")
	}
	return metrics.OutcomeSuccess, nil
}

func (r *Reconciler) markCallback(ctx context.Context, log *zap.Logger, id int64, procErr error) {
	var err error
	if procErr != nil {
		err = r.repo.MarkCallbackFailed(ctx, id, procErr.Error())
	} else {
		err = r.repo.MarkCallbackProcessed(ctx, id)
	}
	if err != nil {
		log.Warn("Failed to update callback log", zap.Int64("callback_id", id), zap.Error(err))
	}
}
