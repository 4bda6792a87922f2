package payment

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"eastleigh-be/internal/config"
	"eastleigh-be/internal/logger"
	"eastleigh-be/internal/metrics"
	"eastleigh-be/internal/phone"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const listingDescription = "Payment for Property Listing"

var phoneInput = regexp.MustCompile(`^\+?[0-9 ]{9,16}$`)

// ReceiptSequencer hands out the next human-facing receipt number.
type ReceiptSequencer interface {
	Next(ctx context.Context) (string, error)
}

type UserLookup interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

type PropertyLookup interface {
	ExistsActive(ctx context.Context, propertyID string) (bool, error)
}

// Service is the payment initiator and the read side used for polling.
type Service interface {
	Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error)
	GetStatus(ctx context.Context, transactionID string) (*Payment, error)
	GetByProperty(ctx context.Context, propertyID string) (*Payment, error)
}

type service struct {
	repo       Repository
	receipts   ReceiptSequencer
	users      UserLookup
	properties PropertyLookup
	gateways   map[Method]Gateway
	amounts    config.Amounts
	metrics    *metrics.Payments
	now        func() time.Time
}

func NewService(
	repo Repository,
	receipts ReceiptSequencer,
	users UserLookup,
	properties PropertyLookup,
	amounts config.Amounts,
	m *metrics.Payments,
	gateways ...Gateway,
) Service {
	byMethod := make(map[Method]Gateway, len(gateways))
	for _, g := range gateways {
		byMethod[g.Method()] = g
	}

	return &service{
		repo:       repo,
		receipts:   receipts,
		users:      users,
		properties: properties,
		gateways:   byMethod,
		amounts:    amounts,
		metrics:    m,
		now:        time.Now,
	}
}

func validateInitiate(in InitiateInput) error {
	var problems []string

	p := strings.TrimSpace(in.PhoneNumber)
	switch {
	case p == "":
		problems = append(problems, "phone number is required")
	case !phoneInput.MatchString(p):
		problems = append(problems, "phone number is invalid")
	}
	if strings.TrimSpace(in.UserID) == "" {
		problems = append(problems, "user id is required")
	}
	if strings.TrimSpace(in.PropertyID) == "" {
		problems = append(problems, "property id is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, ", "))
	}
	return nil
}

func regionFor(m Method) phone.Region {
	if m == MethodEVC {
		return phone.Somalia
	}
	return phone.Kenya
}

// Initiate charges the payer through the selected gateway and records the
// attempt as PENDING. Nothing is persisted unless the gateway accepts.
func (s *service) Initiate(ctx context.Context, in InitiateInput) (_ *InitiateResult, err error) {
	ctx, span := tracer.Start(ctx, "Payment.Initiate", trace.WithAttributes(
		attribute.String("payment.method", string(in.Method)),
		attribute.String("payment.property_id", in.PropertyID),
	))
	defer func() { endSpan(span, err) }()

	log := logger.FromCtx(ctx).With(
		zap.String("provider", string(in.Method)),
		zap.String("user_id", in.UserID),
		zap.String("property_id", in.PropertyID),
	)

	outcome := metrics.OutcomeError
	defer func() { s.metrics.Initiation(string(in.Method), outcome) }()

	gw, ok := s.gateways[in.Method]
	if !ok {
		outcome = metrics.OutcomeRejected
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, in.Method)
	}

	if err := validateInitiate(in); err != nil {
		outcome = metrics.OutcomeRejected
		log.Warn("Rejected payment initiation", zap.Error(err))
		return nil, err
	}

	normalized := phone.Normalize(in.PhoneNumber, regionFor(in.Method))

	// Issued before the charge; a failed charge simply leaves the number unused.
	receiptNumber, err := s.receipts.Next(ctx)
	if err != nil {
		log.Error("Failed to generate receipt number", zap.Error(err))
		return nil, fmt.Errorf("generate receipt number: %w", err)
	}
	log = log.With(zap.String("receipt_number", receiptNumber))

	exists, err := s.properties.ExistsActive(ctx, in.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("check property %s: %w", in.PropertyID, err)
	}
	if !exists {
		outcome = metrics.OutcomeNotFound
		log.Warn("Payment initiation for unknown property")
		return nil, ErrPropertyNotFound
	}

	exists, err = s.users.Exists(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("check user %s: %w", in.UserID, err)
	}
	if !exists {
		outcome = metrics.OutcomeNotFound
		log.Warn("Payment initiation for unknown user")
		return nil, ErrUserNotFound
	}

	amount := s.amounts.Mpesa
	if in.Method == MethodEVC {
		amount = s.amounts.EvcPlus
	}

	timer := metrics.StartTimer()
	resp, err := gw.Charge(ctx, ChargeRequest{
		PhoneNumber:   normalized,
		Amount:        amount,
		ReceiptNumber: receiptNumber,
		Description:   listingDescription,
	})
	s.metrics.ObserveGateway(string(in.Method), timer.Duration())
	if err != nil {
		outcome = metrics.OutcomeRejected
		return nil, err
	}

	p := &Payment{
		TransactionID:   resp.TransactionID,
		ReceiptNumber:   receiptNumber,
		Amount:          amount,
		PhoneNumber:     normalized,
		PaymentMethod:   in.Method,
		PaymentStatus:   StatusPending,
		TransactionDate: s.now(),
		UserID:          in.UserID,
		PropertyID:      in.PropertyID,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		log.Error("Gateway accepted charge but payment could not be stored",
			zap.String("transaction_id", resp.TransactionID),
			zap.Error(err),
		)
		return nil, err
	}

	outcome = metrics.OutcomeSuccess
	log.Info("Payment initiated",
		zap.String("transaction_id", p.TransactionID),
		zap.String("payment_id", p.ID.String()),
	)

	return &InitiateResult{Payment: p, GatewayResponse: resp.Raw}, nil
}

func (s *service) GetStatus(ctx context.Context, transactionID string) (*Payment, error) {
	if strings.TrimSpace(transactionID) == "" {
		return nil, fmt.Errorf("%w: transaction id is required", ErrValidation)
	}
	return s.repo.GetByTransactionID(ctx, transactionID)
}

func (s *service) GetByProperty(ctx context.Context, propertyID string) (*Payment, error) {
	if strings.TrimSpace(propertyID) == "" {
		return nil, fmt.Errorf("%w: property id is required", ErrValidation)
	}
	return s.repo.GetByPropertyID(ctx, propertyID)
}
