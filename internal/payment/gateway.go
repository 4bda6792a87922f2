package payment

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Gateway sends a charge to one mobile-money provider and returns the
// provider's correlation id. Any non-success answer is an ErrGateway.
type Gateway interface {
	Method() Method
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error)
}

const (
	gatewayTimeout = 30 * time.Second
	tracerName     = "eastleigh-be/payment"
)

var tracer = otel.Tracer(tracerName)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: gatewayTimeout}
}

func gatewayErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrGateway, fmt.Sprintf(format, args...))
}

func startGatewaySpan(ctx context.Context, method Method, receipt string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Gateway.Charge", trace.WithAttributes(
		attribute.String("payment.method", string(method)),
		attribute.String("payment.receipt_number", receipt),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "OK")
	}
	span.End()
}
