package payment

import "errors"

var (
	// -- Validation --
	ErrValidation      = errors.New("validation failed")
	ErrUnknownProvider = errors.New("unsupported payment provider")

	// -- Resource State --
	ErrUserNotFound     = errors.New("user not found")
	ErrPropertyNotFound = errors.New("property not found")
	ErrPaymentNotFound  = errors.New("payment not found")

	// -- External Systems --
	ErrGateway = errors.New("gateway error")
)
