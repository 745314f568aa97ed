// Package domain contains the core business entities for the settlement service.
package domain

import "errors"

// Domain errors - represent business rule violations.
var (
	// ErrInvalidRequest is returned for malformed requests.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrMemberNotFound is returned when FitStack Core does not know the member.
	ErrMemberNotFound = errors.New("member not found")

	// ErrPackageNotFound is returned for unknown or inactive packages.
	ErrPackageNotFound = errors.New("package not found")

	// ErrPaymentNotFound is returned when no payment matches an id or order id.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrMembershipNotFound is returned when no membership matches an id.
	ErrMembershipNotFound = errors.New("membership not found")

	// ErrGatewayUnavailable is a transport failure or timeout talking to the gateway.
	// The caller may retry; the pending payment is kept.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrGatewayRejected is returned when the gateway refuses to create the charge.
	ErrGatewayRejected = errors.New("payment gateway rejected the charge")

	// ErrInvalidCorrelation is returned when the correlation blob cannot be decoded.
	ErrInvalidCorrelation = errors.New("invalid correlation data")

	// ErrAmountMismatch is returned when a callback amount differs from the stored amount.
	ErrAmountMismatch = errors.New("callback amount does not match payment")

	// ErrCorrelationMismatch is returned when a callback names another member or package.
	ErrCorrelationMismatch = errors.New("callback correlation does not match payment")

	// ErrInvalidTransition is returned when a membership is not in the required state.
	ErrInvalidTransition = errors.New("invalid membership state transition")

	// ErrNoSessionsLeft is returned when a membership has no session credit left.
	ErrNoSessionsLeft = errors.New("no training sessions left")

	// ErrForbidden is returned when a member acts on someone else's resource.
	ErrForbidden = errors.New("forbidden")

	// ErrLockTimeout is returned when the per-order lock cannot be acquired in time.
	ErrLockTimeout = errors.New("timed out waiting for order lock")
)

// ServiceError wraps errors with additional context.
type ServiceError struct {
	Err     error
	Message string
	Code    string
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(err error, message, code string) *ServiceError {
	return &ServiceError{Err: err, Message: message, Code: code}
}
