package store

import "errors"

// Stable wire codes for the sentinel errors.
const (
	CodeInsufficientFunds      = "INSUFFICIENT_FUNDS"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeIdempotencyKeyReuse    = "IDEMPOTENCY_KEY_REUSE_CONFLICT"
	CodeRequestInFlight        = "REQUEST_IN_FLIGHT"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeUnauthenticated        = "UNAUTHENTICATED"
	CodeProviderTransient      = "PROVIDER_TRANSIENT"
	CodeNotFound               = "NOT_FOUND"
	CodeNotEligible            = "NOT_ELIGIBLE"
	CodeInvalidAmount          = "INVALID_AMOUNT"
	CodeReasonRequired         = "REASON_REQUIRED"
	CodeBadRequest             = "BAD_REQUEST"
	CodeDuplicateTransaction   = "DUPLICATE_TRANSACTION"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeInternal               = "INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrInvalidStateTransition, CodeInvalidStateTransition},
	{ErrIdempotencyKeyReuse, CodeIdempotencyKeyReuse},
	{ErrRequestInFlight, CodeRequestInFlight},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrUnauthenticated, CodeUnauthenticated},
	{ErrProviderTransient, CodeProviderTransient},
	{ErrNotFound, CodeNotFound},
	{ErrNotEligible, CodeNotEligible},
	{ErrInvalidAmount, CodeInvalidAmount},
	{ErrReasonRequired, CodeReasonRequired},
	{ErrBadRequest, CodeBadRequest},
	{ErrDuplicateTransaction, CodeDuplicateTransaction},
	{ErrConcurrentModification, CodeConcurrentModification},
}

// Code returns the wire code for err, CodeInternal when err wraps no sentinel.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// ErrorForCode maps a wire code back to its sentinel, nil when unknown.
func ErrorForCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}

// IsBusiness reports whether err is a deterministic outcome of the request
// itself, as opposed to an infrastructure fault.
func IsBusiness(err error) bool {
	switch Code(err) {
	case CodeInternal, CodeProviderTransient, CodeRequestInFlight, CodeConcurrentModification, "":
		return false
	}
	return true
}
