package errors

import "net/http"

// Code is the stable, client-visible identifier of an error class.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeAddressMissing    Code = "ADDRESS_MISSING"
	CodeEmptyCart         Code = "EMPTY_CART"
	CodeGatewayFailure    Code = "GATEWAY_FAILURE"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_CONFLICT"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Policy controls how a code is rendered to API clients.
type Policy struct {
	Status    int
	Retryable bool
	// Fallback replaces the error's own message when ShowMessage is false.
	Fallback    string
	ShowMessage bool
	ShowDetails bool
}

// PolicyFor returns the rendering policy of code. Unknown codes render as
// internal errors.
func PolicyFor(code Code) Policy {
	switch code {
	case CodeValidation:
		return Policy{Status: http.StatusBadRequest, Fallback: "validation failed", ShowMessage: true, ShowDetails: true}
	case CodeUnauthorized:
		return Policy{Status: http.StatusUnauthorized, Fallback: "authentication required", ShowMessage: true}
	case CodeForbidden:
		return Policy{Status: http.StatusForbidden, Fallback: "access denied", ShowMessage: true}
	case CodeNotFound:
		return Policy{Status: http.StatusNotFound, Fallback: "resource not found", ShowMessage: true}
	case CodeConflict:
		return Policy{Status: http.StatusConflict, Fallback: "conflict detected", ShowMessage: true}
	case CodeInvalidTransition:
		return Policy{Status: http.StatusConflict, Fallback: "status transition not allowed", ShowMessage: true, ShowDetails: true}
	case CodeInsufficientStock:
		return Policy{Status: http.StatusConflict, Fallback: "insufficient stock", ShowMessage: true, ShowDetails: true}
	case CodeAddressMissing:
		return Policy{Status: http.StatusUnprocessableEntity, Fallback: "add a shipping address before ordering", ShowMessage: true}
	case CodeEmptyCart:
		return Policy{Status: http.StatusUnprocessableEntity, Fallback: "cart is empty", ShowMessage: true}
	case CodeGatewayFailure:
		return Policy{Status: http.StatusBadGateway, Retryable: true, Fallback: "payment gateway error", ShowMessage: true, ShowDetails: true}
	case CodeIdempotency:
		return Policy{Status: http.StatusConflict, Fallback: "idempotency key reused with a different request", ShowMessage: true}
	case CodeDependency:
		return Policy{Status: http.StatusServiceUnavailable, Retryable: true, Fallback: "dependency unavailable", ShowDetails: true}
	default:
		return Policy{Status: http.StatusInternalServerError, Retryable: true, Fallback: "internal server error"}
	}
}

// Status is shorthand for PolicyFor(c).Status.
func (c Code) Status() int {
	return PolicyFor(c).Status
}
