package response

import "fmt"

// Error is the structured error returned to API clients. Kind is a stable
// machine-readable identifier so the frontend can branch on it without
// parsing messages.
type Error struct {
	StatusCode int         `json:"-"`
	Kind       string      `json:"kind"`
	Message    string      `json:"message"`
	Messages   []string    `json:"messages"`
	Result     interface{} `json:"result"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("HTTP %d (%s): %s", e.StatusCode, e.Kind, e.Message)
}

func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

func (e *Error) WithKind(kind string) *Error {
	e.Kind = kind
	return e
}

func (e *Error) AddMessages(msgs ...string) *Error {
	e.Messages = append(e.Messages, msgs...)
	return e
}

func (e *Error) WithResult(result interface{}) *Error {
	e.Result = result
	return e
}

func makeError(status int, kind string) *Error {
	return &Error{
		StatusCode: status,
		Kind:       kind,
		Messages:   make([]string, 0),
		Result:     []string{},
	}
}

// -----------------------------------------------

func ErrUnexpected() *Error {
	return makeError(500, "unexpected").
		WithMessage("An unexpected error has occured")
}

func ErrBadRequest() *Error {
	return makeError(400, "invalid-input").
		WithMessage("Bad request")
}

func ErrUnauthorized() *Error {
	return makeError(401, "unauthorized").
		WithMessage("Unauthorized")
}

func ErrForbidden() *Error {
	return makeError(403, "forbidden").
		WithMessage("Forbidden")
}

func ErrNotFound() *Error {
	return makeError(404, "not-found").
		WithMessage("Requested resources not found")
}

func ErrConflict() *Error {
	return makeError(409, "conflict").
		WithMessage("Conflict")
}

func ErrTooManyRequests() *Error {
	return makeError(429, "rate-limited").
		WithMessage("Too many requests")
}

func ErrInvalidJson() *Error {
	return ErrBadRequest().AddMessages("Invalid JSON body")
}

func ErrNoBearer() *Error {
	return ErrUnauthorized().AddMessages("No valid Bearer token found in header")
}

// -----------------------------------------------
// Entitlement and payment business errors

func ErrEntitlementInactive(reason string) *Error {
	return makeError(403, "entitlement-inactive").
		WithMessage("Your package is not active").
		AddMessages(fmt.Sprintf("Package status: %s", reason)).
		WithResult(map[string]string{"reason": reason})
}

func ErrInsufficientQuota(needed, remaining int64) *Error {
	return makeError(403, "insufficient-quota").
		WithMessage(fmt.Sprintf("Insufficient contacts. You need %d contacts but only have %d remaining.", needed, remaining)).
		WithResult(map[string]int64{
			"contactsNeeded":    needed,
			"contactsRemaining": remaining,
		})
}

func ErrInvalidSignature() *Error {
	return makeError(400, "invalid-signature").
		WithMessage("Invalid payment signature")
}

func ErrPaymentProvider() *Error {
	return makeError(502, "payment-provider").
		WithMessage("Payment gateway request failed")
}

func ErrWebhook() *Error {
	return makeError(502, "conversion-failed").
		WithMessage("Card conversion failed, no contacts were deducted")
}
