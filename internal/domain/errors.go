package domain

import "errors"

type ErrorKind string

const (
	KindInvalidBookingPayload   ErrorKind = "InvalidBookingPayload"
	KindTermsNotAccepted        ErrorKind = "TermsNotAccepted"
	KindBookingNotFound         ErrorKind = "BookingNotFound"
	KindBookingNotPayable       ErrorKind = "BookingNotPayable"
	KindBookingNotCancellable   ErrorKind = "BookingNotCancellable"
	KindPaymentDetailsInvalid   ErrorKind = "PaymentDetailsInvalid"
	KindPaymentNotVerified      ErrorKind = "PaymentNotVerified"
	KindInvalidWebhookSignature ErrorKind = "InvalidWebhookSignature"
	KindTransactionNotFound     ErrorKind = "TransactionNotFound"
	KindNotRefundable           ErrorKind = "NotRefundable"
	KindTicketNotFound          ErrorKind = "TicketNotFound"
	KindInvalidRequest          ErrorKind = "InvalidRequest"
	KindUnauthorized            ErrorKind = "Unauthorized"
	KindForbidden               ErrorKind = "Forbidden"
	KindInternal                ErrorKind = "InternalError"
)

// Error carries a kind from the error taxonomy and a user-facing message.
// Err holds the underlying cause, which is never shown to callers.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the taxonomy kind of err; unclassified errors are internal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message for err, hiding internal details.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Kind != KindInternal {
		return de.Message
	}
	return "internal server error"
}
