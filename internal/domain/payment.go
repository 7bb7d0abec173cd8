package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodStripe PaymentMethod = "stripe"
	PaymentMethodPayPal PaymentMethod = "paypal"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

type PaymentTransaction struct {
	ID            string
	BookingID     string
	UserID        string
	AmountCents   int64
	Currency      string
	Method        PaymentMethod
	Status        TransactionStatus
	Reference     string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PaymentDetails is the method-specific payload of a payment request.
type PaymentDetails interface {
	Method() PaymentMethod
	// Reference is the provider settlement reference known before verification, if any.
	Reference() string
}

type CardDetails struct {
	CardNumber     string `json:"cardNumber"`
	ExpiryDate     string `json:"expiryDate"`
	CVV            string `json:"cvv"`
	CardholderName string `json:"cardholderName"`
	Country        string `json:"country"`
}

func (CardDetails) Method() PaymentMethod { return PaymentMethodCard }
func (CardDetails) Reference() string     { return "" }

type StripeDetails struct {
	PaymentIntentID string `json:"stripePaymentIntentId"`
}

func (StripeDetails) Method() PaymentMethod { return PaymentMethodStripe }
func (d StripeDetails) Reference() string   { return d.PaymentIntentID }

type PayPalDetails struct {
	OrderID string `json:"paypalOrderId"`
	PayerID string `json:"paypalPayerId"`
}

func (PayPalDetails) Method() PaymentMethod { return PaymentMethodPayPal }
func (d PayPalDetails) Reference() string   { return d.OrderID }

// DecodePaymentDetails picks the variant matching method and decodes raw into it.
func DecodePaymentDetails(method PaymentMethod, raw json.RawMessage) (PaymentDetails, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var (
		details PaymentDetails
		err     error
	)
	switch method {
	case PaymentMethodCard:
		var d CardDetails
		err = json.Unmarshal(raw, &d)
		details = d
	case PaymentMethodStripe:
		var d StripeDetails
		err = json.Unmarshal(raw, &d)
		details = d
	case PaymentMethodPayPal:
		var d PayPalDetails
		err = json.Unmarshal(raw, &d)
		details = d
	default:
		return nil, NewError(KindPaymentDetailsInvalid, fmt.Sprintf("unsupported payment method %q", method))
	}
	if err != nil {
		return nil, WrapError(KindPaymentDetailsInvalid, "malformed payment details", err)
	}
	return details, nil
}

// ProviderEvent is a verified out-of-band notification from a payment provider.
type ProviderEvent struct {
	ID        string
	Type      string
	Reference string
	// BookingID comes from provider metadata and may be empty.
	BookingID string
}
