package payment

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/provider/paypal"
	"github.com/Domenick1991/skybooking/internal/provider/stripe"
	"github.com/Domenick1991/skybooking/internal/validation"
	"github.com/lithammer/shortuuid/v3"
)

// Processor validates and settles one payment method.
type Processor interface {
	Method() domain.PaymentMethod
	// Validate checks the shape of details and returns a PaymentDetailsInvalid error.
	Validate(details domain.PaymentDetails) error
	// Settle verifies or captures the payment and returns its settlement reference.
	Settle(ctx context.Context, booking *domain.Booking, details domain.PaymentDetails) (string, error)
}

type StripeGateway interface {
	GetPaymentIntent(ctx context.Context, id string) (*stripe.Intent, error)
	ConfirmPaymentIntent(ctx context.Context, id string) (*stripe.Intent, error)
	CreatePaymentIntent(ctx context.Context, amountCents int64, currency, bookingID string) (*stripe.Intent, error)
	Refund(ctx context.Context, intentID string) error
}

type PayPalGateway interface {
	GetOrder(ctx context.Context, orderID string) (*paypal.Order, error)
	CreateOrder(ctx context.Context, amountCents int64, currency, bookingID string) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypal.Order, error)
	RefundOrder(ctx context.Context, orderID string) error
}

func notVerified(message string, err error) error {
	return domain.WrapError(domain.KindPaymentNotVerified, message, err)
}

func invalidDetails(message string) error {
	return domain.NewError(domain.KindPaymentDetailsInvalid, message)
}

// cardProcessor is the demo path: structural checks only, no gateway call.
type cardProcessor struct {
	schema validation.Schema
}

func newCardProcessor(now func() time.Time) *cardProcessor {
	return &cardProcessor{
		schema: validation.Schema{
			"cardNumber": {
				validation.Required("Card number is required"),
				validation.Pattern(`^\d{16}$`, "Card number must be 16 digits"),
			},
			"expiryDate": {
				validation.Required("Expiry date is required"),
				validation.Pattern(`^(0[1-9]|1[0-2])/\d{2}$`, "Expiry date must be in MM/YY format"),
				validation.Custom(func(v string) bool { return !cardExpired(v, now()) }, "Card has expired"),
			},
			"cvv": {
				validation.Required("CVV is required"),
				validation.Pattern(`^\d{3,4}$`, "CVV must be 3 or 4 digits"),
			},
			"cardholderName": {validation.Required("Cardholder name is required")},
			"country":        {validation.Required("Country is required")},
		},
	}
}

func (p *cardProcessor) Method() domain.PaymentMethod { return domain.PaymentMethodCard }

func (p *cardProcessor) Validate(details domain.PaymentDetails) error {
	card, ok := details.(domain.CardDetails)
	if !ok {
		return invalidDetails("card details expected")
	}
	form := validation.NewForm(p.schema)
	values := map[string]string{
		"cardNumber":     strings.NewReplacer(" ", "", "-", "").Replace(card.CardNumber),
		"expiryDate":     strings.TrimSpace(card.ExpiryDate),
		"cvv":            strings.TrimSpace(card.CVV),
		"cardholderName": card.CardholderName,
		"country":        card.Country,
	}
	if !form.ValidateForm(values) {
		return invalidDetails("Invalid card details: " + form.Errors().String())
	}
	return nil
}

func (p *cardProcessor) Settle(context.Context, *domain.Booking, domain.PaymentDetails) (string, error) {
	return "card_" + shortuuid.New(), nil
}

// cardExpired reports whether an MM/YY expiry lies before the current month.
// Unparseable values are left to the format rule.
func cardExpired(expiry string, now time.Time) bool {
	parts := strings.Split(strings.TrimSpace(expiry), "/")
	if len(parts) != 2 {
		return false
	}
	month, err1 := strconv.Atoi(parts[0])
	year, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || month < 1 || month > 12 {
		return false
	}
	year += 2000
	return year < now.Year() || (year == now.Year() && month < int(now.Month()))
}

type stripeProcessor struct {
	gateway StripeGateway
}

func (p *stripeProcessor) Method() domain.PaymentMethod { return domain.PaymentMethodStripe }

func (p *stripeProcessor) Validate(details domain.PaymentDetails) error {
	d, ok := details.(domain.StripeDetails)
	if !ok {
		return invalidDetails("stripe details expected")
	}
	if strings.TrimSpace(d.PaymentIntentID) == "" {
		return invalidDetails("stripePaymentIntentId is required")
	}
	return nil
}

func (p *stripeProcessor) Settle(ctx context.Context, booking *domain.Booking, details domain.PaymentDetails) (string, error) {
	id := details.(domain.StripeDetails).PaymentIntentID

	intent, err := p.gateway.GetPaymentIntent(ctx, id)
	if err != nil {
		return "", notVerified("Stripe payment could not be verified", err)
	}
	if intent.BookingID != "" && intent.BookingID != booking.ID {
		return "", notVerified("Stripe payment belongs to a different booking", nil)
	}
	if intent.AmountCents != 0 && intent.AmountCents != booking.TotalCents {
		return "", notVerified(fmt.Sprintf("Stripe payment amount %d does not match booking total %d", intent.AmountCents, booking.TotalCents), nil)
	}

	if intent.Status == stripe.StatusRequiresConfirmation {
		intent, err = p.gateway.ConfirmPaymentIntent(ctx, id)
		if err != nil {
			return "", notVerified("Stripe payment could not be confirmed", err)
		}
	}

	switch intent.Status {
	case stripe.StatusSucceeded, stripe.StatusRequiresAction:
		return intent.ID, nil
	default:
		return "", notVerified(fmt.Sprintf("Stripe payment status is %s", intent.Status), nil)
	}
}

type paypalProcessor struct {
	gateway PayPalGateway
}

func (p *paypalProcessor) Method() domain.PaymentMethod { return domain.PaymentMethodPayPal }

func (p *paypalProcessor) Validate(details domain.PaymentDetails) error {
	d, ok := details.(domain.PayPalDetails)
	if !ok {
		return invalidDetails("paypal details expected")
	}
	if strings.TrimSpace(d.OrderID) == "" || strings.TrimSpace(d.PayerID) == "" {
		return invalidDetails("paypalOrderId and paypalPayerId are required")
	}
	return nil
}

// Settle accepts an approved order, capturing it, or an order the client
// already captured through the capture endpoint.
func (p *paypalProcessor) Settle(ctx context.Context, _ *domain.Booking, details domain.PaymentDetails) (string, error) {
	d := details.(domain.PayPalDetails)

	order, err := p.gateway.GetOrder(ctx, d.OrderID)
	if err != nil {
		return "", notVerified("PayPal payment could not be verified", err)
	}
	if order.Payer.PayerID != d.PayerID {
		return "", notVerified("PayPal payer does not match the order", nil)
	}

	switch order.Status {
	case paypal.StatusApproved:
		captured, err := p.gateway.CaptureOrder(ctx, d.OrderID)
		if err != nil {
			return "", notVerified("PayPal payment could not be captured", err)
		}
		if captured.Status != paypal.StatusCompleted {
			return "", notVerified(fmt.Sprintf("PayPal capture status is %s", captured.Status), nil)
		}
	case paypal.StatusCompleted:
	default:
		return "", notVerified(fmt.Sprintf("PayPal order status is %s", order.Status), nil)
	}
	return order.ID, nil
}
