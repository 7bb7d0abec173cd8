package stripe

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

const (
	StatusSucceeded            = "succeeded"
	StatusRequiresAction       = "requires_action"
	StatusRequiresConfirmation = "requires_confirmation"
	StatusCanceled             = "canceled"

	MetadataBookingID = "booking_id"
)

// Intent is the part of a Stripe PaymentIntent the booking flow relies on.
type Intent struct {
	ID           string
	Status       string
	AmountCents  int64
	Currency     string
	ClientSecret string
	BookingID    string
}

type Gateway struct {
	api *client.API
}

func NewGateway(secretKey string, timeout time.Duration) *Gateway {
	api := &client.API{}
	api.Init(secretKey, stripeapi.NewBackends(&http.Client{Timeout: timeout}))
	return &Gateway{api: api}
}

func (g *Gateway) GetPaymentIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripeapi.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent %s: %w", id, err)
	}
	return toIntent(pi), nil
}

func (g *Gateway) ConfirmPaymentIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripeapi.PaymentIntentConfirmParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Confirm(id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm payment intent %s: %w", id, err)
	}
	return toIntent(pi), nil
}

func (g *Gateway) CreatePaymentIntent(ctx context.Context, amountCents int64, currency, bookingID string) (*Intent, error) {
	params := &stripeapi.PaymentIntentParams{
		Amount:   stripeapi.Int64(amountCents),
		Currency: stripeapi.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripeapi.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripeapi.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataBookingID, bookingID)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return toIntent(pi), nil
}

func (g *Gateway) Refund(ctx context.Context, intentID string) error {
	params := &stripeapi.RefundParams{PaymentIntent: stripeapi.String(intentID)}
	params.Context = ctx
	if _, err := g.api.Refunds.New(params); err != nil {
		return fmt.Errorf("failed to refund payment intent %s: %w", intentID, err)
	}
	return nil
}

func toIntent(pi *stripeapi.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		ClientSecret: pi.ClientSecret,
		BookingID:    pi.Metadata[MetadataBookingID],
	}
}
