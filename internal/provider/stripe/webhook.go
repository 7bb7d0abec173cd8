package stripe

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Domenick1991/skybooking/internal/domain"
	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Configured reports whether deliveries can be verified at all.
func (v *WebhookVerifier) Configured() bool {
	return v.secret != ""
}

// Verify checks the Stripe-Signature header against the raw payload and
// extracts the payment intent the event refers to. Without a secret every
// delivery is rejected.
func (v *WebhookVerifier) Verify(payload []byte, signature string) (domain.ProviderEvent, error) {
	if v.secret == "" {
		return domain.ProviderEvent{}, domain.NewError(domain.KindInvalidWebhookSignature, "webhook secret is not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return domain.ProviderEvent{}, domain.WrapError(domain.KindInvalidWebhookSignature, "invalid webhook signature", err)
	}

	out := domain.ProviderEvent{ID: event.ID, Type: string(event.Type)}
	if !strings.HasPrefix(out.Type, "payment_intent.") || event.Data == nil {
		return out, nil
	}

	var pi stripeapi.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return domain.ProviderEvent{}, fmt.Errorf("failed to decode payment intent from event %s: %w", event.ID, err)
	}
	out.Reference = pi.ID
	out.BookingID = pi.Metadata[MetadataBookingID]
	return out, nil
}
