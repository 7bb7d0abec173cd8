package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/keylock"
	"github.com/Domenick1991/skybooking/internal/metrics"
	"github.com/Domenick1991/skybooking/internal/repository"
	"github.com/sirupsen/logrus"
)

const (
	EventPaymentSucceeded      = "payment_intent.succeeded"
	EventPaymentFailed         = "payment_intent.payment_failed"
	EventPaymentCanceled       = "payment_intent.canceled"
	EventPaymentRequiresAction = "payment_intent.requires_action"

	actor = "webhook"
)

type EventVerifier interface {
	Verify(payload []byte, signature string) (domain.ProviderEvent, error)
}

type Bookings interface {
	GetBookingByID(ctx context.Context, bookingID string) (*domain.Booking, error)
	MarkConfirmed(ctx context.Context, bookingID, actor string) (*domain.Booking, bool, error)
	MarkCancelled(ctx context.Context, bookingID, actor string) (*domain.Booking, bool, error)
}

type Settlements interface {
	RecordSettlement(ctx context.Context, booking *domain.Booking, method domain.PaymentMethod, reference string) (*domain.PaymentTransaction, error)
}

// EventStore remembers processed provider event ids.
type EventStore interface {
	MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	ForgetEvent(ctx context.Context, eventID string) error
}

type ReconcilerUseCase interface {
	HandleProviderEvent(ctx context.Context, payload []byte, signature string) error
}

// Reconciler applies verified Stripe events to bookings. It shares the
// per-booking lock with the payment service so both paths serialize.
type Reconciler struct {
	verifier    EventVerifier
	bookings    Bookings
	payments    repository.PaymentRepository
	settlements Settlements

	events   EventStore
	eventTTL time.Duration
	locks    *keylock.KeyedMutex

	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

type ReconcilerOption func(*Reconciler)

func WithEventStore(store EventStore, ttl time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		r.events = store
		r.eventTTL = ttl
	}
}

func WithKeyedMutex(k *keylock.KeyedMutex) ReconcilerOption {
	return func(r *Reconciler) {
		r.locks = k
	}
}

func WithLogger(log logrus.FieldLogger) ReconcilerOption {
	return func(r *Reconciler) {
		r.log = log
	}
}

func WithMetrics(m *metrics.Metrics) ReconcilerOption {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

func NewReconciler(
	verifier EventVerifier,
	bookings Bookings,
	payments repository.PaymentRepository,
	settlements Settlements,
	opts ...ReconcilerOption,
) *Reconciler {
	r := &Reconciler{
		verifier:    verifier,
		bookings:    bookings,
		payments:    payments,
		settlements: settlements,
		eventTTL:    72 * time.Hour,
		locks:       keylock.New(),
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleProviderEvent verifies and applies one webhook delivery. Only a bad
// signature or a storage failure is returned; events that cannot be matched
// to a booking are logged and acknowledged.
func (r *Reconciler) HandleProviderEvent(ctx context.Context, payload []byte, signature string) error {
	event, err := r.verifier.Verify(payload, signature)
	if err != nil {
		r.metrics.WebhookEvent("unknown", "rejected")
		r.log.WithError(err).Warn("webhook signature rejected")
		return err
	}
	entry := r.log.WithFields(logrus.Fields{"event_id": event.ID, "event_type": event.Type})

	if r.events != nil && event.ID != "" {
		first, err := r.events.MarkEventProcessed(ctx, event.ID, r.eventTTL)
		switch {
		case err != nil:
			entry.WithError(err).Warn("event store unavailable, processing without dedup")
		case !first:
			r.metrics.WebhookEvent(event.Type, "duplicate")
			entry.Info("duplicate webhook event ignored")
			return nil
		}
	}

	result, err := r.apply(ctx, event, entry)
	if err != nil {
		r.metrics.WebhookEvent(event.Type, "error")
		entry.WithError(err).Error("failed to apply webhook event")
		r.forget(ctx, event.ID, entry)
		return err
	}
	r.metrics.WebhookEvent(event.Type, result)
	return nil
}

func (r *Reconciler) apply(ctx context.Context, event domain.ProviderEvent, entry logrus.FieldLogger) (string, error) {
	switch event.Type {
	case EventPaymentSucceeded, EventPaymentFailed, EventPaymentCanceled, EventPaymentRequiresAction:
	default:
		entry.Debug("webhook event type not handled")
		return "ignored", nil
	}

	booking, err := r.locate(ctx, event)
	if err != nil {
		return "", err
	}
	if booking == nil {
		entry.WithField("reference", event.Reference).Warn("webhook event for unknown booking dropped")
		return "dropped", nil
	}
	entry = entry.WithField("booking_id", booking.ID)

	unlock := r.locks.Lock(booking.ID)
	defer unlock()

	switch event.Type {
	case EventPaymentSucceeded:
		return r.confirm(ctx, booking.ID, event.Reference, entry)
	case EventPaymentFailed, EventPaymentCanceled:
		_, applied, err := r.bookings.MarkCancelled(ctx, booking.ID, actor)
		if err != nil {
			return "", err
		}
		if !applied {
			entry.Info("booking not pending, cancellation ignored")
			return "noop", nil
		}
		return "applied", nil
	default:
		// requires_action: the booking stays as it is.
		return "noop", nil
	}
}

func (r *Reconciler) confirm(ctx context.Context, bookingID, reference string, entry logrus.FieldLogger) (string, error) {
	confirmed, applied, err := r.bookings.MarkConfirmed(ctx, bookingID, actor)
	if domain.KindOf(err) == domain.KindBookingNotPayable {
		entry.WithField("status", confirmed.Status).Info("booking is terminal, confirmation ignored")
		return "noop", nil
	}
	if err != nil {
		return "", err
	}
	if !applied {
		return "noop", nil
	}

	if reference != "" {
		if _, err := r.settlements.RecordSettlement(ctx, confirmed, domain.PaymentMethodStripe, reference); err != nil {
			entry.WithError(err).Error("booking confirmed but settlement not recorded")
		}
	}
	return "applied", nil
}

// locate finds the booking by the intent metadata, falling back to a
// transaction already settled under the event's reference.
func (r *Reconciler) locate(ctx context.Context, event domain.ProviderEvent) (*domain.Booking, error) {
	bookingID := event.BookingID
	if bookingID == "" && event.Reference != "" {
		txn, err := r.payments.FindSettledByReference(ctx, event.Reference)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, nil
		case err != nil:
			return nil, domain.WrapError(domain.KindInternal, "failed to look up transaction", err)
		}
		bookingID = txn.BookingID
	}
	if bookingID == "" {
		return nil, nil
	}

	booking, err := r.bookings.GetBookingByID(ctx, bookingID)
	if domain.KindOf(err) == domain.KindBookingNotFound {
		return nil, nil
	}
	return booking, err
}

// forget clears the dedup mark of an event that failed to apply. Deliveries
// are always acknowledged, so only a manual resend from the provider
// dashboard or CLI reaches the reconciler again.
func (r *Reconciler) forget(ctx context.Context, eventID string, entry logrus.FieldLogger) {
	if r.events == nil || eventID == "" {
		return
	}
	if err := r.events.ForgetEvent(context.WithoutCancel(ctx), eventID); err != nil {
		entry.WithError(err).Warn("failed to clear webhook event")
	}
}

var _ ReconcilerUseCase = (*Reconciler)(nil)
