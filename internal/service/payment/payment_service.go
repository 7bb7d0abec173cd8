package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/skybooking/config"
	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/keylock"
	"github.com/Domenick1991/skybooking/internal/metrics"
	"github.com/Domenick1991/skybooking/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultProviderTimeout = 10 * time.Second

type PaymentUseCase interface {
	ProcessPayment(ctx context.Context, input ProcessPaymentInput) (*PaymentResult, error)
	RefundPayment(ctx context.Context, transactionID string) (*domain.PaymentTransaction, error)
	CreateStripeIntent(ctx context.Context, userID, bookingID string) (*StripeIntent, error)
	StripeConfig() StripePublicConfig
	CreatePayPalOrder(ctx context.Context, userID, bookingID string) (*PayPalOrder, error)
	CapturePayPalOrder(ctx context.Context, orderID string) (*PayPalOrder, error)
}

// Bookings is the part of the booking service payments drive.
type Bookings interface {
	GetBooking(ctx context.Context, userID, bookingID string) (*domain.Booking, error)
	GetBookingByID(ctx context.Context, bookingID string) (*domain.Booking, error)
	MarkConfirmed(ctx context.Context, bookingID, actor string) (*domain.Booking, bool, error)
	MarkRefunded(ctx context.Context, bookingID string) (*domain.Booking, bool, error)
}

// PaymentLock guards a booking against concurrent payments across processes.
type PaymentLock interface {
	AcquirePaymentLock(ctx context.Context, bookingID string, ttl time.Duration) (bool, error)
	ReleasePaymentLock(ctx context.Context, bookingID string) error
}

type ProcessPaymentInput struct {
	UserID    string
	BookingID string
	Method    domain.PaymentMethod
	Details   json.RawMessage
}

type PaymentResult struct {
	Success       bool
	TransactionID string
	Message       string
	Booking       *domain.Booking
}

type StripeIntent struct {
	PaymentIntentID string
	ClientSecret    string
	AmountCents     int64
	Currency        string
}

type StripePublicConfig struct {
	PublishableKey string
}

type PayPalOrder struct {
	OrderID    string
	Status     string
	ApproveURL string
}

type PaymentService struct {
	bookings   Bookings
	payments   repository.PaymentRepository
	processors map[domain.PaymentMethod]Processor

	stripe               StripeGateway
	stripePublishableKey string
	paypal               PayPalGateway

	locks           *keylock.KeyedMutex
	lock            PaymentLock
	lockTTL         time.Duration
	providerTimeout time.Duration

	log     logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

type PaymentServiceOption func(*PaymentService)

func WithStripe(gateway StripeGateway, publishableKey string) PaymentServiceOption {
	return func(s *PaymentService) {
		s.stripe = gateway
		s.stripePublishableKey = publishableKey
	}
}

func WithPayPal(gateway PayPalGateway) PaymentServiceOption {
	return func(s *PaymentService) {
		s.paypal = gateway
	}
}

// WithProcessor registers or replaces the processor for its method.
func WithProcessor(p Processor) PaymentServiceOption {
	return func(s *PaymentService) {
		s.processors[p.Method()] = p
	}
}

func WithPaymentLock(lock PaymentLock) PaymentServiceOption {
	return func(s *PaymentService) {
		s.lock = lock
	}
}

// WithKeyedMutex shares per-booking serialization with other writers such as
// the webhook reconciler.
func WithKeyedMutex(k *keylock.KeyedMutex) PaymentServiceOption {
	return func(s *PaymentService) {
		s.locks = k
	}
}

func WithProviderTimeout(d time.Duration) PaymentServiceOption {
	return func(s *PaymentService) {
		if d > 0 {
			s.providerTimeout = d
		}
	}
}

func WithLogger(log logrus.FieldLogger) PaymentServiceOption {
	return func(s *PaymentService) {
		s.log = log
	}
}

func WithMetrics(m *metrics.Metrics) PaymentServiceOption {
	return func(s *PaymentService) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) PaymentServiceOption {
	return func(s *PaymentService) {
		s.now = now
	}
}

func NewPaymentService(
	bookings Bookings,
	payments repository.PaymentRepository,
	cfg config.PaymentConfig,
	opts ...PaymentServiceOption,
) *PaymentService {
	s := &PaymentService{
		bookings:        bookings,
		payments:        payments,
		processors:      make(map[domain.PaymentMethod]Processor),
		locks:           keylock.New(),
		lockTTL:         cfg.LockTTL(),
		providerTimeout: cfg.ProviderTimeout(),
		log:             logrus.StandardLogger(),
		now:             func() time.Time { return time.Now().UTC() },
	}
	if s.providerTimeout <= 0 {
		s.providerTimeout = defaultProviderTimeout
	}
	for _, opt := range opts {
		opt(s)
	}

	defaults := []Processor{newCardProcessor(func() time.Time { return s.now() })}
	if s.stripe != nil {
		defaults = append(defaults, &stripeProcessor{gateway: s.stripe})
	}
	if s.paypal != nil {
		defaults = append(defaults, &paypalProcessor{gateway: s.paypal})
	}
	for _, p := range defaults {
		if _, ok := s.processors[p.Method()]; !ok {
			s.processors[p.Method()] = p
		}
	}
	return s
}

func (s *PaymentService) ProcessPayment(ctx context.Context, input ProcessPaymentInput) (*PaymentResult, error) {
	booking, err := s.bookings.GetBooking(ctx, input.UserID, input.BookingID)
	if err != nil {
		return nil, err
	}

	processor, ok := s.processors[input.Method]
	if !ok {
		return nil, invalidDetails(fmt.Sprintf("payment method %q is not available", input.Method))
	}
	details, err := domain.DecodePaymentDetails(input.Method, input.Details)
	if err != nil {
		return nil, err
	}
	if err := processor.Validate(details); err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Reload under the lock: another payment or a webhook may have won.
	if booking, err = s.bookings.GetBookingByID(ctx, booking.ID); err != nil {
		return nil, err
	}
	if result, err := s.replay(ctx, booking, details); result != nil || err != nil {
		return result, err
	}
	if booking.Status != domain.BookingStatusPending {
		return nil, domain.NewError(domain.KindBookingNotPayable, fmt.Sprintf("Booking is %s and cannot be paid", booking.Status))
	}

	reference, err := s.settle(ctx, processor, booking, details)
	if err != nil {
		return nil, s.recordFailure(ctx, booking, input.Method, details.Reference(), err)
	}

	confirmed, applied, err := s.bookings.MarkConfirmed(ctx, booking.ID, "payment")
	if err != nil {
		return nil, s.compensate(ctx, booking, input.Method, reference, err)
	}
	if !applied {
		// Confirmed by another path between settle and here.
		if result, err := s.replay(ctx, confirmed, details); result != nil || err != nil {
			return result, err
		}
		return nil, domain.NewError(domain.KindBookingNotPayable, "Booking is already confirmed")
	}

	txn, err := s.recordCompleted(ctx, confirmed, input.Method, reference)
	if err != nil {
		return nil, err
	}

	s.metrics.Payment(string(input.Method), "completed")
	s.log.WithFields(logrus.Fields{
		"booking_id":     confirmed.ID,
		"transaction_id": txn.ID,
		"method":         input.Method,
	}).Info("payment completed")

	return &PaymentResult{
		Success:       true,
		TransactionID: txn.ID,
		Message:       "Payment processed successfully",
		Booking:       confirmed,
	}, nil
}

// acquire serializes payments per booking in-process and, when a shared lock
// is configured, across processes.
func (s *PaymentService) acquire(ctx context.Context, bookingID string) (func(), error) {
	unlock := s.locks.Lock(bookingID)
	if s.lock == nil {
		return unlock, nil
	}

	ok, err := s.lock.AcquirePaymentLock(ctx, bookingID, s.lockTTL)
	if err != nil {
		s.log.WithError(err).WithField("booking_id", bookingID).Warn("payment lock unavailable, continuing with local lock")
		return unlock, nil
	}
	if !ok {
		unlock()
		return nil, domain.NewError(domain.KindBookingNotPayable, "A payment for this booking is already in progress")
	}
	return func() {
		if err := s.lock.ReleasePaymentLock(context.WithoutCancel(ctx), bookingID); err != nil {
			s.log.WithError(err).WithField("booking_id", bookingID).Warn("failed to release payment lock")
		}
		unlock()
	}, nil
}

// replay returns the original result when the settlement reference carried
// by details was already completed for this booking.
func (s *PaymentService) replay(ctx context.Context, booking *domain.Booking, details domain.PaymentDetails) (*PaymentResult, error) {
	ref := details.Reference()
	if ref == "" {
		return nil, nil
	}
	txn, err := s.payments.FindSettledByReference(ctx, ref)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to look up transaction", err)
	}
	if txn.BookingID != booking.ID {
		return nil, domain.NewError(domain.KindPaymentNotVerified, "This payment has already been used for another booking")
	}
	if txn.Status == domain.TransactionStatusRefunded {
		return nil, domain.NewError(domain.KindPaymentNotVerified, "This payment has been refunded")
	}

	s.metrics.Payment(string(txn.Method), "replayed")
	return &PaymentResult{
		Success:       true,
		TransactionID: txn.ID,
		Message:       "Payment already processed",
		Booking:       booking,
	}, nil
}

func (s *PaymentService) settle(ctx context.Context, p Processor, booking *domain.Booking, details domain.PaymentDetails) (string, error) {
	settleCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	start := time.Now()
	reference, err := p.Settle(settleCtx, booking, details)
	s.metrics.ObserveProvider(string(p.Method()), "settle", start)

	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(settleCtx.Err(), context.DeadlineExceeded)) {
		return "", &timeoutError{err: err}
	}
	return reference, err
}

type timeoutError struct {
	err error
}

func (e *timeoutError) Error() string { return "provider timeout: " + e.err.Error() }
func (e *timeoutError) Unwrap() error { return e.err }

// recordFailure stores the attempt and returns the error for the caller. A
// timeout is stored as pending because the provider outcome is unknown.
func (s *PaymentService) recordFailure(ctx context.Context, booking *domain.Booking, method domain.PaymentMethod, reference string, cause error) error {
	status := domain.TransactionStatusFailed
	outcome := "failed"
	result := cause

	var timeout *timeoutError
	if errors.As(cause, &timeout) {
		status = domain.TransactionStatusPending
		outcome = "timeout"
		result = domain.WrapError(domain.KindPaymentNotVerified, "Payment could not be verified in time, please retry", cause)
	} else if domain.KindOf(cause) == domain.KindInternal {
		result = domain.WrapError(domain.KindPaymentNotVerified, "Payment could not be verified", cause)
	}

	now := s.now()
	txn := &domain.PaymentTransaction{
		ID:            uuid.NewString(),
		BookingID:     booking.ID,
		UserID:        booking.UserID,
		AmountCents:   booking.TotalCents,
		Currency:      booking.Currency,
		Method:        method,
		Status:        status,
		Reference:     reference,
		FailureReason: cause.Error(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.payments.Create(ctx, txn); err != nil {
		s.log.WithError(err).WithField("booking_id", booking.ID).Error("failed to record failed payment")
	}

	s.metrics.Payment(string(method), outcome)
	s.log.WithError(cause).WithFields(logrus.Fields{"booking_id": booking.ID, "method": method}).Warn("payment not verified")
	return result
}

// recordCompleted stores the settled transaction. A duplicate settlement
// reference resolves to the transaction already on record.
func (s *PaymentService) recordCompleted(ctx context.Context, booking *domain.Booking, method domain.PaymentMethod, reference string) (*domain.PaymentTransaction, error) {
	now := s.now()
	txn := &domain.PaymentTransaction{
		ID:          uuid.NewString(),
		BookingID:   booking.ID,
		UserID:      booking.UserID,
		AmountCents: booking.TotalCents,
		Currency:    booking.Currency,
		Method:      method,
		Status:      domain.TransactionStatusCompleted,
		Reference:   reference,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.payments.Create(ctx, txn)
	if errors.Is(err, repository.ErrDuplicate) {
		existing, lookupErr := s.payments.FindSettledByReference(ctx, reference)
		if lookupErr != nil {
			return nil, domain.WrapError(domain.KindInternal, "failed to load transaction", lookupErr)
		}
		return existing, nil
	}
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to record transaction", err)
	}
	return txn, nil
}

// compensate handles money taken for a booking that could not be confirmed,
// for example because it was cancelled or expired by another process while
// the provider was settling. The settlement is recorded and refunded at the
// provider; if the refund fails the transaction stays completed for an admin
// refund.
func (s *PaymentService) compensate(ctx context.Context, booking *domain.Booking, method domain.PaymentMethod, reference string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	entry := s.log.WithFields(logrus.Fields{"booking_id": booking.ID, "reference": reference, "method": method})
	entry.WithError(cause).Error("payment settled but booking could not be confirmed")

	now := s.now()
	txn := &domain.PaymentTransaction{
		ID:            uuid.NewString(),
		BookingID:     booking.ID,
		UserID:        booking.UserID,
		AmountCents:   booking.TotalCents,
		Currency:      booking.Currency,
		Method:        method,
		Status:        domain.TransactionStatusCompleted,
		Reference:     reference,
		FailureReason: "booking not confirmed: " + cause.Error(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.payments.Create(ctx, txn); err != nil {
		entry.WithError(err).Error("failed to record unconfirmed settlement")
	}

	if err := s.refundAtProvider(ctx, txn); err != nil {
		s.metrics.Payment(string(method), "refund_failed")
		entry.WithError(err).Error("refund of unconfirmed settlement failed, manual refund required")
		return domain.WrapError(domain.KindOf(cause), "Booking could not be confirmed; the payment will be refunded", cause)
	}
	if _, err := s.payments.UpdateStatus(ctx, txn.ID, domain.TransactionStatusCompleted, domain.TransactionStatusRefunded); err != nil {
		entry.WithError(err).Error("settlement refunded but transaction not updated")
	}

	s.metrics.Payment(string(method), "compensated")
	entry.WithField("transaction_id", txn.ID).Warn("unconfirmed settlement refunded")
	return domain.WrapError(domain.KindOf(cause), "Booking could not be confirmed; the payment has been refunded", cause)
}

// RecordSettlement stores a completed transaction for a payment confirmed
// out of band, such as by a provider webhook.
func (s *PaymentService) RecordSettlement(ctx context.Context, booking *domain.Booking, method domain.PaymentMethod, reference string) (*domain.PaymentTransaction, error) {
	txn, err := s.recordCompleted(ctx, booking, method, reference)
	if err == nil {
		s.metrics.Payment(string(method), "completed")
	}
	return txn, err
}

// RefundPayment refunds a completed transaction at its provider, marks it
// refunded and cancels the booking.
func (s *PaymentService) RefundPayment(ctx context.Context, transactionID string) (*domain.PaymentTransaction, error) {
	txn, err := s.getTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(txn.BookingID)
	defer unlock()

	if txn, err = s.getTransaction(ctx, transactionID); err != nil {
		return nil, err
	}
	if txn.Status != domain.TransactionStatusCompleted {
		return nil, domain.NewError(domain.KindNotRefundable, fmt.Sprintf("Transaction is %s; only completed transactions can be refunded", txn.Status))
	}

	if err := s.refundAtProvider(ctx, txn); err != nil {
		s.log.WithError(err).WithField("transaction_id", txn.ID).Error("provider refund failed")
		return nil, domain.WrapError(domain.KindPaymentNotVerified, "Refund could not be completed by the payment provider", err)
	}

	updated, err := s.payments.UpdateStatus(ctx, txn.ID, domain.TransactionStatusCompleted, domain.TransactionStatusRefunded)
	if errors.Is(err, repository.ErrStatusConflict) {
		return nil, domain.NewError(domain.KindNotRefundable, "Transaction was refunded concurrently")
	}
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to update transaction", err)
	}

	if _, _, err := s.bookings.MarkRefunded(ctx, txn.BookingID); err != nil {
		return nil, err
	}

	s.metrics.Payment(string(txn.Method), "refunded")
	s.log.WithFields(logrus.Fields{"transaction_id": txn.ID, "booking_id": txn.BookingID}).Info("payment refunded")
	return updated, nil
}

func (s *PaymentService) refundAtProvider(ctx context.Context, txn *domain.PaymentTransaction) error {
	ctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	defer s.metrics.ObserveProvider(string(txn.Method), "refund", time.Now())

	switch txn.Method {
	case domain.PaymentMethodStripe:
		if s.stripe == nil {
			return errors.New("stripe is not configured")
		}
		return s.stripe.Refund(ctx, txn.Reference)
	case domain.PaymentMethodPayPal:
		if s.paypal == nil {
			return errors.New("paypal is not configured")
		}
		return s.paypal.RefundOrder(ctx, txn.Reference)
	default:
		return nil
	}
}

func (s *PaymentService) getTransaction(ctx context.Context, id string) (*domain.PaymentTransaction, error) {
	txn, err := s.payments.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.NewError(domain.KindTransactionNotFound, fmt.Sprintf("transaction %s not found", id))
	}
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to load transaction", err)
	}
	return txn, nil
}

func (s *PaymentService) payableBooking(ctx context.Context, userID, bookingID string) (*domain.Booking, error) {
	booking, err := s.bookings.GetBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != domain.BookingStatusPending {
		return nil, domain.NewError(domain.KindBookingNotPayable, fmt.Sprintf("Booking is %s and cannot be paid", booking.Status))
	}
	return booking, nil
}

func (s *PaymentService) CreateStripeIntent(ctx context.Context, userID, bookingID string) (*StripeIntent, error) {
	if s.stripe == nil {
		return nil, domain.NewError(domain.KindInvalidRequest, "Stripe payments are not configured")
	}
	booking, err := s.payableBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	intent, err := s.stripe.CreatePaymentIntent(callCtx, booking.TotalCents, booking.Currency, booking.ID)
	if err != nil {
		return nil, domain.WrapError(domain.KindPaymentNotVerified, "Failed to create Stripe payment intent", err)
	}
	return &StripeIntent{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		AmountCents:     intent.AmountCents,
		Currency:        intent.Currency,
	}, nil
}

func (s *PaymentService) StripeConfig() StripePublicConfig {
	return StripePublicConfig{PublishableKey: s.stripePublishableKey}
}

func (s *PaymentService) CreatePayPalOrder(ctx context.Context, userID, bookingID string) (*PayPalOrder, error) {
	if s.paypal == nil {
		return nil, domain.NewError(domain.KindInvalidRequest, "PayPal payments are not configured")
	}
	booking, err := s.payableBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	order, err := s.paypal.CreateOrder(callCtx, booking.TotalCents, booking.Currency, booking.ID)
	if err != nil {
		return nil, domain.WrapError(domain.KindPaymentNotVerified, "Failed to create PayPal order", err)
	}
	return &PayPalOrder{OrderID: order.ID, Status: order.Status, ApproveURL: order.ApproveURL()}, nil
}

func (s *PaymentService) CapturePayPalOrder(ctx context.Context, orderID string) (*PayPalOrder, error) {
	if s.paypal == nil {
		return nil, domain.NewError(domain.KindInvalidRequest, "PayPal payments are not configured")
	}
	if orderID == "" {
		return nil, invalidDetails("orderId is required")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	order, err := s.paypal.CaptureOrder(callCtx, orderID)
	if err != nil {
		return nil, domain.WrapError(domain.KindPaymentNotVerified, "Failed to capture PayPal order", err)
	}
	return &PayPalOrder{OrderID: order.ID, Status: order.Status, ApproveURL: order.ApproveURL()}, nil
}

var _ PaymentUseCase = (*PaymentService)(nil)
