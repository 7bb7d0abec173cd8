package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/skybooking/config"
	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/kafka"
	"github.com/Domenick1991/skybooking/internal/keylock"
	"github.com/Domenick1991/skybooking/internal/metrics"
	"github.com/Domenick1991/skybooking/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const pnrAttempts = 5

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error)
	GetBooking(ctx context.Context, userID, bookingID string) (*domain.Booking, error)
	GetBookingByID(ctx context.Context, bookingID string) (*domain.Booking, error)
	ListUserBookings(ctx context.Context, userID string) ([]domain.Booking, error)
	ListBookings(ctx context.Context, page, pageSize int) (*BookingPage, error)
	CancelBooking(ctx context.Context, userID, bookingID string) (*domain.Booking, error)
	AdminSetStatus(ctx context.Context, bookingID string, status domain.BookingStatus) (*domain.Booking, error)
	ExpirePendingBookings(ctx context.Context) ([]domain.Booking, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type BookingService struct {
	bookings           repository.BookingRepository
	producer           Producer
	bookingTopic       string
	notificationsTopic string

	fallbackUnitCents int64
	defaultCurrency   string
	ticketBaseURL     string
	maxPassengers     int
	pendingTTL        time.Duration

	locks   *keylock.KeyedMutex
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time
	newPNR  func() (string, error)
}

type CreateBookingInput struct {
	UserID         string
	Route          domain.FlightRoute
	Passengers     []domain.Passenger
	ContactEmail   string
	TermsAccepted  bool
	SelectedFlight json.RawMessage
	// TotalAmount is an optional client-computed total; it wins when positive.
	TotalAmount *float64
}

type BookingPage struct {
	Bookings []domain.Booking
	Total    int
	Page     int
	PageSize int
}

type BookingServiceOption func(*BookingService)

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func WithLogger(log logrus.FieldLogger) BookingServiceOption {
	return func(s *BookingService) {
		s.log = log
	}
}

func WithMetrics(m *metrics.Metrics) BookingServiceOption {
	return func(s *BookingService) {
		s.metrics = m
	}
}

// WithKeyedMutex shares per-booking serialization with the payment service
// and the webhook reconciler.
func WithKeyedMutex(k *keylock.KeyedMutex) BookingServiceOption {
	return func(s *BookingService) {
		s.locks = k
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func WithPNRGenerator(gen func() (string, error)) BookingServiceOption {
	return func(s *BookingService) {
		s.newPNR = gen
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	producer Producer,
	bookingTopic string,
	cfg config.BookingConfig,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:          bookings,
		producer:          producer,
		bookingTopic:      bookingTopic,
		fallbackUnitCents: domain.ToCents(cfg.FallbackUnitPrice),
		defaultCurrency:   cfg.DefaultCurrency,
		ticketBaseURL:     cfg.TicketBaseURL,
		maxPassengers:     cfg.MaxPassengers,
		pendingTTL:        time.Duration(cfg.PendingTTLMinutes) * time.Minute,
		locks:             keylock.New(),
		log:               logrus.StandardLogger(),
		now:               func() time.Time { return time.Now().UTC() },
		newPNR:            GeneratePNR,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error) {
	if !input.TermsAccepted {
		return nil, domain.NewError(domain.KindTermsNotAccepted, "You must accept the terms and conditions")
	}

	normalizeInput(&input)
	if errs := s.validate(input); !errs.Valid() {
		return nil, domain.NewError(domain.KindInvalidBookingPayload, "Invalid booking data: "+errs.String())
	}

	total, base, currency := s.price(input)
	now := s.now()
	booking := &domain.Booking{
		ID:             uuid.NewString(),
		UserID:         input.UserID,
		Route:          input.Route,
		Passengers:     input.Passengers,
		ContactEmail:   input.ContactEmail,
		TotalCents:     total,
		BasePriceCents: base,
		Currency:       currency,
		SelectedFlight: input.SelectedFlight,
		Status:         domain.BookingStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.insertWithPNR(ctx, booking); err != nil {
		return nil, err
	}

	s.metrics.BookingCreated()
	s.log.WithFields(logrus.Fields{"booking_id": booking.ID, "pnr": booking.PNR, "user_id": booking.UserID}).Info("booking created")
	s.publish(ctx, kafka.EventBookingCreated, booking)
	return booking, nil
}

// insertWithPNR assigns a fresh PNR and stores the booking, retrying on a
// PNR collision.
func (s *BookingService) insertWithPNR(ctx context.Context, booking *domain.Booking) error {
	for attempt := 0; attempt < pnrAttempts; attempt++ {
		pnr, err := s.newPNR()
		if err != nil {
			return domain.WrapError(domain.KindInternal, "failed to generate reservation code", err)
		}
		booking.PNR = pnr

		err = s.bookings.Create(ctx, booking)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return domain.WrapError(domain.KindInternal, "failed to store booking", err)
		}
		s.log.WithField("pnr", pnr).Warn("reservation code collision, regenerating")
	}
	return domain.NewError(domain.KindInternal, fmt.Sprintf("no unique reservation code after %d attempts", pnrAttempts))
}

func (s *BookingService) GetBooking(ctx context.Context, userID, bookingID string) (*domain.Booking, error) {
	b, err := s.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, notFound(bookingID)
	}
	return b, nil
}

func (s *BookingService) GetBookingByID(ctx context.Context, bookingID string) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound(bookingID)
		}
		return nil, domain.WrapError(domain.KindInternal, "failed to load booking", err)
	}
	return b, nil
}

func (s *BookingService) ListUserBookings(ctx context.Context, userID string) ([]domain.Booking, error) {
	bookings, err := s.bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to list bookings", err)
	}
	return bookings, nil
}

func (s *BookingService) ListBookings(ctx context.Context, page, pageSize int) (*BookingPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	bookings, total, err := s.bookings.List(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to list bookings", err)
	}
	return &BookingPage{Bookings: bookings, Total: total, Page: page, PageSize: pageSize}, nil
}

// CancelBooking is the owner's cancel. Only pending bookings can be cancelled;
// cancelling an already cancelled booking returns it unchanged.
func (s *BookingService) CancelBooking(ctx context.Context, userID, bookingID string) (*domain.Booking, error) {
	if _, err := s.GetBooking(ctx, userID, bookingID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(bookingID)
	defer unlock()

	current, err := s.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := cancellable(current); err != nil || current.Status == domain.BookingStatusCancelled {
		return current, err
	}

	updated, err := s.bookings.UpdateStatus(ctx, bookingID, domain.StatusChange{
		From: []domain.BookingStatus{domain.BookingStatusPending},
		To:   domain.BookingStatusCancelled,
	})
	if errors.Is(err, repository.ErrStatusConflict) {
		if err := cancellable(updated); err != nil || updated.Status == domain.BookingStatusCancelled {
			return updated, err
		}
	}
	if err != nil {
		return nil, s.transitionError(bookingID, err)
	}

	s.applied(ctx, updated, "user", kafka.EventBookingCancelled)
	return updated, nil
}

func cancellable(b *domain.Booking) error {
	switch b.Status {
	case domain.BookingStatusConfirmed:
		return domain.NewError(domain.KindBookingNotCancellable, "Confirmed bookings cannot be cancelled online, please contact support")
	case domain.BookingStatusExpired:
		return domain.NewError(domain.KindBookingNotCancellable, "Booking has expired")
	default:
		return nil
	}
}

// AdminSetStatus overrides the booking status. The state machine still
// applies; setting the current status again is a no-op.
func (s *BookingService) AdminSetStatus(ctx context.Context, bookingID string, status domain.BookingStatus) (*domain.Booking, error) {
	unlock := s.locks.Lock(bookingID)
	defer unlock()

	current, err := s.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, nil
	}

	change := domain.ChangeTo(status)
	if status == domain.BookingStatusConfirmed {
		change.TicketURL = domain.TicketURL(s.ticketBaseURL, current.PNR)
	}
	updated, err := s.bookings.UpdateStatus(ctx, bookingID, change)
	if errors.Is(err, repository.ErrStatusConflict) {
		return nil, domain.NewError(domain.KindInvalidRequest,
			fmt.Sprintf("cannot change booking status from %s to %s", updated.Status, status))
	}
	if err != nil {
		return nil, s.transitionError(bookingID, err)
	}

	s.applied(ctx, updated, "admin", eventFor(status))
	return updated, nil
}

// MarkConfirmed moves a pending booking to confirmed and stamps its ticket
// URL. applied is false when the booking was already confirmed, in which
// case nothing is published.
func (s *BookingService) MarkConfirmed(ctx context.Context, bookingID, actor string) (*domain.Booking, bool, error) {
	current, err := s.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, false, err
	}

	updated, err := s.bookings.UpdateStatus(ctx, bookingID, domain.StatusChange{
		From:      []domain.BookingStatus{domain.BookingStatusPending},
		To:        domain.BookingStatusConfirmed,
		TicketURL: domain.TicketURL(s.ticketBaseURL, current.PNR),
	})
	if errors.Is(err, repository.ErrStatusConflict) {
		if updated.Status == domain.BookingStatusConfirmed {
			return updated, false, nil
		}
		return updated, false, notPayable(updated)
	}
	if err != nil {
		return nil, false, s.transitionError(bookingID, err)
	}

	s.applied(ctx, updated, actor, kafka.EventBookingConfirmed)
	return updated, true, nil
}

// MarkCancelled cancels a booking that is still pending. Any other status is
// returned unchanged with applied false.
func (s *BookingService) MarkCancelled(ctx context.Context, bookingID, actor string) (*domain.Booking, bool, error) {
	updated, err := s.bookings.UpdateStatus(ctx, bookingID, domain.StatusChange{
		From: []domain.BookingStatus{domain.BookingStatusPending},
		To:   domain.BookingStatusCancelled,
	})
	if errors.Is(err, repository.ErrStatusConflict) {
		return updated, false, nil
	}
	if err != nil {
		return nil, false, s.transitionError(bookingID, err)
	}

	s.applied(ctx, updated, actor, kafka.EventBookingCancelled)
	return updated, true, nil
}

// MarkRefunded cancels a confirmed booking after its payment was refunded.
func (s *BookingService) MarkRefunded(ctx context.Context, bookingID string) (*domain.Booking, bool, error) {
	updated, err := s.bookings.UpdateStatus(ctx, bookingID, domain.StatusChange{
		From: []domain.BookingStatus{domain.BookingStatusConfirmed, domain.BookingStatusPending},
		To:   domain.BookingStatusCancelled,
	})
	if errors.Is(err, repository.ErrStatusConflict) {
		return updated, false, nil
	}
	if err != nil {
		return nil, false, s.transitionError(bookingID, err)
	}

	s.applied(ctx, updated, "refund", kafka.EventBookingRefunded)
	return updated, true, nil
}

// ExpirePendingBookings expires pending bookings older than the configured
// TTL, one booking at a time under its lock. It does nothing when no TTL is
// configured.
func (s *BookingService) ExpirePendingBookings(ctx context.Context) ([]domain.Booking, error) {
	if s.pendingTTL <= 0 {
		return nil, nil
	}
	stale, err := s.bookings.ListPendingBefore(ctx, s.now().Add(-s.pendingTTL))
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to list pending bookings", err)
	}

	var expired []domain.Booking
	for _, b := range stale {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		updated, ok, err := s.expire(ctx, b.ID)
		if err != nil {
			s.log.WithError(err).WithField("booking_id", b.ID).Warn("failed to expire booking")
			continue
		}
		if ok {
			expired = append(expired, *updated)
		}
	}
	return expired, nil
}

func (s *BookingService) expire(ctx context.Context, bookingID string) (*domain.Booking, bool, error) {
	unlock := s.locks.Lock(bookingID)
	defer unlock()

	updated, err := s.bookings.UpdateStatus(ctx, bookingID, domain.StatusChange{
		From: []domain.BookingStatus{domain.BookingStatusPending},
		To:   domain.BookingStatusExpired,
	})
	if errors.Is(err, repository.ErrStatusConflict) {
		// Paid or cancelled since it was listed.
		return updated, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	s.applied(ctx, updated, "expiry", kafka.EventBookingExpired)
	return updated, true, nil
}

// RunExpirySweep calls ExpirePendingBookings every interval until ctx is done.
func (s *BookingService) RunExpirySweep(ctx context.Context, interval time.Duration) {
	if s.pendingTTL <= 0 || interval <= 0 {
		s.log.Info("pending booking expiry disabled")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := s.ExpirePendingBookings(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.log.WithError(err).Error("expire bookings")
				}
				continue
			}
			if len(expired) > 0 {
				s.log.WithField("count", len(expired)).Info("expired pending bookings")
			}
		}
	}
}

func (s *BookingService) applied(ctx context.Context, b *domain.Booking, actor, eventType string) {
	s.metrics.StatusTransition(string(b.Status), actor)
	s.log.WithFields(logrus.Fields{
		"booking_id": b.ID,
		"status":     b.Status,
		"actor":      actor,
	}).Info("booking status changed")
	s.publish(ctx, eventType, b)
}

// publish is best effort: a broker failure is logged and never undoes the
// transition that produced the event.
func (s *BookingService) publish(ctx context.Context, eventType string, booking *domain.Booking) {
	if s.producer == nil || s.bookingTopic == "" {
		return
	}
	event := kafka.NewBookingEvent(eventType, booking)
	entry := s.log.WithFields(logrus.Fields{"booking_id": booking.ID, "event": eventType})

	if err := s.producer.Publish(ctx, s.bookingTopic, booking.ID, event); err != nil {
		entry.WithError(err).Warn("failed to publish booking event")
	}
	if s.notificationsTopic == "" || eventType == kafka.EventBookingCreated {
		return
	}
	if err := s.producer.Publish(ctx, s.notificationsTopic, booking.ID, event); err != nil {
		entry.WithError(err).Warn("failed to publish notification")
	}
}

func (s *BookingService) transitionError(bookingID string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(bookingID)
	}
	return domain.WrapError(domain.KindInternal, "failed to update booking", err)
}

func eventFor(status domain.BookingStatus) string {
	switch status {
	case domain.BookingStatusConfirmed:
		return kafka.EventBookingConfirmed
	case domain.BookingStatusExpired:
		return kafka.EventBookingExpired
	default:
		return kafka.EventBookingCancelled
	}
}

func notFound(bookingID string) error {
	return domain.NewError(domain.KindBookingNotFound, fmt.Sprintf("booking %s not found", bookingID))
}

func notPayable(b *domain.Booking) error {
	return domain.NewError(domain.KindBookingNotPayable, fmt.Sprintf("booking is %s and cannot be paid", b.Status))
}

var _ BookingUseCase = (*BookingService)(nil)
