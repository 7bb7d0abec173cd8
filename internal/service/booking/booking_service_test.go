package booking

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/Domenick1991/skybooking/config"
	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/kafka"
	"github.com/Domenick1991/skybooking/internal/keylock"
	"github.com/Domenick1991/skybooking/internal/repository"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	bookingTopic       = "booking-events"
	notificationsTopic = "booking-notifications"
)

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

// events returns the event types published to topic, in order.
func (m *MockProducer) events(topic string) []string {
	var out []string
	for _, c := range m.Calls {
		if c.Method == "Publish" && c.Arguments.String(1) == topic {
			out = append(out, c.Arguments.Get(3).(kafka.BookingEvent).Type)
		}
	}
	return out
}

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	args := m.Called(ctx, booking)
	return args.Error(0)
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) ListByUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) List(ctx context.Context, offset, limit int) ([]domain.Booking, int, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).([]domain.Booking), args.Int(1), args.Error(2)
}

func (m *MockBookingRepository) UpdateStatus(ctx context.Context, id string, change domain.StatusChange) (*domain.Booking, error) {
	args := m.Called(ctx, id, change)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) ListPendingBefore(ctx context.Context, deadline time.Time) ([]domain.Booking, error) {
	args := m.Called(ctx, deadline)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func testConfig() config.BookingConfig {
	return config.BookingConfig{
		FallbackUnitPrice: 15,
		DefaultCurrency:   "USD",
		TicketBaseURL:     "https://sky.test/tickets",
		MaxPassengers:     9,
	}
}

func newTestService(repo repository.BookingRepository, producer Producer, opts ...BookingServiceOption) *BookingService {
	logger, _ := test.NewNullLogger()
	base := []BookingServiceOption{
		WithNotificationsTopic(notificationsTopic),
		WithLogger(logger),
		WithClock(func() time.Time { return testNow }),
	}
	return NewBookingService(repo, producer, bookingTopic, testConfig(), append(base, opts...)...)
}

func newProducer() *MockProducer {
	p := &MockProducer{}
	p.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return p
}

func passenger() domain.Passenger {
	return domain.Passenger{Title: domain.TitleMs, FirstName: "Anna", LastName: "Smith", Email: "anna@example.com"}
}

func validInput(passengers int) CreateBookingInput {
	ps := make([]domain.Passenger, passengers)
	for i := range ps {
		ps[i] = passenger()
	}
	return CreateBookingInput{
		UserID: "user-1",
		Route: domain.FlightRoute{
			From:          domain.Airport{Code: "JFK", City: "New York"},
			To:            domain.Airport{Code: "LHR", City: "London"},
			DepartureDate: "2026-12-01",
			TripType:      domain.TripTypeOneWay,
		},
		Passengers:    ps,
		ContactEmail:  "anna@example.com",
		TermsAccepted: true,
	}
}

func createPending(t *testing.T, s *BookingService) *domain.Booking {
	t.Helper()
	b, err := s.CreateBooking(context.Background(), validInput(1))
	require.NoError(t, err)
	return b
}

func TestBookingService_CreateBooking_Success(t *testing.T) {
	repo := repository.NewMemoryBookingRepository()
	producer := newProducer()
	service := newTestService(repo, producer)

	b, err := service.CreateBooking(context.Background(), validInput(1))
	require.NoError(t, err)

	assert.Equal(t, domain.BookingStatusPending, b.Status)
	assert.Equal(t, int64(1500), b.TotalCents)
	assert.Equal(t, int64(1500), b.BasePriceCents)
	assert.Equal(t, "USD", b.Currency)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{6}$`), b.PNR)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, testNow, b.CreatedAt)
	assert.Equal(t, b.CreatedAt, b.UpdatedAt)

	stored, err := repo.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.PNR, stored.PNR)

	assert.Equal(t, []string{kafka.EventBookingCreated}, producer.events(bookingTopic))
	assert.Empty(t, producer.events(notificationsTopic))
}

func TestBookingService_CreateBooking_TermsNotAccepted(t *testing.T) {
	service := newTestService(repository.NewMemoryBookingRepository(), newProducer())
	input := validInput(1)
	input.TermsAccepted = false

	b, err := service.CreateBooking(context.Background(), input)
	assert.Nil(t, b)
	assert.Equal(t, domain.KindTermsNotAccepted, domain.KindOf(err))
}

func TestBookingService_CreateBooking_PassengerBoundaries(t *testing.T) {
	service := newTestService(repository.NewMemoryBookingRepository(), newProducer())

	tests := []struct {
		passengers int
		ok         bool
	}{
		{0, false},
		{1, true},
		{9, true},
		{10, false},
	}
	for _, tt := range tests {
		b, err := service.CreateBooking(context.Background(), validInput(tt.passengers))
		if tt.ok {
			require.NoError(t, err, "passengers=%d", tt.passengers)
			assert.Len(t, b.Passengers, tt.passengers)
			continue
		}
		assert.Equal(t, domain.KindInvalidBookingPayload, domain.KindOf(err), "passengers=%d", tt.passengers)
		assert.Contains(t, domain.MessageOf(err), "passengers:")
	}
}

func TestBookingService_CreateBooking_ValidationErrors(t *testing.T) {
	service := newTestService(repository.NewMemoryBookingRepository(), newProducer())

	testCases := []struct {
		name        string
		mutate      func(in *CreateBookingInput)
		expectedErr string
	}{
		{
			name:        "same airports",
			mutate:      func(in *CreateBookingInput) { in.Route.To.Code = "jfk" },
			expectedErr: "route.to.code: Destination must be different from origin",
		},
		{
			name:        "bad airport code",
			mutate:      func(in *CreateBookingInput) { in.Route.From.Code = "JFKX" },
			expectedErr: "route.from.code: Airport code must be a 3-letter IATA code",
		},
		{
			name:        "missing airport",
			mutate:      func(in *CreateBookingInput) { in.Route.To.Code = "" },
			expectedErr: "route.to.code: Airport is required",
		},
		{
			name:        "departure in the past",
			mutate:      func(in *CreateBookingInput) { in.Route.DepartureDate = "2026-10-15" },
			expectedErr: "route.departureDate: Departure date cannot be in the past",
		},
		{
			name:        "round trip without return",
			mutate:      func(in *CreateBookingInput) { in.Route.TripType = domain.TripTypeRoundTrip },
			expectedErr: "route.returnDate: Return date is required for round trips",
		},
		{
			name: "return before departure",
			mutate: func(in *CreateBookingInput) {
				in.Route.TripType = domain.TripTypeRoundTrip
				in.Route.ReturnDate = "2026-12-01"
			},
			expectedErr: "route.returnDate: Return date must be after departure date",
		},
		{
			name:        "bad passenger title",
			mutate:      func(in *CreateBookingInput) { in.Passengers[0].Title = "Dr" },
			expectedErr: "passengers[0].title: Title must be Mr, Ms or Mrs",
		},
		{
			name:        "short first name",
			mutate:      func(in *CreateBookingInput) { in.Passengers[0].FirstName = "A" },
			expectedErr: "passengers[0].firstName: First name must be at least 2 characters",
		},
		{
			name:        "passenger email",
			mutate:      func(in *CreateBookingInput) { in.Passengers[0].Email = "not-an-email" },
			expectedErr: "passengers[0].email: Please enter a valid email address",
		},
		{
			name:        "missing contact email",
			mutate:      func(in *CreateBookingInput) { in.ContactEmail = " " },
			expectedErr: "contactEmail: Contact email is required",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput(1)
			tc.mutate(&input)

			b, err := service.CreateBooking(context.Background(), input)
			assert.Nil(t, b)
			require.Error(t, err)
			assert.Equal(t, domain.KindInvalidBookingPayload, domain.KindOf(err))
			assert.Contains(t, domain.MessageOf(err), tc.expectedErr)
		})
	}
}

func TestBookingService_CreateBooking_RoundTrip(t *testing.T) {
	service := newTestService(repository.NewMemoryBookingRepository(), newProducer())
	input := validInput(2)
	input.Route.TripType = domain.TripTypeRoundTrip
	input.Route.ReturnDate = "2026-12-10"

	b, err := service.CreateBooking(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "2026-12-10", b.Route.ReturnDate)
}

func TestBookingService_Pricing(t *testing.T) {
	hint := 99.99
	zero := 0.0
	offer := json.RawMessage(`{"id":"1","price":{"total":"120.50","currency":"eur"}}`)

	tests := []struct {
		name         string
		passengers   int
		hint         *float64
		offer        json.RawMessage
		wantTotal    int64
		wantBase     int64
		wantCurrency string
	}{
		{"fallback single", 1, nil, nil, 1500, 1500, "USD"},
		{"fallback n times 15", 4, nil, nil, 6000, 1500, "USD"},
		{"offer price times n", 2, nil, offer, 24100, 12050, "EUR"},
		{"hint wins over offer", 3, &hint, offer, 9999, 3333, "EUR"},
		{"hint without offer", 1, &hint, nil, 9999, 9999, "USD"},
		{"zero hint ignored", 2, &zero, nil, 3000, 1500, "USD"},
		{"unparseable offer falls back", 2, nil, json.RawMessage(`{"price":{}}`), 3000, 1500, "USD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newTestService(repository.NewMemoryBookingRepository(), newProducer())
			input := validInput(tt.passengers)
			input.TotalAmount = tt.hint
			input.SelectedFlight = tt.offer

			b, err := service.CreateBooking(context.Background(), input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, b.TotalCents)
			assert.Equal(t, tt.wantBase, b.BasePriceCents)
			assert.Equal(t, tt.wantCurrency, b.Currency)
		})
	}
}

func TestBookingService_CreateBooking_TotalAmountBound(t *testing.T) {
	service := newTestService(repository.NewMemoryBookingRepository(), newProducer())

	huge := 1e20
	input := validInput(1)
	input.TotalAmount = &huge
	_, err := service.CreateBooking(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidBookingPayload, domain.KindOf(err))
	assert.Contains(t, domain.MessageOf(err), "totalAmount")

	limit := maxTotalAmount
	input.TotalAmount = &limit
	b, err := service.CreateBooking(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000_000), b.TotalCents)
}

func TestBookingService_CreateBooking_PNRCollisionRetries(t *testing.T) {
	repo := &MockBookingRepository{}
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Booking")).Return(repository.ErrDuplicate).Twice()
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Booking")).Return(nil).Once()

	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	gen := func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	service := newTestService(repo, newProducer(), WithPNRGenerator(gen))

	b, err := service.CreateBooking(context.Background(), validInput(1))
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", b.PNR)
	repo.AssertNumberOfCalls(t, "Create", 3)
}

func TestBookingService_CreateBooking_PNRExhausted(t *testing.T) {
	repo := &MockBookingRepository{}
	repo.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicate)
	producer := newProducer()
	service := newTestService(repo, producer, WithPNRGenerator(func() (string, error) { return "AAAAAA", nil }))

	_, err := service.CreateBooking(context.Background(), validInput(1))
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	repo.AssertNumberOfCalls(t, "Create", pnrAttempts)
	producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_CreateBooking_StoreFailure(t *testing.T) {
	repo := &MockBookingRepository{}
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection reset"))
	service := newTestService(repo, newProducer())

	_, err := service.CreateBooking(context.Background(), validInput(1))
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	assert.Equal(t, "internal server error", domain.MessageOf(err))
}

func TestBookingService_PublishFailureDoesNotFailCreate(t *testing.T) {
	producer := &MockProducer{}
	producer.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))
	service := newTestService(repository.NewMemoryBookingRepository(), producer)

	b, err := service.CreateBooking(context.Background(), validInput(1))
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPending, b.Status)
}

func TestBookingService_GetBooking(t *testing.T) {
	service := newTestService(repository.NewMemoryBookingRepository(), newProducer())
	b := createPending(t, service)

	got, err := service.GetBooking(context.Background(), "user-1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = service.GetBooking(context.Background(), "someone-else", b.ID)
	assert.Equal(t, domain.KindBookingNotFound, domain.KindOf(err))

	_, err = service.GetBooking(context.Background(), "user-1", "missing")
	assert.Equal(t, domain.KindBookingNotFound, domain.KindOf(err))
}

func TestBookingService_ListUserBookings_NewestFirst(t *testing.T) {
	clock := testNow
	service := newTestService(repository.NewMemoryBookingRepository(), newProducer(),
		WithClock(func() time.Time { return clock }))

	first := createPending(t, service)
	clock = clock.Add(time.Minute)
	second := createPending(t, service)

	list, err := service.ListUserBookings(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestBookingService_ListBookings_Pagination(t *testing.T) {
	repo := &MockBookingRepository{}
	repo.On("List", mock.Anything, 40, 20).Return([]domain.Booking{{ID: "b41"}}, 41, nil).Once()
	repo.On("List", mock.Anything, 0, 100).Return([]domain.Booking{}, 0, nil).Once()
	service := newTestService(repo, newProducer())

	page, err := service.ListBookings(context.Background(), 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 41, page.Total)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 20, page.PageSize)

	page, err = service.ListBookings(context.Background(), 0, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.PageSize)
	repo.AssertExpectations(t)
}

func TestBookingService_CancelBooking(t *testing.T) {
	producer := newProducer()
	service := newTestService(repository.NewMemoryBookingRepository(), producer)
	b := createPending(t, service)

	cancelled, err := service.CancelBooking(context.Background(), "user-1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, cancelled.Status)

	again, err := service.CancelBooking(context.Background(), "user-1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, again.Status)

	assert.Equal(t, []string{kafka.EventBookingCreated, kafka.EventBookingCancelled}, producer.events(bookingTopic))
	assert.Equal(t, []string{kafka.EventBookingCancelled}, producer.events(notificationsTopic))
}

func TestBookingService_CancelAfterConfirmRejected(t *testing.T) {
	repo := repository.NewMemoryBookingRepository()
	service := newTestService(repo, newProducer())
	b := createPending(t, service)

	_, applied, err := service.MarkConfirmed(context.Background(), b.ID, "payment")
	require.NoError(t, err)
	require.True(t, applied)

	_, err = service.CancelBooking(context.Background(), "user-1", b.ID)
	require.Error(t, err)
	assert.Equal(t, domain.KindBookingNotCancellable, domain.KindOf(err))
	assert.Contains(t, domain.MessageOf(err), "contact support")

	stored, err := repo.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, stored.Status)
}

func TestBookingService_CancelBooking_NotOwner(t *testing.T) {
	service := newTestService(repository.NewMemoryBookingRepository(), newProducer())
	b := createPending(t, service)

	_, err := service.CancelBooking(context.Background(), "intruder", b.ID)
	assert.Equal(t, domain.KindBookingNotFound, domain.KindOf(err))
}

func TestBookingService_CancelBooking_WaitsForBookingLock(t *testing.T) {
	locks := keylock.New()
	repo := repository.NewMemoryBookingRepository()
	service := newTestService(repo, newProducer(), WithKeyedMutex(locks))
	b := createPending(t, service)

	unlock := locks.Lock(b.ID)
	done := make(chan error, 1)
	go func() {
		_, err := service.CancelBooking(context.Background(), "user-1", b.ID)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("cancel did not wait for the booking lock")
	case <-time.After(50 * time.Millisecond):
	}
	// A payment confirms the booking while holding the lock.
	_, applied, err := service.MarkConfirmed(context.Background(), b.ID, "payment")
	require.NoError(t, err)
	require.True(t, applied)
	unlock()

	err = <-done
	assert.Equal(t, domain.KindBookingNotCancellable, domain.KindOf(err))
}

func TestBookingService_AdminSetStatus_WaitsForBookingLock(t *testing.T) {
	locks := keylock.New()
	service := newTestService(repository.NewMemoryBookingRepository(), newProducer(), WithKeyedMutex(locks))
	b := createPending(t, service)

	unlock := locks.Lock(b.ID)
	done := make(chan *domain.Booking, 1)
	go func() {
		got, _ := service.AdminSetStatus(context.Background(), b.ID, domain.BookingStatusCancelled)
		done <- got
	}()

	select {
	case <-done:
		t.Fatal("admin update did not wait for the booking lock")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()

	got := <-done
	require.NotNil(t, got)
	assert.Equal(t, domain.BookingStatusCancelled, got.Status)
}

func TestBookingService_MarkConfirmed(t *testing.T) {
	producer := newProducer()
	service := newTestService(repository.NewMemoryBookingRepository(), producer)
	b := createPending(t, service)

	confirmed, applied, err := service.MarkConfirmed(context.Background(), b.ID, "payment")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, domain.BookingStatusConfirmed, confirmed.Status)
	assert.Equal(t, "https://sky.test/tickets/"+b.PNR, confirmed.TicketURL)

	again, applied, err := service.MarkConfirmed(context.Background(), b.ID, "webhook")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, domain.BookingStatusConfirmed, again.Status)

	assert.Equal(t, []string{kafka.EventBookingConfirmed}, producer.events(notificationsTopic))
}

func TestBookingService_MarkConfirmed_Cancelled(t *testing.T) {
	service := newTestService(repository.NewMemoryBookingRepository(), newProducer())
	b := createPending(t, service)
	_, err := service.CancelBooking(context.Background(), "user-1", b.ID)
	require.NoError(t, err)

	_, applied, err := service.MarkConfirmed(context.Background(), b.ID, "payment")
	assert.False(t, applied)
	assert.Equal(t, domain.KindBookingNotPayable, domain.KindOf(err))
}

func TestBookingService_MarkCancelled_OnlyFromPending(t *testing.T) {
	service := newTestService(repository.NewMemoryBookingRepository(), newProducer())
	b := createPending(t, service)
	_, _, err := service.MarkConfirmed(context.Background(), b.ID, "payment")
	require.NoError(t, err)

	got, applied, err := service.MarkCancelled(context.Background(), b.ID, "webhook")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, domain.BookingStatusConfirmed, got.Status)
}

func TestBookingService_MarkRefunded(t *testing.T) {
	producer := newProducer()
	service := newTestService(repository.NewMemoryBookingRepository(), producer)
	b := createPending(t, service)
	_, _, err := service.MarkConfirmed(context.Background(), b.ID, "payment")
	require.NoError(t, err)

	got, applied, err := service.MarkRefunded(context.Background(), b.ID)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, domain.BookingStatusCancelled, got.Status)
	assert.Contains(t, producer.events(notificationsTopic), kafka.EventBookingRefunded)
}

func TestBookingService_AdminSetStatus(t *testing.T) {
	service := newTestService(repository.NewMemoryBookingRepository(), newProducer())

	t.Run("pending to confirmed stamps ticket", func(t *testing.T) {
		b := createPending(t, service)
		got, err := service.AdminSetStatus(context.Background(), b.ID, domain.BookingStatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusConfirmed, got.Status)
		assert.NotEmpty(t, got.TicketURL)
	})

	t.Run("confirmed to cancelled", func(t *testing.T) {
		b := createPending(t, service)
		_, err := service.AdminSetStatus(context.Background(), b.ID, domain.BookingStatusConfirmed)
		require.NoError(t, err)
		got, err := service.AdminSetStatus(context.Background(), b.ID, domain.BookingStatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusCancelled, got.Status)
	})

	t.Run("cancelled is terminal", func(t *testing.T) {
		b := createPending(t, service)
		_, err := service.AdminSetStatus(context.Background(), b.ID, domain.BookingStatusCancelled)
		require.NoError(t, err)
		_, err = service.AdminSetStatus(context.Background(), b.ID, domain.BookingStatusConfirmed)
		assert.Equal(t, domain.KindInvalidRequest, domain.KindOf(err))
	})

	t.Run("never back to pending", func(t *testing.T) {
		b := createPending(t, service)
		_, err := service.AdminSetStatus(context.Background(), b.ID, domain.BookingStatusConfirmed)
		require.NoError(t, err)
		_, err = service.AdminSetStatus(context.Background(), b.ID, domain.BookingStatusPending)
		assert.Equal(t, domain.KindInvalidRequest, domain.KindOf(err))
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		b := createPending(t, service)
		got, err := service.AdminSetStatus(context.Background(), b.ID, domain.BookingStatusPending)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusPending, got.Status)
	})

	t.Run("unknown booking", func(t *testing.T) {
		_, err := service.AdminSetStatus(context.Background(), "missing", domain.BookingStatusCancelled)
		assert.Equal(t, domain.KindBookingNotFound, domain.KindOf(err))
	})
}

func TestBookingService_ExpirePendingBookings(t *testing.T) {
	expiringService := func(repo repository.BookingRepository, producer Producer, opts ...BookingServiceOption) *BookingService {
		cfg := testConfig()
		cfg.PendingTTLMinutes = 30
		logger, _ := test.NewNullLogger()
		base := []BookingServiceOption{
			WithNotificationsTopic(notificationsTopic),
			WithLogger(logger),
			WithClock(func() time.Time { return testNow }),
		}
		return NewBookingService(repo, producer, bookingTopic, cfg, append(base, opts...)...)
	}

	t.Run("disabled without ttl", func(t *testing.T) {
		repo := &MockBookingRepository{}
		service := newTestService(repo, newProducer())

		expired, err := service.ExpirePendingBookings(context.Background())
		require.NoError(t, err)
		assert.Nil(t, expired)
		repo.AssertNotCalled(t, "ListPendingBefore", mock.Anything, mock.Anything)
	})

	t.Run("expires bookings older than ttl", func(t *testing.T) {
		repo := &MockBookingRepository{}
		repo.On("ListPendingBefore", mock.Anything, testNow.Add(-30*time.Minute)).
			Return([]domain.Booking{{ID: "b1", Status: domain.BookingStatusPending}}, nil).Once()
		repo.On("UpdateStatus", mock.Anything, "b1", domain.StatusChange{
			From: []domain.BookingStatus{domain.BookingStatusPending},
			To:   domain.BookingStatusExpired,
		}).Return(&domain.Booking{ID: "b1", Status: domain.BookingStatusExpired}, nil).Once()
		producer := newProducer()

		expired, err := expiringService(repo, producer).ExpirePendingBookings(context.Background())
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, domain.BookingStatusExpired, expired[0].Status)
		assert.Equal(t, []string{kafka.EventBookingExpired}, producer.events(notificationsTopic))
		repo.AssertExpectations(t)
	})

	t.Run("booking paid after listing is left alone", func(t *testing.T) {
		repo := &MockBookingRepository{}
		repo.On("ListPendingBefore", mock.Anything, mock.Anything).
			Return([]domain.Booking{{ID: "b1", Status: domain.BookingStatusPending}}, nil).Once()
		repo.On("UpdateStatus", mock.Anything, "b1", mock.Anything).
			Return(&domain.Booking{ID: "b1", Status: domain.BookingStatusConfirmed}, repository.ErrStatusConflict).Once()
		producer := newProducer()

		expired, err := expiringService(repo, producer).ExpirePendingBookings(context.Background())
		require.NoError(t, err)
		assert.Empty(t, expired)
		assert.Empty(t, producer.events(notificationsTopic))
	})

	t.Run("waits for a payment holding the booking", func(t *testing.T) {
		locks := keylock.New()
		repo := repository.NewMemoryBookingRepository()
		service := expiringService(repo, newProducer(), WithKeyedMutex(locks))
		b := &domain.Booking{
			ID:        "b-stale",
			PNR:       "STALE1",
			UserID:    "user-1",
			Status:    domain.BookingStatusPending,
			CreatedAt: testNow.Add(-time.Hour),
		}
		require.NoError(t, repo.Create(context.Background(), b))

		unlock := locks.Lock(b.ID)
		done := make(chan []domain.Booking, 1)
		go func() {
			expired, _ := service.ExpirePendingBookings(context.Background())
			done <- expired
		}()

		select {
		case <-done:
			t.Fatal("expiry did not wait for the booking lock")
		case <-time.After(50 * time.Millisecond):
		}
		_, err := repo.UpdateStatus(context.Background(), b.ID, domain.StatusChange{
			From: []domain.BookingStatus{domain.BookingStatusPending},
			To:   domain.BookingStatusConfirmed,
		})
		require.NoError(t, err)
		unlock()

		assert.Empty(t, <-done)
		stored, err := repo.GetByID(context.Background(), b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusConfirmed, stored.Status)
	})
}

func TestBookingService_RunExpirySweep(t *testing.T) {
	t.Run("expires on tick", func(t *testing.T) {
		repo := &MockBookingRepository{}
		swept := make(chan struct{}, 1)
		repo.On("ListPendingBefore", mock.Anything, mock.Anything).
			Return([]domain.Booking{}, nil).
			Run(func(mock.Arguments) {
				select {
				case swept <- struct{}{}:
				default:
				}
			})

		cfg := testConfig()
		cfg.PendingTTLMinutes = 30
		logger, _ := test.NewNullLogger()
		service := NewBookingService(repo, newProducer(), bookingTopic, cfg, WithLogger(logger))

		ctx, cancel := context.WithCancel(context.Background())
		stopped := make(chan struct{})
		go func() {
			service.RunExpirySweep(ctx, 5*time.Millisecond)
			close(stopped)
		}()

		select {
		case <-swept:
		case <-time.After(time.Second):
			t.Fatal("sweep never ran")
		}
		cancel()
		<-stopped
	})

	t.Run("disabled sweep returns on cancel", func(t *testing.T) {
		repo := &MockBookingRepository{}
		service := newTestService(repo, newProducer())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		service.RunExpirySweep(ctx, time.Millisecond)
		repo.AssertNotCalled(t, "ListPendingBefore", mock.Anything, mock.Anything)
	})
}

func TestGeneratePNR(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		pnr, err := GeneratePNR()
		require.NoError(t, err)
		assert.Regexp(t, `^[A-Z0-9]{6}$`, pnr)
		seen[pnr] = true
	}
	assert.Greater(t, len(seen), 190)
}
