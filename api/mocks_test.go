package api

import (
	"bytes"
	"context"
	"net/http/httptest"

	"github.com/Domenick1991/skybooking/internal/authz"
	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/service/booking"
	"github.com/Domenick1991/skybooking/internal/service/payment"
	"github.com/Domenick1991/skybooking/internal/service/support"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
)

type MockBookingUseCase struct {
	mock.Mock
}

func (m *MockBookingUseCase) CreateBooking(ctx context.Context, input booking.CreateBookingInput) (*domain.Booking, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) GetBooking(ctx context.Context, userID, bookingID string) (*domain.Booking, error) {
	args := m.Called(ctx, userID, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) GetBookingByID(ctx context.Context, bookingID string) (*domain.Booking, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) ListUserBookings(ctx context.Context, userID string) ([]domain.Booking, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) ListBookings(ctx context.Context, page, pageSize int) (*booking.BookingPage, error) {
	args := m.Called(ctx, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.BookingPage), args.Error(1)
}

func (m *MockBookingUseCase) CancelBooking(ctx context.Context, userID, bookingID string) (*domain.Booking, error) {
	args := m.Called(ctx, userID, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) AdminSetStatus(ctx context.Context, bookingID string, status domain.BookingStatus) (*domain.Booking, error) {
	args := m.Called(ctx, bookingID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) ExpirePendingBookings(ctx context.Context) ([]domain.Booking, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

type MockPaymentUseCase struct {
	mock.Mock
}

func (m *MockPaymentUseCase) ProcessPayment(ctx context.Context, input payment.ProcessPaymentInput) (*payment.PaymentResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.PaymentResult), args.Error(1)
}

func (m *MockPaymentUseCase) RefundPayment(ctx context.Context, transactionID string) (*domain.PaymentTransaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentTransaction), args.Error(1)
}

func (m *MockPaymentUseCase) CreateStripeIntent(ctx context.Context, userID, bookingID string) (*payment.StripeIntent, error) {
	args := m.Called(ctx, userID, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.StripeIntent), args.Error(1)
}

func (m *MockPaymentUseCase) StripeConfig() payment.StripePublicConfig {
	args := m.Called()
	return args.Get(0).(payment.StripePublicConfig)
}

func (m *MockPaymentUseCase) CreatePayPalOrder(ctx context.Context, userID, bookingID string) (*payment.PayPalOrder, error) {
	args := m.Called(ctx, userID, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.PayPalOrder), args.Error(1)
}

func (m *MockPaymentUseCase) CapturePayPalOrder(ctx context.Context, orderID string) (*payment.PayPalOrder, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.PayPalOrder), args.Error(1)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) HandleProviderEvent(ctx context.Context, payload []byte, signature string) error {
	args := m.Called(ctx, payload, signature)
	return args.Error(0)
}

type MockFlightUseCase struct {
	mock.Mock
}

func (m *MockFlightUseCase) SearchOffers(ctx context.Context, query domain.FlightQuery) ([]domain.FlightOffer, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.FlightOffer), args.Error(1)
}

func (m *MockFlightUseCase) Airports(ctx context.Context, keyword string) ([]domain.Airport, error) {
	args := m.Called(ctx, keyword)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Airport), args.Error(1)
}

type MockSupportUseCase struct {
	mock.Mock
}

func (m *MockSupportUseCase) Create(ctx context.Context, input support.CreateTicketInput) (*domain.SupportTicket, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SupportTicket), args.Error(1)
}

func (m *MockSupportUseCase) ListByUser(ctx context.Context, userID string) ([]domain.SupportTicket, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.SupportTicket), args.Error(1)
}

func (m *MockSupportUseCase) AdminUpdate(ctx context.Context, ticketID string, input support.UpdateTicketInput) (*domain.SupportTicket, error) {
	args := m.Called(ctx, ticketID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SupportTicket), args.Error(1)
}

type MockAuthorizer struct {
	mock.Mock
}

func (m *MockAuthorizer) Allowed(ctx context.Context, who authz.Identity, action string) (bool, error) {
	args := m.Called(ctx, who, action)
	return args.Bool(0), args.Error(1)
}

// newContext returns a gin test context whose request carries the given user.
func newContext(method, target string, body []byte, userID string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	req := httptest.NewRequest(method, target, nil)
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	c.Request = req
	return c, w
}
