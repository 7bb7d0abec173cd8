package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func sampleBooking(status domain.BookingStatus) *domain.Booking {
	created := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	return &domain.Booking{
		ID:     "b-1",
		PNR:    "AB12CD",
		UserID: "user-1",
		Route: domain.FlightRoute{
			From:          domain.Airport{Code: "JFK"},
			To:            domain.Airport{Code: "LHR"},
			DepartureDate: "2026-12-01",
			TripType:      domain.TripTypeOneWay,
		},
		Passengers:     []domain.Passenger{{Title: domain.TitleMs, FirstName: "Anna", LastName: "Smith", Email: "anna@example.com"}},
		ContactEmail:   "anna@example.com",
		TotalCents:     1500,
		BasePriceCents: 1500,
		Currency:       "USD",
		Status:         status,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Booking bookingResponse `json:"booking"`
}

func decode(t *testing.T, body []byte) envelope {
	t.Helper()
	var out envelope
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestBookingHandler_create(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)

	body := []byte(`{
		"route": {"from": {"code": "JFK"}, "to": {"code": "LHR"}, "departureDate": "2026-12-01", "tripType": "oneway"},
		"passengers": [{"title": "Ms", "firstName": "Anna", "lastName": "Smith", "email": "anna@example.com"}],
		"contactEmail": "anna@example.com",
		"termsAccepted": true,
		"totalAmount": 15
	}`)
	c, w := newContext(http.MethodPost, "/api/bookings", body, "user-1")

	mockService.On("CreateBooking", mock.Anything, mock.MatchedBy(func(in booking.CreateBookingInput) bool {
		return in.UserID == "user-1" && in.TermsAccepted && len(in.Passengers) == 1 &&
			in.TotalAmount != nil && *in.TotalAmount == 15 && in.Route.To.Code == "LHR"
	})).Return(sampleBooking(domain.BookingStatusPending), nil)

	handler.create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	response := decode(t, w.Body.Bytes())
	assert.True(t, response.Success)
	assert.Equal(t, "AB12CD", response.Booking.PNR)
	assert.Equal(t, 15.0, response.Booking.TotalAmount)
	assert.Equal(t, "pending", response.Booking.Status)
	assert.Equal(t, "2026-10-16T12:00:00Z", response.Booking.CreatedAt)
	mockService.AssertExpectations(t)
}

func TestBookingHandler_create_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"terms", domain.NewError(domain.KindTermsNotAccepted, "You must accept the terms and conditions"), http.StatusBadRequest},
		{"payload", domain.NewError(domain.KindInvalidBookingPayload, "Invalid booking data: passengers: At least one passenger is required"), http.StatusBadRequest},
		{"internal", domain.WrapError(domain.KindInternal, "failed to store booking", errors.New("pq: connection refused")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockBookingUseCase{}
			handler := NewBookingHandler(mockService)
			c, w := newContext(http.MethodPost, "/api/bookings", []byte(`{"termsAccepted": true}`), "user-1")
			mockService.On("CreateBooking", mock.Anything, mock.Anything).Return(nil, tt.err)

			handler.create(c)

			assert.Equal(t, tt.status, w.Code)
			response := decode(t, w.Body.Bytes())
			assert.False(t, response.Success)
			assert.NotContains(t, response.Message, "pq:")
		})
	}
}

func TestBookingHandler_create_MalformedJSON(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)
	c, w := newContext(http.MethodPost, "/api/bookings", []byte(`{"route":`), "user-1")

	handler.create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(domain.KindInvalidBookingPayload), decode(t, w.Body.Bytes()).Error)
	mockService.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
}

func TestBookingHandler_get(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := newContext(http.MethodGet, "/api/bookings/b-1", nil, "user-1")
	c.Params = gin.Params{{Key: "bookingId", Value: "b-1"}}
	mockService.On("GetBooking", mock.Anything, "user-1", "b-1").Return(sampleBooking(domain.BookingStatusConfirmed), nil)

	handler.get(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "confirmed", decode(t, w.Body.Bytes()).Booking.Status)
}

func TestBookingHandler_get_NotFound(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := newContext(http.MethodGet, "/api/bookings/b-9", nil, "user-2")
	c.Params = gin.Params{{Key: "bookingId", Value: "b-9"}}
	mockService.On("GetBooking", mock.Anything, "user-2", "b-9").
		Return(nil, domain.NewError(domain.KindBookingNotFound, "booking b-9 not found"))

	handler.get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBookingHandler_listMine(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := newContext(http.MethodGet, "/api/user/bookings", nil, "user-1")
	mockService.On("ListUserBookings", mock.Anything, "user-1").
		Return([]domain.Booking{*sampleBooking(domain.BookingStatusPending)}, nil)

	handler.listMine(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response struct {
		Bookings []bookingResponse `json:"bookings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Bookings, 1)
	assert.Equal(t, "b-1", response.Bookings[0].ID)
}

func TestBookingHandler_cancel_ConfirmedIsRejected(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := newContext(http.MethodPut, "/api/bookings/b-1/cancel", nil, "user-1")
	c.Params = gin.Params{{Key: "bookingId", Value: "b-1"}}
	mockService.On("CancelBooking", mock.Anything, "user-1", "b-1").
		Return(nil, domain.NewError(domain.KindBookingNotCancellable, "Confirmed bookings cannot be cancelled online, please contact support"))

	handler.cancel(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w.Body.Bytes()).Message, "contact support")
}

func TestBookingHandler_cancel(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := newContext(http.MethodPut, "/api/bookings/b-1/cancel", nil, "user-1")
	c.Params = gin.Params{{Key: "bookingId", Value: "b-1"}}
	mockService.On("CancelBooking", mock.Anything, "user-1", "b-1").Return(sampleBooking(domain.BookingStatusCancelled), nil)

	handler.cancel(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", decode(t, w.Body.Bytes()).Booking.Status)
}
