package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Domenick1991/skybooking/internal/authz"
	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *MockBookingUseCase, *MockFlightUseCase) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authorizer, err := authz.NewAuthorizer(context.Background())
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	reg := prometheus.NewRegistry()
	metrics.New(reg).BookingCreated()

	bookings := &MockBookingUseCase{}
	flightsSvc := &MockFlightUseCase{}
	router := NewRouter(RouterConfig{Authorizer: authorizer, Gatherer: reg, Logger: logger}, Handlers{
		Bookings: NewBookingHandler(bookings),
		Admin:    NewAdminHandler(bookings, &MockPaymentUseCase{}, &MockSupportUseCase{}),
		Flights:  NewFlightHandler(flightsSvc),
		Webhooks: NewWebhookHandler(&MockReconciler{}),
	})
	return router, bookings, flightsSvc
}

func serve(router http.Handler, method, target, userID, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	if role != "" {
		req.Header.Set(HeaderUserRole, role)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_Authorization(t *testing.T) {
	router, bookings, flightsSvc := newTestRouter(t)
	bookings.On("ListUserBookings", mock.Anything, "user-1").Return([]domain.Booking{}, nil)
	bookings.On("ListBookings", mock.Anything, 1, 20).Return(nil, domain.NewError(domain.KindInternal, "boom"))
	flightsSvc.On("Airports", mock.Anything, "par").Return([]domain.Airport{}, nil)

	tests := []struct {
		name   string
		method string
		target string
		user   string
		role   string
		status int
	}{
		{"health", http.MethodGet, "/health", "", "", http.StatusOK},
		{"public without identity", http.MethodGet, "/api/airports?keyword=par", "", "", http.StatusOK},
		{"user route without identity", http.MethodGet, "/api/user/bookings", "", "", http.StatusUnauthorized},
		{"user route", http.MethodGet, "/api/user/bookings", "user-1", "", http.StatusOK},
		{"admin route as user", http.MethodGet, "/api/admin/bookings", "user-1", "", http.StatusForbidden},
		{"admin route without identity", http.MethodGet, "/api/admin/bookings", "", "", http.StatusUnauthorized},
		{"admin route as admin", http.MethodGet, "/api/admin/bookings", "admin-1", "admin", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.method, tt.target, tt.user, tt.role)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRouter_RequestIDAndMetrics(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := serve(router, http.MethodGet, "/health", "", "")
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	w = serve(router, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "skybooking_bookings_created_total")
}

func TestAuthorize_PolicyError(t *testing.T) {
	authorizer := &MockAuthorizer{}
	authorizer.On("Allowed", mock.Anything, authz.Identity{UserID: "u"}, "user:access").
		Return(false, assert.AnError)

	c, w := newContext(http.MethodGet, "/api/user/bookings", nil, "u")
	Authorize(authorizer, "user:access")(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, c.IsAborted())
}
