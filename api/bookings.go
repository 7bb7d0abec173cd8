package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type createBookingRequest struct {
	Route          domain.FlightRoute `json:"route"`
	Passengers     []domain.Passenger `json:"passengers"`
	ContactEmail   string             `json:"contactEmail"`
	TermsAccepted  bool               `json:"termsAccepted"`
	SelectedFlight json.RawMessage    `json:"selectedFlight,omitempty"`
	TotalAmount    *float64           `json:"totalAmount,omitempty"`
}

type bookingResponse struct {
	ID             string             `json:"id"`
	PNR            string             `json:"pnr"`
	UserID         string             `json:"userId"`
	Route          domain.FlightRoute `json:"route"`
	Passengers     []domain.Passenger `json:"passengers"`
	ContactEmail   string             `json:"contactEmail"`
	TotalAmount    float64            `json:"totalAmount"`
	BasePrice      float64            `json:"basePrice"`
	Currency       string             `json:"currency"`
	SelectedFlight json.RawMessage    `json:"selectedFlight,omitempty"`
	TicketURL      string             `json:"ticketUrl,omitempty"`
	Status         string             `json:"status"`
	CreatedAt      string             `json:"createdAt"`
	UpdatedAt      string             `json:"updatedAt"`
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	return bookingResponse{
		ID:             b.ID,
		PNR:            b.PNR,
		UserID:         b.UserID,
		Route:          b.Route,
		Passengers:     b.Passengers,
		ContactEmail:   b.ContactEmail,
		TotalAmount:    domain.FromCents(b.TotalCents),
		BasePrice:      domain.FromCents(b.BasePriceCents),
		Currency:       b.Currency,
		SelectedFlight: b.SelectedFlight,
		TicketURL:      b.TicketURL,
		Status:         string(b.Status),
		CreatedAt:      b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toBookingResponses(bookings []domain.Booking) []bookingResponse {
	out := make([]bookingResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, toBookingResponse(&bookings[i]))
	}
	return out
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

// Register mounts the owner routes. Callers wrap router with user authorization.
func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/bookings", h.create)
	router.GET("/bookings/:bookingId", h.get)
	router.PUT("/bookings/:bookingId/cancel", h.cancel)
	router.GET("/user/bookings", h.listMine)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.NewError(domain.KindInvalidBookingPayload, "Invalid booking data: malformed JSON body"))
		return
	}

	b, err := h.service.CreateBooking(c.Request.Context(), booking.CreateBookingInput{
		UserID:         identityFrom(c).UserID,
		Route:          req.Route,
		Passengers:     req.Passengers,
		ContactEmail:   req.ContactEmail,
		TermsAccepted:  req.TermsAccepted,
		SelectedFlight: req.SelectedFlight,
		TotalAmount:    req.TotalAmount,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Booking created successfully",
		"booking": toBookingResponse(b),
	})
}

func (h *BookingHandler) get(c *gin.Context) {
	b, err := h.service.GetBooking(c.Request.Context(), identityFrom(c).UserID, c.Param("bookingId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "booking": toBookingResponse(b)})
}

func (h *BookingHandler) listMine(c *gin.Context) {
	bookings, err := h.service.ListUserBookings(c.Request.Context(), identityFrom(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bookings": toBookingResponses(bookings)})
}

func (h *BookingHandler) cancel(c *gin.Context) {
	b, err := h.service.CancelBooking(c.Request.Context(), identityFrom(c).UserID, c.Param("bookingId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Booking cancelled",
		"booking": toBookingResponse(b),
	})
}
