package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/service/booking"
	"github.com/Domenick1991/skybooking/internal/service/payment"
	"github.com/Domenick1991/skybooking/internal/service/support"
	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	bookings booking.BookingUseCase
	payments payment.PaymentUseCase
	support  support.SupportUseCase
}

type setStatusRequest struct {
	Status string `json:"status"`
}

type updateTicketRequest struct {
	Status   *domain.TicketStatus   `json:"status"`
	Priority *domain.TicketPriority `json:"priority"`
}

type transactionResponse struct {
	ID            string  `json:"id"`
	BookingID     string  `json:"bookingId"`
	UserID        string  `json:"userId"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Method        string  `json:"method"`
	Status        string  `json:"status"`
	TransactionID string  `json:"transactionId"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
}

func toTransactionResponse(t *domain.PaymentTransaction) transactionResponse {
	return transactionResponse{
		ID:            t.ID,
		BookingID:     t.BookingID,
		UserID:        t.UserID,
		Amount:        domain.FromCents(t.AmountCents),
		Currency:      t.Currency,
		Method:        string(t.Method),
		Status:        string(t.Status),
		TransactionID: t.Reference,
		CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func NewAdminHandler(bookings booking.BookingUseCase, payments payment.PaymentUseCase, support support.SupportUseCase) *AdminHandler {
	return &AdminHandler{bookings: bookings, payments: payments, support: support}
}

func (h *AdminHandler) Register(router *gin.RouterGroup) {
	router.GET("/bookings", h.listBookings)
	router.PUT("/bookings/:bookingId/status", h.setStatus)
	router.POST("/payments/:transactionId/refund", h.refund)
	router.PUT("/support/tickets/:ticketId", h.updateTicket)
}

func (h *AdminHandler) listBookings(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	result, err := h.bookings.ListBookings(c.Request.Context(), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"bookings": toBookingResponses(result.Bookings),
		"total":    result.Total,
		"page":     result.Page,
		"pageSize": result.PageSize,
	})
}

func (h *AdminHandler) setStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}
	status, ok := domain.ParseBookingStatus(req.Status)
	if !ok {
		badRequest(c, "status must be one of pending, confirmed, cancelled, expired")
		return
	}

	b, err := h.bookings.AdminSetStatus(c.Request.Context(), c.Param("bookingId"), status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Booking status updated",
		"booking": toBookingResponse(b),
	})
}

func (h *AdminHandler) refund(c *gin.Context) {
	txn, err := h.payments.RefundPayment(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "Payment refunded",
		"transaction": toTransactionResponse(txn),
	})
}

func (h *AdminHandler) updateTicket(c *gin.Context) {
	var req updateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid ticket update")
		return
	}
	ticket, err := h.support.AdminUpdate(c.Request.Context(), c.Param("ticketId"), support.UpdateTicketInput{
		Status:   req.Status,
		Priority: req.Priority,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ticket": toTicketResponse(ticket)})
}
