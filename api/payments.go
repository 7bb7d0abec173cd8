package api

import (
	"encoding/json"
	"net/http"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/service/payment"
	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	service payment.PaymentUseCase
}

type processPaymentRequest struct {
	BookingID      string          `json:"bookingId"`
	PaymentMethod  string          `json:"paymentMethod"`
	PaymentDetails json.RawMessage `json:"paymentDetails"`
}

type bookingRefRequest struct {
	BookingID string `json:"bookingId"`
}

type captureRequest struct {
	OrderID string `json:"orderId"`
}

func NewPaymentHandler(service payment.PaymentUseCase) *PaymentHandler {
	return &PaymentHandler{service: service}
}

func (h *PaymentHandler) Register(router *gin.RouterGroup) {
	router.POST("/payments", h.process)
	router.POST("/payments/stripe/create-intent", h.createStripeIntent)
	router.GET("/payments/stripe/config", h.stripeConfig)
	router.POST("/payments/paypal/create-order", h.createPayPalOrder)
	router.POST("/payments/paypal/capture", h.capturePayPalOrder)
}

func (h *PaymentHandler) process(c *gin.Context) {
	var req processPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.NewError(domain.KindPaymentDetailsInvalid, "Invalid payment request"))
		return
	}
	if req.BookingID == "" {
		badRequest(c, "bookingId is required")
		return
	}

	result, err := h.service.ProcessPayment(c.Request.Context(), payment.ProcessPaymentInput{
		UserID:    identityFrom(c).UserID,
		BookingID: req.BookingID,
		Method:    domain.PaymentMethod(req.PaymentMethod),
		Details:   req.PaymentDetails,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       result.Success,
		"transactionId": result.TransactionID,
		"message":       result.Message,
		"booking":       toBookingResponse(result.Booking),
	})
}

func (h *PaymentHandler) createStripeIntent(c *gin.Context) {
	var req bookingRefRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.BookingID == "" {
		badRequest(c, "bookingId is required")
		return
	}
	intent, err := h.service.CreateStripeIntent(c.Request.Context(), identityFrom(c).UserID, req.BookingID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"clientSecret":    intent.ClientSecret,
		"paymentIntentId": intent.PaymentIntentID,
		"amount":          domain.FromCents(intent.AmountCents),
		"currency":        intent.Currency,
	})
}

func (h *PaymentHandler) stripeConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"publishableKey": h.service.StripeConfig().PublishableKey,
	})
}

func (h *PaymentHandler) createPayPalOrder(c *gin.Context) {
	var req bookingRefRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.BookingID == "" {
		badRequest(c, "bookingId is required")
		return
	}
	order, err := h.service.CreatePayPalOrder(c.Request.Context(), identityFrom(c).UserID, req.BookingID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"orderId":    order.OrderID,
		"status":     order.Status,
		"approveUrl": order.ApproveURL,
	})
}

func (h *PaymentHandler) capturePayPalOrder(c *gin.Context) {
	var req captureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "orderId is required")
		return
	}
	order, err := h.service.CapturePayPalOrder(c.Request.Context(), req.OrderID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"orderId": order.OrderID,
		"status":  order.Status,
	})
}
