package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/service/webhook"
	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 65536

type WebhookHandler struct {
	reconciler webhook.ReconcilerUseCase
}

func NewWebhookHandler(reconciler webhook.ReconcilerUseCase) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

func (h *WebhookHandler) Register(router *gin.RouterGroup) {
	router.POST("/webhooks/stripe", h.stripe)
}

// stripe acknowledges every delivery with a valid signature, so the
// provider does not retry events that were dropped on purpose.
func (h *WebhookHandler) stripe(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		loggerFrom(c).WithField("limit", tooLarge.Limit).Warn("rejected oversized webhook")
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
			"success": false,
			"error":   "PayloadTooLarge",
			"message": "Webhook payload too large",
		})
		return
	}
	if err != nil {
		badRequest(c, "failed to read request body")
		return
	}

	err = h.reconciler.HandleProviderEvent(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if domain.KindOf(err) == domain.KindInvalidWebhookSignature {
		loggerFrom(c).WithField("remote_addr", c.ClientIP()).Warn("rejected webhook with invalid signature")
		writeError(c, err)
		return
	}
	if err != nil {
		loggerFrom(c).WithError(err).Error("webhook processing failed")
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
