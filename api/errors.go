package api

import (
	"net/http"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidBookingPayload,
		domain.KindTermsNotAccepted,
		domain.KindBookingNotPayable,
		domain.KindBookingNotCancellable,
		domain.KindPaymentDetailsInvalid,
		domain.KindPaymentNotVerified,
		domain.KindInvalidWebhookSignature,
		domain.KindNotRefundable,
		domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindBookingNotFound, domain.KindTransactionNotFound, domain.KindTicketNotFound:
		return http.StatusNotFound
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {success: false, message, error}. Internal
// details are logged and never sent.
func writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		loggerFrom(c).WithError(err).Error("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   string(kind),
		"message": domain.MessageOf(err),
	})
}

func badRequest(c *gin.Context, message string) {
	writeError(c, domain.NewError(domain.KindInvalidRequest, message))
}

func loggerFrom(c *gin.Context) logrus.FieldLogger {
	if v, ok := c.Get(loggerKey); ok {
		if log, ok := v.(logrus.FieldLogger); ok {
			return log
		}
	}
	return logrus.StandardLogger()
}
