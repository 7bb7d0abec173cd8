package api

import (
	"context"
	"time"

	"github.com/Domenick1991/skybooking/internal/authz"
	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/lithammer/shortuuid/v3"
	"github.com/sirupsen/logrus"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderRequestID = "X-Request-ID"

	identityKey = "identity"
	loggerKey   = "logger"
)

type Authorizer interface {
	Allowed(ctx context.Context, who authz.Identity, action string) (bool, error)
}

// RequestLogger tags each request with an id and logs its outcome.
func RequestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = shortuuid.New()
		}
		c.Header(HeaderRequestID, requestID)

		entry := log.WithField("request_id", requestID)
		c.Set(loggerKey, entry)
		c.Next()

		fields := logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}
		if c.Writer.Status() >= 500 {
			entry.WithFields(fields).Error("request completed")
			return
		}
		entry.WithFields(fields).Info("request completed")
	}
}

// Identity reads the caller asserted by the upstream gateway.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(identityKey, authz.Identity{
			UserID: c.GetHeader(HeaderUserID),
			Role:   c.GetHeader(HeaderUserRole),
		})
		c.Next()
	}
}

func identityFrom(c *gin.Context) authz.Identity {
	if v, ok := c.Get(identityKey); ok {
		if who, ok := v.(authz.Identity); ok {
			return who
		}
	}
	return authz.Identity{UserID: c.GetHeader(HeaderUserID), Role: c.GetHeader(HeaderUserRole)}
}

// Authorize rejects the request unless the policy allows action for the caller.
func Authorize(a Authorizer, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		who := identityFrom(c)
		allowed, err := a.Allowed(c.Request.Context(), who, action)
		if err != nil {
			writeError(c, domain.WrapError(domain.KindInternal, "authorization failed", err))
			return
		}
		if !allowed {
			if who.UserID == "" {
				writeError(c, domain.NewError(domain.KindUnauthorized, "Authentication required"))
				return
			}
			writeError(c, domain.NewError(domain.KindForbidden, "You are not allowed to perform this action"))
			return
		}
		c.Next()
	}
}
