package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Handlers groups the HTTP surface. Nil handlers are not mounted.
type Handlers struct {
	Bookings *BookingHandler
	Payments *PaymentHandler
	Webhooks *WebhookHandler
	Admin    *AdminHandler
	Flights  *FlightHandler
	Support  *SupportHandler
}

type RouterConfig struct {
	Authorizer Authorizer
	Gatherer   prometheus.Gatherer
	Logger     logrus.FieldLogger
}

func NewRouter(cfg RouterConfig, h Handlers) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(cfg.Logger), Identity())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	apiGroup := router.Group("/api")

	public := apiGroup.Group("", Authorize(cfg.Authorizer, "public:read"))
	if h.Flights != nil {
		h.Flights.Register(public)
	}
	if h.Webhooks != nil {
		// Authenticated by the provider signature, not by identity headers.
		h.Webhooks.Register(apiGroup)
	}

	user := apiGroup.Group("", Authorize(cfg.Authorizer, "user:access"))
	if h.Bookings != nil {
		h.Bookings.Register(user)
	}
	if h.Payments != nil {
		h.Payments.Register(user)
	}
	if h.Support != nil {
		h.Support.Register(user)
	}

	if h.Admin != nil {
		h.Admin.Register(apiGroup.Group("/admin", Authorize(cfg.Authorizer, "admin:manage")))
	}
	return router
}
