package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/skybooking/api"
	"github.com/Domenick1991/skybooking/config"
	"github.com/Domenick1991/skybooking/internal/authz"
	"github.com/Domenick1991/skybooking/internal/bootstrap"
	"github.com/Domenick1991/skybooking/internal/cache"
	"github.com/Domenick1991/skybooking/internal/email"
	"github.com/Domenick1991/skybooking/internal/kafka"
	"github.com/Domenick1991/skybooking/internal/keylock"
	"github.com/Domenick1991/skybooking/internal/logger"
	"github.com/Domenick1991/skybooking/internal/metrics"
	"github.com/Domenick1991/skybooking/internal/provider/amadeus"
	"github.com/Domenick1991/skybooking/internal/provider/paypal"
	"github.com/Domenick1991/skybooking/internal/provider/stripe"
	"github.com/Domenick1991/skybooking/internal/service/booking"
	"github.com/Domenick1991/skybooking/internal/service/flights"
	"github.com/Domenick1991/skybooking/internal/service/payment"
	"github.com/Domenick1991/skybooking/internal/service/support"
	"github.com/Domenick1991/skybooking/internal/service/webhook"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server error")
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	stores, err := bootstrap.OpenStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()
	log.WithField("driver", cfg.Storage.Driver).Info("storage ready")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	authorizer, err := authz.NewAuthorizer(ctx)
	if err != nil {
		return err
	}

	var (
		flightCache    flights.FlightCache
		paymentOpts    []payment.PaymentServiceOption
		reconcilerOpts []webhook.ReconcilerOption
	)
	if cfg.Redis.Enabled() {
		redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.FlightsCacheTTL)*time.Second)
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis unavailable, running without shared cache")
		} else {
			flightCache = redisCache
			paymentOpts = append(paymentOpts, payment.WithPaymentLock(redisCache))
			reconcilerOpts = append(reconcilerOpts, webhook.WithEventStore(redisCache, 72*time.Hour))
		}
	}

	var producer booking.Producer
	if cfg.Kafka.Enabled() {
		kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer kafkaProducer.Close()
		producer = kafkaProducer
	} else {
		dispatcher := email.NewDispatcher(cfg.Kafka.NotificationsTopic, email.NewSender(cfg.SendGrid, log), log)
		defer dispatcher.Wait()
		producer = dispatcher
		log.Info("kafka not configured, notifications are sent in-process")
	}

	// Every writer of a booking's status takes the same per-booking lock.
	locks := keylock.New()
	bookingService := booking.NewBookingService(
		stores.Bookings,
		producer,
		cfg.Kafka.BookingEventsTopic,
		cfg.Booking,
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithKeyedMutex(locks),
		booking.WithLogger(log),
		booking.WithMetrics(m),
	)

	providerTimeout := cfg.Payment.ProviderTimeout()
	if cfg.Stripe.SecretKey != "" {
		paymentOpts = append(paymentOpts, payment.WithStripe(stripe.NewGateway(cfg.Stripe.SecretKey, providerTimeout), cfg.Stripe.PublishableKey))
	}
	if cfg.PayPal.ClientID != "" {
		paymentOpts = append(paymentOpts, payment.WithPayPal(paypal.NewClient(cfg.PayPal.BaseURL, cfg.PayPal.ClientID, cfg.PayPal.ClientSecret, providerTimeout)))
	}

	paymentService := payment.NewPaymentService(bookingService, stores.Payments, cfg.Payment,
		append(paymentOpts,
			payment.WithKeyedMutex(locks),
			payment.WithLogger(log),
			payment.WithMetrics(m),
		)...,
	)
	verifier := stripe.NewWebhookVerifier(cfg.Stripe.WebhookSecret)
	if !verifier.Configured() {
		log.Warn("stripe webhook secret not set, webhook deliveries will be rejected")
	}
	reconciler := webhook.NewReconciler(
		verifier,
		bookingService,
		stores.Payments,
		paymentService,
		append(reconcilerOpts,
			webhook.WithKeyedMutex(locks),
			webhook.WithLogger(log),
			webhook.WithMetrics(m),
		)...,
	)

	var flightProvider flights.Provider
	if cfg.Amadeus.ClientID != "" {
		flightProvider = amadeus.NewClient(cfg.Amadeus.BaseURL, cfg.Amadeus.ClientID, cfg.Amadeus.ClientSecret, providerTimeout)
	}
	flightService := flights.NewFlightService(flightProvider, flightCache, providerTimeout, log)
	supportService := support.NewSupportService(stores.Tickets, log)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.RouterConfig{
		Authorizer: authorizer,
		Gatherer:   reg,
		Logger:     log,
	}, api.Handlers{
		Bookings: api.NewBookingHandler(bookingService),
		Payments: api.NewPaymentHandler(paymentService),
		Webhooks: api.NewWebhookHandler(reconciler),
		Admin:    api.NewAdminHandler(bookingService, paymentService, supportService),
		Flights:  api.NewFlightHandler(flightService),
		Support:  api.NewSupportHandler(supportService),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bootstrap.Run(ctx, cfg, router, bookingService, api.Authorize(authorizer, "admin:manage"), log)
	})
	if cfg.Storage.Driver == "memory" {
		// The worker cannot see this process's bookings, so the sweep runs here.
		g.Go(func() error {
			bookingService.RunExpirySweep(ctx, cfg.Worker.ExpirationSweep())
			return nil
		})
	}
	return g.Wait()
}
