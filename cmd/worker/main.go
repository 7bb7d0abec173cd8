package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/skybooking/config"
	"github.com/Domenick1991/skybooking/internal/bootstrap"
	"github.com/Domenick1991/skybooking/internal/email"
	"github.com/Domenick1991/skybooking/internal/kafka"
	"github.com/Domenick1991/skybooking/internal/logger"
	"github.com/Domenick1991/skybooking/internal/service/booking"
	kafkaGo "github.com/segmentio/kafka-go"
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
		log.WithError(err).Fatal("worker stopped")
	}
	log.Info("worker shut down")
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	stores, err := bootstrap.OpenStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	g, ctx := errgroup.WithContext(ctx)

	var producer booking.Producer
	if cfg.Kafka.Enabled() {
		kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer kafkaProducer.Close()
		producer = kafkaProducer

		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
		defer consumer.Close()
		sender := email.NewSender(cfg.SendGrid, log)

		g.Go(func() error {
			err := consumer.Consume(ctx, func(ctx context.Context, msg kafkaGo.Message) error {
				event, err := kafka.DecodeBookingEvent(msg)
				if err != nil {
					log.WithError(err).WithField("offset", msg.Offset).Warn("skipping undecodable notification")
					return nil
				}
				if err := sender.Send(ctx, event); err != nil {
					log.WithError(err).WithField("booking_id", event.BookingID).Error("notification failed")
				}
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		dispatcher := email.NewDispatcher(cfg.Kafka.NotificationsTopic, email.NewSender(cfg.SendGrid, log), log)
		defer dispatcher.Wait()
		producer = dispatcher
		log.Warn("kafka not configured, notification consumer disabled")
	}

	bookingService := booking.NewBookingService(
		stores.Bookings,
		producer,
		cfg.Kafka.BookingEventsTopic,
		cfg.Booking,
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithLogger(log),
	)

	if cfg.Storage.Driver == "memory" {
		log.Warn("memory storage is private to each process, pending booking expiry runs in the app")
		g.Go(func() error {
			<-ctx.Done()
			return nil
		})
	} else {
		g.Go(func() error {
			bookingService.RunExpirySweep(ctx, cfg.Worker.ExpirationSweep())
			return nil
		})
	}

	return g.Wait()
}
