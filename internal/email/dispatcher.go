package email

import (
	"context"
	"sync"
	"time"

	"github.com/Domenick1991/skybooking/internal/kafka"
	"github.com/sirupsen/logrus"
)

const sendTimeout = 15 * time.Second

// Dispatcher delivers notifications in-process when no Kafka broker is
// configured. It accepts the same Publish calls as the Kafka producer and
// ignores every topic except the notifications one.
type Dispatcher struct {
	topic    string
	notifier Notifier
	log      logrus.FieldLogger
	wg       sync.WaitGroup
}

func NewDispatcher(topic string, notifier Notifier, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{topic: topic, notifier: notifier, log: log}
}

// Publish never blocks on delivery and never fails the caller.
func (d *Dispatcher) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	if topic != d.topic {
		return nil
	}
	event, ok := payload.(kafka.BookingEvent)
	if !ok {
		d.log.WithField("key", key).Warn("dispatcher received unexpected payload")
		return nil
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		if err := d.notifier.Send(sendCtx, event); err != nil {
			d.log.WithError(err).WithField("booking_id", event.BookingID).Error("notification failed")
		}
	}()
	return nil
}

// Wait blocks until every in-flight delivery finishes.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
