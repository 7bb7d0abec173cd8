package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/Domenick1991/skybooking/config"
	"github.com/Domenick1991/skybooking/internal/kafka"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

type Notifier interface {
	Send(ctx context.Context, event kafka.BookingEvent) error
}

// Sender delivers booking notifications through SendGrid. Without an API key
// it only logs what would have been sent.
type Sender struct {
	client *sendgrid.Client
	from   *mail.Email
	log    logrus.FieldLogger
}

var _ Notifier = (*Sender)(nil)

func NewSender(cfg config.SendGridConfig, log logrus.FieldLogger) *Sender {
	s := &Sender{
		from: mail.NewEmail(cfg.FromName, cfg.FromEmail),
		log:  log,
	}
	if cfg.APIKey != "" {
		s.client = sendgrid.NewSendClient(cfg.APIKey)
	}
	return s
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	subject, body, ok := Render(event)
	if !ok {
		return nil
	}
	if event.Email == "" {
		return fmt.Errorf("booking %s has no contact email", event.BookingID)
	}

	entry := s.log.WithFields(logrus.Fields{"booking_id": event.BookingID, "type": event.Type, "to": event.Email})
	if s.client == nil {
		entry.Info("sendgrid not configured, email skipped")
		return nil
	}

	message := mail.NewSingleEmail(s.from, subject, mail.NewEmail("", event.Email), body, htmlBody(body))
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid responded %d: %s", resp.StatusCode, resp.Body)
	}

	entry.Info("email sent")
	return nil
}

// Render builds the subject and plain-text body for an event. It reports false
// for event types that produce no email.
func Render(event kafka.BookingEvent) (subject, body string, ok bool) {
	route := fmt.Sprintf("%s → %s on %s", event.Route.From.Code, event.Route.To.Code, event.Route.DepartureDate)
	amount := fmt.Sprintf("%.2f %s", event.TotalAmount, event.Currency)

	switch event.Type {
	case kafka.EventBookingConfirmed:
		subject = fmt.Sprintf("Booking confirmed - %s", event.PNR)
		body = fmt.Sprintf("Your booking %s is confirmed.\nFlight: %s\nPassengers: %d\nTotal paid: %s\n",
			event.PNR, route, event.PassengerCount, amount)
		if event.TicketURL != "" {
			body += "Your ticket: " + event.TicketURL + "\n"
		}
	case kafka.EventBookingCancelled:
		subject = fmt.Sprintf("Booking cancelled - %s", event.PNR)
		body = fmt.Sprintf("Your booking %s for %s has been cancelled.\n", event.PNR, route)
	case kafka.EventBookingRefunded:
		subject = fmt.Sprintf("Refund issued - %s", event.PNR)
		body = fmt.Sprintf("A refund of %s for booking %s has been issued.\n", amount, event.PNR)
	case kafka.EventBookingExpired:
		subject = fmt.Sprintf("Booking expired - %s", event.PNR)
		body = fmt.Sprintf("Your booking %s for %s expired before payment was received.\n", event.PNR, route)
	default:
		return "", "", false
	}
	return subject, body, true
}

func htmlBody(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	return "<p>" + strings.Join(lines, "<br>") + "</p>"
}
