package domain

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusExpired   BookingStatus = "expired"
)

// bookingTransitions lists the allowed edges of the booking state machine.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusExpired},
	BookingStatusConfirmed: {BookingStatusCancelled},
}

func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch status := BookingStatus(s); status {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusExpired:
		return status, true
	default:
		return "", false
	}
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

// StatusChange is a compare-and-swap request: the booking moves to To only
// if its current status is one of From.
type StatusChange struct {
	From      []BookingStatus
	To        BookingStatus
	TicketURL string
}

// ChangeTo builds a StatusChange accepting every status that has an edge to target.
func ChangeTo(target BookingStatus) StatusChange {
	var from []BookingStatus
	for src, edges := range bookingTransitions {
		for _, dst := range edges {
			if dst == target {
				from = append(from, src)
			}
		}
	}
	return StatusChange{From: from, To: target}
}

func (c StatusChange) Allows(current BookingStatus) bool {
	for _, s := range c.From {
		if s == current && current.CanTransitionTo(c.To) {
			return true
		}
	}
	return false
}

type Booking struct {
	ID             string
	PNR            string
	UserID         string
	Route          FlightRoute
	Passengers     []Passenger
	ContactEmail   string
	TotalCents     int64
	BasePriceCents int64
	Currency       string
	SelectedFlight json.RawMessage
	TicketURL      string
	Status         BookingStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.Passengers = append([]Passenger(nil), b.Passengers...)
	if b.SelectedFlight != nil {
		c.SelectedFlight = append(json.RawMessage(nil), b.SelectedFlight...)
	}
	return &c
}

type PassengerTitle string

const (
	TitleMr  PassengerTitle = "Mr"
	TitleMs  PassengerTitle = "Ms"
	TitleMrs PassengerTitle = "Mrs"
)

type Passenger struct {
	Title     PassengerTitle `json:"title"`
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	Email     string         `json:"email"`
}

func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func FromCents(cents int64) float64 {
	return float64(cents) / 100
}

// TicketURL is where the e-ticket of a confirmed booking is served.
func TicketURL(base, pnr string) string {
	return strings.TrimRight(base, "/") + "/" + pnr
}
