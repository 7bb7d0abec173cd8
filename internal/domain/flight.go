package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

type Airport struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	City    string `json:"city"`
	Country string `json:"country"`
}

type TripType string

const (
	TripTypeOneWay    TripType = "oneway"
	TripTypeRoundTrip TripType = "roundtrip"
)

type FlightRoute struct {
	From          Airport  `json:"from"`
	To            Airport  `json:"to"`
	DepartureDate string   `json:"departureDate"`
	ReturnDate    string   `json:"returnDate,omitempty"`
	TripType      TripType `json:"tripType"`
}

// DateViolations checks the date fields against each other and against today.
// A round trip needs a return date strictly after departure; a one-way trip must not carry one.
func (r FlightRoute) DateViolations(today time.Time) map[string]string {
	out := make(map[string]string)

	departure, err := time.Parse(DateLayout, r.DepartureDate)
	if err != nil {
		out["route.departureDate"] = "Departure date must be a valid date (YYYY-MM-DD)"
		return out
	}
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if departure.Before(day) {
		out["route.departureDate"] = "Departure date cannot be in the past"
	}

	switch r.TripType {
	case TripTypeOneWay:
		if r.ReturnDate != "" {
			out["route.returnDate"] = "Return date is only allowed for round trips"
		}
	case TripTypeRoundTrip:
		if r.ReturnDate == "" {
			out["route.returnDate"] = "Return date is required for round trips"
			break
		}
		ret, err := time.Parse(DateLayout, r.ReturnDate)
		if err != nil {
			out["route.returnDate"] = "Return date must be a valid date (YYYY-MM-DD)"
			break
		}
		if !ret.After(departure) {
			out["route.returnDate"] = "Return date must be after departure date"
		}
	default:
		out["route.tripType"] = "Trip type must be oneway or roundtrip"
	}
	return out
}

type FlightQuery struct {
	Origin        string
	Destination   string
	DepartureDate string
	ReturnDate    string
	Adults        int
	Max           int
}

// FlightOffer is a vendor flight-offer snapshot. Raw keeps the untouched vendor payload.
type FlightOffer struct {
	ID    string          `json:"id"`
	Price OfferPrice      `json:"price"`
	Raw   json.RawMessage `json:"raw,omitempty"`
}

type OfferPrice struct {
	Total    string `json:"total"`
	Currency string `json:"currency"`
}

// ParseOfferPrice extracts price.total and price.currency from a selected
// flight snapshot. price.total may be a JSON string or number.
func ParseOfferPrice(raw json.RawMessage) (cents int64, currency string, ok bool) {
	if len(raw) == 0 {
		return 0, "", false
	}
	var snapshot struct {
		Price *struct {
			Total    json.RawMessage `json:"total"`
			Currency string          `json:"currency"`
		} `json:"price"`
	}
	if err := json.Unmarshal(raw, &snapshot); err != nil || snapshot.Price == nil || len(snapshot.Price.Total) == 0 {
		return 0, "", false
	}
	total, err := strconv.ParseFloat(strings.Trim(string(snapshot.Price.Total), `"`), 64)
	if err != nil || total <= 0 {
		return 0, "", false
	}
	return ToCents(total), strings.ToUpper(snapshot.Price.Currency), true
}
