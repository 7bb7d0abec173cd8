package booking

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/validation"
)

const (
	pnrAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// maxTotalAmount bounds client totals so their cents always fit an int64.
	maxTotalAmount = 1_000_000.0
)

var (
	airportSchema = validation.Schema{
		"code": {
			validation.Required("Airport is required"),
			validation.Pattern(`^[A-Z]{3}$`, "Airport code must be a 3-letter IATA code"),
		},
	}

	passengerSchema = validation.Schema{
		"title": {
			validation.Required("Title is required"),
			validation.OneOf([]string{string(domain.TitleMr), string(domain.TitleMs), string(domain.TitleMrs)}, "Title must be Mr, Ms or Mrs"),
		},
		"firstName": nameRules("First name"),
		"lastName":  nameRules("Last name"),
		"email": {
			validation.Required("Email is required"),
			validation.Email("Please enter a valid email address"),
		},
	}

	contactSchema = validation.Schema{
		"contactEmail": {
			validation.Required("Contact email is required"),
			validation.Email("Please enter a valid contact email address"),
		},
	}
)

func nameRules(label string) []validation.Rule {
	return []validation.Rule{
		validation.Required(label + " is required"),
		validation.MinLength(2, label+" must be at least 2 characters"),
		validation.MaxLength(50, label+" must be at most 50 characters"),
		validation.Pattern(`^[\p{L}\s'-]+$`, label+" can only contain letters, spaces, hyphens and apostrophes"),
	}
}

func normalizeInput(input *CreateBookingInput) {
	input.Route.From.Code = strings.ToUpper(strings.TrimSpace(input.Route.From.Code))
	input.Route.To.Code = strings.ToUpper(strings.TrimSpace(input.Route.To.Code))
	input.ContactEmail = strings.TrimSpace(input.ContactEmail)
	for i := range input.Passengers {
		p := &input.Passengers[i]
		p.FirstName = strings.TrimSpace(p.FirstName)
		p.LastName = strings.TrimSpace(p.LastName)
		p.Email = strings.TrimSpace(p.Email)
	}
}

func (s *BookingService) validate(input CreateBookingInput) validation.Errors {
	errs := validation.Errors{}

	for prefix, airport := range map[string]domain.Airport{"route.from.": input.Route.From, "route.to.": input.Route.To} {
		form := validation.NewForm(airportSchema)
		if !form.ValidateForm(map[string]string{"code": airport.Code}) {
			errs.Merge(prefix, form.Errors())
		}
	}
	if input.Route.From.Code != "" && input.Route.From.Code == input.Route.To.Code {
		errs.Add("route.to.code", "Destination must be different from origin")
	}
	for field, msg := range input.Route.DateViolations(s.now()) {
		errs.Add(field, msg)
	}

	switch n := len(input.Passengers); {
	case n == 0:
		errs.Add("passengers", "At least one passenger is required")
	case n > s.maxPassengers:
		errs.Add("passengers", fmt.Sprintf("A booking can have at most %d passengers", s.maxPassengers))
	}
	for i, p := range input.Passengers {
		form := validation.NewForm(passengerSchema)
		values := map[string]string{
			"title":     string(p.Title),
			"firstName": p.FirstName,
			"lastName":  p.LastName,
			"email":     p.Email,
		}
		if !form.ValidateForm(values) {
			errs.Merge(fmt.Sprintf("passengers[%d].", i), form.Errors())
		}
	}

	form := validation.NewForm(contactSchema)
	if !form.ValidateForm(map[string]string{"contactEmail": input.ContactEmail}) {
		errs.Merge("", form.Errors())
	}

	if input.TotalAmount != nil && *input.TotalAmount > maxTotalAmount {
		errs.Add("totalAmount", fmt.Sprintf("Total amount must not exceed %.0f", maxTotalAmount))
	}
	return errs
}

// price applies the pricing policy: a positive client total wins, then the
// selected offer's unit price times the passenger count, then the flat
// fallback rate. It returns total and unit price in cents; with a client
// total the unit price is that total split evenly across passengers.
func (s *BookingService) price(input CreateBookingInput) (total, base int64, currency string) {
	n := int64(len(input.Passengers))
	offerCents, offerCurrency, hasOffer := domain.ParseOfferPrice(input.SelectedFlight)

	currency = s.defaultCurrency
	if hasOffer && offerCurrency != "" {
		currency = offerCurrency
	}

	switch {
	case input.TotalAmount != nil && *input.TotalAmount > 0:
		total = domain.ToCents(*input.TotalAmount)
		base = (total + n/2) / n
	case hasOffer:
		base = offerCents
		total = offerCents * n
	default:
		base = s.fallbackUnitCents
		total = s.fallbackUnitCents * n
		currency = s.defaultCurrency
	}
	return total, base, currency
}

// GeneratePNR draws 6 characters uniformly from [A-Z0-9].
func GeneratePNR() (string, error) {
	max := big.NewInt(int64(len(pnrAlphabet)))
	buf := make([]byte, 6)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = pnrAlphabet[n.Int64()]
	}
	return string(buf), nil
}
