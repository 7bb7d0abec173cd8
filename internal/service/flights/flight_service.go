package flights

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/sirupsen/logrus"
)

const (
	defaultAdults = 1
	maxAdults     = 9
	defaultMax    = 10
	maxOffers     = 50
)

var iataCode = regexp.MustCompile(`^[A-Z]{3}$`)

type FlightUseCase interface {
	SearchOffers(ctx context.Context, query domain.FlightQuery) ([]domain.FlightOffer, error)
	Airports(ctx context.Context, keyword string) ([]domain.Airport, error)
}

// Provider is the flight-data vendor.
type Provider interface {
	SearchOffers(ctx context.Context, query domain.FlightQuery) ([]domain.FlightOffer, error)
	Airports(ctx context.Context, keyword string) ([]domain.Airport, error)
}

type FlightCache interface {
	GetFlightOffers(ctx context.Context, query domain.FlightQuery) ([]domain.FlightOffer, error)
	SetFlightOffers(ctx context.Context, query domain.FlightQuery, offers []domain.FlightOffer) error
	GetAirports(ctx context.Context, keyword string) ([]domain.Airport, error)
	SetAirports(ctx context.Context, keyword string, airports []domain.Airport) error
}

type FlightService struct {
	provider Provider
	cache    FlightCache
	timeout  time.Duration
	log      logrus.FieldLogger
}

// NewFlightService accepts a nil provider or cache. Without a provider only
// the built-in airport list is served.
func NewFlightService(provider Provider, cache FlightCache, timeout time.Duration, log logrus.FieldLogger) *FlightService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FlightService{provider: provider, cache: cache, timeout: timeout, log: log}
}

func (s *FlightService) SearchOffers(ctx context.Context, query domain.FlightQuery) ([]domain.FlightOffer, error) {
	query, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if cached, err := s.cache.GetFlightOffers(ctx, query); err == nil && cached != nil {
			return cached, nil
		}
	}
	if s.provider == nil {
		return nil, domain.NewError(domain.KindInvalidRequest, "Flight search is not configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	offers, err := s.provider.SearchOffers(callCtx, query)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "flight search failed", err)
	}

	if s.cache != nil {
		if err := s.cache.SetFlightOffers(ctx, query, offers); err != nil {
			s.log.WithError(err).Warn("failed to cache flight offers")
		}
	}
	return offers, nil
}

// Airports looks up airports by keyword, falling back to the built-in list
// when the provider is missing or fails.
func (s *FlightService) Airports(ctx context.Context, keyword string) ([]domain.Airport, error) {
	keyword = strings.TrimSpace(keyword)
	if len(keyword) < 2 {
		return nil, domain.NewError(domain.KindInvalidRequest, "keyword must be at least 2 characters")
	}

	if s.cache != nil {
		if cached, err := s.cache.GetAirports(ctx, keyword); err == nil && cached != nil {
			return cached, nil
		}
	}
	if s.provider == nil {
		return matchDefaultAirports(keyword), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	airports, err := s.provider.Airports(callCtx, keyword)
	if err != nil {
		s.log.WithError(err).WithField("keyword", keyword).Warn("airport lookup failed, using built-in list")
		return matchDefaultAirports(keyword), nil
	}

	if s.cache != nil {
		if err := s.cache.SetAirports(ctx, keyword, airports); err != nil {
			s.log.WithError(err).Warn("failed to cache airports")
		}
	}
	return airports, nil
}

func normalizeQuery(q domain.FlightQuery) (domain.FlightQuery, error) {
	q.Origin = strings.ToUpper(strings.TrimSpace(q.Origin))
	q.Destination = strings.ToUpper(strings.TrimSpace(q.Destination))

	if !iataCode.MatchString(q.Origin) || !iataCode.MatchString(q.Destination) {
		return q, domain.NewError(domain.KindInvalidRequest, "origin and destination must be 3-letter IATA codes")
	}
	if q.Origin == q.Destination {
		return q, domain.NewError(domain.KindInvalidRequest, "destination must be different from origin")
	}
	if _, err := time.Parse(domain.DateLayout, q.DepartureDate); err != nil {
		return q, domain.NewError(domain.KindInvalidRequest, "departureDate must be YYYY-MM-DD")
	}
	if q.ReturnDate != "" {
		if _, err := time.Parse(domain.DateLayout, q.ReturnDate); err != nil {
			return q, domain.NewError(domain.KindInvalidRequest, "returnDate must be YYYY-MM-DD")
		}
	}

	switch {
	case q.Adults == 0:
		q.Adults = defaultAdults
	case q.Adults < 0 || q.Adults > maxAdults:
		return q, domain.NewError(domain.KindInvalidRequest, fmt.Sprintf("adults must be between 1 and %d", maxAdults))
	}
	if q.Max <= 0 {
		q.Max = defaultMax
	}
	if q.Max > maxOffers {
		q.Max = maxOffers
	}
	return q, nil
}

var _ FlightUseCase = (*FlightService)(nil)
