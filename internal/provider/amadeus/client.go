package amadeus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Client searches flight offers and airports through the Amadeus Self-Service APIs.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL, clientID, clientSecret string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     baseURL + "/v1/security/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})

	httpClient := cc.Client(ctx)
	httpClient.Timeout = timeout
	return &Client{baseURL: baseURL, http: httpClient}
}

func (c *Client) SearchOffers(ctx context.Context, q domain.FlightQuery) ([]domain.FlightOffer, error) {
	params := url.Values{}
	params.Set("originLocationCode", strings.ToUpper(q.Origin))
	params.Set("destinationLocationCode", strings.ToUpper(q.Destination))
	params.Set("departureDate", q.DepartureDate)
	if q.ReturnDate != "" {
		params.Set("returnDate", q.ReturnDate)
	}
	params.Set("adults", strconv.Itoa(q.Adults))
	if q.Max > 0 {
		params.Set("max", strconv.Itoa(q.Max))
	}

	var resp struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := c.get(ctx, "/v2/shopping/flight-offers", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to search flight offers: %w", err)
	}

	offers := make([]domain.FlightOffer, 0, len(resp.Data))
	for _, raw := range resp.Data {
		var head struct {
			ID    string `json:"id"`
			Price struct {
				Total    string `json:"total"`
				Currency string `json:"currency"`
			} `json:"price"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, fmt.Errorf("failed to decode flight offer: %w", err)
		}
		offers = append(offers, domain.FlightOffer{
			ID:    head.ID,
			Price: domain.OfferPrice{Total: head.Price.Total, Currency: head.Price.Currency},
			Raw:   raw,
		})
	}
	return offers, nil
}

func (c *Client) Airports(ctx context.Context, keyword string) ([]domain.Airport, error) {
	params := url.Values{}
	params.Set("subType", "AIRPORT")
	params.Set("keyword", strings.ToUpper(keyword))
	params.Set("page[limit]", "20")

	var resp struct {
		Data []struct {
			IATACode string `json:"iataCode"`
			Name     string `json:"name"`
			Address  struct {
				CityName    string `json:"cityName"`
				CountryName string `json:"countryName"`
			} `json:"address"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/v1/reference-data/locations", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to search airports: %w", err)
	}

	airports := make([]domain.Airport, 0, len(resp.Data))
	for _, d := range resp.Data {
		airports = append(airports, domain.Airport{
			Code:    d.IATACode,
			Name:    d.Name,
			City:    d.Address.CityName,
			Country: d.Address.CountryName,
		})
	}
	return airports, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("amadeus responded %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.Unmarshal(data, out)
}
