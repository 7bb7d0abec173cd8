package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	StatusApproved  = "APPROVED"
	StatusCompleted = "COMPLETED"
)

type Order struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Payer         Payer          `json:"payer"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units"`
	Links         []Link         `json:"links"`
}

type Payer struct {
	PayerID string `json:"payer_id"`
}

type PurchaseUnit struct {
	ReferenceID string   `json:"reference_id"`
	CustomID    string   `json:"custom_id"`
	Amount      Amount   `json:"amount"`
	Payments    Payments `json:"payments"`
}

type Amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type Payments struct {
	Captures []Capture `json:"captures"`
}

type Capture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type Link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

// ApproveURL returns the link the buyer follows to approve the order.
func (o *Order) ApproveURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

// CaptureID returns the first capture of the order, if any.
func (o *Order) CaptureID() string {
	for _, pu := range o.PurchaseUnits {
		if len(pu.Payments.Captures) > 0 {
			return pu.Payments.Captures[0].ID
		}
	}
	return ""
}

// Client talks to the PayPal Orders v2 REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL, clientID, clientSecret string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	base := &http.Client{Timeout: timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	httpClient := cc.Client(ctx)
	httpClient.Timeout = timeout
	return &Client{baseURL: baseURL, http: httpClient}
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+orderID, nil, &order); err != nil {
		return nil, fmt.Errorf("failed to get paypal order %s: %w", orderID, err)
	}
	return &order, nil
}

func (c *Client) CreateOrder(ctx context.Context, amountCents int64, currency, bookingID string) (*Order, error) {
	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []PurchaseUnit{{
			ReferenceID: bookingID,
			CustomID:    bookingID,
			Amount: Amount{
				CurrencyCode: strings.ToUpper(currency),
				Value:        formatAmount(amountCents),
			},
		}},
	}
	var order Order
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", body, &order); err != nil {
		return nil, fmt.Errorf("failed to create paypal order: %w", err)
	}
	return &order, nil
}

func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders/"+orderID+"/capture", struct{}{}, &order); err != nil {
		return nil, fmt.Errorf("failed to capture paypal order %s: %w", orderID, err)
	}
	return &order, nil
}

// RefundOrder refunds the first capture of a completed order in full.
func (c *Client) RefundOrder(ctx context.Context, orderID string) error {
	order, err := c.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	captureID := order.CaptureID()
	if captureID == "" {
		return fmt.Errorf("paypal order %s has no capture to refund", orderID)
	}
	if err := c.do(ctx, http.MethodPost, "/v2/payments/captures/"+captureID+"/refund", struct{}{}, nil); err != nil {
		return fmt.Errorf("failed to refund paypal capture %s: %w", captureID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("paypal responded %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
