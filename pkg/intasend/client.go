/**
 * @description
 * This package provides a client for the IntaSend hosted checkout API. It
 * builds checkout requests, sends them with a bounded timeout and classifies
 * failures so callers can tell retryable outages from bad configuration.
 *
 * @dependencies
 * - bytes, context, encoding/json, net/http, time: Standard Go libraries.
 */
package intasend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrGatewayUnreachable covers network failures, timeouts and 5xx responses.
	// The request may be retried.
	ErrGatewayUnreachable = errors.New("payment gateway unreachable")
	// ErrMisconfiguredCredentials means the configured keys were missing or refused.
	ErrMisconfiguredCredentials = errors.New("payment gateway credentials misconfigured")
	// ErrGatewayRejected is any other 4xx from the gateway.
	ErrGatewayRejected = errors.New("payment gateway rejected request")
)

const defaultTimeout = 15 * time.Second

// Client is a client for the IntaSend checkout API.
type Client struct {
	BaseURL    string
	PublicKey  string
	HTTPClient *http.Client
}

// NewClient creates a new IntaSend client. A non-positive timeout selects the default.
func NewClient(baseURL, publicKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		BaseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		PublicKey: strings.TrimSpace(publicKey),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CheckoutRequest is the payload for POST /api/v1/checkout/.
type CheckoutRequest struct {
	PublicKey   string      `json:"public_key"`
	Amount      json.Number `json:"amount"`
	Currency    string      `json:"currency"`
	APIRef      string      `json:"api_ref"`
	Email       string      `json:"email"`
	FirstName   string      `json:"first_name,omitempty"`
	LastName    string      `json:"last_name,omitempty"`
	PhoneNumber string      `json:"phone_number,omitempty"`
	Address     string      `json:"address,omitempty"`
	City        string      `json:"city,omitempty"`
	Zipcode     string      `json:"zipcode,omitempty"`
	Country     string      `json:"country,omitempty"`
	RedirectURL string      `json:"redirect_url"`
	WebhookURL  string      `json:"webhook_url"`
	Host        string      `json:"host,omitempty"`
	Comment     string      `json:"comment,omitempty"`
}

// CheckoutResponse is the subset of the checkout response the service uses.
type CheckoutResponse struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	RedirectURL string `json:"redirect_url"`
	Signature   string `json:"signature"`
	APIRef      string `json:"api_ref"`
}

// SessionURL is the hosted payment page the customer is sent to.
func (r CheckoutResponse) SessionURL() string {
	if strings.TrimSpace(r.URL) != "" {
		return r.URL
	}
	return r.RedirectURL
}

// ErrorResponse is a non-2xx response from the gateway. It unwraps to one of
// the package sentinel errors.
type ErrorResponse struct {
	StatusCode int
	Detail     string
}

func (e *ErrorResponse) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("intasend api error: status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("intasend api error: status %d", e.StatusCode)
}

func (e *ErrorResponse) Unwrap() error {
	return classifyStatus(e.StatusCode)
}

// CreateCheckout requests a hosted checkout session.
func (c *Client) CreateCheckout(ctx context.Context, payload CheckoutRequest) (*CheckoutResponse, error) {
	if c.PublicKey == "" || c.BaseURL == "" {
		return nil, fmt.Errorf("%w: public key and base url are required", ErrMisconfiguredCredentials)
	}
	payload.PublicKey = c.PublicKey

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/checkout/", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create checkout request: %v", ErrMisconfiguredCredentials, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-IntaSend-Public-API-Key", c.PublicKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read checkout response: %v", ErrGatewayUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ErrorResponse{
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(bodyBytes),
		}
	}

	var checkout CheckoutResponse
	if err := json.Unmarshal(bodyBytes, &checkout); err != nil {
		return nil, fmt.Errorf("%w: failed to decode checkout response: %v", ErrGatewayUnreachable, err)
	}
	if checkout.SessionURL() == "" {
		return nil, fmt.Errorf("%w: checkout response has no url", ErrGatewayUnreachable)
	}
	return &checkout, nil
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrMisconfiguredCredentials
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return ErrGatewayUnreachable
	default:
		return ErrGatewayRejected
	}
}

func errorDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
		Errors []struct {
			Code   string `json:"code"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Detail != "" {
			return parsed.Detail
		}
		if len(parsed.Errors) > 0 {
			return strings.TrimSpace(parsed.Errors[0].Code + " " + parsed.Errors[0].Detail)
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 300 {
		text = text[:300]
	}
	return text
}
