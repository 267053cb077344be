// Package gateway talks to the hosted payment provider that opens checkout
// sessions.
package gateway

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

	"github.com/mlionhart/hartmart/internal/checkout"
	"github.com/mlionhart/hartmart/pkg/circuitbreaker"
	"go.uber.org/zap"
)

const sessionPath = "/api/checkout"

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("payment gateway returned %d: %s", e.StatusCode, e.Body)
}

type sessionItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

type sessionRequest struct {
	Items []sessionItem `json:"items"`
	Email string        `json:"email"`
}

type sessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Config struct {
	BaseURL string
	APIKey  string
	// HTTPClient defaults to a client with a 15s timeout.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
	breaker *circuitbreaker.Breaker[checkout.SessionResponse]
}

func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	settings := circuitbreaker.DefaultSettings("payment-gateway")
	settings.Logger = log
	// a rejected request says nothing about the provider's health
	settings.IsSuccessful = func(err error) bool {
		var se *StatusError
		if errors.As(err, &se) {
			return se.StatusCode < http.StatusInternalServerError
		}
		return err == nil
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    hc,
		log:     log,
		breaker: circuitbreaker.New[checkout.SessionResponse](settings),
	}
}

// CreateSession opens a payment session for the request's line items.
func (c *Client) CreateSession(ctx context.Context, req checkout.SessionRequest) (checkout.SessionResponse, error) {
	resp, err := c.breaker.Execute(func() (checkout.SessionResponse, error) {
		return c.createSession(ctx, req)
	})
	if circuitbreaker.IsRejected(err) {
		c.log.Warn("payment gateway call refused by circuit breaker",
			zap.String("state", c.breaker.State()),
			zap.Error(err))
	}
	return resp, err
}

func (c *Client) createSession(ctx context.Context, req checkout.SessionRequest) (checkout.SessionResponse, error) {
	body := sessionRequest{
		Items: make([]sessionItem, 0, len(req.LineItems)),
		Email: req.BuyerEmail,
	}
	for _, item := range req.LineItems {
		body.Items = append(body.Items, sessionItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.PriceCents,
		})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return checkout.SessionResponse{}, fmt.Errorf("encode session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sessionPath, bytes.NewReader(payload))
	if err != nil {
		return checkout.SessionResponse{}, fmt.Errorf("build session request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return checkout.SessionResponse{}, fmt.Errorf("call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return checkout.SessionResponse{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var out sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return checkout.SessionResponse{}, fmt.Errorf("decode session response: %w", err)
	}
	return checkout.SessionResponse{SessionID: out.ID, RedirectURL: out.URL}, nil
}

// BreakerState reports the circuit breaker state; /health includes it.
func (c *Client) BreakerState() string {
	return c.breaker.State()
}
