// Package stripe talks to the Stripe Checkout Sessions REST API.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	apperrors "github.com/tentshop/storefront/pkg/errors"
	"github.com/tentshop/storefront/pkg/httpclient"

	"github.com/tentshop/storefront/internal/gateway"
)

const remoteName = "stripe"

// Client implements gateway.Gateway against the Stripe API. Requests go
// through the supplied Doer, normally a circuit breaker around a retrying
// HTTP client.
type Client struct {
	http    httpclient.Doer
	baseURL string
	apiKey  string
}

// NewClient creates a Stripe gateway.
func NewClient(doer httpclient.Doer, baseURL, apiKey string) *Client {
	return &Client{
		http:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// Name returns the gateway name.
func (c *Client) Name() string {
	return "stripe"
}

// checkoutSession is the subset of Stripe's Checkout Session object we read.
type checkoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

// sessionStatus maps Stripe's two-field status onto gateway.SessionStatus.
// A complete session that is still unpaid is waiting on a delayed payment
// method and stays open.
func sessionStatus(status, paymentStatus string) gateway.SessionStatus {
	switch status {
	case "open":
		return gateway.SessionOpen
	case "expired":
		return gateway.SessionExpired
	case "complete":
		switch paymentStatus {
		case "paid", "no_payment_required":
			return gateway.SessionPaid
		case "unpaid":
			return gateway.SessionOpen
		}
	}
	return gateway.SessionFailed
}

func (s *checkoutSession) toSession() *gateway.Session {
	return &gateway.Session{
		ID:          s.ID,
		URL:         s.URL,
		Status:      sessionStatus(s.Status, s.PaymentStatus),
		AmountTotal: s.AmountTotal,
		Currency:    strings.ToUpper(s.Currency),
		Metadata:    s.Metadata,
	}
}

// sessionForm encodes input as Stripe's bracketed form parameters.
func sessionForm(input *gateway.CreateSessionInput) url.Values {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", input.SuccessURL)
	form.Set("cancel_url", input.CancelURL)
	form.Set("client_reference_id", input.OrderID)
	if input.CustomerEmail != "" {
		form.Set("customer_email", input.CustomerEmail)
	}

	currency := strings.ToLower(input.Currency)
	for i, li := range input.Items {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[quantity]", strconv.Itoa(li.Quantity))
		form.Set(prefix+"[price_data][currency]", currency)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(li.UnitAmountCents, 10))
		form.Set(prefix+"[price_data][product_data][name]", li.Name)
	}

	for k, v := range input.Metadata {
		form.Set("metadata["+k+"]", v)
		form.Set("payment_intent_data[metadata]["+k+"]", v)
	}
	return form
}

// CreateSession opens a Checkout Session. The order id is sent as the
// Idempotency-Key so a retried request cannot open a second session.
func (c *Client) CreateSession(ctx context.Context, input *gateway.CreateSessionInput) (*gateway.Session, error) {
	if len(input.Items) == 0 {
		return nil, apperrors.InvalidInput("checkout session needs at least one line item")
	}

	form := sessionForm(input)
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/checkout/sessions", form)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Idempotency-Key", "checkout-"+input.OrderID)

	var s checkoutSession
	if err := c.do(ctx, req, &s); err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	if s.ID == "" || s.URL == "" {
		return nil, apperrors.ServiceUnavailable(errors.New("stripe returned a session without id or url"))
	}
	return s.toSession(), nil
}

// GetSession retrieves a Checkout Session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*gateway.Session, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, err
	}

	var s checkoutSession
	if err := c.do(ctx, req, &s); err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}
	return s.toSession(), nil
}

// ExpireSession expires an open Checkout Session.
func (c *Client) ExpireSession(ctx context.Context, sessionID string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/checkout/sessions/"+url.PathEscape(sessionID)+"/expire", url.Values{})
	if err != nil {
		return err
	}
	req.Header.Set("Idempotency-Key", "expire-"+sessionID)

	if err := c.do(ctx, req, nil); err != nil {
		return fmt.Errorf("expire checkout session: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, form url.Values) (*http.Request, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build stripe request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req, nil
}

// do sends req and decodes a 2xx body into out. Transport failures, 5xx and
// an open breaker surface as ServiceUnavailable.
func (c *Client) do(ctx context.Context, req *http.Request, out any) error {
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return apperrors.ServiceUnavailable(fmt.Errorf("%s: %w", remoteName, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, remoteName)
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.ServiceUnavailable(fmt.Errorf("decode %s response: %w", remoteName, err))
	}
	return nil
}
