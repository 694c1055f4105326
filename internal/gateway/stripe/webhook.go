package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the header Stripe signs webhook deliveries with.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance is the maximum accepted age of a webhook signature.
const DefaultTolerance = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("webhook signature header missing or malformed")
	ErrInvalidSignature = errors.New("webhook signature does not match payload")
	ErrStaleSignature   = errors.New("webhook timestamp outside tolerance")
)

// Event is a webhook delivery.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// IsCheckoutSession reports whether the event concerns a Checkout Session.
func (e *Event) IsCheckoutSession() bool {
	return strings.HasPrefix(e.Type, "checkout.session.")
}

// SessionID returns the id of the Checkout Session the event carries.
func (e *Event) SessionID() (string, error) {
	var obj struct {
		ID     string `json:"id"`
		Object string `json:"object"`
	}
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return "", fmt.Errorf("decode event object: %w", err)
	}
	if obj.Object != "checkout.session" || obj.ID == "" {
		return "", fmt.Errorf("event %s does not carry a checkout session", e.ID)
	}
	return obj.ID, nil
}

// WebhookVerifier checks Stripe-Signature headers.
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewWebhookVerifier creates a verifier for the endpoint's signing secret.
func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &WebhookVerifier{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

// Verify authenticates payload against header and decodes the event.
func (v *WebhookVerifier) Verify(payload []byte, header string) (*Event, error) {
	ts, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return nil, err
	}

	age := v.now().Sub(time.Unix(ts, 0))
	if age > v.tolerance || age < -v.tolerance {
		return nil, ErrStaleSignature
	}

	expected := computeSignature(v.secret, ts, payload)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrInvalidSignature
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	return &event, nil
}

// parseSignatureHeader reads "t=<unix>,v1=<hex>[,v1=<hex>...]". Other
// schemes (v0) are ignored.
func parseSignatureHeader(header string) (int64, [][]byte, error) {
	var (
		ts         int64
		haveTS     bool
		signatures [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, nil, ErrMissingSignature
			}
			ts, haveTS = n, true
		case "v1":
			sig, err := hex.DecodeString(v)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}
	if !haveTS || len(signatures) == 0 {
		return 0, nil, ErrMissingSignature
	}
	return ts, signatures, nil
}

func computeSignature(secret []byte, ts int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignPayload builds the Stripe-Signature header value Stripe would send for
// payload at ts.
func SignPayload(secret string, ts time.Time, payload []byte) string {
	sig := computeSignature([]byte(secret), ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(sig))
}
