package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/tentshop/storefront/pkg/errors"
)

// errorBody matches error payloads of the form
// {"error": {"code": "...", "message": "..."}}, used both by this service's
// envelope and by the payment processor's REST API.
type errorBody struct {
	Error *struct {
		Code    string `json:"code"`
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes the body of a non-2xx response and
// translates it into an error. Client errors become AppErrors carrying the
// remote message; everything else becomes ErrServiceUnavail so callers fail
// closed without leaking remote details.
func ParseResponseError(resp *http.Response, remote string) error {
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", remote, resp.StatusCode, err)
	}

	code, message := "", string(raw)
	var body errorBody
	if json.Unmarshal(raw, &body) == nil && body.Error != nil {
		code, message = body.Error.Code, body.Error.Message
		if code == "" {
			code = body.Error.Type
		}
	}

	qualified := fmt.Sprintf("%s: %s", remote, message)
	switch status := resp.StatusCode; {
	case status == http.StatusNotFound:
		return fmt.Errorf("%s (%s): %w", qualified, code, apperrors.ErrNotFound)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualified)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		// Credentials problems are ours, not the buyer's.
		return apperrors.ServiceUnavailable(fmt.Errorf("%s returned %d: %s", remote, status, qualified))
	case status == http.StatusConflict:
		return apperrors.Conflict(qualified)
	case status == http.StatusPaymentRequired, status == http.StatusUnprocessableEntity:
		return apperrors.PaymentFailed(qualified)
	case status == http.StatusTooManyRequests, status >= 500:
		return apperrors.ServiceUnavailable(fmt.Errorf("%s returned %d (%s): %s", remote, status, code, message))
	default:
		return fmt.Errorf("%s returned unexpected status %d: %s", remote, status, message)
	}
}
