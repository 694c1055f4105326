package stripe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	webhookSecret = "whsec_test"
	eventPayload  = `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_test_1","object":"checkout.session"}}}`
)

func newTestVerifier(now time.Time) *WebhookVerifier {
	v := NewWebhookVerifier(webhookSecret, 0)
	v.now = func() time.Time { return now }
	return v
}

func TestVerify_Success(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	v := newTestVerifier(now)

	event, err := v.Verify([]byte(eventPayload), SignPayload(webhookSecret, now.Add(-time.Minute), []byte(eventPayload)))

	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.True(t, event.IsCheckoutSession())
	id, err := event.SessionID()
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", id)
}

func TestVerify_AcceptsAnyMatchingV1(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	v := newTestVerifier(now)
	header := SignPayload(webhookSecret, now, []byte(eventPayload))
	header = "t=1760000000,v1=deadbeef,v0=abc," + header[len("t=1760000000,"):]

	_, err := v.Verify([]byte(eventPayload), header)
	require.NoError(t, err)
}

func TestVerify_Rejections(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	v := newTestVerifier(now)

	tests := []struct {
		name    string
		payload string
		header  string
		wantErr error
	}{
		{"empty header", eventPayload, "", ErrMissingSignature},
		{"no v1", eventPayload, "t=1760000000,v0=abc", ErrMissingSignature},
		{"bad timestamp", eventPayload, "t=soon,v1=abc", ErrMissingSignature},
		{"wrong secret", eventPayload, SignPayload("whsec_other", now, []byte(eventPayload)), ErrInvalidSignature},
		{"tampered payload", `{"id":"evt_2"}`, SignPayload(webhookSecret, now, []byte(eventPayload)), ErrInvalidSignature},
		{"too old", eventPayload, SignPayload(webhookSecret, now.Add(-6*time.Minute), []byte(eventPayload)), ErrStaleSignature},
		{"from the future", eventPayload, SignPayload(webhookSecret, now.Add(6*time.Minute), []byte(eventPayload)), ErrStaleSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify([]byte(tt.payload), tt.header)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEvent_SessionID_WrongObject(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	v := newTestVerifier(now)
	payload := `{"id":"evt_3","type":"charge.succeeded","data":{"object":{"id":"ch_1","object":"charge"}}}`

	event, err := v.Verify([]byte(payload), SignPayload(webhookSecret, now, []byte(payload)))
	require.NoError(t, err)

	assert.False(t, event.IsCheckoutSession())
	_, err = event.SessionID()
	assert.Error(t, err)
}
