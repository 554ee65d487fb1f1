package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func sign(t *testing.T, payload, secret string, ts time.Time) (string, []byte) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: ts,
		Scheme:    "v1",
	})
	return signed.Header, signed.Payload
}

func TestVerifyWebhook(t *testing.T) {
	payload := `{"id":"evt_1","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","customer":"cus_1"}}}`

	t.Run("valid signature", func(t *testing.T) {
		header, body := sign(t, payload, testWebhookSecret, time.Now())
		assert.NoError(t, VerifyWebhook(body, header, testWebhookSecret))
	})

	t.Run("wrong secret", func(t *testing.T) {
		header, body := sign(t, payload, "whsec_other", time.Now())
		assert.ErrorIs(t, VerifyWebhook(body, header, testWebhookSecret), ErrInvalidSignature)
	})

	t.Run("tampered body", func(t *testing.T) {
		header, _ := sign(t, payload, testWebhookSecret, time.Now())
		assert.ErrorIs(t, VerifyWebhook([]byte(`{"id":"evt_2"}`), header, testWebhookSecret), ErrInvalidSignature)
	})

	t.Run("expired timestamp", func(t *testing.T) {
		header, body := sign(t, payload, testWebhookSecret, time.Now().Add(-time.Hour))
		assert.ErrorIs(t, VerifyWebhook(body, header, testWebhookSecret), ErrInvalidSignature)
	})

	t.Run("missing header", func(t *testing.T) {
		assert.ErrorIs(t, VerifyWebhook([]byte(payload), "", testWebhookSecret), ErrInvalidSignature)
	})

	t.Run("secret not configured", func(t *testing.T) {
		header, body := sign(t, payload, "", time.Now())
		assert.ErrorIs(t, VerifyWebhook(body, header, ""), ErrInvalidSignature)
	})
}

func TestParseEvent(t *testing.T) {
	evt, err := ParseEvent([]byte(`{"id":"evt_1","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","customer":"cus_1","canceled_at":1760000000,"ended_at":1760003600}}}`))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", evt.ID)
	assert.Equal(t, EventSubscriptionDeleted, evt.Type)

	sub, err := evt.DeletedSubscription()
	require.NoError(t, err)
	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, int64(1760000000), sub.CanceledAt)
	assert.Equal(t, int64(1760003600), sub.EndedAt)
}

func TestParseEvent_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: "nope"},
		{name: "missing type", payload: `{"id":"evt_1","data":{"object":{}}}`},
		{name: "missing data", payload: `{"id":"evt_1","type":"invoice.paid"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.payload))
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestDeletedSubscription_MissingCustomer(t *testing.T) {
	evt, err := ParseEvent([]byte(`{"id":"evt_1","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1"}}}`))
	require.NoError(t, err)

	_, err = evt.DeletedSubscription()
	assert.ErrorIs(t, err, ErrMalformedPayload)
}
