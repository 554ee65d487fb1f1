package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

var ErrMalformedPayload = errors.New("webhook 请求体格式错误")

// SignatureHeader Stripe 签名所在的请求头
const SignatureHeader = "Stripe-Signature"

const EventSubscriptionDeleted = "customer.subscription.deleted"

// VerifyWebhook 只校验签名和时间戳，不解析内容
func VerifyWebhook(payload []byte, header, secret string) error {
	if strings.TrimSpace(secret) == "" || strings.TrimSpace(header) == "" {
		return ErrInvalidSignature
	}
	if err := webhook.ValidatePayload(payload, header, secret); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// Event 解析后的 webhook 信封
type Event struct {
	ID     string
	Type   string
	Object json.RawMessage
}

// ParseEvent 解析 {id,type,data:{object}} 信封
func ParseEvent(payload []byte) (*Event, error) {
	var evt stripe.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if evt.Type == "" || evt.Data == nil || len(evt.Data.Raw) == 0 {
		return nil, ErrMalformedPayload
	}
	return &Event{ID: evt.ID, Type: string(evt.Type), Object: evt.Data.Raw}, nil
}

// DeletedSubscription customer.subscription.deleted 事件中用到的字段
type DeletedSubscription struct {
	ID         string
	CustomerID string
	CanceledAt int64
	EndedAt    int64
}

func (e *Event) DeletedSubscription() (*DeletedSubscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(e.Object, &sub); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if sub.ID == "" || sub.Customer == nil || sub.Customer.ID == "" {
		return nil, ErrMalformedPayload
	}
	return &DeletedSubscription{
		ID:         sub.ID,
		CustomerID: sub.Customer.ID,
		CanceledAt: sub.CanceledAt,
		EndedAt:    sub.EndedAt,
	}, nil
}
