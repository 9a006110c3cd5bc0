package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/xsnapster/api/internal/services"
)

// PubSubEventPublisher publishes order and payment domain events to their
// Pub/Sub topics. Downstream consumers handle invoicing, notifications and
// fulfilment triggers.
type PubSubEventPublisher struct {
	orderTopic   *pubsub.Topic
	paymentTopic *pubsub.Topic
	marshal      func(any) ([]byte, error)
}

// NewPubSubEventPublisher constructs a Pub/Sub backed domain event publisher.
func NewPubSubEventPublisher(orderTopic, paymentTopic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if orderTopic == nil {
		return nil, errors.New("pubsub event publisher: order topic is required")
	}
	if paymentTopic == nil {
		return nil, errors.New("pubsub event publisher: payment topic is required")
	}
	return &PubSubEventPublisher{
		orderTopic:   orderTopic,
		paymentTopic: paymentTopic,
		marshal:      json.Marshal,
	}, nil
}

// PublishOrderEvent enqueues an order event on the order topic.
func (p *PubSubEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.orderTopic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "userId", event.UserID)
	setAttr(attrs, "status", string(event.CurrentStatus))

	result := p.orderTopic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// PublishPaymentEvent enqueues a payment event on the payment topic.
func (p *PubSubEventPublisher) PublishPaymentEvent(ctx context.Context, event services.PaymentEvent) error {
	if p == nil || p.paymentTopic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payment event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "gatewayOrderId", event.GatewayOrderID)

	result := p.paymentTopic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish payment event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

var (
	_ services.OrderEventPublisher   = (*PubSubEventPublisher)(nil)
	_ services.PaymentEventPublisher = (*PubSubEventPublisher)(nil)
)
