package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// EscalationPrefix is prepended to the routing key of critical events so an
// on-call queue can bind to "escalation.#" alone.
const EscalationPrefix = "escalation."

// RoutingKey returns the AMQP routing key for evt.
func RoutingKey(evt Event) string {
	if evt.Severity == SeverityCritical {
		return EscalationPrefix + string(evt.Type)
	}
	return string(evt.Type)
}

// AMQPPublisher publishes persistent JSON messages to a durable topic
// exchange and waits for the broker confirm.
type AMQPPublisher struct {
	ch       *amqp.Channel
	exchange string
	confirms chan amqp.Confirmation
	logger   zerolog.Logger
	mu       sync.Mutex
}

func NewAMQPPublisher(conn *amqp.Connection, exchange string, logger zerolog.Logger) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return &AMQPPublisher{
		ch:       ch,
		exchange: exchange,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		logger:   logger,
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", evt.Type, err)
	}
	key := RoutingKey(evt)

	p.mu.Lock()
	defer p.mu.Unlock()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    evt.ID.String(),
		Timestamp:    evt.OccurredAt,
		Type:         string(evt.Type),
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}

	select {
	case c := <-p.confirms:
		if !c.Ack {
			return fmt.Errorf("publish %s: broker nacked message", key)
		}
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", key, ctx.Err())
	}
	p.logger.Debug().Str("routing_key", key).Str("event_id", evt.ID.String()).Msg("event published")
	return nil
}

func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}
