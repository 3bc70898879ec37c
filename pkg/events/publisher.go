// Package events publishes domain events (message sent, feedback
// submitted, embed changed) to an AMQP exchange for external consumers.
// Publishing is best-effort: a broker outage degrades to logged errors and
// never blocks the write path.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"assistdb/pkg/logger"
)

// Event types published on the exchange.
const (
	TypeMessageSent       = "chat.message.sent"
	TypeMessageEdited     = "chat.message.edited"
	TypeMessageDeleted    = "chat.message.deleted"
	TypeFeedbackSubmitted = "widget.feedback.submitted"
	TypeEmbedChanged      = "widget.embed.changed"
)

// Meta describes one event envelope.
type Meta struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	TS     int64  `json:"ts"`
	Source string `json:"source"`
}

// Envelope wraps event data with routing metadata.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// Publisher emits domain events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any) error
	Close() error
}

// Nop is the disabled publisher.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
func (Nop) Close() error                               { return nil }

// AMQPPublisher publishes envelopes to a topic exchange, using the event
// type as the routing key.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	url      string
	exchange string
}

// NewAMQP dials the broker and declares the exchange.
func NewAMQP(url, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = "assistdb.events"
	}
	p := &AMQPPublisher{url: url, exchange: exchange}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("amqp dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp channel failed: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp exchange declare failed: %w", err)
	}
	p.conn = conn
	p.ch = ch
	logger.Info("events_publisher_connected", "exchange", p.exchange)
	return nil
}

// Publish sends one envelope. A dead connection triggers a single redial
// attempt before giving up.
func (p *AMQPPublisher) Publish(ctx context.Context, eventType string, data any) error {
	env := Envelope{
		Meta: Meta{
			ID:     uuid.NewString(),
			Type:   eventType,
			TS:     time.Now().UTC().UnixNano(),
			Source: "assistdb",
		},
		Data: data,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, eventType, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		logger.Error("event_publish_failed", "type", eventType, "error", err)
		return err
	}
	logger.Debug("event_published", "type", eventType)
	return nil
}

// Close tears down the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
