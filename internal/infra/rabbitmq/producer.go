// File: internal/infra/rabbitmq/producer.go
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"paygate/internal/domain/ports/adapter"
)

var (
	_ adapter.EventPublisher = (*EventProducer)(nil)
	_ adapter.EventPublisher = (*FallbackPublisher)(nil)
)

// amqpChannel is the subset of *amqp.Channel the producer uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// EventProducer publishes JSON events to a durable topic exchange.
type EventProducer struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  amqpChannel
	reopen   func() (amqpChannel, error)
	exchange string
	declared bool
	log      *zerolog.Logger
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer dials amqpURL with a bounded timeout.
func NewEventProducer(amqpURL, exchange string, logger *zerolog.Logger) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	p := newEventProducer(ch, exchange, logger)
	p.conn = conn
	p.reopen = func() (amqpChannel, error) { return conn.Channel() }
	return p, nil
}

func newEventProducer(ch amqpChannel, exchange string, logger *zerolog.Logger) *EventProducer {
	l := logger.With().Str("component", "EventProducer").Str("exchange", exchange).Logger()
	return &EventProducer{channel: ch, exchange: exchange, log: &l}
}

func (p *EventProducer) declare() error {
	if p.declared {
		return nil
	}
	if err := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	p.declared = true
	return nil
}

// Publish marshals payload and sends it with routingKey. A failed publish reopens
// the channel and tries once more.
func (p *EventProducer) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.declare()
	if err == nil {
		err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	}
	if err == nil {
		return nil
	}

	p.log.Warn().Err(err).Str("routing_key", routingKey).Msg("publish failed; reopening channel")
	if p.reopen == nil {
		return err
	}
	ch, chErr := p.reopen()
	if chErr != nil {
		return chErr
	}
	p.channel = ch
	p.declared = false
	if err := p.declare(); err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

func (p *EventProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.channel != nil {
		err = p.channel.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// FallbackPublisher is used when RabbitMQ is not configured or unreachable at startup.
type FallbackPublisher struct {
	log *zerolog.Logger
}

func NewFallbackPublisher(logger *zerolog.Logger) *FallbackPublisher {
	l := logger.With().Str("component", "EventProducer").Str("mode", "fallback").Logger()
	return &FallbackPublisher{log: &l}
}

func (p *FallbackPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	p.log.Debug().Str("routing_key", routingKey).Msg("publish skipped")
	return nil
}

func (p *FallbackPublisher) Close() error { return nil }
