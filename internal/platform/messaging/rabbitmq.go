package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	ExchangeName = "mediwise.events"
	ExchangeType = "topic"
)

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher publishes JSON events to a durable topic exchange.
type RabbitPublisher struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
	logger   zerolog.Logger
}

// NewRabbitPublisher dials rawURL, opens a channel and declares the exchange.
func NewRabbitPublisher(rawURL string, logger zerolog.Logger) (*RabbitPublisher, error) {
	logger = logger.With().Str("component", "rabbitmq").Logger()
	logger.Info().Str("url", redactURL(rawURL)).Msg("connecting to RabbitMQ")

	conn, err := amqp.Dial(rawURL)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName, // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	logger.Info().Str("exchange", ExchangeName).Msg("connected to RabbitMQ")
	return &RabbitPublisher{conn: conn, channel: ch, exchange: ExchangeName, logger: logger}, nil
}

// Publish sends event as a persistent JSON message with the given routing key.
func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, event interface{}) error {
	if p == nil || p.channel == nil {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", routingKey, err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			MessageId:    messageID(event),
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	p.logger.Debug().Str("routing_key", routingKey).Msg("event published")
	return nil
}

// Close closes the channel and the connection.
func (p *RabbitPublisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("close RabbitMQ channel")
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type identified interface {
	ID() string
}

func messageID(event interface{}) string {
	if e, ok := event.(identified); ok && e.ID() != "" {
		return e.ID()
	}
	return uuid.NewString()
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "amqp://***"
	}
	return u.Redacted()
}
