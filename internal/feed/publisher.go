package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"inkforge/pkg/domain"
)

const routingKeyPublished = "creation.published"

// Publisher emits community-feed events over AMQP. Downstream feed
// consumers are outside this service.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewPublisher dials the broker and declares a durable topic exchange.
func NewPublisher(amqpURL, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, channel: channel, exchange: exchange}, nil
}

// PublishCreation announces a published creation to feed consumers.
func (p *Publisher) PublishCreation(ctx context.Context, c domain.Creation) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode creation: %w", err)
	}
	err = p.channel.PublishWithContext(ctx, p.exchange, routingKeyPublished, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		MessageId:   c.ID,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish creation: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
