package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"classquiz-service/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends committed room snapshots to a topic exchange with routing key room.{roomID}.
type Publisher struct {
	conn     *amqp.Connection
	ch       Channel
	exchange string
}

// Dial connects to RabbitMQ and declares a durable topic exchange.
func Dial(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	p := NewPublisher(ch, exchange)
	p.conn = conn
	return p, nil
}

func NewPublisher(ch Channel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange}
}

func (p *Publisher) Publish(ctx context.Context, snapshot domain.RoomSnapshot) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		RoutingKey(snapshot.Room.ID),
		false,
		false, amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Timestamp:    time.Now(),
			Type:         string(snapshot.Room.Status),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func RoutingKey(roomID string) string {
	return "room." + roomID
}
