// Package rabbitmq is the durable eventbus.Bus backend, grounded on
// the teacher's common/mrabbitmq connection-hub pattern but
// reimplemented against the maintained amqp091-go client (the
// teacher's own go.mod carries this as its live dependency, superseding
// the legacy streadway/amqp import common/mrabbitmq itself still uses).
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/torratdev/grace/internal/mlog"
	"github.com/torratdev/grace/internal/platform/eventbus"
)

// Connection is a hub which deals with the event bus's rabbitmq
// connection, mirroring common/mrabbitmq.RabbitMQConnection.
type Connection struct {
	ConnectionString string
	Exchange         string
	Logger           mlog.Logger

	conn      *amqp.Connection
	channel   *amqp.Channel
	Connected bool
}

// Connect opens the AMQP connection and channel and declares the
// topic exchange publishes target.
func (c *Connection) Connect(_ context.Context) error {
	c.Logger.Info("connecting to rabbitmq...")

	conn, err := amqp.Dial(c.ConnectionString)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(c.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	c.conn = conn
	c.channel = ch
	c.Connected = true

	c.Logger.Info("connected to rabbitmq")

	return nil
}

// GetChannel returns the *amqp.Channel, connecting lazily if necessary.
func (c *Connection) GetChannel(ctx context.Context) (*amqp.Channel, error) {
	if !c.Connected {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.channel, nil
}

// Bus is an eventbus.Bus publishing onto a RabbitMQ topic exchange.
type Bus struct {
	conn *Connection
}

// New wraps an already-configured Connection as a Bus.
func New(conn *Connection) *Bus {
	return &Bus{conn: conn}
}

func (b *Bus) Publish(ctx context.Context, topic string, envelope eventbus.Envelope) error {
	ch, err := b.conn.GetChannel(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	return ch.PublishWithContext(ctx, b.conn.Exchange, topic, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}
