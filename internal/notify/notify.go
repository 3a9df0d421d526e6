// Package notify carries row-change events between the billing/usage writers
// and subscription sessions. Consumers react to any event for their user by
// reloading state in full rather than merging deltas.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"github.com/podbrief/podbrief/internal/config"
)

const ExchangeName = "podbrief.changes"

// Tables that emit change events.
const (
	TableSubscriptions = "subscriptions"
	TableProfiles      = "profiles"
)

// Event describes one row change.
type Event struct {
	Table  string    `json:"table"`
	UserID string    `json:"user_id"`
	Action string    `json:"action"`
	At     time.Time `json:"at"`
}

// Publisher publishes change events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber yields change events until the context is done.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Bus is a RabbitMQ-backed fanout of change events.
type Bus struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// New creates a new bus client
func New(cfg config.QueueConfig) (*Bus, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		ExchangeName,
		"fanout",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Bus{
		conn:    conn,
		channel: channel,
	}, nil
}

// Close closes the bus connection
func (b *Bus) Close() error {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// Publish broadcasts a change event to all subscribers.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = b.channel.PublishWithContext(ctx,
		ExchangeName,
		"",    // routing key unused for fanout
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   event.At,
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Subscribe binds an exclusive auto-delete queue to the exchange and yields
// decoded events on the returned channel until ctx is done.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, error) {
	q, err := b.channel.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	err = b.channel.QueueBind(q.Name, "", ExchangeName, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	deliveries, err := b.channel.Consume(
		q.Name,
		"",    // consumer tag
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume: %w", err)
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal(d.Body, &event); err != nil {
					log.Warn().Err(err).Msg("Dropping undecodable change event")
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}
