// Package activity publishes confirmed user activity (check-ins, event
// joins) for downstream consumers. Publishing is best effort.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the queue activity is published to.
const DefaultQueue = "campus.activity"

// Kind names an activity.
type Kind string

const (
	KindCheckIn      Kind = "checkin.started"
	KindCheckOut     Kind = "checkin.ended"
	KindEventCreated Kind = "event.created"
	KindEventJoined  Kind = "event.joined"
	KindEventDeleted Kind = "event.deleted"
)

// Activity is one published message.
type Activity struct {
	Kind       Kind      `json:"kind"`
	UserID     string    `json:"user_id"`
	SubjectID  string    `json:"subject_id"`
	Label      string    `json:"label,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers activity.
type Publisher interface {
	Publish(ctx context.Context, a Activity) error
}

// Nop discards every activity.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Activity) error { return nil }

// ErrClosed is returned after Close.
var ErrClosed = errors.New("activity: publisher closed")

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes persistent JSON messages to a durable queue.
type AMQPPublisher struct {
	queue  string
	logger *slog.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     amqpChannel
	closed bool
}

// DialAMQP connects to url and declares queue.
func DialAMQP(url, queue string, logger *slog.Logger) (*AMQPPublisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("activity: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("activity: open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("activity: declare queue %s: %w", queue, err)
	}
	return &AMQPPublisher{
		queue:  queue,
		logger: logger.With("component", "activity", "queue", queue),
		conn:   conn,
		ch:     ch,
	}, nil
}

// Publish implements Publisher.
func (p *AMQPPublisher) Publish(ctx context.Context, a Activity) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("activity: encode: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    a.OccurredAt,
		Type:         string(a.Kind),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.logger.WarnContext(ctx, "publish failed", "kind", a.Kind, "error", err)
		return fmt.Errorf("activity: publish: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
