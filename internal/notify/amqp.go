package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultQueueSize      = 256
	defaultPublishTimeout = 5 * time.Second
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher publishes events to a RabbitMQ topic exchange under the
// routing key grouporder.<status>. Notify only enqueues; Run drains the
// queue and waits for a publisher confirm on every message.
type AMQPPublisher struct {
	ch       Channel
	acks     <-chan amqp.Confirmation
	exchange string
	queue    chan Event
	timeout  time.Duration

	// conn is set when the publisher owns its connection.
	conn *amqp.Connection

	closeOnce sync.Once
}

var _ Notifier = (*AMQPPublisher)(nil)

// NewAMQPPublisher wraps an already confirmed channel. acks may be nil when
// the channel is not in confirm mode.
func NewAMQPPublisher(ch Channel, acks <-chan amqp.Confirmation, exchange string, queueSize int) *AMQPPublisher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &AMQPPublisher{
		ch:       ch,
		acks:     acks,
		exchange: exchange,
		queue:    make(chan Event, queueSize),
		timeout:  defaultPublishTimeout,
	}
}

// DialAMQP connects to url, declares exchange as a durable topic exchange
// and turns on publisher confirms.
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	p := NewAMQPPublisher(ch, acks, exchange, 0)
	p.conn = conn
	return p, nil
}

// Notify queues e for publishing. It never blocks; a full queue drops the
// event.
func (p *AMQPPublisher) Notify(_ context.Context, e Event) error {
	select {
	case p.queue <- e:
		return nil
	default:
		return ErrDropped
	}
}

// Run publishes queued events until ctx is cancelled.
func (p *AMQPPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-p.queue:
			if err := p.publish(ctx, e); err != nil {
				slog.Error("Failed to publish phase change",
					"group_order_id", e.GroupOrderID,
					"to", e.To,
					"error", err,
				)
			}
		}
	}
}

// RoutingKey returns the topic routing key for an event.
func RoutingKey(e Event) string {
	return "grouporder." + string(e.To)
}

func (p *AMQPPublisher) publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(e), false, false, amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		CorrelationId: e.GroupOrderID,
		Timestamp:     e.At,
		Headers:       amqp.Table{"x-source": "grouporder"},
		Body:          body,
	})
	if err != nil {
		return err
	}

	if p.acks == nil {
		return nil
	}
	select {
	case conf, ok := <-p.acks:
		if !ok {
			return errors.New("confirm channel closed")
		}
		if !conf.Ack {
			return errors.New("publish NACK from broker")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the connection opened by DialAMQP.
func (p *AMQPPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.conn != nil {
			err = p.conn.Close()
		}
	})
	return err
}
