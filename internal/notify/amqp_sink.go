package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// AMQPSink publishes events as persistent JSON messages to a durable queue.
type AMQPSink struct {
	url    string
	queue  string
	logger logrus.FieldLogger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQPSink dials the broker, retrying for up to maxWait, and declares the queue.
func NewAMQPSink(ctx context.Context, url, queue string, maxWait time.Duration, logger logrus.FieldLogger) (*AMQPSink, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &AMQPSink{
		url:    url,
		queue:  queue,
		logger: logger.WithFields(logrus.Fields{"component": "amqp-sink", "queue": queue}),
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxElapsedTime = maxWait

	err := backoff.RetryNotify(s.connect, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		s.logger.WithError(err).WithField("retry_in", wait).Warn("rabbitmq connect failed")
	})
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	return s, nil
}

// connect (re)opens the connection and channel. Caller must not hold mu.
func (s *AMQPSink) connect() error {
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		s.queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	s.mu.Lock()
	s.conn, s.channel = conn, ch
	s.mu.Unlock()
	return nil
}

// Publish sends one event. A closed channel is reopened once before failing.
func (s *AMQPSink) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	s.mu.Lock()
	ch := s.channel
	s.mu.Unlock()

	if ch == nil || ch.IsClosed() {
		if err := s.connect(); err != nil {
			return fmt.Errorf("reconnect rabbitmq: %w", err)
		}
		s.mu.Lock()
		ch = s.channel
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = ch.PublishWithContext(ctx,
		"",      // exchange
		s.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    ev.ID,
			Type:         string(ev.Type),
			Timestamp:    time.UnixMilli(ev.OccurredAt),
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close closes the channel and connection.
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
