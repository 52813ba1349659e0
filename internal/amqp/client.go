package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures = 5
	openTimeout = 60 * time.Second
)

// Client publishes and consumes project change events on a durable
// direct exchange. A small circuit breaker keeps a dead broker from
// stalling every mutation with connection attempts.
type Client struct {
	url          string
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string

	failureCount int64
	state        int32
	lastFailure  time.Time
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		url:          url,
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.queueName,    // queue name
		c.queueName,    // routing key (same as queue name for direct exchange)
		c.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishProjectSync announces that a project document changed.
func (c *Client) PublishProjectSync(ctx context.Context, projectID string, revision int64) error {
	msg := NewProjectSyncMessage(projectID, revision)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, TypeProjectSync, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published project sync message",
		"project_id", projectID,
		"revision", revision,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

// PublishProjectDelete announces that a project document was removed.
func (c *Client) PublishProjectDelete(ctx context.Context, projectID string) error {
	msg := NewProjectDeleteMessage(projectID)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, TypeProjectDelete, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published project delete message",
		"project_id", projectID,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

func (c *Client) publish(ctx context.Context, msgType string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("circuit breaker is open, dropping %s message", msgType)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Type:         msgType,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		if isConnectionError(err) {
			c.recordFailure()
		}
		return fmt.Errorf("publish message: %w", err)
	}

	c.recordSuccess()
	return nil
}

// Handler receives decoded project events from the queue.
type Handler interface {
	HandleSync(ctx context.Context, msg *ProjectSyncMessage) error
	HandleDelete(ctx context.Context, msg *ProjectDeleteMessage) error
}

// Consume reads project events until the context is cancelled. When the
// broker connection drops, it redials with exponential backoff and
// resumes consuming from the same queue. Failed deliveries are requeued;
// undecodable ones are rejected outright.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := exponentialBackoff(attempt)
		attempt++
		slog.WarnContext(ctx, "Consume interrupted, reconnecting",
			"error", err, "attempt", attempt, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		if err := c.redial(); err != nil {
			c.recordFailure()
			slog.WarnContext(ctx, "Redial failed", "error", err, "attempt", attempt)
			continue
		}
		c.recordSuccess()
		attempt = 0
	}
}

// redial tears down the broken connection and re-establishes the
// exchange, queue, and binding on a fresh one.
func (c *Client) redial() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("redial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("reopen channel: %w", err)
	}

	c.conn = conn
	c.channel = channel
	return c.setup()
}

func (c *Client) consumeOnce(ctx context.Context, handler Handler) error {
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming project events", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			c.dispatch(ctx, handler, delivery)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, handler Handler, delivery amqp091.Delivery) {
	var err error
	switch delivery.Type {
	case TypeProjectDelete:
		var msg *ProjectDeleteMessage
		if msg, err = ProjectDeleteMessageFromJSON(delivery.Body); err != nil {
			slog.ErrorContext(ctx, "Failed to unmarshal message",
				"error", err, "type", delivery.Type)
			delivery.Nack(false, false) // reject and don't requeue
			return
		}
		err = handler.HandleDelete(ctx, msg)
	default:
		// Untyped deliveries from older publishers are treated as sync.
		var msg *ProjectSyncMessage
		if msg, err = ProjectSyncMessageFromJSON(delivery.Body); err != nil {
			slog.ErrorContext(ctx, "Failed to unmarshal message",
				"error", err, "type", delivery.Type)
			delivery.Nack(false, false) // reject and don't requeue
			return
		}
		err = handler.HandleSync(ctx, msg)
	}

	if err != nil {
		slog.ErrorContext(ctx, "Failed to handle message",
			"error", err, "type", delivery.Type)
		delivery.Nack(false, true) // reject and requeue
		return
	}
	delivery.Ack(false)
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) isCircuitOpen() bool {
	switch atomic.LoadInt32(&c.state) {
	case StateOpen:
		if time.Since(c.lastFailure) > openTimeout {
			atomic.StoreInt32(&c.state, StateHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.lastFailure = time.Now()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff returns the reconnect delay for the given attempt,
// capped at 30 seconds.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		attempt = 5
	}
	d := time.Second << attempt
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection closed",
		"unexpected EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
