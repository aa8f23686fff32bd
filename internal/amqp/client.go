package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	applog "jobcost/internal/log"
)

const maxBackoff = 30 * time.Second

var errChannelClosed = errors.New("message channel closed")

// RefreshHandler reloads the snapshot for one message.
type RefreshHandler func(ctx context.Context, msg *RefreshMessage) error

type Client struct {
	url          string
	exchangeName string
	queueName    string
	logger       *applog.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

func NewClient(url, exchangeName, queueName string, logger *applog.Logger) (*Client, error) {
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger.WithComponent(applog.ComponentAMQP),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	c.conn, c.channel = conn, channel
	c.mu.Unlock()
	return nil
}

func setup(ch *amqp091.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	// Routing key is the queue name.
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	// A refresh reloads the whole dataset; take one at a time.
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

func (c *Client) currentChannel() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// PublishRefresh queues one refresh request. Consumers of the shared queue
// compete, so exactly one running dashboard handles it.
func (c *Client) PublishRefresh(ctx context.Context, reason string) error {
	body, err := NewRefreshMessage(reason).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.currentChannel().PublishWithContext(ctx, c.exchangeName, c.queueName, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	c.logger.InfoContext(ctx, "Published refresh message",
		applog.FieldOperation, applog.OpPublish,
		applog.FieldReason, reason,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

// RunConsumer consumes refresh messages until ctx is done, reconnecting with
// exponential backoff when the broker connection drops.
func (c *Client) RunConsumer(ctx context.Context, handler RefreshHandler) error {
	attempt := 0
	for {
		err := c.consume(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		if !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		attempt++
		c.logger.WarnContext(ctx, "AMQP connection lost, reconnecting",
			applog.FieldError, err.Error(),
			"attempt", attempt,
			"backoff", wait.String())

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		if err := c.connect(); err != nil {
			c.logger.ErrorContext(ctx, "AMQP reconnect failed", applog.FieldError, err.Error())
			continue
		}
		attempt = 0
	}
}

func (c *Client) consume(ctx context.Context, handler RefreshHandler) error {
	msgs, err := c.currentChannel().Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Started consuming refresh messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", applog.FieldReason, ctx.Err().Error())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errChannelClosed
			}
			c.handleDelivery(ctx, delivery, handler)
		}
	}
}

type outcome int

const (
	acked outcome = iota
	requeued
	rejected
	dropped
)

// handleDelivery settles one delivery: malformed bodies are rejected, a first
// handler failure is requeued once, a failing redelivery is dropped and left to
// the next message or tick, everything else is acked.
func (c *Client) handleDelivery(ctx context.Context, d amqp091.Delivery, handler RefreshHandler) outcome {
	msg, err := RefreshMessageFromJSON(d.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to unmarshal message",
			applog.FieldOperation, applog.OpConsume,
			applog.FieldError, err.Error())
		_ = d.Reject(false)
		return rejected
	}

	if err := handler(ctx, msg); err != nil {
		c.logger.ErrorContext(ctx, "Failed to handle refresh message",
			applog.FieldOperation, applog.OpConsume,
			applog.FieldReason, msg.Reason,
			applog.FieldError, err.Error(),
			"redelivered", d.Redelivered)
		if d.Redelivered {
			_ = d.Reject(false)
			return dropped
		}
		_ = d.Nack(false, true)
		return requeued
	}

	_ = d.Ack(false)
	c.logger.InfoContext(ctx, "Processed refresh message",
		applog.FieldOperation, applog.OpConsume,
		applog.FieldReason, msg.Reason)
	return acked
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errChannelClosed) || errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection closed", "connection reset", "eof", "broken pipe", "closed network connection", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
