// Package kafka wraps the segmentio writer used to relay outbox events.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/shopcart-backend/pkg/config"
	"github.com/angelmondragon/shopcart-backend/pkg/logger"
)

const defaultWriteTimeout = 10 * time.Second

// Message is a transport-neutral record to publish.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
	Time    time.Time
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Client publishes synchronously so callers learn about broker failures.
type Client struct {
	writer  messageWriter
	brokers []string
	dialer  *kafka.Dialer
	logg    *logger.Logger
}

// NewClient builds a writer for the configured brokers. Topics are set per message.
func NewClient(cfg config.KafkaConfig, logg *logger.Logger) (*Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           timeout,
	}
	return &Client{
		writer:  writer,
		brokers: cfg.Brokers,
		dialer:  &kafka.Dialer{Timeout: timeout},
		logg:    logg,
	}, nil
}

func newClientWithWriter(w messageWriter, brokers []string) *Client {
	return &Client{writer: w, brokers: brokers, dialer: &kafka.Dialer{Timeout: time.Second}}
}

// Publish writes one message and waits for broker acknowledgement.
func (c *Client) Publish(ctx context.Context, msg Message) error {
	if msg.Topic == "" {
		return errors.New("kafka topic is required")
	}
	record := kafka.Message{
		Topic: msg.Topic,
		Key:   msg.Key,
		Value: msg.Value,
		Time:  msg.Time,
	}
	for k, v := range msg.Headers {
		record.Headers = append(record.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if err := c.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("write kafka message to %s: %w", msg.Topic, err)
	}
	return nil
}

// Ping dials the first reachable broker.
func (c *Client) Ping(ctx context.Context) error {
	var lastErr error
	for _, broker := range c.brokers {
		conn, err := c.dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	if lastErr == nil {
		lastErr = errors.New("no kafka brokers configured")
	}
	return fmt.Errorf("kafka ping: %w", lastErr)
}

func (c *Client) Close() error {
	if c == nil || c.writer == nil {
		return nil
	}
	err := c.writer.Close()
	if err != nil && c.logg != nil {
		c.logg.Error(context.Background(), "kafka writer close failed", err)
	}
	return err
}
