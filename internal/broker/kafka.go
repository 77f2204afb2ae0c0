package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DefaultPublishTimeout bounds how long a publish waits for the broker acknowledgment
const DefaultPublishTimeout = 10 * time.Second

// ErrMalformedEvent marks a message that can never be handled and should be skipped
var ErrMalformedEvent = errors.New("malformed event")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer  messageWriter
	timeout time.Duration
}

// NewProducer creates a new Kafka producer. The topic is chosen per message.
func NewProducer(brokers []string, publishTimeout time.Duration) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteTimeout:           publishTimeout,
		ReadTimeout:            publishTimeout,
		AllowAutoTopicCreation: true,
	}

	return newProducer(writer, publishTimeout)
}

func newProducer(writer messageWriter, publishTimeout time.Duration) *Producer {
	if publishTimeout <= 0 {
		publishTimeout = DefaultPublishTimeout
	}
	return &Producer{writer: writer, timeout: publishTimeout}
}

// Publish sends an event and blocks until the broker acknowledges it or the publish timeout expires
func (p *Producer) Publish(ctx context.Context, topic, key string, event interface{}) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal event: %v", models.ErrEventPublish, err)
	}

	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   eventBytes,
		Time:    time.Now(),
		Headers: injectTraceHeaders(ctx),
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err = p.writer.WriteMessages(ctx, msg)
	util.EventPublishLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	if err != nil {
		util.EventPublishFailedTotal.WithLabelValues(topic).Inc()
		return fmt.Errorf("%w: topic %s: %v", models.ErrEventPublish, topic, err)
	}

	util.GetLogger().Debug("Published event",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.String("type", fmt.Sprintf("%T", event)))
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one consumer group's messages from one or more topics
type Consumer struct {
	reader     messageReader
	name       string
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, groupID string, topics ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})

	return newConsumer(reader, groupID)
}

func newConsumer(reader messageReader, name string) *Consumer {
	return &Consumer{
		reader:     reader,
		name:       name,
		minBackoff: 200 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// MessageHandler is a function type for handling messages
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming handles messages one at a time until ctx is cancelled.
// A failed message is retried with backoff and its offset is committed only after it succeeds.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	log.Printf("Starting Kafka consumer: group=%s", c.name)
	logger := util.GetLogger()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("Consumer %s context cancelled, stopping...", c.name)
				return ctx.Err()
			}
			logger.Error("Error fetching message", zap.String("consumer", c.name), zap.Error(err))
			if !sleepCtx(ctx, time.Second) {
				return ctx.Err()
			}
			continue
		}

		if err := c.handleWithRetry(ctx, msg, handler); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Error("Error committing message",
				zap.String("consumer", c.name),
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}
	}
}

// handleWithRetry returns nil once the message is handled or skipped, or ctx.Err() on shutdown
func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message, handler MessageHandler) error {
	logger := util.GetLogger()
	backoff := c.minBackoff

	for attempt := 1; ; attempt++ {
		err := handler(extractTraceContext(ctx, msg), msg)
		if err == nil {
			util.EventsConsumedTotal.WithLabelValues(msg.Topic, "ok").Inc()
			return nil
		}

		if errors.Is(err, ErrMalformedEvent) {
			util.EventsConsumedTotal.WithLabelValues(msg.Topic, "skipped").Inc()
			logger.Error("Skipping malformed message",
				zap.String("consumer", c.name),
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return nil
		}

		util.EventsConsumedTotal.WithLabelValues(msg.Topic, "retry").Inc()
		logger.Warn("Error handling message, retrying",
			zap.String("consumer", c.name),
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		if !sleepCtx(ctx, backoff) {
			return ctx.Err()
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
