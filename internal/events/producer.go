package events

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/model"
)

// messageWriter is the part of *kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles producing messages to Kafka topics
type Producer struct {
	mu        sync.Mutex
	writers   map[string]messageWriter
	newWriter func(topic string) messageWriter
	topic     string
	logger    *zap.Logger
}

// Message represents a Kafka message to be sent
type Message struct {
	Key     string
	Value   interface{}
	Headers []kafka.Header
}

// NewProducer creates a new Kafka producer. brokers is a comma separated list; execution
// events go to eventsTopic.
func NewProducer(brokers, clientID, eventsTopic string, logger *zap.Logger) *Producer {
	addrs := strings.Split(brokers, ",")
	for i := range addrs {
		addrs[i] = strings.TrimSpace(addrs[i])
	}
	return &Producer{
		writers: make(map[string]messageWriter),
		newWriter: func(topic string) messageWriter {
			return &kafka.Writer{
				Addr:         kafka.TCP(addrs...),
				Topic:        topic,
				Balancer:     &kafka.Hash{},
				BatchSize:    100,
				BatchTimeout: 10 * time.Millisecond,
				RequiredAcks: kafka.RequireOne,
				Async:        false,
				Transport: &kafka.Transport{
					ClientID: clientID,
				},
			}
		},
		topic:  eventsTopic,
		logger: logger,
	}
}

// getWriter returns a Kafka writer for the specified topic
func (p *Producer) getWriter(topic string) messageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, exists := p.writers[topic]; exists {
		return writer
	}
	writer := p.newWriter(topic)
	p.writers[topic] = writer
	return writer
}

// Publish sends a message to a Kafka topic
func (p *Producer) Publish(ctx context.Context, topic string, msg Message) error {
	writer := p.getWriter(topic)

	// Marshal the message value to JSON
	jsonValue, err := json.Marshal(msg.Value)
	if err != nil {
		p.logger.Error("Failed to marshal message",
			zap.String("topic", topic),
			zap.Error(err))
		return err
	}

	kafkaMsg := kafka.Message{
		Key:     []byte(msg.Key),
		Value:   jsonValue,
		Headers: msg.Headers,
		Time:    time.Now(),
	}

	if err := writer.WriteMessages(ctx, kafkaMsg); err != nil {
		p.logger.Error("Failed to publish message",
			zap.String("topic", topic),
			zap.String("key", msg.Key),
			zap.Error(err))
		return err
	}

	p.logger.Debug("Message published",
		zap.String("topic", topic),
		zap.String("key", msg.Key))

	return nil
}

// PublishExecutionEvent publishes a lifecycle transition keyed by execution ID, so every
// event of one execution lands on the same partition in order
func (p *Producer) PublishExecutionEvent(ctx context.Context, event model.ExecutionEvent) error {
	return p.Publish(ctx, p.topic, Message{
		Key:   event.ExecutionID,
		Value: event,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte("backtest.execution." + strings.ToLower(string(event.Status)))},
			{Key: "kind", Value: []byte(event.Kind)},
		},
	})
}

// Close closes all Kafka writers
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			p.logger.Error("Failed to close Kafka writer",
				zap.String("topic", topic),
				zap.Error(err))
		}
	}
	p.writers = make(map[string]messageWriter)
	return nil
}

// LogPublisher writes execution events to the log when Kafka is disabled
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a new LogPublisher
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishExecutionEvent(_ context.Context, event model.ExecutionEvent) error {
	p.logger.Info("Execution event",
		zap.String("executionID", event.ExecutionID),
		zap.String("kind", event.Kind),
		zap.String("status", string(event.Status)),
		zap.String("error", event.Error))
	return nil
}
