package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON messages, one writer per topic.
type Producer struct {
	mu        sync.Mutex
	writers   map[string]messageWriter
	brokers   []string
	clientID  string
	logger    *zap.Logger
	newWriter func(topic string) messageWriter
}

func NewProducer(brokers []string, clientID string, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Producer{
		writers:  make(map[string]messageWriter),
		brokers:  brokers,
		clientID: clientID,
		logger:   logger,
	}
	p.newWriter = p.kafkaWriter
	return p
}

func (p *Producer) kafkaWriter(topic string) messageWriter {
	return &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{ClientID: p.clientID},
	}
}

func (p *Producer) getWriter(topic string) messageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := p.newWriter(topic)
	p.writers[topic] = w
	return w
}

// Publish marshals value to JSON and writes it keyed by key.
func (p *Producer) Publish(ctx context.Context, topic, key string, value any, headers ...kafka.Header) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", topic, err)
	}
	msg := kafka.Message{Key: []byte(key), Value: b, Headers: headers, Time: time.Now()}
	if err := p.getWriter(topic).WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish message", zap.String("topic", topic), zap.String("key", key), zap.Error(err))
		return err
	}
	p.logger.Debug("Message published", zap.String("topic", topic), zap.String("key", key))
	return nil
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			p.logger.Error("Failed to close Kafka writer", zap.String("topic", topic), zap.Error(err))
		}
	}
	return nil
}

// Kafka routes signal and result messages to their topics, keyed by symbol.
type Kafka struct {
	Producer     *Producer
	SignalsTopic string
	ResultsTopic string
}

func (k Kafka) Notify(ctx context.Context, msg Message) error {
	if msg.Payload == nil {
		return nil
	}
	topic := k.ResultsTopic
	if msg.Kind == KindSignal {
		topic = k.SignalsTopic
	}
	if topic == "" {
		return nil
	}
	return k.Producer.Publish(ctx, topic, msg.Symbol, msg.Payload, kafka.Header{Key: "kind", Value: []byte(msg.Kind)})
}
