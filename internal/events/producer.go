// Package events publishes trading signals, order events and phase changes
// to a Kafka topic for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"phasetrader/internal/model"
	"phasetrader/internal/strategy"
)

// Event types carried in Envelope.Type.
const (
	TypeSignal     = "signal"
	TypeOrderEvent = "order_event"
	TypePhase      = "phase"
)

// Envelope is the message value written to the topic.
type Envelope struct {
	Type      string          `json:"type"`
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// PhaseChange is the payload of a TypePhase event.
type PhaseChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Publisher publishes trader events.
type Publisher interface {
	PublishSignal(ctx context.Context, sig strategy.Signal) error
	PublishOrderEvent(ctx context.Context, ev model.OrderEvent) error
	PublishPhase(ctx context.Context, symbol string, from, to strategy.Phase, at time.Time) error
	Close() error
}

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes events keyed by symbol so that a symbol's events stay
// ordered within one partition.
type Producer struct {
	writer messageWriter
	topic  string
}

// NewPublisher returns a Kafka producer, or a no-op publisher when no
// brokers are configured.
func NewPublisher(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return Nop{}
	}
	return NewProducer(brokers, topic)
}

// NewProducer creates a Kafka producer for topic.
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{writer: writer, topic: topic}
}

func (p *Producer) PublishSignal(ctx context.Context, sig strategy.Signal) error {
	return p.publish(ctx, TypeSignal, sig.Symbol, sig.Time, sig)
}

func (p *Producer) PublishOrderEvent(ctx context.Context, ev model.OrderEvent) error {
	return p.publish(ctx, TypeOrderEvent, ev.Symbol, ev.Time, ev)
}

func (p *Producer) PublishPhase(ctx context.Context, symbol string, from, to strategy.Phase, at time.Time) error {
	return p.publish(ctx, TypePhase, symbol, at, PhaseChange{From: from.String(), To: to.String()})
}

func (p *Producer) publish(ctx context.Context, typ, symbol string, ts time.Time, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", typ, err)
	}
	value, err := json.Marshal(Envelope{Type: typ, Symbol: symbol, Timestamp: ts, Payload: raw})
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(symbol),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(typ)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: write to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishSignal(context.Context, strategy.Signal) error    { return nil }
func (Nop) PublishOrderEvent(context.Context, model.OrderEvent) error { return nil }
func (Nop) PublishPhase(context.Context, string, strategy.Phase, strategy.Phase, time.Time) error {
	return nil
}
func (Nop) Close() error { return nil }
