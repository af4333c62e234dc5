package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	appnotification "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/notification"

	"github.com/segmentio/kafka-go"
)

const DefaultTopic = "minishop.orders"

// MessageWriter is the subset of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink streams order events to a Kafka topic, keyed by order id so every
// event of one order lands on the same partition.
type Sink struct {
	writer MessageWriter
}

var _ appnotification.Sink = (*Sink)(nil)

func NewSink(writer MessageWriter) *Sink {
	return &Sink{writer: writer}
}

// NewWriter builds a hash-balanced writer for topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func (s *Sink) Name() string { return "kafka" }

func (s *Sink) Send(ctx context.Context, env appnotification.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("kafka sink: encode %s: %w", env.Event, err)
	}
	msg := kafka.Message{
		Key:   []byte(env.Key),
		Value: data,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(env.Event)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka sink: write %s: %w", env.Event, err)
	}
	return nil
}

func (s *Sink) Close() error {
	return s.writer.Close()
}
