// Package kafka writes compact snapshots to a Kafka topic.
package kafka

import (
	"context"
	"time"

	"github.com/ponytojas/dht-logger/internal/codec"
	"github.com/ponytojas/dht-logger/internal/dispatch"
	kafkago "github.com/segmentio/kafka-go"
)

var _ dispatch.Sender = (*Publisher)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces one Kafka message per snapshot.
type Publisher struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewPublisher returns a publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	return newPublisher(&kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		RequiredAcks:           kafkago.RequireOne,
		Balancer:               &kafkago.LeastBytes{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}, topic)
}

func newPublisher(w messageWriter, topic string) *Publisher {
	return &Publisher{writer: w, topic: topic, now: time.Now}
}

// Name returns the kafka channel name.
func (p *Publisher) Name() string {
	return "kafka://" + p.topic
}

// Format returns codec.Compact.
func (p *Publisher) Format() codec.Format {
	return codec.Compact
}

// Send writes payload as a single message.
func (p *Publisher) Send(ctx context.Context, payload []byte) error {
	return p.writer.WriteMessages(ctx, kafkago.Message{
		Value: payload,
		Time:  p.now(),
	})
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
