package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event types published to the activity topic. Consumers fan these out to
// notification and search pipelines.
const (
	TypeUserCreated    = "user.created"
	TypeMessageSent    = "message.sent"
	TypeMessageEdited  = "message.edited"
	TypeMessageDeleted = "message.deleted"
	TypeGroupCreated   = "group.created"
	TypeGroupDeleted   = "group.deleted"
	TypeMemberJoined   = "member.joined"
	TypeMemberLeft     = "member.left"
	TypeUserInvited    = "user.invited"
)

type Event struct {
	Type    string      `json:"type"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload"`
}

// Producer writes domain events to Kafka. A nil Producer drops everything,
// which is how the server runs when no brokers are configured.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &Producer{writer: w}
}

// Publish marshals the payload and writes it keyed by key, so events for
// the same group land on the same partition in order.
func (p *Producer) Publish(ctx context.Context, key, eventType string, payload interface{}) error {
	if p == nil {
		return nil
	}
	b, err := json.Marshal(Event{Type: eventType, At: time.Now().UTC(), Payload: payload})
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: b,
		Time:  time.Now(),
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
