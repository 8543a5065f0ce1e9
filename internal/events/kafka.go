// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/hemenye/internal/domain/order"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher implements order.Publisher. Messages are keyed by order id
// so events of one order stay in one partition and keep their order.
type KafkaPublisher struct {
	w messageWriter
}

var _ order.Publisher = (*KafkaPublisher)(nil)

// ParseBrokers splits a comma-separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	var brokers []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewKafkaPublisher writes to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e order.Event) error {
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(e.OrderID, 10)),
		Value: Encode(e),
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(e.Kind)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write %s for order %d", e.Kind, e.OrderID)
	}
	return nil
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// Encode renders e as the JSON message value.
func Encode(e order.Event) []byte {
	var enc jx.Encoder
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("kind", func(enc *jx.Encoder) { enc.Str(string(e.Kind)) })
		enc.Field("order_id", func(enc *jx.Encoder) { enc.Int64(e.OrderID) })
		enc.Field("user_id", func(enc *jx.Encoder) { enc.Int64(e.UserID) })
		enc.Field("restaurant_id", func(enc *jx.Encoder) { enc.Int64(e.RestaurantID) })
		if e.From != "" {
			enc.Field("from", func(enc *jx.Encoder) { enc.Str(string(e.From)) })
		}
		enc.Field("to", func(enc *jx.Encoder) { enc.Str(string(e.To)) })
		enc.Field("final_amount", func(enc *jx.Encoder) { enc.Str(e.FinalAmount.StringFixed(2)) })
		enc.Field("actor_id", func(enc *jx.Encoder) { enc.Int64(e.ActorID) })
		enc.Field("at", func(enc *jx.Encoder) { enc.Str(e.At.UTC().Format(time.RFC3339Nano)) })
	})
	return enc.Bytes()
}
