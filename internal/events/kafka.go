// README: Booking lifecycle events published to Kafka, keyed by booking id.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"haulbook/internal/modules/booking"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes booking events to one topic. Messages share a key per
// booking so a partition keeps them in order.
type Publisher struct {
	w messageWriter
}

// NewKafkaPublisher returns an asynchronous publisher: Publish only queues
// the message, so an unreachable broker never delays a booking request.
// Delivery failures are reported to log.
func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) *Publisher {
	return &Publisher{w: newWriter(brokers, topic, log)}
}

func newWriter(brokers []string, topic string, log *slog.Logger) *kafka.Writer {
	if log == nil {
		log = slog.Default()
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
		BatchTimeout:           50 * time.Millisecond,
		Async:                  true,
		Completion:             reportFailures(log),
	}
}

func reportFailures(log *slog.Logger) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		for _, m := range msgs {
			log.Warn("booking event not delivered", "booking_id", string(m.Key), "error", err)
		}
	}
}

type payload struct {
	Kind        string  `json:"kind"`
	BookingID   string  `json:"booking_id"`
	RequesterID string  `json:"requester_id"`
	Status      string  `json:"status"`
	State       string  `json:"state"`
	TruckID     *string `json:"truck_id"`
	OccurredAt  string  `json:"occurred_at"`
}

func encode(e booking.Event) ([]byte, error) {
	p := payload{
		Kind:        string(e.Kind),
		BookingID:   string(e.BookingID),
		RequesterID: string(e.RequesterID),
		Status:      string(e.Status),
		State:       string(e.State),
		OccurredAt:  e.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if e.TruckID != nil {
		id := string(*e.TruckID)
		p.TruckID = &id
	}
	return json.Marshal(p)
}

func (p *Publisher) Publish(ctx context.Context, e booking.Event) error {
	body, err := encode(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Kind, err)
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.BookingID),
		Value: body,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(e.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", e.Kind, err)
	}
	return nil
}

// Close flushes queued messages.
func (p *Publisher) Close() error {
	return p.w.Close()
}
