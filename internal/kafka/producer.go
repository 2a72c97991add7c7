package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"fleet-service/internal/events"
	"fleet-service/internal/logging"
)

// published lists the event kinds that go on the bus. State updates stay
// local to websocket clients.
var published = map[events.Kind]bool{
	events.KindAlert:         true,
	events.KindCollision:     true,
	events.KindTaskCompleted: true,
	events.KindTaskFailed:    true,
}

// Producer publishes engine events keyed by device id.
type Producer struct {
	writer *kafka.Writer
	logger *logging.Logger
}

func NewProducer(cfg Config, logger *logging.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Broker),
		Topic:        cfg.EventsTopic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Errorf("Publish %d events failed: %v", len(msgs), err)
			}
		},
	}
	return &Producer{writer: w, logger: logger}
}

// Publish implements events.Sink.
func (p *Producer) Publish(ctx context.Context, e events.Event) error {
	msg, ok, err := Encode(e)
	if err != nil || !ok {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", e.Kind, err)
	}
	return nil
}

// Encode builds the record for e. ok is false for kinds that are not
// published.
func Encode(e events.Event) (kafka.Message, bool, error) {
	if !published[e.Kind] {
		return kafka.Message{}, false, nil
	}
	body, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, false, fmt.Errorf("encode %s event: %w", e.Kind, err)
	}
	return kafka.Message{
		Key:     []byte(e.DeviceID),
		Value:   body,
		Time:    e.At,
		Headers: []kafka.Header{{Key: "kind", Value: []byte(e.Kind)}},
	}, true, nil
}

func (p *Producer) Close() {
	if err := p.writer.Close(); err != nil {
		p.logger.Errorf("Close Kafka writer failed: %v", err)
	}
}
