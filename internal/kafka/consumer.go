package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"fleet-service/internal/logging"
	"fleet-service/internal/telemetry"
)

// TopicHeader optionally carries the source topic path. Without it the
// router falls back to payload-shape inference.
const TopicHeader = "topic"

type Config struct {
	Broker         string
	TelemetryTopic string
	EventsTopic    string
	GroupID        string
}

// Submitter accepts decoded telemetry. engine.Engine satisfies it.
type Submitter interface {
	Submit(cmd any) bool
}

// Consumer reads telemetry records keyed by device id.
type Consumer struct {
	reader *kafka.Reader
	sub    Submitter
	logger *logging.Logger
}

func NewConsumer(cfg Config, sub Submitter, logger *logging.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{cfg.Broker},
		GroupID:     cfg.GroupID,
		Topic:       cfg.TelemetryTopic,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})
	return &Consumer{reader: r, sub: sub, logger: logger}
}

func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka consumer started on %s", c.reader.Config().Topic)
		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					c.logger.Infof("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Read message failed: %v", err)
				continue
			}
			m, ok := Decode(msg)
			if !ok {
				c.logger.Warnf("Skipping record without device key at offset %d", msg.Offset)
				continue
			}
			if !c.sub.Submit(m) {
				c.logger.Device(m.DeviceID, "").Warnf("Dropped record at offset %d", msg.Offset)
			}
		}
	}()
}

// Decode turns a record into a telemetry message. Records without a key
// cannot be attributed to a device.
func Decode(msg kafka.Message) (telemetry.Message, bool) {
	deviceID := string(msg.Key)
	if deviceID == "" {
		return telemetry.Message{}, false
	}
	topic := ""
	for _, h := range msg.Headers {
		if h.Key == TopicHeader {
			topic = string(h.Value)
			break
		}
	}
	at := msg.Time
	if at.IsZero() {
		at = time.Now()
	}
	return telemetry.Decode(deviceID, topic, msg.Value, at), true
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Errorf("Close Kafka reader failed: %v", err)
	}
}
