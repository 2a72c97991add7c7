// Package mqtt connects the engine to the per-device telemetry topics and
// publishes collision events back onto the broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"fleet-service/internal/events"
	"fleet-service/internal/logging"
	"fleet-service/internal/telemetry"
)

const eventsSegment = "events"

// Submitter accepts decoded telemetry. engine.Engine satisfies it.
type Submitter interface {
	Submit(cmd any) bool
}

// Config holds broker connection settings.
type Config struct {
	Broker      string
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string
}

// Client wraps a paho client with a subscription table that survives
// reconnects.
type Client struct {
	client paho.Client
	prefix string
	logger *logging.Logger

	mu   sync.Mutex
	subs map[string]paho.MessageHandler
}

// New connects to the broker. Reconnection and retry are left to paho.
func New(cfg Config, logger *logging.Logger) (*Client, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)

	c := &Client{
		prefix: strings.Trim(cfg.TopicPrefix, "/"),
		logger: logger,
		subs:   make(map[string]paho.MessageHandler),
	}
	opts.OnConnect = func(_ paho.Client) {
		logger.Infof("Connected to MQTT broker %s", cfg.Broker)
		c.resubscribeAll()
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Warnf("MQTT connection lost: %v", err)
	}

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	c.client = client
	return c, nil
}

// Subscribe registers cb for topic and returns a function that removes it.
func (c *Client) Subscribe(topic string, cb paho.MessageHandler) (func(), error) {
	c.mu.Lock()
	c.subs[topic] = cb
	c.mu.Unlock()

	if token := c.client.Subscribe(topic, 0, cb); token.Wait() && token.Error() != nil {
		c.mu.Lock()
		delete(c.subs, topic)
		c.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	return func() { c.Unsubscribe(topic) }, nil
}

// Unsubscribe drops topic. Unknown topics are ignored.
func (c *Client) Unsubscribe(topic string) {
	c.mu.Lock()
	_, ok := c.subs[topic]
	delete(c.subs, topic)
	c.mu.Unlock()
	if !ok {
		return
	}
	if token := c.client.Unsubscribe(topic); token.Wait() && token.Error() != nil {
		c.logger.Warnf("Unsubscribe %s failed: %v", topic, token.Error())
	}
}

// Publish sends body to topic with QoS 0.
func (c *Client) Publish(topic string, body []byte) error {
	if token := c.client.Publish(topic, 0, false, body); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}
	return nil
}

func (c *Client) resubscribeAll() {
	c.mu.Lock()
	subs := make(map[string]paho.MessageHandler, len(c.subs))
	for topic, cb := range c.subs {
		subs[topic] = cb
	}
	c.mu.Unlock()
	for topic, cb := range subs {
		if token := c.client.Subscribe(topic, 0, cb); token.Wait() && token.Error() != nil {
			c.logger.Errorf("Resubscribe %s failed: %v", topic, token.Error())
		}
	}
}

// FollowDevice subscribes to every topic under the device and feeds
// decoded messages to sub.
func (c *Client) FollowDevice(deviceID string, sub Submitter) error {
	_, err := c.Subscribe(DeviceFilter(c.prefix, deviceID), func(_ paho.Client, m paho.Message) {
		msg, ok := Inbound(c.prefix, deviceID, m.Topic(), m.Payload(), time.Now())
		if !ok {
			return
		}
		if !sub.Submit(msg) {
			c.logger.Device(deviceID, "").Warnf("Dropped message on %s", m.Topic())
		}
	})
	if err != nil {
		return err
	}
	c.logger.Infof("Following device %s", deviceID)
	return nil
}

// UnfollowDevice stops the device subscription.
func (c *Client) UnfollowDevice(deviceID string) {
	c.Unsubscribe(DeviceFilter(c.prefix, deviceID))
}

// Close disconnects after letting in-flight work finish.
func (c *Client) Close() {
	c.client.Disconnect(250)
	c.logger.Infof("MQTT client disconnected")
}

// CollisionSink returns an events sink that mirrors collision events to
// <prefix>/<device>/events/collision. Publishing never blocks the caller.
func (c *Client) CollisionSink() events.Sink {
	return events.SinkFunc(func(_ context.Context, e events.Event) error {
		if e.Kind != events.KindCollision {
			return nil
		}
		body, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode collision event: %w", err)
		}
		topic := CollisionTopic(c.prefix, e.DeviceID)
		token := c.client.Publish(topic, 0, false, body)
		go func() {
			if token.Wait() && token.Error() != nil {
				c.logger.Device(e.DeviceID, e.RobotID).Errorf("Collision publish to %s failed: %v", topic, token.Error())
			}
		}()
		return nil
	})
}

func join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

// DeviceTopic is the root topic for a device.
func DeviceTopic(prefix, deviceID string) string {
	return join(prefix, deviceID)
}

// DeviceFilter matches the device root and everything below it.
func DeviceFilter(prefix, deviceID string) string {
	return join(prefix, deviceID, "#")
}

// CollisionTopic is where collision events for a device are published.
func CollisionTopic(prefix, deviceID string) string {
	return join(prefix, deviceID, eventsSegment, "collision")
}

// Inbound strips the device root from topic and decodes body. Topics under
// the device's events/ branch are our own output and are skipped.
func Inbound(prefix, deviceID, topic string, body []byte, at time.Time) (telemetry.Message, bool) {
	root := DeviceTopic(prefix, deviceID)
	topic = strings.Trim(topic, "/")
	if topic != root && !strings.HasPrefix(topic, root+"/") {
		return telemetry.Message{}, false
	}
	rel := strings.TrimPrefix(strings.TrimPrefix(topic, root), "/")
	if rel == eventsSegment || strings.HasPrefix(rel, eventsSegment+"/") {
		return telemetry.Message{}, false
	}
	return telemetry.Decode(deviceID, rel, body, at), true
}
