package sensor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"room-status-backend/config"
)

// Listener subscribes to sensor topics on an MQTT broker.
type Listener struct {
	cfg     config.MQTTConfig
	applier *Applier
	logger  *zap.Logger
	client  mqtt.Client
}

func NewListener(cfg config.MQTTConfig, applier *Applier, logger *zap.Logger) *Listener {
	return &Listener{cfg: cfg, applier: applier, logger: logger}
}

// Start connects to the broker and subscribes to the configured topic.
// Messages are applied with ctx until Stop is called.
func (l *Listener) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(l.cfg.Broker)
	opts.SetClientID(l.cfg.ClientID)
	if l.cfg.Username != "" {
		opts.SetUsername(l.cfg.Username)
	}
	if l.cfg.Password != "" {
		opts.SetPassword(l.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		// resubscribe after reconnects
		if token := c.Subscribe(l.cfg.Topic, l.cfg.QoS, l.messageHandler(ctx)); token.Wait() && token.Error() != nil {
			l.logger.Error("failed to subscribe", zap.String("topic", l.cfg.Topic), zap.Error(token.Error()))
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		l.logger.Warn("mqtt connection lost", zap.Error(err))
	})

	l.client = mqtt.NewClient(opts)
	if token := l.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	l.logger.Info("mqtt listener started", zap.String("broker", l.cfg.Broker), zap.String("topic", l.cfg.Topic))
	return nil
}

// Stop disconnects from the broker.
func (l *Listener) Stop() {
	if l.client != nil {
		l.client.Disconnect(250)
	}
}

func (l *Listener) messageHandler(ctx context.Context) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		if err := l.HandleMessage(ctx, msg.Topic(), msg.Payload()); err != nil {
			l.logger.Error("failed to handle mqtt message", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	}
}

// HandleMessage decodes one message and applies it.
func (l *Listener) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	r, err := DecodeMessage(l.cfg.Topic, topic, payload)
	if err != nil {
		return err
	}
	_, err = l.applier.Apply(ctx, r)
	return err
}

// DecodeMessage builds a Reading from a message. The payload is either a
// JSON object or a bare status token. When the payload carries no room id it
// is taken from the topic segment matching the single-level wildcard in
// pattern, e.g. "clinic/rooms/+/status".
func DecodeMessage(pattern, topic string, payload []byte) (Reading, error) {
	var r Reading
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &r); err != nil {
			return Reading{}, fmt.Errorf("decode payload on %s: %w", topic, err)
		}
	} else {
		r.Status = string(trimmed)
	}

	if r.RoomID == 0 {
		id, err := RoomIDFromTopic(pattern, topic)
		if err != nil {
			return Reading{}, err
		}
		r.RoomID = id
	}
	return r, nil
}

// RoomIDFromTopic extracts the numeric room id at the position of the first
// "+" in pattern.
func RoomIDFromTopic(pattern, topic string) (int64, error) {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	for i, seg := range pp {
		if seg != "+" {
			continue
		}
		if i >= len(tp) {
			break
		}
		id, err := strconv.ParseInt(tp[i], 10, 64)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("topic %q: segment %q is not a room id", topic, tp[i])
		}
		return id, nil
	}
	return 0, fmt.Errorf("topic %q carries no room id for pattern %q", topic, pattern)
}
