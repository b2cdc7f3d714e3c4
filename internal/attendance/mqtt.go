package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/recognition"
)

const (
	mqttConnectTimeout = 30 * time.Second
	mqttPublishTimeout = 10 * time.Second
	mqttQoS            = 1
)

// Publisher is the part of mqtt.Client used by the sink.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes events as JSON to a topic.
type MQTTSink struct {
	client Publisher
	topic  string
	close  func()
}

// NewMQTTSink creates a sink over an existing publisher.
func NewMQTTSink(client Publisher, topic string) *MQTTSink {
	return &MQTTSink{client: client, topic: topic}
}

// ConnectMQTT connects to broker and returns a sink publishing to topic.
func ConnectMQTT(broker, clientID, topic string) (*MQTTSink, error) {
	if broker == "" {
		return nil, errors.New("MQTT broker is required")
	}
	if clientID == "" {
		clientID = "face-attendance-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		fmt.Printf("Connected to MQTT broker: %s\n", broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		fmt.Printf("Connection to MQTT broker lost: %s, error: %v\n", broker, err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		client.Disconnect(250)
		return nil, errors.New("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connection error: %w", err)
	}

	s := NewMQTTSink(client, topic)
	s.close = func() { client.Disconnect(250) }
	return s, nil
}

// Record publishes the event and waits for the broker acknowledgment.
func (s *MQTTSink) Record(ctx context.Context, ev recognition.AttendanceEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	token := s.client.Publish(s.topic, mqttQoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(mqttPublishTimeout):
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", s.topic, err)
	}
	return nil
}

// Close disconnects from the broker when the sink owns the connection.
func (s *MQTTSink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
