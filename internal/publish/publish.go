// Package publish forwards engine snapshots to external consumers.
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ayusman/biomech/internal/engine"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("publisher closed")

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 2 * time.Second
)

// Publisher delivers snapshots somewhere outside the process.
type Publisher interface {
	Publish(snap engine.Snapshot) error
	Close()
}

// MQTTConfig configures an MQTTPublisher.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
}

// client is the subset of mqtt.Client used for publishing.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes snapshot JSON to "<topic>/snapshot" with QoS 0.
// A publish that does not complete within a short timeout is dropped so a
// slow broker never stalls the pipeline.
type MQTTPublisher struct {
	client client
	topic  string

	mu      sync.Mutex
	closed  bool
	sent    int
	dropped int
}

// NewMQTTPublisher connects to the broker and returns a publisher. The
// client reconnects on its own after a lost connection.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = "biomech"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("biomech-%d", time.Now().UnixNano())
	}
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("[MQTT] Connected to %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("[MQTT] Connection lost: %v (will auto-reconnect)", err)
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Printf("[MQTT] Reconnecting...")
	})

	c := mqtt.NewClient(opts)
	log.Printf("[MQTT] Connecting to %s as %s...", cfg.Broker, clientID)

	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		c.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect failed: %w", err)
	}

	return newMQTTPublisher(c, cfg.Topic), nil
}

func newMQTTPublisher(c client, topic string) *MQTTPublisher {
	return &MQTTPublisher{client: c, topic: topic}
}

// Topic returns the topic snapshots are published on.
func (p *MQTTPublisher) Topic() string {
	return p.topic + "/snapshot"
}

// Publish sends one snapshot.
func (p *MQTTPublisher) Publish(snap engine.Snapshot) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	token := p.client.Publish(p.Topic(), 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}

	p.mu.Lock()
	p.sent++
	p.mu.Unlock()
	return nil
}

// Stats returns the number of snapshots sent and dropped.
func (p *MQTTPublisher) Stats() (sent, dropped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent, p.dropped
}

// Close disconnects from the broker. It is safe to call more than once.
func (p *MQTTPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.client.Disconnect(250)
	log.Printf("[MQTT] Disconnected")
}
