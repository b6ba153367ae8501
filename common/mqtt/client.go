package mqtt

import (
	"fmt"
	"sync"
	"time"

	"listing-discovery/common/config"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	connectTimeout  = 10 * time.Second
	operationWait   = 5 * time.Second
	disconnectQuiet = 250 // ms
)

// MessageHandler handles one message payload
type MessageHandler func(topic string, payload []byte) error

// Client paho client with persistent subscriptions. Subscriptions are
// replayed on reconnect since the session is clean.
type Client struct {
	client paho.Client
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]subscription
}

type subscription struct {
	qos     byte
	handler paho.MessageHandler
}

// NewClient connects to cfg.Broker and blocks until connected or timed out
func NewClient(cfg *config.MQTTConfig, logger *zap.Logger) (*Client, error) {
	c := &Client{logger: logger, subs: make(map[string]subscription)}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("MQTT connection lost", zap.String("broker", cfg.Broker), zap.Error(err))
		}).
		SetOnConnectHandler(c.resubscribe)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}
	return c, nil
}

// Subscribe registers handler on topic. Handler errors are logged.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	cb := func(_ paho.Client, msg paho.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warn("MQTT handler failed", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	}
	if err := wait(c.client.Subscribe(topic, qos, cb)); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: cb}
	c.mu.Unlock()
	return nil
}

// Unsubscribe drops topics from the broker and the replay set
func (c *Client) Unsubscribe(topics ...string) error {
	c.mu.Lock()
	for _, t := range topics {
		delete(c.subs, t)
	}
	c.mu.Unlock()
	if err := wait(c.client.Unsubscribe(topics...)); err != nil {
		return fmt.Errorf("mqtt unsubscribe: %w", err)
	}
	return nil
}

func (c *Client) Disconnect() {
	c.client.Disconnect(disconnectQuiet)
}

// resubscribe runs on the paho callback goroutine after each (re)connect
func (c *Client) resubscribe(pc paho.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, s := range c.subs {
		subs[topic] = s
	}
	c.mu.Unlock()

	for topic, s := range subs {
		if err := wait(pc.Subscribe(topic, s.qos, s.handler)); err != nil {
			c.logger.Error("MQTT resubscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}

func wait(t paho.Token) error {
	if !t.WaitTimeout(operationWait) {
		return fmt.Errorf("timed out after %s", operationWait)
	}
	return t.Error()
}
