package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"coatline/internal/observability/metrics"
)

// ClientConfig configures the broker connection.
type ClientConfig struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	ReconnectDelay time.Duration
	ConnectTimeout time.Duration
}

type subscription struct {
	qos     byte
	handler func(topic string, payload []byte)
}

// PahoClient adapts the paho client. Subscriptions are remembered and
// replayed on every (re)connect; reconnects use a fixed delay.
type PahoClient struct {
	client paho.Client
	logger *log.Logger
	cfg    ClientConfig

	mu          sync.Mutex
	subs        map[string]subscription
	onReconnect []func()
	connectedAt time.Time
}

// NewPahoClient constructs an unconnected client.
func NewPahoClient(cfg ClientConfig, logger *log.Logger) (*PahoClient, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("mqtt: empty broker url")
	}
	if logger == nil {
		logger = log.Default()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "coatline"
	}
	// Client IDs must be unique per broker connection.
	clientID := cfg.ClientID + "-" + uuid.NewString()[:8]

	c := &PahoClient{logger: logger, cfg: cfg, subs: make(map[string]subscription)}
	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(cfg.ReconnectDelay).
		SetMaxReconnectInterval(cfg.ReconnectDelay).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetOnConnectHandler(c.handleConnect).
		SetConnectionLostHandler(c.handleConnectionLost)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	c.client = paho.NewClient(opts)
	return c, nil
}

// Connect starts the session and waits for the first connection attempt.
// With connect retry enabled the client keeps trying in the background.
func (c *PahoClient) Connect(ctx context.Context) error {
	token := c.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt: connect %s: %w", c.cfg.BrokerURL, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.ConnectTimeout):
		c.logger.Printf("mqtt: broker %s not reachable yet, retrying every %s", c.cfg.BrokerURL, c.cfg.ReconnectDelay)
		return nil
	}
}

// Disconnect closes the session, waiting up to quiesce for in-flight work.
func (c *PahoClient) Disconnect(quiesce time.Duration) {
	c.client.Disconnect(uint(quiesce / time.Millisecond))
}

// OnReconnect registers fn to run after every successful connection.
func (c *PahoClient) OnReconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = append(c.onReconnect, fn)
}

// Connected reports whether the session is currently up.
func (c *PahoClient) Connected() bool {
	return c.client.IsConnectionOpen()
}

// Subscribe records the subscription and applies it when connected.
func (c *PahoClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	if topic == "" || handler == nil {
		return errors.New("mqtt: invalid subscription")
	}
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()
	if !c.client.IsConnectionOpen() {
		return nil
	}
	return c.subscribe(topic, subscription{qos: qos, handler: handler})
}

func (c *PahoClient) subscribe(topic string, sub subscription) error {
	token := c.client.Subscribe(topic, sub.qos, func(_ paho.Client, msg paho.Message) {
		sub.handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(c.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt: subscribe %s: timeout", topic)
	}
	return token.Error()
}

// Publish sends a message and waits for the broker acknowledgement or ctx.
func (c *PahoClient) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return errors.New("mqtt: not connected")
	}
	token := c.client.Publish(topic, qos, retained, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *PahoClient) handleConnect(_ paho.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, sub := range c.subs {
		subs[topic] = sub
	}
	hooks := append([]func(){}, c.onReconnect...)
	reconnect := !c.connectedAt.IsZero()
	c.connectedAt = time.Now()
	c.mu.Unlock()

	if reconnect {
		metrics.IncReconnect()
	}
	c.logger.Printf("mqtt: connected to %s, resubscribing %d topics", c.cfg.BrokerURL, len(subs))
	// The connect callback must not block on tokens.
	go func() {
		for topic, sub := range subs {
			if err := c.subscribe(topic, sub); err != nil {
				c.logger.Printf("mqtt: resubscribe failed: topic=%s err=%v", topic, err)
			}
		}
		for _, hook := range hooks {
			hook()
		}
	}()
}

func (c *PahoClient) handleConnectionLost(_ paho.Client, err error) {
	c.logger.Printf("mqtt: connection lost: broker=%s err=%v", c.cfg.BrokerURL, err)
}
