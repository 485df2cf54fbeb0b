// Package mqtt publishes gateway telemetry to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"cloudpico-tag/internal/config"
	"cloudpico-tag/internal/telemetry"
)

var (
	ErrNotConnected = errors.New("mqtt client not connected")
	ErrStopped      = errors.New("mqtt client stopped")
)

const publishTimeout = 5 * time.Second

// TelemetryTopic is where a station's broadcasts are published.
func TelemetryTopic(stationID string) string {
	return fmt.Sprintf("stations/%s/telemetry", stationID)
}

// HealthTopic carries a station's retained last-seen state.
func HealthTopic(stationID string) string {
	return fmt.Sprintf("stations/%s/health", stationID)
}

type Client struct {
	client    paho.Client
	cfg       config.Gateway
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewClient builds a client with a retained last will on the station's
// health topic. It does not connect.
func NewClient(cfg config.Gateway, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	will, err := lastWill(cfg.DeviceStationID)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(HealthTopic(cfg.DeviceStationID), will, 1, true)

	opts.SetOnConnectHandler(func(_ paho.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = paho.NewClient(opts)
	return c, nil
}

// lastWill is published by the broker if the gateway drops off, marking the
// station unhealthy.
func lastWill(stationID string) ([]byte, error) {
	will, err := json.Marshal(telemetry.StationHealth{StationID: stationID, Healthy: false})
	if err != nil {
		return nil, fmt.Errorf("marshal last will: %w", err)
	}
	return will, nil
}

// Connect waits for the initial connection, returning early when ctx is done
// or Disconnect is called.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return ErrStopped
	default:
	}
	if c.IsConnected() {
		return nil
	}

	// With ConnectRetry the token only completes once connected.
	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return ErrStopped
		default:
		}
	}
}

// PublishTelemetry publishes t to the telemetry topic of its station,
// defaulting the station and timestamp when unset.
func (c *Client) PublishTelemetry(t telemetry.Telemetry) error {
	if t.StationID == "" {
		t.StationID = c.cfg.DeviceStationID
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}
	topic := TelemetryTopic(t.StationID)
	if err := c.publish(topic, false, data); err != nil {
		return fmt.Errorf("publish telemetry: %w", err)
	}
	c.logger.Debug("published telemetry", "topic", topic, "format", t.Format, "address", t.Address)
	return nil
}

// PublishStationHealth publishes retained last-seen state.
func (c *Client) PublishStationHealth(h telemetry.StationHealth) error {
	if h.LastSeen.IsZero() {
		h.LastSeen = time.Now()
	}
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal health: %w", err)
	}
	topic := HealthTopic(h.StationID)
	if err := c.publish(topic, true, data); err != nil {
		return fmt.Errorf("publish health: %w", err)
	}
	c.logger.Debug("published station health", "topic", topic, "healthy", h.Healthy)
	return nil
}

func (c *Client) publish(topic string, retained bool, data []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, 1, retained, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		c.logger.Error("mqtt publish failed", "topic", topic, "error", err)
		return err
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect stops the client and closes the connection. It is idempotent;
// afterwards Connect returns ErrStopped.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.client.Disconnect(250)
	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
