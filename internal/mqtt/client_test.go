package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"cloudpico-tag/internal/config"
	"cloudpico-tag/internal/logging"
	"cloudpico-tag/internal/telemetry"
)

func testConfig() config.Gateway {
	return config.Gateway{
		MQTTBroker:      "127.0.0.1",
		MQTTPort:        1,
		MQTTClientID:    "test",
		DeviceStationID: "outdoor",
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(testConfig(), logging.Discard())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestLastWill(t *testing.T) {
	data, err := lastWill("outdoor")
	if err != nil {
		t.Fatalf("lastWill() error = %v", err)
	}
	var h telemetry.StationHealth
	if err := json.Unmarshal(data, &h); err != nil {
		t.Fatalf("will is not JSON: %v", err)
	}
	if h.StationID != "outdoor" || h.Healthy {
		t.Errorf("will = %+v, want unhealthy outdoor", h)
	}
}

func TestTopics(t *testing.T) {
	if got := TelemetryTopic("outdoor"); got != "stations/outdoor/telemetry" {
		t.Errorf("TelemetryTopic = %q", got)
	}
	if got := HealthTopic("outdoor"); got != "stations/outdoor/health" {
		t.Errorf("HealthTopic = %q", got)
	}
}

func TestPublish_NotConnected(t *testing.T) {
	c := newTestClient(t)
	if c.IsConnected() {
		t.Fatal("new client reports connected")
	}
	if err := c.PublishTelemetry(telemetry.Telemetry{Format: "url"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishTelemetry() error = %v, want ErrNotConnected", err)
	}
	if err := c.PublishStationHealth(telemetry.StationHealth{StationID: "outdoor"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishStationHealth() error = %v, want ErrNotConnected", err)
	}
}

func TestConnect_AfterDisconnect(t *testing.T) {
	c := newTestClient(t)
	c.Disconnect()
	c.Disconnect()
	if err := c.Connect(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Connect() error = %v, want ErrStopped", err)
	}
}

func TestConnect_ContextCanceled(t *testing.T) {
	c := newTestClient(t)
	defer c.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Connect(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Connect() error = %v, want context.Canceled", err)
	}
}
