package telemetry

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"cloudpico-tag/internal/payload"
)

func TestFromBroadcast_Raw(t *testing.T) {
	b := payload.Raw(payload.EncodeRaw4Accel(payload.AccelerationSample{X: -12, Y: 40, Z: 1000}, 7))
	got, err := FromBroadcast(b, payload.URLBase)
	if err != nil {
		t.Fatalf("FromBroadcast() error = %v", err)
	}
	if got.Format != "raw4accel" {
		t.Errorf("Format = %q", got.Format)
	}
	if got.Temperature != nil || got.Battery != nil {
		t.Error("raw broadcast carries environmental fields")
	}
	if got.Accel == nil {
		t.Fatal("Accel = nil")
	}
	if got.Accel.X != -12 || got.Accel.Y != 40 || got.Accel.Z != 1000 || got.Accel.SampleCount != 7 {
		t.Errorf("Accel = %+v", *got.Accel)
	}
	if got.Accel.Magnitude != 1000 {
		t.Errorf("Magnitude = %d, want 1000", got.Accel.Magnitude)
	}
}

func TestFromBroadcast_URL(t *testing.T) {
	b := payload.URL(payload.EncodeURL(payload.SensorReading{
		Temperature: 2150, Pressure: 101325, Humidity: 4500, Battery: 3000,
	}, payload.URLBase))
	got, err := FromBroadcast(b, payload.URLBase)
	if err != nil {
		t.Fatalf("FromBroadcast() error = %v", err)
	}
	if got.Accel != nil {
		t.Error("url broadcast carries acceleration")
	}
	checks := []struct {
		name string
		v    *float64
		want float64
	}{
		{"temperature", got.Temperature, 21.5},
		{"humidity", got.Humidity, 45},
		{"pressure", got.Pressure, 1013.25},
	}
	for _, c := range checks {
		if c.v == nil || math.Abs(*c.v-c.want) > 0.001 {
			t.Errorf("%s = %v, want %v", c.name, c.v, c.want)
		}
	}
	if got.Battery == nil || math.Abs(*got.Battery-3.0) > 0.032 {
		t.Errorf("battery = %v, want ~3.0", got.Battery)
	}
}

func TestFromBroadcast_Errors(t *testing.T) {
	if _, err := FromBroadcast(payload.Broadcast{}, payload.URLBase); err == nil {
		t.Error("unknown format: error = nil")
	}
	if _, err := FromBroadcast(payload.Broadcast{Format: payload.FormatRaw4Accel, Data: []byte{1}}, payload.URLBase); err == nil {
		t.Error("short raw: error = nil")
	}
}

func TestTelemetry_JSONOmitsUnset(t *testing.T) {
	b, err := json.Marshal(Telemetry{StationID: "outdoor", Format: "raw4accel"})
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"temperature_c", "battery_v", "acceleration", "sequence"} {
		if strings.Contains(string(b), key) {
			t.Errorf("json contains %q: %s", key, b)
		}
	}
}
