// Package telemetry is the JSON message the gateway publishes per decoded
// tag broadcast.
package telemetry

import (
	"fmt"
	"time"

	"cloudpico-tag/internal/payload"
)

// Telemetry represents one decoded broadcast from a tag.
type Telemetry struct {
	StationID   string        `json:"station_id"`
	Timestamp   time.Time     `json:"timestamp"`
	Address     string        `json:"address,omitempty"`
	RSSI        int16         `json:"rssi,omitempty"`
	Format      string        `json:"format"`
	Temperature *float64      `json:"temperature_c,omitempty"`
	Humidity    *float64      `json:"humidity_pct,omitempty"`
	Pressure    *float64      `json:"pressure_hpa,omitempty"`
	Battery     *float64      `json:"battery_v,omitempty"`
	Accel       *Acceleration `json:"acceleration,omitempty"`
	Sequence    *int          `json:"sequence,omitempty"`
}

// Acceleration is the first FIFO sample of a Raw4Accel broadcast.
type Acceleration struct {
	X           int16  `json:"x_mg"`
	Y           int16  `json:"y_mg"`
	Z           int16  `json:"z_mg"`
	Magnitude   uint16 `json:"magnitude_mg"`
	SampleCount uint32 `json:"sample_count"`
}

// StationHealth is the retained last-seen state of a station.
type StationHealth struct {
	StationID string    `json:"station_id"`
	LastSeen  time.Time `json:"last_seen"`
	Healthy   bool      `json:"healthy"`
}

// FromBroadcast decodes b into a Telemetry. Only the fields the format
// carries are set.
func FromBroadcast(b payload.Broadcast, base [payload.URLBaseLength]byte) (Telemetry, error) {
	t := Telemetry{Format: b.Format.String()}
	switch b.Format {
	case payload.FormatRaw4Accel:
		r, err := payload.DecodeRaw4Accel(b.Data)
		if err != nil {
			return Telemetry{}, err
		}
		t.Accel = &Acceleration{
			X:           r.Sample.X,
			Y:           r.Sample.Y,
			Z:           r.Sample.Z,
			Magnitude:   r.Magnitude,
			SampleCount: r.SampleCount,
		}
	case payload.FormatURL:
		r, err := payload.DecodeURL(b.Data, base)
		if err != nil {
			return Telemetry{}, err
		}
		t.Temperature = &r.Temperature
		t.Humidity = &r.Humidity
		t.Pressure = &r.Pressure
		t.Battery = &r.Battery
	default:
		return Telemetry{}, fmt.Errorf("telemetry: unsupported format %s", b.Format)
	}
	return t, nil
}
