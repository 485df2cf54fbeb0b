// Package cycle runs one sampling cycle: read the sensors, encode for the
// current mode, hand the payload to the radio and feed the watchdog.
package cycle

import (
	"log/slog"
	"time"

	"cloudpico-tag/internal/dispatch"
	"cloudpico-tag/internal/health"
	"cloudpico-tag/internal/mode"
	"cloudpico-tag/internal/payload"
)

// Environment is one environmental sensor read in payload units.
type Environment struct {
	Temperature int32  // 0.01 °C
	Pressure    uint32 // Pa
	Humidity    uint32 // 0.01 %RH
}

// Source returns the most recent sensor values.
type Source interface {
	// HasSecondarySensors is false on reduced hardware without the
	// environmental sensor and accelerometer.
	HasSecondarySensors() bool
	Environment() (Environment, error)
	// AccelFIFO drains the accelerometer FIFO and returns the samples read
	// together with the number the FIFO reported.
	AccelFIFO() ([]payload.AccelerationSample, uint32, error)
	// DieTemperature is the SoC thermometer in 0.25 °C steps.
	DieTemperature() (int32, error)
	Battery() (uint16, error)
}

// Sink is the broadcast side of the radio stack.
type Sink interface {
	SetPayload(b payload.Broadcast) error
	SetAdvertisingInterval(interval time.Duration) error
}

type Watchdog interface {
	Feed()
}

// ModeReader exposes the active mode.
type ModeReader interface {
	Mode() mode.Mode
}

// State is the collection state a cycle ran in.
type State uint8

const (
	RawCollect State = iota
	URLCollect
)

func (s State) String() string {
	if s == RawCollect {
		return "raw"
	}
	return "url"
}

// StateFor maps a mode to its collection state.
func StateFor(m mode.Mode) State {
	if m == mode.LowPower {
		return URLCollect
	}
	return RawCollect
}

// Result describes one completed cycle.
type Result struct {
	State        State
	Reduced      bool
	Reading      payload.SensorReading
	SampleCount  uint32
	MotionEvents uint32
	Broadcast    payload.Broadcast
}

// Observer is notified after each completed cycle.
type Observer func(Result)

// Cycle holds the collaborators for a sampling cycle. The zero value is not usable.
type Cycle struct {
	source   Source
	sink     Sink
	watchdog Watchdog
	modes    ModeReader
	motion   *dispatch.Counter
	report   *health.Report
	urlBase  [payload.URLBaseLength]byte
	observer Observer
	logger   *slog.Logger
}

type Options struct {
	Source   Source
	Sink     Sink
	Watchdog Watchdog
	Modes    ModeReader
	Motion   *dispatch.Counter
	Report   *health.Report
	URLBase  [payload.URLBaseLength]byte
	Observer Observer
	Logger   *slog.Logger
}

func New(opts Options) *Cycle {
	if opts.Motion == nil {
		opts.Motion = &dispatch.Counter{}
	}
	if opts.Report == nil {
		opts.Report = health.NewReport()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	var zero [payload.URLBaseLength]byte
	if opts.URLBase == zero {
		opts.URLBase = payload.URLBase
	}
	return &Cycle{
		source:   opts.Source,
		sink:     opts.Sink,
		watchdog: opts.Watchdog,
		modes:    opts.Modes,
		motion:   opts.Motion,
		report:   opts.Report,
		urlBase:  opts.URLBase,
		observer: opts.Observer,
		logger:   opts.Logger,
	}
}

// Run executes one cycle to completion. It never fails; collaborator errors
// are tallied and the affected fields zero-filled.
func (c *Cycle) Run() Result {
	res := Result{State: StateFor(c.modes.Mode())}

	var fifo []payload.AccelerationSample
	if c.source.HasSecondarySensors() {
		env, err := c.source.Environment()
		if err != nil {
			c.check("sensor.environment", err)
			env = Environment{}
		}
		res.Reading.Temperature = env.Temperature
		res.Reading.Pressure = env.Pressure
		res.Reading.Humidity = env.Humidity

		if res.State == RawCollect {
			samples, count, err := c.source.AccelFIFO()
			if err != nil {
				c.check("sensor.accel", err)
				samples, count = nil, 0
			}
			fifo, res.SampleCount = samples, count
		}
	} else {
		res.Reduced = true
		quarter, err := c.source.DieTemperature()
		if err != nil {
			c.check("sensor.die", err)
			quarter = 0
		}
		// Die temperature is in 0.25 °C steps; x25 gives 0.01 °C.
		res.Reading.Temperature = quarter * 25
	}

	battery, err := c.source.Battery()
	if err != nil {
		c.check("sensor.battery", err)
		battery = 0
	}
	res.Reading.Battery = battery

	if len(fifo) > payload.MaxAccelerationSamples {
		fifo = fifo[:payload.MaxAccelerationSamples]
	}
	res.Reading.Acceleration = fifo

	switch res.State {
	case RawCollect:
		var first payload.AccelerationSample
		if len(fifo) > 0 {
			first = fifo[0]
		}
		res.Broadcast = payload.Raw(payload.EncodeRaw4Accel(first, res.SampleCount))
	case URLCollect:
		res.Broadcast = payload.URL(payload.EncodeURL(res.Reading, c.urlBase))
	}

	c.check("ble.payload", c.sink.SetPayload(res.Broadcast))

	res.MotionEvents = c.motion.Take()
	c.watchdog.Feed()

	c.logger.Debug("cycle: broadcast updated",
		"state", res.State.String(),
		"reduced", res.Reduced,
		"T", res.Reading.Temperature,
		"P", res.Reading.Pressure,
		"H", res.Reading.Humidity,
		"vbat", res.Reading.Battery,
		"samples", res.SampleCount,
		"motion", res.MotionEvents,
	)
	if c.observer != nil {
		c.observer(res)
	}
	return res
}

func (c *Cycle) check(op string, err error) {
	if err == nil {
		return
	}
	c.report.Fail(op, err)
	c.logger.Warn("cycle: collaborator failed", "op", op, "error", err)
}
