// Package mode owns the tag's broadcast mode and the reconfiguration that
// accompanies every accepted toggle.
package mode

import (
	"fmt"
	"log/slog"
	"time"

	"cloudpico-tag/internal/health"
)

// Mode selects both the sampling cadence and the payload format.
type Mode uint8

const (
	HighRes Mode = iota
	LowPower
)

func (m Mode) String() string {
	switch m {
	case HighRes:
		return "highres"
	case LowPower:
		return "lowpower"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Other returns the opposite mode.
func (m Mode) Other() Mode {
	if m == HighRes {
		return LowPower
	}
	return HighRes
}

// DebounceThreshold is the minimum spacing between accepted toggles.
const DebounceThreshold = 250 * time.Millisecond

// Intervals is the cadence configured for a mode.
type Intervals struct {
	Sample      time.Duration
	Advertising time.Duration
}

var intervals = [...]Intervals{
	HighRes:  {Sample: 1000 * time.Millisecond, Advertising: 100 * time.Millisecond},
	LowPower: {Sample: 5000 * time.Millisecond, Advertising: 1000 * time.Millisecond},
}

// IntervalsFor looks up the fixed cadence of m.
func IntervalsFor(m Mode) Intervals {
	if int(m) >= len(intervals) {
		return intervals[HighRes]
	}
	return intervals[m]
}

// Reconfigurer applies a mode change to the collaborators around the controller.
// Every call is best-effort; errors are tallied, never returned to the toggler.
type Reconfigurer interface {
	SetAccelerometerRate(m Mode) error
	StopTimer() error
	StartTimer(interval time.Duration) error
	SetAdvertisingInterval(interval time.Duration) error
	// ForceCycle runs one sampling cycle immediately.
	ForceCycle()
}

// Controller holds the current mode and the debounce clock. It is used only
// from the device loop.
type Controller struct {
	mode       Mode
	lastToggle time.Time
	toggled    bool

	hooks  Reconfigurer
	report *health.Report
	logger *slog.Logger
}

func NewController(initial Mode, hooks Reconfigurer, report *health.Report, logger *slog.Logger) *Controller {
	if report == nil {
		report = health.NewReport()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		mode:   initial,
		hooks:  hooks,
		report: report,
		logger: logger,
	}
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

func (c *Controller) SampleInterval() time.Duration {
	return IntervalsFor(c.mode).Sample
}

func (c *Controller) AdvertisingInterval() time.Duration {
	return IntervalsFor(c.mode).Advertising
}

// Toggle flips the mode unless the previous accepted toggle happened less than
// DebounceThreshold before now. On success the transition hook runs before
// Toggle returns.
func (c *Controller) Toggle(now time.Time) (Mode, bool) {
	if c.toggled && now.Sub(c.lastToggle) < DebounceThreshold {
		c.logger.Debug("mode: toggle ignored",
			"since_last", now.Sub(c.lastToggle),
			"mode", c.mode.String(),
		)
		return c.mode, false
	}
	c.toggled = true
	c.lastToggle = now
	c.mode = c.mode.Other()
	c.logger.Info("mode: switched", "mode", c.mode.String())
	c.onTransition(c.mode)
	return c.mode, true
}

func (c *Controller) onTransition(m Mode) {
	if c.hooks == nil {
		return
	}
	iv := IntervalsFor(m)
	c.check("accel.rate", c.hooks.SetAccelerometerRate(m))
	c.check("timer.stop", c.hooks.StopTimer())
	c.check("timer.start", c.hooks.StartTimer(iv.Sample))
	c.check("ble.interval", c.hooks.SetAdvertisingInterval(iv.Advertising))
	c.hooks.ForceCycle()
}

func (c *Controller) check(op string, err error) {
	if err == nil {
		return
	}
	c.report.Fail(op, err)
	c.logger.Warn("mode: reconfiguration failed", "op", op, "mode", c.mode.String(), "error", err)
}
