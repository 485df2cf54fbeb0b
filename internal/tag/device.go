// Package tag wires the mode controller, the sampling cycle and the event
// queue into the device loop of a sensor tag.
package tag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloudpico-tag/internal/cycle"
	"cloudpico-tag/internal/dispatch"
	"cloudpico-tag/internal/health"
	"cloudpico-tag/internal/mode"
	"cloudpico-tag/internal/payload"
)

var ErrBootFailed = errors.New("boot failed")

// Indicator drives the status LEDs.
type Indicator interface {
	// Boot shows the init result; false latches the failure pattern.
	Boot(ok bool)
	// Sleep turns the LEDs off before the loop waits.
	Sleep()
	// Wake shows the active mode after the loop resumes.
	Wake(m mode.Mode)
}

// Accelerometer is re-rated on every mode change. Optional.
type Accelerometer interface {
	SetRate(m mode.Mode) error
}

// Metrics observes cycles and toggles. Optional.
type Metrics interface {
	ObserveCycle(r cycle.Result)
	ObserveToggle(to mode.Mode, accepted bool)
}

// BootStep is one initialization step. Critical failures keep the device out
// of the main loop.
type BootStep struct {
	Name     string
	Critical bool
	Run      func() error
}

type Options struct {
	Source        cycle.Source
	Sink          cycle.Sink
	Watchdog      cycle.Watchdog
	Indicator     Indicator
	Accelerometer Accelerometer
	Metrics       Metrics
	// Timer defaults to a Ticker posting to Queue.
	Timer       Timer
	Queue       *dispatch.Queue
	Report      *health.Report
	Clock       func() time.Time
	InitialMode mode.Mode
	URLBase     [payload.URLBaseLength]byte
	Logger      *slog.Logger
}

// Device owns the single instance of mode, debounce and counter state.
type Device struct {
	queue      *dispatch.Queue
	motion     *dispatch.Counter
	controller *mode.Controller
	cycle      *cycle.Cycle
	timer      Timer
	sink       cycle.Sink
	indicator  Indicator
	accel      Accelerometer
	metrics    Metrics
	report     *health.Report
	clock      func() time.Time
	logger     *slog.Logger

	// Bound once so the interrupt handlers post without allocating.
	buttonEvent dispatch.Event
}

func New(opts Options) *Device {
	if opts.Queue == nil {
		opts.Queue = dispatch.NewQueue(dispatch.DefaultCapacity)
	}
	if opts.Report == nil {
		opts.Report = health.NewReport()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Indicator == nil {
		opts.Indicator = nopIndicator{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	d := &Device{
		queue:     opts.Queue,
		motion:    &dispatch.Counter{},
		timer:     opts.Timer,
		sink:      opts.Sink,
		indicator: opts.Indicator,
		accel:     opts.Accelerometer,
		metrics:   opts.Metrics,
		report:    opts.Report,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}
	d.buttonEvent = d.onButton
	if d.timer == nil {
		d.timer = NewTicker(d.queue, d.onTick)
	}
	d.controller = mode.NewController(opts.InitialMode, reconfigurer{d}, d.report, d.logger)

	var observer cycle.Observer
	if d.metrics != nil {
		observer = d.metrics.ObserveCycle
	}
	d.cycle = cycle.New(cycle.Options{
		Source:   opts.Source,
		Sink:     opts.Sink,
		Watchdog: opts.Watchdog,
		Modes:    d.controller,
		Motion:   d.motion,
		Report:   d.report,
		URLBase:  opts.URLBase,
		Observer: observer,
		Logger:   d.logger,
	})
	return d
}

// Boot runs the init steps in order, recording each result, then shows the
// combined status. It returns ErrBootFailed when a critical step failed.
func (d *Device) Boot(steps ...BootStep) error {
	for _, s := range steps {
		var err error
		if s.Run != nil {
			err = s.Run()
		}
		d.report.Record(s.Name, s.Critical, err)
		if err != nil {
			d.logger.Warn("boot: step failed", "step", s.Name, "critical", s.Critical, "error", err)
		} else {
			d.logger.Debug("boot: step ok", "step", s.Name)
		}
	}
	d.indicator.Boot(d.report.OK())
	if d.report.Fatal() {
		return fmt.Errorf("%w: %w", ErrBootFailed, d.report.Err())
	}
	return nil
}

// ButtonPressed is the button interrupt handler. It only posts; a full queue
// shows up in Queue.Dropped and is logged by the loop.
func (d *Device) ButtonPressed() {
	d.queue.Post(d.buttonEvent)
}

// MotionDetected is the accelerometer activity interrupt handler.
func (d *Device) MotionDetected() {
	d.motion.Inc()
}

func (d *Device) Mode() mode.Mode {
	return d.controller.Mode()
}

func (d *Device) Report() *health.Report {
	return d.report
}

// Run is the main loop: drain deferred events, then sleep until the next
// one. It returns ctx.Err() on cancellation, or ErrBootFailed without
// entering the loop when boot failed.
func (d *Device) Run(ctx context.Context) error {
	if d.report.Fatal() {
		d.indicator.Boot(false)
		return fmt.Errorf("%w: %w", ErrBootFailed, d.report.Err())
	}

	if err := d.sink.SetAdvertisingInterval(d.controller.AdvertisingInterval()); err != nil {
		d.report.Fail("ble.interval", err)
		d.logger.Warn("tag: set advertising interval failed", "error", err)
	}
	// The first broadcast already carries data.
	d.cycle.Run()
	if err := d.timer.Start(d.controller.SampleInterval()); err != nil {
		d.report.Fail("timer.start", err)
		d.logger.Warn("tag: start timer failed", "error", err)
	}
	defer func() { _ = d.timer.Stop() }()

	d.logger.Info("tag: running",
		"mode", d.controller.Mode().String(),
		"sample_interval", d.controller.SampleInterval(),
	)

	var dropped uint64
	for {
		d.queue.Drain()
		if n := d.queue.Dropped(); n != dropped {
			d.logger.Warn("tag: events dropped, queue full", "dropped", n-dropped, "total", n)
			dropped = n
		}
		d.indicator.Sleep()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.queue.Wake():
		}
		d.indicator.Wake(d.controller.Mode())
	}
}

func (d *Device) onTick() {
	d.cycle.Run()
}

func (d *Device) onButton() {
	to, ok := d.controller.Toggle(d.clock())
	if d.metrics != nil {
		d.metrics.ObserveToggle(to, ok)
	}
}

// reconfigurer applies mode transitions for the controller.
type reconfigurer struct {
	d *Device
}

func (r reconfigurer) SetAccelerometerRate(m mode.Mode) error {
	if r.d.accel == nil {
		return nil
	}
	return r.d.accel.SetRate(m)
}

func (r reconfigurer) StopTimer() error {
	return r.d.timer.Stop()
}

func (r reconfigurer) StartTimer(interval time.Duration) error {
	return r.d.timer.Start(interval)
}

func (r reconfigurer) SetAdvertisingInterval(interval time.Duration) error {
	return r.d.sink.SetAdvertisingInterval(interval)
}

func (r reconfigurer) ForceCycle() {
	r.d.cycle.Run()
}

type nopIndicator struct{}

func (nopIndicator) Boot(bool)      {}
func (nopIndicator) Sleep()         {}
func (nopIndicator) Wake(mode.Mode) {}
