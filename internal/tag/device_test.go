package tag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"cloudpico-tag/internal/cycle"
	"cloudpico-tag/internal/dispatch"
	"cloudpico-tag/internal/health"
	"cloudpico-tag/internal/mode"
	"cloudpico-tag/internal/payload"
)

// eventLog records collaborator calls in order across the loop goroutine.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) count(prefix string) int {
	n := 0
	for _, e := range l.snapshot() {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

type stubSource struct{ full bool }

func (s stubSource) HasSecondarySensors() bool { return s.full }
func (s stubSource) Environment() (cycle.Environment, error) {
	return cycle.Environment{Temperature: 2150, Pressure: 101325, Humidity: 4500}, nil
}
func (s stubSource) AccelFIFO() ([]payload.AccelerationSample, uint32, error) {
	return []payload.AccelerationSample{{X: 1, Y: 2, Z: 3}}, 1, nil
}
func (s stubSource) DieTemperature() (int32, error) { return 80, nil }
func (s stubSource) Battery() (uint16, error)       { return 3000, nil }

type logSink struct {
	log    *eventLog
	advErr error
}

func (s *logSink) SetPayload(b payload.Broadcast) error {
	s.log.add("payload:%s:%d", b.Format, len(b.Data))
	return nil
}

func (s *logSink) SetAdvertisingInterval(d time.Duration) error {
	s.log.add("adv:%v", d)
	return s.advErr
}

type logWatchdog struct{ log *eventLog }

func (w logWatchdog) Feed() { w.log.add("feed") }

type logTimer struct {
	log      *eventLog
	startErr error
}

func (t *logTimer) Start(d time.Duration) error {
	t.log.add("timer.start:%v", d)
	return t.startErr
}

func (t *logTimer) Stop() error {
	t.log.add("timer.stop")
	return nil
}

type chanIndicator struct {
	log    *eventLog
	sleeps chan struct{}
}

func (i *chanIndicator) Boot(ok bool) { i.log.add("boot:%v", ok) }
func (i *chanIndicator) Sleep() {
	i.log.add("sleep")
	select {
	case i.sleeps <- struct{}{}:
	default:
	}
}
func (i *chanIndicator) Wake(m mode.Mode) { i.log.add("wake:%s", m) }

type recordingMetrics struct {
	cycles  []cycle.Result
	toggles []bool
}

func (m *recordingMetrics) ObserveCycle(r cycle.Result) { m.cycles = append(m.cycles, r) }
func (m *recordingMetrics) ObserveToggle(_ mode.Mode, accepted bool) {
	m.toggles = append(m.toggles, accepted)
}

type fixture struct {
	log       *eventLog
	queue     *dispatch.Queue
	sink      *logSink
	timer     *logTimer
	indicator *chanIndicator
	metrics   *recordingMetrics
	now       time.Time
	device    *Device
}

func newFixture(t *testing.T, full bool) *fixture {
	t.Helper()
	f := &fixture{
		log:     &eventLog{},
		queue:   dispatch.NewQueue(8),
		metrics: &recordingMetrics{},
		now:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.sink = &logSink{log: f.log}
	f.timer = &logTimer{log: f.log}
	f.indicator = &chanIndicator{log: f.log, sleeps: make(chan struct{}, 8)}
	f.device = New(Options{
		Source:    stubSource{full: full},
		Sink:      f.sink,
		Watchdog:  logWatchdog{log: f.log},
		Indicator: f.indicator,
		Metrics:   f.metrics,
		Timer:     f.timer,
		Queue:     f.queue,
		Clock:     func() time.Time { return f.now },
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func TestButton_ForcesOneCycleInNewMode(t *testing.T) {
	f := newFixture(t, true)

	f.device.ButtonPressed()
	if len(f.log.snapshot()) != 0 {
		t.Fatalf("button handler did work outside the loop: %v", f.log.snapshot())
	}
	f.queue.Drain()

	want := []string{
		"timer.stop",
		"timer.start:5s",
		"adv:1s",
		"payload:url:18",
		"feed",
	}
	if got := f.log.snapshot(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v; want %v", got, want)
	}
	if f.device.Mode() != mode.LowPower {
		t.Errorf("Mode() = %v; want lowpower", f.device.Mode())
	}
}

func TestButton_BouncesWithinOneDrainIgnored(t *testing.T) {
	f := newFixture(t, true)

	f.device.ButtonPressed()
	f.device.ButtonPressed()
	f.device.ButtonPressed()
	f.queue.Drain()

	if n := f.log.count("payload:"); n != 1 {
		t.Errorf("forced cycles = %d; want 1", n)
	}
	if f.device.Mode() != mode.LowPower {
		t.Errorf("Mode() = %v; want lowpower", f.device.Mode())
	}
	if len(f.metrics.toggles) != 3 || !f.metrics.toggles[0] || f.metrics.toggles[1] || f.metrics.toggles[2] {
		t.Errorf("toggles = %v; want [true false false]", f.metrics.toggles)
	}

	f.now = f.now.Add(mode.DebounceThreshold)
	f.device.ButtonPressed()
	f.queue.Drain()
	if f.device.Mode() != mode.HighRes {
		t.Errorf("Mode() after debounce = %v; want highres", f.device.Mode())
	}
}

func TestInterruptHandlers_DoNotAllocate(t *testing.T) {
	d := New(Options{
		Source:   stubSource{full: true},
		Sink:     &logSink{log: &eventLog{}},
		Watchdog: logWatchdog{log: &eventLog{}},
		Timer:    &logTimer{log: &eventLog{}},
		Queue:    dispatch.NewQueue(4096),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	if n := testing.AllocsPerRun(1000, d.ButtonPressed); n != 0 {
		t.Errorf("ButtonPressed allocs/op = %v; want 0", n)
	}
	if n := testing.AllocsPerRun(1000, d.MotionDetected); n != 0 {
		t.Errorf("MotionDetected allocs/op = %v; want 0", n)
	}
}

func TestButton_FullQueueDropsWithoutAllocating(t *testing.T) {
	q := dispatch.NewQueue(1)
	d := New(Options{
		Source:   stubSource{full: true},
		Sink:     &logSink{log: &eventLog{}},
		Watchdog: logWatchdog{log: &eventLog{}},
		Timer:    &logTimer{log: &eventLog{}},
		Queue:    q,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	d.ButtonPressed()

	if n := testing.AllocsPerRun(100, d.ButtonPressed); n != 0 {
		t.Errorf("ButtonPressed on full queue allocs/op = %v; want 0", n)
	}
	if q.Dropped() == 0 {
		t.Error("Dropped() = 0; want drops on a full queue")
	}
}

func TestMotion_CountedIntoNextCycle(t *testing.T) {
	f := newFixture(t, true)
	f.device.MotionDetected()
	f.device.MotionDetected()
	if n := f.log.count(""); n != 0 {
		t.Fatalf("motion interrupt triggered work: %v", f.log.snapshot())
	}

	f.device.ButtonPressed()
	f.queue.Drain()

	if len(f.metrics.cycles) != 1 {
		t.Fatalf("cycles = %d; want 1", len(f.metrics.cycles))
	}
	if f.metrics.cycles[0].MotionEvents != 2 {
		t.Errorf("MotionEvents = %d; want 2", f.metrics.cycles[0].MotionEvents)
	}
}

func TestTransition_ReconfigurationFailureStillFlips(t *testing.T) {
	f := newFixture(t, true)
	f.timer.startErr = errors.New("no timer slots")
	f.sink.advErr = errors.New("softdevice busy")

	f.device.ButtonPressed()
	f.queue.Drain()

	if f.device.Mode() != mode.LowPower {
		t.Errorf("Mode() = %v; want lowpower", f.device.Mode())
	}
	if n := f.log.count("payload:url"); n != 1 {
		t.Errorf("forced url cycles = %d; want 1", n)
	}
	failures := f.device.Report().Failures()
	if failures["timer.start"].Count != 1 || failures["ble.interval"].Count != 1 {
		t.Errorf("failures = %+v", failures)
	}
}

func TestRun_ToggleAppliedBeforeNextSleep(t *testing.T) {
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.device.Run(ctx) }()

	waitSleep(t, f.indicator.sleeps)
	f.device.ButtonPressed()
	waitSleep(t, f.indicator.sleeps)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v; want context.Canceled", err)
	}

	want := []string{
		"adv:100ms",
		"payload:raw4accel:24",
		"feed",
		"timer.start:1s",
		"sleep",
		"wake:highres",
		"timer.stop",
		"timer.start:5s",
		"adv:1s",
		"payload:url:18",
		"feed",
		"sleep",
	}
	got := f.log.snapshot()
	if len(got) < len(want) || strings.Join(got[:len(want)], ",") != strings.Join(want, ",") {
		t.Errorf("events = %v; want prefix %v", got, want)
	}
	if got[len(got)-1] != "timer.stop" {
		t.Errorf("last event = %q; want timer.stop on exit", got[len(got)-1])
	}
}

func TestRun_ScheduledAndForcedCyclesBothBroadcast(t *testing.T) {
	f := newFixture(t, true)

	f.queue.Post(f.device.onTick)
	f.device.ButtonPressed()
	f.queue.Drain()

	got := f.log.snapshot()
	var payloads []string
	for _, e := range got {
		if strings.HasPrefix(e, "payload:") {
			payloads = append(payloads, e)
		}
	}
	want := []string{"payload:raw4accel:24", "payload:url:18"}
	if strings.Join(payloads, ",") != strings.Join(want, ",") {
		t.Errorf("payloads = %v; want %v", payloads, want)
	}
	if n := f.log.count("feed"); n != 2 {
		t.Errorf("feeds = %d; want 2", n)
	}
}

func TestBoot_CriticalFailureHaltsBeforeLoop(t *testing.T) {
	f := newFixture(t, true)
	errBLE := errors.New("adapter not found")

	err := f.device.Boot(
		BootStep{Name: "sensors", Run: func() error { return nil }},
		BootStep{Name: "ble", Critical: true, Run: func() error { return errBLE }},
	)
	if !errors.Is(err, ErrBootFailed) || !errors.Is(err, errBLE) {
		t.Fatalf("Boot() = %v; want ErrBootFailed wrapping %v", err, errBLE)
	}

	err = f.device.Run(context.Background())
	if !errors.Is(err, ErrBootFailed) {
		t.Fatalf("Run() = %v; want ErrBootFailed", err)
	}
	if n := f.log.count("payload:"); n != 0 {
		t.Errorf("payloads after failed boot = %d; want 0", n)
	}
	if f.log.count("boot:false") == 0 {
		t.Error("failure pattern not shown")
	}
}

func TestBoot_NonCriticalFailureContinues(t *testing.T) {
	f := newFixture(t, false)
	err := f.device.Boot(
		BootStep{Name: "log", Run: func() error { return errors.New("no uart") }},
		BootStep{Name: "ble", Critical: true},
	)
	if err != nil {
		t.Fatalf("Boot() = %v; want nil", err)
	}
	steps := f.device.Report().Steps()
	if len(steps) != 2 || steps[0].OK() || !steps[1].OK() {
		t.Errorf("steps = %+v", steps)
	}
	if f.log.count("boot:false") != 1 {
		t.Errorf("events = %v; want boot:false", f.log.snapshot())
	}
}

func TestNew_DefaultsUseTicker(t *testing.T) {
	d := New(Options{
		Source:   stubSource{},
		Sink:     &logSink{log: &eventLog{}},
		Watchdog: logWatchdog{log: &eventLog{}},
		Report:   health.NewReport(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if _, ok := d.timer.(*Ticker); !ok {
		t.Errorf("timer = %T; want *Ticker", d.timer)
	}
	if d.Mode() != mode.HighRes {
		t.Errorf("Mode() = %v; want highres", d.Mode())
	}
}

func waitSleep(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the loop to sleep")
	}
}
