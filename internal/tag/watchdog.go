package tag

import (
	"sync"
	"time"
)

// WatchdogTimeout spans several LowPower sample intervals.
const WatchdogTimeout = 30 * time.Second

// Watchdog is a software watchdog for hosts. Expire runs on its own
// goroutine when Feed is not called within the timeout.
type Watchdog struct {
	timeout time.Duration
	expire  func()

	mu    sync.Mutex
	timer *time.Timer
	fed   int
}

func NewWatchdog(timeout time.Duration, expire func()) *Watchdog {
	if timeout <= 0 {
		timeout = WatchdogTimeout
	}
	return &Watchdog{timeout: timeout, expire: expire}
}

// Start arms the watchdog. Starting an armed watchdog restarts the countdown.
func (w *Watchdog) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Reset(w.timeout)
		return nil
	}
	w.timer = time.AfterFunc(w.timeout, w.expire)
	return nil
}

func (w *Watchdog) Feed() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fed++
	if w.timer != nil {
		w.timer.Reset(w.timeout)
	}
}

func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Feeds returns how often the watchdog has been fed.
func (w *Watchdog) Feeds() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fed
}
