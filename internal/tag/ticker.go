package tag

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"cloudpico-tag/internal/dispatch"
)

var ErrTimerRunning = errors.New("timer already running")

// Timer is the periodic sampling timer.
type Timer interface {
	Start(interval time.Duration) error
	Stop() error
}

// Ticker is a Timer whose ticks post an event to a dispatch queue, like a
// hardware timer interrupt handing off to the scheduler.
type Ticker struct {
	queue *dispatch.Queue
	fire  dispatch.Event

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewTicker(queue *dispatch.Queue, fire dispatch.Event) *Ticker {
	return &Ticker{queue: queue, fire: fire}
}

func (t *Ticker) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("ticker: invalid interval %v", interval)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return ErrTimerRunning
	}
	stop, done := make(chan struct{}), make(chan struct{})
	t.stop, t.done = stop, done

	go func() {
		defer close(done)
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tk.C:
			}
			// select picks randomly when both are ready.
			select {
			case <-stop:
				return
			default:
				t.queue.Post(t.fire)
			}
		}
	}()
	return nil
}

// Stop returns once no further tick can be posted. It is a no-op on a
// stopped ticker.
func (t *Ticker) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		close(t.stop)
		<-t.done
		t.stop, t.done = nil, nil
	}
	return nil
}

// Running reports whether Start has been called without a matching Stop.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}
