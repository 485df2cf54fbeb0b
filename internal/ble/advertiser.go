package ble

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"cloudpico-tag/internal/payload"
	"cloudpico-tag/internal/utils"
)

// Advertiser is a radio sink over a tinygo bluetooth adapter. Every payload
// or interval change reconfigures and restarts the advertisement.
type Advertiser struct {
	adv       *bluetooth.Advertisement
	localName string
	logger    *slog.Logger

	mu       sync.Mutex
	current  payload.Broadcast
	interval time.Duration
	started  bool
}

// NewAdvertiser enables adapter and prepares its default advertisement.
// Nothing is sent until the first SetPayload.
func NewAdvertiser(adapter *bluetooth.Adapter, localName string, logger *slog.Logger) (*Advertiser, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble enable: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Advertiser{
		adv:       adapter.DefaultAdvertisement(),
		localName: localName,
		logger:    logger,
		interval:  100 * time.Millisecond,
	}, nil
}

func (a *Advertiser) SetPayload(b payload.Broadcast) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = b
	return a.restart()
}

func (a *Advertiser) SetAdvertisingInterval(interval time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.interval = interval
	if a.current.Format == 0 {
		return nil
	}
	return a.restart()
}

// Stop ends advertising. The last payload is kept for the next restart.
func (a *Advertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	a.started = false
	if err := a.adv.Stop(); err != nil {
		return fmt.Errorf("ble adv stop: %w", err)
	}
	return nil
}

func (a *Advertiser) restart() error {
	opts, err := AdvertisementOptions(a.current, a.localName, a.interval)
	if err != nil {
		return err
	}
	if a.started {
		if err := a.adv.Stop(); err != nil {
			a.logger.Warn("ble: adv stop failed", "error", err)
		}
		a.started = false
	}
	if err := a.adv.Configure(opts); err != nil {
		return fmt.Errorf("ble adv configure: %w", err)
	}
	if err := a.adv.Start(); err != nil {
		return fmt.Errorf("ble adv start: %w", err)
	}
	a.started = true
	a.logger.Debug("ble: advertising",
		"format", a.current.Format.String(),
		"interval", a.interval,
		"data", utils.BytesToHex(a.current.Data),
	)
	return nil
}
