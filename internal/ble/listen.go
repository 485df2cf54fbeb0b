//go:build !tinygo

package ble

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tinygo.org/x/bluetooth"

	"cloudpico-tag/internal/payload"
	"cloudpico-tag/internal/utils"
)

// Match is one observed tag broadcast.
type Match struct {
	Address   string
	RSSI      int16
	LocalName string
	Broadcast payload.Broadcast
	SeenAt    time.Time
}

type Filter struct {
	// LocalName, when set, must equal the advertised name.
	LocalName string
}

type Options struct {
	Adapter string // "hci0" by default
	Filter  Filter
	Logger  *slog.Logger
}

// Listener wraps BlueZ scanning with context cancellation.
type Listener struct {
	adapter *bluetooth.Adapter
	opts    Options
}

func NewListener(opts Options) *Listener {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Listener{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		opts:    opts,
	}
}

// Run scans until ctx is done, calling onMatch for every advertisement that
// carries a tag broadcast.
func (l *Listener) Run(ctx context.Context, onMatch func(Match)) error {
	log := l.opts.Logger
	log.Info("ble: enabling adapter", "adapter", l.opts.Adapter)
	if err := l.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", l.opts.Adapter, err)
	}

	go func() {
		<-ctx.Done()
		_ = l.adapter.StopScan()
	}()

	log.Info("ble: scanning started",
		"filter_name", l.opts.Filter.LocalName,
		"company", utils.Hex4(CompanyID),
		"service", utils.Hex4(EddystoneUUID),
	)

	// adapter.Scan blocks until StopScan() or error.
	err := l.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		m, ok := l.match(r.Address.String(), r.RSSI, r.LocalName(), r.ManufacturerData(), r.ServiceData())
		if ok && onMatch != nil {
			onMatch(m)
		}
	})

	if ctx.Err() != nil {
		log.Info("ble: scanning stopped (context canceled)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("ble scan: %w", err)
	}
	log.Info("ble: scanning stopped")
	return nil
}

func (l *Listener) match(addr string, rssi int16, name string, mfg []bluetooth.ManufacturerDataElement, svc []bluetooth.ServiceDataElement) (Match, bool) {
	if l.opts.Filter.LocalName != "" && name != l.opts.Filter.LocalName {
		return Match{}, false
	}
	b, ok := Classify(mfg, svc)
	if !ok {
		return Match{}, false
	}
	return Match{
		Address:   addr,
		RSSI:      rssi,
		LocalName: name,
		Broadcast: b,
		SeenAt:    time.Now(),
	}, true
}
