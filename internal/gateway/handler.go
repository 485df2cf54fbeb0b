// Package gateway turns scanned tag broadcasts into published telemetry.
package gateway

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"cloudpico-tag/internal/archive"
	"cloudpico-tag/internal/ble"
	"cloudpico-tag/internal/payload"
	"cloudpico-tag/internal/telemetry"
	"cloudpico-tag/internal/utils"
)

// maxTrackedDevices bounds the dedup table; it is reset when exceeded.
const maxTrackedDevices = 500

type Publisher interface {
	PublishTelemetry(t telemetry.Telemetry) error
}

type Archiver interface {
	Insert(ctx context.Context, r archive.Record) error
}

type Metrics interface {
	Decoded(format string)
	Rejected()
	Duplicate()
	Published(err error)
}

type HandlerOptions struct {
	StationID string
	Publisher Publisher
	// Archiver is optional.
	Archiver Archiver
	// Metrics is optional.
	Metrics Metrics
	// URLBase is the prefix tags use for URL broadcasts. Defaults to payload.URLBase.
	URLBase *[payload.URLBaseLength]byte
	Logger  *slog.Logger
}

// Handler decodes matches, drops repeats of an unchanged payload per
// address and publishes the rest. Tags re-advertise the same payload until
// the next cycle, so only changes carry new data.
type Handler struct {
	opts HandlerOptions
	base [payload.URLBaseLength]byte
	seq  int

	mu   sync.Mutex
	seen map[string][]byte
}

func NewHandler(opts HandlerOptions) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	base := payload.URLBase
	if opts.URLBase != nil {
		base = *opts.URLBase
	}
	return &Handler{
		opts: opts,
		base: base,
		seen: make(map[string][]byte),
	}
}

// HandleMatch is the ble.Listener callback.
func (h *Handler) HandleMatch(m ble.Match) {
	log := h.opts.Logger
	t, err := telemetry.FromBroadcast(m.Broadcast, h.base)
	if err != nil {
		h.opts.Metrics.Rejected()
		log.Debug("gateway: ignore undecodable broadcast", "addr", m.Address, "error", err)
		return
	}

	seq, fresh := h.remember(m.Address, m.Broadcast.Data)
	if !fresh {
		h.opts.Metrics.Duplicate()
		return
	}
	h.opts.Metrics.Decoded(t.Format)

	seen := m.SeenAt
	if seen.IsZero() {
		seen = time.Now()
	}
	t.StationID = h.opts.StationID
	t.Timestamp = seen
	t.Address = m.Address
	t.RSSI = m.RSSI
	t.Sequence = &seq

	err = h.opts.Publisher.PublishTelemetry(t)
	h.opts.Metrics.Published(err)
	if err != nil {
		log.Warn("gateway: failed to publish telemetry", "addr", m.Address, "format", t.Format, "error", err)
	} else {
		log.Info("gateway: broadcast published",
			"addr", m.Address,
			"rssi", m.RSSI,
			"format", t.Format,
			"sequence", seq,
			"data", utils.BytesToHex(m.Broadcast.Data),
		)
	}

	if h.opts.Archiver == nil {
		return
	}
	rec := archive.Record{Broadcast: m.Broadcast, Telemetry: t}
	if err := h.opts.Archiver.Insert(context.Background(), rec); err != nil {
		log.Warn("gateway: archive failed", "addr", m.Address, "error", err)
	}
}

// remember records data as the latest payload from addr. It reports false
// when data repeats the previous payload.
func (h *Handler) remember(addr string, data []byte) (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.seen[addr]; ok && bytes.Equal(prev, data) {
		return 0, false
	}
	if len(h.seen) >= maxTrackedDevices {
		h.seen = make(map[string][]byte)
	}
	h.seen[addr] = append([]byte(nil), data...)
	h.seq++
	return h.seq, true
}

type nopMetrics struct{}

func (nopMetrics) Decoded(string)  {}
func (nopMetrics) Rejected()       {}
func (nopMetrics) Duplicate()      {}
func (nopMetrics) Published(error) {}
