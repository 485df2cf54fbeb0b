package ble

import (
	"log/slog"
	"sync"
	"time"

	"cloudpico-tag/internal/payload"
	"cloudpico-tag/internal/utils"
)

// LogSink is a radio sink for hosts without a usable adapter. Payloads are
// logged as hex and the last one is kept.
type LogSink struct {
	Logger *slog.Logger

	mu       sync.Mutex
	last     payload.Broadcast
	interval time.Duration
	sent     int
}

func (s *LogSink) SetPayload(b payload.Broadcast) error {
	s.mu.Lock()
	s.last = payload.Broadcast{Format: b.Format, Data: append([]byte(nil), b.Data...)}
	s.sent++
	interval := s.interval
	s.mu.Unlock()

	s.logger().Info("ble: payload",
		"format", b.Format.String(),
		"interval", interval,
		"data", utils.GroupedHex(b.Data, 2),
	)
	return nil
}

func (s *LogSink) SetAdvertisingInterval(interval time.Duration) error {
	s.mu.Lock()
	s.interval = interval
	s.mu.Unlock()
	s.logger().Debug("ble: advertising interval", "interval", interval)
	return nil
}

// Last returns the most recent payload and how many have been set.
func (s *LogSink) Last() (payload.Broadcast, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.sent
}

// Interval returns the current advertising interval.
func (s *LogSink) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *LogSink) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
