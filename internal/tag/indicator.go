package tag

import (
	"log/slog"

	"cloudpico-tag/internal/mode"
)

// LogIndicator stands in for the LEDs on hosts without them.
type LogIndicator struct {
	Logger *slog.Logger
}

func (l LogIndicator) Boot(ok bool) {
	if ok {
		l.logger().Info("led: boot ok")
		return
	}
	l.logger().Error("led: boot failure pattern")
}

func (l LogIndicator) Sleep() {}

func (l LogIndicator) Wake(m mode.Mode) {
	l.logger().Debug("led: mode", "mode", m.String(), "color", ModeColor(m))
}

func (l LogIndicator) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// ModeColor is the LED lit while awake in mode m.
func ModeColor(m mode.Mode) string {
	if m == mode.HighRes {
		return "red"
	}
	return "green"
}
