// Package metrics exports Prometheus counters for the tag loop and the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"cloudpico-tag/internal/cycle"
	"cloudpico-tag/internal/mode"
)

const namespace = "cloudpico"

// Tag observes the device loop.
type Tag struct {
	cycles  *prometheus.CounterVec
	toggles *prometheus.CounterVec
	motion  prometheus.Counter
	reduced prometheus.Counter
}

func NewTag(reg prometheus.Registerer) *Tag {
	m := &Tag{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tag",
			Name:      "cycles_total",
			Help:      "Completed sampling cycles by collection state.",
		}, []string{"state"}),
		toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tag",
			Name:      "toggles_total",
			Help:      "Mode toggle requests by outcome.",
		}, []string{"outcome"}),
		motion: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tag",
			Name:      "motion_events_total",
			Help:      "Accelerometer activity interrupts.",
		}),
		reduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tag",
			Name:      "reduced_cycles_total",
			Help:      "Cycles that ran with the die thermometer only.",
		}),
	}
	reg.MustRegister(m.cycles, m.toggles, m.motion, m.reduced)
	return m
}

func (m *Tag) ObserveCycle(r cycle.Result) {
	m.cycles.WithLabelValues(r.State.String()).Inc()
	m.motion.Add(float64(r.MotionEvents))
	if r.Reduced {
		m.reduced.Inc()
	}
}

func (m *Tag) ObserveToggle(_ mode.Mode, accepted bool) {
	outcome := "ignored"
	if accepted {
		outcome = "accepted"
	}
	m.toggles.WithLabelValues(outcome).Inc()
}

// Gateway observes received broadcasts.
type Gateway struct {
	decoded    *prometheus.CounterVec
	rejected   prometheus.Counter
	duplicates prometheus.Counter
	published  *prometheus.CounterVec
}

func NewGateway(reg prometheus.Registerer) *Gateway {
	m := &Gateway{
		decoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "broadcasts_decoded_total",
			Help:      "Tag broadcasts decoded by payload format.",
		}, []string{"format"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "broadcasts_rejected_total",
			Help:      "Matched advertisements that failed to decode.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "broadcasts_duplicate_total",
			Help:      "Repeated advertisements of an unchanged payload.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "telemetry_published_total",
			Help:      "Telemetry publish attempts by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.decoded, m.rejected, m.duplicates, m.published)
	return m
}

func (m *Gateway) Decoded(format string) { m.decoded.WithLabelValues(format).Inc() }
func (m *Gateway) Rejected()             { m.rejected.Inc() }
func (m *Gateway) Duplicate()            { m.duplicates.Inc() }

func (m *Gateway) Published(err error) {
	if err != nil {
		m.published.WithLabelValues("error").Inc()
		return
	}
	m.published.WithLabelValues("ok").Inc()
}
