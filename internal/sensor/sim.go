// Package sensor provides sample sources for running the tag on a host.
package sensor

import (
	"math"
	"sync"

	"cloudpico-tag/internal/cycle"
	"cloudpico-tag/internal/payload"
)

// fifoDepth is the LIS2DH12 FIFO size.
const fifoDepth = 32

// Sim is a deterministic sample source. Each read advances a step counter
// that drives slow environmental drift and a wobbling acceleration vector.
type Sim struct {
	reduced bool

	mu   sync.Mutex
	step int
}

// NewSim returns a full-hardware simulator, or a die-thermometer-only one
// when reduced is true.
func NewSim(reduced bool) *Sim {
	return &Sim{reduced: reduced}
}

func (s *Sim) HasSecondarySensors() bool {
	return !s.reduced
}

func (s *Sim) Environment() (cycle.Environment, error) {
	n := s.next()
	phase := float64(n) / 60
	return cycle.Environment{
		Temperature: 2150 + int32(math.Round(150*math.Sin(phase))),
		Pressure:    101325 + uint32(math.Round(200+200*math.Sin(phase/3))),
		Humidity:    4500 + uint32(math.Round(500+500*math.Cos(phase))),
	}, nil
}

func (s *Sim) AccelFIFO() ([]payload.AccelerationSample, uint32, error) {
	n := s.next()
	count := uint32(n%fifoDepth) + 1
	samples := make([]payload.AccelerationSample, 0, payload.MaxAccelerationSamples)
	for i := 0; i < payload.MaxAccelerationSamples && uint32(i) < count; i++ {
		a := float64(n*payload.MaxAccelerationSamples+i) / 8
		samples = append(samples, payload.AccelerationSample{
			X: int16(math.Round(40 * math.Sin(a))),
			Y: int16(math.Round(40 * math.Cos(a))),
			Z: 1000,
		})
	}
	return samples, count, nil
}

// DieTemperature returns 21.50 °C in quarter degrees.
func (s *Sim) DieTemperature() (int32, error) {
	return 86, nil
}

// Battery slowly discharges from 3000 mV to a 2500 mV floor.
func (s *Sim) Battery() (uint16, error) {
	n := s.next()
	drop := n / 100
	if drop > 500 {
		drop = 500
	}
	return uint16(3000 - drop), nil
}

func (s *Sim) next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step++
	return s.step
}
