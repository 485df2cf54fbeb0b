//go:build tinygo

package main

import (
	"errors"
	"machine"

	"tinygo.org/x/drivers/bme280"
	"tinygo.org/x/drivers/lis3dh"

	"cloudpico-tag/internal/cycle"
	"cloudpico-tag/internal/mode"
	"cloudpico-tag/internal/payload"
)

// nominalBattery is reported until a VSYS divider is wired to an ADC pin.
const nominalBattery = 3000

var errNoAccelerometer = errors.New("lis3dh not connected")

// hardware is the tag's sample source and accelerometer control.
type hardware struct {
	bus   *machine.I2C
	env   bme280.Device
	accel lis3dh.Device
	plus  bool
}

func newHardware() *hardware {
	return &hardware{bus: machine.I2C1}
}

func (h *hardware) configureBus() error {
	return h.bus.Configure(machine.I2CConfig{
		SDA:       machine.GP26,
		SCL:       machine.GP27,
		Frequency: 400 * machine.KHz,
	})
}

// detect probes the secondary sensors. Boards without them run on the die
// thermometer only, which is not a failure.
func (h *hardware) detect() error {
	h.env = bme280.New(h.bus)
	h.accel = lis3dh.New(h.bus)
	h.accel.Address = lis3dh.Address0

	if !h.env.Connected() {
		return nil
	}
	h.env.Configure()
	if !h.accel.Connected() {
		return errNoAccelerometer
	}
	h.accel.Configure()
	h.accel.SetRange(lis3dh.RANGE_2_G)
	h.plus = true
	return h.SetRate(mode.HighRes)
}

func (h *hardware) HasSecondarySensors() bool { return h.plus }

func (h *hardware) Environment() (cycle.Environment, error) {
	t, err := h.env.ReadTemperature()
	if err != nil {
		return cycle.Environment{}, err
	}
	p, err := h.env.ReadPressure()
	if err != nil {
		return cycle.Environment{}, err
	}
	hum, err := h.env.ReadHumidity()
	if err != nil {
		return cycle.Environment{}, err
	}
	// Driver units: milli °C, milli Pa, 0.01 %RH.
	if p < 0 {
		p = 0
	}
	if hum < 0 {
		hum = 0
	}
	return cycle.Environment{
		Temperature: t / 10,
		Pressure:    uint32(p / 1000),
		Humidity:    uint32(hum),
	}, nil
}

// AccelFIFO reads the current sample. The driver exposes no FIFO, so the
// count is always one.
func (h *hardware) AccelFIFO() ([]payload.AccelerationSample, uint32, error) {
	x, y, z, err := h.accel.ReadAcceleration()
	if err != nil {
		return nil, 0, err
	}
	// Driver units are micro g.
	return []payload.AccelerationSample{{
		X: int16(x / 1000),
		Y: int16(y / 1000),
		Z: int16(z / 1000),
	}}, 1, nil
}

func (h *hardware) DieTemperature() (int32, error) {
	return machine.ReadTemperature() / 250, nil
}

func (h *hardware) Battery() (uint16, error) {
	return nominalBattery, nil
}

// SetRate samples fast in HighRes and slowly in LowPower.
func (h *hardware) SetRate(m mode.Mode) error {
	if !h.plus {
		return nil
	}
	rate := lis3dh.DATARATE_10_HZ
	if m == mode.LowPower {
		rate = lis3dh.DATARATE_1_HZ
	}
	h.accel.SetDataRate(rate)
	return nil
}
