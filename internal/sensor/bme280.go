package sensor

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"

	"cloudpico-tag/internal/cycle"
	"cloudpico-tag/internal/payload"
)

// nominalBattery is reported by hosts without a battery gauge.
const nominalBattery = 3000

const thermalZone = "/sys/class/thermal/thermal_zone0/temp"

// BME280 reads a Bosch BME280 over Linux I2C. There is no accelerometer on
// the host, so AccelFIFO is always empty.
type BME280 struct {
	mu  sync.Mutex
	bus i2c.BusCloser
	dev *bmxx80.Dev
}

// OpenBME280 initializes periph, opens busName ("" for the default bus) and
// configures the sensor at addr.
func OpenBME280(busName string, addr uint16) (*BME280, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("i2c open %q: %w", busName, err)
	}
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("bme280 at %#x: %w", addr, err)
	}
	return &BME280{bus: bus, dev: dev}, nil
}

func (s *BME280) HasSecondarySensors() bool {
	return true
}

func (s *BME280) Environment() (cycle.Environment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var env physic.Env
	if err := s.dev.Sense(&env); err != nil {
		return cycle.Environment{}, fmt.Errorf("bme280 sense: %w", err)
	}
	return fromPhysic(env), nil
}

func (s *BME280) AccelFIFO() ([]payload.AccelerationSample, uint32, error) {
	return nil, 0, nil
}

// DieTemperature reads the SoC thermal zone in millidegrees and converts it
// to quarter degrees.
func (s *BME280) DieTemperature() (int32, error) {
	return readThermalZone(thermalZone)
}

func (s *BME280) Battery() (uint16, error) {
	return nominalBattery, nil
}

func (s *BME280) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if err := s.dev.Halt(); err != nil {
		errs = append(errs, fmt.Errorf("bme280 halt: %w", err))
	}
	if err := s.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("i2c close: %w", err))
	}
	return errors.Join(errs...)
}

func fromPhysic(env physic.Env) cycle.Environment {
	// env.Pressure is nano Pascal, env.Humidity is 0.00001 %rH.
	pressure := int64(env.Pressure / physic.Pascal)
	if pressure < 0 {
		pressure = 0
	}
	humidity := int64(env.Humidity / (physic.PercentRH / 100))
	if humidity < 0 {
		humidity = 0
	}
	return cycle.Environment{
		Temperature: int32(math.Round(env.Temperature.Celsius() * 100)),
		Pressure:    uint32(pressure),
		Humidity:    uint32(humidity),
	}
}

func readThermalZone(path string) (int32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	milli, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return int32(milli / 250), nil
}
