//go:build tinygo

// Firmware for a Pico 2 W sensor tag: BME280 and LIS3DH on I2C1, a mode
// button, red and green status LEDs, and BLE advertising over the CYW43.
package main

import (
	"context"
	"log/slog"
	"machine"
	"time"

	"tinygo.org/x/bluetooth"

	"cloudpico-tag/internal/ble"
	"cloudpico-tag/internal/mode"
	"cloudpico-tag/internal/payload"
	"cloudpico-tag/internal/tag"
)

const (
	pinButton = machine.GP15
	pinAccInt = machine.GP14
	pinRed    = machine.GP16
	pinGreen  = machine.GP17

	localName = "Ruuvi"

	// watchdogTimeout must exceed the LowPower sample interval.
	watchdogTimeout = 8000
)

func main() {
	machine.Serial.Configure(machine.UARTConfig{})
	// Give the host time to enumerate the USB serial device.
	time.Sleep(1500 * time.Millisecond)

	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("boot: sensor tag")

	leds := newLEDs(pinRed, pinGreen)
	hw := newHardware()

	var sink *ble.Advertiser
	d := tag.New(tag.Options{
		Source:        hw,
		Sink:          lazySink{&sink},
		Watchdog:      watchdog{},
		Indicator:     leds,
		Accelerometer: hw,
		InitialMode:   mode.HighRes,
		URLBase:       payload.URLBase,
		Logger:        logger,
	})

	err := d.Boot(
		tag.BootStep{Name: "i2c", Critical: true, Run: hw.configureBus},
		tag.BootStep{Name: "sensors", Run: hw.detect},
		tag.BootStep{Name: "radio", Critical: true, Run: func() error {
			adv, err := ble.NewAdvertiser(bluetooth.DefaultAdapter, localName, logger)
			sink = adv
			return err
		}},
		tag.BootStep{Name: "button", Critical: true, Run: func() error {
			pinButton.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
			return pinButton.SetInterrupt(machine.PinFalling, func(machine.Pin) { d.ButtonPressed() })
		}},
		tag.BootStep{Name: "motion", Run: func() error {
			if !hw.HasSecondarySensors() {
				return nil
			}
			pinAccInt.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
			return pinAccInt.SetInterrupt(machine.PinRising, func(machine.Pin) { d.MotionDetected() })
		}},
		tag.BootStep{Name: "watchdog", Critical: true, Run: startWatchdog},
	)
	if err != nil {
		logger.Error("boot failed", "error", err)
		halt()
	}

	// Delay one HighRes interval so the first broadcast carries fresh data.
	time.Sleep(mode.IntervalsFor(mode.HighRes).Sample)

	if err := d.Run(context.Background()); err != nil {
		logger.Error("run failed", "error", err)
		halt()
	}
}

// halt keeps the failure pattern lit. The watchdog resets the device if it
// was already started.
func halt() {
	for {
		time.Sleep(time.Second)
	}
}

type watchdog struct{}

func startWatchdog() error {
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: watchdogTimeout}); err != nil {
		return err
	}
	return machine.Watchdog.Start()
}

func (watchdog) Feed() { machine.Watchdog.Update() }

// lazySink forwards to the advertiser created by the radio boot step.
type lazySink struct {
	adv **ble.Advertiser
}

func (s lazySink) SetPayload(b payload.Broadcast) error {
	return (*s.adv).SetPayload(b)
}

func (s lazySink) SetAdvertisingInterval(d time.Duration) error {
	return (*s.adv).SetAdvertisingInterval(d)
}
