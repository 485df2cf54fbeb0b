package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"tinygo.org/x/bluetooth"

	"cloudpico-tag/internal/ble"
	"cloudpico-tag/internal/config"
	"cloudpico-tag/internal/cycle"
	"cloudpico-tag/internal/httpapi"
	"cloudpico-tag/internal/logging"
	"cloudpico-tag/internal/metrics"
	"cloudpico-tag/internal/mode"
	"cloudpico-tag/internal/payload"
	"cloudpico-tag/internal/sensor"
	"cloudpico-tag/internal/tag"
)

var version = "dev"
var appName = "cloudpico-tag"

func main() {
	cfg, err := config.LoadTagFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stderr, cfg.Base, version, appName)
	slog.SetDefault(logger)

	slog.Info("starting",
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
		"sensor", cfg.SensorSource,
		"sink", cfg.BLESink,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}

	slog.Info("shutting down")
}

func run(ctx context.Context, cfg config.Tag, logger *slog.Logger) error {
	src, srcErr := openSource(cfg)
	sink, sinkErr := openSink(cfg, logger)

	wd := tag.NewWatchdog(tag.WatchdogTimeout, func() {
		logger.Error("watchdog expired; no cycle completed in time")
		os.Exit(2)
	})
	defer wd.Stop()

	opts := tag.Options{
		Source:      src,
		Sink:        sink,
		Watchdog:    wd,
		Indicator:   tag.LogIndicator{Logger: logger},
		InitialMode: mode.HighRes,
		URLBase:     payload.URLBase,
		Logger:      logger,
	}

	var reg *prometheus.Registry
	if cfg.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
		opts.Metrics = metrics.NewTag(reg)
	}

	d := tag.New(opts)
	if err := d.Boot(
		tag.BootStep{Name: "sensors", Critical: true, Run: func() error { return srcErr }},
		tag.BootStep{Name: "radio", Critical: true, Run: func() error { return sinkErr }},
		tag.BootStep{Name: "watchdog", Run: wd.Start},
	); err != nil {
		return err
	}
	if c, ok := src.(interface{ Close() error }); ok {
		defer func() {
			if err := c.Close(); err != nil {
				logger.Warn("sensor close", "error", err)
			}
		}()
	}
	if !src.HasSecondarySensors() {
		logger.Info("reduced hardware: die thermometer only")
	}

	if reg != nil {
		go func() {
			err := httpapi.Serve(ctx, cfg.MetricsAddr, httpapi.Options{Component: "tag", Registry: reg, Report: d.Report(), Logger: logger})
			if err != nil {
				logger.Error("http server failed", "error", err)
			}
		}()
	}

	// SIGUSR1 is the button, SIGUSR2 the accelerometer activity interrupt.
	irq := make(chan os.Signal, 8)
	signal.Notify(irq, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(irq)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-irq:
				if s == syscall.SIGUSR1 {
					d.ButtonPressed()
				} else {
					d.MotionDetected()
				}
			}
		}
	}()

	return d.Run(ctx)
}

func openSource(cfg config.Tag) (cycle.Source, error) {
	switch cfg.SensorSource {
	case config.SensorSimReduced:
		return sensor.NewSim(true), nil
	case config.SensorBME280:
		return sensor.OpenBME280(cfg.I2CBus, cfg.BME280Address)
	default:
		return sensor.NewSim(false), nil
	}
}

func openSink(cfg config.Tag, logger *slog.Logger) (cycle.Sink, error) {
	if cfg.BLESink != config.SinkBlueZ {
		return &ble.LogSink{Logger: logger}, nil
	}
	adv, err := ble.NewAdvertiser(bluetooth.NewAdapter(cfg.BLEAdapter), cfg.BLELocalName, logger)
	if err != nil {
		return nil, err
	}
	return adv, nil
}
