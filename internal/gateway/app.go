package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"cloudpico-tag/internal/archive"
	"cloudpico-tag/internal/ble"
	"cloudpico-tag/internal/config"
	"cloudpico-tag/internal/httpapi"
	"cloudpico-tag/internal/metrics"
	"cloudpico-tag/internal/mqtt"
	"cloudpico-tag/internal/telemetry"
)

const healthInterval = 30 * time.Second

// HealthPublisher publishes retained station state.
type HealthPublisher interface {
	PublishStationHealth(h telemetry.StationHealth) error
}

// Run starts the MQTT client, the optional archive and HTTP endpoints,
// and the BLE listener, then blocks until ctx is done.
func Run(ctx context.Context, cfg config.Gateway, logger *slog.Logger) error {
	logger.Info("initializing gateway",
		"mqtt_broker", cfg.MQTTBroker,
		"mqtt_port", cfg.MQTTPort,
		"mqtt_client_id", cfg.MQTTClientID,
		"station_id", cfg.DeviceStationID,
	)

	mqttClient, err := mqtt.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	defer mqttClient.Disconnect()
	go func() {
		if err := mqttClient.Connect(ctx); err != nil && ctx.Err() == nil {
			logger.Error("mqtt connect failed", "error", err)
		}
	}()

	opts := HandlerOptions{
		StationID: cfg.DeviceStationID,
		Publisher: mqttClient,
		Logger:    logger,
	}

	var db *sql.DB
	if cfg.ArchivePath != "" {
		db, err = openArchive(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("archive close", "error", err)
			}
		}()
		opts.Archiver = archive.NewStore(db, logger)
	}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts.Metrics = metrics.NewGateway(reg)
		checks := map[string]httpapi.Check{"mqtt": func() error {
			if !mqttClient.IsConnected() {
				return mqtt.ErrNotConnected
			}
			return nil
		}}
		if db != nil {
			checks["archive"] = func() error { return db.PingContext(ctx) }
		}
		go func() {
			err := httpapi.Serve(ctx, cfg.MetricsAddr, httpapi.Options{Component: "gateway", Registry: reg, Checks: checks, Logger: logger})
			if err != nil {
				logger.Error("http server failed", "error", err)
			}
		}()
	}

	handler := NewHandler(opts)
	listener := ble.NewListener(ble.Options{Adapter: cfg.BLEAdapter, Logger: logger})
	go func() {
		if err := listener.Run(ctx, handler.HandleMatch); err != nil {
			logger.Warn("ble listener could not be initialized; gateway continues without BLE",
				"error", err,
			)
		}
	}()

	go ReportHealth(ctx, mqttClient, cfg.DeviceStationID, healthInterval, logger)

	<-ctx.Done()
	logger.Info("gateway shutting down")
	return nil
}

// ReportHealth publishes the station as healthy every interval until ctx is done.
func ReportHealth(ctx context.Context, p HealthPublisher, stationID string, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			err := p.PublishStationHealth(telemetry.StationHealth{
				StationID: stationID,
				LastSeen:  now,
				Healthy:   true,
			})
			if err != nil {
				logger.Debug("gateway: station health not published", "error", err)
			}
		}
	}
}

func openArchive(ctx context.Context, cfg config.Gateway, logger *slog.Logger) (*sql.DB, error) {
	db, err := archive.Open(archive.Options{
		Path:   cfg.ArchivePath,
		LogSQL: cfg.LogLevel <= slog.LevelDebug,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	if err := archive.Migrate(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: %w", err)
	}
	logger.Info("archive ready", "path", cfg.ArchivePath)
	return db, nil
}
