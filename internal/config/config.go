package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Base is shared by every binary.
type Base struct {
	AppEnv   string
	LogLevel slog.Level
}

// Tag configures the host-run tag. Timing constants are compile-time and
// live in internal/mode.
type Tag struct {
	Base

	SensorSource  string
	BME280Address uint16
	I2CBus        string

	BLESink      string
	BLEAdapter   string
	BLELocalName string

	MetricsAddr string
}

// Gateway configures the receiver that republishes tag broadcasts.
type Gateway struct {
	Base

	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string

	BLEAdapter      string
	DeviceStationID string

	// ArchivePath is the SQLite file for decoded broadcasts; empty disables archiving.
	ArchivePath string
	MetricsAddr string
}

const (
	SensorSim        = "sim"
	SensorSimReduced = "sim-reduced"
	SensorBME280     = "bme280"

	SinkLog   = "log"
	SinkBlueZ = "bluez"
)

func LoadTagFromEnv() (Tag, error) {
	base, err := loadBase()
	if err != nil {
		return Tag{}, err
	}

	source := envOr("SENSOR_SOURCE", SensorSim)
	switch source {
	case SensorSim, SensorSimReduced, SensorBME280:
	default:
		return Tag{}, fmt.Errorf("invalid SENSOR_SOURCE %q (allowed: sim, sim-reduced, bme280)", source)
	}

	bme280AddressStr := envOr("BME280_ADDRESS", "0x76")
	bme280Address, err := strconv.ParseUint(bme280AddressStr, 0, 16)
	if err != nil {
		return Tag{}, fmt.Errorf("invalid BME280_ADDRESS %q: %w", bme280AddressStr, err)
	}

	sink := envOr("BLE_SINK", SinkLog)
	switch sink {
	case SinkLog, SinkBlueZ:
	default:
		return Tag{}, fmt.Errorf("invalid BLE_SINK %q (allowed: log, bluez)", sink)
	}

	return Tag{
		Base:          base,
		SensorSource:  source,
		BME280Address: uint16(bme280Address),
		I2CBus:        strings.TrimSpace(os.Getenv("I2C_BUS")),
		BLESink:       sink,
		BLEAdapter:    envOr("BLE_ADAPTER", "hci0"),
		BLELocalName:  envOr("BLE_LOCAL_NAME", "Ruuvi"),
		MetricsAddr:   strings.TrimSpace(os.Getenv("METRICS_ADDR")),
	}, nil
}

func LoadGatewayFromEnv() (Gateway, error) {
	base, err := loadBase()
	if err != nil {
		return Gateway{}, err
	}

	mqttPortStr := envOr("MQTT_PORT", "1883")
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Gateway{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Gateway{}, fmt.Errorf("MQTT_PORT out of range: %d", mqttPort)
	}

	return Gateway{
		Base:            base,
		MQTTBroker:      envOr("MQTT_BROKER", "localhost"),
		MQTTPort:        mqttPort,
		MQTTClientID:    envOr("MQTT_CLIENT_ID", "cloudpico-gateway"),
		BLEAdapter:      envOr("BLE_ADAPTER", "hci0"),
		DeviceStationID: envOr("DEVICE_STATION_ID", "outdoor"),
		ArchivePath:     strings.TrimSpace(os.Getenv("ARCHIVE_PATH")),
		MetricsAddr:     strings.TrimSpace(os.Getenv("METRICS_ADDR")),
	}, nil
}

func loadBase() (Base, error) {
	appEnv := envOr("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Base{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Base{}, err
	}
	return Base{AppEnv: appEnv, LogLevel: level}, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
