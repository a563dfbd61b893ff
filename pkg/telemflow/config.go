package telemflow

import (
	"github.com/ghalamif/TelemFlow/internal/adapters/device"
	"github.com/ghalamif/TelemFlow/internal/adapters/mirror"
	"github.com/ghalamif/TelemFlow/internal/adapters/observability"
	"github.com/ghalamif/TelemFlow/internal/adapters/recordlog"
	"github.com/ghalamif/TelemFlow/internal/app/config"
	"github.com/ghalamif/TelemFlow/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy bounds stop latency, redraw rate and series retention.
	Policy = ports.Policy
	// DeviceConfig selects the serial port or TCP bridge.
	DeviceConfig = device.Config
	// RecordLogConfig selects the CSV, SQLite or PostgreSQL record log.
	RecordLogConfig = recordlog.Config
	// RenderConfig sizes the chart images.
	RenderConfig = config.RenderConfig
	// MetricsConfig configures the HTTP server carrying /metrics and the API.
	MetricsConfig = config.MetricsConfig
	// MirrorConfig configures the optional MQTT sample mirror.
	MirrorConfig = mirror.Config
	// LogConfig selects log level and format.
	LogConfig = observability.LogConfig
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig is LoadConfig for YAML already in memory.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}
