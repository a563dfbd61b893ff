package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/TelemFlow/internal/adapters/device"
	"github.com/ghalamif/TelemFlow/internal/adapters/mirror"
	"github.com/ghalamif/TelemFlow/internal/adapters/observability"
	"github.com/ghalamif/TelemFlow/internal/adapters/recordlog"
	"github.com/ghalamif/TelemFlow/internal/app/render"
	"github.com/ghalamif/TelemFlow/internal/domain"
	"github.com/ghalamif/TelemFlow/internal/ports"
)

type Config struct {
	Device    device.Config           `yaml:"device"`
	RecordLog recordlog.Config        `yaml:"record_log"`
	Policy    ports.Policy            `yaml:"policy"`
	Views     []string                `yaml:"views"`
	Render    RenderConfig            `yaml:"render"`
	Metrics   MetricsConfig           `yaml:"metrics"`
	Mirror    mirror.Config           `yaml:"mirror"`
	Log       observability.LogConfig `yaml:"log"`
	// AutoStart begins a session as soon as the runtime starts.
	AutoStart bool `yaml:"auto_start"`
}

type RenderConfig struct {
	render.Config `yaml:",inline"`
	OutputDir     string `yaml:"output_dir"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	return Parse(raw)
}

// Parse decodes YAML, fills defaults and validates the result.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Policy.StopTimeout == 0 {
		c.Policy.StopTimeout = 2 * time.Second
	}
	if c.Policy.RedrawInterval == 0 {
		c.Policy.RedrawInterval = 200 * time.Millisecond
	}
	if c.Policy.RedrawBurst == 0 {
		c.Policy.RedrawBurst = 1
	}
	if len(c.Views) == 0 {
		c.Views = []string{domain.MetricVoltage, domain.MetricTemperature}
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	c.Device.ApplyDefaults()
	c.RecordLog.ApplyDefaults()
	c.Render.ApplyDefaults()
	c.Mirror.ApplyDefaults()
}

func (c *Config) Validate() error {
	if err := c.Device.Validate(); err != nil {
		return section("device", err)
	}
	if err := c.RecordLog.Validate(); err != nil {
		return section("record_log", err)
	}
	if err := c.Render.Validate(); err != nil {
		return section("render", err)
	}
	if err := c.Mirror.Validate(); err != nil {
		return section("mirror", err)
	}
	if c.Policy.StopTimeout < c.Device.ReadTimeout {
		return fmt.Errorf("%w: policy.stop_timeout %s is shorter than device.read_timeout %s",
			domain.ErrConfiguration, c.Policy.StopTimeout, c.Device.ReadTimeout)
	}
	if c.Policy.RedrawInterval < 0 || c.Policy.RedrawBurst < 0 || c.Policy.SeriesCapacity < 0 {
		return fmt.Errorf("%w: policy values must not be negative", domain.ErrConfiguration)
	}
	if len(c.Views) > 2 {
		return fmt.Errorf("%w: at most 2 views are supported, got %d", domain.ErrConfiguration, len(c.Views))
	}
	for i, v := range c.Views {
		if !domain.IsKnownMetric(v) {
			return fmt.Errorf("%w: views[%d]: unknown metric %q", domain.ErrConfiguration, i, v)
		}
	}
	if c.Metrics.Addr == "" {
		return fmt.Errorf("%w: metrics.addr is required", domain.ErrConfiguration)
	}
	return nil
}

func section(name string, err error) error {
	if errors.Is(err, domain.ErrConfiguration) {
		return fmt.Errorf("%s config: %w", name, err)
	}
	return fmt.Errorf("%w: %s config: %w", domain.ErrConfiguration, name, err)
}
