package device

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Config captures how to reach the sensor device.
type Config struct {
	// Port is a serial device path (/dev/ttyUSB0, COM4) or tcp://host:port
	// for a network bridge.
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// SettleDelay is waited after opening a serial port; many boards reset
	// when the port opens and print nothing useful until they are up.
	// Defaults to 2s, a negative value disables it.
	SettleDelay time.Duration `yaml:"settle_delay"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	MaxLineLen  int           `yaml:"max_line_len"`
}

func (c *Config) ApplyDefaults() {
	if c.Baud <= 0 {
		c.Baud = 9600
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 250 * time.Millisecond
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.MaxLineLen <= 0 {
		c.MaxLineLen = 4096
	}
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.ReadTimeout < 100*time.Millisecond {
		return fmt.Errorf("read_timeout %s is below the 100ms serial resolution", c.ReadTimeout)
	}
	return nil
}

// IsNetwork reports whether the port addresses a TCP bridge.
func (c *Config) IsNetwork() bool {
	return strings.HasPrefix(c.Port, tcpScheme)
}

var portPatterns = []string{
	"/dev/ttyUSB*",
	"/dev/ttyACM*",
	"/dev/ttyS*",
	"/dev/cu.*",
	"/dev/tty.usb*",
}

// ListPorts returns serial device paths present on this host.
func ListPorts() []string {
	var out []string
	for _, pattern := range portPatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out
}
