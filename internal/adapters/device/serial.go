package device

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/ghalamif/TelemFlow/internal/domain"
	"github.com/ghalamif/TelemFlow/internal/ports"
)

// SerialTransport reads frames from a serial port.
type SerialTransport struct {
	port      *serial.Port
	lines     *lineReader
	closeOnce sync.Once
	closeErr  error
}

// OpenSerial opens the port, flushes whatever the OS buffered before we
// arrived, and waits the settle delay.
func OpenSerial(cfg Config) (*SerialTransport, error) {
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open serial %s: %w%s", domain.ErrConfiguration, cfg.Port, err, availablePortsHint())
	}
	if cfg.SettleDelay > 0 {
		time.Sleep(cfg.SettleDelay)
	}
	if err := p.Flush(); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("%w: flush serial %s: %w", domain.ErrConfiguration, cfg.Port, err)
	}

	return &SerialTransport{
		port:  p,
		lines: newLineReader(p, cfg.MaxLineLen, true),
	}, nil
}

func (s *SerialTransport) ReadLine() ([]byte, error) {
	return s.lines.ReadLine()
}

func (s *SerialTransport) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.port.Close()
	})
	return s.closeErr
}

func availablePortsHint() string {
	found := ListPorts()
	if len(found) == 0 {
		return " (no serial ports found)"
	}
	return " (available: " + strings.Join(found, ", ") + ")"
}

var _ ports.Transport = (*SerialTransport)(nil)
