package device

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ghalamif/TelemFlow/internal/domain"
	"github.com/ghalamif/TelemFlow/internal/ports"
)

const tcpScheme = "tcp://"

// TCPTransport reads frames from a network serial bridge (ser2net and
// similar) or the bundled emulator.
type TCPTransport struct {
	conn        net.Conn
	lines       *lineReader
	readTimeout time.Duration
	closeOnce   sync.Once
	closeErr    error
}

func OpenTCP(cfg Config) (*TCPTransport, error) {
	addr := strings.TrimPrefix(cfg.Port, tcpScheme)
	conn, err := net.DialTimeout("tcp", addr, cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", domain.ErrConfiguration, addr, err)
	}
	return newTCPTransport(conn, cfg), nil
}

func newTCPTransport(conn net.Conn, cfg Config) *TCPTransport {
	return &TCPTransport{
		conn:        conn,
		lines:       newLineReader(conn, cfg.MaxLineLen, false),
		readTimeout: cfg.ReadTimeout,
	}
}

func (t *TCPTransport) ReadLine() ([]byte, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
		return nil, err
	}
	return t.lines.ReadLine()
}

func (t *TCPTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

var _ ports.Transport = (*TCPTransport)(nil)
