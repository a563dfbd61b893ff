package device

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/ghalamif/TelemFlow/internal/ports"
)

type step struct {
	data string
	err  error
}

type scriptedReader struct {
	steps []step
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	if len(r.steps) == 0 {
		return 0, io.EOF
	}
	s := r.steps[0]
	r.steps = r.steps[1:]
	n := copy(p, s.data)
	return n, s.err
}

func TestLineReaderKeepsPartialLineAcrossTimeouts(t *testing.T) {
	r := &scriptedReader{steps: []step{
		{data: "$Voltage$ = 3."},
		{err: io.EOF},
		{data: "7V\r\n$TDS$ = 2"},
		{data: "15\n"},
	}}
	lr := newLineReader(r, 0, true)

	if _, err := lr.ReadLine(); !errors.Is(err, ports.ErrReadTimeout) {
		t.Fatalf("expected read timeout, got %v", err)
	}

	line, err := lr.ReadLine()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(line) != "$Voltage$ = 3.7V" {
		t.Fatalf("unexpected line %q", line)
	}

	line, err = lr.ReadLine()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(line) != "$TDS$ = 215" {
		t.Fatalf("unexpected line %q", line)
	}
}

func TestLineReaderEOFIsFaultForStreams(t *testing.T) {
	lr := newLineReader(&scriptedReader{}, 0, false)
	if _, err := lr.ReadLine(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestLineReaderPropagatesFaults(t *testing.T) {
	boom := errors.New("device unplugged")
	lr := newLineReader(&scriptedReader{steps: []step{{err: boom}}}, 0, true)
	if _, err := lr.ReadLine(); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
}

func TestLineReaderBoundsLineLength(t *testing.T) {
	r := &scriptedReader{steps: []step{{data: "0123456789"}}}
	lr := newLineReader(r, 8, true)

	line, err := lr.ReadLine()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(line) != "0123456789" {
		t.Fatalf("unexpected line %q", line)
	}
}

func TestLineReaderReplacesInvalidUTF8(t *testing.T) {
	r := &scriptedReader{steps: []step{{data: "$TDS$ = 5 \xff\n"}}}
	lr := newLineReader(r, 0, true)

	line, err := lr.ReadLine()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(line) != "$TDS$ = 5 \uFFFD" {
		t.Fatalf("unexpected line %q", line)
	}
}

func TestTCPTransportReadsAndTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	cfg := Config{Port: "tcp://" + ln.Addr().String(), ReadTimeout: 100 * time.Millisecond}
	cfg.ApplyDefaults()
	if !cfg.IsNetwork() {
		t.Fatalf("expected %q to be a network port", cfg.Port)
	}

	tr, err := NewOpener(cfg)()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer tr.Close()

	server := <-accepted
	defer server.Close()

	start := time.Now()
	if _, err := tr.ReadLine(); !errors.Is(err, ports.ErrReadTimeout) {
		t.Fatalf("expected read timeout, got %v", err)
	}
	if took := time.Since(start); took >= time.Second {
		t.Fatalf("timeout took %s", took)
	}

	if _, err := server.Write([]byte("$TDS$ = 215\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	line, err := tr.ReadLine()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(line) != "$TDS$ = 215" {
		t.Fatalf("unexpected line %q", line)
	}

	if err := server.Close(); err != nil {
		t.Fatalf("close server: %v", err)
	}
	_, err = tr.ReadLine()
	if err == nil || errors.Is(err, ports.ErrReadTimeout) {
		t.Fatalf("expected a fault after peer close, got %v", err)
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing port")
	}

	cfg.Port = "/dev/ttyUSB0"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Baud != 9600 || cfg.ReadTimeout != 250*time.Millisecond || cfg.SettleDelay != 2*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}

	cfg.ReadTimeout = 10 * time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for short read timeout")
	}
}
