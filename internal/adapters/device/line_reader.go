package device

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"strings"

	"github.com/ghalamif/TelemFlow/internal/ports"
)

// lineReader assembles newline-delimited frames from a reader whose Read
// returns early on a timeout. Bytes of an unfinished line are kept across
// timeouts so a frame split over several reads is never lost or mangled.
type lineReader struct {
	r       io.Reader
	pending []byte
	chunk   []byte
	maxLen  int
	// eofIsTimeout is set for serial ports, where a read that times out with
	// no data surfaces as io.EOF.
	eofIsTimeout bool
}

func newLineReader(r io.Reader, maxLen int, eofIsTimeout bool) *lineReader {
	return &lineReader{
		r:            r,
		chunk:        make([]byte, 256),
		maxLen:       maxLen,
		eofIsTimeout: eofIsTimeout,
	}
}

func (l *lineReader) ReadLine() ([]byte, error) {
	for {
		if line, ok := l.next(); ok {
			return line, nil
		}

		n, err := l.r.Read(l.chunk)
		if n > 0 {
			l.pending = append(l.pending, l.chunk[:n]...)
			continue
		}
		switch {
		case err == nil:
			return nil, ports.ErrReadTimeout
		case isTimeout(err):
			return nil, ports.ErrReadTimeout
		case errors.Is(err, io.EOF) && l.eofIsTimeout:
			return nil, ports.ErrReadTimeout
		default:
			return nil, err
		}
	}
}

// next pops one complete line off the pending buffer. An over-long line with
// no terminator is emitted as is so it cannot grow without bound.
func (l *lineReader) next() ([]byte, bool) {
	i := bytes.IndexByte(l.pending, '\n')
	if i < 0 {
		if l.maxLen > 0 && len(l.pending) >= l.maxLen {
			return l.take(len(l.pending), 0), true
		}
		return nil, false
	}
	return l.take(i, 1), true
}

func (l *lineReader) take(n, skip int) []byte {
	line := bytes.TrimRight(l.pending[:n], "\r")
	out := []byte(strings.ToValidUTF8(string(line), "�"))
	l.pending = append(l.pending[:0], l.pending[n+skip:]...)
	return out
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
