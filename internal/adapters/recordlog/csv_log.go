package recordlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ghalamif/TelemFlow/internal/domain"
	"github.com/ghalamif/TelemFlow/internal/ports"
)

// CSVLog is a record log backed by a CSV file. Every Append is flushed and
// fsynced before it returns, so the file on disk holds all accepted samples
// except at most the one being written.
type CSVLog struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *csv.Writer
	rows   int
	closed bool
}

// OpenCSV creates a new CSV record log at path and commits the header row.
// An existing file is never overwritten.
func OpenCSV(path string, header []string) (*CSVLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create log dir: %w", domain.ErrPersistence, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}

	l := &CSVLog{
		path:   path,
		file:   f,
		writer: csv.NewWriter(f),
	}
	if err := l.commit(header); err != nil {
		_ = f.Close()
		return nil, err
	}
	return l, nil
}

// maxNameAttempts bounds the numbered suffixes tried for sessions started
// within the same second.
const maxNameAttempts = 100

// OpenSessionCSV opens the CSV record log of a session started at start in
// dir. When the conventional name is taken, _2, _3 and so on are tried.
func OpenSessionCSV(dir string, start time.Time, header []string) (*CSVLog, error) {
	var err error
	for n := 1; n <= maxNameAttempts; n++ {
		var l *CSVLog
		l, err = OpenCSV(numberedName(FileName(dir, start, "csv"), n), header)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}
	}
	return nil, err
}

func numberedName(path string, n int) string {
	if n == 1 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(path, ext), n, ext)
}

func (l *CSVLog) Append(s *domain.Sample) error {
	if s == nil {
		return fmt.Errorf("%w: nil sample", domain.ErrPersistence)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("%w: record log closed", domain.ErrPersistence)
	}
	if err := l.commit(Row(s)); err != nil {
		return err
	}
	l.rows++
	return nil
}

func (l *CSVLog) commit(row []string) error {
	if err := l.writer.Write(row); err != nil {
		return fmt.Errorf("%w: write row: %w", domain.ErrPersistence, err)
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return fmt.Errorf("%w: flush row: %w", domain.ErrPersistence, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (l *CSVLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	l.writer.Flush()
	err := l.writer.Error()
	if e := l.file.Sync(); e != nil && !errors.Is(e, os.ErrClosed) {
		err = errors.Join(err, e)
	}
	if e := l.file.Close(); e != nil {
		err = errors.Join(err, e)
	}
	return err
}

// Rows returns the number of sample rows written, excluding the header.
func (l *CSVLog) Rows() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rows
}

func (l *CSVLog) Location() string { return l.path }

var _ ports.RecordLog = (*CSVLog)(nil)
