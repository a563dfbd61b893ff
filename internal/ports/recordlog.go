package ports

import (
	"time"

	"github.com/ghalamif/TelemFlow/internal/domain"
)

// RecordLog is the append-only durable sink of accepted samples.
type RecordLog interface {
	// Append commits one row before returning.
	Append(s *domain.Sample) error
	// Close is idempotent.
	Close() error
	Rows() int
	Location() string
}

// RecordLogOpener creates the record log of a session that started at start.
type RecordLogOpener func(sessionID string, start time.Time) (RecordLog, error)
