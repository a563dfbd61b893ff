package ports

import "github.com/ghalamif/TelemFlow/internal/domain"

// Mirror receives a best-effort copy of every accepted sample. Failures never
// affect the session.
type Mirror interface {
	Publish(s *domain.Sample) error
	Name() string
	Close() error
}
