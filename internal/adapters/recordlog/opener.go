package recordlog

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ghalamif/TelemFlow/internal/domain"
	"github.com/ghalamif/TelemFlow/internal/ports"
)

// Record log formats.
const (
	FormatCSV      = "csv"
	FormatSQLite   = "sqlite"
	FormatPostgres = "postgres"
)

// Config selects and locates the record log backend.
type Config struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
}

func (c *Config) ApplyDefaults() {
	if c.Dir == "" {
		c.Dir = "./data"
	}
	if c.Format == "" {
		c.Format = FormatCSV
	}
	if c.Table == "" {
		c.Table = "samples"
	}
	if c.Format == FormatSQLite && c.DSN == "" {
		c.DSN = filepath.Join(c.Dir, "sensor_data.db")
	}
}

func (c *Config) Validate() error {
	switch c.Format {
	case FormatCSV:
		if c.Dir == "" {
			return errors.New("dir is required")
		}
	case FormatSQLite, FormatPostgres:
		if c.DSN == "" {
			return fmt.Errorf("dsn is required for format %q", c.Format)
		}
	default:
		return fmt.Errorf("unknown format %q", c.Format)
	}
	return nil
}

// NewOpener returns the opener used by each session to create its record log.
func NewOpener(cfg Config) ports.RecordLogOpener {
	return func(sessionID string, start time.Time) (ports.RecordLog, error) {
		switch cfg.Format {
		case FormatCSV:
			return OpenSessionCSV(cfg.Dir, start, Header)
		case FormatSQLite:
			return openSQL(DriverSQLite, cfg, sessionID)
		case FormatPostgres:
			return openSQL(DriverPostgres, cfg, sessionID)
		default:
			return nil, fmt.Errorf("%w: unknown record log format %q", domain.ErrPersistence, cfg.Format)
		}
	}
}

func openSQL(driver string, cfg Config, sessionID string) (ports.RecordLog, error) {
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrPersistence, driver, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: connect %s: %w", domain.ErrPersistence, driver, err)
	}
	l, err := OpenSQL(db, driver, cfg.Table, sessionID, true)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}
