package recordlog

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/ghalamif/TelemFlow/internal/domain"
	"github.com/ghalamif/TelemFlow/internal/ports"
)

// Drivers supported by SQLLog.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// SQLLog is a record log backed by a SQL table. Each Append is one
// autocommitted INSERT, so a row is durable once Append returns.
type SQLLog struct {
	mu        sync.Mutex
	db        *sql.DB
	driver    string
	tableName string
	sessionID string
	insert    string
	rows      int
	closed    bool
	closeDB   bool
}

// OpenSQL ensures the table exists and returns a record log writing rows for
// one session. When ownDB is set, Close also closes db.
func OpenSQL(db *sql.DB, driver, table, sessionID string, ownDB bool) (*SQLLog, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: nil database handle", domain.ErrPersistence)
	}
	if table == "" {
		table = "samples"
	}

	l := &SQLLog{
		db:        db,
		driver:    driver,
		tableName: table,
		sessionID: sessionID,
		closeDB:   ownDB,
	}
	l.insert = l.buildInsert()

	if _, err := db.Exec(l.createTable()); err != nil {
		return nil, fmt.Errorf("%w: create table %s: %w", domain.ErrPersistence, table, err)
	}
	return l, nil
}

func (l *SQLLog) createTable() string {
	idCol := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	tsType := "TEXT"
	if l.driver == DriverPostgres {
		idCol = "id BIGSERIAL PRIMARY KEY"
		tsType = "TIMESTAMPTZ"
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s,
	session_id TEXT NOT NULL,
	seq BIGINT NOT NULL,
	ts %s NOT NULL,
	voltage DOUBLE PRECISION,
	current DOUBLE PRECISION,
	tds DOUBLE PRECISION,
	temperature DOUBLE PRECISION,
	error TEXT,
	UNIQUE (session_id, seq)
)`, l.tableName, idCol, tsType)
}

func (l *SQLLog) buildInsert() string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(l.tableName)
	b.WriteString(" (session_id, seq, ts, voltage, current, tds, temperature, error) VALUES (")
	for i := 1; i <= 8; i++ {
		if i > 1 {
			b.WriteString(",")
		}
		b.WriteString(l.placeholder(i))
	}
	b.WriteString(")")
	return b.String()
}

func (l *SQLLog) placeholder(n int) string {
	if l.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (l *SQLLog) Append(s *domain.Sample) error {
	if s == nil {
		return fmt.Errorf("%w: nil sample", domain.ErrPersistence)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("%w: record log closed", domain.ErrPersistence)
	}

	args := make([]any, 0, 8)
	args = append(args, l.sessionID, s.Seq, s.Timestamp.Format(TimestampLayout))
	for _, m := range columnMetrics {
		v, ok := s.Value(m)
		args = append(args, sql.NullFloat64{Float64: v, Valid: ok})
	}
	args = append(args, sql.NullString{String: s.Error, Valid: s.Error != ""})

	if _, err := l.db.Exec(l.insert, args...); err != nil {
		return fmt.Errorf("%w: insert seq %d: %w", domain.ErrPersistence, s.Seq, err)
	}
	l.rows++
	return nil
}

func (l *SQLLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.closeDB {
		return l.db.Close()
	}
	return nil
}

func (l *SQLLog) Rows() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rows
}

func (l *SQLLog) Location() string {
	return fmt.Sprintf("%s:%s", l.driver, l.tableName)
}

var _ ports.RecordLog = (*SQLLog)(nil)
