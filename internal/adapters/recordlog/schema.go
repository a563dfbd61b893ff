package recordlog

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ghalamif/TelemFlow/internal/domain"
)

// TimestampLayout is the record log's timestamp format (YYYY-MM-DD HH:MM:SS).
const TimestampLayout = "2006-01-02 15:04:05"

// Header is the fixed header row of a tabular record log.
var Header = []string{"S.no", "Timestamp", "Voltage", "Current", "TDS", "Temp", "Error"}

// columnMetrics maps record log metric columns to data model metrics.
var columnMetrics = []string{
	domain.MetricVoltage,
	domain.MetricCurrent,
	domain.MetricTDS,
	domain.MetricTemperature,
}

// FileName returns the conventional record log file name for a session.
func FileName(dir string, start time.Time, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("sensor_data_%s.%s", start.Format("20060102_150405"), ext))
}

// Row renders a sample in header order. Absent metrics are blank, never zero.
func Row(s *domain.Sample) []string {
	row := make([]string, 0, len(Header))
	row = append(row, strconv.FormatUint(s.Seq, 10), s.Timestamp.Format(TimestampLayout))
	for _, m := range columnMetrics {
		if v, ok := s.Value(m); ok {
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		} else {
			row = append(row, "")
		}
	}
	return append(row, s.Error)
}
