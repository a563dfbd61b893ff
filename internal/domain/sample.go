package domain

import "time"

// Metric names carried by the sensor protocol and the record log schema.
const (
	MetricVoltage     = "Voltage"
	MetricCurrent     = "Current"
	MetricTDS         = "TDS"
	MetricTemperature = "Temperature"
)

// Metrics lists every metric known to the data model, in record log column order.
var Metrics = []string{MetricVoltage, MetricCurrent, MetricTDS, MetricTemperature}

// Sample is one decoded, sequenced telemetry reading.
type Sample struct {
	Seq       uint64             `json:"seq"`
	Timestamp time.Time          `json:"ts"`
	Values    map[string]float64 `json:"values"`
	Error     string             `json:"error,omitempty"`
}

// Value returns the reading for metric and whether the frame carried it.
func (s *Sample) Value(metric string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := s.Values[metric]
	return v, ok
}

// IsKnownMetric reports whether name is part of the data model.
func IsKnownMetric(name string) bool {
	for _, m := range Metrics {
		if m == name {
			return true
		}
	}
	return false
}
