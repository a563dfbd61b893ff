// Package frame decodes the device's `$Tag$ = value` line protocol.
package frame

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/ghalamif/TelemFlow/internal/domain"
)

// Anomaly reasons.
const (
	AnomalyTruncated  = "truncated"
	AnomalyUnparsable = "unparsable"
)

// Anomaly describes a metric that was announced but could not be decoded.
type Anomaly struct {
	Metric string
	Reason string
	Token  string
}

// Result holds the metrics decoded from one frame.
type Result struct {
	Values    map[string]float64
	Anomalies []Anomaly
}

// Empty reports whether the frame yielded no numeric metric.
func (r Result) Empty() bool { return len(r.Values) == 0 }

type tag struct {
	marker string
	metric string
}

// Matching is by substring and case-sensitive; the first tag a token contains
// wins. `$Temp$` is what current firmware prints for temperature.
var tags = []tag{
	{marker: "$Voltage$", metric: domain.MetricVoltage},
	{marker: "$TDS$", metric: domain.MetricTDS},
	{marker: "$Temperature$", metric: domain.MetricTemperature},
	{marker: "$Temp$", metric: domain.MetricTemperature},
}

// valueOffset is the distance from a tag token to its value token; the token
// in between (usually "=") is not validated.
const valueOffset = 2

// Parse decodes one frame. It never fails: anything malformed simply leaves
// the affected metric absent.
func Parse(line string) Result {
	var res Result
	parts := strings.Fields(line)

	for i, part := range parts {
		metric, ok := match(part)
		if !ok {
			continue
		}
		if i+valueOffset >= len(parts) {
			res.Anomalies = append(res.Anomalies, Anomaly{Metric: metric, Reason: AnomalyTruncated, Token: part})
			continue
		}

		raw := parts[i+valueOffset]
		v, ok := parseValue(raw)
		if !ok {
			res.Anomalies = append(res.Anomalies, Anomaly{Metric: metric, Reason: AnomalyUnparsable, Token: raw})
			continue
		}
		if res.Values == nil {
			res.Values = make(map[string]float64, len(tags))
		}
		res.Values[metric] = v
	}

	return res
}

func match(token string) (string, bool) {
	for _, t := range tags {
		if strings.Contains(token, t.marker) {
			return t.metric, true
		}
	}
	return "", false
}

func parseValue(raw string) (float64, bool) {
	s := strings.TrimRightFunc(raw, isUnitRune)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func isUnitRune(r rune) bool {
	return unicode.IsLetter(r) || r == '°' || r == '%'
}
