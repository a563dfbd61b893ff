package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ghalamif/TelemFlow/internal/ports"
)

func TestPromObsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPromObs(reg, NewLogger(&bytes.Buffer{}, LogConfig{}))

	obs.IncCounter(SamplesAccepted, 5)
	if got := testutil.ToFloat64(obs.counters[SamplesAccepted]); got != 5 {
		t.Fatalf("expected accepted counter 5, got %f", got)
	}

	obs.IncCounter(FramesDiscarded, 2)
	if got := testutil.ToFloat64(obs.counters[FramesDiscarded]); got != 2 {
		t.Fatalf("expected discard counter 2, got %f", got)
	}

	obs.SetGauge(SeriesPoints, 42)
	if got := testutil.ToFloat64(obs.gauges[SeriesPoints]); got != 42 {
		t.Fatalf("expected series gauge 42, got %f", got)
	}

	obs.ObserveLatency(RecordAppend, 0.002)
	hCollector := obs.histos[RecordAppend].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected append histogram to record 1 sample, got %d", samples)
	}

	obs.RecordAnomaly("Voltage", "unparsable", "abc")
	if got := testutil.ToFloat64(obs.counters[DecodeAnomalies]); got != 1 {
		t.Fatalf("expected anomaly counter 1, got %f", got)
	}
	if got := testutil.ToFloat64(obs.anomalies.WithLabelValues("Voltage", "unparsable")); got != 1 {
		t.Fatalf("expected labelled anomaly counter 1, got %f", got)
	}

	obs.IncCounter("unknown_metric", 1)
}

func TestPromObsSharesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewPromObs(reg, nil)
	b := NewPromObs(reg, nil)

	a.IncCounter(FramesRead, 1)
	b.IncCounter(FramesRead, 1)
	if got := testutil.ToFloat64(b.counters[FramesRead]); got != 2 {
		t.Fatalf("expected shared counter 2, got %f", got)
	}
}

func TestPromObsLogsFields(t *testing.T) {
	var buf bytes.Buffer
	obs := NewPromObs(prometheus.NewRegistry(), NewLogger(&buf, LogConfig{Format: "json"}))

	obs.LogError("record_append_failed", errors.New("disk full"), ports.Field{Key: "seq", Value: 7})

	out := buf.String()
	for _, want := range []string{`"msg":"record_append_failed"`, `"seq":7`, `"error":"disk full"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in log output %s", want, out)
		}
	}
}
