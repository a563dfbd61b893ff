package observability

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/TelemFlow/internal/ports"
)

// Metric names understood by PromObs.
const (
	FramesRead        = "telem_frames_read_total"
	FramesDiscarded   = "telem_frames_discarded_total"
	SamplesAccepted   = "telem_samples_accepted_total"
	DecodeAnomalies   = "telem_decode_anomalies_total"
	MirrorFailures    = "telem_mirror_failures_total"
	Redraws           = "telem_redraws_total"
	RecordAppend      = "telem_record_append_seconds"
	SeriesPoints      = "telem_series_points"
	SessionRunning    = "telem_session_running"
	anomalyMetricName = "telem_decode_anomalies_by_metric_total"
)

type PromObs struct {
	logger    *slog.Logger
	counters  map[string]prometheus.Counter
	gauges    map[string]prometheus.Gauge
	histos    map[string]prometheus.Observer
	anomalies *prometheus.CounterVec
}

// NewPromObs registers the pipeline metrics on reg and logs through logger.
// Metrics already registered on reg are reused, so several runtimes can share
// one registry.
func NewPromObs(reg prometheus.Registerer, logger *slog.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = slog.Default()
	}

	counter := func(name, help string) prometheus.Counter {
		return register(reg, prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help}))
	}
	gauge := func(name, help string) prometheus.Gauge {
		return register(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help}))
	}

	appendLatency := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    RecordAppend,
		Help:    "Time to durably commit one record log row.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	}))
	anomalies := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: anomalyMetricName,
		Help: "Metrics dropped from a frame, by metric and reason.",
	}, []string{"metric", "reason"}))

	return &PromObs{
		logger: logger,
		counters: map[string]prometheus.Counter{
			FramesRead:      counter(FramesRead, "Frames read from the device."),
			FramesDiscarded: counter(FramesDiscarded, "Frames that carried no numeric metric."),
			SamplesAccepted: counter(SamplesAccepted, "Samples committed to the record log."),
			DecodeAnomalies: counter(DecodeAnomalies, "Announced metrics that could not be decoded."),
			MirrorFailures:  counter(MirrorFailures, "Samples the mirror failed to publish."),
			Redraws:         counter(Redraws, "Chart redraws performed by the presentation loop."),
		},
		gauges: map[string]prometheus.Gauge{
			SeriesPoints:   gauge(SeriesPoints, "Points held in the series buffer."),
			SessionRunning: gauge(SessionRunning, "1 while an acquisition session is running."),
		},
		histos: map[string]prometheus.Observer{
			RecordAppend: appendLatency,
		},
		anomalies: anomalies,
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (p *PromObs) LogDebug(msg string, fields ...ports.Field) {
	p.logger.Debug(msg, attrs(fields)...)
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.Info(msg, attrs(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(attrs(fields), slog.Any("error", err))...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(attrs(fields), slog.Any("error", err), slog.Bool("critical", true))...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordAnomaly(metric, reason, token string) {
	p.IncCounter(DecodeAnomalies, 1)
	p.anomalies.WithLabelValues(metric, reason).Inc()
	p.logger.Debug("decode_anomaly",
		slog.String("metric", metric),
		slog.String("reason", reason),
		slog.String("token", token))
}

func attrs(fields []ports.Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
