package telemflow

import (
	"io"

	base "github.com/ghalamif/TelemFlow/pkg/telemflow"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-exported errors for convenience.
var (
	ErrTransportFault = base.ErrTransportFault
	ErrPersistence    = base.ErrPersistence
	ErrConfiguration  = base.ErrConfiguration
	ErrStopTimeout    = base.ErrStopTimeout
	ErrReadTimeout    = base.ErrReadTimeout
)

// Type aliases so consumers can import github.com/ghalamif/TelemFlow directly.
type (
	Config          = base.Config
	Policy          = base.Policy
	DeviceConfig    = base.DeviceConfig
	RecordLogConfig = base.RecordLogConfig
	RenderConfig    = base.RenderConfig
	MetricsConfig   = base.MetricsConfig
	MirrorConfig    = base.MirrorConfig
	LogConfig       = base.LogConfig
	Flow            = base.Flow
	FlowOption      = base.FlowOption
	StreamInOption  = base.StreamInOption
	StreamOutOption = base.StreamOutOption
	Runtime         = base.Runtime
	RuntimeOption   = base.RuntimeOption
	Sample          = base.Sample
	Event           = base.Event
	EventKind       = base.EventKind
	Transport       = base.Transport
	TransportOpener = base.TransportOpener
	RecordLog       = base.RecordLog
	RecordLogOpener = base.RecordLogOpener
	Mirror          = base.Mirror
	Observability   = base.Observability
	Field           = base.Field
	Listener        = base.Listener
	Session         = base.Session
	Outcome         = base.Outcome
	State           = base.State
	Point           = base.Point
	Image           = base.Image
	Status          = base.Status
)

const (
	EventStarted = base.EventStarted
	EventStopped = base.EventStopped
	EventFault   = base.EventFault

	MetricVoltage     = base.MetricVoltage
	MetricCurrent     = base.MetricCurrent
	MetricTDS         = base.MetricTDS
	MetricTemperature = base.MetricTemperature
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return base.ParseConfig(raw)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInTransport(fn TransportOpener) StreamInOption {
	return base.StreamInTransport(fn)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutRecordLog(fn RecordLogOpener) StreamOutOption {
	return base.StreamOutRecordLog(fn)
}

func StreamOutMirror(m Mirror) StreamOutOption {
	return base.StreamOutMirror(m)
}

func StreamOutCallback(fn func(Event)) StreamOutOption {
	return base.StreamOutCallback(fn)
}

func StreamOutListener(l Listener) StreamOutOption {
	return base.StreamOutListener(l)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithTransportOpener(fn TransportOpener) RuntimeOption {
	return base.WithTransportOpener(fn)
}

func WithRecordLogOpener(fn RecordLogOpener) RuntimeOption {
	return base.WithRecordLogOpener(fn)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithMirror(m Mirror) RuntimeOption {
	return base.WithMirror(m)
}

func WithRegisterer(reg prometheus.Registerer) RuntimeOption {
	return base.WithRegisterer(reg)
}

func WithLogOutput(w io.Writer) RuntimeOption {
	return base.WithLogOutput(w)
}

func WithListener(l Listener) RuntimeOption {
	return base.WithListener(l)
}

func WithoutHTTP() RuntimeOption {
	return base.WithoutHTTP()
}

// Listener adapters.
func NewCallbackListener(fn func(Event)) Listener {
	return base.NewCallbackListener(fn)
}

func NewChannelListener(buffer int) (Listener, <-chan Event, func()) {
	return base.NewChannelListener(buffer)
}
