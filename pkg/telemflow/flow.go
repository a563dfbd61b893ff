package telemflow

import (
	"context"
	"fmt"
)

// Flow is a convenience builder that lets callers say Conf → StreamIN → StreamOUT
// without touching the underlying hexagonal wiring.
type Flow struct {
	cfg  *Config
	opts []RuntimeOption
}

// FlowOption mutates the Flow after configuration is loaded.
type FlowOption func(*Flow)

// StreamInOption configures the device side of the pipeline.
type StreamInOption func(*Flow)

// StreamOutOption configures the record log, mirror and listener side of the pipeline.
type StreamOutOption func(*Flow)

// Conf loads YAML from disk, applies FlowOption values, and returns a Flow builder.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrConfiguration)
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config returns the underlying configuration so callers can tweak it before building a runtime.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends raw RuntimeOption values to the builder for advanced scenarios.
func (f *Flow) Options(opts ...RuntimeOption) *Flow {
	if f == nil {
		return nil
	}
	f.appendOptions(opts...)
	return f
}

// StreamIN records device-side overrides.
func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// StreamOUT records output-side overrides and builds a Runtime ready to run.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*Runtime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return NewRuntime(f.cfg, f.opts...)
}

// Run is a shortcut for StreamOUT + runtime.Run.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	rt, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

// WithFlowOptions appends RuntimeOption values during Conf.
func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(opts...)
		}
	}
}

// StreamInTransport injects a custom device opener (simulators, other buses).
func StreamInTransport(fn TransportOpener) StreamInOption {
	return func(f *Flow) {
		if f != nil && fn != nil {
			f.appendOptions(WithTransportOpener(fn))
		}
	}
}

// StreamInObservability overrides the default Prometheus-based observability stack.
func StreamInObservability(obs Observability) StreamInOption {
	return func(f *Flow) {
		if f != nil && obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

// StreamOutRecordLog injects a custom record log opener.
func StreamOutRecordLog(fn RecordLogOpener) StreamOutOption {
	return func(f *Flow) {
		if f != nil && fn != nil {
			f.appendOptions(WithRecordLogOpener(fn))
		}
	}
}

// StreamOutMirror injects a sample mirror.
func StreamOutMirror(m Mirror) StreamOutOption {
	return func(f *Flow) {
		if f != nil && m != nil {
			f.appendOptions(WithMirror(m))
		}
	}
}

// StreamOutCallback installs a listener built from a simple callback function.
func StreamOutCallback(fn func(Event)) StreamOutOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(WithListener(NewCallbackListener(fn)))
		}
	}
}

// StreamOutListener installs any Listener, e.g. one from NewChannelListener.
func StreamOutListener(l Listener) StreamOutOption {
	return func(f *Flow) {
		if f != nil && l != nil {
			f.appendOptions(WithListener(l))
		}
	}
}

func (f *Flow) appendOptions(opts ...RuntimeOption) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
