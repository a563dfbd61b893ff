package telemflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/TelemFlow/internal/adapters/device"
	"github.com/ghalamif/TelemFlow/internal/adapters/httpapi"
	"github.com/ghalamif/TelemFlow/internal/adapters/mirror"
	"github.com/ghalamif/TelemFlow/internal/adapters/notify"
	"github.com/ghalamif/TelemFlow/internal/adapters/observability"
	"github.com/ghalamif/TelemFlow/internal/adapters/recordlog"
	"github.com/ghalamif/TelemFlow/internal/app/present"
	"github.com/ghalamif/TelemFlow/internal/app/render"
	"github.com/ghalamif/TelemFlow/internal/app/series"
	"github.com/ghalamif/TelemFlow/internal/app/session"
	"github.com/ghalamif/TelemFlow/internal/ports"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	openTransport ports.TransportOpener
	openLog       ports.RecordLogOpener
	observability Observability
	mirror        Mirror
	registerer    prometheus.Registerer
	gatherer      prometheus.Gatherer
	logOutput     io.Writer
	listeners     []Listener
	noHTTP        bool
}

// WithTransportOpener replaces the serial/TCP device adapters, e.g. with a simulator.
func WithTransportOpener(fn TransportOpener) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.openTransport = fn
	}
}

// WithRecordLogOpener replaces the configured CSV/SQL record log.
func WithRecordLogOpener(fn RecordLogOpener) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.openLog = fn
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithMirror injects a sample mirror instead of dialing the configured MQTT broker.
func WithMirror(m Mirror) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.mirror = m
	}
}

// WithRegisterer registers metrics on reg instead of the default registry. When
// reg is also a Gatherer it backs /metrics.
func WithRegisterer(reg prometheus.Registerer) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.registerer = reg
		if g, ok := reg.(prometheus.Gatherer); ok {
			o.gatherer = g
		}
	}
}

// WithLogOutput sends structured logs to w instead of stderr.
func WithLogOutput(w io.Writer) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.logOutput = w
	}
}

// WithListener adds a session event listener, see NewCallbackListener and NewChannelListener.
func WithListener(l Listener) RuntimeOption {
	return func(o *runtimeOverrides) {
		if l != nil {
			o.listeners = append(o.listeners, l)
		}
	}
}

// WithoutHTTP skips the metrics/API server, for embedding and tests.
func WithoutHTTP() RuntimeOption {
	return func(o *runtimeOverrides) {
		o.noHTTP = true
	}
}

// Runtime wires device → parser → series buffer + record log → charts and
// exposes lifecycle hooks for embedding TelemFlow inside any Go service.
type Runtime struct {
	cfg       *Config
	obs       ports.Observability
	hub       *notify.Hub
	buf       *series.Buffer
	ctrl      *session.Controller
	presenter *present.Presenter
	mirror    ports.Mirror
	gatherer  prometheus.Gatherer
	noHTTP    bool

	mu           sync.Mutex
	started      bool
	httpSrv      *http.Server
	httpAddr     string
	stopPresent  context.CancelFunc
	unsubPresent func()
	gaugeStopCh  chan struct{}
}

// NewRuntime bootstraps the default adapters (serial or TCP device, CSV or SQL
// record log, go-chart renderer, Prometheus observability, optional MQTT
// mirror). RuntimeOption values override any of them.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrConfiguration)
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	reg := overrides.registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := overrides.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	obs := overrides.observability
	if obs == nil {
		out := overrides.logOutput
		if out == nil {
			out = os.Stderr
		}
		obs = observability.NewPromObs(reg, observability.NewLogger(out, cfg.Log))
	}

	openTransport := overrides.openTransport
	if openTransport == nil {
		openTransport = device.NewOpener(cfg.Device)
	}
	openLog := overrides.openLog
	if openLog == nil {
		openLog = recordlog.NewOpener(cfg.RecordLog)
	}

	m := overrides.mirror
	if m == nil && cfg.Mirror.Enabled {
		dialed, err := mirror.Dial(cfg.Mirror, obs)
		if err != nil {
			return nil, err
		}
		m = dialed
	}

	buf := series.NewBuffer(cfg.Policy.SeriesCapacity)
	hub := notify.NewHub(obs)

	presenter, err := present.New(buf, render.NewRenderer(cfg.Render.Config), obs, present.Options{
		Views:     cfg.Views,
		Interval:  cfg.Policy.RedrawInterval,
		Burst:     cfg.Policy.RedrawBurst,
		OutputDir: cfg.Render.OutputDir,
	})
	if err != nil {
		closeMirror(m)
		return nil, err
	}

	var notifier ports.Notifier = hub
	if len(overrides.listeners) > 0 {
		notifier = fanout(append([]Listener{hub}, overrides.listeners...))
	}

	ctrl, err := session.NewController(session.Options{
		OpenTransport: openTransport,
		OpenLog:       openLog,
		Buffer:        buf,
		Policy:        cfg.Policy,
		Obs:           obs,
		Mirror:        m,
		Notifier:      notifier,
		Redraw:        presenter.RequestRedraw,
	})
	if err != nil {
		closeMirror(m)
		return nil, err
	}

	return &Runtime{
		cfg:       cfg,
		obs:       obs,
		hub:       hub,
		buf:       buf,
		ctrl:      ctrl,
		presenter: presenter,
		mirror:    m,
		gatherer:  gatherer,
		noHTTP:    overrides.noHTTP,
	}, nil
}

func closeMirror(m ports.Mirror) {
	if m != nil {
		_ = m.Close()
	}
}

// Start launches the presentation loop and the HTTP server, and opens a
// session when auto_start is set. It returns immediately; call Run to block
// on a context instead.
func (r *Runtime) Start() error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = true

	events, unsub := r.hub.Subscribe(16)
	ctx, cancel := context.WithCancel(context.Background())
	r.stopPresent = cancel
	r.unsubPresent = unsub
	go r.presenter.Run(ctx, events)

	if !r.noHTTP {
		if err := r.startHTTP(); err != nil {
			r.mu.Unlock()
			return err
		}
	}
	r.gaugeStopCh = make(chan struct{})
	go r.recordGauges(r.gaugeStopCh, time.Second)
	r.mu.Unlock()

	if r.cfg.AutoStart {
		if _, err := r.StartSession(context.Background()); err != nil {
			return err
		}
	}
	return nil
}

// Run starts the runtime and blocks until the provided context is cancelled.
// Upon cancellation it attempts a graceful shutdown.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return errors.Join(err, r.Shutdown(context.Background()))
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.cfg.Policy.StopTimeout+3*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// Shutdown stops the running session, the presentation loop, the HTTP server
// and the mirror.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	if err := r.ctrl.Stop(ctx); err != nil {
		errs = append(errs, err)
		// The session is still draining; its final event and mirror
		// publish need the hub and mirror open.
		if _, werr := r.ctrl.Wait(ctx); werr != nil {
			errs = append(errs, fmt.Errorf("session drain: %w", werr))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gaugeStopCh != nil {
		close(r.gaugeStopCh)
		r.gaugeStopCh = nil
	}

	if r.httpSrv != nil {
		if err := r.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
		r.httpSrv = nil
	}

	if r.stopPresent != nil {
		r.unsubPresent()
		r.stopPresent()
		select {
		case <-r.presenter.Done():
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("presentation loop: %w", ctx.Err()))
		}
		r.stopPresent = nil
	}

	r.hub.Close()

	if r.mirror != nil {
		if err := r.mirror.Close(); err != nil {
			errs = append(errs, err)
		}
		r.mirror = nil
	}

	return errors.Join(errs...)
}

// StartSession opens the device and a new record log and begins acquisition.
// While a session is running it returns that session.
func (r *Runtime) StartSession(ctx context.Context) (*Session, error) {
	return r.ctrl.Start(ctx)
}

// StopSession stops acquisition within policy.stop_timeout. It is a no-op
// when no session is running.
func (r *Runtime) StopSession(ctx context.Context) error {
	return r.ctrl.Stop(ctx)
}

// Wait blocks until the current session ends and returns its outcome.
func (r *Runtime) Wait(ctx context.Context) (Outcome, error) {
	return r.ctrl.Wait(ctx)
}

// CurrentSession returns the latest session, or nil.
func (r *Runtime) CurrentSession() *Session {
	return r.ctrl.Current()
}

// SelectMetric shows metric in view (0 or 1). The presentation loop must be
// running, see Start.
func (r *Runtime) SelectMetric(ctx context.Context, view int, metric string) error {
	return r.presenter.SelectMetric(ctx, view, metric)
}

// CycleMetric advances view to the next metric and returns it.
func (r *Runtime) CycleMetric(ctx context.Context, view int) (string, error) {
	return r.presenter.CycleMetric(ctx, view)
}

// Views returns the metric shown in each view.
func (r *Runtime) Views() []string {
	v := r.presenter.Views()
	return v[:]
}

// Image returns the latest rendering of view.
func (r *Runtime) Image(view int) (Image, bool) {
	return r.presenter.Image(view)
}

// Series returns a copy of the points recorded for metric in the current session.
func (r *Runtime) Series(metric string) []Point {
	return r.buf.Snapshot(metric)
}

// Subscribe registers for session events. Call the returned function to unsubscribe.
func (r *Runtime) Subscribe(buffer int) (<-chan Event, func()) {
	return r.hub.Subscribe(buffer)
}

// Status summarizes the current session.
func (r *Runtime) Status() Status {
	st := Status{State: r.ctrl.State().String()}
	if s := r.ctrl.Current(); s != nil {
		started := s.StartedAt
		st.SessionID = s.ID
		st.StartedAt = &started
		st.RecordLog = s.RecordLog
		st.Samples = s.Samples()
	}
	if ev := r.presenter.LastEvent(); ev.Kind != "" {
		st.LastEvent = &ev
	}
	return st
}

// Addr returns the address the HTTP server listens on, or "" when it is not running.
func (r *Runtime) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.httpAddr
}

func (r *Runtime) startHTTP() error {
	ln, err := net.Listen("tcp", r.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("%w: metrics listen %s: %w", ErrConfiguration, r.cfg.Metrics.Addr, err)
	}
	r.httpAddr = ln.Addr().String()
	r.httpSrv = &http.Server{
		Handler:           httpapi.NewServer(apiBackend{r}, r.gatherer, r.obs),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv := r.httpSrv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("http_server_exited", err)
		}
	}()
	r.obs.LogInfo("http_server_listening", ports.Field{Key: "addr", Value: r.httpAddr})
	return nil
}

func (r *Runtime) recordGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.obs.SetGauge(observability.SeriesPoints, float64(r.buf.Total()))
		}
	}
}

// apiBackend adapts Runtime to the HTTP API.
type apiBackend struct {
	rt *Runtime
}

func (b apiBackend) Status() httpapi.Status { return b.rt.Status() }

func (b apiBackend) StartSession(ctx context.Context) error {
	_, err := b.rt.StartSession(ctx)
	return err
}

func (b apiBackend) StopSession(ctx context.Context) error { return b.rt.StopSession(ctx) }

func (b apiBackend) Views() []string { return b.rt.Views() }

func (b apiBackend) SelectMetric(ctx context.Context, view int, metric string) error {
	return b.rt.SelectMetric(ctx, view, metric)
}

func (b apiBackend) ViewImage(view int) (httpapi.ViewImage, bool) {
	img, ok := b.rt.Image(view)
	if !ok {
		return httpapi.ViewImage{}, false
	}
	return httpapi.ViewImage{
		Metric:      img.Metric,
		ContentType: img.ContentType,
		RenderedAt:  img.RenderedAt,
		Data:        img.Data,
	}, true
}

func (b apiBackend) Series(metric string) []series.Point { return b.rt.Series(metric) }

func (b apiBackend) Subscribe(buffer int) (<-chan Event, func()) { return b.rt.Subscribe(buffer) }

var _ httpapi.Backend = apiBackend{}
