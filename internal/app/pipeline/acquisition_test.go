package pipeline

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/ghalamif/TelemFlow/internal/app/series"
	"github.com/ghalamif/TelemFlow/internal/domain"
	"github.com/ghalamif/TelemFlow/internal/ports"
)

func TestAcquisitionScenarioLine(t *testing.T) {
	h := newHarness(t, "$Voltage$ = 3.7V $TDS$ = 215")

	out := h.runUntilSamples(t, 1)

	if out.Err != nil || out.Reason != ReasonStopped {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(h.log.samples) != 1 {
		t.Fatalf("expected 1 row, got %d", len(h.log.samples))
	}
	s := h.log.samples[0]
	if s.Seq != 1 {
		t.Fatalf("expected seq 1, got %d", s.Seq)
	}
	want := map[string]float64{domain.MetricVoltage: 3.7, domain.MetricTDS: 215}
	if !reflect.DeepEqual(s.Values, want) {
		t.Fatalf("expected %v, got %v", want, s.Values)
	}
	if h.buf.Len(domain.MetricVoltage) != 1 || h.buf.Len(domain.MetricTDS) != 1 {
		t.Fatalf("expected one point per present metric")
	}
	if h.buf.Len(domain.MetricCurrent) != 0 || h.buf.Len(domain.MetricTemperature) != 0 {
		t.Fatalf("absent metrics must not be recorded")
	}
	if n := h.redraws(); n != 1 {
		t.Fatalf("expected 1 redraw request, got %d", n)
	}
}

func TestAcquisitionDiscardsGarbage(t *testing.T) {
	h := newHarness(t, "garbage text", "$Temp$ = 24.5C")

	out := h.runUntilSamples(t, 1)

	if out.Err != nil {
		t.Fatalf("unexpected error %v", out.Err)
	}
	if len(h.log.samples) != 1 || h.log.samples[0].Seq != 1 {
		t.Fatalf("garbage must not consume a sequence number: %+v", h.log.samples)
	}
	if v := h.obs.counter("telem_frames_discarded_total"); v != 1 {
		t.Fatalf("expected 1 discarded frame, got %v", v)
	}
	if v := h.obs.counter("telem_frames_read_total"); v != 2 {
		t.Fatalf("expected 2 frames read, got %v", v)
	}
	if k := h.events.kinds(); len(k) != 1 || k[0] != domain.EventStopped {
		t.Fatalf("expected a single stopped event, got %v", k)
	}
}

func TestAcquisitionSequencesEveryAcceptedFrame(t *testing.T) {
	lines := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		lines = append(lines, "$Voltage$ = 3.3 $Current$")
	}
	h := newHarness(t, lines...)

	out := h.runUntilSamples(t, 25)

	if out.Samples != 25 {
		t.Fatalf("expected 25 samples, got %d", out.Samples)
	}
	for i, s := range h.log.samples {
		if s.Seq != uint64(i+1) {
			t.Fatalf("row %d has seq %d", i, s.Seq)
		}
	}
	pts := h.buf.Snapshot(domain.MetricVoltage)
	if len(pts) != 25 {
		t.Fatalf("expected 25 points, got %d", len(pts))
	}
	for i := 1; i < len(pts); i++ {
		if pts[i].Elapsed < pts[i-1].Elapsed {
			t.Fatalf("elapsed went backwards at %d: %v < %v", i, pts[i].Elapsed, pts[i-1].Elapsed)
		}
	}
}

func TestAcquisitionStopsWithinReadTimeoutAndClosesOnce(t *testing.T) {
	const readTimeout = 30 * time.Millisecond

	ctrl := gomock.NewController(t)
	tr := ports.NewMockTransport(ctrl)
	tr.EXPECT().ReadLine().DoAndReturn(func() ([]byte, error) {
		time.Sleep(readTimeout)
		return nil, ports.ErrReadTimeout
	}).AnyTimes()
	tr.EXPECT().Close().Return(nil).Times(1)

	log := &fakeLog{}
	events := &eventLog{}
	acq := NewAcquisition(Deps{
		SessionID: "s1",
		Transport: tr,
		Log:       log,
		Buffer:    series.NewBuffer(0),
		Notifier:  events,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Outcome, 1)
	go func() { done <- acq.Run(ctx) }()

	time.Sleep(2 * readTimeout)
	requested := time.Now()
	cancel()

	select {
	case out := <-done:
		if took := time.Since(requested); took > readTimeout+50*time.Millisecond {
			t.Fatalf("stop took %s", took)
		}
		if out.Reason != ReasonStopped {
			t.Fatalf("expected reason %q, got %q", ReasonStopped, out.Reason)
		}
	case <-time.After(time.Second):
		t.Fatalf("acquisition did not stop")
	}
	if acq.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", acq.State())
	}
	if !log.isClosed() {
		t.Fatalf("expected record log closed")
	}
	if k := events.kinds(); len(k) != 1 || k[0] != domain.EventStopped {
		t.Fatalf("expected a single stopped event, got %v", k)
	}
}

func TestAcquisitionTransportFault(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := ports.NewMockTransport(ctrl)
	gomock.InOrder(
		tr.EXPECT().ReadLine().Return([]byte("$TDS$ = 100"), nil),
		tr.EXPECT().ReadLine().Return(nil, errors.New("device unplugged")),
	)
	tr.EXPECT().Close().Return(nil).Times(1)

	log := &fakeLog{}
	events := &eventLog{}
	acq := NewAcquisition(Deps{SessionID: "s2", Transport: tr, Log: log, Buffer: series.NewBuffer(0), Notifier: events})

	out := acq.Run(context.Background())

	if !errors.Is(out.Err, domain.ErrTransportFault) {
		t.Fatalf("expected ErrTransportFault, got %v", out.Err)
	}
	if out.Samples != 1 {
		t.Fatalf("expected 1 sample, got %d", out.Samples)
	}
	if !log.isClosed() {
		t.Fatalf("expected record log closed")
	}
	all := events.all()
	if len(all) != 1 || all[0].Kind != domain.EventFault || all[0].SessionID != "s2" {
		t.Fatalf("expected one fault event for s2, got %+v", all)
	}
}

func TestAcquisitionPersistsBeforeClosingAndNotifies(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := ports.NewMockTransport(ctrl)
	gomock.InOrder(
		tr.EXPECT().ReadLine().Return([]byte("$Temp$ = 21.5C"), nil),
		tr.EXPECT().ReadLine().Return(nil, errors.New("read /dev/ttyUSB0: input/output error")),
	)
	tr.EXPECT().Close().Return(nil).Times(1)

	log := ports.NewMockRecordLog(ctrl)
	notifier := ports.NewMockNotifier(ctrl)
	log.EXPECT().Location().Return("memory").AnyTimes()

	var appended *domain.Sample
	var fault domain.Event
	gomock.InOrder(
		log.EXPECT().Append(gomock.Any()).DoAndReturn(func(s *domain.Sample) error {
			appended = s
			return nil
		}),
		log.EXPECT().Close().Return(nil),
		notifier.EXPECT().Notify(gomock.Any()).Do(func(ev domain.Event) { fault = ev }),
	)

	acq := NewAcquisition(Deps{SessionID: "s3", Transport: tr, Log: log, Buffer: series.NewBuffer(0), Notifier: notifier})
	out := acq.Run(context.Background())

	if !errors.Is(out.Err, domain.ErrTransportFault) || out.Samples != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if appended == nil || appended.Seq != 1 || appended.Values[domain.MetricTemperature] != 21.5 {
		t.Fatalf("unexpected appended sample %+v", appended)
	}
	if fault.Kind != domain.EventFault || fault.SessionID != "s3" || !strings.Contains(fault.Reason, "input/output error") {
		t.Fatalf("unexpected fault event %+v", fault)
	}
}

func TestAcquisitionPersistenceFailureEndsSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := ports.NewMockTransport(ctrl)
	tr.EXPECT().ReadLine().Return([]byte("$Voltage$ = 1.0"), nil).AnyTimes()
	tr.EXPECT().Close().Return(nil).Times(1)

	log := &fakeLog{failAfter: 2}
	events := &eventLog{}
	obs := newCountingObs()
	acq := NewAcquisition(Deps{Transport: tr, Log: log, Buffer: series.NewBuffer(0), Obs: obs, Notifier: events})

	out := acq.Run(context.Background())

	if !errors.Is(out.Err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", out.Err)
	}
	if out.Samples != 2 {
		t.Fatalf("expected 2 samples, got %d", out.Samples)
	}
	if k := events.kinds(); len(k) != 1 || k[0] != domain.EventFault {
		t.Fatalf("expected a single fault event, got %v", k)
	}
	if v := obs.counter("telem_samples_accepted_total"); v != 2 {
		t.Fatalf("expected 2 accepted samples, got %v", v)
	}
	if len(obs.criticals()) == 0 {
		t.Fatalf("expected a critical log entry")
	}
}

func TestAcquisitionSurvivesPanickingNotifier(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := ports.NewMockTransport(ctrl)
	tr.EXPECT().ReadLine().Return(nil, errors.New("eof")).Times(1)
	tr.EXPECT().Close().Return(nil).Times(1)

	obs := newCountingObs()
	acq := NewAcquisition(Deps{
		Transport: tr,
		Log:       &fakeLog{},
		Buffer:    series.NewBuffer(0),
		Obs:       obs,
		Notifier:  ports.NotifierFunc(func(domain.Event) { panic("display gone") }),
	})

	out := acq.Run(context.Background())

	if !errors.Is(out.Err, domain.ErrTransportFault) {
		t.Fatalf("expected ErrTransportFault, got %v", out.Err)
	}
	if acq.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", acq.State())
	}
	found := false
	for _, msg := range obs.errorMessages() {
		found = found || msg == "notifier_panic"
	}
	if !found {
		t.Fatalf("expected notifier_panic to be logged, got %v", obs.errorMessages())
	}
}

func TestAcquisitionRunsOnce(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	first := h.acq.Run(ctx)
	second := h.acq.Run(ctx)

	if first.Err != nil {
		t.Fatalf("first run: %v", first.Err)
	}
	if second.Err == nil {
		t.Fatalf("expected second run to be rejected")
	}
	if n := h.tr.closes(); n != 1 {
		t.Fatalf("expected transport closed once, got %d", n)
	}
	if n := len(h.events.all()); n != 1 {
		t.Fatalf("expected one event, got %d", n)
	}
}

func TestAcquisitionMirrorFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, "$Voltage$ = 2.0", "$Voltage$ = 2.1")
	h.acq.deps.Mirror = &failingMirror{}

	out := h.runUntilSamples(t, 2)

	if out.Err != nil {
		t.Fatalf("mirror failure must not end the session: %v", out.Err)
	}
	if v := h.obs.counter("telem_mirror_failures_total"); v != 2 {
		t.Fatalf("expected 2 mirror failures, got %v", v)
	}
}

// harness

type harness struct {
	acq    *Acquisition
	tr     *scriptedTransport
	log    *fakeLog
	buf    *series.Buffer
	obs    *countingObs
	events *eventLog

	mu      sync.Mutex
	redrawN int
}

func newHarness(t *testing.T, lines ...string) *harness {
	t.Helper()
	h := &harness{
		tr:     &scriptedTransport{lines: lines},
		log:    &fakeLog{},
		buf:    series.NewBuffer(0),
		obs:    newCountingObs(),
		events: &eventLog{},
	}
	h.acq = NewAcquisition(Deps{
		SessionID: "test",
		Transport: h.tr,
		Log:       h.log,
		Buffer:    h.buf,
		Obs:       h.obs,
		Notifier:  h.events,
		Redraw: func() {
			h.mu.Lock()
			h.redrawN++
			h.mu.Unlock()
		},
	})
	return h
}

func (h *harness) runUntilSamples(t *testing.T, n uint64) Outcome {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan Outcome, 1)
	go func() { done <- h.acq.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for h.acq.Samples() < n && h.tr.remaining() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d samples, got %d", n, h.acq.Samples())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case out := <-done:
		return out
	case <-time.After(2 * time.Second):
		t.Fatalf("acquisition did not stop")
		return Outcome{}
	}
}

func (h *harness) redraws() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.redrawN
}

type scriptedTransport struct {
	mu     sync.Mutex
	lines  []string
	closeN int
}

func (s *scriptedTransport) ReadLine() ([]byte, error) {
	s.mu.Lock()
	if len(s.lines) == 0 {
		s.mu.Unlock()
		time.Sleep(time.Millisecond)
		return nil, ports.ErrReadTimeout
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	s.mu.Unlock()
	return []byte(line), nil
}

func (s *scriptedTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeN++
	return nil
}

func (s *scriptedTransport) remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

func (s *scriptedTransport) closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeN
}

type fakeLog struct {
	mu        sync.Mutex
	samples   []*domain.Sample
	failAfter int
	closed    bool
}

func (f *fakeLog) Append(s *domain.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && len(f.samples) >= f.failAfter {
		return errors.New("disk full")
	}
	f.samples = append(f.samples, s)
	return nil
}

func (f *fakeLog) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeLog) Rows() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

func (f *fakeLog) Location() string { return "memory" }

func (f *fakeLog) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (e *eventLog) Notify(ev domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) all() []domain.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Event(nil), e.events...)
}

func (e *eventLog) kinds() []domain.EventKind {
	var out []domain.EventKind
	for _, ev := range e.all() {
		out = append(out, ev.Kind)
	}
	return out
}

type failingMirror struct{}

func (failingMirror) Publish(*domain.Sample) error { return errors.New("broker offline") }
func (failingMirror) Name() string                 { return "failing" }
func (failingMirror) Close() error                 { return nil }

type countingObs struct {
	mu       sync.Mutex
	counters map[string]float64
	errs     []string
	crit     []error
}

func newCountingObs() *countingObs {
	return &countingObs{counters: map[string]float64{}}
}

func (o *countingObs) LogDebug(string, ...ports.Field) {}
func (o *countingObs) LogInfo(string, ...ports.Field)  {}

func (o *countingObs) LogError(msg string, _ error, _ ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, msg)
}

func (o *countingObs) LogCritical(_ string, err error, _ ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.crit = append(o.crit, err)
}

func (o *countingObs) IncCounter(name string, v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counters[name] += v
}

func (o *countingObs) ObserveLatency(string, float64)       {}
func (o *countingObs) SetGauge(string, float64)             {}
func (o *countingObs) RecordAnomaly(string, string, string) {}

func (o *countingObs) counter(name string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counters[name]
}

func (o *countingObs) errorMessages() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.errs...)
}

func (o *countingObs) criticals() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.crit...)
}
