package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghalamif/TelemFlow/internal/app/frame"
	"github.com/ghalamif/TelemFlow/internal/app/series"
	"github.com/ghalamif/TelemFlow/internal/domain"
	"github.com/ghalamif/TelemFlow/internal/ports"
)

// State of an acquisition run. Transitions only move forward.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ReasonStopped is the outcome reason of a run ended by cancellation.
const ReasonStopped = "stopped"

var errAlreadyRun = errors.New("pipeline: acquisition already run")

// Deps wires an Acquisition to the session it belongs to. Mirror, Notifier
// and Redraw are optional.
type Deps struct {
	SessionID string
	Start     time.Time

	Transport ports.Transport
	Log       ports.RecordLog
	Buffer    *series.Buffer
	Obs       ports.Observability
	Mirror    ports.Mirror
	Notifier  ports.Notifier

	// Redraw asks the presentation loop for a repaint. It must not block.
	Redraw func()
	// Now defaults to time.Now.
	Now func() time.Time
}

// Outcome describes how a run ended. Err is nil when Reason is ReasonStopped.
type Outcome struct {
	Reason  string
	Err     error
	Samples uint64
}

// Acquisition reads frames from one transport until cancelled or faulted.
type Acquisition struct {
	deps Deps

	state       atomic.Int32
	samples     atomic.Uint64
	lastElapsed float64
	closeOnce   sync.Once
	closeErr    error
}

// NewAcquisition prepares a run over d.Transport. Obs and Now default to a
// no-op and time.Now.
func NewAcquisition(d Deps) *Acquisition {
	if d.Obs == nil {
		d.Obs = nopObs{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Start.IsZero() {
		d.Start = d.Now()
	}
	return &Acquisition{deps: d}
}

func (a *Acquisition) State() State { return State(a.state.Load()) }

// Samples returns the number of samples committed so far.
func (a *Acquisition) Samples() uint64 { return a.samples.Load() }

// Run blocks until ctx is cancelled, the transport faults, or the record log
// rejects a row. The transport and the record log are closed before Run
// returns, and exactly one stopped or fault event is emitted.
func (a *Acquisition) Run(ctx context.Context) Outcome {
	if !a.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return Outcome{Reason: errAlreadyRun.Error(), Err: errAlreadyRun, Samples: a.Samples()}
	}
	a.deps.Obs.SetGauge("telem_session_running", 1)
	a.deps.Obs.LogInfo("acquisition_started",
		ports.Field{Key: "session", Value: a.deps.SessionID},
		ports.Field{Key: "record_log", Value: a.deps.Log.Location()})

	return a.drain(a.loop(ctx))
}

func (a *Acquisition) loop(ctx context.Context) Outcome {
	for {
		if ctx.Err() != nil {
			return Outcome{Reason: ReasonStopped}
		}

		line, err := a.deps.Transport.ReadLine()
		if err != nil {
			if errors.Is(err, ports.ErrReadTimeout) {
				continue
			}
			if ctx.Err() != nil {
				return Outcome{Reason: ReasonStopped}
			}
			return fault(fmt.Errorf("%w: read: %w", domain.ErrTransportFault, err))
		}

		if err := a.accept(line); err != nil {
			return fault(err)
		}
	}
}

func fault(err error) Outcome {
	return Outcome{Reason: err.Error(), Err: err}
}

func (a *Acquisition) accept(line []byte) error {
	obs := a.deps.Obs
	obs.IncCounter("telem_frames_read_total", 1)
	obs.LogDebug("raw_frame", ports.Field{Key: "line", Value: string(line)})

	res := frame.Parse(string(line))
	for _, an := range res.Anomalies {
		obs.RecordAnomaly(an.Metric, an.Reason, an.Token)
	}
	if res.Empty() {
		obs.IncCounter("telem_frames_discarded_total", 1)
		return nil
	}

	now := a.deps.Now()
	elapsed := now.Sub(a.deps.Start).Seconds()
	if elapsed < a.lastElapsed {
		elapsed = a.lastElapsed
	}
	a.lastElapsed = elapsed

	s := &domain.Sample{
		Seq:       a.samples.Load() + 1,
		Timestamp: now.Truncate(time.Second),
		Values:    res.Values,
	}

	for _, m := range domain.Metrics {
		if v, ok := s.Values[m]; ok {
			a.deps.Buffer.Record(m, elapsed, v)
		}
	}

	began := time.Now()
	if err := a.deps.Log.Append(s); err != nil {
		if !errors.Is(err, domain.ErrPersistence) {
			err = fmt.Errorf("%w: append seq %d: %w", domain.ErrPersistence, s.Seq, err)
		}
		obs.LogCritical("record_append_failed", err, ports.Field{Key: "seq", Value: s.Seq})
		return err
	}
	obs.ObserveLatency("telem_record_append_seconds", time.Since(began).Seconds())
	a.samples.Store(s.Seq)
	obs.IncCounter("telem_samples_accepted_total", 1)
	obs.SetGauge("telem_series_points", float64(a.deps.Buffer.Total()))

	if m := a.deps.Mirror; m != nil {
		if err := m.Publish(s); err != nil {
			obs.IncCounter("telem_mirror_failures_total", 1)
			obs.LogError("mirror_publish_failed", err,
				ports.Field{Key: "mirror", Value: m.Name()},
				ports.Field{Key: "seq", Value: s.Seq})
		}
	}

	if a.deps.Redraw != nil {
		a.deps.Redraw()
	}
	return nil
}

func (a *Acquisition) drain(out Outcome) Outcome {
	a.state.Store(int32(StateDraining))
	out.Samples = a.Samples()

	if err := a.closeTransport(); err != nil {
		a.deps.Obs.LogError("transport_close_failed", err)
	}
	if err := a.deps.Log.Close(); err != nil {
		a.deps.Obs.LogError("record_log_close_failed", err)
	}
	a.deps.Obs.SetGauge("telem_session_running", 0)

	ev := domain.Event{
		Kind:      domain.EventStopped,
		SessionID: a.deps.SessionID,
		Reason:    out.Reason,
		At:        a.deps.Now(),
	}
	if out.Err != nil {
		ev.Kind = domain.EventFault
		a.deps.Obs.LogCritical("acquisition_fault", out.Err,
			ports.Field{Key: "session", Value: a.deps.SessionID},
			ports.Field{Key: "samples", Value: out.Samples})
	} else {
		a.deps.Obs.LogInfo("acquisition_stopped",
			ports.Field{Key: "session", Value: a.deps.SessionID},
			ports.Field{Key: "samples", Value: out.Samples})
	}

	a.state.Store(int32(StateStopped))
	a.notify(ev)
	return out
}

func (a *Acquisition) closeTransport() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.deps.Transport.Close()
	})
	return a.closeErr
}

func (a *Acquisition) notify(ev domain.Event) {
	if a.deps.Notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			a.deps.Obs.LogError("notifier_panic", fmt.Errorf("%v", r),
				ports.Field{Key: "event", Value: string(ev.Kind)})
		}
	}()
	a.deps.Notifier.Notify(ev)
}

type nopObs struct{}

func (nopObs) LogDebug(string, ...ports.Field)           {}
func (nopObs) LogInfo(string, ...ports.Field)            {}
func (nopObs) LogError(string, error, ...ports.Field)    {}
func (nopObs) LogCritical(string, error, ...ports.Field) {}
func (nopObs) IncCounter(string, float64)                {}
func (nopObs) ObserveLatency(string, float64)            {}
func (nopObs) SetGauge(string, float64)                  {}
func (nopObs) RecordAnomaly(string, string, string)      {}
