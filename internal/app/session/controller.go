// Package session owns the lifecycle of acquisition sessions: it opens the
// device and the record log, runs one acquisition at a time, and stops it
// within a bounded time.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/TelemFlow/internal/app/pipeline"
	"github.com/ghalamif/TelemFlow/internal/app/series"
	"github.com/ghalamif/TelemFlow/internal/domain"
	"github.com/ghalamif/TelemFlow/internal/ports"
)

const defaultStopTimeout = 2 * time.Second

// Session is one connection plus one record log plus one buffer generation.
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	RecordLog string    `json:"record_log"`

	acq  *pipeline.Acquisition
	done chan struct{}

	mu      sync.Mutex
	outcome pipeline.Outcome
}

func (s *Session) State() pipeline.State { return s.acq.State() }

func (s *Session) Samples() uint64 { return s.acq.Samples() }

// Done is closed once the acquisition has fully drained.
func (s *Session) Done() <-chan struct{} { return s.done }

// Outcome is meaningful after Done is closed.
func (s *Session) Outcome() pipeline.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Options wires a Controller. Both openers are required.
type Options struct {
	OpenTransport ports.TransportOpener
	OpenLog       ports.RecordLogOpener
	Buffer        *series.Buffer
	Policy        ports.Policy
	Obs           ports.Observability
	Mirror        ports.Mirror
	Notifier      ports.Notifier
	Redraw        func()
	Now           func() time.Time
}

// Controller runs at most one session at a time.
type Controller struct {
	opts Options

	mu      sync.Mutex
	current *Session
	cancel  context.CancelFunc
}

// NewController defaults the buffer, clock and stop timeout.
func NewController(opts Options) (*Controller, error) {
	if opts.OpenTransport == nil {
		return nil, fmt.Errorf("%w: session: transport opener is required", domain.ErrConfiguration)
	}
	if opts.OpenLog == nil {
		return nil, fmt.Errorf("%w: session: record log opener is required", domain.ErrConfiguration)
	}
	if opts.Buffer == nil {
		opts.Buffer = series.NewBuffer(opts.Policy.SeriesCapacity)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Policy.StopTimeout <= 0 {
		opts.Policy.StopTimeout = defaultStopTimeout
	}
	return &Controller{opts: opts}, nil
}

// Start opens a new session unless one is already running, in which case the
// running session is returned. Open failures leave the controller idle.
// The started event is delivered on the caller's goroutine after the
// controller lock is released, so listeners may query the controller.
func (c *Controller) Start(ctx context.Context) (*Session, error) {
	s, runCtx, cancel, err := c.open(ctx)
	if err != nil || runCtx == nil {
		return s, err
	}

	c.notify(domain.Event{Kind: domain.EventStarted, SessionID: s.ID, At: s.StartedAt})

	go func() {
		defer cancel()
		out := s.acq.Run(runCtx)
		s.mu.Lock()
		s.outcome = out
		s.mu.Unlock()
		close(s.done)
	}()
	return s, nil
}

// open creates the session under the lock. The returned context is nil when
// an already running session is returned instead.
func (c *Controller) open(ctx context.Context) (*Session, context.Context, context.CancelFunc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.current.State() < pipeline.StateStopped {
		return c.current, nil, nil, nil
	}

	id := uuid.NewString()
	start := c.opts.Now()

	tr, err := c.opts.OpenTransport()
	if err != nil {
		return nil, nil, nil, wrapConfig("open transport", err)
	}
	log, err := c.opts.OpenLog(id, start)
	if err != nil {
		if cerr := tr.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, nil, nil, wrapConfig("open record log", err)
	}

	c.opts.Buffer.Reset()

	acq := pipeline.NewAcquisition(pipeline.Deps{
		SessionID: id,
		Start:     start,
		Transport: tr,
		Log:       log,
		Buffer:    c.opts.Buffer,
		Obs:       c.opts.Obs,
		Mirror:    c.opts.Mirror,
		Notifier:  c.opts.Notifier,
		Redraw:    c.opts.Redraw,
		Now:       c.opts.Now,
	})
	s := &Session{
		ID:        id,
		StartedAt: start,
		RecordLog: log.Location(),
		acq:       acq,
		done:      make(chan struct{}),
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.current = s
	c.cancel = cancel
	return s, runCtx, cancel, nil
}

// notify delivers ev without letting a panicking listener escape Start.
func (c *Controller) notify(ev domain.Event) {
	if c.opts.Notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && c.opts.Obs != nil {
			c.opts.Obs.LogError("notifier_panic", fmt.Errorf("%v", r),
				ports.Field{Key: "event", Value: string(ev.Kind)},
				ports.Field{Key: "session", Value: ev.SessionID})
		}
	}()
	c.opts.Notifier.Notify(ev)
}

func wrapConfig(op string, err error) error {
	if errors.Is(err, domain.ErrConfiguration) {
		return fmt.Errorf("session: %s: %w", op, err)
	}
	return fmt.Errorf("%w: session: %s: %w", domain.ErrConfiguration, op, err)
}

// Stop cancels the running session and waits for it to drain, bounded by the
// policy stop timeout and ctx. It is a no-op when nothing is running.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	s, cancel := c.current, c.cancel
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	cancel()

	timer := time.NewTimer(c.opts.Policy.StopTimeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: session %s after %s", domain.ErrStopTimeout, s.ID, c.opts.Policy.StopTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: session %s: %w", domain.ErrStopTimeout, s.ID, ctx.Err())
	}
}

// State reports the state of the latest session, or idle if none ran.
func (c *Controller) State() pipeline.State {
	if s := c.Current(); s != nil {
		return s.State()
	}
	return pipeline.StateIdle
}

// Current returns the latest session, which may already be stopped.
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) Buffer() *series.Buffer { return c.opts.Buffer }

// Wait blocks until the latest session drains or ctx ends.
func (c *Controller) Wait(ctx context.Context) (pipeline.Outcome, error) {
	s := c.Current()
	if s == nil {
		return pipeline.Outcome{}, nil
	}
	select {
	case <-s.done:
		return s.Outcome(), nil
	case <-ctx.Done():
		return pipeline.Outcome{}, ctx.Err()
	}
}
