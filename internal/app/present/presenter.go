// Package present runs the single presentation loop that turns the series
// buffer into chart images for each view.
package present

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ghalamif/TelemFlow/internal/app/render"
	"github.com/ghalamif/TelemFlow/internal/app/series"
	"github.com/ghalamif/TelemFlow/internal/domain"
	"github.com/ghalamif/TelemFlow/internal/ports"
)

// ViewCount is the number of independent chart views.
const ViewCount = 2

var (
	ErrInvalidView   = errors.New("present: invalid view")
	ErrUnknownMetric = errors.New("present: unknown metric")
	ErrNotRunning    = errors.New("present: loop not running")
)

// Image is the last rendering of one view.
type Image struct {
	View        int       `json:"view"`
	Metric      string    `json:"metric"`
	ContentType string    `json:"content_type"`
	Points      int       `json:"points"`
	ValueMin    float64   `json:"value_min"`
	ValueMax    float64   `json:"value_max"`
	RenderedAt  time.Time `json:"rendered_at"`
	Data        []byte    `json:"-"`
}

// Options configures the views and how often they may be redrawn.
type Options struct {
	Views     []string
	Interval  time.Duration
	Burst     int
	OutputDir string
}

// Presenter owns the chart views. All rendering happens on the goroutine
// running Run.
type Presenter struct {
	buf *series.Buffer
	r   *render.Renderer
	obs ports.Observability

	limiter   *rate.Limiter
	interval  time.Duration
	outputDir string

	redraw chan struct{}
	cmds   chan func()
	done   chan struct{}
	dirty  bool

	mu      sync.RWMutex
	views   [ViewCount]string
	images  [ViewCount]Image
	last    domain.Event
	running bool
}

// New validates the view selection and prepares the output directory.
func New(buf *series.Buffer, r *render.Renderer, obs ports.Observability, opts Options) (*Presenter, error) {
	if opts.Interval <= 0 {
		opts.Interval = 200 * time.Millisecond
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	p := &Presenter{
		buf:       buf,
		r:         r,
		obs:       obs,
		limiter:   rate.NewLimiter(rate.Every(opts.Interval), opts.Burst),
		interval:  opts.Interval,
		outputDir: opts.OutputDir,
		redraw:    make(chan struct{}, 1),
		cmds:      make(chan func()),
		done:      make(chan struct{}),
	}

	defaults := [ViewCount]string{domain.MetricVoltage, domain.MetricTemperature}
	for i := range p.views {
		p.views[i] = defaults[i]
		if i < len(opts.Views) && opts.Views[i] != "" {
			if !domain.IsKnownMetric(opts.Views[i]) {
				return nil, fmt.Errorf("%w: %w: view %d: %q", domain.ErrConfiguration, ErrUnknownMetric, i+1, opts.Views[i])
			}
			p.views[i] = opts.Views[i]
		}
	}
	if p.outputDir != "" {
		if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: chart output dir: %w", domain.ErrConfiguration, err)
		}
	}
	return p, nil
}

// RequestRedraw marks the charts stale. It never blocks; requests made while
// one is pending are coalesced.
func (p *Presenter) RequestRedraw() {
	select {
	case p.redraw <- struct{}{}:
	default:
	}
}

// Run owns all rendering until ctx ends and must be called once. Events, when
// non-nil, feed the status line and force a repaint on session boundaries.
func (p *Presenter) Run(ctx context.Context, events <-chan domain.Event) {
	p.mu.Lock()
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		close(p.done)
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.renderAll()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-p.cmds:
			fn()
		case <-p.redraw:
			p.dirty = true
			p.flush()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			p.mu.Lock()
			p.last = ev
			p.mu.Unlock()
			// session boundaries bypass the limiter so the final state is always shown
			p.renderAll()
		case <-ticker.C:
			if p.dirty {
				p.flush()
			}
		}
	}
}

// Done is closed when Run returns.
func (p *Presenter) Done() <-chan struct{} { return p.done }

// Do runs fn on the presentation loop and waits for it to finish.
func (p *Presenter) Do(ctx context.Context, fn func()) error {
	p.mu.RLock()
	running := p.running
	p.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}

	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}
	select {
	case p.cmds <- cmd:
	case <-p.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SelectMetric switches view (0-based) to metric and repaints that view only.
func (p *Presenter) SelectMetric(ctx context.Context, view int, metric string) error {
	if view < 0 || view >= ViewCount {
		return fmt.Errorf("%w: %d", ErrInvalidView, view)
	}
	if !domain.IsKnownMetric(metric) {
		return fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	return p.Do(ctx, func() {
		p.mu.Lock()
		p.views[view] = metric
		p.mu.Unlock()
		p.renderView(view)
	})
}

// CycleMetric moves view to the next metric in data model order.
func (p *Presenter) CycleMetric(ctx context.Context, view int) (string, error) {
	if view < 0 || view >= ViewCount {
		return "", fmt.Errorf("%w: %d", ErrInvalidView, view)
	}
	next := nextMetric(p.Views()[view])
	return next, p.SelectMetric(ctx, view, next)
}

func nextMetric(cur string) string {
	for i, m := range domain.Metrics {
		if m == cur {
			return domain.Metrics[(i+1)%len(domain.Metrics)]
		}
	}
	return domain.Metrics[0]
}

func (p *Presenter) Views() [ViewCount]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.views
}

// Image returns the latest rendering of view, if any.
func (p *Presenter) Image(view int) (Image, bool) {
	if view < 0 || view >= ViewCount {
		return Image{}, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	img := p.images[view]
	return img, img.Data != nil
}

// LastEvent returns the most recent session event seen by the loop.
func (p *Presenter) LastEvent() domain.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

func (p *Presenter) flush() {
	if !p.limiter.Allow() {
		return
	}
	p.renderAll()
}

func (p *Presenter) renderAll() {
	for i := 0; i < ViewCount; i++ {
		p.renderView(i)
	}
	p.dirty = false
}

func (p *Presenter) renderView(view int) {
	p.mu.RLock()
	metric := p.views[view]
	p.mu.RUnlock()

	pts := p.buf.Snapshot(metric)
	var buf bytes.Buffer
	if err := p.r.Render(&buf, metric, pts); err != nil {
		p.logError("chart_render_failed", err, view, metric)
		return
	}

	img := Image{
		View:        view,
		Metric:      metric,
		ContentType: p.r.ContentType(),
		Points:      len(pts),
		RenderedAt:  time.Now(),
		Data:        buf.Bytes(),
	}
	if b, ok := series.BoundsOf(pts); ok {
		img.ValueMin, img.ValueMax = render.ValueRange(b)
	}

	p.mu.Lock()
	p.images[view] = img
	p.mu.Unlock()

	if p.obs != nil {
		p.obs.IncCounter("telem_redraws_total", 1)
	}
	if p.outputDir != "" {
		if err := p.writeFile(img); err != nil {
			p.logError("chart_write_failed", err, view, metric)
		}
	}
}

func (p *Presenter) writeFile(img Image) error {
	ext := "png"
	if img.ContentType == "image/svg+xml" {
		ext = "svg"
	}
	path := filepath.Join(p.outputDir, fmt.Sprintf("view%d.%s", img.View+1, ext))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, img.Data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (p *Presenter) logError(msg string, err error, view int, metric string) {
	if p.obs == nil {
		return
	}
	p.obs.LogError(msg, err,
		ports.Field{Key: "view", Value: view + 1},
		ports.Field{Key: "metric", Value: metric})
}
