package present

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghalamif/TelemFlow/internal/app/render"
	"github.com/ghalamif/TelemFlow/internal/app/series"
	"github.com/ghalamif/TelemFlow/internal/domain"
)

func TestViewsScaleIndependently(t *testing.T) {
	buf := series.NewBuffer(0)
	buf.Record(domain.MetricVoltage, 0, 3.0)
	buf.Record(domain.MetricVoltage, 1, 4.0)
	buf.Record(domain.MetricTemperature, 0, 20)
	buf.Record(domain.MetricTemperature, 1, 30)

	p, ctx := startPresenter(t, buf, Options{Views: []string{domain.MetricVoltage, domain.MetricTemperature}})

	before := waitImage(t, p, 1)
	if before.Metric != domain.MetricTemperature {
		t.Fatalf("expected view 2 to show temperature, got %s", before.Metric)
	}
	if math.Abs(before.ValueMin-19) > 1e-9 || math.Abs(before.ValueMax-31) > 1e-9 {
		t.Fatalf("expected temperature axis [19, 31], got [%v, %v]", before.ValueMin, before.ValueMax)
	}

	buf.Record(domain.MetricVoltage, 2, 100)
	if err := p.SelectMetric(ctx, 0, domain.MetricVoltage); err != nil {
		t.Fatalf("select: %v", err)
	}

	v0, ok := p.Image(0)
	if !ok {
		t.Fatalf("expected view 1 image")
	}
	if math.Abs(v0.ValueMin-(3.0-9.7)) > 1e-9 || math.Abs(v0.ValueMax-(100+9.7)) > 1e-9 {
		t.Fatalf("unexpected voltage axis [%v, %v]", v0.ValueMin, v0.ValueMax)
	}

	after, ok := p.Image(1)
	if !ok {
		t.Fatalf("expected view 2 image")
	}
	if after.ValueMin != before.ValueMin || after.ValueMax != before.ValueMax {
		t.Fatalf("view 2 axis changed to [%v, %v]", after.ValueMin, after.ValueMax)
	}
	if !after.RenderedAt.Equal(before.RenderedAt) {
		t.Fatalf("selecting view 1 must not repaint view 2")
	}
}

func TestSelectMetricSwitchesOneView(t *testing.T) {
	buf := series.NewBuffer(0)
	buf.Record(domain.MetricTDS, 0, 215)
	p, ctx := startPresenter(t, buf, Options{})

	if err := p.SelectMetric(ctx, 1, domain.MetricTDS); err != nil {
		t.Fatalf("select: %v", err)
	}

	if got := p.Views(); got != [ViewCount]string{domain.MetricVoltage, domain.MetricTDS} {
		t.Fatalf("unexpected views %v", got)
	}
	img, ok := p.Image(1)
	if !ok || img.Metric != domain.MetricTDS || img.Points != 1 {
		t.Fatalf("unexpected view 2 image %+v", img)
	}
}

func TestSelectMetricRejectsBadInput(t *testing.T) {
	p, ctx := startPresenter(t, series.NewBuffer(0), Options{})

	if err := p.SelectMetric(ctx, 2, domain.MetricTDS); !errors.Is(err, ErrInvalidView) {
		t.Fatalf("expected ErrInvalidView, got %v", err)
	}
	if err := p.SelectMetric(ctx, 0, "Pressure"); !errors.Is(err, ErrUnknownMetric) {
		t.Fatalf("expected ErrUnknownMetric, got %v", err)
	}
}

func TestCycleMetric(t *testing.T) {
	p, ctx := startPresenter(t, series.NewBuffer(0), Options{Views: []string{domain.MetricTemperature}})

	next, err := p.CycleMetric(ctx, 0)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if next != domain.MetricVoltage || p.Views()[0] != domain.MetricVoltage {
		t.Fatalf("expected cycle to wrap to voltage, got %s", next)
	}
}

func TestDoFailsWhenLoopIsNotRunning(t *testing.T) {
	p, err := New(series.NewBuffer(0), render.NewRenderer(render.Config{}), nil, Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := p.Do(context.Background(), func() {}); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestRequestRedrawNeverBlocks(t *testing.T) {
	p, err := New(series.NewBuffer(0), render.NewRenderer(render.Config{}), nil, Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	for i := 0; i < 100; i++ {
		p.RequestRedraw()
	}
	if n := len(p.redraw); n != 1 {
		t.Fatalf("expected one pending redraw, got %d", n)
	}
}

func TestRedrawPicksUpNewPoints(t *testing.T) {
	buf := series.NewBuffer(0)
	p, _ := startPresenter(t, buf, Options{Interval: 10 * time.Millisecond})
	waitImage(t, p, 0)

	buf.Record(domain.MetricVoltage, 0, 3.7)
	buf.Record(domain.MetricVoltage, 1, 3.8)
	p.RequestRedraw()

	waitFor(t, func() bool {
		img, ok := p.Image(0)
		return ok && img.Points == 2
	})
}

func TestEventsForceRepaint(t *testing.T) {
	buf := series.NewBuffer(0)
	events := make(chan domain.Event, 1)
	p, err := New(buf, render.NewRenderer(render.Config{Width: 200, Height: 120}), nil, Options{Interval: time.Hour})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go p.Run(ctx, events)
	waitImage(t, p, 0)

	buf.Record(domain.MetricVoltage, 0, 1)
	events <- domain.Event{Kind: domain.EventStopped, SessionID: "s"}

	waitFor(t, func() bool {
		img, _ := p.Image(0)
		return img.Points == 1 && p.LastEvent().Kind == domain.EventStopped
	})
}

func TestWritesImagesToOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "charts")
	p, _ := startPresenter(t, series.NewBuffer(0), Options{OutputDir: dir})
	waitImage(t, p, 1)

	for _, name := range []string{"view1.png", "view2.png"} {
		path := filepath.Join(dir, name)
		waitFor(t, func() bool {
			info, err := os.Stat(path)
			return err == nil && info.Size() > 0
		})
	}
}

func TestNewRejectsUnknownViewMetric(t *testing.T) {
	_, err := New(series.NewBuffer(0), render.NewRenderer(render.Config{}), nil, Options{Views: []string{"Humidity"}})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func startPresenter(t *testing.T, buf *series.Buffer, opts Options) (*Presenter, context.Context) {
	t.Helper()
	p, err := New(buf, render.NewRenderer(render.Config{Width: 200, Height: 120}), nil, opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx, nil)
	t.Cleanup(func() {
		cancel()
		<-p.Done()
	})

	waitFor(t, func() bool {
		p.mu.RLock()
		defer p.mu.RUnlock()
		return p.running
	})
	return p, ctx
}

func waitImage(t *testing.T, p *Presenter, view int) Image {
	t.Helper()
	var img Image
	waitFor(t, func() bool {
		var ok bool
		img, ok = p.Image(view)
		return ok
	})
	return img
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
