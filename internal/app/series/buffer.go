// Package series holds the per-metric (elapsed, value) sequences of the
// running session, shared by the acquisition and presentation goroutines.
package series

import (
	"sort"
	"sync"
)

// Point is one recorded reading, elapsed seconds since session start.
type Point struct {
	Elapsed float64 `json:"elapsed"`
	Value   float64 `json:"value"`
}

// Bounds are the observed extents of one metric's series.
type Bounds struct {
	MinValue   float64
	MaxValue   float64
	MinElapsed float64
	MaxElapsed float64
}

// Buffer keeps one ordered series per metric. Series lengths differ whenever
// metrics arrive at different rates, so each series carries its own elapsed
// values and is never indexed against another.
type Buffer struct {
	mu     sync.RWMutex
	series map[string][]Point
	cap    int
}

// NewBuffer returns a buffer that keeps at most capacity points per metric,
// dropping the oldest; capacity <= 0 keeps everything.
func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{
		series: make(map[string][]Point),
		cap:    capacity,
	}
}

// Record appends to metric's series. Callers record with the current elapsed
// time so each series stays non-decreasing.
func (b *Buffer) Record(metric string, elapsed, value float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pts := append(b.series[metric], Point{Elapsed: elapsed, Value: value})
	if b.cap > 0 && len(pts) > b.cap {
		pts = append(pts[:0], pts[len(pts)-b.cap:]...)
	}
	b.series[metric] = pts
}

// Snapshot returns a copy of metric's series.
func (b *Buffer) Snapshot(metric string) []Point {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pts := b.series[metric]
	out := make([]Point, len(pts))
	copy(out, pts)
	return out
}

// Bounds reports the extents of metric's series; ok is false when it is empty.
func (b *Buffer) Bounds(metric string) (Bounds, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return boundsOf(b.series[metric])
}

// Len returns the number of points recorded for metric.
func (b *Buffer) Len(metric string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.series[metric])
}

// Total returns the number of points across all metrics.
func (b *Buffer) Total() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, pts := range b.series {
		n += len(pts)
	}
	return n
}

// Metrics lists metrics with at least one point, sorted.
func (b *Buffer) Metrics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.series))
	for m, pts := range b.series {
		if len(pts) > 0 {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// Reset drops every series for a new session.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.series = make(map[string][]Point)
}

// BoundsOf computes the extents of an already copied series.
func BoundsOf(pts []Point) (Bounds, bool) {
	return boundsOf(pts)
}

func boundsOf(pts []Point) (Bounds, bool) {
	if len(pts) == 0 {
		return Bounds{}, false
	}
	bd := Bounds{
		MinValue:   pts[0].Value,
		MaxValue:   pts[0].Value,
		MinElapsed: pts[0].Elapsed,
		MaxElapsed: pts[0].Elapsed,
	}
	for _, p := range pts[1:] {
		if p.Value < bd.MinValue {
			bd.MinValue = p.Value
		}
		if p.Value > bd.MaxValue {
			bd.MaxValue = p.Value
		}
		if p.Elapsed < bd.MinElapsed {
			bd.MinElapsed = p.Elapsed
		}
		if p.Elapsed > bd.MaxElapsed {
			bd.MaxElapsed = p.Elapsed
		}
	}
	return bd, true
}
