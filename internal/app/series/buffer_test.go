package series

import (
	"sync"
	"testing"
)

func TestBufferRecordSnapshotOrder(t *testing.T) {
	b := NewBuffer(0)

	b.Record("Voltage", 0.5, 3.6)
	b.Record("Voltage", 1.0, 3.7)
	b.Record("TDS", 1.0, 215)

	v := b.Snapshot("Voltage")
	if len(v) != 2 || v[0].Value != 3.6 || v[1].Value != 3.7 {
		t.Fatalf("unexpected voltage series: %+v", v)
	}
	if got := b.Len("TDS"); got != 1 {
		t.Fatalf("expected ragged TDS series of length 1, got %d", got)
	}
	if got := b.Snapshot("Temperature"); len(got) != 0 {
		t.Fatalf("expected empty series for unseen metric, got %+v", got)
	}
	if got := b.Total(); got != 3 {
		t.Fatalf("expected 3 points in total, got %d", got)
	}
}

func TestBufferSnapshotIsACopy(t *testing.T) {
	b := NewBuffer(0)
	b.Record("TDS", 1, 100)

	snap := b.Snapshot("TDS")
	snap[0].Value = -1

	if got := b.Snapshot("TDS")[0].Value; got != 100 {
		t.Fatalf("snapshot mutation leaked into buffer, got %v", got)
	}
}

func TestBufferBounds(t *testing.T) {
	b := NewBuffer(0)
	if _, ok := b.Bounds("Voltage"); ok {
		t.Fatalf("expected bounds of empty series to be undefined")
	}

	b.Record("Voltage", 1, 3.7)
	b.Record("Voltage", 2, 3.1)
	b.Record("Voltage", 4, 3.9)

	bd, ok := b.Bounds("Voltage")
	if !ok {
		t.Fatalf("expected bounds")
	}
	want := Bounds{MinValue: 3.1, MaxValue: 3.9, MinElapsed: 1, MaxElapsed: 4}
	if bd != want {
		t.Fatalf("expected %+v, got %+v", want, bd)
	}
}

func TestBufferCapacityDropsOldest(t *testing.T) {
	b := NewBuffer(3)
	for i := 0; i < 5; i++ {
		b.Record("TDS", float64(i), float64(i*10))
	}

	pts := b.Snapshot("TDS")
	if len(pts) != 3 || pts[0].Elapsed != 2 || pts[2].Elapsed != 4 {
		t.Fatalf("unexpected capped series: %+v", pts)
	}
}

func TestBufferResetAndMetrics(t *testing.T) {
	b := NewBuffer(0)
	b.Record("Voltage", 0, 1)
	b.Record("TDS", 0, 1)

	if got := b.Metrics(); len(got) != 2 || got[0] != "TDS" || got[1] != "Voltage" {
		t.Fatalf("unexpected metrics: %v", got)
	}

	b.Reset()
	if got := b.Metrics(); len(got) != 0 {
		t.Fatalf("expected no metrics after reset, got %v", got)
	}
}

func TestBufferConcurrentSnapshotsStayOrdered(t *testing.T) {
	b := NewBuffer(0)
	const n = 2000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			b.Record("Voltage", float64(i)/10, float64(i))
		}
	}()

	errs := make(chan string, 4)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				pts := b.Snapshot("Voltage")
				for j := 1; j < len(pts); j++ {
					if pts[j].Elapsed < pts[j-1].Elapsed {
						errs <- "elapsed went backwards"
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Fatal(e)
	}
	if got := b.Len("Voltage"); got != n {
		t.Fatalf("expected %d points, got %d", n, got)
	}
}
