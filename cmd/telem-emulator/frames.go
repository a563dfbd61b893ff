package main

import (
	"fmt"
	"math/rand"
	"strings"
)

// walker produces a bounded random walk per metric, roughly what a bench
// supply and a water quality sensor look like over a few minutes.
type walker struct {
	rng     *rand.Rand
	voltage float64
	tds     float64
	temp    float64
}

func newWalker(seed int64) *walker {
	return &walker{
		rng:     rand.New(rand.NewSource(seed)),
		voltage: 3.3,
		tds:     300,
		temp:    24.0,
	}
}

func (w *walker) step(v, lo, hi, jitter float64) float64 {
	v += (w.rng.Float64()*2 - 1) * jitter
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}

// next returns one complete frame without line terminator.
func (w *walker) next() string {
	w.voltage = w.step(w.voltage, 0, 5, 0.05)
	w.tds = w.step(w.tds, 0, 1000, 4)
	w.temp = w.step(w.temp, 10, 40, 0.1)
	return fmt.Sprintf("$Voltage$ = %.2fV $TDS$ = %.0f $Temp$ = %.1fC",
		w.voltage, w.tds, w.temp)
}

// garble corrupts a frame the ways a noisy UART does: boot chatter, a frame
// cut short, or a value that is not a number.
func (w *walker) garble(frame string) string {
	switch w.rng.Intn(3) {
	case 0:
		return "ets Jun  8 2016 00:22:57 rst:0x1 (POWERON_RESET)"
	case 1:
		return frame[:w.rng.Intn(len(frame))]
	default:
		return strings.Replace(frame, "$TDS$ = ", "$TDS$ = ??", 1)
	}
}
