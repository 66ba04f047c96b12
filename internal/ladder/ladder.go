// Package ladder builds the table of frame-rate tiers the pacer walks.
package ladder

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// NoScaleUp marks the fastest tier: there is nothing above it.
const NoScaleUp = -1

// Bounds for the scale-down backlog thresholds of tiers above the slowest.
const (
	slowestScaleDownAt = 2
	minScaleDownAt     = 3
	maxScaleDownAt     = 5
)

// ErrInvalidLadder is returned when the ladder parameters cannot produce a tier.
var ErrInvalidLadder = errors.New("invalid rate ladder")

// Tier is one frame-rate step. Thresholds are counts of unanswered pull
// requests; ScaleAttemptFrequency is measured in pacer ticks.
type Tier struct {
	FrameInterval         time.Duration
	ScaleAttemptFrequency int
	ScaleDownAt           int
	ScaleUpAt             int
}

// IntervalMillis returns the tier's frame interval in whole milliseconds.
func (t Tier) IntervalMillis() int {
	return int(t.FrameInterval / time.Millisecond)
}

// Build returns n tiers ordered slowest first, with frame rates spaced
// evenly in log space between minFPS and maxFPS.
func Build(minFPS, maxFPS float64, n int) ([]Tier, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: tier count %d", ErrInvalidLadder, n)
	}
	if minFPS <= 0 || maxFPS < minFPS {
		return nil, fmt.Errorf("%w: fps range [%g, %g]", ErrInvalidLadder, minFPS, maxFPS)
	}

	rates := logspace(minFPS, maxFPS, n)
	scaleDown := logspace(minScaleDownAt, maxScaleDownAt, n-1)

	tiers := make([]Tier, n)
	for i, fps := range rates {
		ms := int(math.Round(1000 / fps))
		if ms < 1 {
			ms = 1
		}
		t := Tier{
			FrameInterval:         time.Duration(ms) * time.Millisecond,
			ScaleAttemptFrequency: max(1, roundDiv(2000, ms)),
			ScaleDownAt:           slowestScaleDownAt,
			ScaleUpAt:             roundDiv(200, ms),
		}
		if i > 0 {
			t.ScaleDownAt = int(math.Round(scaleDown[i-1]))
		}
		if i == n-1 {
			t.ScaleUpAt = NoScaleUp
		}
		tiers[i] = t
	}

	for i := 1; i < n; i++ {
		if tiers[i].FrameInterval >= tiers[i-1].FrameInterval {
			return nil, fmt.Errorf("%w: fps range [%g, %g] too narrow for %d tiers", ErrInvalidLadder, minFPS, maxFPS, n)
		}
	}
	return tiers, nil
}

// StartIndex is the tier a fresh pacer begins at: second slowest, or the
// only tier of a single-tier ladder.
func StartIndex(tiers []Tier) int {
	return min(1, len(tiers)-1)
}

// logspace returns count points evenly spaced between log(lo) and log(hi),
// mapped back to linear space. Both endpoints are included. A single point
// is lo; zero points is an empty slice.
func logspace(lo, hi float64, count int) []float64 {
	switch {
	case count <= 0:
		return []float64{}
	case count == 1:
		return []float64{lo}
	}
	a, b := math.Log(lo), math.Log(hi)
	steps := float64(count - 1)
	out := make([]float64, count)
	for i := range out {
		f := float64(i)
		out[i] = math.Exp((f*b + (steps-f)*a) / steps)
	}
	return out
}

func roundDiv(num, den int) int {
	return int(math.Round(float64(num) / float64(den)))
}
