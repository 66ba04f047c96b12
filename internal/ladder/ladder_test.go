package ladder

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_DefaultLadder(t *testing.T) {
	tiers, err := Build(15, 30, 6)
	require.NoError(t, err)
	require.Len(t, tiers, 6)

	wantMillis := []int{67, 58, 51, 44, 38, 33}
	wantFreq := []int{30, 34, 39, 45, 53, 61}
	wantDown := []int{2, 3, 3, 4, 4, 5}
	wantUp := []int{3, 3, 4, 5, 5, NoScaleUp}

	for i, tier := range tiers {
		assert.Equal(t, wantMillis[i], tier.IntervalMillis(), "tier %d interval", i)
		assert.Equal(t, wantFreq[i], tier.ScaleAttemptFrequency, "tier %d frequency", i)
		assert.Equal(t, wantDown[i], tier.ScaleDownAt, "tier %d scale down", i)
		assert.Equal(t, wantUp[i], tier.ScaleUpAt, "tier %d scale up", i)
	}
}

func TestBuild_MonotonicTiers(t *testing.T) {
	cases := []struct {
		name     string
		min, max float64
		n        int
	}{
		{"two tiers", 10, 20, 2},
		{"default", 15, 30, 6},
		{"wide", 1, 60, 10},
		{"slow", 2, 8, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tiers, err := Build(tc.min, tc.max, tc.n)
			require.NoError(t, err)
			require.Len(t, tiers, tc.n)

			assert.Equal(t, 2, tiers[0].ScaleDownAt)
			assert.Equal(t, NoScaleUp, tiers[tc.n-1].ScaleUpAt)
			for i := 1; i < tc.n; i++ {
				assert.Less(t, tiers[i].FrameInterval, tiers[i-1].FrameInterval, "interval must shrink at tier %d", i)
				assert.GreaterOrEqual(t, tiers[i].ScaleDownAt, tiers[i-1].ScaleDownAt)
				assert.GreaterOrEqual(t, tiers[i].ScaleDownAt, 3)
				assert.LessOrEqual(t, tiers[i].ScaleDownAt, 5)
			}
			for i, tier := range tiers {
				assert.Positive(t, tier.ScaleAttemptFrequency, "tier %d", i)
			}
		})
	}
}

func TestBuild_SingleTier(t *testing.T) {
	tiers, err := Build(15, 30, 1)
	require.NoError(t, err)
	require.Len(t, tiers, 1)

	assert.Equal(t, 67*time.Millisecond, tiers[0].FrameInterval)
	assert.Equal(t, NoScaleUp, tiers[0].ScaleUpAt)
	assert.Equal(t, 2, tiers[0].ScaleDownAt)
	assert.Equal(t, 0, StartIndex(tiers))
}

func TestBuild_Rejects(t *testing.T) {
	cases := []struct {
		name     string
		min, max float64
		n        int
	}{
		{"zero tiers", 15, 30, 0},
		{"zero fps", 0, 30, 6},
		{"inverted", 30, 15, 6},
		{"too narrow", 30, 30.5, 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(tc.min, tc.max, tc.n)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidLadder))
		})
	}
}

func TestStartIndex(t *testing.T) {
	tiers, err := Build(15, 30, 6)
	require.NoError(t, err)
	assert.Equal(t, 1, StartIndex(tiers))
}

func TestLogspace(t *testing.T) {
	assert.Empty(t, logspace(3, 5, 0))
	assert.Equal(t, []float64{3}, logspace(3, 5, 1))

	pts := logspace(3, 5, 5)
	require.Len(t, pts, 5)
	assert.InDelta(t, 3, pts[0], 1e-9)
	assert.InDelta(t, 5, pts[4], 1e-9)
	for i := 1; i < len(pts); i++ {
		assert.InDelta(t, pts[1]/pts[0], pts[i]/pts[i-1], 1e-9, "ratio between neighbours must be constant")
	}
}
