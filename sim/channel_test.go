package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelModelNoiseDisabledNeverDrops(t *testing.T) {
	c := newChannelModel(rand.New(rand.NewSource(1)))
	for i := 0; i < 100; i++ {
		require.False(t, c.drop(4999, 5000, 0.5))
	}
}

func TestChannelModelZeroMaxRangeNeverDrops(t *testing.T) {
	c := newChannelModel(rand.New(rand.NewSource(1)))
	c.noiseEnabled = true
	require.False(t, c.drop(10, 0, 0.5))
}

func TestChannelModelDropProbabilityAtRangeEdge(t *testing.T) {
	// At the edge of range with a high code rate, the drop probability is
	// 1.0 * codeRate * 0.07 — bounded, never certain.
	c := newChannelModel(rand.New(rand.NewSource(42)))
	c.noiseEnabled = true

	drops := 0
	const trials = 5000
	for i := 0; i < trials; i++ {
		if c.drop(5000, 5000, 0.9) {
			drops++
		}
	}
	rate := float64(drops) / float64(trials)
	require.InDelta(t, 0.063, rate, 0.02) // 1^2 * 0.9 * 0.07
}

func TestBitErrorsScalesWithDistanceRatio(t *testing.T) {
	require.Equal(t, 0.0, bitErrors(1000, 10, 0))
	require.InDelta(t, 8.0, bitErrors(1000, 800, 1000), 0.001)
}
