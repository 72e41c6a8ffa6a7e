package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpected(t *testing.T) {
	assert.InDelta(t, 0.5, Expected(1500, 1500), 1e-9)
	assert.InDelta(t, 0.7597, Expected(1200, 1000), 1e-4)
	assert.InDelta(t, 0.2403, Expected(1000, 1200), 1e-4)
	// Complementary by construction.
	assert.InDelta(t, 1.0, Expected(1834, 2011)+Expected(2011, 1834), 1e-9)
}

func TestKFactorTiers(t *testing.T) {
	cases := []struct {
		rating int
		k      int
	}{
		{800, 40},
		{2099, 40},
		{2100, 32},
		{2400, 32},
		{2401, 20},
		{2700, 20},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.k, KFactor(tc.rating), "rating %d", tc.rating)
	}
}

func TestNext(t *testing.T) {
	// Provisional tier, K=40: favorite wins, small gain.
	assert.Equal(t, 1210, Next(1200, 1, Expected(1200, 1000)))
	// Underdog wins, large gain.
	assert.Equal(t, 1030, Next(1000, 1, Expected(1000, 1200)))
	// Established tier, K=32.
	assert.Equal(t, 2208, Next(2200, 1, Expected(2200, 2000)))
	// Draw between equals changes nothing.
	assert.Equal(t, 1500, Next(1500, 0.5, Expected(1500, 1500)))
	// Loss is symmetric to the win at equal ratings.
	win := Next(1500, 1, 0.5) - 1500
	loss := 1500 - Next(1500, 0, 0.5)
	assert.Equal(t, win, loss)
}
