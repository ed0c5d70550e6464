package tournament

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePayoutsSplits(t *testing.T) {
	assert.Equal(t, []int64{1000}, ComputePayouts(1000, 2))
	assert.Equal(t, []int64{650, 350}, ComputePayouts(1000, 4))
	assert.Equal(t, []int64{500, 300, 200}, ComputePayouts(1000, 6))
	// The structure tops out at three paid places.
	assert.Equal(t, []int64{500, 300, 200}, ComputePayouts(1000, 9))
}

func TestComputePayoutsRemainderToFirst(t *testing.T) {
	got := ComputePayouts(101, 3)
	require.Len(t, got, 2)
	assert.Equal(t, []int64{66, 35}, got)
}

func TestComputePayoutsConservesPool(t *testing.T) {
	for entrants := 2; entrants <= 9; entrants++ {
		for _, pool := range []int64{0, 1, 99, 100, 1001, 98765} {
			var sum int64
			for _, amt := range ComputePayouts(pool, entrants) {
				sum += amt
			}
			assert.Equal(t, pool, sum, "entrants=%d pool=%d", entrants, pool)
		}
	}
}
