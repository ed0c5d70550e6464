package tournament

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelForSchedule(t *testing.T) {
	tests := []struct {
		num          int
		sb, bb, ante int64
	}{
		{1, 10, 20, 0},
		{2, 15, 30, 0},
		{3, 25, 50, 0},
		{4, 50, 100, 25},
		{5, 75, 150, 37},
		{6, 100, 200, 50},
		{7, 200, 400, 100},
		{8, 400, 800, 200},
	}
	for _, tc := range tests {
		lvl := LevelFor(tc.num, 10, 20)
		assert.Equal(t, tc.num, lvl.Num)
		assert.Equal(t, tc.sb, lvl.SmallBlind, "level %d small blind", tc.num)
		assert.Equal(t, tc.bb, lvl.BigBlind, "level %d big blind", tc.num)
		assert.Equal(t, tc.ante, lvl.Ante, "level %d ante", tc.num)
	}
}

func TestLevelForClampsBelowOne(t *testing.T) {
	assert.Equal(t, LevelFor(1, 10, 20), LevelFor(0, 10, 20))
	assert.Equal(t, LevelFor(1, 10, 20), LevelFor(-3, 10, 20))
}

func TestLevelForAlwaysEscalates(t *testing.T) {
	prev := LevelFor(1, 10, 20)
	for n := 2; n <= 15; n++ {
		lvl := LevelFor(n, 10, 20)
		assert.Greater(t, lvl.BigBlind, prev.BigBlind, "level %d", n)
		assert.Greater(t, lvl.SmallBlind, prev.SmallBlind, "level %d", n)
		prev = lvl
	}
}
