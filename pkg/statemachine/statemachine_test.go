package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	n     int
	limit int
}

func countUp(c *counter) StateFn[counter] {
	if c.n >= c.limit {
		return nil
	}
	c.n++
	return countUp
}

func TestRunUntilTerminal(t *testing.T) {
	c := &counter{limit: 5}
	m := New(c, countUp)

	m.Run()

	assert.Equal(t, 5, c.n)
	assert.Nil(t, m.Current())
}

func TestStepAdvancesOnce(t *testing.T) {
	c := &counter{limit: 2}
	m := New(c, countUp)

	require.True(t, m.Step())
	assert.Equal(t, 1, c.n)
	require.True(t, m.Step())
	assert.False(t, m.Step(), "terminal transition produces no next state")
	assert.False(t, m.Step(), "stepping a terminal machine is a no-op")
	assert.Equal(t, 2, c.n)
}

func TestSetReplacesState(t *testing.T) {
	c := &counter{limit: 3}
	m := New(c, nil)
	assert.False(t, m.Step())

	m.Set(countUp)
	m.Run()
	assert.Equal(t, 3, c.n)
}
