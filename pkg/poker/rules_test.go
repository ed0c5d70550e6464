package poker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLegalNoOutstandingBet(t *testing.T) {
	la := Legal(Actor{CanAct: true, Stack: 500}, 0, 20, 20)

	assert.True(t, la.CanFold)
	assert.True(t, la.CanCheck)
	assert.False(t, la.CanCall)
	assert.True(t, la.CanBet)
	assert.EqualValues(t, 20, la.MinBet)
	assert.EqualValues(t, 500, la.MaxBet)
	assert.False(t, la.CanRaise)
}

func TestLegalFacingBet(t *testing.T) {
	// Seat has 30 in, leading bet is 100, last raise was 60.
	la := Legal(Actor{CanAct: true, Stack: 470, Bet: 30}, 100, 60, 20)

	assert.True(t, la.CanFold)
	assert.False(t, la.CanCheck)
	assert.True(t, la.CanCall)
	assert.EqualValues(t, 70, la.CallAmount)
	assert.False(t, la.CanBet)
	assert.True(t, la.CanRaise)
	assert.EqualValues(t, 160, la.MinRaise)
	assert.EqualValues(t, 500, la.MaxRaise)
}

func TestLegalCannotAct(t *testing.T) {
	la := Legal(Actor{CanAct: false, Stack: 500}, 0, 20, 20)
	assert.Equal(t, LegalActions{}, la)
}

func TestLegalShortStackCall(t *testing.T) {
	// Stack cannot cover the call; calling is still legal (all-in call).
	la := Legal(Actor{CanAct: true, Stack: 40, Bet: 0}, 100, 100, 20)
	assert.True(t, la.CanCall)
	assert.EqualValues(t, 100, la.CallAmount)
	assert.False(t, la.CanRaise)
}

func TestLegalShortAllInRaiseOnly(t *testing.T) {
	// Stack covers the call but not a full raise; the only raise is the
	// short all-in.
	la := Legal(Actor{CanAct: true, Stack: 120, Bet: 0}, 100, 80, 20)
	assert.True(t, la.CanRaise)
	assert.EqualValues(t, 120, la.MinRaise)
	assert.EqualValues(t, 120, la.MaxRaise)
}

func TestBetLegal(t *testing.T) {
	la := Legal(Actor{CanAct: true, Stack: 500}, 0, 20, 20)

	assert.True(t, la.BetLegal(20, 500))
	assert.True(t, la.BetLegal(500, 500))
	assert.False(t, la.BetLegal(10, 500), "below min and not all-in")
	assert.False(t, la.BetLegal(501, 500), "beyond stack")
	assert.False(t, la.BetLegal(0, 500))

	// Below the min is legal only as the entire stack.
	short := Legal(Actor{CanAct: true, Stack: 15}, 0, 20, 20)
	assert.True(t, short.BetLegal(15, 15))
}

func TestRaiseLegal(t *testing.T) {
	la := Legal(Actor{CanAct: true, Stack: 470, Bet: 30}, 100, 60, 20)

	assert.True(t, la.RaiseLegal(160, 500))
	assert.True(t, la.RaiseLegal(500, 500))
	assert.False(t, la.RaiseLegal(150, 500), "below min raise without all-in")
	assert.False(t, la.RaiseLegal(501, 500), "beyond stack")

	// A raise below the minimum is accepted only as the full stack.
	assert.True(t, la.RaiseLegal(140, 140))
}
