package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeSpent/pokerpal/pkg/broadcast"
	"github.com/CodeSpent/pokerpal/pkg/poker"
	"github.com/CodeSpent/pokerpal/pkg/store"
)

func newTestService(t *testing.T) (*GameService, *store.SQLStore, *broadcast.Capture) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	capture := broadcast.NewCapture()
	g := NewGameService(slog.Disabled, st, capture, 30*time.Second)
	return g, st, capture
}

func playerID(i int) string {
	return fmt.Sprintf("player-%d", i)
}

// setupTable seats one player per stack. The dealer button is parked on the
// last seat so the first hand's dealer is seat 0.
func setupTable(t *testing.T, st *store.SQLStore, stacks ...int64) string {
	t.Helper()
	ctx := context.Background()
	tableID := "table-1"
	require.NoError(t, st.CreateTable(ctx, &store.Table{
		ID:         tableID,
		SeatCount:  len(stacks),
		SmallBlind: 10,
		BigBlind:   20,
		DealerSeat: len(stacks) - 1,
		Status:     store.TableWaiting,
	}))
	for i, stack := range stacks {
		require.NoError(t, st.UpsertPlayer(ctx, &store.Player{ID: playerID(i), Name: playerID(i)}))
		require.NoError(t, st.CreateSeat(ctx, &store.Seat{
			ID:        fmt.Sprintf("seat-%d", i),
			TableID:   tableID,
			PlayerID:  playerID(i),
			SeatIndex: i,
			Stack:     stack,
			Status:    store.SeatWaiting,
		}))
	}
	return tableID
}

// totalChips sums every stack plus the active hand's pot.
func totalChips(t *testing.T, st *store.SQLStore, tableID string) int64 {
	t.Helper()
	ctx := context.Background()
	seats, err := st.SeatsByTable(ctx, tableID)
	require.NoError(t, err)
	var total int64
	for _, s := range seats {
		total += s.Stack
	}
	if h, err := st.ActiveHandByTable(ctx, tableID); err == nil {
		total += h.Pot
	}
	return total
}

func act(t *testing.T, g *GameService, tableID string, seat int, action store.ActionType, amount int64) *store.Hand {
	t.Helper()
	h, err := g.SubmitAction(context.Background(), tableID, playerID(seat), action, amount)
	require.NoError(t, err)
	return h
}

func TestStartNewHandPostsBlindsAndDeals(t *testing.T) {
	g, st, capture := newTestService(t)
	tableID := setupTable(t, st, 1000, 1000, 1000)
	ctx := context.Background()

	hand, err := g.StartNewHand(ctx, tableID)
	require.NoError(t, err)

	assert.Equal(t, store.PhasePreflop, hand.Phase)
	assert.Equal(t, 0, hand.DealerSeat)
	assert.Equal(t, 1, hand.SmallBlindSeat)
	assert.Equal(t, 2, hand.BigBlindSeat)
	assert.EqualValues(t, 30, hand.Pot)
	assert.EqualValues(t, 20, hand.CurrentBet)
	// Three-handed the dealer is under the gun.
	assert.Equal(t, 0, hand.CurrentActorSeat)
	require.NotNil(t, hand.ActionDeadline)

	seats, err := st.SeatsByTable(ctx, tableID)
	require.NoError(t, err)
	for _, s := range seats {
		assert.Len(t, s.HoleCards, 2, "seat %d", s.SeatIndex)
	}
	assert.EqualValues(t, 3000, totalChips(t, st, tableID))

	events := capture.Events(broadcast.TableChannel(tableID))
	assert.Contains(t, events, EventHandStarted)
	assert.Contains(t, events, EventTurnStarted)

	// A second deal is refused while the hand runs.
	_, err = g.StartNewHand(ctx, tableID)
	assert.True(t, IsCode(err, CodeConflict), "got %v", err)
}

func TestStartNewHandNeedsTwoStacks(t *testing.T) {
	g, st, _ := newTestService(t)
	tableID := setupTable(t, st, 1000)

	_, err := g.StartNewHand(context.Background(), tableID)
	assert.True(t, IsCode(err, CodeValidation), "got %v", err)
}

func TestSubmitActionEnforcesTurnOrder(t *testing.T) {
	g, st, _ := newTestService(t)
	tableID := setupTable(t, st, 1000, 1000, 1000)
	ctx := context.Background()

	_, err := g.StartNewHand(ctx, tableID)
	require.NoError(t, err)

	// Seat 1 tries to act before seat 0.
	_, err = g.SubmitAction(ctx, tableID, playerID(1), store.ActionCall, 0)
	assert.True(t, IsCode(err, CodeValidation), "got %v", err)

	_, err = g.SubmitAction(ctx, tableID, "stranger", store.ActionFold, 0)
	assert.True(t, IsCode(err, CodeNotFound), "got %v", err)

	hand := act(t, g, tableID, 0, store.ActionCall, 0)
	assert.Equal(t, 1, hand.CurrentActorSeat)
}

func TestHeadsUpCheckdown(t *testing.T) {
	// Scenario: 1000/1000 heads-up at 10/20, small blind calls, both check
	// every street, pot of 40 settles at showdown.
	g, st, capture := newTestService(t)
	tableID := setupTable(t, st, 1000, 1000)
	ctx := context.Background()

	hand, err := g.StartNewHand(ctx, tableID)
	require.NoError(t, err)
	// Heads-up the dealer posts the small blind and acts first preflop.
	assert.Equal(t, 0, hand.DealerSeat)
	assert.Equal(t, 0, hand.SmallBlindSeat)
	assert.Equal(t, 1, hand.BigBlindSeat)
	assert.Equal(t, 0, hand.CurrentActorSeat)

	hand = act(t, g, tableID, 0, store.ActionCall, 0)
	// The big blind keeps its option; the street must not auto-close.
	assert.Equal(t, store.PhasePreflop, hand.Phase)
	assert.Equal(t, 1, hand.CurrentActorSeat)

	hand = act(t, g, tableID, 1, store.ActionCheck, 0)
	assert.Equal(t, store.PhaseFlop, hand.Phase)
	assert.Len(t, hand.Community, 3)
	// Postflop the non-dealer acts first.
	assert.Equal(t, 1, hand.CurrentActorSeat)

	act(t, g, tableID, 1, store.ActionCheck, 0)
	hand = act(t, g, tableID, 0, store.ActionCheck, 0)
	assert.Equal(t, store.PhaseTurn, hand.Phase)
	act(t, g, tableID, 1, store.ActionCheck, 0)
	hand = act(t, g, tableID, 0, store.ActionCheck, 0)
	assert.Equal(t, store.PhaseRiver, hand.Phase)
	act(t, g, tableID, 1, store.ActionCheck, 0)
	hand = act(t, g, tableID, 0, store.ActionCheck, 0)

	assert.Equal(t, store.PhaseComplete, hand.Phase)
	assert.Len(t, hand.Community, 5)
	require.NotNil(t, hand.ShowdownAt)
	assert.EqualValues(t, 40, hand.Pot)

	pots, err := st.PotsByHand(ctx, hand.ID)
	require.NoError(t, err)
	require.Len(t, pots, 1)
	assert.EqualValues(t, 40, pots[0].Amount)

	assert.EqualValues(t, 2000, totalChips(t, st, tableID))

	events := capture.Events(broadcast.TableChannel(tableID))
	assert.Contains(t, events, EventShowdown)
	assert.Contains(t, events, EventPotAwarded)
	assert.Contains(t, events, EventHandComplete)
}

func TestHandDeckIntegrity(t *testing.T) {
	g, st, _ := newTestService(t)
	tableID := setupTable(t, st, 1000, 1000)
	ctx := context.Background()

	_, err := g.StartNewHand(ctx, tableID)
	require.NoError(t, err)

	act(t, g, tableID, 0, store.ActionCall, 0)
	act(t, g, tableID, 1, store.ActionCheck, 0)
	for _, seat := range []int{1, 0, 1, 0, 1, 0} {
		act(t, g, tableID, seat, store.ActionCheck, 0)
	}

	seats, err := st.SeatsByTable(ctx, tableID)
	require.NoError(t, err)
	hand := lastHand(t, st, tableID)

	seen := make(map[poker.Card]bool)
	track := func(cs []poker.Card) {
		for _, c := range cs {
			assert.False(t, seen[c], "card %s appears twice", c)
			seen[c] = true
		}
	}
	for _, s := range seats {
		track(s.HoleCards)
	}
	track(hand.Community)
	track(hand.Deck)
	assert.Len(t, seen, 52)
}

func lastHand(t *testing.T, st *store.SQLStore, tableID string) *store.Hand {
	t.Helper()
	ctx := context.Background()
	tbl, err := st.GetTable(ctx, tableID)
	require.NoError(t, err)
	hand := new(store.Hand)
	err = st.DB().NewSelect().Model(hand).
		Where("table_id = ? AND hand_num = ?", tableID, tbl.HandCounter).
		Scan(ctx)
	require.NoError(t, err)
	return hand
}

func TestThreeWayAllInSidePots(t *testing.T) {
	// Scenario: stacks 300/50/150 get in preflop. The 150 overage comes
	// back to the big stack; the rest splits into a 150 main pot for all
	// three and a 200 side pot for the two larger stacks.
	g, st, _ := newTestService(t)
	tableID := setupTable(t, st, 300, 50, 150)
	ctx := context.Background()

	_, err := g.StartNewHand(ctx, tableID)
	require.NoError(t, err)

	act(t, g, tableID, 0, store.ActionRaise, 300) // shove
	act(t, g, tableID, 1, store.ActionCall, 0)    // all-in for 50
	hand := act(t, g, tableID, 2, store.ActionCall, 0)

	assert.Equal(t, store.PhaseComplete, hand.Phase)
	assert.Len(t, hand.Community, 5)
	assert.EqualValues(t, 350, hand.Pot, "uncalled 150 refunded before pots")

	pots, err := st.PotsByHand(ctx, hand.ID)
	require.NoError(t, err)
	require.Len(t, pots, 2)
	assert.EqualValues(t, 150, pots[0].Amount)
	assert.Equal(t, store.IntList{0, 1, 2}, pots[0].Eligible)
	assert.EqualValues(t, 200, pots[1].Amount)
	assert.Equal(t, store.IntList{0, 2}, pots[1].Eligible)

	assert.EqualValues(t, 500, totalChips(t, st, tableID))

	// Busted stacks are eliminated, and zero-stack always means eliminated.
	seats, err := st.SeatsByTable(ctx, tableID)
	require.NoError(t, err)
	for _, s := range seats {
		if s.Stack == 0 {
			assert.Equal(t, store.SeatEliminated, s.Status, "seat %d", s.SeatIndex)
			assert.NotNil(t, s.EliminatedAt)
		}
	}
}

func TestShortAllInRaiseKeepsCallersInTurn(t *testing.T) {
	// A short all-in raise does not reopen re-raise rights, but seats that
	// already acted at the lower bet still owe the difference.
	g, st, _ := newTestService(t)
	tableID := setupTable(t, st, 1000, 30, 1000)
	ctx := context.Background()

	_, err := g.StartNewHand(ctx, tableID)
	require.NoError(t, err)

	act(t, g, tableID, 0, store.ActionCall, 0)
	// The small blind shoves 30 total, a raise short of the 40 minimum.
	hand := act(t, g, tableID, 1, store.ActionAllIn, 0)
	assert.EqualValues(t, 30, hand.CurrentBet)
	assert.Equal(t, 2, hand.CurrentActorSeat)

	hand = act(t, g, tableID, 2, store.ActionCall, 0)
	assert.Equal(t, store.PhasePreflop, hand.Phase, "seat 0 still owes 10")
	assert.Equal(t, 0, hand.CurrentActorSeat)

	// No re-raise against a short all-in.
	_, err = g.SubmitAction(ctx, tableID, playerID(0), store.ActionRaise, 60)
	require.True(t, IsCode(err, CodeValidation), "got %v", err)

	hand = act(t, g, tableID, 0, store.ActionCall, 0)
	assert.Equal(t, store.PhaseFlop, hand.Phase)
	assert.EqualValues(t, 90, hand.Pot)
	assert.EqualValues(t, 2030, totalChips(t, st, tableID))
}

func TestBetBelowMinimumRejectedUnlessAllIn(t *testing.T) {
	// Scenario: a 5-chip bet at a 20 big blind is rejected, but the same
	// short amount as the seat's entire stack is a legal all-in.
	g, st, _ := newTestService(t)
	tableID := setupTable(t, st, 50, 1000)
	ctx := context.Background()

	_, err := g.StartNewHand(ctx, tableID)
	require.NoError(t, err)

	act(t, g, tableID, 0, store.ActionCall, 0)
	act(t, g, tableID, 1, store.ActionCheck, 0)

	// Flop: big blind checks, short stack tries a 5-chip bet.
	act(t, g, tableID, 1, store.ActionCheck, 0)
	_, err = g.SubmitAction(ctx, tableID, playerID(0), store.ActionBet, 5)
	require.True(t, IsCode(err, CodeValidation), "got %v", err)

	// The full 30-chip stack is accepted as a short all-in bet.
	hand := act(t, g, tableID, 0, store.ActionBet, 30)
	assert.Equal(t, store.PhaseFlop, hand.Phase)

	hand = act(t, g, tableID, 1, store.ActionCall, 0)
	assert.Equal(t, store.PhaseComplete, hand.Phase, "runout once the short stack is covered")
	assert.EqualValues(t, 1050, totalChips(t, st, tableID))
}

func TestRaiseBelowMinimumRejected(t *testing.T) {
	g, st, _ := newTestService(t)
	tableID := setupTable(t, st, 1000, 1000)
	ctx := context.Background()

	_, err := g.StartNewHand(ctx, tableID)
	require.NoError(t, err)
	act(t, g, tableID, 0, store.ActionCall, 0)
	act(t, g, tableID, 1, store.ActionCheck, 0)

	act(t, g, tableID, 1, store.ActionBet, 100)

	// Min raise is to 200; 150 is neither legal nor an all-in.
	_, err = g.SubmitAction(ctx, tableID, playerID(0), store.ActionRaise, 150)
	require.True(t, IsCode(err, CodeValidation), "got %v", err)

	hand := act(t, g, tableID, 0, store.ActionRaise, 200)
	assert.EqualValues(t, 200, hand.CurrentBet)
	assert.Equal(t, 1, hand.CurrentActorSeat)

	hand = act(t, g, tableID, 1, store.ActionFold, 0)
	assert.Equal(t, store.PhaseComplete, hand.Phase)
	// Uncalled 100 of the raise goes back to the raiser.
	assert.EqualValues(t, 240, hand.Pot)
	assert.EqualValues(t, 2000, totalChips(t, st, tableID))
}

func TestFoldEndsHandWithoutReveal(t *testing.T) {
	g, st, capture := newTestService(t)
	tableID := setupTable(t, st, 1000, 1000)
	ctx := context.Background()

	_, err := g.StartNewHand(ctx, tableID)
	require.NoError(t, err)

	hand := act(t, g, tableID, 0, store.ActionFold, 0)
	assert.Equal(t, store.PhaseComplete, hand.Phase)
	assert.Empty(t, hand.Community)

	seats, err := st.SeatsByTable(ctx, tableID)
	require.NoError(t, err)
	assert.EqualValues(t, 990, seats[0].Stack)
	assert.EqualValues(t, 1010, seats[1].Stack)

	events := capture.Events(broadcast.TableChannel(tableID))
	assert.NotContains(t, events, EventShowdown, "a fold win must not reveal cards")
	assert.Contains(t, events, EventPotAwarded)
}

func TestActionAuditLog(t *testing.T) {
	g, st, _ := newTestService(t)
	tableID := setupTable(t, st, 1000, 1000)
	ctx := context.Background()

	_, err := g.StartNewHand(ctx, tableID)
	require.NoError(t, err)
	act(t, g, tableID, 0, store.ActionCall, 0)
	hand := act(t, g, tableID, 1, store.ActionCheck, 0)

	actions, err := st.ActionsByHand(ctx, hand.ID)
	require.NoError(t, err)
	require.Len(t, actions, 4)
	assert.Equal(t, store.ActionPostSB, actions[0].Type)
	assert.Equal(t, store.ActionPostBB, actions[1].Type)
	assert.Equal(t, store.ActionCall, actions[2].Type)
	assert.Equal(t, store.ActionCheck, actions[3].Type)
	for i, a := range actions {
		assert.Equal(t, i+1, a.Seq)
	}
}

func TestDealerRotatesBetweenHands(t *testing.T) {
	g, st, _ := newTestService(t)
	tableID := setupTable(t, st, 1000, 1000, 1000)
	ctx := context.Background()

	first, err := g.StartNewHand(ctx, tableID)
	require.NoError(t, err)
	assert.Equal(t, 0, first.DealerSeat)
	assert.EqualValues(t, 1, first.HandNum)

	act(t, g, tableID, 0, store.ActionFold, 0)
	act(t, g, tableID, 1, store.ActionFold, 0)

	second, err := g.StartNewHand(ctx, tableID)
	require.NoError(t, err)
	assert.Equal(t, 1, second.DealerSeat)
	assert.EqualValues(t, 2, second.HandNum)
}
