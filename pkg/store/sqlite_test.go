package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeSpent/pokerpal/pkg/poker"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPlayerBankroll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPlayer(ctx, &Player{ID: "p1", Name: "alice"}))
	require.NoError(t, s.Credit(ctx, "p1", 500, "deposit"))

	p, err := s.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 500, p.Balance)

	require.NoError(t, s.Debit(ctx, "p1", 200, "buy-in"))
	p, err = s.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 300, p.Balance)

	err = s.Debit(ctx, "p1", 1000, "too much")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	err = s.Debit(ctx, "nobody", 10, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	// Balance is untouched by the failed debits.
	p, err = s.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 300, p.Balance)
}

func TestUpsertPlayerKeepsBalance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPlayer(ctx, &Player{ID: "p1", Name: "alice"}))
	require.NoError(t, s.Credit(ctx, "p1", 100, "deposit"))
	require.NoError(t, s.UpsertPlayer(ctx, &Player{ID: "p1", Name: "alice2"}))

	p, err := s.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "alice2", p.Name)
	assert.EqualValues(t, 100, p.Balance)
}

func TestTableVersionConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tbl := &Table{ID: "t1", SeatCount: 6, SmallBlind: 10, BigBlind: 20, Status: TableWaiting}
	require.NoError(t, s.CreateTable(ctx, tbl))

	a, err := s.GetTable(ctx, "t1")
	require.NoError(t, err)
	b, err := s.GetTable(ctx, "t1")
	require.NoError(t, err)

	a.Status = TablePlaying
	require.NoError(t, s.UpdateTable(ctx, a))
	assert.EqualValues(t, 1, a.Version)

	b.Status = TableClosed
	err = s.UpdateTable(ctx, b)
	assert.ErrorIs(t, err, ErrVersionConflict)

	// The loser's version is untouched so it can re-read and retry.
	assert.EqualValues(t, 0, b.Version)

	got, err := s.GetTable(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, TablePlaying, got.Status)
}

func TestHandLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTable(ctx, &Table{ID: "t1", SeatCount: 2, SmallBlind: 10, BigBlind: 20, Status: TablePlaying}))

	_, err := s.ActiveHandByTable(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)

	h := &Hand{
		ID:               "h1",
		TableID:          "t1",
		HandNum:          1,
		Phase:            PhasePreflop,
		CurrentActorSeat: NoSeat,
		Community:        CardList{poker.MustCard("As")},
	}
	require.NoError(t, s.CreateHand(ctx, h))

	active, err := s.ActiveHandByTable(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "h1", active.ID)
	assert.Equal(t, CardList{poker.MustCard("As")}, active.Community)

	active.Phase = PhaseComplete
	require.NoError(t, s.UpdateHand(ctx, active))

	_, err = s.ActiveHandByTable(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)

	// A stale copy can no longer win the write.
	h.Phase = PhaseFlop
	assert.ErrorIs(t, s.UpdateHand(ctx, h), ErrVersionConflict)
}

func TestCreateHandKeepsSeatZeroActor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTable(ctx, &Table{ID: "t1", SeatCount: 3, SmallBlind: 10, BigBlind: 20, Status: TablePlaying}))

	h := &Hand{
		ID:               "h1",
		TableID:          "t1",
		HandNum:          1,
		Phase:            PhasePreflop,
		CurrentActorSeat: 0,
	}
	require.NoError(t, s.CreateHand(ctx, h))

	got, err := s.GetHand(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentActorSeat, "seat 0 as first actor must survive the insert")
}

func TestReplacePots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pots := []*Pot{
		{ID: "h1-0", HandID: "h1", PotIndex: 0, Amount: 150, Eligible: IntList{0, 1, 2}},
		{ID: "h1-1", HandID: "h1", PotIndex: 1, Amount: 200, Eligible: IntList{1, 2}},
	}
	require.NoError(t, s.ReplacePots(ctx, "h1", pots))

	got, err := s.PotsByHand(ctx, "h1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, IntList{0, 1, 2}, got[0].Eligible)

	// Replacement drops the old rows.
	require.NoError(t, s.ReplacePots(ctx, "h1", []*Pot{
		{ID: "h1-0b", HandID: "h1", PotIndex: 0, Amount: 350, Eligible: IntList{1}},
	}))
	got, err = s.PotsByHand(ctx, "h1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.EqualValues(t, 350, got[0].Amount)
}

func TestActionsAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendActions(ctx, []*Action{
		{HandID: "h1", SeatIndex: 0, Type: ActionPostSB, Amount: 10, Phase: PhaseDealing, Seq: 1},
		{HandID: "h1", SeatIndex: 1, Type: ActionPostBB, Amount: 20, Phase: PhaseDealing, Seq: 2},
		{HandID: "h1", SeatIndex: 2, Type: ActionRaise, Amount: 60, Phase: PhasePreflop, Seq: 3},
	}))

	actions, err := s.ActionsByHand(ctx, "h1")
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, ActionRaise, actions[2].Type)
	assert.Equal(t, 3, actions[2].Seq)
}

func TestTournamentRegistrations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tn := &Tournament{
		ID:            "tn1",
		Status:        TournamentRegistering,
		HostID:        "host",
		MaxPlayers:    2,
		TableSize:     2,
		StartingChips: 1000,
		BuyIn:         100,
		SmallBlind:    10,
		BigBlind:      20,
		LevelDuration: 1,
	}
	require.NoError(t, s.CreateTournament(ctx, tn))

	require.NoError(t, s.CreateRegistration(ctx, &Registration{ID: "r1", TournamentID: "tn1", PlayerID: "p1"}))
	require.NoError(t, s.CreateRegistration(ctx, &Registration{ID: "r2", TournamentID: "tn1", PlayerID: "p2", Ready: true}))

	regs, err := s.RegistrationsByTournament(ctx, "tn1")
	require.NoError(t, err)
	require.Len(t, regs, 2)

	require.NoError(t, s.ResetReadyFlags(ctx, "tn1"))
	regs, err = s.RegistrationsByTournament(ctx, "tn1")
	require.NoError(t, err)
	for _, r := range regs {
		assert.False(t, r.Ready)
	}

	require.NoError(t, s.DeleteRegistration(ctx, "tn1", "p1"))
	assert.ErrorIs(t, s.DeleteRegistration(ctx, "tn1", "p1"), ErrNotFound)

	_, err = s.GetRegistration(ctx, "tn1", "p1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTournamentsByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mk := func(id string, status TournamentStatus) {
		require.NoError(t, s.CreateTournament(ctx, &Tournament{
			ID: id, Status: status, HostID: "h", MaxPlayers: 2, TableSize: 2,
			StartingChips: 1000, SmallBlind: 10, BigBlind: 20, LevelDuration: 1,
		}))
	}
	mk("a", TournamentRegistering)
	mk("b", TournamentRunning)
	mk("c", TournamentComplete)
	mk("d", TournamentStarting)

	tns, err := s.TournamentsByStatus(ctx, TournamentStarting, TournamentRunning)
	require.NoError(t, err)
	require.Len(t, tns, 2)
}

func TestEventLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendEvents(ctx, []*GameEvent{
		{EntityType: "hand", EntityID: "h1", Type: "HAND_STARTED", Payload: []byte(`{}`), Version: 1},
		{EntityType: "hand", EntityID: "h1", Type: "ACTION", Payload: []byte(`{}`), Version: 2},
		{EntityType: "hand", EntityID: "h2", Type: "HAND_STARTED", Payload: []byte(`{}`), Version: 1},
	}))

	events, err := s.EventsSince(ctx, "hand", "h1", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ACTION", events[0].Type)

	events, err = s.EventsSince(ctx, "hand", "h1", 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
