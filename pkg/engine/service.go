// Package engine implements the hold'em game engine: hand state machine,
// action validation, pot resolution, turn clock, and table self-repair, all
// behind optimistic concurrency on the persisted hand and table rows.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/CodeSpent/pokerpal/pkg/broadcast"
	"github.com/CodeSpent/pokerpal/pkg/poker"
	"github.com/CodeSpent/pokerpal/pkg/store"
)

// TournamentHooks receives engine callbacks after a hand finishes, so the
// tournament layer can advance blinds, record eliminations, and decide
// whether to deal again. The engine never imports the tournament package.
type TournamentHooks interface {
	HandCompleted(ctx context.Context, table *store.Table, hand *store.Hand, eliminated []*store.Seat) error
}

// GameService coordinates hand play for tables. Every public operation is a
// full read-compute-write cycle under the hand or table optimistic lock,
// retried on conflict, so any number of daemons and request handlers can
// call in concurrently.
type GameService struct {
	log   slog.Logger
	store store.Store
	bcast broadcast.Broadcaster
	hooks TournamentHooks

	turnTimer time.Duration
	nowFn     func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewGameService builds a service with the given default turn timer. A zero
// timer disables timeouts for tables without a tournament override.
func NewGameService(log slog.Logger, st store.Store, bcast broadcast.Broadcaster, turnTimer time.Duration) *GameService {
	if bcast == nil {
		bcast = broadcast.Nop{}
	}
	return &GameService{
		log:       log,
		store:     st,
		bcast:     bcast,
		turnTimer: turnTimer,
		nowFn:     time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetHooks wires the tournament callbacks. Must be called before play
// starts; it is not safe to swap mid-game.
func (g *GameService) SetHooks(h TournamentHooks) {
	g.hooks = h
}

// newRNG derives an independent deck rng so concurrent deals do not share a
// source.
func (g *GameService) newRNG() *rand.Rand {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return rand.New(rand.NewSource(g.rng.Int63()))
}

// timerFor resolves the effective turn timer for a table, preferring its
// tournament's configured timer.
func (g *GameService) timerFor(ctx context.Context, table *store.Table) time.Duration {
	if table.TournamentID != "" {
		if tn, err := g.store.GetTournament(ctx, table.TournamentID); err == nil && tn.TurnTimer > 0 {
			return tn.TurnTimer
		}
	}
	return g.turnTimer
}

// StartNewHand deals the next hand on the table. Exactly one caller wins the
// table's optimistic lock; the rest observe the hand already in progress.
func (g *GameService) StartNewHand(ctx context.Context, tableID string) (*store.Hand, error) {
	var (
		result *store.Hand
		run    *handRun
	)
	err := store.WithRetry(ctx, func(ctx context.Context) error {
		table, err := g.store.GetTable(ctx, tableID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return Errorf(CodeNotFound, "table %s not found", tableID)
			}
			return err
		}
		if table.Status == store.TableClosed {
			return Errorf(CodeConflict, "table %s is closed", tableID)
		}
		if active, err := g.store.ActiveHandByTable(ctx, tableID); err == nil {
			return Errorf(CodeConflict, "table %s already has hand %s in progress", tableID, active.ID)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		seats, err := g.store.SeatsByTable(ctx, tableID)
		if err != nil {
			return err
		}

		run = newHandRun(g.log, table, &store.Hand{}, seats, g.timerFor(ctx, table), g.nowFn(), g.newRNG())
		if err := run.deal(); err != nil {
			return err
		}
		if err := g.commit(ctx, run, true); err != nil {
			return err
		}
		result = run.hand
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.afterCommit(ctx, run)
	return result, nil
}

// SubmitAction applies one player action to the table's active hand.
// Bet and raise amounts are the seat's total street bet afterwards.
func (g *GameService) SubmitAction(ctx context.Context, tableID, playerID string, action store.ActionType, amount int64) (*store.Hand, error) {
	var run *handRun
	err := store.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		run, err = g.loadRun(ctx, tableID)
		if err != nil {
			return err
		}
		seat := seatForPlayer(run.seats, playerID)
		if seat == nil {
			return Errorf(CodeNotFound, "player %s is not seated at table %s", playerID, tableID)
		}
		if err := run.apply(seat.SeatIndex, action, amount, false); err != nil {
			return err
		}
		return g.commit(ctx, run, false)
	})
	if err != nil {
		return nil, err
	}
	g.afterCommit(ctx, run)
	return run.hand, nil
}

// HandleTurnTimeout resolves an expired action deadline on the table's
// active hand: auto-check when the actor owes nothing, auto-fold otherwise.
// It is safe to call from any number of pollers; a loser of the version race
// re-reads and finds the turn already resolved.
func (g *GameService) HandleTurnTimeout(ctx context.Context, tableID string) (bool, error) {
	applied := false
	var run *handRun
	err := store.WithRetry(ctx, func(ctx context.Context) error {
		applied = false
		var err error
		run, err = g.loadRun(ctx, tableID)
		if err != nil {
			if IsCode(err, CodeConflict) || IsCode(err, CodeNotFound) {
				return nil // no active hand, nothing to time out
			}
			return err
		}
		fired, err := g.applyTimeout(run)
		if err != nil {
			return err
		}
		if !fired {
			return nil
		}
		applied = true
		return g.commit(ctx, run, false)
	})
	if err != nil {
		return false, err
	}
	if applied {
		g.afterCommit(ctx, run)
	}
	return applied, nil
}

// AdvanceGameState is the poll-driven tick for a table: it repairs
// inconsistent state, resolves an expired turn clock, and pushes the hand
// machine forward. With no hand in progress it deals the next one when
// enough stacks remain, else marks the table waiting. It reports whether
// anything changed.
func (g *GameService) AdvanceGameState(ctx context.Context, tableID string) (bool, error) {
	changed := false
	var run *handRun
	err := store.WithRetry(ctx, func(ctx context.Context) error {
		changed = false
		run = nil
		var err error
		run, err = g.loadRun(ctx, tableID)
		if err != nil {
			run = nil
			if IsCode(err, CodeConflict) || IsCode(err, CodeNotFound) {
				return nil
			}
			return err
		}

		before := *run.hand
		if run.repair() {
			changed = true
		}
		if fired, err := g.applyTimeout(run); err != nil {
			return err
		} else if fired {
			changed = true
		}
		run.advanceMachine()

		if run.hand.Phase != before.Phase ||
			run.hand.CurrentActorSeat != before.CurrentActorSeat ||
			run.hand.Pot != before.Pot ||
			len(run.events) > 0 {
			changed = true
		}
		if !changed {
			return nil
		}
		return g.commit(ctx, run, false)
	})
	if err != nil {
		return false, err
	}
	if run == nil {
		return g.advanceIdle(ctx, tableID)
	}
	if changed {
		g.afterCommit(ctx, run)
	}
	return changed, nil
}

// advanceIdle ticks a table with no hand in progress: it deals the next hand
// when at least two stacks can still play, otherwise parks the table in
// waiting. Tournament tables are not dealt here; their orchestrator paces
// hands around blind levels and elimination handling.
func (g *GameService) advanceIdle(ctx context.Context, tableID string) (bool, error) {
	table, err := g.store.GetTable(ctx, tableID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if table.Status != store.TablePlaying {
		return false, nil
	}

	seats, err := g.store.SeatsByTable(ctx, tableID)
	if err != nil {
		return false, err
	}
	playable := 0
	for _, s := range seats {
		if s.Status != store.SeatEliminated && s.Status != store.SeatSittingOut && s.Stack > 0 {
			playable++
		}
	}

	if playable < 2 {
		err := store.WithRetry(ctx, func(ctx context.Context) error {
			t, err := g.store.GetTable(ctx, tableID)
			if err != nil {
				return err
			}
			if t.Status != store.TablePlaying {
				return nil
			}
			t.Status = store.TableWaiting
			return g.store.UpdateTable(ctx, t)
		})
		if err != nil {
			return false, err
		}
		g.log.Infof("table %s: %d playable stacks left, back to waiting", tableID, playable)
		return true, nil
	}

	if table.TournamentID != "" {
		return false, nil
	}
	if _, err := g.StartNewHand(ctx, tableID); err != nil {
		if IsCode(err, CodeConflict) {
			return false, nil // another tick won the deal
		}
		return false, err
	}
	return true, nil
}

// loadRun reads the table's active hand and its aggregate into a working
// set.
func (g *GameService) loadRun(ctx context.Context, tableID string) (*handRun, error) {
	hand, err := g.store.ActiveHandByTable(ctx, tableID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, Errorf(CodeConflict, "table %s has no hand in progress", tableID)
		}
		return nil, err
	}
	table, err := g.store.GetTable(ctx, tableID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, Errorf(CodeNotFound, "table %s not found", tableID)
		}
		return nil, err
	}
	seats, err := g.store.SeatsByTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return newHandRun(g.log, table, hand, seats, g.timerFor(ctx, table), g.nowFn(), g.newRNG()), nil
}

// applyTimeout checks the working set's deadline and applies the substitute
// action when it has expired.
func (g *GameService) applyTimeout(run *handRun) (bool, error) {
	seat := run.seatAt(run.hand.CurrentActorSeat)
	verdict := checkDeadline(run.hand, seat, run.now)
	if verdict == NoTimeout {
		return false, nil
	}
	action := store.ActionFold
	if verdict == AutoCheck {
		action = store.ActionCheck
	}
	run.emit(EventPlayerTimeout, PlayerTimeoutPayload{
		HandID:   run.hand.ID,
		Seat:     seat.SeatIndex,
		PlayerID: seat.PlayerID,
		Action:   verdict.String(),
	})
	run.log.Infof("table %s: seat %d (%s) timed out, %s",
		run.table.ID, seat.SeatIndex, seat.PlayerID, verdict)
	if err := run.apply(seat.SeatIndex, action, 0, true); err != nil {
		return false, err
	}
	return true, nil
}

// commit persists a working set. The optimistic write goes first; seats,
// pots, audit actions, and the event log are written only by the copy that
// won the version race.
func (g *GameService) commit(ctx context.Context, run *handRun, created bool) error {
	if created {
		if err := g.store.UpdateTable(ctx, run.table); err != nil {
			return err
		}
		if err := g.store.CreateHand(ctx, run.hand); err != nil {
			return err
		}
	} else {
		if err := g.store.UpdateHand(ctx, run.hand); err != nil {
			return err
		}
	}
	for _, s := range run.seats {
		if err := g.store.UpdateSeat(ctx, s); err != nil {
			return err
		}
	}
	if len(run.pots) > 0 {
		pots := make([]*store.Pot, 0, len(run.pots))
		for i, p := range run.pots {
			pots = append(pots, &store.Pot{
				ID:       fmt.Sprintf("%s-%d", run.hand.ID, i),
				HandID:   run.hand.ID,
				PotIndex: i,
				Amount:   p.Amount,
				Eligible: store.IntList(p.Eligible),
			})
		}
		if err := g.store.ReplacePots(ctx, run.hand.ID, pots); err != nil {
			return err
		}
	}
	if err := g.store.AppendActions(ctx, run.actions); err != nil {
		return err
	}
	return g.store.AppendEvents(ctx, logEvents(EntityHand, run.hand.ID, run.hand.Version, run.events))
}

// afterCommit broadcasts the run's events and fires the tournament hook for
// a completed hand. Both are fire-and-forget relative to the committed
// state.
func (g *GameService) afterCommit(ctx context.Context, run *handRun) {
	if run == nil {
		return
	}
	channel := broadcast.TableChannel(run.table.ID)
	for _, ev := range run.events {
		g.bcast.Broadcast(channel, ev.Name, ev.Payload)
	}
	if run.hand.Phase == store.PhaseComplete && g.hooks != nil {
		if err := g.hooks.HandCompleted(ctx, run.table, run.hand, run.eliminated); err != nil {
			g.log.Errorf("table %s: hand completion hook: %v", run.table.ID, err)
		}
	}
}

func seatForPlayer(seats []*store.Seat, playerID string) *store.Seat {
	for _, s := range seats {
		if s.PlayerID == playerID {
			return s
		}
	}
	return nil
}

// SeatSnapshot is one seat in a sanitized table view.
type SeatSnapshot struct {
	SeatIndex  int              `json:"seat_index"`
	PlayerID   string           `json:"player_id"`
	Stack      int64            `json:"stack"`
	Status     store.SeatStatus `json:"status"`
	CurrentBet int64            `json:"current_bet"`
	HoleCards  []poker.Card     `json:"hole_cards,omitempty"`
}

// HandSnapshot summarizes the active hand for clients.
type HandSnapshot struct {
	ID               string          `json:"id"`
	HandNum          int64           `json:"hand_num"`
	Phase            store.HandPhase `json:"phase"`
	DealerSeat       int             `json:"dealer_seat"`
	CurrentActorSeat int             `json:"current_actor_seat"`
	CurrentBet       int64           `json:"current_bet"`
	Pot              int64           `json:"pot"`
	Community        []poker.Card    `json:"community"`
	ActionDeadline   *time.Time      `json:"action_deadline,omitempty"`
	Version          int64           `json:"version"`
}

// TableSnapshot is the full sanitized table view for one viewer.
type TableSnapshot struct {
	TableID    string            `json:"table_id"`
	Status     store.TableStatus `json:"status"`
	SmallBlind int64             `json:"small_blind"`
	BigBlind   int64             `json:"big_blind"`
	Ante       int64             `json:"ante,omitempty"`
	DealerSeat int               `json:"dealer_seat"`
	Version    int64             `json:"version"`
	Seats      []SeatSnapshot    `json:"seats"`
	Hand       *HandSnapshot     `json:"hand,omitempty"`
}

// TableState builds the table view for viewerID. Hole cards are included
// only for the viewer's own seat, except after a contested showdown where
// every un-folded participant's cards are public.
func (g *GameService) TableState(ctx context.Context, tableID, viewerID string) (*TableSnapshot, error) {
	table, err := g.store.GetTable(ctx, tableID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, Errorf(CodeNotFound, "table %s not found", tableID)
		}
		return nil, err
	}
	seats, err := g.store.SeatsByTable(ctx, tableID)
	if err != nil {
		return nil, err
	}

	snap := &TableSnapshot{
		TableID:    table.ID,
		Status:     table.Status,
		SmallBlind: table.SmallBlind,
		BigBlind:   table.BigBlind,
		Ante:       table.Ante,
		DealerSeat: table.DealerSeat,
		Version:    table.Version,
	}

	var hand *store.Hand
	if h, err := g.store.ActiveHandByTable(ctx, tableID); err == nil {
		hand = h
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if hand != nil {
		snap.Hand = &HandSnapshot{
			ID:               hand.ID,
			HandNum:          hand.HandNum,
			Phase:            hand.Phase,
			DealerSeat:       hand.DealerSeat,
			CurrentActorSeat: hand.CurrentActorSeat,
			CurrentBet:       hand.CurrentBet,
			Pot:              hand.Pot,
			Community:        append([]poker.Card{}, hand.Community...),
			ActionDeadline:   hand.ActionDeadline,
			Version:          hand.Version,
		}
	}

	revealed := showdownRevealed(hand, seats)
	for _, s := range seats {
		ss := SeatSnapshot{
			SeatIndex:  s.SeatIndex,
			PlayerID:   s.PlayerID,
			Stack:      s.Stack,
			Status:     s.Status,
			CurrentBet: s.CurrentBet,
		}
		if s.PlayerID == viewerID || (revealed && unfoldedParticipant(s)) {
			ss.HoleCards = append([]poker.Card{}, s.HoleCards...)
		}
		snap.Seats = append(snap.Seats, ss)
	}
	return snap, nil
}

func unfoldedParticipant(s *store.Seat) bool {
	return len(s.HoleCards) == 2 && s.Status != store.SeatFolded
}

// showdownRevealed reports whether the hand reached a contested showdown,
// which makes un-folded hole cards public.
func showdownRevealed(hand *store.Hand, seats []*store.Seat) bool {
	if hand == nil || hand.ShowdownAt == nil || len(hand.Community) != 5 {
		return false
	}
	n := 0
	for _, s := range seats {
		if unfoldedParticipant(s) {
			n++
		}
	}
	return n > 1
}
