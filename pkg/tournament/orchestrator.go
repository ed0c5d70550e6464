// Package tournament runs single-table sit-and-go tournaments on top of the
// game engine: registration and buy-ins, start countdowns, blind
// escalation, eliminations, and prize payouts.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"
	"github.com/thoas/go-funk"
	"github.com/weedbox/timebank"

	"github.com/CodeSpent/pokerpal/pkg/broadcast"
	"github.com/CodeSpent/pokerpal/pkg/engine"
	"github.com/CodeSpent/pokerpal/pkg/store"
)

const (
	// minPlayers is the smallest field a tournament can start with.
	minPlayers = 2
	// interHandDelay is the pause between a hand finishing and the next
	// deal.
	interHandDelay = 3 * time.Second
	// tickTimeout bounds scheduled background ticks.
	tickTimeout = 30 * time.Second
)

// Orchestrator drives tournament lifecycles. Progression is pull-based:
// every transition is reachable through Tick, with timebank tasks scheduled
// as accelerators so countdown expiry, blind levels, and the next deal do
// not wait for the next sweep.
type Orchestrator struct {
	log       slog.Logger
	store     store.Store
	bcast     broadcast.Broadcaster
	game      *engine.GameService
	countdown time.Duration
	nowFn     func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewOrchestrator builds an orchestrator with the given start countdown.
func NewOrchestrator(log slog.Logger, st store.Store, bcast broadcast.Broadcaster, game *engine.GameService, countdown time.Duration) *Orchestrator {
	if bcast == nil {
		bcast = broadcast.Nop{}
	}
	return &Orchestrator{
		log:       log,
		store:     st,
		bcast:     bcast,
		game:      game,
		countdown: countdown,
		nowFn:     time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

var _ engine.TournamentHooks = (*Orchestrator)(nil)

// tnRun is the working set for one tournament transition.
type tnRun struct {
	tn     *store.Tournament
	events []engine.Event
}

func (r *tnRun) emit(name string, payload interface{}) {
	r.events = append(r.events, engine.Event{Name: name, Payload: payload})
}

// commit writes the tournament under its optimistic lock, then persists and
// broadcasts the run's events.
func (o *Orchestrator) commit(ctx context.Context, run *tnRun) error {
	if err := o.store.UpdateTournament(ctx, run.tn); err != nil {
		return err
	}
	if err := o.store.AppendEvents(ctx, eventRows(run.tn.ID, run.tn.Version, run.events)); err != nil {
		return err
	}
	channel := broadcast.TournamentChannel(run.tn.ID)
	for _, ev := range run.events {
		o.bcast.Broadcast(channel, ev.Name, ev.Payload)
	}
	return nil
}

// CreateParams configures a new tournament.
type CreateParams struct {
	HostID        string
	MaxPlayers    int
	StartingChips int64
	BuyIn         int64
	SmallBlind    int64
	BigBlind      int64
	LevelDuration time.Duration
	TurnTimer     time.Duration
}

// Create opens a tournament for registration.
func (o *Orchestrator) Create(ctx context.Context, p CreateParams) (*store.Tournament, error) {
	switch {
	case p.HostID == "":
		return nil, engine.Errorf(engine.CodeValidation, "host is required")
	case p.MaxPlayers < minPlayers || p.MaxPlayers > 9:
		return nil, engine.Errorf(engine.CodeValidation, "max players must be between %d and 9, got %d", minPlayers, p.MaxPlayers)
	case p.StartingChips <= 0:
		return nil, engine.Errorf(engine.CodeValidation, "starting chips must be positive")
	case p.BuyIn < 0:
		return nil, engine.Errorf(engine.CodeValidation, "buy-in cannot be negative")
	case p.SmallBlind <= 0 || p.BigBlind <= p.SmallBlind:
		return nil, engine.Errorf(engine.CodeValidation, "blinds must satisfy 0 < small < big, got %d/%d", p.SmallBlind, p.BigBlind)
	case p.LevelDuration <= 0:
		return nil, engine.Errorf(engine.CodeValidation, "level duration must be positive")
	}

	tn := &store.Tournament{
		ID:            uuid.New().String(),
		Status:        store.TournamentRegistering,
		HostID:        p.HostID,
		MaxPlayers:    p.MaxPlayers,
		TableSize:     p.MaxPlayers,
		StartingChips: p.StartingChips,
		BuyIn:         p.BuyIn,
		SmallBlind:    p.SmallBlind,
		BigBlind:      p.BigBlind,
		LevelDuration: p.LevelDuration,
		TurnTimer:     p.TurnTimer,
		CurrentLevel:  1,
	}
	if err := o.store.CreateTournament(ctx, tn); err != nil {
		return nil, err
	}
	o.log.Infof("tournament %s created by %s: %d players, buy-in %d, chips %d",
		tn.ID, p.HostID, p.MaxPlayers, p.BuyIn, p.StartingChips)
	return tn, nil
}

func registeredIDs(regs []*store.Registration) []string {
	return funk.Map(regs, func(r *store.Registration) string { return r.PlayerID }).([]string)
}

// Register debits the buy-in and adds the player to the roster. Filling the
// last seat starts the countdown. A lost version race refunds the debit and
// retries against the fresh roster.
func (o *Orchestrator) Register(ctx context.Context, tournamentID, playerID string) error {
	return store.WithRetry(ctx, func(ctx context.Context) error {
		tn, err := o.getTournament(ctx, tournamentID)
		if err != nil {
			return err
		}
		if tn.Status != store.TournamentRegistering {
			return engine.Errorf(engine.CodeConflict, "tournament %s is not open for registration (%s)", tn.ID, tn.Status)
		}
		regs, err := o.store.RegistrationsByTournament(ctx, tn.ID)
		if err != nil {
			return err
		}
		if funk.ContainsString(registeredIDs(regs), playerID) {
			return engine.Errorf(engine.CodeAlreadyRegistered, "player %s is already registered for %s", playerID, tn.ID)
		}
		if len(regs) >= tn.MaxPlayers {
			return engine.Errorf(engine.CodeCapacity, "tournament %s is full (%d/%d)", tn.ID, len(regs), tn.MaxPlayers)
		}

		if tn.BuyIn > 0 {
			if err := o.store.Debit(ctx, playerID, tn.BuyIn, fmt.Sprintf("buy-in tournament %s", tn.ID)); err != nil {
				switch {
				case errors.Is(err, store.ErrInsufficientBalance):
					return engine.Errorf(engine.CodeFunds, "player %s cannot cover the %d buy-in", playerID, tn.BuyIn)
				case errors.Is(err, store.ErrNotFound):
					return engine.Errorf(engine.CodeNotFound, "player %s not found", playerID)
				default:
					return err
				}
			}
		}
		if err := o.store.CreateRegistration(ctx, &store.Registration{
			ID:           uuid.New().String(),
			TournamentID: tn.ID,
			PlayerID:     playerID,
		}); err != nil {
			o.refund(ctx, tn, playerID, "registration rollback")
			return err
		}

		run := &tnRun{tn: tn}
		tn.PrizePool += tn.BuyIn
		run.emit(EventPlayerRegistered, RosterPayload{
			TournamentID: tn.ID,
			PlayerID:     playerID,
			Registered:   len(regs) + 1,
			Capacity:     tn.MaxPlayers,
		})
		if len(regs)+1 == tn.MaxPlayers {
			o.beginCountdown(run)
		}

		if err := o.commit(ctx, run); err != nil {
			// The debit and row must not survive a lost race; the retry
			// re-evaluates from scratch.
			if derr := o.store.DeleteRegistration(ctx, tn.ID, playerID); derr != nil {
				o.log.Errorf("tournament %s: rollback registration for %s: %v", tn.ID, playerID, derr)
			}
			o.refund(ctx, tn, playerID, "registration rollback")
			return err
		}
		return nil
	})
}

func (o *Orchestrator) refund(ctx context.Context, tn *store.Tournament, playerID, reason string) {
	if tn.BuyIn <= 0 {
		return
	}
	if err := o.store.Credit(ctx, playerID, tn.BuyIn, fmt.Sprintf("%s tournament %s", reason, tn.ID)); err != nil {
		o.log.Errorf("tournament %s: refund %d to %s: %v", tn.ID, tn.BuyIn, playerID, err)
	}
}

// Unregister removes a player before the tournament starts and refunds the
// buy-in. Leaving during the countdown calls the countdown off.
func (o *Orchestrator) Unregister(ctx context.Context, tournamentID, playerID string) error {
	return store.WithRetry(ctx, func(ctx context.Context) error {
		tn, err := o.getTournament(ctx, tournamentID)
		if err != nil {
			return err
		}
		if tn.Status != store.TournamentRegistering && tn.Status != store.TournamentStarting {
			return engine.Errorf(engine.CodeConflict, "tournament %s has already started (%s)", tn.ID, tn.Status)
		}
		if _, err := o.store.GetRegistration(ctx, tn.ID, playerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return engine.Errorf(engine.CodeNotRegistered, "player %s is not registered for %s", playerID, tn.ID)
			}
			return err
		}
		regs, err := o.store.RegistrationsByTournament(ctx, tn.ID)
		if err != nil {
			return err
		}

		run := &tnRun{tn: tn}
		tn.PrizePool -= tn.BuyIn
		run.emit(EventPlayerUnregistered, RosterPayload{
			TournamentID: tn.ID,
			PlayerID:     playerID,
			Registered:   len(regs) - 1,
			Capacity:     tn.MaxPlayers,
		})
		if tn.Status == store.TournamentStarting {
			tn.Status = store.TournamentRegistering
			tn.CountdownStartedAt = nil
			run.emit(EventCountdownCancelled, CountdownPayload{
				TournamentID: tn.ID,
				Reason:       "player left during countdown",
			})
		}

		if err := o.commit(ctx, run); err != nil {
			return err
		}
		if err := o.store.DeleteRegistration(ctx, tn.ID, playerID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if run.tn.Status == store.TournamentRegistering {
			if err := o.store.ResetReadyFlags(ctx, tn.ID); err != nil {
				o.log.Errorf("tournament %s: reset ready flags: %v", tn.ID, err)
			}
		}
		o.refund(ctx, tn, playerID, "unregister refund")
		return nil
	})
}

// VoteEarlyStart records a registered player's vote to start before the
// roster fills. A unanimous vote of at least two registered players begins
// the countdown.
func (o *Orchestrator) VoteEarlyStart(ctx context.Context, tournamentID, playerID string) error {
	return store.WithRetry(ctx, func(ctx context.Context) error {
		tn, err := o.getTournament(ctx, tournamentID)
		if err != nil {
			return err
		}
		if tn.Status != store.TournamentRegistering {
			return engine.Errorf(engine.CodeConflict, "tournament %s is not accepting votes (%s)", tn.ID, tn.Status)
		}
		regs, err := o.store.RegistrationsByTournament(ctx, tn.ID)
		if err != nil {
			return err
		}
		if !funk.ContainsString(registeredIDs(regs), playerID) {
			return engine.Errorf(engine.CodeNotRegistered, "player %s is not registered for %s", playerID, tn.ID)
		}
		votes, err := o.store.VotesByTournament(ctx, tn.ID)
		if err != nil {
			return err
		}
		voted := funk.Map(votes, func(v *store.EarlyStartVote) string { return v.PlayerID }).([]string)
		if funk.ContainsString(voted, playerID) {
			return nil // voting twice is a no-op
		}
		if err := o.store.CreateEarlyStartVote(ctx, &store.EarlyStartVote{
			ID:           uuid.New().String(),
			TournamentID: tn.ID,
			PlayerID:     playerID,
		}); err != nil {
			return err
		}

		run := &tnRun{tn: tn}
		total := len(regs)
		inFavor := len(votes) + 1
		run.emit(EventEarlyStartVote, RosterPayload{
			TournamentID: tn.ID,
			PlayerID:     playerID,
			Registered:   total,
			Capacity:     tn.MaxPlayers,
		})
		if total >= minPlayers && inFavor == total {
			o.beginCountdown(run)
		}
		return o.commit(ctx, run)
	})
}

// ForceStart lets the host start immediately with the current roster.
func (o *Orchestrator) ForceStart(ctx context.Context, tournamentID, hostID string) error {
	return store.WithRetry(ctx, func(ctx context.Context) error {
		tn, err := o.getTournament(ctx, tournamentID)
		if err != nil {
			return err
		}
		if tn.HostID != hostID {
			return engine.Errorf(engine.CodeValidation, "only the host can force start %s", tn.ID)
		}
		if tn.Status != store.TournamentRegistering && tn.Status != store.TournamentStarting {
			return engine.Errorf(engine.CodeConflict, "tournament %s has already started (%s)", tn.ID, tn.Status)
		}
		regs, err := o.store.RegistrationsByTournament(ctx, tn.ID)
		if err != nil {
			return err
		}
		if len(regs) < minPlayers {
			return engine.Errorf(engine.CodeValidation, "tournament %s needs at least %d players to start", tn.ID, minPlayers)
		}
		run := &tnRun{tn: tn}
		return o.start(ctx, run, regs)
	})
}

// MarkReady flags a registered player as ready during the countdown. The
// tournament starts as soon as every registered player is ready.
func (o *Orchestrator) MarkReady(ctx context.Context, tournamentID, playerID string) error {
	return store.WithRetry(ctx, func(ctx context.Context) error {
		tn, err := o.getTournament(ctx, tournamentID)
		if err != nil {
			return err
		}
		if tn.Status != store.TournamentStarting {
			return engine.Errorf(engine.CodeConflict, "tournament %s is not counting down (%s)", tn.ID, tn.Status)
		}
		reg, err := o.store.GetRegistration(ctx, tn.ID, playerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return engine.Errorf(engine.CodeNotRegistered, "player %s is not registered for %s", playerID, tn.ID)
			}
			return err
		}
		if !reg.Ready {
			reg.Ready = true
			if err := o.store.UpdateRegistration(ctx, reg); err != nil {
				return err
			}
		}
		regs, err := o.store.RegistrationsByTournament(ctx, tn.ID)
		if err != nil {
			return err
		}
		for _, r := range regs {
			if !r.Ready {
				return nil
			}
		}
		run := &tnRun{tn: tn}
		return o.start(ctx, run, regs)
	})
}

// Cancel calls off a tournament that has not started and refunds every
// buy-in.
func (o *Orchestrator) Cancel(ctx context.Context, tournamentID, requesterID, reason string) error {
	return store.WithRetry(ctx, func(ctx context.Context) error {
		tn, err := o.getTournament(ctx, tournamentID)
		if err != nil {
			return err
		}
		if tn.HostID != requesterID {
			return engine.Errorf(engine.CodeValidation, "only the host can cancel %s", tn.ID)
		}
		if tn.Status != store.TournamentRegistering && tn.Status != store.TournamentStarting {
			return engine.Errorf(engine.CodeConflict, "tournament %s has already started (%s)", tn.ID, tn.Status)
		}
		regs, err := o.store.RegistrationsByTournament(ctx, tn.ID)
		if err != nil {
			return err
		}

		run := &tnRun{tn: tn}
		tn.Status = store.TournamentCancelled
		tn.PrizePool = 0
		tn.CountdownStartedAt = nil
		run.emit(EventCancelled, CancelledPayload{
			TournamentID: tn.ID,
			Reason:       reason,
			Refunded:     len(regs),
		})
		if err := o.commit(ctx, run); err != nil {
			return err
		}
		for _, reg := range regs {
			o.refund(ctx, tn, reg.PlayerID, "cancellation refund")
		}
		o.log.Infof("tournament %s cancelled by %s: %s", tn.ID, requesterID, reason)
		return nil
	})
}

// beginCountdown flips the tournament into its start countdown and
// schedules the tick that fires when it elapses.
func (o *Orchestrator) beginCountdown(run *tnRun) {
	now := o.nowFn()
	run.tn.Status = store.TournamentStarting
	run.tn.CountdownStartedAt = &now
	startsAt := now.Add(o.countdown)
	run.emit(EventCountdownStarted, CountdownPayload{
		TournamentID: run.tn.ID,
		StartsAt:     &startsAt,
	})
	o.schedule(run.tn.ID, o.countdown+time.Second)
}

// schedule arms a one-shot background tick for the tournament. Ticks are
// also driven by the daemon's periodic sweep, so a lost timer only delays
// progression.
func (o *Orchestrator) schedule(tournamentID string, delay time.Duration) {
	timebank.NewTimeBank().NewTask(delay, func(isCancelled bool) {
		if isCancelled {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
		defer cancel()
		if _, err := o.Tick(ctx, tournamentID); err != nil {
			o.log.Errorf("tournament %s: scheduled tick: %v", tournamentID, err)
		}
	})
}

func (o *Orchestrator) getTournament(ctx context.Context, id string) (*store.Tournament, error) {
	tn, err := o.store.GetTournament(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, engine.Errorf(engine.CodeNotFound, "tournament %s not found", id)
		}
		return nil, err
	}
	return tn, nil
}

func isLive(status store.TournamentStatus) bool {
	switch status {
	case store.TournamentRunning, store.TournamentFinalTable, store.TournamentHeadsUp:
		return true
	default:
		return false
	}
}

// Tick drives one tournament forward: it starts play when the countdown
// has elapsed, escalates blind levels, keeps hands being dealt, and settles
// the finish. It reports whether anything changed.
func (o *Orchestrator) Tick(ctx context.Context, tournamentID string) (bool, error) {
	changed := false
	err := store.WithRetry(ctx, func(ctx context.Context) error {
		changed = false
		tn, err := o.getTournament(ctx, tournamentID)
		if err != nil {
			return err
		}

		switch {
		case tn.Status == store.TournamentStarting:
			if tn.CountdownStartedAt == nil || o.nowFn().Before(tn.CountdownStartedAt.Add(o.countdown)) {
				return nil
			}
			regs, err := o.store.RegistrationsByTournament(ctx, tn.ID)
			if err != nil {
				return err
			}
			if len(regs) < minPlayers {
				return nil
			}
			changed = true
			run := &tnRun{tn: tn}
			return o.start(ctx, run, regs)

		case isLive(tn.Status):
			return o.tickLive(ctx, tn, &changed)

		default:
			return nil
		}
	})
	return changed, err
}

// start transitions a tournament into play: the table row and seats are
// created, stacks are set, and the first hand is scheduled.
func (o *Orchestrator) start(ctx context.Context, run *tnRun, regs []*store.Registration) error {
	tn := run.tn
	now := o.nowFn()

	tn.TableID = uuid.New().String()
	tn.Status = store.TournamentRunning
	tn.CurrentLevel = 1
	tn.PlayersRemaining = len(regs)
	tn.StartedAt = &now
	tn.LevelStartedAt = &now
	tn.CountdownStartedAt = nil

	run.emit(EventStarted, StartedPayload{
		TournamentID:  tn.ID,
		TableID:       tn.TableID,
		Players:       len(regs),
		StartingChips: tn.StartingChips,
	})

	// The optimistic write is the gate; only the winner creates the table.
	if err := o.commit(ctx, run); err != nil {
		return err
	}
	if err := o.createPlay(ctx, tn, regs); err != nil {
		return err
	}
	o.schedule(tn.ID, interHandDelay)
	o.schedule(tn.ID, tn.LevelDuration+time.Second)
	o.log.Infof("tournament %s started with %d players on table %s", tn.ID, len(regs), tn.TableID)
	return nil
}

// createPlay builds the tournament's table and randomly seated roster.
func (o *Orchestrator) createPlay(ctx context.Context, tn *store.Tournament, regs []*store.Registration) error {
	lvl := LevelFor(tn.CurrentLevel, tn.SmallBlind, tn.BigBlind)
	if err := o.store.CreateTable(ctx, &store.Table{
		ID:           tn.TableID,
		TournamentID: tn.ID,
		SeatCount:    tn.TableSize,
		SmallBlind:   lvl.SmallBlind,
		BigBlind:     lvl.BigBlind,
		Ante:         lvl.Ante,
		DealerSeat:   tn.TableSize - 1, // first hand's dealer lands on seat 0
		Status:       store.TableWaiting,
	}); err != nil {
		return err
	}

	shuffled := make([]*store.Registration, len(regs))
	copy(shuffled, regs)
	o.rngMu.Lock()
	o.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	o.rngMu.Unlock()

	for i, reg := range shuffled {
		if err := o.store.CreateSeat(ctx, &store.Seat{
			ID:        uuid.New().String(),
			TableID:   tn.TableID,
			PlayerID:  reg.PlayerID,
			SeatIndex: i,
			Stack:     tn.StartingChips,
			Status:    store.SeatWaiting,
		}); err != nil {
			return err
		}
	}
	return nil
}

// tickLive advances a running tournament: recovers a missing table,
// escalates blinds, pushes the engine, and deals the next hand when the
// table is idle.
func (o *Orchestrator) tickLive(ctx context.Context, tn *store.Tournament, changed *bool) error {
	if _, err := o.store.GetTable(ctx, tn.TableID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		// Crashed between the status flip and table creation.
		regs, rerr := o.store.RegistrationsByTournament(ctx, tn.ID)
		if rerr != nil {
			return rerr
		}
		if cerr := o.createPlay(ctx, tn, regs); cerr != nil {
			return cerr
		}
		*changed = true
	}

	if tn.LevelStartedAt != nil && o.nowFn().Sub(*tn.LevelStartedAt) >= tn.LevelDuration {
		if err := o.escalateBlinds(ctx, tn); err != nil {
			return err
		}
		*changed = true
	}

	if moved, err := o.game.AdvanceGameState(ctx, tn.TableID); err != nil {
		return err
	} else if moved {
		*changed = true
	}

	// Deal the next hand when no hand is running and more than one stack
	// survives.
	if _, err := o.store.ActiveHandByTable(ctx, tn.TableID); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	seats, err := o.store.SeatsByTable(ctx, tn.TableID)
	if err != nil {
		return err
	}
	if len(survivors(seats)) > 1 {
		if _, err := o.game.StartNewHand(ctx, tn.TableID); err != nil {
			if engine.CodeOf(err) != "" {
				o.log.Debugf("tournament %s: deal skipped: %v", tn.ID, err)
				return nil
			}
			return err
		}
		*changed = true
		return nil
	}
	run := &tnRun{tn: tn}
	if err := o.finish(ctx, run, seats); err != nil {
		return err
	}
	*changed = true
	return nil
}

// escalateBlinds bumps the tournament to its next level and pushes the new
// blinds onto the table row under its own optimistic lock.
func (o *Orchestrator) escalateBlinds(ctx context.Context, tn *store.Tournament) error {
	now := o.nowFn()
	lvl := LevelFor(tn.CurrentLevel+1, tn.SmallBlind, tn.BigBlind)

	run := &tnRun{tn: tn}
	tn.CurrentLevel = lvl.Num
	tn.LevelStartedAt = &now
	run.emit(EventBlindsUp, BlindsUpPayload{TournamentID: tn.ID, Level: lvl})
	if err := o.commit(ctx, run); err != nil {
		return err
	}

	err := store.WithRetry(ctx, func(ctx context.Context) error {
		table, err := o.store.GetTable(ctx, tn.TableID)
		if err != nil {
			return err
		}
		table.SmallBlind = lvl.SmallBlind
		table.BigBlind = lvl.BigBlind
		table.Ante = lvl.Ante
		return o.store.UpdateTable(ctx, table)
	})
	if err != nil {
		return err
	}
	o.schedule(tn.ID, tn.LevelDuration+time.Second)
	o.log.Infof("tournament %s: blinds up to level %d (%d/%d ante %d)",
		tn.ID, lvl.Num, lvl.SmallBlind, lvl.BigBlind, lvl.Ante)
	return nil
}

func survivors(seats []*store.Seat) []*store.Seat {
	var out []*store.Seat
	for _, s := range seats {
		if s.Stack > 0 && s.Status != store.SeatEliminated {
			out = append(out, s)
		}
	}
	return out
}

// HandCompleted implements engine.TournamentHooks: it assigns finishing
// places to busted players, tracks the remaining field, and either finishes
// the tournament or schedules the next deal.
func (o *Orchestrator) HandCompleted(ctx context.Context, table *store.Table, hand *store.Hand, eliminated []*store.Seat) error {
	if table.TournamentID == "" {
		return nil
	}
	return store.WithRetry(ctx, func(ctx context.Context) error {
		tn, err := o.getTournament(ctx, table.TournamentID)
		if err != nil {
			return err
		}
		if !isLive(tn.Status) {
			return nil
		}
		seats, err := o.store.SeatsByTable(ctx, table.ID)
		if err != nil {
			return err
		}
		remaining := len(survivors(seats))

		run := &tnRun{tn: tn}
		tn.PlayersRemaining = remaining

		// Simultaneous bust-outs place by the stack they started the hand
		// with: the shorter stack takes the worse place.
		busted := make([]*store.Seat, len(eliminated))
		copy(busted, eliminated)
		sort.Slice(busted, func(i, j int) bool {
			if busted[i].HandStartStack != busted[j].HandStartStack {
				return busted[i].HandStartStack < busted[j].HandStartStack
			}
			return busted[i].SeatIndex < busted[j].SeatIndex
		})
		place := remaining + len(busted)
		for _, s := range busted {
			run.emit(EventPlayerBusted, BustedPayload{
				TournamentID: tn.ID,
				PlayerID:     s.PlayerID,
				Place:        place,
				Remaining:    remaining,
			})
			place--
		}

		if remaining == 2 && tn.Status != store.TournamentHeadsUp {
			tn.Status = store.TournamentHeadsUp
		}
		if remaining <= 1 {
			return o.finish(ctx, run, seats)
		}
		if err := o.commit(ctx, run); err != nil {
			return err
		}
		o.schedule(tn.ID, interHandDelay)
		return nil
	})
}

// finishOrder reconstructs finishing places from the seats: the surviving
// stack first, then bust-outs from latest to earliest, simultaneous ones by
// hand-start stack.
func finishOrder(seats []*store.Seat) []string {
	ordered := make([]*store.Seat, len(seats))
	copy(ordered, seats)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if (a.Stack > 0) != (b.Stack > 0) {
			return a.Stack > 0
		}
		if a.EliminatedAt != nil && b.EliminatedAt != nil && !a.EliminatedAt.Equal(*b.EliminatedAt) {
			return a.EliminatedAt.After(*b.EliminatedAt)
		}
		if a.HandStartStack != b.HandStartStack {
			return a.HandStartStack > b.HandStartStack
		}
		return a.SeatIndex < b.SeatIndex
	})
	out := make([]string, 0, len(ordered))
	for _, s := range ordered {
		out = append(out, s.PlayerID)
	}
	return out
}

// finish settles the tournament: payout rows are the idempotency marker, so
// a finish observed twice credits prizes exactly once.
func (o *Orchestrator) finish(ctx context.Context, run *tnRun, seats []*store.Seat) error {
	tn := run.tn

	existing, err := o.store.PayoutsByTournament(ctx, tn.ID)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		order := finishOrder(seats)
		amounts := ComputePayouts(tn.PrizePool, len(order))
		payouts := make([]*store.Payout, 0, len(amounts))
		var prizes []PlacePrize
		for i, amount := range amounts {
			if i >= len(order) {
				break
			}
			payouts = append(payouts, &store.Payout{
				ID:           uuid.New().String(),
				TournamentID: tn.ID,
				PlayerID:     order[i],
				Place:        i + 1,
				Amount:       amount,
			})
			prizes = append(prizes, PlacePrize{Place: i + 1, PlayerID: order[i], Amount: amount})
		}
		if err := o.store.CreatePayouts(ctx, payouts); err != nil {
			return err
		}
		for _, p := range payouts {
			if err := o.store.Credit(ctx, p.PlayerID, p.Amount, fmt.Sprintf("payout place %d tournament %s", p.Place, tn.ID)); err != nil {
				o.log.Errorf("tournament %s: credit payout to %s: %v", tn.ID, p.PlayerID, err)
			}
		}
		winner := ""
		if len(order) > 0 {
			winner = order[0]
		}
		run.emit(EventFinished, FinishedPayload{
			TournamentID: tn.ID,
			WinnerID:     winner,
			Payouts:      prizes,
		})
		o.log.Infof("tournament %s finished, winner %s, prize pool %d", tn.ID, winner, tn.PrizePool)
	}

	now := o.nowFn()
	tn.Status = store.TournamentComplete
	tn.PlayersRemaining = len(survivors(seats))
	tn.CompletedAt = &now
	if err := o.commit(ctx, run); err != nil {
		return err
	}

	// Best effort table close; a conflict just leaves it for the sweep.
	return store.WithRetry(ctx, func(ctx context.Context) error {
		table, err := o.store.GetTable(ctx, tn.TableID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		if table.Status == store.TableClosed {
			return nil
		}
		table.Status = store.TableClosed
		return o.store.UpdateTable(ctx, table)
	})
}

// Sweep ticks every tournament that can still make progress. The daemon
// calls this periodically so progression survives lost timers and restarts.
func (o *Orchestrator) Sweep(ctx context.Context) error {
	tns, err := o.store.TournamentsByStatus(ctx,
		store.TournamentStarting,
		store.TournamentRunning,
		store.TournamentFinalTable,
		store.TournamentHeadsUp,
	)
	if err != nil {
		return err
	}
	for _, tn := range tns {
		if _, err := o.Tick(ctx, tn.ID); err != nil {
			o.log.Errorf("tournament %s: sweep tick: %v", tn.ID, err)
		}
	}
	return nil
}
