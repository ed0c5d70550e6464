package engine

import (
	"math/rand"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"

	"github.com/CodeSpent/pokerpal/pkg/poker"
	"github.com/CodeSpent/pokerpal/pkg/statemachine"
	"github.com/CodeSpent/pokerpal/pkg/store"
)

// handStateFn is a hand phase state function following Rob Pike's pattern.
type handStateFn = statemachine.StateFn[handRun]

// handRun is the in-memory working set for one hand transition: the hand,
// its table and seats, plus everything produced along the way (events,
// audit actions, pots). The service persists the whole set under the hand's
// optimistic lock after the machine settles.
type handRun struct {
	log       slog.Logger
	table     *store.Table
	hand      *store.Hand
	seats     []*store.Seat
	turnTimer time.Duration
	now       time.Time
	rng       *rand.Rand

	events      []Event
	actions     []*store.Action
	pots        []poker.Pot
	values      map[int]poker.HandValue
	eliminated  []*store.Seat
	turnChanged bool
}

func newHandRun(log slog.Logger, table *store.Table, hand *store.Hand, seats []*store.Seat, turnTimer time.Duration, now time.Time, rng *rand.Rand) *handRun {
	return &handRun{
		log:       log,
		table:     table,
		hand:      hand,
		seats:     seats,
		turnTimer: turnTimer,
		now:       now,
		rng:       rng,
		values:    make(map[int]poker.HandValue),
	}
}

func (r *handRun) emit(name string, payload interface{}) {
	r.events = append(r.events, Event{Name: name, Payload: payload})
}

func (r *handRun) seatAt(idx int) *store.Seat {
	for _, s := range r.seats {
		if s.SeatIndex == idx {
			return s
		}
	}
	return nil
}

func (r *handRun) playerAt(idx int) string {
	if s := r.seatAt(idx); s != nil {
		return s.PlayerID
	}
	return ""
}

// inHand reports whether the seat was dealt into the current hand.
func inHand(s *store.Seat) bool {
	switch s.Status {
	case store.SeatActive, store.SeatActed, store.SeatFolded, store.SeatAllIn:
		return true
	default:
		return false
	}
}

// alive returns dealt-in seats that have not folded.
func (r *handRun) alive() []*store.Seat {
	var out []*store.Seat
	for _, s := range r.seats {
		if inHand(s) && s.Status != store.SeatFolded {
			out = append(out, s)
		}
	}
	return out
}

// actionable returns alive seats that can still act (not all-in).
func (r *handRun) actionable() []*store.Seat {
	var out []*store.Seat
	for _, s := range r.alive() {
		if s.Status != store.SeatAllIn {
			out = append(out, s)
		}
	}
	return out
}

// nextSeat finds the nearest seat clockwise strictly after from that
// satisfies pred, or NoSeat.
func (r *handRun) nextSeat(from int, pred func(*store.Seat) bool) int {
	n := r.table.SeatCount
	for step := 1; step <= n; step++ {
		idx := ((from + step) % n)
		if idx < 0 {
			idx += n
		}
		if s := r.seatAt(idx); s != nil && pred(s) {
			return idx
		}
	}
	return store.NoSeat
}

func canActPred(s *store.Seat) bool {
	return s.Status == store.SeatActive || s.Status == store.SeatActed
}

// deal starts a fresh hand: shuffles a new deck, deals hole cards, posts
// blinds and antes, and sets the first actor. The caller has already
// verified no other hand is active.
func (r *handRun) deal() error {
	var eligible []*store.Seat
	for _, s := range r.seats {
		if s.Status != store.SeatEliminated && s.Status != store.SeatSittingOut && s.Stack > 0 {
			eligible = append(eligible, s)
		}
	}
	if len(eligible) < 2 {
		return Errorf(CodeValidation, "need at least 2 seats with chips to deal, have %d", len(eligible))
	}

	eligibleSet := make(map[int]bool, len(eligible))
	for _, s := range eligible {
		eligibleSet[s.SeatIndex] = true
	}

	dealer := r.nextSeat(r.table.DealerSeat, func(s *store.Seat) bool { return eligibleSet[s.SeatIndex] })
	r.table.DealerSeat = dealer
	r.table.HandCounter++
	r.table.Status = store.TablePlaying

	h := r.hand
	h.ID = uuid.New().String()
	h.TableID = r.table.ID
	h.HandNum = r.table.HandCounter
	h.Phase = store.PhaseDealing
	h.DealerSeat = dealer
	h.CurrentActorSeat = store.NoSeat
	h.RaiseIncrement = r.table.BigBlind

	// Reset per-hand seat state and deal two hole cards each, two passes
	// starting left of the dealer.
	deck := poker.NewDeck(r.rng)
	for _, s := range eligible {
		s.Status = store.SeatActive
		s.CurrentBet = 0
		s.HandContrib = 0
		s.HandStartStack = s.Stack
		s.HoleCards = nil
	}
	order := r.dealOrder(dealer, eligibleSet)
	for pass := 0; pass < 2; pass++ {
		for _, idx := range order {
			card, ok := deck.Draw()
			if !ok {
				return Errorf(CodeValidation, "deck exhausted while dealing")
			}
			s := r.seatAt(idx)
			s.HoleCards = append(s.HoleCards, card)
		}
	}

	// Blind positions; heads-up the dealer posts the small blind.
	if len(eligible) == 2 {
		h.SmallBlindSeat = dealer
		h.BigBlindSeat = r.nextSeat(dealer, func(s *store.Seat) bool { return eligibleSet[s.SeatIndex] })
	} else {
		h.SmallBlindSeat = r.nextSeat(dealer, func(s *store.Seat) bool { return eligibleSet[s.SeatIndex] })
		h.BigBlindSeat = r.nextSeat(h.SmallBlindSeat, func(s *store.Seat) bool { return eligibleSet[s.SeatIndex] })
	}

	if r.table.Ante > 0 {
		for _, idx := range order {
			r.post(r.seatAt(idx), r.table.Ante, store.ActionPostAnte)
		}
	}
	r.post(r.seatAt(h.SmallBlindSeat), r.table.SmallBlind, store.ActionPostSB)
	r.post(r.seatAt(h.BigBlindSeat), r.table.BigBlind, store.ActionPostBB)
	h.CurrentBet = r.table.BigBlind

	h.Deck = deck.Cards()
	h.Phase = store.PhasePreflop
	r.setActor(r.nextSeat(h.BigBlindSeat, canActPred))
	r.turnChanged = true

	r.emit(EventHandStarted, HandStartedPayload{
		HandID:     h.ID,
		HandNum:    h.HandNum,
		DealerSeat: dealer,
		SmallBlind: r.table.SmallBlind,
		BigBlind:   r.table.BigBlind,
		Ante:       r.table.Ante,
		Players:    len(eligible),
	})

	r.log.Debugf("hand %s dealt: table=%s num=%d dealer=%d sb=%d bb=%d players=%d",
		h.ID, r.table.ID, h.HandNum, dealer, h.SmallBlindSeat, h.BigBlindSeat, len(eligible))

	r.advanceMachine()
	return nil
}

// dealOrder lists eligible seat indexes clockwise starting left of the
// dealer; the dealer is dealt last.
func (r *handRun) dealOrder(dealer int, eligible map[int]bool) []int {
	order := make([]int, 0, len(eligible))
	idx := dealer
	for len(order) < len(eligible) {
		idx = r.nextSeat(idx, func(s *store.Seat) bool { return eligible[s.SeatIndex] })
		if idx == store.NoSeat || containsInt(order, idx) {
			break
		}
		order = append(order, idx)
	}
	return order
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// post takes a forced bet from the seat, going all-in if the stack cannot
// cover it.
func (r *handRun) post(s *store.Seat, amount int64, at store.ActionType) {
	if s == nil || amount <= 0 {
		return
	}
	pay := amount
	if pay > s.Stack {
		pay = s.Stack
	}
	s.Stack -= pay
	if at != store.ActionPostAnte {
		s.CurrentBet += pay
	}
	s.HandContrib += pay
	r.hand.Pot += pay
	if s.Stack == 0 {
		s.Status = store.SeatAllIn
	}
	r.appendAction(s.SeatIndex, at, pay)
}

func (r *handRun) appendAction(seatIdx int, at store.ActionType, amount int64) {
	r.hand.ActionCount++
	r.actions = append(r.actions, &store.Action{
		HandID:    r.hand.ID,
		SeatIndex: seatIdx,
		Type:      at,
		Amount:    amount,
		Phase:     r.hand.Phase,
		Seq:       r.hand.ActionCount,
		CreatedAt: r.now,
	})
}

// setActor points the hand at the next actor and arms their deadline.
func (r *handRun) setActor(idx int) {
	r.hand.CurrentActorSeat = idx
	if idx == store.NoSeat || r.turnTimer <= 0 {
		r.hand.ActionDeadline = nil
		return
	}
	deadline := r.now.Add(r.turnTimer)
	r.hand.ActionDeadline = &deadline
}

// legalFor computes the legal action set for a seat against the hand. A seat
// that already acted and now faces a short all-in raise may call the extra
// chips or fold, but has no re-raise rights.
func (r *handRun) legalFor(s *store.Seat) poker.LegalActions {
	la := poker.Legal(poker.Actor{
		CanAct: canActPred(s),
		Stack:  s.Stack,
		Bet:    s.CurrentBet,
	}, r.hand.CurrentBet, r.hand.RaiseIncrement, r.table.BigBlind)
	if s.Status == store.SeatActed && s.CurrentBet < r.hand.CurrentBet {
		la.CanRaise = false
		la.MinRaise = 0
		la.MaxRaise = 0
	}
	return la
}

func isBettingPhase(p store.HandPhase) bool {
	switch p {
	case store.PhasePreflop, store.PhaseFlop, store.PhaseTurn, store.PhaseRiver:
		return true
	default:
		return false
	}
}

// apply validates and applies one action for the current actor, then
// advances the machine as far as it will go. Bet and raise amounts are "to"
// amounts: the seat's total bet this street afterwards.
func (r *handRun) apply(seatIdx int, at store.ActionType, amount int64, auto bool) error {
	h := r.hand
	if !isBettingPhase(h.Phase) {
		return Errorf(CodeValidation, "hand %s is not in a betting phase (%s)", h.ID, h.Phase)
	}
	if h.CurrentActorSeat == store.NoSeat || seatIdx != h.CurrentActorSeat {
		return Errorf(CodeValidation, "not seat %d's turn to act", seatIdx)
	}
	s := r.seatAt(seatIdx)
	if s == nil {
		return Errorf(CodeNotFound, "seat %d not found", seatIdx)
	}

	la := r.legalFor(s)
	allInTotal := s.CurrentBet + s.Stack

	if at == store.ActionAllIn {
		// Normalize to the concrete action the shove represents.
		amount = allInTotal
		switch {
		case h.CurrentBet == 0:
			at = store.ActionBet
		case allInTotal <= h.CurrentBet:
			at = store.ActionCall
		default:
			at = store.ActionRaise
		}
	}

	switch at {
	case store.ActionFold:
		if !la.CanFold {
			return Errorf(CodeValidation, "seat %d cannot fold", seatIdx)
		}
		s.Status = store.SeatFolded

	case store.ActionCheck:
		if !la.CanCheck {
			return Errorf(CodeValidation, "seat %d cannot check facing a bet of %d", seatIdx, la.CallAmount)
		}
		s.Status = store.SeatActed

	case store.ActionCall:
		if !la.CanCall {
			return Errorf(CodeValidation, "seat %d has nothing to call", seatIdx)
		}
		pay := la.CallAmount
		if pay > s.Stack {
			pay = s.Stack // short all-in call
		}
		r.pay(s, pay)
		amount = pay
		r.markActed(s)

	case store.ActionBet:
		if !la.BetLegal(amount, s.Stack) {
			return Errorf(CodeValidation, "illegal bet of %d (min %d, max %d)", amount, la.MinBet, la.MaxBet)
		}
		r.pay(s, amount-s.CurrentBet)
		h.CurrentBet = s.CurrentBet
		h.RaiseIncrement = s.CurrentBet
		r.reopenAction(s.SeatIndex)
		r.markActed(s)

	case store.ActionRaise:
		if amount <= h.CurrentBet || !la.RaiseLegal(amount, allInTotal) {
			return Errorf(CodeValidation, "illegal raise to %d (min %d, max %d)", amount, la.MinRaise, la.MaxRaise)
		}
		fullRaise := amount >= la.MinRaise && amount-h.CurrentBet >= h.RaiseIncrement
		prevBet := h.CurrentBet
		r.pay(s, amount-s.CurrentBet)
		h.CurrentBet = s.CurrentBet
		if fullRaise {
			h.RaiseIncrement = s.CurrentBet - prevBet
			// A full raise reopens the action for everyone who had
			// already acted at the lower bet. A short all-in raise
			// does not.
			r.reopenAction(s.SeatIndex)
		}
		r.markActed(s)

	default:
		return Errorf(CodeValidation, "unsupported action type %q", at)
	}

	recordType := at
	if s.Status == store.SeatAllIn {
		recordType = store.ActionAllIn
	}
	r.appendAction(seatIdx, recordType, amount)
	r.emit(EventAction, ActionPayload{
		HandID:   h.ID,
		Seat:     seatIdx,
		PlayerID: s.PlayerID,
		Type:     string(at),
		Amount:   amount,
		Auto:     auto,
	})
	r.emit(EventPotUpdated, PotUpdatedPayload{HandID: h.ID, Pot: h.Pot})

	r.setActor(r.nextActor(seatIdx))
	r.turnChanged = true

	r.advanceMachine()
	return nil
}

// pay moves chips from the seat's stack into its street bet; the seat goes
// all-in when its stack empties.
func (r *handRun) pay(s *store.Seat, amount int64) {
	if amount <= 0 {
		return
	}
	s.Stack -= amount
	s.CurrentBet += amount
	s.HandContrib += amount
	r.hand.Pot += amount
	if s.Stack == 0 {
		s.Status = store.SeatAllIn
	}
}

func (r *handRun) markActed(s *store.Seat) {
	if s.Status == store.SeatActive || s.Status == store.SeatActed {
		s.Status = store.SeatActed
	}
}

// reopenAction returns every other settled seat to active after a full bet
// or raise.
func (r *handRun) reopenAction(raiserIdx int) {
	for _, s := range r.seats {
		if s.SeatIndex != raiserIdx && s.Status == store.SeatActed {
			s.Status = store.SeatActive
		}
	}
}

// owesDecision reports whether the seat still owes a decision this street:
// it has not settled yet, or it settled at a lower bet that a short all-in
// raise has since passed without reopening the action.
func (r *handRun) owesDecision(s *store.Seat) bool {
	if !canActPred(s) {
		return false
	}
	return s.Status == store.SeatActive || s.CurrentBet < r.hand.CurrentBet
}

// nextActor finds the next seat that still owes a decision this street.
func (r *handRun) nextActor(from int) int {
	return r.nextSeat(from, r.owesDecision)
}

// bettingSettled reports whether the current street's betting is closed:
// at most one seat remains un-folded, nobody can act, only one seat can
// still act, or every actionable seat has acted since the last raise with a
// matched bet.
func (r *handRun) bettingSettled() bool {
	alive := r.alive()
	if len(alive) <= 1 {
		return true
	}
	actionable := r.actionable()
	if len(actionable) <= 1 {
		return true
	}
	for _, s := range actionable {
		if s.Status != store.SeatActed || s.CurrentBet != r.hand.CurrentBet {
			return false
		}
	}
	return true
}

// refundUncalled returns the uncalled portion of the street's leading bet,
// if any, before pots are built or the next street is dealt.
func (r *handRun) refundUncalled() {
	bets := make(map[int]int64)
	for _, s := range r.seats {
		if inHand(s) && s.CurrentBet > 0 {
			bets[s.SeatIndex] = s.CurrentBet
		}
	}
	seatIdx, amount := poker.UncalledBet(bets)
	if seatIdx < 0 || amount == 0 {
		return
	}
	s := r.seatAt(seatIdx)
	s.Stack += amount
	s.CurrentBet -= amount
	s.HandContrib -= amount
	r.hand.Pot -= amount
	r.log.Debugf("hand %s: refunded uncalled %d to seat %d", r.hand.ID, amount, seatIdx)
}

// resetStreet clears per-street betting state ahead of the next community
// cards.
func (r *handRun) resetStreet() {
	for _, s := range r.seats {
		s.CurrentBet = 0
		if s.Status == store.SeatActed {
			s.Status = store.SeatActive
		}
	}
	r.hand.CurrentBet = 0
	r.hand.RaiseIncrement = r.table.BigBlind
}

// dealCommunity draws n cards onto the board.
func (r *handRun) dealCommunity(n int) {
	deck := poker.NewDeckFromCards(r.hand.Deck)
	for i := 0; i < n; i++ {
		card, ok := deck.Draw()
		if !ok {
			r.log.Errorf("hand %s: deck exhausted dealing community cards", r.hand.ID)
			break
		}
		r.hand.Community = append(r.hand.Community, card)
	}
	r.hand.Deck = deck.Cards()
}

// advanceMachine runs phase state functions until the hand is stable, then
// announces the next turn if it changed.
func (r *handRun) advanceMachine() {
	m := statemachine.New(r, stateForPhase(r.hand.Phase))
	m.Run()

	if r.turnChanged && isBettingPhase(r.hand.Phase) && r.hand.CurrentActorSeat != store.NoSeat {
		seat := r.seatAt(r.hand.CurrentActorSeat)
		la := r.legalFor(seat)
		r.emit(EventTurnStarted, TurnStartedPayload{
			HandID:    r.hand.ID,
			Seat:      seat.SeatIndex,
			PlayerID:  seat.PlayerID,
			Deadline:  r.hand.ActionDeadline,
			ToCall:    la.CallAmount,
			MinRaise:  la.MinRaise,
			Phase:     string(r.hand.Phase),
			PotAmount: r.hand.Pot,
		})
		r.turnChanged = false
	}
}

func stateForPhase(p store.HandPhase) handStateFn {
	switch p {
	case store.PhasePreflop:
		return statePreflop
	case store.PhaseFlop:
		return stateFlop
	case store.PhaseTurn:
		return stateTurn
	case store.PhaseRiver:
		return stateRiver
	case store.PhaseShowdown:
		return stateShowdown
	case store.PhaseAwarding:
		return stateAwarding
	default:
		return nil
	}
}

func statePreflop(r *handRun) handStateFn {
	return r.closeBetting(store.PhaseFlop, stateFlop, 3)
}

func stateFlop(r *handRun) handStateFn {
	return r.closeBetting(store.PhaseTurn, stateTurn, 1)
}

func stateTurn(r *handRun) handStateFn {
	return r.closeBetting(store.PhaseRiver, stateRiver, 1)
}

func stateRiver(r *handRun) handStateFn {
	return r.closeBetting(store.PhaseShowdown, stateShowdown, 0)
}

// closeBetting is the shared betting-phase transition: when the street is
// settled it refunds any uncalled bet, deals the next street (or moves to
// showdown), and hands control to the next state function.
func (r *handRun) closeBetting(nextPhase store.HandPhase, next handStateFn, cardsToDeal int) handStateFn {
	if !r.bettingSettled() {
		return nil
	}

	r.refundUncalled()

	if len(r.alive()) <= 1 {
		// Everyone else folded; no further cards, no reveal.
		r.hand.Phase = store.PhaseShowdown
		r.setActor(store.NoSeat)
		return stateShowdown
	}

	r.resetStreet()
	r.hand.Phase = nextPhase
	if cardsToDeal > 0 {
		r.dealCommunity(cardsToDeal)
		r.emit(EventStreetDealt, StreetDealtPayload{
			HandID:    r.hand.ID,
			Phase:     string(nextPhase),
			Community: append([]poker.Card{}, r.hand.Community...),
		})
	}

	if nextPhase == store.PhaseShowdown {
		r.setActor(store.NoSeat)
		return next
	}

	actor := r.nextSeat(r.hand.DealerSeat, func(s *store.Seat) bool { return s.Status == store.SeatActive })
	r.setActor(actor)
	if actor != store.NoSeat {
		r.turnChanged = true
	}
	return next
}

// stateShowdown evaluates the remaining hands, builds main and side pots
// from the hand's contributions, and reveals the contested hands.
func stateShowdown(r *handRun) handStateFn {
	h := r.hand
	alive := r.alive()

	contribs := make(map[int]int64)
	folded := make(map[int]bool)
	for _, s := range r.seats {
		if !inHand(s) {
			continue
		}
		if s.HandContrib > 0 {
			contribs[s.SeatIndex] = s.HandContrib
		}
		if s.Status == store.SeatFolded {
			folded[s.SeatIndex] = true
		}
	}
	r.pots = poker.BuildPots(contribs, folded)

	if len(alive) > 1 && len(h.Community) == 5 {
		payload := ShowdownPayload{
			HandID:    h.ID,
			Community: append([]poker.Card{}, h.Community...),
			Pot:       h.Pot,
		}
		for _, s := range alive {
			hv := poker.Evaluate(s.HoleCards, h.Community)
			r.values[s.SeatIndex] = hv
			payload.Seats = append(payload.Seats, ShowdownSeat{
				Seat:        s.SeatIndex,
				PlayerID:    s.PlayerID,
				HoleCards:   append([]poker.Card{}, s.HoleCards...),
				Description: hv.Description,
			})
		}
		r.emit(EventShowdown, payload)
	}

	showdownAt := r.now
	h.ShowdownAt = &showdownAt
	h.Phase = store.PhaseAwarding
	return stateAwarding
}

// stateAwarding commits pot payouts to stacks, detects eliminations, and
// finalizes the hand.
func stateAwarding(r *handRun) handStateFn {
	h := r.hand

	awards := poker.ResolvePots(r.pots, r.values, h.DealerSeat, r.table.SeatCount)
	byPot := make(map[int][]poker.Award)
	for _, a := range awards {
		s := r.seatAt(a.Seat)
		s.Stack += a.Amount
		byPot[a.PotIndex] = append(byPot[a.PotIndex], a)
	}
	for i, pot := range r.pots {
		r.emit(EventPotAwarded, PotAwardedPayload{
			HandID:   h.ID,
			PotIndex: i,
			Amount:   pot.Amount,
			Awards:   byPot[i],
		})
	}

	for _, s := range r.seats {
		if inHand(s) && s.Stack == 0 {
			s.Status = store.SeatEliminated
			at := r.now
			s.EliminatedAt = &at
			r.eliminated = append(r.eliminated, s)
			r.emit(EventPlayerEliminated, PlayerEliminatedPayload{
				TableID:  r.table.ID,
				HandID:   h.ID,
				Seat:     s.SeatIndex,
				PlayerID: s.PlayerID,
			})
		}
	}

	h.Phase = store.PhaseComplete
	h.ActionDeadline = nil
	h.CurrentActorSeat = store.NoSeat
	r.emit(EventHandComplete, HandCompletePayload{HandID: h.ID, HandNum: h.HandNum})
	r.log.Debugf("hand %s complete: pots=%d awards=%d eliminated=%d",
		h.ID, len(r.pots), len(awards), len(r.eliminated))
	return nil
}
