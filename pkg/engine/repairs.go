package engine

import (
	"time"

	"github.com/CodeSpent/pokerpal/pkg/store"
)

// stuckDealingAfter is how long a hand may sit in the dealing phase before
// it is treated as abandoned by a crashed dealer and discarded.
const stuckDealingAfter = 30 * time.Second

// repair inspects the hand for inconsistent state left behind by a crash or
// a bug and corrects it in place. It reports whether anything was fixed.
// Repairs run inside the same optimistic transaction as normal advancement,
// so a concurrent repair on stale state fails the version check and is
// retried against fresh rows.
func (r *handRun) repair() bool {
	repaired := false
	if r.repairStuckDealing() {
		repaired = true
	}
	if r.repairActorPointer() {
		repaired = true
	}
	return repaired
}

// repairStuckDealing discards a hand abandoned mid-deal: every contribution
// already taken (blinds, antes) goes back to its stack and the hand is
// voided without winners.
func (r *handRun) repairStuckDealing() bool {
	h := r.hand
	if h.Phase != store.PhaseDealing {
		return false
	}
	if r.now.Sub(h.CreatedAt) < stuckDealingAfter {
		return false
	}

	for _, s := range r.seats {
		if !inHand(s) {
			continue
		}
		if s.HandContrib > 0 {
			s.Stack += s.HandContrib
			s.HandContrib = 0
		}
		s.CurrentBet = 0
		s.HoleCards = nil
		s.Status = store.SeatWaiting
	}
	h.Pot = 0
	h.Community = nil
	h.Phase = store.PhaseComplete
	h.CurrentActorSeat = store.NoSeat
	h.ActionDeadline = nil

	r.emit(EventTableRepaired, TableRepairedPayload{
		TableID: r.table.ID,
		HandID:  h.ID,
		Repair:  "discarded stuck dealing hand",
	})
	r.log.Warnf("table %s: discarded hand %s stuck in dealing since %s",
		r.table.ID, h.ID, h.CreatedAt.Format(time.RFC3339))
	return true
}

// repairActorPointer fixes a betting-phase hand whose turn pointer names a
// seat that can no longer act, or names nobody while the street is still
// open. The machine is then advanced so a street that was actually settled
// closes out normally.
func (r *handRun) repairActorPointer() bool {
	h := r.hand
	if !isBettingPhase(h.Phase) {
		return false
	}

	valid := false
	if h.CurrentActorSeat != store.NoSeat {
		if s := r.seatAt(h.CurrentActorSeat); s != nil && r.owesDecision(s) {
			valid = true
		}
	}
	if !valid && h.CurrentActorSeat == store.NoSeat && r.bettingSettled() {
		// Settled street with no actor is normal; the machine closes it.
		return false
	}
	if valid {
		return false
	}

	next := r.nextActor(h.CurrentActorSeat)
	if next == store.NoSeat && !r.bettingSettled() {
		// Nothing to hand the turn to and the street cannot close; leave
		// the state untouched rather than report the same repair forever.
		r.log.Errorf("table %s: hand %s has no assignable actor on open street %s",
			r.table.ID, h.ID, h.Phase)
		return false
	}
	r.setActor(next)
	r.turnChanged = h.CurrentActorSeat != store.NoSeat
	r.emit(EventTableRepaired, TableRepairedPayload{
		TableID: r.table.ID,
		HandID:  h.ID,
		Repair:  "reassigned invalid turn pointer",
	})
	r.log.Warnf("table %s: hand %s turn pointer repaired, now seat %d",
		r.table.ID, h.ID, h.CurrentActorSeat)
	r.advanceMachine()
	return true
}
