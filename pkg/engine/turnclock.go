package engine

import (
	"time"

	"github.com/CodeSpent/pokerpal/pkg/store"
)

// TimeoutVerdict is the outcome of checking a hand's action deadline.
type TimeoutVerdict int

const (
	// NoTimeout means the clock has not expired (or there is no clock).
	NoTimeout TimeoutVerdict = iota
	// AutoCheck means the expired actor owes nothing and is checked.
	AutoCheck
	// AutoFold means the expired actor faces a bet and is folded.
	AutoFold
)

func (v TimeoutVerdict) String() string {
	switch v {
	case AutoCheck:
		return "auto_check"
	case AutoFold:
		return "auto_fold"
	default:
		return "no_timeout"
	}
}

// checkDeadline decides whether the hand's current actor has run out their
// clock at now, and which substitute action applies. It is a pure read; the
// caller applies the verdict through the normal action path so an expired
// turn observed by several callers resolves exactly once.
func checkDeadline(hand *store.Hand, seat *store.Seat, now time.Time) TimeoutVerdict {
	if !isBettingPhase(hand.Phase) || hand.CurrentActorSeat == store.NoSeat {
		return NoTimeout
	}
	if hand.ActionDeadline == nil || now.Before(*hand.ActionDeadline) {
		return NoTimeout
	}
	if seat == nil || seat.SeatIndex != hand.CurrentActorSeat {
		return NoTimeout
	}
	if seat.CurrentBet >= hand.CurrentBet {
		return AutoCheck
	}
	return AutoFold
}
