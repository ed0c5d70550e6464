package poker

// Actor is the betting-relevant view of a seat: whether it may act at all,
// its remaining stack, and what it has already put in this street.
type Actor struct {
	CanAct bool
	Stack  int64
	Bet    int64
}

// LegalActions enumerates what an actor may do against the current betting
// state. Bet and raise amounts are "to" amounts: the seat's total bet this
// street after the action. MaxBet and MaxRaise are therefore the seat's
// table-stakes ceiling (current bet plus remaining stack).
type LegalActions struct {
	CanFold    bool
	CanCheck   bool
	CanCall    bool
	CallAmount int64
	CanBet     bool
	MinBet     int64
	MaxBet     int64
	CanRaise   bool
	MinRaise   int64
	MaxRaise   int64
}

// Legal computes the legal action set for an actor. currentBet is the hand's
// leading bet this street, raiseIncrement the size of the last bet/raise
// (never below the big blind).
func Legal(a Actor, currentBet, raiseIncrement, bigBlind int64) LegalActions {
	var la LegalActions
	if !a.CanAct || a.Stack < 0 {
		return la
	}

	la.CanFold = true

	callAmount := currentBet - a.Bet
	if callAmount < 0 {
		callAmount = 0
	}
	la.CallAmount = callAmount
	la.CanCheck = callAmount == 0

	// A short stack may still call; it becomes an all-in call.
	la.CanCall = callAmount > 0 && a.Stack > 0

	if currentBet == 0 && a.Stack > 0 {
		la.CanBet = true
		la.MinBet = bigBlind
		if la.MinBet > a.Stack {
			la.MinBet = a.Stack
		}
		la.MaxBet = a.Stack
	}

	if currentBet > 0 && a.Stack > callAmount {
		la.CanRaise = true
		if raiseIncrement < bigBlind {
			raiseIncrement = bigBlind
		}
		la.MinRaise = currentBet + raiseIncrement
		la.MaxRaise = a.Bet + a.Stack
		if la.MinRaise > la.MaxRaise {
			// Only a short all-in raise is available.
			la.MinRaise = la.MaxRaise
		}
	}

	return la
}

// BetLegal reports whether an opening bet to the given amount is legal. A
// bet below the minimum is legal only as an all-in for the entire stack.
func (la LegalActions) BetLegal(amount, stack int64) bool {
	if !la.CanBet || amount <= 0 || amount > la.MaxBet {
		return false
	}
	return amount >= la.MinBet || amount == stack
}

// RaiseLegal reports whether a raise to the given total is legal, given the
// actor's full all-in total. A raise below the minimum is legal only if it
// commits the seat's entire stack (a short all-in raise); such a raise does
// not reopen the action, which the caller enforces.
func (la LegalActions) RaiseLegal(amount, allInTotal int64) bool {
	if !la.CanRaise || amount > la.MaxRaise {
		return false
	}
	if amount >= la.MinRaise {
		return true
	}
	return amount == allInTotal
}
