package poker

import (
	evaluator "github.com/chehsunliu/poker"
)

// HandRank is the standard category ordering, worst first.
type HandRank int

const (
	HighCard HandRank = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
)

func (r HandRank) String() string {
	switch r {
	case HighCard:
		return "High Card"
	case Pair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	default:
		return "Unknown"
	}
}

// HandValue is a complete evaluation of a hand. Score is the chehsunliu
// evaluator's rank where lower is better; all tiebreakers are folded into it.
type HandValue struct {
	Rank        HandRank
	Score       int32
	Best        []Card
	Description string
}

// toEvaluatorCard converts our Card to the chehsunliu representation.
func toEvaluatorCard(c Card) evaluator.Card {
	return evaluator.NewCard(c.String())
}

// rankClassToHandRank maps the evaluator's rank classes onto HandRank.
func rankClassToHandRank(class int32) HandRank {
	switch class {
	case 1:
		return StraightFlush
	case 2:
		return FourOfAKind
	case 3:
		return FullHouse
	case 4:
		return Flush
	case 5:
		return Straight
	case 6:
		return ThreeOfAKind
	case 7:
		return TwoPair
	case 8:
		return Pair
	default:
		return HighCard
	}
}

// Evaluate ranks the best 5-card combination of the given hole and community
// cards (5, 6 or 7 cards in total).
func Evaluate(hole []Card, community []Card) HandValue {
	all := append([]Card{}, hole...)
	all = append(all, community...)

	converted := make([]evaluator.Card, len(all))
	for i, c := range all {
		converted[i] = toEvaluatorCard(c)
	}

	score := evaluator.Evaluate(converted)
	class := evaluator.RankClass(score)

	return HandValue{
		Rank:        rankClassToHandRank(class),
		Score:       score,
		Best:        bestFive(all, score),
		Description: evaluator.RankString(score),
	}
}

// bestFive finds the 5-card subset producing the given evaluator score.
func bestFive(cards []Card, target int32) []Card {
	if len(cards) <= 5 {
		return append([]Card{}, cards...)
	}
	var best []Card
	combos(cards, 5, func(combo []Card) bool {
		converted := make([]evaluator.Card, 5)
		for i, c := range combo {
			converted[i] = toEvaluatorCard(c)
		}
		if evaluator.Evaluate(converted) == target {
			best = append([]Card{}, combo...)
			return true
		}
		return false
	})
	return best
}

// combos visits every k-combination of cards until fn returns true.
func combos(cards []Card, k int, fn func([]Card) bool) {
	var current []Card
	var walk func(start int) bool
	walk = func(start int) bool {
		if len(current) == k {
			return fn(current)
		}
		for i := start; i <= len(cards)-(k-len(current)); i++ {
			current = append(current, cards[i])
			if walk(i + 1) {
				return true
			}
			current = current[:len(current)-1]
		}
		return false
	}
	walk(0)
}

// Compare orders two hand values: -1 if a is worse than b, 0 on an exact
// tie, 1 if a is better. Lower evaluator scores are better.
func Compare(a, b HandValue) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	default:
		return 0
	}
}
