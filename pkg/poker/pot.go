package poker

import (
	"sort"
)

// Pot is one resolved pot: its amount and the seats eligible to win it,
// ordered by seat index. Folded seats' chips count toward the amount but the
// seats are never eligible.
type Pot struct {
	Amount   int64 `json:"amount"`
	Eligible []int `json:"eligible"`
}

// BuildPots partitions per-seat hand contributions into a main pot and side
// pots. Distinct contribution levels are sorted ascending; the interval
// between consecutive levels becomes its own pot, eligible to every
// non-folded seat whose total contribution reaches that level. Pots whose
// eligible set matches the previous level's are merged so equal stacks do
// not produce redundant side pots.
func BuildPots(contribs map[int]int64, folded map[int]bool) []Pot {
	levelSet := make(map[int64]struct{})
	for _, amt := range contribs {
		if amt > 0 {
			levelSet[amt] = struct{}{}
		}
	}
	if len(levelSet) == 0 {
		return nil
	}

	levels := make([]int64, 0, len(levelSet))
	for lvl := range levelSet {
		levels = append(levels, lvl)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	var pots []Pot
	prev := int64(0)
	for _, lvl := range levels {
		pot := Pot{}
		for seat, amt := range contribs {
			if amt <= prev {
				continue
			}
			portion := amt
			if portion > lvl {
				portion = lvl
			}
			pot.Amount += portion - prev
			if amt >= lvl && !folded[seat] {
				pot.Eligible = append(pot.Eligible, seat)
			}
		}
		sort.Ints(pot.Eligible)
		prev = lvl

		if n := len(pots); n > 0 && equalSeats(pots[n-1].Eligible, pot.Eligible) {
			pots[n-1].Amount += pot.Amount
			continue
		}
		pots = append(pots, pot)
	}

	return pots
}

func equalSeats(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TotalPots sums the amounts across all pots.
func TotalPots(pots []Pot) int64 {
	var total int64
	for _, p := range pots {
		total += p.Amount
	}
	return total
}

// UncalledBet returns the seat holding an uncalled portion of the leading
// street bet and the amount to refund, or (-1, 0) when every bet is covered.
// The refund must be applied before pots are built so a lone over-bettor
// cannot win back chips nobody contested.
func UncalledBet(streetBets map[int]int64) (seat int, amount int64) {
	var hi, second int64
	seat = -1
	for s, bet := range streetBets {
		if bet > hi {
			second = hi
			hi = bet
			seat = s
		} else if bet > second {
			second = bet
		}
	}
	if seat >= 0 && hi > second {
		return seat, hi - second
	}
	return -1, 0
}

// Award is one pot payout to a seat.
type Award struct {
	PotIndex int   `json:"pot_index"`
	Seat     int   `json:"seat"`
	Amount   int64 `json:"amount"`
}

// ResolvePots awards every pot to the best eligible hand(s). Ties split the
// pot evenly; odd chips go to eligible winners in clockwise seat order
// starting left of the dealer. Seats missing from values (folded before
// showdown) never win.
func ResolvePots(pots []Pot, values map[int]HandValue, dealerSeat, seatCount int) []Award {
	var awards []Award
	for i, pot := range pots {
		winners := potWinners(pot, values)
		if len(winners) == 0 {
			continue
		}

		share := pot.Amount / int64(len(winners))
		odd := pot.Amount % int64(len(winners))

		// Order winners clockwise from the seat after the dealer so odd
		// chips land deterministically.
		sort.Slice(winners, func(a, b int) bool {
			return clockwiseDistance(dealerSeat, winners[a], seatCount) <
				clockwiseDistance(dealerSeat, winners[b], seatCount)
		})

		for _, seat := range winners {
			amount := share
			if odd > 0 {
				amount++
				odd--
			}
			if amount == 0 {
				continue
			}
			awards = append(awards, Award{PotIndex: i, Seat: seat, Amount: amount})
		}
	}
	return awards
}

// potWinners returns the eligible seats holding the best hand for one pot.
// A pot with a single eligible seat is uncontested and goes to that seat
// whether or not a hand value was recorded for it.
func potWinners(pot Pot, values map[int]HandValue) []int {
	if len(pot.Eligible) == 1 {
		return []int{pot.Eligible[0]}
	}
	var winners []int
	var best HandValue
	haveBest := false
	for _, seat := range pot.Eligible {
		hv, ok := values[seat]
		if !ok {
			continue
		}
		if !haveBest || Compare(hv, best) > 0 {
			best = hv
			haveBest = true
			winners = []int{seat}
		} else if Compare(hv, best) == 0 {
			winners = append(winners, seat)
		}
	}
	return winners
}

func clockwiseDistance(from, to, seatCount int) int {
	d := (to - from) % seatCount
	if d <= 0 {
		d += seatCount
	}
	return d
}
