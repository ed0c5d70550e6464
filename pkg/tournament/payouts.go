package tournament

// payoutPercents returns the prize split by finishing place for a field of
// the given size. Fields beyond six entrants keep the three-place split.
func payoutPercents(entrants int) []int64 {
	switch {
	case entrants <= 2:
		return []int64{100}
	case entrants <= 4:
		return []int64{65, 35}
	default:
		return []int64{50, 30, 20}
	}
}

// ComputePayouts splits the prize pool across paid places. Integer division
// remainders go to first place so the amounts always sum to the pool.
func ComputePayouts(prizePool int64, entrants int) []int64 {
	percents := payoutPercents(entrants)
	amounts := make([]int64, len(percents))
	var distributed int64
	for i, pct := range percents {
		amounts[i] = prizePool * pct / 100
		distributed += amounts[i]
	}
	amounts[0] += prizePool - distributed
	return amounts
}
