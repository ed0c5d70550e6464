package tournament

// Level is one blind level of the escalation schedule.
type Level struct {
	Num        int   `json:"num"`
	SmallBlind int64 `json:"small_blind"`
	BigBlind   int64 `json:"big_blind"`
	Ante       int64 `json:"ante,omitempty"`
}

// anteFromLevel is the first level that charges an ante.
const anteFromLevel = 4

// blindSteps holds the early-level multipliers in half units, so a 10/20
// base runs 10/20, 15/30, 25/50, 50/100, 75/150, 100/200. Levels past the
// table double the last step.
var blindSteps = []int64{2, 3, 5, 10, 15, 20}

// LevelFor computes the blind level with the given number for a base blind
// pair. Antes kick in at level four, at a quarter of the big blind.
func LevelFor(num int, baseSB, baseBB int64) Level {
	if num < 1 {
		num = 1
	}
	var sb, bb int64
	if num <= len(blindSteps) {
		sb = baseSB * blindSteps[num-1] / 2
		bb = baseBB * blindSteps[num-1] / 2
	} else {
		sb = baseSB * blindSteps[len(blindSteps)-1] / 2
		bb = baseBB * blindSteps[len(blindSteps)-1] / 2
		for i := len(blindSteps); i < num; i++ {
			sb *= 2
			bb *= 2
		}
	}
	lvl := Level{Num: num, SmallBlind: sb, BigBlind: bb}
	if num >= anteFromLevel {
		lvl.Ante = bb / 4
	}
	return lvl
}
