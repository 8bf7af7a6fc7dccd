package app

import "math"

// Score returns the points earned for one answer. A correct answer always
// earns at least half of basePoints; the other half decays linearly to zero
// over the time limit. Wrong answers earn nothing.
func Score(isCorrect bool, elapsedSeconds float64, basePoints, timeLimitSeconds int) int {
	if !isCorrect || basePoints <= 0 {
		return 0
	}
	bonus := 0.0
	if timeLimitSeconds > 0 {
		bonus = math.Max(0, 1-elapsedSeconds/float64(timeLimitSeconds))
	}
	// negative elapsed (clock skew) caps at full credit
	bonus = math.Min(bonus, 1)
	return int(math.Round(float64(basePoints) * (0.5 + 0.5*bonus)))
}
