package polls

import "math"

// Percentage returns votes as a whole-number share of total, rounded half away from zero.
func Percentage(votes int, total int) int {
	if total <= 0 || votes <= 0 {
		return 0
	}
	return int(math.Round(float64(votes) * 100 / float64(total)))
}

func tallyOptions(options []PollOption, counts map[string]int) ([]OptionTally, int) {
	total := 0
	for _, option := range options {
		total += counts[option.ID]
	}
	tallies := make([]OptionTally, 0, len(options))
	for _, option := range options {
		votes := counts[option.ID]
		tallies = append(tallies, OptionTally{
			Option:     option,
			Votes:      votes,
			Percentage: Percentage(votes, total),
		})
	}
	return tallies, total
}
