package wizard

import "math"

// StepWeight is the share of overall progress each step is worth.
const StepWeight = 100.0 / 3

// Progress is a point-in-time summary for the progress UI.
type Progress struct {
	Step      Step `json:"step"`
	StepIndex int  `json:"stepIndex"`
	StepCount int  `json:"stepCount"`

	// Percent is exact; Rounded is what the progress bar prints.
	Percent float64 `json:"percent"`
	Rounded int     `json:"rounded"`

	Completed         int `json:"completed"`
	CompletedRequired int `json:"completedRequired"`
	TotalRequired     int `json:"totalRequired"`
	Total             int `json:"total"`
}

// Percent computes overall progress. Review contributes nothing; in sign the
// first third is earned and the second third fills with required fields;
// confirm is always 100. With no required fields the sign third is full.
func Percent(step Step, completedRequired, totalRequired int) float64 {
	switch step {
	case StepSign:
		frac := 1.0
		if totalRequired > 0 {
			frac = float64(completedRequired) / float64(totalRequired)
		}
		return StepWeight + StepWeight*math.Min(frac, 1)
	case StepConfirm:
		return 100
	}
	return 0
}

func newProgress(step Step, completed, completedRequired, totalRequired, total int) Progress {
	pct := Percent(step, completedRequired, totalRequired)
	return Progress{
		Step:              step,
		StepIndex:         step.Index(),
		StepCount:         len(Steps),
		Percent:           pct,
		Rounded:           int(math.Round(pct)),
		Completed:         completed,
		CompletedRequired: completedRequired,
		TotalRequired:     totalRequired,
		Total:             total,
	}
}
