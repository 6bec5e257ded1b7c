package labdaq

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RunSummary reports end-of-run statistics over the acquired input samples.
type RunSummary struct {
	Rows   int
	AIMean float64
	AIStd  float64
	AIMin  float64
	AIMax  float64
}

func (s RunSummary) String() string {
	return fmt.Sprintf("%d rows, AI mean %.3f V (σ %.3f), range [%.3f, %.3f] V",
		s.Rows, s.AIMean, s.AIStd, s.AIMin, s.AIMax)
}

// summarize computes the run summary from the input samples. An empty run
// yields a zero summary.
func summarize(ai []float64) RunSummary {
	if len(ai) == 0 {
		return RunSummary{}
	}
	summary := RunSummary{
		Rows:   len(ai),
		AIMean: stat.Mean(ai, nil),
		AIMin:  floats.Min(ai),
		AIMax:  floats.Max(ai),
	}
	if len(ai) > 1 {
		summary.AIStd = stat.StdDev(ai, nil)
	}
	return summary
}
