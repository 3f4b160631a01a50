package analysis

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// RunSummary aggregates a completed run. Delay statistics cover only frames
// whose delay was accepted (ok or ok_rechecked).
type RunSummary struct {
	Frames     int
	OK         int
	Rechecked  int
	AppFails   int
	RealFails  int
	BothFails  int
	Wrong      int
	SuccessPct float64

	MeanDelayMs   float64
	MedianDelayMs float64
	StdDelayMs    float64
	MinDelayMs    int64
	MaxDelayMs    int64
}

// Summarize computes a RunSummary over records.
func Summarize(records []FrameRecord) RunSummary {
	s := RunSummary{Frames: len(records)}
	var delays []float64
	for _, r := range records {
		switch r.Status {
		case StatusOK:
			s.OK++
		case StatusOKRechecked:
			s.Rechecked++
		case StatusAppFail:
			s.AppFails++
		case StatusRealFail:
			s.RealFails++
		case StatusBothFail:
			s.BothFails++
		case StatusWrong:
			s.Wrong++
		}
		if r.Status == StatusOK || r.Status == StatusOKRechecked {
			delays = append(delays, float64(r.DelayMs))
			if len(delays) == 1 || r.DelayMs < s.MinDelayMs {
				s.MinDelayMs = r.DelayMs
			}
			if len(delays) == 1 || r.DelayMs > s.MaxDelayMs {
				s.MaxDelayMs = r.DelayMs
			}
		}
	}
	if s.Frames > 0 {
		s.SuccessPct = 100 * float64(s.OK+s.Rechecked) / float64(s.Frames)
	}
	if len(delays) > 0 {
		s.MeanDelayMs = stat.Mean(delays, nil)
		if len(delays) > 1 {
			s.StdDelayMs = stat.StdDev(delays, nil)
		}
		sort.Float64s(delays)
		s.MedianDelayMs = stat.Quantile(0.5, stat.Empirical, delays, nil)
	}
	return s
}
