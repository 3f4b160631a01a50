// Package anomaly classifies per-frame delay samples. Two independent
// detectors run on every sample with both labels present: a real-time
// jump-consistency check (Detector A) that compares the increments of the
// two clocks against jitter bounds, and a retrospective regression check
// (Detector B) that catches slow clock regressions a single-step check
// misses. A coarse MAD-based statistical outlier net runs at a fixed cadence
// as a lower-precedence backstop.
package anomaly

import (
	"fmt"
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Verdict is the outcome of a detector check.
type Verdict string

const (
	VerdictOK      Verdict = "ok"
	VerdictRecheck Verdict = "needs_recheck"
	VerdictWrong   Verdict = "wrong"
)

// Config holds the anomaly thresholds.
type Config struct {
	MaxDelayMs int64 // hard physical cap on delay
	MinDelayMs int64 // hard floor on negative delay

	JumpBaseMs int64 // base jitter allowance between clock increments
	JumpFactor int64 // increment-proportional jitter allowance multiplier

	RegressionToleranceMs int64 // slack before a smaller T_real counts as regression

	StatisticalInterval   int     // accepted frames between statistical checks
	StatisticalMinSamples int     // history required before the check can fire
	StatisticalZMax       float64 // modified z-score rejection threshold

	MaxNormalFrames int // bounded accepted-frame history for Detector B
	MaxNormalDelays int // bounded accepted-delay history for the statistical net
}

// DefaultConfig returns the default anomaly thresholds.
func DefaultConfig() Config {
	return Config{
		MaxDelayMs:            10000,
		MinDelayMs:            -5000,
		JumpBaseMs:            500,
		JumpFactor:            2,
		RegressionToleranceMs: 1000,
		StatisticalInterval:   30,
		StatisticalMinSamples: 30,
		StatisticalZMax:       5.0,
		MaxNormalFrames:       100,
		MaxNormalDelays:       500,
	}
}

type framePair struct {
	appMs  int64
	realMs int64
}

// Detector holds the accepted-sample history both detectors score against.
// Not safe for concurrent use; the frame loop is sequential.
type Detector struct {
	cfg Config
	log *slog.Logger

	hasLast    bool
	lastAppMs  int64
	lastRealMs int64

	normalFrames map[int]framePair
	frameOrder   []int // accepted frame indices, ascending
	normalDelays []float64
	accepted     int
}

// NewDetector creates a detector with empty history. A nil logger falls
// back to slog.Default().
func NewDetector(cfg Config, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		cfg:          cfg,
		log:          logger,
		normalFrames: make(map[int]framePair),
	}
}

// CheckBounds applies the hard physical limits. These fire before anything
// else: no amount of history argues with a 10-second delay reading.
func (d *Detector) CheckBounds(delayMs int64) (bool, string) {
	if delayMs > d.cfg.MaxDelayMs {
		return false, fmt.Sprintf("delay %dms exceeds hard cap %dms", delayMs, d.cfg.MaxDelayMs)
	}
	if delayMs < d.cfg.MinDelayMs {
		return false, fmt.Sprintf("negative delay %dms below floor %dms", delayMs, d.cfg.MinDelayMs)
	}
	return true, ""
}

// CheckJump is Detector A. Hard bounds take highest precedence; then, when a
// previously accepted pair exists, the two clocks' increments are compared.
// Increments disagreeing by more than max(JumpBaseMs, JumpFactor·|Δapp|)
// mean one of the two readings jumped in a way jitter cannot explain — the
// sample needs a second independent read before it can be trusted or
// condemned.
func (d *Detector) CheckJump(appMs, realMs, delayMs int64) (Verdict, string) {
	if ok, reason := d.CheckBounds(delayMs); !ok {
		return VerdictWrong, reason
	}

	if d.hasLast {
		// Clocks only run forward. A reading behind the last accepted
		// pair is a misread, not jitter.
		if appMs < d.lastAppMs {
			return VerdictWrong, fmt.Sprintf(
				"T_app time regression: %dms behind last accepted reading", d.lastAppMs-appMs)
		}
		if realMs < d.lastRealMs {
			return VerdictWrong, fmt.Sprintf(
				"T_real time regression: %dms behind last accepted reading", d.lastRealMs-realMs)
		}

		dApp := appMs - d.lastAppMs
		dReal := realMs - d.lastRealMs
		diff := abs64(dApp - dReal)
		threshold := d.cfg.JumpBaseMs
		if scaled := d.cfg.JumpFactor * abs64(dApp); scaled > threshold {
			threshold = scaled
		}
		if diff > threshold {
			return VerdictRecheck, fmt.Sprintf(
				"clock increments disagree: Δapp=%dms Δreal=%dms (allowed %dms)",
				dApp, dReal, threshold)
		}
	}

	return VerdictOK, ""
}

// CheckRegression is Detector B. The candidate T_real is compared against
// the two most recent accepted frames strictly before it by frame index; a
// reading smaller than either by more than the tolerance is a time
// regression even when Detector A saw consistent increments.
func (d *Detector) CheckRegression(frameIdx int, realMs int64) (bool, string) {
	checked := 0
	for i := len(d.frameOrder) - 1; i >= 0 && checked < 2; i-- {
		idx := d.frameOrder[i]
		if idx >= frameIdx {
			continue
		}
		prev := d.normalFrames[idx]
		if realMs < prev.realMs-d.cfg.RegressionToleranceMs {
			return false, fmt.Sprintf(
				"time regression: T_real %dms is %dms behind accepted frame %d",
				realMs, prev.realMs-realMs, idx)
		}
		checked++
	}
	return true, ""
}

// CheckStatistical is the legacy MAD outlier net. It only fires every
// StatisticalInterval-th accepted frame once enough history exists; between
// those points it accepts unconditionally. Returns the modified z-score when
// it ran.
func (d *Detector) CheckStatistical(delayMs int64) (bool, string, float64) {
	if (d.accepted+1)%d.cfg.StatisticalInterval != 0 {
		return true, "", 0
	}
	if len(d.normalDelays) < d.cfg.StatisticalMinSamples {
		return true, "", 0
	}

	med, mad := medianMAD(d.normalDelays)
	if mad < 0.01 {
		mad = 0.01
	}
	z := 0.6745 * (float64(delayMs) - med) / mad
	if z > d.cfg.StatisticalZMax || z < -d.cfg.StatisticalZMax {
		return false, fmt.Sprintf("statistical outlier: z-score=%.2f (median=%.0fms MAD=%.1f)", z, med, mad), z
	}
	return true, "", z
}

// Accept records a frame that cleared every detector, advancing the
// last-accepted pair and the bounded histories. Oldest entries are evicted
// past the configured bounds.
func (d *Detector) Accept(frameIdx int, appMs, realMs, delayMs int64) {
	d.hasLast = true
	d.lastAppMs = appMs
	d.lastRealMs = realMs
	d.accepted++

	d.normalFrames[frameIdx] = framePair{appMs: appMs, realMs: realMs}
	d.frameOrder = append(d.frameOrder, frameIdx)
	if len(d.frameOrder) > d.cfg.MaxNormalFrames {
		evict := d.frameOrder[0]
		d.frameOrder = d.frameOrder[1:]
		delete(d.normalFrames, evict)
	}

	d.normalDelays = append(d.normalDelays, float64(delayMs))
	if len(d.normalDelays) > d.cfg.MaxNormalDelays {
		d.normalDelays = d.normalDelays[len(d.normalDelays)-d.cfg.MaxNormalDelays:]
	}
}

// AcceptedCount returns how many frames have been accepted so far.
func (d *Detector) AcceptedCount() int { return d.accepted }

// HistorySize returns the current bounded history sizes, for diagnostics.
func (d *Detector) HistorySize() (frames, delays int) {
	return len(d.frameOrder), len(d.normalDelays)
}

// DelayStats summarizes the accepted delay history.
type DelayStats struct {
	Count  int
	Median float64
	MAD    float64
	Mean   float64
	Min    float64
	Max    float64
}

// Stats computes summary statistics over the accepted delays. Zero-valued
// when nothing has been accepted.
func (d *Detector) Stats() DelayStats {
	if len(d.normalDelays) == 0 {
		return DelayStats{}
	}
	med, mad := medianMAD(d.normalDelays)
	s := DelayStats{
		Count:  len(d.normalDelays),
		Median: med,
		MAD:    mad,
		Mean:   stat.Mean(d.normalDelays, nil),
		Min:    d.normalDelays[0],
		Max:    d.normalDelays[0],
	}
	for _, v := range d.normalDelays {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	return s
}

// medianMAD computes the median and the median absolute deviation of vs.
func medianMAD(vs []float64) (median, mad float64) {
	sorted := append([]float64(nil), vs...)
	sort.Float64s(sorted)
	median = stat.Quantile(0.5, stat.Empirical, sorted, nil)

	devs := make([]float64, len(sorted))
	for i, v := range sorted {
		if v >= median {
			devs[i] = v - median
		} else {
			devs[i] = median - v
		}
	}
	sort.Float64s(devs)
	mad = stat.Quantile(0.5, stat.Empirical, devs, nil)
	return median, mad
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
