// Package roi tracks the drifting T_real time label across frames. A sticky
// search region avoids re-scanning the whole frame on every sample; the
// tracker decays confidence on misses and falls back to a center-weighted
// global search when tracking is lost.
package roi

import (
	"fmt"
	"log/slog"

	"github.com/banshee-data/screenlag/internal/region"
)

// TrackerConfig holds the tracking lifecycle parameters.
type TrackerConfig struct {
	MaxConsecutiveFails int     // misses before the region is cleared
	MaxFrameGap         int     // frames since last success before the region goes stale
	MinTrackConfidence  float64 // confidence floor for using the fast track
	ResetConfidence     float64 // confidence below which the tracker resets
	SearchExpandRatio   float64 // fast-track search window growth per direction
}

// DefaultTrackerConfig returns the default tracking parameters.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxConsecutiveFails: 3,
		MaxFrameGap:         100,
		MinTrackConfidence:  0.5,
		ResetConfidence:     0.3,
		SearchExpandRatio:   0.1,
	}
}

// Stats is a snapshot of tracker counters for diagnostics.
type Stats struct {
	HasRegion        bool
	Confidence       float64
	ConsecutiveFails int
	TotalUses        int
	SuccessCount     int
	SuccessRate      float64 // percent
	LastSuccessFrame int
}

// Tracker owns the T_real region-of-interest state. Lifecycle:
// empty → established on first success (confidence 0.5) → tracked with
// confidence nudges per attempt → cleared when misses pile up or confidence
// collapses. Not safe for concurrent use; the frame loop is sequential.
type Tracker struct {
	cfg TrackerConfig
	log *slog.Logger

	region           *region.Region
	confidence       float64
	consecutiveFails int
	lastSuccessFrame int
	totalUses        int
	successCount     int
}

// NewTracker creates an empty tracker. A nil logger falls back to
// slog.Default().
func NewTracker(cfg TrackerConfig, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		cfg:              cfg,
		log:              logger,
		lastSuccessFrame: -1,
	}
}

// HasValidROI reports whether the stored region can be trusted for a
// fast-track search at the given frame. This gate decides fast-track versus
// full-frame search.
func (t *Tracker) HasValidROI(frameIdx int) bool {
	if t.region == nil {
		return false
	}
	if t.consecutiveFails >= t.cfg.MaxConsecutiveFails {
		return false
	}
	if frameIdx-t.lastSuccessFrame > t.cfg.MaxFrameGap {
		return false
	}
	return t.confidence >= t.cfg.MinTrackConfidence
}

// Region returns the current tracked region, if any.
func (t *Tracker) Region() (region.Region, bool) {
	if t.region == nil {
		return region.Region{}, false
	}
	return *t.region, true
}

// Confidence returns the current tracking confidence in [0, 1].
func (t *Tracker) Confidence() float64 { return t.confidence }

// SearchRegion returns the fast-track search window: the last known region
// expanded by the configured ratio in each direction, clamped to a w×h frame.
func (t *Tracker) SearchRegion(w, h int) (region.Region, error) {
	if t.region == nil {
		return region.Region{}, fmt.Errorf("no tracked region to search from")
	}
	return t.region.Expand(t.cfg.SearchExpandRatio, w, h), nil
}

// Update records the outcome of one recognition attempt. On success the
// tracked region is replaced with the new detection and confidence rises:
// fast while still below 0.6, slow once settled, capped at 1.0. On failure
// confidence drops by 0.1; too many consecutive misses or a confidence
// collapse clears the region entirely.
func (t *Tracker) Update(r region.Region, frameIdx int, success bool) {
	t.totalUses++

	if success {
		rc := r
		t.region = &rc
		t.lastSuccessFrame = frameIdx
		t.consecutiveFails = 0
		t.successCount++

		if t.confidence < 0.6 {
			t.confidence = clamp01(t.confidence + 0.1)
		} else {
			t.confidence = clamp01(t.confidence + 0.05)
		}
		return
	}

	t.consecutiveFails++
	t.confidence = clamp01(t.confidence - 0.1)

	if t.consecutiveFails >= t.cfg.MaxConsecutiveFails || t.confidence < t.cfg.ResetConfidence {
		t.log.Debug("roi tracking lost",
			"frame", frameIdx,
			"consecutive_fails", t.consecutiveFails,
			"confidence", t.confidence)
		t.Reset()
	}
}

// Establish seeds the tracker from a fresh global-search detection:
// confidence 0.5, counters restarted.
func (t *Tracker) Establish(r region.Region, frameIdx int) {
	rc := r
	t.region = &rc
	t.confidence = 0.5
	t.consecutiveFails = 0
	t.lastSuccessFrame = frameIdx
	t.totalUses = 1
	t.successCount = 1
}

// Reset clears the tracked region and counters, returning to the empty state.
func (t *Tracker) Reset() {
	t.region = nil
	t.confidence = 0
	t.consecutiveFails = 0
	t.lastSuccessFrame = -1
}

// Stats returns a snapshot of the tracker counters.
func (t *Tracker) Stats() Stats {
	rate := 0.0
	if t.totalUses > 0 {
		rate = float64(t.successCount) / float64(t.totalUses) * 100
	}
	return Stats{
		HasRegion:        t.region != nil,
		Confidence:       t.confidence,
		ConsecutiveFails: t.consecutiveFails,
		TotalUses:        t.totalUses,
		SuccessCount:     t.successCount,
		SuccessRate:      rate,
		LastSuccessFrame: t.lastSuccessFrame,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
