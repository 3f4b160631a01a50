package roi

import (
	"context"
	"log/slog"

	"github.com/banshee-data/screenlag/internal/ocr"
	"github.com/banshee-data/screenlag/internal/region"
	"github.com/banshee-data/screenlag/internal/timestr"
)

// LocatorConfig holds search and validation parameters for T_real location.
type LocatorConfig struct {
	MinConfidence float64 // recognizer hits below this are ignored

	// Exclusion thresholds against the fixed T_app region. A candidate is
	// rejected when either score exceeds its threshold; containment catches
	// a small candidate nested inside the excluded box, which IoU misses.
	MaxExclusionIoU         float64
	MaxExclusionContainment float64

	ExpandPixels    int // edge-truncation recovery growth toward the missing side
	EdgeMargin      int // distance from a frame edge that counts as touching it
	EdgeMarginAfter int // tighter margin for the post-expansion edge check
}

// DefaultLocatorConfig returns the default search parameters.
func DefaultLocatorConfig() LocatorConfig {
	return LocatorConfig{
		MinConfidence:           0.6,
		MaxExclusionIoU:         0.5,
		MaxExclusionContainment: 0.5,
		ExpandPixels:            50,
		EdgeMargin:              10,
		EdgeMarginAfter:         5,
	}
}

// globalSearchCrops are the concentric center-weighted crops tried in
// priority order during a global search, as fractions of the frame kept on
// each axis. Time overlays cluster near the center, so the tight crop
// usually wins and keeps recognition cheap.
var globalSearchCrops = []struct {
	name string
	keep float64
}{
	{"center_50", 0.50},
	{"center_70", 0.70},
	{"center_90", 0.90},
}

// Match is a located T_real label: where it was found and what it read.
type Match struct {
	Region region.Region
	Label  timestr.Label
}

// Locator finds the T_real label in a frame, using the tracker's sticky
// region for a cheap local re-scan when it is trustworthy and degrading to a
// center-weighted global search otherwise. The tracker is updated after
// every attempt regardless of outcome.
type Locator struct {
	cfg     LocatorConfig
	rec     ocr.Recognizer
	tracker *Tracker
	log     *slog.Logger
}

// NewLocator creates a Locator around a recognizer and a tracker. A nil
// logger falls back to slog.Default().
func NewLocator(cfg LocatorConfig, rec ocr.Recognizer, tracker *Tracker, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{cfg: cfg, rec: rec, tracker: tracker, log: logger}
}

// Tracker returns the tracker driven by this locator.
func (l *Locator) Tracker() *Tracker { return l.tracker }

// Locate finds T_real in the frame. exclude is the fixed T_app region, or
// nil when none is configured. Returns false when no acceptable label was
// found anywhere.
func (l *Locator) Locate(ctx context.Context, frame ocr.Frame, exclude *region.Region) (Match, bool) {
	w, h := frame.Width(), frame.Height()

	// Phase 1: fast track inside the sticky search window.
	if l.tracker.HasValidROI(frame.Index()) {
		search, err := l.tracker.SearchRegion(w, h)
		if err == nil && search.Valid() {
			if m, ok := l.tryRegion(ctx, frame, search, exclude); ok {
				l.tracker.Update(m.Region, frame.Index(), true)
				return m, true
			}
		}

		// Miss: decay the tracker. This may clear the region and the same
		// call then degrades to a global search below.
		if prev, ok := l.tracker.Region(); ok {
			l.tracker.Update(prev, frame.Index(), false)
		}
		l.log.Debug("fast track miss, degrading to global search", "frame", frame.Index())
	}

	// Phase 2: global search over concentric center crops.
	for _, crop := range globalSearchCrops {
		inset := (1 - crop.keep) / 2
		search := region.Region{
			X1: int(float64(w) * inset),
			Y1: int(float64(h) * inset),
			X2: int(float64(w) * (1 - inset)),
			Y2: int(float64(h) * (1 - inset)),
		}.Clamp(w, h)
		if !search.Valid() {
			continue
		}

		if m, ok := l.tryRegion(ctx, frame, search, exclude); ok {
			l.tracker.Establish(m.Region, frame.Index())
			l.log.Debug("global search hit",
				"frame", frame.Index(), "crop", crop.name, "time", m.Label.Canonical)
			return m, true
		}
	}

	return Match{}, false
}

// tryRegion recognizes one search region and validates the first time-shaped
// hit: confidence gate, exclusion overlap, and completeness with one
// edge-expansion retry. Recognizer errors fold into a miss.
func (l *Locator) tryRegion(ctx context.Context, frame ocr.Frame, search region.Region, exclude *region.Region) (Match, bool) {
	hits, err := l.rec.Recognize(ctx, frame, search)
	if err != nil {
		l.log.Debug("recognizer error treated as no result", "frame", frame.Index(), "err", err)
		return Match{}, false
	}

	for _, hit := range hits {
		if hit.Confidence < l.cfg.MinConfidence {
			continue
		}
		label := timestr.Parse(hit.Text)
		if !label.OK {
			continue
		}
		label.Confidence = hit.Confidence

		if m, ok := l.verify(ctx, frame, hit.Box, label, exclude); ok {
			return m, true
		}
	}
	return Match{}, false
}

// verify applies the exclusion filter and the completeness check to a
// candidate, expanding toward a missing side and re-recognizing once when
// the label looks truncated by the search window rather than the frame.
func (l *Locator) verify(ctx context.Context, frame ocr.Frame, box region.Region, label timestr.Label, exclude *region.Region) (Match, bool) {
	w, h := frame.Width(), frame.Height()

	if exclude != nil {
		iou := box.IoU(*exclude)
		containment := box.ContainmentWithin(*exclude)
		if iou > l.cfg.MaxExclusionIoU || containment > l.cfg.MaxExclusionContainment {
			l.log.Debug("candidate rejected: overlaps excluded region",
				"frame", frame.Index(), "iou", iou, "containment", containment)
			return Match{}, false
		}
	}

	complete, missing := timestr.IsComplete(label.Canonical, label.Raw)
	if complete {
		return Match{Region: box, Label: label}, true
	}

	// The label looks cut off. If the box already touches the frame edge on
	// the missing side there is nothing more to read; otherwise grow the box
	// toward that side and re-recognize once.
	atEdge, edgeSide := box.AtEdge(w, h, l.cfg.EdgeMargin)
	expanded := box.ExpandToward(missingToSide(missing), l.cfg.ExpandPixels, w, h)

	if atEdge {
		atEdgeAfter, sideAfter := expanded.AtEdge(w, h, l.cfg.EdgeMarginAfter)
		if atEdgeAfter && sideAfter == edgeSide {
			l.log.Debug("candidate truncated by frame edge",
				"frame", frame.Index(), "edge", edgeSide)
			return Match{}, false
		}
	}

	hits, err := l.rec.Recognize(ctx, frame, expanded)
	if err != nil {
		return Match{}, false
	}
	for _, hit := range hits {
		if hit.Confidence < l.cfg.MinConfidence {
			continue
		}
		retry := timestr.Parse(hit.Text)
		if !retry.OK {
			continue
		}
		if ok, _ := timestr.IsComplete(retry.Canonical, retry.Raw); !ok {
			continue
		}
		retry.Confidence = hit.Confidence
		return Match{Region: expanded, Label: retry}, true
	}

	l.log.Debug("candidate still incomplete after expansion", "frame", frame.Index())
	return Match{}, false
}

func missingToSide(s timestr.Side) region.Side {
	switch s {
	case timestr.SideLeft:
		return region.SideLeft
	case timestr.SideRight:
		return region.SideRight
	case timestr.SideBoth:
		return region.SideBoth
	}
	return region.SideNone
}
