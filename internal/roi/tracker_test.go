package roi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/screenlag/internal/region"
)

func establishedTracker(t *testing.T, frameIdx int) *Tracker {
	t.Helper()
	tr := NewTracker(DefaultTrackerConfig(), nil)
	tr.Establish(region.Region{X1: 100, Y1: 100, X2: 300, Y2: 140}, frameIdx)
	return tr
}

func TestTrackerStartsEmpty(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig(), nil)

	assert.False(t, tr.HasValidROI(0))
	_, ok := tr.Region()
	assert.False(t, ok)
	_, err := tr.SearchRegion(1920, 1080)
	assert.Error(t, err)
}

func TestEstablishSeedsState(t *testing.T) {
	tr := establishedTracker(t, 10)

	assert.True(t, tr.HasValidROI(10))
	assert.InDelta(t, 0.5, tr.Confidence(), 1e-9)

	s := tr.Stats()
	assert.Equal(t, 1, s.TotalUses)
	assert.Equal(t, 1, s.SuccessCount)
	assert.Equal(t, 10, s.LastSuccessFrame)
}

func TestHasValidROIGates(t *testing.T) {
	// Frame gap over 100 invalidates the region.
	tr := establishedTracker(t, 10)
	assert.True(t, tr.HasValidROI(110))
	assert.False(t, tr.HasValidROI(111))

	// Confidence below 0.5 invalidates the region. One failure from the
	// established state drops confidence to 0.4.
	tr = establishedTracker(t, 10)
	r, _ := tr.Region()
	tr.Update(r, 11, false)
	assert.False(t, tr.HasValidROI(12))
}

func TestThreeConsecutiveFailsForcesReset(t *testing.T) {
	cfg := DefaultTrackerConfig()
	tr := NewTracker(cfg, nil)
	tr.Establish(region.Region{X1: 0, Y1: 0, X2: 100, Y2: 40}, 0)

	// Push confidence up so the fail path is driven by the miss counter,
	// not the confidence floor.
	r, _ := tr.Region()
	for i := 1; i <= 5; i++ {
		tr.Update(r, i, true)
	}
	assert.Greater(t, tr.Confidence(), 0.6)

	tr.Update(r, 6, false)
	tr.Update(r, 7, false)
	assert.True(t, tr.Stats().HasRegion, "two misses should not clear the region")

	tr.Update(r, 8, false)
	assert.False(t, tr.Stats().HasRegion, "third consecutive miss must reset")
	assert.False(t, tr.HasValidROI(9))
}

func TestLowConfidenceForcesReset(t *testing.T) {
	// Raise the miss limit so the reset below can only come from the
	// confidence floor.
	cfg := DefaultTrackerConfig()
	cfg.MaxConsecutiveFails = 10
	tr := NewTracker(cfg, nil)
	tr.Establish(region.Region{X1: 100, Y1: 100, X2: 300, Y2: 140}, 0)

	r, _ := tr.Region()
	tr.Update(r, 1, false) // conf 0.4
	tr.Update(r, 2, false) // conf 0.3
	assert.True(t, tr.Stats().HasRegion)
	tr.Update(r, 3, false) // conf 0.2 < 0.3: cleared
	assert.False(t, tr.Stats().HasRegion)
}

func TestConfidenceClampedToUnitInterval(t *testing.T) {
	tr := establishedTracker(t, 0)
	r, _ := tr.Region()

	for i := 1; i <= 50; i++ {
		tr.Update(r, i, true)
	}
	assert.LessOrEqual(t, tr.Confidence(), 1.0)
	assert.InDelta(t, 1.0, tr.Confidence(), 1e-9)

	tr2 := NewTracker(DefaultTrackerConfig(), nil)
	tr2.Establish(r, 0)
	for i := 1; i <= 50; i++ {
		tr2.Update(r, i, false)
		if !tr2.Stats().HasRegion {
			tr2.Establish(r, i)
		}
	}
	assert.GreaterOrEqual(t, tr2.Confidence(), 0.0)
}

func TestConfidenceRampSlowsWhenSettled(t *testing.T) {
	tr := establishedTracker(t, 0)
	r, _ := tr.Region()

	tr.Update(r, 1, true) // 0.5 → 0.6
	assert.InDelta(t, 0.6, tr.Confidence(), 1e-9)
	tr.Update(r, 2, true) // settled: 0.6 → 0.65
	assert.InDelta(t, 0.65, tr.Confidence(), 1e-9)
}

func TestSearchRegionExpandsTenPercent(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig(), nil)
	tr.Establish(region.Region{X1: 100, Y1: 100, X2: 300, Y2: 200}, 0)

	search, err := tr.SearchRegion(1920, 1080)
	assert.NoError(t, err)
	assert.Equal(t, region.Region{X1: 80, Y1: 90, X2: 320, Y2: 210}, search)
}

func TestUpdateSuccessReplacesRegion(t *testing.T) {
	tr := establishedTracker(t, 0)

	next := region.Region{X1: 110, Y1: 102, X2: 310, Y2: 142}
	tr.Update(next, 1, true)

	got, ok := tr.Region()
	assert.True(t, ok)
	assert.Equal(t, next, got)
	assert.Equal(t, 1, tr.Stats().LastSuccessFrame)
}
