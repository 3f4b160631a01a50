package netlog

import (
	"log/slog"
	"sort"
	"time"
)

// TimeField selects which OCR-read label a log is calibrated against. The
// phone monitor runs next to the app clock and the PC monitor next to the
// reference clock, so each log gets its own field.
type TimeField string

const (
	FieldApp  TimeField = "app"
	FieldReal TimeField = "real"
)

// Sample is one point on the video's relative timeline carrying the
// OCR-read wall-clock labels, used both for offset calibration and as the
// left side of a merge. Label values are milliseconds since local midnight.
type Sample struct {
	FrameIdx   int
	VideoTimeS float64
	AppMs      int64
	AppOK      bool
	RealMs     int64
	RealOK     bool
	DelayMs    float64
	HasDelay   bool
}

func (s Sample) label(field TimeField) (int64, bool) {
	if field == FieldApp {
		return s.AppMs, s.AppOK
	}
	return s.RealMs, s.RealOK
}

// Merged is one merge result: a video sample joined with the nearest ping
// from each log, or no_data where no ping fell within tolerance.
type Merged struct {
	Sample
	PhonePingMs  float64
	PhoneHasPing bool
	PhoneStatus  Status
	PCPingMs     float64
	PCHasPing    bool
	PCStatus     Status
}

// MatcherConfig tunes the timeline join.
type MatcherConfig struct {
	// ToleranceSeconds is the maximum |log timestamp - query timestamp|
	// for a ping to count as a match. The boundary is inclusive.
	ToleranceSeconds float64
}

// DefaultMatcherConfig returns the standard matcher settings.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{ToleranceSeconds: 1.0}
}

// Matcher joins video-relative samples against absolute-timestamped network
// logs. The two clocks are reconciled by CalculateTimeOffset; when
// calibration fails the log is matched on raw relative timestamps, which
// only works for logs whose timestamps are themselves relative.
type Matcher struct {
	cfg MatcherConfig
	log *slog.Logger
}

// NewMatcher builds a Matcher. A nil logger falls back to slog.Default().
func NewMatcher(cfg MatcherConfig, log *slog.Logger) *Matcher {
	if log == nil {
		log = slog.Default()
	}
	return &Matcher{cfg: cfg, log: log}
}

// CalculateTimeOffset estimates the additive offset between the video's
// relative clock and the log's absolute clock, so that
// videoTime + offset ~= log timestamp. It anchors on the first sample whose
// selected label parsed, placing the label on the local-time date of the
// log's first entry. The second return value is false when no sample
// carries a usable label or the log is empty.
func (m *Matcher) CalculateTimeOffset(samples []Sample, entries []Entry, field TimeField) (float64, bool) {
	if len(entries) == 0 {
		return 0, false
	}

	anchor := -1
	for i, s := range samples {
		if _, ok := s.label(field); ok {
			anchor = i
			break
		}
	}
	if anchor < 0 {
		return 0, false
	}

	logStart := entries[0].Timestamp
	day := time.Unix(int64(logStart), 0).Local()
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.Local)
	midnightTS := float64(midnight.UnixNano()) / 1e9

	labelMs, _ := samples[anchor].label(field)
	abs := midnightTS + float64(labelMs)/1e3
	offset := abs - samples[anchor].VideoTimeS
	m.log.Debug("time offset calibrated",
		"field", string(field),
		"anchor_frame", samples[anchor].FrameIdx,
		"offset_s", offset)
	return offset, true
}

// FindNearestPing returns the entry whose timestamp is closest to ts,
// provided the distance is within the configured tolerance (inclusive).
// entries must be sorted ascending by timestamp.
func (m *Matcher) FindNearestPing(entries []Entry, ts float64) (Entry, bool) {
	if len(entries) == 0 {
		return Entry{}, false
	}

	i := sort.Search(len(entries), func(i int) bool { return entries[i].Timestamp >= ts })

	best := -1
	bestDist := 0.0
	if i < len(entries) {
		best = i
		bestDist = entries[i].Timestamp - ts
	}
	if i > 0 {
		if d := ts - entries[i-1].Timestamp; best < 0 || d < bestDist {
			best = i - 1
			bestDist = d
		}
	}
	if best < 0 || bestDist > m.cfg.ToleranceSeconds {
		return Entry{}, false
	}
	return entries[best], true
}

// Match joins every sample against the phone and PC logs. The phone log is
// calibrated against the app label and the PC log against the reference
// label, since each monitor ran beside the corresponding clock. A log that
// cannot be calibrated is matched on raw relative timestamps as a degraded
// fallback. Either log may be nil.
func (m *Matcher) Match(samples []Sample, phoneLog, pcLog []Entry) []Merged {
	phoneOffset := m.offsetOrRaw(samples, phoneLog, FieldApp, "phone")
	pcOffset := m.offsetOrRaw(samples, pcLog, FieldReal, "pc")

	merged := make([]Merged, 0, len(samples))
	for _, s := range samples {
		row := Merged{Sample: s, PhoneStatus: StatusNoData, PCStatus: StatusNoData}
		if len(phoneLog) > 0 {
			if e, ok := m.FindNearestPing(phoneLog, s.VideoTimeS+phoneOffset); ok {
				row.PhonePingMs = e.PingMs
				row.PhoneHasPing = e.HasPing
				row.PhoneStatus = e.Status
			}
		}
		if len(pcLog) > 0 {
			if e, ok := m.FindNearestPing(pcLog, s.VideoTimeS+pcOffset); ok {
				row.PCPingMs = e.PingMs
				row.PCHasPing = e.HasPing
				row.PCStatus = e.Status
			}
		}
		merged = append(merged, row)
	}
	return merged
}

func (m *Matcher) offsetOrRaw(samples []Sample, entries []Entry, field TimeField, name string) float64 {
	if len(entries) == 0 {
		return 0
	}
	offset, ok := m.CalculateTimeOffset(samples, entries, field)
	if !ok {
		m.log.Warn("time offset calibration failed, matching raw timestamps", "log", name)
		return 0
	}
	return offset
}
