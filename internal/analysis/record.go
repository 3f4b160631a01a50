// Package analysis runs the per-frame measurement pipeline: recognizing the
// fixed app timestamp and the drifting reference timestamp on each sampled
// frame, computing the signed delay between them, classifying the sample
// through the anomaly detectors, and reporting the resulting records.
package analysis

import (
	"github.com/banshee-data/screenlag/internal/timestr"
)

// Status classifies the outcome of one sampled frame.
type Status string

const (
	// StatusOK means both labels parsed and the delay passed every check.
	StatusOK Status = "ok"
	// StatusOKRechecked means the jump-consistency check triggered a second
	// recognition that produced a different, accepted value.
	StatusOKRechecked Status = "ok_rechecked"
	// StatusAppFail means the app timestamp could not be read.
	StatusAppFail Status = "app_fail"
	// StatusRealFail means the reference timestamp could not be read.
	StatusRealFail Status = "real_fail"
	// StatusBothFail means neither timestamp could be read.
	StatusBothFail Status = "both_fail"
	// StatusWrong means both labels parsed but the delay failed anomaly
	// validation; ErrorReason names the rule.
	StatusWrong Status = "wrong"
)

// FrameRecord is the immutable outcome of one sampled frame. Records form
// an append-only sequence ordered by FrameIdx.
type FrameRecord struct {
	VideoName   string
	FrameIdx    int
	VideoTimeS  float64
	AppLabel    timestr.Label
	RealLabel   timestr.Label
	DelayMs     int64
	HasDelay    bool
	Status      Status
	ErrorReason string
}

// ComputeDelay derives the signed app-behind-reference delay from the two
// labels. When either label is absent the delay is absent and the returned
// status names which side failed.
func ComputeDelay(app, real timestr.Label) (delayMs int64, ok bool, status Status) {
	switch {
	case !app.OK && !real.OK:
		return 0, false, StatusBothFail
	case !app.OK:
		return 0, false, StatusAppFail
	case !real.OK:
		return 0, false, StatusRealFail
	}
	return app.Ms - real.Ms, true, StatusOK
}
