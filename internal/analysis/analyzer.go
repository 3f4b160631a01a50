package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/banshee-data/screenlag/internal/anomaly"
	"github.com/banshee-data/screenlag/internal/ocr"
	"github.com/banshee-data/screenlag/internal/region"
	"github.com/banshee-data/screenlag/internal/roi"
	"github.com/banshee-data/screenlag/internal/timestr"
)

// Observer receives progress and log callbacks from a run. Implementations
// belong to the caller; the pipeline never depends on a concrete UI.
type Observer interface {
	OnProgress(current, total int)
	OnLog(message string)
}

// NopObserver discards all callbacks.
type NopObserver struct{}

func (NopObserver) OnProgress(current, total int) {}
func (NopObserver) OnLog(message string)          {}

// FrameSource yields sampled frames in increasing index order. Next returns
// io.EOF when the source is exhausted. Total reports the expected number of
// sampled frames for progress reporting, or 0 when unknown.
type FrameSource interface {
	Next(ctx context.Context) (ocr.Frame, error)
	Total() int
}

// AnalyzerConfig carries the per-run parameters of the pipeline.
type AnalyzerConfig struct {
	// VideoName labels every record of the run.
	VideoName string
	// FPS converts frame indexes to video-relative seconds.
	FPS float64
	// AppRegion is the fixed, user-calibrated box holding the app
	// timestamp. It doubles as the locator's exclusion region.
	AppRegion region.Region
	// MinAppConfidence rejects low-confidence recognizer hits in the app
	// region.
	MinAppConfidence float64
}

// DefaultAnalyzerConfig returns the standard pipeline settings, without a
// video name or app region.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{FPS: 30, MinAppConfidence: 0.6}
}

// Analyzer runs the measurement pipeline over sampled frames. It is
// strictly sequential: one frame at a time, state mutated in place between
// frames, so none of its collaborators need locking.
type Analyzer struct {
	cfg     AnalyzerConfig
	rec     ocr.Recognizer
	locator *roi.Locator
	det     *anomaly.Detector
	log     *slog.Logger
	obs     Observer
}

// NewAnalyzer builds an Analyzer. A nil observer discards callbacks and a
// nil logger falls back to slog.Default().
func NewAnalyzer(cfg AnalyzerConfig, rec ocr.Recognizer, locator *roi.Locator, det *anomaly.Detector, log *slog.Logger, obs Observer) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	if obs == nil {
		obs = NopObserver{}
	}
	return &Analyzer{cfg: cfg, rec: rec, locator: locator, det: det, log: log, obs: obs}
}

// Run processes every frame the source yields and returns the records in
// order. A context cancellation stops the run and returns the records
// collected so far along with the context error.
func (a *Analyzer) Run(ctx context.Context, src FrameSource) ([]FrameRecord, error) {
	total := src.Total()
	var records []FrameRecord
	for {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, fmt.Errorf("next frame: %w", err)
		}
		records = append(records, a.AnalyzeFrame(ctx, frame))
		a.obs.OnProgress(len(records), total)
	}
}

// AnalyzeFrame measures one frame: recognize both timestamps, compute the
// delay, classify it, and advance detector state for accepted samples.
func (a *Analyzer) AnalyzeFrame(ctx context.Context, frame ocr.Frame) FrameRecord {
	rec := FrameRecord{
		VideoName:  a.cfg.VideoName,
		FrameIdx:   frame.Index(),
		VideoTimeS: float64(frame.Index()) / a.cfg.FPS,
	}

	rec.AppLabel = a.recognizeApp(ctx, frame)

	var realRegion region.Region
	if m, ok := a.locator.Locate(ctx, frame, &a.cfg.AppRegion); ok {
		rec.RealLabel = m.Label
		realRegion = m.Region
	}

	delay, ok, status := ComputeDelay(rec.AppLabel, rec.RealLabel)
	rec.Status = status
	if !ok {
		rec.ErrorReason = failReason(status)
		a.obs.OnLog(fmt.Sprintf("frame %d: %s", rec.FrameIdx, rec.ErrorReason))
		return rec
	}
	rec.DelayMs = delay
	rec.HasDelay = true

	a.classify(ctx, frame, &rec, realRegion)
	if rec.Status == StatusOK || rec.Status == StatusOKRechecked {
		a.det.Accept(rec.FrameIdx, rec.AppLabel.Ms, rec.RealLabel.Ms, rec.DelayMs)
	} else {
		a.obs.OnLog(fmt.Sprintf("frame %d flagged: %s", rec.FrameIdx, rec.ErrorReason))
	}
	return rec
}

// classify runs the anomaly checks in precedence order, performing at most
// one synchronous re-recognition when the jump-consistency check asks for
// it. On the recheck path a different second reading is adopted and a
// reproduced reading is trusted as-is.
func (a *Analyzer) classify(ctx context.Context, frame ocr.Frame, rec *FrameRecord, realRegion region.Region) {
	verdict, reason := a.det.CheckJump(rec.AppLabel.Ms, rec.RealLabel.Ms, rec.DelayMs)
	switch verdict {
	case anomaly.VerdictWrong:
		rec.Status = StatusWrong
		rec.ErrorReason = reason
		return
	case anomaly.VerdictRecheck:
		a.recheck(ctx, frame, rec, realRegion, reason)
		if rec.Status == StatusWrong {
			return
		}
	}

	if ok, reason := a.det.CheckRegression(rec.FrameIdx, rec.RealLabel.Ms); !ok {
		rec.Status = StatusWrong
		rec.ErrorReason = reason
		return
	}
	if ok, reason, _ := a.det.CheckStatistical(rec.DelayMs); !ok {
		rec.Status = StatusWrong
		rec.ErrorReason = reason
	}
}

func (a *Analyzer) recheck(ctx context.Context, frame ocr.Frame, rec *FrameRecord, realRegion region.Region, reason string) {
	a.log.Debug("jump-consistency recheck", "frame", rec.FrameIdx, "reason", reason)

	retry, ok := a.recognizeIn(ctx, frame, realRegion)
	if !ok || retry.Ms == rec.RealLabel.Ms {
		// Reproduced (or unreadable on retry): trust the original reading.
		rec.Status = StatusOK
		return
	}

	// Different second reading: adopt it and re-apply the hard bounds.
	rec.RealLabel = retry
	rec.DelayMs = rec.AppLabel.Ms - retry.Ms
	if passed, boundReason := a.det.CheckBounds(rec.DelayMs); !passed {
		rec.Status = StatusWrong
		rec.ErrorReason = boundReason
		return
	}
	rec.Status = StatusOKRechecked
}

// recognizeApp reads the fixed app-timestamp region.
func (a *Analyzer) recognizeApp(ctx context.Context, frame ocr.Frame) timestr.Label {
	r := a.cfg.AppRegion.Clamp(frame.Width(), frame.Height())
	if !r.Valid() {
		return timestr.Label{}
	}
	label, _ := a.recognizeIn(ctx, frame, r)
	return label
}

// recognizeIn runs one recognition pass over r and returns the first hit
// that parses as a time label. Recognizer errors fold into no result.
func (a *Analyzer) recognizeIn(ctx context.Context, frame ocr.Frame, r region.Region) (timestr.Label, bool) {
	if !r.Valid() {
		return timestr.Label{}, false
	}
	hits, err := a.rec.Recognize(ctx, frame, r)
	if err != nil {
		a.log.Debug("recognition failed", "frame", frame.Index(), "error", err)
		return timestr.Label{}, false
	}
	for _, h := range hits {
		if h.Confidence < a.cfg.MinAppConfidence {
			continue
		}
		if label := timestr.Parse(h.Text); label.OK {
			label.Confidence = h.Confidence
			return label, true
		}
	}
	return timestr.Label{}, false
}

func failReason(s Status) string {
	switch s {
	case StatusAppFail:
		return "app timestamp unreadable"
	case StatusRealFail:
		return "reference timestamp unreadable"
	case StatusBothFail:
		return "both timestamps unreadable"
	}
	return ""
}
