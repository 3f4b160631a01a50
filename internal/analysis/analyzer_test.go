package analysis

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/screenlag/internal/anomaly"
	"github.com/banshee-data/screenlag/internal/ocr"
	"github.com/banshee-data/screenlag/internal/region"
	"github.com/banshee-data/screenlag/internal/roi"
	"github.com/banshee-data/screenlag/internal/timestr"
)

func parseMust(t *testing.T, text string) timestr.Label {
	t.Helper()
	l := timestr.Parse(text)
	require.True(t, l.OK, "parse %q", text)
	return l
}

type fakeFrame struct{ idx, w, h int }

func (f fakeFrame) Index() int  { return f.idx }
func (f fakeFrame) Width() int  { return f.w }
func (f fakeFrame) Height() int { return f.h }

type sliceSource struct {
	frames []ocr.Frame
	next   int
}

func (s *sliceSource) Next(context.Context) (ocr.Frame, error) {
	if s.next >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func (s *sliceSource) Total() int { return len(s.frames) }

var (
	testAppRegion = region.Region{X1: 100, Y1: 100, X2: 400, Y2: 150}
	testAppBox    = region.Region{X1: 110, Y1: 105, X2: 390, Y2: 145}
	testRealBox   = region.Region{X1: 800, Y1: 500, X2: 1100, Y2: 540}
)

func contains(outer, inner region.Region) bool {
	return inner.X1 >= outer.X1 && inner.Y1 >= outer.Y1 &&
		inner.X2 <= outer.X2 && inner.Y2 <= outer.Y2
}

// screenRecognizer plays back per-frame label texts for the two on-screen
// clocks. Real-label texts are queues so a recheck's second read can differ
// from the first.
type screenRecognizer struct {
	appTexts  map[int]string
	realTexts map[int][]string
}

func newScreenRecognizer() *screenRecognizer {
	return &screenRecognizer{
		appTexts:  make(map[int]string),
		realTexts: make(map[int][]string),
	}
}

func (r *screenRecognizer) Recognize(_ context.Context, frame ocr.Frame, search region.Region) ([]ocr.Hit, error) {
	var hits []ocr.Hit
	if text, ok := r.appTexts[frame.Index()]; ok && contains(search, testAppBox) {
		hits = append(hits, ocr.Hit{Box: testAppBox, Text: text, Confidence: 0.95})
	}
	if queue := r.realTexts[frame.Index()]; len(queue) > 0 && contains(search, testRealBox) {
		text := queue[0]
		if len(queue) > 1 {
			r.realTexts[frame.Index()] = queue[1:]
		}
		hits = append(hits, ocr.Hit{Box: testRealBox, Text: text, Confidence: 0.95})
	}
	return hits, nil
}

func newTestAnalyzer(rec ocr.Recognizer) *Analyzer {
	tracker := roi.NewTracker(roi.DefaultTrackerConfig(), nil)
	locator := roi.NewLocator(roi.DefaultLocatorConfig(), rec, tracker, nil)
	det := anomaly.NewDetector(anomaly.DefaultConfig(), nil)

	cfg := DefaultAnalyzerConfig()
	cfg.VideoName = "capture.mp4"
	cfg.AppRegion = testAppRegion
	return NewAnalyzer(cfg, rec, locator, det, nil, nil)
}

func frames(n int) []ocr.Frame {
	fs := make([]ocr.Frame, n)
	for i := range fs {
		fs[i] = fakeFrame{idx: i * 30, w: 1920, h: 1080}
	}
	return fs
}

func TestRunClockRegressionSequence(t *testing.T) {
	rec := newScreenRecognizer()
	rec.appTexts[0] = "10:00:00.000"
	rec.appTexts[30] = "10:00:01.000"
	rec.appTexts[60] = "10:00:00.500"
	rec.realTexts[0] = []string{"09:59:59.900"}
	rec.realTexts[30] = []string{"10:00:00.900"}
	rec.realTexts[60] = []string{"10:00:00.400"}

	a := newTestAnalyzer(rec)
	records, err := a.Run(context.Background(), &sliceSource{frames: frames(3)})
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, StatusOK, records[0].Status)
	assert.Equal(t, StatusOK, records[1].Status)
	assert.Equal(t, StatusWrong, records[2].Status)
	assert.Contains(t, records[2].ErrorReason, "time regression")

	assert.Equal(t, int64(100), records[0].DelayMs)
	assert.Equal(t, int64(100), records[1].DelayMs)
	assert.Equal(t, "capture.mp4", records[0].VideoName)
	assert.InDelta(t, 1.0, records[1].VideoTimeS, 1e-9)
}

func TestAnalyzeFrameFailureStatuses(t *testing.T) {
	rec := newScreenRecognizer()
	rec.appTexts[0] = "10:00:00.000"
	rec.realTexts[30] = []string{"10:00:01.000"}

	a := newTestAnalyzer(rec)

	r := a.AnalyzeFrame(context.Background(), fakeFrame{idx: 0, w: 1920, h: 1080})
	assert.Equal(t, StatusRealFail, r.Status)
	assert.False(t, r.HasDelay)
	assert.NotEmpty(t, r.ErrorReason)

	r = a.AnalyzeFrame(context.Background(), fakeFrame{idx: 30, w: 1920, h: 1080})
	assert.Equal(t, StatusAppFail, r.Status)

	r = a.AnalyzeFrame(context.Background(), fakeFrame{idx: 60, w: 1920, h: 1080})
	assert.Equal(t, StatusBothFail, r.Status)
}

func TestRecheckAdoptsDifferentSecondReading(t *testing.T) {
	rec := newScreenRecognizer()
	rec.appTexts[0] = "10:00:00.000"
	rec.appTexts[30] = "10:00:01.000"
	rec.realTexts[0] = []string{"09:59:59.900"}
	// First read jumps 3.1s; the second read corrects it.
	rec.realTexts[30] = []string{"10:00:03.000", "10:00:00.900"}

	a := newTestAnalyzer(rec)
	records, err := a.Run(context.Background(), &sliceSource{frames: frames(2)})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, StatusOKRechecked, records[1].Status)
	assert.Equal(t, int64(100), records[1].DelayMs)
	assert.Equal(t, "10:00:00.900", records[1].RealLabel.Canonical)
}

func TestRecheckTrustsReproducedReading(t *testing.T) {
	rec := newScreenRecognizer()
	rec.appTexts[0] = "10:00:00.000"
	rec.appTexts[30] = "10:00:01.000"
	rec.realTexts[0] = []string{"09:59:59.900"}
	// Both reads agree on the jumped value: stability wins.
	rec.realTexts[30] = []string{"10:00:03.000"}

	a := newTestAnalyzer(rec)
	records, err := a.Run(context.Background(), &sliceSource{frames: frames(2)})
	require.NoError(t, err)

	assert.Equal(t, StatusOK, records[1].Status)
	assert.Equal(t, int64(-2000), records[1].DelayMs)
}

func TestHardBoundRejection(t *testing.T) {
	rec := newScreenRecognizer()
	rec.appTexts[0] = "10:00:20.000"
	rec.realTexts[0] = []string{"10:00:00.000"}

	a := newTestAnalyzer(rec)
	r := a.AnalyzeFrame(context.Background(), fakeFrame{idx: 0, w: 1920, h: 1080})

	assert.Equal(t, StatusWrong, r.Status)
	assert.Contains(t, r.ErrorReason, "hard cap")
	assert.True(t, r.HasDelay)
	assert.Equal(t, int64(20000), r.DelayMs)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := newTestAnalyzer(newScreenRecognizer())
	records, err := a.Run(ctx, &sliceSource{frames: frames(3)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, records)
}

type progressObserver struct {
	progress [][2]int
	logs     []string
}

func (o *progressObserver) OnProgress(current, total int) {
	o.progress = append(o.progress, [2]int{current, total})
}

func (o *progressObserver) OnLog(msg string) { o.logs = append(o.logs, msg) }

func TestObserverCallbacks(t *testing.T) {
	rec := newScreenRecognizer()
	rec.appTexts[0] = "10:00:00.000"
	rec.realTexts[0] = []string{"09:59:59.900"}

	obs := &progressObserver{}
	tracker := roi.NewTracker(roi.DefaultTrackerConfig(), nil)
	locator := roi.NewLocator(roi.DefaultLocatorConfig(), rec, tracker, nil)
	det := anomaly.NewDetector(anomaly.DefaultConfig(), nil)
	cfg := DefaultAnalyzerConfig()
	cfg.AppRegion = testAppRegion
	a := NewAnalyzer(cfg, rec, locator, det, nil, obs)

	_, err := a.Run(context.Background(), &sliceSource{frames: frames(2)})
	require.NoError(t, err)

	require.Len(t, obs.progress, 2)
	assert.Equal(t, [2]int{1, 2}, obs.progress[0])
	assert.Equal(t, [2]int{2, 2}, obs.progress[1])
	require.NotEmpty(t, obs.logs, "the failed second frame is reported")
}

type erroringSource struct{}

func (erroringSource) Next(context.Context) (ocr.Frame, error) {
	return nil, errors.New("decode failed")
}
func (erroringSource) Total() int { return 0 }

func TestRunPropagatesSourceErrors(t *testing.T) {
	a := newTestAnalyzer(newScreenRecognizer())
	_, err := a.Run(context.Background(), erroringSource{})
	assert.ErrorContains(t, err, "decode failed")
}

func TestComputeDelay(t *testing.T) {
	app := parseMust(t, "10:00:01.500")
	real := parseMust(t, "10:00:01.000")

	delay, ok, status := ComputeDelay(app, real)
	require.True(t, ok)
	assert.Equal(t, int64(500), delay)
	assert.Equal(t, StatusOK, status)

	// Negative delay is legitimate: the app clock can run behind.
	delay, ok, _ = ComputeDelay(real, app)
	require.True(t, ok)
	assert.Equal(t, int64(-500), delay)
}
