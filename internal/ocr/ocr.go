// Package ocr defines the narrow contract between the analysis engine and an
// external text-recognition collaborator. The engine never sees pixels or a
// concrete OCR backend: it hands a frame plus a search region to a Recognizer
// and gets back raw text hits. Any recognizer failure is treated by callers
// as "no result for this attempt", never as a fatal error.
package ocr

import (
	"context"

	"github.com/banshee-data/screenlag/internal/region"
)

// Frame is the engine's view of one decoded video frame. Decode stays
// outside this module; the engine only needs dimensions to clamp regions
// and an index for bookkeeping.
type Frame interface {
	Index() int
	Width() int
	Height() int
}

// Hit is a single piece of text found by the recognizer. Box is the
// axis-aligned bounding rectangle of the reported polygon, in coordinates of
// the full frame (implementations translate region-relative boxes before
// returning). Confidence is in [0, 1].
type Hit struct {
	Box        region.Region
	Text       string
	Confidence float64
}

// Recognizer runs text recognition over one region of a frame.
//
// Implementations wrap whatever OCR engine the deployment uses. An error
// return means the attempt produced nothing usable; callers fold it into a
// failed recognition rather than propagating it.
type Recognizer interface {
	Recognize(ctx context.Context, frame Frame, r region.Region) ([]Hit, error)
}
