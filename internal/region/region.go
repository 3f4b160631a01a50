// Package region provides integer pixel rectangle math for label regions:
// clamping, overlap scoring, and directional expansion.
package region

// Side identifies a frame edge or expansion direction.
type Side string

const (
	SideNone   Side = "none"
	SideLeft   Side = "left"
	SideRight  Side = "right"
	SideTop    Side = "top"
	SideBottom Side = "bottom"
	SideBoth   Side = "both"
)

// Region is a pixel rectangle with top-left origin, half-open on the high
// end: x ∈ [X1, X2), y ∈ [Y1, Y2).
type Region struct {
	X1, Y1, X2, Y2 int
}

// Valid reports whether the region has positive extent on both axes.
func (r Region) Valid() bool {
	return r.X1 < r.X2 && r.Y1 < r.Y2
}

// Width returns the horizontal extent in pixels.
func (r Region) Width() int { return r.X2 - r.X1 }

// Height returns the vertical extent in pixels.
func (r Region) Height() int { return r.Y2 - r.Y1 }

// Area returns the number of pixels covered, zero for degenerate regions.
func (r Region) Area() int {
	if !r.Valid() {
		return 0
	}
	return r.Width() * r.Height()
}

// Clamp bounds the region to a w×h frame. The result may be degenerate if
// the region lies entirely outside the frame; callers check Valid.
func (r Region) Clamp(w, h int) Region {
	c := r
	if c.X1 < 0 {
		c.X1 = 0
	}
	if c.Y1 < 0 {
		c.Y1 = 0
	}
	if c.X2 > w {
		c.X2 = w
	}
	if c.Y2 > h {
		c.Y2 = h
	}
	return c
}

// Intersect returns the overlapping rectangle of r and o. The result is
// degenerate (Valid() == false) when they do not overlap.
func (r Region) Intersect(o Region) Region {
	return Region{
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
		X2: min(r.X2, o.X2),
		Y2: min(r.Y2, o.Y2),
	}
}

// IoU returns the intersection-over-union overlap ratio in [0, 1].
func (r Region) IoU(o Region) float64 {
	inter := r.Intersect(o).Area()
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// ContainmentWithin returns the fraction of r covered by o: intersection
// area divided by r's own area. A small region fully nested inside a larger
// one scores 1.0 here even when IoU stays low.
func (r Region) ContainmentWithin(o Region) float64 {
	area := r.Area()
	if area <= 0 {
		return 0
	}
	return float64(r.Intersect(o).Area()) / float64(area)
}

// Expand grows the region by ratio of its own extent in each direction and
// clamps to a w×h frame.
func (r Region) Expand(ratio float64, w, h int) Region {
	dx := int(float64(r.Width()) * ratio)
	dy := int(float64(r.Height()) * ratio)
	return Region{
		X1: r.X1 - dx,
		Y1: r.Y1 - dy,
		X2: r.X2 + dx,
		Y2: r.Y2 + dy,
	}.Clamp(w, h)
}

// ExpandToward grows the region horizontally toward side by px pixels and
// clamps to a w×h frame. SideBoth expands left and right together; vertical
// sides are not expanded (time labels truncate horizontally).
func (r Region) ExpandToward(side Side, px, w, h int) Region {
	e := r
	switch side {
	case SideLeft:
		e.X1 -= px
	case SideRight:
		e.X2 += px
	case SideBoth:
		e.X1 -= px
		e.X2 += px
	}
	return e.Clamp(w, h)
}

// AtEdge reports whether the region touches an edge of a w×h frame within
// margin pixels, and which edge. When the region touches more than one edge
// the first match wins in left, right, top, bottom order.
func (r Region) AtEdge(w, h, margin int) (bool, Side) {
	if r.X1 < margin {
		return true, SideLeft
	}
	if r.X2 > w-margin {
		return true, SideRight
	}
	if r.Y1 < margin {
		return true, SideTop
	}
	if r.Y2 > h-margin {
		return true, SideBottom
	}
	return false, SideNone
}

// FromPoints returns the axis-aligned bounding rectangle of a polygon given
// as (x, y) pairs. Recognizers report 4- or 8-point boxes; only the hull
// rectangle matters here. Returns a degenerate region for empty input.
func FromPoints(pts [][2]int) Region {
	if len(pts) == 0 {
		return Region{}
	}
	r := Region{X1: pts[0][0], Y1: pts[0][1], X2: pts[0][0], Y2: pts[0][1]}
	for _, p := range pts[1:] {
		r.X1 = min(r.X1, p[0])
		r.Y1 = min(r.Y1, p[1])
		r.X2 = max(r.X2, p[0])
		r.Y2 = max(r.Y2, p[1])
	}
	return r
}
