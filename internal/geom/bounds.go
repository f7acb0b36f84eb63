package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Bounds is an axis-aligned box given by its centre and half-size.
type Bounds struct {
	Center  Vec
	Extents Vec
}

// NewBounds returns bounds around center with the given half-size.
func NewBounds(center, extents Vec) Bounds {
	return Bounds{Center: center, Extents: extents}
}

// Min returns the minimum corner.
func (b Bounds) Min() Vec { return r3.Sub(b.Center, b.Extents) }

// Max returns the maximum corner.
func (b Bounds) Max() Vec { return r3.Add(b.Center, b.Extents) }

// Corners returns the eight corners of the box.
func (b Bounds) Corners() [8]Vec {
	var out [8]Vec
	i := 0
	for _, sx := range [2]float64{1, -1} {
		for _, sy := range [2]float64{1, -1} {
			for _, sz := range [2]float64{1, -1} {
				out[i] = V(b.Center.X+sx*b.Extents.X, b.Center.Y+sy*b.Extents.Y, b.Center.Z+sz*b.Extents.Z)
				i++
			}
		}
	}
	return out
}

// Encapsulate grows b to contain p.
func (b Bounds) Encapsulate(p Vec) Bounds {
	lo, hi := b.Min(), b.Max()
	lo = V(math.Min(lo.X, p.X), math.Min(lo.Y, p.Y), math.Min(lo.Z, p.Z))
	hi = V(math.Max(hi.X, p.X), math.Max(hi.Y, p.Y), math.Max(hi.Z, p.Z))
	return Bounds{Center: r3.Scale(0.5, r3.Add(lo, hi)), Extents: r3.Scale(0.5, r3.Sub(hi, lo))}
}

// Transformed returns the axis-aligned bounds of the box after t.
func (b Bounds) Transformed(t Transform) Bounds {
	corners := b.Corners()
	out := Bounds{Center: t.ApplyPoint(corners[0])}
	for _, c := range corners[1:] {
		out = out.Encapsulate(t.ApplyPoint(c))
	}
	return out
}

// Rect is a screen rectangle in pixels.
type Rect struct {
	Min Point2
	Max Point2
}

// RectFromPoints returns the smallest rect containing a and b.
func RectFromPoints(a, b Point2) Rect {
	return Rect{
		Min: Point2{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y)},
		Max: Point2{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y)},
	}
}

// Width returns the horizontal size.
func (r Rect) Width() float64 { return r.Max.X - r.Min.X }

// Height returns the vertical size.
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }

// Empty reports whether r has no area.
func (r Rect) Empty() bool { return r.Width() <= 0 || r.Height() <= 0 }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point2) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// WorldBoundsToScreen converts a 3D bounding box into the screen
// rectangle covering the projections of its centre and all eight
// corners. Corners behind the camera are skipped; ok is false when
// nothing projects.
func WorldBoundsToScreen(cam Camera, b Bounds) (Rect, bool) {
	var r Rect
	found := false
	add := func(p Vec) {
		pt, _, ok := cam.WorldToScreen(p)
		if !ok {
			return
		}
		if !found {
			r = Rect{Min: pt, Max: pt}
			found = true
			return
		}
		r.Min = Point2{X: math.Min(r.Min.X, pt.X), Y: math.Min(r.Min.Y, pt.Y)}
		r.Max = Point2{X: math.Max(r.Max.X, pt.X), Y: math.Max(r.Max.Y, pt.Y)}
	}
	add(b.Center)
	for _, c := range b.Corners() {
		add(c)
	}
	return r, found
}

// IntersectBounds returns the distance along r to the first hit on b
// using the slab test. A ray starting inside b hits at t = 0.
func (r Ray) IntersectBounds(b Bounds) (float64, bool) {
	lo, hi := b.Min(), b.Max()
	tmin, tmax := math.Inf(-1), math.Inf(1)
	for _, axis := range [3]struct{ o, d, lo, hi float64 }{
		{r.Origin.X, r.Direction.X, lo.X, hi.X},
		{r.Origin.Y, r.Direction.Y, lo.Y, hi.Y},
		{r.Origin.Z, r.Direction.Z, lo.Z, hi.Z},
	} {
		if math.Abs(axis.d) < 1e-12 {
			if axis.o < axis.lo || axis.o > axis.hi {
				return 0, false
			}
			continue
		}
		t1 := (axis.lo - axis.o) / axis.d
		t2 := (axis.hi - axis.o) / axis.d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	if tmax < 0 {
		return 0, false
	}
	return math.Max(tmin, 0), true
}

func tanDeg(d float64) float64 {
	return math.Tan(d * math.Pi / 180)
}
