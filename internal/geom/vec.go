package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Vec is a 3D vector in metres.
type Vec = r3.Vec

// Point2 is a screen-space point in pixels.
type Point2 = r2.Vec

// degenerateNorm is the length below which a direction is treated as zero.
const degenerateNorm = 1e-6

var (
	// AxisX is the unit X axis.
	AxisX = Vec{X: 1}
	// AxisY is the unit Y axis.
	AxisY = Vec{Y: 1}
	// AxisZ is the unit Z axis.
	AxisZ = Vec{Z: 1}
)

// V is shorthand for Vec{X: x, Y: y, Z: z}.
func V(x, y, z float64) Vec {
	return Vec{X: x, Y: y, Z: z}
}

// Normalize returns v scaled to unit length and false when v is too
// short to carry a direction. Unlike r3.Unit it never produces NaN.
func Normalize(v Vec) (Vec, bool) {
	n := r3.Norm(v)
	if n < degenerateNorm || math.IsNaN(n) || math.IsInf(n, 0) {
		return Vec{}, false
	}
	return r3.Scale(1/n, v), true
}

// AngleDeg returns the angle between a and b in degrees, in [0, 180].
func AngleDeg(a, b Vec) float64 {
	na, nb := r3.Norm(a), r3.Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	c := r3.Dot(a, b) / (na * nb)
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c) * 180 / math.Pi
}

// AnyOrthogonal returns a unit vector perpendicular to v. v must be
// non-zero.
func AnyOrthogonal(v Vec) Vec {
	// Cross with the axis least aligned to v.
	ax, ay, az := math.Abs(v.X), math.Abs(v.Y), math.Abs(v.Z)
	axis := AxisX
	switch {
	case ay <= ax && ay <= az:
		axis = AxisY
	case az <= ax && az <= ay:
		axis = AxisZ
	}
	o, ok := Normalize(r3.Cross(v, axis))
	if !ok {
		return AxisX
	}
	return o
}

// ApproxEqualVec reports whether a and b differ by at most tol in every
// component.
func ApproxEqualVec(a, b Vec, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol && math.Abs(a.Z-b.Z) <= tol
}

// IsFiniteVec reports whether every component of v is a finite number.
func IsFiniteVec(v Vec) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
