package plane

import (
	"github.com/banshee-data/arthylene/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultFacingMaxAngleDeg is the normal/camera-forward angle above
// which the projected-forward construction is considered unstable.
const DefaultFacingMaxAngleDeg = 175.0

// FacingForward returns the forward direction for an object standing
// on a surface with the given normal, so that it faces the viewer.
// It behaves like a look rotation constrained to the plane.
//
// Below maxAngleDeg between normal and the camera forward, the camera
// forward is projected onto the plane. Otherwise the two are nearly
// parallel and the cross product loses too much precision, so the
// camera right (then up) axis is used instead. The result is always a
// finite unit vector orthogonal to normal.
func FacingForward(normal, camForward, camRight, camUp geom.Vec, maxAngleDeg float64) geom.Vec {
	up, ok := geom.Normalize(normal)
	if !ok {
		up = geom.AxisY
	}

	if geom.AngleDeg(up, camForward) < maxAngleDeg {
		if right, ok := geom.Normalize(r3.Cross(up, camForward)); ok {
			if fwd, ok := geom.Normalize(r3.Cross(right, up)); ok {
				return fwd
			}
		}
	}

	if fwd, ok := geom.Normalize(r3.Cross(up, camRight)); ok {
		return fwd
	}
	if fwd, ok := geom.Normalize(r3.Cross(up, camUp)); ok {
		return fwd
	}
	return geom.AnyOrthogonal(up)
}
