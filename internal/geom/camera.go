package geom

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Camera is a pinhole camera placed in the world by Pose.
// Intrinsics are in pixels.
type Camera struct {
	Pose   Pose
	Fx, Fy float64
	Cx, Cy float64
	Width  float64
	Height float64
}

// NewCamera returns a camera with a symmetric frustum of the given
// horizontal field of view (degrees) for a width x height screen.
func NewCamera(pose Pose, width, height, hfovDeg float64) Camera {
	f := (width / 2) / tanDeg(hfovDeg/2)
	return Camera{
		Pose:   pose,
		Fx:     f,
		Fy:     f,
		Cx:     width / 2,
		Cy:     height / 2,
		Width:  width,
		Height: height,
	}
}

// Position returns the optical centre in world coordinates.
func (c Camera) Position() Vec { return c.Pose.Position }

// Forward returns the unit viewing direction in world coordinates.
func (c Camera) Forward() Vec { return c.Pose.Rotation.Rotate(AxisZ) }

// Right returns the unit screen-right direction in world coordinates.
func (c Camera) Right() Vec { return c.Pose.Rotation.Rotate(AxisX) }

// Up returns the unit screen-up direction in world coordinates.
func (c Camera) Up() Vec { return c.Pose.Rotation.Rotate(V(0, -1, 0)) }

// ToCamera expresses a world point in the camera frame.
func (c Camera) ToCamera(p Vec) Vec {
	return c.Pose.Rotation.Conj().Rotate(r3.Sub(p, c.Pose.Position))
}

// WorldToScreen projects p onto the screen. depth is the distance along
// the optical axis; ok is false for points at or behind the camera.
func (c Camera) WorldToScreen(p Vec) (pt Point2, depth float64, ok bool) {
	pc := c.ToCamera(p)
	if pc.Z <= 0 {
		return Point2{}, pc.Z, false
	}
	return Point2{X: c.Fx*pc.X/pc.Z + c.Cx, Y: c.Fy*pc.Y/pc.Z + c.Cy}, pc.Z, true
}

// ScreenPointToRay returns the world ray through screen point pt.
func (c Camera) ScreenPointToRay(pt Point2) Ray {
	d := V((pt.X-c.Cx)/c.Fx, (pt.Y-c.Cy)/c.Fy, 1)
	dir, _ := Normalize(c.Pose.Rotation.Rotate(d))
	return Ray{Origin: c.Pose.Position, Direction: dir}
}

// Ray is a half-line with a unit direction.
type Ray struct {
	Origin    Vec
	Direction Vec
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float64) Vec {
	return r3.Add(r.Origin, r3.Scale(t, r.Direction))
}
