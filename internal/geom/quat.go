package geom

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Quat is a rotation quaternion. Real is w; Imag, Jmag, Kmag are x, y, z.
type Quat quat.Number

// Identity is the zero rotation.
var Identity = Quat{Real: 1}

// QuatFromAxisAngle returns the rotation of angle radians about axis.
func QuatFromAxisAngle(axis Vec, angle float64) Quat {
	return Quat(r3.NewRotation(angle, axis))
}

// QuatFromArray builds a quaternion from the persisted (x, y, z, w) layout.
func QuatFromArray(a [4]float64) Quat {
	return Quat{Imag: a[0], Jmag: a[1], Kmag: a[2], Real: a[3]}
}

// Array returns q in the persisted (x, y, z, w) layout.
func (q Quat) Array() [4]float64 {
	return [4]float64{q.Imag, q.Jmag, q.Kmag, q.Real}
}

// Norm returns the quaternion magnitude.
func (q Quat) Norm() float64 {
	return quat.Abs(quat.Number(q))
}

// Normalize returns q scaled to unit length. A zero quaternion yields
// Identity.
func (q Quat) Normalize() Quat {
	n := q.Norm()
	if n < degenerateNorm || math.IsNaN(n) {
		return Identity
	}
	return Quat(quat.Scale(1/n, quat.Number(q)))
}

// Mul returns q*p: the rotation p followed by q.
func (q Quat) Mul(p Quat) Quat {
	return Quat(quat.Mul(quat.Number(q), quat.Number(p)))
}

// Conj returns the inverse rotation of a unit quaternion.
func (q Quat) Conj() Quat {
	return Quat(quat.Conj(quat.Number(q)))
}

// Rotate applies the unit quaternion q to v.
func (q Quat) Rotate(v Vec) Vec {
	return r3.Rotation(q).Rotate(v)
}

// ApproxEqualRotation reports whether q and p describe the same rotation
// within tol. q and -q are treated as equal.
func (q Quat) ApproxEqualRotation(p Quat, tol float64) bool {
	d := math.Abs(q.Real*p.Real + q.Imag*p.Imag + q.Jmag*p.Jmag + q.Kmag*p.Kmag)
	return 1-d <= tol
}

// rotationMatrix returns the row-major 3x3 matrix of a unit quaternion.
func (q Quat) rotationMatrix() [9]float64 {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return [9]float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}
}

// quatFromMatrix converts a row-major orthonormal 3x3 matrix.
func quatFromMatrix(m [9]float64) Quat {
	r00, r01, r02 := m[0], m[1], m[2]
	r10, r11, r12 := m[3], m[4], m[5]
	r20, r21, r22 := m[6], m[7], m[8]

	var q Quat
	trace := r00 + r11 + r22
	switch {
	case trace > 0:
		s := math.Sqrt(trace+1) * 2
		q = Quat{Real: 0.25 * s, Imag: (r21 - r12) / s, Jmag: (r02 - r20) / s, Kmag: (r10 - r01) / s}
	case r00 > r11 && r00 > r22:
		s := math.Sqrt(1+r00-r11-r22) * 2
		q = Quat{Real: (r21 - r12) / s, Imag: 0.25 * s, Jmag: (r01 + r10) / s, Kmag: (r02 + r20) / s}
	case r11 > r22:
		s := math.Sqrt(1+r11-r00-r22) * 2
		q = Quat{Real: (r02 - r20) / s, Imag: (r01 + r10) / s, Jmag: 0.25 * s, Kmag: (r12 + r21) / s}
	default:
		s := math.Sqrt(1+r22-r00-r11) * 2
		q = Quat{Real: (r10 - r01) / s, Imag: (r02 + r20) / s, Jmag: (r12 + r21) / s, Kmag: 0.25 * s}
	}
	return q.Normalize()
}

// LookRotation returns the rotation that maps the object's +Z axis onto
// forward and its +Y axis as close to up as possible. When up is
// parallel to forward an arbitrary perpendicular up is chosen.
func LookRotation(forward, up Vec) Quat {
	f, ok := Normalize(forward)
	if !ok {
		return Identity
	}
	x, ok := Normalize(r3.Cross(up, f))
	if !ok {
		x = AnyOrthogonal(f)
	}
	y := r3.Cross(f, x)

	// Columns are the object axes expressed in the parent frame.
	return quatFromMatrix([9]float64{
		x.X, y.X, f.X,
		x.Y, y.Y, f.Y,
		x.Z, y.Z, f.Z,
	})
}
