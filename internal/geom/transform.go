package geom

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// MatrixValidationTolerance is the tolerance for checking rotation
// matrix validity.
const MatrixValidationTolerance = 0.01

// Transform is a 4x4 homogeneous transform, row-major:
// m00,m01,m02,m03, m10,...
type Transform [16]float64

// IdentityTransform is the transform that changes nothing.
var IdentityTransform = Transform{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// TRS builds a rigid transform from a translation and a unit rotation.
func TRS(pos Vec, rot Quat) Transform {
	r := rot.Normalize().rotationMatrix()
	return Transform{
		r[0], r[1], r[2], pos.X,
		r[3], r[4], r[5], pos.Y,
		r[6], r[7], r[8], pos.Z,
		0, 0, 0, 1,
	}
}

// Mul returns t*o, applying o first.
func (t Transform) Mul(o Transform) Transform {
	var out Transform
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var s float64
			for k := 0; k < 4; k++ {
				s += t[i*4+k] * o[k*4+j]
			}
			out[i*4+j] = s
		}
	}
	return out
}

// InverseRigid inverts a rigid transform as [Rᵀ | -Rᵀt]. It avoids a
// general inversion, which loses orthonormality to rounding.
func (t Transform) InverseRigid() Transform {
	var out Transform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i*4+j] = t[j*4+i]
		}
	}
	tx, ty, tz := t[3], t[7], t[11]
	out[3] = -(out[0]*tx + out[1]*ty + out[2]*tz)
	out[7] = -(out[4]*tx + out[5]*ty + out[6]*tz)
	out[11] = -(out[8]*tx + out[9]*ty + out[10]*tz)
	out[15] = 1
	return out
}

// Inverse inverts an arbitrary invertible transform with an LU
// factorisation. Prefer InverseRigid for poses.
func (t Transform) Inverse() (Transform, error) {
	m := mat.NewDense(4, 4, t[:])
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return Transform{}, err
	}
	var out Transform
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i*4+j] = inv.At(i, j)
		}
	}
	return out, nil
}

// ApplyPoint applies t to point p.
func (t Transform) ApplyPoint(p Vec) Vec {
	return Vec{
		X: t[0]*p.X + t[1]*p.Y + t[2]*p.Z + t[3],
		Y: t[4]*p.X + t[5]*p.Y + t[6]*p.Z + t[7],
		Z: t[8]*p.X + t[9]*p.Y + t[10]*p.Z + t[11],
	}
}

// ApplyVector applies the rotation part of t to direction v.
func (t Transform) ApplyVector(v Vec) Vec {
	return Vec{
		X: t[0]*v.X + t[1]*v.Y + t[2]*v.Z,
		Y: t[4]*v.X + t[5]*v.Y + t[6]*v.Z,
		Z: t[8]*v.X + t[9]*v.Y + t[10]*v.Z,
	}
}

// Translation returns the translation column.
func (t Transform) Translation() Vec {
	return Vec{X: t[3], Y: t[7], Z: t[11]}
}

// Rotation returns the rotation part as a quaternion.
func (t Transform) Rotation() Quat {
	return quatFromMatrix([9]float64{
		t[0], t[1], t[2],
		t[4], t[5], t[6],
		t[8], t[9], t[10],
	})
}

// ApproxEqual reports whether every element differs by at most tol.
func (t Transform) ApproxEqual(o Transform, tol float64) bool {
	for i := range t {
		if math.Abs(t[i]-o[i]) > tol {
			return false
		}
	}
	return true
}

// IsValidRigid checks that t is a proper rigid transform:
// an orthonormal rotation block with det ≈ 1 and a last row of [0 0 0 1].
func (t Transform) IsValidRigid() bool {
	r00, r01, r02 := t[0], t[1], t[2]
	r10, r11, r12 := t[4], t[5], t[6]
	r20, r21, r22 := t[8], t[9], t[10]

	det := r00*(r11*r22-r12*r21) - r01*(r10*r22-r12*r20) + r02*(r10*r21-r11*r20)
	if math.Abs(det-1.0) > MatrixValidationTolerance {
		return false
	}

	// Columns must be unit length and mutually orthogonal.
	cols := [3]Vec{{X: r00, Y: r10, Z: r20}, {X: r01, Y: r11, Z: r21}, {X: r02, Y: r12, Z: r22}}
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			d := cols[i].X*cols[j].X + cols[i].Y*cols[j].Y + cols[i].Z*cols[j].Z
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(d-want) > MatrixValidationTolerance {
				return false
			}
		}
	}

	if t[12] != 0 || t[13] != 0 || t[14] != 0 || math.Abs(t[15]-1.0) > 0.001 {
		return false
	}
	return true
}

// Pose is a position plus orientation.
type Pose struct {
	Position Vec  `json:"position"`
	Rotation Quat `json:"rotation"`
}

// Matrix returns the pose as a rigid transform.
func (p Pose) Matrix() Transform {
	return TRS(p.Position, p.Rotation)
}

// PoseFromTransform decomposes a rigid transform.
func PoseFromTransform(t Transform) Pose {
	return Pose{Position: t.Translation(), Rotation: t.Rotation()}
}
