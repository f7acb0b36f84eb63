package plane

import (
	"math"
	"math/rand/v2"

	"github.com/banshee-data/arthylene/internal/geom"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Plane is the set of points x with Normal·x + D = 0. Normal is unit
// length.
type Plane struct {
	Normal geom.Vec
	D      float64
}

// Distance returns the signed distance from x to the plane.
func (p Plane) Distance(x geom.Vec) float64 {
	return r3.Dot(p.Normal, x) + p.D
}

// Project returns the closest point on the plane to x.
func (p Plane) Project(x geom.Vec) geom.Vec {
	return r3.Sub(x, r3.Scale(p.Distance(x), p.Normal))
}

// Flip returns the same plane with the opposite orientation.
func (p Plane) Flip() Plane {
	return Plane{Normal: r3.Scale(-1, p.Normal), D: -p.D}
}

// IntersectRay returns where r crosses the plane. ok is false when the
// ray is near-parallel or the crossing lies behind the origin.
func (p Plane) IntersectRay(r geom.Ray) (geom.Vec, bool) {
	denom := r3.Dot(p.Normal, r.Direction)
	if math.Abs(denom) < 1e-6 {
		return geom.Vec{}, false
	}
	t := -p.Distance(r.Origin) / denom
	if t <= 0 {
		return geom.Vec{}, false
	}
	return r.At(t), true
}

func planeFromPoints(a, b, c geom.Vec) (Plane, bool) {
	n, ok := geom.Normalize(r3.Cross(r3.Sub(b, a), r3.Sub(c, a)))
	if !ok {
		return Plane{}, false
	}
	return Plane{Normal: n, D: -r3.Dot(n, a)}, true
}

func centroid(pts []geom.Vec) geom.Vec {
	var c geom.Vec
	for _, p := range pts {
		c = r3.Add(c, p)
	}
	return r3.Scale(1/float64(len(pts)), c)
}

// fitLeastSquares fits a plane through the centroid of pts whose normal
// is the eigenvector of the smallest covariance eigenvalue.
func fitLeastSquares(pts []geom.Vec) (Plane, bool) {
	if len(pts) < 3 {
		return Plane{}, false
	}
	c := centroid(pts)
	var xx, xy, xz, yy, yz, zz float64
	for _, p := range pts {
		d := r3.Sub(p, c)
		xx += d.X * d.X
		xy += d.X * d.Y
		xz += d.X * d.Z
		yy += d.Y * d.Y
		yz += d.Y * d.Z
		zz += d.Z * d.Z
	}
	cov := mat.NewSymDense(3, []float64{
		xx, xy, xz,
		xy, yy, yz,
		xz, yz, zz,
	})

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return Plane{}, false
	}
	// Values are in ascending order; column 0 is the plane normal.
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	n, ok := geom.Normalize(geom.V(vecs.At(0, 0), vecs.At(1, 0), vecs.At(2, 0)))
	if !ok {
		return Plane{}, false
	}
	return Plane{Normal: n, D: -r3.Dot(n, c)}, true
}

// fitRANSAC finds the plane supported by the most points within
// threshold, then refits it to those inliers by least squares.
func fitRANSAC(pts []geom.Vec, iterations int, threshold float64, rng *rand.Rand) (Plane, []geom.Vec, bool) {
	n := len(pts)
	if n < 3 {
		return Plane{}, nil, false
	}

	var best Plane
	bestCount := 0
	for iter := 0; iter < iterations; iter++ {
		i := rng.IntN(n)
		j := rng.IntN(n - 1)
		if j >= i {
			j++
		}
		k := rng.IntN(n)
		if k == i || k == j {
			continue
		}

		candidate, ok := planeFromPoints(pts[i], pts[j], pts[k])
		if !ok {
			continue
		}

		count := 0
		for _, p := range pts {
			if math.Abs(candidate.Distance(p)) <= threshold {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = candidate, count
			if count == n {
				break
			}
		}
	}

	if bestCount < 3 {
		return Plane{}, nil, false
	}

	inliers := make([]geom.Vec, 0, bestCount)
	for _, p := range pts {
		if math.Abs(best.Distance(p)) <= threshold {
			inliers = append(inliers, p)
		}
	}

	refit, ok := fitLeastSquares(inliers)
	if !ok {
		return best, inliers, true
	}
	return refit, inliers, true
}
