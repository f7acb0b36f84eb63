package plane

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/banshee-data/arthylene/internal/geom"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrNotFound is returned when no surface can be fitted under the touch
// point: the sensor missed, the points were out of range, or they did
// not agree on a plane.
var ErrNotFound = errors.New("plane: no surface found")

// DepthFrame is one depth-sensor sample. Points are in the sensor frame;
// SensorPose maps them into the world.
type DepthFrame struct {
	Timestamp  float64
	SensorPose geom.Transform
	Points     []geom.Vec
}

// Config tunes the plane search.
type Config struct {
	// SearchRadiusPx is the screen distance from the touch within which
	// depth points are considered.
	SearchRadiusPx float64
	// MinDepthM and MaxDepthM bound the usable distance along the
	// optical axis.
	MinDepthM float64
	MaxDepthM float64
	// MinPoints is the fewest candidate points worth fitting.
	MinPoints int
	// Iterations is the RANSAC sample count.
	Iterations int
	// InlierThresholdM is the max point-to-plane distance of an inlier.
	InlierThresholdM float64
	// MinInlierRatio rejects fits supported by too few of the candidates.
	MinInlierRatio float64
	// FacingMaxAngleDeg switches FacingForward to its fallback.
	FacingMaxAngleDeg float64
	// Seed makes the RANSAC sampling reproducible.
	Seed uint64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SearchRadiusPx:    40,
		MinDepthM:         0.3,
		MaxDepthM:         4.0,
		MinPoints:         8,
		Iterations:        64,
		InlierThresholdM:  0.02,
		MinInlierRatio:    0.5,
		FacingMaxAngleDeg: DefaultFacingMaxAngleDeg,
		Seed:              0x5eed,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	switch {
	case c.SearchRadiusPx <= 0:
		return fmt.Errorf("search radius must be positive, got %g", c.SearchRadiusPx)
	case c.MinDepthM < 0 || c.MaxDepthM <= c.MinDepthM:
		return fmt.Errorf("invalid depth range [%g, %g]", c.MinDepthM, c.MaxDepthM)
	case c.MinPoints < 3:
		return fmt.Errorf("min points must be at least 3, got %d", c.MinPoints)
	case c.Iterations < 1:
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	case c.InlierThresholdM <= 0:
		return fmt.Errorf("inlier threshold must be positive, got %g", c.InlierThresholdM)
	case c.MinInlierRatio < 0 || c.MinInlierRatio > 1:
		return fmt.Errorf("min inlier ratio must be in [0, 1], got %g", c.MinInlierRatio)
	case c.FacingMaxAngleDeg <= 0 || c.FacingMaxAngleDeg > 180:
		return fmt.Errorf("facing angle must be in (0, 180], got %g", c.FacingMaxAngleDeg)
	}
	return nil
}

// Result is a placement on a detected surface.
type Result struct {
	// Point is where the touch ray meets the surface.
	Point geom.Vec
	// Normal is the unit surface normal, facing the camera.
	Normal geom.Vec
	// Forward is the unit facing direction from FacingForward.
	Forward geom.Vec
	// Rotation orients +Y along Normal and +Z along Forward.
	Rotation geom.Quat
	// Inliers is the number of depth points supporting the plane.
	Inliers int
}

// Pose returns the placement pose in world coordinates.
func (r Result) Pose() geom.Pose {
	return geom.Pose{Position: r.Point, Rotation: r.Rotation}
}

// Finder locates surfaces under touch points.
type Finder struct {
	cfg Config
}

// NewFinder returns a Finder using cfg.
func NewFinder(cfg Config) (*Finder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("plane finder config: %w", err)
	}
	return &Finder{cfg: cfg}, nil
}

// Config returns the finder configuration.
func (f *Finder) Config() Config { return f.cfg }

// Find fits a plane to the depth points near touch and returns the
// placement where the touch ray meets it. It has no side effects; the
// same inputs always yield the same result.
func (f *Finder) Find(cam geom.Camera, touch geom.Point2, frame DepthFrame) (Result, error) {
	candidates := f.candidates(cam, touch, frame)
	if len(candidates) < f.cfg.MinPoints {
		return Result{}, fmt.Errorf("%w: %d points near touch, need %d", ErrNotFound, len(candidates), f.cfg.MinPoints)
	}

	rng := rand.New(rand.NewPCG(f.cfg.Seed, uint64(len(candidates))))
	pl, inliers, ok := fitRANSAC(candidates, f.cfg.Iterations, f.cfg.InlierThresholdM, rng)
	if !ok {
		return Result{}, fmt.Errorf("%w: points do not define a plane", ErrNotFound)
	}
	if ratio := float64(len(inliers)) / float64(len(candidates)); ratio < f.cfg.MinInlierRatio {
		return Result{}, fmt.Errorf("%w: inlier ratio %.2f below %.2f", ErrNotFound, ratio, f.cfg.MinInlierRatio)
	}

	ray := cam.ScreenPointToRay(touch)
	center, ok := pl.IntersectRay(ray)
	if !ok {
		center = pl.Project(centroid(inliers))
	}

	// Orient the plane towards the viewer.
	if r3.Dot(pl.Normal, r3.Sub(cam.Position(), center)) < 0 {
		pl = pl.Flip()
	}

	forward := FacingForward(pl.Normal, cam.Forward(), cam.Right(), cam.Up(), f.cfg.FacingMaxAngleDeg)
	return Result{
		Point:    center,
		Normal:   pl.Normal,
		Forward:  forward,
		Rotation: geom.LookRotation(forward, pl.Normal),
		Inliers:  len(inliers),
	}, nil
}

func (f *Finder) candidates(cam geom.Camera, touch geom.Point2, frame DepthFrame) []geom.Vec {
	radius2 := f.cfg.SearchRadiusPx * f.cfg.SearchRadiusPx
	var out []geom.Vec
	for _, p := range frame.Points {
		w := frame.SensorPose.ApplyPoint(p)
		if !geom.IsFiniteVec(w) {
			continue
		}
		pt, depth, ok := cam.WorldToScreen(w)
		if !ok || depth < f.cfg.MinDepthM || depth > f.cfg.MaxDepthM {
			continue
		}
		if r2.Norm2(r2.Sub(pt, touch)) > radius2 {
			continue
		}
		out = append(out, w)
	}
	return out
}
