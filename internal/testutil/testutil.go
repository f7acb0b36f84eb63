// Package testutil provides shared test fixtures.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/arthylene/internal/anchor"
	"github.com/banshee-data/arthylene/internal/db"
	"github.com/banshee-data/arthylene/internal/geom"
)

// Wall returns a square grid of depth points on the plane z = distance,
// centred on the optical axis, with (2n+1)^2 points spaced step apart.
func Wall(distance, step float64, n int) []geom.Vec {
	pts := make([]geom.Vec, 0, (2*n+1)*(2*n+1))
	for i := -n; i <= n; i++ {
		for j := -n; j <= n; j++ {
			pts = append(pts, geom.V(float64(i)*step, float64(j)*step, distance))
		}
	}
	return pts
}

// Record returns an unrotated anchor record of type typ at (x, y, z).
func Record(typ int, x, y, z float64) anchor.Record {
	return anchor.Record{Type: typ, Position: [3]float64{x, y, z}, Orientation: [4]float64{0, 0, 0, 1}}
}

// NewTestDB opens a migrated database in a test temp dir and closes it
// on cleanup.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}
