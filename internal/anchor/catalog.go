package anchor

import (
	"errors"
	"fmt"

	"github.com/banshee-data/arthylene/internal/geom"
)

// ErrUnknownType is returned for a produce type outside the catalog.
var ErrUnknownType = errors.New("unknown produce type")

// Produce describes one catalog entry.
type Produce struct {
	Name string `json:"name"`
	// HalfExtents is the half-size of the rendered model, in the
	// object's local frame.
	HalfExtents [3]float64 `json:"half_extents"`
}

// Catalog maps produce type ids to their descriptions. The id is the
// index into the catalog.
type Catalog []Produce

// DefaultCatalog is used when no catalog is configured.
var DefaultCatalog = Catalog{
	{Name: "apple", HalfExtents: [3]float64{0.04, 0.04, 0.04}},
	{Name: "banana", HalfExtents: [3]float64{0.1, 0.03, 0.03}},
	{Name: "carrot", HalfExtents: [3]float64{0.02, 0.1, 0.02}},
	{Name: "tomato", HalfExtents: [3]float64{0.035, 0.03, 0.035}},
}

// Lookup returns the entry for t.
func (c Catalog) Lookup(t ProduceType) (Produce, error) {
	if t < 0 || int(t) >= len(c) {
		return Produce{}, fmt.Errorf("%w: %d (catalog has %d entries)", ErrUnknownType, t, len(c))
	}
	return c[t], nil
}

// DisplayName returns the name of t, or "unknown".
func (c Catalog) DisplayName(t ProduceType) string {
	p, err := c.Lookup(t)
	if err != nil {
		return "unknown"
	}
	return p.Name
}

// Bounds returns the world-space axis-aligned bounds of a placed anchor.
// Unknown types get a 5cm cube.
func (c Catalog) Bounds(a Anchor) geom.Bounds {
	ext := geom.V(0.05, 0.05, 0.05)
	if p, err := c.Lookup(a.Type); err == nil {
		ext = geom.V(p.HalfExtents[0], p.HalfExtents[1], p.HalfExtents[2])
	}
	// Models sit on the surface, so the local box rests on y = 0.
	local := geom.NewBounds(geom.V(0, ext.Y, 0), ext)
	return local.Transformed(a.World.Matrix())
}
