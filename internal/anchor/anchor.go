package anchor

import (
	"fmt"

	"github.com/banshee-data/arthylene/internal/geom"
	"github.com/google/uuid"
)

// ProduceType is a catalog category id.
type ProduceType int

// Anchor is one placed produce marker.
type Anchor struct {
	ID   string      `json:"id"`
	Type ProduceType `json:"type"`
	// DeviceRelative is the pose relative to the device at placement.
	DeviceRelative geom.Transform `json:"device_relative"`
	// World is the absolute pose in the map frame.
	World geom.Pose `json:"world"`
	// CreatedAt is the tracking timestamp of the device pose used for
	// DeviceRelative. It only has meaning within one tracking connection.
	CreatedAt float64 `json:"created_at"`
}

// NewAnchor creates an anchor at world for a device at devicePose,
// observed at tracking time ts.
func NewAnchor(t ProduceType, devicePose, world geom.Pose, ts float64) Anchor {
	return Anchor{
		ID:             uuid.New().String(),
		Type:           t,
		DeviceRelative: Encode(devicePose.Matrix(), world.Matrix()),
		World:          world,
		CreatedAt:      ts,
	}
}

// FromRecord rebuilds an anchor from its persisted form. The result has
// no device-relative pose; it cannot be re-anchored until it is placed
// again in this connection.
func FromRecord(r Record) Anchor {
	return Anchor{
		ID:             uuid.New().String(),
		Type:           ProduceType(r.Type),
		DeviceRelative: geom.IdentityTransform,
		World: geom.Pose{
			Position: geom.V(r.Position[0], r.Position[1], r.Position[2]),
			Rotation: geom.QuatFromArray(r.Orientation).Normalize(),
		},
		CreatedAt: -1,
	}
}

// Reanchorable reports whether a carries a device-relative pose from
// the current tracking connection.
func (a Anchor) Reanchorable() bool {
	return a.CreatedAt >= 0
}

// Reanchor recomputes the world pose of a from its device-relative pose
// and a revised device pose for the same timestamp.
func Reanchor(a Anchor, device geom.Pose) Anchor {
	a.World = geom.PoseFromTransform(Apply(device.Matrix(), a.DeviceRelative))
	return a
}

// Rebase re-expresses a relative to a device pose observed at tracking
// time ts, so later loop closures can move it with the device.
func Rebase(a Anchor, device geom.Pose, ts float64) Anchor {
	a.DeviceRelative = Encode(device.Matrix(), a.World.Matrix())
	a.CreatedAt = ts
	return a
}

// Record returns the persisted form of a.
func (a Anchor) Record() Record {
	p := a.World.Position
	return Record{
		Type:        int(a.Type),
		Position:    [3]float64{p.X, p.Y, p.Z},
		Orientation: a.World.Rotation.Normalize().Array(),
	}
}

func (a Anchor) String() string {
	p := a.World.Position
	return fmt.Sprintf("anchor %s type=%d at (%.3f, %.3f, %.3f)", a.ID, a.Type, p.X, p.Y, p.Z)
}
