package anchor

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRecord is returned by Record.Validate.
var ErrInvalidRecord = errors.New("invalid anchor record")

// orientationTolerance is how far from unit length a stored quaternion
// may drift before it is rejected.
const orientationTolerance = 1e-3

// Record is the persisted form of an anchor. Orientation is a unit
// quaternion in (x, y, z, w) order. It carries no timestamp: tracking
// timestamps do not survive into the next connection.
type Record struct {
	Type        int        `json:"type"`
	Position    [3]float64 `json:"position"`
	Orientation [4]float64 `json:"orientation"`
}

// Validate checks that the record is finite and its orientation is a
// unit quaternion.
func (r Record) Validate() error {
	for _, v := range r.Position {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite position %v", ErrInvalidRecord, r.Position)
		}
	}
	var n float64
	for _, v := range r.Orientation {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite orientation %v", ErrInvalidRecord, r.Orientation)
		}
		n += v * v
	}
	if math.Abs(math.Sqrt(n)-1) > orientationTolerance {
		return fmt.Errorf("%w: orientation %v is not a unit quaternion", ErrInvalidRecord, r.Orientation)
	}
	if r.Type < 0 {
		return fmt.Errorf("%w: negative type %d", ErrInvalidRecord, r.Type)
	}
	return nil
}
