package tracking

import (
	"fmt"

	"github.com/banshee-data/arthylene/internal/geom"
	"github.com/banshee-data/arthylene/internal/plane"
)

// Frame names a tracking coordinate frame.
type Frame int

const (
	// FrameStartOfService is the origin of the current tracking connection.
	FrameStartOfService Frame = iota
	// FrameAreaDescription is the origin of the loaded or learned map.
	FrameAreaDescription
	// FrameDevice is the device itself.
	FrameDevice
)

func (f Frame) String() string {
	switch f {
	case FrameStartOfService:
		return "start_of_service"
	case FrameAreaDescription:
		return "area_description"
	case FrameDevice:
		return "device"
	}
	return fmt.Sprintf("frame(%d)", int(f))
}

// PoseStatus is the engine's confidence in a pose.
type PoseStatus int

const (
	PoseUnknown PoseStatus = iota
	PoseInitializing
	PoseValid
	PoseInvalid
)

func (s PoseStatus) String() string {
	switch s {
	case PoseInitializing:
		return "initializing"
	case PoseValid:
		return "valid"
	case PoseInvalid:
		return "invalid"
	}
	return "unknown"
}

// DepthRate controls depth frame delivery.
type DepthRate int

const (
	DepthDisabled DepthRate = iota
	DepthMaximum
)

// Event is one notification from the engine. It is one of
// PermissionEvent, PoseEvent, DepthEvent, SaveProgressEvent or
// ConnectionEvent.
type Event interface {
	isEvent()
}

// PermissionEvent reports the outcome of RequestPermissions.
type PermissionEvent struct {
	Granted bool
}

// PoseEvent is a pose of Target relative to Base.
type PoseEvent struct {
	Base      Frame
	Target    Frame
	Status    PoseStatus
	Timestamp float64
	Pose      geom.Pose
}

// IsRelocalization reports whether e says the device has localized
// against a learned map.
func (e PoseEvent) IsRelocalization() bool {
	return e.Base == FrameAreaDescription && e.Target == FrameStartOfService && e.Status == PoseValid
}

// DepthEvent carries one depth frame.
type DepthEvent struct {
	Frame plane.DepthFrame
}

// SaveProgressEvent reports map save progress in [0, 1].
type SaveProgressEvent struct {
	Fraction float64
}

// ConnectionEvent reports the tracking service connecting or going away.
type ConnectionEvent struct {
	Connected bool
}

func (PermissionEvent) isEvent()   {}
func (PoseEvent) isEvent()         {}
func (DepthEvent) isEvent()        {}
func (SaveProgressEvent) isEvent() {}
func (ConnectionEvent) isEvent()   {}
