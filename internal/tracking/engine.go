package tracking

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/arthylene/internal/geom"
)

var (
	// ErrMapNotFound is returned for an unknown map id or name.
	ErrMapNotFound = errors.New("map not found")
	// ErrNotConnected is returned when no tracking session is running.
	ErrNotConnected = errors.New("tracking not connected")
	// ErrNotLearning is returned when saving without area learning.
	ErrNotLearning = errors.New("area learning not enabled")
	// ErrNoPose is returned when the engine has no pose for a timestamp.
	ErrNoPose = errors.New("no pose at timestamp")
	// ErrMapInUse is returned when deleting the active map.
	ErrMapInUse = errors.New("map in use")
)

// MapSession describes one learned map.
type MapSession struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Learning  bool      `json:"learning"`
}

// Engine is the tracking engine as seen by the placement session.
type Engine interface {
	// RequestPermissions asks for motion tracking and area learning
	// permissions. The answer arrives as a PermissionEvent.
	RequestPermissions()
	// StartSession connects tracking. An empty mapID starts without a
	// map; learning enables area learning.
	StartSession(mapID string, learning bool) error
	// Stop disconnects tracking.
	Stop()
	// SetDepthRate enables or disables depth frame delivery.
	SetDepthRate(rate DepthRate)
	// SaveCurrentMapAsNew saves the map being learned. It blocks until
	// the save completes and may be called from any goroutine.
	SaveCurrentMapAsNew() (MapSession, error)
	// RenameMap sets the display name of a saved map.
	RenameMap(id, name string) error
	// DeleteMap removes a saved map.
	DeleteMap(id string) error
	// ListMaps returns the saved maps.
	ListMaps() ([]MapSession, error)
	// PoseAtTime returns the device pose at a tracking timestamp, as
	// currently refined by the engine.
	PoseAtTime(ts float64) (geom.Pose, error)
	// CameraPose returns the latest device pose and its timestamp.
	CameraPose() (geom.Pose, float64)
	// Events returns the engine's notification stream.
	Events() <-chan Event
}

// FindMapByName returns the first saved map called name.
func FindMapByName(e Engine, name string) (MapSession, error) {
	maps, err := e.ListMaps()
	if err != nil {
		return MapSession{}, fmt.Errorf("list maps: %w", err)
	}
	for _, m := range maps {
		if m.Name == name {
			return m, nil
		}
	}
	return MapSession{}, fmt.Errorf("%w: name %q", ErrMapNotFound, name)
}
