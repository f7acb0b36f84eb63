package tracking

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/arthylene/internal/geom"
	"github.com/banshee-data/arthylene/internal/monitoring"
	"github.com/banshee-data/arthylene/internal/plane"
	"github.com/banshee-data/arthylene/internal/timeutil"
	"github.com/google/uuid"
)

// SimOptions configures a SimEngine.
type SimOptions struct {
	// SaveLatency is how long SaveCurrentMapAsNew takes, on the engine clock.
	SaveLatency time.Duration
	// SaveSteps is how many progress events a save emits.
	SaveSteps int
	// FrameInterval is the tracking time between device poses, in seconds.
	FrameInterval float64
	// EventBuffer is the capacity of the event channel.
	EventBuffer int
	// DenyPermissions makes RequestPermissions report a refusal.
	DenyPermissions bool
}

// DefaultSimOptions returns options for a responsive simulated device.
func DefaultSimOptions() SimOptions {
	return SimOptions{
		SaveSteps:     4,
		FrameInterval: 1.0 / 60,
		EventBuffer:   256,
	}
}

type timedPose struct {
	ts   float64
	pose geom.Pose
}

// SimEngine is a scripted tracking engine. The owner moves the device
// with SetDevicePose and injects relocalizations and depth frames; the
// engine turns them into events the way a real device would.
type SimEngine struct {
	reg   Registry
	clock timeutil.Clock
	opts  SimOptions
	ev    chan Event

	mu        sync.Mutex
	connected bool
	mapID     string
	learning  bool
	depth     DepthRate
	ts        float64
	history   []timedPose
	saveGate  chan struct{}
	dropped   int
}

// NewSimEngine returns a SimEngine storing maps in reg.
func NewSimEngine(reg Registry, clock timeutil.Clock, opts SimOptions) *SimEngine {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultSimOptions().EventBuffer
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultSimOptions().FrameInterval
	}
	return &SimEngine{
		reg:     reg,
		clock:   clock,
		opts:    opts,
		ev:      make(chan Event, opts.EventBuffer),
		history: []timedPose{{ts: 0, pose: geom.Pose{Rotation: geom.Identity}}},
	}
}

// emit queues ev, dropping it when the consumer has fallen behind.
func (e *SimEngine) emit(ev Event) {
	select {
	case e.ev <- ev:
	default:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
		monitoring.Logf("tracking: event queue full, dropped %T", ev)
	}
}

// Events returns the event stream.
func (e *SimEngine) Events() <-chan Event { return e.ev }

// Dropped returns how many events were discarded on a full queue.
func (e *SimEngine) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// RequestPermissions answers with a PermissionEvent.
func (e *SimEngine) RequestPermissions() {
	e.emit(PermissionEvent{Granted: !e.opts.DenyPermissions})
}

// StartSession connects tracking, optionally against a saved map.
func (e *SimEngine) StartSession(mapID string, learning bool) error {
	if mapID != "" {
		if _, err := e.reg.Get(mapID); err != nil {
			return err
		}
	}
	e.mu.Lock()
	e.connected = true
	e.mapID = mapID
	e.learning = learning
	e.depth = DepthDisabled
	e.mu.Unlock()
	e.emit(ConnectionEvent{Connected: true})
	return nil
}

// Stop disconnects tracking.
func (e *SimEngine) Stop() {
	e.mu.Lock()
	e.connected = false
	e.mapID = ""
	e.learning = false
	e.depth = DepthDisabled
	e.mu.Unlock()
}

// SetDepthRate enables or disables depth delivery.
func (e *SimEngine) SetDepthRate(rate DepthRate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.depth = rate
}

// DepthRate returns the current depth delivery rate.
func (e *SimEngine) DepthRate() DepthRate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.depth
}

// ActiveMap returns the map tracking was started against.
func (e *SimEngine) ActiveMap() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mapID
}

// Connected reports whether a tracking session is running.
func (e *SimEngine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// BlockSaves makes subsequent saves wait until ReleaseSaves.
func (e *SimEngine) BlockSaves() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.saveGate == nil {
		e.saveGate = make(chan struct{})
	}
}

// ReleaseSaves lets blocked saves complete.
func (e *SimEngine) ReleaseSaves() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.saveGate != nil {
		close(e.saveGate)
		e.saveGate = nil
	}
}

// SaveCurrentMapAsNew saves the map being learned under a new id with
// an empty name, emitting progress along the way.
func (e *SimEngine) SaveCurrentMapAsNew() (MapSession, error) {
	e.mu.Lock()
	connected, learning, gate := e.connected, e.learning, e.saveGate
	e.mu.Unlock()
	if !connected {
		return MapSession{}, ErrNotConnected
	}
	if !learning {
		return MapSession{}, ErrNotLearning
	}

	steps := e.opts.SaveSteps
	if steps < 1 {
		steps = 1
	}
	for i := 1; i <= steps; i++ {
		if e.opts.SaveLatency > 0 {
			<-e.clock.After(e.opts.SaveLatency / time.Duration(steps))
		}
		if i == steps && gate != nil {
			<-gate
		}
		e.emit(SaveProgressEvent{Fraction: float64(i) / float64(steps)})
	}

	m := MapSession{ID: uuid.New().String(), CreatedAt: e.clock.Now().UTC(), Learning: true}
	if err := e.reg.Create(m); err != nil {
		return MapSession{}, fmt.Errorf("register map: %w", err)
	}
	return m, nil
}

// RenameMap sets the display name of a saved map.
func (e *SimEngine) RenameMap(id, name string) error {
	return e.reg.Rename(id, name)
}

// DeleteMap removes a saved map other than the active one.
func (e *SimEngine) DeleteMap(id string) error {
	e.mu.Lock()
	active := e.connected && e.mapID == id
	e.mu.Unlock()
	if active {
		return fmt.Errorf("%w: %s", ErrMapInUse, id)
	}
	return e.reg.Delete(id)
}

// ListMaps returns the saved maps, oldest first.
func (e *SimEngine) ListMaps() ([]MapSession, error) {
	return e.reg.List()
}

// SetDevicePose advances tracking time by one frame and moves the
// device to pose.
func (e *SimEngine) SetDevicePose(pose geom.Pose) float64 {
	e.mu.Lock()
	e.ts += e.opts.FrameInterval
	ts := e.ts
	e.history = append(e.history, timedPose{ts: ts, pose: pose})
	connected := e.connected
	e.mu.Unlock()
	if connected {
		e.emit(PoseEvent{Base: FrameStartOfService, Target: FrameDevice, Status: PoseValid, Timestamp: ts, Pose: pose})
	}
	return ts
}

// CameraPose returns the latest device pose and its timestamp.
func (e *SimEngine) CameraPose() (geom.Pose, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	last := e.history[len(e.history)-1]
	return last.pose, last.ts
}

// PoseAtTime returns the device pose recorded at exactly ts.
func (e *SimEngine) PoseAtTime(ts float64) (geom.Pose, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := sort.Search(len(e.history), func(i int) bool { return e.history[i].ts >= ts })
	if i == len(e.history) || e.history[i].ts != ts {
		return geom.Pose{}, fmt.Errorf("%w: %g", ErrNoPose, ts)
	}
	return e.history[i].pose, nil
}

// Relocalize reports that the device has localized against the map.
// It is ignored while disconnected.
func (e *SimEngine) Relocalize() bool {
	e.mu.Lock()
	connected, ts := e.connected, e.ts
	e.mu.Unlock()
	if !connected {
		return false
	}
	e.emit(PoseEvent{Base: FrameAreaDescription, Target: FrameStartOfService, Status: PoseValid, Timestamp: ts, Pose: geom.Pose{Rotation: geom.Identity}})
	return true
}

// CorrectPose revises the recorded device pose at ts, as a loop closure
// would, and announces it with a relocalization event.
func (e *SimEngine) CorrectPose(ts float64, pose geom.Pose) error {
	e.mu.Lock()
	i := sort.Search(len(e.history), func(i int) bool { return e.history[i].ts >= ts })
	if i == len(e.history) || e.history[i].ts != ts {
		e.mu.Unlock()
		return fmt.Errorf("%w: %g", ErrNoPose, ts)
	}
	e.history[i].pose = pose
	e.mu.Unlock()
	e.Relocalize()
	return nil
}

// EmitDepth delivers a depth frame of sensor-frame points captured at
// the current device pose. Frames are only produced while connected
// with depth enabled.
func (e *SimEngine) EmitDepth(points []geom.Vec) bool {
	e.mu.Lock()
	ok := e.connected && e.depth != DepthDisabled
	last := e.history[len(e.history)-1]
	e.mu.Unlock()
	if !ok {
		return false
	}
	e.emit(DepthEvent{Frame: plane.DepthFrame{
		Timestamp:  last.ts,
		SensorPose: last.pose.Matrix(),
		Points:     append([]geom.Vec(nil), points...),
	}})
	return true
}

// Disconnect simulates the tracking service going away.
func (e *SimEngine) Disconnect() {
	e.Stop()
	e.emit(ConnectionEvent{Connected: false})
}
