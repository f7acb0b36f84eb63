package session

import (
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/banshee-data/arthylene/internal/anchor"
	"github.com/banshee-data/arthylene/internal/geom"
	"github.com/banshee-data/arthylene/internal/monitoring"
	"github.com/banshee-data/arthylene/internal/plane"
	"github.com/banshee-data/arthylene/internal/scene"
	"github.com/banshee-data/arthylene/internal/store"
	"github.com/banshee-data/arthylene/internal/timeutil"
	"github.com/banshee-data/arthylene/internal/tracking"
)

var (
	// ErrInvalidState is returned for an operation the current mode
	// does not allow.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrWorkerBusy is returned by SaveScan while a save is running.
	ErrWorkerBusy = errors.New("map save already in progress")
	// ErrNoMapSelected is returned by LoadMap with an empty map id.
	ErrNoMapSelected = errors.New("no map selected")
	// ErrMapAbsent is returned when the requested map does not exist.
	ErrMapAbsent = errors.New("map absent")
	// ErrNoSelection is returned by RemoveSelected with nothing selected.
	ErrNoSelection = errors.New("no anchor selected")
)

// User-facing messages.
const (
	MsgPermissionsNeeded = "Motion Tracking and Area Learning Permissions Needed"
	MsgSelectScan        = "Please select a scan"
	MsgMapAbsent         = "Scan not found"
	MsgSaveFailed        = "Saving the scan failed"
)

// Mode is the session's top-level state.
type Mode int

const (
	ModeIdle Mode = iota
	ModeScanning
	ModePlacing
	ModeViewing
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeScanning:
		return "scanning"
	case ModePlacing:
		return "placing"
	case ModeViewing:
		return "viewing"
	}
	return "unknown"
}

// Renderer owns the visual representation of anchors.
type Renderer interface {
	Spawn(label string, bounds geom.Bounds) scene.Handle
	Bounds(h scene.Handle) (geom.Bounds, bool)
	Move(h scene.Handle, bounds geom.Bounds) error
	Hide(h scene.Handle, onHidden func()) error
	Animating(h scene.Handle) bool
	Release(h scene.Handle) error
	Update()
}

// PlaneFinder locates the surface under a touch.
type PlaneFinder interface {
	Find(cam geom.Camera, touch geom.Point2, frame plane.DepthFrame) (plane.Result, error)
}

// Notifier shows short messages to the user.
type Notifier interface {
	Notify(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

// Notify calls f(msg).
func (f NotifierFunc) Notify(msg string) { f(msg) }

// Deps are the collaborators a Session drives.
type Deps struct {
	Engine   tracking.Engine
	Store    store.AnchorStore
	Renderer Renderer
	Finder   PlaneFinder
	Catalog  anchor.Catalog
	// Notifier defaults to logging.
	Notifier Notifier
	// Exit terminates the process; it defaults to os.Exit.
	Exit func(code int)
	// Clock defaults to the wall clock.
	Clock timeutil.Clock
}

// Options tune a Session.
type Options struct {
	// ScreenWidth and ScreenHeight are the touch surface size in pixels.
	ScreenWidth  float64
	ScreenHeight float64
	// HFOVDeg is the horizontal field of view of the device camera.
	HFOVDeg float64
	// TickInterval is the Run loop frame period.
	TickInterval time.Duration
	// DefaultMapName names scans saved without a name.
	DefaultMapName string
}

// DefaultOptions returns options for a 1080p portrait-agnostic screen.
func DefaultOptions() Options {
	return Options{
		ScreenWidth:    1920,
		ScreenHeight:   1080,
		HFOVDeg:        60,
		TickInterval:   time.Second / 60,
		DefaultMapName: "Unnamed",
	}
}

type placement struct {
	touch geom.Point2
	seq   uint64
}

type saveResult struct {
	m   tracking.MapSession
	err error
}

// Session is the placement state machine.
type Session struct {
	deps Deps
	opts Options

	mode        Mode
	initialized bool
	terminated  bool
	mapID       string
	learning    bool
	produceType anchor.ProduceType

	list     anchor.List
	handles  map[string]scene.Handle
	removing map[scene.Handle]struct{}
	selected string

	pending    *placement
	depthReady bool
	lastDepth  *plane.DepthFrame
	seq        uint64

	saveDone     chan saveResult
	resetPending bool
	saveProgress float64
	lastSaved    tracking.MapSession

	maps    []tracking.MapSession
	lastErr string

	cmds   chan func()
	status atomic.Pointer[Status]
}

// New returns an idle Session.
func New(deps Deps, opts Options) (*Session, error) {
	switch {
	case deps.Engine == nil:
		return nil, errors.New("session: engine is required")
	case deps.Store == nil:
		return nil, errors.New("session: store is required")
	case deps.Renderer == nil:
		return nil, errors.New("session: renderer is required")
	case deps.Finder == nil:
		return nil, errors.New("session: plane finder is required")
	}
	if len(deps.Catalog) == 0 {
		deps.Catalog = anchor.DefaultCatalog
	}
	if deps.Notifier == nil {
		deps.Notifier = NotifierFunc(func(msg string) { monitoring.Logf("notify: %s", msg) })
	}
	if deps.Exit == nil {
		deps.Exit = os.Exit
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}

	def := DefaultOptions()
	if opts.ScreenWidth <= 0 || opts.ScreenHeight <= 0 {
		opts.ScreenWidth, opts.ScreenHeight = def.ScreenWidth, def.ScreenHeight
	}
	if opts.HFOVDeg <= 0 || opts.HFOVDeg >= 180 {
		opts.HFOVDeg = def.HFOVDeg
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = def.TickInterval
	}
	if opts.DefaultMapName == "" {
		opts.DefaultMapName = def.DefaultMapName
	}

	s := &Session{
		deps:     deps,
		opts:     opts,
		handles:  make(map[string]scene.Handle),
		removing: make(map[scene.Handle]struct{}),
		cmds:     make(chan func()),
	}
	s.publish()
	return s, nil
}

// Mode returns the current mode.
func (s *Session) Mode() Mode { return s.mode }

// Initialized reports whether the device has relocalized against the
// loaded map.
func (s *Session) Initialized() bool { return s.initialized }

// MapID returns the active map id, if any.
func (s *Session) MapID() string { return s.mapID }

// Anchors returns the anchor list in placement order.
func (s *Session) Anchors() []anchor.Anchor { return s.list.All() }

// Maps returns the map list fetched when permissions were granted.
func (s *Session) Maps() []tracking.MapSession {
	return append([]tracking.MapSession(nil), s.maps...)
}

// SaveInFlight reports whether a map save worker is running.
func (s *Session) SaveInFlight() bool { return s.saveDone != nil }

// PlacementPending reports whether a placement is waiting for depth.
func (s *Session) PlacementPending() bool { return s.pending != nil }

// LastSavedMap returns the map produced by the most recent save.
func (s *Session) LastSavedMap() tracking.MapSession { return s.lastSaved }

// camera returns the device camera at its latest pose.
func (s *Session) camera() (geom.Camera, geom.Pose, float64) {
	pose, ts := s.deps.Engine.CameraPose()
	return geom.NewCamera(pose, s.opts.ScreenWidth, s.opts.ScreenHeight, s.opts.HFOVDeg), pose, ts
}

func (s *Session) fail(msg string) {
	s.lastErr = msg
	s.deps.Notifier.Notify(msg)
}
