package session

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/arthylene/internal/anchor"
	"github.com/banshee-data/arthylene/internal/geom"
	"github.com/banshee-data/arthylene/internal/monitoring"
	"github.com/banshee-data/arthylene/internal/scene"
	"github.com/banshee-data/arthylene/internal/tracking"
)

// TouchResult says what a touch did.
type TouchResult int

const (
	// TouchIgnored means interaction is not enabled.
	TouchIgnored TouchResult = iota
	// TouchSwallowed means the touch landed on the remove affordance or
	// on an anchor that is disappearing.
	TouchSwallowed
	// TouchSelected means an anchor was selected.
	TouchSelected
	// TouchPlacementPending means a placement is waiting for depth.
	TouchPlacementPending
)

func (r TouchResult) String() string {
	switch r {
	case TouchIgnored:
		return "ignored"
	case TouchSwallowed:
		return "swallowed"
	case TouchSelected:
		return "selected"
	case TouchPlacementPending:
		return "placement_pending"
	}
	return "unknown"
}

// Start asks the engine for permissions. The answer arrives as a
// PermissionEvent.
func (s *Session) Start() {
	s.deps.Engine.RequestPermissions()
}

// StartScan begins learning a new map.
func (s *Session) StartScan() error {
	if s.terminated || s.mode != ModeIdle {
		return fmt.Errorf("%w: start scan in %s", ErrInvalidState, s.mode)
	}
	if err := s.deps.Engine.StartSession("", true); err != nil {
		return fmt.Errorf("start learning session: %w", err)
	}
	s.mode = ModeScanning
	s.learning = true
	s.saveProgress = 0
	monitoring.Logf("session: scanning")
	return nil
}

// SaveScan saves the map being learned under name on a background
// worker. It returns ErrWorkerBusy, changing nothing, while a previous
// save is still running. The session returns to Idle once Tick observes
// the worker finishing.
func (s *Session) SaveScan(name string) error {
	if s.mode != ModeScanning || !s.learning {
		return fmt.Errorf("%w: save scan in %s", ErrInvalidState, s.mode)
	}
	if s.saveDone != nil {
		monitoring.Logf("session: save requested while one is running; ignored")
		return ErrWorkerBusy
	}
	if name == "" {
		name = s.opts.DefaultMapName
	}

	done := make(chan saveResult, 1)
	s.saveDone = done
	eng := s.deps.Engine
	go func() {
		m, err := eng.SaveCurrentMapAsNew()
		if err == nil {
			if err = eng.RenameMap(m.ID, name); err == nil {
				m.Name = name
			}
		}
		done <- saveResult{m: m, err: err}
	}()
	monitoring.Logf("session: saving scan %q", name)
	return nil
}

// LoadMap starts tracking against a saved map, in Viewing mode when
// viewOnly is set and Placing mode otherwise. The session stays
// uninitialized until the first relocalization.
func (s *Session) LoadMap(id string, viewOnly bool) error {
	if s.terminated || s.mode != ModeIdle {
		return fmt.Errorf("%w: load map in %s", ErrInvalidState, s.mode)
	}
	if id == "" {
		s.fail(MsgSelectScan)
		return ErrNoMapSelected
	}

	maps, err := s.deps.Engine.ListMaps()
	if err != nil {
		return fmt.Errorf("list maps: %w", err)
	}
	found := false
	for _, m := range maps {
		if m.ID == id {
			found = true
			break
		}
	}
	if !found {
		s.fail(MsgMapAbsent)
		return fmt.Errorf("%w: %s", ErrMapAbsent, id)
	}

	if err := s.deps.Engine.StartSession(id, false); err != nil {
		if errors.Is(err, tracking.ErrMapNotFound) {
			s.fail(MsgMapAbsent)
			return fmt.Errorf("%w: %s", ErrMapAbsent, id)
		}
		return fmt.Errorf("start session on %s: %w", id, err)
	}

	s.mode = ModePlacing
	if viewOnly {
		s.mode = ModeViewing
	}
	s.mapID = id
	s.initialized = false
	s.learning = false
	s.list.Reset()
	monitoring.Logf("session: loaded map %s (%s), waiting for relocalization", id, s.mode)
	return nil
}

// LoadMapByName loads the first saved map called name.
func (s *Session) LoadMapByName(name string, viewOnly bool) error {
	if name == "" {
		s.fail(MsgSelectScan)
		return ErrNoMapSelected
	}
	m, err := tracking.FindMapByName(s.deps.Engine, name)
	if errors.Is(err, tracking.ErrMapNotFound) {
		s.fail(MsgMapAbsent)
		return fmt.Errorf("%w: %q", ErrMapAbsent, name)
	}
	if err != nil {
		return err
	}
	return s.LoadMap(m.ID, viewOnly)
}

// SetProduceType chooses the type of future placements.
func (s *Session) SetProduceType(t anchor.ProduceType) error {
	if _, err := s.deps.Catalog.Lookup(t); err != nil {
		return err
	}
	s.produceType = t
	return nil
}

// ProduceType returns the type of future placements.
func (s *Session) ProduceType() anchor.ProduceType { return s.produceType }

// Touch handles a tap at screen point pt.
func (s *Session) Touch(pt geom.Point2) TouchResult {
	if s.terminated || s.mode != ModePlacing || !s.initialized {
		return TouchIgnored
	}

	if rect, ok := s.RemoveAffordance(); ok && rect.Contains(pt) {
		return TouchSwallowed
	}

	cam, _, _ := s.camera()
	ray := cam.ScreenPointToRay(pt)

	nearest := math.Inf(1)
	var hitID string
	var hitHandle scene.Handle
	hit := false
	test := func(id string, h scene.Handle) {
		b, ok := s.deps.Renderer.Bounds(h)
		if !ok {
			return
		}
		if t, ok := ray.IntersectBounds(b); ok && t < nearest {
			nearest, hitID, hitHandle, hit = t, id, h, true
		}
	}
	for _, a := range s.list.All() {
		test(a.ID, s.handles[a.ID])
	}
	for h := range s.removing {
		test("", h)
	}

	if hit {
		if hitID == "" || s.deps.Renderer.Animating(hitHandle) {
			return TouchSwallowed
		}
		s.selected = hitID
		return TouchSelected
	}

	s.selected = ""
	s.seq++
	s.pending = &placement{touch: pt, seq: s.seq}
	s.depthReady = false
	s.deps.Engine.SetDepthRate(tracking.DepthMaximum)
	return TouchPlacementPending
}

// Selected returns the selected anchor.
func (s *Session) Selected() (anchor.Anchor, bool) {
	if s.selected == "" {
		return anchor.Anchor{}, false
	}
	return s.list.Get(s.selected)
}

// RemoveAffordance returns the screen rectangle of the remove control
// drawn over the selected anchor.
func (s *Session) RemoveAffordance() (geom.Rect, bool) {
	if s.selected == "" {
		return geom.Rect{}, false
	}
	b, ok := s.deps.Renderer.Bounds(s.handles[s.selected])
	if !ok {
		return geom.Rect{}, false
	}
	cam, _, _ := s.camera()
	return geom.WorldBoundsToScreen(cam, b)
}

// RemoveSelected removes the selected anchor from the list at once and
// releases its render handle when the hide animation finishes.
func (s *Session) RemoveSelected() error {
	if s.selected == "" {
		return ErrNoSelection
	}
	id := s.selected
	s.selected = ""
	if !s.list.Remove(id) {
		return fmt.Errorf("%w: %s", ErrNoSelection, id)
	}

	h, ok := s.handles[id]
	if !ok {
		return nil
	}
	delete(s.handles, id)
	s.removing[h] = struct{}{}
	if err := s.deps.Renderer.Hide(h, func() { s.release(h) }); err != nil {
		monitoring.Logf("session: hide %d: %v", h, err)
		s.release(h)
	}
	return nil
}

func (s *Session) release(h scene.Handle) {
	delete(s.removing, h)
	if err := s.deps.Renderer.Release(h); err != nil {
		monitoring.Logf("session: release %d: %v", h, err)
	}
}

// SavePlacement persists the anchor list under the active map and
// returns to Idle. On a store error the session is left as it was.
func (s *Session) SavePlacement() error {
	if s.mode != ModePlacing || !s.initialized {
		return fmt.Errorf("%w: save placement in %s (initialized=%v)", ErrInvalidState, s.mode, s.initialized)
	}
	records := s.list.Snapshot()
	if err := s.deps.Store.SaveAnchors(s.mapID, records); err != nil {
		s.lastErr = err.Error()
		return fmt.Errorf("save anchors for %s: %w", s.mapID, err)
	}
	monitoring.Logf("session: saved %d anchors for map %s", len(records), s.mapID)
	s.reset()
	return nil
}

// Cancel abandons the session and returns to Idle. While a map save is
// running the reset waits for it.
func (s *Session) Cancel() {
	s.reset()
}

// Pause handles the app being backgrounded. An initialized session
// cannot be trusted without live tracking, so it is discarded.
func (s *Session) Pause() {
	if s.initialized {
		monitoring.Logf("session: paused while initialized; discarding session")
		s.reset()
	}
}

// reset discards the whole session: anchors, handles, pending work and
// the tracking connection.
func (s *Session) reset() {
	if s.saveDone != nil {
		s.resetPending = true
		return
	}
	s.resetPending = false

	for _, h := range s.handles {
		s.release(h)
	}
	for h := range s.removing {
		s.release(h)
	}
	s.handles = make(map[string]scene.Handle)
	s.removing = make(map[scene.Handle]struct{})
	s.list.Reset()
	s.selected = ""
	s.pending = nil
	s.depthReady = false
	s.lastDepth = nil

	if s.mode != ModeIdle {
		s.deps.Engine.SetDepthRate(tracking.DepthDisabled)
		s.deps.Engine.Stop()
	}
	s.mode = ModeIdle
	s.initialized = false
	s.learning = false
	s.mapID = ""
	s.saveProgress = 0
}
