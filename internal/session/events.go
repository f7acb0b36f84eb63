package session

import (
	"errors"

	"github.com/banshee-data/arthylene/internal/anchor"
	"github.com/banshee-data/arthylene/internal/monitoring"
	"github.com/banshee-data/arthylene/internal/store"
	"github.com/banshee-data/arthylene/internal/tracking"
)

// HandleEvent applies one engine event. It must run on the owner
// goroutine.
func (s *Session) HandleEvent(ev tracking.Event) {
	if s.terminated {
		return
	}
	switch e := ev.(type) {
	case tracking.PermissionEvent:
		s.onPermission(e)
	case tracking.PoseEvent:
		s.onPose(e)
	case tracking.DepthEvent:
		frame := e.Frame
		s.lastDepth = &frame
		if s.pending != nil {
			s.depthReady = true
		}
	case tracking.SaveProgressEvent:
		if s.learning {
			s.saveProgress = e.Fraction
		}
	case tracking.ConnectionEvent:
		if !e.Connected && s.initialized {
			monitoring.Logf("session: tracking disconnected while initialized; discarding session")
			s.reset()
		}
	default:
		monitoring.Logf("session: unhandled event %T", ev)
	}
}

func (s *Session) onPermission(e tracking.PermissionEvent) {
	if !e.Granted {
		s.fail(MsgPermissionsNeeded)
		s.terminated = true
		s.deps.Exit(1)
		return
	}
	maps, err := s.deps.Engine.ListMaps()
	if err != nil {
		monitoring.Logf("session: list maps: %v", err)
		return
	}
	s.maps = maps
}

func (s *Session) onPose(e tracking.PoseEvent) {
	if !e.IsRelocalization() {
		return
	}
	switch s.mode {
	case ModePlacing, ModeViewing:
	default:
		// While learning this pair signals a loop closure on the map
		// being built; there is nothing placed to correct.
		return
	}

	if !s.initialized {
		s.initialized = true
		monitoring.Logf("session: relocalized against map %s", s.mapID)
		s.loadAnchors()
		return
	}
	s.reanchorAll()
}

// loadAnchors restores the saved list for the active map, re-expressing
// each anchor against the device pose at relocalization.
func (s *Session) loadAnchors() {
	records, err := s.deps.Store.LoadAnchors(s.mapID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		monitoring.Logf("session: no saved anchors for map %s", s.mapID)
		return
	case errors.Is(err, store.ErrCorrupt):
		monitoring.Logf("session: ignoring corrupt anchor list for map %s: %v", s.mapID, err)
		return
	case err != nil:
		monitoring.Logf("session: load anchors for map %s: %v", s.mapID, err)
		return
	}

	_, pose, ts := s.camera()
	for _, r := range records {
		a := anchor.Rebase(anchor.FromRecord(r), pose, ts)
		if _, err := s.deps.Catalog.Lookup(a.Type); err != nil {
			monitoring.Logf("session: skipping stored anchor: %v", err)
			continue
		}
		s.add(a)
	}
	monitoring.Logf("session: loaded %d anchors for map %s", s.list.Len(), s.mapID)
}

// reanchorAll applies a loop-closure correction: each anchor follows the
// engine's revised pose for the moment it was placed.
func (s *Session) reanchorAll() {
	moved := 0
	for _, a := range s.list.All() {
		if !a.Reanchorable() {
			continue
		}
		pose, err := s.deps.Engine.PoseAtTime(a.CreatedAt)
		if err != nil {
			continue
		}
		a = anchor.Reanchor(a, pose)
		s.list.Set(a)
		if h, ok := s.handles[a.ID]; ok {
			if err := s.deps.Renderer.Move(h, s.deps.Catalog.Bounds(a)); err != nil {
				monitoring.Logf("session: move %s: %v", a.ID, err)
			}
		}
		moved++
	}
	if moved > 0 {
		monitoring.Logf("session: loop closure re-anchored %d anchors", moved)
	}
}

func (s *Session) add(a anchor.Anchor) {
	s.list.Append(a)
	s.handles[a.ID] = s.deps.Renderer.Spawn(s.deps.Catalog.DisplayName(a.Type), s.deps.Catalog.Bounds(a))
}
