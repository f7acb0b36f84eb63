package session

import (
	"context"

	"github.com/banshee-data/arthylene/internal/anchor"
	"github.com/banshee-data/arthylene/internal/monitoring"
	"github.com/banshee-data/arthylene/internal/tracking"
)

// Tick runs one frame of owner work: poll the save worker, resolve a
// placement whose depth frame has arrived, step the renderer and
// publish status.
func (s *Session) Tick() {
	s.pollWorker()
	s.resolvePlacement()
	s.deps.Renderer.Update()
	s.publish()
}

func (s *Session) pollWorker() {
	if s.saveDone == nil {
		return
	}
	var res saveResult
	select {
	case res = <-s.saveDone:
	default:
		return
	}
	s.saveDone = nil

	if res.err != nil {
		monitoring.Logf("session: map save failed: %v", res.err)
		s.fail(MsgSaveFailed)
	} else {
		s.lastSaved = res.m
		monitoring.Logf("session: saved map %s as %q", res.m.ID, res.m.Name)
	}
	// A finished save always ends the scan.
	s.reset()
}

func (s *Session) resolvePlacement() {
	if s.pending == nil || !s.depthReady {
		return
	}
	p := s.pending
	s.pending = nil
	s.depthReady = false
	s.deps.Engine.SetDepthRate(tracking.DepthDisabled)

	if s.mode != ModePlacing || !s.initialized || s.lastDepth == nil {
		return
	}

	cam, pose, ts := s.camera()
	res, err := s.deps.Finder.Find(cam, p.touch, *s.lastDepth)
	if err != nil {
		monitoring.Logf("session: placement %d dropped: %v", p.seq, err)
		return
	}

	a := anchor.NewAnchor(s.produceType, pose, res.Pose(), ts)
	s.add(a)
	s.selected = ""
	monitoring.Logf("session: placed %s", a)
}

// Do runs fn on the owner goroutine of a running Run loop and waits for
// it to finish.
func (s *Session) Do(ctx context.Context, fn func(*Session)) error {
	done := make(chan struct{})
	select {
	case s.cmds <- func() { fn(s); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run owns the session until ctx is cancelled: it applies engine
// events, runs closures from Do, and ticks every TickInterval.
func (s *Session) Run(ctx context.Context, events <-chan tracking.Event) error {
	ticker := s.deps.Clock.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.HandleEvent(ev)
		case fn := <-s.cmds:
			fn()
		case <-ticker.C():
			s.Tick()
		}
	}
}
