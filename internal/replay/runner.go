package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/arthylene/internal/anchor"
	"github.com/banshee-data/arthylene/internal/geom"
	"github.com/banshee-data/arthylene/internal/monitoring"
	"github.com/banshee-data/arthylene/internal/session"
	"github.com/banshee-data/arthylene/internal/tracking"
)

// ErrExpectation is returned when an expect step does not hold.
var ErrExpectation = errors.New("replay expectation failed")

// StepResult records what one step did.
type StepResult struct {
	Index   int    `json:"index"`
	Op      string `json:"op"`
	Outcome string `json:"outcome"`
}

// Result is the outcome of a replay.
type Result struct {
	Script string         `json:"script"`
	Steps  []StepResult   `json:"steps"`
	Final  session.Status `json:"final"`
}

// Runner plays scripts against a session wired to a SimEngine. It owns
// the session for the duration of Run.
type Runner struct {
	s   *session.Session
	eng *tracking.SimEngine

	// SavePoll is how often wait_save ticks the session.
	SavePoll time.Duration
}

// NewRunner returns a Runner for s, which must be driven by eng.
func NewRunner(s *session.Session, eng *tracking.SimEngine) *Runner {
	return &Runner{s: s, eng: eng, SavePoll: time.Millisecond}
}

// pump applies every queued engine event.
func (r *Runner) pump() {
	for {
		select {
		case ev := <-r.eng.Events():
			r.s.HandleEvent(ev)
		default:
			return
		}
	}
}

// Run executes the script. After every step queued events are applied
// and the session ticks once. It stops at the first failing step.
func (r *Runner) Run(ctx context.Context, sc Script) (Result, error) {
	res := Result{Script: sc.Name}
	var poseTimes []float64

	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		outcome, err := r.step(ctx, st, &poseTimes)
		r.pump()
		r.s.Tick()
		if err != nil {
			res.Final = r.s.Status()
			return res, fmt.Errorf("step %d (%s): %w", i+1, st.Op, err)
		}
		res.Steps = append(res.Steps, StepResult{Index: i + 1, Op: st.Op, Outcome: outcome})
		monitoring.Logf("replay: %s step %d %s: %s", sc.Name, i+1, st.Op, outcome)
	}
	res.Final = r.s.Status()
	return res, nil
}

func (r *Runner) step(ctx context.Context, st Step, poseTimes *[]float64) (string, error) {
	switch st.Op {
	case OpScan:
		return "scanning", r.s.StartScan()
	case OpSaveScan:
		if err := r.s.SaveScan(st.Name); errors.Is(err, session.ErrWorkerBusy) {
			return "busy", nil
		} else if err != nil {
			return "", err
		}
		return "saving", nil
	case OpHoldSaves:
		r.eng.BlockSaves()
		return "saves held", nil
	case OpRelease:
		r.eng.ReleaseSaves()
		return "saves released", nil
	case OpWaitSave:
		return r.waitSave(ctx)
	case OpLoad:
		if err := r.s.LoadMapByName(st.Name, st.ViewOnly); err != nil {
			return "", err
		}
		return fmt.Sprintf("loaded %s", r.s.MapID()), nil
	case OpRelocalize:
		if !r.eng.Relocalize() {
			return "not connected", nil
		}
		return "relocalized", nil
	case OpPose:
		ts := r.eng.SetDevicePose(st.Pose())
		*poseTimes = append(*poseTimes, ts)
		return fmt.Sprintf("t=%.4f", ts), nil
	case OpCorrect:
		ts := (*poseTimes)[st.PoseStep-1]
		if err := r.eng.CorrectPose(ts, st.Pose()); err != nil {
			return "", err
		}
		return fmt.Sprintf("corrected t=%.4f", ts), nil
	case OpProduce:
		if err := r.s.SetProduceType(anchor.ProduceType(st.Type)); err != nil {
			return "", err
		}
		return fmt.Sprintf("type %d", st.Type), nil
	case OpTouch:
		return r.s.Touch(geom.Point2{X: st.X, Y: st.Y}).String(), nil
	case OpDepth:
		if !r.eng.EmitDepth(st.DepthPoints()) {
			return "depth off", nil
		}
		return "depth delivered", nil
	case OpRemove:
		if err := r.s.RemoveSelected(); err != nil {
			return "", err
		}
		return "removed", nil
	case OpSave:
		if err := r.s.SavePlacement(); err != nil {
			return "", err
		}
		return "saved", nil
	case OpCancel:
		r.s.Cancel()
		return "cancelled", nil
	case OpPause:
		r.s.Pause()
		return "paused", nil
	case OpDisconnect:
		r.eng.Disconnect()
		return "disconnected", nil
	case OpTick:
		n := st.Count
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			r.pump()
			r.s.Tick()
		}
		return fmt.Sprintf("%d ticks", n), nil
	case OpExpect:
		return "ok", r.check(*st.Expect)
	}
	return "", fmt.Errorf("%w: unknown op %q", ErrInvalidScript, st.Op)
}

func (r *Runner) waitSave(ctx context.Context) (string, error) {
	for r.s.SaveInFlight() {
		r.pump()
		r.s.Tick()
		if !r.s.SaveInFlight() {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.SavePoll):
		}
	}
	m := r.s.LastSavedMap()
	return fmt.Sprintf("saved map %s %q", m.ID, m.Name), nil
}

func (r *Runner) check(e Expect) error {
	st := r.s.Status()
	switch {
	case e.Mode != "" && e.Mode != st.Mode:
		return fmt.Errorf("%w: mode %s, want %s", ErrExpectation, st.Mode, e.Mode)
	case e.Anchors != nil && *e.Anchors != len(st.Anchors):
		return fmt.Errorf("%w: %d anchors, want %d", ErrExpectation, len(st.Anchors), *e.Anchors)
	case e.Initialized != nil && *e.Initialized != st.Initialized:
		return fmt.Errorf("%w: initialized %v, want %v", ErrExpectation, st.Initialized, *e.Initialized)
	case e.Maps != nil && *e.Maps != len(r.mustMaps()):
		return fmt.Errorf("%w: %d maps, want %d", ErrExpectation, len(r.mustMaps()), *e.Maps)
	case e.LastError != "" && e.LastError != st.LastError:
		return fmt.Errorf("%w: last error %q, want %q", ErrExpectation, st.LastError, e.LastError)
	}
	return nil
}

func (r *Runner) mustMaps() []tracking.MapSession {
	maps, err := r.eng.ListMaps()
	if err != nil {
		monitoring.Logf("replay: list maps: %v", err)
	}
	return maps
}
