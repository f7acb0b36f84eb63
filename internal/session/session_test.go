package session

import (
	"context"
	"testing"
	"time"

	"github.com/banshee-data/arthylene/internal/anchor"
	"github.com/banshee-data/arthylene/internal/fsutil"
	"github.com/banshee-data/arthylene/internal/geom"
	"github.com/banshee-data/arthylene/internal/plane"
	"github.com/banshee-data/arthylene/internal/scene"
	"github.com/banshee-data/arthylene/internal/store"
	"github.com/banshee-data/arthylene/internal/testutil"
	"github.com/banshee-data/arthylene/internal/timeutil"
	"github.com/banshee-data/arthylene/internal/tracking"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	epoch  = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	center = geom.Point2{X: 960, Y: 540}
)

// countingScene records how often each handle is released.
type countingScene struct {
	*scene.Scene
	releases map[scene.Handle]int
}

func (c *countingScene) Release(h scene.Handle) error {
	c.releases[h]++
	return c.Scene.Release(h)
}

type harness struct {
	t        *testing.T
	clock    *timeutil.MockClock
	reg      *tracking.MemoryRegistry
	eng      *tracking.SimEngine
	scene    *countingScene
	store    store.AnchorStore
	s        *Session
	notes    []string
	exitCode int
	exited   bool
}

func newHarness(t *testing.T, simOpts tracking.SimOptions, st store.AnchorStore) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		clock: timeutil.NewMockClock(epoch),
		reg:   tracking.NewMemoryRegistry(),
		scene: &countingScene{Scene: scene.New(3), releases: make(map[scene.Handle]int)},
		store: st,
	}
	if h.store == nil {
		h.store = store.NewMemoryStore()
	}
	h.eng = tracking.NewSimEngine(h.reg, h.clock, simOpts)

	finder, err := plane.NewFinder(plane.DefaultConfig())
	require.NoError(t, err)

	s, err := New(Deps{
		Engine:   h.eng,
		Store:    h.store,
		Renderer: h.scene,
		Finder:   finder,
		Notifier: NotifierFunc(func(msg string) { h.notes = append(h.notes, msg) }),
		Exit: func(code int) {
			h.exited = true
			h.exitCode = code
		},
		Clock: h.clock,
	}, DefaultOptions())
	require.NoError(t, err)
	h.s = s
	return h
}

// pump applies every queued engine event.
func (h *harness) pump() {
	for {
		select {
		case ev := <-h.eng.Events():
			h.s.HandleEvent(ev)
		default:
			return
		}
	}
}

func (h *harness) addMap(id, name string) {
	h.t.Helper()
	require.NoError(h.t, h.reg.Create(tracking.MapSession{ID: id, Name: name, CreatedAt: epoch}))
}

// loadAndRelocalize loads map id for placement and relocalizes.
func (h *harness) loadAndRelocalize(id string) {
	h.t.Helper()
	require.NoError(h.t, h.s.LoadMap(id, false))
	h.pump()
	require.True(h.t, h.eng.Relocalize())
	h.pump()
	require.True(h.t, h.s.Initialized())
}

// place taps the screen center, delivers a wall two metres ahead and
// ticks once.
func (h *harness) place() {
	h.t.Helper()
	require.Equal(h.t, TouchPlacementPending, h.s.Touch(center))
	require.True(h.t, h.eng.EmitDepth(testutil.Wall(2, 0.01, 30)))
	h.pump()
	h.s.Tick()
}

func TestNew_RequiresDeps(t *testing.T) {
	t.Parallel()
	_, err := New(Deps{}, DefaultOptions())
	assert.Error(t, err)
}

func TestSession_GatedUntilRelocalized(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	h.addMap("m1", "M1")

	require.NoError(t, h.s.LoadMap("m1", false))
	h.pump()
	assert.Equal(t, ModePlacing, h.s.Mode())
	assert.False(t, h.s.Initialized())

	assert.Equal(t, TouchIgnored, h.s.Touch(center))
	assert.Equal(t, tracking.DepthDisabled, h.eng.DepthRate())
	assert.ErrorIs(t, h.s.SavePlacement(), ErrInvalidState)

	// A plain device pose is not a relocalization.
	h.eng.SetDevicePose(geom.Pose{Rotation: geom.Identity})
	h.pump()
	assert.False(t, h.s.Initialized())

	require.True(t, h.eng.Relocalize())
	h.pump()
	assert.True(t, h.s.Initialized())
}

func TestSession_LoadMapErrors(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	h.addMap("m1", "M1")

	assert.ErrorIs(t, h.s.LoadMap("", false), ErrNoMapSelected)
	assert.ErrorIs(t, h.s.LoadMap("missing", false), ErrMapAbsent)
	assert.ErrorIs(t, h.s.LoadMapByName("Attic", false), ErrMapAbsent)
	assert.Equal(t, []string{MsgSelectScan, MsgMapAbsent, MsgMapAbsent}, h.notes)
	assert.Equal(t, ModeIdle, h.s.Mode())

	require.NoError(t, h.s.LoadMapByName("M1", true))
	assert.Equal(t, ModeViewing, h.s.Mode())
	assert.Equal(t, "m1", h.s.MapID())
	assert.ErrorIs(t, h.s.LoadMap("m1", false), ErrInvalidState)
}

func TestSession_LoadsSavedAnchors(t *testing.T) {
	t.Parallel()
	st := store.NewMemoryStore()
	require.NoError(t, st.SaveAnchors("m1", []anchor.Record{
		testutil.Record(0, 0, 0, 1),
		testutil.Record(9, 1, 1, 1),
		testutil.Record(1, 0.5, 0, 1),
	}))
	h := newHarness(t, tracking.DefaultSimOptions(), st)
	h.addMap("m1", "M1")

	h.loadAndRelocalize("m1")

	got := h.s.Anchors()
	require.Len(t, got, 2)
	assert.Equal(t, anchor.ProduceType(0), got[0].Type)
	assert.Equal(t, anchor.ProduceType(1), got[1].Type)
	assert.True(t, geom.ApproxEqualVec(geom.V(0, 0, 1), got[0].World.Position, 1e-9))
	assert.True(t, geom.ApproxEqualVec(geom.V(0.5, 0, 1), got[1].World.Position, 1e-9))
	assert.True(t, got[0].Reanchorable())
	assert.Equal(t, []string{"apple", "banana"}, h.scene.Labels())

	// A second relocalization does not load them again.
	require.True(t, h.eng.Relocalize())
	h.pump()
	assert.Len(t, h.s.Anchors(), 2)
}

func TestSession_CorruptStoreStartsEmpty(t *testing.T) {
	t.Parallel()
	fsys := fsutil.NewMemoryFileSystem()
	st, err := store.NewFileStore(fsys, "anchors")
	require.NoError(t, err)
	require.NoError(t, fsys.WriteFile("anchors/m1.json", []byte("{not json"), 0o644))

	h := newHarness(t, tracking.DefaultSimOptions(), st)
	h.addMap("m1", "M1")
	h.loadAndRelocalize("m1")

	assert.Empty(t, h.s.Anchors())
	assert.Equal(t, ModePlacing, h.s.Mode())
}

func TestSession_PlaceOnWall(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	h.addMap("m1", "M1")
	h.loadAndRelocalize("m1")
	require.NoError(t, h.s.SetProduceType(0))

	h.place()

	got := h.s.Anchors()
	require.Len(t, got, 1)
	assert.True(t, geom.ApproxEqualVec(geom.V(0, 0, 2), got[0].World.Position, 1e-3))
	up := got[0].World.Rotation.Rotate(geom.AxisY)
	assert.True(t, geom.ApproxEqualVec(geom.V(0, 0, -1), up, 1e-3), "up %v", up)
	assert.Equal(t, tracking.DepthDisabled, h.eng.DepthRate())
	assert.False(t, h.s.PlacementPending())
	assert.Equal(t, []string{"apple"}, h.scene.Labels())
}

func TestSession_TouchWithoutDepthPlacesNothing(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	h.addMap("m1", "M1")
	h.loadAndRelocalize("m1")

	assert.Equal(t, TouchPlacementPending, h.s.Touch(center))
	assert.Equal(t, tracking.DepthMaximum, h.eng.DepthRate())
	for i := 0; i < 5; i++ {
		h.s.Tick()
	}
	assert.Empty(t, h.s.Anchors())
	assert.True(t, h.s.PlacementPending())
}

func TestSession_DepthWithoutSurfaceIsDropped(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	h.addMap("m1", "M1")
	h.loadAndRelocalize("m1")

	require.Equal(t, TouchPlacementPending, h.s.Touch(center))
	// Points far off to the side miss the touch.
	require.True(t, h.eng.EmitDepth([]geom.Vec{geom.V(1.5, 0, 2), geom.V(1.6, 0, 2)}))
	h.pump()
	h.s.Tick()

	assert.Empty(t, h.s.Anchors())
	assert.False(t, h.s.PlacementPending())
	assert.Equal(t, tracking.DepthDisabled, h.eng.DepthRate())
}

func TestSession_DepthBeforeTouchIsNotUsed(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	h.addMap("m1", "M1")
	h.loadAndRelocalize("m1")

	h.eng.SetDepthRate(tracking.DepthMaximum)
	require.True(t, h.eng.EmitDepth(testutil.Wall(2, 0.01, 30)))
	h.pump()
	h.s.Tick()
	assert.Empty(t, h.s.Anchors())
}

func TestSession_NewTouchSupersedesPendingPlacement(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	h.addMap("m1", "M1")
	h.loadAndRelocalize("m1")

	require.Equal(t, TouchPlacementPending, h.s.Touch(center))
	require.True(t, h.eng.EmitDepth(testutil.Wall(2, 0.01, 30)))
	h.pump()

	// The frame answered the first touch; the second one needs its own.
	second := geom.Point2{X: 970, Y: 545}
	require.Equal(t, TouchPlacementPending, h.s.Touch(second))
	h.s.Tick()
	assert.Empty(t, h.s.Anchors())
	assert.True(t, h.s.PlacementPending())
	assert.Equal(t, tracking.DepthMaximum, h.eng.DepthRate())

	require.True(t, h.eng.EmitDepth(testutil.Wall(2, 0.01, 30)))
	h.pump()
	h.s.Tick()
	got := h.s.Anchors()
	require.Len(t, got, 1)
	assert.False(t, h.s.PlacementPending())
	// 10 px right of centre at 2 m with a 1662.8 px focal length.
	assert.InDelta(t, 0.012, got[0].World.Position.X, 2e-3)
	assert.InDelta(t, 2, got[0].World.Position.Z, 1e-3)
}

func TestSession_SelectAndRemove(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	h.addMap("m1", "M1")
	h.loadAndRelocalize("m1")
	h.place()
	require.Len(t, h.s.Anchors(), 1)
	id := h.s.Anchors()[0].ID

	assert.Equal(t, TouchSelected, h.s.Touch(center))
	sel, ok := h.s.Selected()
	require.True(t, ok)
	assert.Equal(t, id, sel.ID)

	rect, ok := h.s.RemoveAffordance()
	require.True(t, ok)
	assert.True(t, rect.Contains(center))
	assert.Equal(t, TouchSwallowed, h.s.Touch(center), "touch on the remove control")
	assert.Len(t, h.s.Anchors(), 1)

	require.NoError(t, h.s.RemoveSelected())
	assert.Empty(t, h.s.Anchors())
	assert.ErrorIs(t, h.s.RemoveSelected(), ErrNoSelection)

	// The hiding model still swallows touches until it is released.
	assert.Equal(t, TouchSwallowed, h.s.Touch(center))
	assert.False(t, h.s.PlacementPending())

	for i := 0; i < 10; i++ {
		h.s.Tick()
	}
	assert.Zero(t, h.scene.Live())
	require.Len(t, h.scene.releases, 1)
	for _, n := range h.scene.releases {
		assert.Equal(t, 1, n)
	}

	require.NoError(t, h.s.SavePlacement())
	saved, err := h.store.LoadAnchors("m1")
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestSession_SavePlacementRoundTrip(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	h.addMap("m1", "M1")
	h.loadAndRelocalize("m1")
	require.NoError(t, h.s.SetProduceType(3))
	h.place()
	want := []anchor.Record{h.s.Anchors()[0].Record()}

	require.NoError(t, h.s.SavePlacement())
	assert.Equal(t, ModeIdle, h.s.Mode())
	assert.False(t, h.eng.Connected())
	assert.Zero(t, h.scene.Live())

	got, err := h.store.LoadAnchors("m1")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("saved records mismatch (-want +got):\n%s", diff)
	}

	h.loadAndRelocalize("m1")
	require.Len(t, h.s.Anchors(), 1)
	assert.Equal(t, anchor.ProduceType(3), h.s.Anchors()[0].Type)
	assert.Equal(t, []string{"tomato"}, h.scene.Labels())
}

func TestSession_SavePlacementStoreError(t *testing.T) {
	t.Parallel()
	st := store.NewMemoryStore()
	h := newHarness(t, tracking.DefaultSimOptions(), st)
	h.addMap("m1", "M1")
	h.loadAndRelocalize("m1")
	h.place()

	st.SetSaveErr(assert.AnError)
	assert.ErrorIs(t, h.s.SavePlacement(), assert.AnError)
	assert.Equal(t, ModePlacing, h.s.Mode())
	assert.Len(t, h.s.Anchors(), 1)
}

func TestSession_SetProduceType(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	assert.ErrorIs(t, h.s.SetProduceType(42), anchor.ErrUnknownType)
	require.NoError(t, h.s.SetProduceType(2))
	assert.Equal(t, anchor.ProduceType(2), h.s.ProduceType())
}

func waitForSave(t *testing.T, s *Session) {
	t.Helper()
	for i := 0; i < 2000 && s.SaveInFlight(); i++ {
		s.Tick()
		time.Sleep(time.Millisecond)
	}
	require.False(t, s.SaveInFlight(), "save worker did not finish")
}

func TestSession_SaveScanSingleWorker(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	require.NoError(t, h.s.StartScan())
	assert.Equal(t, ModeScanning, h.s.Mode())

	h.eng.BlockSaves()
	require.NoError(t, h.s.SaveScan("Kitchen"))
	assert.ErrorIs(t, h.s.SaveScan("Kitchen again"), ErrWorkerBusy)
	assert.True(t, h.s.SaveInFlight())

	h.s.Tick()
	assert.Equal(t, ModeScanning, h.s.Mode())

	h.eng.ReleaseSaves()
	waitForSave(t, h.s)

	maps, err := h.reg.List()
	require.NoError(t, err)
	require.Len(t, maps, 1)
	assert.Equal(t, "Kitchen", maps[0].Name)
	assert.Equal(t, maps[0].ID, h.s.LastSavedMap().ID)
	assert.Equal(t, ModeIdle, h.s.Mode())
	assert.False(t, h.eng.Connected())
}

func TestSession_CancelDuringSaveWaitsForWorker(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	require.NoError(t, h.s.StartScan())

	h.eng.BlockSaves()
	require.NoError(t, h.s.SaveScan(""))
	h.s.Cancel()
	assert.Equal(t, ModeScanning, h.s.Mode(), "reset deferred while saving")

	h.eng.ReleaseSaves()
	waitForSave(t, h.s)
	assert.Equal(t, ModeIdle, h.s.Mode())
	assert.Equal(t, "Unnamed", h.s.LastSavedMap().Name)
}

func TestSession_SaveScanRequiresScanning(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	assert.ErrorIs(t, h.s.SaveScan("x"), ErrInvalidState)
	require.NoError(t, h.s.StartScan())
	assert.ErrorIs(t, h.s.StartScan(), ErrInvalidState)
}

func TestSession_RelocalizationWhileScanningIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	require.NoError(t, h.s.StartScan())
	h.pump()
	require.True(t, h.eng.Relocalize())
	h.pump()
	assert.False(t, h.s.Initialized())
	assert.Equal(t, ModeScanning, h.s.Mode())
}

func TestSession_PermissionDenied(t *testing.T) {
	t.Parallel()
	opts := tracking.DefaultSimOptions()
	opts.DenyPermissions = true
	h := newHarness(t, opts, nil)

	h.s.Start()
	h.pump()
	assert.True(t, h.exited)
	assert.Equal(t, 1, h.exitCode)
	assert.Equal(t, []string{MsgPermissionsNeeded}, h.notes)
	assert.ErrorIs(t, h.s.StartScan(), ErrInvalidState)
}

func TestSession_PermissionGrantedListsMaps(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	h.addMap("m1", "M1")
	h.addMap("m2", "M2")

	h.s.Start()
	h.pump()
	assert.False(t, h.exited)
	require.Len(t, h.s.Maps(), 2)
}

func TestSession_PauseResets(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	h.addMap("m1", "M1")

	// Pausing before relocalization keeps the session.
	require.NoError(t, h.s.LoadMap("m1", false))
	h.s.Pause()
	assert.Equal(t, ModePlacing, h.s.Mode())

	require.True(t, h.eng.Relocalize())
	h.pump()
	h.place()
	require.Len(t, h.s.Anchors(), 1)

	h.s.Pause()
	assert.Equal(t, ModeIdle, h.s.Mode())
	assert.False(t, h.s.Initialized())
	assert.Empty(t, h.s.Anchors())
	assert.Zero(t, h.scene.Live())
	assert.False(t, h.eng.Connected())
}

func TestSession_DisconnectResets(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	h.addMap("m1", "M1")
	h.loadAndRelocalize("m1")

	h.eng.Disconnect()
	h.pump()
	assert.Equal(t, ModeIdle, h.s.Mode())
}

func TestSession_LoopClosureMovesAnchors(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	h.addMap("m1", "M1")
	h.loadAndRelocalize("m1")

	ts := h.eng.SetDevicePose(geom.Pose{Rotation: geom.Identity})
	h.pump()
	h.place()
	require.Len(t, h.s.Anchors(), 1)
	require.Equal(t, ts, h.s.Anchors()[0].CreatedAt)

	shift := geom.V(0.1, 0, 0)
	require.NoError(t, h.eng.CorrectPose(ts, geom.Pose{Position: shift, Rotation: geom.Identity}))
	h.pump()

	got := h.s.Anchors()[0]
	assert.True(t, geom.ApproxEqualVec(geom.V(0.1, 0, 2), got.World.Position, 1e-3), "position %v", got.World.Position)

	labels := h.scene.Labels()
	require.Len(t, labels, 1)
	b, ok := h.scene.Bounds(h.s.handles[got.ID])
	require.True(t, ok)
	assert.InDelta(t, 0.1, b.Center.X, 1e-3)
}

func TestSession_Status(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	assert.Equal(t, "idle", h.s.Status().Mode)

	h.addMap("m1", "M1")
	h.loadAndRelocalize("m1")
	h.place()

	st := h.s.Status()
	assert.Equal(t, "placing", st.Mode)
	assert.True(t, st.Initialized)
	assert.Equal(t, "m1", st.MapID)
	require.Len(t, st.Anchors, 1)
	assert.Equal(t, "apple", st.Anchors[0].Name)
	assert.Equal(t, epoch, st.UpdatedAt)
}

func TestSession_RunAndDo(t *testing.T) {
	t.Parallel()
	h := newHarness(t, tracking.DefaultSimOptions(), nil)
	h.addMap("m1", "M1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.s.Run(ctx, h.eng.Events()) }()

	var loadErr error
	require.NoError(t, h.s.Do(ctx, func(s *Session) { loadErr = s.LoadMap("m1", false) }))
	require.NoError(t, loadErr)
	require.True(t, h.eng.Relocalize())

	require.Eventually(t, func() bool {
		h.clock.Advance(DefaultOptions().TickInterval)
		return h.s.Status().Initialized
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.ErrorIs(t, h.s.Do(ctx, func(*Session) {}), context.Canceled)
}

func TestModeAndTouchResultStrings(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "viewing", ModeViewing.String())
	assert.Equal(t, "unknown", Mode(99).String())
	assert.Equal(t, "placement_pending", TouchPlacementPending.String())
}
