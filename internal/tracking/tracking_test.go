package tracking

import (
	"testing"
	"time"

	"github.com/banshee-data/arthylene/internal/geom"
	"github.com/banshee-data/arthylene/internal/testutil"
	"github.com/banshee-data/arthylene/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newSim(t *testing.T, opts SimOptions) *SimEngine {
	t.Helper()
	return NewSimEngine(NewMemoryRegistry(), timeutil.NewMockClock(epoch), opts)
}

// drain returns every queued event without blocking.
func drain(e *SimEngine) []Event {
	var out []Event
	for {
		select {
		case ev := <-e.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPoseEvent_IsRelocalization(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		ev   PoseEvent
		want bool
	}{
		{"relocalized", PoseEvent{Base: FrameAreaDescription, Target: FrameStartOfService, Status: PoseValid}, true},
		{"invalid status", PoseEvent{Base: FrameAreaDescription, Target: FrameStartOfService, Status: PoseInvalid}, false},
		{"device pose", PoseEvent{Base: FrameStartOfService, Target: FrameDevice, Status: PoseValid}, false},
		{"reversed pair", PoseEvent{Base: FrameStartOfService, Target: FrameAreaDescription, Status: PoseValid}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ev.IsRelocalization())
		})
	}
}

func TestSimEngine_Permissions(t *testing.T) {
	t.Parallel()
	e := newSim(t, DefaultSimOptions())
	e.RequestPermissions()
	assert.Equal(t, []Event{PermissionEvent{Granted: true}}, drain(e))

	opts := DefaultSimOptions()
	opts.DenyPermissions = true
	denied := newSim(t, opts)
	denied.RequestPermissions()
	assert.Equal(t, []Event{PermissionEvent{Granted: false}}, drain(denied))
}

func TestSimEngine_StartSession_UnknownMap(t *testing.T) {
	t.Parallel()
	e := newSim(t, DefaultSimOptions())
	assert.ErrorIs(t, e.StartSession("nope", false), ErrMapNotFound)
	assert.False(t, e.Connected())
}

func TestSimEngine_SaveAndRename(t *testing.T) {
	t.Parallel()
	e := newSim(t, DefaultSimOptions())

	_, err := e.SaveCurrentMapAsNew()
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, e.StartSession("", false))
	_, err = e.SaveCurrentMapAsNew()
	assert.ErrorIs(t, err, ErrNotLearning)

	require.NoError(t, e.StartSession("", true))
	drain(e)
	m, err := e.SaveCurrentMapAsNew()
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, epoch, m.CreatedAt)

	var fractions []float64
	for _, ev := range drain(e) {
		if p, ok := ev.(SaveProgressEvent); ok {
			fractions = append(fractions, p.Fraction)
		}
	}
	assert.Equal(t, []float64{0.25, 0.5, 0.75, 1}, fractions)

	require.NoError(t, e.RenameMap(m.ID, "Kitchen"))
	found, err := FindMapByName(e, "Kitchen")
	require.NoError(t, err)
	assert.Equal(t, m.ID, found.ID)

	_, err = FindMapByName(e, "Garage")
	assert.ErrorIs(t, err, ErrMapNotFound)
}

func TestSimEngine_BlockedSave(t *testing.T) {
	t.Parallel()
	e := newSim(t, DefaultSimOptions())
	require.NoError(t, e.StartSession("", true))
	e.BlockSaves()

	done := make(chan error, 1)
	go func() {
		_, err := e.SaveCurrentMapAsNew()
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("save finished while blocked")
	case <-time.After(20 * time.Millisecond):
	}

	e.ReleaseSaves()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("save did not finish after release")
	}
}

func TestSimEngine_DepthOnlyWhenEnabled(t *testing.T) {
	t.Parallel()
	e := newSim(t, DefaultSimOptions())
	pts := []geom.Vec{geom.V(0, 0, 1)}

	assert.False(t, e.EmitDepth(pts), "disconnected")
	require.NoError(t, e.StartSession("", true))
	assert.False(t, e.EmitDepth(pts), "depth disabled")

	e.SetDepthRate(DepthMaximum)
	pose := geom.Pose{Position: geom.V(0, 1.5, 0), Rotation: geom.Identity}
	e.SetDevicePose(pose)
	drain(e)
	require.True(t, e.EmitDepth(pts))

	evs := drain(e)
	require.Len(t, evs, 1)
	de, ok := evs[0].(DepthEvent)
	require.True(t, ok)
	assert.Equal(t, pts, de.Frame.Points)
	assert.True(t, de.Frame.SensorPose.ApproxEqual(pose.Matrix(), 1e-12))
}

func TestSimEngine_PoseHistoryAndCorrection(t *testing.T) {
	t.Parallel()
	e := newSim(t, DefaultSimOptions())
	require.NoError(t, e.StartSession("", true))

	p1 := geom.Pose{Position: geom.V(1, 0, 0), Rotation: geom.Identity}
	p2 := geom.Pose{Position: geom.V(2, 0, 0), Rotation: geom.Identity}
	ts1 := e.SetDevicePose(p1)
	ts2 := e.SetDevicePose(p2)
	assert.Greater(t, ts2, ts1)

	got, ts := e.CameraPose()
	assert.Equal(t, ts2, ts)
	assert.Equal(t, p2, got)

	at1, err := e.PoseAtTime(ts1)
	require.NoError(t, err)
	assert.Equal(t, p1, at1)

	_, err = e.PoseAtTime(ts1 + 0.001)
	assert.ErrorIs(t, err, ErrNoPose)

	drain(e)
	fixed := geom.Pose{Position: geom.V(1.1, 0, 0), Rotation: geom.Identity}
	require.NoError(t, e.CorrectPose(ts1, fixed))
	at1, _ = e.PoseAtTime(ts1)
	assert.Equal(t, fixed, at1)

	evs := drain(e)
	require.Len(t, evs, 1)
	assert.True(t, evs[0].(PoseEvent).IsRelocalization())
}

func TestSimEngine_DisconnectAndDelete(t *testing.T) {
	t.Parallel()
	e := newSim(t, DefaultSimOptions())
	require.NoError(t, e.StartSession("", true))
	m, err := e.SaveCurrentMapAsNew()
	require.NoError(t, err)

	require.NoError(t, e.StartSession(m.ID, false))
	assert.Equal(t, m.ID, e.ActiveMap())
	assert.ErrorIs(t, e.DeleteMap(m.ID), ErrMapInUse)

	drain(e)
	e.Disconnect()
	assert.Equal(t, []Event{ConnectionEvent{Connected: false}}, drain(e))
	assert.False(t, e.Relocalize())

	require.NoError(t, e.DeleteMap(m.ID))
	maps, err := e.ListMaps()
	require.NoError(t, err)
	assert.Empty(t, maps)
}

func TestSimEngine_DropsWhenFull(t *testing.T) {
	t.Parallel()
	opts := DefaultSimOptions()
	opts.EventBuffer = 2
	e := newSim(t, opts)
	for i := 0; i < 5; i++ {
		e.RequestPermissions()
	}
	assert.Len(t, drain(e), 2)
	assert.Equal(t, 3, e.Dropped())
}

func testRegistries(t *testing.T) map[string]Registry {
	return map[string]Registry{
		"memory": NewMemoryRegistry(),
		"sqlite": NewSQLiteRegistry(testutil.NewTestDB(t).DB),
	}
}

func TestRegistry_Contract(t *testing.T) {
	t.Parallel()
	for name, reg := range testRegistries(t) {
		t.Run(name, func(t *testing.T) {
			a := MapSession{ID: "a", Name: "Shop", CreatedAt: epoch, Learning: true}
			b := MapSession{ID: "b", Name: "Shop", CreatedAt: epoch.Add(time.Minute)}
			require.NoError(t, reg.Create(b))
			require.NoError(t, reg.Create(a))
			assert.Error(t, reg.Create(a), "duplicate id")

			got, err := reg.Get("a")
			require.NoError(t, err)
			assert.Equal(t, a, got)

			list, err := reg.List()
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "a", list[0].ID, "oldest first")

			require.NoError(t, reg.Rename("b", "Back room"))
			got, _ = reg.Get("b")
			assert.Equal(t, "Back room", got.Name)

			require.NoError(t, reg.Delete("a"))
			_, err = reg.Get("a")
			assert.ErrorIs(t, err, ErrMapNotFound)
			assert.ErrorIs(t, reg.Delete("a"), ErrMapNotFound)
			assert.ErrorIs(t, reg.Rename("a", "x"), ErrMapNotFound)
		})
	}
}

func TestFrameStrings(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "area_description", FrameAreaDescription.String())
	assert.Equal(t, "frame(9)", Frame(9).String())
	assert.Equal(t, "valid", PoseValid.String())
}
