package monitor

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/arthylene/internal/anchor"
	"github.com/banshee-data/arthylene/internal/session"
	"github.com/banshee-data/arthylene/internal/store"
	"github.com/banshee-data/arthylene/internal/testutil"
	"github.com/banshee-data/arthylene/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStatus session.Status

func (f fixedStatus) Status() session.Status { return session.Status(f) }

func sampleRecords() []anchor.Record {
	return []anchor.Record{
		{Type: 0, Position: [3]float64{0, 0, 1}, Orientation: [4]float64{0, 0, 0, 1}},
		{Type: 1, Position: [3]float64{0.5, 0, 2}, Orientation: [4]float64{0, 0, 0, 1}},
		{Type: 0, Position: [3]float64{-0.5, 0, 1.5}, Orientation: [4]float64{0, 0, 0, 1}},
	}
}

func newTestServer(t *testing.T, status StatusSource) *Server {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, st.SaveAnchors("m1", sampleRecords()))
	reg := tracking.NewMemoryRegistry()
	require.NoError(t, reg.Create(tracking.MapSession{ID: "m1", Name: "Kitchen", CreatedAt: time.Unix(0, 0)}))

	s, err := NewServer(Config{Address: "localhost:0", Status: status, Store: st, Maps: reg})
	require.NoError(t, err)
	return s
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNewServer_RequiresStore(t *testing.T) {
	t.Parallel()
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestServer_Health(t *testing.T) {
	t.Parallel()
	rec := get(t, newTestServer(t, nil), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestServer_RejectsNonGet(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, fixedStatus{Mode: "idle"})
	paths := []string{
		"/health",
		"/api/status",
		"/api/maps",
		"/api/anchors?map=m1",
		"/api/anchors/chart?map=m1",
		"/api/anchors/plot.png?map=m1",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("POST %s = %d, want %d", path, rec.Code, http.StatusMethodNotAllowed)
			}
		})
	}
}

func TestServer_Status(t *testing.T) {
	t.Parallel()
	rec := get(t, newTestServer(t, nil), "/api/status")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s := newTestServer(t, fixedStatus{Mode: "placing", Initialized: true, MapID: "m1"})
	rec = get(t, s, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var got session.Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "placing", got.Mode)
	assert.True(t, got.Initialized)

	post := httptest.NewRecorder()
	s.Handler().ServeHTTP(post, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, post.Code)
}

func TestServer_Maps(t *testing.T) {
	t.Parallel()
	rec := get(t, newTestServer(t, nil), "/api/maps")
	require.Equal(t, http.StatusOK, rec.Code)
	var maps []tracking.MapSession
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&maps))
	require.Len(t, maps, 1)
	assert.Equal(t, "Kitchen", maps[0].Name)
}

func TestServer_AnchorRoutes(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	tests := []struct {
		path   string
		status int
	}{
		{"/api/anchors", http.StatusBadRequest},
		{"/api/anchors?map=missing", http.StatusNotFound},
		{"/api/anchors?map=a/b", http.StatusBadRequest},
		{"/api/anchors/chart?map=missing", http.StatusNotFound},
		{"/api/anchors/plot.png", http.StatusBadRequest},
		{"/api/anchors?map=m1", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.status, get(t, s, tt.path).Code)
		})
	}

	rec := get(t, s, "/api/anchors?map=m1")
	var records []anchor.Record
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&records))
	assert.Equal(t, sampleRecords(), records)
}

func TestServer_AnchorChart(t *testing.T) {
	t.Parallel()
	rec := get(t, newTestServer(t, nil), "/api/anchors/chart?map=m1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
	body := rec.Body.String()
	assert.Contains(t, body, "Kitchen")
	assert.Contains(t, body, "apple")
	assert.Contains(t, body, "banana")
}

func TestServer_AnchorPlot(t *testing.T) {
	t.Parallel()
	rec := get(t, newTestServer(t, nil), "/api/anchors/plot.png?map=m1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestAnchorPlot_Empty(t *testing.T) {
	t.Parallel()
	p, err := AnchorPlot("empty", nil, anchor.DefaultCatalog)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, p, 200))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
}

func TestByType(t *testing.T) {
	t.Parallel()
	types, groups := byType(sampleRecords())
	assert.Equal(t, []int{0, 1}, types)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 1)
}

func TestNewServer_WithDB(t *testing.T) {
	t.Parallel()
	d := testutil.NewTestDB(t)

	s, err := NewServer(Config{Store: store.NewSQLiteStore(d.DB), Maps: tracking.NewSQLiteRegistry(d.DB), DB: d})
	require.NoError(t, err)
	rec := get(t, s, "/api/maps")
	require.Equal(t, http.StatusOK, rec.Code)
	var maps []tracking.MapSession
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&maps))
	assert.Empty(t, maps)
}
