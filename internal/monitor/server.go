// Package monitor serves a local debug view of a running session and of
// the stored anchor lists.
package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/banshee-data/arthylene/internal/anchor"
	"github.com/banshee-data/arthylene/internal/db"
	"github.com/banshee-data/arthylene/internal/httputil"
	"github.com/banshee-data/arthylene/internal/monitoring"
	"github.com/banshee-data/arthylene/internal/session"
	"github.com/banshee-data/arthylene/internal/store"
	"github.com/banshee-data/arthylene/internal/tracking"
	"gonum.org/v1/plot/vg"
)

// StatusSource supplies the live session snapshot.
type StatusSource interface {
	Status() session.Status
}

// MapLister lists saved maps.
type MapLister interface {
	List() ([]tracking.MapSession, error)
}

// Config wires a Server. Status, Maps and DB are optional.
type Config struct {
	Address string
	Status  StatusSource
	Store   store.AnchorStore
	Maps    MapLister
	DB      *db.DB
	Catalog anchor.Catalog
}

// Server is the debug HTTP server.
type Server struct {
	cfg     Config
	started time.Time
	handler http.Handler
	server  *http.Server
}

// NewServer builds the server and its routes.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("monitor: anchor store is required")
	}
	if len(cfg.Catalog) == 0 {
		cfg.Catalog = anchor.DefaultCatalog
	}
	s := &Server{cfg: cfg, started: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/maps", s.handleMaps)
	mux.HandleFunc("/api/anchors", s.handleAnchors)
	mux.HandleFunc("/api/anchors/chart", s.handleAnchorChart)
	mux.HandleFunc("/api/anchors/plot.png", s.handleAnchorPlot)
	if cfg.DB != nil {
		if err := cfg.DB.AttachAdminRoutes(mux); err != nil {
			return nil, fmt.Errorf("attach admin routes: %w", err)
		}
	}
	s.handler = mux
	s.server = &http.Server{Addr: cfg.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return s, nil
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler { return s.handler }

// Start serves until ctx is cancelled, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("monitor: listening on %s", s.cfg.Address)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("monitor server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("monitor: shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			monitoring.Logf("monitor: force close error: %v", err)
		}
	}
	monitoring.Logf("monitor: stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cfg.Status == nil {
		httputil.NotFound(w, "no live session")
		return
	}
	httputil.WriteJSONOK(w, s.cfg.Status.Status())
}

func (s *Server) handleMaps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cfg.Maps == nil {
		httputil.NotFound(w, "no map registry")
		return
	}
	maps, err := s.cfg.Maps.List()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, maps)
}

// loadList resolves the map query parameter and loads its anchors,
// writing the error response itself when it fails.
func (s *Server) loadList(w http.ResponseWriter, r *http.Request) (string, []anchor.Record, bool) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return "", nil, false
	}
	id := r.URL.Query().Get("map")
	if id == "" {
		httputil.BadRequest(w, "map query parameter is required")
		return "", nil, false
	}
	records, err := s.cfg.Store.LoadAnchors(id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.NotFound(w, fmt.Sprintf("no anchors for map %s", id))
		return "", nil, false
	case errors.Is(err, store.ErrInvalidKey):
		httputil.BadRequest(w, err.Error())
		return "", nil, false
	case err != nil:
		httputil.InternalServerError(w, err.Error())
		return "", nil, false
	}
	return s.title(id), records, true
}

func (s *Server) title(id string) string {
	if s.cfg.Maps == nil {
		return id
	}
	maps, err := s.cfg.Maps.List()
	if err != nil {
		return id
	}
	for _, m := range maps {
		if m.ID == id && m.Name != "" {
			return m.Name
		}
	}
	return id
}

func (s *Server) handleAnchors(w http.ResponseWriter, r *http.Request) {
	_, records, ok := s.loadList(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, records)
}

func (s *Server) handleAnchorChart(w http.ResponseWriter, r *http.Request) {
	title, records, ok := s.loadList(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := AnchorChart(title, records, s.cfg.Catalog).Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleAnchorPlot(w http.ResponseWriter, r *http.Request) {
	title, records, ok := s.loadList(w, r)
	if !ok {
		return
	}
	p, err := AnchorPlot(title, records, s.cfg.Catalog)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	var buf bytes.Buffer
	if err := WritePNG(&buf, p, 6*vg.Inch); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
