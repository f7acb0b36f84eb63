package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/arthylene/internal/anchor"
	"github.com/banshee-data/arthylene/internal/config"
	"github.com/banshee-data/arthylene/internal/db"
	"github.com/banshee-data/arthylene/internal/fsutil"
	"github.com/banshee-data/arthylene/internal/monitor"
	"github.com/banshee-data/arthylene/internal/plane"
	"github.com/banshee-data/arthylene/internal/replay"
	"github.com/banshee-data/arthylene/internal/scene"
	"github.com/banshee-data/arthylene/internal/security"
	"github.com/banshee-data/arthylene/internal/session"
	"github.com/banshee-data/arthylene/internal/store"
	"github.com/banshee-data/arthylene/internal/timeutil"
	"github.com/banshee-data/arthylene/internal/tracking"
	"gonum.org/v1/plot/vg"
)

// app carries the resolved configuration for one command.
type app struct {
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// open returns the migrated database, the map registry and the
// configured anchor store.
func (a *app) open() (*db.DB, *tracking.SQLiteRegistry, store.AnchorStore, error) {
	database, err := db.NewDB(a.cfg.GetDBPath())
	if err != nil {
		return nil, nil, nil, err
	}
	reg := tracking.NewSQLiteRegistry(database.DB)

	switch a.cfg.GetStore() {
	case config.StoreFile:
		fst, err := store.NewFileStore(fsutil.OSFileSystem{}, a.cfg.GetDataDir())
		if err != nil {
			database.Close()
			return nil, nil, nil, err
		}
		return database, reg, fst, nil
	default:
		return database, reg, store.NewSQLiteStore(database.DB), nil
	}
}

func (a *app) handleMaps(args []string) error {
	fs := a.flagSet("maps")
	if err := fs.Parse(args); err != nil {
		return err
	}
	database, reg, _, err := a.open()
	if err != nil {
		return err
	}
	defer database.Close()

	maps, err := reg.List()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED")
	for _, m := range maps {
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, m.Name, m.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func (a *app) handleDeleteMap(args []string) error {
	fs := a.flagSet("delete-map")
	mapID := fs.String("map", "", "map id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *mapID == "" {
		return errors.New("delete-map requires -map")
	}
	database, reg, st, err := a.open()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := st.DeleteAnchors(*mapID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete anchors: %w", err)
	}
	if err := reg.Delete(*mapID); err != nil {
		return fmt.Errorf("delete map: %w", err)
	}
	fmt.Fprintf(a.stdout, "Deleted map %s\n", *mapID)
	return nil
}

func (a *app) handleAnchors(args []string) error {
	fs := a.flagSet("anchors")
	mapID := fs.String("map", "", "map id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	database, _, st, err := a.open()
	if err != nil {
		return err
	}
	defer database.Close()

	if *mapID == "" {
		return a.listAnchorKeys(st)
	}
	records, err := st.LoadAnchors(*mapID)
	if err != nil {
		return err
	}
	if records == nil {
		records = []anchor.Record{}
	}
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// listAnchorKeys prints every saved list with its anchor count.
func (a *app) listAnchorKeys(st store.AnchorStore) error {
	kl, ok := st.(store.KeyLister)
	if !ok {
		return fmt.Errorf("store %s cannot list saved anchors", a.cfg.GetStore())
	}
	keys, err := kl.Keys()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MAP\tANCHORS")
	for _, k := range keys {
		records, err := st.LoadAnchors(k)
		if err != nil {
			fmt.Fprintf(w, "%s\t%v\n", k, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\n", k, len(records))
	}
	return w.Flush()
}

func (a *app) handlePlot(args []string) error {
	fs := a.flagSet("plot")
	mapID := fs.String("map", "", "map id")
	out := fs.String("o", "", "output PNG (default <map name>.png)")
	size := fs.Float64("size", 12, "image side in centimetres")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *mapID == "" {
		return errors.New("plot requires -map")
	}
	database, reg, st, err := a.open()
	if err != nil {
		return err
	}
	defer database.Close()

	m, err := reg.Get(*mapID)
	if err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = security.SanitizeFilename(m.Name) + ".png"
	}
	if filepath.Ext(path) != ".png" {
		return fmt.Errorf("output must be a .png file: %s", path)
	}
	if err := security.ValidateExportPath(path); err != nil {
		return err
	}

	records, err := st.LoadAnchors(*mapID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	p, err := monitor.AnchorPlot(m.Name, records, anchor.DefaultCatalog)
	if err != nil {
		return err
	}
	side := vg.Length(*size) * vg.Centimeter
	if err := p.Save(side, side, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	fmt.Fprintf(a.stdout, "Wrote %s (%d anchors)\n", path, len(records))
	return nil
}

func (a *app) handleMigrate(args []string) error {
	fs := a.flagSet("migrate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: migrate up|down|version")
	}
	database, err := db.Open(a.cfg.GetDBPath())
	if err != nil {
		return err
	}
	defer database.Close()

	switch fs.Arg(0) {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate action %q", fs.Arg(0))
	}

	v, dirty, err := database.MigrateVersion()
	if err != nil {
		return err
	}
	latest, err := db.LatestMigrationVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Schema version %d (latest %d, dirty %v)\n", v, latest, dirty)
	return nil
}

// replayScript runs a script against a fresh session backed by the
// configured registry and store.
func (a *app) replayScript(ctx context.Context, path string, reg tracking.Registry, st store.AnchorStore) (*session.Session, replay.Result, error) {
	sc, err := replay.LoadScript(fsutil.OSFileSystem{}, path)
	if err != nil {
		return nil, replay.Result{}, err
	}
	finder, err := plane.NewFinder(a.cfg.PlaneConfig())
	if err != nil {
		return nil, replay.Result{}, err
	}
	eng := tracking.NewSimEngine(reg, timeutil.RealClock{}, a.cfg.SimOptions())
	s, err := session.New(session.Deps{
		Engine:   eng,
		Store:    st,
		Renderer: scene.New(a.cfg.GetHideFrames()),
		Finder:   finder,
		Exit:     func(code int) { fmt.Fprintf(a.stderr, "session requested exit %d\n", code) },
	}, a.cfg.SessionOptions())
	if err != nil {
		return nil, replay.Result{}, err
	}
	res, err := replay.NewRunner(s, eng).Run(ctx, sc)
	return s, res, err
}

func (a *app) handleSimulate(ctx context.Context, args []string) error {
	fs := a.flagSet("simulate")
	script := fs.String("script", "", "session script (JSON)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *script == "" {
		return errors.New("simulate requires -script")
	}
	database, reg, st, err := a.open()
	if err != nil {
		return err
	}
	defer database.Close()

	_, res, runErr := a.replayScript(ctx, *script, reg, st)
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	return runErr
}

func (a *app) handleServe(ctx context.Context, args []string) error {
	fs := a.flagSet("serve")
	listen := fs.String("listen", a.cfg.GetListen(), "monitor listen address")
	script := fs.String("script", "", "session script to replay before serving")
	if err := fs.Parse(args); err != nil {
		return err
	}
	database, reg, st, err := a.open()
	if err != nil {
		return err
	}
	defer database.Close()

	mcfg := monitor.Config{
		Address: *listen,
		Store:   st,
		Maps:    reg,
		DB:      database,
	}
	if *script != "" {
		s, res, err := a.replayScript(ctx, *script, reg, st)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Replayed %s: %d steps, mode %s\n", res.Script, len(res.Steps), res.Final.Mode)
		mcfg.Status = s
	}

	srv, err := monitor.NewServer(mcfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Monitor listening on %s\n", *listen)
	return srv.Start(ctx)
}
