// Command arthylene manages saved maps and anchor lists, replays
// scripted placement sessions and serves the debug monitor.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/arthylene/internal/config"
	"github.com/banshee-data/arthylene/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `arthylene - persistent produce anchors

Usage: arthylene [global flags] <command> [options]

Commands:
  maps         List saved maps
  delete-map   Delete a map and its anchors (-map ID)
  anchors      Print the anchor list of a map as JSON (-map ID), or list
               saved anchor lists when -map is omitted
  plot         Write a top-down PNG of a map's anchors (-map ID -o file.png)
  migrate      Manage the database schema (up | down | version)
  simulate     Replay a session script against the simulated engine (-script file.json)
  serve        Serve the debug monitor (-listen addr, optional -script)
  version      Show version information
  help         Show this help message

Global Flags:
  -config <file>   JSON configuration file
  -db <path>       SQLite database path
  -data <dir>      Anchor directory for the file store
  -store <kind>    Anchor store backend: file or sqlite
  -version         Show version information

Environment variables prefixed with ARTHYLENE_ override the config file.
`)
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("arthylene", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr) }
	configPath := fs.String("config", "", "JSON configuration file")
	dbPath := fs.String("db", "", "SQLite database path")
	dataDir := fs.String("data", "", "anchor directory for the file store")
	storeKind := fs.String("store", "", "anchor store backend (file or sqlite)")
	showVersion := fs.Bool("version", false, "show version information")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}
	if fs.NArg() < 1 {
		printUsage(stderr)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
	if *dataDir != "" {
		cfg.DataDir = dataDir
	}
	if *storeKind != "" {
		cfg.Store = storeKind
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	a := &app{cfg: cfg, stdout: stdout, stderr: stderr}
	command, rest := fs.Arg(0), fs.Args()[1:]
	switch command {
	case "maps":
		err = a.handleMaps(rest)
	case "delete-map":
		err = a.handleDeleteMap(rest)
	case "anchors":
		err = a.handleAnchors(rest)
	case "plot":
		err = a.handlePlot(rest)
	case "migrate":
		err = a.handleMigrate(rest)
	case "simulate":
		err = a.handleSimulate(ctx, rest)
	case "serve":
		err = a.handleServe(ctx, rest)
	case "version":
		fmt.Fprintln(stdout, version.String())
	case "help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
