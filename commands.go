package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/lifecycle.report/internal/artifact"
	"github.com/banshee-data/lifecycle.report/internal/cohort"
	"github.com/banshee-data/lifecycle.report/internal/lifecycle"
	"github.com/banshee-data/lifecycle.report/internal/normalize"
	"github.com/banshee-data/lifecycle.report/internal/pipeline"
	"github.com/banshee-data/lifecycle.report/internal/scoring"
	"github.com/banshee-data/lifecycle.report/internal/snapshot"
)

// Exit codes distinguish failure classes for scripted callers.
const (
	exitOK      = 0
	exitUsage   = 1
	exitInput   = 2
	exitConfig  = 3
	exitCompute = 4
	exitStorage = 5
)

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pipeline.ErrSelector):
		return exitUsage
	case errors.Is(err, pipeline.ErrInput):
		return exitInput
	case errors.Is(err, pipeline.ErrConfig), errors.Is(err, scoring.ErrInvalidModel):
		return exitConfig
	case errors.Is(err, pipeline.ErrStorage):
		return exitStorage
	default:
		return exitCompute
	}
}

func handleRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	state := fs.String("state", "", "Two-letter state code (required)")
	year := fs.Int("year", 0, "Registration year (required)")
	snapPath := fs.String("snapshot", "", "Path to the registry snapshot database (required)")
	dbPath := fs.String("db", defaultDBFile, "Path to the artifact database")
	modelPath := fs.String("model", "", "Risk model YAML (defaults to the built-in model)")
	outDir := fs.String("out", "", "Write the report bundle under this directory")
	workers := fs.Int("workers", 0, "Concurrent scoring workers (0 = all CPUs)")
	topN := fs.Int("top", cohort.DefaultTopRisk, "Top-risk vehicles carried in the summary")
	fs.Parse(args)

	if *state == "" || *year == 0 || *snapPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -state, -year and -snapshot are required")
		fs.Usage()
		os.Exit(exitUsage)
	}

	model := scoring.Default()
	if *modelPath != "" {
		var err error
		model, err = scoring.Load(*modelPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load risk model: %v\n", err)
			os.Exit(exitConfig)
		}
	}

	snaps, err := snapshot.Open(*snapPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open snapshot: %v\n", err)
		os.Exit(exitInput)
	}
	defer snaps.Close()

	store, err := artifact.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open artifact database: %v\n", err)
		os.Exit(exitStorage)
	}
	defer store.Close()

	runner := &pipeline.Runner{
		Snapshots: snaps,
		Artifacts: store,
		Model:     model,
		Ruleset:   normalize.DefaultRuleset(),
		Policy:    lifecycle.DefaultPolicy(),
		Workers:   *workers,
		TopN:      *topN,
		OutDir:    *outDir,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := runner.Run(ctx, *state, *year)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		os.Exit(exitCode(err))
	}

	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	s := res.Summary
	fmt.Printf("run %s complete: %s %d model %s\n", res.RunID, s.State, s.Year, model.Version)
	fmt.Printf("artifact %d digest %s\n", res.ArtifactID, res.Digest[:12])
	fmt.Printf("vehicles %d  mean %.3f  median %.3f  p90 %.3f  p99 %.3f\n",
		s.Vehicles, s.Mean, s.Median, s.P90, s.P99)
	if res.BundleDir != "" {
		fmt.Printf("bundle written to %s\n", res.BundleDir)
	}
}

func handleRuns(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBFile, "Path to the artifact database")
	limit := fs.Int("limit", 20, "Number of recent runs to show")
	fs.Parse(args)

	store, err := artifact.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open artifact database: %v\n", err)
		os.Exit(exitStorage)
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list runs: %v\n", err)
		os.Exit(exitStorage)
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return
	}

	fmt.Printf("%-36s  %-5s %-4s  %-8s %-8s %-12s %s\n",
		"RUN", "STATE", "YEAR", "MODEL", "STATUS", "STAGE", "STARTED")
	for _, r := range runs {
		fmt.Printf("%-36s  %-5s %-4d  %-8s %-8s %-12s %s\n",
			r.RunID, r.State, r.Year, r.ModelVersion, r.Status, r.Stage,
			r.StartedAt.Format(time.RFC3339))
		if r.Error != "" {
			fmt.Printf("%38s%s\n", "", r.Error)
		}
	}
}

func handleArtifacts(args []string) {
	if len(args) < 1 {
		printArtifactsUsage()
		os.Exit(exitUsage)
	}

	sub := args[0]
	rest := args[1:]

	switch sub {
	case "list":
		handleArtifactsList(rest)
	case "show":
		handleArtifactsShow(rest)
	case "export":
		handleArtifactsExport(rest)
	case "unlock":
		handleArtifactsUnlock(rest)
	case "help":
		printArtifactsUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown artifacts subcommand: %s\n\n", sub)
		printArtifactsUsage()
		os.Exit(exitUsage)
	}
}

func printArtifactsUsage() {
	fmt.Println(`Usage: lifecycle-report artifacts <subcommand> [options]

Subcommands:
  list     List stored artifacts
  show     Show one artifact's provenance and cohort summary
  export   Rebuild the report bundle from a stored artifact
  unlock   Force-clear a run lock left by a crashed run

Options common to all subcommands:
  -db <path>    Path to the artifact database (default: artifacts.db)`)
}

func handleArtifactsList(args []string) {
	fs := flag.NewFlagSet("artifacts list", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBFile, "Path to the artifact database")
	fs.Parse(args)

	store, err := artifact.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open artifact database: %v\n", err)
		os.Exit(exitStorage)
	}
	defer store.Close()

	metas, err := store.ListArtifacts(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list artifacts: %v\n", err)
		os.Exit(exitStorage)
	}
	if len(metas) == 0 {
		fmt.Println("no artifacts stored")
		return
	}

	fmt.Printf("%4s  %-5s %-4s  %-8s %-12s  %s\n", "ID", "STATE", "YEAR", "MODEL", "DIGEST", "CREATED")
	for _, m := range metas {
		fmt.Printf("%4d  %-5s %-4d  %-8s %-12s  %s\n",
			m.ID, m.State, m.Year, m.ModelVersion, m.Digest[:12],
			m.CreatedAt.Format(time.RFC3339))
	}
}

func handleArtifactsShow(args []string) {
	fs := flag.NewFlagSet("artifacts show", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBFile, "Path to the artifact database")
	state := fs.String("state", "", "Two-letter state code (required)")
	year := fs.Int("year", 0, "Registration year (required)")
	modelVersion := fs.String("model", "", "Model version (defaults to the latest stored)")
	asJSON := fs.Bool("json", false, "Dump the canonical artifact JSON instead of a summary")
	fs.Parse(args)

	if *state == "" || *year == 0 {
		fmt.Fprintln(os.Stderr, "Error: -state and -year are required")
		fs.Usage()
		os.Exit(exitUsage)
	}

	store, err := artifact.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open artifact database: %v\n", err)
		os.Exit(exitStorage)
	}
	defer store.Close()

	ctx := context.Background()
	key := strings.ToUpper(strings.TrimSpace(*state))

	mv := *modelVersion
	if mv == "" {
		mv, err = store.LatestModelVersion(ctx, key, *year)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to resolve model version: %v\n", err)
			os.Exit(exitStorage)
		}
	}

	if *asJSON {
		raw, _, err := store.GetArtifactBytes(ctx, key, *year, mv)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load artifact: %v\n", err)
			os.Exit(exitStorage)
		}
		os.Stdout.Write(raw)
		return
	}

	a, meta, err := store.GetArtifact(ctx, key, *year, mv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load artifact: %v\n", err)
		os.Exit(exitStorage)
	}

	fmt.Printf("artifact %d: %s %d model %s\n", meta.ID, meta.State, meta.Year, meta.ModelVersion)
	fmt.Printf("digest    %s\n", meta.Digest)
	fmt.Printf("created   %s\n", meta.CreatedAt.Format(time.RFC3339))
	fmt.Printf("snapshot  %s\n", a.Provenance.SnapshotID)
	fmt.Printf("ruleset   %s  policy %s\n", a.Provenance.RulesetVersion, a.Provenance.ClassifierPolicy)

	s := a.Cohort
	fmt.Printf("vehicles %d  mean %.3f  median %.3f  p90 %.3f  p99 %.3f\n",
		s.Vehicles, s.Mean, s.Median, s.P90, s.P99)

	t := a.Provenance.Tallies
	fmt.Printf("records %d  rejected %d  events dropped %d  vehicles excluded %d\n",
		t.RecordsIn, t.RejectedTotal, t.EventsExcluded, t.VehiclesExcluded)
}

func handleArtifactsExport(args []string) {
	fs := flag.NewFlagSet("artifacts export", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBFile, "Path to the artifact database")
	state := fs.String("state", "", "Two-letter state code (required)")
	year := fs.Int("year", 0, "Registration year (required)")
	modelVersion := fs.String("model", "", "Model version (defaults to the latest stored)")
	outDir := fs.String("out", "exports", "Directory for the report bundle")
	fs.Parse(args)

	if *state == "" || *year == 0 {
		fmt.Fprintln(os.Stderr, "Error: -state and -year are required")
		fs.Usage()
		os.Exit(exitUsage)
	}

	store, err := artifact.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open artifact database: %v\n", err)
		os.Exit(exitStorage)
	}
	defer store.Close()

	dir, err := pipeline.ExportBundle(context.Background(), store, *outDir, *state, *year, *modelVersion)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
		os.Exit(exitCode(err))
	}
	fmt.Printf("bundle written to %s\n", dir)
}

func handleArtifactsUnlock(args []string) {
	fs := flag.NewFlagSet("artifacts unlock", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBFile, "Path to the artifact database")
	state := fs.String("state", "", "Two-letter state code (required)")
	year := fs.Int("year", 0, "Registration year (required)")
	fs.Parse(args)

	if *state == "" || *year == 0 {
		fmt.Fprintln(os.Stderr, "Error: -state and -year are required")
		fs.Usage()
		os.Exit(exitUsage)
	}

	store, err := artifact.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open artifact database: %v\n", err)
		os.Exit(exitStorage)
	}
	defer store.Close()

	key := strings.ToUpper(strings.TrimSpace(*state))
	holder, err := store.BreakRunLock(context.Background(), key, *year)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to break run lock: %v\n", err)
		os.Exit(exitStorage)
	}
	if holder == "" {
		fmt.Printf("no run lock held for %s %d\n", key, *year)
		return
	}
	fmt.Printf("released run lock for %s %d held by %s\n", key, *year, holder)
}

func handleSnapshot(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	path := fs.String("path", "", "Path to the snapshot database (required)")
	fs.Parse(args)

	if *path == "" {
		fmt.Fprintln(os.Stderr, "Error: -path is required")
		fs.Usage()
		os.Exit(exitUsage)
	}

	snaps, err := snapshot.Open(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open snapshot: %v\n", err)
		os.Exit(exitInput)
	}
	defer snaps.Close()

	info, err := snaps.Info(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read snapshot info: %v\n", err)
		os.Exit(exitInput)
	}

	fmt.Printf("snapshot  %s\n", info.SnapshotID)
	fmt.Printf("partition %s %d\n", info.State, info.Year)
	fmt.Printf("source    %s\n", info.Source)
	fmt.Printf("records   %d\n", info.RecordCount)
	fmt.Printf("created   %s\n", info.CreatedAt)
}

func handleMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBFile, "Path to the artifact database")
	fs.Parse(args)

	artifact.RunMigrateCommand(fs.Args(), *dbPath)
}
