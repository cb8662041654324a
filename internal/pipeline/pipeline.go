// Package pipeline orchestrates one batch run over a snapshot: load,
// normalize, classify, score, aggregate, write. Runs are keyed by
// (state, year), hold the key's run lock for their whole duration, and
// either commit one artifact or record a failure with the stage
// reached. Artifact bytes are a pure function of snapshot and config,
// so re-runs are byte-identical.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/lifecycle.report/internal/artifact"
	"github.com/banshee-data/lifecycle.report/internal/cohort"
	"github.com/banshee-data/lifecycle.report/internal/emissions"
	"github.com/banshee-data/lifecycle.report/internal/equity"
	"github.com/banshee-data/lifecycle.report/internal/lifecycle"
	"github.com/banshee-data/lifecycle.report/internal/monitoring"
	"github.com/banshee-data/lifecycle.report/internal/normalize"
	"github.com/banshee-data/lifecycle.report/internal/scoring"
	"github.com/banshee-data/lifecycle.report/internal/snapshot"
	"github.com/banshee-data/lifecycle.report/internal/survival"
	"github.com/banshee-data/lifecycle.report/internal/timeutil"
)

var logf = monitoring.Prefixed("pipeline")

// Runner wires the pipeline's collaborators. Zero values pick sane
// defaults: Workers falls back to NumCPU, TopN to the cohort default,
// Clock to the real clock. An empty OutDir disables bundle export.
type Runner struct {
	Snapshots *snapshot.Store
	Artifacts *artifact.Store
	Model     scoring.Model
	Ruleset   normalize.Ruleset
	Policy    lifecycle.Policy
	Workers   int
	TopN      int
	OutDir    string
	Clock     timeutil.Clock
}

// Result summarizes a run. Failed runs return the partial Result
// alongside the classifying error so callers can see how far the run
// got; the stage reached and first error are also in the run record.
type Result struct {
	RunID      string           `json:"run_id"`
	State      State            `json:"state"`
	ArtifactID int64            `json:"artifact_id,omitempty"`
	Digest     string           `json:"digest,omitempty"`
	BundleDir  string           `json:"bundle_dir,omitempty"`
	Tallies    artifact.Tallies `json:"tallies"`
	Summary    cohort.Summary   `json:"summary"`
	Warnings   []string         `json:"warnings,omitempty"`
}

// Run executes the pipeline for one (state, year) partition. The
// selector and model are validated before the run lock is taken, so
// config errors never consume the key or leave run records. Afterwards
// each stage completes fully before the next begins, with cooperative
// cancellation checkpoints at every stage boundary.
func (r *Runner) Run(ctx context.Context, state string, year int) (*Result, error) {
	state = strings.ToUpper(strings.TrimSpace(state))
	if err := ValidateSelector(state, year); err != nil {
		return nil, err
	}
	engine, err := scoring.NewEngine(r.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	clock := r.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	topN := r.TopN
	if topN <= 0 {
		topN = cohort.DefaultTopRisk
	}
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	runID := uuid.New().String()
	if err := r.Artifacts.AcquireRunLock(ctx, state, year, runID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	defer func() {
		if err := r.Artifacts.ReleaseRunLock(context.Background(), state, year, runID); err != nil {
			logf("run %s: failed to release lock: %v", runID, err)
		}
	}()

	started := clock.Now()
	if err := r.Artifacts.RecordRunStart(ctx, artifact.Run{
		RunID:        runID,
		State:        state,
		Year:         year,
		ModelVersion: r.Model.Version,
		Stage:        Idle.String(),
		StartedAt:    started,
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	st := Idle
	res := &Result{RunID: runID, State: st}
	var tallies artifact.Tallies

	// fail finalizes the run record with the stage reached and the
	// first fatal error. The run record write uses a background context
	// so cancelled runs still land in the runs table.
	fail := func(err error) (*Result, error) {
		stage := st
		advance(&st, Failed)
		res.State = Failed
		res.Tallies = tallies
		logf("run %s: %s %d failed at %s: %v", runID, state, year, stage, err)
		if endErr := r.Artifacts.RecordRunEnd(context.Background(), artifact.Run{
			RunID:      runID,
			Status:     artifact.RunStatusFailed,
			Stage:      stage.String(),
			Error:      err.Error(),
			FinishedAt: clock.Now(),
		}); endErr != nil {
			logf("run %s: failed to record run end: %v", runID, endErr)
		}
		return res, err
	}

	checkpoint := func() error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: run cancelled entering %s: %w", ErrCompute, st, err)
		}
		return nil
	}

	advance(&st, Loading)
	res.State = st
	if err := checkpoint(); err != nil {
		return fail(err)
	}
	info, err := r.Snapshots.Info(ctx)
	if err != nil {
		return fail(fmt.Errorf("%w: failed to load snapshot info: %w", ErrInput, err))
	}
	if info.State != state || info.Year != year {
		return fail(fmt.Errorf("%w: snapshot %s covers %s %d, run requested %s %d",
			ErrInput, info.SnapshotID, info.State, info.Year, state, year))
	}
	recs, err := r.Snapshots.RawRecords(ctx)
	if err != nil {
		return fail(fmt.Errorf("%w: failed to load raw records: %w", ErrInput, err))
	}
	demo, err := r.Snapshots.Demographics(ctx)
	if err != nil {
		return fail(fmt.Errorf("%w: failed to load demographics: %w", ErrInput, err))
	}
	tallies.RecordsIn = len(recs)
	logf("run %s: loaded %d raw records from %s", runID, len(recs), info.SnapshotID)

	advance(&st, Normalizing)
	res.State = st
	if err := checkpoint(); err != nil {
		return fail(err)
	}
	vehicles, rejections := normalize.Normalize(recs, state, year, r.Ruleset)
	tallies.Rejected = normalize.CountReasons(rejections)
	tallies.RejectedTotal = len(rejections)
	if len(vehicles) == 0 {
		return fail(fmt.Errorf("%w: no vehicle records survived normalization (%d rejected): %w",
			ErrInput, len(rejections), snapshot.ErrNoRecords))
	}
	logf("run %s: normalized %d vehicles, rejected %d records", runID, len(vehicles), len(rejections))

	advance(&st, Classifying)
	res.State = st
	if err := checkpoint(); err != nil {
		return fail(err)
	}
	classified := make([]lifecycle.Classified, 0, len(vehicles))
	for _, v := range vehicles {
		c, drops := lifecycle.Classify(v, r.Policy)
		tallies.EventsExcluded += len(drops)
		if len(c.Events) == 0 {
			tallies.VehiclesExcluded++
			continue
		}
		classified = append(classified, c)
	}
	logf("run %s: classified %d vehicles (%d events dropped, %d vehicles excluded)",
		runID, len(classified), tallies.EventsExcluded, tallies.VehiclesExcluded)

	advance(&st, Scoring)
	res.State = st
	if err := checkpoint(); err != nil {
		return fail(err)
	}
	// Normalize returns vehicles VIN-sorted; landing results by index
	// keeps the artifact order deterministic under any scheduling.
	scores := make([]scoring.VehicleScore, len(classified))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, c := range classified {
		i, c := i, c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scores[i] = engine.Score(c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fail(fmt.Errorf("%w: scoring interrupted: %w", ErrCompute, err))
	}
	for _, s := range scores {
		tallies.ContributionsExcluded += len(s.Exclusions)
	}
	logf("run %s: scored %d vehicles with %d workers", runID, len(scores), workers)

	advance(&st, Aggregating)
	res.State = st
	if err := checkpoint(); err != nil {
		return fail(err)
	}
	summary, err := cohort.Summarize(state, year, scores, topN)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrCompute, err))
	}
	surv := survival.Analyze(year, scores)
	emis := emissions.Estimate(year, scores, 0)
	eq := equity.Map(year, scores, demo, equity.DefaultThreshold)

	a := artifact.New(artifact.Provenance{
		SnapshotID:       info.SnapshotID,
		State:            state,
		Year:             year,
		ModelVersion:     r.Model.Version,
		RulesetVersion:   r.Ruleset.Version,
		ClassifierPolicy: r.Policy.Version,
		Caps:             r.Model.Caps,
		Tallies:          tallies,
	}, summary, scores)
	a.Survival = &surv
	a.Emissions = &emis
	a.Equity = &eq

	canonical, err := artifact.Canonical(a)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrCompute, err))
	}
	digest := artifact.DigestBytes(canonical)

	advance(&st, Writing)
	res.State = st
	if err := checkpoint(); err != nil {
		return fail(err)
	}
	id, created, err := r.Artifacts.SaveArtifact(ctx, a)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrStorage, err))
	}
	if !created {
		logf("run %s: identical artifact already stored (id %d)", runID, id)
	}

	if r.OutDir != "" {
		files, err := bundleFiles(a, canonical, runID, id, digest, started, clock)
		if err != nil {
			return fail(err)
		}
		dir, err := artifact.WriteBundle(r.OutDir, runID, state, year, r.Model.Version, digest, files)
		if err != nil {
			return fail(fmt.Errorf("%w: %w", ErrStorage, err))
		}
		res.BundleDir = dir
		logf("run %s: exported bundle to %s", runID, dir)
	}

	advance(&st, Done)
	res.State = Done
	res.ArtifactID = id
	res.Digest = digest
	res.Tallies = tallies
	res.Summary = summary
	res.Warnings = warnings(tallies)

	if err := r.Artifacts.RecordRunEnd(ctx, artifact.Run{
		RunID:      runID,
		Status:     artifact.RunStatusDone,
		Stage:      Done.String(),
		FinishedAt: clock.Now(),
		ArtifactID: id,
	}); err != nil {
		logf("run %s: failed to record run end: %v", runID, err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("run record not finalized: %v", err))
	}

	logf("run %s: done, artifact %d digest %s", runID, id, digest)
	return res, nil
}

// warnings surfaces non-zero drop counters. Their presence makes a
// successful run a partial success; the CLI prints them to stderr.
func warnings(t artifact.Tallies) []string {
	var w []string
	if t.RejectedTotal > 0 {
		w = append(w, fmt.Sprintf("%d records rejected during normalization", t.RejectedTotal))
	}
	if t.EventsExcluded > 0 {
		w = append(w, fmt.Sprintf("%d events dropped during classification", t.EventsExcluded))
	}
	if t.VehiclesExcluded > 0 {
		w = append(w, fmt.Sprintf("%d vehicles excluded with no classifiable events", t.VehiclesExcluded))
	}
	if t.ContributionsExcluded > 0 {
		w = append(w, fmt.Sprintf("%d contributions excluded for invalid factors", t.ContributionsExcluded))
	}
	return w
}
