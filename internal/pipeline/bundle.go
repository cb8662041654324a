package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/lifecycle.report/internal/artifact"
	"github.com/banshee-data/lifecycle.report/internal/report"
	"github.com/banshee-data/lifecycle.report/internal/timeutil"
	"github.com/banshee-data/lifecycle.report/internal/version"
)

// runMeta is the run.json bundle sidecar, the only bundle file carrying
// timestamps.
type runMeta struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	ArtifactID int64  `json:"artifact_id"`
	Digest     string `json:"digest"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	Tool       string `json:"tool"`
}

// renderFiles produces the deterministic bundle files, each a pure
// function of the artifact's canonical bytes.
func renderFiles(a *artifact.Artifact, canonical []byte) ([]artifact.BundleFile, error) {
	prio, err := report.PriorityCSV(a.Cohort)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to render priority list: %w", ErrCompute, err)
	}
	targets, err := report.EmissionsCSV(a.Emissions)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to render emissions targets: %w", ErrCompute, err)
	}
	eq, err := report.EquityCSV(a.Equity)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to render equity report: %w", ErrCompute, err)
	}
	coh, err := report.CohortCSV(a.Cohort)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to render cohort summary: %w", ErrCompute, err)
	}
	png, err := report.DistributionPNG(a.Vehicles)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to render score distribution: %w", ErrCompute, err)
	}
	dash, err := report.DashboardHTML(a)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to render dashboard: %w", ErrCompute, err)
	}

	return []artifact.BundleFile{
		{Name: "artifact.json", Data: canonical},
		{Name: "cohort_summary.csv", Data: coh},
		{Name: "priority_list.csv", Data: prio},
		{Name: "emissions_targets.csv", Data: targets},
		{Name: "equity_report.csv", Data: eq},
		{Name: "regulatory_report.txt", Data: report.Regulatory(a)},
		{Name: "score_distribution.png", Data: png},
		{Name: "dashboard.html", Data: dash},
	}, nil
}

// bundleFiles assembles the full run bundle: the deterministic renders
// plus the run.json sidecar.
func bundleFiles(a *artifact.Artifact, canonical []byte, runID string, artifactID int64, digest string, started time.Time, clock timeutil.Clock) ([]artifact.BundleFile, error) {
	files, err := renderFiles(a, canonical)
	if err != nil {
		return nil, err
	}

	meta, err := json.MarshalIndent(runMeta{
		RunID:      runID,
		Status:     artifact.RunStatusDone,
		ArtifactID: artifactID,
		Digest:     digest,
		StartedAt:  started.UTC().Format(time.RFC3339),
		FinishedAt: clock.Now().UTC().Format(time.RFC3339),
		Tool:       version.String(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal run metadata: %w", ErrCompute, err)
	}
	meta = append(meta, '\n')

	return append(files, artifact.BundleFile{Name: "run.json", Data: meta}), nil
}

// ExportBundle re-renders the deterministic bundle files from the
// stored artifact bytes and writes them to outDir. An empty
// modelVersion resolves to the latest stored artifact for the key.
// run.json is not reproduced; it belongs to the run that produced the
// artifact.
func ExportBundle(ctx context.Context, store *artifact.Store, outDir, state string, year int, modelVersion string) (string, error) {
	state = strings.ToUpper(strings.TrimSpace(state))
	if modelVersion == "" {
		mv, err := store.LatestModelVersion(ctx, state, year)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrStorage, err)
		}
		modelVersion = mv
	}

	canonical, meta, err := store.GetArtifactBytes(ctx, state, year, modelVersion)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorage, err)
	}
	a, err := artifact.Decode(canonical)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorage, err)
	}

	files, err := renderFiles(a, canonical)
	if err != nil {
		return "", err
	}
	dir, err := artifact.WriteBundle(outDir, "export-"+meta.Digest[:8], state, year, modelVersion, meta.Digest, files)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return dir, nil
}
