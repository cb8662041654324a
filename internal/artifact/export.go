package artifact

import (
	"fmt"
	"os"
	"path/filepath"
)

// BundleFile is one file of an export bundle.
type BundleFile struct {
	Name string
	Data []byte
}

// BundleName is the export directory name for a key.
func BundleName(state string, year int, modelVersion string) string {
	return fmt.Sprintf("%s_%d_%s", state, year, modelVersion)
}

// WriteBundle writes an export bundle under outDir. Files land in a
// .tmp-<runID> staging directory first and move to the final name in one
// rename, so a crash never leaves a partial bundle at the final path.
//
// digest must be the canonical digest of the bundle's artifact.json. An
// existing bundle with the same digest is replaced (its bytes are
// identical anyway); a different digest returns ErrArtifactConflict.
func WriteBundle(outDir, runID string, state string, year int, modelVersion, digest string, files []BundleFile) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	final := filepath.Join(outDir, BundleName(state, year, modelVersion))
	if existing, err := os.ReadFile(filepath.Join(final, "artifact.json")); err == nil {
		if DigestBytes(existing) != digest {
			return "", fmt.Errorf("%w: bundle %s holds a different artifact", ErrArtifactConflict, final)
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to inspect existing bundle: %w", err)
	}

	tmp := filepath.Join(outDir, ".tmp-"+runID)
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	for _, f := range files {
		if err := os.WriteFile(filepath.Join(tmp, f.Name), f.Data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
	}

	if err := os.RemoveAll(final); err != nil {
		return "", fmt.Errorf("failed to clear existing bundle: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("failed to commit bundle: %w", err)
	}
	return final, nil
}
