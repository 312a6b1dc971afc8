// Package sqlitepath resolves where fnindex keeps its SQLite databases.
package sqlitepath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/fnindex/pkg/dotdir"
)

const (
	// RecordsFile holds canonical function records.
	RecordsFile = "fnindex.db"

	// VectorsFile holds view vectors for the sqlite vector store.
	VectorsFile = "vectors.db"
)

// ResolveSQLitePath returns override when set, then the first existing
// candidate database named file, and finally a new path inside the
// resolved (or created) .fnindex/ directory.
func ResolveSQLitePath(override, configDir, file string) (string, error) {
	if override != "" {
		return override, nil
	}

	for _, candidate := range sqliteCandidates(file) {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	dir, err := dotdir.NewManager().Ensure(configDir)
	if err != nil {
		return "", fmt.Errorf("resolving SQLite path: %w", err)
	}
	return filepath.Join(dir, file), nil
}

func sqliteCandidates(file string) []string {
	candidates := []string{
		file,
		filepath.Join(".fnindex", file),
	}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".fnindex", file))
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		candidates = append([]string{filepath.Join(xdgHome, "fnindex", file)}, candidates...)
	}

	return candidates
}
