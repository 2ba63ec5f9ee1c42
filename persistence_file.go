package results

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// DefaultSummaryDir is the default directory for file-based summary persistence
const DefaultSummaryDir = "./eval_runs"

// FileSummaryPersistence implements SummaryPersistence with one JSON file per run
type FileSummaryPersistence struct {
	dir string
}

// NewFileSummaryPersistence creates a new file-based summary persistence handler
func NewFileSummaryPersistence(dir string) *FileSummaryPersistence {
	if dir == "" {
		dir = DefaultSummaryDir
	}
	return &FileSummaryPersistence{
		dir: dir,
	}
}

func (f *FileSummaryPersistence) path(runID uuid.UUID) string {
	return filepath.Join(f.dir, "run_"+runID.String()+".json")
}

// Save writes the summary to <dir>/run_<id>.json
func (f *FileSummaryPersistence) Save(ctx context.Context, summary Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", f.dir, err)
	}

	path := f.path(summary.RunID)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary to file %s: %w", path, err)
	}

	return nil
}

// Load reads the summary of a run. A missing file is reported as os.ErrNotExist.
func (f *FileSummaryPersistence) Load(ctx context.Context, runID uuid.UUID) (*Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := f.path(runID)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read summary from file %s: %w", path, err)
	}

	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary from file %s: %w", path, err)
	}

	return &summary, nil
}
