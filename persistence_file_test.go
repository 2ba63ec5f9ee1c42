package results

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSummary() Summary {
	m := NewConfusionMatrix(3)
	m.add(0, 0)
	m.add(0, 1)
	m.add(1, 1)
	return Summary{
		RunID:      uuid.New(),
		StartedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, 5, 1, 12, 0, 3, 0, time.UTC),
		ClassNames: []string{"cat", "dog", "bird"},
		Samples:    3,
		Correct:    2,
		Incorrect:  1,
		Confusion:  m,
		Accuracy:   AccuracyFromConfusion(m),
	}
}

func TestFileSummaryPersistence_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested")
	p := NewFileSummaryPersistence(dir)

	summary := sampleSummary()
	require.NoError(t, p.Save(ctx, summary))

	_, err := os.Stat(filepath.Join(dir, "run_"+summary.RunID.String()+".json"))
	require.NoError(t, err, "expected summary file to exist")

	loaded, err := p.Load(ctx, summary.RunID)
	require.NoError(t, err)

	assert.Equal(t, summary.RunID, loaded.RunID)
	assert.True(t, summary.StartedAt.Equal(loaded.StartedAt))
	assert.Equal(t, summary.ClassNames, loaded.ClassNames)
	assert.Equal(t, summary.Confusion.Rows(), loaded.Confusion.Rows())
	assert.Equal(t, 50.0, loaded.Accuracy[0])
	assert.True(t, math.IsNaN(loaded.Accuracy[2]), "undefined accuracy should survive as NaN")
}

func TestFileSummaryPersistence_Missing(t *testing.T) {
	p := NewFileSummaryPersistence(t.TempDir())

	_, err := p.Load(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFileSummaryPersistence_Corrupted(t *testing.T) {
	dir := t.TempDir()
	p := NewFileSummaryPersistence(dir)
	id := uuid.New()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "run_"+id.String()+".json"), []byte("{not json"), 0644))

	_, err := p.Load(context.Background(), id)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, os.ErrNotExist))
}

func TestFileSummaryPersistence_DefaultDir(t *testing.T) {
	p := NewFileSummaryPersistence("")
	assert.Equal(t, DefaultSummaryDir, p.dir)
}
