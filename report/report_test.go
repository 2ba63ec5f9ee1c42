package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	results "github.com/FrenchMajesty/classifier-results"
	"github.com/FrenchMajesty/classifier-results/pkg/testutil"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// cat: 2 of 3 correct, dog: 1 of 2 correct, bird: no samples
func newReporter(t *testing.T, topN int) *Reporter {
	t.Helper()
	res := testutil.Evaluate(t, []string{"cat", "dog", "bird"},
		testutil.Batch([]int{0, 0, 1}, []int{0, 0, 1}),
		testutil.Batch([]int{1, 0}, []int{0, 1}),
	)
	return New(res, topN)
}

func TestGenerateText(t *testing.T) {
	text := newReporter(t, 0).GenerateText()

	assert.Contains(t, text, "Samples: 5")
	assert.Contains(t, text, "Correct: 3")
	assert.Contains(t, text, "Incorrect: 2")
	assert.Contains(t, text, "Accuracy: 60.00%")
	assert.Contains(t, text, "Accuracies of Top 3 Classes")

	dog := strings.Index(text, "Accuracy of class dog is 50.00")
	cat := strings.Index(text, "Accuracy of class cat is 66.67")
	bird := strings.Index(text, "Accuracy of class bird is N/A")
	require.NotEqual(t, -1, dog)
	require.NotEqual(t, -1, cat)
	require.NotEqual(t, -1, bird)
	assert.Less(t, dog, cat)
	assert.Less(t, cat, bird)
}

func TestGenerateTextTopN(t *testing.T) {
	text := newReporter(t, 1).GenerateText()

	assert.Contains(t, text, "Accuracies of Top 1 Classes")
	assert.Contains(t, text, "Accuracy of class dog is 50.00")
	assert.NotContains(t, text, "Accuracy of class cat")
	assert.NotContains(t, text, "Accuracy of class bird")
}

func TestGenerateJSON(t *testing.T) {
	content, err := newReporter(t, 2).GenerateJSON()
	require.NoError(t, err)

	var decoded struct {
		OverallAccuracy  float64    `json:"overall_accuracy"`
		Classes          []ClassRow `json:"classes"`
		TopMisclassified []ClassRow `json:"top_misclassified"`
		UndefinedPolicy  string     `json:"undefined_policy"`
		Summary          struct {
			Samples  int        `json:"samples"`
			Accuracy []*float64 `json:"accuracy"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(content), &decoded))

	assert.Equal(t, 60.0, decoded.OverallAccuracy)
	assert.Equal(t, "report", decoded.UndefinedPolicy)
	assert.Equal(t, 5, decoded.Summary.Samples)
	assert.Nil(t, decoded.Summary.Accuracy[2])

	require.Len(t, decoded.Classes, 3)
	assert.Nil(t, decoded.Classes[2].Accuracy)
	assert.Equal(t, int64(3), decoded.Classes[0].Samples)
	assert.Equal(t, int64(2), decoded.Classes[0].Correct)

	require.Len(t, decoded.TopMisclassified, 2)
	assert.Equal(t, "dog", decoded.TopMisclassified[0].Name)
	assert.Equal(t, "cat", decoded.TopMisclassified[1].Name)
}

func TestSaveToFileText(t *testing.T) {
	r := newReporter(t, 0)
	path := filepath.Join(t.TempDir(), "report.txt")

	require.NoError(t, r.SaveToFile(path, "text"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, r.GenerateText(), string(data))
}

func TestSaveToFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, newReporter(t, 0).SaveToFile(path, "json"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestSaveToFileCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, newReporter(t, 0).SaveToFile(path, "csv"))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"class", "name", "samples", "correct", "accuracy"},
		{"0", "cat", "3", "2", "66.67"},
		{"1", "dog", "2", "1", "50.00"},
		{"2", "bird", "0", "0", "N/A"},
	}, rows)
}

func TestSaveToFileExcel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, newReporter(t, 0).SaveToFile(path, "xlsx"))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "PerClass", "ConfusionMatrix", "Incorrect"}, f.GetSheetList())

	confusion, err := f.GetRows("ConfusionMatrix")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Labels\\Predicted", "cat", "dog", "bird"},
		{"cat", "2", "1", "0"},
		{"dog", "1", "1", "0"},
		{"bird", "0", "0", "0"},
	}, confusion)

	perClass, err := f.GetRows("PerClass")
	require.NoError(t, err)
	require.Len(t, perClass, 4)
	assert.Equal(t, "N/A", perClass[3][4])

	incorrect, err := f.GetRows("Incorrect")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Index", "Ground Truth", "Predicted"},
		{"3", "cat", "dog"},
		{"4", "dog", "cat"},
	}, incorrect)
}

func TestSaveToFileParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.parquet")
	require.NoError(t, newReporter(t, 0).SaveToFile(path, "parquet"))

	rows, err := parquet.ReadFile[ParquetRow](path)
	require.NoError(t, err)
	require.Len(t, rows, 4+3*2+3*3)

	byKey := make(map[string]ParquetRow)
	for _, row := range rows {
		byKey[row.Type+"/"+row.Class+"/"+row.Metric] = row
	}

	require.NotNil(t, byKey["summary//accuracy"].Value)
	assert.Equal(t, 60.0, *byKey["summary//accuracy"].Value)
	assert.Nil(t, byKey["per_class/bird/accuracy"].Value)
	require.NotNil(t, byKey["confusion/cat/predicted:dog"].Value)
	assert.Equal(t, 1.0, *byKey["confusion/cat/predicted:dog"].Value)
}

func TestSaveToFileUnsupported(t *testing.T) {
	err := newReporter(t, 0).SaveToFile(filepath.Join(t.TempDir(), "report.pdf"), "pdf")
	assert.EqualError(t, err, "unsupported format: pdf")
}

type failingCloser struct{ err error }

func (c failingCloser) Close() error { return c.err }

func TestCloseFile(t *testing.T) {
	diskFull := errors.New("no space left on device")

	var err error
	closeFile(failingCloser{err: diskFull}, &err)
	assert.ErrorIs(t, err, diskFull)

	writeErr := errors.New("short write")
	err = writeErr
	closeFile(failingCloser{err: diskFull}, &err)
	assert.Equal(t, writeErr, err, "the first error wins")

	err = nil
	closeFile(failingCloser{}, &err)
	assert.NoError(t, err)
}

func TestSaveToFileCSVCreateError(t *testing.T) {
	r := newReporter(t, 5)
	err := r.SaveToFile(filepath.Join(t.TempDir(), "missing", "report.csv"), "csv")
	assert.Error(t, err)
}

func TestConfusedGroups(t *testing.T) {
	var m results.ConfusionMatrix
	require.NoError(t, json.Unmarshal([]byte(`[[8,2,0,0],[0,10,0,0],[0,0,9,1],[0,0,3,7]]`), &m))

	assert.Equal(t, [][]int{{0, 1}, {2, 3}}, ConfusedGroups(m, 20))
	assert.Equal(t, [][]int{{2, 3}}, ConfusedGroups(m, 25))
	assert.Nil(t, ConfusedGroups(m, 50))
	assert.Equal(t, [][]int{{0, 1}, {2, 3}}, ConfusedGroups(m, 0))
}

func TestGenerateTextConfusedGroups(t *testing.T) {
	r := newReporter(t, 0)
	assert.Contains(t, r.GenerateText(), "CONFUSED CLASSES (>= 20%)\n  cat, dog\n")

	r.ConfusionRate = 60
	assert.NotContains(t, r.GenerateText(), "CONFUSED CLASSES")
}
