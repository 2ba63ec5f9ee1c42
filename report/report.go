// Package report writes evaluation results as text, JSON, CSV, XLSX or Parquet.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	results "github.com/FrenchMajesty/classifier-results"
	"github.com/FrenchMajesty/classifier-results/internal/dsu"
	"github.com/parquet-go/parquet-go"
	"github.com/xuri/excelize/v2"
)

const (
	// DefaultTopN is the number of least accurate classes listed when none is given
	DefaultTopN = 10

	// DefaultConfusionRate is the percentage of a class's samples that must go
	// to another class before the two are grouped as confused.
	DefaultConfusionRate = 20.0
)

// Reporter formats the results of one evaluation pass
type Reporter struct {
	res  *results.Results
	topN int

	// ConfusionRate is the threshold used for the confused class groups.
	ConfusionRate float64
}

// New creates a reporter. topN <= 0 uses DefaultTopN.
func New(res *results.Results, topN int) *Reporter {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Reporter{res: res, topN: topN, ConfusionRate: DefaultConfusionRate}
}

// ConfusedGroups joins two classes when either one is predicted as the other
// for at least minRate percent of its samples. Only groups of two or more
// classes are returned.
func ConfusedGroups(m results.ConfusionMatrix, minRate float64) [][]int {
	sets := dsu.New(m.Size())
	for gt := 0; gt < m.Size(); gt++ {
		total := m.RowSum(gt)
		if total == 0 {
			continue
		}
		for pred := 0; pred < m.Size(); pred++ {
			if pred == gt {
				continue
			}
			if rate := 100 * float64(m.At(gt, pred)) / float64(total); rate > 0 && rate >= minRate {
				sets.Union(gt, pred)
			}
		}
	}

	var groups [][]int
	for _, g := range sets.Groups() {
		if len(g) > 1 {
			groups = append(groups, g)
		}
	}
	return groups
}

func (r *Reporter) confusedGroupNames() [][]string {
	var named [][]string
	for _, g := range ConfusedGroups(r.res.Confusion, r.ConfusionRate) {
		names := make([]string, len(g))
		for i, c := range g {
			names[i] = r.res.ClassName(c)
		}
		named = append(named, names)
	}
	return named
}

// ClassRow is the per-class line shared by every format
type ClassRow struct {
	Class    int      `json:"class"`
	Name     string   `json:"name"`
	Samples  int64    `json:"samples"`
	Correct  int64    `json:"correct"`
	Accuracy *float64 `json:"accuracy"`
}

func (r *Reporter) classRows() []ClassRow {
	rows := make([]ClassRow, r.res.Confusion.Size())
	for c := range rows {
		rows[c] = ClassRow{
			Class:   c,
			Name:    r.res.ClassName(c),
			Samples: r.res.Confusion.RowSum(c),
			Correct: r.res.Confusion.At(c, c),
		}
		if r.res.Accuracy.Defined(c) {
			v := r.res.Accuracy[c]
			rows[c].Accuracy = &v
		}
	}
	return rows
}

// GenerateText renders the human readable report
func (r *Reporter) GenerateText() string {
	var report strings.Builder

	r.writeHeader(&report)
	r.writeOverview(&report)
	r.writeConfusionMatrix(&report)
	r.writeConfusedGroups(&report)
	r.writeTopMisclassified(&report)

	return report.String()
}

func (r *Reporter) writeHeader(report *strings.Builder) {
	report.WriteString("CLASSIFICATION RESULTS REPORT\n")
	report.WriteString(strings.Repeat("-", 50) + "\n\n")
}

func (r *Reporter) writeOverview(report *strings.Builder) {
	report.WriteString("OVERVIEW\n")
	report.WriteString(fmt.Sprintf("  Run: %s\n", r.res.RunID))
	report.WriteString(fmt.Sprintf("  Samples: %d\n", r.res.Samples()))
	report.WriteString(fmt.Sprintf("  Correct: %d\n", len(r.res.Records.Correct)))
	report.WriteString(fmt.Sprintf("  Incorrect: %d\n", len(r.res.Records.Incorrect)))
	report.WriteString(fmt.Sprintf("  Accuracy: %.2f%%\n", r.res.OverallAccuracy()))
	report.WriteString(fmt.Sprintf("  Duration: %v\n", r.res.FinishedAt.Sub(r.res.StartedAt)))
	report.WriteString("\n")
}

func (r *Reporter) writeConfusionMatrix(report *strings.Builder) {
	report.WriteString("CONFUSION MATRIX\n")

	width := 8
	for _, name := range r.res.ClassNames {
		width = max(width, len(name)+1)
	}

	report.WriteString(fmt.Sprintf("%-*s", width+8, "Labels\\Predicted"))
	for c := 0; c < r.res.Confusion.Size(); c++ {
		report.WriteString(fmt.Sprintf("%*s", width, r.res.ClassName(c)))
	}
	report.WriteString("\n")

	for gt := 0; gt < r.res.Confusion.Size(); gt++ {
		report.WriteString(fmt.Sprintf("%-*s", width+8, r.res.ClassName(gt)))
		for pred := 0; pred < r.res.Confusion.Size(); pred++ {
			report.WriteString(fmt.Sprintf("%*d", width, r.res.Confusion.At(gt, pred)))
		}
		report.WriteString("\n")
	}
	report.WriteString("\n")
}

func (r *Reporter) writeConfusedGroups(report *strings.Builder) {
	groups := r.confusedGroupNames()
	if len(groups) == 0 {
		return
	}
	report.WriteString(fmt.Sprintf("CONFUSED CLASSES (>= %.0f%%)\n", r.ConfusionRate))
	for _, g := range groups {
		report.WriteString("  " + strings.Join(g, ", ") + "\n")
	}
	report.WriteString("\n")
}

func (r *Reporter) writeTopMisclassified(report *strings.Builder) {
	top := r.res.TopMisclassified(r.topN)
	report.WriteString(fmt.Sprintf("Accuracies of Top %d Classes\n", len(top)))
	for _, c := range top {
		if !c.Defined && r.res.UndefinedAccuracy != results.UndefinedZero {
			report.WriteString(fmt.Sprintf("Accuracy of class %s is N/A (no samples)\n", c.Name))
			continue
		}
		report.WriteString(fmt.Sprintf("Accuracy of class %s is %.2f\n", c.Name, c.Value))
	}
}

type jsonReport struct {
	Summary          results.Summary `json:"summary"`
	OverallAccuracy  float64         `json:"overall_accuracy"`
	Classes          []ClassRow      `json:"classes"`
	TopMisclassified []ClassRow      `json:"top_misclassified"`
	ConfusedGroups   [][]string      `json:"confused_groups"`
	UndefinedPolicy  string          `json:"undefined_policy"`
}

// GenerateJSON renders the report as indented JSON
func (r *Reporter) GenerateJSON() (string, error) {
	classes := r.classRows()
	top := r.res.TopMisclassified(r.topN)
	topRows := make([]ClassRow, len(top))
	for i, c := range top {
		topRows[i] = classes[c.Class]
	}

	data, err := json.MarshalIndent(jsonReport{
		Summary:          r.res.Summary(),
		OverallAccuracy:  r.res.OverallAccuracy(),
		Classes:          classes,
		TopMisclassified: topRows,
		ConfusedGroups:   r.confusedGroupNames(),
		UndefinedPolicy:  r.res.UndefinedAccuracy.String(),
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SaveToFile writes the report in one of json, text, csv, xlsx or parquet
func (r *Reporter) SaveToFile(filename, format string) error {
	switch format {
	case "json":
		return r.saveJSON(filename)
	case "text":
		return r.saveText(filename)
	case "csv":
		return r.saveCSV(filename)
	case "xlsx":
		return r.saveExcel(filename)
	case "parquet":
		return r.saveParquet(filename)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func (r *Reporter) saveJSON(filename string) error {
	content, err := r.GenerateJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(filename, []byte(content), 0644)
}

func (r *Reporter) saveText(filename string) error {
	return os.WriteFile(filename, []byte(r.GenerateText()), 0644)
}

func formatAccuracy(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func (r *Reporter) saveCSV(filename string) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer closeFile(file, &err)

	writer := csv.NewWriter(file)

	records := [][]string{
		{"class", "name", "samples", "correct", "accuracy"},
	}
	for _, row := range r.classRows() {
		records = append(records, []string{
			strconv.Itoa(row.Class),
			row.Name,
			strconv.FormatInt(row.Samples, 10),
			strconv.FormatInt(row.Correct, 10),
			formatAccuracy(row.Accuracy),
		})
	}

	if err := writer.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write csv report: %w", err)
	}
	return nil
}

// closeFile closes c and reports its error unless an earlier one is already set
func closeFile(c io.Closer, err *error) {
	if cerr := c.Close(); cerr != nil && *err == nil {
		*err = fmt.Errorf("failed to close report file: %w", cerr)
	}
}

func (r *Reporter) saveExcel(filename string) error {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "Summary"
	perClassSheet := "PerClass"
	confusionSheet := "ConfusionMatrix"
	incorrectSheet := "Incorrect"

	for _, sheet := range []string{summarySheet, perClassSheet, confusionSheet, incorrectSheet} {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}

	if err := r.writeExcelSummary(f, summarySheet); err != nil {
		return err
	}
	if err := r.writeExcelPerClass(f, perClassSheet); err != nil {
		return err
	}
	if err := r.writeExcelConfusion(f, confusionSheet); err != nil {
		return err
	}
	if err := r.writeExcelIncorrect(f, incorrectSheet); err != nil {
		return err
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	return f.SaveAs(filename)
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func (r *Reporter) writeExcelSummary(f *excelize.File, sheet string) error {
	rows := [][]any{
		{"Metric", "Value"},
		{"Run", r.res.RunID.String()},
		{"Samples", r.res.Samples()},
		{"Correct", len(r.res.Records.Correct)},
		{"Incorrect", len(r.res.Records.Incorrect)},
		{"Accuracy", r.res.OverallAccuracy()},
	}
	for i, row := range rows {
		if err := setRow(f, sheet, i+1, row); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reporter) writeExcelPerClass(f *excelize.File, sheet string) error {
	if err := setRow(f, sheet, 1, []any{"Class", "Name", "Samples", "Correct", "Accuracy"}); err != nil {
		return err
	}
	for i, row := range r.classRows() {
		var accuracy any = "N/A"
		if row.Accuracy != nil {
			accuracy = *row.Accuracy
		}
		if err := setRow(f, sheet, i+2, []any{row.Class, row.Name, row.Samples, row.Correct, accuracy}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reporter) writeExcelConfusion(f *excelize.File, sheet string) error {
	header := []any{"Labels\\Predicted"}
	for c := 0; c < r.res.Confusion.Size(); c++ {
		header = append(header, r.res.ClassName(c))
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}

	for gt := 0; gt < r.res.Confusion.Size(); gt++ {
		row := []any{r.res.ClassName(gt)}
		for _, count := range r.res.Confusion.Row(gt) {
			row = append(row, count)
		}
		if err := setRow(f, sheet, gt+2, row); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reporter) writeExcelIncorrect(f *excelize.File, sheet string) error {
	if err := setRow(f, sheet, 1, []any{"Index", "Ground Truth", "Predicted"}); err != nil {
		return err
	}
	for i, rec := range r.res.Records.Incorrect {
		row := []any{rec.Index, r.res.ClassName(rec.GroundTruth), r.res.ClassName(rec.Predicted)}
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

// ParquetRow is one metric of the flattened parquet report
type ParquetRow struct {
	Metric string   `parquet:"metric"`
	Value  *float64 `parquet:"value,optional"`
	Class  string   `parquet:"class,optional"`
	Type   string   `parquet:"type"`
}

func (r *Reporter) parquetRows() []ParquetRow {
	value := func(v float64) *float64 { return &v }

	rows := []ParquetRow{
		{Metric: "samples", Value: value(float64(r.res.Samples())), Type: "summary"},
		{Metric: "correct", Value: value(float64(len(r.res.Records.Correct))), Type: "summary"},
		{Metric: "incorrect", Value: value(float64(len(r.res.Records.Incorrect))), Type: "summary"},
		{Metric: "accuracy", Value: value(r.res.OverallAccuracy()), Type: "summary"},
	}

	for _, row := range r.classRows() {
		rows = append(rows,
			ParquetRow{Metric: "samples", Value: value(float64(row.Samples)), Class: row.Name, Type: "per_class"},
			ParquetRow{Metric: "accuracy", Value: row.Accuracy, Class: row.Name, Type: "per_class"},
		)
	}

	for gt := 0; gt < r.res.Confusion.Size(); gt++ {
		for pred := 0; pred < r.res.Confusion.Size(); pred++ {
			rows = append(rows, ParquetRow{
				Metric: "predicted:" + r.res.ClassName(pred),
				Value:  value(float64(r.res.Confusion.At(gt, pred))),
				Class:  r.res.ClassName(gt),
				Type:   "confusion",
			})
		}
	}
	return rows
}

func (r *Reporter) saveParquet(filename string) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer closeFile(file, &err)

	writer := parquet.NewGenericWriter[ParquetRow](file)
	if _, err := writer.Write(r.parquetRows()); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}
