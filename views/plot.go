// Package views turns evaluation results into render-ready plot payloads.
//
// Every view is a PlotData value in the JSON format consumed by the plotting
// sidecar. Views only read results; none of them runs the model again.
package views

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
)

var timeNow = time.Now

// ErrNoRecords is returned when a view has nothing to show, e.g. the
// incorrect grid of a run without mistakes.
var ErrNoRecords = errors.New("no records to plot")

// PlotType identifies how a payload should be rendered
type PlotType string

const (
	CorrectGrid      PlotType = "correct_grid"
	IncorrectGrid    PlotType = "incorrect_grid"
	ConfusionMatrix  PlotType = "confusion_matrix"
	GradCAMOverlay   PlotType = "gradcam"
	LossAccuracyPlot PlotType = "loss_accuracy"
	CombinedPlot     PlotType = "combined"
	DataGridPlot     PlotType = "data_grid"
)

// PlotData is the JSON document handed to the renderer
type PlotData struct {
	PlotType  PlotType  `json:"plot_type"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	RunID     uuid.UUID `json:"run_id,omitempty"`

	// Series holds single-panel chart data such as heatmaps and curves.
	Series []SeriesData `json:"series,omitempty"`

	// Layout and Panels describe multi-panel figures.
	Layout *Layout    `json:"layout,omitempty"`
	Panels []Panel    `json:"panels,omitempty"`
	Config PlotConfig `json:"config"`

	Metrics map[string]any `json:"metrics,omitempty"`
}

// Layout is a rows x cols arrangement of panels
type Layout struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// Panel is one cell of a multi-panel figure
type Panel struct {
	Row     int          `json:"row"`
	Col     int          `json:"col"`
	Title   string       `json:"title,omitempty"`
	Caption string       `json:"caption,omitempty"`
	Image   *ImageData   `json:"image,omitempty"`
	Series  []SeriesData `json:"series,omitempty"`
}

// ImageData is an image in height, width, channel order with values in display range
type ImageData struct {
	Height    int       `json:"height"`
	Width     int       `json:"width"`
	Channels  int       `json:"channels"`
	Grayscale bool      `json:"grayscale"`
	Pixels    []float32 `json:"pixels"`
}

// SeriesData is a single data series
type SeriesData struct {
	Name  string         `json:"name"`
	Type  string         `json:"type"` // "line", "heatmap"
	Data  []DataPoint    `json:"data"`
	Style map[string]any `json:"style,omitempty"`
}

// DataPoint is a single point of a series
type DataPoint struct {
	X     any    `json:"x"`
	Y     any    `json:"y"`
	Z     any    `json:"z,omitempty"`
	Label string `json:"label,omitempty"`
}

// PlotConfig contains renderer options
type PlotConfig struct {
	XAxisLabel    string         `json:"x_axis_label,omitempty"`
	YAxisLabel    string         `json:"y_axis_label,omitempty"`
	ShowLegend    bool           `json:"show_legend"`
	Legend        []string       `json:"legend,omitempty"`
	Width         int            `json:"width"`
	Height        int            `json:"height"`
	CustomOptions map[string]any `json:"custom_options,omitempty"`
}

// ToJSON converts plot data to an indented JSON string
func (pd PlotData) ToJSON() (string, error) {
	jsonData, err := json.MarshalIndent(pd, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal plot data to JSON: %w", err)
	}
	return string(jsonData), nil
}

// WriteFile writes the plot as JSON to path
func (pd PlotData) WriteFile(path string) error {
	data, err := pd.ToJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write plot to %s: %w", path, err)
	}
	return nil
}

// clampGrid limits a requested grid to a square that n items can fill
func clampGrid(n, rows, cols int) (int, int) {
	side := int(math.Sqrt(float64(n)))
	cols = min(side, cols)
	rows = min(cols, rows)
	return rows, cols
}
