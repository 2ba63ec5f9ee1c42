package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"time"

	results "github.com/FrenchMajesty/classifier-results"
	"github.com/FrenchMajesty/classifier-results/adapters"
	"github.com/FrenchMajesty/classifier-results/adapters/onnx"
	"github.com/FrenchMajesty/classifier-results/adapters/openai"
	"github.com/FrenchMajesty/classifier-results/adapters/pinecone"
	"github.com/FrenchMajesty/classifier-results/adapters/voyage"
	"github.com/FrenchMajesty/classifier-results/datasets/idx"
	"github.com/FrenchMajesty/classifier-results/report"
	"github.com/FrenchMajesty/classifier-results/views"
	"github.com/google/uuid"
)

var reportExtensions = map[string]string{
	"text":    "txt",
	"json":    "json",
	"csv":     "csv",
	"xlsx":    "xlsx",
	"parquet": "parquet",
}

// outputPath names a file <dir>/<prefix>_<timestamp>_<random>.<ext>
func outputPath(dir, prefix, ext string) string {
	timestamp := time.Now().Format("20060102_150405")
	random := uuid.New().String()[:8]
	return filepath.Join(dir, fmt.Sprintf("%s_%s_%s.%s", prefix, timestamp, random, ext))
}

func indexNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = strconv.Itoa(i)
	}
	return names
}

// resolveClassNames uses -classes, then -num-classes, then the labels present in the dataset
func resolveClassNames(opts options, datasetClasses int) ([]string, error) {
	names := parseList(opts.classes)
	switch {
	case len(names) > 0:
	case opts.numClasses > 0:
		names = indexNames(opts.numClasses)
	default:
		names = indexNames(datasetClasses)
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("no classes given and the dataset has no labels")
	}
	if len(names) < datasetClasses {
		return nil, fmt.Errorf("dataset has %d classes but only %d class names were given", datasetClasses, len(names))
	}
	return names, nil
}

// buildModel returns the selected classifier and a function releasing it
func buildModel(opts options, classNames []string) (results.Model, func(), error) {
	switch opts.model {
	case "onnx":
		model, err := adapters.NewONNXModel(nil, onnx.Config{
			ModelPath:  opts.onnxModel,
			NumClasses: len(classNames),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load onnx model: %w", err)
		}
		return model, func() {
			if err := model.Close(); err != nil {
				log.Printf("Error closing onnx model: %v", err)
			}
		}, nil

	case "openai":
		model, err := adapters.NewOpenAIVisionModel(nil, opts.baseURL, openai.VisionConfig{
			ClassNames:  classNames,
			Model:       opts.openaiModel,
			Concurrency: opts.concurrency,
			Mean:        []float64{opts.mean},
			Std:         []float64{opts.std},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create openai model: %w", err)
		}
		return model, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown model backend %q", opts.model)
	}
}

// buildPersistence stores summaries in MySQL when a table is given and in files otherwise
func buildPersistence(ctx context.Context, opts options) (results.SummaryPersistence, func(), error) {
	if opts.mysqlTable == "" {
		return results.NewFileSummaryPersistence(opts.summaryDir), func() {}, nil
	}

	store, err := adapters.NewMySQLSummaryStore(opts.mysqlTable)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open mysql summary store: %w", err)
	}
	if err := store.EnsureTable(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to prepare table %s: %w", opts.mysqlTable, err)
	}

	return store, func() {
		if err := store.Close(); err != nil {
			log.Printf("Error closing mysql summary store: %v", err)
		}
	}, nil
}

// buildEmbedder returns the vector function for exported records. Nil means flattened inputs.
func buildEmbedder(opts options) (pinecone.EmbedFunc, error) {
	switch opts.embed {
	case "", "flatten":
		return nil, nil

	case "voyage":
		embedder, err := adapters.NewVoyageImageEmbedder(nil, voyage.Config{
			Mean:   []float64{opts.mean},
			Std:    []float64{opts.std},
			Logger: log.Printf,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create voyage embedder: %w", err)
		}
		log.Printf("Embedding exported records with %s", embedder.Model())
		return embedder.Embed, nil

	default:
		return nil, fmt.Errorf("unknown embedding %q", opts.embed)
	}
}

func buildSink(opts options) (results.RecordSink, error) {
	if opts.namespace == "" {
		return nil, nil
	}

	embed, err := buildEmbedder(opts)
	if err != nil {
		return nil, err
	}

	sink, err := adapters.NewPineconeRecordSink(nil, nil, opts.namespace, pinecone.Config{Embed: embed})
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone sink: %w", err)
	}
	return sink, nil
}

// saveReports writes one report file per format
func saveReports(res *results.Results, dir string, formats []string, topN int) error {
	reporter := report.New(res, topN)
	for _, format := range formats {
		ext, ok := reportExtensions[format]
		if !ok {
			return fmt.Errorf("unsupported report format: %s", format)
		}
		path := outputPath(dir, "report", ext)
		if err := reporter.SaveToFile(path, format); err != nil {
			return fmt.Errorf("failed to save %s report: %w", format, err)
		}
		log.Printf("Saved %s report to %s", format, path)
	}
	return nil
}

// savePlots writes the plot data of the dataset preview, both prediction grids and the confusion matrix
func savePlots(ctx context.Context, res *results.Results, denorm results.Denormalizer, ds *idx.Dataset, opts options) error {
	grid := views.GridOptions{Rows: opts.gridSize, Cols: opts.gridSize}

	plots := make(map[string]views.PlotData)

	preview, err := views.DataGrid(ctx, ds.Stream(), denorm, res.ClassNames, grid)
	if err != nil {
		return fmt.Errorf("failed to build data grid: %w", err)
	}
	plots[string(views.DataGridPlot)] = preview

	for _, correct := range []bool{true, false} {
		plot, err := views.Grid(res, denorm, correct, grid)
		if errors.Is(err, views.ErrNoRecords) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to build prediction grid: %w", err)
		}
		plots[string(plot.PlotType)] = plot
	}

	plots[string(views.ConfusionMatrix)] = views.ConfusionHeatmap(res)

	for prefix, plot := range plots {
		path := outputPath(opts.outDir, prefix, "json")
		if err := plot.WriteFile(path); err != nil {
			return fmt.Errorf("failed to write %s plot: %w", prefix, err)
		}
		log.Printf("Saved %s plot to %s", prefix, path)
	}
	return nil
}
