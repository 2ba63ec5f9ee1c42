// Command evaluate runs a trained image classifier over an IDX test set and
// writes the confusion matrix, per-class accuracies, reports and plots.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	results "github.com/FrenchMajesty/classifier-results"
	"github.com/FrenchMajesty/classifier-results/datasets/idx"
	"github.com/FrenchMajesty/classifier-results/internal/clock"
	"github.com/joho/godotenv"
)

type options struct {
	model       string
	onnxModel   string
	openaiModel string
	baseURL     string
	concurrency int

	images       string
	labels       string
	imagesSHA256 string
	labelsSHA256 string
	batchSize    int
	limit        int
	mean         float64
	std          float64

	numClasses int
	classes    string
	undefined  string
	topN       int

	outDir     string
	formats    string
	plots      bool
	gridSize   int
	stats      bool
	summaryDir string
	mysqlTable string
	namespace  string
	embed      string
	ntpServer  string
}

func parseFlags() options {
	var o options

	flag.StringVar(&o.model, "model", "onnx", "classifier backend: onnx or openai")
	flag.StringVar(&o.onnxModel, "onnx-model", "model.onnx", "path of the exported ONNX classifier")
	flag.StringVar(&o.openaiModel, "openai-model", "", "chat model used by the openai backend")
	flag.StringVar(&o.baseURL, "base-url", "", "OpenAI compatible API base URL")
	flag.IntVar(&o.concurrency, "concurrency", 4, "in-flight requests per batch for the openai backend")

	flag.StringVar(&o.images, "images", "t10k-images-idx3-ubyte.gz", "IDX image file")
	flag.StringVar(&o.labels, "labels", "t10k-labels-idx1-ubyte.gz", "IDX label file")
	flag.StringVar(&o.imagesSHA256, "images-sha256", "", "expected SHA-256 of the image file")
	flag.StringVar(&o.labelsSHA256, "labels-sha256", "", "expected SHA-256 of the label file")
	flag.IntVar(&o.batchSize, "batch-size", idx.DefaultBatchSize, "samples per batch")
	flag.IntVar(&o.limit, "limit", 0, "evaluate only the first N samples")
	flag.Float64Var(&o.mean, "mean", idx.MNISTMean, "normalization mean")
	flag.Float64Var(&o.std, "std", idx.MNISTStd, "normalization standard deviation")

	flag.IntVar(&o.numClasses, "num-classes", 0, "number of classes when -classes is not given; 0 uses the dataset labels")
	flag.StringVar(&o.classes, "classes", "", "comma separated class names in index order")
	flag.StringVar(&o.undefined, "undefined", "report", "ranking of classes without samples: report, skip or zero")
	flag.IntVar(&o.topN, "top", 10, "number of least accurate classes to report")

	flag.StringVar(&o.outDir, "out", "eval_output", "directory for reports and plots")
	flag.StringVar(&o.formats, "report", "text,json", "comma separated report formats: text, json, csv, xlsx, parquet")
	flag.BoolVar(&o.plots, "plots", false, "write plot data for grids and the confusion matrix")
	flag.IntVar(&o.gridSize, "grid", 6, "rows and columns of image grids")
	flag.BoolVar(&o.stats, "stats", false, "compute per-channel mean and std of the dataset first")
	flag.StringVar(&o.summaryDir, "summary-dir", results.DefaultSummaryDir, "directory for run summaries when MySQL is not used")
	flag.StringVar(&o.mysqlTable, "mysql-table", "", "store run summaries in this MySQL table (DB_* environment)")
	flag.StringVar(&o.namespace, "pinecone-namespace", "", "export records to this Pinecone namespace (PINECONE_* environment)")
	flag.StringVar(&o.embed, "pinecone-embed", "flatten", "vectors exported to Pinecone: flatten or voyage (VOYAGEAI_API_KEY environment)")
	flag.StringVar(&o.ntpServer, "ntp", "", "timestamp runs with this NTP server")

	flag.Parse()
	return o
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	opts := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, opts options) error {
	policy, err := results.ParseUndefinedPolicy(opts.undefined)
	if err != nil {
		return err
	}

	ds, err := idx.Load(idx.Config{
		ImagesPath:   opts.images,
		LabelsPath:   opts.labels,
		ImagesSHA256: opts.imagesSHA256,
		LabelsSHA256: opts.labelsSHA256,
		BatchSize:    opts.batchSize,
		Limit:        opts.limit,
		Mean:         opts.mean,
		Std:          opts.std,
	})
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	log.Printf("Loaded %d images of %dx%d", ds.Len(), ds.Rows, ds.Cols)

	if opts.stats {
		stats, err := results.ComputeChannelStats(ctx, ds.Stream())
		if err != nil {
			return fmt.Errorf("failed to compute dataset statistics: %w", err)
		}
		log.Printf("Dataset mean %v, std %v over %d batches", stats.Mean, stats.Std, stats.Batches)
	}

	classNames, err := resolveClassNames(opts, ds.NumClasses())
	if err != nil {
		return err
	}

	model, closeModel, err := buildModel(opts, classNames)
	if err != nil {
		return err
	}
	defer closeModel()

	persistence, closePersistence, err := buildPersistence(ctx, opts)
	if err != nil {
		return err
	}
	defer closePersistence()

	sink, err := buildSink(opts)
	if err != nil {
		return err
	}

	var runClock results.Clock
	if opts.ntpServer != "" {
		ntpClock := clock.NewNTP(opts.ntpServer)
		ntpClock.Logger = log.Printf
		runClock = ntpClock
	}

	evaluator, err := results.NewEvaluator(results.Config{
		Model:             model,
		ClassNames:        classNames,
		Mean:              []float64{opts.mean},
		Std:               []float64{opts.std},
		UndefinedAccuracy: policy,
		Persistence:       persistence,
		Sink:              sink,
		Clock:             runClock,
	})
	if err != nil {
		return fmt.Errorf("failed to create evaluator: %w", err)
	}

	res, err := evaluator.Run(ctx, ds.Stream())
	var postErr *results.PostProcessError
	if errors.As(err, &postErr) {
		log.Printf("Results are complete but %v", postErr)
	} else if err != nil {
		return err
	}

	printSummary(res, opts.topN)

	if err := os.MkdirAll(opts.outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := saveReports(res, opts.outDir, parseList(opts.formats), opts.topN); err != nil {
		return err
	}

	if opts.plots {
		if err := savePlots(ctx, res, evaluator.Denormalizer(), ds, opts); err != nil {
			return err
		}
	}

	return nil
}

func printSummary(res *results.Results, topN int) {
	fmt.Printf("Run %s\n", res.RunID)
	fmt.Printf("Correct: %d, Incorrect: %d, Accuracy: %.2f%%\n",
		len(res.Records.Correct), len(res.Records.Incorrect), res.OverallAccuracy())

	top := res.TopMisclassified(topN)
	fmt.Printf("Accuracies of Top %d Classes\n", len(top))
	for _, c := range top {
		if !c.Defined && res.UndefinedAccuracy != results.UndefinedZero {
			fmt.Printf("Accuracy of class %s is N/A\n", c.Name)
			continue
		}
		fmt.Printf("Accuracy of class %s is %.2f\n", c.Name, c.Value)
	}
}

func parseList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
