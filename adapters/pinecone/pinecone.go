package pinecone

import (
	"context"
	"fmt"
	"strconv"

	results "github.com/FrenchMajesty/classifier-results"
	"github.com/google/uuid"
	"github.com/pinecone-io/go-pinecone/pinecone"
	"github.com/sourcegraph/conc/pool"
	"google.golang.org/protobuf/types/known/structpb"
)

// Index is the part of *pinecone.IndexConnection the sink uses
type Index interface {
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
}

// Connect opens an index connection scoped to a namespace
func Connect(apiKey, host, namespace string) (*pinecone.IndexConnection, error) {
	client, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone client: %w", err)
	}

	index, err := client.Index(pinecone.NewIndexConnParams{
		Host:      host,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to pinecone index: %w", err)
	}
	return index, nil
}

// Config holds configuration for the RecordSink
type Config struct {
	// BatchSize is the number of vectors per upsert request. If 0, uses 100.
	BatchSize int

	// Concurrency bounds the in-flight upsert requests. If 0, uses 4.
	Concurrency int

	// Embed maps a sample to its vector. If nil, the flattened input is used.
	Embed EmbedFunc
}

// EmbedFunc maps one sample to the vector stored in the index
type EmbedFunc func(ctx context.Context, sample results.Tensor) ([]float32, error)

// RecordSink exports every classified sample of a run to a Pinecone index so
// misclassifications can later be compared with their nearest neighbours.
type RecordSink struct {
	index       Index
	batchSize   int
	concurrency int
	embed       EmbedFunc
}

var _ results.RecordSink = (*RecordSink)(nil)

// NewRecordSink creates a sink writing to index
func NewRecordSink(index Index, cfg Config) *RecordSink {
	s := &RecordSink{
		index:       index,
		batchSize:   100,
		concurrency: 4,
		embed:       flatten,
	}
	if cfg.BatchSize > 0 {
		s.batchSize = cfg.BatchSize
	}
	if cfg.Concurrency > 0 {
		s.concurrency = cfg.Concurrency
	}
	if cfg.Embed != nil {
		s.embed = cfg.Embed
	}
	return s
}

// VectorID is the id of a record in the index
func VectorID(runID uuid.UUID, index int) string {
	return runID.String() + ":" + strconv.Itoa(index)
}

// Export upserts the correct and incorrect records of a run. Records are
// embedded inside the upload workers so remote embedders run concurrently.
func (s *RecordSink) Export(ctx context.Context, res *results.Results) error {
	var records []results.ClassificationRecord
	records = append(records, res.Records.Correct...)
	records = append(records, res.Records.Incorrect...)

	p := pool.New().WithMaxGoroutines(s.concurrency).WithContext(ctx).WithCancelOnError()
	for start := 0; start < len(records); start += s.batchSize {
		chunk := records[start:min(start+s.batchSize, len(records))]
		p.Go(func(ctx context.Context) error {
			vectors := make([]*pinecone.Vector, 0, len(chunk))
			for _, rec := range chunk {
				v, err := s.vector(ctx, res, rec)
				if err != nil {
					return err
				}
				vectors = append(vectors, v)
			}
			if _, err := s.index.UpsertVectors(ctx, vectors); err != nil {
				return fmt.Errorf("failed to upsert %d vectors: %w", len(vectors), err)
			}
			return nil
		})
	}
	return p.Wait()
}

func (s *RecordSink) vector(ctx context.Context, res *results.Results, rec results.ClassificationRecord) (*pinecone.Vector, error) {
	values, err := s.embed(ctx, rec.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to embed sample %d: %w", rec.Index, err)
	}

	metadata, err := structpb.NewStruct(map[string]any{
		"run_id":            res.RunID.String(),
		"index":             rec.Index,
		"predicted":         rec.Predicted,
		"ground_truth":      rec.GroundTruth,
		"predicted_name":    res.ClassName(rec.Predicted),
		"ground_truth_name": res.ClassName(rec.GroundTruth),
		"correct":           rec.Correct(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build metadata for sample %d: %w", rec.Index, err)
	}

	return &pinecone.Vector{
		Id:       VectorID(res.RunID, rec.Index),
		Values:   values,
		Metadata: metadata,
	}, nil
}

// Filter restricts a similarity query. Nil fields are not filtered on.
type Filter struct {
	RunID       *uuid.UUID
	Correct     *bool
	GroundTruth *int
	Predicted   *int
}

func (f Filter) toStruct() (*structpb.Struct, error) {
	conditions := map[string]any{}
	if f.RunID != nil {
		conditions["run_id"] = map[string]any{"$eq": f.RunID.String()}
	}
	if f.Correct != nil {
		conditions["correct"] = map[string]any{"$eq": *f.Correct}
	}
	if f.GroundTruth != nil {
		conditions["ground_truth"] = map[string]any{"$eq": *f.GroundTruth}
	}
	if f.Predicted != nil {
		conditions["predicted"] = map[string]any{"$eq": *f.Predicted}
	}
	if len(conditions) == 0 {
		return nil, nil
	}
	return structpb.NewStruct(conditions)
}

// Match is a stored sample returned by SimilarSamples
type Match struct {
	ID          string
	Score       float32
	RunID       string
	Index       int
	Predicted   int
	GroundTruth int
	Correct     bool
}

// SimilarSamples returns the topK stored samples closest to input
func (s *RecordSink) SimilarSamples(ctx context.Context, input results.Tensor, topK int, filter Filter) ([]Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	metadataFilter, err := filter.toStruct()
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata filter: %w", err)
	}

	vector, err := s.embed(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	resp, err := s.index.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		MetadataFilter:  metadataFilter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		match := Match{ID: m.Vector.Id, Score: m.Score}
		if m.Vector.Metadata != nil {
			fields := m.Vector.Metadata.AsMap()
			match.RunID, _ = fields["run_id"].(string)
			match.Index = intField(fields, "index")
			match.Predicted = intField(fields, "predicted")
			match.GroundTruth = intField(fields, "ground_truth")
			match.Correct, _ = fields["correct"].(bool)
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// intField reads a number stored in metadata, which comes back as float64
func intField(fields map[string]any, key string) int {
	v, _ := fields[key].(float64)
	return int(v)
}

func flatten(_ context.Context, t results.Tensor) ([]float32, error) {
	return append([]float32(nil), t.Data...), nil
}
