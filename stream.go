package results

import (
	"context"
	"io"
)

// SliceStream replays a fixed list of batches once
type SliceStream struct {
	batches []Batch
	next    int
}

// NewSliceStream returns a stream over the given batches.
func NewSliceStream(batches ...Batch) *SliceStream {
	return &SliceStream{batches: batches}
}

// Next implements BatchStream
func (s *SliceStream) Next(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if s.next >= len(s.batches) {
		return Batch{}, io.EOF
	}
	b := s.batches[s.next]
	s.next++
	return b, nil
}

// First reads a single batch from a stream, as when previewing a loader.
func First(ctx context.Context, stream BatchStream) (Batch, error) {
	b, err := stream.Next(ctx)
	if err == io.EOF {
		return Batch{}, ErrEmptyStream
	}
	return b, err
}
