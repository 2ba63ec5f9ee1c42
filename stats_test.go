package results

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imageBatch(t *testing.T, n, c, h, w int, fill func(s, ch, i int) float32) Batch {
	t.Helper()
	data := make([]float32, 0, n*c*h*w)
	for s := 0; s < n; s++ {
		for ch := 0; ch < c; ch++ {
			for i := 0; i < h*w; i++ {
				data = append(data, fill(s, ch, i))
			}
		}
	}
	inputs, err := NewTensor(data, n, c, h, w)
	require.NoError(t, err)
	return Batch{Inputs: inputs, Labels: make([]int, n)}
}

func TestComputeChannelStats(t *testing.T) {
	// channel 0 is constant, channel 1 alternates 0 and 2
	fill := func(s, ch, i int) float32 {
		if ch == 0 {
			return 3
		}
		return float32(2 * (i % 2))
	}
	stream := NewSliceStream(
		imageBatch(t, 2, 2, 2, 2, fill),
		imageBatch(t, 2, 2, 2, 2, fill),
	)

	stats, err := ComputeChannelStats(context.Background(), stream)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Batches)
	assert.Equal(t, []int{2, 2, 2}, stats.SampleShape)
	assert.InDelta(t, 3.0, stats.Mean[0], 1e-9)
	assert.InDelta(t, 0.0, stats.Std[0], 1e-9)
	assert.InDelta(t, 1.0, stats.Mean[1], 1e-9)
	// 8 values, four 0s and four 2s: unbiased variance 8/7
	assert.InDelta(t, math.Sqrt(8.0/7.0), stats.Std[1], 1e-9)
}

func TestComputeChannelStats_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := ComputeChannelStats(ctx, NewSliceStream())
	assert.True(t, errors.Is(err, ErrEmptyStream))

	flat, _ := NewTensor(make([]float32, 4), 2, 2)
	_, err = ComputeChannelStats(ctx, NewSliceStream(Batch{Inputs: flat}))
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	zero := func(int, int, int) float32 { return 0 }
	_, err = ComputeChannelStats(ctx, NewSliceStream(
		imageBatch(t, 1, 3, 1, 1, zero),
		imageBatch(t, 1, 1, 1, 1, zero),
	))
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestSliceStream(t *testing.T) {
	ctx := context.Background()
	inputs, _ := NewTensor([]float32{1}, 1, 1)
	stream := NewSliceStream(Batch{Inputs: inputs, Labels: []int{0}})

	b, err := First(ctx, stream)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, b.Labels)

	_, err = stream.Next(ctx)
	assert.Equal(t, io.EOF, err)

	_, err = First(ctx, stream)
	assert.True(t, errors.Is(err, ErrEmptyStream))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewSliceStream(Batch{}).Next(cancelled)
	assert.True(t, errors.Is(err, context.Canceled))
}
