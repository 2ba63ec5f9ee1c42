package retry

import (
	"context"
	"math"
	"time"
)

// Config holds the backoff settings shared by every remote adapter
type Config struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultConfig returns the retry configuration used by the remote model and exporters
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		BaseDelay:       200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		BackoffMultiple: 2.0,
	}
}

// Attempt is the outcome of one try of a remote call.
type Attempt[T any] struct {
	Value        T
	StatusCode   int
	ResponseBody []byte
	Err          error
}

// Retryable decides whether an attempt should be repeated
type Retryable func(err error, statusCode int, responseBody []byte) bool

// Logger receives retry progress messages
type Logger func(message string, args ...any)

// Options configures one call to Execute
type Options struct {
	Config    Config
	Retryable Retryable
	Logger    Logger
	Name      string
}

// Delay returns the wait before retry number attempt (zero-based), capped at MaxDelay.
func (c Config) Delay(attempt int) time.Duration {
	multiple := c.BackoffMultiple
	if multiple <= 0 {
		multiple = 1
	}
	delay := time.Duration(float64(c.BaseDelay) * math.Pow(multiple, float64(attempt)))
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

func (o Options) logf(format string, args ...any) {
	if o.Logger != nil {
		o.Logger(format, args...)
	}
}

// Execute calls fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. The context is honored while waiting between attempts.
func Execute[T any](ctx context.Context, opts Options, fn func(attempt int) Attempt[T]) (T, error) {
	var zero T
	var last Attempt[T]
	total := opts.Config.MaxRetries + 1

	for attempt := 0; attempt < total; attempt++ {
		if attempt > 0 {
			delay := opts.Config.Delay(attempt - 1)
			opts.logf("%s retry %d/%d after %v", opts.Name, attempt+1, total, delay)

			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		last = fn(attempt)

		retryable := opts.Retryable != nil && opts.Retryable(last.Err, last.StatusCode, last.ResponseBody)
		if retryable && attempt < total-1 {
			if last.Err != nil {
				opts.logf("%s failed (attempt %d/%d): %v", opts.Name, attempt+1, total, last.Err)
			} else {
				opts.logf("%s returned retryable status %d (attempt %d/%d)", opts.Name, last.StatusCode, attempt+1, total)
			}
			continue
		}

		if last.Err != nil {
			return zero, last.Err
		}
		if retryable {
			break
		}
		if attempt > 0 {
			opts.logf("%s succeeded on attempt %d/%d", opts.Name, attempt+1, total)
		}
		return last.Value, nil
	}

	return zero, &ExhaustedError{
		Name:           opts.Name,
		Attempts:       total,
		LastStatusCode: last.StatusCode,
		LastResponse:   last.ResponseBody,
	}
}

// ExhaustedError is returned when every attempt produced a retryable response without an error
type ExhaustedError struct {
	Name           string
	Attempts       int
	LastStatusCode int
	LastResponse   []byte
}

func (e *ExhaustedError) Error() string {
	return "retry attempts exhausted for " + e.Name
}
