package clock

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNTP_UsesServerTime(t *testing.T) {
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewNTP("time.example")
	c.query = func(host string) (time.Time, error) {
		assert.Equal(t, "time.example", host)
		return want, nil
	}

	assert.Equal(t, want, c.Now())
}

func TestNTP_FallsBackToLocalClock(t *testing.T) {
	var warnings int
	c := NewNTP("unreachable.example")
	c.Logger = func(format string, args ...any) { warnings++ }
	c.query = func(host string) (time.Time, error) {
		return time.Time{}, errors.New("timeout")
	}

	before := time.Now()
	got := c.Now()
	c.Now()

	assert.False(t, got.Before(before))
	assert.Equal(t, 1, warnings, "fallback should only be logged once")
}

func TestSystem_Now(t *testing.T) {
	before := time.Now()
	assert.False(t, System{}.Now().Before(before))
}
