package results

import (
	"fmt"
	"log"
	"strconv"

	"github.com/FrenchMajesty/classifier-results/internal/clock"
)

// Config holds configuration for the Evaluator
type Config struct {
	// Model is evaluated by every pass. Required.
	Model Model

	// NumClasses is the number of classes C. If 0, uses len(ClassNames).
	NumClasses int

	// ClassNames labels classes in reports. If empty, classes are named by index.
	ClassNames []string

	// Mean and Std are the per-channel normalization applied by the loader.
	// They are only used to denormalize images for display.
	Mean []float64
	Std  []float64

	// UndefinedAccuracy decides how classes with no ground-truth samples are ranked.
	UndefinedAccuracy UndefinedPolicy

	// Persistence stores the summary of every completed pass. Optional.
	Persistence SummaryPersistence

	// Sink receives the records of every completed pass. Optional.
	Sink RecordSink

	// Clock timestamps runs. If nil, uses the system clock.
	Clock Clock

	// Logger receives progress messages. If nil, uses log.Printf.
	Logger func(format string, args ...any)
}

// applyDefaults fills in default values for unset config fields
func (c *Config) applyDefaults() {
	if c.NumClasses == 0 {
		c.NumClasses = len(c.ClassNames)
	}

	if len(c.ClassNames) == 0 {
		c.ClassNames = make([]string, c.NumClasses)
		for i := range c.ClassNames {
			c.ClassNames[i] = strconv.Itoa(i)
		}
	}

	if c.Clock == nil {
		c.Clock = clock.System{}
	}

	if c.Logger == nil {
		c.Logger = log.Printf
	}
}

// validate checks the fields that have no sensible default
func (c *Config) validate() error {
	if c.Model == nil {
		return fmt.Errorf("model is required")
	}
	if c.NumClasses <= 0 {
		return fmt.Errorf("number of classes must be positive, got %d", c.NumClasses)
	}
	if len(c.ClassNames) != c.NumClasses {
		return fmt.Errorf("got %d class names for %d classes", len(c.ClassNames), c.NumClasses)
	}
	if len(c.Mean) != len(c.Std) {
		return fmt.Errorf("normalization mean has %d channels but std has %d", len(c.Mean), len(c.Std))
	}
	return nil
}

func className(names []string, c int) string {
	if c >= 0 && c < len(names) {
		return names[c]
	}
	return strconv.Itoa(c)
}
