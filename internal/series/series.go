// Package series provides validation and diagnostics for two-column
// (time, oxygen) respirometry traces before rate analysis runs.
package series

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ErrMalformedInput indicates the raw series cannot be analyzed at all:
// mismatched columns, fewer than 2 rows, non-finite values, unsorted time,
// or fewer than 2 distinct timestamps.
var ErrMalformedInput = errors.New("malformed input series")

// relStepTolerance is the relative tolerance used when deciding whether all
// time steps are equal. Steps within this fraction of the median step count
// as regular.
const relStepTolerance = 1e-6

// gapFactor marks a time step as a gap when it exceeds this multiple of the
// median step.
const gapFactor = 2.0

// Series is a validated, immutable (time, value) trace. Times are
// non-decreasing; ties are tolerated but counted in DuplicateTimes.
type Series struct {
	Times  []float64
	Values []float64

	// Irregular is set when time deltas are not all equal within tolerance.
	// Downstream width-as-row-count requests are then approximate and
	// callers should prefer explicit time-based windowing.
	Irregular bool

	// DuplicateTimes counts zero-length time steps.
	DuplicateTimes int

	// Gaps counts time steps larger than gapFactor times the median step.
	Gaps int

	MinStep    float64
	MaxStep    float64
	MedianStep float64
	MeanValue  float64
}

// Len returns the number of samples.
func (s *Series) Len() int {
	return len(s.Times)
}

// Duration returns the time span covered by the series.
func (s *Series) Duration() float64 {
	return s.Times[len(s.Times)-1] - s.Times[0]
}

// Validate checks a raw two-column series and computes sampling diagnostics.
// It is a pure function: the input slices are copied, never retained.
func Validate(times, values []float64) (*Series, error) {
	if len(times) != len(values) {
		return nil, fmt.Errorf("%w: %d time values but %d oxygen values", ErrMalformedInput, len(times), len(values))
	}
	if len(times) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 rows, got %d", ErrMalformedInput, len(times))
	}

	for i := range times {
		if math.IsNaN(times[i]) || math.IsInf(times[i], 0) {
			return nil, fmt.Errorf("%w: non-finite time at row %d", ErrMalformedInput, i)
		}
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			return nil, fmt.Errorf("%w: non-finite oxygen value at row %d", ErrMalformedInput, i)
		}
		if i > 0 && times[i] < times[i-1] {
			return nil, fmt.Errorf("%w: time decreases at row %d (%g after %g)", ErrMalformedInput, i, times[i], times[i-1])
		}
	}

	s := &Series{
		Times:  append([]float64(nil), times...),
		Values: append([]float64(nil), values...),
	}

	steps := make([]float64, len(times)-1)
	distinct := 1
	for i := 1; i < len(times); i++ {
		d := times[i] - times[i-1]
		steps[i-1] = d
		if d == 0 {
			s.DuplicateTimes++
		} else {
			distinct++
		}
	}
	if distinct < 2 {
		return nil, fmt.Errorf("%w: fewer than 2 distinct time values", ErrMalformedInput)
	}

	sorted := append([]float64(nil), steps...)
	// stat.Quantile requires sorted input
	sort.Float64s(sorted)
	s.MinStep = sorted[0]
	s.MaxStep = sorted[len(sorted)-1]
	s.MedianStep = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	s.MeanValue = stat.Mean(s.Values, nil)

	tol := relStepTolerance * math.Max(s.MedianStep, 1)
	for _, d := range steps {
		if math.Abs(d-s.MedianStep) > tol {
			s.Irregular = true
		}
		if s.MedianStep > 0 && d > gapFactor*s.MedianStep {
			s.Gaps++
		}
	}

	return s, nil
}
