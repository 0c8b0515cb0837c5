package regression

import (
	"math"
	"testing"

	"github.com/aquametrics/respiro/internal/series"
)

const eps = 1e-6

func linearSeries(t *testing.T, n int, slope, intercept float64) *series.Series {
	t.Helper()
	times := make([]float64, n)
	values := make([]float64, n)
	for i := range times {
		times[i] = float64(i)
		values[i] = slope*times[i] + intercept
	}
	s, err := series.Validate(times, values)
	if err != nil {
		t.Fatalf("failed to build series: %v", err)
	}
	return s
}

func TestRollRecoversPerfectLine(t *testing.T) {
	// y = 2x + 5 with no noise: every window must recover the line exactly
	s := linearSeries(t, 500, 2.0, 5.0)
	windows, err := EnumerateOverlapping(s, 50, WidthRows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	roller := NewRoller(s)
	results, degenerate := roller.Roll(windows)

	if degenerate != 0 {
		t.Errorf("expected 0 degenerate windows, got %d", degenerate)
	}
	if len(results) != len(windows) {
		t.Fatalf("expected %d results, got %d", len(windows), len(results))
	}

	for i, r := range results {
		if math.Abs(r.Slope-2.0) > eps {
			t.Errorf("window %d: slope %.9f, want 2", i, r.Slope)
		}
		if math.Abs(r.Intercept-5.0) > eps {
			t.Errorf("window %d: intercept %.9f, want 5", i, r.Intercept)
		}
		if math.Abs(r.RSquared-1.0) > eps {
			t.Errorf("window %d: R² %.9f, want 1", i, r.RSquared)
		}
	}
}

func TestRollSlopeSignConvention(t *testing.T) {
	// Oxygen uptake fits negative, production positive; nothing flips signs
	uptake := linearSeries(t, 100, -0.5, 10)
	production := linearSeries(t, 100, 0.5, 2)

	for _, tc := range []struct {
		name string
		s    *series.Series
		want float64
	}{
		{name: "uptake", s: uptake, want: -0.5},
		{name: "production", s: production, want: 0.5},
	} {
		t.Run(tc.name, func(t *testing.T) {
			windows, err := EnumerateOverlapping(tc.s, 10, WidthRows)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			results, _ := NewRoller(tc.s).Roll(windows)
			for _, r := range results {
				if math.Abs(r.Slope-tc.want) > eps {
					t.Fatalf("slope %.9f, want %g", r.Slope, tc.want)
				}
			}
		})
	}
}

func TestRollSkipsDegenerateWindows(t *testing.T) {
	// Duplicate timestamps produce a window with zero time variance
	times := []float64{0, 1, 2, 2, 2, 3, 4, 5}
	values := []float64{9.5, 9.4, 9.3, 9.25, 9.2, 9.1, 9.0, 8.9}
	s, err := series.Validate(times, values)
	if err != nil {
		t.Fatalf("failed to build series: %v", err)
	}

	windows, err := EnumerateOverlapping(s, 3, WidthRows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, degenerate := NewRoller(s).Roll(windows)

	if degenerate != 1 {
		t.Errorf("expected 1 degenerate window, got %d", degenerate)
	}
	if len(results) != len(windows)-degenerate {
		t.Errorf("result count %d does not equal window count %d minus degenerate %d",
			len(results), len(windows), degenerate)
	}

	// Survivors stay in start order
	for i := 1; i < len(results); i++ {
		if results[i].Start <= results[i-1].Start {
			t.Errorf("results out of order at %d", i)
		}
	}
}

func TestFitSkipsDuplicateTimestampsWithRounding(t *testing.T) {
	// Non-integer timestamps: the centered prefix-sum difference for an
	// all-duplicate window can round to a tiny positive value instead of
	// exactly zero. The window must still be skipped, not fitted.
	n := 40
	times := make([]float64, n)
	values := make([]float64, n)
	for i := range times {
		times[i] = 0.1 * float64(i)
		values[i] = 9.5 - 0.003*float64(i)
	}
	times[21] = times[20]
	times[22] = times[20]
	s, err := series.Validate(times, values)
	if err != nil {
		t.Fatalf("failed to build series: %v", err)
	}

	roller := NewRoller(s)
	if _, ok := roller.Fit(Window{20, 22}); ok {
		t.Error("window with all-equal timestamps was fitted, want skip")
	}

	windows, err := EnumerateOverlapping(s, 3, WidthRows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results, degenerate := roller.Roll(windows)
	if degenerate != 1 {
		t.Errorf("expected 1 degenerate window, got %d", degenerate)
	}
	// Windows straddling the duplicates fit fewer distinct times but must
	// still produce a slope of the right sign and magnitude, not garbage
	for _, r := range results {
		if r.Slope < -0.1 || r.Slope >= 0 {
			t.Errorf("window [%d,%d]: slope %g outside the plausible range", r.Start, r.End, r.Slope)
		}
	}
}

func TestFitMatchesFitExact(t *testing.T) {
	// The O(1) prefix-sum fit and the direct gonum fit must agree
	n := 200
	times := make([]float64, n)
	values := make([]float64, n)
	for i := range times {
		times[i] = float64(i) * 0.5
		// Deterministic wiggle on top of a decline
		values[i] = 9.5 - 0.002*times[i] + 0.01*math.Sin(float64(i)*0.7)
	}
	s, err := series.Validate(times, values)
	if err != nil {
		t.Fatalf("failed to build series: %v", err)
	}

	roller := NewRoller(s)
	for _, w := range []Window{{0, 49}, {50, 120}, {100, 199}, {0, 199}} {
		fast, ok := roller.Fit(w)
		if !ok {
			t.Fatalf("window [%d,%d] unexpectedly degenerate", w.Start, w.End)
		}
		exact, ok := FitExact(s, w.Start, w.End)
		if !ok {
			t.Fatalf("exact fit [%d,%d] unexpectedly degenerate", w.Start, w.End)
		}

		if math.Abs(fast.Slope-exact.Slope) > eps {
			t.Errorf("[%d,%d] slope: fast %.12f exact %.12f", w.Start, w.End, fast.Slope, exact.Slope)
		}
		if math.Abs(fast.Intercept-exact.Intercept) > eps {
			t.Errorf("[%d,%d] intercept: fast %.12f exact %.12f", w.Start, w.End, fast.Intercept, exact.Intercept)
		}
		if math.Abs(fast.RSquared-exact.RSquared) > eps {
			t.Errorf("[%d,%d] R²: fast %.12f exact %.12f", w.Start, w.End, fast.RSquared, exact.RSquared)
		}
	}
}

func TestRollIsDeterministic(t *testing.T) {
	s := linearSeries(t, 1000, -0.01, 9.5)
	windows, err := EnumerateOverlapping(s, 100, WidthRows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, d1 := NewRoller(s).Roll(windows)
	second, d2 := NewRoller(s).Roll(windows)

	if d1 != d2 {
		t.Fatalf("degenerate counts differ: %d vs %d", d1, d2)
	}
	if len(first) != len(second) {
		t.Fatalf("result counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("result %d differs between runs", i)
		}
	}
}

func TestFlatSeriesRSquaredIsZero(t *testing.T) {
	// Constant oxygen: slope 0 and, by convention, R² 0
	times := []float64{0, 1, 2, 3, 4}
	values := []float64{9.5, 9.5, 9.5, 9.5, 9.5}
	s, err := series.Validate(times, values)
	if err != nil {
		t.Fatalf("failed to build series: %v", err)
	}

	fit, ok := NewRoller(s).Fit(Window{0, 4})
	if !ok {
		t.Fatal("flat series should not be degenerate")
	}
	if math.Abs(fit.Slope) > eps {
		t.Errorf("slope %.9f, want 0", fit.Slope)
	}
	if fit.RSquared != 0 {
		t.Errorf("R² %.9f, want 0", fit.RSquared)
	}
}
