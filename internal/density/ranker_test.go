package density

import (
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/aquametrics/respiro/internal/regression"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// syntheticResults builds a regression table with the given slopes; the
// window geometry is stride-1 with a fixed width, matching what the rolling
// regressor produces.
func syntheticResults(slopes []float64) []regression.Result {
	results := make([]regression.Result, len(slopes))
	for i, sl := range slopes {
		results[i] = regression.Result{
			Start:    i,
			End:      i + 9,
			Slope:    sl,
			RSquared: 0.99,
			N:        10,
			TimeSpan: 9,
		}
	}
	return results
}

func TestRankSingleDominantMode(t *testing.T) {
	// 95% of windows share one slope (a stable linear region); the rest
	// scatter. Expect one dominant group holding at least 90% of windows.
	slopes := make([]float64, 100)
	for i := 0; i < 95; i++ {
		slopes[i] = -0.85
	}
	scatter := []float64{-1.4, -1.2, -0.45, -0.3, -0.1}
	copy(slopes[95:], scatter)

	modes, est, err := Rank(syntheticResults(slopes), DefaultOptions(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if est.Bandwidth <= 0 {
		t.Fatalf("bandwidth %g not positive", est.Bandwidth)
	}
	if len(modes) == 0 {
		t.Fatal("expected at least one mode")
	}

	top := modes[0]
	if math.Abs(top.Location+0.85) > 0.05 {
		t.Errorf("top mode at %g, want near -0.85", top.Location)
	}
	if len(top.Members) < 90 {
		t.Errorf("dominant group has %d members, want >= 90", len(top.Members))
	}
}

func TestRankBimodalOrderedBySize(t *testing.T) {
	// Two well-separated slope clusters: the larger must rank first
	slopes := make([]float64, 0, 100)
	for i := 0; i < 60; i++ {
		slopes = append(slopes, -0.9)
	}
	for i := 0; i < 40; i++ {
		slopes = append(slopes, -0.2)
	}

	modes, _, err := Rank(syntheticResults(slopes), DefaultOptions(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(modes) < 2 {
		t.Fatalf("expected at least 2 modes, got %d", len(modes))
	}
	if modes[0].Size < modes[1].Size {
		t.Errorf("modes not ordered by size: %d before %d", modes[0].Size, modes[1].Size)
	}
	if math.Abs(modes[0].Location+0.9) > math.Abs(modes[0].Location+0.2) {
		t.Errorf("top mode at %g, want near -0.9 (the larger cluster)", modes[0].Location)
	}
	if len(modes[0].Members) != 60 {
		t.Errorf("top mode captured %d members, want 60", len(modes[0].Members))
	}
}

func TestRankDeduplicatesSharedMembers(t *testing.T) {
	slopes := make([]float64, 0, 90)
	for i := 0; i < 50; i++ {
		slopes = append(slopes, -0.5)
	}
	for i := 0; i < 40; i++ {
		slopes = append(slopes, -0.48)
	}

	modes, _, err := Rank(syntheticResults(slopes), DefaultOptions(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[int]bool)
	for _, m := range modes {
		for _, idx := range m.Members {
			if seen[idx] {
				t.Fatalf("regression %d appears in more than one group", idx)
			}
			seen[idx] = true
		}
	}
}

func TestRankFewWindowsCollapseToOneGroup(t *testing.T) {
	// Fewer windows than a density estimate needs (the full-series width
	// yields a single one): the whole table becomes one group
	for _, slopes := range [][]float64{
		{-0.5},
		{-0.5, -0.4},
		{-0.5, -0.4, -0.45},
	} {
		modes, est, err := Rank(syntheticResults(slopes), DefaultOptions(), testLogger())
		if err != nil {
			t.Fatalf("%d windows: unexpected error: %v", len(slopes), err)
		}
		if len(modes) != 1 {
			t.Fatalf("%d windows: expected 1 group, got %d", len(slopes), len(modes))
		}
		if modes[0].Size != len(slopes) || len(modes[0].Members) != len(slopes) {
			t.Errorf("%d windows: group holds %d members (size %d), want all",
				len(slopes), len(modes[0].Members), modes[0].Size)
		}
		if est.Bandwidth != 0 {
			t.Errorf("%d windows: bandwidth %g, want 0 (no density estimated)", len(slopes), est.Bandwidth)
		}
	}
}

func TestRankNoWindows(t *testing.T) {
	_, _, err := Rank(nil, DefaultOptions(), testLogger())
	if !errors.Is(err, ErrNoLinearRegion) {
		t.Errorf("expected ErrNoLinearRegion, got %v", err)
	}
}

func TestRankIsDeterministic(t *testing.T) {
	slopes := make([]float64, 200)
	for i := range slopes {
		// Deterministic pseudo-noise around two levels
		base := -0.8
		if i%3 == 0 {
			base = -0.2
		}
		slopes[i] = base + 0.001*math.Sin(float64(i)*1.3)
	}

	first, estA, err := Rank(syntheticResults(slopes), DefaultOptions(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, estB, err := Rank(syntheticResults(slopes), DefaultOptions(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if estA.Bandwidth != estB.Bandwidth {
		t.Fatalf("bandwidth differs between runs: %g vs %g", estA.Bandwidth, estB.Bandwidth)
	}
	if len(first) != len(second) {
		t.Fatalf("mode counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Location != second[i].Location || first[i].Size != second[i].Size {
			t.Fatalf("mode %d differs between runs", i)
		}
		if len(first[i].Members) != len(second[i].Members) {
			t.Fatalf("mode %d member counts differ", i)
		}
	}
}
