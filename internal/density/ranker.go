package density

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/aquametrics/respiro/internal/regression"
)

// ErrNoLinearRegion indicates the slope density has no mode above the
// prominence floor, so no region of the trace is detectably more linear than
// the rest. Callers fall back to manual window selection.
var ErrNoLinearRegion = errors.New("no linear region detected")

// prominenceFloor is the minimum fraction of the peak density a local
// maximum must reach to count as a mode.
const prominenceFloor = 0.05

// Mode is one detected slope cluster: a local maximum of the KDE plus every
// rolling regression whose slope lands within one bandwidth of it.
type Mode struct {
	Location  float64
	Bandwidth float64

	// Members indexes into the rolling regression results, in start order.
	Members []int

	// Size is the pre-deduplication member count used for ranking; it
	// measures the mode's prominence even when close modes share windows.
	Size int

	MeanRSquared float64
	MeanTimeSpan float64
}

// Options controls density ranking.
type Options struct {
	GridSize int
	Bins     int
}

// DefaultOptions mirrors the classic density defaults: 512 grid points, 1000
// bins for the bandwidth functionals and KDE evaluation.
func DefaultOptions() Options {
	return Options{GridSize: 512, Bins: 1000}
}

// Rank estimates the slope density, finds its modes, and returns slope
// groups ordered best-first. Ordering is by member count descending; ties
// break by larger mean R-squared, then smaller mean window time span, then
// lower mode location. Each regression is kept only in its highest-ranked
// group, so the returned member sets are disjoint. Tables too small for a
// density estimate collapse into a single group of every window.
func Rank(results []regression.Result, opts Options, logger *zap.SugaredLogger) ([]Mode, Estimate, error) {
	if len(results) == 0 {
		return nil, Estimate{}, fmt.Errorf("%w: no usable windows", ErrNoLinearRegion)
	}

	slopes := make([]float64, len(results))
	for i, r := range results {
		slopes[i] = r.Slope
	}

	// Too few windows to estimate a density (the full-series width yields a
	// single window): treat the whole table as one group and let the caller
	// re-fit its span.
	if len(results) < 4 {
		logger.Debugf("only %d usable windows, skipping density estimation", len(results))
		return []Mode{singleGroup(results, slopes)}, Estimate{}, nil
	}

	h, plugin := Bandwidth(slopes)
	if !plugin {
		logger.Debugf("plug-in bandwidth did not converge, using Silverman rule: h=%g", h)
	}
	est := KDE(slopes, h, opts.GridSize, opts.Bins)

	peaks := localMaxima(est)
	if len(peaks) == 0 {
		return nil, est, fmt.Errorf("%w: density is flat across %d windows", ErrNoLinearRegion, len(results))
	}

	modes := make([]Mode, 0, len(peaks))
	for _, p := range peaks {
		m := Mode{Location: est.X[p], Bandwidth: h}
		var sumR2, sumSpan float64
		for i, r := range results {
			if r.Slope >= m.Location-h && r.Slope <= m.Location+h {
				m.Members = append(m.Members, i)
				sumR2 += r.RSquared
				sumSpan += r.TimeSpan
			}
		}
		if len(m.Members) == 0 {
			continue
		}
		m.Size = len(m.Members)
		m.MeanRSquared = sumR2 / float64(m.Size)
		m.MeanTimeSpan = sumSpan / float64(m.Size)
		modes = append(modes, m)
	}
	if len(modes) == 0 {
		return nil, est, fmt.Errorf("%w: no mode captured any windows", ErrNoLinearRegion)
	}

	sort.SliceStable(modes, func(i, j int) bool {
		a, b := modes[i], modes[j]
		if a.Size != b.Size {
			return a.Size > b.Size
		}
		if a.MeanRSquared != b.MeanRSquared {
			return a.MeanRSquared > b.MeanRSquared
		}
		if a.MeanTimeSpan != b.MeanTimeSpan {
			return a.MeanTimeSpan < b.MeanTimeSpan
		}
		return a.Location < b.Location
	})

	dedupe(modes)

	// Drop modes emptied by deduplication
	kept := modes[:0]
	for _, m := range modes {
		if len(m.Members) > 0 {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		return nil, est, fmt.Errorf("%w: no mode captured any windows", ErrNoLinearRegion)
	}

	logger.Debugf("density ranking: %d modes from %d windows, bandwidth=%g", len(kept), len(results), h)
	return kept, est, nil
}

// singleGroup wraps every regression into one mode, used when the table is
// too small for a density estimate.
func singleGroup(results []regression.Result, slopes []float64) Mode {
	m := Mode{
		Location: stat.Mean(slopes, nil),
		Members:  make([]int, len(results)),
		Size:     len(results),
	}
	var sumR2, sumSpan float64
	for i, r := range results {
		m.Members[i] = i
		sumR2 += r.RSquared
		sumSpan += r.TimeSpan
	}
	m.MeanRSquared = sumR2 / float64(m.Size)
	m.MeanTimeSpan = sumSpan / float64(m.Size)
	return m
}

// localMaxima returns grid indices of density peaks above the prominence
// floor. A plateau reports its left edge.
func localMaxima(est Estimate) []int {
	peak := 0.0
	for _, v := range est.Y {
		if v > peak {
			peak = v
		}
	}
	if peak <= 0 {
		return nil
	}
	floor := prominenceFloor * peak

	var maxima []int
	n := len(est.Y)
	for i := 0; i < n; i++ {
		v := est.Y[i]
		if v < floor {
			continue
		}
		left := i == 0 || est.Y[i-1] < v
		right := i == n-1 || est.Y[i+1] <= v
		if left && right {
			maxima = append(maxima, i)
		}
	}
	return maxima
}

// dedupe keeps each member only in the first (highest-ranked) mode that
// claims it. Sizes are left untouched: ranking already happened on the
// undeduplicated counts.
func dedupe(modes []Mode) {
	seen := make(map[int]bool)
	for i := range modes {
		kept := modes[i].Members[:0]
		for _, idx := range modes[i].Members {
			if !seen[idx] {
				seen[idx] = true
				kept = append(kept, idx)
			}
		}
		modes[i].Members = kept
	}
}
