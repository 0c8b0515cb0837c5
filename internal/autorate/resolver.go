package autorate

import (
	"sort"

	"go.uber.org/zap"

	"github.com/aquametrics/respiro/internal/density"
	"github.com/aquametrics/respiro/internal/regression"
	"github.com/aquametrics/respiro/internal/series"
)

// resolver turns the rolling regression table into ranked segments. One
// implementation per method.
type resolver interface {
	// resolve returns the ordered segments and, for density-based
	// strategies, the bandwidth used (0 otherwise).
	resolve(s *series.Series, results []regression.Result, logger *zap.SugaredLogger) ([]Segment, float64, error)
}

// linearResolver ranks slope-density modes and re-fits each mode's windows
// over their full merged span. The rolling window has a fixed width, so the
// true linear region is usually wider than any single member window; the
// re-fit corrects for that truncation.
type linearResolver struct {
	opts density.Options
}

func (l *linearResolver) resolve(s *series.Series, results []regression.Result, logger *zap.SugaredLogger) ([]Segment, float64, error) {
	modes, est, err := density.Rank(results, l.opts, logger)
	if err != nil {
		return nil, 0, err
	}

	var segments []Segment
	rank := 1
	for _, m := range modes {
		// Members of one mode can be split by a non-linear stretch;
		// merge only contiguous runs of windows and report disjoint
		// runs as separate sub-segments, longest first.
		runs := contiguousRuns(results, m.Members)
		sort.SliceStable(runs, func(i, j int) bool {
			return len(runs[i]) > len(runs[j])
		})

		for _, run := range runs {
			start := results[run[0]].Start
			end := results[run[0]].End
			for _, idx := range run {
				if results[idx].End > end {
					end = results[idx].End
				}
			}

			fit, ok := regression.FitExact(s, start, end)
			if !ok {
				logger.Debugf("segment re-fit degenerate over rows %d..%d, dropping", start, end)
				continue
			}
			segments = append(segments, newSegment(s, fit, rank, m.Size))
			rank++
		}
	}
	if len(segments) == 0 {
		return nil, 0, density.ErrNoLinearRegion
	}
	return segments, est.Bandwidth, nil
}

// contiguousRuns splits mode members (ordered by window start) into runs of
// windows that touch or overlap.
func contiguousRuns(results []regression.Result, members []int) [][]int {
	if len(members) == 0 {
		return nil
	}
	sorted := append([]int(nil), members...)
	sort.Ints(sorted)

	var runs [][]int
	run := []int{sorted[0]}
	end := results[sorted[0]].End
	for _, idx := range sorted[1:] {
		if results[idx].Start <= end+1 {
			run = append(run, idx)
			if results[idx].End > end {
				end = results[idx].End
			}
		} else {
			runs = append(runs, run)
			run = []int{idx}
			end = results[idx].End
		}
	}
	runs = append(runs, run)
	return runs
}

// slopeOrderResolver ranks every window by its slope: descending for the max
// method (most positive rate first), ascending for min (most negative
// first). Equal slopes keep window order, so repeat runs are identical.
type slopeOrderResolver struct {
	descending bool
}

func (o *slopeOrderResolver) resolve(s *series.Series, results []regression.Result, logger *zap.SugaredLogger) ([]Segment, float64, error) {
	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		if o.descending {
			return results[order[i]].Slope > results[order[j]].Slope
		}
		return results[order[i]].Slope < results[order[j]].Slope
	})

	segments := make([]Segment, len(order))
	for pos, idx := range order {
		segments[pos] = newSegment(s, results[idx], pos+1, 0)
	}
	return segments, 0, nil
}

// intervalResolver reports each partition block as a segment in temporal
// order; rank is just the block position.
type intervalResolver struct{}

func (iv *intervalResolver) resolve(s *series.Series, results []regression.Result, logger *zap.SugaredLogger) ([]Segment, float64, error) {
	segments := make([]Segment, len(results))
	for i, r := range results {
		segments[i] = newSegment(s, r, i+1, 0)
	}
	return segments, 0, nil
}
