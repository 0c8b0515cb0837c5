package regression

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/aquametrics/respiro/internal/series"
)

// Result holds one fitted window. Slope keeps the sign of the underlying
// data: oxygen uptake fits negative, production fits positive. Nothing
// downstream flips it.
type Result struct {
	Start     int
	End       int
	Slope     float64
	Intercept float64
	RSquared  float64
	N         int

	// TimeSpan is the window duration, used as a ranking tiebreak.
	TimeSpan float64
}

// Roller fits OLS lines over windows of a series in O(1) per window.
// It precomputes prefix sums over mean-centered data so that window sums
// come from two lookups; centering keeps the cancellation error of the
// large running sums in check.
type Roller struct {
	s      *series.Series
	mx, my float64
	sx     []float64
	sy     []float64
	sxx    []float64
	syy    []float64
	sxy    []float64
}

// NewRoller builds prefix sums for the series in a single O(T) pass.
func NewRoller(s *series.Series) *Roller {
	t := s.Len()
	r := &Roller{
		s:   s,
		mx:  stat.Mean(s.Times, nil),
		my:  s.MeanValue,
		sx:  make([]float64, t+1),
		sy:  make([]float64, t+1),
		sxx: make([]float64, t+1),
		syy: make([]float64, t+1),
		sxy: make([]float64, t+1),
	}
	for i := 0; i < t; i++ {
		x := s.Times[i] - r.mx
		y := s.Values[i] - r.my
		r.sx[i+1] = r.sx[i] + x
		r.sy[i+1] = r.sy[i] + y
		r.sxx[i+1] = r.sxx[i] + x*x
		r.syy[i+1] = r.syy[i] + y*y
		r.sxy[i+1] = r.sxy[i] + x*y
	}
	return r
}

// Fit computes the closed-form OLS fit for one window. ok is false for a
// degenerate window: fewer than 2 rows or zero time variance (all timestamps
// in the window identical). Degenerate windows are skipped by Roll, never
// fatal.
func (r *Roller) Fit(w Window) (Result, bool) {
	n := float64(w.N())
	if w.N() < 2 {
		return Result{}, false
	}
	// Times are non-decreasing, so equal endpoints mean every timestamp in
	// the window is identical. The prefix-sum difference can round to a tiny
	// positive value in that case, so check the raw samples, not vxx.
	if r.s.Times[w.End] == r.s.Times[w.Start] {
		return Result{}, false
	}

	i, j := w.Start, w.End+1
	sx := r.sx[j] - r.sx[i]
	sy := r.sy[j] - r.sy[i]
	sxx := r.sxx[j] - r.sxx[i]
	syy := r.syy[j] - r.syy[i]
	sxy := r.sxy[j] - r.sxy[i]

	// Centered second moments of the window itself
	vxx := sxx - sx*sx/n
	vyy := syy - sy*sy/n
	vxy := sxy - sx*sy/n

	if vxx <= 0 {
		return Result{}, false
	}

	slope := vxy / vxx
	// Translate the centered intercept back to raw coordinates
	interceptCentered := sy/n - slope*(sx/n)
	intercept := interceptCentered + r.my - slope*r.mx

	rsq := 0.0
	if vyy > 0 {
		rsq = (vxy * vxy) / (vxx * vyy)
	}

	return Result{
		Start:     w.Start,
		End:       w.End,
		Slope:     slope,
		Intercept: intercept,
		RSquared:  rsq,
		N:         w.N(),
		TimeSpan:  r.s.Times[w.End] - r.s.Times[w.Start],
	}, true
}

// Roll fits every window, fanning out across workers. Each worker writes
// into its own region of a preallocated slice, so the merged output is in
// start-index order without any post-sort and repeat runs are bit-identical.
// Returns the valid results plus the count of degenerate windows skipped.
func (r *Roller) Roll(windows []Window) ([]Result, int) {
	type slot struct {
		res Result
		ok  bool
	}
	slots := make([]slot, len(windows))

	workers := runtime.NumCPU()
	if workers > len(windows) {
		workers = len(windows)
	}
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	chunk := (len(windows) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(windows) {
			hi = len(windows)
		}
		if lo >= hi {
			break
		}
		g.Go(func() error {
			for k := lo; k < hi; k++ {
				slots[k].res, slots[k].ok = r.Fit(windows[k])
			}
			return nil
		})
	}
	// Workers never return errors; Wait is just the join point.
	g.Wait()

	results := make([]Result, 0, len(windows))
	degenerate := 0
	for _, s := range slots {
		if s.ok {
			results = append(results, s.res)
		} else {
			degenerate++
		}
	}
	return results, degenerate
}

// FitExact runs a fresh regression over [start, end] directly on the raw
// samples. Used for the final segment fits, where the span was assembled
// from many rolling windows and O(W) is affordable.
func FitExact(s *series.Series, start, end int) (Result, bool) {
	if end-start+1 < 2 {
		return Result{}, false
	}
	x := s.Times[start : end+1]
	y := s.Values[start : end+1]

	if x[len(x)-1] == x[0] {
		return Result{}, false
	}

	intercept, slope := stat.LinearRegression(x, y, nil, false)
	rsq := stat.RSquared(x, y, nil, intercept, slope)
	if math.IsNaN(rsq) || math.IsInf(rsq, 0) {
		// Flat oxygen trace: no variance to explain
		rsq = 0
	}

	return Result{
		Start:     start,
		End:       end,
		Slope:     slope,
		Intercept: intercept,
		RSquared:  rsq,
		N:         end - start + 1,
		TimeSpan:  x[len(x)-1] - x[0],
	}, true
}
