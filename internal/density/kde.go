// Package density locates the dominant linear regions of a rate analysis by
// estimating the distribution of rolling regression slopes. Slopes that pile
// up around a value indicate a stretch of the trace where the fitted rate is
// stable; modes of the kernel density estimate mark those pile-ups and the
// bandwidth decides which windows belong to each one.
package density

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// gridCut extends the evaluation grid this many bandwidths past the data
// range so modes near the extremes are not clipped.
const gridCut = 3.0

// Estimate is a kernel density estimate evaluated over a fixed grid.
type Estimate struct {
	X         []float64
	Y         []float64
	Bandwidth float64
}

// Silverman returns the normal-reference rule-of-thumb bandwidth
// 0.9 * min(sd, IQR/1.349) * n^(-1/5). It is the fallback when the
// plug-in fixed point does not bracket a root.
func Silverman(xs []float64) float64 {
	s := robustScale(xs)
	if s <= 0 {
		return 1.0
	}
	return 0.9 * s * math.Pow(float64(len(xs)), -0.2)
}

// KDE evaluates a Gaussian kernel density estimate of xs with bandwidth h on
// a uniform grid of gridSize points spanning the data plus gridCut
// bandwidths on each side. The data is binned first so evaluation is
// O(bins * gridSize) rather than O(n * gridSize).
func KDE(xs []float64, h float64, gridSize, bins int) Estimate {
	n := len(xs)
	lo := floats.Min(xs) - gridCut*h
	hi := floats.Max(xs) + gridCut*h

	centers, weights := binData(xs, bins)

	x := make([]float64, gridSize)
	floats.Span(x, lo, hi)
	y := make([]float64, gridSize)

	norm := 1.0 / (float64(n) * h * math.Sqrt(2*math.Pi))
	for i, g := range x {
		sum := 0.0
		for k, c := range centers {
			if weights[k] == 0 {
				continue
			}
			z := (g - c) / h
			sum += float64(weights[k]) * math.Exp(-0.5*z*z)
		}
		y[i] = norm * sum
	}

	return Estimate{X: x, Y: y, Bandwidth: h}
}

// binData assigns xs to equal-width bins over the data range and returns bin
// centers and counts. Degenerate (zero-range) data lands in a single bin.
func binData(xs []float64, bins int) ([]float64, []int) {
	lo := floats.Min(xs)
	hi := floats.Max(xs)
	if hi == lo || bins < 2 {
		return []float64{lo}, []int{len(xs)}
	}

	width := (hi - lo) / float64(bins)
	counts := make([]int, bins)
	for _, v := range xs {
		k := int((v - lo) / width)
		if k >= bins {
			k = bins - 1
		}
		counts[k]++
	}
	centers := make([]float64, bins)
	for k := range centers {
		centers[k] = lo + (float64(k)+0.5)*width
	}
	return centers, counts
}

// robustScale returns min(sd, IQR/1.349), the scale estimate used by both
// bandwidth selectors.
func robustScale(xs []float64) float64 {
	sd := stat.StdDev(xs, nil)

	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	iqr := stat.Quantile(0.75, stat.Empirical, sorted, nil) - stat.Quantile(0.25, stat.Empirical, sorted, nil)

	scale := sd
	if iqr > 0 && iqr/1.349 < scale {
		scale = iqr / 1.349
	}
	return scale
}
