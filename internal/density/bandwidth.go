package density

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Sheather-Jones solve-the-equation plug-in bandwidth selection.
//
// The selected h solves h = (c1 / SD(alpha2(h)))^(1/5), where SD is the
// estimated integrated squared second derivative of the density and alpha2
// re-expresses the pilot bandwidth in terms of h. The root is found by
// bisection over [0.1*hmax, hmax] (interval doubled outward when the root is
// not bracketed), stopping when the bracket shrinks below 0.01*hmax or after
// bandwidthMaxIter halvings. Pairwise kernel functionals are evaluated over
// binned distances so selection stays O(bins^2) for large slope sets.

const (
	bandwidthBins    = 1000
	bandwidthMaxIter = 100
)

// sjBandwidth returns the plug-in bandwidth and whether the fixed-point
// equation could be bracketed. On failure callers fall back to Silverman.
func sjBandwidth(xs []float64) (float64, bool) {
	n := len(xs)
	if n < 4 {
		return 0, false
	}
	scale := robustScale(xs)
	if scale <= 0 {
		return 0, false
	}

	dist, cnt := pairDistances(xs, bandwidthBins)
	if dist == nil {
		return 0, false
	}

	nf := float64(n)
	a := 1.24 * scale * math.Pow(nf, -1.0/7.0)
	b := 1.23 * scale * math.Pow(nf, -1.0/9.0)
	c1 := 1.0 / (2.0 * math.Sqrt(math.Pi) * nf)

	td := -phi6Sum(nf, dist, cnt, b)
	if td <= 0 || math.IsNaN(td) {
		return 0, false
	}
	sda := phi4Sum(nf, dist, cnt, a)
	if sda <= 0 || math.IsNaN(sda) {
		return 0, false
	}
	alpha2 := 1.357 * math.Pow(sda/td, 1.0/7.0)

	f := func(h float64) float64 {
		sd := phi4Sum(nf, dist, cnt, alpha2*math.Pow(h, 5.0/7.0))
		if sd <= 0 {
			return math.NaN()
		}
		return math.Pow(c1/sd, 0.2) - h
	}

	hmax := 1.144 * scale * math.Pow(nf, -0.2)
	lo, hi := 0.1*hmax, hmax

	flo, fhi := f(lo), f(hi)
	// Extend the bracket outward until the signs differ
	for iter := 0; flo*fhi > 0 || math.IsNaN(flo) || math.IsNaN(fhi); iter++ {
		if iter >= 10 {
			return 0, false
		}
		if fhi > 0 {
			hi *= 1.2
			fhi = f(hi)
		} else {
			lo /= 1.2
			flo = f(lo)
		}
	}

	tol := 0.01 * hmax
	for iter := 0; iter < bandwidthMaxIter && hi-lo > tol; iter++ {
		mid := 0.5 * (lo + hi)
		fm := f(mid)
		if math.IsNaN(fm) {
			return 0, false
		}
		if flo*fm <= 0 {
			hi = mid
		} else {
			lo = mid
			flo = fm
		}
	}
	return 0.5 * (lo + hi), true
}

// pairDistances bins the data and returns the distinct pairwise bin
// distances with their pair counts. Returns nil when the data has no spread.
func pairDistances(xs []float64, bins int) ([]float64, []float64) {
	lo := floats.Min(xs)
	hi := floats.Max(xs)
	if hi == lo {
		return nil, nil
	}

	width := (hi - lo) / float64(bins)
	counts := make([]float64, bins)
	for _, v := range xs {
		k := int((v - lo) / width)
		if k >= bins {
			k = bins - 1
		}
		counts[k]++
	}

	dist := make([]float64, bins)
	cnt := make([]float64, bins)
	for k := 0; k < bins; k++ {
		dist[k] = float64(k) * width
		for j := 0; j+k < bins; j++ {
			if k == 0 {
				// Pairs within one bin, excluding self-pairs
				cnt[k] += counts[j] * (counts[j] - 1) / 2
			} else {
				cnt[k] += counts[j] * counts[j+k]
			}
		}
	}
	return dist, cnt
}

// phi4Sum estimates the density functional based on the 4th derivative of
// the Gaussian kernel: sum over pairs of phi''''(d/h), normalized.
func phi4Sum(n float64, dist, cnt []float64, h float64) float64 {
	sum := 0.0
	for k := range dist {
		if cnt[k] == 0 {
			continue
		}
		z := dist[k] / h
		z2 := z * z
		sum += cnt[k] * math.Exp(-0.5*z2) * (z2*z2 - 6*z2 + 3)
	}
	// Off-diagonal pairs count twice, diagonal contributes phi''''(0) = 3
	sum = 2*sum + n*3
	return sum / (n * (n - 1) * math.Pow(h, 5) * math.Sqrt(2*math.Pi))
}

// phi6Sum estimates the functional based on the 6th derivative:
// phi^(6)(0) = -15.
func phi6Sum(n float64, dist, cnt []float64, h float64) float64 {
	sum := 0.0
	for k := range dist {
		if cnt[k] == 0 {
			continue
		}
		z := dist[k] / h
		z2 := z * z
		sum += cnt[k] * math.Exp(-0.5*z2) * (z2*z2*z2 - 15*z2*z2 + 45*z2 - 15)
	}
	sum = 2*sum + n*(-15)
	return sum / (n * (n - 1) * math.Pow(h, 7) * math.Sqrt(2*math.Pi))
}

// Bandwidth selects the KDE bandwidth: Sheather-Jones plug-in when it
// converges, Silverman otherwise. The boolean reports whether the plug-in
// was used.
func Bandwidth(xs []float64) (float64, bool) {
	if h, ok := sjBandwidth(xs); ok {
		return h, true
	}
	return Silverman(xs), false
}
