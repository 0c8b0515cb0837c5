package autorate

import (
	"errors"
	"fmt"

	"github.com/aquametrics/respiro/internal/regression"
	"github.com/aquametrics/respiro/internal/series"
)

// ErrRankOutOfRange indicates a requested result position past the end of
// the ranked table.
var ErrRankOutOfRange = errors.New("rank out of range")

// Segment is one candidate rate estimate. It carries enough metadata for an
// external collaborator to convert the slope into physical rate units and to
// audit the selection.
type Segment struct {
	Rank int

	// Start and End are row indices into the analyzed series, inclusive.
	Start int
	End   int

	// TimeStart and TimeEnd are the matching timestamps.
	TimeStart float64
	TimeEnd   float64

	Slope     float64
	Intercept float64
	RSquared  float64
	N         int

	// GroupSize is the density-mode prominence for linear detection and 0
	// for the other methods.
	GroupSize int
}

// Duration returns the time covered by the segment.
func (sg Segment) Duration() float64 {
	return sg.TimeEnd - sg.TimeStart
}

func newSegment(s *series.Series, fit regression.Result, rank, groupSize int) Segment {
	return Segment{
		Rank:      rank,
		Start:     fit.Start,
		End:       fit.End,
		TimeStart: s.Times[fit.Start],
		TimeEnd:   s.Times[fit.End],
		Slope:     fit.Slope,
		Intercept: fit.Intercept,
		RSquared:  fit.RSquared,
		N:         fit.N,
		GroupSize: groupSize,
	}
}

// ResultSet is the ordered outcome of one detection run. It is immutable
// after construction; automatic detection is advisory, so the full table
// and the raw regressions stay available for manual override.
type ResultSet struct {
	Method   Method
	Segments []Segment

	// Regressions is the raw rolling regression table for diagnostics.
	Regressions []regression.Result

	// Windows is the enumerated window count; Degenerate how many of them
	// were skipped.
	Windows    int
	Degenerate int

	// Bandwidth is the KDE bandwidth used by linear detection, 0 otherwise.
	Bandwidth float64

	// Irregular mirrors the series sampling flag so callers that only see
	// the result still learn about width ambiguity.
	Irregular bool
}

// Len returns the number of ranked segments.
func (rs *ResultSet) Len() int {
	return len(rs.Segments)
}

// Top returns the rank-1 segment.
func (rs *ResultSet) Top() Segment {
	return rs.Segments[0]
}

// At returns the segment at a 1-based rank position.
func (rs *ResultSet) At(pos int) (Segment, error) {
	if pos < 1 || pos > len(rs.Segments) {
		return Segment{}, fmt.Errorf("%w: position %d of %d", ErrRankOutOfRange, pos, len(rs.Segments))
	}
	return rs.Segments[pos-1], nil
}
