// Package regression enumerates analysis windows over a validated series and
// fits ordinary-least-squares lines through them. The rolling fit is the hot
// path of rate detection and runs in O(1) per window via prefix sums.
package regression

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/aquametrics/respiro/internal/series"
)

// ErrInvalidWidth indicates the requested window width cannot be resolved
// against the series: fewer than 2 rows, wider than the series, a fraction
// outside (0,1], or a time span that exceeds the series duration.
var ErrInvalidWidth = errors.New("invalid window width")

// WidthUnit selects how a width request is interpreted.
type WidthUnit string

const (
	// WidthRows interprets width as an absolute row count.
	WidthRows WidthUnit = "rows"

	// WidthTime interprets width as a time span in the series' time units.
	WidthTime WidthUnit = "time"

	// WidthFraction interprets width as a fraction of the series length,
	// resolved to round(width * T) rows.
	WidthFraction WidthUnit = "fraction"
)

// timeSpanTolerance absorbs floating error when checking whether a time-based
// window still fits inside the series.
const timeSpanTolerance = 1e-9

// Window is an inclusive index range [Start, End] into a series.
type Window struct {
	Start int
	End   int
}

// N returns the number of rows the window covers.
func (w Window) N() int {
	return w.End - w.Start + 1
}

// ResolveRowWidth converts a rows- or fraction-unit width request into a
// concrete row count W with 2 <= W <= T.
func ResolveRowWidth(s *series.Series, width float64, unit WidthUnit) (int, error) {
	t := s.Len()
	var w int
	switch unit {
	case WidthRows:
		if width != math.Trunc(width) {
			return 0, fmt.Errorf("%w: row width %g is not an integer", ErrInvalidWidth, width)
		}
		w = int(width)
	case WidthFraction:
		if width <= 0 || width > 1 {
			return 0, fmt.Errorf("%w: fraction %g outside (0,1]", ErrInvalidWidth, width)
		}
		w = int(math.Round(width * float64(t)))
	default:
		return 0, fmt.Errorf("%w: unit %q does not resolve to a row count", ErrInvalidWidth, unit)
	}
	if w < 2 {
		return 0, fmt.Errorf("%w: resolved width %d is below 2 rows", ErrInvalidWidth, w)
	}
	if w > t {
		return 0, fmt.Errorf("%w: resolved width %d exceeds series length %d", ErrInvalidWidth, w, t)
	}
	return w, nil
}

// EnumerateOverlapping generates every stride-1 window of the requested width:
// exactly T-W+1 windows for a row count W, or one window per admissible start
// for a time-span width. Time-based windows keep whatever row count falls
// inside the span, so gaps produce uneven window sizes rather than errors.
func EnumerateOverlapping(s *series.Series, width float64, unit WidthUnit) ([]Window, error) {
	if unit == WidthTime {
		return enumerateTimeWindows(s, width)
	}

	w, err := ResolveRowWidth(s, width, unit)
	if err != nil {
		return nil, err
	}

	t := s.Len()
	windows := make([]Window, 0, t-w+1)
	for i := 0; i+w-1 < t; i++ {
		windows = append(windows, Window{Start: i, End: i + w - 1})
	}
	return windows, nil
}

// EnumerateBlocks partitions the series into floor(T/W) contiguous
// non-overlapping blocks of W rows; trailing rows that do not fill a whole
// block are discarded. Used by the interval method.
func EnumerateBlocks(s *series.Series, width float64, unit WidthUnit) ([]Window, error) {
	if unit == WidthTime {
		return enumerateTimeBlocks(s, width)
	}

	w, err := ResolveRowWidth(s, width, unit)
	if err != nil {
		return nil, err
	}

	t := s.Len()
	windows := make([]Window, 0, t/w)
	for k := 0; (k+1)*w <= t; k++ {
		windows = append(windows, Window{Start: k * w, End: (k+1)*w - 1})
	}
	return windows, nil
}

func enumerateTimeWindows(s *series.Series, span float64) ([]Window, error) {
	if span <= 0 {
		return nil, fmt.Errorf("%w: time span %g must be positive", ErrInvalidWidth, span)
	}
	if span > s.Duration()+timeSpanTolerance {
		return nil, fmt.Errorf("%w: time span %g exceeds series duration %g", ErrInvalidWidth, span, s.Duration())
	}

	times := s.Times
	last := times[len(times)-1]
	var windows []Window
	for i := range times {
		limit := times[i] + span
		if limit > last+timeSpanTolerance {
			break
		}
		j := lastIndexWithin(times, i, limit)
		windows = append(windows, Window{Start: i, End: j})
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: time span %g produced no windows", ErrInvalidWidth, span)
	}
	return windows, nil
}

func enumerateTimeBlocks(s *series.Series, span float64) ([]Window, error) {
	if span <= 0 {
		return nil, fmt.Errorf("%w: time span %g must be positive", ErrInvalidWidth, span)
	}
	if span > s.Duration()+timeSpanTolerance {
		return nil, fmt.Errorf("%w: time span %g exceeds series duration %g", ErrInvalidWidth, span, s.Duration())
	}

	times := s.Times
	last := times[len(times)-1]
	var windows []Window
	start := 0
	for start < len(times) {
		limit := times[start] + span
		if limit > last+timeSpanTolerance {
			break
		}
		end := lastIndexWithin(times, start, limit)
		windows = append(windows, Window{Start: start, End: end})
		start = end + 1
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: time span %g produced no blocks", ErrInvalidWidth, span)
	}
	return windows, nil
}

// lastIndexWithin returns the largest index j >= start with times[j] <= limit.
func lastIndexWithin(times []float64, start int, limit float64) int {
	// sort.Search finds the first index past the limit
	j := start + sort.Search(len(times)-start, func(k int) bool {
		return times[start+k] > limit+timeSpanTolerance
	})
	return j - 1
}
