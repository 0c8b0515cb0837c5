// Package autorate detects metabolic rate regions in a respirometry trace
// without manual window selection. It rolls an OLS regression across the
// series, then either ranks slope-density modes (linear), sorts by slope
// (max/min), or reports sequential blocks (interval), producing an ordered
// table of candidate rate segments.
package autorate

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aquametrics/respiro/internal/density"
	"github.com/aquametrics/respiro/internal/regression"
	"github.com/aquametrics/respiro/internal/series"
)

// Method selects the detection strategy.
type Method string

const (
	// MethodLinear ranks density modes of the rolling slopes and re-fits
	// the span of each mode's windows.
	MethodLinear Method = "linear"

	// MethodMax orders windows by slope, most positive first.
	MethodMax Method = "max"

	// MethodMin orders windows by slope, most negative first.
	MethodMin Method = "min"

	// MethodInterval partitions the series into non-overlapping blocks in
	// temporal order.
	MethodInterval Method = "interval"
)

// ErrUnknownMethod indicates the configured method is not one of
// linear/max/min/interval.
var ErrUnknownMethod = errors.New("unknown detection method")

// ErrNoUsableWindows indicates every enumerated window was degenerate.
var ErrNoUsableWindows = errors.New("no usable windows")

// Config is the external configuration record for a run.
type Config struct {
	Method    Method
	Width     float64
	WidthUnit regression.WidthUnit

	// Density holds the linear-method ranking options; zero value means
	// density.DefaultOptions.
	Density density.Options
}

// DefaultConfig matches the conventional defaults: linear detection over a
// 0.2-fraction window.
func DefaultConfig() Config {
	return Config{
		Method:    MethodLinear,
		Width:     0.2,
		WidthUnit: regression.WidthFraction,
		Density:   density.DefaultOptions(),
	}
}

// Run executes the full detection pipeline on a validated series. It either
// returns a complete ResultSet or an error; the only soft failures are
// per-window degeneracies, which are counted on the ResultSet. Identical
// input and config produce identical output.
func Run(s *series.Series, cfg Config, logger *zap.SugaredLogger) (*ResultSet, error) {
	res, err := resolverFor(cfg)
	if err != nil {
		return nil, err
	}

	if s.Irregular {
		logger.Warnf("series sampling is irregular (median step %g, min %g, max %g, %d gaps): row-count widths are approximate, prefer time-based widths",
			s.MedianStep, s.MinStep, s.MaxStep, s.Gaps)
	}

	var windows []regression.Window
	if cfg.Method == MethodInterval {
		windows, err = regression.EnumerateBlocks(s, cfg.Width, cfg.WidthUnit)
	} else {
		windows, err = regression.EnumerateOverlapping(s, cfg.Width, cfg.WidthUnit)
	}
	if err != nil {
		return nil, err
	}

	roller := regression.NewRoller(s)
	results, degenerate := roller.Roll(windows)
	if degenerate > 0 {
		logger.Debugf("skipped %d degenerate windows of %d", degenerate, len(windows))
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: all %d windows were degenerate", ErrNoUsableWindows, len(windows))
	}

	segments, bandwidth, err := res.resolve(s, results, logger)
	if err != nil {
		return nil, err
	}

	rs := &ResultSet{
		Method:      cfg.Method,
		Segments:    segments,
		Regressions: results,
		Windows:     len(windows),
		Degenerate:  degenerate,
		Bandwidth:   bandwidth,
		Irregular:   s.Irregular,
	}
	logger.Infof("%s detection: %d segments from %d windows (top slope %g, R²=%.4f)",
		cfg.Method, len(segments), len(windows), rs.Top().Slope, rs.Top().RSquared)
	return rs, nil
}

func resolverFor(cfg Config) (resolver, error) {
	switch cfg.Method {
	case MethodLinear:
		opts := cfg.Density
		if opts.GridSize == 0 {
			opts = density.DefaultOptions()
		}
		return &linearResolver{opts: opts}, nil
	case MethodMax:
		return &slopeOrderResolver{descending: true}, nil
	case MethodMin:
		return &slopeOrderResolver{descending: false}, nil
	case MethodInterval:
		return &intervalResolver{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, cfg.Method)
	}
}
