// Command respiro runs automatic rate detection over a two-column
// (time, oxygen) CSV trace and prints the ranked candidate segments.
// Import parsing and printing live here; the detection core only ever sees
// a validated series.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"

	"github.com/aquametrics/respiro/internal/autorate"
	"github.com/aquametrics/respiro/internal/density"
	"github.com/aquametrics/respiro/internal/log"
	"github.com/aquametrics/respiro/internal/regression"
	"github.com/aquametrics/respiro/internal/series"
	"github.com/aquametrics/respiro/internal/storage"
	"github.com/aquametrics/respiro/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	csvFile := flag.String("csv", "", "Path to a two-column (time, oxygen) CSV trace")
	cfgFile := flag.String("config", "", "Optional YAML config with analysis defaults")
	method := flag.String("method", "", "Detection method: linear, max, min, or interval")
	width := flag.Float64("width", 0, "Window width (rows, time span, or fraction per -width-unit)")
	widthUnit := flag.String("width-unit", "", "Width unit: rows, time, or fraction")
	top := flag.Int("top", 0, "Number of ranked segments to print")
	fullTable := flag.Bool("full", false, "Print the entire ranked table")
	dbPath := flag.String("db", "", "Optional SQLite archive for run results")
	listRuns := flag.Bool("list", false, "List archived runs from -db and exit")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("respiro %s\n", version)
		os.Exit(0)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := config.BuiltIn()
	if *cfgFile != "" {
		loaded, err := config.NewYAMLProvider(*cfgFile).Load()
		if err != nil {
			log.Errorf("Failed to load configuration: %v", err)
			os.Exit(1)
		}
		cfg = *loaded
	}

	// Flags override the config file
	if *method != "" {
		cfg.Method = *method
	}
	if *width != 0 {
		cfg.Width = *width
	}
	if *widthUnit != "" {
		cfg.WidthUnit = *widthUnit
	}
	if *top != 0 {
		cfg.Top = *top
	}
	if *dbPath != "" {
		cfg.Database = *dbPath
	}

	if *listRuns {
		if cfg.Database == "" {
			fmt.Fprintln(os.Stderr, "Error: -list requires -db (or a database entry in the config file)")
			os.Exit(1)
		}
		if err := printArchivedRuns(cfg.Database); err != nil {
			log.Errorf("Failed to list runs: %v", err)
			os.Exit(1)
		}
		return
	}

	if *csvFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -csv is required. Run with -h for help.")
		os.Exit(1)
	}

	times, values, err := readTrace(*csvFile)
	if err != nil {
		log.Errorf("Failed to read trace: %v", err)
		os.Exit(1)
	}

	s, err := series.Validate(times, values)
	if err != nil {
		log.Errorf("Invalid trace: %v", err)
		os.Exit(1)
	}
	printDiagnostics(s)

	runCfg := autorate.Config{
		Method:    autorate.Method(cfg.Method),
		Width:     cfg.Width,
		WidthUnit: regression.WidthUnit(cfg.WidthUnit),
		Density:   density.Options{GridSize: cfg.KDEGrid, Bins: cfg.KDEBins},
	}

	rs, err := autorate.Run(s, runCfg, log.GetSugaredLogger())
	if err != nil {
		if errors.Is(err, density.ErrNoLinearRegion) {
			fmt.Println("No linear region detected; select a window manually or try a different width.")
		}
		log.Errorf("Detection failed: %v", err)
		os.Exit(1)
	}

	printResults(rs, cfg.Top, *fullTable)

	if cfg.Database != "" {
		id, err := archiveRun(cfg.Database, *csvFile, runCfg, rs)
		if err != nil {
			log.Errorf("Failed to archive run: %v", err)
			os.Exit(1)
		}
		fmt.Printf("\nRun archived as %s in %s\n", id, cfg.Database)
	}
}

// readTrace parses a two-column CSV. A single non-numeric leading row is
// treated as a header.
func readTrace(path string) ([]float64, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 2

	var times, values []float64
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", row+1, err)
		}
		row++

		t, terr := strconv.ParseFloat(record[0], 64)
		v, verr := strconv.ParseFloat(record[1], 64)
		if terr != nil || verr != nil {
			if row == 1 {
				continue // header
			}
			return nil, nil, fmt.Errorf("row %d: non-numeric values %q, %q", row, record[0], record[1])
		}
		times = append(times, t)
		values = append(values, v)
	}
	return times, values, nil
}

func printDiagnostics(s *series.Series) {
	fmt.Printf("Trace: %d rows over %.4g time units\n", s.Len(), s.Duration())
	fmt.Printf("  Sampling: median step %.4g (min %.4g, max %.4g)\n", s.MedianStep, s.MinStep, s.MaxStep)
	if s.Irregular {
		fmt.Printf("  Warning: irregular sampling (%d gaps, %d duplicate timestamps); row-count widths are approximate\n",
			s.Gaps, s.DuplicateTimes)
	}
	fmt.Println()
}

func printResults(rs *autorate.ResultSet, top int, full bool) {
	fmt.Printf("Method: %s  (%d windows, %d degenerate skipped", rs.Method, rs.Windows, rs.Degenerate)
	if rs.Bandwidth > 0 {
		fmt.Printf(", KDE bandwidth %.4g", rs.Bandwidth)
	}
	fmt.Printf(")\n\n")

	limit := top
	if full || limit > rs.Len() || limit < 1 {
		limit = rs.Len()
	}

	fmt.Printf("%4s | %12s | %12s | %8s | %6s | %10s | %10s | %5s\n",
		"Rank", "Slope", "Intercept", "R²", "Rows", "From", "To", "Group")
	fmt.Printf("-----+--------------+--------------+----------+--------+------------+------------+------\n")
	for i := 0; i < limit; i++ {
		sg := rs.Segments[i]
		group := "-"
		if sg.GroupSize > 0 {
			group = strconv.Itoa(sg.GroupSize)
		}
		fmt.Printf("%4d | %12.6g | %12.6g | %8.4f | %6d | %10.4g | %10.4g | %5s\n",
			sg.Rank, sg.Slope, sg.Intercept, sg.RSquared, sg.N, sg.TimeStart, sg.TimeEnd, group)
	}
	if limit < rs.Len() {
		fmt.Printf("... %d more segments (use -full to print all)\n", rs.Len()-limit)
	}

	topSeg := rs.Top()
	fmt.Printf("\nTop rate: %.6g oxygen units per time unit over [%g, %g] (R²=%.4f)\n",
		topSeg.Slope, topSeg.TimeStart, topSeg.TimeEnd, topSeg.RSquared)
}

func archiveRun(dbPath, source string, cfg autorate.Config, rs *autorate.ResultSet) (string, error) {
	store, err := storage.New(dbPath, log.GetSugaredLogger())
	if err != nil {
		return "", err
	}
	defer store.Close()
	return store.SaveRun(context.Background(), source, cfg, rs)
}

func printArchivedRuns(dbPath string) error {
	store, err := storage.New(dbPath, log.GetSugaredLogger())
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background())
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No archived runs.")
		return nil
	}

	fmt.Printf("%-36s | %-19s | %-8s | %8s | %-26s\n", "Run", "Created", "Method", "Windows", "Source")
	for _, r := range runs {
		fmt.Printf("%-36s | %-19s | %-8s | %8d | %-26s\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Method, r.Windows, r.Source)
	}
	return nil
}
