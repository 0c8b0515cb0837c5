// Command respiro-simulate generates a synthetic respirometry trace: a
// linear oxygen decline with Gaussian noise, optional flush plateaus, and
// optional sampling gaps. Useful for exercising the CLI and for regression
// fixtures.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
)

func main() {
	rows := flag.Int("rows", 3600, "Number of samples to generate")
	step := flag.Float64("step", 1.0, "Time step between samples")
	start := flag.Float64("start", 9.5, "Starting oxygen concentration")
	slope := flag.Float64("slope", -0.0008, "True oxygen rate (negative = uptake)")
	noise := flag.Float64("noise", 0.01, "Gaussian noise standard deviation")
	flushEvery := flag.Int("flush-every", 0, "Insert a flush plateau every N samples (0 = none)")
	flushLen := flag.Int("flush-len", 120, "Flush plateau length in samples")
	gapEvery := flag.Int("gap-every", 0, "Drop a sample every N rows to create gaps (0 = none)")
	seed := flag.Int64("seed", 1, "Random seed")
	out := flag.String("out", "", "Output file (default stdout)")
	flag.Parse()

	// Explicit source: output must be reproducible from the seed alone
	rng := rand.New(rand.NewSource(*seed))

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"time", "oxygen"}); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing header: %v\n", err)
		os.Exit(1)
	}

	oxygen := *start
	inFlush := 0
	for i := 0; i < *rows; i++ {
		t := float64(i) * *step

		if *flushEvery > 0 && i > 0 && i%*flushEvery == 0 {
			inFlush = *flushLen
			oxygen = *start
		}
		if inFlush > 0 {
			inFlush--
		} else {
			oxygen += *slope * *step
		}

		if *gapEvery > 0 && i%*gapEvery == (*gapEvery-1) {
			continue
		}

		value := oxygen + rng.NormFloat64()**noise
		record := []string{
			strconv.FormatFloat(t, 'g', -1, 64),
			strconv.FormatFloat(value, 'g', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing row %d: %v\n", i, err)
			os.Exit(1)
		}
	}
}
