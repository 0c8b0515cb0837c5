// Package config loads analysis defaults from YAML configuration files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Defaults holds the tunable defaults for a detection run. Zero-valued
// fields fall back to the built-in defaults when loaded through a provider.
type Defaults struct {
	// Method is one of linear, max, min, interval.
	Method string `yaml:"method"`

	// Width and WidthUnit (rows, time, fraction) size the rolling window.
	Width     float64 `yaml:"width"`
	WidthUnit string  `yaml:"width_unit"`

	// Top is how many ranked segments the CLI prints.
	Top int `yaml:"top"`

	// KDEGrid and KDEBins tune the linear-method density estimate.
	KDEGrid int `yaml:"kde_grid"`
	KDEBins int `yaml:"kde_bins"`

	// Database is an optional SQLite archive path; empty disables
	// persistence.
	Database string `yaml:"database"`
}

// BuiltIn returns the compiled-in defaults: linear detection over a
// 0.2-fraction window, top 5 segments printed.
func BuiltIn() Defaults {
	return Defaults{
		Method:    "linear",
		Width:     0.2,
		WidthUnit: "fraction",
		Top:       5,
		KDEGrid:   512,
		KDEBins:   1000,
	}
}

// YAMLProvider reads Defaults from a YAML file.
type YAMLProvider struct {
	filename string
}

// NewYAMLProvider creates a provider for the given file.
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{filename: filename}
}

// Load parses the file and overlays it on the built-in defaults, so a
// partial config file only overrides what it names.
func (y *YAMLProvider) Load() (*Defaults, error) {
	raw, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var file Defaults
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	cfg := BuiltIn()
	if file.Method != "" {
		cfg.Method = file.Method
	}
	if file.Width != 0 {
		cfg.Width = file.Width
	}
	if file.WidthUnit != "" {
		cfg.WidthUnit = file.WidthUnit
	}
	if file.Top != 0 {
		cfg.Top = file.Top
	}
	if file.KDEGrid != 0 {
		cfg.KDEGrid = file.KDEGrid
	}
	if file.KDEBins != 0 {
		cfg.KDEBins = file.KDEBins
	}
	if file.Database != "" {
		cfg.Database = file.Database
	}
	return &cfg, nil
}
