// Package config provides configuration loading and management for volconform.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"volconform/pkg/volume"
)

// Tolerances holds the absolute spacing tolerance per spatial unit. Two
// spacings within the tolerance for their unit are considered equal, so
// imperceptible floating-point differences never force a resample while a
// genuine resolution mismatch still does.
type Tolerances struct {
	Meter      float64 `yaml:"meter"`
	Millimeter float64 `yaml:"millimeter"`
	Micron     float64 `yaml:"micron"`
}

// ForUnit returns the tolerance for a spatial unit. An image that reports no
// unit falls under the millimeter entry by convention; the assumption is
// visible here and in the tolerance table rather than buried in control flow.
func (t Tolerances) ForUnit(u volume.Unit) float64 {
	switch u {
	case volume.UnitMeter:
		return t.Meter
	case volume.UnitMicron:
		return t.Micron
	default:
		return t.Millimeter
	}
}

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Tolerances is the unit-keyed spacing tolerance table. An image that
	// reports no spatial unit falls under the millimeter entry by convention.
	Tolerances Tolerances `yaml:"tolerances"`

	// Conform parameters control the grid unifier.
	Conform struct {
		// Suffix is appended to input filenames for conformed outputs.
		Suffix string `yaml:"suffix"`

		// Interpolation selects the resampling kernel: "linear" or "nearest".
		Interpolation string `yaml:"interpolation"`

		// OutputDir places outputs in a directory instead of next to inputs.
		// Empty means next to the input file.
		OutputDir string `yaml:"outputDir"`
	} `yaml:"conform"`

	// Reference parameters control the reference grid synthesizer.
	Reference struct {
		// Suffix is appended to the fixed image's filename for the output.
		Suffix string `yaml:"suffix"`

		// RoundDecimals is the number of decimals the moving image's spacing
		// is rounded to before building the reference grid.
		RoundDecimals int `yaml:"roundDecimals"`
	} `yaml:"reference"`

	// Merge parameters control intra-modal merging.
	Merge struct {
		// MergedSuffix names the concatenated series output.
		MergedSuffix string `yaml:"mergedSuffix"`

		// AverageSuffix names the averaged volume output.
		AverageSuffix string `yaml:"averageSuffix"`

		// ZeroBasedAverage shifts the averaged volume so its minimum is zero.
		ZeroBasedAverage bool `yaml:"zeroBasedAverage"`

		// ToCanonical reorients inputs to canonical RAS before merging.
		ToCanonical bool `yaml:"toCanonical"`
	} `yaml:"merge"`

	// Preview parameters control QC slice extraction.
	Preview struct {
		// Quality is the JPEG quality for preview slices.
		Quality int `yaml:"quality"`
	} `yaml:"preview"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Tolerances.Meter = 5e-5
	cfg.Tolerances.Millimeter = 0.05
	cfg.Tolerances.Micron = 50

	cfg.Conform.Suffix = "conformed"
	cfg.Conform.Interpolation = "linear"

	cfg.Reference.Suffix = "ref"
	cfg.Reference.RoundDecimals = 3

	cfg.Merge.MergedSuffix = "merged"
	cfg.Merge.AverageSuffix = "avg"
	cfg.Merge.ZeroBasedAverage = true
	cfg.Merge.ToCanonical = true

	cfg.Preview.Quality = 90

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
