// Package config provides configuration loading and management for
// mridataset. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"mridataset/pkg/kspace"
	"mridataset/pkg/raster"
	"mridataset/pkg/volume"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Pipeline parameters
	Pipeline struct {
		// OutResolution is the edge length of the square output canvas
		OutResolution int `yaml:"outResolution"`

		// SliceMin is the first depth index converted (inclusive)
		SliceMin int `yaml:"sliceMin"`

		// SliceMax is the last depth index converted (exclusive)
		SliceMax int `yaml:"sliceMax"`
	} `yaml:"pipeline"`

	// Undersampling parameters for k-space corruption
	Undersampling struct {
		// Enabled toggles k-space undersampling of every slice
		Enabled bool `yaml:"enabled"`

		// KeepFraction is the probability a frequency cell is retained
		KeepFraction float64 `yaml:"keepFraction"`

		// Seed initializes the mask random source; zero selects a
		// time-derived seed
		Seed uint64 `yaml:"seed"`
	} `yaml:"undersampling"`

	// Output parameters
	Output struct {
		// MinBrightnessToKeep is the post-scale maximum a slice must
		// exceed to be written; near-black slices below it are skipped
		MinBrightnessToKeep float64 `yaml:"minBrightnessToKeep"`

		// Verbose controls the level of progress output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Pipeline.OutResolution = raster.DefaultResolution
	cfg.Pipeline.SliceMin = volume.DefaultSliceMin
	cfg.Pipeline.SliceMax = volume.DefaultSliceMax

	cfg.Undersampling.Enabled = false
	cfg.Undersampling.KeepFraction = kspace.DefaultKeepFraction
	cfg.Undersampling.Seed = 0

	cfg.Output.MinBrightnessToKeep = raster.DefaultSkipPolicy.MinBrightnessToKeep
	cfg.Output.Verbose = true

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

// SaveConfig saves the configuration to a YAML file
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
