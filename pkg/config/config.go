// Package config provides configuration loading and management for spotmatch.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config represents the application configuration loaded from YAML
type Config struct {
	// Blob detection parameters
	Detection struct {
		// MinRadius is the smallest blob radius in voxels (one value or one per axis)
		MinRadius []float64 `yaml:"minRadius"`

		// MaxRadius is the largest blob radius in voxels (one value or one per axis)
		MaxRadius []float64 `yaml:"maxRadius"`

		// Method is "log" or "dog"
		Method string `yaml:"method"`

		// NumSigma is the number of scales sampled by the LoG detector
		NumSigma int `yaml:"numSigma"`

		// Threshold is the absolute detector threshold; unset means ThresholdRel is used
		Threshold *float64 `yaml:"threshold,omitempty"`

		// ThresholdRel is the threshold relative to the strongest response
		ThresholdRel float64 `yaml:"thresholdRel"`

		// WinsorizeLimits clips the low and high tails before detection
		WinsorizeLimits []float64 `yaml:"winsorizeLimits,omitempty"`

		// BackgroundSubtract applies a white top-hat before detection
		BackgroundSubtract bool `yaml:"backgroundSubtract"`

		// ExcludeBorder drops maxima closer to the edge than the detection footprint
		ExcludeBorder bool `yaml:"excludeBorder"`
	} `yaml:"detection"`

	// Neighborhood parameters
	Context struct {
		// Radius is the neighborhood half width (one value or one per axis)
		Radius []int `yaml:"radius"`
	} `yaml:"context"`

	// Matching parameters
	Matching struct {
		// Threshold is the minimum correlation for a valid match (strict)
		Threshold float64 `yaml:"threshold"`

		// MaxDistance gates matches by Euclidean distance in voxels; unset disables gating
		MaxDistance *float64 `yaml:"maxDistance,omitempty"`

		// MaxSpots keeps only the brightest spots of each volume; 0 keeps all
		MaxSpots int `yaml:"maxSpots"`
	} `yaml:"matching"`

	// Processing parameters
	Processing struct {
		// NumCores bounds how many volumes are processed at once
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`

		// JSONLogs switches the log format to JSON lines
		JSONLogs bool `yaml:"jsonLogs"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Detection.MinRadius = []float64{2}
	cfg.Detection.MaxRadius = []float64{6}
	cfg.Detection.Method = "log"
	cfg.Detection.NumSigma = 5
	cfg.Detection.ThresholdRel = 0.1

	cfg.Context.Radius = []int{6}

	cfg.Matching.Threshold = 0.5
	maxDistance := 20.0
	cfg.Matching.MaxDistance = &maxDistance

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	cfg.Output.Verbose = false
	return cfg
}

// Validate checks the configuration for values the pipeline cannot use
func (c *Config) Validate() error {
	if len(c.Detection.MinRadius) == 0 || len(c.Detection.MaxRadius) == 0 {
		return fmt.Errorf("%w: detection radii must be set", ErrInvalid)
	}
	switch c.Detection.Method {
	case "log", "dog":
	default:
		return fmt.Errorf("%w: unknown detection method %q", ErrInvalid, c.Detection.Method)
	}
	if n := len(c.Detection.WinsorizeLimits); n != 0 && n != 2 {
		return fmt.Errorf("%w: winsorizeLimits needs two values, got %d", ErrInvalid, n)
	}
	if len(c.Context.Radius) == 0 {
		return fmt.Errorf("%w: context radius must be set", ErrInvalid)
	}
	for _, r := range c.Context.Radius {
		if r < 0 {
			return fmt.Errorf("%w: negative context radius %d", ErrInvalid, r)
		}
	}
	if c.Matching.MaxDistance != nil && *c.Matching.MaxDistance < 0 {
		return fmt.Errorf("%w: negative maxDistance %v", ErrInvalid, *c.Matching.MaxDistance)
	}
	if c.Matching.MaxSpots < 0 {
		return fmt.Errorf("%w: negative maxSpots %d", ErrInvalid, c.Matching.MaxSpots)
	}
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("%w: numCores must be at least 1", ErrInvalid)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
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

	if err := cfg.Validate(); err != nil {
		return nil, err
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

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
