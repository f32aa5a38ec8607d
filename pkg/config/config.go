// Package config provides configuration loading and management for dicomnerf.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"dicomnerf/pkg/partition"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Sweep parameters
	Sweep struct {
		// AzimuthStep is the horizontal camera step in degrees
		AzimuthStep float64 `yaml:"azimuthStep"`

		// ElevationStep is the vertical camera step in degrees
		ElevationStep float64 `yaml:"elevationStep"`

		// MaxAzimuth is the azimuth range covered by one row
		MaxAzimuth float64 `yaml:"maxAzimuth"`

		// MaxElevation is the elevation range, centred on the horizontal plane
		MaxElevation float64 `yaml:"maxElevation"`
	} `yaml:"sweep"`

	// Dataset parameters
	Dataset struct {
		// OutputRoot is the directory that receives output_as<AZ>_es<EL>
		OutputRoot string `yaml:"outputRoot"`

		// RandomSeed drives the split shuffle
		RandomSeed int64 `yaml:"randomSeed"`

		// ValFraction is the share of sweep frames labelled val
		ValFraction float64 `yaml:"valFraction"`

		// ExportPoses writes ground-truth poses instead of running COLMAP
		ExportPoses bool `yaml:"exportPoses"`

		// KeepExtension keeps ".png" in manifest file paths
		KeepExtension bool `yaml:"keepExtension"`

		// PoseScale divides the pose translation (world mm to scene units)
		PoseScale float64 `yaml:"poseScale"`
	} `yaml:"dataset"`

	// Camera parameters
	Camera struct {
		// ViewAngle is the vertical field of view in degrees
		ViewAngle float64 `yaml:"viewAngle"`
	} `yaml:"camera"`

	// Render parameters
	Render struct {
		// Size is the edge length of the square output image in pixels
		Size int `yaml:"size"`

		// Supersample renders at Size*Supersample before downsampling
		Supersample int `yaml:"supersample"`

		// SampleStep is the ray marching step in mm
		SampleStep float64 `yaml:"sampleStep"`

		// Workers is the number of goroutines sharing the image rows
		Workers int `yaml:"workers"`
	} `yaml:"render"`

	// External tools
	Tools struct {
		// ColmapPath is the COLMAP executable
		ColmapPath string `yaml:"colmapPath"`

		// PythonPath is the interpreter used for the conversion script
		PythonPath string `yaml:"pythonPath"`

		// Colmap2NerfPath is the colmap2nerf.py script
		Colmap2NerfPath string `yaml:"colmap2nerfPath"`
	} `yaml:"tools"`

	// Output parameters
	Output struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Sweep.AzimuthStep = 10
	cfg.Sweep.ElevationStep = 15
	cfg.Sweep.MaxAzimuth = 360
	cfg.Sweep.MaxElevation = 120

	cfg.Dataset.OutputRoot = filepath.Join("..", "output")
	cfg.Dataset.RandomSeed = partition.DefaultSeed
	cfg.Dataset.ValFraction = 0
	cfg.Dataset.ExportPoses = false
	cfg.Dataset.KeepExtension = true
	cfg.Dataset.PoseScale = 100

	cfg.Camera.ViewAngle = 40

	cfg.Render.Size = 800
	cfg.Render.Supersample = 1
	cfg.Render.Workers = runtime.NumCPU()
	cfg.Render.SampleStep = 0.5

	cfg.Tools.ColmapPath = "colmap"
	cfg.Tools.PythonPath = "python"
	cfg.Tools.Colmap2NerfPath = "colmap2nerf.py"

	cfg.Output.Verbose = false

	return cfg
}

// Validate checks the values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var errs []error
	if c.Sweep.AzimuthStep <= 0 || c.Sweep.ElevationStep <= 0 {
		errs = append(errs, fmt.Errorf("sweep steps must be positive, got azimuth=%g elevation=%g",
			c.Sweep.AzimuthStep, c.Sweep.ElevationStep))
	}
	if c.Sweep.MaxAzimuth <= 0 || c.Sweep.MaxElevation <= 0 {
		errs = append(errs, fmt.Errorf("sweep ranges must be positive"))
	}
	if c.Dataset.OutputRoot == "" {
		errs = append(errs, errors.New("dataset output root is empty"))
	}
	if c.Dataset.ValFraction < 0 || c.Dataset.ValFraction >= 1 {
		errs = append(errs, fmt.Errorf("val fraction must be in [0,1), got %g", c.Dataset.ValFraction))
	}
	if c.Dataset.ValFraction > 0 && !c.Dataset.ExportPoses {
		// val frames have no poses when only train goes through COLMAP
		errs = append(errs, errors.New("val fraction requires exportPoses"))
	}
	if c.Dataset.PoseScale <= 0 {
		errs = append(errs, fmt.Errorf("pose scale must be positive, got %g", c.Dataset.PoseScale))
	}
	if c.Camera.ViewAngle <= 0 || c.Camera.ViewAngle >= 180 {
		errs = append(errs, fmt.Errorf("view angle must be in (0,180), got %g", c.Camera.ViewAngle))
	}
	if c.Render.Size <= 0 || c.Render.Supersample <= 0 || c.Render.SampleStep <= 0 {
		errs = append(errs, errors.New("render size, supersample and sample step must be positive"))
	}
	return errors.Join(errs...)
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

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
	return SaveConfig(DefaultConfig(), configPath)
}
