// Package config provides configuration loading and management for gtenergy.
// It handles loading configuration from YAML files, provides default values
// and validates the options the energy computers are constructed from.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Kernel names accepted for Energy.Kernel
const (
	KernelHann      = "hann"
	KernelTrilinear = "trilinear"
)

// maxLmax mirrors the highest order the harmonic basis supports
const maxLmax = 16

// Energy holds the options of the external energy computer
type Energy struct {
	// Lmax is the maximum spherical harmonic order of the TOD (even)
	Lmax int `yaml:"lmax"`

	// Beta is the roll-off of the apodization window, in (0, 1)
	Beta float64 `yaml:"beta"`

	// Regularization is the ridge weight on the isotropic fractions
	Regularization float64 `yaml:"regularization"`

	// KernelRadius is the support radius of the deposition kernel in voxels
	KernelRadius float64 `yaml:"kernelRadius"`

	// Kernel selects the deposition kernel: "hann" or "trilinear"
	Kernel string `yaml:"kernel"`
}

// Response holds the single-fibre and isotropic response functions
type Response struct {
	// Shells lists the b-values of the acquisition shells
	Shells []float64 `yaml:"shells"`

	// ShellTolerance is the b-value distance within which a gradient row
	// belongs to a shell
	ShellTolerance float64 `yaml:"shellTolerance"`

	// WM holds, per shell, the zonal harmonic coefficients (l = 0, 2, 4, ...)
	// of the single-fibre response
	WM [][]float64 `yaml:"wm"`

	// ISO holds, per isotropic compartment, the signal of that compartment
	// on each shell. An empty list disables the isotropic model.
	ISO [][]float64 `yaml:"iso"`
}

// Potential holds the options of the per-particle internal energy
type Potential struct {
	// PPot is the energy cost of every particle
	PPot float64 `yaml:"ppot"`

	// Weight balances the internal against the external energy
	Weight float64 `yaml:"weight"`
}

// Phantom describes the synthetic acquisition used when no image is supplied
type Phantom struct {
	// Dims is the spatial extent in voxels
	Dims [3]int `yaml:"dims"`

	// VoxelSize is the isotropic voxel size in mm
	VoxelSize float64 `yaml:"voxelSize"`

	// B0Volumes is the number of unweighted volumes
	B0Volumes int `yaml:"b0Volumes"`

	// Directions is the number of gradient directions per weighted shell
	Directions int `yaml:"directions"`

	// Noise is the standard deviation of the Rician noise (0 disables it)
	Noise float64 `yaml:"noise"`

	// Fiso is the isotropic fraction added to every voxel
	Fiso float64 `yaml:"fiso"`

	// Seed initialises the noise generator
	Seed uint64 `yaml:"seed"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	Energy    Energy    `yaml:"energy"`
	Response  Response  `yaml:"response"`
	Potential Potential `yaml:"potential"`
	Phantom   Phantom   `yaml:"phantom"`

	// Processing parameters
	Processing struct {
		// Chains is how many independent clones are evaluated in parallel
		Chains int `yaml:"chains"`

		// DriftTolerance is the relative drift above which a reset is reported
		DriftTolerance float64 `yaml:"driftTolerance"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Dir is where reports and slices are written
		Dir string `yaml:"dir"`

		// SaveSlices writes PNG slices of the energy and density fields
		SaveSlices bool `yaml:"saveSlices"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultEnergy returns the default external energy options
func DefaultEnergy() Energy {
	return Energy{
		Lmax:           8,
		Beta:           0.5,
		Regularization: 0.01,
		KernelRadius:   1.0,
		Kernel:         KernelHann,
	}
}

// DefaultResponse returns a two-shell response with one free-water compartment
func DefaultResponse() Response {
	return Response{
		Shells:         []float64{0, 1000},
		ShellTolerance: 80,
		WM: [][]float64{
			{1.0},
			{1.0, -0.15, 0.02},
		},
		ISO: [][]float64{
			{1.0, 0.05},
		},
	}
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{
		Energy:   DefaultEnergy(),
		Response: DefaultResponse(),
		Potential: Potential{
			PPot:   0.05,
			Weight: 1.0,
		},
		Phantom: Phantom{
			Dims:       [3]int{10, 10, 4},
			VoxelSize:  2.0,
			B0Volumes:  2,
			Directions: 30,
			Noise:      0.0,
			Fiso:       0.1,
			Seed:       1,
		},
	}

	cfg.Processing.Chains = runtime.NumCPU() // One chain per core by default
	cfg.Processing.DriftTolerance = 1e-9

	cfg.Output.Dir = "gtenergy_output"
	cfg.Output.SaveSlices = false
	cfg.Output.Verbose = false

	return cfg
}

// Validate checks the external energy options
func (e Energy) Validate() error {
	if e.Lmax < 0 || e.Lmax > maxLmax || e.Lmax%2 != 0 {
		return fmt.Errorf("%w: lmax must be an even number in [0, %d], got %d", ErrInvalidConfig, maxLmax, e.Lmax)
	}
	if !(e.Beta > 0 && e.Beta < 1) {
		return fmt.Errorf("%w: beta must lie in (0, 1), got %g", ErrInvalidConfig, e.Beta)
	}
	if !(e.Regularization >= 0) || math.IsInf(e.Regularization, 0) {
		return fmt.Errorf("%w: regularization must be finite and non-negative, got %g", ErrInvalidConfig, e.Regularization)
	}
	if !(e.KernelRadius > 0) || math.IsInf(e.KernelRadius, 0) {
		return fmt.Errorf("%w: kernel radius must be finite and positive, got %g", ErrInvalidConfig, e.KernelRadius)
	}
	switch e.Kernel {
	case KernelHann, KernelTrilinear:
	default:
		return fmt.Errorf("%w: unknown kernel %q", ErrInvalidConfig, e.Kernel)
	}
	return nil
}

// Validate checks the response functions against the shell list
func (r Response) Validate() error {
	if len(r.Shells) == 0 {
		return fmt.Errorf("%w: at least one shell is required", ErrInvalidConfig)
	}
	if !(r.ShellTolerance > 0) {
		return fmt.Errorf("%w: shell tolerance must be positive, got %g", ErrInvalidConfig, r.ShellTolerance)
	}
	if len(r.WM) != len(r.Shells) {
		return fmt.Errorf("%w: %d white-matter responses for %d shells", ErrInvalidConfig, len(r.WM), len(r.Shells))
	}
	for i, iso := range r.ISO {
		if len(iso) != len(r.Shells) {
			return fmt.Errorf("%w: isotropic response %d has %d values for %d shells", ErrInvalidConfig, i, len(iso), len(r.Shells))
		}
	}
	for _, set := range [][][]float64{r.WM, r.ISO} {
		for _, row := range set {
			for _, v := range row {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return fmt.Errorf("%w: response values must be finite", ErrInvalidConfig)
				}
			}
		}
	}
	return nil
}

// Validate checks the internal energy options
func (p Potential) Validate() error {
	if math.IsNaN(p.PPot) || math.IsInf(p.PPot, 0) {
		return fmt.Errorf("%w: particle potential must be finite", ErrInvalidConfig)
	}
	if !(p.Weight >= 0) || math.IsInf(p.Weight, 0) {
		return fmt.Errorf("%w: potential weight must be finite and non-negative, got %g", ErrInvalidConfig, p.Weight)
	}
	return nil
}

// Validate checks the whole configuration
func (c *Config) Validate() error {
	if err := c.Energy.Validate(); err != nil {
		return err
	}
	if err := c.Response.Validate(); err != nil {
		return err
	}
	if err := c.Potential.Validate(); err != nil {
		return err
	}
	for i, d := range c.Phantom.Dims {
		if d <= 0 {
			return fmt.Errorf("%w: phantom dimension %d must be positive", ErrInvalidConfig, i)
		}
	}
	if !(c.Phantom.VoxelSize > 0) {
		return fmt.Errorf("%w: phantom voxel size must be positive", ErrInvalidConfig)
	}
	if c.Phantom.Noise < 0 {
		return fmt.Errorf("%w: phantom noise must be non-negative", ErrInvalidConfig)
	}
	if c.Processing.Chains <= 0 {
		return fmt.Errorf("%w: at least one chain is required", ErrInvalidConfig)
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

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
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
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
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
