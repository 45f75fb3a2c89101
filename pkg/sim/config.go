package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the run configuration serialized for the solver. All file fields
// are relative to the run directory; the solver is launched with the run
// directory as its working directory and the config file name as its only
// argument.
type Config struct {
	SolverPath string `yaml:"-"` // executable, resolved by the caller

	Nx int `yaml:"nx"`
	Ny int `yaml:"ny"`
	Nz int `yaml:"nz"`

	Viscosity float64 `yaml:"viscosity"`
	Velocity  float64 `yaml:"inflow_velocity"`
	PumpForce float64 `yaml:"pump_force"`
	Steps     int     `yaml:"steps"`

	// SnapshotEvery is the publish cadence in solver steps.
	SnapshotEvery int    `yaml:"snapshot_every"`
	Geometry      string `yaml:"geometry"`
	SnapshotDir   string `yaml:"snapshot_dir"`
}

// DefaultConfig returns the solver defaults for a water-like medium.
func DefaultConfig() Config {
	return Config{
		Viscosity:     0.01,
		Velocity:      0.1,
		PumpForce:     0.0005,
		Steps:         100_000,
		SnapshotEvery: 100,
	}
}

// Validate checks the physical and cadence parameters. Grid dimensions are
// filled in by the bridge from the voxel grid and are not checked here.
func (c *Config) Validate() error {
	if c.SolverPath == "" {
		return fmt.Errorf("config: solver path not set")
	}
	if c.Viscosity <= 0 {
		return fmt.Errorf("config: viscosity %g, must be positive", c.Viscosity)
	}
	if c.Steps <= 0 {
		return fmt.Errorf("config: %d steps, must be positive", c.Steps)
	}
	if c.SnapshotEvery <= 0 {
		return fmt.Errorf("config: snapshot cadence %d, must be positive", c.SnapshotEvery)
	}
	return nil
}

// Save writes the config as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return c, nil
}
