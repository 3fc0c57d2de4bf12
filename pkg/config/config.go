// Package config handles chime configuration loading.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/r3d91ll/chime/pkg/api"
	"github.com/r3d91ll/chime/pkg/errors"
	"github.com/r3d91ll/chime/pkg/evolution"
	"github.com/r3d91ll/chime/pkg/link"
	"github.com/r3d91ll/chime/pkg/logging"
	"github.com/r3d91ll/chime/pkg/oscillator"
	"github.com/r3d91ll/chime/pkg/session"
)

// DefaultPrimeCount is the size of the default prime set: 15 header bits
// plus a 33-bit payload per frame.
const DefaultPrimeCount = 48

// Config is the root configuration structure.
type Config struct {
	Simulation   SimulationConfig          `yaml:"simulation"`
	Primes       []int                     `yaml:"primes"`
	Seeds        map[int][]oscillator.Seed `yaml:"seeds,omitempty"`
	Transmission TransmissionConfig        `yaml:"transmission"`
	Logging      logging.Config            `yaml:"logging"`
	Server       api.ServerConfig          `yaml:"server"`
	Store        StoreConfig               `yaml:"store"`
	Session      session.Config            `yaml:"session"`
}

// SimulationConfig is the evolution config plus the coupling mode.
type SimulationConfig struct {
	evolution.Config `yaml:",inline"`
	CouplingMode     string `yaml:"coupling_mode"`
}

// TransmissionConfig holds framing and link settings.
type TransmissionConfig struct {
	AllowCompression bool    `yaml:"allow_compression"`
	EntangleStrength float64 `yaml:"entangle_strength"`
	// RandSeed fixes the resonance-mode correction draws; 0 uses a random source.
	RandSeed uint64 `yaml:"rand_seed"`
}

// StoreConfig holds the SQLite store settings. An empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Config:       evolution.DefaultConfig(),
			CouplingMode: string(link.ModeDirect),
		},
		Primes: oscillator.PrimesFrom(1009, DefaultPrimeCount),
		Transmission: TransmissionConfig{
			AllowCompression: true,
		},
		Logging: logging.Default(),
		Server:  *api.DefaultServerConfig(),
		Store:   StoreConfig{Path: "./experiments/chime.db"},
		Session: session.Config{
			MeasurementMode: session.MeasureLatest,
			AutoExport:      false,
			ExportPath:      "./experiments",
		},
	}
}

// Mode returns the parsed coupling mode.
func (c *Config) Mode() (link.Mode, error) {
	return link.ParseMode(c.Simulation.CouplingMode)
}

// Validate checks the configuration for values the simulation cannot run with.
func (c *Config) Validate() error {
	if len(c.Primes) == 0 {
		return invalid("primes", "at least one prime is required").
			WithSuggestion("Run 'chime init' to write a default prime set")
	}
	seen := make(map[int]bool, len(c.Primes))
	for i, p := range c.Primes {
		if !oscillator.IsPrime(p) {
			return invalid("primes", "not a prime: "+strconv.Itoa(p)).WithContextf("index", i)
		}
		if seen[p] {
			return invalid("primes", "duplicate prime: "+strconv.Itoa(p)).WithContextf("index", i)
		}
		seen[p] = true
	}
	for p := range c.Seeds {
		if !seen[p] {
			return invalid("seeds", "seeds given for a prime not in primes: "+strconv.Itoa(p))
		}
	}

	sim := c.Simulation
	if sim.Delta <= 0 {
		return invalid("simulation.delta", "delta must be positive")
	}
	if sim.Epsilon < 0 || sim.Threshold < 0 || sim.AmplitudeEpsilon < 0 {
		return invalid("simulation", "epsilon, threshold and amplitude_epsilon must not be negative")
	}
	strengths := map[string]float64{
		"message_attractor_force_strength": sim.MessageAttractorForceStrength,
		"inter_basis_resonance_strength":   sim.InterBasisResonanceStrength,
		"amplitude_coupling_strength":      sim.AmplitudeCouplingStrength,
		"intra_basis_coherence_strength":   sim.IntraBasisCoherenceStrength,
		"correction_strength":              sim.CorrectionStrength,
		"message_resonance_strength":       sim.MessageResonanceStrength,
		"quantum_field_strength":           sim.QuantumFieldStrength,
		"sender_stabilization_strength":    sim.SenderStabilizationStrength,
		"nonlocal_coupling_strength":       sim.NonlocalCouplingStrength,
		"quantum_correlation_strength":     sim.QuantumCorrelationStrength,
	}
	for name, v := range strengths {
		if v < 0 {
			return invalid("simulation."+name, name+" must not be negative").WithContextf("value", v)
		}
	}
	if sim.EnablePhaseCorrection && sim.CorrectionInterval < 1 {
		return invalid("simulation.correction_interval", "correction_interval must be at least 1 when correction is enabled")
	}
	if sim.Cycles < 0 {
		return invalid("simulation.cycles", "cycles must not be negative")
	}
	if sim.MaxPulsarsPerPrime < 0 {
		return invalid("simulation.max_pulsars_per_prime", "max_pulsars_per_prime must not be negative")
	}
	if _, err := c.Mode(); err != nil {
		return errors.WrapConfig(err, errors.ErrConfigInvalid, "invalid coupling mode").
			WithContext("field", "simulation.coupling_mode")
	}
	if c.Transmission.EntangleStrength < 0 || c.Transmission.EntangleStrength > 1 {
		return invalid("transmission.entangle_strength", "entangle_strength must be within [0, 1]")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return errors.WrapConfig(err, errors.ErrConfigInvalid, "invalid session config")
	}
	return nil
}

func invalid(field, msg string) *errors.ChimeError {
	return errors.ConfigError(errors.ErrConfigInvalid, msg).WithContext("field", field)
}

// Load loads configuration from a file. Missing keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapConfig(err, errors.ErrConfigNotFound, "config file not found").
				WithContext("path", path).
				WithSuggestion("Run 'chime init' to create one")
		}
		return nil, errors.WrapConfig(err, errors.ErrConfigNotFound, "failed to read config").
			WithContext("path", path)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrConfigParseFailed, "failed to parse config").
			WithContext("path", path)
	}
	return cfg, nil
}

// LoadOrDefault loads config from path, or returns default if not found.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Save saves configuration to a file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.WrapConfig(err, errors.ErrConfigWriteFailed, "failed to create config directory").
			WithContext("path", path)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.WrapConfig(err, errors.ErrConfigWriteFailed, "failed to marshal config")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.WrapConfig(err, errors.ErrConfigWriteFailed, "failed to write config file").
			WithContext("path", path)
	}
	return nil
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	if _, err := os.Stat("chime.yaml"); err == nil {
		return "chime.yaml"
	}
	if _, err := os.Stat("config/chime.yaml"); err == nil {
		return "config/chime.yaml"
	}
	return "chime.yaml"
}

// InitConfig creates a default config file if it doesn't exist. It reports
// whether a file was written.
func InitConfig(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := Default().Save(path); err != nil {
		return false, err
	}
	return true, nil
}
