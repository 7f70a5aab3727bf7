// Package config loads the YAML description of a decomposition run.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Transport kinds
const (
	TransportLocal     = "local"
	TransportNATS      = "nats"
	TransportJetStream = "jetstream"
	TransportGRPC      = "grpc"
)

// Config is the root configuration structure.
type Config struct {
	Domain    DomainConfig    `yaml:"domain"`
	Partition PartitionConfig `yaml:"partition"`
	Run       RunConfig       `yaml:"run"`
	Transport TransportConfig `yaml:"transport"`
	Steering  SteeringConfig  `yaml:"steering"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// DomainConfig is the simulation space.
type DomainConfig struct {
	Origin     []int  `yaml:"origin"`     // defaults to zero
	Dimensions []int  `yaml:"dimensions"` // 1 to 3 extents
	Periodic   []bool `yaml:"periodic"`   // per axis, missing axes are bounded
}

// PartitionConfig selects the decomposition.
type PartitionConfig struct {
	Strategy     string    `yaml:"strategy"` // striping, checkerboarding, recursive-bisection, zcurve, unstructured, mesh
	Ranks        int       `yaml:"ranks"`
	Weights      []float64 `yaml:"weights"`
	Offset       int       `yaml:"offset"`
	MeshFile     string    `yaml:"mesh_file"`
	MaxImbalance float64   `yaml:"max_imbalance"`
}

// RunConfig drives the stepper.
type RunConfig struct {
	Steps             uint64  `yaml:"steps"`
	StartStep         uint64  `yaml:"start_step"`
	NanoStepsPerCycle uint64  `yaml:"nano_steps_per_cycle"`
	GhostWidth        int     `yaml:"ghost_width"`
	StencilRadius     int     `yaml:"stencil_radius"`
	Alpha             float64 `yaml:"alpha"` // heat diffusion coefficient
	LocalRanks        []int   `yaml:"local_ranks"`

	// ReceiveTimeout fails the run when a ghost patch does not arrive in
	// time, one minute when unset
	ReceiveTimeout time.Duration `yaml:"receive_timeout"`
}

// TransportConfig selects how patches travel between ranks.
type TransportConfig struct {
	Kind string     `yaml:"kind"` // local, nats, jetstream, grpc
	NATS NATSConfig `yaml:"nats"`
	GRPC GRPCConfig `yaml:"grpc"`
}

// NATSConfig configures the NATS transport.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`

	// JetStream only
	Stream string        `yaml:"stream"`
	MaxAge time.Duration `yaml:"max_age"`
	Purge  bool          `yaml:"purge"`
}

// GRPCConfig configures the gRPC transport.
type GRPCConfig struct {
	Listen string `yaml:"listen"`
	// Peers maps every rank to the address serving it. Ranks without an
	// entry are served by this process.
	Peers map[int]string `yaml:"peers"`
}

// SteeringConfig attaches a field monitor.
type SteeringConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Period    uint64 `yaml:"period"`
	FirstStep uint64 `yaml:"first_step"`
	LastStep  uint64 `yaml:"last_step"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Load reads, defaults and validates a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a small periodic heat diffusion run on four ranks
func Default() *Config {
	cfg := &Config{
		Domain:    DomainConfig{Dimensions: []int{64, 64}, Periodic: []bool{true, true}},
		Partition: PartitionConfig{Strategy: "checkerboarding", Ranks: 4},
	}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills every unset field
func (c *Config) SetDefaults() {
	if len(c.Domain.Origin) == 0 {
		c.Domain.Origin = make([]int, len(c.Domain.Dimensions))
	}
	if c.Partition.Strategy == "" {
		c.Partition.Strategy = "striping"
	}
	if c.Partition.Ranks == 0 && len(c.Partition.Weights) == 0 {
		c.Partition.Ranks = 1
	}
	if c.Run.Steps == 0 {
		c.Run.Steps = 100
	}
	if c.Run.NanoStepsPerCycle == 0 {
		c.Run.NanoStepsPerCycle = 1
	}
	if c.Run.StencilRadius == 0 {
		c.Run.StencilRadius = 1
	}
	if c.Run.GhostWidth == 0 {
		c.Run.GhostWidth = c.Run.StencilRadius
	}
	if c.Run.Alpha == 0 {
		c.Run.Alpha = 0.1
	}
	if c.Transport.Kind == "" {
		c.Transport.Kind = TransportLocal
	}
	if c.Transport.NATS.URL == "" {
		c.Transport.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.Transport.NATS.SubjectPrefix == "" {
		c.Transport.NATS.SubjectPrefix = "geodecomp.patch"
	}
	if c.Transport.NATS.Stream == "" {
		c.Transport.NATS.Stream = "GEODECOMP_PATCHES"
	}
	if c.Run.ReceiveTimeout == 0 {
		c.Run.ReceiveTimeout = time.Minute
	}
	if c.Transport.GRPC.Listen == "" {
		c.Transport.GRPC.Listen = "127.0.0.1:7400"
	}
	if c.Steering.Period == 0 {
		c.Steering.Period = 10
	}
	if c.Steering.LastStep == 0 {
		c.Steering.LastStep = c.Run.Steps
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "geodecomp"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	dims := len(c.Domain.Dimensions)
	check(dims >= 1 && dims <= 3, "domain.dimensions needs 1 to 3 extents, got %d", dims)
	for i, d := range c.Domain.Dimensions {
		check(d > 0, "domain.dimensions[%d] must be positive, got %d", i, d)
	}
	check(len(c.Domain.Origin) == dims, "domain.origin has %d components for %d dimensions", len(c.Domain.Origin), dims)
	check(len(c.Domain.Periodic) <= dims, "domain.periodic has %d flags for %d dimensions", len(c.Domain.Periodic), dims)

	check(c.Partition.Ranks >= 0, "partition.ranks must not be negative")
	check(c.Partition.Ranks == 0 || len(c.Partition.Weights) == 0 || len(c.Partition.Weights) == c.Partition.Ranks,
		"partition.weights has %d entries for %d ranks", len(c.Partition.Weights), c.Partition.Ranks)
	for i, w := range c.Partition.Weights {
		check(w >= 0, "partition.weights[%d] is negative", i)
	}
	check(c.Partition.Strategy != "mesh" || c.Partition.MeshFile != "", "partition.mesh_file is required by the mesh strategy")
	check(c.Partition.MaxImbalance == 0 || c.Partition.MaxImbalance >= 1, "partition.max_imbalance must be 0 or >= 1")

	check(c.Run.GhostWidth >= c.Run.StencilRadius, "run.ghost_width %d is below run.stencil_radius %d",
		c.Run.GhostWidth, c.Run.StencilRadius)
	check(c.Run.StartStep < c.Run.Steps, "run.start_step %d must be below run.steps %d", c.Run.StartStep, c.Run.Steps)
	if dims > 0 {
		check(c.Run.Alpha > 0 && c.Run.Alpha <= 1/float64(2*dims), "run.alpha %g is outside (0, %g]", c.Run.Alpha, 1/float64(2*dims))
	}

	switch c.Transport.Kind {
	case TransportLocal, TransportNATS, TransportJetStream, TransportGRPC:
	default:
		check(false, "transport.kind %q is not one of local, nats, jetstream, grpc", c.Transport.Kind)
	}
	check(c.Run.ReceiveTimeout >= 0, "run.receive_timeout must not be negative")
	check(c.Transport.Kind != TransportLocal || len(c.Run.LocalRanks) == 0,
		"run.local_ranks requires a nats, jetstream or grpc transport")

	if c.Steering.Enabled {
		check(c.Steering.FirstStep <= c.Steering.LastStep, "steering.first_step %d is after steering.last_step %d",
			c.Steering.FirstStep, c.Steering.LastStep)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		check(false, "log.format %q is not text or json", c.Log.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Periodic returns the per-axis wrap flags padded to the domain rank
func (c *Config) Periodic() []bool {
	out := make([]bool, len(c.Domain.Dimensions))
	copy(out, c.Domain.Periodic)
	return out
}
