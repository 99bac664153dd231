// Package config loads the stress harness configuration from YAML and
// fills in defaults for everything left unset.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"treiber/domain/stack"
	"treiber/service/stress"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full harness configuration.
type Config struct {
	Scenario  ScenarioConfig  `yaml:"scenario"`
	Soak      SoakConfig      `yaml:"soak"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Log       LogConfig       `yaml:"log"`
}

type ScenarioConfig struct {
	Variant         string `yaml:"variant"`
	Pushers         int    `yaml:"pushers"`
	PushesPerPusher int    `yaml:"pushes_per_pusher"`
	Poppers         int    `yaml:"poppers"`
	Seed            int64  `yaml:"seed"`
	PoisonCheck     bool   `yaml:"poison_check"`
}

type SoakConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MetricsAddr string        `yaml:"metrics_addr"`
	GRPCAddr    string        `yaml:"grpc_addr"`
}

type LedgerConfig struct {
	Dir string `yaml:"dir"`
}

// BroadcastConfig selects where run reports are published.
// Driver is one of "none", "sarama" or "kafka-go".
type BroadcastConfig struct {
	Driver   string        `yaml:"driver"`
	Brokers  []string      `yaml:"brokers"`
	Topic    string        `yaml:"topic"`
	Interval time.Duration `yaml:"interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a config with every default applied.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// Load reads path and applies defaults. An empty path yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes raw YAML, applies defaults and validates the result.
func Parse(raw []byte) (Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(raw, &c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Scenario.Variant == "" {
		c.Scenario.Variant = stack.Reclaiming.String()
	}
	if c.Scenario.Pushers == 0 {
		c.Scenario.Pushers = 10
	}
	if c.Scenario.PushesPerPusher == 0 {
		c.Scenario.PushesPerPusher = 10
	}
	if c.Scenario.Poppers == 0 {
		c.Scenario.Poppers = 10
	}
	if c.Soak.Interval == 0 {
		c.Soak.Interval = 5 * time.Second
	}
	if c.Soak.MetricsAddr == "" {
		c.Soak.MetricsAddr = ":9090"
	}
	if c.Soak.GRPCAddr == "" {
		c.Soak.GRPCAddr = ":50051"
	}
	if c.Ledger.Dir == "" {
		c.Ledger.Dir = "./stress_ledger"
	}
	if c.Broadcast.Driver == "" {
		c.Broadcast.Driver = "none"
	}
	if c.Broadcast.Topic == "" {
		c.Broadcast.Topic = "treiber.stress.reports"
	}
	if c.Broadcast.Interval == 0 {
		c.Broadcast.Interval = 2 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports the first problem found, wrapped in ErrInvalid.
func (c Config) Validate() error {
	if _, err := c.StressScenario(); err != nil {
		return err
	}
	if c.Soak.Interval < 0 {
		return fmt.Errorf("%w: soak.interval must be positive", ErrInvalid)
	}
	switch c.Broadcast.Driver {
	case "none":
	case "sarama", "kafka-go":
		if len(c.Broadcast.Brokers) == 0 {
			return fmt.Errorf("%w: broadcast.brokers required for driver %q", ErrInvalid, c.Broadcast.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown broadcast.driver %q", ErrInvalid, c.Broadcast.Driver)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log.format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// StressScenario converts the scenario section.
func (c Config) StressScenario() (stress.Scenario, error) {
	v, err := stack.ParseVariant(c.Scenario.Variant)
	if err != nil {
		return stress.Scenario{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	sc := stress.Scenario{
		Variant:         v,
		Pushers:         c.Scenario.Pushers,
		PushesPerPusher: c.Scenario.PushesPerPusher,
		Poppers:         c.Scenario.Poppers,
		Seed:            c.Scenario.Seed,
		PoisonCheck:     c.Scenario.PoisonCheck,
	}
	if err := sc.Validate(); err != nil {
		return stress.Scenario{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return sc, nil
}
