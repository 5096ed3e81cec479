// Package config loads the run configuration of ethconform from YAML.
//
// Example:
//
//	network: Shanghai
//	root: fixtures/BlockchainTests
//	ignore:
//	  - 'stTimeConsuming'
//	slow:
//	  - 'ValidBlocks/bcForkStressTest'
//	big_memory:
//	  - 'stQuadraticComplexityTest'
//	parallel: 8
//	genesis_rlp: auto
//	expected_failures:
//	  - pattern: 'bc4895-withdrawals/incorrectWithdrawalsRoot\.json'
//	    kind: StateTransitionFailed
//	t8n:
//	  command: evm
//	  args: [t8n]
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ethconform/internal/fixture"
	"github.com/roach88/ethconform/internal/fork"
	"github.com/roach88/ethconform/internal/harness"
	"github.com/roach88/ethconform/internal/pattern"
	"github.com/roach88/ethconform/internal/replay"
)

// Config is the full run configuration.
type Config struct {
	// Network is the fixture network to select, e.g. "Shanghai".
	Network string `yaml:"network"`

	// Root is the fixture directory. Relative paths in a config file are
	// resolved against the file's directory.
	Root string `yaml:"root"`

	// OnlyIn restricts the run to these files, relative to Root.
	OnlyIn []string `yaml:"only_in,omitempty"`

	Ignore    []string `yaml:"ignore,omitempty"`
	Slow      []string `yaml:"slow,omitempty"`
	BigMemory []string `yaml:"big_memory,omitempty"`

	// Parallel is the number of cases replayed at once.
	Parallel int `yaml:"parallel,omitempty"`

	// RunSlow runs cases tagged slow instead of skipping them.
	RunSlow bool `yaml:"run_slow,omitempty"`

	// GenesisRLP is one of auto, always or never.
	GenesisRLP string `yaml:"genesis_rlp,omitempty"`

	// ExpectedFailures marks cases that must fail with a given kind.
	ExpectedFailures []harness.ExpectedFailure `yaml:"expected_failures,omitempty"`

	// T8N configures the external transition tool.
	T8N T8N `yaml:"t8n,omitempty"`

	// CacheSize is the number of parsed fixture files kept in memory.
	CacheSize int `yaml:"cache_size,omitempty"`
}

// T8N configures the transition tool.
type T8N struct {
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Parallel:   runtime.GOMAXPROCS(0),
		GenesisRLP: string(replay.GenesisRLPAuto),
		CacheSize:  fixture.DefaultCacheSize,
		T8N:        T8N{Command: "evm", Args: []string{"t8n"}},
	}
}

// Load reads path on top of Default. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	if cfg.Root != "" && !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(filepath.Dir(path), cfg.Root)
	}
	return cfg, nil
}

// Validate checks the configuration before a run. It compiles every pattern
// so that a typo fails here instead of halfway through discovery.
func (c *Config) Validate() error {
	if c.Network == "" {
		return errors.New("network is required")
	}
	if _, err := fork.Lookup(c.Network); err != nil {
		return err
	}
	if c.Root == "" {
		return errors.New("root is required")
	}
	if c.Parallel < 1 {
		return errors.Errorf("parallel must be at least 1, got %d", c.Parallel)
	}
	if c.CacheSize < 0 {
		return errors.Errorf("cache_size must not be negative, got %d", c.CacheSize)
	}
	if _, err := replay.ParseGenesisRLPMode(c.GenesisRLP); err != nil {
		return err
	}
	if _, err := pattern.NewSet(c.Ignore, c.Slow, c.BigMemory); err != nil {
		return err
	}
	return harness.ValidateExpectedFailures(c.ExpectedFailures)
}

// DiscoverConfig returns the discovery part of the configuration.
func (c *Config) DiscoverConfig() fixture.DiscoverConfig {
	return fixture.DiscoverConfig{
		Root:      c.Root,
		Network:   c.Network,
		OnlyIn:    c.OnlyIn,
		Ignore:    c.Ignore,
		Slow:      c.Slow,
		BigMemory: c.BigMemory,
	}
}

// HarnessConfig returns the driver configuration for a run with engines
// from factory. Validate must have succeeded.
func (c *Config) HarnessConfig(factory harness.EngineFactory) harness.Config {
	mode, _ := replay.ParseGenesisRLPMode(c.GenesisRLP)
	return harness.Config{
		Discover:         c.DiscoverConfig(),
		DecoderCacheSize: c.CacheSize,
		EngineFactory:    factory,
		Parallel:         c.Parallel,
		RunSlow:          c.RunSlow,
		GenesisRLP:       mode,
		ExpectedFailures: c.ExpectedFailures,
	}
}
