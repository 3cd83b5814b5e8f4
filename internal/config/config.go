// Package config implements runtime configuration: a plain struct,
// loadable from YAML and overridable by CLI flags, decoded once at startup
// rather than threaded as individual args.
package config

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/hvmcore/hvmc/internal/numeric"
)

// Config holds every runtime tunable.
type Config struct {
	HeapSize            int    `yaml:"heap_size"`
	Workers             int    `yaml:"workers"`
	RedexBudgetPerSteal int    `yaml:"redex_budget_per_steal"`
	StackGuardDepth     int    `yaml:"stack_guard_depth"`
	NumericOverflow     string `yaml:"numeric_overflow"` // "wrap" | "trap"
	Trace               bool   `yaml:"trace"`
}

// Default returns the documented defaults. Workers 0 means "use
// runtime.NumCPU()", resolved by ResolveWorkers.
func Default() Config {
	return Config{
		HeapSize:            1 << 20,
		Workers:             0,
		RedexBudgetPerSteal: 64,
		StackGuardDepth:     100000,
		NumericOverflow:     "wrap",
		Trace:               false,
	}
}

// ResolveWorkers returns the effective worker count, substituting
// runtime.NumCPU() for the "auto" sentinel of 0.
func (c Config) ResolveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// OverflowMode translates the YAML/flag string into the internal/numeric
// enum, defaulting to Wrap on an empty or unrecognized value.
func (c Config) OverflowMode() numeric.OverflowMode {
	if c.NumericOverflow == "trap" {
		return numeric.Trap
	}
	return numeric.Wrap
}

// Load reads and decodes a YAML config file, starting from Default() so
// unset fields keep their documented defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "opening config file %q", path)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "decoding config file %q", path)
	}
	return cfg, nil
}

// Validate checks field ranges and enum values, returning every problem
// found rather than stopping at the first.
func (c Config) Validate() error {
	var errs []string
	if c.HeapSize <= 0 {
		errs = append(errs, "heap_size must be positive")
	}
	if c.Workers < 0 {
		errs = append(errs, "workers must be >= 0")
	}
	if c.RedexBudgetPerSteal <= 0 {
		errs = append(errs, "redex_budget_per_steal must be positive")
	}
	if c.NumericOverflow != "wrap" && c.NumericOverflow != "trap" {
		errs = append(errs, `numeric_overflow must be "wrap" or "trap"`)
	}
	if len(errs) == 0 {
		return nil
	}
	msg := errs[0]
	for _, e := range errs[1:] {
		msg += "; " + e
	}
	return errors.New(msg)
}
