// Package config loads the simulator's tunable parameters — ring
// sizes, switch counts, and persistence/logging toggles — from an
// optional YAML file layered over default values; the driver then
// overrides any value whose flag was set.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds every value the driver needs besides its two legacy
// positional arguments (num_nodes, read_from_file).
type Config struct {
	// ChordBits is M, the Chord ring's bit width.
	ChordBits int `mapstructure:"chord_bits"`
	// PastryDigits is L, the Pastry identifier's hex-digit length.
	PastryDigits int `mapstructure:"pastry_digits"`
	// PastryBase is B; each routing-table row has 2^B columns. Pastry
	// routes on hex digits (0-15), so a B below 4 leaves rows too narrow.
	PastryBase int `mapstructure:"pastry_base"`
	// Switches is the fabric's switch count.
	Switches int `mapstructure:"switches"`
	// LinkFile is the path links.dat is written to or read from.
	LinkFile string `mapstructure:"link_file"`
	// Seed seeds every math/rand.Rand this run constructs, for
	// reproducible scenarios.
	Seed int64 `mapstructure:"seed"`
	// Verbose enables debug-level per-hop logging.
	Verbose bool `mapstructure:"verbose"`
	// PersistDSN is the DuckDB DSN run/event history is written to; empty
	// disables persistence.
	PersistDSN string `mapstructure:"persist_dsn"`
}

// Default returns the parameter set both protocols ship experiments
// with: Chord M=24 bits (hash trimmed to M/4=6 hex digits to build a
// comparable ring size), Pastry L=6 digits, B=4.
func Default() Config {
	return Config{
		ChordBits:    24,
		PastryDigits: 6,
		PastryBase:   4,
		Switches:     100,
		LinkFile:     "links.dat",
		Seed:         1,
		Verbose:      false,
		PersistDSN:   "",
	}
}

// Load reads path (if non-empty and present) as YAML over the default
// parameter set. A missing path is not an error: the defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("chord_bits", cfg.ChordBits)
	v.SetDefault("pastry_digits", cfg.PastryDigits)
	v.SetDefault("pastry_base", cfg.PastryBase)
	v.SetDefault("switches", cfg.Switches)
	v.SetDefault("link_file", cfg.LinkFile)
	v.SetDefault("seed", cfg.Seed)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("persist_dsn", cfg.PersistDSN)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	return cfg, nil
}
