//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Ecosystem configuration
//

package ibcsim

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/ibcx/ibcsim/chain"
)

// DefaultMaxRounds is the default maximum number of relay rounds.
const DefaultMaxRounds = 128

// Config configures an [*Ecosystem].
type Config struct {
	// MaxRounds is the maximum number of rounds that
	// [*Ecosystem.RelayAllPackets] runs before failing with
	// [ErrLoopLimitExceeded]. If zero or negative, we
	// use [DefaultMaxRounds].
	MaxRounds int

	// Logger is the optional structured logger. If nil,
	// we will not be emitting structured logs. Chains created
	// through [*Ecosystem.NewChain] inherit it unless their
	// own config sets a logger.
	Logger *slog.Logger

	// Registerer is the optional prometheus registerer for
	// the relay counters. If nil, counters are not exported.
	Registerer prometheus.Registerer

	// Chains contains the chains that [NewFromConfig] creates
	// and registers, in order.
	Chains []*chain.Config
}

// DefaultConfig returns the default [*Config].
func DefaultConfig() *Config {
	return &Config{
		MaxRounds:  DefaultMaxRounds,
		Logger:     nil,
		Registerer: nil,
		Chains:     []*chain.Config{},
	}
}

// maxRounds returns the effective maximum number of rounds.
func (cfg *Config) maxRounds() int {
	if cfg.MaxRounds <= 0 {
		return DefaultMaxRounds
	}
	return cfg.MaxRounds
}

// fileConfig is the TOML representation of [Config].
type fileConfig struct {
	MaxRounds int               `toml:"max_rounds"`
	Chains    []fileChainConfig `toml:"chains"`
}

// fileChainConfig is the TOML representation of [chain.Config].
type fileChainConfig struct {
	ID          string `toml:"id"`
	GenesisTime string `toml:"genesis_time"`
	BlockTime   string `toml:"block_time"`
}

// LoadConfig loads a [*Config] from the given TOML file.
//
// Keys missing from the file keep the values of [DefaultConfig]. The
// file looks like this:
//
//	max_rounds = 64
//
//	[[chains]]
//	id = "osmosis-1"
//	genesis_time = "2024-01-01T00:00:00Z"
//	block_time = "6s"
//
// The genesis_time key uses RFC3339 and block_time uses the
// syntax of [time.ParseDuration].
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load ibcsim config: %w", err)
	}

	if meta.IsDefined("max_rounds") {
		if raw.MaxRounds <= 0 {
			return nil, fmt.Errorf("max_rounds must be positive, got %d", raw.MaxRounds)
		}
		cfg.MaxRounds = raw.MaxRounds
	}

	for idx, rc := range raw.Chains {
		cc := &chain.Config{ChainID: strings.TrimSpace(rc.ID)}
		if cc.ChainID == "" {
			return nil, fmt.Errorf("chains[%d]: missing id", idx)
		}
		if value := strings.TrimSpace(rc.GenesisTime); value != "" {
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return nil, fmt.Errorf("chains[%d]: parse genesis_time: %w", idx, err)
			}
			cc.GenesisTime = t.UTC()
		}
		if value := strings.TrimSpace(rc.BlockTime); value != "" {
			d, err := time.ParseDuration(value)
			if err != nil {
				return nil, fmt.Errorf("chains[%d]: parse block_time: %w", idx, err)
			}
			cc.BlockTime = d
		}
		cfg.Chains = append(cfg.Chains, cc)
	}

	return cfg, nil
}

// NewFromConfig creates an [*Ecosystem] and registers the chains
// listed by [Config.Chains], in order.
func NewFromConfig(cfg *Config) (*Ecosystem, error) {
	eco, err := New(cfg)
	if err != nil {
		return nil, err
	}
	for _, cc := range cfg.Chains {
		if _, err := eco.NewChain(cc); err != nil {
			eco.Close()
			return nil, err
		}
	}
	return eco, nil
}

// MustNewFromConfig is like [NewFromConfig] but panics on error.
func MustNewFromConfig(cfg *Config) *Ecosystem {
	return runtimex.Try1(NewFromConfig(cfg))
}
