// Package config provides overlay node configuration utilities.
package config

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/hollowmesh/overlay/constants"
)

// Config is the node-level tuning configuration. Any zero-valued field is
// replaced with the matching constants default by Defaults.
type Config struct {
	// WindowSize overrides constants.WindowSize when non-zero.
	WindowSize int

	// AckDelayMillis overrides constants.AckDelay when non-zero.
	AckDelayMillis int

	// ResendBackoffMillis overrides constants.ResendBackoff when non-zero.
	ResendBackoffMillis int

	// FetchWorkers is the configured split-file fetch concurrency,
	// defaulting to 8. Nothing in this module reads it: a FetchSegment
	// schedules all of its block fetches at once.
	FetchWorkers int

	// HealProbabilityDenominator overrides
	// constants.HealProbabilityDenominator when non-zero.
	HealProbabilityDenominator int
}

// Defaults returns c with every zero-valued field replaced by its
// constants.* default.
func (c Config) Defaults() Config {
	if c.WindowSize == 0 {
		c.WindowSize = constants.WindowSize
	}
	if c.AckDelayMillis == 0 {
		c.AckDelayMillis = int(constants.AckDelay / time.Millisecond)
	}
	if c.ResendBackoffMillis == 0 {
		c.ResendBackoffMillis = int(constants.ResendBackoff / time.Millisecond)
	}
	if c.FetchWorkers == 0 {
		c.FetchWorkers = 8
	}
	if c.HealProbabilityDenominator == 0 {
		c.HealProbabilityDenominator = constants.HealProbabilityDenominator
	}
	return c
}

// AckDelay returns the configured ack urgency delay as a time.Duration.
func (c Config) AckDelay() time.Duration {
	return time.Duration(c.AckDelayMillis) * time.Millisecond
}

// ResendBackoff returns the configured resend backoff as a time.Duration.
func (c Config) ResendBackoff() time.Duration {
	return time.Duration(c.ResendBackoffMillis) * time.Millisecond
}

// FromFile loads a Config from a TOML file on disk.
func FromFile(fileName string) (*Config, error) {
	fileData, err := ioutil.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", fileName, err)
	}
	cfg := Config{}
	if err := toml.Unmarshal(fileData, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", fileName, err)
	}
	defaulted := cfg.Defaults()
	return &defaulted, nil
}
