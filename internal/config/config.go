package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (RECON_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: RECON_PORT -> port, etc.
	if err := k.Load(env.Provider("RECON_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "RECON_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	m := c.Matching
	if m.AmountEpsilon < 0 {
		return fmt.Errorf("matching.amount_epsilon must be non-negative")
	}
	if m.FuzzyMinSimilarity < 0 || m.FuzzyMinSimilarity > 1 {
		return fmt.Errorf("matching.fuzzy_min_similarity must be between 0 and 1")
	}
	if m.MinConfidence < 0 || m.MinConfidence > 100 {
		return fmt.Errorf("matching.min_confidence must be between 0 and 100")
	}
	if m.FuzzyMinConfidence < m.MinConfidence {
		return fmt.Errorf("matching.fuzzy_min_confidence must not be below matching.min_confidence")
	}
	if m.InferredMaxConfidence < m.MinConfidence || m.InferredMaxConfidence > 100 {
		return fmt.Errorf("matching.inferred_max_confidence must be between min_confidence and 100")
	}

	s := c.Severity
	if s.HighPct <= 0 || s.CriticalPct <= s.HighPct {
		return fmt.Errorf("severity thresholds must satisfy 0 < high_pct < critical_pct")
	}

	h := c.Health
	sum := h.MatchWeight + h.DiscrepancyWeight + h.CoverageWeight
	if h.MatchWeight < 0 || h.DiscrepancyWeight < 0 || h.CoverageWeight < 0 {
		return fmt.Errorf("health weights must be non-negative")
	}
	if math.Abs(sum-1.0) > 0.001 {
		return fmt.Errorf("health weights must sum to 1, got %.3f", sum)
	}

	return nil
}
