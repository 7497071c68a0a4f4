package config

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:      8080,
		DataDir:   "data",
		RulesFile: "",
		Matching: MatchingConfig{
			AmountEpsilon:           0.01,
			FuzzyMinSimilarity:      0.6,
			FuzzyAmountTolerancePct: 2.0,
			FuzzyAmountToleranceAbs: 100.0,
			FuzzyMinConfidence:      60,
			CalculatedTolerancePct:  1.0,
			InferredMaxConfidence:   85,
			MinConfidence:           50,
		},
		Severity: SeverityConfig{
			CriticalPct:         10.0,
			HighPct:             5.0,
			DefaultTolerancePct: 5.0,
		},
		Health: HealthConfig{
			MatchWeight:       0.5,
			DiscrepancyWeight: 0.3,
			CoverageWeight:    0.2,
		},
	}
}
