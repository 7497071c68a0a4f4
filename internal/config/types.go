package config

// MatchingConfig holds the tolerances and thresholds of the matching engine.
type MatchingConfig struct {
	// AmountEpsilon is the negligible difference under which two amounts are
	// considered identical by the exact tier.
	AmountEpsilon float64 `yaml:"amount_epsilon" koanf:"amount_epsilon"`
	// FuzzyMinSimilarity is the minimum account-name similarity (0-1) for the
	// fuzzy tier to consider a pair at all.
	FuzzyMinSimilarity float64 `yaml:"fuzzy_min_similarity" koanf:"fuzzy_min_similarity"`
	// FuzzyAmountTolerancePct is the allowed percentage deviation between
	// amounts in the fuzzy tier.
	FuzzyAmountTolerancePct float64 `yaml:"fuzzy_amount_tolerance_pct" koanf:"fuzzy_amount_tolerance_pct"`
	// FuzzyAmountToleranceAbs is the allowed absolute deviation between
	// amounts in the fuzzy tier.
	FuzzyAmountToleranceAbs float64 `yaml:"fuzzy_amount_tolerance_abs" koanf:"fuzzy_amount_tolerance_abs"`
	// FuzzyMinConfidence is the floor a fuzzy candidate must reach to qualify
	// as a match.
	FuzzyMinConfidence int `yaml:"fuzzy_min_confidence" koanf:"fuzzy_min_confidence"`
	// CalculatedTolerancePct is the allowed percentage deviation between a
	// computed value and the reported value in the calculated tier.
	CalculatedTolerancePct float64 `yaml:"calculated_tolerance_pct" koanf:"calculated_tolerance_pct"`
	// InferredMaxConfidence caps inferred-tier confidence; multi-hop
	// relationships compound uncertainty.
	InferredMaxConfidence int `yaml:"inferred_max_confidence" koanf:"inferred_max_confidence"`
	// MinConfidence is the global floor below which candidates are discarded
	// rather than persisted as low-confidence noise.
	MinConfidence int `yaml:"min_confidence" koanf:"min_confidence"`
}

// SeverityConfig holds the discrepancy severity thresholds.
type SeverityConfig struct {
	// CriticalPct marks a discrepancy critical when the percentage variance
	// exceeds it on a balance-affecting account.
	CriticalPct float64 `yaml:"critical_pct" koanf:"critical_pct"`
	// HighPct marks a discrepancy high when the percentage variance exceeds it.
	HighPct float64 `yaml:"high_pct" koanf:"high_pct"`
	// DefaultTolerancePct is the account tolerance used for the
	// within-tolerance flag when no rule names one.
	DefaultTolerancePct float64 `yaml:"default_tolerance_pct" koanf:"default_tolerance_pct"`
}

// HealthConfig holds the health-score blend weights. They must sum to 1.
type HealthConfig struct {
	MatchWeight       float64 `yaml:"match_weight" koanf:"match_weight"`
	DiscrepancyWeight float64 `yaml:"discrepancy_weight" koanf:"discrepancy_weight"`
	CoverageWeight    float64 `yaml:"coverage_weight" koanf:"coverage_weight"`
}

// Config is the top-level reconcile configuration, corresponding to .reconcile.yml.
type Config struct {
	Port      int            `yaml:"port" koanf:"port"`
	DataDir   string         `yaml:"data_dir" koanf:"data_dir"`
	RulesFile string         `yaml:"rules_file" koanf:"rules_file"`
	Matching  MatchingConfig `yaml:"matching" koanf:"matching"`
	Severity  SeverityConfig `yaml:"severity" koanf:"severity"`
	Health    HealthConfig   `yaml:"health" koanf:"health"`
}
