package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Matching.MinConfidence != 50 {
		t.Errorf("MinConfidence = %d, want 50", cfg.Matching.MinConfidence)
	}
	if cfg.Severity.CriticalPct != 10.0 {
		t.Errorf("CriticalPct = %v, want 10", cfg.Severity.CriticalPct)
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".reconcile.yml")
	content := "port: 9090\nmatching:\n  min_confidence: 65\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.Matching.MinConfidence != 65 {
		t.Errorf("MinConfidence = %d, want 65", cfg.Matching.MinConfidence)
	}
	// Untouched keys keep their defaults.
	if cfg.Matching.InferredMaxConfidence != 85 {
		t.Errorf("InferredMaxConfidence = %d, want 85", cfg.Matching.InferredMaxConfidence)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RECON_PORT", "7070")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Port)
	}
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Health.MatchWeight = 0.9
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for weights not summing to 1")
	}
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Severity.CriticalPct = 2.0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for critical_pct below high_pct")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".reconcile.yml")
	cfg := DefaultConfig()
	cfg.Port = 8181

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Port != 8181 {
		t.Errorf("Port = %d, want 8181", loaded.Port)
	}
}
