package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pathfinder.MaxSearchNodes != 2048 {
		t.Errorf("max_search_nodes = %d, want 2048", cfg.Pathfinder.MaxSearchNodes)
	}
	if cfg.Agent.MaxSpeed != 4.0 {
		t.Errorf("agent.max_speed = %v, want 4.0", cfg.Agent.MaxSpeed)
	}
	if cfg.Behavior.FleeMaxAttempts != 5 {
		t.Errorf("flee_max_attempts = %d, want 5", cfg.Behavior.FleeMaxAttempts)
	}
	if cfg.Derived.ExtentY32 != 4.0 {
		t.Errorf("derived extent_y = %v, want 4.0", cfg.Derived.ExtentY32)
	}
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.yaml")
	override := []byte("agent:\n  max_speed: 9.5\npathfinder:\n  extent_y: 8.0\n")
	if err := os.WriteFile(path, override, 0644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxSpeed != 9.5 {
		t.Errorf("overridden max_speed = %v, want 9.5", cfg.Agent.MaxSpeed)
	}
	// Untouched fields keep their defaults.
	if cfg.Agent.CornerThreshold != 0.35 {
		t.Errorf("corner_threshold = %v, want default 0.35", cfg.Agent.CornerThreshold)
	}
	if cfg.Derived.ExtentY32 != 8.0 {
		t.Errorf("derived extent_y = %v, want 8.0", cfg.Derived.ExtentY32)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load succeeded for a missing file")
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Agent.MaxSpeed = 6.25

	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatalf("Load written config: %v", err)
	}
	if back.Agent.MaxSpeed != 6.25 {
		t.Errorf("round-tripped max_speed = %v, want 6.25", back.Agent.MaxSpeed)
	}
}
