package healthcheck

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/l3aro/c-testforge/internal/config"
)

func TestCheckWithNilConfig(t *testing.T) {
	_, err := Check(context.Background(), nil, "", "")
	if err == nil {
		t.Error("Expected error for nil config, got nil")
	}
}

func TestCheckDefaultConfig(t *testing.T) {
	result, err := Check(context.Background(), config.DefaultConfig(), "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}

	if result.Config.Status != StatusReady {
		t.Errorf("Config.Status = %q, want %q (%s)", result.Config.Status, StatusReady, result.Config.Error)
	}
	if result.FrontEnd.Status != StatusReady {
		t.Errorf("FrontEnd.Status = %q, want %q (%s)", result.FrontEnd.Status, StatusReady, result.FrontEnd.Error)
	}
	if result.Solver.Status != StatusReady {
		t.Errorf("Solver.Status = %q, want %q (%s)", result.Solver.Status, StatusReady, result.Solver.Error)
	}
	if result.Store.Status != StatusMemory {
		t.Errorf("Store.Status = %q, want %q", result.Store.Status, StatusMemory)
	}
	if result.Failed() {
		t.Error("Failed() = true for the default config")
	}
}

func TestCheckInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Synthesis.TargetCoverage = 1.5

	result, err := Check(context.Background(), cfg, "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if result.Config.Status != StatusError {
		t.Errorf("Config.Status = %q, want %q", result.Config.Status, StatusError)
	}
	if !strings.Contains(result.Config.Error, "target_coverage") {
		t.Errorf("Config.Error = %q, want it to name target_coverage", result.Config.Error)
	}
	if !result.Failed() {
		t.Error("Failed() = false for an invalid config")
	}
}

func TestCheckFeasibilityStore(t *testing.T) {
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Synthesis.FeasibilityStore = filepath.Join(dir, "feasibility.db")
	result, err := Check(context.Background(), cfg, "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if result.Store.Status != StatusReady {
		t.Errorf("Store.Status = %q, want %q (%s)", result.Store.Status, StatusReady, result.Store.Error)
	}

	corrupt := filepath.Join(dir, "corrupt.db")
	if err := os.WriteFile(corrupt, []byte("not a store"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg.Synthesis.FeasibilityStore = corrupt
	result, err = Check(context.Background(), cfg, "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if result.Store.Status != StatusError {
		t.Errorf("Store.Status = %q, want %q", result.Store.Status, StatusError)
	}
}

func TestScopeFromPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		path string
		want string
	}{
		{"", ""},
		{filepath.Join(home, ".ctf", "config.yaml"), "global"},
		{filepath.Join(".ctf", "config.yaml"), "project"},
	}
	for _, tt := range tests {
		if got := scopeFromPath(tt.path); got != tt.want {
			t.Errorf("scopeFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
