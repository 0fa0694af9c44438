package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/b/portkeeper/pkg/config"
)

func TestSaveEffectiveConfig_FillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("discovery:\n  interval: 500ms\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := saveEffectiveConfig(path); err != nil {
		t.Fatalf("saveEffectiveConfig() error: %v", err)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Discovery.Interval != 500*time.Millisecond {
		t.Errorf("interval = %v, want the file's 500ms", cfg.Discovery.Interval)
	}
	if cfg.Termination.Timeout != 5*time.Second {
		t.Errorf("termination timeout = %v, want the default", cfg.Termination.Timeout)
	}
}

func TestSaveEffectiveConfig_LeavesBrokenFileAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	broken := []byte("log:\n  level: loud\n")
	if err := os.WriteFile(path, broken, 0644); err != nil {
		t.Fatal(err)
	}
	if err := saveEffectiveConfig(path); err == nil {
		t.Fatal("expected an error for an invalid config")
	}
	data, _ := os.ReadFile(path)
	if string(data) != string(broken) {
		t.Errorf("broken config was rewritten:\n%s", data)
	}
}
