package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.BackendBaseURL != "http://127.0.0.1:8000" {
		t.Errorf("BackendBaseURL = %q, want http://127.0.0.1:8000", cfg.BackendBaseURL)
	}
	if cfg.OllamaBaseURL != "http://127.0.0.1:11434" {
		t.Errorf("OllamaBaseURL = %q, want http://127.0.0.1:11434", cfg.OllamaBaseURL)
	}
	if cfg.BackendTimeoutSeconds != 60 {
		t.Errorf("BackendTimeoutSeconds = %d, want 60", cfg.BackendTimeoutSeconds)
	}
	if cfg.Preflight.ProbeTimeoutSeconds != 5 {
		t.Errorf("ProbeTimeoutSeconds = %d, want 5", cfg.Preflight.ProbeTimeoutSeconds)
	}
	if cfg.DefaultConsentTTLSeconds != 3600 {
		t.Errorf("DefaultConsentTTLSeconds = %d, want 3600", cfg.DefaultConsentTTLSeconds)
	}
	if len(cfg.Preflight.RequiredModels) == 0 {
		t.Error("RequiredModels empty, want defaults")
	}
}

func TestLoadFrom_File(t *testing.T) {
	home := t.TempDir()
	yaml := `
bind_addr: "127.0.0.1:9999"
backend_base_url: "http://127.0.0.1:8111/"
preflight:
  min_free_ram_gb: 4
  required_models:
    - llama3:8b
  probe_timeout_seconds: 2
  schedule: "*/5 * * * *"
`
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(home)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.BindAddr != "127.0.0.1:9999" {
		t.Errorf("BindAddr = %q, want 127.0.0.1:9999", cfg.BindAddr)
	}
	// Trailing slash is trimmed.
	if cfg.BackendBaseURL != "http://127.0.0.1:8111" {
		t.Errorf("BackendBaseURL = %q, want http://127.0.0.1:8111", cfg.BackendBaseURL)
	}
	if cfg.Preflight.MinFreeRAMGB != 4 {
		t.Errorf("MinFreeRAMGB = %v, want 4", cfg.Preflight.MinFreeRAMGB)
	}
	if got := cfg.Preflight.RequiredModels; len(got) != 1 || got[0] != "llama3:8b" {
		t.Errorf("RequiredModels = %v, want [llama3:8b]", got)
	}
	if cfg.Preflight.Schedule != "*/5 * * * *" {
		t.Errorf("Schedule = %q, want */5 * * * *", cfg.Preflight.Schedule)
	}
	// Unset fields keep defaults.
	if cfg.Preflight.MinFreeDiskGB != 5.0 {
		t.Errorf("MinFreeDiskGB = %v, want default 5.0", cfg.Preflight.MinFreeDiskGB)
	}
}

func TestLoadFrom_BadYAML(t *testing.T) {
	home := t.TempDir()
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte("::notyaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(home); err == nil {
		t.Fatal("expected parse error, got nil")
	}
}

func TestFingerprint_Stable(t *testing.T) {
	a, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	b := a
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical configs produced different fingerprints")
	}
	b.BackendBaseURL = "http://127.0.0.1:8001"
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("different configs produced the same fingerprint")
	}
}
