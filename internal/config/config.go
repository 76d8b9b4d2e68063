package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PreflightConfig tunes the diagnostics sweep.
type PreflightConfig struct {
	// MinFreeRAMGB is the free-memory floor for the ram check.
	MinFreeRAMGB float64 `yaml:"min_free_ram_gb"`
	// MinFreeDiskGB is the free-disk floor for the disk check.
	MinFreeDiskGB float64 `yaml:"min_free_disk_gb"`
	// RequiredModels are substring-matched against the runtime's model list.
	RequiredModels []string `yaml:"required_models"`
	// ProbeTimeoutSeconds bounds each network probe. Default 5.
	ProbeTimeoutSeconds int `yaml:"probe_timeout_seconds"`
	// Schedule is a 5-field cron expression for periodic re-runs.
	// Empty disables the monitor.
	Schedule string `yaml:"schedule"`
}

// OtelConfig holds OpenTelemetry exporter settings.
type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // otlp-http, stdout, none
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	// BindAddr is where the shell IPC server listens.
	BindAddr string `yaml:"bind_addr"`
	LogLevel string `yaml:"log_level"`

	// BackendBaseURL is the remote agent backend.
	BackendBaseURL string `yaml:"backend_base_url"`
	// BackendTimeoutSeconds bounds feature calls to the backend. Default 60.
	BackendTimeoutSeconds int `yaml:"backend_timeout_seconds"`

	// OllamaBaseURL is the local model runtime probed during preflight.
	OllamaBaseURL string `yaml:"ollama_base_url"`

	// ShellBaseURL is where office window content is served from.
	ShellBaseURL string `yaml:"shell_base_url"`

	// DefaultConsentTTLSeconds is the shared-memory TTL applied to new
	// windows when the caller does not supply one. Default 3600.
	DefaultConsentTTLSeconds uint64 `yaml:"default_consent_ttl_seconds"`

	Preflight PreflightConfig `yaml:"preflight"`
	Otel      OtelConfig      `yaml:"otel"`
}

// Fingerprint returns a stable hash of the active config.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "bind=%s|log=%s|backend=%s|ollama=%s|shell=%s|models=%v",
		c.BindAddr, c.LogLevel, c.BackendBaseURL, c.OllamaBaseURL, c.ShellBaseURL,
		c.Preflight.RequiredModels)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}

// BackendTimeout returns the backend call deadline as a duration.
func (c Config) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutSeconds) * time.Second
}

// ProbeTimeout returns the per-probe deadline as a duration.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Preflight.ProbeTimeoutSeconds) * time.Second
}

func defaultConfig() Config {
	return Config{
		BindAddr:                 "127.0.0.1:18920",
		LogLevel:                 "info",
		BackendBaseURL:           "http://127.0.0.1:8000",
		BackendTimeoutSeconds:    60,
		OllamaBaseURL:            "http://127.0.0.1:11434",
		ShellBaseURL:             "http://localhost:1420",
		DefaultConsentTTLSeconds: 3600,
		Preflight: PreflightConfig{
			MinFreeRAMGB:        2.0,
			MinFreeDiskGB:       5.0,
			RequiredModels:      []string{"deepseek-r1:14b", "qwen2.5-coder:7b"},
			ProbeTimeoutSeconds: 5,
		},
	}
}

// HomeDir resolves the data directory, honouring OFFICEDESK_HOME.
func HomeDir() string {
	if override := os.Getenv("OFFICEDESK_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".officedesk")
}

// ConfigPath returns the config.yaml path inside the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// Load reads config.yaml from the home directory, applying defaults for
// anything unset. A missing file is not an error; defaults apply.
func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom reads configuration rooted at an explicit home directory.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = homeDir

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create officedesk home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.BindAddr == "" {
		cfg.BindAddr = "127.0.0.1:18920"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.BackendBaseURL) == "" {
		cfg.BackendBaseURL = "http://127.0.0.1:8000"
	}
	cfg.BackendBaseURL = strings.TrimSuffix(cfg.BackendBaseURL, "/")
	if cfg.BackendTimeoutSeconds <= 0 {
		cfg.BackendTimeoutSeconds = 60
	}
	if strings.TrimSpace(cfg.OllamaBaseURL) == "" {
		cfg.OllamaBaseURL = "http://127.0.0.1:11434"
	}
	cfg.OllamaBaseURL = strings.TrimSuffix(cfg.OllamaBaseURL, "/")
	if strings.TrimSpace(cfg.ShellBaseURL) == "" {
		cfg.ShellBaseURL = "http://localhost:1420"
	}
	cfg.ShellBaseURL = strings.TrimSuffix(cfg.ShellBaseURL, "/")
	if cfg.DefaultConsentTTLSeconds == 0 {
		cfg.DefaultConsentTTLSeconds = 3600
	}
	if cfg.Preflight.MinFreeRAMGB <= 0 {
		cfg.Preflight.MinFreeRAMGB = 2.0
	}
	if cfg.Preflight.MinFreeDiskGB <= 0 {
		cfg.Preflight.MinFreeDiskGB = 5.0
	}
	if cfg.Preflight.ProbeTimeoutSeconds <= 0 {
		cfg.Preflight.ProbeTimeoutSeconds = 5
	}
	if len(cfg.Preflight.RequiredModels) == 0 {
		cfg.Preflight.RequiredModels = []string{"deepseek-r1:14b", "qwen2.5-coder:7b"}
	}
}
