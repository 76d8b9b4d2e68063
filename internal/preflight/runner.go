package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/lantern/officedesk/internal/config"
)

const bytesPerGB = 1 << 30

// Probe check names as they appear in Report.Checks.
const (
	CheckRAM     = "ram"
	CheckDisk    = "disk"
	CheckOllama  = "ollama"
	CheckModels  = "models"
	CheckBackend = "backend"
)

// Runner executes the fixed probe battery. All probes are independent and
// run concurrently; a Run lasts roughly as long as its slowest probe.
// Probe failures degrade to failed CheckResults — Run itself cannot fail.
type Runner struct {
	cfg            config.PreflightConfig
	backendBaseURL string
	ollamaBaseURL  string
	client         *http.Client
	logger         *slog.Logger

	// System samplers, overridable in tests.
	freeRAMBytes  func(context.Context) (uint64, error)
	freeDiskBytes func(context.Context) (uint64, error)
}

// NewRunner builds a Runner from the loaded configuration.
func NewRunner(cfg config.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:            cfg.Preflight,
		backendBaseURL: cfg.BackendBaseURL,
		ollamaBaseURL:  cfg.OllamaBaseURL,
		client:         &http.Client{Timeout: cfg.ProbeTimeout()},
		logger:         logger,
		freeRAMBytes: func(ctx context.Context) (uint64, error) {
			vm, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				return 0, err
			}
			return vm.Available, nil
		},
		freeDiskBytes: func(ctx context.Context) (uint64, error) {
			usage, err := disk.UsageWithContext(ctx, "/")
			if err != nil {
				return 0, err
			}
			return usage.Free, nil
		},
	}
}

// Run executes every probe concurrently and returns the aggregated report.
func (r *Runner) Run(ctx context.Context) Report {
	started := time.Now()

	probes := map[string]func(context.Context) CheckResult{
		CheckRAM:     r.checkRAM,
		CheckDisk:    r.checkDisk,
		CheckOllama:  r.checkOllama,
		CheckModels:  r.checkModels,
		CheckBackend: r.checkBackend,
	}

	var (
		mu     sync.Mutex
		checks = make(map[string]CheckResult, len(probes))
		wg     sync.WaitGroup
	)
	for name, probe := range probes {
		wg.Add(1)
		go func(name string, probe func(context.Context) CheckResult) {
			defer wg.Done()
			result := probe(ctx)
			mu.Lock()
			checks[name] = result
			mu.Unlock()
		}(name, probe)
	}
	wg.Wait()

	report := Report{
		Status:    computeStatus(checks),
		Checks:    checks,
		Timestamp: time.Now().UTC(),
	}
	r.logger.Info("diagnostics run complete",
		"status", string(report.Status),
		"checks", len(report.Checks),
		"duration_ms", time.Since(started).Milliseconds())
	return report
}

func (r *Runner) checkRAM(ctx context.Context) CheckResult {
	free, err := r.freeRAMBytes(ctx)
	if err != nil {
		return CheckResult{
			Passed:   false,
			Message:  fmt.Sprintf("Unable to read memory stats: %v", err),
			Severity: SeverityError,
		}
	}
	availableGB := float64(free) / bytesPerGB
	if availableGB < r.cfg.MinFreeRAMGB {
		return CheckResult{
			Passed:   false,
			Message:  fmt.Sprintf("Available RAM: %.2f GB (required: %.2f GB)", availableGB, r.cfg.MinFreeRAMGB),
			Severity: SeverityError,
		}
	}
	return CheckResult{
		Passed:   true,
		Message:  fmt.Sprintf("Available RAM: %.2f GB (required: %.2f GB)", availableGB, r.cfg.MinFreeRAMGB),
		Severity: SeverityInfo,
	}
}

func (r *Runner) checkDisk(ctx context.Context) CheckResult {
	free, err := r.freeDiskBytes(ctx)
	if err != nil {
		return CheckResult{
			Passed:   false,
			Message:  fmt.Sprintf("Unable to read disk stats: %v", err),
			Severity: SeverityError,
		}
	}
	freeGB := float64(free) / bytesPerGB
	if freeGB < r.cfg.MinFreeDiskGB {
		return CheckResult{
			Passed:   false,
			Message:  fmt.Sprintf("Free disk: %.2f GB (required: %.2f GB)", freeGB, r.cfg.MinFreeDiskGB),
			Severity: SeverityError,
		}
	}
	return CheckResult{
		Passed:   true,
		Message:  fmt.Sprintf("Free disk: %.2f GB (required: %.2f GB)", freeGB, r.cfg.MinFreeDiskGB),
		Severity: SeverityInfo,
	}
}

func (r *Runner) checkOllama(ctx context.Context) CheckResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.ollamaBaseURL+"/api/tags", nil)
	if err != nil {
		return CheckResult{
			Passed:   false,
			Message:  fmt.Sprintf("Invalid model runtime URL: %v", err),
			Severity: SeverityError,
		}
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return CheckResult{
			Passed:   false,
			Message:  fmt.Sprintf("Model runtime not reachable at %s", r.ollamaBaseURL),
			Severity: SeverityError,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CheckResult{
			Passed:   false,
			Message:  fmt.Sprintf("Model runtime returned HTTP %d", resp.StatusCode),
			Severity: SeverityError,
		}
	}
	return CheckResult{
		Passed:   true,
		Message:  "Model runtime is running",
		Severity: SeverityInfo,
	}
}

// ollamaTags is the shape of the runtime's /api/tags response.
type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (r *Runner) checkModels(ctx context.Context) CheckResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.ollamaBaseURL+"/api/tags", nil)
	if err != nil {
		return CheckResult{
			Passed:   false,
			Message:  fmt.Sprintf("Invalid model runtime URL: %v", err),
			Severity: SeverityError,
		}
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return CheckResult{
			Passed:   false,
			Message:  "Cannot check models: model runtime not reachable",
			Severity: SeverityError,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CheckResult{
			Passed:   false,
			Message:  fmt.Sprintf("Cannot check models: model runtime returned HTTP %d", resp.StatusCode),
			Severity: SeverityError,
		}
	}

	var tags ollamaTags
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		// Distinct from the unreachable case: the runtime answered but the
		// payload could not be parsed.
		return CheckResult{
			Passed:   false,
			Message:  "Failed to parse model runtime tag list",
			Severity: SeverityError,
		}
	}

	installed := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		installed = append(installed, m.Name)
	}

	var missing []string
	for _, required := range r.cfg.RequiredModels {
		found := false
		for _, name := range installed {
			if strings.Contains(name, required) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, required)
		}
	}

	if len(missing) > 0 {
		return CheckResult{
			Passed:   false,
			Message:  fmt.Sprintf("Missing models: %s", strings.Join(missing, ", ")),
			Severity: SeverityError,
		}
	}
	return CheckResult{
		Passed:   true,
		Message:  fmt.Sprintf("All required models present: %s", strings.Join(r.cfg.RequiredModels, ", ")),
		Severity: SeverityInfo,
	}
}

func (r *Runner) checkBackend(ctx context.Context) CheckResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.backendBaseURL+"/health", nil)
	if err != nil {
		return CheckResult{
			Passed:   false,
			Message:  fmt.Sprintf("Invalid backend URL: %v", err),
			Severity: SeverityWarning,
		}
	}
	resp, err := r.client.Do(req)
	if err != nil {
		// Warning, not error: the application can still run in degraded
		// local-only mode and the backend can be started manually.
		return CheckResult{
			Passed:   false,
			Message:  fmt.Sprintf("Backend services not reachable at %s", r.backendBaseURL),
			Severity: SeverityWarning,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CheckResult{
			Passed:   false,
			Message:  fmt.Sprintf("Backend services returned HTTP %d", resp.StatusCode),
			Severity: SeverityWarning,
		}
	}
	return CheckResult{
		Passed:   true,
		Message:  "Backend services are running",
		Severity: SeverityInfo,
	}
}
