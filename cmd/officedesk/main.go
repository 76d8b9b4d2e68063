package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/lantern/officedesk/internal/app"
	"github.com/lantern/officedesk/internal/audit"
	"github.com/lantern/officedesk/internal/backend"
	"github.com/lantern/officedesk/internal/bus"
	"github.com/lantern/officedesk/internal/config"
	"github.com/lantern/officedesk/internal/ipc"
	"github.com/lantern/officedesk/internal/monitor"
	"github.com/lantern/officedesk/internal/office"
	otelPkg "github.com/lantern/officedesk/internal/otel"
	"github.com/lantern/officedesk/internal/preflight"
	"github.com/lantern/officedesk/internal/telemetry"
	"github.com/lantern/officedesk/internal/workflow"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.3-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

DAEMON MODE (default):
  %s                          Start the daemon and serve shell IPC

SUBCOMMANDS:
  %s doctor [-json]           Run the diagnostics sweep and print the report
  %s status                   Show daemon health status (/healthz)
  %s roles                    List available office roles

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  OFFICEDESK_HOME         Data directory (default: ~/.officedesk)
  OFFICEDESK_AUTH_TOKEN   Shell IPC bearer token (default: generated)

EXAMPLES:
  Start the daemon:       %s
  Run diagnostics:        %s doctor
  Check daemon health:    %s status
`, os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	quiet := flag.Bool("quiet", false, "log to file only, keep stdout clean")
	flag.Usage = printUsage
	flag.Parse()

	quietLogs := *quiet && isatty.IsTerminal(os.Stdout.Fd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args := flag.Args(); len(args) > 0 {
		switch strings.ToLower(strings.TrimSpace(args[0])) {
		case "help", "-h", "--help":
			printUsage()
			os.Exit(0)
		case "doctor":
			os.Exit(runDoctorCommand(ctx, args[1:]))
		case "status":
			os.Exit(runStatusCommand(ctx, args[1:]))
		case "roles":
			os.Exit(runRolesCommand())
		default:
			fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
			printUsage()
			os.Exit(2)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	// Audit only needs homeDir, so it comes up before the logger and can
	// capture logger init failures.
	if err := audit.Init(cfg.HomeDir); err != nil {
		fatalStartup(nil, "E_AUDIT_INIT", err)
	}
	defer func() { _ = audit.Close() }()

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, quietLogs)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "home", cfg.HomeDir)

	otelProvider, err := otelPkg.Init(ctx, otelPkg.Config{
		Enabled:     cfg.Otel.Enabled,
		Exporter:    cfg.Otel.Exporter,
		Endpoint:    cfg.Otel.Endpoint,
		ServiceName: cfg.Otel.ServiceName,
		SampleRate:  cfg.Otel.SampleRate,
	})
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(context.Background())

	metrics, err := otelPkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "E_METRICS_INIT", err)
	}

	eventBus := bus.New()
	toolkit := ipc.NewShellToolkit(logger)

	registry := office.NewRegistry(office.RegistryConfig{
		Toolkit:           toolkit,
		Events:            eventBus,
		Logger:            logger,
		ShellBaseURL:      cfg.ShellBaseURL,
		DefaultTTLSeconds: cfg.DefaultConsentTTLSeconds,
	})
	router := office.NewRouter(registry, toolkit, eventBus, logger)
	executor := workflow.NewExecutor(registry, router, eventBus, logger)
	backendClient := backend.New(cfg.BackendBaseURL, cfg.BackendTimeout())

	runner := preflight.NewRunner(cfg, logger)
	gate := preflight.NewGate()

	application := app.New(app.Config{
		Config:   cfg,
		Logger:   logger,
		Sweeper:  runner,
		Gate:     gate,
		Registry: registry,
		Router:   router,
		Executor: executor,
		Backend:  backendClient,
		Events:   eventBus,
		Metrics:  metrics,
	})

	// Initial sweep so the gate has a verdict before the shell connects.
	report := application.RunDiagnostics(ctx)
	logger.Info("startup phase", "phase", "initial_diagnostics", "status", report.Status)

	if cfg.Preflight.Schedule != "" {
		mon, err := monitor.New(monitor.Config{
			Sweeper:  runner,
			Gate:     gate,
			Schedule: cfg.Preflight.Schedule,
			Logger:   logger,
			OnReport: func(r preflight.Report) {
				eventBus.Publish(bus.TopicDiagnosticsCompleted, bus.DiagnosticsEvent{
					Status: string(r.Status),
					Passed: gate.Passed(),
				})
			},
		})
		if err != nil {
			fatalStartup(logger, "E_MONITOR_INIT", err)
		}
		mon.Start(ctx)
		defer mon.Stop()
	}

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		go func() {
			for ev := range watcher.Events() {
				logger.Info("config changed on disk; restart to apply", "path", ev.Path)
			}
		}()
	}

	authToken, err := loadAuthToken(cfg.HomeDir)
	if err != nil {
		fatalStartup(logger, "E_AUTH_TOKEN", err)
	}

	ipcServer := ipc.New(ipc.Config{
		App:               application,
		Toolkit:           toolkit,
		Bus:               eventBus,
		Logger:            logger,
		AuthToken:         authToken,
		ConfigFingerprint: cfg.Fingerprint(),
	})

	server := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: ipcServer.Handler(),
	}
	serverErr := make(chan error, 1)
	ln, err := net.Listen("tcp", cfg.BindAddr)
	if err != nil {
		fatalStartup(logger, "E_IPC_LISTENER_BIND", err)
	}
	logger.Info("startup phase", "phase", "ipc_listener_bound", "addr", cfg.BindAddr)
	go func() {
		logger.Info("ipc listening", "addr", cfg.BindAddr, "ws", "/ws")
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("ipc server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	logger.Info("shutdown complete")
}

func runStatusCommand(ctx context.Context, _ []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+cfg.BindAddr+"/healthz", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	resp, err := (&http.Client{Timeout: 3 * time.Second}).Do(req)
	if err != nil {
		fmt.Printf("Daemon not reachable at %s: %v\n", cfg.BindAddr, err)
		return 1
	}
	defer resp.Body.Close()
	fmt.Printf("Daemon responding at %s (HTTP %d)\n", cfg.BindAddr, resp.StatusCode)
	return 0
}

func runRolesCommand() int {
	for _, role := range office.Roles() {
		fmt.Printf("%-24s %s\n", role, role.DisplayName())
	}
	return 0
}

func loadAuthToken(homeDir string) (string, error) {
	if raw := strings.TrimSpace(os.Getenv("OFFICEDESK_AUTH_TOKEN")); raw != "" {
		return raw, nil
	}
	tokenPath := filepath.Join(homeDir, "auth.token")
	b, err := os.ReadFile(tokenPath)
	if err == nil {
		if tok := strings.TrimSpace(string(b)); tok != "" {
			return tok, nil
		}
	}
	token := uuid.NewString()
	if err := os.WriteFile(tokenPath, []byte(token+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to persist auth token: %w", err)
	}
	slog.Info("auth.token generated", "path", tokenPath)
	return token, nil
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	audit.Record("runtime.startup", reasonCode, "failure", message)

	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(
			os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"officedesk","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano),
			reasonCode,
			message,
		)
	}
	os.Exit(1)
}
