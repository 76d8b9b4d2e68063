package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/lantern/officedesk/internal/config"
	"github.com/lantern/officedesk/internal/preflight"
)

func runDoctorCommand(ctx context.Context, args []string) int {
	jsonOutput := false
	for _, arg := range args {
		if arg == "-json" || arg == "--json" {
			jsonOutput = true
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		// Continue with defaults to diagnose why.
	}

	runner := preflight.NewRunner(cfg, nil)
	report := runner.Run(ctx)

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding json: %v\n", err)
			return 1
		}
		if report.Status == preflight.StatusError {
			return 1
		}
		return 0
	}

	fmt.Printf("Officedesk Doctor Report (%s)\n", report.Timestamp.Format(time.RFC3339))
	fmt.Printf("Overall: %s\n", report.Status)
	fmt.Println("---")

	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		res := report.Checks[name]
		icon := "✅"
		if !res.Passed {
			if res.Severity == preflight.SeverityWarning {
				icon = "⚠️ "
			} else {
				icon = "❌"
			}
		}
		fmt.Printf("%s %-10s: %s\n", icon, name, res.Message)
	}

	if report.Status == preflight.StatusError {
		return 1
	}
	return 0
}
