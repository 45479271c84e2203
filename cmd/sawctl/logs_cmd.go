package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/surfit-labs/saw-core/pkg/config"
)

// runLogsCmd implements `sawctl logs`: prints a run's ledger entries in
// chain order.
//
// Exit codes:
//
//	0 = printed
//	2 = runtime error
func runLogsCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("logs", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		runID   string
		jsonOut bool
	)
	cmd.StringVar(&runID, "run", "", "Run id (or unambiguous prefix) to inspect (REQUIRED)")
	cmd.BoolVar(&jsonOut, "json", false, "Output entries as a JSON array")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if runID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --run is required")
		return 2
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.Close()

	fullID, err := resolveRunID(ctx, a, runID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	entries, err := a.Ledger.Entries(ctx, fullID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: load entries: %v\n", err)
		return 2
	}

	if jsonOut {
		data, _ := json.MarshalIndent(entries, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}

	for _, e := range entries {
		_, _ = fmt.Fprintf(stdout, "%-30s %-14s %-20s %-8s %8.2fms %s\n",
			e.TimestampISO, e.NodeID, e.ToolName, e.Decision, e.LatencyMS, e.Error)
	}
	return 0
}
