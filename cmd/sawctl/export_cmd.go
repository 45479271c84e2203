package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/surfit-labs/saw-core/pkg/config"
)

// runExportCmd implements `sawctl export`: archives a run's metadata,
// full ledger, and a freshly computed integrity verification as a
// single content-addressed JSON blob to the configured evidence store.
//
// Exit codes:
//
//	0 = exported
//	2 = runtime error
func runExportCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("export", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var runID string
	cmd.StringVar(&runID, "run", "", "Run id (or unambiguous prefix) to export (REQUIRED)")

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

	digest, err := a.Evidence.Store(ctx, fullID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: export: %v\n", err)
		return 2
	}

	_, _ = fmt.Fprintf(stdout, "Exported run %s -> %s\n", fullID, digest)
	return 0
}
