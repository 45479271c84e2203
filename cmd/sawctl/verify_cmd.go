package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/surfit-labs/saw-core/pkg/config"
)

// runVerifyCmd implements `sawctl verify`: re-walks a run's ledger hash
// chain from genesis and reports whether every stored entry still
// matches its recomputed event_hash.
//
// Exit codes:
//
//	0 = chain valid
//	1 = chain invalid (tamper detected)
//	2 = runtime error
func runVerifyCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		runID   string
		jsonOut bool
	)
	cmd.StringVar(&runID, "run", "", "Run id (or unambiguous prefix) to verify (REQUIRED)")
	cmd.BoolVar(&jsonOut, "json", false, "Output the verification result as JSON")

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

	result, err := a.Ledger.Verify(ctx, fullID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: verify: %v\n", err)
		return 2
	}

	if jsonOut {
		data, _ := json.MarshalIndent(result, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else if result.Valid {
		_, _ = fmt.Fprintf(stdout, "OK: run %s hash chain is valid\n", fullID)
	} else {
		_, _ = fmt.Fprintf(stdout, "TAMPER DETECTED: run %s diverges at entry index %d\n", fullID, result.FirstMismatchIdx)
		_, _ = fmt.Fprintf(stdout, "  expected: %s\n  found:    %s\n", result.ExpectedHash, result.FoundHash)
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func resolveRunID(ctx context.Context, a *app, idOrPrefix string) (string, error) {
	if _, err := a.RunStore.Get(ctx, idOrPrefix); err == nil {
		return idOrPrefix, nil
	}
	return a.RunStore.ResolvePrefix(ctx, idOrPrefix)
}
