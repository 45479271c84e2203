// Command sawctl is the operator-facing entrypoint for the SAW
// execution engine: running a spec end to end, verifying a run's hash
// chain, exporting evidence, and inspecting a run's ledger, backed by
// the same engine/ledger/policy stack a long-running service would use.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/surfit-labs/saw-core/pkg/config"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the CLI entrypoint, separated from main for testability.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 2
	}

	cfg := config.Load()

	switch args[1] {
	case "run":
		return runRunCmd(cfg, args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(cfg, args[2:], stdout, stderr)
	case "export":
		return runExportCmd(cfg, args[2:], stdout, stderr)
	case "logs":
		return runLogsCmd(cfg, args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "sawctl — Semi-Autonomous Workflow execution engine")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  sawctl <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  run      Execute a SAW spec document (--spec, --approve, --json)")
	fmt.Fprintln(w, "  verify   Re-walk a run's ledger hash chain (--run)")
	fmt.Fprintln(w, "  export   Archive a completed run to the evidence store (--run)")
	fmt.Fprintln(w, "  logs     Print a run's ledger entries (--run, --json)")
	fmt.Fprintln(w, "  help     Show this help")
}
