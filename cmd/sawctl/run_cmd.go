package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/surfit-labs/saw-core/pkg/config"
	"github.com/surfit-labs/saw-core/pkg/model"
)

// runRunCmd implements `sawctl run`: loads a SAW spec document from
// disk, validates and executes it, and reports the resulting
// RunSummary.
//
// Exit codes:
//
//	0 = run completed
//	1 = run denied or errored
//	2 = runtime error (bad flags, spec failed to load/validate)
func runRunCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		specPath string
		operator string
		approver string
		approve  bool
		waitMS   float64
		note     string
		jsonOut  bool
	)

	cmd.StringVar(&specPath, "spec", "", "Path to a SAW spec document, JSON or YAML (REQUIRED)")
	cmd.StringVar(&operator, "operator", "cli", "Operator identity recorded on the run context")
	cmd.StringVar(&approver, "approver", "", "Approver identity recorded on the run context")
	cmd.BoolVar(&approve, "approve", false, "Pre-grant every approval gate the run reaches")
	cmd.Float64Var(&waitMS, "wait-ms", 0, "Simulated human wait time to attribute to approval gates")
	cmd.StringVar(&note, "note", "", "Approval note recorded on the run record")
	cmd.BoolVar(&jsonOut, "json", false, "Output the run summary as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if specPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --spec is required")
		return 2
	}

	raw, err := os.ReadFile(specPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read spec: %v\n", err)
		return 2
	}
	if strings.HasSuffix(specPath, ".yaml") || strings.HasSuffix(specPath, ".yml") {
		raw, err = yamlToJSON(raw)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: convert spec: %v\n", err)
			return 2
		}
	}

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.Close()

	var spec model.SAWSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: decode spec: %v\n", err)
		return 2
	}

	warnPolicyDowngrade(a, spec, stderr)

	runCtx := model.NewRunContext(spec.SAWID, operator, approver)
	if approve {
		runCtx.State[model.StateApprovalGranted] = true
	}
	if waitMS > 0 {
		runCtx.State[model.StateApprovalWaitMS] = waitMS
	}
	if note != "" {
		runCtx.State[model.StateApprovalNote] = note
	}

	runCtxTimeout, cancel := context.WithTimeout(context.Background(), cfg.RunTimeout)
	defer cancel()

	summary, err := a.Engine.RunRaw(runCtxTimeout, raw, runCtx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOut {
		data, _ := json.MarshalIndent(summary, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		p := message.NewPrinter(language.English)
		_, _ = fmt.Fprintf(stdout, "run_id:     %s\n", summary.RunID)
		_, _ = fmt.Fprintf(stdout, "status:     %s\n", summary.Status)
		_, _ = p.Fprintf(stdout, "system_ms:  %.2f\n", summary.SystemTimeMS)
		_, _ = p.Fprintf(stdout, "human_ms:   %.2f\n", summary.HumanWaitTimeMS)
		_, _ = p.Fprintf(stdout, "total_ms:   %.2f\n", summary.TotalTimeMS)
		if summary.DenialReason != "" {
			_, _ = fmt.Fprintf(stdout, "denial:     %s\n", summary.DenialReason)
		}
	}

	switch summary.Status {
	case model.StatusCompleted:
		return 0
	default:
		return 1
	}
}

// yamlToJSON re-encodes a YAML spec document as JSON so the same schema
// validation and decoding path handles both formats.
func yamlToJSON(raw []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("re-encode yaml as json: %w", err)
	}
	return out, nil
}

// warnPolicyDowngrade compares spec's policy_version against the
// highest version previously run for the same saw_id, printing an
// advisory (never blocking) warning when it looks like a downgrade.
func warnPolicyDowngrade(a *app, spec model.SAWSpec, stderr io.Writer) {
	next, err := semver.NewVersion(spec.PolicyBundle.PolicyVersion)
	if err != nil {
		return
	}
	latest, err := a.RunStore.LatestPolicyVersion(context.Background(), spec.SAWID)
	if err != nil || latest == "" {
		return
	}
	prev, err := semver.NewVersion(latest)
	if err != nil {
		return
	}
	if next.LessThan(prev) {
		_, _ = fmt.Fprintf(stderr, "Warning: policy_version %s is older than the last run's %s for saw_id %s\n",
			spec.PolicyBundle.PolicyVersion, latest, spec.SAWID)
	}
}
