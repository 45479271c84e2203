// Package engine walks a single SAW graph end to end: validating
// topology, checking policy before every tool call, invoking tools
// through the registry, handling approval gates, and producing a
// RunSummary with timing and final outputs. This is the trust-critical
// core the rest of the system is built around.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/surfit-labs/saw-core/pkg/model"
	"github.com/surfit-labs/saw-core/pkg/policy"
	"github.com/surfit-labs/saw-core/pkg/registry"
	"github.com/surfit-labs/saw-core/pkg/resolver"
)

// ErrUnsupportedGraph is returned when a SAW spec's graph is not a
// linear chain (a node has more than one outgoing edge).
var ErrUnsupportedGraph = errors.New("engine: unsupported graph topology")

// Ledger is the subset of pkg/ledger.Ledger the engine depends on.
type Ledger interface {
	Append(ctx context.Context, runID, sawID, nodeID, toolName string, decision model.Decision, latencyMS float64, errStr string) (model.LedgerEntry, error)
}

// LLMRecorder is the subset of pkg/llmrecord.Recorder the engine depends on.
type LLMRecorder interface {
	Record(ctx context.Context, runID, nodeID string, result model.ToolResult) error
}

// RunStore is the subset of pkg/runstore.Store the engine depends on.
type RunStore interface {
	Open(ctx context.Context, rec model.RunRecord) error
	Close(ctx context.Context, runID string, status model.RunStatus, approvedBy, approvedAt, approvalNote string) error
}

// TokenVerifier validates an approval attestation token. Matches
// pkg/attestation.Verifier; declared locally to keep the dependency
// direction pointing inward.
type TokenVerifier interface {
	Verify(token, runID, nodeID string) (subject string, err error)
}

// Engine ties together the policy, registry, resolver, ledger, run
// store, and LLM recorder dependencies needed to execute one run.
type Engine struct {
	Policy    *policy.Engine
	Registry  *registry.Registry
	Resolver  resolver.Resolver
	Ledger    Ledger
	RunStore  RunStore
	LLM       LLMRecorder
	Tokens    TokenVerifier // optional; nil disables attestation validation
	Validator SpecValidator // optional; nil skips raw-document validation
	Logger    *slog.Logger
}

// SpecValidator is the subset of pkg/specvalidate.Validator the engine
// depends on, used only by RunRaw.
type SpecValidator interface {
	Validate(raw []byte) error
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// graph is the validated, adjacency-indexed form of a model.Graph.
type graph struct {
	nodes map[string]model.Node
	next  map[string]string
}

func buildGraph(g model.Graph) (*graph, error) {
	nodes := make(map[string]model.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes[n.ID] = n
	}

	next := make(map[string]string, len(g.Edges))
	for _, e := range g.Edges {
		if _, dup := next[e.From]; dup {
			return nil, fmt.Errorf("%w: node '%s' has more than one outgoing edge", ErrUnsupportedGraph, e.From)
		}
		next[e.From] = e.To
	}
	return &graph{nodes: nodes, next: next}, nil
}

func (g *graph) startNode() (string, error) {
	var starts []string
	for id, n := range g.nodes {
		if n.Type == model.NodeStart {
			starts = append(starts, id)
		}
	}
	if len(starts) != 1 {
		return "", fmt.Errorf("engine: expected exactly 1 start node, found %d", len(starts))
	}
	return starts[0], nil
}

// Run executes spec against runCtx, walking nodes until a terminal
// status is reached. runCtx.State may be pre-populated with approval
// signals (model.StateApprovalGranted etc.) before calling Run.
func (e *Engine) Run(ctx context.Context, spec model.SAWSpec, runCtx *model.RunContext) (model.RunSummary, error) {
	tracer := otel.Tracer("saw.engine")
	ctx, span := tracer.Start(ctx, "saw.run", trace.WithAttributes(
		attribute.String("run_id", runCtx.RunID),
		attribute.String("saw_id", spec.SAWID),
	))
	defer span.End()

	g, err := buildGraph(spec.Graph)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.RunSummary{}, err
	}

	startID, err := g.startNode()
	if err != nil {
		span.RecordError(err)
		return model.RunSummary{}, err
	}

	snapshot, policyHash, err := snapshotPolicy(spec.PolicyBundle)
	if err != nil {
		return model.RunSummary{}, err
	}

	if e.RunStore != nil {
		if err := e.RunStore.Open(ctx, model.RunRecord{
			RunID:          runCtx.RunID,
			SAWID:          spec.SAWID,
			StartedAt:      runCtx.StartedAt.Format(time.RFC3339Nano),
			Status:         model.StatusRunning,
			PolicyHash:     policyHash,
			PolicyVersion:  spec.PolicyBundle.PolicyVersion,
			PolicySnapshot: snapshot,
		}); err != nil {
			return model.RunSummary{}, fmt.Errorf("engine: open run record: %w", err)
		}
	}

	summary := model.RunSummary{
		RunID:       runCtx.RunID,
		SAWID:       spec.SAWID,
		Status:      model.StatusRunning,
		NodeResults: make(map[string]any),
	}

	var lastTool *model.ToolResult
	currentID := startID

	for {
		node := g.nodes[currentID]
		nodeCtx, nodeSpan := tracer.Start(ctx, "saw.node."+string(node.Type), trace.WithAttributes(
			attribute.String("node_id", currentID),
		))

		switch node.Type {
		case model.NodeStart:
			if _, err := e.Ledger.Append(nodeCtx, runCtx.RunID, spec.SAWID, currentID, "", model.DecisionAllow, 0, ""); err != nil {
				nodeSpan.End()
				return summary, err
			}

		case model.NodeEnd:
			if _, err := e.Ledger.Append(nodeCtx, runCtx.RunID, spec.SAWID, currentID, "", model.DecisionAllow, 0, ""); err != nil {
				nodeSpan.End()
				return summary, err
			}
			summary.Status = model.StatusCompleted
			if lastTool != nil && lastTool.Success {
				summary.FinalOutputs = lastTool.Data
			}
			nodeSpan.End()
			return e.finish(ctx, runCtx, spec, summary)

		case model.NodeApprovalGate:
			approved, waitMS, errStr := e.evaluateApproval(runCtx, currentID)
			summary.HumanWaitTimeMS += waitMS
			decision := model.DecisionAllow
			if !approved {
				decision = model.DecisionDeny
			}
			if _, err := e.Ledger.Append(nodeCtx, runCtx.RunID, spec.SAWID, currentID, "", decision, waitMS, errStr); err != nil {
				nodeSpan.End()
				return summary, err
			}
			if !approved {
				summary.Status = model.StatusDenied
				summary.DenialReason = errStr
				nodeSpan.End()
				return e.finish(ctx, runCtx, spec, summary)
			}

		case model.NodeToolCall:
			inputs := e.Resolver.Resolve(currentID, node, runCtx)
			runCtx.State[model.StateInputsPrefix+currentID] = inputs

			result, latencyMS, done := e.executeToolNode(nodeCtx, runCtx, spec, node, currentID, inputs)
			summary.NodeResults[currentID] = resultPayload(result)
			if done {
				summary.Status = model.StatusDenied
				summary.DenialReason = result.Error
				nodeSpan.End()
				return e.finish(ctx, runCtx, spec, summary)
			}

			runCtx.State[currentID] = result.Data
			lastTool = &result
			summary.SystemTimeMS += latencyMS

			if result.LLMMeta != nil && e.LLM != nil {
				if err := e.LLM.Record(nodeCtx, runCtx.RunID, currentID, result); err != nil {
					e.logger().WarnContext(nodeCtx, "llm invocation record failed", "error", err, "run_id", runCtx.RunID, "node_id", currentID)
				}
			}

		default:
			nodeSpan.End()
			err := fmt.Errorf("engine: unknown node type '%s' at node '%s'", node.Type, currentID)
			summary.Status = model.StatusError
			summary.DenialReason = err.Error()
			return e.finish(ctx, runCtx, spec, summary)
		}
		nodeSpan.End()

		next, ok := g.next[currentID]
		if !ok {
			summary.Status = model.StatusError
			summary.DenialReason = fmt.Sprintf("No outgoing edge from node '%s'", currentID)
			return e.finish(ctx, runCtx, spec, summary)
		}
		currentID = next

		select {
		case <-ctx.Done():
			summary.Status = model.StatusError
			summary.DenialReason = ctx.Err().Error()
			return e.finish(ctx, runCtx, spec, summary)
		default:
		}
	}
}

func (e *Engine) executeToolNode(ctx context.Context, runCtx *model.RunContext, spec model.SAWSpec, node model.Node, nodeID string, inputs map[string]any) (model.ToolResult, float64, bool) {
	toolName := node.Tool

	if !policy.InfraTools[toolName] {
		decision := e.Policy.Check(toolName, inputs, spec.PolicyBundle, node.WriteAction)
		if decision.Decision == model.DecisionDeny {
			errMsg := "Policy denied: " + joinReasons(decision.Reasons)
			if _, err := e.Ledger.Append(ctx, runCtx.RunID, spec.SAWID, nodeID, toolName, model.DecisionDeny, 0, errMsg); err != nil {
				return model.ToolResult{ToolName: toolName, Success: false, Error: err.Error()}, 0, true
			}
			return model.ToolResult{ToolName: toolName, Success: false, Error: errMsg}, 0, true
		}
	}

	if !e.Registry.Has(toolName) {
		errMsg := fmt.Sprintf("Tool '%s' not found", toolName)
		if _, err := e.Ledger.Append(ctx, runCtx.RunID, spec.SAWID, nodeID, toolName, model.DecisionDeny, 0, errMsg); err != nil {
			return model.ToolResult{ToolName: toolName, Success: false, Error: err.Error()}, 0, true
		}
		return model.ToolResult{ToolName: toolName, Success: false, Error: errMsg}, 0, true
	}

	t0 := time.Now()
	result, err := e.Registry.Invoke(ctx, toolName, inputs, runCtx)
	latencyMS := roundToHundredths(float64(time.Since(t0).Microseconds()) / 1000.0)
	if err != nil {
		result = model.ToolResult{ToolName: toolName, Success: false, Error: err.Error()}
	}

	if _, lerr := e.Ledger.Append(ctx, runCtx.RunID, spec.SAWID, nodeID, toolName, model.DecisionAllow, latencyMS, result.Error); lerr != nil {
		return model.ToolResult{ToolName: toolName, Success: false, Error: lerr.Error()}, 0, true
	}

	if !result.Success {
		return result, latencyMS, true
	}
	return result, latencyMS, false
}

func (e *Engine) evaluateApproval(runCtx *model.RunContext, nodeID string) (approved bool, waitMS float64, errStr string) {
	if v, ok := runCtx.State[model.StateApprovalWaitMS]; ok {
		if f, ok := toFloat(v); ok {
			waitMS = f
		}
	}

	granted, _ := runCtx.State[model.StateApprovalGranted].(bool)

	if token, ok := runCtx.State[model.StateApprovalToken].(string); ok && token != "" && e.Tokens != nil {
		subject, err := e.Tokens.Verify(token, runCtx.RunID, nodeID)
		if err != nil {
			return false, waitMS, "Approval not provided"
		}
		runCtx.State[model.StateApprovedBy] = subject
		return true, waitMS, ""
	}

	if !granted {
		return false, waitMS, "Approval not provided"
	}
	return true, waitMS, ""
}

func (e *Engine) finish(ctx context.Context, runCtx *model.RunContext, spec model.SAWSpec, summary model.RunSummary) (model.RunSummary, error) {
	summary.SystemTimeMS = roundToHundredths(summary.SystemTimeMS)
	summary.HumanWaitTimeMS = roundToHundredths(summary.HumanWaitTimeMS)
	summary.TotalTimeMS = roundToHundredths(summary.SystemTimeMS + summary.HumanWaitTimeMS)

	if e.RunStore != nil {
		approvedBy, _ := runCtx.State[model.StateApprovedBy].(string)
		approvalNote, _ := runCtx.State[model.StateApprovalNote].(string)
		approvedAt := ""
		if approvedBy != "" {
			approvedAt = time.Now().UTC().Format(time.RFC3339Nano)
		}
		if err := e.RunStore.Close(ctx, runCtx.RunID, summary.Status, approvedBy, approvedAt, approvalNote); err != nil {
			return summary, fmt.Errorf("engine: close run record: %w", err)
		}
	}
	return summary, nil
}

func resultPayload(r model.ToolResult) any {
	if r.Success {
		return r.Data
	}
	return r.Error
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += "; "
		}
		out += r
	}
	return out
}

func roundToHundredths(f float64) float64 {
	return math.Round(f*100) / 100
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}
