// Package model defines the core value types shared across the engine,
// ledger, policy, and store packages: the SAW specification, the mutable
// run context threaded through node execution, tool results, policy
// decisions, and the persisted record shapes.
package model

import (
	"time"

	"github.com/google/uuid"
)

// NodeType is the closed set of node kinds a SAW graph may contain.
type NodeType string

const (
	NodeStart        NodeType = "start"
	NodeEnd          NodeType = "end"
	NodeToolCall     NodeType = "tool_call"
	NodeApprovalGate NodeType = "approval_gate"
)

// Decision is the outcome of a policy check or an approval gate.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
	DecisionNone  Decision = ""
)

// RunStatus is the terminal (or in-flight) status of a run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusDenied    RunStatus = "denied"
	StatusError     RunStatus = "error"
)

// Node is one vertex of a SAW graph.
type Node struct {
	ID          string   `json:"id"`
	Type        NodeType `json:"type"`
	Tool        string   `json:"tool,omitempty"`
	Sensitivity string   `json:"sensitivity,omitempty"`
	WriteAction bool     `json:"write_action,omitempty"`
}

// Edge is a directed edge between two node ids. V1 graphs are linear: no
// node may appear as the `From` of more than one edge.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the node/edge pair describing one SAW's execution order.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Egress captures the external-communication capability gates a policy
// bundle may grant.
type Egress struct {
	AllowExternalHTTP bool     `json:"allow_external_http"`
	AllowedDomains    []string `json:"allowed_domains,omitempty"`
	AllowEmailSend    bool     `json:"allow_email_send"`
	AllowSlackDM      bool     `json:"allow_slack_dm"`
}

// WriteRestriction constrains a write-capable tool to a set of opaque
// target identifiers (e.g. template ids) and whether new targets may be
// created.
type WriteRestriction struct {
	AllowedTemplateIDs  []string `json:"allowed_template_ids"`
	AllowCreateNewDecks bool     `json:"allow_create_new_decks"`
}

// ToolRules is the allow/deny pair under a policy bundle's `tools` key.
type ToolRules struct {
	Allowlist []string `json:"allowlist"`
	Denylist  []string `json:"denylist"`
}

// PolicyBundle is the full set of rules a run is evaluated against.
type PolicyBundle struct {
	PolicyID          string                      `json:"policy_id"`
	PolicyVersion     string                      `json:"policy_version"`
	SensitivityLevel  string                      `json:"sensitivity_level"`
	Tools             ToolRules                   `json:"tools"`
	Egress            Egress                      `json:"egress"`
	WriteRestrictions map[string]WriteRestriction `json:"write_restrictions,omitempty"`
}

// SAWSpec is the immutable input describing one workflow definition.
type SAWSpec struct {
	SAWID        string       `json:"saw_id"`
	Graph        Graph        `json:"graph"`
	PolicyBundle PolicyBundle `json:"policy_bundle"`
}

// RunContext is the mutable state threaded through a single run. State
// keys not prefixed with `_` hold the output payload of the node with
// that id; keys prefixed with `_` are reserved control signals.
type RunContext struct {
	RunID     string
	SAWID     string
	StartedAt time.Time
	Operator  string
	Approver  string
	State     map[string]any
}

// NewRunContext builds a RunContext with a fresh run id.
func NewRunContext(sawID, operator, approver string) *RunContext {
	return &RunContext{
		RunID:     uuid.NewString(),
		SAWID:     sawID,
		StartedAt: time.Now().UTC(),
		Operator:  operator,
		Approver:  approver,
		State:     make(map[string]any),
	}
}

const (
	StateApprovalGranted = "_approval_granted"
	StateApprovalWaitMS  = "_approval_wait_ms"
	StateApprovedBy      = "_approved_by"
	StateApprovalNote    = "_approval_note"
	StateApprovalToken   = "_approval_token"
	StateInputsPrefix    = "_inputs_"
)

// ToolResult is the envelope every tool invocation returns.
type ToolResult struct {
	ToolName string         `json:"tool_name"`
	Success  bool           `json:"success"`
	Data     map[string]any `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`

	// Populated only by tools declared non-deterministic.
	LLMMeta              *LLMMeta       `json:"llm_meta,omitempty"`
	RawToolInput         map[string]any `json:"raw_tool_input,omitempty"`
	SanitizedPromptInput map[string]any `json:"sanitized_prompt_input,omitempty"`
	LLMOutputText        string         `json:"llm_output_text,omitempty"`
}

// LLMMeta describes the model identity behind a non-deterministic tool call.
type LLMMeta struct {
	Provider     string  `json:"provider"`
	ModelName    string  `json:"model_name"`
	ModelVersion string  `json:"model_version"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
}

// PolicyDecision is the result of a single policy evaluation.
type PolicyDecision struct {
	Decision Decision `json:"decision"`
	ToolName string   `json:"tool_name"`
	Reasons  []string `json:"reasons"`
}

// LedgerEntry is one append-only, hash-chained row of the execution log.
type LedgerEntry struct {
	ID           int64    `json:"id"`
	TimestampISO string   `json:"timestamp_iso"`
	RunID        string   `json:"run_id"`
	SAWID        string   `json:"saw_id"`
	NodeID       string   `json:"node_id"`
	ToolName     string   `json:"tool_name"`
	Decision     Decision `json:"decision"`
	LatencyMS    float64  `json:"latency_ms"`
	PrevHash     string   `json:"prev_hash"`
	EventHash    string   `json:"event_hash"`
	Error        string   `json:"error"`
}

// RunRecord is the per-run metadata row.
type RunRecord struct {
	RunID          string
	SAWID          string
	StartedAt      string
	Status         RunStatus
	PolicyHash     string
	PolicyVersion  string
	PolicySnapshot string
	ApprovedBy     string
	ApprovedAt     string
	ApprovalNote   string
}

// LLMInvocation is a hashed, normalized, length-bounded record of a
// single non-deterministic tool invocation.
type LLMInvocation struct {
	ID                       int64
	RunID                    string
	NodeID                   string
	InvokedAt                string
	Provider                 string
	ModelName                string
	ModelVersion             string
	Temperature              float64
	MaxTokens                int
	RawToolInputHash         string
	SanitizedPromptInputHash string
	LLMOutputTextHash        string
	RawToolInputPreview      string
	LLMOutputPreview         string
}

// RunSummary is the final result handed back from a single engine Run call.
type RunSummary struct {
	RunID           string
	SAWID           string
	Status          RunStatus
	SystemTimeMS    float64
	HumanWaitTimeMS float64
	TotalTimeMS     float64
	NodeResults     map[string]any
	FinalOutputs    map[string]any
	DenialReason    string
}

// VerifyResult is the outcome of re-walking a run's hash chain.
type VerifyResult struct {
	Valid            bool
	FirstMismatchIdx int
	ExpectedHash     string
	FoundHash        string
}
