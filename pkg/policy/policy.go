// Package policy implements the pre-invocation authorization check: a
// deterministic, fail-closed evaluation of a tool call against a policy
// bundle's denylist, allowlist, egress gates, and write restrictions,
// in that fixed order with short-circuit on first deny.
package policy

import (
	"fmt"

	"github.com/surfit-labs/saw-core/pkg/model"
)

// InfraTools is the closed set of tools exempt from policy evaluation
// entirely, avoiding a bootstrap paradox for the engine's own logging.
var InfraTools = map[string]bool{
	"tool_logger_write": true,
}

// Engine evaluates tool calls against a policy bundle. The zero value is
// ready to use; Register adds optional tenant-scoped CEL deny predicates.
type Engine struct {
	extensions []Extension
}

// New builds a policy Engine with no extensions registered.
func New() *Engine {
	return &Engine{}
}

// Check runs the five-step evaluation: denylist, allowlist, egress
// gates, write restrictions, then any
// registered extension predicates — each step short-circuits to deny on
// its first failure; only an unconditional pass through every step
// yields allow.
func (e *Engine) Check(toolName string, toolInputs map[string]any, bundle model.PolicyBundle, isWrite bool) model.PolicyDecision {
	deny := func(reasons ...string) model.PolicyDecision {
		return model.PolicyDecision{Decision: model.DecisionDeny, ToolName: toolName, Reasons: reasons}
	}

	// 1. Denylist.
	if contains(bundle.Tools.Denylist, toolName) {
		return deny(fmt.Sprintf("Tool '%s' is on the denylist.", toolName))
	}

	// 2. Allowlist.
	if !contains(bundle.Tools.Allowlist, toolName) {
		return deny(fmt.Sprintf("Tool '%s' is not on the allowlist for policy '%s'.", toolName, bundle.PolicyID))
	}

	// 3. Egress capability gates.
	var reasons []string
	switch toolName {
	case "tool_external_http":
		if !bundle.Egress.AllowExternalHTTP {
			reasons = append(reasons, "External HTTP egress is disabled by policy.")
		}
	case "tool_email_send":
		if !bundle.Egress.AllowEmailSend {
			reasons = append(reasons, "Email send is disabled by policy.")
		}
	case "tool_slack_dm":
		if !bundle.Egress.AllowSlackDM {
			reasons = append(reasons, "Slack DM is disabled by policy.")
		}
	}
	if len(reasons) > 0 {
		return deny(reasons...)
	}

	// 4. Write restrictions.
	if isWrite {
		if restriction, ok := bundle.WriteRestrictions[toolName]; ok {
			var writeReasons []string
			templateID, _ := toolInputs["template_id"].(string)
			if !contains(restriction.AllowedTemplateIDs, templateID) {
				writeReasons = append(writeReasons, fmt.Sprintf(
					"Template ID '%s' is not in the allowed list: %v.", templateID, restriction.AllowedTemplateIDs))
			}
			createNew, _ := toolInputs["create_new_deck"].(bool)
			if createNew && !restriction.AllowCreateNewDecks {
				writeReasons = append(writeReasons, "Creating new decks is not allowed by policy.")
			}
			if len(writeReasons) > 0 {
				return deny(writeReasons...)
			}
		}
	}

	// 5. Extensions: additional deny-only gates, never able to turn a
	// structural deny into an allow and never evaluated before step 5
	// would otherwise have allowed.
	for _, ext := range e.extensions {
		if denyReason, denied := ext.Evaluate(toolName, toolInputs, bundle, isWrite); denied {
			return deny(denyReason)
		}
	}

	return model.PolicyDecision{Decision: model.DecisionAllow, ToolName: toolName, Reasons: []string{"all_checks_passed"}}
}

// Register adds a tenant-scoped extension predicate, evaluated only after
// the base five-step evaluation would otherwise allow.
func (e *Engine) Register(ext Extension) {
	e.extensions = append(e.extensions, ext)
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
