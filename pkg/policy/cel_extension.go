package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/surfit-labs/saw-core/pkg/model"
)

// Extension is a narrow, deny-only policy seam: it may only turn an
// otherwise-allowed call into a deny, never the reverse, and it only
// runs once the base five-step evaluation has already passed. This lets
// an operator express bespoke rules (e.g. tenant business hours) without
// touching the core deterministic evaluation order.
type Extension interface {
	// Evaluate returns (reason, true) to deny, or ("", false) to allow.
	Evaluate(toolName string, toolInputs map[string]any, bundle model.PolicyBundle, isWrite bool) (string, bool)
}

// CELExtension wraps a single named CEL predicate, scoped to one tool
// name, compiled once and evaluated per call. The predicate program must
// evaluate to a bool; true means "deny".
//
// The env declares `tool_name`, `inputs`, `is_write`, and
// `sensitivity_level` as variables available to the expression.
type CELExtension struct {
	name     string
	toolName string
	program  cel.Program
}

// NewCELExtension compiles expr (a CEL boolean expression) scoped to
// toolName. A non-bool result, or any evaluation error, is treated as
// "no deny" rather than failing the whole policy check — an extension
// predicate must never be able to crash the core evaluation path.
func NewCELExtension(name, toolName, expr string) (*CELExtension, error) {
	env, err := cel.NewEnv(
		cel.Variable("tool_name", cel.StringType),
		cel.Variable("inputs", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("is_write", cel.BoolType),
		cel.Variable("sensitivity_level", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("policy: cel compile %q: %w", name, issues.Err())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("policy: cel program %q: %w", name, err)
	}

	return &CELExtension{name: name, toolName: toolName, program: program}, nil
}

func (c *CELExtension) Evaluate(toolName string, toolInputs map[string]any, bundle model.PolicyBundle, isWrite bool) (string, bool) {
	if toolName != c.toolName {
		return "", false
	}

	out, _, err := c.program.Eval(map[string]any{
		"tool_name":         toolName,
		"inputs":            toolInputs,
		"is_write":          isWrite,
		"sensitivity_level": bundle.SensitivityLevel,
	})
	if err != nil {
		return "", false
	}

	denied, ok := out.Value().(bool)
	if !ok || !denied {
		return "", false
	}
	return fmt.Sprintf("Denied by extension rule '%s'.", c.name), true
}
