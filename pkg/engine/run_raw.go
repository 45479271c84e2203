package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/surfit-labs/saw-core/pkg/model"
)

// RunRaw validates raw against the spec schema (when e.Validator is set)
// before unmarshaling it into a model.SAWSpec and delegating to Run.
// Callers that already hold a typed, in-process model.SAWSpec built by
// Go code (never serialized) should call Run directly instead;
// structural validity is a property of the type system at that point
// and does not need re-checking.
func (e *Engine) RunRaw(ctx context.Context, raw []byte, runCtx *model.RunContext) (model.RunSummary, error) {
	if e.Validator != nil {
		if err := e.Validator.Validate(raw); err != nil {
			return model.RunSummary{}, fmt.Errorf("engine: spec validation: %w", err)
		}
	}

	var spec model.SAWSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return model.RunSummary{}, fmt.Errorf("engine: decode spec: %w", err)
	}

	return e.Run(ctx, spec, runCtx)
}
