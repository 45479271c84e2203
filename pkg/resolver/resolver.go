// Package resolver maps accumulated run state onto the inputs of the
// next node about to execute. A resolver must never mutate the run
// context it is given.
package resolver

import (
	"github.com/surfit-labs/saw-core/pkg/model"
)

// Resolver produces the tool-input payload for a node about to execute.
type Resolver interface {
	Resolve(nodeID string, node model.Node, ctx *model.RunContext) map[string]any
}

// Func adapts a plain function to the Resolver interface.
type Func func(nodeID string, node model.Node, ctx *model.RunContext) map[string]any

func (f Func) Resolve(nodeID string, node model.Node, ctx *model.RunContext) map[string]any {
	return f(nodeID, node, ctx)
}

func stateMap(ctx *model.RunContext, key string) map[string]any {
	v, ok := ctx.State[key]
	if !ok {
		return map[string]any{}
	}
	m, _ := v.(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return m
}

func has(ctx *model.RunContext, key string) bool {
	_, ok := ctx.State[key]
	return ok
}

// Default implements the reference resolution rules for the two demo
// SAWs (board metrics and revenue reconciliation). Unrecognized node ids
// resolve to an empty payload.
var Default Resolver = Func(func(nodeID string, node model.Node, ctx *model.RunContext) map[string]any {
	switch {
	// ── Board Metrics Aggregation ──────────────────────────────
	case nodeID == "n_salesforce_pull":
		return map[string]any{"date_range": "2025-Q1", "segment": "enterprise"}

	case nodeID == "n_stripe_pull" && has(ctx, "n_salesforce_pull"):
		return map[string]any{"date_range": "2025-Q1", "currency": "usd"}

	case nodeID == "n_reconcile" && has(ctx, "n_salesforce_pull"):
		return map[string]any{
			"salesforce": stateMap(ctx, "n_salesforce_pull"),
			"stripe":     stateMap(ctx, "n_stripe_pull"),
		}

	case nodeID == "n_generate_summary":
		rec := stateMap(ctx, "n_reconcile")
		reconciled, _ := rec["reconciled_metrics"].(map[string]any)
		discrepancies := rec["discrepancies"]
		return map[string]any{
			"reconciled_metrics": reconciled,
			"discrepancies":      discrepancies,
		}

	case nodeID == "n_update_slides":
		summary := stateMap(ctx, "n_generate_summary")
		return map[string]any{
			"template_id":            "TEMPLATE_DECK_V1",
			"metrics_table_markdown": summary["metrics_table_markdown"],
			"commentary":             summary["commentary"],
		}

	// ── Revenue Reconciliation ─────────────────────────────────
	case nodeID == "n_qb_pull":
		return map[string]any{"period": "2025-Q1"}

	case nodeID == "n_stripe_pull" && has(ctx, "n_qb_pull"):
		return map[string]any{"period": "2025-Q1"}

	case nodeID == "n_reconcile" && has(ctx, "n_qb_pull"):
		return map[string]any{
			"expenses": stateMap(ctx, "n_qb_pull"),
			"payouts":  stateMap(ctx, "n_stripe_pull"),
		}

	case nodeID == "n_gen_report":
		return map[string]any{"reconciled": stateMap(ctx, "n_reconcile")}

	case nodeID == "n_write_report":
		return map[string]any{"report": stateMap(ctx, "n_gen_report")}

	default:
		return map[string]any{}
	}
})
