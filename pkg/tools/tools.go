// Package tools is a reference tool pack: the board-metrics
// aggregation chain, the revenue-reconciliation chain,
// and the infra logger tool, all deterministic mocks returning
// realistic static data so the engine is runnable end to end without
// any live external system. Register wires every tool in this package
// into a pkg/registry.Registry.
package tools

import (
	"context"
	"fmt"

	"github.com/surfit-labs/saw-core/pkg/model"
	"github.com/surfit-labs/saw-core/pkg/registry"
)

// Register adds every tool in this package to r.
func Register(r *registry.Registry) {
	r.Register("tool_salesforce_read_pipeline", salesforceReadPipeline)
	r.Register("tool_stripe_read_revenue", stripeReadRevenue)
	r.Register("tool_reconcile_metrics", reconcileMetrics)
	r.Register("tool_generate_board_summary", generateBoardSummary)
	r.Register("tool_slides_update_template", slidesUpdateTemplate)
	r.Register("tool_logger_write", loggerWrite)

	r.Register("tool_quickbooks_read_expenses", quickbooksReadExpenses)
	r.Register("tool_stripe_read_payouts", stripeReadPayouts)
	r.Register("tool_reconcile_revenue", reconcileRevenue)
	r.Register("tool_generate_revenue_report", generateRevenueReport)
	r.Register("tool_write_revenue_report", writeRevenueReport)
}

func str(inputs map[string]any, key, fallback string) string {
	if v, ok := inputs[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func num(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func subMap(inputs map[string]any, key string) map[string]any {
	if m, ok := inputs[key].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// ── Read-only: Salesforce ───────────────────────────────────────

func salesforceReadPipeline(_ context.Context, _ map[string]any, _ *model.RunContext) model.ToolResult {
	return model.ToolResult{
		ToolName: "tool_salesforce_read_pipeline",
		Success:  true,
		Data: map[string]any{
			"pipeline_usd": 4_250_000.00,
			"bookings_usd": 1_875_000.00,
			"notes":        "Includes 2 deals awaiting legal review.",
		},
	}
}

// ── Read-only: Stripe ────────────────────────────────────────────

func stripeReadRevenue(_ context.Context, _ map[string]any, _ *model.RunContext) model.ToolResult {
	return model.ToolResult{
		ToolName: "tool_stripe_read_revenue",
		Success:  true,
		Data: map[string]any{
			"gross_revenue_usd": 2_100_000.00,
			"refunds_usd":       45_000.00,
			"net_revenue_usd":   2_055_000.00,
		},
	}
}

// ── Deterministic: Reconcile ─────────────────────────────────────

func reconcileMetrics(_ context.Context, inputs map[string]any, _ *model.RunContext) model.ToolResult {
	sf := subMap(inputs, "salesforce")
	st := subMap(inputs, "stripe")

	bookings := num(sf, "bookings_usd")
	netRev := num(st, "net_revenue_usd")
	delta := bookings - netRev

	var discrepancies []any
	var flags []any

	if delta != 0 {
		discrepancies = append(discrepancies, map[string]any{
			"field":            "bookings_vs_net_revenue",
			"salesforce_value": bookings,
			"stripe_value":     netRev,
			"delta_usd":        delta,
		})
	}
	if bookings != 0 && absf(delta)/bookings > 0.10 {
		flags = append(flags, "LARGE_DELTA: bookings vs net revenue diverges >10%")
	}

	reconciled := map[string]any{
		"pipeline_usd":               num(sf, "pipeline_usd"),
		"bookings_usd":               bookings,
		"gross_revenue_usd":          num(st, "gross_revenue_usd"),
		"refunds_usd":                num(st, "refunds_usd"),
		"net_revenue_usd":            netRev,
		"bookings_revenue_delta_usd": delta,
	}

	return model.ToolResult{
		ToolName: "tool_reconcile_metrics",
		Success:  true,
		Data: map[string]any{
			"discrepancies":      discrepancies,
			"flags":              flags,
			"reconciled_metrics": reconciled,
		},
	}
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// ── Non-deterministic: Generate Board Summary ────────────────────
//
// Stands in for an LLM call in production; every invocation populates
// LLMMeta so the run produces an llmrecord entry.

func generateBoardSummary(_ context.Context, inputs map[string]any, _ *model.RunContext) model.ToolResult {
	metrics := subMap(inputs, "reconciled_metrics")

	table := fmt.Sprintf(
		"| Metric | Value |\n|---|---|\n"+
			"| Pipeline | $%.0f |\n| Bookings | $%.0f |\n"+
			"| Gross Revenue | $%.0f |\n| Refunds | $%.0f |\n"+
			"| Net Revenue | $%.0f |\n| Bookings–Revenue Delta | $%.0f |",
		num(metrics, "pipeline_usd"), num(metrics, "bookings_usd"),
		num(metrics, "gross_revenue_usd"), num(metrics, "refunds_usd"),
		num(metrics, "net_revenue_usd"), num(metrics, "bookings_revenue_delta_usd"),
	)

	commentary := "Pipeline remains healthy. Net revenue tracks within expected range. " +
		"Bookings-to-revenue delta reflects timing of contract activations; " +
		"2 deals pending legal review."

	return model.ToolResult{
		ToolName: "tool_generate_board_summary",
		Success:  true,
		Data: map[string]any{
			"metrics_table_markdown": table,
			"commentary":             commentary,
		},
		LLMMeta: &model.LLMMeta{
			Provider:     "stub",
			ModelName:    "board-summary-mock",
			ModelVersion: "v1",
			Temperature:  0.2,
			MaxTokens:    512,
		},
		SanitizedPromptInput: map[string]any{"reconciled_metrics": metrics},
		LLMOutputText:        commentary,
	}
}

// ── Write: Update Slides Template ────────────────────────────────

func slidesUpdateTemplate(_ context.Context, inputs map[string]any, _ *model.RunContext) model.ToolResult {
	templateID := str(inputs, "template_id", "")
	if templateID == "" {
		return model.ToolResult{ToolName: "tool_slides_update_template", Success: false, Error: "template_id is required"}
	}
	return model.ToolResult{
		ToolName: "tool_slides_update_template",
		Success:  true,
		Data: map[string]any{
			"status":            "updated",
			"updated_slide_ids": []any{"slide_3", "slide_4"},
		},
	}
}

// ── Infra: Logger ─────────────────────────────────────────────────
//
// Writes are handled by pkg/ledger, not here; this stub exists to
// satisfy the registry entry the infra allowlist (policy.InfraTools)
// refers to.

func loggerWrite(_ context.Context, _ map[string]any, _ *model.RunContext) model.ToolResult {
	return model.ToolResult{ToolName: "tool_logger_write", Success: true, Data: map[string]any{"status": "logged"}}
}

// ── Revenue reconciliation chain ─────────────────────────────────

func quickbooksReadExpenses(_ context.Context, inputs map[string]any, _ *model.RunContext) model.ToolResult {
	return model.ToolResult{
		ToolName: "tool_quickbooks_read_expenses",
		Success:  true,
		Data: map[string]any{
			"total_expenses_usd": 1_240_000.00,
			"payroll_usd":        820_000.00,
			"opex_usd":           420_000.00,
			"period":             str(inputs, "period", "2025-Q1"),
		},
	}
}

func stripeReadPayouts(_ context.Context, _ map[string]any, _ *model.RunContext) model.ToolResult {
	return model.ToolResult{
		ToolName: "tool_stripe_read_payouts",
		Success:  true,
		Data: map[string]any{
			"total_payouts_usd": 1_980_000.00,
			"pending_usd":       75_000.00,
			"failed_usd":        12_000.00,
		},
	}
}

func reconcileRevenue(_ context.Context, inputs map[string]any, _ *model.RunContext) model.ToolResult {
	expenses := subMap(inputs, "expenses")
	payouts := subMap(inputs, "payouts")

	totalPayouts := num(payouts, "total_payouts_usd")
	net := totalPayouts - num(expenses, "total_expenses_usd")
	margin := 0.0
	if totalPayouts != 0 {
		margin = roundTo1(net / totalPayouts * 100)
	}

	return model.ToolResult{
		ToolName: "tool_reconcile_revenue",
		Success:  true,
		Data: map[string]any{
			"net_position_usd": net,
			"margin_pct":       margin,
			"flagged":          margin < 20,
		},
	}
}

func roundTo1(f float64) float64 {
	return float64(int(f*10+sign(f)*0.5)) / 10
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

func generateRevenueReport(_ context.Context, inputs map[string]any, _ *model.RunContext) model.ToolResult {
	reconciled := subMap(inputs, "reconciled")
	net := num(reconciled, "net_position_usd")
	margin := num(reconciled, "margin_pct")
	flagged, _ := reconciled["flagged"].(bool)

	flagCell := "✅ Within range"
	if flagged {
		flagCell = "⚠️ Below 20% threshold"
	}
	table := fmt.Sprintf(
		"| Metric | Value |\n|---|---|\n"+
			"| Total Payouts | $1,980,000 |\n| Total Expenses | $1,240,000 |\n"+
			"| Net Position | $%.0f |\n| Margin | %g%% |\n| Flag | %s |",
		net, margin, flagCell,
	)

	commentary := fmt.Sprintf("Net position of $%.0f reflects a %g%% margin. ", net, margin)
	if flagged {
		commentary += "Margin is below the 20% threshold — review recommended before write."
	} else {
		commentary += "Margin is within expected range. No anomalies detected."
	}

	return model.ToolResult{
		ToolName: "tool_generate_revenue_report",
		Success:  true,
		Data: map[string]any{
			"metrics_table_markdown": table,
			"commentary":             commentary,
		},
		LLMMeta: &model.LLMMeta{
			Provider:     "stub",
			ModelName:    "revenue-report-mock",
			ModelVersion: "v1",
			Temperature:  0.2,
			MaxTokens:    512,
		},
		SanitizedPromptInput: map[string]any{"reconciled": reconciled},
		LLMOutputText:        commentary,
	}
}

func writeRevenueReport(_ context.Context, _ map[string]any, _ *model.RunContext) model.ToolResult {
	return model.ToolResult{
		ToolName: "tool_write_revenue_report",
		Success:  true,
		Data: map[string]any{
			"status":      "written",
			"destination": "finance_reports/q1_revenue_reconciliation.pdf",
		},
	}
}
