package llmrecord

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surfit-labs/saw-core/pkg/model"
)

type captureStore struct {
	recs []model.LLMInvocation
}

func (s *captureStore) Insert(_ context.Context, rec model.LLMInvocation) error {
	s.recs = append(s.recs, rec)
	return nil
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
}

func llmResult() model.ToolResult {
	return model.ToolResult{
		ToolName: "tool_generate_board_summary",
		Success:  true,
		LLMMeta: &model.LLMMeta{
			Provider:     "stub",
			ModelName:    "board-summary-mock",
			ModelVersion: "v1",
			Temperature:  0.2,
			MaxTokens:    512,
		},
		RawToolInput:         map[string]any{"reconciled_metrics": map[string]any{"bookings_usd": 1875000.0}},
		SanitizedPromptInput: map[string]any{"reconciled_metrics": map[string]any{"bookings_usd": 1875000.0}},
		LLMOutputText:        "Pipeline remains healthy.",
	}
}

func TestRecord_CommitsHashedRecord(t *testing.T) {
	store := &captureStore{}
	r := New(store).WithClock(fixedClock())

	require.NoError(t, r.Record(context.Background(), "run-1", "n_generate_summary", llmResult()))
	require.Len(t, store.recs, 1)

	rec := store.recs[0]
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, "n_generate_summary", rec.NodeID)
	assert.Equal(t, "2025-06-01T12:00:00Z", rec.InvokedAt)
	assert.Equal(t, "stub", rec.Provider)
	assert.Equal(t, "board-summary-mock", rec.ModelName)
	assert.Len(t, rec.RawToolInputHash, 64)
	assert.Len(t, rec.SanitizedPromptInputHash, 64)
	assert.Len(t, rec.LLMOutputTextHash, 64)
	assert.NotEmpty(t, rec.RawToolInputPreview)
	assert.Equal(t, "Pipeline remains healthy.", rec.LLMOutputPreview)
}

func TestRecord_RequiresLLMMeta(t *testing.T) {
	r := New(&captureStore{})
	err := r.Record(context.Background(), "run-1", "n_x", model.ToolResult{ToolName: "tool_plain", Success: true})
	assert.Error(t, err)
}

func TestRecord_CRLFAndTrailingWhitespaceNormalizedBeforeHashing(t *testing.T) {
	store := &captureStore{}
	r := New(store).WithClock(fixedClock())

	a := llmResult()
	a.LLMOutputText = "line one\nline two"
	b := llmResult()
	b.LLMOutputText = "line one\r\nline two   \n"

	require.NoError(t, r.Record(context.Background(), "run-1", "n_a", a))
	require.NoError(t, r.Record(context.Background(), "run-1", "n_b", b))

	assert.Equal(t, store.recs[0].LLMOutputTextHash, store.recs[1].LLMOutputTextHash)
}

func TestRecord_StructuredInputsHashViaCanonicalJSON(t *testing.T) {
	store := &captureStore{}
	r := New(store).WithClock(fixedClock())

	a := llmResult()
	a.RawToolInput = map[string]any{"x": 1.0, "y": "v"}
	b := llmResult()
	b.RawToolInput = map[string]any{"y": "v", "x": 1.0}

	require.NoError(t, r.Record(context.Background(), "run-1", "n_a", a))
	require.NoError(t, r.Record(context.Background(), "run-1", "n_b", b))

	assert.Equal(t, store.recs[0].RawToolInputHash, store.recs[1].RawToolInputHash)
}

func TestRecord_PreviewTruncatedAt300(t *testing.T) {
	store := &captureStore{}
	r := New(store).WithClock(fixedClock())

	res := llmResult()
	res.LLMOutputText = strings.Repeat("x", 500)

	require.NoError(t, r.Record(context.Background(), "run-1", "n_x", res))
	assert.Len(t, store.recs[0].LLMOutputPreview, 300)
}
