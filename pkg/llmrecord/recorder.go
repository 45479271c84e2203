// Package llmrecord commits a hashed, normalized record of every
// non-deterministic ("LLM-backed") tool invocation.
// The record never stores raw text: only SHA-256 hashes of normalized
// input/output, plus short previews, so the ledger's downstream
// consumers can detect drift in a model's behavior without the audit
// store itself becoming a second copy of potentially sensitive prompt
// content.
package llmrecord

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/surfit-labs/saw-core/pkg/canonicalize"
	"github.com/surfit-labs/saw-core/pkg/model"
)

const previewLimit = 300

// Store is the persistence contract a Recorder is built on.
type Store interface {
	Insert(ctx context.Context, rec model.LLMInvocation) error
}

// Recorder hashes and persists LLM invocation records.
type Recorder struct {
	store Store
	clock func() time.Time
}

// New builds a Recorder over store.
func New(store Store) *Recorder {
	return &Recorder{store: store, clock: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the timestamp source, for deterministic tests.
func (r *Recorder) WithClock(clock func() time.Time) *Recorder {
	r.clock = clock
	return r
}

// Record commits the LLM invocation record carried by result. Callers
// should only invoke this for tools that populated result.LLMMeta; the
// engine enforces that gate before calling Record.
func (r *Recorder) Record(ctx context.Context, runID, nodeID string, result model.ToolResult) error {
	if result.LLMMeta == nil {
		return fmt.Errorf("llmrecord: tool result has no llm_meta")
	}

	rawJSON, err := canonicalize.MarshalCanonical(result.RawToolInput)
	if err != nil {
		return fmt.Errorf("llmrecord: canonicalize raw_tool_input: %w", err)
	}
	sanitizedJSON, err := canonicalize.MarshalCanonical(result.SanitizedPromptInput)
	if err != nil {
		return fmt.Errorf("llmrecord: canonicalize sanitized_prompt_input: %w", err)
	}

	rec := model.LLMInvocation{
		RunID:                    runID,
		NodeID:                   nodeID,
		InvokedAt:                r.clock().Format(time.RFC3339Nano),
		Provider:                 result.LLMMeta.Provider,
		ModelName:                result.LLMMeta.ModelName,
		ModelVersion:             result.LLMMeta.ModelVersion,
		Temperature:              result.LLMMeta.Temperature,
		MaxTokens:                result.LLMMeta.MaxTokens,
		RawToolInputHash:         normalizedHash(string(rawJSON)),
		SanitizedPromptInputHash: normalizedHash(string(sanitizedJSON)),
		LLMOutputTextHash:        normalizedHash(result.LLMOutputText),
		RawToolInputPreview:      preview(string(rawJSON)),
		LLMOutputPreview:         preview(result.LLMOutputText),
	}

	if err := r.store.Insert(ctx, rec); err != nil {
		return fmt.Errorf("llmrecord: insert: %w", err)
	}
	return nil
}

// normalizeText applies the CRLF->LF and trailing-whitespace-trim
// normalization the hash contract requires, so that two logically
// identical payloads hash identically regardless of line-ending or
// trailing-space noise introduced by a transport hop.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimRight(s, " \t\n\r")
}

func normalizedHash(s string) string {
	sum := sha256.Sum256([]byte(normalizeText(s)))
	return hex.EncodeToString(sum[:])
}

func preview(s string) string {
	s = normalizeText(s)
	r := []rune(s)
	if len(r) <= previewLimit {
		return s
	}
	return string(r[:previewLimit])
}
