package llmrecord

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/surfit-labs/saw-core/pkg/model"
)

// SQLStore is a database/sql backed Store for llm_invocations.
type SQLStore struct {
	db       *sql.DB
	postgres bool
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS llm_invocations (
    id                           INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id                       TEXT    NOT NULL,
    node_id                      TEXT    NOT NULL,
    invoked_at                   TEXT    NOT NULL,
    provider                     TEXT,
    model_name                   TEXT,
    model_version                TEXT,
    temperature                  REAL,
    max_tokens                   INTEGER,
    raw_tool_input_hash          TEXT,
    sanitized_prompt_input_hash  TEXT,
    llm_output_text_hash         TEXT,
    raw_tool_input_preview       TEXT,
    llm_output_preview           TEXT
);
CREATE INDEX IF NOT EXISTS idx_llm_run_id ON llm_invocations(run_id);
CREATE INDEX IF NOT EXISTS idx_llm_node_id ON llm_invocations(node_id);
CREATE INDEX IF NOT EXISTS idx_llm_invoked_at ON llm_invocations(invoked_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS llm_invocations (
    id                           BIGSERIAL PRIMARY KEY,
    run_id                       TEXT    NOT NULL,
    node_id                      TEXT    NOT NULL,
    invoked_at                   TEXT    NOT NULL,
    provider                     TEXT,
    model_name                   TEXT,
    model_version                TEXT,
    temperature                  DOUBLE PRECISION,
    max_tokens                   INTEGER,
    raw_tool_input_hash          TEXT,
    sanitized_prompt_input_hash  TEXT,
    llm_output_text_hash         TEXT,
    raw_tool_input_preview       TEXT,
    llm_output_preview           TEXT
);
CREATE INDEX IF NOT EXISTS idx_llm_run_id ON llm_invocations(run_id);
CREATE INDEX IF NOT EXISTS idx_llm_node_id ON llm_invocations(node_id);
CREATE INDEX IF NOT EXISTS idx_llm_invoked_at ON llm_invocations(invoked_at);
`

// NewSQLStore opens (or migrates) the llm_invocations table against db.
func NewSQLStore(ctx context.Context, db *sql.DB, postgres bool) (*SQLStore, error) {
	schema := sqliteSchema
	if postgres {
		schema = postgresSchema
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("llmrecord: migrate schema: %w", err)
	}
	return &SQLStore{db: db, postgres: postgres}, nil
}

func (s *SQLStore) ph(n int) string {
	if s.postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) Insert(ctx context.Context, rec model.LLMInvocation) error {
	query := fmt.Sprintf(`
		INSERT INTO llm_invocations
			(run_id, node_id, invoked_at, provider, model_name, model_version, temperature, max_tokens,
			 raw_tool_input_hash, sanitized_prompt_input_hash, llm_output_text_hash,
			 raw_tool_input_preview, llm_output_preview)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10), s.ph(11), s.ph(12), s.ph(13))

	_, err := s.db.ExecContext(ctx, query,
		rec.RunID, rec.NodeID, rec.InvokedAt, rec.Provider, rec.ModelName, rec.ModelVersion, rec.Temperature, rec.MaxTokens,
		rec.RawToolInputHash, rec.SanitizedPromptInputHash, rec.LLMOutputTextHash, rec.RawToolInputPreview, rec.LLMOutputPreview,
	)
	return err
}

// ByRun returns every LLM invocation record for runID, ordered by
// (invoked_at, id) ascending.
func (s *SQLStore) ByRun(ctx context.Context, runID string) ([]model.LLMInvocation, error) {
	query := fmt.Sprintf(`
		SELECT id, run_id, node_id, invoked_at, provider, model_name, model_version, temperature, max_tokens,
		       raw_tool_input_hash, sanitized_prompt_input_hash, llm_output_text_hash,
		       raw_tool_input_preview, llm_output_preview
		FROM llm_invocations
		WHERE run_id = %s
		ORDER BY invoked_at ASC, id ASC`, s.ph(1))

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LLMInvocation
	for rows.Next() {
		var rec model.LLMInvocation
		var provider, modelName, modelVersion sql.NullString
		var temperature sql.NullFloat64
		var maxTokens sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.NodeID, &rec.InvokedAt, &provider, &modelName, &modelVersion,
			&temperature, &maxTokens, &rec.RawToolInputHash, &rec.SanitizedPromptInputHash, &rec.LLMOutputTextHash,
			&rec.RawToolInputPreview, &rec.LLMOutputPreview); err != nil {
			return nil, err
		}
		rec.Provider = provider.String
		rec.ModelName = modelName.String
		rec.ModelVersion = modelVersion.String
		rec.Temperature = temperature.Float64
		rec.MaxTokens = int(maxTokens.Int64)
		out = append(out, rec)
	}
	return out, rows.Err()
}
