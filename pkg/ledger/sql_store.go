package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/surfit-labs/saw-core/pkg/model"
)

// SQLStore is a database/sql backed Store. It supports both the
// pure-Go modernc.org/sqlite driver (DSN with no scheme, or "sqlite:...")
// and PostgreSQL via lib/pq (DSN scheme "postgres://"), mirroring the
// dual-driver pattern this codebase uses for every persistence layer.
type SQLStore struct {
	db       *sql.DB
	postgres bool
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS execution_log (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp_iso   TEXT    NOT NULL,
    run_id          TEXT    NOT NULL,
    saw_id          TEXT    NOT NULL,
    node_id         TEXT    NOT NULL,
    tool_name       TEXT    NOT NULL DEFAULT '',
    decision        TEXT    NOT NULL CHECK(decision IN ('allow', 'deny', '')),
    latency_ms      REAL    NOT NULL DEFAULT 0.0,
    prev_hash       TEXT    NOT NULL DEFAULT 'GENESIS',
    event_hash      TEXT    NOT NULL DEFAULT '',
    error           TEXT
);
CREATE INDEX IF NOT EXISTS idx_execlog_run_id ON execution_log(run_id);
CREATE INDEX IF NOT EXISTS idx_execlog_saw_id ON execution_log(saw_id);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS execution_log (
    id              BIGSERIAL PRIMARY KEY,
    timestamp_iso   TEXT    NOT NULL,
    run_id          TEXT    NOT NULL,
    saw_id          TEXT    NOT NULL,
    node_id         TEXT    NOT NULL,
    tool_name       TEXT    NOT NULL DEFAULT '',
    decision        TEXT    NOT NULL CHECK(decision IN ('allow', 'deny', '')),
    latency_ms      DOUBLE PRECISION NOT NULL DEFAULT 0.0,
    prev_hash       TEXT    NOT NULL DEFAULT 'GENESIS',
    event_hash      TEXT    NOT NULL DEFAULT '',
    error           TEXT
);
CREATE INDEX IF NOT EXISTS idx_execlog_run_id ON execution_log(run_id);
CREATE INDEX IF NOT EXISTS idx_execlog_saw_id ON execution_log(saw_id);
`

// NewSQLStore opens (or migrates) the execution_log table against db.
// postgres selects $N placeholders and the BIGSERIAL schema; false
// selects sqlite's ? placeholders and AUTOINCREMENT schema.
func NewSQLStore(ctx context.Context, db *sql.DB, postgres bool) (*SQLStore, error) {
	schema := sqliteSchema
	if postgres {
		schema = postgresSchema
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("ledger: migrate schema: %w", err)
	}
	return &SQLStore{db: db, postgres: postgres}, nil
}

func (s *SQLStore) ph(n int) string {
	if s.postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) LatestHash(ctx context.Context, runID string) (string, bool, error) {
	query := fmt.Sprintf(`
		SELECT event_hash FROM execution_log
		WHERE run_id = %s
		ORDER BY timestamp_iso DESC, id DESC
		LIMIT 1`, s.ph(1))
	var hash string
	err := s.db.QueryRowContext(ctx, query, runID).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

func (s *SQLStore) Insert(ctx context.Context, e model.LedgerEntry) (int64, error) {
	query := fmt.Sprintf(`
		INSERT INTO execution_log
			(timestamp_iso, run_id, saw_id, node_id, tool_name, decision, latency_ms, prev_hash, event_hash, error)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10))

	if s.postgres {
		query += " RETURNING id"
		var id int64
		err := s.db.QueryRowContext(ctx, query,
			e.TimestampISO, e.RunID, e.SAWID, e.NodeID, e.ToolName, string(e.Decision), e.LatencyMS, e.PrevHash, e.EventHash, e.Error,
		).Scan(&id)
		return id, err
	}

	res, err := s.db.ExecContext(ctx, query,
		e.TimestampISO, e.RunID, e.SAWID, e.NodeID, e.ToolName, string(e.Decision), e.LatencyMS, e.PrevHash, e.EventHash, e.Error,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLStore) Entries(ctx context.Context, runID string) ([]model.LedgerEntry, error) {
	query := fmt.Sprintf(`
		SELECT id, timestamp_iso, run_id, saw_id, node_id, tool_name, decision, latency_ms, prev_hash, event_hash, error
		FROM execution_log
		WHERE run_id = %s
		ORDER BY timestamp_iso ASC, id ASC`, s.ph(1))

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var decision, errStr sql.NullString
		if err := rows.Scan(&e.ID, &e.TimestampISO, &e.RunID, &e.SAWID, &e.NodeID, &e.ToolName, &decision, &e.LatencyMS, &e.PrevHash, &e.EventHash, &errStr); err != nil {
			return nil, err
		}
		e.Decision = model.Decision(decision.String)
		e.Error = errStr.String
		out = append(out, e)
	}
	return out, rows.Err()
}
