// Package runstore persists the per-run metadata row: the policy
// snapshot a run was opened against, its current status, and approval
// attribution. Opening a run with an already-used
// run_id overwrites the header in place; it never touches the ledger.
package runstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/surfit-labs/saw-core/pkg/model"
)

// Store is the persistence contract the engine's RunStore dependency
// is built on.
type Store interface {
	Open(ctx context.Context, rec model.RunRecord) error
	Close(ctx context.Context, runID string, status model.RunStatus, approvedBy, approvedAt, approvalNote string) error
	Get(ctx context.Context, runID string) (model.RunRecord, error)
	// ResolvePrefix resolves an unambiguous short run_id prefix to its
	// full run_id, returning ErrAmbiguousPrefix when more than one run
	// matches. The engine itself never accepts prefixes; only
	// convenience callers like the CLI do.
	ResolvePrefix(ctx context.Context, prefix string) (string, error)
}

// ErrNotFound is returned when a run_id (or an unambiguous prefix of
// one) has no matching row.
var ErrNotFound = fmt.Errorf("runstore: run not found")

// ErrAmbiguousPrefix is returned by ResolvePrefix when a short
// identifier matches more than one run_id.
var ErrAmbiguousPrefix = fmt.Errorf("runstore: ambiguous run id prefix")

// SQLStore is a database/sql backed Store, mirroring the dual-driver
// (modernc.org/sqlite / lib/pq) shape used throughout this codebase's
// persistence layer.
type SQLStore struct {
	db       *sql.DB
	postgres bool
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id           TEXT PRIMARY KEY,
    saw_id           TEXT NOT NULL,
    started_at       TEXT NOT NULL,
    status           TEXT NOT NULL,
    policy_hash      TEXT,
    policy_version   TEXT,
    policy_snapshot  TEXT,
    approved_by      TEXT,
    approved_at      TEXT,
    approval_note    TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_saw_id ON runs(saw_id);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id           TEXT PRIMARY KEY,
    saw_id           TEXT NOT NULL,
    started_at       TEXT NOT NULL,
    status           TEXT NOT NULL,
    policy_hash      TEXT,
    policy_version   TEXT,
    policy_snapshot  TEXT,
    approved_by      TEXT,
    approved_at      TEXT,
    approval_note    TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_saw_id ON runs(saw_id);
`

// legacyColumns is the set of columns a pre-policy-snapshot database
// might be missing. NewSQLStore adds them with null defaults before
// first use, so opening an old database file never fails.
var legacyColumns = []struct{ name, ddl string }{
	{"policy_hash", "ALTER TABLE runs ADD COLUMN policy_hash TEXT"},
	{"policy_version", "ALTER TABLE runs ADD COLUMN policy_version TEXT"},
	{"policy_snapshot", "ALTER TABLE runs ADD COLUMN policy_snapshot TEXT"},
	{"approved_by", "ALTER TABLE runs ADD COLUMN approved_by TEXT"},
	{"approved_at", "ALTER TABLE runs ADD COLUMN approved_at TEXT"},
	{"approval_note", "ALTER TABLE runs ADD COLUMN approval_note TEXT"},
}

// NewSQLStore opens (or migrates) the runs table against db.
func NewSQLStore(ctx context.Context, db *sql.DB, postgres bool) (*SQLStore, error) {
	schema := sqliteSchema
	if postgres {
		schema = postgresSchema
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("runstore: migrate schema: %w", err)
	}

	s := &SQLStore{db: db, postgres: postgres}
	if err := s.ensureColumns(ctx); err != nil {
		return nil, fmt.Errorf("runstore: backfill columns: %w", err)
	}
	return s, nil
}

// ensureColumns adds any column the legacy schema is missing. Errors
// from a column that already exists are swallowed, since neither
// sqlite nor postgres has an "ADD COLUMN IF NOT EXISTS" that works
// uniformly across both drivers' dialects here.
func (s *SQLStore) ensureColumns(ctx context.Context) error {
	existing, err := s.existingColumns(ctx)
	if err != nil {
		return err
	}
	for _, col := range legacyColumns {
		if existing[col.name] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, col.ddl); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
	}
	return nil
}

func (s *SQLStore) existingColumns(ctx context.Context) (map[string]bool, error) {
	cols := make(map[string]bool)
	if s.postgres {
		rows, err := s.db.QueryContext(ctx, `SELECT column_name FROM information_schema.columns WHERE table_name = 'runs'`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return nil, err
			}
			cols[name] = true
		}
		return cols, rows.Err()
	}

	rows, err := s.db.QueryContext(ctx, `PRAGMA table_info(runs)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &primaryKey); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func (s *SQLStore) ph(n int) string {
	if s.postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Open idempotently upserts rec: a second Open with the same run_id
// overwrites the header fields but is otherwise a no-op on the ledger.
func (s *SQLStore) Open(ctx context.Context, rec model.RunRecord) error {
	var query string
	if s.postgres {
		query = `
			INSERT INTO runs (run_id, saw_id, started_at, status, policy_hash, policy_version, policy_snapshot)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (run_id) DO UPDATE SET
				saw_id = excluded.saw_id,
				started_at = excluded.started_at,
				status = excluded.status,
				policy_hash = excluded.policy_hash,
				policy_version = excluded.policy_version,
				policy_snapshot = excluded.policy_snapshot`
	} else {
		query = `
			INSERT INTO runs (run_id, saw_id, started_at, status, policy_hash, policy_version, policy_snapshot)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id) DO UPDATE SET
				saw_id = excluded.saw_id,
				started_at = excluded.started_at,
				status = excluded.status,
				policy_hash = excluded.policy_hash,
				policy_version = excluded.policy_version,
				policy_snapshot = excluded.policy_snapshot`
	}
	_, err := s.db.ExecContext(ctx, query,
		rec.RunID, rec.SAWID, rec.StartedAt, string(rec.Status), rec.PolicyHash, rec.PolicyVersion, rec.PolicySnapshot,
	)
	if err != nil {
		return fmt.Errorf("runstore: open: %w", err)
	}
	return nil
}

// Close updates status and approval attribution for an existing run.
func (s *SQLStore) Close(ctx context.Context, runID string, status model.RunStatus, approvedBy, approvedAt, approvalNote string) error {
	query := fmt.Sprintf(`
		UPDATE runs
		SET status = %s, approved_by = %s, approved_at = %s, approval_note = %s
		WHERE run_id = %s`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5))
	_, err := s.db.ExecContext(ctx, query, string(status), nullIfEmpty(approvedBy), nullIfEmpty(approvedAt), nullIfEmpty(approvalNote), runID)
	if err != nil {
		return fmt.Errorf("runstore: close: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Get fetches the run record for runID.
func (s *SQLStore) Get(ctx context.Context, runID string) (model.RunRecord, error) {
	query := fmt.Sprintf(`
		SELECT run_id, saw_id, started_at, status, policy_hash, policy_version, policy_snapshot, approved_by, approved_at, approval_note
		FROM runs WHERE run_id = %s`, s.ph(1))
	return s.scanOne(s.db.QueryRowContext(ctx, query, runID))
}

func (s *SQLStore) scanOne(row *sql.Row) (model.RunRecord, error) {
	var (
		rec                                        model.RunRecord
		status                                     string
		policyHash, policyVersion, policySnapshot sql.NullString
		approvedBy, approvedAt, approvalNote       sql.NullString
	)
	err := row.Scan(&rec.RunID, &rec.SAWID, &rec.StartedAt, &status, &policyHash, &policyVersion, &policySnapshot, &approvedBy, &approvedAt, &approvalNote)
	if err == sql.ErrNoRows {
		return model.RunRecord{}, ErrNotFound
	}
	if err != nil {
		return model.RunRecord{}, err
	}
	rec.Status = model.RunStatus(status)
	rec.PolicyHash = policyHash.String
	rec.PolicyVersion = policyVersion.String
	rec.PolicySnapshot = policySnapshot.String
	rec.ApprovedBy = approvedBy.String
	rec.ApprovedAt = approvedAt.String
	rec.ApprovalNote = approvalNote.String
	return rec, nil
}

// ResolvePrefix resolves an unambiguous run_id prefix (conventionally
// 8 characters).
func (s *SQLStore) ResolvePrefix(ctx context.Context, prefix string) (string, error) {
	query := fmt.Sprintf(`SELECT run_id FROM runs WHERE run_id LIKE %s || '%%' LIMIT 2`, s.ph(1))
	rows, err := s.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return "", fmt.Errorf("runstore: resolve prefix: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(ids) {
	case 0:
		return "", ErrNotFound
	case 1:
		return ids[0], nil
	default:
		return "", ErrAmbiguousPrefix
	}
}

// LatestPolicyVersion scans every past run of sawID and returns the
// highest semver-parseable policy_version seen, or ("", nil) if none
// parse. Non-semver policy_version strings (a tenant may version
// policies however it likes) are ignored rather than erroring, since
// this is advisory — it backs the CLI's downgrade warning, not a hard
// gate in the engine itself.
func (s *SQLStore) LatestPolicyVersion(ctx context.Context, sawID string) (string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT policy_version FROM runs WHERE saw_id = %s`, s.ph(1))
	rows, err := s.db.QueryContext(ctx, query, sawID)
	if err != nil {
		return "", fmt.Errorf("runstore: latest policy version: %w", err)
	}
	defer rows.Close()

	var latest *semver.Version
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return "", err
		}
		if !raw.Valid || raw.String == "" {
			continue
		}
		v, err := semver.NewVersion(raw.String)
		if err != nil {
			continue
		}
		if latest == nil || v.GreaterThan(latest) {
			latest = v
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if latest == nil {
		return "", nil
	}
	return latest.Original(), nil
}
