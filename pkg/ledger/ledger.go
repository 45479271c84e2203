// Package ledger implements the append-only, hash-chained execution
// log. Every entry's event_hash binds it to the previous entry for the
// same run_id, so any later mutation of a stored row is detectable by
// Verify. The canonicalization step (sorted keys, no whitespace) is
// pkg/canonicalize's Transform. Plain gowebpki/jcs is deliberately not
// used for this particular payload: RFC 8785's ECMAScript number
// serialization collapses 3.0 to "3", which would silently break the
// ledger's "latency_ms is always a real number" hash contract. The
// real gowebpki/jcs implementation is used for the evidence exporter's
// whole-bundle digest instead (pkg/evidence), where that collapsing is
// harmless.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/surfit-labs/saw-core/pkg/canonicalize"
	"github.com/surfit-labs/saw-core/pkg/model"
)

// Genesis is the prev_hash value of the first entry in any run's chain.
const Genesis = "GENESIS"

// Store is the persistence contract a Ledger is built on. Implementations
// live in sql_store.go (sqlite/postgres via database/sql).
type Store interface {
	// LatestHash returns the event_hash of the most recent entry for
	// run_id, or ("", false, nil) if the run has no entries yet.
	LatestHash(ctx context.Context, runID string) (hash string, ok bool, err error)
	Insert(ctx context.Context, entry model.LedgerEntry) (int64, error)
	Entries(ctx context.Context, runID string) ([]model.LedgerEntry, error)
}

// RunLocker brackets a per-run_id critical section across processes. The
// in-process Ledger mutex is always held regardless; a RunLocker extends
// that guarantee to other processes sharing the same Store (see
// pkg/runlock for the Redis-backed implementation). A nil RunLocker is a
// valid single-process configuration.
type RunLocker interface {
	Lock(ctx context.Context, runID string) (unlock func(), err error)
}

// Ledger coordinates serialized, hash-chained appends against a Store.
type Ledger struct {
	store Store
	lock  RunLocker
	clock func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds a Ledger over store. lock may be nil for single-process use.
func New(store Store, lock RunLocker) *Ledger {
	return &Ledger{
		store: store,
		lock:  lock,
		clock: func() time.Time { return time.Now().UTC() },
		locks: make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the timestamp source, for deterministic tests.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

func (l *Ledger) runMutex(runID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[runID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[runID] = m
	}
	return m
}

// Append computes the next hash-chained entry for runID and persists it.
func (l *Ledger) Append(ctx context.Context, runID, sawID, nodeID, toolName string, decision model.Decision, latencyMS float64, errStr string) (model.LedgerEntry, error) {
	mu := l.runMutex(runID)
	mu.Lock()
	defer mu.Unlock()

	if l.lock != nil {
		unlock, err := l.lock.Lock(ctx, runID)
		if err != nil {
			return model.LedgerEntry{}, fmt.Errorf("ledger: acquire distributed lock: %w", err)
		}
		defer unlock()
	}

	prevHash, ok, err := l.store.LatestHash(ctx, runID)
	if err != nil {
		return model.LedgerEntry{}, fmt.Errorf("ledger: read latest hash: %w", err)
	}
	if !ok {
		prevHash = Genesis
	}

	// Fixed-width fractional seconds keep string order equal to time
	// order, which Entries and Verify rely on when sorting by timestamp.
	timestamp := l.clock().Format("2006-01-02T15:04:05.000000000Z07:00")
	eventHash, err := EventHash(prevHash, runID, nodeID, toolName, decision, latencyMS, errStr, timestamp)
	if err != nil {
		return model.LedgerEntry{}, err
	}

	entry := model.LedgerEntry{
		TimestampISO: timestamp,
		RunID:        runID,
		SAWID:        sawID,
		NodeID:       nodeID,
		ToolName:     toolName,
		Decision:     decision,
		LatencyMS:    latencyMS,
		PrevHash:     prevHash,
		EventHash:    eventHash,
		Error:        errStr,
	}

	id, err := l.store.Insert(ctx, entry)
	if err != nil {
		return model.LedgerEntry{}, fmt.Errorf("ledger: insert: %w", err)
	}
	entry.ID = id
	return entry, nil
}

// Entries returns every entry for runID in (timestamp, id) order.
func (l *Ledger) Entries(ctx context.Context, runID string) ([]model.LedgerEntry, error) {
	return l.store.Entries(ctx, runID)
}

// Verify re-walks the chain for runID from Genesis and compares every
// stored hash against the recomputed expectation.
func (l *Ledger) Verify(ctx context.Context, runID string) (model.VerifyResult, error) {
	entries, err := l.store.Entries(ctx, runID)
	if err != nil {
		return model.VerifyResult{}, fmt.Errorf("ledger: verify: load entries: %w", err)
	}
	if len(entries) == 0 {
		return model.VerifyResult{Valid: true}, nil
	}

	prev := Genesis
	for idx, e := range entries {
		expected, err := EventHash(prev, e.RunID, e.NodeID, e.ToolName, e.Decision, e.LatencyMS, e.Error, e.TimestampISO)
		if err != nil {
			return model.VerifyResult{}, err
		}
		if e.PrevHash != prev || e.EventHash != expected {
			return model.VerifyResult{
				Valid:            false,
				FirstMismatchIdx: idx,
				ExpectedHash:     expected,
				FoundHash:        e.EventHash,
			}, nil
		}
		prev = e.EventHash
	}
	return model.VerifyResult{Valid: true}, nil
}

// EventHash computes SHA-256(prevHash || canonical_json(payload)) per the
// ledger's hash-chain contract. latency_ms is always encoded as a real
// number, never a bare integer, matching the contract every caller
// (Append and Verify) must agree on bit-for-bit.
func EventHash(prevHash, runID, nodeID, toolName string, decision model.Decision, latencyMS float64, errStr, timestamp string) (string, error) {
	payload := map[string]any{
		"run_id":     runID,
		"node_id":    nodeID,
		"tool_name":  toolName,
		"decision":   string(decision),
		"latency_ms": canonicalize.Real(latencyMS),
		"error":      errStr,
		"timestamp":  timestamp,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ledger: marshal payload: %w", err)
	}
	canon, err := canonicalize.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("ledger: canonicalize transform: %w", err)
	}
	sum := sha256.Sum256(append([]byte(prevHash), canon...))
	return hex.EncodeToString(sum[:]), nil
}
