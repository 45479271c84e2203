package evidence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/surfit-labs/saw-core/pkg/model"
)

// LedgerReader is the subset of pkg/ledger.Ledger the exporter depends on.
type LedgerReader interface {
	Entries(ctx context.Context, runID string) ([]model.LedgerEntry, error)
	Verify(ctx context.Context, runID string) (model.VerifyResult, error)
}

// RunReader is the subset of pkg/runstore.Store the exporter depends on.
type RunReader interface {
	Get(ctx context.Context, runID string) (model.RunRecord, error)
}

// Bundle is the full archived shape of one run: its metadata, every
// ledger entry, and the integrity verification computed at export time.
type Bundle struct {
	Run     model.RunRecord     `json:"run"`
	Entries []model.LedgerEntry `json:"entries"`
	Verify  model.VerifyResult  `json:"verify"`
}

// Exporter archives completed runs to a BlobStore.
type Exporter struct {
	Ledger LedgerReader
	Runs   RunReader
	Blobs  BlobStore
}

// New builds an Exporter over its dependencies.
func New(ledger LedgerReader, runs RunReader, blobs BlobStore) *Exporter {
	return &Exporter{Ledger: ledger, Runs: runs, Blobs: blobs}
}

// Store gathers runID's run record, ledger entries, and a freshly
// computed integrity verification into a Bundle, canonicalizes it via
// RFC 8785 JCS, and writes it to the configured BlobStore, returning
// the content digest of the archived bundle.
func (e *Exporter) Store(ctx context.Context, runID string) (digest string, err error) {
	run, err := e.Runs.Get(ctx, runID)
	if err != nil {
		return "", fmt.Errorf("evidence: load run record: %w", err)
	}
	entries, err := e.Ledger.Entries(ctx, runID)
	if err != nil {
		return "", fmt.Errorf("evidence: load ledger entries: %w", err)
	}
	verify, err := e.Ledger.Verify(ctx, runID)
	if err != nil {
		return "", fmt.Errorf("evidence: verify run: %w", err)
	}

	bundle := Bundle{Run: run, Entries: entries, Verify: verify}
	raw, err := json.Marshal(bundle)
	if err != nil {
		return "", fmt.Errorf("evidence: marshal bundle: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("evidence: jcs transform: %w", err)
	}

	digest, err = e.Blobs.Store(ctx, canon)
	if err != nil {
		return "", fmt.Errorf("evidence: store blob: %w", err)
	}
	return digest, nil
}

// Load fetches a previously exported bundle by its content digest.
func (e *Exporter) Load(ctx context.Context, digest string) (Bundle, error) {
	raw, err := e.Blobs.Get(ctx, digest)
	if err != nil {
		return Bundle{}, fmt.Errorf("evidence: load blob: %w", err)
	}
	var bundle Bundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return Bundle{}, fmt.Errorf("evidence: decode bundle: %w", err)
	}
	return bundle, nil
}
