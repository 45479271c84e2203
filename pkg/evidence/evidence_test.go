package evidence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surfit-labs/saw-core/pkg/model"
)

type fakeLedger struct {
	entries []model.LedgerEntry
	verify  model.VerifyResult
}

func (f *fakeLedger) Entries(_ context.Context, _ string) ([]model.LedgerEntry, error) {
	return f.entries, nil
}

func (f *fakeLedger) Verify(_ context.Context, _ string) (model.VerifyResult, error) {
	return f.verify, nil
}

type fakeRuns struct {
	rec model.RunRecord
}

func (f *fakeRuns) Get(_ context.Context, _ string) (model.RunRecord, error) {
	return f.rec, nil
}

func sampleLedger() *fakeLedger {
	return &fakeLedger{
		entries: []model.LedgerEntry{
			{ID: 1, TimestampISO: "2025-06-01T12:00:00Z", RunID: "run-1", SAWID: "saw_x", NodeID: "n_start", Decision: model.DecisionAllow, PrevHash: "GENESIS", EventHash: "h1"},
			{ID: 2, TimestampISO: "2025-06-01T12:00:01Z", RunID: "run-1", SAWID: "saw_x", NodeID: "n_end", Decision: model.DecisionAllow, PrevHash: "h1", EventHash: "h2"},
		},
		verify: model.VerifyResult{Valid: true},
	}
}

func TestLocalStore_RoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	data := []byte(`{"hello":"world"}`)
	digest, err := store.Store(context.Background(), data)
	require.NoError(t, err)
	assert.Len(t, digest, 64)

	got, err := store.Get(context.Background(), digest)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestLocalStore_StoreIsIdempotent(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	data := []byte(`{"same":"bytes"}`)
	first, err := store.Store(context.Background(), data)
	require.NoError(t, err)
	second, err := store.Store(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLocalStore_GetUnknownDigest(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.Get(context.Background(), "ffffffffffffffff")
	assert.Error(t, err)
}

func TestExporter_StoreAndLoadBundle(t *testing.T) {
	blobs, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	runs := &fakeRuns{rec: model.RunRecord{
		RunID:  "run-1",
		SAWID:  "saw_x",
		Status: model.StatusCompleted,
	}}
	exporter := New(sampleLedger(), runs, blobs)

	digest, err := exporter.Store(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, digest, 64)

	bundle, err := exporter.Load(context.Background(), digest)
	require.NoError(t, err)
	assert.Equal(t, "run-1", bundle.Run.RunID)
	assert.Len(t, bundle.Entries, 2)
	assert.True(t, bundle.Verify.Valid)
}

func TestExporter_DigestIsContentAddressed(t *testing.T) {
	blobs, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	runs := &fakeRuns{rec: model.RunRecord{RunID: "run-1", SAWID: "saw_x", Status: model.StatusCompleted}}
	exporter := New(sampleLedger(), runs, blobs)

	first, err := exporter.Store(context.Background(), "run-1")
	require.NoError(t, err)
	second, err := exporter.Store(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, first, second, "identical bundles must share one digest")
}
