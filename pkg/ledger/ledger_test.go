package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surfit-labs/saw-core/pkg/model"
)

// memStore is an in-memory Store for tests. Entries are mutable on
// purpose so tamper scenarios can edit committed rows.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	entries []model.LedgerEntry
}

func newMemStore() *memStore {
	return &memStore{nextID: 1}
}

func (s *memStore) LatestHash(_ context.Context, runID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *model.LedgerEntry
	for i := range s.entries {
		e := &s.entries[i]
		if e.RunID != runID {
			continue
		}
		if latest == nil || e.TimestampISO > latest.TimestampISO ||
			(e.TimestampISO == latest.TimestampISO && e.ID > latest.ID) {
			latest = e
		}
	}
	if latest == nil {
		return "", false, nil
	}
	return latest.EventHash, true, nil
}

func (s *memStore) Insert(_ context.Context, e model.LedgerEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.nextID
	s.nextID++
	s.entries = append(s.entries, e)
	return e.ID, nil
}

func (s *memStore) Entries(_ context.Context, runID string) ([]model.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.LedgerEntry
	for _, e := range s.entries {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TimestampISO != out[j].TimestampISO {
			return out[i].TimestampISO < out[j].TimestampISO
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// mutate edits the stored entry at chain position idx for runID.
func (s *memStore) mutate(runID string, idx int, f func(*model.LedgerEntry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.entries {
		if s.entries[i].RunID != runID {
			continue
		}
		if n == idx {
			f(&s.entries[i])
			return
		}
		n++
	}
}

func testClock() func() time.Time {
	t := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

func TestAppend_ChainsFromGenesis(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	lg := New(store, nil).WithClock(testClock())

	first, err := lg.Append(ctx, "run-1", "saw_board_metrics", "n_start", "", model.DecisionAllow, 0, "")
	require.NoError(t, err)
	assert.Equal(t, Genesis, first.PrevHash)
	assert.NotEmpty(t, first.EventHash)

	second, err := lg.Append(ctx, "run-1", "saw_board_metrics", "n_salesforce_pull", "tool_salesforce_read_pipeline", model.DecisionAllow, 3.25, "")
	require.NoError(t, err)
	assert.Equal(t, first.EventHash, second.PrevHash)
	assert.NotEqual(t, first.EventHash, second.EventHash)
}

func TestAppend_IndependentChainsPerRun(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	lg := New(store, nil).WithClock(testClock())

	_, err := lg.Append(ctx, "run-a", "saw_x", "n_start", "", model.DecisionAllow, 0, "")
	require.NoError(t, err)
	b, err := lg.Append(ctx, "run-b", "saw_x", "n_start", "", model.DecisionAllow, 0, "")
	require.NoError(t, err)

	// run-b's first entry starts its own chain, not run-a's.
	assert.Equal(t, Genesis, b.PrevHash)
}

func TestVerify_EmptyRunIsValid(t *testing.T) {
	lg := New(newMemStore(), nil)
	res, err := lg.Verify(context.Background(), "never-ran")
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestVerify_FreshChainIsValid(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	lg := New(store, nil).WithClock(testClock())

	for i := 0; i < 8; i++ {
		_, err := lg.Append(ctx, "run-1", "saw_x", fmt.Sprintf("n_%d", i), "tool_t", model.DecisionAllow, float64(i)*1.5, "")
		require.NoError(t, err)
	}

	res, err := lg.Verify(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestVerify_DetectsLatencyTamper(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	lg := New(store, nil).WithClock(testClock())

	for i := 0; i < 8; i++ {
		_, err := lg.Append(ctx, "run-1", "saw_x", fmt.Sprintf("n_%d", i), "tool_t", model.DecisionAllow, 2.0, "")
		require.NoError(t, err)
	}

	// +1.0 on the 4th row (zero-based index 3).
	store.mutate("run-1", 3, func(e *model.LedgerEntry) {
		e.LatencyMS += 1.0
	})

	res, err := lg.Verify(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, 3, res.FirstMismatchIdx)
	assert.NotEqual(t, res.ExpectedHash, res.FoundHash)
	assert.NotEmpty(t, res.ExpectedHash)
	assert.NotEmpty(t, res.FoundHash)
}

func TestVerify_DetectsErrorFieldTamper(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	lg := New(store, nil).WithClock(testClock())

	for i := 0; i < 4; i++ {
		_, err := lg.Append(ctx, "run-1", "saw_x", fmt.Sprintf("n_%d", i), "", model.DecisionAllow, 0, "")
		require.NoError(t, err)
	}
	store.mutate("run-1", 1, func(e *model.LedgerEntry) {
		e.Error = "rewritten history"
	})

	res, err := lg.Verify(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, 1, res.FirstMismatchIdx)
}

func TestVerify_DetectsPrevHashRelink(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	lg := New(store, nil).WithClock(testClock())

	for i := 0; i < 3; i++ {
		_, err := lg.Append(ctx, "run-1", "saw_x", fmt.Sprintf("n_%d", i), "", model.DecisionAllow, 0, "")
		require.NoError(t, err)
	}
	// Re-pointing a mid-chain prev_hash at genesis breaks the link even
	// if the row's own payload is untouched.
	store.mutate("run-1", 2, func(e *model.LedgerEntry) {
		e.PrevHash = Genesis
	})

	res, err := lg.Verify(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, 2, res.FirstMismatchIdx)
}

func TestEventHash_LatencyIsHashedAsRealNumber(t *testing.T) {
	// 3 (would-be integer) and 3.0 must hash identically, since the
	// canonical payload renders both as the real literal "3.0".
	a, err := EventHash(Genesis, "r", "n", "t", model.DecisionAllow, 3, "", "2025-06-01T12:00:00Z")
	require.NoError(t, err)
	b, err := EventHash(Genesis, "r", "n", "t", model.DecisionAllow, 3.0, "", "2025-06-01T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := EventHash(Genesis, "r", "n", "t", model.DecisionAllow, 3.01, "", "2025-06-01T12:00:00Z")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestAppend_ConcurrentRunsDoNotInterleaveChains(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	lg := New(store, nil).WithClock(testClock())

	const perRun = 20
	var wg sync.WaitGroup
	for _, runID := range []string{"run-a", "run-b", "run-c", "run-d"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < perRun; i++ {
				_, err := lg.Append(ctx, id, "saw_x", fmt.Sprintf("n_%d", i), "", model.DecisionAllow, 1, "")
				assert.NoError(t, err)
			}
		}(runID)
	}
	wg.Wait()

	for _, runID := range []string{"run-a", "run-b", "run-c", "run-d"} {
		res, err := lg.Verify(ctx, runID)
		require.NoError(t, err)
		assert.True(t, res.Valid, runID)

		entries, err := lg.Entries(ctx, runID)
		require.NoError(t, err)
		assert.Len(t, entries, perRun)
	}
}

// appendSpec is one randomly generated ledger append for the property tests.
type appendSpec struct {
	NodeID    string
	ToolName  string
	Decision  model.Decision
	LatencyMS float64
	Error     string
}

func genAppendSpec() gopter.Gen {
	return gopter.CombineGens(
		gen.RegexMatch(`n_[a-z]{1,8}`),
		gen.RegexMatch(`tool_[a-z]{1,8}`),
		gen.OneConstOf(model.DecisionAllow, model.DecisionDeny, model.DecisionNone),
		gen.Float64Range(0, 100000),
		gen.OneConstOf("", "tool exploded", "Policy denied: nope"),
	).Map(func(vs []any) appendSpec {
		return appendSpec{
			NodeID:    vs[0].(string),
			ToolName:  vs[1].(string),
			Decision:  vs[2].(model.Decision),
			LatencyMS: vs[3].(float64),
			Error:     vs[4].(string),
		}
	})
}

func TestProperty_FreshChainsAlwaysVerify(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	properties := gopter.NewProperties(params)

	properties.Property("any appended sequence verifies valid", prop.ForAll(
		func(specs []appendSpec) bool {
			ctx := context.Background()
			store := newMemStore()
			lg := New(store, nil).WithClock(testClock())
			for _, s := range specs {
				if _, err := lg.Append(ctx, "run-prop", "saw_prop", s.NodeID, s.ToolName, s.Decision, s.LatencyMS, s.Error); err != nil {
					return false
				}
			}
			res, err := lg.Verify(ctx, "run-prop")
			return err == nil && res.Valid
		},
		gen.SliceOf(genAppendSpec()),
	))

	properties.Property("mutating any row is detected at its index", prop.ForAll(
		func(specs []appendSpec, idxSeed int) bool {
			if len(specs) == 0 {
				return true
			}
			ctx := context.Background()
			store := newMemStore()
			lg := New(store, nil).WithClock(testClock())
			for _, s := range specs {
				if _, err := lg.Append(ctx, "run-prop", "saw_prop", s.NodeID, s.ToolName, s.Decision, s.LatencyMS, s.Error); err != nil {
					return false
				}
			}
			idx := idxSeed % len(specs)
			if idx < 0 {
				idx += len(specs)
			}
			store.mutate("run-prop", idx, func(e *model.LedgerEntry) {
				e.LatencyMS += 0.017
			})
			res, err := lg.Verify(ctx, "run-prop")
			return err == nil && !res.Valid && res.FirstMismatchIdx == idx
		},
		gen.SliceOf(genAppendSpec()),
		gen.Int(),
	))

	properties.TestingRun(t)
}
