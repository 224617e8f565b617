package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framecheck/internal/mangle"
	"framecheck/internal/report"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "framecheck.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestReplaceAndLoadFacts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.ReplaceFactsForFile(ctx, "a.py", []mangle.Fact{
		{Predicate: "frame_var", Args: []interface{}{"a.py", "<module>", "df"}},
		{Predicate: "attr_access", Args: []interface{}{"a.py", "<module>", "df", "price", 10}},
	}, "hash-1")
	require.NoError(t, err)

	facts, err := s.LoadFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 2)

	// Line numbers must come back as int64, not float64, or policy joins break.
	for _, f := range facts {
		if f.Predicate == "attr_access" {
			assert.Equal(t, int64(10), f.Args[4])
		}
	}
}

func TestReplaceFactsIsPerFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceFactsForFile(ctx, "a.py",
		[]mangle.Fact{{Predicate: "py_file", Args: []interface{}{"a.py"}}}, "h1"))
	require.NoError(t, s.ReplaceFactsForFile(ctx, "b.py",
		[]mangle.Fact{{Predicate: "py_file", Args: []interface{}{"b.py"}}}, "h2"))

	// Replacing a.py with nothing keeps b.py intact.
	require.NoError(t, s.ReplaceFactsForFile(ctx, "a.py", nil, "h3"))

	facts, err := s.LoadFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "b.py", facts[0].Args[0])
}

func TestGetFileStates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceFactsForFile(ctx, "a.py", nil, "h1"))
	require.NoError(t, s.ReplaceFactsForFile(ctx, "a.py", nil, "h2"))
	require.NoError(t, s.ReplaceFactsForFile(ctx, "b.py", nil, "h3"))

	states, err := s.GetFileStates(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.py": "h2", "b.py": "h3"}, states)
}

func TestDropFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceFactsForFile(ctx, "a.py",
		[]mangle.Fact{{Predicate: "py_file", Args: []interface{}{"a.py"}}}, "h1"))
	require.NoError(t, s.DropFile(ctx, "a.py"))

	facts, err := s.LoadFacts(ctx)
	require.NoError(t, err)
	assert.Empty(t, facts)

	states, err := s.GetFileStates(ctx)
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestBaselineRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	findings := []report.Finding{
		{RuleID: "FC001", File: "a.py", Line: 3, Detail: "price"},
		{RuleID: "FC004", File: "b.py", Line: 1, Detail: "df"},
	}
	require.NoError(t, s.SaveBaseline(ctx, findings))

	fps, err := s.BaselineFingerprints(ctx)
	require.NoError(t, err)
	assert.Len(t, fps, 2)
	assert.True(t, fps[findings[0].Fingerprint()])

	entries, err := s.BaselineEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "FC001", entries[0].RuleID)

	// Saving again replaces, not appends.
	require.NoError(t, s.SaveBaseline(ctx, findings[:1]))
	fps, err = s.BaselineFingerprints(ctx)
	require.NoError(t, err)
	assert.Len(t, fps, 1)

	require.NoError(t, s.ClearBaseline(ctx))
	fps, err = s.BaselineFingerprints(ctx)
	require.NoError(t, err)
	assert.Empty(t, fps)
}

func TestRunHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.RecordRun(ctx, report.Summary{Files: 3, Warnings: 2}, time.Now().Add(-time.Minute), 120*time.Millisecond, "p1")
	require.NoError(t, err)
	second, err := s.RecordRun(ctx, report.Summary{Files: 3, Errors: 1}, time.Now(), 80*time.Millisecond, "p2")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, 1, runs[0].Errors)
	assert.Equal(t, 80*time.Millisecond, runs[0].Duration)
	assert.Equal(t, "p2", runs[0].PolicyHash)
}

func TestPolicyHashRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hash, err := s.CachedPolicyHash(ctx)
	require.NoError(t, err)
	assert.Empty(t, hash)

	require.NoError(t, s.SetCachedPolicyHash(ctx, "abc"))
	hash, err = s.CachedPolicyHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", hash)

	require.NoError(t, s.SetCachedPolicyHash(ctx, "def"))
	hash, err = s.CachedPolicyHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, "def", hash)
}

func TestResetCacheKeepsBaseline(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceFactsForFile(ctx, "a.py",
		[]mangle.Fact{{Predicate: "py_file", Args: []interface{}{"a.py"}}}, "h1"))
	require.NoError(t, s.SaveBaseline(ctx, []report.Finding{
		{RuleID: "FC001", File: "a.py", Line: 3, Detail: "price"},
	}))

	require.NoError(t, s.ResetCache(ctx))

	facts, err := s.LoadFacts(ctx)
	require.NoError(t, err)
	assert.Empty(t, facts)

	states, err := s.GetFileStates(ctx)
	require.NoError(t, err)
	assert.Empty(t, states)

	fps, err := s.BaselineFingerprints(ctx)
	require.NoError(t, err)
	assert.Len(t, fps, 1)
}

func TestFactCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceFactsForFile(ctx, "a.py", []mangle.Fact{
		{Predicate: "py_file", Args: []interface{}{"a.py"}},
		{Predicate: "frame_var", Args: []interface{}{"a.py", "<module>", "df"}},
	}, "h1"))

	n, err := s.FactCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
