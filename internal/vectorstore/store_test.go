package vectorstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorToString(t *testing.T) {
	assert.Equal(t, "", vectorToString(nil))
	assert.Equal(t, "[0.5,-1,0.25]", vectorToString([]float32{0.5, -1, 0.25}))
}

func TestListsFor(t *testing.T) {
	assert.Equal(t, 1, listsFor(0, 100))
	assert.Equal(t, 10, listsFor(100, 100))
	assert.Equal(t, 10, listsFor(120, 100))
	assert.Equal(t, 100, listsFor(1_000_000, 100))
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(nil, Options{Dimensions: 3, Table: "chunks; DROP TABLE x"})
	assert.Error(t, err)
	_, err = New(nil, Options{})
	assert.Error(t, err)

	s, err := New(nil, Options{Dimensions: 3})
	require.NoError(t, err)
	assert.Equal(t, DefaultTable, s.opts.Table)
	assert.Equal(t, 100, s.opts.MinIndexRows)
	assert.Equal(t, "session_chunks_embedding_idx", s.index)
}

// openTestStore connects to CSE_TEST_DATABASE_URL (a Postgres with pgvector)
// and gives each test a fresh table.
func openTestStore(t *testing.T, minRows int) *Store {
	t.Helper()
	dsn := os.Getenv("CSE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CSE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	table := fmt.Sprintf("cse_test_%d", time.Now().UnixNano())

	s, err := Open(ctx, dsn, Options{Table: table, Dimensions: 3, MinIndexRows: minRows, MaxLists: 4})
	require.NoError(t, err)
	t.Cleanup(func() {
		s.db.Exec("DROP TABLE IF EXISTS " + table)
		s.Close()
	})
	require.NoError(t, s.EnsureSchema(ctx))
	return s
}

func record(session string, idx int, vec ...float32) Record {
	return Record{
		RunID:      uuid.New(),
		SessionID:  session,
		ChunkIndex: idx,
		Summary:    fmt.Sprintf("summary %s/%d", session, idx),
		Excerpt:    "excerpt",
		Embedding:  vec,
		StartTime:  time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2025, 1, 1, 10, 5, 0, 0, time.UTC),
		ToolsUsed:  []string{"Read", "Edit"},
		Project:    "/work/app",
		TokenCount: 1234,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t, 100)
	ctx := context.Background()

	// schema creation is idempotent
	require.NoError(t, s.EnsureSchema(ctx))

	matches, err := s.Query(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)

	ids, err := s.AlreadyIndexedSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, s.Insert(ctx, record("s1", 0, 1, 0, 0)))
	require.NoError(t, s.Insert(ctx, record("s1", 1, 0, 1, 0)))
	require.NoError(t, s.Insert(ctx, record("s2", 0, 0.9, 0.1, 0)))
	assert.ErrorIs(t, s.Insert(ctx, record("s3", 0, 1, 0)), ErrDimensionMismatch)

	// a row without an embedding must never come back from Query
	_, err = s.db.Exec(fmt.Sprintf(`INSERT INTO %s (session_id, chunk_index) VALUES ('s4', 0)`, s.opts.Table))
	require.NoError(t, err)

	ids, err = s.AlreadyIndexedSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	matches, err = s.Query(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "s1", matches[0].SessionID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
	assert.Equal(t, "s2", matches[1].SessionID)
	assert.Equal(t, []string{"Read", "Edit"}, matches[0].ToolsUsed)
	assert.Equal(t, "/work/app", matches[0].Project)
	assert.Equal(t, int64(1234), matches[0].TokenCount)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity)
	}

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Rows)
	assert.Equal(t, 3, st.Embedded)
	assert.Equal(t, 4, st.Sessions)
}

func TestMaybeRebuildIndexThreshold(t *testing.T) {
	s := openTestStore(t, 3)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, record("a", 0, 1, 0, 0)))
	rebuilt, err := s.MaybeRebuildIndex(ctx)
	require.NoError(t, err)
	assert.False(t, rebuilt)

	require.NoError(t, s.Insert(ctx, record("b", 0, 0, 1, 0)))
	require.NoError(t, s.Insert(ctx, record("c", 0, 0, 0, 1)))
	rebuilt, err = s.MaybeRebuildIndex(ctx)
	require.NoError(t, err)
	assert.True(t, rebuilt)

	// rebuilding again over an existing index still succeeds
	rebuilt, err = s.MaybeRebuildIndex(ctx)
	require.NoError(t, err)
	assert.True(t, rebuilt)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, st.IndexExists)
}

func TestSimilarityIndexDeferredBelowThreshold(t *testing.T) {
	s := openTestStore(t, 10)
	ctx := context.Background()

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.False(t, st.IndexExists, "empty table gets no similarity index")

	vecs := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 0}, {0, 1, 1}}
	for i, v := range vecs {
		require.NoError(t, s.Insert(ctx, record(fmt.Sprintf("s%d", i), 0, v...)))
	}
	require.NoError(t, s.EnsureSchema(ctx))

	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.False(t, st.IndexExists)

	matches, err := s.Query(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, matches, len(vecs), "exact scan returns every embedded row")
}

func TestEnsureSchemaBuildsIndexAtThreshold(t *testing.T) {
	s := openTestStore(t, 3)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, record("a", 0, 1, 0, 0)))
	require.NoError(t, s.Insert(ctx, record("b", 0, 0, 1, 0)))
	require.NoError(t, s.Insert(ctx, record("c", 0, 0, 0, 1)))
	require.NoError(t, s.EnsureSchema(ctx))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, st.IndexExists)
}

func TestEnsureSchemaDimensionMismatch(t *testing.T) {
	s := openTestStore(t, 100)
	other, err := New(s.db, Options{Table: s.opts.Table, Dimensions: 4})
	require.NoError(t, err)
	assert.ErrorIs(t, other.EnsureSchema(context.Background()), ErrDimensionMismatch)
}

func TestRunLockIsExclusive(t *testing.T) {
	s := openTestStore(t, 100)
	ctx := context.Background()

	release, err := s.AcquireRunLock(ctx)
	require.NoError(t, err)

	_, err = s.AcquireRunLock(ctx)
	assert.ErrorIs(t, err, ErrRunInProgress)

	release()
	again, err := s.AcquireRunLock(ctx)
	require.NoError(t, err)
	again()
}
