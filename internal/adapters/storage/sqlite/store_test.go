package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotesync/internal/domain"
	"github.com/jsamuelsen/quotesync/internal/ports"
)

var (
	_ ports.SnapshotStore = (*Store)(nil)
	_ ports.HealthChecker = (*Store)(nil)
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "quotes.db"))
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "quotes.db")

	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, path)
	assert.Equal(t, path, s.Path())
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestStore_LoadMissingKey(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Load(context.Background(), "quotes")

	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	payload := []byte(`[{"text":"t","author":"a","category":"c"}]`)
	require.NoError(t, s.Save(ctx, "quotes", payload))

	out, err := s.Load(ctx, "quotes")
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestStore_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	s.now = func() time.Time { return first }
	require.NoError(t, s.Save(ctx, "lastFilter", []byte("all")))

	s.now = func() time.Time { return second }
	require.NoError(t, s.Save(ctx, "lastFilter", []byte("Motivation")))

	out, err := s.Load(ctx, "lastFilter")
	require.NoError(t, err)
	assert.Equal(t, "Motivation", string(out))

	var (
		rows    int
		updated string
	)

	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(updated_at) FROM kv`).Scan(&rows, &updated))
	assert.Equal(t, 1, rows)
	assert.Equal(t, second.Format(time.RFC3339Nano), updated)
}

func TestStore_SaveNilValue(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Save(ctx, "empty", nil))

	out, err := s.Load(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "quotes.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "quotes", []byte(`[]`)))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	out, err := reopened.Load(ctx, "quotes")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(out))
}

func TestStore_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Save(ctx, "quotes", []byte(`[]`)))
	require.NoError(t, s.Save(ctx, "lastFilter", []byte("Life")))

	q, err := s.Load(ctx, "quotes")
	require.NoError(t, err)

	f, err := s.Load(ctx, "lastFilter")
	require.NoError(t, err)

	assert.Equal(t, `[]`, string(q))
	assert.Equal(t, "Life", string(f))
}

func TestStore_HealthCheck(t *testing.T) {
	s := openTestStore(t)

	assert.Equal(t, "sqlite", s.Name())
	assert.NoError(t, s.Check(context.Background()))
}

func TestStore_CheckAfterClose(t *testing.T) {
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "quotes.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Error(t, s.Check(context.Background()))
}

func TestStore_CanceledContext(t *testing.T) {
	s := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.Save(ctx, "quotes", []byte(`[]`)))

	_, err := s.Load(ctx, "quotes")
	assert.Error(t, err)
	assert.False(t, domain.IsNotFound(err))
}
