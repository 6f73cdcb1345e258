package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s Store) {
	t.Helper()
	require.NoError(t, s.Put("db", map[string]string{"restart-granted": "db/1", "restart-generation": "g1"}))
	require.NoError(t, s.Put("db/0", map[string]string{"hostname": "node-0"}))
	require.NoError(t, s.Put("db/1", map[string]string{"hostname": "node-1", "restart-lock": "granted"}))
}

func TestMigrate_BoltToBadger(t *testing.T) {
	src, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer src.Close()
	dst, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer dst.Close()

	seed(t, src)
	require.NoError(t, dst.Put("db/1", map[string]string{"stale": "yes"}))

	res, err := Migrate(src, dst, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scopes)
	assert.Equal(t, 5, res.Keys)

	scopes, err := dst.Scopes()
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "db/0", "db/1"}, scopes)

	kv, err := dst.Get("db/1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"hostname": "node-1", "restart-lock": "granted"}, kv)
}

func TestMigrate_DryRunAndSkip(t *testing.T) {
	src := NewMemoryStore()
	dst := NewMemoryStore()
	seed(t, src)

	res, err := Migrate(src, dst, true, "db")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scopes)
	assert.Equal(t, []string{"db"}, res.Skipped)

	scopes, err := dst.Scopes()
	require.NoError(t, err)
	assert.Empty(t, scopes)
}

func TestMigrate_ClosedSource(t *testing.T) {
	src := NewMemoryStore()
	require.NoError(t, src.Close())

	_, err := Migrate(src, NewMemoryStore(), false)
	assert.ErrorIs(t, err, ErrClosed)
}
