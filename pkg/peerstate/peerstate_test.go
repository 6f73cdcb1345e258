package peerstate

import (
	"testing"

	"github.com/cuemby/shepherd/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_UnavailableReadsEmptyAndDropsWrites(t *testing.T) {
	store := storage.NewMemoryStore()
	s := New(store, "shepherd/0", "shepherd", StaticLeader(true))

	assert.False(t, s.Available())
	assert.Empty(t, s.Read("shepherd/1"))
	require.NoError(t, s.WriteLocal(map[string]string{"ip": "10.0.0.1"}))

	scopes, err := store.Scopes()
	require.NoError(t, err)
	assert.Empty(t, scopes, "write before formation must not create scopes")
}

func TestState_WriteOwnScopeOnly(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Put("shepherd/1", map[string]string{"ip": "10.0.0.2"}))
	s := New(store, "shepherd/0", "shepherd", nil)

	err := s.Write("shepherd/1", map[string]string{"ip": "evil"})
	assert.ErrorIs(t, err, ErrForeignScope)

	require.NoError(t, s.WriteLocal(map[string]string{"ip": "10.0.0.1"}))
	assert.Equal(t, "10.0.0.1", s.Read("shepherd/0")["ip"])
	assert.Equal(t, "10.0.0.2", s.Read("shepherd/1")["ip"])
}

func TestState_FleetScopeLeaderOnly(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Put("shepherd/0", map[string]string{"ip": "10.0.0.1"}))

	follower := New(store, "shepherd/0", "shepherd", StaticLeader(false))
	assert.ErrorIs(t, follower.WriteFleet(map[string]string{"k": "v"}), ErrNotLeader)

	leader := New(store, "shepherd/0", "shepherd", StaticLeader(true))
	require.NoError(t, leader.WriteFleet(map[string]string{"k": "v"}))
	assert.Equal(t, "v", follower.ReadFleet()["k"])
	assert.Equal(t, []string{"shepherd/0"}, follower.Units())
}
