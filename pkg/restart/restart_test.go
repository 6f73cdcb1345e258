package restart

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cuemby/shepherd/pkg/peerstate"
	"github.com/cuemby/shepherd/pkg/storage"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleNode(t *testing.T) (*Coordinator, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Put("shepherd/0", map[string]string{"ip": "10.0.0.1"}))
	state := peerstate.New(store, "shepherd/0", "shepherd", peerstate.StaticLeader(true))
	return NewCoordinator(state, 0), store
}

func TestCoordinator_SingleNodeSelfGrant(t *testing.T) {
	c, _ := singleNode(t)

	assert.Equal(t, types.LockUnheld, c.Status())

	require.NoError(t, c.Request())
	assert.Equal(t, types.LockRequested, c.Status())

	holder, err := c.Arbitrate()
	require.NoError(t, err)
	assert.Equal(t, "shepherd/0", holder)
	assert.Equal(t, types.LockGranted, c.Status())

	runs := 0
	st, err := c.RunWithLock(context.Background(), func(ctx context.Context) error {
		runs++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.LockGranted, st)
	assert.Equal(t, types.LockReleased, c.Status())

	// re-delivery of the same grant notification must not restart again
	st, err = c.RunWithLock(context.Background(), func(ctx context.Context) error {
		runs++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.LockReleased, st)
	assert.Equal(t, 1, runs)

	holder, err = c.Arbitrate()
	require.NoError(t, err)
	assert.Empty(t, holder)
	assert.Empty(t, c.Holder())
}

func TestCoordinator_RequestIsIdempotent(t *testing.T) {
	c, store := singleNode(t)
	c.now = func() time.Time { return time.Unix(0, 100) }
	require.NoError(t, c.Request())

	c.now = func() time.Time { return time.Unix(0, 200) }
	require.NoError(t, c.Request())

	kv, err := store.Get("shepherd/0")
	require.NoError(t, err)
	assert.Equal(t, "100", kv[KeySeq])
}

func TestCoordinator_ReleaseOnFailure(t *testing.T) {
	c, _ := singleNode(t)
	require.NoError(t, c.Request())
	_, err := c.Arbitrate()
	require.NoError(t, err)

	boom := errors.New("restart failed")
	_, err = c.RunWithLock(context.Background(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, types.LockReleased, c.Status(), "lock released even when the action fails")
}

func TestCoordinator_NonLeaderNeverGrants(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Put("shepherd/1", map[string]string{}))
	state := peerstate.New(store, "shepherd/1", "shepherd", peerstate.StaticLeader(false))
	c := NewCoordinator(state, 0)

	require.NoError(t, c.Request())
	holder, err := c.Arbitrate()
	require.NoError(t, err)
	assert.Empty(t, holder)
	assert.Equal(t, types.LockRequested, c.Status())
}

func TestCoordinator_GrantsLowestSequenceOneAtATime(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Put("shepherd/0", map[string]string{}))
	require.NoError(t, store.Put("shepherd/1", map[string]string{KeyLock: "requested", KeySeq: "30"}))
	require.NoError(t, store.Put("shepherd/2", map[string]string{KeyLock: "requested", KeySeq: "20"}))
	require.NoError(t, store.Put("shepherd/3", map[string]string{KeyLock: "requested", KeySeq: "20"}))

	leader := NewCoordinator(peerstate.New(store, "shepherd/0", "shepherd", peerstate.StaticLeader(true)), 0)

	holder, err := leader.Arbitrate()
	require.NoError(t, err)
	assert.Equal(t, "shepherd/2", holder, "lowest sequence, ties broken by name")

	holder, err = leader.Arbitrate()
	require.NoError(t, err)
	assert.Equal(t, "shepherd/2", holder, "no second grant while the first is active")

	require.NoError(t, store.Put("shepherd/2", map[string]string{KeyLock: "released", KeySeq: ""}))
	holder, err = leader.Arbitrate()
	require.NoError(t, err)
	assert.Equal(t, "shepherd/3", holder)
}

func TestCoordinator_GrantsInObservedOrderDespiteClockSkew(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Put("shepherd/0", map[string]string{}))
	require.NoError(t, store.Put("shepherd/1", map[string]string{KeyLock: "requested", KeySeq: "500"}))

	leader := NewCoordinator(peerstate.New(store, "shepherd/0", "shepherd", peerstate.StaticLeader(true)), 0)

	holder, err := leader.Arbitrate()
	require.NoError(t, err)
	assert.Equal(t, "shepherd/1", holder)

	// shepherd/3 runs ahead, shepherd/2 far behind but asks later
	require.NoError(t, store.Put("shepherd/3", map[string]string{KeyLock: "requested", KeySeq: "900"}))
	_, err = leader.Arbitrate()
	require.NoError(t, err)
	require.NoError(t, store.Put("shepherd/2", map[string]string{KeyLock: "requested", KeySeq: "10"}))
	_, err = leader.Arbitrate()
	require.NoError(t, err)

	fleet, err := store.Get("shepherd")
	require.NoError(t, err)
	assert.Equal(t, "shepherd/1@500,shepherd/3@900,shepherd/2@10", fleet[KeyQueue])

	require.NoError(t, store.Put("shepherd/1", map[string]string{KeyLock: "released", KeySeq: ""}))
	holder, err = leader.Arbitrate()
	require.NoError(t, err)
	assert.Equal(t, "shepherd/3", holder, "first observed, not lowest sequence")

	// a node re-requesting after its turn queues behind the others
	require.NoError(t, store.Put("shepherd/1", map[string]string{KeyLock: "requested", KeySeq: "501"}))
	require.NoError(t, store.Put("shepherd/3", map[string]string{KeyLock: "released", KeySeq: ""}))
	holder, err = leader.Arbitrate()
	require.NoError(t, err)
	assert.Equal(t, "shepherd/2", holder)

	require.NoError(t, store.Put("shepherd/2", map[string]string{KeyLock: "released", KeySeq: ""}))
	holder, err = leader.Arbitrate()
	require.NoError(t, err)
	assert.Equal(t, "shepherd/1", holder)
}

func TestCoordinator_RestartPendingMarker(t *testing.T) {
	c, _ := singleNode(t)
	assert.False(t, c.RestartPending())

	require.NoError(t, c.MarkRestartPending())
	assert.True(t, c.RestartPending())

	require.NoError(t, c.Request())
	_, err := c.Arbitrate()
	require.NoError(t, err)
	_, err = c.RunWithLock(context.Background(), func(ctx context.Context) error { return errors.New("restart failed") })
	require.Error(t, err)
	assert.True(t, c.RestartPending(), "a failed restart leaves the marker in place")

	require.NoError(t, c.ClearRestartPending())
	assert.False(t, c.RestartPending())
}

func TestCoordinator_StaleGrantSequenceIgnored(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Put("shepherd/1", map[string]string{KeyLock: "requested", KeySeq: "50"}))
	require.NoError(t, store.Put("shepherd", map[string]string{KeyGranted: "shepherd/1", KeyGrantedSeq: "40"}))

	c := NewCoordinator(peerstate.New(store, "shepherd/1", "shepherd", nil), 0)
	assert.Equal(t, types.LockRequested, c.Status(), "grant for an older request is not ours")
}

func TestCoordinator_GrantExpiry(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Put("shepherd/0", map[string]string{}))
	require.NoError(t, store.Put("shepherd/1", map[string]string{KeyLock: "requested", KeySeq: "1"}))
	require.NoError(t, store.Put("shepherd/2", map[string]string{KeyLock: "requested", KeySeq: "2"}))

	leader := NewCoordinator(peerstate.New(store, "shepherd/0", "shepherd", peerstate.StaticLeader(true)), time.Minute)
	now := time.Unix(1000, 0)
	leader.now = func() time.Time { return now }

	holder, err := leader.Arbitrate()
	require.NoError(t, err)
	assert.Equal(t, "shepherd/1", holder)

	now = now.Add(30 * time.Second)
	holder, err = leader.Arbitrate()
	require.NoError(t, err)
	assert.Equal(t, "shepherd/1", holder)

	// shepherd/1 never released; after expiry it goes behind shepherd/2
	now = now.Add(time.Minute)
	holder, err = leader.Arbitrate()
	require.NoError(t, err)
	assert.Equal(t, "shepherd/2", holder)

	fleet, err := store.Get("shepherd")
	require.NoError(t, err)
	assert.Equal(t, now.UTC().Format(time.RFC3339Nano), fleet[KeyGrantedAt])

	require.NoError(t, store.Put("shepherd/2", map[string]string{KeyLock: "released", KeySeq: ""}))
	holder, err = leader.Arbitrate()
	require.NoError(t, err)
	assert.Equal(t, "shepherd/1", holder, "revoked request is granted again once nothing else waits")
}

func TestCoordinator_Generations(t *testing.T) {
	c, _ := singleNode(t)

	assert.Empty(t, c.PendingGeneration())

	gen, err := c.StartGeneration()
	require.NoError(t, err)
	assert.Equal(t, gen, c.PendingGeneration())

	require.NoError(t, c.AckGeneration(gen))
	assert.Empty(t, c.PendingGeneration())

	follower := NewCoordinator(peerstate.New(storage.NewMemoryStore(), "shepherd/1", "shepherd", nil), 0)
	_, err = follower.StartGeneration()
	assert.ErrorIs(t, err, peerstate.ErrNotLeader)
}

func ExampleCoordinator() {
	store := storage.NewMemoryStore()
	_ = store.Put("shepherd/0", map[string]string{})
	c := NewCoordinator(peerstate.New(store, "shepherd/0", "shepherd", peerstate.StaticLeader(true)), 0)

	_ = c.Request()
	_, _ = c.Arbitrate()
	st, _ := c.RunWithLock(context.Background(), func(ctx context.Context) error {
		fmt.Println("restarting")
		return nil
	})
	fmt.Println(st)
	// Output:
	// restarting
	// granted
}
