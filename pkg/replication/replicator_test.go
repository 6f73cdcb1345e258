package replication

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/shepherd/pkg/peerstate"
	"github.com/cuemby/shepherd/pkg/security"
	"github.com/cuemby/shepherd/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func serve(t *testing.T, r *Replicator) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var opts []grpc.ServerOption
	if r.cfg.TLS != nil {
		opts = append(opts, grpc.Creds(r.cfg.TLS.Server))
	}
	srv := grpc.NewServer(opts...)
	r.Serve(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return lis.Addr().String()
}

func TestReplicator_SingleNodeFormsOnItsOwn(t *testing.T) {
	store := storage.NewMemoryStore()
	r := New(Config{
		Local:    "shepherd/0",
		Fleet:    "shepherd",
		Identity: map[string]string{"hostname": "node-0"},
		Interval: 10 * time.Millisecond,
	}, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, r.Formed, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	kv, err := store.Get("shepherd/0")
	require.NoError(t, err)
	assert.Equal(t, "node-0", kv["hostname"])
}

func TestReplicator_ExchangeFormsBothSides(t *testing.T) {
	storeA := storage.NewMemoryStore()
	storeB := storage.NewMemoryStore()

	var mu sync.Mutex
	var changed []string
	onChange := func(scope string) {
		mu.Lock()
		defer mu.Unlock()
		changed = append(changed, scope)
	}

	a := New(Config{
		Local:    "shepherd/0",
		Fleet:    "shepherd",
		Identity: map[string]string{"ip": "10.0.0.1"},
		Interval: time.Second,
		Leader:   peerstate.StaticLeader(true),
	}, storeA)
	b := New(Config{
		Local:    "shepherd/1",
		Fleet:    "shepherd",
		Identity: map[string]string{"ip": "10.0.0.2"},
		Interval: time.Second,
		OnChange: onChange,
	}, storeB)

	a.cfg.Peers = []string{serve(t, b)}
	b.cfg.Peers = []string{serve(t, a)}
	defer a.closeConns()
	defer b.closeConns()

	ctx := context.Background()
	assert.False(t, a.Formed())

	a.SyncOnce(ctx)
	assert.True(t, a.Formed(), "successful push forms the sender")
	assert.True(t, b.Formed(), "first received snapshot forms the receiver")

	kv, err := storeB.Get("shepherd/0")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", kv["ip"])

	// leader publishes the fleet scope on the next round
	require.NoError(t, storeA.Put("shepherd", map[string]string{"restart-granted": "shepherd/1"}))
	a.SyncOnce(ctx)
	kv, err = storeB.Get("shepherd")
	require.NoError(t, err)
	assert.Equal(t, "shepherd/1", kv["restart-granted"])

	b.SyncOnce(ctx)
	kv, err = storeA.Get("shepherd/1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", kv["ip"])

	mu.Lock()
	assert.Contains(t, changed, "shepherd/0")
	assert.Contains(t, changed, "shepherd")
	mu.Unlock()
}

func TestReplicator_ApplyDropsStaleAndOwnScope(t *testing.T) {
	store := storage.NewMemoryStore()
	r := New(Config{Local: "shepherd/0", Fleet: "shepherd"}, store)

	require.NoError(t, r.Apply(Snapshot{Scope: "shepherd/1", Rev: 10, KV: map[string]string{"restart-lock": "requested"}}))
	require.NoError(t, r.Apply(Snapshot{Scope: "shepherd/1", Rev: 5, KV: map[string]string{"restart-lock": "released"}}))

	kv, err := store.Get("shepherd/1")
	require.NoError(t, err)
	assert.Equal(t, "requested", kv["restart-lock"])

	require.NoError(t, r.Apply(Snapshot{Scope: "shepherd/0", Rev: 99, KV: map[string]string{"ip": "spoofed"}}))
	kv, err = store.Get("shepherd/0")
	require.NoError(t, err)
	assert.Empty(t, kv)
}

func TestReplicator_LeaveAndExpire(t *testing.T) {
	store := storage.NewMemoryStore()
	r := New(Config{Local: "shepherd/0", Fleet: "shepherd", PeerTTL: time.Minute}, store)

	now := time.Unix(1000, 0)
	r.now = func() time.Time { return now }

	require.NoError(t, r.Apply(Snapshot{Scope: "shepherd/1", Rev: 1, KV: map[string]string{"ip": "10.0.0.2"}}))
	require.NoError(t, r.Apply(Snapshot{Scope: "shepherd/2", Rev: 1, KV: map[string]string{"ip": "10.0.0.3"}}))

	require.NoError(t, r.Apply(Snapshot{Scope: "shepherd/1", Rev: 2, Leave: true}))
	scopes, err := store.Scopes()
	require.NoError(t, err)
	assert.Equal(t, []string{"shepherd/0", "shepherd/2"}, scopes)

	now = now.Add(2 * time.Minute)
	r.expire()
	scopes, err = store.Scopes()
	require.NoError(t, err)
	assert.Equal(t, []string{"shepherd/0"}, scopes)
}

func TestDecodeSnapshot_RejectsNonStringValues(t *testing.T) {
	st, err := encodeSnapshot(Snapshot{Scope: "shepherd/1", Rev: 1, KV: map[string]string{"a": "b"}})
	require.NoError(t, err)

	snap, err := decodeSnapshot(st)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "b"}, snap.KV)

	st.Fields["kv"].GetStructValue().Fields["a"] = nil
	_, err = decodeSnapshot(st)
	assert.Error(t, err)
}

func peerTLS(t *testing.T, ca *security.CertAuthority, node string) *security.PeerCredentials {
	t.Helper()
	dir := t.TempDir()

	cert, err := ca.IssueNodeCertificate(node, []string{"127.0.0.1"})
	require.NoError(t, err)
	require.NoError(t, security.SaveCertToFile(cert, dir))
	require.NoError(t, security.SaveCACertToFile(ca.Certificate().Raw, dir))

	creds, err := security.LoadPeerCredentials(dir)
	require.NoError(t, err)
	return creds
}

func TestReplicator_MutualTLS(t *testing.T) {
	ca, err := security.NewCertAuthority("shepherd")
	require.NoError(t, err)
	rogue, err := security.NewCertAuthority("shepherd")
	require.NoError(t, err)

	storeA := storage.NewMemoryStore()
	storeB := storage.NewMemoryStore()

	a := New(Config{
		Local:    "shepherd/0",
		Fleet:    "shepherd",
		Identity: map[string]string{"ip": "10.0.0.1"},
		Interval: time.Second,
		TLS:      peerTLS(t, ca, "shepherd/0"),
	}, storeA)
	b := New(Config{
		Local:    "shepherd/1",
		Fleet:    "shepherd",
		Interval: time.Second,
		TLS:      peerTLS(t, ca, "shepherd/1"),
	}, storeB)
	intruder := New(Config{
		Local:    "shepherd/9",
		Fleet:    "shepherd",
		Identity: map[string]string{"ip": "10.0.0.9"},
		Interval: time.Second,
		TLS:      peerTLS(t, rogue, "shepherd/9"),
	}, storage.NewMemoryStore())
	defer a.closeConns()
	defer intruder.closeConns()

	addrB := serve(t, b)
	a.cfg.Peers = []string{addrB}
	intruder.cfg.Peers = []string{addrB}

	ctx := context.Background()
	a.SyncOnce(ctx)
	assert.True(t, a.Formed())

	kv, err := storeB.Get("shepherd/0")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", kv["ip"])

	// a certificate from another CA is refused
	intruder.SyncOnce(ctx)
	assert.False(t, intruder.Formed())
	kv, err = storeB.Get("shepherd/9")
	require.NoError(t, err)
	assert.Empty(t, kv)
}
