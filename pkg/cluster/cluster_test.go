package cluster

import (
	"testing"

	"github.com/cuemby/shepherd/pkg/peerstate"
	"github.com/cuemby/shepherd/pkg/storage"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newView(t *testing.T, addressing types.Addressing) (*View, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	state := peerstate.New(store, "shepherd/1", "shepherd", nil)
	return NewView(state, addressing), store
}

func TestView_ReadinessGating(t *testing.T) {
	v, store := newView(t, types.AddressingAddress)

	assert.Equal(t, types.ReadinessNotReady, v.Readiness())

	require.NoError(t, store.Put("shepherd/0", map[string]string{"ip": "10.0.0.1"}))
	assert.Equal(t, types.ReadinessReady, v.Readiness())
}

func TestView_NodesIncludesLocalUnconditionally(t *testing.T) {
	v, store := newView(t, types.AddressingAddress)

	nodes := v.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "shepherd/1", nodes[0].Name)
	assert.True(t, nodes[0].Local)

	require.NoError(t, store.Put("shepherd/10", map[string]string{"ip": "10.0.0.10"}))
	require.NoError(t, store.Put("shepherd/0", map[string]string{"ip": "10.0.0.1"}))
	require.NoError(t, store.Put("shepherd", map[string]string{"restart-granted": "shepherd/0"}))

	assert.Equal(t, []string{"shepherd/0", "shepherd/1", "shepherd/10"}, v.Names())
}

func TestView_HostOf(t *testing.T) {
	tests := []struct {
		name       string
		addressing types.Addressing
		kv         map[string]string
		want       string
		wantErr    bool
	}{
		{
			name:       "hostname wins",
			addressing: types.AddressingAddress,
			kv:         map[string]string{"hostname": "node-0", "ip": "10.0.0.1", "address": "10.1.0.1"},
			want:       "node-0",
		},
		{
			name:       "ip before address",
			addressing: types.AddressingAddress,
			kv:         map[string]string{"ip": "10.0.0.1", "address": "10.1.0.1"},
			want:       "10.0.0.1",
		},
		{
			name:       "address fallback",
			addressing: types.AddressingAddress,
			kv:         map[string]string{"address": "10.1.0.1"},
			want:       "10.1.0.1",
		},
		{
			name:       "nothing published",
			addressing: types.AddressingAddress,
			kv:         map[string]string{"other": "x"},
			wantErr:    true,
		},
		{
			name:       "name based ignores store",
			addressing: types.AddressingName,
			kv:         map[string]string{"ip": "10.0.0.1"},
			want:       "shepherd-0.shepherd-endpoints",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, store := newView(t, tt.addressing)
			require.NoError(t, store.Put("shepherd/0", tt.kv))

			got, err := v.HostOf(types.Node{Name: "shepherd/0"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestView_NameBasedBeforeJoin(t *testing.T) {
	v, _ := newView(t, types.AddressingName)

	host, err := v.HostOf(types.Node{Name: "shepherd/3"})
	require.NoError(t, err)
	assert.Equal(t, "shepherd-3.shepherd-endpoints", host)
}
