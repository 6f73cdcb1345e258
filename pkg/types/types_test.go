package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNodeName(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantApp     string
		wantOrdinal int
		wantErr     bool
	}{
		{name: "valid", input: "db/2", wantApp: "db", wantOrdinal: 2},
		{name: "zero ordinal", input: "shepherd/0", wantApp: "shepherd", wantOrdinal: 0},
		{name: "no separator", input: "db", wantErr: true},
		{name: "empty app", input: "/1", wantErr: true},
		{name: "empty ordinal", input: "db/", wantErr: true},
		{name: "non-numeric ordinal", input: "db/x", wantErr: true},
		{name: "negative ordinal", input: "db/-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, ordinal, err := ParseNodeName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantApp, app)
			assert.Equal(t, tt.wantOrdinal, ordinal)
		})
	}
}

func TestNode_App(t *testing.T) {
	assert.Equal(t, "db", Node{Name: "db/3"}.App())
}

func TestSortNodes(t *testing.T) {
	nodes := []Node{
		{Name: "db/10", Ordinal: 10},
		{Name: "db/2", Ordinal: 2},
		{Name: "db/0", Ordinal: 0},
	}
	SortNodes(nodes)

	assert.Equal(t, []string{"db/0", "db/2", "db/10"}, []string{nodes[0].Name, nodes[1].Name, nodes[2].Name})
}

func TestStatus_StringAndLevel(t *testing.T) {
	tests := []struct {
		status    Status
		wantStr   string
		wantLevel LogLevel
	}{
		{Status{Code: StatusFailed, Reason: ReasonConfigInvalid}, "failed:config-invalid", LevelError},
		{Status{Code: StatusFailed}, "failed", LevelError},
		{Status{Code: StatusDegraded}, "degraded", LevelWarn},
		{Status{Code: StatusRestarting}, "restarting", LevelInfo},
		{Status{Code: StatusActive}, "active", LevelDebug},
		{Status{Code: StatusWaitingForPeers}, "waiting-for-peers", LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.wantStr, func(t *testing.T) {
			assert.Equal(t, tt.wantStr, tt.status.String())
			assert.Equal(t, tt.wantLevel, tt.status.Level())
		})
	}
}

func TestDesiredConfig_HasEnvironment(t *testing.T) {
	assert.False(t, DesiredConfig{}.HasEnvironment())
	assert.False(t, DesiredConfig{Environment: map[string]string{}}.HasEnvironment())
	assert.True(t, DesiredConfig{Environment: map[string]string{"A": "1"}}.HasEnvironment())
}
