package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/xgate/internal/domain"
)

func TestStateFile_WriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "state.json")
	s := NewStateFile(path)

	want := domain.DaemonState{
		TimestampUnix:       1700000000.5,
		Block:               true,
		ProcessRunning:      true,
		ProcessActive:       true,
		Evidence:            []string{"cpu"},
		Enabled:             true,
		RewardMode:          false,
		PollIntervalSeconds: 1,
		DaemonVersion:       "dev",
		CompatVersion:       2,
	}
	require.NoError(t, s.Write(want))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), raw[len(raw)-1])
	assert.Contains(t, string(raw), `"process_running":true`)

	got, age, ok := ReadState(path, time.Minute)
	assert.True(t, ok)
	assert.Less(t, age, time.Minute)
	assert.Equal(t, want, got)

	matches, _ := filepath.Glob(path + ".*.tmp")
	assert.Empty(t, matches)
}

func TestReadState_Stale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, NewStateFile(path).Write(domain.DaemonState{Block: true}))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	state, age, ok := ReadState(path, 3*time.Second)
	assert.False(t, ok)
	assert.True(t, state.Block, "stale state is still decoded")
	assert.Greater(t, age, 59*time.Minute)
}

func TestReadState_MissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()
	_, _, ok := ReadState(filepath.Join(dir, "missing.json"), time.Minute)
	assert.False(t, ok)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, _, ok = ReadState(bad, time.Minute)
	assert.False(t, ok)
}

func TestStaleAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, StaleAfter(200*time.Millisecond))
	assert.Equal(t, 3*time.Second, StaleAfter(time.Second))
	assert.Equal(t, 6*time.Second, StaleAfter(2*time.Second))
}
