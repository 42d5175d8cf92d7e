package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/xgate/internal/config"
	"github.com/eliteGoblin/focusd/xgate/internal/domain"
)

// mockScanner implements domain.ProcessScanner for testing
type mockScanner struct {
	processes []domain.ProcessRecord
	err       error
	calls     int
}

func (m *mockScanner) List(ctx context.Context) ([]domain.ProcessRecord, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.processes, nil
}

// mockSampler implements domain.NetSampler for testing
type mockSampler struct {
	supported bool
	samples   []map[string]domain.NetSample
	err       error
	calls     int
}

func (m *mockSampler) Supported() bool { return m.supported }

func (m *mockSampler) Sample(ctx context.Context, pids []string) (map[string]domain.NetSample, error) {
	defer func() { m.calls++ }()
	if m.err != nil {
		return nil, m.err
	}
	if m.calls >= len(m.samples) {
		return map[string]domain.NetSample{}, nil
	}
	return m.samples[m.calls], nil
}

func at(sec float64) time.Time {
	return time.Unix(0, int64(sec*float64(time.Second)))
}

func proc(pid, ppid, tty string, cpu float64, cmd string) domain.ProcessRecord {
	return domain.ProcessRecord{PID: pid, PPID: ppid, TTY: tty, CPUPercent: cpu, Command: cmd}
}

func cpuOnlyConfig() config.ProcessConfig {
	cfg := config.DefaultProcessConfig()
	cfg.EnableNettop = false
	cfg.ConsiderChildrenActive = false
	cfg.CPUActiveThresholdPercent = 1.0
	cfg.ActiveGraceSeconds = 4
	return cfg
}

func newMatcher(t *testing.T, cfg config.ProcessConfig, sampler domain.NetSampler) *ActivityMatcher {
	t.Helper()
	m, err := NewActivityMatcher(cfg, &mockScanner{}, sampler, zap.NewNop())
	require.NoError(t, err)
	return m
}

func TestHasTTY(t *testing.T) {
	assert.False(t, HasTTY("?"))
	assert.False(t, HasTTY("??"))
	assert.False(t, HasTTY("s?"))
	assert.True(t, HasTTY("ttys001"))
	assert.True(t, HasTTY("pts/3"))
}

func TestEvaluate_NoMatchIsNotRunning(t *testing.T) {
	m := newMatcher(t, cpuOnlyConfig(), nil)

	a := m.Evaluate(context.Background(), []domain.ProcessRecord{proc("1", "0", "ttys001", 90, "vim notes.md")}, at(10))

	assert.False(t, a.Running)
	assert.False(t, a.Active)
	assert.Empty(t, a.Evidence)
}

func TestEvaluate_RequireTTY(t *testing.T) {
	m := newMatcher(t, cpuOnlyConfig(), nil)
	procs := []domain.ProcessRecord{proc("1", "0", "??", 50, "claude")}

	assert.False(t, m.Evaluate(context.Background(), procs, at(1)).Running)

	cfg := cpuOnlyConfig()
	cfg.RequireTTY = false
	m = newMatcher(t, cfg, nil)
	assert.True(t, m.Evaluate(context.Background(), procs, at(1)).Running)
}

func TestEvaluate_WatchRegexWordBoundary(t *testing.T) {
	m := newMatcher(t, cpuOnlyConfig(), nil)
	for cmd, want := range map[string]bool{
		"node /opt/bin/claude --resume": true,
		"Claude-Code":                   true,
		"codex exec":                    true,
		"claudette":                     false,
		"/usr/bin/vim":                  false,
	} {
		got := len(m.Matches([]domain.ProcessRecord{proc("1", "0", "ttys001", 0, cmd)})) == 1
		assert.Equal(t, want, got, cmd)
	}
}

func TestEvaluate_CPUEvidence(t *testing.T) {
	m := newMatcher(t, cpuOnlyConfig(), nil)

	a := m.Evaluate(context.Background(), []domain.ProcessRecord{proc("10", "1", "ttys001", 1.0, "codex")}, at(5))

	assert.True(t, a.Running)
	assert.True(t, a.Active)
	assert.Equal(t, []string{domain.EvidenceCPU}, a.Evidence)
}

func TestEvaluate_GraceWindow(t *testing.T) {
	m := newMatcher(t, cpuOnlyConfig(), nil)
	busy := []domain.ProcessRecord{proc("10", "1", "ttys001", 5, "codex")}
	idle := []domain.ProcessRecord{proc("10", "1", "ttys001", 0, "codex")}

	require.True(t, m.Evaluate(context.Background(), busy, at(8)).Active)

	a := m.Evaluate(context.Background(), idle, at(10))
	assert.True(t, a.Active)
	assert.Equal(t, []string{domain.EvidenceGrace}, a.Evidence)

	a = m.Evaluate(context.Background(), idle, at(12))
	assert.True(t, a.Active, "grace boundary is inclusive")

	a = m.Evaluate(context.Background(), idle, at(13))
	assert.True(t, a.Running)
	assert.False(t, a.Active)
	assert.Empty(t, a.Evidence)
}

func TestEvaluate_EmptyMatchResetsGrace(t *testing.T) {
	m := newMatcher(t, cpuOnlyConfig(), nil)
	busy := []domain.ProcessRecord{proc("10", "1", "ttys001", 5, "codex")}
	idle := []domain.ProcessRecord{proc("10", "1", "ttys001", 0, "codex")}

	m.Evaluate(context.Background(), busy, at(8))
	m.Evaluate(context.Background(), nil, at(9))

	assert.False(t, m.Evaluate(context.Background(), idle, at(10)).Active)
}

func TestEvaluate_ChildCPU(t *testing.T) {
	cfg := cpuOnlyConfig()
	cfg.ConsiderChildrenActive = true
	m := newMatcher(t, cfg, nil)

	procs := []domain.ProcessRecord{
		proc("10", "1", "ttys001", 0, "claude"),
		proc("11", "10", "ttys001", 0, "bash -c make"),
		proc("12", "11", "ttys001", 80, "cc1 main.c"),
	}

	a := m.Evaluate(context.Background(), procs, at(1))

	assert.True(t, a.Active)
	assert.Equal(t, []string{domain.EvidenceChildCPU}, a.Evidence)
}

func TestEvaluate_ChildCPUIgnoresOtherTerminalsAndWatchedChildren(t *testing.T) {
	cfg := cpuOnlyConfig()
	cfg.ConsiderChildrenActive = true
	cfg.RequireTTY = false
	m := newMatcher(t, cfg, nil)

	procs := []domain.ProcessRecord{
		proc("10", "1", "ttys001", 0, "claude"),
		proc("11", "10", "ttys002", 90, "make"),           // different terminal
		proc("12", "10", "ttys001", 90, "codex --helper"), // watched command
		proc("13", "10", "??", 0, "idle helper"),
	}

	a := m.Evaluate(context.Background(), procs, at(1))

	assert.True(t, a.Running)
	// 12 matches the watch pattern so it is a match itself and trips plain cpu.
	assert.Equal(t, []string{domain.EvidenceCPU}, a.Evidence)

	procs[2].CPUPercent = 0
	a = m.Evaluate(context.Background(), procs, at(100))
	assert.False(t, a.Active)
}

func TestEvaluate_ChildCPUDisabled(t *testing.T) {
	m := newMatcher(t, cpuOnlyConfig(), nil)
	procs := []domain.ProcessRecord{
		proc("10", "1", "ttys001", 0, "claude"),
		proc("11", "10", "ttys001", 80, "make"),
	}
	assert.False(t, m.Evaluate(context.Background(), procs, at(1)).Active)
}

func TestEvaluate_NetDelta(t *testing.T) {
	cfg := cpuOnlyConfig()
	cfg.EnableNettop = true
	cfg.NetActiveThresholdBytes = 100
	cfg.ActiveGraceSeconds = 0
	sampler := &mockSampler{supported: true, samples: []map[string]domain.NetSample{
		{"10": {BytesIn: 1000, BytesOut: 0}},
		{"10": {BytesIn: 1050, BytesOut: 10}},
		{"10": {BytesIn: 1100, BytesOut: 60}},
		{"10": {BytesIn: 5, BytesOut: 0}}, // counter reset
	}}
	m := newMatcher(t, cfg, sampler)
	procs := []domain.ProcessRecord{proc("10", "1", "ttys001", 0, "codex")}

	assert.False(t, m.Evaluate(context.Background(), procs, at(1)).Active, "first sample only seeds")
	assert.False(t, m.Evaluate(context.Background(), procs, at(2)).Active, "delta 60 below threshold")

	a := m.Evaluate(context.Background(), procs, at(3))
	assert.True(t, a.Active)
	assert.Equal(t, []string{domain.EvidenceNet}, a.Evidence)

	assert.False(t, m.Evaluate(context.Background(), procs, at(4)).Active, "negative delta clamps to zero")
}

func TestEvaluate_NetSkippedWhenUnsupportedOrCPUActive(t *testing.T) {
	cfg := cpuOnlyConfig()
	cfg.EnableNettop = true

	sampler := &mockSampler{supported: false}
	m := newMatcher(t, cfg, sampler)
	m.Evaluate(context.Background(), []domain.ProcessRecord{proc("10", "1", "ttys001", 0, "codex")}, at(1))
	assert.Zero(t, sampler.calls)

	sampler = &mockSampler{supported: true}
	m = newMatcher(t, cfg, sampler)
	m.Evaluate(context.Background(), []domain.ProcessRecord{proc("10", "1", "ttys001", 50, "codex")}, at(1))
	assert.Zero(t, sampler.calls, "net is not sampled once cpu is active")
}

func TestEvaluate_NetSampleErrorIsInactive(t *testing.T) {
	cfg := cpuOnlyConfig()
	cfg.EnableNettop = true
	m := newMatcher(t, cfg, &mockSampler{supported: true, err: errors.New("nettop died")})

	a := m.Evaluate(context.Background(), []domain.ProcessRecord{proc("10", "1", "ttys001", 0, "codex")}, at(1))
	assert.True(t, a.Running)
	assert.False(t, a.Active)
}

func TestEvaluate_NetPrunesVanishedPIDs(t *testing.T) {
	cfg := cpuOnlyConfig()
	cfg.EnableNettop = true
	sampler := &mockSampler{supported: true, samples: []map[string]domain.NetSample{
		{"10": {BytesIn: 1}, "11": {BytesIn: 1}},
		{"11": {BytesIn: 1}},
	}}
	m := newMatcher(t, cfg, sampler)

	m.Evaluate(context.Background(), []domain.ProcessRecord{
		proc("10", "1", "ttys001", 0, "codex"),
		proc("11", "1", "ttys001", 0, "codex"),
	}, at(1))
	m.Evaluate(context.Background(), []domain.ProcessRecord{proc("11", "1", "ttys001", 0, "codex")}, at(2))

	assert.NotContains(t, m.prevNet, "10")
	assert.Contains(t, m.prevNet, "11")
}

func TestEvaluate_PrunesEvenWhenCPUWins(t *testing.T) {
	cfg := cpuOnlyConfig()
	cfg.EnableNettop = true
	sampler := &mockSampler{supported: true, samples: []map[string]domain.NetSample{
		{"10": {BytesIn: 1}, "11": {BytesIn: 1}},
	}}
	m := newMatcher(t, cfg, sampler)

	m.Evaluate(context.Background(), []domain.ProcessRecord{
		proc("10", "1", "ttys001", 0, "codex"),
		proc("11", "1", "ttys001", 0, "codex"),
	}, at(1))
	require.Len(t, m.prevNet, 2)

	a := m.Evaluate(context.Background(), []domain.ProcessRecord{proc("11", "1", "ttys001", 50, "codex")}, at(2))

	assert.Equal(t, []string{domain.EvidenceCPU}, a.Evidence)
	assert.Equal(t, 1, sampler.calls, "net not sampled once cpu is active")
	assert.NotContains(t, m.prevNet, "10")
	assert.Contains(t, m.prevNet, "11")
}

func TestPoll_ScanErrorKeepsState(t *testing.T) {
	scanner := &mockScanner{processes: []domain.ProcessRecord{proc("10", "1", "ttys001", 5, "codex")}}
	clock := at(8)
	m, err := NewActivityMatcherWithClock(cpuOnlyConfig(), scanner, nil, zap.NewNop(), func() time.Time { return clock })
	require.NoError(t, err)

	require.True(t, m.Poll(context.Background()).Active)

	scanner.err = &domain.ScanError{Op: "ps", Err: errors.New("boom")}
	clock = at(9)
	a := m.Poll(context.Background())
	assert.False(t, a.Running)
	assert.False(t, a.Active)
	assert.Equal(t, []string{domain.EvidencePsError}, a.Evidence)

	// Hysteresis survives the failed scan.
	scanner.err = nil
	scanner.processes[0].CPUPercent = 0
	clock = at(10)
	a = m.Poll(context.Background())
	assert.Equal(t, []string{domain.EvidenceGrace}, a.Evidence)
}

func TestNewActivityMatcher_BadRegex(t *testing.T) {
	cfg := config.DefaultProcessConfig()
	cfg.WatchRegex = "("
	_, err := NewActivityMatcher(cfg, &mockScanner{}, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestDescendants_Cycle(t *testing.T) {
	procs := []domain.ProcessRecord{
		proc("1", "2", "", 0, "a"),
		proc("2", "1", "", 0, "b"),
		proc("3", "2", "", 0, "c"),
	}
	got := Descendants("1", BuildChildrenMap(procs))

	pids := make([]string, 0, len(got))
	for _, p := range got {
		pids = append(pids, p.PID)
	}
	assert.ElementsMatch(t, []string{"1", "2", "3"}, pids)
}
