// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "fmt"

// ProcessRecord is one row of the OS process table.
// Rebuilt on every poll, never persisted.
type ProcessRecord struct {
	PID        string
	PPID       string
	TTY        string // "?" / "??" mean no controlling terminal
	CPUPercent float64
	Command    string
}

// NetSample is a cumulative network byte counter pair for one process.
type NetSample struct {
	BytesIn  int64
	BytesOut int64
}

// Total returns in+out bytes.
func (s NetSample) Total() int64 {
	return s.BytesIn + s.BytesOut
}

// Evidence values explaining why a focus process was considered active.
const (
	EvidenceCPU      = "cpu"
	EvidenceChildCPU = "child_cpu"
	EvidenceNet      = "net"
	EvidenceGrace    = "grace"
	EvidencePsError  = "ps_error"
)

// Activity is the result of one matcher poll.
type Activity struct {
	Running  bool     // at least one process matched the watch pattern
	Active   bool     // running and doing work (or within the grace window)
	Evidence []string // signals that justified Active
}

// Reason names one cause of a block decision.
type Reason string

const (
	ReasonTimer     Reason = "timer"
	ReasonTimeBlock Reason = "time_block"
	ReasonActivity  Reason = "activity"
)

// BlockDecision combines activity, timer and schedule into one verdict.
type BlockDecision struct {
	ShouldBlock         bool
	Reasons             []Reason // always a subsequence of timer, time_block, activity
	TimerBlockActive    bool
	TimeBlockActive     bool
	ActivityBlockActive bool
}

// ReasonStrings returns Reasons as plain strings for logging.
func (d BlockDecision) ReasonStrings() []string {
	out := make([]string, len(d.Reasons))
	for i, r := range d.Reasons {
		out[i] = string(r)
	}
	return out
}

// TimeWindow is a daily window in minutes since midnight.
// Start == End is never valid; Start > End wraps past midnight.
type TimeWindow struct {
	Start int
	End   int
}

// Contains reports whether minute-of-day m falls in the window.
// Start is inclusive, End is exclusive.
func (w TimeWindow) Contains(m int) bool {
	if w.Start < w.End {
		return w.Start <= m && m < w.End
	}
	return m >= w.Start || m < w.End
}

// Overnight reports whether the window wraps past midnight.
func (w TimeWindow) Overnight() bool {
	return w.Start >= w.End
}

// String renders the normalized HH:MM-HH:MM form.
func (w TimeWindow) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, w.End/60, w.End%60)
}

// DaemonState is the snapshot written by the daemon every tick.
// The status command reads it to report what the daemon last decided.
type DaemonState struct {
	TimestampUnix       float64  `json:"timestamp_unix"`
	Block               bool     `json:"block"`
	ProcessRunning      bool     `json:"process_running"`
	ProcessActive       bool     `json:"process_active"`
	Evidence            []string `json:"evidence"`
	Reasons             []string `json:"reasons"`
	Enabled             bool     `json:"enabled"`
	RewardMode          bool     `json:"reward_mode"`
	PollIntervalSeconds float64  `json:"poll_interval_seconds"`
	DaemonVersion       string   `json:"daemon_version"`
	CompatVersion       int      `json:"compat_version"`
}

// Transition is one recorded change of the block decision.
type Transition struct {
	ID            int64
	TimestampUnix int64
	Block         bool
	Reasons       []string
	Evidence      []string
	Domains       int
	HostsChanged  bool
}
