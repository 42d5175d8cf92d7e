// Package usecase contains application business logic.
package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/xgate/internal/config"
	"github.com/eliteGoblin/focusd/xgate/internal/domain"
)

// ActivityMatcher finds the focus process and decides whether it is working.
// It keeps hysteresis state between polls and is not safe for concurrent use.
type ActivityMatcher struct {
	cfg     config.ProcessConfig
	watch   *regexp.Regexp
	scanner domain.ProcessScanner
	sampler domain.NetSampler
	logger  *zap.Logger
	now     func() time.Time

	lastActiveAt time.Time
	prevNet      map[string]domain.NetSample
}

// NewActivityMatcher creates a matcher for one process config.
func NewActivityMatcher(
	cfg config.ProcessConfig,
	scanner domain.ProcessScanner,
	sampler domain.NetSampler,
	logger *zap.Logger,
) (*ActivityMatcher, error) {
	watch, err := regexp.Compile(cfg.WatchRegex)
	if err != nil {
		return nil, fmt.Errorf("compile watch_regex: %w", err)
	}
	return &ActivityMatcher{
		cfg:     cfg,
		watch:   watch,
		scanner: scanner,
		sampler: sampler,
		logger:  logger,
		now:     time.Now,
		prevNet: make(map[string]domain.NetSample),
	}, nil
}

// NewActivityMatcherWithClock creates a matcher with an injectable clock (for testing).
func NewActivityMatcherWithClock(
	cfg config.ProcessConfig,
	scanner domain.ProcessScanner,
	sampler domain.NetSampler,
	logger *zap.Logger,
	now func() time.Time,
) (*ActivityMatcher, error) {
	m, err := NewActivityMatcher(cfg, scanner, sampler, logger)
	if err != nil {
		return nil, err
	}
	m.now = now
	return m, nil
}

// Config returns the process config this matcher was built for.
func (m *ActivityMatcher) Config() config.ProcessConfig {
	return m.cfg
}

// Poll scans the process table and evaluates it.
// A scan failure reports not running with ps_error evidence and leaves hysteresis state alone.
func (m *ActivityMatcher) Poll(ctx context.Context) domain.Activity {
	processes, err := m.scanner.List(ctx)
	if err != nil {
		m.logger.Warn("process scan failed", zap.Error(err))
		return domain.Activity{Evidence: []string{domain.EvidencePsError}}
	}
	return m.Evaluate(ctx, processes, m.now())
}

// Evaluate judges a process list taken at now.
func (m *ActivityMatcher) Evaluate(ctx context.Context, processes []domain.ProcessRecord, now time.Time) domain.Activity {
	matches := m.Matches(processes)
	if len(matches) == 0 {
		m.lastActiveAt = time.Time{}
		m.prevNet = make(map[string]domain.NetSample)
		return domain.Activity{Evidence: []string{}}
	}
	m.pruneNet(matches)

	evidence := m.activeEvidence(ctx, matches, processes)
	if evidence != "" {
		m.lastActiveAt = now
		return domain.Activity{Running: true, Active: true, Evidence: []string{evidence}}
	}

	if !m.lastActiveAt.IsZero() && now.Sub(m.lastActiveAt) <= m.cfg.Grace() {
		return domain.Activity{Running: true, Active: true, Evidence: []string{domain.EvidenceGrace}}
	}
	return domain.Activity{Running: true, Evidence: []string{}}
}

// Matches returns processes whose command matches the watch pattern,
// restricted to processes with a terminal when require_tty is set.
func (m *ActivityMatcher) Matches(processes []domain.ProcessRecord) []domain.ProcessRecord {
	var matches []domain.ProcessRecord
	for _, p := range processes {
		if m.cfg.RequireTTY && !HasTTY(p.TTY) {
			continue
		}
		if m.watch.MatchString(p.Command) {
			matches = append(matches, p)
		}
	}
	return matches
}

// activeEvidence returns the first signal that shows the matches working, or "".
// Checks run in order cpu, child_cpu, net; later checks are skipped once one passes.
func (m *ActivityMatcher) activeEvidence(ctx context.Context, matches, all []domain.ProcessRecord) string {
	threshold := m.cfg.CPUActiveThresholdPercent

	if threshold > 0 {
		for _, p := range matches {
			if p.CPUPercent >= threshold {
				return domain.EvidenceCPU
			}
		}
	}

	if m.cfg.ConsiderChildrenActive && threshold > 0 && m.childBusy(matches, all) {
		return domain.EvidenceChildCPU
	}

	if m.cfg.EnableNettop && m.cfg.NetActiveThresholdBytes > 0 && m.sampler != nil && m.sampler.Supported() {
		if m.netBusy(ctx, matches) {
			return domain.EvidenceNet
		}
	}
	return ""
}

// childBusy walks descendants of each match looking for a helper burning CPU.
// Descendants that are matches themselves, or run on a different terminal, do not count.
func (m *ActivityMatcher) childBusy(matches, all []domain.ProcessRecord) bool {
	children := BuildChildrenMap(all)
	if len(children) == 0 {
		return false
	}

	matchPIDs := make(map[string]bool, len(matches))
	for _, p := range matches {
		matchPIDs[p.PID] = true
	}

	for _, p := range matches {
		for _, child := range Descendants(p.PID, children) {
			if matchPIDs[child.PID] || m.watch.MatchString(child.Command) {
				continue
			}
			if p.TTY != "" && child.TTY != "" && p.TTY != child.TTY {
				continue
			}
			if child.CPUPercent >= m.cfg.CPUActiveThresholdPercent {
				return true
			}
		}
	}
	return false
}

// pruneNet drops samples for pids gone from the match set.
func (m *ActivityMatcher) pruneNet(matches []domain.ProcessRecord) {
	live := make(map[string]bool, len(matches))
	for _, p := range matches {
		live[p.PID] = true
	}
	for pid := range m.prevNet {
		if !live[pid] {
			delete(m.prevNet, pid)
		}
	}
}

// netBusy compares cumulative byte counters against the previous poll.
// The first sample for a pid only seeds.
func (m *ActivityMatcher) netBusy(ctx context.Context, matches []domain.ProcessRecord) bool {
	pids := make([]string, len(matches))
	for i, p := range matches {
		pids[i] = p.PID
	}

	samples, err := m.sampler.Sample(ctx, pids)
	if err != nil {
		m.logger.Debug("net sample failed", zap.Error(err))
		return false
	}

	for _, pid := range pids {
		cur, ok := samples[pid]
		if !ok {
			continue
		}
		prev, seen := m.prevNet[pid]
		m.prevNet[pid] = cur
		if !seen {
			continue
		}
		delta := cur.Total() - prev.Total()
		if delta < 0 {
			delta = 0
		}
		if delta >= m.cfg.NetActiveThresholdBytes {
			return true
		}
	}
	return false
}

// HasTTY reports whether a ps TTY column names a real terminal.
func HasTTY(tty string) bool {
	return !strings.Contains(tty, "?")
}

// BuildChildrenMap indexes processes by parent PID.
func BuildChildrenMap(processes []domain.ProcessRecord) map[string][]domain.ProcessRecord {
	children := make(map[string][]domain.ProcessRecord)
	for _, p := range processes {
		children[p.PPID] = append(children[p.PPID], p)
	}
	return children
}

// Descendants returns every process below pid. Cycles in the parent links are tolerated.
func Descendants(pid string, children map[string][]domain.ProcessRecord) []domain.ProcessRecord {
	stack := append([]domain.ProcessRecord(nil), children[pid]...)
	seen := make(map[string]bool)
	var out []domain.ProcessRecord
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[p.PID] {
			continue
		}
		seen[p.PID] = true
		out = append(out, p)
		stack = append(stack, children[p.PID]...)
	}
	return out
}
