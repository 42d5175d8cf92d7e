// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/eliteGoblin/focusd/xgate/internal/config"
	"github.com/eliteGoblin/focusd/xgate/internal/domain"
)

// FakeGate lays out a config, hosts and state file under one directory.
type FakeGate struct {
	Dir        string
	ConfigPath string
	HostsPath  string
	StatePath  string
}

// NewFakeGate creates the layout under dir. The hosts file gets a
// realistic localhost preamble.
func NewFakeGate(dir string) (*FakeGate, error) {
	g := &FakeGate{
		Dir:        dir,
		ConfigPath: filepath.Join(dir, "config", "config.json"),
		HostsPath:  filepath.Join(dir, "hosts"),
		StatePath:  filepath.Join(dir, "run", "state.json"),
	}
	hosts := "127.0.0.1\tlocalhost\n::1\tlocalhost\n"
	if err := os.WriteFile(g.HostsPath, []byte(hosts), 0644); err != nil {
		return nil, err
	}
	return g, nil
}

// WriteConfig saves c as the gate config.
func (g *FakeGate) WriteConfig(c config.Config) error {
	return config.Save(g.ConfigPath, c)
}

// Hosts returns the hosts file contents.
func (g *FakeGate) Hosts() string {
	data, err := os.ReadFile(g.HostsPath)
	if err != nil {
		return ""
	}
	return string(data)
}

// FakeScanner is a process table the test controls.
type FakeScanner struct {
	mu    sync.Mutex
	procs []domain.ProcessRecord
	err   error
}

// Set replaces the process table.
func (s *FakeScanner) Set(procs ...domain.ProcessRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procs = procs
	s.err = nil
}

// Fail makes the next listings fail.
func (s *FakeScanner) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// List implements domain.ProcessScanner.
func (s *FakeScanner) List(context.Context) ([]domain.ProcessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, &domain.ScanError{Op: "list", Err: s.err}
	}
	return append([]domain.ProcessRecord(nil), s.procs...), nil
}

// NoNet is a sampler for platforms without per-process counters.
type NoNet struct{}

func (NoNet) Supported() bool { return false }

func (NoNet) Sample(context.Context, []string) (map[string]domain.NetSample, error) {
	return nil, nil
}

// CountingFlusher records DNS flushes.
type CountingFlusher struct {
	mu      sync.Mutex
	flushes int
}

func (f *CountingFlusher) Flush(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

// Count returns the number of flushes so far.
func (f *CountingFlusher) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushes
}

var (
	_ domain.ProcessScanner = (*FakeScanner)(nil)
	_ domain.NetSampler     = NoNet{}
	_ domain.DNSFlusher     = (*CountingFlusher)(nil)
)
