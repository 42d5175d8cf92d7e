package infra

import (
	"context"
	"strings"
)

// mockCommandRunner is a test double for CommandRunner
type mockCommandRunner struct {
	outputs map[string][]byte
	errs    map[string]error
	calls   []string
}

func newMockCommandRunner() *mockCommandRunner {
	return &mockCommandRunner{
		outputs: make(map[string][]byte),
		errs:    make(map[string]error),
	}
}

func (m *mockCommandRunner) Run(_ context.Context, name string, args ...string) error {
	_, err := m.Output(context.Background(), name, args...)
	return err
}

func (m *mockCommandRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	m.calls = append(m.calls, strings.Join(append([]string{name}, args...), " "))
	if err := m.errs[name]; err != nil {
		return nil, err
	}
	return m.outputs[name], nil
}

// Ensure mockCommandRunner implements CommandRunner
var _ CommandRunner = (*mockCommandRunner)(nil)
