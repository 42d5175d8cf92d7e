package infra

import (
	"context"
	"runtime"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/xgate/internal/domain"
)

// ResolverFlusher implements domain.DNSFlusher with the platform's cache flush commands.
type ResolverFlusher struct {
	runner CommandRunner
	goos   string
	logger *zap.Logger
}

// NewResolverFlusher creates a flusher for the running OS.
func NewResolverFlusher(logger *zap.Logger) *ResolverFlusher {
	return &ResolverFlusher{runner: &RealCommandRunner{}, goos: runtime.GOOS, logger: logger}
}

// NewResolverFlusherWithDeps creates a flusher with injectable dependencies (for testing).
func NewResolverFlusherWithDeps(runner CommandRunner, goos string, logger *zap.Logger) *ResolverFlusher {
	return &ResolverFlusher{runner: runner, goos: goos, logger: logger}
}

// flushCommands lists the commands run for each OS, in order.
func flushCommands(goos string) [][]string {
	switch goos {
	case "darwin":
		return [][]string{
			{"/usr/bin/dscacheutil", "-flushcache"},
			{"/usr/bin/killall", "-HUP", "mDNSResponder"},
		}
	case "linux":
		return [][]string{{"resolvectl", "flush-caches"}}
	}
	return nil
}

// Flush runs every command; failures are logged at debug level and ignored.
func (f *ResolverFlusher) Flush(ctx context.Context) {
	for _, cmd := range flushCommands(f.goos) {
		if err := f.runner.Run(ctx, cmd[0], cmd[1:]...); err != nil {
			f.logger.Debug("dns flush command failed",
				zap.Strings("cmd", cmd),
				zap.Error(err))
		}
	}
}

var _ domain.DNSFlusher = (*ResolverFlusher)(nil)
