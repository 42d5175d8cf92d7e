package domain

import "context"

// ProcessScanner lists the OS process table.
// Implementation: ps output parsing, gopsutil where ps is unavailable.
type ProcessScanner interface {
	// List returns every process visible to the caller.
	// Malformed rows are skipped; a failed enumeration returns *ScanError.
	List(ctx context.Context) ([]ProcessRecord, error)
}

// NetSampler reads cumulative network byte counters per process.
type NetSampler interface {
	// Supported reports whether sampling works on this platform.
	Supported() bool

	// Sample returns counters keyed by PID. PIDs without data are absent.
	Sample(ctx context.Context, pids []string) (map[string]NetSample, error)
}

// HostsReconciler owns the managed block of a hosts-style file.
type HostsReconciler interface {
	// Apply rewrites the managed block. Returns false when the file already matched.
	Apply(domains []string, shouldBlock bool) (bool, error)

	// HasBlock reports whether both managed markers are present.
	HasBlock() bool

	// Path returns the hosts file path.
	Path() string
}

// StateWriter persists the per-tick daemon snapshot.
type StateWriter interface {
	Write(state DaemonState) error
}

// DNSFlusher clears the local resolver cache after the hosts file changes.
type DNSFlusher interface {
	Flush(ctx context.Context)
}

// TransitionRecorder journals block decision changes.
type TransitionRecorder interface {
	Record(ctx context.Context, t Transition) error
	Recent(ctx context.Context, limit int) ([]Transition, error)
	Close() error
}
