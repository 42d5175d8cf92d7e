package infra

import (
	"context"
	"runtime"
	"strconv"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/xgate/internal/domain"
)

// noTTY is what ps prints for a process without a controlling terminal.
const noTTY = "?"

// GopsutilScanner implements domain.ProcessScanner using gopsutil.
// Used where ps is unavailable.
type GopsutilScanner struct{}

// NewGopsutilScanner creates a gopsutil-backed scanner.
func NewGopsutilScanner() *GopsutilScanner {
	return &GopsutilScanner{}
}

// NewProcessScanner picks the scanner for the running OS.
func NewProcessScanner() domain.ProcessScanner {
	if runtime.GOOS == "windows" {
		return NewGopsutilScanner()
	}
	return NewPsScanner()
}

// List enumerates processes. Processes that exit mid-scan are skipped.
func (s *GopsutilScanner) List(ctx context.Context) ([]domain.ProcessRecord, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, &domain.ScanError{Op: "gopsutil", Err: err}
	}

	records := make([]domain.ProcessRecord, 0, len(procs))
	for _, p := range procs {
		cmd, err := p.CmdlineWithContext(ctx)
		if err != nil {
			continue // Process may have exited
		}
		if cmd == "" {
			if cmd, err = p.NameWithContext(ctx); err != nil {
				continue
			}
		}

		var ppid int32
		if v, err := p.PpidWithContext(ctx); err == nil {
			ppid = v
		}

		tty := noTTY
		if t, err := p.TerminalWithContext(ctx); err == nil && t != "" {
			tty = t
		}

		cpu, err := p.CPUPercentWithContext(ctx)
		if err != nil {
			cpu = 0
		}

		records = append(records, domain.ProcessRecord{
			PID:        strconv.Itoa(int(p.Pid)),
			PPID:       strconv.Itoa(int(ppid)),
			TTY:        tty,
			CPUPercent: cpu,
			Command:    cmd,
		})
	}
	return records, nil
}

var _ domain.ProcessScanner = (*GopsutilScanner)(nil)
