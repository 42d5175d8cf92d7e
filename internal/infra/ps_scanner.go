package infra

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/eliteGoblin/focusd/xgate/internal/domain"
)

var psArgs = []string{"-axo", "pid=,ppid=,tty=,%cpu=,command="}

// PsScanner implements domain.ProcessScanner by parsing ps output.
type PsScanner struct {
	runner CommandRunner
}

// NewPsScanner creates a scanner backed by the system ps binary.
func NewPsScanner() *PsScanner {
	return &PsScanner{runner: &RealCommandRunner{}}
}

// NewPsScannerWithRunner creates a scanner with an injectable runner (for testing).
func NewPsScannerWithRunner(runner CommandRunner) *PsScanner {
	return &PsScanner{runner: runner}
}

// List runs ps once and parses every row.
func (s *PsScanner) List(ctx context.Context) ([]domain.ProcessRecord, error) {
	out, err := s.runner.Output(ctx, "ps", psArgs...)
	if err != nil {
		return nil, &domain.ScanError{Op: "ps", Err: err}
	}
	return parsePsOutput(out)
}

// parsePsOutput splits each line into at most five fields; the command keeps its spaces.
// Short lines are skipped. A CPU column that does not parse counts as 0.
func parsePsOutput(out []byte) ([]domain.ProcessRecord, error) {
	var records []domain.ProcessRecord
	nonEmpty := false

	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		nonEmpty = true

		fields := splitFields(line, 5)
		if len(fields) < 5 {
			continue
		}
		cpu, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			cpu = 0
		}
		records = append(records, domain.ProcessRecord{
			PID:        fields[0],
			PPID:       fields[1],
			TTY:        fields[2],
			CPUPercent: cpu,
			Command:    fields[4],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, &domain.ScanError{Op: "parse", Err: err}
	}
	if nonEmpty && len(records) == 0 {
		return nil, &domain.ScanError{Op: "parse", Err: errors.New("no parseable rows")}
	}
	return records, nil
}

// splitFields is strings.Fields limited to n fields; the last field holds the trimmed remainder.
func splitFields(s string, n int) []string {
	var fields []string
	rest := strings.TrimLeft(s, " \t")
	for len(fields) < n-1 && rest != "" {
		i := strings.IndexAny(rest, " \t")
		if i < 0 {
			fields = append(fields, rest)
			return fields
		}
		fields = append(fields, rest[:i])
		rest = strings.TrimLeft(rest[i:], " \t")
	}
	if rest != "" {
		fields = append(fields, strings.TrimRight(rest, " \t"))
	}
	return fields
}

var _ domain.ProcessScanner = (*PsScanner)(nil)
