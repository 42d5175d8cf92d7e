package infra

import (
	"bufio"
	"bytes"
	"context"
	"runtime"
	"strconv"
	"strings"

	"github.com/eliteGoblin/focusd/xgate/internal/domain"
)

// NettopSampler implements domain.NetSampler with macOS nettop.
type NettopSampler struct {
	runner CommandRunner
	goos   string
}

// NewNettopSampler creates a sampler for the running OS.
func NewNettopSampler() *NettopSampler {
	return &NettopSampler{runner: &RealCommandRunner{}, goos: runtime.GOOS}
}

// NewNettopSamplerWithDeps creates a sampler with injectable dependencies (for testing).
func NewNettopSamplerWithDeps(runner CommandRunner, goos string) *NettopSampler {
	return &NettopSampler{runner: runner, goos: goos}
}

// Supported is true on darwin only.
func (n *NettopSampler) Supported() bool {
	return n.goos == "darwin"
}

// Sample takes one nettop snapshot for the given PIDs.
func (n *NettopSampler) Sample(ctx context.Context, pids []string) (map[string]domain.NetSample, error) {
	if !n.Supported() || len(pids) == 0 {
		return map[string]domain.NetSample{}, nil
	}

	args := []string{"-P", "-L", "1", "-n"}
	for _, pid := range pids {
		args = append(args, "-p", pid)
	}
	out, err := n.runner.Output(ctx, "nettop", args...)
	if err != nil {
		return nil, err
	}
	return parseNettopBytes(out), nil
}

// parseNettopBytes reads nettop CSV rows "time,proc.pid,iface,state,bytes_in,bytes_out,...".
// Rows for the same pid are summed; header and malformed rows are skipped.
func parseNettopBytes(out []byte) map[string]domain.NetSample {
	samples := make(map[string]domain.NetSample)

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "time,") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 6 {
			continue
		}

		proc := parts[1]
		pid := proc[strings.LastIndex(proc, ".")+1:]
		if pid == "" {
			continue
		}

		in, err := parseCounter(parts[4])
		if err != nil {
			continue
		}
		outBytes, err := parseCounter(parts[5])
		if err != nil {
			continue
		}

		s := samples[pid]
		s.BytesIn += in
		s.BytesOut += outBytes
		samples[pid] = s
	}
	return samples
}

// parseCounter treats an empty column as zero.
func parseCounter(field string) (int64, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return 0, nil
	}
	return strconv.ParseInt(field, 10, 64)
}

var _ domain.NetSampler = (*NettopSampler)(nil)
