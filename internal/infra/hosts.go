package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/focusd/xgate/internal/domain"
)

// Managed block markers.
const (
	MarkerStart = "# xgate:start"
	MarkerEnd   = "# xgate:end"
)

// HostsFile implements domain.HostsReconciler over a hosts-format file.
type HostsFile struct {
	path string
}

// NewHostsFile creates a reconciler for the file at path.
func NewHostsFile(path string) *HostsFile {
	return &HostsFile{path: path}
}

// Path returns the hosts file path.
func (h *HostsFile) Path() string {
	return h.path
}

// HasBlock reports whether both markers appear in the file.
func (h *HostsFile) HasBlock() bool {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return false
	}
	content := string(data)
	return strings.Contains(content, MarkerStart) && strings.Contains(content, MarkerEnd)
}

// Apply rewrites the managed block for the given decision.
// Returns false without touching the file when the content already matches.
func (h *HostsFile) Apply(domains []string, shouldBlock bool) (bool, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return false, fmt.Errorf("read hosts %s: %w", h.path, err)
	}
	original := string(data)

	updated := RenderHosts(original, domains, shouldBlock)
	if updated == original {
		return false, nil
	}

	info, err := os.Stat(h.path)
	if err != nil {
		return false, fmt.Errorf("stat hosts %s: %w", h.path, err)
	}
	if err := h.atomicWrite([]byte(updated), info.Mode().Perm()); err != nil {
		return false, err
	}
	return true, nil
}

// RenderHosts returns original with its managed block replaced.
// Blocking with no domains strips the block without writing an empty one.
func RenderHosts(original string, domains []string, shouldBlock bool) string {
	cleaned := stripManaged(splitLines(original))

	if shouldBlock && len(domains) > 0 {
		if n := len(cleaned); n > 0 && strings.TrimSpace(cleaned[n-1]) != "" {
			cleaned = append(cleaned, "")
		}
		cleaned = append(cleaned, renderBlock(domains)...)
	}

	eol := lineEnding(original)
	text := strings.Join(cleaned, eol)
	if original == "" || strings.HasSuffix(original, "\n") {
		text += eol
	}
	return text
}

// lineEnding returns "\r\n" for files that use CRLF, "\n" otherwise.
func lineEnding(s string) string {
	if strings.Contains(s, "\r\n") {
		return "\r\n"
	}
	return "\n"
}

func renderBlock(domains []string) []string {
	lines := make([]string, 0, len(domains)*2+2)
	lines = append(lines, MarkerStart)
	for _, d := range domains {
		lines = append(lines, "0.0.0.0 "+d, "::1 "+d)
	}
	return append(lines, MarkerEnd)
}

// stripManaged drops marker lines and everything between them.
// A start marker without an end strips to EOF.
func stripManaged(lines []string) []string {
	cleaned := make([]string, 0, len(lines))
	inBlock := false
	for _, line := range lines {
		switch strings.TrimSpace(line) {
		case MarkerStart:
			inBlock = true
			continue
		case MarkerEnd:
			inBlock = false
			continue
		}
		if !inBlock {
			cleaned = append(cleaned, line)
		}
	}
	return cleaned
}

// splitLines splits on LF or CRLF without producing a trailing empty element.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// atomicWrite writes to a sibling temp file, syncs it and renames it over the hosts file.
func (h *HostsFile) atomicWrite(data []byte, perm os.FileMode) error {
	tmpPath := filepath.Join(filepath.Dir(h.path), filepath.Base(h.path)+".xgate.tmp")

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create temp hosts %s: %w", tmpPath, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp hosts: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp hosts: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp hosts: %w", err)
	}
	// OpenFile honours umask; restore the original mode explicitly.
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp hosts: %w", err)
	}

	if err := os.Rename(tmpPath, h.path); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return fmt.Errorf("replace hosts %s: %w", h.path, err)
	}
	return nil
}

var _ domain.HostsReconciler = (*HostsFile)(nil)
