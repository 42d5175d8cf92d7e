package domain

import "fmt"

// ScanError means the process table could not be enumerated or parsed.
type ScanError struct {
	Op  string
	Err error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("process scan %s: %v", e.Op, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// ConfigError means the configuration file is missing or unusable.
type ConfigError struct {
	Path    string
	Missing bool
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Missing {
		return fmt.Sprintf("config %s not found", e.Path)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// DomainError rejects a single malformed blocklist entry.
type DomainError struct {
	Value  string
	Reason string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("invalid domain %q: %s", e.Value, e.Reason)
}

// FormatError rejects a malformed duration or time window string.
type FormatError struct {
	Kind   string // "duration" or "window"
	Value  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Kind, e.Value, e.Reason)
}
