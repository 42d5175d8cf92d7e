// Package config loads and saves the xgate JSON configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/eliteGoblin/focusd/xgate/internal/domain"
)

// MinPollInterval keeps a misconfigured poll interval from spinning the loop.
const MinPollInterval = 200 * time.Millisecond

// ProcessConfig controls how the focus process is found and judged active.
// It is comparable so the daemon can detect changes with ==.
type ProcessConfig struct {
	WatchRegex                string  `json:"watch_regex" mapstructure:"watch_regex"`
	RequireTTY                bool    `json:"require_tty" mapstructure:"require_tty"`
	ActiveGraceSeconds        float64 `json:"active_grace_seconds" mapstructure:"active_grace_seconds"`
	CPUActiveThresholdPercent float64 `json:"cpu_active_threshold_percent" mapstructure:"cpu_active_threshold_percent"`
	NetActiveThresholdBytes   int64   `json:"net_active_threshold_bytes" mapstructure:"net_active_threshold_bytes"`
	EnableNettop              bool    `json:"enable_nettop" mapstructure:"enable_nettop"`
	ConsiderChildrenActive    bool    `json:"consider_children_active" mapstructure:"consider_children_active"`
}

// Grace returns the activity grace window.
func (p ProcessConfig) Grace() time.Duration {
	return time.Duration(p.ActiveGraceSeconds * float64(time.Second))
}

// Config is the full gate configuration.
type Config struct {
	Enabled             bool          `json:"enabled" mapstructure:"enabled"`
	RewardMode          bool          `json:"reward_mode" mapstructure:"reward_mode"`
	PollIntervalSeconds float64       `json:"poll_interval_seconds" mapstructure:"poll_interval_seconds"`
	Blocklist           []string      `json:"blocklist" mapstructure:"blocklist"`
	IncludeWWW          bool          `json:"include_www" mapstructure:"include_www"`
	BlockUntilUnix      float64       `json:"block_until_unix" mapstructure:"block_until_unix"`
	TimeBlocks          []string      `json:"time_blocks" mapstructure:"time_blocks"`
	HistoryDB           string        `json:"history_db" mapstructure:"history_db"`
	MetricsAddr         string        `json:"metrics_addr" mapstructure:"metrics_addr"`
	Process             ProcessConfig `json:"process" mapstructure:"process"`
}

// PollInterval returns the configured interval, floor-clamped to MinPollInterval.
func (c Config) PollInterval() time.Duration {
	d := time.Duration(c.PollIntervalSeconds * float64(time.Second))
	if d < MinPollInterval {
		return MinPollInterval
	}
	return d
}

// TimerActive reports whether the manual timer deadline is still ahead of now.
func (c Config) TimerActive(now time.Time) bool {
	return c.BlockUntilUnix > float64(now.UnixNano())/1e9
}

// DefaultProcessConfig watches interactive Codex and Claude sessions.
func DefaultProcessConfig() ProcessConfig {
	return ProcessConfig{
		WatchRegex:                `(?i)\b(codex|claude(?:-code)?|claude_code)\b`,
		RequireTTY:                true,
		ActiveGraceSeconds:        15,
		CPUActiveThresholdPercent: 1.0,
		NetActiveThresholdBytes:   1,
		EnableNettop:              true,
		ConsiderChildrenActive:    true,
	}
}

// Default returns the configuration written by `xgate init`.
func Default() Config {
	return Config{
		Enabled:             true,
		RewardMode:          true,
		PollIntervalSeconds: 1.0,
		Blocklist:           []string{"x.com", "twitter.com"},
		IncludeWWW:          true,
		TimeBlocks:          []string{},
		Process:             DefaultProcessConfig(),
	}
}

// FailOpen returns defaults with gating disabled.
// Used whenever the config cannot be read so a broken file never blocks indefinitely.
func FailOpen() Config {
	c := Default()
	c.Enabled = false
	return c
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("enabled", d.Enabled)
	v.SetDefault("reward_mode", d.RewardMode)
	v.SetDefault("poll_interval_seconds", d.PollIntervalSeconds)
	v.SetDefault("blocklist", d.Blocklist)
	v.SetDefault("include_www", d.IncludeWWW)
	v.SetDefault("block_until_unix", d.BlockUntilUnix)
	v.SetDefault("time_blocks", d.TimeBlocks)
	v.SetDefault("history_db", d.HistoryDB)
	v.SetDefault("metrics_addr", d.MetricsAddr)

	p := d.Process
	v.SetDefault("process.watch_regex", p.WatchRegex)
	v.SetDefault("process.require_tty", p.RequireTTY)
	v.SetDefault("process.active_grace_seconds", p.ActiveGraceSeconds)
	v.SetDefault("process.cpu_active_threshold_percent", p.CPUActiveThresholdPercent)
	v.SetDefault("process.net_active_threshold_bytes", p.NetActiveThresholdBytes)
	v.SetDefault("process.enable_nettop", p.EnableNettop)
	v.SetDefault("process.consider_children_active", p.ConsiderChildrenActive)
}

// Load reads the config file. Missing keys fall back to defaults.
// Every failure is a *domain.ConfigError.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, &domain.ConfigError{Path: path, Missing: true, Err: err}
		}
		return Config{}, &domain.ConfigError{Path: path, Err: err}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, &domain.ConfigError{Path: path, Err: err}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, &domain.ConfigError{Path: path, Err: err}
	}
	c.Blocklist = dropBlank(c.Blocklist)
	c.TimeBlocks = dropBlank(c.TimeBlocks)

	if _, err := regexp.Compile(c.Process.WatchRegex); err != nil {
		return Config{}, &domain.ConfigError{Path: path, Err: fmt.Errorf("watch_regex: %w", err)}
	}
	return c, nil
}

func dropBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// Save writes the config as indented JSON with sorted keys, atomically.
func Save(path string, c Config) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	// Round-trip through a map so keys come out sorted.
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmpPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure loads the config, writing defaults first if the file does not exist.
func Ensure(path string) (Config, error) {
	c, err := Load(path)
	if err == nil {
		return c, nil
	}
	var ce *domain.ConfigError
	if errors.As(err, &ce) && ce.Missing {
		d := Default()
		if err := Save(path, d); err != nil {
			return Config{}, err
		}
		return d, nil
	}
	return Config{}, err
}

// Update loads (or creates) the config, applies fn and saves the result.
func Update(path string, fn func(*Config) error) (Config, error) {
	c, err := Ensure(path)
	if err != nil {
		return Config{}, err
	}
	if err := fn(&c); err != nil {
		return Config{}, err
	}
	if err := Save(path, c); err != nil {
		return Config{}, err
	}
	return c, nil
}
