package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/xgate/internal/config"
	"github.com/eliteGoblin/focusd/xgate/internal/domain"
	"github.com/eliteGoblin/focusd/xgate/internal/infra"
	"github.com/eliteGoblin/focusd/xgate/internal/policy"
	"github.com/eliteGoblin/focusd/xgate/internal/usecase"
)

var (
	statusJSON  bool
	statusDebug bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current gate status",
	Long: `Polls the focus process locally and merges the result with the daemon's
last snapshot when it is fresh. Warns when the daemon is not running or was
built with a different compat version.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")
	statusCmd.Flags().BoolVar(&statusDebug, "debug", false, "Include activity evidence")
	rootCmd.AddCommand(statusCmd)
}

// statusReport is what `xgate status` prints.
type statusReport struct {
	CLIVersion          string   `json:"cli_version"`
	CompatVersion       int      `json:"compat_version"`
	Enabled             bool     `json:"enabled"`
	RewardMode          bool     `json:"reward_mode"`
	ProcessRunning      bool     `json:"process_running"`
	ProcessActive       bool     `json:"process_active"`
	ShouldBlock         bool     `json:"should_block"`
	Reasons             []string `json:"reasons"`
	HostsBlocked        bool     `json:"hosts_blocked"`
	ConfigPath          string   `json:"config_path"`
	Blocklist           []string `json:"blocklist"`
	IncludeWWW          bool     `json:"include_www"`
	PollIntervalSeconds float64  `json:"poll_interval_seconds"`
	Timer               string   `json:"timer"`
	TimeBlocks          []string `json:"time_blocks"`
	DaemonState         bool     `json:"daemon_state"`
	DaemonVersion       string   `json:"daemon_version,omitempty"`
	DaemonCompatVersion *int     `json:"daemon_compat_version"`
	StatusWarnings      []string `json:"status_warnings"`
	Evidence            []string `json:"evidence,omitempty"`
}

// statusInput gathers everything the report is built from.
type statusInput struct {
	Config       config.Config
	ConfigPath   string
	Local        domain.Activity
	Daemon       *domain.DaemonState // nil when missing or stale
	HostsBlocked bool
	Now          time.Time
	Debug        bool
}

// buildStatus merges the local poll with the daemon snapshot.
// A fresh snapshot wins for activity, the block verdict and its reasons.
func buildStatus(in statusInput) statusReport {
	activity := in.Local
	if in.Daemon != nil {
		activity = domain.Activity{
			Running:  in.Daemon.ProcessRunning,
			Active:   in.Daemon.ProcessActive,
			Evidence: in.Daemon.Evidence,
		}
	}

	decision := policy.Decide(in.Config, activity.Active, in.Now)
	domains, _ := policy.ExpandDomains(in.Config.Blocklist, in.Config.IncludeWWW)

	r := statusReport{
		CLIVersion:          Version,
		CompatVersion:       CompatVersion,
		Enabled:             in.Config.Enabled,
		RewardMode:          in.Config.RewardMode,
		ProcessRunning:      activity.Running,
		ProcessActive:       activity.Active,
		ShouldBlock:         decision.ShouldBlock,
		Reasons:             decision.ReasonStrings(),
		HostsBlocked:        in.HostsBlocked,
		ConfigPath:          in.ConfigPath,
		Blocklist:           domains,
		IncludeWWW:          in.Config.IncludeWWW,
		PollIntervalSeconds: in.Config.PollIntervalSeconds,
		Timer:               describeTimer(in.Config, in.Now),
		TimeBlocks:          in.Config.TimeBlocks,
		DaemonState:         in.Daemon != nil,
		StatusWarnings:      []string{},
	}
	if r.TimeBlocks == nil {
		r.TimeBlocks = []string{}
	}

	if in.Daemon != nil {
		// Verdict and reasons both come from the daemon so they cannot disagree.
		r.ShouldBlock = in.Daemon.Block
		r.Reasons = in.Daemon.Reasons
		if r.Reasons == nil {
			r.Reasons = []string{}
		}
		r.DaemonVersion = in.Daemon.DaemonVersion
		compat := in.Daemon.CompatVersion
		r.DaemonCompatVersion = &compat
		if compat != CompatVersion {
			r.StatusWarnings = append(r.StatusWarnings, fmt.Sprintf(
				"running daemon compat mismatch (cli=%d, daemon=%d); reinstall daemon", CompatVersion, compat))
		}
	} else {
		r.StatusWarnings = append(r.StatusWarnings, "daemon state unavailable; status may be stale")
	}

	if in.Debug {
		r.Evidence = activity.Evidence
	}
	return r
}

func printStatus(w io.Writer, r statusReport) {
	fmt.Fprintln(w, "X Gate")
	fmt.Fprintf(w, "  enabled: %t\n", r.Enabled)
	fmt.Fprintf(w, "  reward_mode: %t\n", r.RewardMode)
	fmt.Fprintf(w, "  process_running: %t\n", r.ProcessRunning)
	fmt.Fprintf(w, "  process_active: %t\n", r.ProcessActive)
	fmt.Fprintf(w, "  should_block: %t\n", r.ShouldBlock)
	if len(r.Reasons) > 0 {
		fmt.Fprintf(w, "  reasons: %s\n", strings.Join(r.Reasons, ", "))
	}
	fmt.Fprintf(w, "  hosts_blocked: %t\n", r.HostsBlocked)
	fmt.Fprintf(w, "  timer: %s\n", r.Timer)
	if len(r.TimeBlocks) > 0 {
		fmt.Fprintf(w, "  schedule: %s\n", strings.Join(r.TimeBlocks, ", "))
	}
	fmt.Fprintf(w, "  config_path: %s\n", r.ConfigPath)
	if len(r.Blocklist) > 0 {
		fmt.Fprintf(w, "  blocklist: %s\n", strings.Join(r.Blocklist, ", "))
	} else {
		fmt.Fprintln(w, "  blocklist: (empty)")
	}
	if r.Evidence != nil {
		fmt.Fprintf(w, "  evidence: %s\n", strings.Join(r.Evidence, ", "))
	}
	if len(r.StatusWarnings) > 0 {
		fmt.Fprintln(w, "  warnings:")
		for _, warning := range r.StatusWarnings {
			fmt.Fprintf(w, "    - %s\n", warning)
		}
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	path := configPath()
	cfg, err := config.Ensure(path)
	if err != nil {
		return err
	}
	paths := config.ResolvePaths()

	in := statusInput{
		Config:       cfg,
		ConfigPath:   path,
		Local:        pollOnce(cmd.Context(), cfg.Process),
		HostsBlocked: infra.NewHostsFile(paths.Hosts).HasBlock(),
		Now:          time.Now(),
		Debug:        statusDebug,
	}
	if state, _, ok := infra.ReadState(paths.State, infra.StaleAfter(cfg.PollInterval())); ok {
		in.Daemon = &state
	}

	report := buildStatus(in)
	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printStatus(os.Stdout, report)
	return nil
}

// pollOnce runs a single local activity poll. An invalid process config reads as idle.
func pollOnce(ctx context.Context, pc config.ProcessConfig) domain.Activity {
	if ctx == nil {
		ctx = context.Background()
	}
	m, err := usecase.NewActivityMatcher(pc, infra.NewProcessScanner(), infra.NewNettopSampler(), zap.NewNop())
	if err != nil {
		return domain.Activity{Evidence: []string{}}
	}
	return m.Poll(ctx)
}
