package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/xgate/internal/config"
	"github.com/eliteGoblin/focusd/xgate/internal/domain"
	"github.com/eliteGoblin/focusd/xgate/internal/infra"
	"github.com/eliteGoblin/focusd/xgate/internal/logger"
	"github.com/eliteGoblin/focusd/xgate/internal/nativehost"
	"github.com/eliteGoblin/focusd/xgate/internal/policy"
	"github.com/eliteGoblin/focusd/xgate/internal/usecase"
)

var (
	nativePoll      time.Duration
	nativeHeartbeat time.Duration
)

var nativeHostCmd = &cobra.Command{
	Use:   "native-host [origin]",
	Short: "Run as a browser native messaging host",
	Long: `Speaks the browser native messaging protocol on stdin/stdout and streams
the block verdict to the extension. Started by the browser; the origin
argument it passes is ignored. Logs go to a file, never stdout.`,
	Hidden: true,
	Args:   cobra.ArbitraryArgs,
	RunE:   runNativeHost,
}

func init() {
	nativeHostCmd.Flags().DurationVar(&nativePoll, "poll", nativehost.DefaultPollInterval, "Status poll interval")
	nativeHostCmd.Flags().DurationVar(&nativeHeartbeat, "heartbeat", nativehost.DefaultHeartbeat, "Heartbeat interval")
	rootCmd.AddCommand(nativeHostCmd)
}

func runNativeHost(cmd *cobra.Command, args []string) error {
	path := configPath()

	// stdout carries the protocol
	log, done := logger.NewOrFallback(logger.Config{
		Path: filepath.Join(filepath.Dir(path), "native-host.log"),
	})
	defer done()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	source := &localStatus{configPath: path, logger: log}
	host := nativehost.NewHost(os.Stdin, os.Stdout, source.Status, log).
		WithIntervals(nativePoll, nativeHeartbeat)

	log.Info("native host started", zap.Strings("args", args))
	err := host.Run(ctx)
	log.Info("native host stopped", zap.Error(err))
	return err
}

// localStatus decides from a local poll. The matcher survives between calls
// so grace and network deltas work as in the daemon.
type localStatus struct {
	configPath string
	logger     *zap.Logger
	matcher    *usecase.ActivityMatcher
}

// Status implements nativehost.StatusFunc.
func (s *localStatus) Status(ctx context.Context) nativehost.Status {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		cfg = config.FailOpen()
	}

	activity := s.poll(ctx, cfg.Process)
	decision := policy.Decide(cfg, activity.Active, time.Now())
	return nativehost.Status{BlockX: decision.ShouldBlock, ProcessRunning: activity.Running}
}

func (s *localStatus) poll(ctx context.Context, pc config.ProcessConfig) domain.Activity {
	if s.matcher == nil || s.matcher.Config() != pc {
		m, err := usecase.NewActivityMatcher(pc, infra.NewProcessScanner(), infra.NewNettopSampler(), s.logger)
		if err != nil {
			s.logger.Warn("matcher_config_invalid", zap.Error(err))
			if s.matcher == nil {
				return domain.Activity{Evidence: []string{}}
			}
		} else {
			s.matcher = m
		}
	}
	return s.matcher.Poll(ctx)
}
