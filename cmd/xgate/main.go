// Package main is the CLI entry point for xgate.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/xgate/internal/config"
	"github.com/eliteGoblin/focusd/xgate/internal/daemon"
	"github.com/eliteGoblin/focusd/xgate/internal/history"
	"github.com/eliteGoblin/focusd/xgate/internal/infra"
	"github.com/eliteGoblin/focusd/xgate/internal/logger"
	"github.com/eliteGoblin/focusd/xgate/internal/metrics"
)

var (
	// Version info (set via ldflags)
	Version   = "0.3.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

// CompatVersion changes whenever the state file or config format changes
// in a way that needs the CLI and daemon upgraded together.
const CompatVersion = 2

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "xgate",
	Short: "Hosts-file focus gate",
	Long: `xgate blocks distracting sites through a managed section of the hosts file.

The block follows your coding agent: in reward mode sites open only while
Codex or Claude is busy working, otherwise they are blocked while it works.
A manual timer and daily schedule windows can force the block on.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the reconciliation loop (needs write access to the hosts file)",
	Long: `Runs the loop that polls the focus process, decides whether to block and
rewrites the managed hosts section when the decision changes.

Stops on SIGINT or SIGTERM after the current tick.`,
	RunE: runDaemon,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, build time and compat version. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configFlag  string
	jsonOutput  bool
	daemonOnce  bool
	metricsAddr string
	logStdout   bool
	debugLog    bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: $XGATE_CONFIG or the OS default)")

	daemonCmd.Flags().BoolVar(&daemonOnce, "once", false, "Run a single tick and exit")
	daemonCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics_addr)")
	daemonCmd.Flags().BoolVar(&logStdout, "log-stdout", false, "Also log to stdout")
	daemonCmd.Flags().BoolVar(&debugLog, "debug", false, "Enable debug logging")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(versionCmd)
}

// configPath resolves --config, then the environment and OS default.
func configPath() string {
	if configFlag != "" {
		return config.ExpandHome(configFlag)
	}
	return config.ConfigPath()
}

func runDaemon(cmd *cobra.Command, args []string) error {
	paths := config.ResolvePaths()
	paths.Config = configPath()

	log, done := logger.NewOrFallback(logger.Config{Path: paths.Log, Stdout: logStdout, Debug: debugLog})
	defer done()

	// Startup-only settings; the loop re-reads everything else every tick.
	startup, err := config.Load(paths.Config)
	if err != nil {
		log.Warn("config_missing", zap.String("path", paths.Config), zap.Error(err))
		startup = config.FailOpen()
	}

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("received shutdown signal")
		cancel()
	}()

	reconciler := daemon.NewReconciler(
		daemon.ReconcilerConfig{
			ConfigPath:    paths.Config,
			Once:          daemonOnce,
			Version:       Version,
			CompatVersion: CompatVersion,
		},
		infra.NewProcessScanner(),
		infra.NewNettopSampler(),
		infra.NewHostsFile(paths.Hosts),
		infra.NewStateFile(paths.State),
		infra.NewResolverFlusher(log),
		log,
	)

	if startup.HistoryDB != "" {
		store, err := history.Open(config.ExpandHome(startup.HistoryDB))
		if err != nil {
			log.Warn("history unavailable", zap.String("path", startup.HistoryDB), zap.Error(err))
		} else {
			defer store.Close()
			reconciler.WithRecorder(store)
		}
	}

	addr := metricsAddr
	if addr == "" {
		addr = startup.MetricsAddr
	}
	if addr != "" && !daemonOnce {
		serveMetrics(ctx, addr, log)
	}

	if !daemonOnce {
		watcher, err := daemon.NewConfigWatcher(paths.Config, log)
		if err != nil {
			log.Warn("config watcher unavailable, polling only", zap.Error(err))
		} else {
			go watcher.Run(ctx)
			reconciler.WithConfigChanges(watcher.Changes())
		}
	}

	return reconciler.Run(ctx)
}

// serveMetrics exposes /metrics until ctx is canceled.
func serveMetrics(ctx context.Context, addr string, log *zap.Logger) {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Warn("metrics registration failed", zap.Error(err))
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		data, _ := json.Marshal(map[string]any{
			"version":        Version,
			"commit":         Commit,
			"build_time":     BuildTime,
			"compat_version": CompatVersion,
		})
		fmt.Println(string(data))
	} else {
		fmt.Printf("xgate %s (commit: %s, built: %s, compat: %d)\n",
			Version, Commit, BuildTime, CompatVersion)
	}
}
