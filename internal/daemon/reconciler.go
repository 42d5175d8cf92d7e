// Package daemon runs the reconciliation loop that keeps the hosts file in line
// with the block decision.
package daemon

import (
	"context"
	"errors"
	"io/fs"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/xgate/internal/config"
	"github.com/eliteGoblin/focusd/xgate/internal/domain"
	"github.com/eliteGoblin/focusd/xgate/internal/metrics"
	"github.com/eliteGoblin/focusd/xgate/internal/policy"
	"github.com/eliteGoblin/focusd/xgate/internal/usecase"
)

// ActivityPoller is the part of usecase.ActivityMatcher the loop needs.
type ActivityPoller interface {
	Poll(ctx context.Context) domain.Activity
	Config() config.ProcessConfig
}

// MatcherFactory builds a poller for one process config.
type MatcherFactory func(cfg config.ProcessConfig) (ActivityPoller, error)

// Loader reads the config file.
type Loader func(path string) (config.Config, error)

// ReconcilerConfig holds loop settings.
type ReconcilerConfig struct {
	ConfigPath    string
	Once          bool // run a single tick and return
	Version       string
	CompatVersion int
}

// Reconciler is the daemon loop. It owns the matcher and the last applied decision;
// nothing else touches them.
type Reconciler struct {
	config     ReconcilerConfig
	load       Loader
	newMatcher MatcherFactory
	hosts      domain.HostsReconciler
	state      domain.StateWriter
	dns        domain.DNSFlusher
	recorder   domain.TransitionRecorder
	changes    <-chan struct{}
	logger     *zap.Logger
	now        func() time.Time

	matcher     ActivityPoller
	lastBlock   *bool // last decision written to the hosts file
	lastDomains []string
	tried       *bool // last decision attempted, applied or not
	triedDoms   []string
	interval    time.Duration
}

// NewReconciler creates the loop with matchers built from scanner and sampler.
func NewReconciler(
	cfg ReconcilerConfig,
	scanner domain.ProcessScanner,
	sampler domain.NetSampler,
	hosts domain.HostsReconciler,
	state domain.StateWriter,
	dns domain.DNSFlusher,
	logger *zap.Logger,
) *Reconciler {
	factory := func(pc config.ProcessConfig) (ActivityPoller, error) {
		m, err := usecase.NewActivityMatcher(pc, scanner, sampler, logger)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return NewReconcilerWithDeps(cfg, config.Load, factory, hosts, state, dns, logger)
}

// NewReconcilerWithDeps creates a loop with injectable dependencies (for testing).
func NewReconcilerWithDeps(
	cfg ReconcilerConfig,
	load Loader,
	newMatcher MatcherFactory,
	hosts domain.HostsReconciler,
	state domain.StateWriter,
	dns domain.DNSFlusher,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		config:     cfg,
		load:       load,
		newMatcher: newMatcher,
		hosts:      hosts,
		state:      state,
		dns:        dns,
		logger:     logger,
		now:        time.Now,
		interval:   config.MinPollInterval,
	}
}

// WithRecorder journals decision changes.
func (r *Reconciler) WithRecorder(rec domain.TransitionRecorder) *Reconciler {
	r.recorder = rec
	return r
}

// WithConfigChanges wakes the loop early when ch fires.
func (r *Reconciler) WithConfigChanges(ch <-chan struct{}) *Reconciler {
	r.changes = ch
	return r
}

// Run ticks until ctx is canceled. Cancellation is only observed between ticks;
// a tick in progress runs to completion with its own uncancelable context.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("daemon started",
		zap.String("config", r.config.ConfigPath),
		zap.String("hosts", r.hosts.Path()),
		zap.String("version", r.config.Version),
		zap.Bool("once", r.config.Once))

	tickCtx := context.WithoutCancel(ctx)
	for {
		r.Tick(tickCtx)
		if r.config.Once {
			return nil
		}

		timer := time.NewTimer(r.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("daemon stopping")
			return nil

		case <-timer.C:

		case <-r.changes:
			timer.Stop()
			r.logger.Debug("config changed, ticking early")
		}
	}
}

// Tick runs one reconciliation pass and returns the state it wrote.
func (r *Reconciler) Tick(ctx context.Context) domain.DaemonState {
	now := r.now()
	cfg := r.loadConfig()
	r.interval = cfg.PollInterval()

	r.ensureMatcher(cfg.Process)
	activity := r.matcher.Poll(ctx)
	metrics.IncTick()
	metrics.ObserveActivity(activity.Running, activity.Active, activity.Evidence)

	decision := policy.Decide(cfg, activity.Active, now)
	metrics.SetDecision(decision.ShouldBlock, decision.ReasonStrings())

	domains, invalid := policy.ExpandDomains(cfg.Blocklist, cfg.IncludeWWW)
	for _, err := range invalid {
		r.logger.Warn("invalid_domain_ignored", zap.Error(err))
	}

	state := domain.DaemonState{
		TimestampUnix:       float64(now.UnixNano()) / 1e9,
		Block:               decision.ShouldBlock,
		ProcessRunning:      activity.Running,
		ProcessActive:       activity.Active,
		Evidence:            activity.Evidence,
		Reasons:             decision.ReasonStrings(),
		Enabled:             cfg.Enabled,
		RewardMode:          cfg.RewardMode,
		PollIntervalSeconds: cfg.PollIntervalSeconds,
		DaemonVersion:       r.config.Version,
		CompatVersion:       r.config.CompatVersion,
	}
	if err := r.state.Write(state); err != nil {
		r.logger.Warn("state_write_failed", zap.Error(err))
	}

	block := decision.ShouldBlock
	if r.lastBlock != nil && *r.lastBlock == block && slices.Equal(domains, r.lastDomains) {
		return state
	}

	// A failed apply is retried every tick; log and journal the change once.
	fresh := r.tried == nil || *r.tried != block || !slices.Equal(domains, r.triedDoms)
	if fresh {
		r.logger.Info("state_update",
			zap.Bool("block", block),
			zap.Strings("reasons", decision.ReasonStrings()),
			zap.Bool("process_running", activity.Running),
			zap.Bool("process_active", activity.Active),
			zap.Strings("evidence", activity.Evidence))
	}

	changed, err := r.applyHosts(ctx, domains, block)
	if fresh {
		r.record(ctx, now, decision, activity, len(domains), changed)
	}
	r.tried = &block
	r.triedDoms = domains
	if err != nil {
		return state
	}

	r.lastBlock = &block
	r.lastDomains = domains
	return state
}

// loadConfig fails open: an unreadable config disables gating for this tick.
func (r *Reconciler) loadConfig() config.Config {
	cfg, err := r.load(r.config.ConfigPath)
	if err == nil {
		return cfg
	}
	var ce *domain.ConfigError
	if errors.As(err, &ce) && ce.Missing {
		r.logger.Warn("config_missing_fail_open", zap.String("path", r.config.ConfigPath))
	} else {
		r.logger.Warn("config_load_failed", zap.String("path", r.config.ConfigPath), zap.Error(err))
	}
	return config.FailOpen()
}

// ensureMatcher rebuilds the matcher when the process config changed, dropping its history.
func (r *Reconciler) ensureMatcher(pc config.ProcessConfig) {
	if r.matcher != nil && r.matcher.Config() == pc {
		return
	}
	m, err := r.newMatcher(pc)
	if err != nil {
		r.logger.Error("matcher_config_invalid", zap.Error(err))
		if r.matcher != nil {
			return
		}
		if m, err = r.newMatcher(config.DefaultProcessConfig()); err != nil {
			panic(err) // default watch pattern always compiles
		}
	}
	if r.matcher != nil {
		r.logger.Info("process_config_changed")
	}
	r.matcher = m
}

// applyHosts rewrites the managed block and flushes DNS on change.
// Errors are logged here and returned so the caller retries next tick.
func (r *Reconciler) applyHosts(ctx context.Context, domains []string, block bool) (bool, error) {
	changed, err := r.hosts.Apply(domains, block)
	switch {
	case errors.Is(err, fs.ErrPermission):
		metrics.IncHostsError("permission")
		r.logger.Error("hosts_permission_error", zap.String("path", r.hosts.Path()), zap.Error(err))
		return false, err
	case err != nil:
		metrics.IncHostsError("io")
		r.logger.Error("hosts_update_failed", zap.String("path", r.hosts.Path()), zap.Error(err))
		return false, err
	case changed:
		r.dns.Flush(ctx)
		metrics.IncHostsUpdate()
		r.logger.Info("hosts_updated", zap.Bool("block", block), zap.Int("domains", len(domains)))
	}
	return changed, nil
}

func (r *Reconciler) record(ctx context.Context, now time.Time, d domain.BlockDecision, a domain.Activity, domains int, changed bool) {
	if r.recorder == nil {
		return
	}
	err := r.recorder.Record(ctx, domain.Transition{
		TimestampUnix: now.Unix(),
		Block:         d.ShouldBlock,
		Reasons:       d.ReasonStrings(),
		Evidence:      a.Evidence,
		Domains:       domains,
		HostsChanged:  changed,
	})
	if err != nil {
		r.logger.Warn("history_record_failed", zap.Error(err))
	}
}
