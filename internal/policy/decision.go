// Package policy decides whether the blocklist should be enforced.
// Activity, the manual timer and daily time windows each contribute a reason.
package policy

import (
	"time"

	"github.com/eliteGoblin/focusd/xgate/internal/config"
	"github.com/eliteGoblin/focusd/xgate/internal/domain"
)

// ActivityBlocks applies the reward-mode inversion to the activity signal.
// Reward mode blocks while the focus process is idle; normal mode blocks while it works.
func ActivityBlocks(cfg config.Config, processActive bool) bool {
	if cfg.RewardMode {
		return !processActive
	}
	return processActive
}

// Decide combines activity, timer and time windows into a single decision.
// A disabled config never blocks.
func Decide(cfg config.Config, processActive bool, now time.Time) domain.BlockDecision {
	if !cfg.Enabled {
		return domain.BlockDecision{Reasons: []domain.Reason{}}
	}

	d := domain.BlockDecision{
		ActivityBlockActive: ActivityBlocks(cfg, processActive),
		TimerBlockActive:    cfg.TimerActive(now),
		TimeBlockActive:     AnyWindowActive(cfg.TimeBlocks, now),
	}

	d.Reasons = make([]domain.Reason, 0, 3)
	if d.TimerBlockActive {
		d.Reasons = append(d.Reasons, domain.ReasonTimer)
	}
	if d.TimeBlockActive {
		d.Reasons = append(d.Reasons, domain.ReasonTimeBlock)
	}
	if d.ActivityBlockActive {
		d.Reasons = append(d.Reasons, domain.ReasonActivity)
	}
	d.ShouldBlock = d.TimerBlockActive || d.TimeBlockActive || d.ActivityBlockActive
	return d
}
