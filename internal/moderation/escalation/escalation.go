// Package escalation turns reaction counts into punishment decisions:
// delete thresholds, linearly escalating mutes and the history-weighted
// serious mute table.
package escalation

import (
	"math"
	"time"

	"github.com/quorumbot/quorum/internal/setup/config"
)

// Engine evaluates thresholds and durations from the configured presets.
type Engine struct {
	cfg *config.SelfMod
}

// New creates an escalation engine over the configured presets.
func New(cfg *config.SelfMod) *Engine {
	return &Engine{cfg: cfg}
}

// IsDaytime reports whether the instant falls inside the day window at
// the configured UTC offset. A window whose end hour is smaller than
// its start hour crosses midnight.
func (e *Engine) IsDaytime(now time.Time) bool {
	offset := time.Duration(e.cfg.DayNight.UTCOffsetHours) * time.Hour
	hour := now.UTC().Add(offset).Hour()

	start := e.cfg.DayNight.DayStartHour
	end := e.cfg.DayNight.DayEndHour

	if start <= end {
		return hour >= start && hour < end
	}

	// Window crosses midnight, e.g. 06:00 through 02:00 next day.
	return hour >= start || hour < end
}

// DeleteThreshold returns the distinct reactor count required to delete
// the target message at the given instant.
func (e *Engine) DeleteThreshold(now time.Time) int {
	if e.IsDaytime(now) {
		return e.cfg.Delete.Threshold
	}

	return scale(e.cfg.Delete.Threshold, e.cfg.DayNight.NightDeleteMultiplier)
}

// MuteBaseThreshold returns the distinct reactor count required before
// any mute applies at the given instant.
func (e *Engine) MuteBaseThreshold(now time.Time) int {
	if e.IsDaytime(now) {
		return e.cfg.Mute.BaseThreshold
	}

	return scale(e.cfg.Mute.BaseThreshold, e.cfg.DayNight.NightMuteMultiplier)
}

// MuteDuration returns the total mute minutes earned by a reaction
// count at the given instant. Below the base threshold it is zero; at
// the threshold it is the base duration; every reactor past the
// threshold adds the per-vote increment.
func (e *Engine) MuteDuration(count int, now time.Time) int {
	base := e.MuteBaseThreshold(now)
	if count < base {
		return 0
	}

	return e.cfg.Mute.BaseDurationMinutes + (count-base)*e.cfg.Mute.PerVoteIncrementMinutes
}

// SeriousBase returns the reactors-per-level step for a serious mute,
// derived from the mute base threshold at the given instant. Frozen on
// the vote at creation so later day/night flips cannot change it.
func (e *Engine) SeriousBase(now time.Time) int {
	base := e.MuteBaseThreshold(now)

	serious := int(math.Ceil(float64(base) * e.cfg.Serious.ThresholdMultiplier))
	if serious < 1 {
		serious = 1
	}

	return serious
}

// SeriousLevel returns the escalation level for a serious mute: the
// offender's prior offenses plus at least one step for the current vote.
func (e *Engine) SeriousLevel(count, seriousBase, priorOffenses int) int {
	if count < seriousBase {
		return 0
	}

	steps := count / seriousBase
	if steps < 1 {
		steps = 1
	}

	return priorOffenses + steps
}

// SeriousDuration maps a level onto mute minutes using the configured
// table. Levels past the table get the flat overflow duration.
func (e *Engine) SeriousDuration(level int) int {
	if level <= 0 {
		return 0
	}

	table := e.cfg.Serious.LevelTableMinutes
	if level > len(table) {
		return e.cfg.Serious.OverflowMinutes
	}

	return table[level-1]
}

// EarlyDeleteThreshold returns the reactor count that triggers an early
// delete during a serious mute vote, or 0 when disabled.
func (e *Engine) EarlyDeleteThreshold() int {
	if !e.cfg.Serious.EarlyDeleteEnabled {
		return 0
	}

	return e.cfg.Serious.EarlyDeleteThreshold
}

// HistoryWindow returns how far back prior offenses count.
func (e *Engine) HistoryWindow() time.Duration {
	return time.Duration(e.cfg.Serious.HistoryWindowDays) * 24 * time.Hour
}

// scale applies a night multiplier, flooring the result and keeping a
// minimum of one reactor.
func scale(threshold int, multiplier float64) int {
	scaled := int(math.Floor(float64(threshold) * multiplier))
	if scaled < 1 {
		scaled = 1
	}

	return scaled
}
