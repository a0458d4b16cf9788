package escalation_test

import (
	"testing"
	"time"

	"github.com/quorumbot/quorum/internal/moderation/escalation"
	"github.com/quorumbot/quorum/internal/setup/config"
	"github.com/stretchr/testify/assert"
)

func testConfig() *config.SelfMod {
	return &config.SelfMod{
		VoteDurationMinutes:      10,
		CheckIntervalSeconds:     30,
		MuteCheckIntervalSeconds: 120,
		MaxUnmuteAttempts:        5,
		DayNight: config.DayNight{
			DayStartHour:          6,
			DayEndHour:            2,
			UTCOffsetHours:        8,
			NightDeleteMultiplier: 0.7,
			NightMuteMultiplier:   0.75,
		},
		Delete: config.Delete{Threshold: 10},
		Mute: config.Mute{
			BaseDurationMinutes:     10,
			BaseThreshold:           10,
			PerVoteIncrementMinutes: 5,
		},
		Serious: config.Serious{
			ThresholdMultiplier:  1.5,
			EarlyDeleteEnabled:   true,
			EarlyDeleteThreshold: 5,
			HistoryWindowDays:    15,
			LevelTableMinutes:    []int{10, 20, 30, 60, 120, 240, 360, 480, 600},
			OverflowMinutes:      720,
		},
	}
}

// localTime builds an instant whose hour at UTC+8 equals the given hour.
func localTime(hour int) time.Time {
	return time.Date(2026, 3, 1, hour-8+24, 0, 0, 0, time.UTC)
}

func TestIsDaytime(t *testing.T) {
	t.Parallel()

	engine := escalation.New(testConfig())

	tests := []struct {
		name string
		hour int
		want bool
	}{
		{name: "morning opens the window", hour: 6, want: true},
		{name: "midday", hour: 14, want: true},
		{name: "just before midnight", hour: 23, want: true},
		{name: "past midnight still day", hour: 1, want: true},
		{name: "window closes at two", hour: 2, want: false},
		{name: "deep night", hour: 4, want: false},
		{name: "just before the window opens", hour: 5, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, engine.IsDaytime(localTime(tt.hour)))
		})
	}
}

func TestDeleteThreshold(t *testing.T) {
	t.Parallel()

	engine := escalation.New(testConfig())

	assert.Equal(t, 10, engine.DeleteThreshold(localTime(12)))
	assert.Equal(t, 7, engine.DeleteThreshold(localTime(3)))
}

func TestMuteDuration(t *testing.T) {
	t.Parallel()

	engine := escalation.New(testConfig())
	day := localTime(12)
	night := localTime(3)

	tests := []struct {
		name  string
		count int
		now   time.Time
		want  int
	}{
		{name: "below threshold earns nothing", count: 9, now: day, want: 0},
		{name: "threshold earns the base", count: 10, now: day, want: 10},
		{name: "each extra reactor adds the increment", count: 13, now: day, want: 25},
		{name: "night threshold is softened", count: 7, now: night, want: 10},
		{name: "night increments stack the same", count: 9, now: night, want: 20},
		{name: "night below softened threshold", count: 6, now: night, want: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, engine.MuteDuration(tt.count, tt.now))
		})
	}
}

func TestSeriousBase(t *testing.T) {
	t.Parallel()

	engine := escalation.New(testConfig())

	// ceil(10 * 1.5) by day, ceil(7 * 1.5) by night.
	assert.Equal(t, 15, engine.SeriousBase(localTime(12)))
	assert.Equal(t, 11, engine.SeriousBase(localTime(3)))
}

func TestSeriousLevel(t *testing.T) {
	t.Parallel()

	engine := escalation.New(testConfig())

	tests := []struct {
		name          string
		count         int
		base          int
		priorOffenses int
		want          int
	}{
		{name: "below base is no level", count: 14, base: 15, priorOffenses: 3, want: 0},
		{name: "first offense at base", count: 15, base: 15, priorOffenses: 0, want: 1},
		{name: "double step from count", count: 30, base: 15, priorOffenses: 0, want: 2},
		{name: "history stacks on top", count: 15, base: 15, priorOffenses: 4, want: 5},
		{name: "history plus multiple steps", count: 45, base: 15, priorOffenses: 2, want: 5},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, engine.SeriousLevel(tt.count, tt.base, tt.priorOffenses))
		})
	}
}

func TestSeriousDuration(t *testing.T) {
	t.Parallel()

	engine := escalation.New(testConfig())

	tests := []struct {
		name  string
		level int
		want  int
	}{
		{name: "zero level is no mute", level: 0, want: 0},
		{name: "first level", level: 1, want: 10},
		{name: "table midpoint", level: 5, want: 120},
		{name: "table end", level: 9, want: 600},
		{name: "past the table is flat", level: 10, want: 720},
		{name: "far past the table stays flat", level: 25, want: 720},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, engine.SeriousDuration(tt.level))
		})
	}
}

func TestEarlyDeleteThreshold(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	assert.Equal(t, 5, escalation.New(cfg).EarlyDeleteThreshold())

	cfg.Serious.EarlyDeleteEnabled = false
	assert.Equal(t, 0, escalation.New(cfg).EarlyDeleteThreshold())
}

func TestHistoryWindow(t *testing.T) {
	t.Parallel()

	engine := escalation.New(testConfig())
	assert.Equal(t, 15*24*time.Hour, engine.HistoryWindow())
}
