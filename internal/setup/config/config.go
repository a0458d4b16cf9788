package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
)

// Current version of the config file.
const (
	CurrentCommonVersion = 1
	CurrentBotVersion    = 1
)

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig
	Bot    BotConfig
}

// CommonConfig contains configuration shared by every process.
type CommonConfig struct {
	// Version of the common config.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
}

// BotConfig contains Discord bot specific configuration.
type BotConfig struct {
	// Version of the bot config.
	Version int `koanf:"version"`
	// Discord configuration.
	Discord Discord `koanf:"discord"`
	// Self-moderation vote engine configuration.
	SelfMod SelfMod `koanf:"self_moderation"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"`
	User         string `koanf:"user"`
	Password     string `koanf:"password"`
	DBName       string `koanf:"db_name"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	// Connection lifetime limits in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// Discord contains the bot token.
type Discord struct {
	Token string `koanf:"token"`
}

// SelfMod configures the vote engine: voting windows, sweep cadences,
// escalation presets and archival limits.
type SelfMod struct {
	// Voting window applied to every vote type, in minutes.
	VoteDurationMinutes int `koanf:"vote_duration_minutes"`
	// Reconciliation sweep interval in seconds.
	CheckIntervalSeconds int `koanf:"check_interval_seconds"`
	// Expired-mute sweep interval in seconds.
	MuteCheckIntervalSeconds int `koanf:"mute_check_interval_seconds"`
	// Bounded retries for removing an expired mute.
	MaxUnmuteAttempts int `koanf:"max_unmute_attempts"`
	// Re-check the permission overwrite after removal to confirm it is gone.
	VerifyUnmute bool `koanf:"verify_unmute"`

	DayNight DayNight `koanf:"day_night"`
	Delete   Delete   `koanf:"delete"`
	Mute     Mute     `koanf:"mute"`
	Serious  Serious  `koanf:"serious_mute"`
	Archive  Archive  `koanf:"archive"`
}

// DayNight configures the day/night cutover used to soften thresholds
// during low-traffic hours.
type DayNight struct {
	// Hour the day window opens, local to the configured offset.
	DayStartHour int `koanf:"day_start_hour"`
	// Hour the day window closes. A value smaller than the start hour
	// means the window crosses midnight.
	DayEndHour int `koanf:"day_end_hour"`
	// Offset from UTC in hours used to evaluate the window.
	UTCOffsetHours int `koanf:"utc_offset_hours"`
	// Night thresholds are the day values scaled by these multipliers.
	NightDeleteMultiplier float64 `koanf:"night_delete_multiplier"`
	NightMuteMultiplier   float64 `koanf:"night_mute_multiplier"`
}

// Delete configures the delete vote type.
type Delete struct {
	// Distinct reactors required to delete the target message (day value).
	Threshold int `koanf:"threshold"`
}

// Mute configures the linear escalation applied to mute votes.
type Mute struct {
	// Minutes applied when the base threshold is first reached.
	BaseDurationMinutes int `koanf:"base_duration_minutes"`
	// Distinct reactors required before any mute applies (day value).
	BaseThreshold int `koanf:"base_threshold"`
	// Additional minutes per reactor beyond the base threshold.
	PerVoteIncrementMinutes int `koanf:"per_vote_increment_minutes"`
}

// Serious configures the serious mute variant.
type Serious struct {
	// The serious threshold is the mute base threshold scaled up by this.
	ThresholdMultiplier float64 `koanf:"threshold_multiplier"`
	// Delete the target message early once this many distinct reactors agree.
	EarlyDeleteEnabled   bool `koanf:"early_delete_enabled"`
	EarlyDeleteThreshold int  `koanf:"early_delete_threshold"`
	// Days of prior serious mutes counted toward the offender's level.
	HistoryWindowDays int `koanf:"history_window_days"`
	// Minutes per level. Levels beyond the table get the overflow value.
	LevelTableMinutes []int `koanf:"level_table_minutes"`
	OverflowMinutes   int   `koanf:"overflow_minutes"`
}

// Archive configures best-effort attachment preservation.
type Archive struct {
	// Per-attachment download timeout in seconds.
	DownloadTimeoutSeconds int `koanf:"download_timeout_seconds"`
	// Mid-stream byte cap. Downloads past this are aborted and skipped.
	MaxAttachmentBytes int64 `koanf:"max_attachment_bytes"`
	// Concurrent downloads per archived message.
	MaxConcurrentDownloads int64 `koanf:"max_concurrent_downloads"`
}

// VoteDuration returns the voting window.
func (s *SelfMod) VoteDuration() time.Duration {
	return time.Duration(s.VoteDurationMinutes) * time.Minute
}

// CheckInterval returns the reconciliation sweep interval.
func (s *SelfMod) CheckInterval() time.Duration {
	return time.Duration(s.CheckIntervalSeconds) * time.Second
}

// MuteCheckInterval returns the expired-mute sweep interval.
func (s *SelfMod) MuteCheckInterval() time.Duration {
	return time.Duration(s.MuteCheckIntervalSeconds) * time.Second
}

// LoadConfig loads the configuration from the specified file.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List config paths to search
	configPaths := []string{
		".quorum",
		homeDir + "/.quorum/config",
		"/etc/quorum/config",
		"/app/config",
		"config",
		".",
	}

	// Load all config files
	var usedConfigPath string

	configFiles := []string{"common", "bot"}
	for _, configName := range configFiles {
		configLoaded := false

		for _, path := range configPaths {
			configPath := fmt.Sprintf("%s/%s.toml", path, configName)
			if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
				configLoaded = true

				if usedConfigPath == "" {
					usedConfigPath = path
				}

				break
			}
		}

		if !configLoaded {
			return nil, "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, configName)
		}
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Check versions for each config file
	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("bot", config.Bot.Version, CurrentBotVersion); err != nil {
		return nil, "", err
	}

	return &config, usedConfigPath, nil
}

// checkConfigVersion validates a config file's version field.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf("%w: %s.toml has version %d, expected %d",
			ErrConfigVersionMismatch, name, current, expected)
	}

	return nil
}
