package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quorumbot/quorum/internal/database/dbretry"
	"github.com/quorumbot/quorum/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// SettingModel handles database operations for guild settings.
type SettingModel struct {
	db     *bun.DB
	logger *zap.Logger
	mu     sync.Mutex
	cache  map[uint64]*types.GuildSettings
}

// NewSetting creates a SettingModel with database access.
func NewSetting(db *bun.DB, logger *zap.Logger) *SettingModel {
	return &SettingModel{
		db:     db,
		logger: logger.Named("db_setting"),
		cache:  make(map[uint64]*types.GuildSettings),
	}
}

// GetGuildSettings retrieves settings for a guild, creating defaults on
// first access. Results are cached briefly per guild.
func (r *SettingModel) GetGuildSettings(ctx context.Context, guildID uint64) (*types.GuildSettings, error) {
	r.mu.Lock()
	if cached, ok := r.cache[guildID]; ok && !cached.NeedsRefresh() {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	settings, err := dbretry.Operation(ctx, func(ctx context.Context) (*types.GuildSettings, error) {
		settings := &types.GuildSettings{
			GuildID:   guildID,
			UpdatedAt: time.Now(),
		}

		err := r.db.NewSelect().Model(settings).
			WherePK().
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// Create default settings if none exist
				_, err = r.db.NewInsert().Model(settings).Exec(ctx)
				if err != nil {
					return nil, fmt.Errorf("failed to create guild settings: %w (guildID=%d)", err, guildID)
				}
			} else {
				return nil, fmt.Errorf("failed to get guild settings: %w (guildID=%d)", err, guildID)
			}
		}

		return settings, nil
	})
	if err != nil {
		return nil, err
	}

	settings.UpdateRefreshTime()

	r.mu.Lock()
	r.cache[guildID] = settings
	r.mu.Unlock()

	return settings, nil
}

// SaveGuildSettings updates or creates guild settings and refreshes the cache.
func (r *SettingModel) SaveGuildSettings(ctx context.Context, settings *types.GuildSettings) error {
	settings.UpdatedAt = time.Now()

	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().Model(settings).
			On("CONFLICT (guild_id) DO UPDATE").
			Set("delete_role_ids = EXCLUDED.delete_role_ids").
			Set("mute_role_ids = EXCLUDED.mute_role_ids").
			Set("serious_role_ids = EXCLUDED.serious_role_ids").
			Set("allowed_channel_ids = EXCLUDED.allowed_channel_ids").
			Set("archive_channel_id = EXCLUDED.archive_channel_id").
			Set("archive_enabled = EXCLUDED.archive_enabled").
			Set("vote_emoji = EXCLUDED.vote_emoji").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to save guild settings: %w (guildID=%d)", err, settings.GuildID)
		}

		return nil
	})
	if err != nil {
		return err
	}

	settings.UpdateRefreshTime()

	r.mu.Lock()
	r.cache[settings.GuildID] = settings
	r.mu.Unlock()

	r.logger.Debug("Saved guild settings", zap.Uint64("guildID", settings.GuildID))

	return nil
}
