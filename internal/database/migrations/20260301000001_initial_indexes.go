package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			-- One active vote per key; terminal votes stay behind without
			-- blocking a fresh vote for the same message and type
			CREATE UNIQUE INDEX IF NOT EXISTS idx_moderation_votes_active_key
			ON moderation_votes (guild_id, target_message_id, type)
			WHERE status = 0;

			-- Reconciliation sweeps scan active votes oldest first
			CREATE INDEX IF NOT EXISTS idx_moderation_votes_active
			ON moderation_votes (start_time ASC)
			WHERE status = 0;

			-- Conflicting vote lookup per target message
			CREATE INDEX IF NOT EXISTS idx_moderation_votes_message
			ON moderation_votes (guild_id, target_message_id)
			WHERE status = 0;

			-- Expired mute sweeps scan by end time
			CREATE INDEX IF NOT EXISTS idx_moderation_votes_mute_expiry
			ON moderation_votes (mute_end_time ASC)
			WHERE mute_status = 1;

			-- History window counts per offender
			CREATE INDEX IF NOT EXISTS idx_mute_history_user_time
			ON mute_history_entries (guild_id, user_id, recorded_at DESC);
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create initial indexes: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			DROP INDEX IF EXISTS idx_mute_history_user_time;
			DROP INDEX IF EXISTS idx_moderation_votes_mute_expiry;
			DROP INDEX IF EXISTS idx_moderation_votes_message;
			DROP INDEX IF EXISTS idx_moderation_votes_active;
			DROP INDEX IF EXISTS idx_moderation_votes_active_key;
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop initial indexes: %w", err)
		}

		return nil
	})
}
