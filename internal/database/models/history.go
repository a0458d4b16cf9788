package models

import (
	"context"
	"fmt"
	"time"

	"github.com/quorumbot/quorum/internal/database/dbretry"
	"github.com/quorumbot/quorum/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// HistoryModel handles database operations for the mute history ledger.
type HistoryModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewHistory creates a new history model instance.
func NewHistory(db *bun.DB, logger *zap.Logger) *HistoryModel {
	return &HistoryModel{
		db:     db,
		logger: logger.Named("db_history"),
	}
}

// AppendEntry records a serious mute against a user. Entries are keyed
// by vote id, so re-recording the same vote is a no-op and repeated
// escalations inside one window count as a single offense.
func (m *HistoryModel) AppendEntry(ctx context.Context, entry *types.MuteHistoryEntry) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(entry).
			On("CONFLICT (vote_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to append history entry: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Recorded mute history entry",
		zap.String("voteID", entry.VoteID.String()),
		zap.Uint64("userID", entry.UserID),
		zap.Int("level", entry.Level))

	return nil
}

// RecentCount counts a user's offenses inside the history window.
func (m *HistoryModel) RecentCount(
	ctx context.Context, guildID, userID uint64, since time.Time,
) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		count, err := m.db.NewSelect().
			Model((*types.MuteHistoryEntry)(nil)).
			Where("guild_id = ?", guildID).
			Where("user_id = ?", userID).
			Where("recorded_at >= ?", since).
			Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count history entries: %w", err)
		}

		return count, nil
	})
}

// Prune removes entries older than the cutoff. Pruned entries no longer
// contribute to anyone's escalation level.
func (m *HistoryModel) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	var pruned int

	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		result, err := m.db.NewDelete().
			Model((*types.MuteHistoryEntry)(nil)).
			Where("recorded_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to prune history entries: %w", err)
		}

		if rows, err := result.RowsAffected(); err == nil {
			pruned = int(rows)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	if pruned > 0 {
		m.logger.Debug("Pruned mute history", zap.Int("entries", pruned))
	}

	return pruned, nil
}
