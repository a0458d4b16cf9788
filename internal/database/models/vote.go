package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quorumbot/quorum/internal/database/dbretry"
	"github.com/quorumbot/quorum/internal/database/types"
	"github.com/quorumbot/quorum/internal/database/types/enum"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ErrVoteNotFound is returned when no vote matches the requested key.
var ErrVoteNotFound = errors.New("vote not found")

// VoteModel handles database operations for moderation votes.
type VoteModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewVote creates a new vote model instance.
func NewVote(db *bun.DB, logger *zap.Logger) *VoteModel {
	return &VoteModel{
		db:     db,
		logger: logger.Named("db_vote"),
	}
}

// CreateVote stores a new moderation vote.
func (m *VoteModel) CreateVote(ctx context.Context, vote *types.ModerationVote) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().Model(vote).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create vote: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Created vote",
		zap.String("key", vote.Key().String()),
		zap.String("voteID", vote.ID.String()),
		zap.Uint64("initiatorID", vote.InitiatorID))

	return nil
}

// GetActiveVote retrieves the active vote for a key, if any.
// Returns ErrVoteNotFound when no active vote exists.
func (m *VoteModel) GetActiveVote(ctx context.Context, key types.VoteKey) (*types.ModerationVote, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.ModerationVote, error) {
		vote := new(types.ModerationVote)

		err := m.db.NewSelect().
			Model(vote).
			Where("guild_id = ?", key.GuildID).
			Where("target_message_id = ?", key.TargetMessageID).
			Where("type = ?", key.Type).
			Where("status = ?", enum.VoteStatusActive).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrVoteNotFound
			}

			return nil, fmt.Errorf("failed to get active vote: %w", err)
		}

		return vote, nil
	})
}

// GetActiveVotes retrieves every active vote, ordered by creation time.
func (m *VoteModel) GetActiveVotes(ctx context.Context) ([]*types.ModerationVote, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.ModerationVote, error) {
		var votes []*types.ModerationVote

		err := m.db.NewSelect().
			Model(&votes).
			Where("status = ?", enum.VoteStatusActive).
			Order("start_time ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get active votes: %w", err)
		}

		return votes, nil
	})
}

// GetActiveVotesForMessage retrieves active votes of any type against a
// message. Used to detect conflicting delete and mute votes.
func (m *VoteModel) GetActiveVotesForMessage(
	ctx context.Context, guildID, targetMessageID uint64,
) ([]*types.ModerationVote, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.ModerationVote, error) {
		var votes []*types.ModerationVote

		err := m.db.NewSelect().
			Model(&votes).
			Where("guild_id = ?", guildID).
			Where("target_message_id = ?", targetMessageID).
			Where("status = ?", enum.VoteStatusActive).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get active votes for message: %w", err)
		}

		return votes, nil
	})
}

// AddInitiator merges a new initiator into an existing vote.
// Adding a user who already initiated is a no-op.
func (m *VoteModel) AddInitiator(ctx context.Context, voteID uuid.UUID, userID uint64) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.ModerationVote)(nil)).
			Set("initiators = array_append(initiators, ?)", userID).
			Set("last_updated = ?", time.Now()).
			Where("id = ?", voteID).
			Where("NOT (? = ANY(initiators))", userID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to add initiator: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Merged initiator into vote",
		zap.String("voteID", voteID.String()),
		zap.Uint64("userID", userID))

	return nil
}

// UpdateReactionSnapshot records the latest distinct reactor count and
// whether the target message still existed when it was taken.
func (m *VoteModel) UpdateReactionSnapshot(
	ctx context.Context, voteID uuid.UUID, count int, targetExists bool,
) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.ModerationVote)(nil)).
			Set("reaction_count = ?", count).
			Set("target_exists = ?", targetExists).
			Set("last_updated = ?", time.Now()).
			Where("id = ?", voteID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update reaction snapshot: %w", err)
		}

		return nil
	})
}

// AppendAction persists an executed punishment on the vote record.
// The full action list is written so replays stay idempotent.
func (m *VoteModel) AppendAction(
	ctx context.Context, vote *types.ModerationVote, action types.PunishmentAction,
) error {
	vote.ExecutedActions = append(vote.ExecutedActions, action)
	vote.LastUpdated = time.Now()

	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model(vote).
			Column("executed_actions", "last_updated").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to append action: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Recorded punishment action",
		zap.String("voteID", vote.ID.String()),
		zap.String("action", action.Type.String()),
		zap.String("result", action.Result.String()),
		zap.Int("reactionCount", action.ReactionCount))

	return nil
}

// SetAnnouncement stores the announcement message backing a vote.
func (m *VoteModel) SetAnnouncement(
	ctx context.Context, voteID uuid.UUID, channelID, messageID uint64,
) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.ModerationVote)(nil)).
			Set("announcement_chan_id = ?", channelID).
			Set("announcement_msg_id = ?", messageID).
			Set("last_updated = ?", time.Now()).
			Where("id = ?", voteID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to set announcement: %w", err)
		}

		return nil
	})
}

// CompleteVote moves a vote out of the active state.
func (m *VoteModel) CompleteVote(
	ctx context.Context, voteID uuid.UUID, reason enum.CompletionReason,
) error {
	return m.finishVote(ctx, voteID, enum.VoteStatusCompleted, reason)
}

// FailVote marks a vote as failed so sweeps stop touching it.
func (m *VoteModel) FailVote(
	ctx context.Context, voteID uuid.UUID, reason enum.CompletionReason,
) error {
	return m.finishVote(ctx, voteID, enum.VoteStatusFailed, reason)
}

func (m *VoteModel) finishVote(
	ctx context.Context, voteID uuid.UUID, status enum.VoteStatus, reason enum.CompletionReason,
) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.ModerationVote)(nil)).
			Set("status = ?", status).
			Set("completion_reason = ?", reason).
			Set("last_updated = ?", time.Now()).
			Where("id = ?", voteID).
			Where("status = ?", enum.VoteStatusActive).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to finish vote: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Finished vote",
		zap.String("voteID", voteID.String()),
		zap.String("status", status.String()),
		zap.String("reason", reason.String()))

	return nil
}

// SetMuteState records an applied or extended mute on the vote.
// The end time only ever moves forward.
func (m *VoteModel) SetMuteState(
	ctx context.Context, voteID uuid.UUID, channelID uint64, endTime time.Time,
) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.ModerationVote)(nil)).
			Set("mute_channel_id = ?", channelID).
			Set("mute_end_time = ?", endTime).
			Set("mute_status = ?", enum.MuteStatusActive).
			Set("last_updated = ?", time.Now()).
			Where("id = ?", voteID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to set mute state: %w", err)
		}

		return nil
	})
}

// GetExpiredMutes retrieves votes whose applied mute has passed its end
// time but is still marked active, oldest expiry first.
func (m *VoteModel) GetExpiredMutes(ctx context.Context, now time.Time) ([]*types.ModerationVote, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.ModerationVote, error) {
		var votes []*types.ModerationVote

		err := m.db.NewSelect().
			Model(&votes).
			Where("mute_status = ?", enum.MuteStatusActive).
			Where("mute_end_time <= ?", now).
			Order("mute_end_time ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get expired mutes: %w", err)
		}

		return votes, nil
	})
}

// MarkUnmuted records a successful mute removal.
func (m *VoteModel) MarkUnmuted(ctx context.Context, voteID uuid.UUID) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.ModerationVote)(nil)).
			Set("mute_status = ?", enum.MuteStatusLifted).
			Set("last_unmute_error = ''").
			Set("last_updated = ?", time.Now()).
			Where("id = ?", voteID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark unmuted: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Marked vote unmuted", zap.String("voteID", voteID.String()))

	return nil
}

// RecordUnmuteFailure bumps the attempt counter after a failed removal.
// Once attempts reach the budget the mute is marked failed so sweeps
// stop retrying it.
func (m *VoteModel) RecordUnmuteFailure(
	ctx context.Context, voteID uuid.UUID, removeErr error, maxAttempts int,
) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.ModerationVote)(nil)).
			Set("unmute_attempts = unmute_attempts + 1").
			Set("last_unmute_error = ?", removeErr.Error()).
			Set("mute_status = CASE WHEN unmute_attempts + 1 >= ? THEN ? ELSE mute_status END",
				maxAttempts, enum.MuteStatusFailed).
			Set("last_updated = ?", time.Now()).
			Where("id = ?", voteID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to record unmute failure: %w", err)
		}

		return nil
	})
}
