// Package executor applies punishments once a vote's support crosses a
// threshold. Every decision is derived from the actions already
// persisted on the vote, so replaying a sweep never refires one.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quorumbot/quorum/internal/database/types"
	"github.com/quorumbot/quorum/internal/database/types/enum"
	"github.com/quorumbot/quorum/internal/moderation/escalation"
	"github.com/quorumbot/quorum/internal/platform"
	"go.uber.org/zap"
)

// Store is the vote persistence surface the executor needs.
type Store interface {
	AppendAction(ctx context.Context, vote *types.ModerationVote, action types.PunishmentAction) error
	CompleteVote(ctx context.Context, voteID uuid.UUID, reason enum.CompletionReason) error
	SetMuteState(ctx context.Context, voteID uuid.UUID, channelID uint64, endTime time.Time) error
	GetActiveVotesForMessage(ctx context.Context, guildID, targetMessageID uint64) ([]*types.ModerationVote, error)
}

// HistoryStore records serious mutes for future escalation.
type HistoryStore interface {
	AppendEntry(ctx context.Context, entry *types.MuteHistoryEntry) error
}

// SettingsStore supplies per-guild archive configuration.
type SettingsStore interface {
	GetGuildSettings(ctx context.Context, guildID uint64) (*types.GuildSettings, error)
}

// Archiver preserves a message before it is deleted.
type Archiver interface {
	Archive(ctx context.Context, vote *types.ModerationVote, msg *platform.Message, archiveChannelID uint64) error
}

// Scheduler receives applied mutes for the in-process fast-path unmute
// timer. May be nil when no fast path is wanted.
type Scheduler interface {
	ScheduleUnmute(vote *types.ModerationVote)
}

// Announcer writes the terminal summary for votes the executor completes
// on behalf of another vote. The worker finalizes the vote it is
// processing itself; siblings completed here would otherwise keep a
// live announcement forever. May be nil.
type Announcer interface {
	Finalize(ctx context.Context, vote *types.ModerationVote, count int) error
}

// Executor applies threshold-driven punishments.
type Executor struct {
	store     Store
	history   HistoryStore
	settings  SettingsStore
	archiver  Archiver
	scheduler Scheduler
	announcer Announcer
	client    platform.Client
	engine    *escalation.Engine
	logger    *zap.Logger
}

// New creates a punishment executor. scheduler and announcer may be nil.
func New(
	store Store, history HistoryStore, settings SettingsStore, archiver Archiver,
	scheduler Scheduler, announcer Announcer, client platform.Client,
	engine *escalation.Engine, logger *zap.Logger,
) *Executor {
	return &Executor{
		store:     store,
		history:   history,
		settings:  settings,
		archiver:  archiver,
		scheduler: scheduler,
		announcer: announcer,
		client:    client,
		engine:    engine,
		logger:    logger.Named("executor"),
	}
}

// Execute applies whatever the current support level earns. Safe to
// call every sweep; recorded actions make repeats no-ops.
func (e *Executor) Execute(ctx context.Context, vote *types.ModerationVote, count int, now time.Time) error {
	switch vote.Type {
	case enum.VoteTypeDelete:
		return e.executeDelete(ctx, vote, count, now)
	case enum.VoteTypeMute, enum.VoteTypeSeriousMute:
		return e.executeMute(ctx, vote, count, now)
	default:
		return fmt.Errorf("unknown vote type %d", vote.Type)
	}
}

// executeDelete deletes the target once the threshold is reached, or
// hands the delete to a concurrent mute vote on the same message.
func (e *Executor) executeDelete(ctx context.Context, vote *types.ModerationVote, count int, now time.Time) error {
	if vote.HasAction(enum.ActionTypeDelete) || vote.DeleteDeferred() {
		return nil
	}

	if count < e.engine.DeleteThreshold(now) {
		return nil
	}

	// Deleting the message now would strip the reactions a concurrent
	// mute vote is still counting, so the delete waits for it.
	if conflict := e.muteConflict(ctx, vote); conflict != nil {
		if err := e.store.AppendAction(ctx, vote, types.PunishmentAction{
			Type:          enum.ActionTypeDeleteDeferred,
			Result:        enum.ActionResultApplied,
			Timestamp:     now,
			ReactionCount: count,
		}); err != nil {
			return err
		}

		e.logger.Info("Deferred delete to concurrent mute vote",
			zap.String("key", vote.Key().String()),
			zap.String("muteKey", conflict.Key().String()))

		return nil
	}

	if err := e.deleteTarget(ctx, vote, count, now, enum.ActionTypeDelete); err != nil {
		return err
	}

	return e.store.CompleteVote(ctx, vote.ID, enum.CompletionReasonExecuted)
}

// executeMute applies the difference between what the current count
// earns and what previous sweeps already applied.
func (e *Executor) executeMute(ctx context.Context, vote *types.ModerationVote, count int, now time.Time) error {
	// Serious votes can delete the target early, before any mute lands.
	if vote.Type == enum.VoteTypeSeriousMute {
		if err := e.maybeEarlyDelete(ctx, vote, count, now); err != nil {
			return err
		}
	}

	var newTotal, level int

	if vote.Type == enum.VoteTypeSeriousMute {
		level = e.engine.SeriousLevel(count, vote.SeriousBase, vote.InitialPrev)
		newTotal = e.engine.SeriousDuration(level)
	} else {
		newTotal = e.engine.MuteDuration(count, now)
	}

	applied := vote.AppliedMuteMinutes()

	// Dropped reactions never claw back minutes already applied.
	additional := newTotal - applied
	if additional <= 0 {
		return nil
	}

	muteChannelID, err := e.client.ParentTextChannel(ctx, vote.TargetChannelID)
	if err != nil {
		return fmt.Errorf("failed to resolve mute channel: %w", err)
	}

	if err := e.client.DenySendMessages(ctx, muteChannelID, vote.TargetUserID); err != nil {
		return fmt.Errorf("failed to apply mute: %w", err)
	}

	// Extensions stack on the current end, fresh mutes start from now.
	base := now
	if vote.MuteEndTime != nil && vote.MuteEndTime.After(now) {
		base = *vote.MuteEndTime
	}

	endTime := base.Add(time.Duration(additional) * time.Minute)

	if err := e.store.SetMuteState(ctx, vote.ID, muteChannelID, endTime); err != nil {
		return err
	}

	vote.MuteChannelID = muteChannelID
	vote.MuteEndTime = &endTime
	vote.MuteStatus = enum.MuteStatusActive

	if err := e.store.AppendAction(ctx, vote, types.PunishmentAction{
		Type:            enum.ActionTypeMute,
		Result:          enum.ActionResultApplied,
		Timestamp:       now,
		ReactionCount:   count,
		DurationMinutes: additional,
		TotalMinutes:    applied + additional,
		Level:           level,
	}); err != nil {
		return err
	}

	if vote.Type == enum.VoteTypeSeriousMute {
		// Recorded once per vote; later escalations hit the dedup key.
		if err := e.history.AppendEntry(ctx, &types.MuteHistoryEntry{
			VoteID:          vote.ID,
			GuildID:         vote.GuildID,
			UserID:          vote.TargetUserID,
			ChannelID:       muteChannelID,
			Type:            vote.Type,
			Level:           level,
			DurationMinutes: applied + additional,
			RecordedAt:      now,
		}); err != nil {
			return err
		}
	}

	if e.scheduler != nil {
		e.scheduler.ScheduleUnmute(vote)
	}

	e.logger.Info("Applied mute",
		zap.String("key", vote.Key().String()),
		zap.Uint64("userID", vote.TargetUserID),
		zap.Int("additionalMinutes", additional),
		zap.Int("totalMinutes", applied+additional),
		zap.Int("level", level),
		zap.Time("endTime", endTime))

	return nil
}

// maybeEarlyDelete removes the target message once enough reactors
// agree, without waiting for the mute threshold.
func (e *Executor) maybeEarlyDelete(ctx context.Context, vote *types.ModerationVote, count int, now time.Time) error {
	threshold := e.engine.EarlyDeleteThreshold()
	if threshold == 0 || count < threshold {
		return nil
	}

	if vote.HasAction(enum.ActionTypeDeleteNow) || !vote.TargetExists {
		return nil
	}

	return e.deleteTarget(ctx, vote, count, now, enum.ActionTypeDeleteNow)
}

// HandleExpiry runs the terminal transition when a vote's window has
// closed. Returns false when the vote must stay active, which happens
// for a delete vote whose deferred delete still waits on a mute vote.
func (e *Executor) HandleExpiry(ctx context.Context, vote *types.ModerationVote, count int, now time.Time) (bool, error) {
	if vote.Type == enum.VoteTypeDelete && vote.DeleteDeferred() {
		if conflict := e.muteConflict(ctx, vote); conflict != nil {
			// The owning mute vote is still running.
			return false, nil
		}

		if err := e.performDeferredDelete(ctx, vote, count, now); err != nil {
			return false, err
		}
	}

	// A closing mute vote takes over any delete deferred to it.
	if vote.Type.IsMuteFamily() {
		if err := e.resolveDeferredSibling(ctx, vote, now); err != nil {
			return false, err
		}
	}

	if err := e.store.CompleteVote(ctx, vote.ID, enum.CompletionReasonExpired); err != nil {
		return false, err
	}

	vote.Status = enum.VoteStatusCompleted
	vote.CompletionReason = enum.CompletionReasonExpired

	return true, nil
}

// HandleTargetGone completes a vote whose target message disappeared.
// Applied mutes stay in force; only the voting stops.
func (e *Executor) HandleTargetGone(ctx context.Context, vote *types.ModerationVote) error {
	if err := e.store.CompleteVote(ctx, vote.ID, enum.CompletionReasonTargetGone); err != nil {
		return err
	}

	vote.Status = enum.VoteStatusCompleted
	vote.CompletionReason = enum.CompletionReasonTargetGone

	e.logger.Info("Completed vote, target message gone",
		zap.String("key", vote.Key().String()))

	return nil
}

// resolveDeferredSibling performs the delete a sibling delete vote
// deferred to this mute vote, then completes the sibling.
func (e *Executor) resolveDeferredSibling(ctx context.Context, muteVote *types.ModerationVote, now time.Time) error {
	votes, err := e.store.GetActiveVotesForMessage(ctx, muteVote.GuildID, muteVote.TargetMessageID)
	if err != nil {
		return err
	}

	for _, sibling := range votes {
		if sibling.Type != enum.VoteTypeDelete || !sibling.DeleteDeferred() {
			continue
		}

		if err := e.performDeferredDelete(ctx, sibling, sibling.ReactionCount, now); err != nil {
			return err
		}

		if err := e.store.CompleteVote(ctx, sibling.ID, enum.CompletionReasonExecuted); err != nil {
			return err
		}

		sibling.Status = enum.VoteStatusCompleted
		sibling.CompletionReason = enum.CompletionReasonExecuted

		// The sibling leaves the active set with this tick, so its
		// terminal announcement edit has to happen here.
		if e.announcer != nil {
			if err := e.announcer.Finalize(ctx, sibling, sibling.ReactionCount); err != nil {
				e.logger.Warn("Failed to finalize sibling announcement",
					zap.String("key", sibling.Key().String()),
					zap.Error(err))
			}
		}
	}

	return nil
}

// performDeferredDelete executes a delete that was previously deferred.
func (e *Executor) performDeferredDelete(ctx context.Context, vote *types.ModerationVote, count int, now time.Time) error {
	if vote.HasAction(enum.ActionTypeDelete) {
		return nil
	}

	return e.deleteTarget(ctx, vote, count, now, enum.ActionTypeDelete)
}

// deleteTarget archives then deletes the target message and records the
// action. A target already gone records AlreadyGone instead of failing.
func (e *Executor) deleteTarget(
	ctx context.Context, vote *types.ModerationVote, count int, now time.Time, actionType enum.ActionType,
) error {
	archived := e.archiveTarget(ctx, vote)

	result := enum.ActionResultApplied

	err := e.client.DeleteMessage(ctx, vote.TargetChannelID, vote.TargetMessageID)

	switch {
	case errors.Is(err, platform.ErrNotFound):
		result = enum.ActionResultAlreadyGone
	case err != nil:
		return fmt.Errorf("failed to delete target message: %w", err)
	}

	vote.TargetExists = false

	if err := e.store.AppendAction(ctx, vote, types.PunishmentAction{
		Type:          actionType,
		Result:        result,
		Timestamp:     now,
		ReactionCount: count,
		Archived:      archived,
	}); err != nil {
		return err
	}

	e.logger.Info("Deleted target message",
		zap.String("key", vote.Key().String()),
		zap.String("action", actionType.String()),
		zap.String("result", result.String()),
		zap.Bool("archived", archived))

	return nil
}

// archiveTarget preserves the target message if the guild enables it.
// Best effort: archival failures never block the delete.
func (e *Executor) archiveTarget(ctx context.Context, vote *types.ModerationVote) bool {
	settings, err := e.settings.GetGuildSettings(ctx, vote.GuildID)
	if err != nil {
		e.logger.Warn("Failed to load guild settings for archival",
			zap.String("key", vote.Key().String()),
			zap.Error(err))

		return false
	}

	if !settings.ArchiveEnabled || settings.ArchiveChannelID == 0 {
		return false
	}

	msg, err := e.client.GetMessage(ctx, vote.TargetChannelID, vote.TargetMessageID)
	if err != nil {
		if !errors.Is(err, platform.ErrNotFound) {
			e.logger.Warn("Failed to fetch target for archival",
				zap.String("key", vote.Key().String()),
				zap.Error(err))
		}

		return false
	}

	if err := e.archiver.Archive(ctx, vote, msg, settings.ArchiveChannelID); err != nil {
		e.logger.Warn("Failed to archive target message",
			zap.String("key", vote.Key().String()),
			zap.Error(err))

		return false
	}

	return true
}

// muteConflict returns an active mute-family vote on the same message.
func (e *Executor) muteConflict(ctx context.Context, vote *types.ModerationVote) *types.ModerationVote {
	votes, err := e.store.GetActiveVotesForMessage(ctx, vote.GuildID, vote.TargetMessageID)
	if err != nil {
		e.logger.Warn("Failed to look up conflicting votes",
			zap.String("key", vote.Key().String()),
			zap.Error(err))

		return nil
	}

	for _, v := range votes {
		if v.ID != vote.ID && v.Type.IsMuteFamily() {
			return v
		}
	}

	return nil
}
