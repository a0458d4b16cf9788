// Package moderation runs the reconciliation loop that drives active
// votes: snapshot reactions, apply earned punishments, close expired
// windows. The loop is the source of truth; nothing depends on having
// seen a reaction event live.
package moderation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/quorumbot/quorum/internal/database/types"
	"github.com/quorumbot/quorum/internal/database/types/enum"
	"github.com/quorumbot/quorum/internal/moderation/announce"
	"github.com/quorumbot/quorum/internal/moderation/executor"
	"github.com/quorumbot/quorum/internal/moderation/reaction"
	"github.com/quorumbot/quorum/internal/platform"
	"github.com/quorumbot/quorum/internal/setup/config"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// maxConcurrentSweeps bounds per-vote processing inside one tick.
const maxConcurrentSweeps = 4

// prunePeriod is how often the history ledger is pruned.
const prunePeriod = time.Hour

// VoteStore is the vote persistence surface the worker needs.
type VoteStore interface {
	GetActiveVotes(ctx context.Context) ([]*types.ModerationVote, error)
	UpdateReactionSnapshot(ctx context.Context, voteID uuid.UUID, count int, targetExists bool) error
	FailVote(ctx context.Context, voteID uuid.UUID, reason enum.CompletionReason) error
}

// SettingsStore supplies the per-guild vote emoji.
type SettingsStore interface {
	GetGuildSettings(ctx context.Context, guildID uint64) (*types.GuildSettings, error)
}

// HistoryStore exposes ledger pruning.
type HistoryStore interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// Worker periodically reconciles every active vote.
type Worker struct {
	votes     VoteStore
	settings  SettingsStore
	history   HistoryStore
	snapshots *reaction.Service
	exec      *executor.Executor
	announcer *announce.Service
	cfg       *config.SelfMod
	logger    *zap.Logger
	clock     func() time.Time
	lastPrune time.Time
}

// New creates a reconciliation worker.
func New(
	votes VoteStore, settings SettingsStore, history HistoryStore,
	snapshots *reaction.Service, exec *executor.Executor, announcer *announce.Service,
	cfg *config.SelfMod, logger *zap.Logger,
) *Worker {
	return &Worker{
		votes:     votes,
		settings:  settings,
		history:   history,
		snapshots: snapshots,
		exec:      exec,
		announcer: announcer,
		cfg:       cfg,
		logger:    logger.Named("vote_worker"),
		clock:     time.Now,
	}
}

// Start begins the reconciliation loop. Blocks until ctx is canceled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Vote reconciliation worker started",
		zap.Duration("interval", w.cfg.CheckInterval()))

	ticker := time.NewTicker(w.cfg.CheckInterval())
	defer ticker.Stop()

	for {
		w.Sweep(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info("Vote reconciliation worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Sweep reconciles every active vote once.
func (w *Worker) Sweep(ctx context.Context) {
	now := w.clock()

	votes, err := w.votes.GetActiveVotes(ctx)
	if err != nil {
		w.logger.Error("Failed to load active votes", zap.Error(err))
		return
	}

	if len(votes) > 0 {
		w.logger.Debug("Sweeping active votes", zap.Int("count", len(votes)))
	}

	p := pool.New().WithContext(ctx).WithMaxGoroutines(maxConcurrentSweeps)

	for _, vote := range votes {
		p.Go(func(ctx context.Context) error {
			w.processVote(ctx, vote, now)
			return nil
		})
	}

	_ = p.Wait()

	w.maybePrune(ctx, now)
}

// processVote runs one vote through snapshot, execution and expiry.
func (w *Worker) processVote(ctx context.Context, vote *types.ModerationVote, now time.Time) {
	emoji := ""
	if settings, err := w.settings.GetGuildSettings(ctx, vote.GuildID); err == nil {
		emoji = settings.VoteEmoji
	}

	snap, err := w.snapshots.Take(ctx, vote, emoji)
	if err != nil {
		w.handleVoteError(ctx, vote, err, "snapshot")
		return
	}

	if err := w.votes.UpdateReactionSnapshot(ctx, vote.ID, snap.Count, snap.TargetExists); err != nil {
		w.logger.Error("Failed to persist reaction snapshot",
			zap.String("key", vote.Key().String()),
			zap.Error(err))

		return
	}

	vote.ReactionCount = snap.Count
	vote.TargetExists = snap.TargetExists

	// A delete vote loses its purpose with the target; a mute vote
	// keeps collecting support on the announcement message.
	if !snap.TargetExists && vote.Type == enum.VoteTypeDelete &&
		!vote.HasAction(enum.ActionTypeDelete) && !vote.DeleteDeferred() {
		if err := w.exec.HandleTargetGone(ctx, vote); err != nil {
			w.logger.Error("Failed to complete vote after target loss",
				zap.String("key", vote.Key().String()),
				zap.Error(err))

			return
		}

		w.finalize(ctx, vote, snap.Count)

		return
	}

	if err := w.exec.Execute(ctx, vote, snap.Count, now); err != nil {
		w.handleVoteError(ctx, vote, err, "execute")
		return
	}

	// A delete that just executed completed its vote.
	if vote.Type == enum.VoteTypeDelete && vote.HasAction(enum.ActionTypeDelete) {
		vote.Status = enum.VoteStatusCompleted
		vote.CompletionReason = enum.CompletionReasonExecuted
		w.finalize(ctx, vote, snap.Count)

		return
	}

	if vote.IsExpired(now) {
		done, err := w.exec.HandleExpiry(ctx, vote, snap.Count, now)
		if err != nil {
			w.handleVoteError(ctx, vote, err, "expiry")
			return
		}

		if done {
			w.finalize(ctx, vote, snap.Count)
		}

		return
	}

	if err := w.announcer.Update(ctx, vote, snap.Count, now); err != nil {
		w.logger.Debug("Failed to update announcement",
			zap.String("key", vote.Key().String()),
			zap.Error(err))
	}
}

// handleVoteError fails a vote on permission loss and leaves transient
// errors for the next tick.
func (w *Worker) handleVoteError(ctx context.Context, vote *types.ModerationVote, err error, stage string) {
	if errors.Is(err, platform.ErrPermissionDenied) {
		w.logger.Warn("Failing vote, bot lacks permissions",
			zap.String("key", vote.Key().String()),
			zap.String("stage", stage),
			zap.Error(err))

		if failErr := w.votes.FailVote(ctx, vote.ID, enum.CompletionReasonPermission); failErr != nil {
			w.logger.Error("Failed to mark vote failed",
				zap.String("key", vote.Key().String()),
				zap.Error(failErr))

			return
		}

		vote.Status = enum.VoteStatusFailed
		vote.CompletionReason = enum.CompletionReasonPermission
		w.finalize(ctx, vote, vote.ReactionCount)

		return
	}

	w.logger.Error("Vote sweep error, will retry next tick",
		zap.String("key", vote.Key().String()),
		zap.String("stage", stage),
		zap.Error(err))
}

// finalize writes the terminal announcement summary.
func (w *Worker) finalize(ctx context.Context, vote *types.ModerationVote, count int) {
	if err := w.announcer.Finalize(ctx, vote, count); err != nil {
		w.logger.Debug("Failed to finalize announcement",
			zap.String("key", vote.Key().String()),
			zap.Error(err))
	}
}

// maybePrune trims the history ledger at most once per prunePeriod.
func (w *Worker) maybePrune(ctx context.Context, now time.Time) {
	if now.Sub(w.lastPrune) < prunePeriod {
		return
	}

	w.lastPrune = now

	cutoff := now.Add(-time.Duration(w.cfg.Serious.HistoryWindowDays) * 24 * time.Hour)

	pruned, err := w.history.Prune(ctx, cutoff)
	if err != nil {
		w.logger.Error("Failed to prune mute history", zap.Error(err))
		return
	}

	if pruned > 0 {
		w.logger.Info("Pruned mute history", zap.Int("entries", pruned))
	}
}
