// Package unmute lifts expired mutes. The durable sweep over the vote
// store is the source of truth; an in-process timer provides a faster
// path that only touches the platform, never the database, so the two
// always converge.
package unmute

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quorumbot/quorum/internal/database/types"
	"github.com/quorumbot/quorum/internal/platform"
	"github.com/quorumbot/quorum/internal/setup/config"
	"go.uber.org/zap"
)

// Store is the mute persistence surface the worker needs.
type Store interface {
	GetExpiredMutes(ctx context.Context, now time.Time) ([]*types.ModerationVote, error)
	MarkUnmuted(ctx context.Context, voteID uuid.UUID) error
	RecordUnmuteFailure(ctx context.Context, voteID uuid.UUID, removeErr error, maxAttempts int) error
}

// Worker reconciles expired mutes against the platform.
type Worker struct {
	store  Store
	client platform.Client
	cfg    *config.SelfMod
	logger *zap.Logger
	clock  func() time.Time

	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

// New creates an unmute worker.
func New(store Store, client platform.Client, cfg *config.SelfMod, logger *zap.Logger) *Worker {
	return &Worker{
		store:  store,
		client: client,
		cfg:    cfg,
		logger: logger.Named("unmute_worker"),
		clock:  time.Now,
		timers: make(map[uuid.UUID]*time.Timer),
	}
}

// Start begins the mute reconciliation loop. Blocks until ctx is canceled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Unmute worker started",
		zap.Duration("interval", w.cfg.MuteCheckInterval()),
		zap.Int("maxAttempts", w.cfg.MaxUnmuteAttempts))

	ticker := time.NewTicker(w.cfg.MuteCheckInterval())
	defer ticker.Stop()
	defer w.cancelTimers()

	for {
		w.Sweep(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info("Unmute worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Sweep lifts every mute past its end time once.
func (w *Worker) Sweep(ctx context.Context) {
	votes, err := w.store.GetExpiredMutes(ctx, w.clock())
	if err != nil {
		w.logger.Error("Failed to load expired mutes", zap.Error(err))
		return
	}

	for _, vote := range votes {
		w.liftMute(ctx, vote)
	}
}

// ScheduleUnmute arms the in-process fast path for an applied mute.
// The timer only removes the permission overwrite; the database record
// stays until the durable sweep confirms and marks it.
func (w *Worker) ScheduleUnmute(vote *types.ModerationVote) {
	if vote.MuteEndTime == nil {
		return
	}

	delay := time.Until(*vote.MuteEndTime)
	if delay < 0 {
		delay = 0
	}

	channelID := vote.MuteChannelID
	userID := vote.TargetUserID
	voteID := vote.ID

	w.mu.Lock()
	defer w.mu.Unlock()

	// Re-arming after an extension replaces the earlier timer.
	if timer, ok := w.timers[voteID]; ok {
		timer.Stop()
	}

	w.timers[voteID] = time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := w.client.RemoveSendOverwrite(ctx, channelID, userID)
		if err != nil && !errors.Is(err, platform.ErrNotFound) {
			// The durable sweep will retry with full bookkeeping.
			w.logger.Debug("Fast-path unmute failed",
				zap.String("voteID", voteID.String()),
				zap.Error(err))

			return
		}

		w.logger.Debug("Fast-path unmute removed overwrite",
			zap.String("voteID", voteID.String()),
			zap.Uint64("userID", userID))
	})
}

// liftMute removes one overwrite and records the outcome.
func (w *Worker) liftMute(ctx context.Context, vote *types.ModerationVote) {
	err := w.client.RemoveSendOverwrite(ctx, vote.MuteChannelID, vote.TargetUserID)

	switch {
	case err == nil:
		if w.cfg.VerifyUnmute {
			w.verifyRemoval(ctx, vote)
		}
	case errors.Is(err, platform.ErrNotFound):
		// Already removed, by the fast path or by a moderator.
	default:
		w.logger.Warn("Failed to lift mute",
			zap.String("key", vote.Key().String()),
			zap.Uint64("userID", vote.TargetUserID),
			zap.Int("attempts", vote.UnmuteAttempts+1),
			zap.Error(err))

		if recErr := w.store.RecordUnmuteFailure(ctx, vote.ID, err, w.cfg.MaxUnmuteAttempts); recErr != nil {
			w.logger.Error("Failed to record unmute failure",
				zap.String("key", vote.Key().String()),
				zap.Error(recErr))
		}

		return
	}

	if err := w.store.MarkUnmuted(ctx, vote.ID); err != nil {
		w.logger.Error("Failed to mark vote unmuted",
			zap.String("key", vote.Key().String()),
			zap.Error(err))

		return
	}

	w.cancelTimer(vote.ID)

	w.logger.Info("Lifted mute",
		zap.String("key", vote.Key().String()),
		zap.Uint64("userID", vote.TargetUserID))
}

// verifyRemoval deletes the overwrite a second time and expects the
// platform to report it missing, proving the first removal stuck.
func (w *Worker) verifyRemoval(ctx context.Context, vote *types.ModerationVote) {
	err := w.client.RemoveSendOverwrite(ctx, vote.MuteChannelID, vote.TargetUserID)
	if err != nil && !errors.Is(err, platform.ErrNotFound) {
		w.logger.Warn("Unmute verification inconclusive",
			zap.String("key", vote.Key().String()),
			zap.Error(err))
	}
}

func (w *Worker) cancelTimer(voteID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[voteID]; ok {
		timer.Stop()
		delete(w.timers, voteID)
	}
}

func (w *Worker) cancelTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, timer := range w.timers {
		timer.Stop()
		delete(w.timers, id)
	}
}
