// Package vote owns the lifecycle of moderation votes: creation,
// initiator merging and conflict detection between punishment types.
package vote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quorumbot/quorum/internal/database/models"
	"github.com/quorumbot/quorum/internal/database/types"
	"github.com/quorumbot/quorum/internal/database/types/enum"
	"github.com/quorumbot/quorum/internal/moderation/escalation"
	"github.com/quorumbot/quorum/internal/setup/config"
	"go.uber.org/zap"
)

// Store is the vote persistence surface the manager needs.
type Store interface {
	CreateVote(ctx context.Context, vote *types.ModerationVote) error
	GetActiveVote(ctx context.Context, key types.VoteKey) (*types.ModerationVote, error)
	GetActiveVotesForMessage(ctx context.Context, guildID, targetMessageID uint64) ([]*types.ModerationVote, error)
	AddInitiator(ctx context.Context, voteID uuid.UUID, userID uint64) error
}

// HistoryStore counts prior offenses for serious mute escalation.
type HistoryStore interface {
	RecentCount(ctx context.Context, guildID, userID uint64, since time.Time) (int, error)
}

// CreateRequest describes a vote a user wants to start.
type CreateRequest struct {
	GuildID         uint64
	TargetChannelID uint64
	TargetMessageID uint64
	TargetUserID    uint64
	InitiatorID     uint64
	Type            enum.VoteType
}

// Result reports what CreateOrMerge did.
type Result struct {
	Vote *types.ModerationVote
	// Merged is true when the initiator joined an existing vote.
	Merged bool
	// AlreadyInitiator is true when the user had already joined, making
	// the call a no-op.
	AlreadyInitiator bool
}

// Manager creates and merges moderation votes.
type Manager struct {
	store   Store
	history HistoryStore
	engine  *escalation.Engine
	cfg     *config.SelfMod
	logger  *zap.Logger
	clock   func() time.Time
}

// NewManager creates a vote lifecycle manager.
func NewManager(
	store Store, history HistoryStore, engine *escalation.Engine,
	cfg *config.SelfMod, logger *zap.Logger,
) *Manager {
	return &Manager{
		store:   store,
		history: history,
		engine:  engine,
		cfg:     cfg,
		logger:  logger.Named("vote"),
		clock:   time.Now,
	}
}

// CreateOrMerge starts a vote, or merges the initiator into the active
// vote already targeting the same message with the same punishment.
func (m *Manager) CreateOrMerge(ctx context.Context, req CreateRequest) (*Result, error) {
	key := types.VoteKey{
		GuildID:         req.GuildID,
		TargetMessageID: req.TargetMessageID,
		Type:            req.Type,
	}

	existing, err := m.store.GetActiveVote(ctx, key)
	if err != nil && !errors.Is(err, models.ErrVoteNotFound) {
		return nil, fmt.Errorf("failed to look up active vote: %w", err)
	}

	if existing != nil {
		if existing.HasInitiator(req.InitiatorID) {
			return &Result{Vote: existing, AlreadyInitiator: true}, nil
		}

		if err := m.store.AddInitiator(ctx, existing.ID, req.InitiatorID); err != nil {
			return nil, fmt.Errorf("failed to merge initiator: %w", err)
		}

		existing.Initiators = append(existing.Initiators, req.InitiatorID)

		m.logger.Info("Merged initiator into existing vote",
			zap.String("key", key.String()),
			zap.Uint64("initiatorID", req.InitiatorID))

		return &Result{Vote: existing, Merged: true}, nil
	}

	now := m.clock()
	newVote := &types.ModerationVote{
		ID:              uuid.New(),
		GuildID:         req.GuildID,
		TargetMessageID: req.TargetMessageID,
		Type:            req.Type,
		TargetChannelID: req.TargetChannelID,
		TargetUserID:    req.TargetUserID,
		InitiatorID:     req.InitiatorID,
		Initiators:      []uint64{req.InitiatorID},
		Status:          enum.VoteStatusActive,
		TargetExists:    true,
		StartTime:       now,
		EndTime:         now.Add(m.cfg.VoteDuration()),
		LastUpdated:     now,
	}

	// Serious mutes freeze their step size and the offender's prior
	// count at creation so mid-vote day/night flips or new offenses
	// cannot change the outcome formula.
	if req.Type == enum.VoteTypeSeriousMute {
		newVote.SeriousBase = m.engine.SeriousBase(now)

		prior, err := m.history.RecentCount(
			ctx, req.GuildID, req.TargetUserID, now.Add(-m.engine.HistoryWindow()),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to count prior offenses: %w", err)
		}

		newVote.InitialPrev = prior
	}

	if err := m.store.CreateVote(ctx, newVote); err != nil {
		return nil, fmt.Errorf("failed to create vote: %w", err)
	}

	m.logger.Info("Created vote",
		zap.String("key", key.String()),
		zap.Uint64("initiatorID", req.InitiatorID),
		zap.Uint64("targetUserID", req.TargetUserID),
		zap.Time("endTime", newVote.EndTime))

	return &Result{Vote: newVote}, nil
}

// ConflictingVote returns an active vote on the same message whose
// punishment conflicts with the given type: a delete conflicts with
// either mute flavor and vice versa. Returns nil when there is none.
func (m *Manager) ConflictingVote(
	ctx context.Context, guildID, targetMessageID uint64, voteType enum.VoteType,
) (*types.ModerationVote, error) {
	votes, err := m.store.GetActiveVotesForMessage(ctx, guildID, targetMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up votes for message: %w", err)
	}

	for _, v := range votes {
		if v.Type == voteType {
			continue
		}

		if voteType.IsMuteFamily() != v.Type.IsMuteFamily() {
			return v, nil
		}
	}

	return nil, nil //nolint:nilnil // absence of a conflict is not an error
}
