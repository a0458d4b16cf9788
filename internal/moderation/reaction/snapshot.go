// Package reaction takes point-in-time reactor snapshots for active votes.
package reaction

import (
	"context"
	"errors"
	"fmt"

	"github.com/quorumbot/quorum/internal/database/types"
	"github.com/quorumbot/quorum/internal/platform"
	"go.uber.org/zap"
)

// DefaultEmoji is the vote reaction used when a guild has no override.
const DefaultEmoji = "⚠️"

// Snapshot is one observation of a vote's support.
type Snapshot struct {
	// Count is the number of distinct non-bot users reacting on either
	// the target message or the announcement.
	Count int
	// TargetExists reports whether the target message still existed.
	TargetExists bool
}

// Service reads vote reactions through the platform client.
type Service struct {
	client platform.Client
	logger *zap.Logger
}

// NewService creates a reaction snapshot service.
func NewService(client platform.Client, logger *zap.Logger) *Service {
	return &Service{
		client: client,
		logger: logger.Named("reaction"),
	}
}

// Take counts distinct reactors across the target message and the
// announcement message. A user reacting on both counts once. A missing
// target is reported, not treated as an error; a missing announcement
// simply contributes nothing.
func (s *Service) Take(ctx context.Context, vote *types.ModerationVote, emoji string) (Snapshot, error) {
	if emoji == "" {
		emoji = DefaultEmoji
	}

	seen := make(map[uint64]struct{})
	snapshot := Snapshot{TargetExists: true}

	targetReactors, err := s.client.GetReactors(
		ctx, vote.TargetChannelID, vote.TargetMessageID, emoji,
	)

	switch {
	case errors.Is(err, platform.ErrNotFound):
		snapshot.TargetExists = false
	case err != nil:
		return Snapshot{}, fmt.Errorf("failed to read target reactions: %w", err)
	default:
		for _, id := range targetReactors {
			seen[id] = struct{}{}
		}
	}

	if vote.AnnouncementChanID != 0 && vote.AnnouncementMsgID != 0 {
		announcementReactors, err := s.client.GetReactors(
			ctx, vote.AnnouncementChanID, vote.AnnouncementMsgID, emoji,
		)

		switch {
		case errors.Is(err, platform.ErrNotFound):
			// Deleted announcements stop contributing reactors.
			s.logger.Debug("Announcement message gone",
				zap.String("key", vote.Key().String()))
		case err != nil:
			return Snapshot{}, fmt.Errorf("failed to read announcement reactions: %w", err)
		default:
			for _, id := range announcementReactors {
				seen[id] = struct{}{}
			}
		}
	}

	snapshot.Count = len(seen)

	return snapshot, nil
}
