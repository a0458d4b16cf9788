// Package announce maintains the announcement message that backs each
// vote: the initial post, live progress edits and the terminal summary.
package announce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quorumbot/quorum/internal/database/types"
	"github.com/quorumbot/quorum/internal/database/types/enum"
	"github.com/quorumbot/quorum/internal/moderation/escalation"
	"github.com/quorumbot/quorum/internal/moderation/reaction"
	"github.com/quorumbot/quorum/internal/platform"
	"go.uber.org/zap"
)

const (
	colorActive    = 0xf1c40f
	colorCompleted = 0x2ecc71
	colorFailed    = 0xe74c3c
)

// Service posts and edits vote announcements.
type Service struct {
	client platform.Client
	engine *escalation.Engine
	logger *zap.Logger
}

// NewService creates an announcement service.
func NewService(client platform.Client, engine *escalation.Engine, logger *zap.Logger) *Service {
	return &Service{
		client: client,
		engine: engine,
		logger: logger.Named("announce"),
	}
}

// Post publishes the announcement for a fresh vote in the target's
// channel. A non-nil conflict adds a warning that an opposing vote is
// already running against the same message.
func (s *Service) Post(
	ctx context.Context, vote *types.ModerationVote, emoji string, conflict *types.ModerationVote,
) (uint64, error) {
	if emoji == "" {
		emoji = reaction.DefaultEmoji
	}

	embed := s.buildEmbed(vote, vote.ReactionCount, time.Now())
	embed.Description = fmt.Sprintf(
		"React with %s here or on the [target message](%s) to support this vote.",
		emoji, platform.MessageLink(vote.GuildID, vote.TargetChannelID, vote.TargetMessageID),
	)

	messageID, err := s.client.CreateMessage(ctx, vote.TargetChannelID, platform.MessagePayload{
		Embeds: []platform.Embed{s.withConflictWarning(embed, conflict)},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to post announcement: %w", err)
	}

	s.logger.Debug("Posted announcement",
		zap.String("key", vote.Key().String()),
		zap.Uint64("messageID", messageID))

	return messageID, nil
}

// Update refreshes the live progress on the announcement.
func (s *Service) Update(ctx context.Context, vote *types.ModerationVote, count int, now time.Time) error {
	if vote.AnnouncementMsgID == 0 {
		return nil
	}

	err := s.client.UpdateMessage(ctx, vote.AnnouncementChanID, vote.AnnouncementMsgID,
		platform.MessagePayload{Embeds: []platform.Embed{s.buildEmbed(vote, count, now)}})
	if err != nil {
		return fmt.Errorf("failed to update announcement: %w", err)
	}

	return nil
}

// Finalize writes the terminal summary onto the announcement. The
// announcement stays up even when the vote failed.
func (s *Service) Finalize(ctx context.Context, vote *types.ModerationVote, count int) error {
	if vote.AnnouncementMsgID == 0 {
		return nil
	}

	now := time.Now()
	embed := platform.Embed{
		Title:     titleFor(vote.Type),
		Color:     colorCompleted,
		Timestamp: &now,
		Fields: []platform.EmbedField{
			{Name: "Final tally", Value: fmt.Sprintf("%d", count), Inline: true},
			{Name: "Outcome", Value: s.outcomeLine(vote), Inline: true},
		},
	}

	if vote.Status == enum.VoteStatusFailed {
		embed.Color = colorFailed
	}

	err := s.client.UpdateMessage(ctx, vote.AnnouncementChanID, vote.AnnouncementMsgID,
		platform.MessagePayload{Embeds: []platform.Embed{embed}})
	if err != nil {
		return fmt.Errorf("failed to finalize announcement: %w", err)
	}

	s.logger.Debug("Finalized announcement",
		zap.String("key", vote.Key().String()),
		zap.Int("count", count),
		zap.String("status", vote.Status.String()))

	return nil
}

// buildEmbed renders the live announcement body.
func (s *Service) buildEmbed(vote *types.ModerationVote, count int, now time.Time) platform.Embed {
	initiators := make([]string, 0, len(vote.Initiators))
	for _, id := range vote.Initiators {
		initiators = append(initiators, fmt.Sprintf("<@%d>", id))
	}

	embed := platform.Embed{
		Title: titleFor(vote.Type),
		Color: colorActive,
		Fields: []platform.EmbedField{
			{Name: "Target", Value: fmt.Sprintf("<@%d>", vote.TargetUserID), Inline: true},
			{Name: "Support", Value: fmt.Sprintf("%d", count), Inline: true},
			{Name: "Closes", Value: fmt.Sprintf("<t:%d:R>", vote.EndTime.Unix()), Inline: true},
			{Name: "Started by", Value: strings.Join(initiators, " ")},
		},
	}

	if projection := s.projectionLine(vote, count, now); projection != "" {
		embed.Fields = append(embed.Fields, platform.EmbedField{Name: "Current tier", Value: projection})
	}

	return embed
}

// projectionLine describes what the current count would earn.
func (s *Service) projectionLine(vote *types.ModerationVote, count int, now time.Time) string {
	switch vote.Type {
	case enum.VoteTypeDelete:
		threshold := s.engine.DeleteThreshold(now)
		if count >= threshold {
			return "threshold reached, message will be deleted"
		}

		return fmt.Sprintf("%d of %d reactions to delete", count, threshold)

	case enum.VoteTypeMute:
		minutes := s.engine.MuteDuration(count, now)
		if minutes == 0 {
			return fmt.Sprintf("%d of %d reactions to mute", count, s.engine.MuteBaseThreshold(now))
		}

		return fmt.Sprintf("%d minute mute, lifting <t:%d:R>",
			minutes, now.Add(time.Duration(minutes)*time.Minute).Unix())

	case enum.VoteTypeSeriousMute:
		level := s.engine.SeriousLevel(count, vote.SeriousBase, vote.InitialPrev)
		if level == 0 {
			return fmt.Sprintf("%d of %d reactions to mute", count, vote.SeriousBase)
		}

		minutes := s.engine.SeriousDuration(level)

		return fmt.Sprintf("level %d, %d minute mute", level, minutes)

	default:
		return ""
	}
}

// outcomeLine summarizes what the vote did.
func (s *Service) outcomeLine(vote *types.ModerationVote) string {
	if vote.Status == enum.VoteStatusFailed {
		return "vote failed: " + vote.CompletionReason.String()
	}

	var parts []string

	if vote.HasAction(enum.ActionTypeDelete) || vote.HasAction(enum.ActionTypeDeleteNow) {
		parts = append(parts, "message deleted")
	}

	if vote.HasAction(enum.ActionTypeDeleteDeferred) {
		parts = append(parts, "delete handed to mute vote")
	}

	if total := vote.AppliedMuteMinutes(); total > 0 {
		parts = append(parts, fmt.Sprintf("%d minute mute applied", total))
	}

	if len(parts) == 0 {
		return "no punishment reached"
	}

	return strings.Join(parts, ", ")
}

// withConflictWarning appends the opposing-vote warning field.
func (s *Service) withConflictWarning(embed platform.Embed, conflict *types.ModerationVote) platform.Embed {
	if conflict == nil {
		return embed
	}

	embed.Fields = append(embed.Fields, platform.EmbedField{
		Name: "Conflicting vote",
		Value: fmt.Sprintf("A %s vote is already running against this message. "+
			"If both pass, the delete waits for the mute to be applied first.", conflict.Type),
	})

	return embed
}

// titleFor renders the announcement title per vote type.
func titleFor(voteType enum.VoteType) string {
	switch voteType {
	case enum.VoteTypeDelete:
		return "Vote: delete message"
	case enum.VoteTypeMute:
		return "Vote: mute author"
	case enum.VoteTypeSeriousMute:
		return "Vote: serious mute"
	default:
		return "Vote"
	}
}
