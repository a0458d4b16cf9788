// Package discord adapts the disgo REST client to the platform surface
// consumed by the vote engine.
package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/quorumbot/quorum/internal/platform"
	"go.uber.org/zap"
)

// reactionPageSize is the Discord page limit for reaction listings.
const reactionPageSize = 100

// mutePermissions are denied on the muted member's channel overwrite.
const mutePermissions = discord.PermissionSendMessages |
	discord.PermissionSendMessagesInThreads |
	discord.PermissionAddReactions

// Client adapts disgo REST calls to the platform interface.
type Client struct {
	rest   rest.Rest
	logger *zap.Logger
}

// NewClient creates a platform adapter over a disgo REST client.
func NewClient(restClient rest.Rest, logger *zap.Logger) *Client {
	return &Client{
		rest:   restClient,
		logger: logger.Named("discord"),
	}
}

// GetMessage fetches a message, returning platform.ErrNotFound once it is gone.
func (c *Client) GetMessage(ctx context.Context, channelID, messageID uint64) (*platform.Message, error) {
	msg, err := c.rest.GetMessage(snowflake.ID(channelID), snowflake.ID(messageID), rest.WithCtx(ctx))
	if err != nil {
		return nil, normalizeError("get message", err)
	}

	return convertMessage(msg), nil
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID uint64) error {
	err := c.rest.DeleteMessage(snowflake.ID(channelID), snowflake.ID(messageID), rest.WithCtx(ctx))
	if err != nil {
		return normalizeError("delete message", err)
	}

	return nil
}

// GetReactors lists the non-bot users who reacted with the emoji,
// paginating until Discord returns a short page.
func (c *Client) GetReactors(
	ctx context.Context, channelID, messageID uint64, emoji string,
) ([]uint64, error) {
	var (
		userIDs []uint64
		after   snowflake.ID
	)

	for {
		users, err := c.rest.GetReactions(
			snowflake.ID(channelID), snowflake.ID(messageID), emoji,
			discord.MessageReactionTypeNormal, int(after), reactionPageSize, rest.WithCtx(ctx),
		)
		if err != nil {
			return nil, normalizeError("get reactions", err)
		}

		for _, user := range users {
			if user.Bot {
				continue
			}

			userIDs = append(userIDs, uint64(user.ID))
		}

		if len(users) < reactionPageSize {
			return userIDs, nil
		}

		after = users[len(users)-1].ID
	}
}

// CreateMessage posts a message and returns its id.
func (c *Client) CreateMessage(
	ctx context.Context, channelID uint64, payload platform.MessagePayload,
) (uint64, error) {
	create := discord.MessageCreate{
		Content: payload.Content,
		Embeds:  convertEmbeds(payload.Embeds),
		Files:   convertUploads(payload.Files),
	}

	msg, err := c.rest.CreateMessage(snowflake.ID(channelID), create, rest.WithCtx(ctx))
	if err != nil {
		return 0, normalizeError("create message", err)
	}

	return uint64(msg.ID), nil
}

// UpdateMessage edits a previously posted message.
func (c *Client) UpdateMessage(
	ctx context.Context, channelID, messageID uint64, payload platform.MessagePayload,
) error {
	embeds := convertEmbeds(payload.Embeds)
	update := discord.MessageUpdate{
		Content: &payload.Content,
		Embeds:  &embeds,
	}

	_, err := c.rest.UpdateMessage(snowflake.ID(channelID), snowflake.ID(messageID), update, rest.WithCtx(ctx))
	if err != nil {
		return normalizeError("update message", err)
	}

	return nil
}

// DenySendMessages places a permission overwrite muting the user in the channel.
func (c *Client) DenySendMessages(ctx context.Context, channelID, userID uint64) error {
	deny := mutePermissions

	err := c.rest.UpdatePermissionOverwrite(
		snowflake.ID(channelID), snowflake.ID(userID),
		discord.MemberPermissionOverwriteUpdate{Deny: &deny},
		rest.WithCtx(ctx),
	)
	if err != nil {
		return normalizeError("deny send messages", err)
	}

	c.logger.Debug("Applied mute overwrite",
		zap.Uint64("channelID", channelID),
		zap.Uint64("userID", userID))

	return nil
}

// RemoveSendOverwrite deletes the user's permission overwrite.
// Removing an absent overwrite returns platform.ErrNotFound.
func (c *Client) RemoveSendOverwrite(ctx context.Context, channelID, userID uint64) error {
	err := c.rest.DeletePermissionOverwrite(
		snowflake.ID(channelID), snowflake.ID(userID), rest.WithCtx(ctx),
	)
	if err != nil {
		return normalizeError("remove send overwrite", err)
	}

	c.logger.Debug("Removed mute overwrite",
		zap.Uint64("channelID", channelID),
		zap.Uint64("userID", userID))

	return nil
}

// ParentTextChannel resolves a thread to its parent channel. Permission
// overwrites live on the parent, not the thread.
func (c *Client) ParentTextChannel(ctx context.Context, channelID uint64) (uint64, error) {
	channel, err := c.rest.GetChannel(snowflake.ID(channelID), rest.WithCtx(ctx))
	if err != nil {
		return 0, normalizeError("get channel", err)
	}

	if thread, ok := channel.(discord.GuildThread); ok && thread.ParentID() != nil {
		return uint64(*thread.ParentID()), nil
	}

	return channelID, nil
}

// convertMessage maps a disgo message onto the platform type.
func convertMessage(msg *discord.Message) *platform.Message {
	out := &platform.Message{
		ID:          uint64(msg.ID),
		ChannelID:   uint64(msg.ChannelID),
		AuthorID:    uint64(msg.Author.ID),
		AuthorName:  msg.Author.Username,
		AuthorIsBot: msg.Author.Bot,
		Content:     msg.Content,
		Timestamp:   msg.ID.Time(),
	}

	if msg.GuildID != nil {
		out.GuildID = uint64(*msg.GuildID)
	}

	for _, att := range msg.Attachments {
		contentType := ""
		if att.ContentType != nil {
			contentType = *att.ContentType
		}

		out.Attachments = append(out.Attachments, platform.Attachment{
			ID:          uint64(att.ID),
			Filename:    att.Filename,
			URL:         att.URL,
			Size:        att.Size,
			ContentType: contentType,
		})
	}

	return out
}

// convertEmbeds maps platform embeds onto disgo embeds.
func convertEmbeds(embeds []platform.Embed) []discord.Embed {
	out := make([]discord.Embed, 0, len(embeds))

	for _, e := range embeds {
		embed := discord.Embed{
			Title:       e.Title,
			Description: e.Description,
			Color:       e.Color,
			Timestamp:   e.Timestamp,
		}

		for _, f := range e.Fields {
			inline := f.Inline
			embed.Fields = append(embed.Fields, discord.EmbedField{
				Name:   f.Name,
				Value:  f.Value,
				Inline: &inline,
			})
		}

		out = append(out, embed)
	}

	return out
}

// convertUploads maps platform uploads onto disgo files.
func convertUploads(uploads []platform.Upload) []*discord.File {
	out := make([]*discord.File, 0, len(uploads))

	for _, u := range uploads {
		out = append(out, discord.NewFile(u.Name, "", bytes.NewReader(u.Data)))
	}

	return out
}

// normalizeError maps disgo rest errors onto the platform sentinels.
func normalizeError(op string, err error) error {
	var restErr *rest.Error
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, platform.ErrNotFound)
		case http.StatusForbidden:
			return fmt.Errorf("%s: %w", op, platform.ErrPermissionDenied)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
