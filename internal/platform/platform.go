// Package platform defines the narrow chat-platform surface the vote
// engine consumes. Adapters normalize provider errors to the sentinel
// errors here so the engine never inspects provider response codes.
package platform

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means the message, channel or overwrite no longer exists.
	ErrNotFound = errors.New("platform object not found")
	// ErrPermissionDenied means the bot lacks a required permission.
	ErrPermissionDenied = errors.New("platform permission denied")
)

// Attachment describes a file attached to a message.
type Attachment struct {
	ID          uint64
	Filename    string
	URL         string
	Size        int
	ContentType string
}

// Message is the subset of message state the engine cares about.
type Message struct {
	ID          uint64
	ChannelID   uint64
	GuildID     uint64
	AuthorID    uint64
	AuthorName  string
	AuthorIsBot bool
	Content     string
	Attachments []Attachment
	Timestamp   time.Time
}

// JumpLink renders the canonical link to the message.
func (m *Message) JumpLink() string {
	return MessageLink(m.GuildID, m.ChannelID, m.ID)
}

// EmbedField is one field of a rich embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a provider-agnostic rich embed.
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Timestamp   *time.Time
}

// Upload is a file to attach to an outgoing message.
type Upload struct {
	Name string
	Data []byte
}

// MessagePayload is the content of an outgoing message create or edit.
type MessagePayload struct {
	Content string
	Embeds  []Embed
	Files   []Upload
}

// Client is the chat-platform surface consumed by the vote engine.
type Client interface {
	// GetMessage fetches a message, returning ErrNotFound once it is gone.
	GetMessage(ctx context.Context, channelID, messageID uint64) (*Message, error)

	// DeleteMessage removes a message. Deleting an already-deleted
	// message returns ErrNotFound.
	DeleteMessage(ctx context.Context, channelID, messageID uint64) error

	// GetReactors lists the non-bot users who reacted with the emoji.
	GetReactors(ctx context.Context, channelID, messageID uint64, emoji string) ([]uint64, error)

	// CreateMessage posts a message and returns its id.
	CreateMessage(ctx context.Context, channelID uint64, payload MessagePayload) (uint64, error)

	// UpdateMessage edits a previously posted message.
	UpdateMessage(ctx context.Context, channelID, messageID uint64, payload MessagePayload) error

	// DenySendMessages places a permission overwrite muting the user in
	// the channel. Reapplying an existing overwrite is a no-op.
	DenySendMessages(ctx context.Context, channelID, userID uint64) error

	// RemoveSendOverwrite deletes the user's permission overwrite.
	// Removing an absent overwrite returns ErrNotFound, which callers
	// treat as already-unmuted.
	RemoveSendOverwrite(ctx context.Context, channelID, userID uint64) error

	// ParentTextChannel resolves a thread to the channel carrying its
	// permission overwrites. Plain channels resolve to themselves.
	ParentTextChannel(ctx context.Context, channelID uint64) (uint64, error)
}
