// Package utils holds small helpers for the interaction surface.
package utils

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidMessageLink means the input is not a Discord message link.
var ErrInvalidMessageLink = errors.New("invalid message link")

// MessageRef identifies a message by its full path.
type MessageRef struct {
	GuildID   uint64
	ChannelID uint64
	MessageID uint64
}

// ParseMessageLink extracts the guild, channel and message ids from a
// message jump link. Accepts the canary and ptb hosts and the legacy
// discordapp.com domain.
func ParseMessageLink(link string) (MessageRef, error) {
	rest := strings.TrimSpace(link)
	rest = strings.TrimPrefix(rest, "https://")
	rest = strings.TrimPrefix(rest, "http://")

	for _, host := range []string{
		"canary.discord.com", "ptb.discord.com", "discord.com",
		"canary.discordapp.com", "ptb.discordapp.com", "discordapp.com",
	} {
		if after, ok := strings.CutPrefix(rest, host+"/channels/"); ok {
			return parsePath(after)
		}
	}

	return MessageRef{}, ErrInvalidMessageLink
}

func parsePath(path string) (MessageRef, error) {
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(parts) != 3 {
		return MessageRef{}, ErrInvalidMessageLink
	}

	ids := make([]uint64, 3)

	for i, part := range parts {
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil || id == 0 {
			return MessageRef{}, ErrInvalidMessageLink
		}

		ids[i] = id
	}

	return MessageRef{GuildID: ids[0], ChannelID: ids[1], MessageID: ids[2]}, nil
}
