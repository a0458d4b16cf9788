// Package cache holds Redis-backed lookup caches for hot interaction
// paths.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quorumbot/quorum/internal/database/types"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

const (
	// ChannelTTL defines how long a guild's monitored channel list
	// remains cached before it is reloaded from the database.
	ChannelTTL = 10 * time.Minute

	// ChannelKeyPrefix identifies monitored channel entries in Redis.
	ChannelKeyPrefix = "monitored_channels:"

	// allChannels marks a guild with no channel restriction.
	allChannels = "*"
)

// SettingsSource loads guild settings on a cache miss.
type SettingsSource interface {
	GetGuildSettings(ctx context.Context, guildID uint64) (*types.GuildSettings, error)
}

// ChannelCache answers "may votes target messages in this channel?"
// without a database round trip per interaction. Entries expire on
// their own; saving guild settings invalidates eagerly.
type ChannelCache struct {
	client   rueidis.Client
	settings SettingsSource
	logger   *zap.Logger
}

// NewChannelCache initializes the monitored channel cache. The client
// should come from the manager's CacheDBIndex pool.
func NewChannelCache(client rueidis.Client, settings SettingsSource, logger *zap.Logger) *ChannelCache {
	return &ChannelCache{
		client:   client,
		settings: settings,
		logger:   logger.Named("channel_cache"),
	}
}

// IsAllowed reports whether votes may target messages in the channel.
// An empty allowed list in the guild settings means every channel.
func (c *ChannelCache) IsAllowed(ctx context.Context, guildID, channelID uint64) (bool, error) {
	key := ChannelKeyPrefix + strconv.FormatUint(guildID, 10)

	value, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if !rueidis.IsRedisNil(err) {
			c.logger.Warn("Failed to read channel cache, falling back to database",
				zap.Uint64("guildID", guildID),
				zap.Error(err))
		}

		return c.loadAndCache(ctx, key, guildID, channelID)
	}

	c.logger.Debug("Channel cache hit",
		zap.Uint64("guildID", guildID),
		zap.Uint64("channelID", channelID))

	return channelListed(value, channelID), nil
}

// Invalidate drops a guild's cached channel list. Called after the
// guild's settings change so the next lookup reloads them.
func (c *ChannelCache) Invalidate(ctx context.Context, guildID uint64) error {
	key := ChannelKeyPrefix + strconv.FormatUint(guildID, 10)

	err := c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to invalidate channel cache for guild %d: %w", guildID, err)
	}

	c.logger.Debug("Invalidated channel cache", zap.Uint64("guildID", guildID))

	return nil
}

// loadAndCache reloads a guild's channel list from the database and
// stores the encoded form. Cache write failures degrade to a miss on
// the next lookup rather than an error now.
func (c *ChannelCache) loadAndCache(ctx context.Context, key string, guildID, channelID uint64) (bool, error) {
	settings, err := c.settings.GetGuildSettings(ctx, guildID)
	if err != nil {
		return false, fmt.Errorf("failed to load guild settings for guild %d: %w", guildID, err)
	}

	encoded := encodeChannels(settings.AllowedChannelIDs)

	err = c.client.Do(ctx, c.client.B().Set().Key(key).Value(encoded).Ex(ChannelTTL).Build()).Error()
	if err != nil {
		c.logger.Warn("Failed to store channel cache entry",
			zap.Uint64("guildID", guildID),
			zap.Error(err))
	}

	return settings.ChannelAllowed(channelID), nil
}

// encodeChannels renders an allowed channel list as a cache value.
func encodeChannels(channelIDs []uint64) string {
	if len(channelIDs) == 0 {
		return allChannels
	}

	parts := make([]string, len(channelIDs))
	for i, id := range channelIDs {
		parts[i] = strconv.FormatUint(id, 10)
	}

	return strings.Join(parts, ",")
}

// channelListed checks a cached value against a channel id.
func channelListed(value string, channelID uint64) bool {
	if value == allChannels {
		return true
	}

	want := strconv.FormatUint(channelID, 10)
	for _, part := range strings.Split(value, ",") {
		if part == want {
			return true
		}
	}

	return false
}
