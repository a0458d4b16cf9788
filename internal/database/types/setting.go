package types

import (
	"slices"
	"time"

	"github.com/quorumbot/quorum/internal/database/types/enum"
)

// GuildSettings stores per-guild self-moderation configuration.
type GuildSettings struct {
	GuildID uint64 `bun:",pk"`

	// Role ids allowed to start each vote type. Empty means everyone.
	DeleteRoleIDs  []uint64 `bun:"delete_role_ids,type:bigint[]"`
	MuteRoleIDs    []uint64 `bun:"mute_role_ids,type:bigint[]"`
	SeriousRoleIDs []uint64 `bun:"serious_role_ids,type:bigint[]"`

	// Channel ids where votes may target messages. Empty means all channels.
	AllowedChannelIDs []uint64 `bun:"allowed_channel_ids,type:bigint[]"`

	// Channel receiving archived copies of deleted messages.
	ArchiveChannelID uint64 `bun:",nullzero"`
	ArchiveEnabled   bool   `bun:",notnull,default:false"`

	// Override for the vote reaction emoji. Empty uses the default.
	VoteEmoji string `bun:",notnull,default:''"`

	UpdatedAt time.Time `bun:",notnull"`

	lastRefresh time.Time `bun:"-"` // In-memory cache control
}

// ChannelAllowed checks whether votes may target messages in the channel.
func (s *GuildSettings) ChannelAllowed(channelID uint64) bool {
	if len(s.AllowedChannelIDs) == 0 {
		return true
	}

	return slices.Contains(s.AllowedChannelIDs, channelID)
}

// RoleIDsFor returns the eligible role list for a vote type.
func (s *GuildSettings) RoleIDsFor(voteType enum.VoteType) []uint64 {
	switch voteType {
	case enum.VoteTypeDelete:
		return s.DeleteRoleIDs
	case enum.VoteTypeMute:
		return s.MuteRoleIDs
	case enum.VoteTypeSeriousMute:
		return s.SeriousRoleIDs
	default:
		return nil
	}
}

// NeedsRefresh checks if the settings need to be refreshed.
func (s *GuildSettings) NeedsRefresh() bool {
	return time.Since(s.lastRefresh) > 5*time.Minute
}

// UpdateRefreshTime updates the last refresh time to now.
func (s *GuildSettings) UpdateRefreshTime() {
	s.lastRefresh = time.Now()
}
