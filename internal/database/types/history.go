package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/quorumbot/quorum/internal/database/types/enum"
)

// MuteHistoryEntry is one serious mute recorded against a user.
// Entries are deduplicated by vote so a vote that escalates several
// times inside its window still counts as a single offense.
type MuteHistoryEntry struct {
	ID              int64         `bun:",pk,autoincrement"`
	VoteID          uuid.UUID     `bun:",notnull,type:uuid,unique"`
	GuildID         uint64        `bun:",notnull"`
	UserID          uint64        `bun:",notnull"` // Muted user
	ChannelID       uint64        `bun:",notnull"`
	Type            enum.VoteType `bun:",notnull"`
	Level           int           `bun:",notnull"` // Escalation level at time of recording
	DurationMinutes int           `bun:",notnull"` // Total minutes applied by the vote
	RecordedAt      time.Time     `bun:",notnull"`
}
