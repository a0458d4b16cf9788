package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quorumbot/quorum/internal/database/types/enum"
)

// VoteKey identifies a vote by guild, target message and punishment type.
// At most one active vote exists per key.
type VoteKey struct {
	GuildID         uint64
	TargetMessageID uint64
	Type            enum.VoteType
}

// String renders the key for logs.
func (k VoteKey) String() string {
	return fmt.Sprintf("%d/%d/%s", k.GuildID, k.TargetMessageID, k.Type)
}

// PunishmentAction records a single punishment executed for a vote.
// Actions are append-only; re-execution decisions are derived from them.
type PunishmentAction struct {
	Type            enum.ActionType   `json:"type"`
	Result          enum.ActionResult `json:"result"`
	Timestamp       time.Time         `json:"timestamp"`
	ReactionCount   int               `json:"reactionCount"`
	DurationMinutes int               `json:"durationMinutes,omitempty"` // Minutes added by this action
	TotalMinutes    int               `json:"totalMinutes,omitempty"`    // Total applied after this action
	Level           int               `json:"level,omitempty"`           // Serious mute level, if any
	Archived        bool              `json:"archived,omitempty"`        // Whether the target was archived first
}

// ModerationVote is a community vote against a message or its author.
// Only one active vote may exist per key; the partial unique index on
// active rows enforces it without blocking a fresh vote after an
// earlier one for the same key reached a terminal state.
type ModerationVote struct {
	ID              uuid.UUID     `bun:",pk,type:uuid"`
	GuildID         uint64        `bun:",notnull"`
	TargetMessageID uint64        `bun:",notnull"`
	Type            enum.VoteType `bun:",notnull"`

	TargetChannelID uint64 `bun:",notnull"` // Channel or thread holding the target message
	TargetUserID    uint64 `bun:",notnull"` // Author of the target message
	InitiatorID     uint64 `bun:",notnull"` // User who started the vote

	// Later initiators of the same key merge into the existing vote.
	Initiators []uint64 `bun:",array"`

	Status             enum.VoteStatus       `bun:",notnull"`
	CompletionReason   enum.CompletionReason `bun:",notnull,default:0"`
	ReactionCount      int                   `bun:",notnull,default:0"` // Last observed distinct reactor count
	TargetExists       bool                  `bun:",notnull"`           // Whether the target message still existed last sweep
	ExecutedActions    []PunishmentAction    `bun:",type:jsonb"`
	AnnouncementChanID uint64                `bun:",nullzero"`
	AnnouncementMsgID  uint64                `bun:",nullzero"`

	// Serious mute parameters frozen at creation.
	SeriousBase int `bun:",notnull,default:0"` // Reactors per level step
	InitialPrev int `bun:",notnull,default:0"` // Prior offenses inside the history window

	// Mute bookkeeping, meaningful only for mute family votes.
	MuteChannelID    uint64          `bun:",nullzero"`  // Channel carrying the permission overwrite
	MuteEndTime      *time.Time      `bun:",nullzero"`  // When the applied mute expires
	MuteStatus       enum.MuteStatus `bun:",notnull,default:0"`
	UnmuteAttempts   int             `bun:",notnull,default:0"`
	LastUnmuteError  string          `bun:",type:text"`

	StartTime   time.Time `bun:",notnull"`
	EndTime     time.Time `bun:",notnull"` // Voting window close
	LastUpdated time.Time `bun:",notnull"`
}

// Key returns the composite identity of the vote.
func (v *ModerationVote) Key() VoteKey {
	return VoteKey{GuildID: v.GuildID, TargetMessageID: v.TargetMessageID, Type: v.Type}
}

// IsExpired checks whether the voting window has closed.
func (v *ModerationVote) IsExpired(now time.Time) bool {
	return now.After(v.EndTime)
}

// HasAction checks whether an action of the given type was already recorded.
func (v *ModerationVote) HasAction(actionType enum.ActionType) bool {
	for _, a := range v.ExecutedActions {
		if a.Type == actionType {
			return true
		}
	}

	return false
}

// LastAction returns the most recent action of the given type, or nil.
func (v *ModerationVote) LastAction(actionType enum.ActionType) *PunishmentAction {
	for i := len(v.ExecutedActions) - 1; i >= 0; i-- {
		if v.ExecutedActions[i].Type == actionType {
			return &v.ExecutedActions[i]
		}
	}

	return nil
}

// AppliedMuteMinutes sums the mute minutes already applied by this vote.
// New reaction counts only ever add the difference on top of this.
func (v *ModerationVote) AppliedMuteMinutes() int {
	total := 0

	for _, a := range v.ExecutedActions {
		if a.Type == enum.ActionTypeMute && a.Result == enum.ActionResultApplied {
			total += a.DurationMinutes
		}
	}

	return total
}

// HasInitiator checks whether the user already initiated or merged into this vote.
func (v *ModerationVote) HasInitiator(userID uint64) bool {
	for _, id := range v.Initiators {
		if id == userID {
			return true
		}
	}

	return false
}

// DeleteDeferred checks whether a concurrent mute vote owns the delete.
func (v *ModerationVote) DeleteDeferred() bool {
	return v.HasAction(enum.ActionTypeDeleteDeferred)
}
