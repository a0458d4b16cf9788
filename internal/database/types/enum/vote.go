package enum

// VoteType represents the kind of punishment a vote seeks.
type VoteType int

const (
	// VoteTypeDelete seeks removal of the target message.
	VoteTypeDelete VoteType = iota
	// VoteTypeMute seeks a channel mute for the target author.
	VoteTypeMute
	// VoteTypeSeriousMute seeks a history-escalated mute for the target author.
	VoteTypeSeriousMute
)

// String returns the lowercase name used in logs and announcement text.
func (v VoteType) String() string {
	switch v {
	case VoteTypeDelete:
		return "delete"
	case VoteTypeMute:
		return "mute"
	case VoteTypeSeriousMute:
		return "seriousMute"
	default:
		return "unknown"
	}
}

// IsMuteFamily reports whether the vote punishes the author with a mute.
func (v VoteType) IsMuteFamily() bool {
	return v == VoteTypeMute || v == VoteTypeSeriousMute
}

// VoteStatus represents the lifecycle state of a vote.
type VoteStatus int

const (
	VoteStatusActive VoteStatus = iota
	VoteStatusCompleted
	VoteStatusFailed
)

// String returns the lowercase name used in logs.
func (s VoteStatus) String() string {
	switch s {
	case VoteStatusActive:
		return "active"
	case VoteStatusCompleted:
		return "completed"
	case VoteStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MuteStatus represents the state of an applied mute.
type MuteStatus int

const (
	// MuteStatusNone means no mute has been applied by this vote.
	MuteStatusNone MuteStatus = iota
	// MuteStatusActive means a permission overwrite is in place.
	MuteStatusActive
	// MuteStatusLifted means the overwrite was removed after expiry.
	MuteStatusLifted
	// MuteStatusFailed means removal kept failing past the retry budget.
	MuteStatusFailed
)

// String returns the lowercase name used in logs.
func (s MuteStatus) String() string {
	switch s {
	case MuteStatusNone:
		return "none"
	case MuteStatusActive:
		return "active"
	case MuteStatusLifted:
		return "lifted"
	case MuteStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ActionType identifies a punishment recorded against a vote.
type ActionType int

const (
	// ActionTypeDelete is a threshold delete of the target message.
	ActionTypeDelete ActionType = iota
	// ActionTypeMute is an applied or extended channel mute.
	ActionTypeMute
	// ActionTypeDeleteNow is an early delete during a serious mute vote.
	ActionTypeDeleteNow
	// ActionTypeDeleteDeferred marks a delete handed off to a concurrent
	// mute vote on the same message.
	ActionTypeDeleteDeferred
)

// String returns the lowercase name used in logs and archive metadata.
func (a ActionType) String() string {
	switch a {
	case ActionTypeDelete:
		return "delete"
	case ActionTypeMute:
		return "mute"
	case ActionTypeDeleteNow:
		return "deleteNow"
	case ActionTypeDeleteDeferred:
		return "deleteDeferred"
	default:
		return "unknown"
	}
}

// ActionResult records how an executed punishment turned out.
type ActionResult int

const (
	ActionResultApplied ActionResult = iota
	// ActionResultAlreadyGone means the target was deleted before we acted.
	ActionResultAlreadyGone
	ActionResultFailed
)

// String returns the lowercase name used in logs.
func (r ActionResult) String() string {
	switch r {
	case ActionResultApplied:
		return "applied"
	case ActionResultAlreadyGone:
		return "alreadyGone"
	case ActionResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CompletionReason explains why a vote left the active state.
type CompletionReason int

const (
	CompletionReasonNone CompletionReason = iota
	// CompletionReasonExpired means the voting window closed.
	CompletionReasonExpired
	// CompletionReasonTargetGone means the target message disappeared.
	CompletionReasonTargetGone
	// CompletionReasonPermission means the bot lost required permissions.
	CompletionReasonPermission
	// CompletionReasonExecuted means the punishment ran to completion
	// before the window closed.
	CompletionReasonExecuted
)

// String returns the lowercase name used in logs and announcement text.
func (c CompletionReason) String() string {
	switch c {
	case CompletionReasonNone:
		return "none"
	case CompletionReasonExpired:
		return "expired"
	case CompletionReasonTargetGone:
		return "targetGone"
	case CompletionReasonPermission:
		return "permission"
	case CompletionReasonExecuted:
		return "executed"
	default:
		return "unknown"
	}
}
