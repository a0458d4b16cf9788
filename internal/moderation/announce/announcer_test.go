package announce_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quorumbot/quorum/internal/database/types"
	"github.com/quorumbot/quorum/internal/database/types/enum"
	"github.com/quorumbot/quorum/internal/moderation/announce"
	"github.com/quorumbot/quorum/internal/moderation/escalation"
	"github.com/quorumbot/quorum/internal/platform"
	"github.com/quorumbot/quorum/internal/platform/platformtest"
	"github.com/quorumbot/quorum/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// noon is a daytime instant at the configured UTC+8 offset.
var noon = time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)

func testSelfMod() *config.SelfMod {
	return &config.SelfMod{
		VoteDurationMinutes: 10,
		DayNight: config.DayNight{
			DayStartHour:          6,
			DayEndHour:            2,
			UTCOffsetHours:        8,
			NightDeleteMultiplier: 0.7,
			NightMuteMultiplier:   0.75,
		},
		Delete: config.Delete{Threshold: 10},
		Mute: config.Mute{
			BaseDurationMinutes:     10,
			BaseThreshold:           10,
			PerVoteIncrementMinutes: 5,
		},
		Serious: config.Serious{
			ThresholdMultiplier: 1.5,
			HistoryWindowDays:   15,
			LevelTableMinutes:   []int{10, 20, 30, 60, 120, 240, 360, 480, 600},
			OverflowMinutes:     720,
		},
	}
}

func newService(t *testing.T) (*announce.Service, *platformtest.FakeClient) {
	t.Helper()

	client := platformtest.NewFakeClient()
	svc := announce.NewService(client, escalation.New(testSelfMod()), zaptest.NewLogger(t))

	return svc, client
}

func testVote(voteType enum.VoteType) *types.ModerationVote {
	return &types.ModerationVote{
		ID:              uuid.New(),
		GuildID:         1,
		TargetChannelID: 100,
		TargetMessageID: 200,
		TargetUserID:    50,
		Type:            voteType,
		Status:          enum.VoteStatusActive,
		Initiators:      []uint64{60},
		StartTime:       noon.Add(-time.Minute),
		EndTime:         noon.Add(9 * time.Minute),
	}
}

func fieldValue(embed platform.Embed, name string) (string, bool) {
	for _, f := range embed.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}

	return "", false
}

func TestPostRendersProgress(t *testing.T) {
	t.Parallel()

	svc, client := newService(t)
	vote := testVote(enum.VoteTypeDelete)
	vote.ReactionCount = 3

	messageID, err := svc.Post(context.Background(), vote, "", nil)
	require.NoError(t, err)

	payload, ok := client.CreatedPayload(100, messageID)
	require.True(t, ok)
	require.Len(t, payload.Embeds, 1)

	embed := payload.Embeds[0]
	assert.Equal(t, "Vote: delete message", embed.Title)
	assert.Contains(t, embed.Description, platform.MessageLink(1, 100, 200))

	tier, ok := fieldValue(embed, "Current tier")
	require.True(t, ok)
	assert.Equal(t, "3 of 10 reactions to delete", tier)

	_, ok = fieldValue(embed, "Conflicting vote")
	assert.False(t, ok)
}

func TestPostWarnsAboutConflict(t *testing.T) {
	t.Parallel()

	svc, client := newService(t)
	conflict := testVote(enum.VoteTypeMute)

	messageID, err := svc.Post(context.Background(), testVote(enum.VoteTypeDelete), "", conflict)
	require.NoError(t, err)

	payload, ok := client.CreatedPayload(100, messageID)
	require.True(t, ok)

	warning, ok := fieldValue(payload.Embeds[0], "Conflicting vote")
	require.True(t, ok)
	assert.Contains(t, warning, "mute")
}

func TestUpdateProjectsMuteDuration(t *testing.T) {
	t.Parallel()

	svc, client := newService(t)
	client.AddMessage(&platform.Message{ID: 300, ChannelID: 100})

	vote := testVote(enum.VoteTypeMute)
	vote.AnnouncementChanID = 100
	vote.AnnouncementMsgID = 300

	// 12 reactors: base 10 minutes plus two increments of 5.
	require.NoError(t, svc.Update(context.Background(), vote, 12, noon))

	payload, ok := client.LastUpdate(100, 300)
	require.True(t, ok)

	tier, ok := fieldValue(payload.Embeds[0], "Current tier")
	require.True(t, ok)
	assert.Contains(t, tier, "20 minute mute")
}

func TestUpdateWithoutAnnouncementIsNoOp(t *testing.T) {
	t.Parallel()

	svc, client := newService(t)
	vote := testVote(enum.VoteTypeMute)

	require.NoError(t, svc.Update(context.Background(), vote, 12, noon))

	_, ok := client.LastUpdate(100, 300)
	assert.False(t, ok)
}

func TestFinalizeSummarizesOutcome(t *testing.T) {
	t.Parallel()

	svc, client := newService(t)
	client.AddMessage(&platform.Message{ID: 300, ChannelID: 100})

	vote := testVote(enum.VoteTypeMute)
	vote.AnnouncementChanID = 100
	vote.AnnouncementMsgID = 300
	vote.Status = enum.VoteStatusCompleted
	vote.ExecutedActions = []types.PunishmentAction{{
		Type:            enum.ActionTypeMute,
		Result:          enum.ActionResultApplied,
		DurationMinutes: 25,
		TotalMinutes:    25,
	}}

	require.NoError(t, svc.Finalize(context.Background(), vote, 13))

	payload, ok := client.LastUpdate(100, 300)
	require.True(t, ok)

	embed := payload.Embeds[0]

	tally, ok := fieldValue(embed, "Final tally")
	require.True(t, ok)
	assert.Equal(t, "13", tally)

	outcome, ok := fieldValue(embed, "Outcome")
	require.True(t, ok)
	assert.Equal(t, "25 minute mute applied", outcome)
}

func TestFinalizeFailedVote(t *testing.T) {
	t.Parallel()

	svc, client := newService(t)
	client.AddMessage(&platform.Message{ID: 300, ChannelID: 100})

	vote := testVote(enum.VoteTypeDelete)
	vote.AnnouncementChanID = 100
	vote.AnnouncementMsgID = 300
	vote.Status = enum.VoteStatusFailed
	vote.CompletionReason = enum.CompletionReasonPermission

	require.NoError(t, svc.Finalize(context.Background(), vote, 4))

	payload, ok := client.LastUpdate(100, 300)
	require.True(t, ok)

	outcome, ok := fieldValue(payload.Embeds[0], "Outcome")
	require.True(t, ok)
	assert.Contains(t, outcome, "vote failed")
}

func TestFinalizeNoPunishmentReached(t *testing.T) {
	t.Parallel()

	svc, client := newService(t)
	client.AddMessage(&platform.Message{ID: 300, ChannelID: 100})

	vote := testVote(enum.VoteTypeDelete)
	vote.AnnouncementChanID = 100
	vote.AnnouncementMsgID = 300
	vote.Status = enum.VoteStatusCompleted
	vote.CompletionReason = enum.CompletionReasonExpired

	require.NoError(t, svc.Finalize(context.Background(), vote, 4))

	payload, ok := client.LastUpdate(100, 300)
	require.True(t, ok)

	outcome, ok := fieldValue(payload.Embeds[0], "Outcome")
	require.True(t, ok)
	assert.Equal(t, "no punishment reached", outcome)
}
