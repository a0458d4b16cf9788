package reaction_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/quorumbot/quorum/internal/database/types"
	"github.com/quorumbot/quorum/internal/database/types/enum"
	"github.com/quorumbot/quorum/internal/moderation/reaction"
	"github.com/quorumbot/quorum/internal/platform"
	"github.com/quorumbot/quorum/internal/platform/platformtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testVote() *types.ModerationVote {
	return &types.ModerationVote{
		ID:                 uuid.New(),
		GuildID:            1,
		TargetChannelID:    100,
		TargetMessageID:    200,
		Type:               enum.VoteTypeDelete,
		AnnouncementChanID: 100,
		AnnouncementMsgID:  300,
	}
}

func TestTakeDeduplicatesAcrossMessages(t *testing.T) {
	t.Parallel()

	client := platformtest.NewFakeClient()
	client.AddMessage(&platform.Message{ID: 200, ChannelID: 100})
	client.AddMessage(&platform.Message{ID: 300, ChannelID: 100})
	client.SetReactors(100, 200, []uint64{1, 2, 3})
	client.SetReactors(100, 300, []uint64{3, 4, 5})

	svc := reaction.NewService(client, zaptest.NewLogger(t))

	snapshot, err := svc.Take(context.Background(), testVote(), "")
	require.NoError(t, err)
	assert.Equal(t, 5, snapshot.Count)
	assert.True(t, snapshot.TargetExists)
}

func TestTakeMissingTarget(t *testing.T) {
	t.Parallel()

	client := platformtest.NewFakeClient()
	client.AddMessage(&platform.Message{ID: 300, ChannelID: 100})
	client.SetReactors(100, 300, []uint64{7, 8})

	svc := reaction.NewService(client, zaptest.NewLogger(t))

	snapshot, err := svc.Take(context.Background(), testVote(), "")
	require.NoError(t, err)
	assert.False(t, snapshot.TargetExists)
	assert.Equal(t, 2, snapshot.Count, "announcement reactors still count")
}

func TestTakeMissingAnnouncement(t *testing.T) {
	t.Parallel()

	client := platformtest.NewFakeClient()
	client.AddMessage(&platform.Message{ID: 200, ChannelID: 100})
	client.SetReactors(100, 200, []uint64{1, 2})

	svc := reaction.NewService(client, zaptest.NewLogger(t))

	snapshot, err := svc.Take(context.Background(), testVote(), "")
	require.NoError(t, err)
	assert.True(t, snapshot.TargetExists)
	assert.Equal(t, 2, snapshot.Count)
}

func TestTakeNoAnnouncementYet(t *testing.T) {
	t.Parallel()

	client := platformtest.NewFakeClient()
	client.AddMessage(&platform.Message{ID: 200, ChannelID: 100})
	client.SetReactors(100, 200, []uint64{1})

	vote := testVote()
	vote.AnnouncementChanID = 0
	vote.AnnouncementMsgID = 0

	svc := reaction.NewService(client, zaptest.NewLogger(t))

	snapshot, err := svc.Take(context.Background(), vote, "")
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Count)
}

func TestTakePropagatesTransientErrors(t *testing.T) {
	t.Parallel()

	client := platformtest.NewFakeClient()
	client.GetReactorsErr = platform.ErrPermissionDenied

	svc := reaction.NewService(client, zaptest.NewLogger(t))

	_, err := svc.Take(context.Background(), testVote(), "")
	require.ErrorIs(t, err, platform.ErrPermissionDenied)
}
