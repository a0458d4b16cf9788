package unmute_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quorumbot/quorum/internal/database/types"
	"github.com/quorumbot/quorum/internal/database/types/enum"
	"github.com/quorumbot/quorum/internal/platform/platformtest"
	"github.com/quorumbot/quorum/internal/setup/config"
	"github.com/quorumbot/quorum/internal/worker/unmute"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeStore struct {
	votes map[uuid.UUID]*types.ModerationVote

	maxAttempts int
}

func newFakeStore(maxAttempts int, votes ...*types.ModerationVote) *fakeStore {
	s := &fakeStore{
		votes:       make(map[uuid.UUID]*types.ModerationVote),
		maxAttempts: maxAttempts,
	}
	for _, v := range votes {
		s.votes[v.ID] = v
	}

	return s
}

func (s *fakeStore) GetExpiredMutes(_ context.Context, now time.Time) ([]*types.ModerationVote, error) {
	var out []*types.ModerationVote

	for _, v := range s.votes {
		if v.MuteStatus == enum.MuteStatusActive && v.MuteEndTime != nil && !v.MuteEndTime.After(now) {
			out = append(out, v)
		}
	}

	return out, nil
}

func (s *fakeStore) MarkUnmuted(_ context.Context, voteID uuid.UUID) error {
	s.votes[voteID].MuteStatus = enum.MuteStatusLifted
	return nil
}

func (s *fakeStore) RecordUnmuteFailure(_ context.Context, voteID uuid.UUID, removeErr error, maxAttempts int) error {
	v := s.votes[voteID]
	v.UnmuteAttempts++
	v.LastUnmuteError = removeErr.Error()

	if v.UnmuteAttempts >= maxAttempts {
		v.MuteStatus = enum.MuteStatusFailed
	}

	return nil
}

func testSelfMod() *config.SelfMod {
	return &config.SelfMod{
		MuteCheckIntervalSeconds: 120,
		MaxUnmuteAttempts:        3,
		VerifyUnmute:             true,
	}
}

func expiredMute() *types.ModerationVote {
	endTime := time.Now().Add(-time.Minute)

	return &types.ModerationVote{
		ID:              uuid.New(),
		GuildID:         1,
		TargetChannelID: 100,
		TargetMessageID: 200,
		TargetUserID:    50,
		Type:            enum.VoteTypeMute,
		MuteChannelID:   100,
		MuteEndTime:     &endTime,
		MuteStatus:      enum.MuteStatusActive,
	}
}

func TestSweepLiftsExpiredMute(t *testing.T) {
	t.Parallel()

	vote := expiredMute()
	store := newFakeStore(3, vote)
	client := platformtest.NewFakeClient()
	client.AddOverwrite(100, 50)

	w := unmute.New(store, client, testSelfMod(), zaptest.NewLogger(t))
	w.Sweep(context.Background())

	assert.False(t, client.HasOverwrite(100, 50))
	assert.Equal(t, enum.MuteStatusLifted, vote.MuteStatus)
}

func TestSweepTreatsMissingOverwriteAsLifted(t *testing.T) {
	t.Parallel()

	vote := expiredMute()
	store := newFakeStore(3, vote)
	client := platformtest.NewFakeClient()
	// No overwrite seeded: removal reports not found.

	w := unmute.New(store, client, testSelfMod(), zaptest.NewLogger(t))
	w.Sweep(context.Background())

	assert.Equal(t, enum.MuteStatusLifted, vote.MuteStatus)
}

func TestSweepSkipsUnexpiredMutes(t *testing.T) {
	t.Parallel()

	vote := expiredMute()
	future := time.Now().Add(time.Hour)
	vote.MuteEndTime = &future

	store := newFakeStore(3, vote)
	client := platformtest.NewFakeClient()
	client.AddOverwrite(100, 50)

	w := unmute.New(store, client, testSelfMod(), zaptest.NewLogger(t))
	w.Sweep(context.Background())

	assert.True(t, client.HasOverwrite(100, 50))
	assert.Equal(t, enum.MuteStatusActive, vote.MuteStatus)
}

func TestSweepBoundedRetries(t *testing.T) {
	t.Parallel()

	vote := expiredMute()
	store := newFakeStore(3, vote)
	client := platformtest.NewFakeClient()
	client.RemoveErr = errors.New("api unavailable")

	w := unmute.New(store, client, testSelfMod(), zaptest.NewLogger(t))

	// Two failed sweeps stay retryable.
	w.Sweep(context.Background())
	w.Sweep(context.Background())
	assert.Equal(t, enum.MuteStatusActive, vote.MuteStatus)
	assert.Equal(t, 2, vote.UnmuteAttempts)

	// The third exhausts the budget.
	w.Sweep(context.Background())
	assert.Equal(t, enum.MuteStatusFailed, vote.MuteStatus)
	assert.Equal(t, "api unavailable", vote.LastUnmuteError)

	// Failed mutes drop out of later sweeps.
	w.Sweep(context.Background())
	assert.Equal(t, 3, vote.UnmuteAttempts)
}

func TestScheduleUnmuteFastPath(t *testing.T) {
	t.Parallel()

	vote := expiredMute()
	endTime := time.Now().Add(20 * time.Millisecond)
	vote.MuteEndTime = &endTime

	store := newFakeStore(3, vote)
	client := platformtest.NewFakeClient()
	client.AddOverwrite(100, 50)

	w := unmute.New(store, client, testSelfMod(), zaptest.NewLogger(t))
	w.ScheduleUnmute(vote)

	require.Eventually(t, func() bool {
		return !client.HasOverwrite(100, 50)
	}, time.Second, 5*time.Millisecond)

	// The fast path never writes the store; the sweep still owns that.
	assert.Equal(t, enum.MuteStatusActive, vote.MuteStatus)

	w.Sweep(context.Background())
	assert.Equal(t, enum.MuteStatusLifted, vote.MuteStatus)
}
