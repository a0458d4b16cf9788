package executor_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quorumbot/quorum/internal/database/types"
	"github.com/quorumbot/quorum/internal/database/types/enum"
	"github.com/quorumbot/quorum/internal/moderation/escalation"
	"github.com/quorumbot/quorum/internal/moderation/executor"
	"github.com/quorumbot/quorum/internal/platform"
	"github.com/quorumbot/quorum/internal/platform/platformtest"
	"github.com/quorumbot/quorum/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// noon is a daytime instant at the configured UTC+8 offset.
var noon = time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)

type fakeStore struct {
	votes     map[uuid.UUID]*types.ModerationVote
	completed map[uuid.UUID]enum.CompletionReason
}

func newFakeStore(votes ...*types.ModerationVote) *fakeStore {
	s := &fakeStore{
		votes:     make(map[uuid.UUID]*types.ModerationVote),
		completed: make(map[uuid.UUID]enum.CompletionReason),
	}
	for _, v := range votes {
		s.votes[v.ID] = v
	}

	return s
}

func (s *fakeStore) AppendAction(_ context.Context, vote *types.ModerationVote, action types.PunishmentAction) error {
	vote.ExecutedActions = append(vote.ExecutedActions, action)
	return nil
}

func (s *fakeStore) CompleteVote(_ context.Context, voteID uuid.UUID, reason enum.CompletionReason) error {
	s.completed[voteID] = reason

	if v, ok := s.votes[voteID]; ok {
		v.Status = enum.VoteStatusCompleted
		v.CompletionReason = reason
	}

	return nil
}

func (s *fakeStore) SetMuteState(_ context.Context, voteID uuid.UUID, channelID uint64, endTime time.Time) error {
	if v, ok := s.votes[voteID]; ok {
		v.MuteChannelID = channelID
		v.MuteEndTime = &endTime
		v.MuteStatus = enum.MuteStatusActive
	}

	return nil
}

func (s *fakeStore) GetActiveVotesForMessage(_ context.Context, guildID, targetMessageID uint64) ([]*types.ModerationVote, error) {
	var out []*types.ModerationVote

	for _, v := range s.votes {
		if v.GuildID == guildID && v.TargetMessageID == targetMessageID && v.Status == enum.VoteStatusActive {
			out = append(out, v)
		}
	}

	return out, nil
}

type fakeHistory struct {
	entries map[uuid.UUID]*types.MuteHistoryEntry
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{entries: make(map[uuid.UUID]*types.MuteHistoryEntry)}
}

func (h *fakeHistory) AppendEntry(_ context.Context, entry *types.MuteHistoryEntry) error {
	if _, ok := h.entries[entry.VoteID]; ok {
		return nil // dedup by vote id
	}

	h.entries[entry.VoteID] = entry

	return nil
}

type fakeSettings struct {
	settings *types.GuildSettings
}

func (f *fakeSettings) GetGuildSettings(_ context.Context, _ uint64) (*types.GuildSettings, error) {
	return f.settings, nil
}

type fakeArchiver struct {
	archived []uint64
}

func (a *fakeArchiver) Archive(_ context.Context, _ *types.ModerationVote, msg *platform.Message, _ uint64) error {
	a.archived = append(a.archived, msg.ID)
	return nil
}

type fakeScheduler struct {
	scheduled []uuid.UUID
}

func (s *fakeScheduler) ScheduleUnmute(vote *types.ModerationVote) {
	s.scheduled = append(s.scheduled, vote.ID)
}

type fakeAnnouncer struct {
	finalized []uuid.UUID
}

func (a *fakeAnnouncer) Finalize(_ context.Context, vote *types.ModerationVote, _ int) error {
	a.finalized = append(a.finalized, vote.ID)
	return nil
}

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
			ThresholdMultiplier:  1.5,
			EarlyDeleteEnabled:   true,
			EarlyDeleteThreshold: 5,
			HistoryWindowDays:    15,
			LevelTableMinutes:    []int{10, 20, 30, 60, 120, 240, 360, 480, 600},
			OverflowMinutes:      720,
		},
	}
}

type fixture struct {
	exec      *executor.Executor
	store     *fakeStore
	history   *fakeHistory
	archiver  *fakeArchiver
	scheduler *fakeScheduler
	announcer *fakeAnnouncer
	client    *platformtest.FakeClient
}

func newFixture(t *testing.T, archiveEnabled bool, votes ...*types.ModerationVote) *fixture {
	t.Helper()

	store := newFakeStore(votes...)
	history := newFakeHistory()
	archiver := &fakeArchiver{}
	scheduler := &fakeScheduler{}
	announcer := &fakeAnnouncer{}
	client := platformtest.NewFakeClient()
	settings := &fakeSettings{settings: &types.GuildSettings{
		GuildID:          1,
		ArchiveEnabled:   archiveEnabled,
		ArchiveChannelID: 9000,
	}}

	exec := executor.New(
		store, history, settings, archiver, scheduler, announcer, client,
		escalation.New(testSelfMod()), zaptest.NewLogger(t),
	)

	return &fixture{
		exec:      exec,
		store:     store,
		history:   history,
		archiver:  archiver,
		scheduler: scheduler,
		announcer: announcer,
		client:    client,
	}
}

func newVote(voteType enum.VoteType) *types.ModerationVote {
	return &types.ModerationVote{
		ID:              uuid.New(),
		GuildID:         1,
		TargetChannelID: 100,
		TargetMessageID: 200,
		TargetUserID:    50,
		Type:            voteType,
		Status:          enum.VoteStatusActive,
		TargetExists:    true,
		Initiators:      []uint64{60},
		StartTime:       noon.Add(-time.Minute),
		EndTime:         noon.Add(9 * time.Minute),
	}
}

func seedTarget(f *fixture) {
	f.client.AddMessage(&platform.Message{ID: 200, ChannelID: 100, GuildID: 1, AuthorID: 50})
}

func TestDeleteAtThreshold(t *testing.T) {
	t.Parallel()

	vote := newVote(enum.VoteTypeDelete)
	f := newFixture(t, false, vote)
	seedTarget(f)

	require.NoError(t, f.exec.Execute(context.Background(), vote, 10, noon))

	require.Len(t, f.client.Deleted(), 1)
	assert.True(t, vote.HasAction(enum.ActionTypeDelete))
	assert.Equal(t, enum.CompletionReasonExecuted, f.store.completed[vote.ID])

	// A replayed sweep never deletes twice.
	require.NoError(t, f.exec.Execute(context.Background(), vote, 12, noon))
	assert.Len(t, f.client.Deleted(), 1)
	assert.Len(t, vote.ExecutedActions, 1)
}

func TestDeleteBelowThreshold(t *testing.T) {
	t.Parallel()

	vote := newVote(enum.VoteTypeDelete)
	f := newFixture(t, false, vote)
	seedTarget(f)

	require.NoError(t, f.exec.Execute(context.Background(), vote, 9, noon))
	assert.Empty(t, f.client.Deleted())
	assert.Empty(t, vote.ExecutedActions)
}

func TestDeleteAlreadyGone(t *testing.T) {
	t.Parallel()

	vote := newVote(enum.VoteTypeDelete)
	f := newFixture(t, false, vote)
	// Target never seeded: the platform reports not found.

	require.NoError(t, f.exec.Execute(context.Background(), vote, 10, noon))

	action := vote.LastAction(enum.ActionTypeDelete)
	require.NotNil(t, action)
	assert.Equal(t, enum.ActionResultAlreadyGone, action.Result)
	assert.Equal(t, enum.CompletionReasonExecuted, f.store.completed[vote.ID])
}

func TestDeleteArchivesFirst(t *testing.T) {
	t.Parallel()

	vote := newVote(enum.VoteTypeDelete)
	f := newFixture(t, true, vote)
	seedTarget(f)

	require.NoError(t, f.exec.Execute(context.Background(), vote, 10, noon))

	assert.Equal(t, []uint64{200}, f.archiver.archived)

	action := vote.LastAction(enum.ActionTypeDelete)
	require.NotNil(t, action)
	assert.True(t, action.Archived)
}

func TestDeleteDefersToConcurrentMute(t *testing.T) {
	t.Parallel()

	deleteVote := newVote(enum.VoteTypeDelete)
	muteVote := newVote(enum.VoteTypeMute)
	f := newFixture(t, false, deleteVote, muteVote)
	seedTarget(f)

	require.NoError(t, f.exec.Execute(context.Background(), deleteVote, 10, noon))

	assert.Empty(t, f.client.Deleted(), "target survives while the mute vote runs")
	assert.True(t, deleteVote.DeleteDeferred())
	assert.NotContains(t, f.store.completed, deleteVote.ID)
}

func TestMuteEscalatesMonotonically(t *testing.T) {
	t.Parallel()

	vote := newVote(enum.VoteTypeMute)
	f := newFixture(t, false, vote)
	seedTarget(f)

	// Threshold reached: base 10 minutes.
	require.NoError(t, f.exec.Execute(context.Background(), vote, 10, noon))
	assert.True(t, f.client.HasOverwrite(100, 50))
	assert.Equal(t, 10, vote.AppliedMuteMinutes())
	require.NotNil(t, vote.MuteEndTime)
	assert.Equal(t, noon.Add(10*time.Minute), *vote.MuteEndTime)

	// Three more reactors: 25 total, 15 additional on top of the end.
	require.NoError(t, f.exec.Execute(context.Background(), vote, 13, noon))
	assert.Equal(t, 25, vote.AppliedMuteMinutes())
	assert.Equal(t, noon.Add(25*time.Minute), *vote.MuteEndTime)

	// Reactions dropped: nothing is clawed back.
	require.NoError(t, f.exec.Execute(context.Background(), vote, 11, noon))
	assert.Equal(t, 25, vote.AppliedMuteMinutes())
	assert.Equal(t, noon.Add(25*time.Minute), *vote.MuteEndTime)

	assert.Len(t, f.scheduler.scheduled, 2)
}

func TestMuteBelowThreshold(t *testing.T) {
	t.Parallel()

	vote := newVote(enum.VoteTypeMute)
	f := newFixture(t, false, vote)
	seedTarget(f)

	require.NoError(t, f.exec.Execute(context.Background(), vote, 9, noon))
	assert.False(t, f.client.HasOverwrite(100, 50))
	assert.Zero(t, vote.AppliedMuteMinutes())
}

func TestMuteUsesParentChannelForThreads(t *testing.T) {
	t.Parallel()

	vote := newVote(enum.VoteTypeMute)
	f := newFixture(t, false, vote)
	seedTarget(f)
	f.client.SetParent(100, 77)

	require.NoError(t, f.exec.Execute(context.Background(), vote, 10, noon))
	assert.True(t, f.client.HasOverwrite(77, 50))
	assert.Equal(t, uint64(77), vote.MuteChannelID)
}

func TestSeriousMuteUsesFrozenParameters(t *testing.T) {
	t.Parallel()

	vote := newVote(enum.VoteTypeSeriousMute)
	vote.SeriousBase = 15
	vote.InitialPrev = 3
	f := newFixture(t, false, vote)
	seedTarget(f)

	// Level 3 prior + 1 step = 4, table entry 60 minutes.
	require.NoError(t, f.exec.Execute(context.Background(), vote, 15, noon))
	assert.Equal(t, 60, vote.AppliedMuteMinutes())

	action := vote.LastAction(enum.ActionTypeMute)
	require.NotNil(t, action)
	assert.Equal(t, 4, action.Level)

	// One history entry, recorded once per vote.
	require.Len(t, f.history.entries, 1)
	entry := f.history.entries[vote.ID]
	assert.Equal(t, 4, entry.Level)

	// Two steps from doubled support: level 5, total 120 minutes.
	require.NoError(t, f.exec.Execute(context.Background(), vote, 30, noon))
	assert.Equal(t, 120, vote.AppliedMuteMinutes())
	assert.Len(t, f.history.entries, 1)
}

func TestSeriousMuteEarlyDelete(t *testing.T) {
	t.Parallel()

	vote := newVote(enum.VoteTypeSeriousMute)
	vote.SeriousBase = 15
	f := newFixture(t, false, vote)
	seedTarget(f)

	// Early delete fires below the mute threshold; the vote keeps going.
	require.NoError(t, f.exec.Execute(context.Background(), vote, 5, noon))
	assert.Len(t, f.client.Deleted(), 1)
	assert.True(t, vote.HasAction(enum.ActionTypeDeleteNow))
	assert.NotContains(t, f.store.completed, vote.ID)
	assert.Zero(t, vote.AppliedMuteMinutes())

	// Reaching the mute threshold later still mutes, without re-deleting.
	require.NoError(t, f.exec.Execute(context.Background(), vote, 15, noon))
	assert.Len(t, f.client.Deleted(), 1)
	assert.Positive(t, vote.AppliedMuteMinutes())
}

func TestHandleExpiryCompletesVote(t *testing.T) {
	t.Parallel()

	vote := newVote(enum.VoteTypeMute)
	f := newFixture(t, false, vote)

	done, err := f.exec.HandleExpiry(context.Background(), vote, 4, noon.Add(11*time.Minute))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, enum.CompletionReasonExpired, f.store.completed[vote.ID])
}

func TestHandleExpiryDeferredDeleteWaits(t *testing.T) {
	t.Parallel()

	deleteVote := newVote(enum.VoteTypeDelete)
	muteVote := newVote(enum.VoteTypeMute)
	f := newFixture(t, false, deleteVote, muteVote)
	seedTarget(f)

	// Defer the delete to the running mute vote.
	require.NoError(t, f.exec.Execute(context.Background(), deleteVote, 10, noon))
	require.True(t, deleteVote.DeleteDeferred())

	// The delete vote's own window closing does not complete it.
	done, err := f.exec.HandleExpiry(context.Background(), deleteVote, 10, noon.Add(11*time.Minute))
	require.NoError(t, err)
	assert.False(t, done)
	assert.Empty(t, f.client.Deleted())

	// The mute vote closing performs the handed-off delete.
	done, err = f.exec.HandleExpiry(context.Background(), muteVote, 3, noon.Add(11*time.Minute))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Len(t, f.client.Deleted(), 1)
	assert.Equal(t, enum.CompletionReasonExecuted, f.store.completed[deleteVote.ID])

	// The sibling left the active set here, so its announcement must be
	// finalized now; the worker only finalizes the mute vote.
	assert.Equal(t, enum.VoteStatusCompleted, deleteVote.Status)
	assert.Contains(t, f.announcer.finalized, deleteVote.ID)
}

func TestHandleTargetGone(t *testing.T) {
	t.Parallel()

	vote := newVote(enum.VoteTypeMute)
	endTime := noon.Add(30 * time.Minute)
	vote.MuteEndTime = &endTime
	vote.MuteStatus = enum.MuteStatusActive
	f := newFixture(t, false, vote)

	require.NoError(t, f.exec.HandleTargetGone(context.Background(), vote))
	assert.Equal(t, enum.CompletionReasonTargetGone, f.store.completed[vote.ID])
	assert.Equal(t, enum.MuteStatusActive, vote.MuteStatus, "applied mutes stay in force")
}
