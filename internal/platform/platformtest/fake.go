// Package platformtest provides an in-memory platform.Client for tests.
package platformtest

import (
	"context"
	"sync"

	"github.com/quorumbot/quorum/internal/platform"
)

// MessageKey addresses a message in the fake store.
type MessageKey struct {
	ChannelID uint64
	MessageID uint64
}

// OverwriteKey addresses a member permission overwrite.
type OverwriteKey struct {
	ChannelID uint64
	UserID    uint64
}

// FakeClient is an in-memory platform.Client. Zero value is not usable;
// construct with NewFakeClient.
type FakeClient struct {
	mu sync.Mutex

	messages   map[MessageKey]*platform.Message
	reactors   map[MessageKey][]uint64
	overwrites map[OverwriteKey]struct{}
	parents    map[uint64]uint64

	deleted []MessageKey
	created map[MessageKey]platform.MessagePayload
	updated map[MessageKey]platform.MessagePayload

	nextMessageID uint64

	// Error hooks, returned by the matching method when set.
	GetMessageErr    error
	DeleteMessageErr error
	GetReactorsErr   error
	CreateMessageErr error
	UpdateMessageErr error
	DenyErr          error
	RemoveErr        error
}

// NewFakeClient creates an empty fake platform client.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		messages:      make(map[MessageKey]*platform.Message),
		reactors:      make(map[MessageKey][]uint64),
		overwrites:    make(map[OverwriteKey]struct{}),
		parents:       make(map[uint64]uint64),
		created:       make(map[MessageKey]platform.MessagePayload),
		updated:       make(map[MessageKey]platform.MessagePayload),
		nextMessageID: 90000,
	}
}

// AddMessage seeds a message.
func (f *FakeClient) AddMessage(msg *platform.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.messages[MessageKey{ChannelID: msg.ChannelID, MessageID: msg.ID}] = msg
}

// SetReactors seeds the reactor list for a message.
func (f *FakeClient) SetReactors(channelID, messageID uint64, userIDs []uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reactors[MessageKey{ChannelID: channelID, MessageID: messageID}] = userIDs
}

// SetParent maps a thread channel to its parent.
func (f *FakeClient) SetParent(threadID, parentID uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.parents[threadID] = parentID
}

// AddOverwrite seeds an existing mute overwrite.
func (f *FakeClient) AddOverwrite(channelID, userID uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.overwrites[OverwriteKey{ChannelID: channelID, UserID: userID}] = struct{}{}
}

// HasOverwrite checks whether a mute overwrite is present.
func (f *FakeClient) HasOverwrite(channelID, userID uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.overwrites[OverwriteKey{ChannelID: channelID, UserID: userID}]

	return ok
}

// Deleted returns the messages deleted so far.
func (f *FakeClient) Deleted() []MessageKey {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]MessageKey, len(f.deleted))
	copy(out, f.deleted)

	return out
}

// LastUpdate returns the last edit applied to a message.
func (f *FakeClient) LastUpdate(channelID, messageID uint64) (platform.MessagePayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	payload, ok := f.updated[MessageKey{ChannelID: channelID, MessageID: messageID}]

	return payload, ok
}

// CreatedPayload returns the payload a created message was posted with.
func (f *FakeClient) CreatedPayload(channelID, messageID uint64) (platform.MessagePayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	payload, ok := f.created[MessageKey{ChannelID: channelID, MessageID: messageID}]

	return payload, ok
}

func (f *FakeClient) GetMessage(_ context.Context, channelID, messageID uint64) (*platform.Message, error) {
	if f.GetMessageErr != nil {
		return nil, f.GetMessageErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	msg, ok := f.messages[MessageKey{ChannelID: channelID, MessageID: messageID}]
	if !ok {
		return nil, platform.ErrNotFound
	}

	return msg, nil
}

func (f *FakeClient) DeleteMessage(_ context.Context, channelID, messageID uint64) error {
	if f.DeleteMessageErr != nil {
		return f.DeleteMessageErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := MessageKey{ChannelID: channelID, MessageID: messageID}
	if _, ok := f.messages[key]; !ok {
		return platform.ErrNotFound
	}

	delete(f.messages, key)
	delete(f.reactors, key)
	f.deleted = append(f.deleted, key)

	return nil
}

func (f *FakeClient) GetReactors(_ context.Context, channelID, messageID uint64, _ string) ([]uint64, error) {
	if f.GetReactorsErr != nil {
		return nil, f.GetReactorsErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := MessageKey{ChannelID: channelID, MessageID: messageID}
	if _, ok := f.messages[key]; !ok {
		return nil, platform.ErrNotFound
	}

	return f.reactors[key], nil
}

func (f *FakeClient) CreateMessage(
	_ context.Context, channelID uint64, payload platform.MessagePayload,
) (uint64, error) {
	if f.CreateMessageErr != nil {
		return 0, f.CreateMessageErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextMessageID++
	id := f.nextMessageID
	key := MessageKey{ChannelID: channelID, MessageID: id}

	f.messages[key] = &platform.Message{ID: id, ChannelID: channelID}
	f.created[key] = payload

	return id, nil
}

func (f *FakeClient) UpdateMessage(
	_ context.Context, channelID, messageID uint64, payload platform.MessagePayload,
) error {
	if f.UpdateMessageErr != nil {
		return f.UpdateMessageErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := MessageKey{ChannelID: channelID, MessageID: messageID}
	if _, ok := f.messages[key]; !ok {
		return platform.ErrNotFound
	}

	f.updated[key] = payload

	return nil
}

func (f *FakeClient) DenySendMessages(_ context.Context, channelID, userID uint64) error {
	if f.DenyErr != nil {
		return f.DenyErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.overwrites[OverwriteKey{ChannelID: channelID, UserID: userID}] = struct{}{}

	return nil
}

func (f *FakeClient) RemoveSendOverwrite(_ context.Context, channelID, userID uint64) error {
	if f.RemoveErr != nil {
		return f.RemoveErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := OverwriteKey{ChannelID: channelID, UserID: userID}
	if _, ok := f.overwrites[key]; !ok {
		return platform.ErrNotFound
	}

	delete(f.overwrites, key)

	return nil
}

func (f *FakeClient) ParentTextChannel(_ context.Context, channelID uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if parent, ok := f.parents[channelID]; ok {
		return parent, nil
	}

	return channelID, nil
}
