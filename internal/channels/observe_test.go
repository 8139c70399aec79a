package channels

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamberthyl/chatsync/internal/blob/memblob"
	"github.com/lamberthyl/chatsync/internal/models"
	"github.com/lamberthyl/chatsync/internal/store"
	"github.com/lamberthyl/chatsync/internal/store/memstore"
	"github.com/lamberthyl/chatsync/internal/upload"
)

// flakyStore fails point reads of the listed paths.
type flakyStore struct {
	store.Store
	failPaths map[string]bool
}

func (f *flakyStore) Read(ctx context.Context, path string) (any, error) {
	if f.failPaths[path] {
		return nil, errors.New("scripted read failure")
	}
	return f.Store.Read(ctx, path)
}

func seedChannel(t *testing.T, st store.Store, id string, lastMessageSec float64) {
	t.Helper()
	err := st.Write(context.Background(), store.ChannelPath(id), map[string]any{
		models.ChannelFieldID:                   id,
		models.ChannelFieldLastMessage:          "hi",
		models.ChannelFieldLastMessageType:      "text",
		models.ChannelFieldLastMessageTimestamp: lastMessageSec,
		models.ChannelFieldMembersCount:         float64(2),
	})
	require.NoError(t, err)
}

func recvSnapshot(t *testing.T, c <-chan []models.Channel) []models.Channel {
	t.Helper()
	select {
	case snap, ok := <-c:
		require.True(t, ok, "snapshot channel closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func channelIDs(chs []models.Channel) []string {
	out := make([]string, 0, len(chs))
	for _, c := range chs {
		out = append(out, c.ID)
	}
	return out
}

func TestObserveChannelsSortedSnapshots(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	svc := newTestService(t, st)

	seedChannel(t, st, "c1", 200)
	seedChannel(t, st, "c2", 100)
	require.NoError(t, st.Write(ctx, store.UserChannelPath("me", "c1"), true))
	require.NoError(t, st.Write(ctx, store.UserChannelPath("me", "c2"), true))

	sub, err := svc.ObserveChannels(ctx)
	require.NoError(t, err)
	defer sub.Cancel()

	snap := recvSnapshot(t, sub.C)
	assert.Equal(t, []string{"c2", "c1"}, channelIDs(snap), "ascending by last activity")

	// A new membership produces a fresh full snapshot.
	seedChannel(t, st, "c3", 150)
	require.NoError(t, st.Write(ctx, store.UserChannelPath("me", "c3"), true))

	snap = recvSnapshot(t, sub.C)
	assert.Equal(t, []string{"c2", "c3", "c1"}, channelIDs(snap))
}

func TestObserveChannelsDropsUnresolvedIDs(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	fs := &flakyStore{Store: st, failPaths: map[string]bool{store.ChannelPath("c2"): true}}

	require.NoError(t, st.Write(ctx, store.UserPath(me.UID), me.AsMap()))
	svc := NewService(fs, upload.New(memblob.New(), nil), nil, me.UID)

	seedChannel(t, st, "c1", 100)
	seedChannel(t, st, "c2", 200)
	require.NoError(t, st.Write(ctx, store.UserChannelPath("me", "c1"), true))
	require.NoError(t, st.Write(ctx, store.UserChannelPath("me", "c2"), true))

	sub, err := svc.ObserveChannels(ctx)
	require.NoError(t, err)
	defer sub.Cancel()

	snap := recvSnapshot(t, sub.C)
	assert.Equal(t, []string{"c1"}, channelIDs(snap), "unresolved id drops, snapshot survives")
}

func TestObserveChannelsEmptyMembership(t *testing.T) {
	st := memstore.New()
	svc := newTestService(t, st)

	sub, err := svc.ObserveChannels(context.Background())
	require.NoError(t, err)
	defer sub.Cancel()

	snap := recvSnapshot(t, sub.C)
	assert.Empty(t, snap)
}

func TestObserveChannelInfo(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	svc := newTestService(t, st)
	seedChannel(t, st, "c1", 100)

	sub, err := svc.ObserveChannelInfo("c1")
	require.NoError(t, err)
	defer sub.Cancel()

	select {
	case ch := <-sub.C:
		assert.Equal(t, "hi", ch.LastMessage)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial detail snapshot")
	}

	require.NoError(t, st.Update(ctx, store.ChannelPath("c1"), map[string]any{
		models.ChannelFieldLastMessage: "changed",
	}))
	select {
	case ch := <-sub.C:
		assert.Equal(t, "changed", ch.LastMessage)
	case <-time.After(2 * time.Second):
		t.Fatal("no detail update")
	}
}

func TestObserveChannelsCancelClosesStream(t *testing.T) {
	st := memstore.New()
	svc := newTestService(t, st)

	sub, err := svc.ObserveChannels(context.Background())
	require.NoError(t, err)
	recvSnapshot(t, sub.C)
	sub.Cancel()

	select {
	case _, ok := <-sub.C:
		assert.False(t, ok, "snapshot channel should close after Cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot channel never closed")
	}
}
