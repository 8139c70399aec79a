package channels

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamberthyl/chatsync/internal/blob/memblob"
	"github.com/lamberthyl/chatsync/internal/common"
	"github.com/lamberthyl/chatsync/internal/models"
	"github.com/lamberthyl/chatsync/internal/store"
	"github.com/lamberthyl/chatsync/internal/store/memstore"
	"github.com/lamberthyl/chatsync/internal/upload"
)

var (
	me    = models.User{UID: "me", Username: "alice", Email: "a@x.io"}
	bob   = models.User{UID: "bob", Username: "bob", Email: "b@x.io"}
	carol = models.User{UID: "carol", Username: "carol", Email: "c@x.io"}
)

func newTestService(t *testing.T, st store.Store) *Service {
	t.Helper()
	require.NoError(t, st.Write(context.Background(), store.UserPath(me.UID), me.AsMap()))
	uploader := upload.New(memblob.New(), nil)
	return NewService(st, uploader, nil, me.UID, WithClock(func() time.Time {
		return time.UnixMilli(1700000000000)
	}))
}

func messagesOf(t *testing.T, st store.Store, channelID string) map[string]any {
	t.Helper()
	v, err := st.Read(context.Background(), store.ChannelMessagesPath(channelID))
	require.NoError(t, err)
	return v.(map[string]any)
}

func TestCreateGroupChannel(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	svc := newTestService(t, st)

	ch, err := svc.CreateChannel(ctx, "  book club  ", []models.User{bob, carol})
	require.NoError(t, err)
	require.NotEmpty(t, ch.ID)
	assert.Equal(t, "book club", ch.Name)
	assert.Equal(t, 3, ch.MembersCount)
	assert.True(t, ch.IsGroupChat())
	assert.Equal(t, []models.User{me, bob, carol}, ch.Members)

	// Channel record persisted.
	v, err := st.Read(ctx, store.ChannelPath(ch.ID))
	require.NoError(t, err)
	record := models.DecodeChannel(v)
	assert.Equal(t, ch.ID, record.ID)
	assert.Equal(t, []string{"me", "bob", "carol"}, record.MemberUIDs)
	assert.Equal(t, []string{"me"}, record.AdminUIDs)
	assert.Equal(t, "me", record.CreatedBy)

	// Exactly one creation message, typed as the admin subtype.
	msgs := messagesOf(t, st, ch.ID)
	require.Len(t, msgs, 1)
	for id, raw := range msgs {
		msg := models.DecodeMessage(id, raw)
		assert.True(t, msg.Type.IsAdmin())
		assert.Equal(t, "me", msg.OwnerUID)
		assert.Equal(t, "alice", msg.Sender.Username)
	}

	// Membership index per member.
	for _, uid := range []string{"me", "bob", "carol"} {
		v, err := st.Read(ctx, store.UserChannelPath(uid, ch.ID))
		require.NoError(t, err, "missing membership index for %s", uid)
		assert.Equal(t, true, v)
	}

	// No direct index for a group.
	_, err = st.Read(ctx, store.UserDirectChannelPath("me", "bob"))
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCreateDirectChannelIndexesBothSides(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	svc := newTestService(t, st)

	ch, err := svc.CreateChannel(ctx, "", []models.User{bob})
	require.NoError(t, err)
	assert.False(t, ch.IsGroupChat())

	for _, pair := range [][2]string{{"me", "bob"}, {"bob", "me"}} {
		v, err := st.Read(ctx, store.UserDirectChannelPath(pair[0], pair[1]))
		require.NoError(t, err)
		index := v.(map[string]any)
		assert.Equal(t, true, index[ch.ID])
	}
}

func TestCreateDirectChannelReusesExisting(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	svc := newTestService(t, st)

	first, err := svc.CreateChannel(ctx, "", []models.User{bob})
	require.NoError(t, err)

	second, err := svc.CreateChannel(ctx, "", []models.User{bob})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// No second channel record was written.
	v, err := st.Read(ctx, store.ChannelsRoot)
	require.NoError(t, err)
	assert.Len(t, v.(map[string]any), 1)
}

func TestCreateChannelMissingCurrentUser(t *testing.T) {
	st := memstore.New()
	uploader := upload.New(memblob.New(), nil)
	svc := NewService(st, uploader, nil, "ghost")

	_, err := svc.CreateChannel(context.Background(), "", []models.User{bob})
	assert.ErrorIs(t, err, common.ErrCurrentUserNotFound)
}

func TestSendTextMessage(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	svc := newTestService(t, st)

	ch, err := svc.CreateChannel(ctx, "", []models.User{bob})
	require.NoError(t, err)

	require.NoError(t, svc.SendTextMessage(ctx, ch, "hello bob"))

	v, err := st.Read(ctx, store.ChannelPath(ch.ID))
	require.NoError(t, err)
	updated := models.DecodeChannel(v)
	assert.Equal(t, "hello bob", updated.LastMessage)
	assert.Equal(t, models.MessageTypeText, updated.LastMessageType)
	// Creation metadata survives the partial update.
	assert.Equal(t, []string{"me", "bob"}, updated.MemberUIDs)

	msgs := messagesOf(t, st, ch.ID)
	require.Len(t, msgs, 2)
	var found bool
	for id, raw := range msgs {
		msg := models.DecodeMessage(id, raw)
		if msg.Type == models.MessageTypeText {
			found = true
			assert.Equal(t, "hello bob", msg.Text)
			assert.Equal(t, models.DirectionOutgoing, msg.Direction("me"))
			assert.Equal(t, "alice", msg.Sender.Username)
		}
	}
	assert.True(t, found, "text message not persisted")
}

func TestSendAttachments(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	svc := newTestService(t, st)

	ch, err := svc.CreateChannel(ctx, "", []models.User{bob})
	require.NoError(t, err)

	att := models.ImageAttachment{
		ID:        "f1",
		Thumbnail: models.Thumbnail{Data: []byte("jpeg"), Width: 100, Height: 50},
	}
	var fractions []float64
	err = svc.SendAttachments(ctx, ch, "look", []models.MediaAttachment{att}, func(p upload.Progress) {
		fractions = append(fractions, p.Fraction)
	})
	require.NoError(t, err)

	last := -1.0
	for _, f := range fractions {
		assert.Greater(t, f, last)
		last = f
	}

	msgs := messagesOf(t, st, ch.ID)
	require.Len(t, msgs, 2)
	var photo models.Message
	for id, raw := range msgs {
		if msg := models.DecodeMessage(id, raw); msg.Type == models.MessageTypePhoto {
			photo = msg
		}
	}
	require.NotEmpty(t, photo.ID, "photo message not persisted")
	assert.Equal(t, "look", photo.Text)
	assert.Contains(t, photo.ThumbnailURL, "mem://photo_messages/")
	assert.Equal(t, 100.0, photo.ThumbnailWidth)
	assert.Equal(t, 50.0, photo.ThumbnailHeight)

	v, err := st.Read(ctx, store.ChannelPath(ch.ID))
	require.NoError(t, err)
	updated := models.DecodeChannel(v)
	assert.Equal(t, models.MessageTypePhoto, updated.LastMessageType)
	assert.Equal(t, "look", updated.LastMessage)
}

func TestSendAttachmentsFailureStopsSend(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	blobs := memblob.New()
	blobs.FailPrefix = "photo_messages"
	require.NoError(t, st.Write(ctx, store.UserPath(me.UID), me.AsMap()))
	svc := NewService(st, upload.New(blobs, nil), nil, me.UID)

	ch, err := svc.CreateChannel(ctx, "", []models.User{bob})
	require.NoError(t, err)

	att := models.ImageAttachment{ID: "f1", Thumbnail: models.Thumbnail{Data: []byte("jpeg")}}
	err = svc.SendAttachments(ctx, ch, "", []models.MediaAttachment{att}, nil)
	require.Error(t, err)
	var stageErr *upload.Error
	assert.ErrorAs(t, err, &stageErr)

	// Only the creation message exists; the failed attachment wrote nothing.
	msgs := messagesOf(t, st, ch.ID)
	assert.Len(t, msgs, 1)
}
