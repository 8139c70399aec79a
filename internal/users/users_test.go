package users

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamberthyl/chatsync/internal/common"
	"github.com/lamberthyl/chatsync/internal/models"
	"github.com/lamberthyl/chatsync/internal/store"
	"github.com/lamberthyl/chatsync/internal/store/memstore"
)

func seedUsers(t *testing.T, st store.Store, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		uid := fmt.Sprintf("u%02d", i)
		err := st.Write(ctx, store.UserPath(uid), map[string]any{
			"uid":      uid,
			"username": "user" + uid,
		})
		require.NoError(t, err)
	}
}

func TestGetUser(t *testing.T) {
	st := memstore.New()
	seedUsers(t, st, 1)
	svc := NewService(st, nil, "me")

	u, err := svc.GetUser(context.Background(), "u00")
	require.NoError(t, err)
	assert.Equal(t, "useru00", u.Username)

	_, err = svc.GetUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPaginateUsersExcludesCurrentUser(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	seedUsers(t, st, 5)
	svc := NewService(st, nil, "u02")

	node, err := svc.PaginateUsers(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, node.Users, 4)
	for _, u := range node.Users {
		assert.NotEqual(t, "u02", u.UID)
	}
}

func TestPaginateUsersCursorWalksWholeDirectory(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	seedUsers(t, st, 7)
	svc := NewService(st, nil, "u03")

	var all []models.User
	cursor := ""
	for iter := 0; iter < 10; iter++ {
		node, err := svc.PaginateUsers(ctx, cursor, 3)
		require.NoError(t, err)
		if node.NextCursor == "" {
			assert.Empty(t, node.Users)
			break
		}
		all = append(all, node.Users...)
		cursor = node.NextCursor
	}
	// 7 seeded minus the session user.
	require.Len(t, all, 6)

	// The cursor is the last raw key, so a page whose tail is the excluded
	// session user must not skip the record after it.
	uids := make([]string, 0, len(all))
	for _, u := range all {
		uids = append(uids, u.UID)
	}
	assert.Equal(t, []string{"u00", "u01", "u02", "u04", "u05", "u06"}, uids)
}

func TestPaginateUsersExhausted(t *testing.T) {
	st := memstore.New()
	svc := NewService(st, nil, "me")

	node, err := svc.PaginateUsers(context.Background(), "", 5)
	require.NoError(t, err)
	assert.Equal(t, models.EmptyUserNode, node)
}

func TestObserveUser(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	seedUsers(t, st, 1)
	svc := NewService(st, nil, "me")

	sub, err := svc.ObserveUser("u00")
	require.NoError(t, err)
	defer sub.Cancel()

	select {
	case u := <-sub.C:
		assert.Equal(t, "useru00", u.Username)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	require.NoError(t, st.Update(ctx, store.UserPath("u00"), map[string]any{"username": "renamed"}))
	select {
	case u := <-sub.C:
		assert.Equal(t, "renamed", u.Username)
	case <-time.After(2 * time.Second):
		t.Fatal("no update snapshot")
	}
}
