// Package users reads the remote user directory: point lookups, live
// profile observation and key-ordered pagination.
package users

import (
	"context"
	"fmt"

	"github.com/lamberthyl/chatsync/internal/common"
	"github.com/lamberthyl/chatsync/internal/logging"
	"github.com/lamberthyl/chatsync/internal/models"
	"github.com/lamberthyl/chatsync/internal/store"
)

type Service struct {
	store store.Store
	log   logging.Logger
	// currentUID is the local session's user; it is excluded from
	// directory pages.
	currentUID string
}

func NewService(st store.Store, log logging.Logger, currentUID string) *Service {
	if log == nil {
		log = logging.Nop()
	}
	return &Service{store: st, log: log, currentUID: currentUID}
}

// GetUser resolves a single user record. Returns common.ErrNotFound when the
// uid has no record.
func (s *Service) GetUser(ctx context.Context, uid string) (models.User, error) {
	v, err := s.store.Read(ctx, store.UserPath(uid))
	if err != nil {
		return models.User{}, fmt.Errorf("users: get %s: %w", uid, err)
	}
	return models.DecodeUser(v), nil
}

// PaginateUsers fetches one page of the directory ordered by key. The cursor
// is the last raw key of the previous page; an empty cursor starts from the
// beginning. An exhausted directory yields models.EmptyUserNode.
func (s *Service) PaginateUsers(ctx context.Context, cursor string, pageSize int) (models.UserNode, error) {
	if pageSize <= 0 {
		pageSize = common.UsersPageSize
	}
	children, err := s.store.QueryPage(ctx, store.UsersRoot, store.OrderByKey, cursor, pageSize)
	if err != nil {
		return models.UserNode{}, fmt.Errorf("users: paginate: %w", err)
	}
	if len(children) == 0 {
		return models.EmptyUserNode, nil
	}
	page := make([]models.User, 0, len(children))
	for _, c := range children {
		u := models.DecodeUser(c.Value)
		if u.UID == s.currentUID {
			continue
		}
		page = append(page, u)
	}
	// The next cursor is the last raw key, current user included, so no
	// record is ever skipped.
	return models.UserNode{
		Users:      page,
		NextCursor: children[len(children)-1].Key,
	}, nil
}

// UserSubscription delivers live profile snapshots for one user.
type UserSubscription struct {
	C      <-chan models.User
	cancel func()
}

func (s *UserSubscription) Cancel() { s.cancel() }

// ObserveUser attaches a live listener on the user's record: current value
// first, then every subsequent profile change. Absent records are skipped.
func (s *Service) ObserveUser(uid string) (*UserSubscription, error) {
	sub, err := s.store.ObserveValue(store.UserPath(uid))
	if err != nil {
		return nil, fmt.Errorf("users: observe %s: %w", uid, err)
	}
	out := make(chan models.User, 8)
	go func() {
		defer close(out)
		for ev := range sub.C {
			if ev.Value == nil {
				continue
			}
			select {
			case out <- models.DecodeUser(ev.Value):
			default:
			}
		}
	}()
	return &UserSubscription{C: out, cancel: sub.Cancel}, nil
}
