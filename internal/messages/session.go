// Package messages merges, for one open channel, the live newest-message
// listener with cursor-paginated historical fetches into a single
// time-ordered, duplicate-free message list.
package messages

import (
	"context"
	"fmt"
	"sync"

	"github.com/lamberthyl/chatsync/internal/common"
	"github.com/lamberthyl/chatsync/internal/logging"
	"github.com/lamberthyl/chatsync/internal/models"
	"github.com/lamberthyl/chatsync/internal/store"
)

// Merger opens per-channel sessions against the remote store.
type Merger struct {
	store    store.Store
	log      logging.Logger
	pageSize int
}

// Option configures a Merger.
type Option func(*Merger)

// WithPageSize overrides the historical page size.
func WithPageSize(n int) Option {
	return func(m *Merger) { m.pageSize = n }
}

func NewMerger(st store.Store, log logging.Logger, opts ...Option) *Merger {
	if log == nil {
		log = logging.Nop()
	}
	m := &Merger{store: st, log: log, pageSize: common.MessagesPageSize}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Session is the merged view of one open channel. The merged list is held
// newest-first: live arrivals are prepended, historical pages appended at
// the tail. State is independent across sessions; no cross-channel locking.
type Session struct {
	merger     *Merger
	channelID  string
	currentUID string
	sub        *store.Subscription
	live       chan models.Message

	mu      sync.Mutex
	msgs    []models.Message    // newest first
	seen    map[string]struct{} // message ids present in msgs
	cursor  string              // last raw key of the previous page
	hasMore bool
	loading bool
}

// Open attaches the live listener for the channel and returns its session.
// Opening a new channel for the same screen is the caller's cue to Close the
// previous session first, or its listener keeps delivering stale data.
func (m *Merger) Open(channelID, currentUID string) (*Session, error) {
	sub, err := m.store.ObserveChildAdded(store.ChannelMessagesPath(channelID), store.OrderByKey)
	if err != nil {
		return nil, fmt.Errorf("messages: open %s: %w", channelID, err)
	}
	s := &Session{
		merger:     m,
		channelID:  channelID,
		currentUID: currentUID,
		sub:        sub,
		live:       make(chan models.Message, 64),
		seen:       map[string]struct{}{},
		hasMore:    true,
	}
	go s.consumeLive()
	return s, nil
}

// Live delivers each newly arrived message. The channel is closed by Close.
func (s *Session) Live() <-chan models.Message { return s.live }

// Snapshot returns a copy of the merged list, newest first.
func (s *Session) Snapshot() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// HasMore reports whether older history may remain.
func (s *Session) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// Direction derives the message direction for this session's user.
func (s *Session) Direction(msg models.Message) models.MessageDirection {
	return msg.Direction(s.currentUID)
}

// Close cancels the live listener. Idempotent.
func (s *Session) Close() {
	s.sub.Cancel()
}

func (s *Session) consumeLive() {
	defer close(s.live)
	for ev := range s.sub.C {
		msg := models.DecodeMessage(ev.Key, ev.Value)
		if !s.prepend(msg) {
			// Already delivered through a historical page.
			continue
		}
		select {
		case s.live <- msg:
		default:
			s.merger.log.Warn(context.Background(), "live consumer behind, dropping message", "channelId", s.channelID, "messageId", msg.ID)
		}
	}
}

// prepend adds a live message ahead of everything already merged. Returns
// false when the id is already present.
func (s *Session) prepend(msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[msg.ID]; dup {
		return false
	}
	s.seen[msg.ID] = struct{}{}
	s.msgs = append([]models.Message{msg}, s.msgs...)
	return true
}

// LoadOlder fetches the next historical page, ordered descending by
// timestamp, using the last message id of the previous page as the
// exclusive-start cursor. At most one call is in flight: a call made while
// one is pending, or after history is exhausted, is a coalesced no-op
// returning (nil, hasMore, nil). On a failed fetch the in-flight flag is
// cleared so a later pagination signal can retry.
func (s *Session) LoadOlder(ctx context.Context) ([]models.Message, bool, error) {
	s.mu.Lock()
	if s.loading || !s.hasMore {
		hasMore := s.hasMore
		s.mu.Unlock()
		return nil, hasMore, nil
	}
	s.loading = true
	cursor := s.cursor
	s.mu.Unlock()

	page, err := s.merger.store.QueryPage(ctx,
		store.ChannelMessagesPath(s.channelID),
		store.OrderByKeyDesc,
		cursor,
		s.merger.pageSize,
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		return nil, s.hasMore, fmt.Errorf("messages: load older: %w", err)
	}

	s.hasMore = len(page) == s.merger.pageSize
	if len(page) > 0 {
		// Cursor advances over the raw page, duplicates included, so a
		// dup-heavy page cannot stall pagination.
		s.cursor = page[len(page)-1].Key
	}

	appended := make([]models.Message, 0, len(page))
	for _, child := range page {
		msg := models.DecodeMessage(child.Key, child.Value)
		if _, dup := s.seen[msg.ID]; dup {
			continue
		}
		s.seen[msg.ID] = struct{}{}
		appended = append(appended, msg)
	}
	s.msgs = append(s.msgs, appended...)
	return appended, s.hasMore, nil
}
