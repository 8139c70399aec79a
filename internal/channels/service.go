// Package channels maintains the live channel set of the current user and
// owns the channel-level operations: creation, text sends and attachment
// sends. All mutation flows through the remote store; callers hold immutable
// snapshots.
package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lamberthyl/chatsync/internal/common"
	"github.com/lamberthyl/chatsync/internal/logging"
	"github.com/lamberthyl/chatsync/internal/models"
	"github.com/lamberthyl/chatsync/internal/store"
	"github.com/lamberthyl/chatsync/internal/upload"
)

// Service is scoped to one local user session.
type Service struct {
	store      store.Store
	log        logging.Logger
	uploader   *upload.Orchestrator
	currentUID string
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, uploader *upload.Orchestrator, log logging.Logger, currentUID string, opts ...Option) *Service {
	if log == nil {
		log = logging.Nop()
	}
	s := &Service{
		store:      st,
		log:        log,
		uploader:   uploader,
		currentUID: currentUID,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) currentUser(ctx context.Context) (models.User, error) {
	v, err := s.store.Read(ctx, store.UserPath(s.currentUID))
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %s", common.ErrCurrentUserNotFound, s.currentUID)
	}
	return models.DecodeUser(v), nil
}

// CreateChannel creates a channel between the current user and partners, or
// returns the existing direct channel when there is exactly one partner and
// the pair already has one. The lookup and the create are not transactional
// against the store, so two near-simultaneous creations between the same
// pair can still race into two channels.
func (s *Service) CreateChannel(ctx context.Context, name string, partners []models.User) (models.Channel, error) {
	channelID, err := s.store.GenerateKey(store.ChannelsRoot)
	if err != nil {
		return models.Channel{}, fmt.Errorf("%w: %v", common.ErrChannelIDGeneration, err)
	}
	current, err := s.currentUser(ctx)
	if err != nil {
		return models.Channel{}, err
	}
	adminMessageID, err := s.store.GenerateKey(store.ChannelMessagesRoot)
	if err != nil {
		return models.Channel{}, fmt.Errorf("%w: %v", common.ErrAdminMessageIDGeneration, err)
	}

	if len(partners) == 1 {
		if existing, ok := s.findDirectChannel(ctx, partners[0].UID); ok {
			return existing, nil
		}
	}

	timestamp := models.TimeToSeconds(s.now())
	members := append([]models.User{current}, partners...)
	memberUIDs := make([]string, 0, len(members))
	memberMaps := make([]any, 0, len(members))
	for _, m := range members {
		memberUIDs = append(memberUIDs, m.UID)
		memberMaps = append(memberMaps, m.AsMap())
	}

	created := string(models.AdminMessageChannelCreation)
	channelDict := map[string]any{
		models.ChannelFieldID:                   channelID,
		models.ChannelFieldLastMessage:          created,
		models.ChannelFieldLastMessageType:      created,
		models.ChannelFieldCreationDate:         timestamp,
		models.ChannelFieldLastMessageTimestamp: timestamp,
		models.ChannelFieldMemberUIDs:           memberUIDs,
		models.ChannelFieldMembersCount:         float64(len(memberUIDs)),
		models.ChannelFieldAdminUIDs:            []string{s.currentUID},
		models.ChannelFieldCreatedBy:            s.currentUID,
		models.ChannelFieldMembers:              memberMaps,
	}
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		channelDict[models.ChannelFieldName] = trimmed
	}
	messageDict := map[string]any{
		models.MessageFieldType:      created,
		models.MessageFieldTimestamp: timestamp,
		models.MessageFieldOwnerUID:  s.currentUID,
		models.MessageFieldSender:    models.EncodeSender(current),
	}

	if err := s.store.Write(ctx, store.ChannelPath(channelID), channelDict); err != nil {
		return models.Channel{}, fmt.Errorf("channels: write channel: %w", err)
	}
	if err := s.store.Write(ctx, store.MessagePath(channelID, adminMessageID), messageDict); err != nil {
		return models.Channel{}, fmt.Errorf("channels: write creation message: %w", err)
	}
	for _, uid := range memberUIDs {
		if err := s.store.Write(ctx, store.UserChannelPath(uid, channelID), true); err != nil {
			return models.Channel{}, fmt.Errorf("channels: index member %s: %w", uid, err)
		}
	}
	if len(partners) == 1 {
		partnerUID := partners[0].UID
		directValue := map[string]any{channelID: true}
		if err := s.store.Write(ctx, store.UserDirectChannelPath(s.currentUID, partnerUID), directValue); err != nil {
			return models.Channel{}, fmt.Errorf("channels: index direct channel: %w", err)
		}
		if err := s.store.Write(ctx, store.UserDirectChannelPath(partnerUID, s.currentUID), directValue); err != nil {
			return models.Channel{}, fmt.Errorf("channels: index direct channel: %w", err)
		}
	}

	channel := models.DecodeChannel(channelDict)
	channel.Members = members
	return channel, nil
}

// findDirectChannel resolves an existing direct channel between the current
// user and the partner, if the direct index has one.
func (s *Service) findDirectChannel(ctx context.Context, partnerUID string) (models.Channel, bool) {
	v, err := s.store.Read(ctx, store.UserDirectChannelPath(s.currentUID, partnerUID))
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.log.Warn(ctx, "direct channel lookup failed", "partner", partnerUID, "err", err)
		}
		return models.Channel{}, false
	}
	index, ok := v.(map[string]any)
	if !ok || len(index) == 0 {
		return models.Channel{}, false
	}
	var channelID string
	for k := range index {
		channelID = k
		break
	}
	cv, err := s.store.Read(ctx, store.ChannelPath(channelID))
	if err != nil {
		s.log.Warn(ctx, "direct channel resolve failed", "channelId", channelID, "err", err)
		return models.Channel{}, false
	}
	return models.DecodeChannel(cv), true
}
