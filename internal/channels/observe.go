package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/lamberthyl/chatsync/internal/models"
	"github.com/lamberthyl/chatsync/internal/store"
)

// ChannelsSubscription delivers complete channel-list snapshots, sorted
// ascending by last-activity. Cancel releases the backing membership
// listener; a cancelled subscription cannot be restarted.
type ChannelsSubscription struct {
	C      <-chan []models.Channel
	cancel func()
}

func (s *ChannelsSubscription) Cancel() { s.cancel() }

// ObserveChannels listens on the current user's membership index. On every
// membership emission each member channel id is resolved to its detail
// record in a parallel fan-out; ids that fail to resolve are dropped from
// that snapshot. The resolved list is emitted sorted by LastMessageTimestamp
// ascending with an ID tie-break.
func (s *Service) ObserveChannels(ctx context.Context) (*ChannelsSubscription, error) {
	sub, err := s.store.ObserveValue(store.UserChannelsPath(s.currentUID))
	if err != nil {
		return nil, fmt.Errorf("channels: observe memberships: %w", err)
	}

	out := make(chan []models.Channel, 8)
	go func() {
		defer close(out)
		for ev := range sub.C {
			ids := membershipIDs(ev.Value)
			snapshot := s.resolveChannels(ctx, ids)
			models.SortChannels(snapshot)
			push(out, snapshot)
		}
	}()

	return &ChannelsSubscription{C: out, cancel: sub.Cancel}, nil
}

// ChannelInfoSubscription delivers live detail snapshots of one channel.
type ChannelInfoSubscription struct {
	C      <-chan models.Channel
	cancel func()
}

func (s *ChannelInfoSubscription) Cancel() { s.cancel() }

// ObserveChannelInfo attaches a live listener on one channel's detail
// record: current value first, then every change. Absent records are
// skipped.
func (s *Service) ObserveChannelInfo(channelID string) (*ChannelInfoSubscription, error) {
	sub, err := s.store.ObserveValue(store.ChannelPath(channelID))
	if err != nil {
		return nil, fmt.Errorf("channels: observe %s: %w", channelID, err)
	}
	out := make(chan models.Channel, 8)
	go func() {
		defer close(out)
		for ev := range sub.C {
			if ev.Value == nil {
				continue
			}
			push(out, models.DecodeChannel(ev.Value))
		}
	}()
	return &ChannelInfoSubscription{C: out, cancel: sub.Cancel}, nil
}

func membershipIDs(v any) []string {
	index, _ := v.(map[string]any)
	ids := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	return ids
}

// resolveChannels fans out point reads for every membership id. Completion
// order is irrelevant; failures drop the id from the snapshot, never the
// snapshot itself.
func (s *Service) resolveChannels(ctx context.Context, ids []string) []models.Channel {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		out = make([]models.Channel, 0, len(ids))
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			v, err := s.store.Read(ctx, store.ChannelPath(id))
			if err != nil {
				s.log.Warn(ctx, "dropping unresolved channel", "channelId", id, "err", err)
				return
			}
			c := models.DecodeChannel(v)
			mu.Lock()
			out = append(out, c)
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return out
}

// push delivers a snapshot, discarding the oldest queued one when the
// consumer is behind: the latest snapshot is the one that matters.
func push[T any](out chan T, v T) {
	for {
		select {
		case out <- v:
			return
		default:
			select {
			case <-out:
			default:
			}
		}
	}
}
