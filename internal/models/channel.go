package models

import (
	"sort"
	"strings"
	"time"
)

// Channel mirrors the remote channels/{channelId} record: a conversation
// thread with members and a denormalized last-message summary. Identity (ID)
// is assigned once at creation and immutable; the last-message fields mutate
// with every new message.
type Channel struct {
	ID                   string
	Name                 string
	LastMessage          string
	LastMessageType      MessageType
	CreationDate         time.Time
	LastMessageTimestamp time.Time
	MembersCount         int
	AdminUIDs            []string
	MemberUIDs           []string
	Members              []User
	ThumbnailURL         string
	CreatedBy            string
}

// Field names of the channels/{channelId} record.
const (
	ChannelFieldID                   = "id"
	ChannelFieldName                 = "name"
	ChannelFieldLastMessage          = "lastMessage"
	ChannelFieldLastMessageType      = "lastMessageType"
	ChannelFieldCreationDate         = "creationDate"
	ChannelFieldLastMessageTimestamp = "lastMessageTimestamp"
	ChannelFieldMembersCount         = "membersCount"
	ChannelFieldAdminUIDs            = "adminUids"
	ChannelFieldMemberUIDs           = "memberUids"
	ChannelFieldMembers              = "members"
	ChannelFieldThumbnailURL         = "thumbnailUrl"
	ChannelFieldCreatedBy            = "createdBy"
)

// DecodeChannel builds a Channel from a raw tree node. Missing fields
// default to zero values (membersCount to 0, timestamps to the epoch).
func DecodeChannel(v any) Channel {
	m := asMap(v)
	membersRaw := getMapSlice(m, ChannelFieldMembers)
	var members []User
	for _, mm := range membersRaw {
		members = append(members, DecodeUser(mm))
	}
	return Channel{
		ID:                   getString(m, ChannelFieldID),
		Name:                 getString(m, ChannelFieldName),
		LastMessage:          getString(m, ChannelFieldLastMessage),
		LastMessageType:      MessageTypeFrom(getString(m, ChannelFieldLastMessageType)),
		CreationDate:         timeFromSeconds(getFloat(m, ChannelFieldCreationDate)),
		LastMessageTimestamp: timeFromSeconds(getFloat(m, ChannelFieldLastMessageTimestamp)),
		MembersCount:         int(getFloat(m, ChannelFieldMembersCount)),
		AdminUIDs:            getStringSlice(m, ChannelFieldAdminUIDs),
		MemberUIDs:           getStringSlice(m, ChannelFieldMemberUIDs),
		Members:              members,
		ThumbnailURL:         getString(m, ChannelFieldThumbnailURL),
		CreatedBy:            getString(m, ChannelFieldCreatedBy),
	}
}

// IsGroupChat reports whether the channel has more than two members.
func (c Channel) IsGroupChat() bool {
	return c.MembersCount > 2
}

// PreviewMessage is the channel-list summary line for the last message.
func (c Channel) PreviewMessage() string {
	switch c.LastMessageType {
	case MessageTypeText:
		return c.LastMessage
	case MessageTypePhoto:
		return "Photo Message"
	case MessageTypeVideo:
		return "Video Message"
	case MessageTypeAudio:
		return "Audio Message"
	default:
		return "Newly Created Chat!"
	}
}

// MembersExcluding returns the member snapshots minus the given uid.
func (c Channel) MembersExcluding(uid string) []User {
	out := make([]User, 0, len(c.Members))
	for _, m := range c.Members {
		if m.UID != uid {
			out = append(out, m)
		}
	}
	return out
}

// Title resolves a display name for the channel: the explicit name if set,
// the partner's username for a direct chat, or the joined member usernames
// for a group.
func (c Channel) Title(currentUID string) string {
	if c.Name != "" {
		return c.Name
	}
	others := c.MembersExcluding(currentUID)
	if !c.IsGroupChat() {
		if len(others) > 0 {
			return others[0].Username
		}
		return "Unknown"
	}
	names := make([]string, 0, len(others))
	for _, u := range others {
		names = append(names, u.Username)
	}
	return strings.Join(names, ", ")
}

// SortChannels orders channels ascending by LastMessageTimestamp, with a
// stable tie-break on ID ascending so repeated runs are deterministic.
func SortChannels(channels []Channel) {
	sort.Slice(channels, func(i, j int) bool {
		ti, tj := channels[i].LastMessageTimestamp, channels[j].LastMessageTimestamp
		if ti.Equal(tj) {
			return channels[i].ID < channels[j].ID
		}
		return ti.Before(tj)
	})
}
