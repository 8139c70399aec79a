package models

import (
	"encoding/json"
	"time"
)

// MessageType tags a message record. Admin messages carry a subtype in the
// same wire field.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypePhoto MessageType = "photo"
	MessageTypeVideo MessageType = "video"
	MessageTypeAudio MessageType = "audio"
)

// AdminMessageType enumerates the system-generated message subtypes.
type AdminMessageType string

const (
	AdminMessageChannelCreation AdminMessageType = "channelCreation"
)

// MessageTypeFrom maps a wire string to a MessageType. Unknown values that
// match an admin subtype become that subtype; anything else falls back to
// text, per the decode-with-defaults rule.
func MessageTypeFrom(s string) MessageType {
	switch MessageType(s) {
	case MessageTypeText, MessageTypePhoto, MessageTypeVideo, MessageTypeAudio:
		return MessageType(s)
	}
	if AdminMessageType(s) == AdminMessageChannelCreation {
		return MessageType(s)
	}
	return MessageTypeText
}

// IsAdmin reports whether t is a system-generated subtype rather than a
// user-authored message type.
func (t MessageType) IsAdmin() bool {
	switch t {
	case MessageTypeText, MessageTypePhoto, MessageTypeVideo, MessageTypeAudio:
		return false
	}
	return true
}

// MessageDirection is derived per local session by comparing the message
// owner to the session uid. It is never persisted: the same record seen by
// two users yields different directions.
type MessageDirection int

const (
	DirectionIncoming MessageDirection = iota
	DirectionOutgoing
)

// Message mirrors the remote channel-messages/{channelId}/{messageId}
// record. Identity is ID (server-generated); records are immutable once
// created.
type Message struct {
	ID              string
	Sender          User
	Text            string
	Type            MessageType
	OwnerUID        string
	Timestamp       time.Time
	ThumbnailURL    string
	ThumbnailWidth  float64
	ThumbnailHeight float64
	VideoURL        string
	AudioURL        string
	AudioDuration   time.Duration
}

// Field names of the message record.
const (
	MessageFieldText            = "text"
	MessageFieldType            = "type"
	MessageFieldTimestamp       = "timestamp"
	MessageFieldOwnerUID        = "ownerUid"
	MessageFieldSender          = "sender"
	MessageFieldThumbnailURL    = "thumbnailUrl"
	MessageFieldThumbnailWidth  = "thumbnailWidth"
	MessageFieldThumbnailHeight = "thumbnailHeight"
	MessageFieldVideoURL        = "videoUrl"
	MessageFieldAudioURL        = "audioUrl"
	MessageFieldAudioDuration   = "audioDuration"
)

// DecodeMessage builds a Message from a raw tree node. The sender field is a
// JSON-encoded string per the persisted schema; a malformed sender decodes
// to the zero User.
func DecodeMessage(id string, v any) Message {
	m := asMap(v)
	var sender User
	if raw := getString(m, MessageFieldSender); raw != "" {
		_ = json.Unmarshal([]byte(raw), &sender)
	}
	return Message{
		ID:              id,
		Sender:          sender,
		Text:            getString(m, MessageFieldText),
		Type:            MessageTypeFrom(getString(m, MessageFieldType)),
		OwnerUID:        getString(m, MessageFieldOwnerUID),
		Timestamp:       timeFromSeconds(getFloat(m, MessageFieldTimestamp)),
		ThumbnailURL:    getString(m, MessageFieldThumbnailURL),
		ThumbnailWidth:  getFloat(m, MessageFieldThumbnailWidth),
		ThumbnailHeight: getFloat(m, MessageFieldThumbnailHeight),
		VideoURL:        getString(m, MessageFieldVideoURL),
		AudioURL:        getString(m, MessageFieldAudioURL),
		AudioDuration:   time.Duration(getFloat(m, MessageFieldAudioDuration) * float64(time.Second)),
	}
}

// Direction derives the message direction for the given local session uid.
func (m Message) Direction(currentUID string) MessageDirection {
	if m.OwnerUID == currentUID {
		return DirectionOutgoing
	}
	return DirectionIncoming
}

// EncodeSender renders u as the JSON-string sender field.
func EncodeSender(u User) string {
	b, err := json.Marshal(u)
	if err != nil {
		return ""
	}
	return string(b)
}
