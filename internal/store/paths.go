package store

import "strings"

// Tree paths of the persisted remote schema. These are stable across clients
// and must not change.
const (
	UsersRoot              = "users"
	ChannelsRoot           = "channels"
	ChannelMessagesRoot    = "channel-messages"
	UserChannelsRoot       = "user-channels"
	UserDirectChannelsRoot = "user-direct-channels"
)

func join(parts ...string) string {
	return strings.Join(parts, "/")
}

// UserPath is users/{uid}.
func UserPath(uid string) string { return join(UsersRoot, uid) }

// ChannelPath is channels/{channelId}.
func ChannelPath(channelID string) string { return join(ChannelsRoot, channelID) }

// ChannelMessagesPath is channel-messages/{channelId}.
func ChannelMessagesPath(channelID string) string {
	return join(ChannelMessagesRoot, channelID)
}

// MessagePath is channel-messages/{channelId}/{messageId}.
func MessagePath(channelID, messageID string) string {
	return join(ChannelMessagesRoot, channelID, messageID)
}

// UserChannelsPath is user-channels/{uid}: the membership index mapping
// channel ids to true.
func UserChannelsPath(uid string) string { return join(UserChannelsRoot, uid) }

// UserChannelPath is user-channels/{uid}/{channelId}.
func UserChannelPath(uid, channelID string) string {
	return join(UserChannelsRoot, uid, channelID)
}

// UserDirectChannelPath is user-direct-channels/{uidA}/{uidB}: the direct
// chat index mapping the partner to {channelId: true}.
func UserDirectChannelPath(uidA, uidB string) string {
	return join(UserDirectChannelsRoot, uidA, uidB)
}
