// Package models holds the chat data model: users, channels, messages and
// locally-held media attachments, together with the decoding rules for the
// loosely-typed records stored in the remote tree.
package models

// User mirrors the remote users/{uid} record. Identity is UID.
type User struct {
	UID             string `json:"uid"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Bio             string `json:"bio,omitempty"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
}

// Field names of the users/{uid} record.
const (
	UserFieldUID             = "uid"
	UserFieldUsername        = "username"
	UserFieldEmail           = "email"
	UserFieldBio             = "bio"
	UserFieldProfileImageURL = "profileImageUrl"
)

// DecodeUser builds a User from a raw tree node. Missing fields default to
// the empty string.
func DecodeUser(v any) User {
	m := asMap(v)
	return User{
		UID:             getString(m, UserFieldUID),
		Username:        getString(m, UserFieldUsername),
		Email:           getString(m, UserFieldEmail),
		Bio:             getString(m, UserFieldBio),
		ProfileImageURL: getString(m, UserFieldProfileImageURL),
	}
}

// AsMap renders the user in its wire form.
func (u User) AsMap() map[string]any {
	m := map[string]any{
		UserFieldUID:      u.UID,
		UserFieldUsername: u.Username,
		UserFieldEmail:    u.Email,
	}
	if u.Bio != "" {
		m[UserFieldBio] = u.Bio
	}
	if u.ProfileImageURL != "" {
		m[UserFieldProfileImageURL] = u.ProfileImageURL
	}
	return m
}

// UserNode is one page of the paginated user directory. A nil NextCursor
// (empty string) signals exhaustion.
type UserNode struct {
	Users      []User
	NextCursor string
}

// EmptyUserNode is returned when a page query comes back with no children.
var EmptyUserNode = UserNode{}
