// Package common defines shared constants and sentinel errors used across
// the sync engine. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound = errors.New("not found")

	// Channel creation errors, all fatal to the create-channel
	// operation, no retry.
	ErrChannelIDGeneration      = errors.New("failed to generate channel id")
	ErrCurrentUserNotFound      = errors.New("current user not found")
	ErrAdminMessageIDGeneration = errors.New("failed to generate channel-created message id")

	// Playback errors. Prepare fails fast with one of these before any
	// playback attempt.
	ErrInvalidDuration  = errors.New("media has an invalid or indefinite duration")
	ErrUnplayableMedia  = errors.New("media cannot be played")
	ErrNoActiveSession  = errors.New("no active playback session")
	ErrSessionCancelled = errors.New("playback session cancelled")
)
