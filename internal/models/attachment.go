package models

import "time"

// MediaAttachment is a locally-held, not-yet-persisted piece of media
// pending upload. It is a sealed tagged union: exactly one of
// ImageAttachment, VideoAttachment or AudioAttachment. Attachments exist
// only between capture/pick and successful upload.
type MediaAttachment interface {
	// MessageType is the message type the attachment produces once sent.
	MessageType() MessageType

	sealedAttachment()
}

// Thumbnail is a still image held in memory, with its pixel dimensions.
type Thumbnail struct {
	Data   []byte
	Width  float64
	Height float64
}

// ImageAttachment is a picked or captured photo.
type ImageAttachment struct {
	ID        string
	Thumbnail Thumbnail
}

// VideoAttachment is a picked video plus its poster frame.
type VideoAttachment struct {
	ID        string
	Thumbnail Thumbnail
	FileURL   string
}

// AudioAttachment is a recorded voice note on local disk.
type AudioAttachment struct {
	FileURL  string
	Duration time.Duration
}

func (ImageAttachment) MessageType() MessageType { return MessageTypePhoto }
func (VideoAttachment) MessageType() MessageType { return MessageTypeVideo }
func (AudioAttachment) MessageType() MessageType { return MessageTypeAudio }

func (ImageAttachment) sealedAttachment() {}
func (VideoAttachment) sealedAttachment() {}
func (AudioAttachment) sealedAttachment() {}
