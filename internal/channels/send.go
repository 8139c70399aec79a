package channels

import (
	"context"
	"fmt"

	"github.com/lamberthyl/chatsync/internal/models"
	"github.com/lamberthyl/chatsync/internal/store"
	"github.com/lamberthyl/chatsync/internal/upload"
)

// SendTextMessage writes a text message into the channel and refreshes its
// last-message summary.
func (s *Service) SendTextMessage(ctx context.Context, channel models.Channel, text string) error {
	sender, err := s.currentUser(ctx)
	if err != nil {
		return err
	}
	messageID, err := s.store.GenerateKey(store.ChannelMessagesPath(channel.ID))
	if err != nil {
		return fmt.Errorf("channels: generate message id: %w", err)
	}
	timestamp := models.TimeToSeconds(s.now())

	channelDict := map[string]any{
		models.ChannelFieldLastMessage:          text,
		models.ChannelFieldLastMessageTimestamp: timestamp,
		models.ChannelFieldLastMessageType:      string(models.MessageTypeText),
	}
	messageDict := map[string]any{
		models.MessageFieldText:      text,
		models.MessageFieldType:      string(models.MessageTypeText),
		models.MessageFieldTimestamp: timestamp,
		models.MessageFieldOwnerUID:  sender.UID,
		models.MessageFieldSender:    models.EncodeSender(sender),
	}

	if err := s.store.Update(ctx, store.ChannelPath(channel.ID), channelDict); err != nil {
		return fmt.Errorf("channels: update last message: %w", err)
	}
	if err := s.store.Write(ctx, store.MessagePath(channel.ID, messageID), messageDict); err != nil {
		return fmt.Errorf("channels: write message: %w", err)
	}
	return nil
}

// SendAttachments uploads the attachments of one outgoing send and writes a
// message record per attachment. Uploads run sequentially so the channel's
// last-message summary never races between attachments of the same send.
// onProgress, when non-nil, receives every upload progress event.
func (s *Service) SendAttachments(ctx context.Context, channel models.Channel, text string, attachments []models.MediaAttachment, onProgress func(upload.Progress)) error {
	sender, err := s.currentUser(ctx)
	if err != nil {
		return err
	}
	for _, att := range attachments {
		if err := s.sendAttachment(ctx, channel, sender, text, att, onProgress); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) sendAttachment(ctx context.Context, channel models.Channel, sender models.User, text string, att models.MediaAttachment, onProgress func(upload.Progress)) error {
	for ev := range s.uploader.Upload(ctx, att) {
		switch e := ev.(type) {
		case upload.Progress:
			if onProgress != nil {
				onProgress(e)
			}
		case upload.Failure:
			return e.Err
		case upload.Completion:
			return s.writeAttachmentMessage(ctx, channel, sender, text, att, e)
		}
	}
	return fmt.Errorf("channels: upload ended without terminal event")
}

// writeAttachmentMessage persists the finalized message referencing the
// uploaded URLs, then refreshes the channel's last-message summary.
func (s *Service) writeAttachmentMessage(ctx context.Context, channel models.Channel, sender models.User, text string, att models.MediaAttachment, done upload.Completion) error {
	messageID, err := s.store.GenerateKey(store.ChannelMessagesPath(channel.ID))
	if err != nil {
		return fmt.Errorf("channels: generate message id: %w", err)
	}
	timestamp := models.TimeToSeconds(s.now())
	msgType := att.MessageType()

	messageDict := map[string]any{
		models.MessageFieldText:      text,
		models.MessageFieldType:      string(msgType),
		models.MessageFieldTimestamp: timestamp,
		models.MessageFieldOwnerUID:  sender.UID,
		models.MessageFieldSender:    models.EncodeSender(sender),
	}
	switch a := att.(type) {
	case models.ImageAttachment:
		messageDict[models.MessageFieldThumbnailURL] = done.FileURL
		messageDict[models.MessageFieldThumbnailWidth] = a.Thumbnail.Width
		messageDict[models.MessageFieldThumbnailHeight] = a.Thumbnail.Height
	case models.VideoAttachment:
		messageDict[models.MessageFieldThumbnailURL] = done.ThumbnailURL
		messageDict[models.MessageFieldVideoURL] = done.FileURL
		messageDict[models.MessageFieldThumbnailWidth] = a.Thumbnail.Width
		messageDict[models.MessageFieldThumbnailHeight] = a.Thumbnail.Height
	case models.AudioAttachment:
		messageDict[models.MessageFieldAudioURL] = done.FileURL
		messageDict[models.MessageFieldAudioDuration] = a.Duration.Seconds()
	}

	channelDict := map[string]any{
		models.ChannelFieldLastMessage:          text,
		models.ChannelFieldLastMessageTimestamp: timestamp,
		models.ChannelFieldLastMessageType:      string(msgType),
	}

	if err := s.store.Update(ctx, store.ChannelPath(channel.ID), channelDict); err != nil {
		return fmt.Errorf("channels: update last message: %w", err)
	}
	if err := s.store.Write(ctx, store.MessagePath(channel.ID, messageID), messageDict); err != nil {
		return fmt.Errorf("channels: write message: %w", err)
	}
	return nil
}
