// Package blob defines the remote blob-store capability the upload
// orchestrator consumes: byte and file uploads with progress reporting, and
// public download-URL resolution.
package blob

import "context"

// ProgressFunc receives upload progress as a fraction in [0,1]. Callbacks
// are made from the uploading goroutine and must not block.
type ProgressFunc func(fraction float64)

// Storage path roots, by content kind.
const (
	ProfileImagesRoot = "profile_images"
	PhotoMessagesRoot = "photo_messages"
	VideoMessagesRoot = "video_messages"
	AudioMessagesRoot = "audio_messages"
)

// BlobStore moves bytes to remote storage and resolves public URLs. It never
// touches message records.
type BlobStore interface {
	// PutBytes uploads an in-memory payload to path.
	PutBytes(ctx context.Context, path string, data []byte, onProgress ProgressFunc) error

	// PutFile uploads a local file to path.
	PutFile(ctx context.Context, path string, localPath string, onProgress ProgressFunc) error

	// DownloadURL resolves a public download URL for an uploaded object.
	DownloadURL(ctx context.Context, path string) (string, error)
}
