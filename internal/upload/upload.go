// Package upload sequences a media attachment through remote storage:
// thumbnail upload, raw file upload, URL resolution, then a single terminal
// Completion or Failure. It only moves bytes and yields URLs; writing the
// resulting message record is the caller's responsibility.
package upload

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lamberthyl/chatsync/internal/blob"
	"github.com/lamberthyl/chatsync/internal/logging"
	"github.com/lamberthyl/chatsync/internal/models"
)

// Upload stages, used to tag failures.
const (
	StageThumbnail    = "thumbnail"
	StageFile         = "file"
	StageFileURL      = "file-url"
	StageThumbnailURL = "thumbnail-url"
)

// Error is a stage-tagged upload failure.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to upload content (%s): %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Event is one emission of an upload: any number of Progress events followed
// by exactly one Completion or one Failure, after which the stream is
// closed.
type Event interface{ isUploadEvent() }

// Progress carries a fraction in [0,1], non-decreasing per file id.
type Progress struct {
	FileID   string
	Fraction float64
}

// Completion carries the resolved URLs of the uploaded content.
type Completion struct {
	FileID       string
	ThumbnailURL string
	FileURL      string
}

// Failure terminates the upload. Err is always an *Error.
type Failure struct {
	FileID string
	Err    error
}

func (Progress) isUploadEvent()   {}
func (Completion) isUploadEvent() {}
func (Failure) isUploadEvent()    {}

// thumbnailShare is the progress window granted to the thumbnail when a raw
// file follows it, keeping the overall fraction monotone across stages.
const thumbnailShare = 0.2

// Orchestrator runs uploads against a blob store.
type Orchestrator struct {
	blobs       blob.BlobStore
	log         logging.Logger
	newFileName func() string
}

func New(blobs blob.BlobStore, log logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.Nop()
	}
	return &Orchestrator{
		blobs:       blobs,
		log:         log,
		newFileName: uuid.NewString,
	}
}

// content is one upload unit resolved from an attachment kind.
type content struct {
	fileID    string
	imageData []byte // thumbnail or photo bytes
	filePath  string // local raw file (video, audio)
	imageRoot string // storage root for the image object
	fileRoot  string // storage root for the raw file object
	// thumbSeparate means the image is a secondary object with its own
	// URL rather than the primary content.
	thumbSeparate bool
}

func contentFor(att models.MediaAttachment) (content, error) {
	switch a := att.(type) {
	case models.ImageAttachment:
		return content{
			fileID:    a.ID,
			imageData: a.Thumbnail.Data,
			imageRoot: blob.PhotoMessagesRoot,
		}, nil
	case models.VideoAttachment:
		return content{
			fileID:        a.ID,
			imageData:     a.Thumbnail.Data,
			filePath:      a.FileURL,
			imageRoot:     blob.PhotoMessagesRoot,
			fileRoot:      blob.VideoMessagesRoot,
			thumbSeparate: true,
		}, nil
	case models.AudioAttachment:
		return content{
			fileID:   a.FileURL,
			filePath: a.FileURL,
			fileRoot: blob.AudioMessagesRoot,
		}, nil
	default:
		return content{}, fmt.Errorf("upload: unsupported attachment %T", att)
	}
}

// Upload starts the attachment upload and returns its event stream. The
// stream is closed after the terminal event.
func (o *Orchestrator) Upload(ctx context.Context, att models.MediaAttachment) <-chan Event {
	out := make(chan Event, 16)
	c, err := contentFor(att)
	if err != nil {
		out <- Failure{Err: &Error{Stage: StageFile, Err: err}}
		close(out)
		return out
	}
	go o.run(ctx, c, out)
	return out
}

// UploadProfileImage uploads a profile still image. The image is the primary
// content.
func (o *Orchestrator) UploadProfileImage(ctx context.Context, data []byte) <-chan Event {
	out := make(chan Event, 16)
	go o.run(ctx, content{
		fileID:    "profile",
		imageData: data,
		imageRoot: blob.ProfileImagesRoot,
	}, out)
	return out
}

func (o *Orchestrator) run(ctx context.Context, c content, out chan<- Event) {
	defer close(out)

	name := o.newFileName()

	// Monotone progress across all stages for this file id.
	last := -1.0
	emit := func(f float64) {
		if f > 1 {
			f = 1
		}
		if f > last {
			last = f
			out <- Progress{FileID: c.fileID, Fraction: f}
		}
	}
	fail := func(stage string, err error) {
		o.log.Error(ctx, "upload failed", "stage", stage, "fileId", c.fileID, "err", err)
		out <- Failure{FileID: c.fileID, Err: &Error{Stage: stage, Err: err}}
	}

	imagePath := c.imageRoot + "/" + name
	if c.thumbSeparate {
		imagePath += "_thumbnail"
	}
	filePath := c.fileRoot + "/" + name

	hasImage := len(c.imageData) > 0
	hasFile := c.filePath != ""

	// Thumbnail goes first; when a raw file follows, the thumbnail only
	// advances progress through its share of the window.
	if hasImage {
		window := 1.0
		if hasFile {
			window = thumbnailShare
		}
		err := o.blobs.PutBytes(ctx, imagePath, c.imageData, func(f float64) {
			emit(f * window)
		})
		if err != nil {
			fail(StageThumbnail, err)
			return
		}
	}

	if hasFile {
		base := 0.0
		if hasImage {
			base = thumbnailShare
		}
		err := o.blobs.PutFile(ctx, filePath, c.filePath, func(f float64) {
			emit(base + f*(1-base))
		})
		if err != nil {
			fail(StageFile, err)
			return
		}
	}

	primaryPath := filePath
	if !hasFile {
		primaryPath = imagePath
	}
	fileURL, err := o.blobs.DownloadURL(ctx, primaryPath)
	if err != nil {
		fail(StageFileURL, err)
		return
	}

	var thumbURL string
	if c.thumbSeparate && hasImage {
		thumbURL, err = o.blobs.DownloadURL(ctx, imagePath)
		if err != nil {
			fail(StageThumbnailURL, err)
			return
		}
	}

	out <- Completion{FileID: c.fileID, ThumbnailURL: thumbURL, FileURL: fileURL}
}
