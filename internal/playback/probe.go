package playback

import (
	"context"
	"sync"
	"time"

	"github.com/lamberthyl/chatsync/internal/common"
)

// MediaInfo is what a probe learns about a source before playback.
type MediaInfo struct {
	Duration time.Duration
	Playable bool
	HasTrack bool
}

// Probe validates a source ahead of any playback attempt. Prepare rejects
// sources whose probe reports an invalid/indefinite duration or no playable
// track.
type Probe interface {
	Probe(ctx context.Context, url string) (MediaInfo, error)
}

// MetadataProbe resolves media info from records the client already holds:
// audio messages carry their duration in the message record, so no codec
// work is needed to validate them. Unknown URLs are unplayable.
type MetadataProbe struct {
	mu    sync.Mutex
	known map[string]MediaInfo
}

func NewMetadataProbe() *MetadataProbe {
	return &MetadataProbe{known: map[string]MediaInfo{}}
}

// Register records the metadata of a source, typically when its message is
// decoded.
func (p *MetadataProbe) Register(url string, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.known[url] = MediaInfo{Duration: duration, Playable: true, HasTrack: true}
}

func (p *MetadataProbe) Probe(_ context.Context, url string) (MediaInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.known[url]
	if !ok {
		return MediaInfo{}, common.ErrUnplayableMedia
	}
	return info, nil
}
