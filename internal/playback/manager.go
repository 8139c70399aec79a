// Package playback owns the single active audio playback session: one URL is
// associated with playback state at a time, current time and status are
// exposed as continuous streams, and preparing a new source invalidates the
// previous session's observers so stale callbacks become no-ops.
package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lamberthyl/chatsync/internal/common"
	"github.com/lamberthyl/chatsync/internal/logging"
)

// State is the session lifecycle.
type State int

const (
	StateEmpty State = iota
	StatePreparing
	StateReady
	StatePlaying
	StatePaused
	StateFinished
)

// Status is the externally observable playback status.
type Status int

const (
	StatusPlaying Status = iota
	StatusPaused
	StatusFinished
	StatusError
)

const streamBuffer = 64

// defaultTick is the current-time observation interval.
const defaultTick = 100 * time.Millisecond

type session struct {
	url      string
	info     MediaInfo
	pos      time.Duration
	timeCh   chan time.Duration
	statusCh chan Status
	stop     chan struct{} // non-nil while the ticker loop runs
}

// Manager is the process-wide playback session owner.
type Manager struct {
	probe Probe
	log   logging.Logger
	tick  time.Duration

	mu    sync.Mutex
	state State
	cur   *session
	// gen is the session token: it advances on every teardown, and ticker
	// callbacks holding a stale token do nothing.
	gen int
}

// Option configures a Manager.
type Option func(*Manager)

// WithTick overrides the current-time observation interval.
func WithTick(d time.Duration) Option {
	return func(m *Manager) { m.tick = d }
}

func NewManager(probe Probe, log logging.Logger, opts ...Option) *Manager {
	if log == nil {
		log = logging.Nop()
	}
	m := &Manager{probe: probe, log: log, tick: defaultTick, state: StateEmpty}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Prepare validates and loads a source. Preparing the URL that is already
// current is an idempotent no-op. Otherwise the existing session's
// observation resources are torn down before the new source is probed; on a
// failed probe the manager is left Empty and a typed error is returned.
func (m *Manager) Prepare(ctx context.Context, url string) error {
	m.mu.Lock()
	if m.cur != nil && m.cur.url == url {
		m.mu.Unlock()
		return nil
	}
	m.teardownLocked()
	m.state = StatePreparing
	gen := m.gen
	m.mu.Unlock()

	info, err := m.probe.Probe(ctx, url)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		// Another Prepare or Stop raced this one; its outcome wins.
		return common.ErrSessionCancelled
	}
	if err == nil && info.Duration <= 0 {
		err = common.ErrInvalidDuration
	}
	if err == nil && (!info.Playable || !info.HasTrack) {
		err = common.ErrUnplayableMedia
	}
	if err != nil {
		m.state = StateEmpty
		return fmt.Errorf("playback: prepare %s: %w", url, err)
	}
	m.cur = &session{
		url:      url,
		info:     info,
		timeCh:   make(chan time.Duration, streamBuffer),
		statusCh: make(chan Status, streamBuffer),
	}
	m.state = StateReady
	return nil
}

// Play starts or resumes playback. Playing from Finished restarts from the
// beginning. Calling Play while already playing is a no-op.
func (m *Manager) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return common.ErrNoActiveSession
	}
	switch m.state {
	case StatePlaying:
		return nil
	case StateFinished:
		m.cur.pos = 0
	case StateReady, StatePaused:
	default:
		return common.ErrNoActiveSession
	}
	m.state = StatePlaying
	stop := make(chan struct{})
	m.cur.stop = stop
	go m.run(m.gen, stop)
	m.emitStatusLocked(StatusPlaying)
	return nil
}

// Pause suspends playback, keeping the position.
func (m *Manager) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return common.ErrNoActiveSession
	}
	if m.state != StatePlaying {
		return nil
	}
	m.stopLoopLocked()
	m.state = StatePaused
	m.emitStatusLocked(StatusPaused)
	return nil
}

// Stop tears the session down from any state and returns the manager to
// Empty. Streams tied to the stopped session are closed.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

// SeekTo moves the position, clamped to [0, duration].
func (m *Manager) SeekTo(pos time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return common.ErrNoActiveSession
	}
	if pos < 0 {
		pos = 0
	}
	if pos > m.cur.info.Duration {
		pos = m.cur.info.Duration
	}
	m.cur.pos = pos
	m.emitTimeLocked()
	return nil
}

// CurrentTime returns the live position stream of the active session.
func (m *Manager) CurrentTime() (<-chan time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return nil, common.ErrNoActiveSession
	}
	return m.cur.timeCh, nil
}

// Status returns the live status stream of the active session.
func (m *Manager) Status() (<-chan Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return nil, common.ErrNoActiveSession
	}
	return m.cur.statusCh, nil
}

// Duration reports the probed duration of the active session.
func (m *Manager) Duration() (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return 0, common.ErrNoActiveSession
	}
	return m.cur.info.Duration, nil
}

// run advances the clock of one playing period. It holds the session token
// it was started with; once the token goes stale every tick is a no-op and
// the loop exits.
func (m *Manager) run(gen int, stop chan struct{}) {
	t := time.NewTicker(m.tick)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			m.mu.Lock()
			if m.gen != gen || m.state != StatePlaying {
				m.mu.Unlock()
				return
			}
			m.cur.pos += m.tick
			if m.cur.pos >= m.cur.info.Duration {
				m.cur.pos = m.cur.info.Duration
				m.emitTimeLocked()
				m.state = StateFinished
				m.cur.stop = nil
				m.emitStatusLocked(StatusFinished)
				m.mu.Unlock()
				return
			}
			m.emitTimeLocked()
			m.mu.Unlock()
		}
	}
}

func (m *Manager) stopLoopLocked() {
	if m.cur != nil && m.cur.stop != nil {
		close(m.cur.stop)
		m.cur.stop = nil
	}
}

// teardownLocked releases the active session: the ticker loop is stopped,
// both streams are closed and the session token advances so in-flight
// callbacks become no-ops.
func (m *Manager) teardownLocked() {
	m.stopLoopLocked()
	if m.cur != nil {
		close(m.cur.timeCh)
		close(m.cur.statusCh)
		m.cur = nil
	}
	m.gen++
	m.state = StateEmpty
}

func (m *Manager) emitTimeLocked() {
	select {
	case m.cur.timeCh <- m.cur.pos:
	default:
	}
}

func (m *Manager) emitStatusLocked(st Status) {
	select {
	case m.cur.statusCh <- st:
	default:
	}
}
