package playback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamberthyl/chatsync/internal/common"
)

const (
	urlA = "mem://audio_messages/a"
	urlB = "mem://audio_messages/b"
)

func newTestManager(t *testing.T) (*Manager, *MetadataProbe) {
	t.Helper()
	probe := NewMetadataProbe()
	probe.Register(urlA, 300*time.Millisecond)
	probe.Register(urlB, 10*time.Second)
	m := NewManager(probe, nil, WithTick(20*time.Millisecond))
	t.Cleanup(m.Stop)
	return m, probe
}

func waitStatus(t *testing.T, c <-chan Status, want Status) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case st, ok := <-c:
			require.True(t, ok, "status stream closed while waiting for %v", want)
			if st == want {
				return
			}
		case <-timeout:
			t.Fatalf("never observed status %v", want)
		}
	}
}

func TestPrepareReady(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Prepare(context.Background(), urlA))
	assert.Equal(t, StateReady, m.State())

	d, err := m.Duration()
	require.NoError(t, err)
	assert.Equal(t, 300*time.Millisecond, d)
}

func TestPrepareUnknownSource(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.Prepare(context.Background(), "mem://audio_messages/missing")
	assert.ErrorIs(t, err, common.ErrUnplayableMedia)
	assert.Equal(t, StateEmpty, m.State())

	_, err = m.Duration()
	assert.ErrorIs(t, err, common.ErrNoActiveSession)
}

func TestPrepareInvalidDuration(t *testing.T) {
	m, probe := newTestManager(t)
	probe.Register("mem://audio_messages/zero", 0)

	err := m.Prepare(context.Background(), "mem://audio_messages/zero")
	assert.ErrorIs(t, err, common.ErrInvalidDuration)
	assert.Equal(t, StateEmpty, m.State())
}

func TestPrepareSameURLIsNoOp(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Prepare(context.Background(), urlB))
	require.NoError(t, m.Play())

	times, err := m.CurrentTime()
	require.NoError(t, err)

	// Re-preparing the current source must not restart the session.
	require.NoError(t, m.Prepare(context.Background(), urlB))
	assert.Equal(t, StatePlaying, m.State())

	select {
	case _, ok := <-times:
		assert.True(t, ok, "time stream must survive a same-URL prepare")
	case <-time.After(2 * time.Second):
		t.Fatal("no tick after same-URL prepare")
	}
}

func TestPrepareNewURLClosesOldStreams(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Prepare(context.Background(), urlA))
	oldTimes, err := m.CurrentTime()
	require.NoError(t, err)
	oldStatus, err := m.Status()
	require.NoError(t, err)

	require.NoError(t, m.Prepare(context.Background(), urlB))
	assert.Equal(t, StateReady, m.State())

	// Prepare closed the old session's streams before probing; draining them
	// terminates.
	for range oldTimes {
	}
	for range oldStatus {
	}

	d, err := m.Duration()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)
}

func TestPlayRunsToFinish(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Prepare(context.Background(), urlA))

	status, err := m.Status()
	require.NoError(t, err)
	times, err := m.CurrentTime()
	require.NoError(t, err)

	require.NoError(t, m.Play())
	waitStatus(t, status, StatusPlaying)
	waitStatus(t, status, StatusFinished)
	assert.Equal(t, StateFinished, m.State())

	// The last emitted position is the full duration.
	var last time.Duration
	for {
		select {
		case p := <-times:
			last = p
			continue
		default:
		}
		break
	}
	assert.Equal(t, 300*time.Millisecond, last)

	// Playing from Finished restarts from the beginning.
	require.NoError(t, m.Play())
	assert.Equal(t, StatePlaying, m.State())
	waitStatus(t, status, StatusFinished)
}

func TestPauseKeepsPosition(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Prepare(context.Background(), urlB))
	require.NoError(t, m.Play())

	times, err := m.CurrentTime()
	require.NoError(t, err)
	select {
	case <-times:
	case <-time.After(2 * time.Second):
		t.Fatal("no tick before pause")
	}

	require.NoError(t, m.Pause())
	assert.Equal(t, StatePaused, m.State())
	require.NoError(t, m.Pause()) // pausing while paused is a no-op

	require.NoError(t, m.Play())
	assert.Equal(t, StatePlaying, m.State())
}

func TestSeekClamps(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Prepare(context.Background(), urlB))
	times, err := m.CurrentTime()
	require.NoError(t, err)

	require.NoError(t, m.SeekTo(-time.Second))
	assert.Equal(t, time.Duration(0), <-times)

	require.NoError(t, m.SeekTo(time.Hour))
	assert.Equal(t, 10*time.Second, <-times)

	require.NoError(t, m.SeekTo(3*time.Second))
	assert.Equal(t, 3*time.Second, <-times)
}

func TestStopReturnsToEmpty(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Prepare(context.Background(), urlA))
	require.NoError(t, m.Play())
	times, err := m.CurrentTime()
	require.NoError(t, err)

	m.Stop()
	assert.Equal(t, StateEmpty, m.State())

	// Stop closed the stream; draining it terminates.
	for range times {
	}

	err = m.Play()
	assert.ErrorIs(t, err, common.ErrNoActiveSession)
	err = m.SeekTo(time.Second)
	assert.ErrorIs(t, err, common.ErrNoActiveSession)
	_, err = m.Status()
	assert.ErrorIs(t, err, common.ErrNoActiveSession)
}

func TestOpsWithoutSession(t *testing.T) {
	m, _ := newTestManager(t)
	assert.ErrorIs(t, m.Play(), common.ErrNoActiveSession)
	assert.ErrorIs(t, m.Pause(), common.ErrNoActiveSession)
	assert.ErrorIs(t, m.SeekTo(0), common.ErrNoActiveSession)
	_, err := m.CurrentTime()
	assert.ErrorIs(t, err, common.ErrNoActiveSession)
}
