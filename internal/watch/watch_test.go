package watch

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stlalpha/rgl/internal/session"
	"github.com/stlalpha/rgl/internal/terminalio"
	"github.com/stlalpha/rgl/internal/ttyrec"
)

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func frameBytes(t *testing.T, payload string) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, ttyrec.NewWriter(&buf).WriteFrame(ttyrec.FrameAt(time.Now(), []byte(payload))))
	return buf.Bytes()
}

type fixture struct {
	reg  *session.Registry
	rec  *os.File
	live session.Live
}

func newFixture(t *testing.T, initial ...string) *fixture {
	t.Helper()
	dir := t.TempDir()
	reg, err := session.NewRegistry(filepath.Join(dir, "live"))
	require.NoError(t, err)

	path := filepath.Join(dir, "game.ttyrec")
	rec, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })
	for _, p := range initial {
		_, err := rec.Write(frameBytes(t, p))
		require.NoError(t, err)
	}

	live, err := reg.Register(session.Live{User: "alice", Game: "nethack", Recording: path})
	require.NoError(t, err)
	return &fixture{reg: reg, rec: rec, live: live}
}

func (f *fixture) append(t *testing.T, data []byte) {
	t.Helper()
	_, err := f.rec.Write(data)
	require.NoError(t, err)
}

func TestTail_ReplaysFromLastClearScreen(t *testing.T) {
	fx := newFixture(t, "old", "\x1b[2Jfirst", "mid", "\x1b[2Jsecond", "tail")
	require.NoError(t, fx.reg.Unregister(fx.live.ID))

	var out syncBuffer
	v := &Viewer{Registry: fx.reg, Out: &out, Poll: 10 * time.Millisecond}
	require.NoError(t, v.Tail(context.Background(), fx.live))

	assert.Equal(t, terminalio.ResetScreen+"\x1b[2Jsecondtail", out.String())
}

func TestTail_NoClearScreenStartsAtBeginning(t *testing.T) {
	fx := newFixture(t, "a", "b")
	require.NoError(t, fx.reg.Unregister(fx.live.ID))

	var out syncBuffer
	v := &Viewer{Registry: fx.reg, Out: &out, Poll: 10 * time.Millisecond}
	require.NoError(t, v.Tail(context.Background(), fx.live))
	assert.Equal(t, terminalio.ResetScreen+"ab", out.String())
}

func TestTail_FollowsAppendedFramesUntilGameEnds(t *testing.T) {
	fx := newFixture(t, "start ")
	var out syncBuffer
	v := &Viewer{Registry: fx.reg, Out: &out, Poll: 10 * time.Millisecond}

	done := make(chan error, 1)
	go func() { done <- v.Tail(context.Background(), fx.live) }()

	require.Eventually(t, func() bool { return out.String() == terminalio.ResetScreen+"start " },
		5*time.Second, 5*time.Millisecond)

	fx.append(t, frameBytes(t, "one "))
	// a frame written in two pieces is only shown once complete
	split := frameBytes(t, "two ")
	fx.append(t, split[:7])
	require.Eventually(t, func() bool { return out.String() == terminalio.ResetScreen+"start one " },
		5*time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, terminalio.ResetScreen+"start one ", out.String())
	fx.append(t, split[7:])
	fx.append(t, frameBytes(t, "three"))

	require.NoError(t, fx.reg.Unregister(fx.live.ID))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Tail did not return after the game ended")
	}
	assert.Equal(t, terminalio.ResetScreen+"start one two three", out.String())
}

func TestTail_QuitKeyStops(t *testing.T) {
	fx := newFixture(t, "screen")
	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pr.Close()
	defer pw.Close()

	var out syncBuffer
	v := &Viewer{Registry: fx.reg, In: pr, Out: &out, Poll: 10 * time.Millisecond}
	done := make(chan error, 1)
	go func() { done <- v.Tail(context.Background(), fx.live) }()

	_, err = pw.Write([]byte("xq"))
	require.NoError(t, err)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Tail ignored the quit key")
	}
	assert.True(t, fx.reg.Exists(fx.live.ID), "quitting does not touch the live marker")
}

func TestTail_ContextCancel(t *testing.T) {
	fx := newFixture(t, "screen")
	ctx, cancel := context.WithCancel(context.Background())
	v := &Viewer{Registry: fx.reg, Out: &syncBuffer{}, Poll: 10 * time.Millisecond}

	done := make(chan error, 1)
	go func() { done <- v.Tail(ctx, fx.live) }()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Tail ignored cancellation")
	}
}

func TestList_SkipsDeadOwners(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.reg.Register(session.Live{User: "ghost", Game: "nethack", PID: 1 << 30})
	require.NoError(t, err)

	v := &Viewer{Registry: fx.reg}
	live, err := v.List()
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "alice", live[0].User)
}
