package eventloop

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"screenshotr/src/capture"
	"screenshotr/src/singleinstance"
	"screenshotr/src/upload"
	"screenshotr/src/worker"
)

type fakeConn struct {
	stdout bool

	mu      sync.Mutex
	replies []string
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn(stdout bool) *fakeConn {
	return &fakeConn{stdout: stdout, closed: make(chan struct{})}
}

func (c *fakeConn) Request() singleinstance.Request {
	return singleinstance.Request{OutputToStdout: c.stdout}
}

func (c *fakeConn) record(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, s)
	return nil
}

func (c *fakeConn) RespondSuccess(url string) error { return c.record("SUCCESS " + url) }
func (c *fakeConn) RespondError(msg string) error   { return c.record("ERROR " + msg) }
func (c *fakeConn) RespondCancelled() error         { return c.record("CANCELLED") }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-c.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.replies...)
}

type fakeServer struct {
	conns chan singleinstance.Conn
}

func (s *fakeServer) Start(context.Context) error { return nil }
func (s *fakeServer) Port() int                   { return 49600 }
func (s *fakeServer) Close() error                { return nil }

func (s *fakeServer) Next(ctx context.Context) (singleinstance.Conn, error) {
	select {
	case c := <-s.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type fakeUploader struct {
	res     upload.Result
	release chan struct{}
}

func (f *fakeUploader) Upload(ctx context.Context, req upload.Request) upload.Result {
	if f.release != nil {
		<-f.release
	}
	return f.res
}

type harness struct {
	loop   *Loop
	srv    *fakeServer
	about  chan string
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, sel func(context.Context) (capture.Rectangle, error), up upload.Uploader) *harness {
	t.Helper()
	h := &harness{srv: &fakeServer{conns: make(chan singleinstance.Conn)}, about: make(chan string, 1)}
	h.loop = newLoop(loopDeps{
		selectRegion: sel,
		render:       func(r capture.Rectangle) (image.Image, error) { return image.NewRGBA(r.Bounds()), nil },
		pool:         worker.New(1, up, time.Second),
		newServer:    func() singleinstance.Server { return h.srv },
		about:        func(s string) { h.about <- s },
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- h.loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

var rect = capture.Rectangle{Start: capture.Point{X: 1, Y: 1}, End: capture.Point{X: 21, Y: 11}}

func selectRect(context.Context) (capture.Rectangle, error) { return rect, nil }

func TestDelegatedCaptureSucceeds(t *testing.T) {
	h := start(t, selectRect, &fakeUploader{res: upload.Success("http://host/img1.png")})
	require.Equal(t, "Resident TCP port: 49600", <-h.about)

	conn := newFakeConn(true)
	h.srv.conns <- conn
	require.Equal(t, []string{"SUCCESS http://host/img1.png"}, conn.wait(t))
}

func TestDelegatedUploadFailure(t *testing.T) {
	h := start(t, selectRect, &fakeUploader{res: upload.Failure(upload.ErrAuthorizationFailed)})

	conn := newFakeConn(true)
	h.srv.conns <- conn
	require.Equal(t, []string{"ERROR " + upload.ErrAuthorizationFailed.Error()}, conn.wait(t))
}

func TestDelegatedAbortIsCancelled(t *testing.T) {
	sel := func(context.Context) (capture.Rectangle, error) { return capture.Rectangle{}, capture.ErrInputAborted }
	h := start(t, sel, &fakeUploader{})

	conn := newFakeConn(false)
	h.srv.conns <- conn
	require.Equal(t, []string{"CANCELLED"}, conn.wait(t))
}

func TestDelegatedSelectionError(t *testing.T) {
	sel := func(context.Context) (capture.Rectangle, error) { return capture.Rectangle{}, errors.New("hook unavailable") }
	h := start(t, sel, &fakeUploader{})

	conn := newFakeConn(true)
	h.srv.conns <- conn
	require.Equal(t, []string{"ERROR Failed to select region: hook unavailable"}, conn.wait(t))
}

func TestBusyRejectsSecondRequest(t *testing.T) {
	up := &fakeUploader{res: upload.Success("http://host/img2.png"), release: make(chan struct{})}
	h := start(t, selectRect, up)

	first := newFakeConn(true)
	h.srv.conns <- first
	second := newFakeConn(true)
	h.srv.conns <- second

	require.Equal(t, []string{"ERROR " + ErrBusy.Error()}, second.wait(t))
	close(up.release)
	require.Equal(t, []string{"SUCCESS http://host/img2.png"}, first.wait(t))
}

func TestHotkeyAbortIsSilent(t *testing.T) {
	calls := make(chan struct{}, 1)
	sel := func(context.Context) (capture.Rectangle, error) {
		calls <- struct{}{}
		return capture.Rectangle{}, capture.ErrDiscarded
	}
	h := start(t, sel, &fakeUploader{})

	h.loop.Trigger()
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not start a selection")
	}
}

func TestStartHotkeyWithoutHub(t *testing.T) {
	l := newLoop(loopDeps{})
	require.NoError(t, l.StartHotkey(""))
	require.Error(t, l.StartHotkey("Ctrl+Alt+S"))
}
