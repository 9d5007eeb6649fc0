package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"screenshotr/src/capture"
	"screenshotr/src/config"
	"screenshotr/src/hotkey"
	"screenshotr/src/inputhook"
	"screenshotr/src/notification"
	"screenshotr/src/screenshot"
	"screenshotr/src/session"
	"screenshotr/src/singleinstance"
	"screenshotr/src/tray"
	"screenshotr/src/upload"
	"screenshotr/src/worker"
)

// ErrBusy is reported when a capture is requested while an upload is in flight.
var ErrBusy = errors.New("Busy, please retry")

// Loop is the single-threaded coordinator for IPC-based run-once and hotkey flows.
type Loop struct {
	selectRegion session.SelectFunc
	render       session.RenderFunc
	pool         *worker.Pool
	newServer    func() singleinstance.Server
	srv          singleinstance.Server
	hub          *inputhook.Hub

	busy           bool
	results        chan result
	triggerCh      chan struct{}
	defaultTooltip string
	tooltip        func(string)
	about          func(string)
	stopHotkey     func()
}

type result struct {
	res    upload.Result
	target resultTarget
}

type resultTarget interface {
	session.ResultTarget
	Close()
}

type hotkeyResultTarget struct {
	session.ClipboardTarget
}

func (hotkeyResultTarget) Close() {}

type delegatedResultTarget struct {
	session.DelegatedTarget
}

func newDelegatedResultTarget(conn singleinstance.Conn) delegatedResultTarget {
	return delegatedResultTarget{session.DelegatedTarget{Conn: conn, OutputToStdout: conn.Request().OutputToStdout}}
}

func (t delegatedResultTarget) Close() {
	if t.Conn != nil {
		_ = t.Conn.Close()
	}
}

// New creates a new event loop with defaults based on config. Selection reads
// pointer events from hub; captured regions are uploaded with uploader.
func New(cfg *config.Config, hub *inputhook.Hub, uploader upload.Uploader) *Loop {
	deadlineSec := 30
	var settle time.Duration
	if cfg != nil {
		if cfg.UploadDeadlineSec > 0 {
			deadlineSec = cfg.UploadDeadlineSec
		}
		settle = time.Duration(cfg.CaptureDelayMs) * time.Millisecond
	}
	renderer := screenshot.NewScreenRenderer(settle)

	return newLoop(loopDeps{
		selectRegion: func(ctx context.Context) (capture.Rectangle, error) {
			return capture.Select(ctx, inputhook.NewPointerSource(hub), capture.AlwaysAccept, capture.RunOptions{})
		},
		render:    renderer.Render,
		pool:      worker.New(1, uploader, time.Duration(deadlineSec)*time.Second),
		newServer: singleinstance.NewServer,
		hub:       hub,
		tooltip:   tray.UpdateTooltip,
		about:     tray.SetAboutExtra,
	})
}

type loopDeps struct {
	selectRegion session.SelectFunc
	render       session.RenderFunc
	pool         *worker.Pool
	newServer    func() singleinstance.Server
	hub          *inputhook.Hub
	tooltip      func(string)
	about        func(string)
}

func newLoop(d loopDeps) *Loop {
	l := &Loop{
		selectRegion:   d.selectRegion,
		render:         d.render,
		pool:           d.pool,
		newServer:      d.newServer,
		hub:            d.hub,
		results:        make(chan result, 1),
		triggerCh:      make(chan struct{}, 4),
		defaultTooltip: "screenshotr",
		tooltip:        d.tooltip,
		about:          d.about,
	}
	if l.tooltip == nil {
		l.tooltip = func(string) {}
	}
	if l.about == nil {
		l.about = func(string) {}
	}
	return l
}

// SetDefaultTooltip optionally sets the tray tooltip base text.
func (l *Loop) SetDefaultTooltip(tt string) { l.defaultTooltip = tt }

func (l *Loop) setBusy(b bool) {
	l.busy = b
	if b {
		l.tooltip("screenshotr: uploading...")
	} else {
		l.tooltip(l.defaultTooltip)
	}
}

// Trigger requests a capture. Safe to call from any goroutine; extra
// triggers are dropped while the queue is full.
func (l *Loop) Trigger() {
	select {
	case l.triggerCh <- struct{}{}:
	default:
	}
}

// StartHotkey registers a global hotkey and posts events into the loop.
func (l *Loop) StartHotkey(combo string) error {
	if combo == "" {
		return nil
	}
	if l.hub == nil {
		return inputhook.ErrHookUnavailable
	}
	stop, err := hotkey.Listen(l.hub, combo, l.Trigger)
	if err != nil {
		return err
	}
	l.stopHotkey = stop
	return nil
}

// Run starts the singleinstance server and processes client requests.
// It blocks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.srv = l.newServer()
	if err := l.srv.Start(ctx); err != nil {
		return err
	}
	defer l.srv.Close()
	if p := l.srv.Port(); p > 0 {
		log.Printf("Resident listening on 127.0.0.1:%d", p)
		l.about(fmt.Sprintf("Resident TCP port: %d", p))
	}
	defer l.pool.Close()
	defer func() {
		if l.stopHotkey != nil {
			l.stopHotkey()
		}
	}()

	// Accept loop in background to avoid blocking result handling
	reqCh := make(chan singleinstance.Conn, 4)
	go func() {
		defer close(reqCh)
		for {
			conn, err := l.srv.Next(ctx)
			if err != nil {
				return
			}
			select {
			case reqCh <- conn:
			case <-ctx.Done():
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.triggerCh:
			l.handleHotkey(ctx)
		case conn, ok := <-reqCh:
			if !ok {
				return nil
			}
			l.handleConn(ctx, conn)
		case res := <-l.results:
			l.handleResult(res)
		}
	}
}

func (l *Loop) handleConn(ctx context.Context, conn singleinstance.Conn) {
	log.Printf("handleConn: run-once request stdout=%v", conn.Request().OutputToStdout)
	target := newDelegatedResultTarget(conn)
	if !l.startRequest(ctx, target) {
		target.Close()
	}
}

func (l *Loop) handleHotkey(ctx context.Context) {
	log.Printf("handleHotkey: called")
	l.startRequest(ctx, hotkeyResultTarget{})
}

func (l *Loop) handleResult(r result) {
	defer l.setBusy(false)
	defer r.target.Close()

	if !r.res.OK() {
		log.Printf("handleResult: upload failed: %v", r.res.Err)
		_ = r.target.OnFailure(r.res.Err)
		return
	}
	if err := r.target.OnSuccess(r.res.URL); err != nil {
		log.Printf("handleResult: delivery error: %v", err)
		_ = r.target.OnFailure(err)
		return
	}
	log.Printf("handleResult: delivered %s", r.res.URL)
}

// startRequest selects and renders on the loop goroutine, then hands the
// upload to the pool. It reports whether the target now belongs to a pending
// result.
func (l *Loop) startRequest(ctx context.Context, target resultTarget) bool {
	if l.busy {
		log.Printf("startRequest: busy, rejecting")
		l.reportBusy(target)
		return false
	}

	rect, err := l.selectRegion(ctx)
	if err != nil {
		if !session.Cancelled(err) {
			err = fmt.Errorf("Failed to select region: %w", err)
		}
		log.Printf("startRequest: selection ended: %v", err)
		_ = target.OnFailure(err)
		return false
	}

	img, err := l.render(rect)
	if err != nil {
		log.Printf("startRequest: render failed: %v", err)
		_ = target.OnFailure(err)
		return false
	}

	l.setBusy(true)
	submitted := l.pool.Submit(ctx, upload.Request{Image: img, Name: rect.String()}, func(res upload.Result) {
		l.results <- result{res: res, target: target}
	})
	if !submitted {
		l.setBusy(false)
		l.reportBusy(target)
		return false
	}
	return true
}

func (l *Loop) reportBusy(target resultTarget) {
	if _, ok := target.(hotkeyResultTarget); ok {
		notification.ShowInfo("screenshotr", ErrBusy.Error())
		return
	}
	_ = target.OnFailure(ErrBusy)
}
