package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"time"

	"screenshotr/src/capture"
	"screenshotr/src/clipboard"
	"screenshotr/src/notification"
	"screenshotr/src/singleinstance"
	"screenshotr/src/upload"
)

const defaultDeadline = 30 * time.Second

type SelectFunc func(ctx context.Context) (capture.Rectangle, error)

type RenderFunc func(rect capture.Rectangle) (image.Image, error)

type ResultTarget interface {
	OnSuccess(url string) error
	OnFailure(err error) error
}

type Options struct {
	Deadline time.Duration
	Select   SelectFunc
	Render   RenderFunc
	Uploader upload.Uploader
	Target   ResultTarget
}

type Result struct {
	URL  string
	Rect capture.Rectangle
}

// Cancelled reports whether err ended the attempt without anything to tell
// the user: the gesture was aborted or the selection discarded.
func Cancelled(err error) bool {
	return errors.Is(err, capture.ErrInputAborted) || errors.Is(err, capture.ErrDiscarded)
}

// Execute runs one attempt: select, render, upload, deliver. Every outcome is
// reported to opts.Target exactly once.
func Execute(ctx context.Context, opts Options) (Result, error) {
	if opts.Select == nil {
		return Result{}, errors.New("Select is required")
	}
	if opts.Render == nil {
		return Result{}, errors.New("Render is required")
	}
	if opts.Uploader == nil {
		return Result{}, errors.New("Uploader is required")
	}
	if opts.Target == nil {
		return Result{}, errors.New("Target is required")
	}

	rect, err := opts.Select(ctx)
	if err != nil {
		_ = opts.Target.OnFailure(err)
		return Result{}, err
	}

	img, err := opts.Render(rect)
	if err != nil {
		_ = opts.Target.OnFailure(err)
		return Result{}, err
	}

	res := Upload(ctx, opts.Uploader, upload.Request{Image: img, Name: rect.String()}, opts.Deadline)
	if !res.OK() {
		_ = opts.Target.OnFailure(res.Err)
		return Result{Rect: rect}, res.Err
	}

	if err := opts.Target.OnSuccess(res.URL); err != nil {
		_ = opts.Target.OnFailure(err)
		return Result{Rect: rect}, err
	}
	return Result{URL: res.URL, Rect: rect}, nil
}

// Upload performs a single bounded upload.
func Upload(ctx context.Context, u upload.Uploader, req upload.Request, deadline time.Duration) upload.Result {
	if deadline <= 0 {
		deadline = defaultDeadline
	}
	jobCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	res := u.Upload(jobCtx, req)
	log.Printf("session: upload finished in %v ok=%v", time.Since(start), res.OK())
	return res
}

// ClipboardTarget copies the URL and shows failures as a notification.
type ClipboardTarget struct {
	NotifySuccess bool
}

func (t ClipboardTarget) OnSuccess(url string) error {
	if err := clipboard.Write(url); err != nil {
		return fmt.Errorf("clipboard error: %w", err)
	}
	if t.NotifySuccess {
		notification.ShowInfo("Upload complete", url)
	}
	return nil
}

func (ClipboardTarget) OnFailure(err error) error {
	if err == nil || Cancelled(err) {
		return nil
	}
	notification.ShowError("Upload failed", err.Error())
	return nil
}

// StdoutTarget prints the URL on its own line.
type StdoutTarget struct {
	Writer io.Writer
}

func (t StdoutTarget) OnSuccess(url string) error {
	w := t.Writer
	if w == nil {
		w = os.Stdout
	}
	_, err := fmt.Fprintln(w, url)
	return err
}

func (t StdoutTarget) OnFailure(err error) error {
	return nil
}

// DelegatedTarget answers a run-once client connected to the resident.
type DelegatedTarget struct {
	Conn           singleinstance.Conn
	OutputToStdout bool
}

func (t DelegatedTarget) OnSuccess(url string) error {
	if t.Conn == nil {
		return errors.New("delegated target missing connection")
	}
	if t.OutputToStdout {
		return t.Conn.RespondSuccess(url)
	}
	if err := clipboard.Write(url); err != nil {
		return fmt.Errorf("clipboard error: %w", err)
	}
	return t.Conn.RespondSuccess(url)
}

func (t DelegatedTarget) OnFailure(err error) error {
	if t.Conn == nil {
		return nil
	}
	if err == nil {
		return t.Conn.RespondError("unknown session error")
	}
	if Cancelled(err) {
		return t.Conn.RespondCancelled()
	}
	return t.Conn.RespondError(err.Error())
}
