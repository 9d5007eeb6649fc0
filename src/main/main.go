package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"screenshotr/src/capture"
	"screenshotr/src/config"
	"screenshotr/src/eventloop"
	"screenshotr/src/inputhook"
	"screenshotr/src/logutil"
	"screenshotr/src/notification"
	"screenshotr/src/runtimeinit"
	"screenshotr/src/screenshot"
	"screenshotr/src/session"
	"screenshotr/src/singleinstance"
	"screenshotr/src/tray"
)

type mainOptions struct {
	runOnce    bool
	runOnceStd bool
	envPath    string
}

var legacyFlags = []string{"run-once-std", "run-once", "env-path"}

// normalizeLegacyArgs maps Go-style -run-once[(-std)] / -env-path to the
// GNU-style flags cobra expects.
func normalizeLegacyArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 1; i < len(out); i++ {
		arg := out[i]
		if !strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "--") {
			continue
		}
		name := strings.SplitN(arg[1:], "=", 2)[0]
		for _, f := range legacyFlags {
			if name == f {
				out[i] = "-" + arg
				break
			}
		}
	}
	return out
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "screenshotr",
		Short:         "Capture a screen region and upload it",
		Long:          "Runs resident in the tray by default. Press the hotkey, drag a rectangle and the upload URL lands on the clipboard.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.runOnce || opts.runOnceStd {
				return runOnce(opts)
			}
			return runResident(opts)
		},
	}
	cmd.Flags().BoolVar(&opts.runOnce, "run-once", false, "Capture once, copy the URL to the clipboard, and exit")
	cmd.Flags().BoolVar(&opts.runOnceStd, "run-once-std", false, "Capture once, print the URL to stdout, and exit")
	cmd.Flags().StringVar(&opts.envPath, "env-path", "", "Path to the .env file")
	return cmd
}

func main() {
	// Ensure DPI awareness before creating any windows or querying metrics
	enableDPIAwareness()

	// Keep the hook and tray callbacks on a stable OS thread.
	runtime.LockOSThread()

	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(normalizeLegacyArgs(os.Args)[1:])
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runOnce(opts *mainOptions) error {
	stdout := opts.runOnceStd
	// Load .env early so SCREENSHOTR_PORT_* are applied before the delegation scan
	_, _ = config.LoadWithOptions(config.LoadOptions{EnvPathOverride: opts.envPath})

	return handleRunOnceWithDelegation(context.Background(), stdout, os.Stdout, singleinstance.NewClient(), func() error {
		return runStandalone(opts.envPath, stdout)
	})
}

// handleRunOnceWithDelegation hands the capture to a resident when one
// answers; fallback runs when none does or delegation could not start.
func handleRunOnceWithDelegation(ctx context.Context, stdout bool, w io.Writer, client singleinstance.Client, fallback func() error) error {
	delegated, url, err := client.TryRunOnce(ctx, stdout)
	if !delegated {
		if err != nil {
			log.Printf("Delegation error: %v; falling back to standalone", err)
		} else {
			log.Printf("No resident detected (not delegated), running standalone")
		}
		return fallback()
	}
	if errors.Is(err, singleinstance.ErrCancelled) {
		log.Printf("Delegated capture cancelled")
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("Delegated to resident")
	if stdout {
		_, err = fmt.Fprintln(w, url)
	}
	return err
}

// runStandalone performs a single capture in this process.
func runStandalone(envPath string, stdout bool) error {
	rt, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:   config.LoadOptions{EnvPathOverride: envPath},
		SetupLogging:  logutil.Setup,
		InitClipboard: true,
	})
	if err != nil {
		return err
	}
	cfg := rt.Config

	hub := inputhook.NewHub()
	defer hub.Stop()
	renderer := screenshot.NewScreenRenderer(time.Duration(cfg.CaptureDelayMs) * time.Millisecond)

	var target session.ResultTarget = session.ClipboardTarget{}
	if stdout {
		target = session.StdoutTarget{Writer: os.Stdout}
	}

	log.Printf("Running capture once (stdout=%v) with upload deadline %ds", stdout, cfg.UploadDeadlineSec)
	res, err := session.Execute(context.Background(), session.Options{
		Deadline: time.Duration(cfg.UploadDeadlineSec) * time.Second,
		Select: func(ctx context.Context) (capture.Rectangle, error) {
			return capture.Select(ctx, inputhook.NewPointerSource(hub), capture.AlwaysAccept, capture.RunOptions{})
		},
		Render:   renderer.Render,
		Uploader: rt.Uploader,
		Target:   target,
	})
	if session.Cancelled(err) {
		log.Printf("Capture cancelled")
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("Capture uploaded: %s (%s)", res.URL, res.Rect)
	return nil
}

func runResident(opts *mainOptions) error {
	// Load .env early so SCREENSHOTR_PORT_* are available for pre-flight
	_, _ = config.LoadWithOptions(config.LoadOptions{EnvPathOverride: opts.envPath})
	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 2*time.Second)
	port, found := singleinstance.DetectResidentPort(probeCtx)
	cancelProbe()
	if found {
		log.Printf("Pre-flight: resident answered on port %d", port)
		fmt.Printf("one is already running on port %d\n", port)
		os.Exit(1)
	}

	rt, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:             config.LoadOptions{EnvPathOverride: opts.envPath},
		SetupLogging:            logutil.Setup,
		ShowBlockingConfigError: true,
		InitClipboard:           true,
	})
	if err != nil {
		return err
	}
	cfg := rt.Config
	logMonitorConfiguration()

	log.Printf("screenshotr initialized")
	log.Printf("Hotkey: %s", cfg.Hotkey)
	log.Printf("Upload deadline: %ds", cfg.UploadDeadlineSec)

	// Propagate hotkey to About dialog
	tray.SetAboutHotkey(cfg.Hotkey)

	hub := inputhook.NewHub()
	defer hub.Stop()

	tooltip := fmt.Sprintf("screenshotr - Press %s to capture", cfg.Hotkey)
	loop := eventloop.New(cfg, hub, rt.Uploader)
	loop.SetDefaultTooltip(tooltip)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trayIcon, err := tray.New(tray.Config{
		Title:     "screenshotr",
		Tooltip:   tooltip,
		OnCapture: loop.Trigger,
		OnExit:    func() { cancel() },
	})
	if err != nil {
		return err
	}
	go trayIcon.Run()
	defer trayIcon.Destroy()

	if err := loop.StartHotkey(cfg.Hotkey); err != nil {
		notification.ShowError("Hotkey unavailable", err.Error())
		log.Printf("Hotkey registration failed: %v", err)
	}

	// Handle SIGINT/SIGTERM
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("event loop stopped: %v", err)
		return err
	}
	return nil
}

func logMonitorConfiguration() {
	bounds, err := screenshot.VirtualScreen()
	if err != nil {
		log.Printf("MONITOR: %v", err)
		return
	}
	log.Printf("MONITOR: virtual screen x:%d y:%d w:%d h:%d", bounds.Min.X, bounds.Min.Y, bounds.Dx(), bounds.Dy())
}
