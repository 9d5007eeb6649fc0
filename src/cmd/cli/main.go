package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"screenshotr/src/capture"
	"screenshotr/src/clipboard"
	"screenshotr/src/config"
	"screenshotr/src/inputhook"
	"screenshotr/src/logutil"
	"screenshotr/src/runtimeinit"
	"screenshotr/src/screenshot"
	"screenshotr/src/session"
	"screenshotr/src/upload"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

type cliOptions struct {
	filePath      string
	fromClipboard bool
	jsonOutput    bool
	verbose       bool
	uploadURL     string
	envPath       string
	confirm       bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args))
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"screenshotr-cli"}
	}

	opts := &cliOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "screenshotr-cli",
		Short:         "Upload a PNG file, stdin or the clipboard image",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.filePath == "" && !opts.fromClipboard {
				return errors.New("one of --file or --clipboard is required")
			}
			if opts.filePath != "" && opts.fromClipboard {
				return errors.New("--file and --clipboard are mutually exclusive")
			}
			return runUpload(cmd, *opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	pf.StringVar(&opts.uploadURL, "url", "", "Upload endpoint (overrides UPLOAD_URL)")
	pf.StringVar(&opts.envPath, "env-path", "", "Path to the .env file (highest precedence)")

	cmd.Flags().StringVar(&opts.filePath, "file", "", "Path to PNG file (use '-' for stdin)")
	cmd.Flags().BoolVar(&opts.fromClipboard, "clipboard", false, "Upload the image currently on the clipboard")

	cmd.AddCommand(newCaptureCmd(opts))
	return cmd
}

func newCaptureCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Select a screen region with the mouse and upload it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd, *opts)
		},
	}
	cmd.Flags().BoolVar(&opts.confirm, "confirm", false, "Ask before uploading each selection (also CONFIRM_UPLOAD)")
	return cmd
}

func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range []string{"file", "clipboard", "json", "verbose", "url", "env-path", "confirm"} {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				normalized[i] = "-" + arg
				break
			}
		}
	}

	return normalized
}

// setup configures logging and loads the uploader. Logging is set up BEFORE
// any other operation so config loading is covered by --verbose.
func setup(cmd *cobra.Command, opts cliOptions) (*config.Config, upload.Uploader, error) {
	logutil.SetupStderr(opts.verbose)
	if opts.verbose {
		log.SetOutput(cmd.ErrOrStderr())
		fmt.Fprintf(cmd.ErrOrStderr(), "[verbose] Starting upload tool\n")
	}

	rt, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions: config.LoadOptions{
			EnvPathOverride:   opts.envPath,
			UploadURLOverride: opts.uploadURL,
		},
		InitClipboard: opts.fromClipboard,
	})
	if err != nil {
		return nil, nil, err
	}
	if opts.verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "[verbose] Config loaded: endpoint=%s mode=%s env=%s\n", rt.Config.UploadURL, rt.Config.UploadMode, rt.Config.EnvPath)
	}
	return rt.Config, rt.Uploader, nil
}

func runUpload(cmd *cobra.Command, opts cliOptions) error {
	cfg, uploader, err := setup(cmd, opts)
	if err != nil {
		return err
	}

	data, source, err := readInput(cmd, opts)
	if err != nil {
		return err
	}
	if opts.verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "[verbose] Read %d bytes from %s\n", len(data), source)
	}

	return performUpload(cmd, uploader, cfg, upload.Request{Data: data, Name: filepath.Base(source)}, source, opts)
}

func readInput(cmd *cobra.Command, opts cliOptions) ([]byte, string, error) {
	if opts.fromClipboard {
		img, err := clipboard.ReadImage()
		if err != nil {
			return nil, "", err
		}
		source := "clipboard"
		if img.Name != "" {
			source = img.Name
		}
		return img.PNG, source, nil
	}

	var data []byte
	var err error
	if opts.filePath == "-" {
		data, err = io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxFileSize+1))
		if err != nil {
			return nil, "", fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(opts.filePath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read file %s: %w", opts.filePath, err)
		}
	}
	if err := validatePNG(data); err != nil {
		return nil, "", err
	}
	source := opts.filePath
	if source == "-" {
		source = "stdin"
	}
	return data, source, nil
}

func validatePNG(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("input file is empty")
	}
	if len(data) > maxFileSize {
		return fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	if !screenshot.IsPNG(data) {
		return fmt.Errorf("input is not a valid PNG file (invalid magic number)")
	}
	return nil
}

func runCapture(cmd *cobra.Command, opts cliOptions) error {
	cfg, uploader, err := setup(cmd, opts)
	if err != nil {
		return err
	}

	var decide capture.DecideFunc = capture.AlwaysAccept
	if opts.confirm || cfg.ConfirmUpload {
		decide = promptDecision(cmd.InOrStdin(), cmd.ErrOrStderr())
	}

	hub := inputhook.NewHub()
	defer hub.Stop()
	fmt.Fprintln(cmd.ErrOrStderr(), "Drag a rectangle with the left mouse button (Esc to abort)")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rect, err := capture.Select(ctx, inputhook.NewPointerSource(hub), decide, capture.RunOptions{})
	if session.Cancelled(err) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled")
		return nil
	}
	if err != nil {
		return err
	}

	img, err := screenshot.NewScreenRenderer(time.Duration(cfg.CaptureDelayMs) * time.Millisecond).Render(rect)
	if err != nil {
		return err
	}
	return performUpload(cmd, uploader, cfg, upload.Request{Image: img, Name: rect.String()}, rect.String(), opts)
}

// promptDecision asks on in/out after every finished selection.
func promptDecision(in io.Reader, out io.Writer) capture.DecideFunc {
	br := bufio.NewReader(in)
	return func(ctx context.Context, rect capture.Rectangle) (capture.Decision, error) {
		for {
			fmt.Fprintf(out, "Upload %s? [y]es/[n]o/[r]etry: ", rect)
			line, err := br.ReadString('\n')
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return capture.Accept, nil
			case "n", "no":
				return capture.Discard, nil
			case "r", "retry":
				return capture.Retry, nil
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return capture.Discard, nil
				}
				return capture.Discard, err
			}
		}
	}
}

func performUpload(cmd *cobra.Command, uploader upload.Uploader, cfg *config.Config, req upload.Request, source string, opts cliOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	startTime := time.Now()
	res := session.Upload(ctx, uploader, req, time.Duration(cfg.UploadDeadlineSec)*time.Second)
	elapsed := time.Since(startTime)

	if !res.OK() {
		if opts.verbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "[verbose] Upload failed after %v: %v\n", elapsed, res.Err)
		}
		return fmt.Errorf("upload failed: %w", res.Err)
	}
	if opts.verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "[verbose] Upload completed in %v\n", elapsed)
	}

	return outputResult(cmd.OutOrStdout(), res.URL, source, elapsed, opts.jsonOutput)
}

type UploadResult struct {
	URL       string  `json:"url"`
	Source    string  `json:"source"`
	Timestamp string  `json:"timestamp"`
	Duration  float64 `json:"duration_seconds"`
}

func outputResult(w io.Writer, url string, source string, elapsed time.Duration, jsonOutput bool) error {
	if jsonOutput {
		result := UploadResult{
			URL:       url,
			Source:    source,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Duration:  elapsed.Seconds(),
		}

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(result); err != nil {
			return fmt.Errorf("failed to encode JSON output: %w", err)
		}
		return nil
	}

	_, err := fmt.Fprintln(w, url)
	return err
}
