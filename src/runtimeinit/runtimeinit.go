package runtimeinit

import (
	"fmt"
	"log"

	"screenshotr/src/clipboard"
	"screenshotr/src/config"
	"screenshotr/src/logutil"
	"screenshotr/src/notification"
	"screenshotr/src/upload"
)

type Options struct {
	LoadOptions  config.LoadOptions
	SetupLogging func(bool)
	// ShowBlockingConfigError pops up a dialog when the configuration is
	// unusable; the tray app has no terminal to print to.
	ShowBlockingConfigError bool
	InitClipboard           bool
}

// Runtime is what every capture entry point needs once started.
type Runtime struct {
	Config   *config.Config
	Uploader upload.Uploader
}

var initClipboard = clipboard.Init

// Bootstrap loads and validates configuration, sets up logging and builds
// the uploader for the configured mode.
func Bootstrap(opts Options) (*Runtime, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg.EnableFileLogging)
	}

	if err := cfg.Validate(); err != nil {
		if opts.ShowBlockingConfigError {
			notification.ShowBlockingError("Configuration error", fmt.Sprintf("%v\n\nSet UPLOAD_URL in %s or the environment.", err, envPathOrDefault(cfg)))
		}
		return nil, err
	}
	log.Printf("Config: endpoint=%s mode=%s password=%s env=%s",
		cfg.UploadURL, cfg.UploadMode, logutil.Redact(cfg.UploadPassword), envPathOrDefault(cfg))

	uploader, err := upload.New(upload.FromConfig(cfg))
	if err != nil {
		return nil, err
	}

	if opts.InitClipboard {
		if err := initClipboard(); err != nil {
			return nil, fmt.Errorf("failed to initialize clipboard: %w", err)
		}
	}

	return &Runtime{Config: cfg, Uploader: uploader}, nil
}

func envPathOrDefault(cfg *config.Config) string {
	if cfg.EnvPath == "" {
		return ".env"
	}
	return cfg.EnvPath
}
