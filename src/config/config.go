package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

const (
	AppName         = "screenshotr"
	EnvPathVar      = "SCREENSHOTR_ENV"
	DefaultHotkey   = "Ctrl+Alt+S"
	ModeHeaderAuth  = "header"
	ModeSecret      = "secret"
	defaultDeadline = 30
)

// ErrConfigurationMissing is returned when no upload endpoint, or no secret
// for the embedded-secret mode, is configured.
var ErrConfigurationMissing = errors.New("no upload url defined, please check your settings")

type LoadOptions struct {
	EnvPathOverride   string
	UploadURLOverride string
}

type Config struct {
	UploadURL         string
	UploadPassword    string
	HTTPUser          string
	HTTPPassword      string
	UseProxy          bool
	UploadMode        string
	AllowInsecureTLS  bool
	Hotkey            string
	EnableFileLogging bool
	UploadDeadlineSec int
	CaptureDelayMs    int
	ConfirmUpload     bool
	EnvPath           string
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Sources in priority order: explicit path, .env next to the executable,
	// SCREENSHOTR_ENV, then $XDG_CONFIG_HOME/screenshotr/.env. Process env
	// always wins over file values.
	envPath := resolveEnvPath(opts)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	uploadURL := strings.TrimSpace(os.Getenv("UPLOAD_URL"))
	if v := strings.TrimSpace(opts.UploadURLOverride); v != "" {
		uploadURL = v
	}

	cfg := &Config{
		UploadURL:         uploadURL,
		UploadPassword:    os.Getenv("UPLOAD_PASSWORD"),
		HTTPUser:          strings.TrimSpace(os.Getenv("HTTP_USER")),
		HTTPPassword:      os.Getenv("HTTP_PASSWORD"),
		UseProxy:          parseBool(os.Getenv("USE_PROXY")),
		AllowInsecureTLS:  parseBool(os.Getenv("ALLOW_INSECURE_TLS")),
		Hotkey:            getEnvWithDefault("HOTKEY", DefaultHotkey),
		EnableFileLogging: parseBool(os.Getenv("ENABLE_FILE_LOGGING")),
		UploadDeadlineSec: getPositiveInt("UPLOAD_DEADLINE_SEC", defaultDeadline),
		CaptureDelayMs:    getPositiveInt("CAPTURE_DELAY_MS", 0),
		ConfirmUpload:     parseBool(os.Getenv("CONFIRM_UPLOAD")),
		EnvPath:           envPath,
	}
	cfg.UploadMode = resolveUploadMode(os.Getenv("UPLOAD_MODE"), cfg.UploadPassword)

	return cfg, nil
}

// Validate reports ErrConfigurationMissing when nothing can be uploaded.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.UploadURL) == "" {
		return ErrConfigurationMissing
	}
	if c.UploadMode == ModeSecret && c.UploadPassword == "" {
		return errors.Join(ErrConfigurationMissing, errors.New("UPLOAD_PASSWORD is required for secret upload mode"))
	}
	return nil
}

func resolveEnvPath(opts LoadOptions) string {
	if p := strings.TrimSpace(opts.EnvPathOverride); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		return ""
	}

	if execPath, err := os.Executable(); err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(EnvPathVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	xdgEnv := filepath.Join(xdg.ConfigHome, AppName, ".env")
	if _, err := os.Stat(xdgEnv); err == nil {
		return xdgEnv
	}

	return ""
}

// resolveUploadMode picks the wire protocol. Without an explicit mode the
// legacy secret protocol is used only when a secret is configured.
func resolveUploadMode(value, secret string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case ModeHeaderAuth, "headers", "basic":
		return ModeHeaderAuth
	case ModeSecret, "legacy", "embedded":
		return ModeSecret
	}
	if secret != "" {
		return ModeSecret
	}
	return ModeHeaderAuth
}

// parseBool accepts the original "1" flag as well as true/yes/on.
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func getPositiveInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
