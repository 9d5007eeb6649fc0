package serverconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"screenshotr/src/resolver"
)

const defaultMaxBodyBytes = 20 << 20

type Config struct {
	ListenAddr     string `yaml:"listen_addr" json:"listen_addr"`
	UploadDir      string `yaml:"upload_dir" json:"upload_dir"`
	FilePattern    string `yaml:"file_pattern" json:"file_pattern"`
	BasePath       string `yaml:"base_path" json:"base_path"`
	Password       string `yaml:"password" json:"-"`
	HTTPUser       string `yaml:"http_user" json:"http_user"`
	HTTPPassword   string `yaml:"http_password" json:"-"`
	Naming         string `yaml:"naming" json:"naming"`
	CounterDB      string `yaml:"counter_db" json:"counter_db"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes" json:"max_body_bytes"`
	MaxConnections int    `yaml:"max_connections" json:"max_connections"`
}

func Default() *Config {
	return &Config{
		ListenAddr:     ":8080",
		UploadDir:      "./uploads",
		FilePattern:    "img$.png",
		Naming:         resolver.StrategyScan,
		CounterDB:      filepath.Join(xdg.DataHome, "screenshotr", "counters.db"),
		MaxBodyBytes:   defaultMaxBodyBytes,
		MaxConnections: 64,
	}
}

// Load reads the YAML file named by CONFIG_PATH (default ./config.yaml),
// applies env overrides and validates the result. A missing file is not an
// error; defaults and env are used instead.
func Load() (*Config, error) {
	return LoadFile(getenv("CONFIG_PATH", "./config.yaml"))
}

func LoadFile(path string) (*Config, error) {
	c := Default()

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	// ENV override
	overrideString(&c.ListenAddr, "LISTEN_ADDR")
	overrideString(&c.UploadDir, "UPLOAD_DIR")
	overrideString(&c.FilePattern, "FILE_PATTERN")
	overrideString(&c.BasePath, "BASE_PATH")
	overrideString(&c.Password, "UPLOAD_PASSWORD")
	overrideString(&c.HTTPUser, "HTTP_USER")
	overrideString(&c.HTTPPassword, "HTTP_PASSWORD")
	overrideString(&c.Naming, "NAMING")
	overrideString(&c.CounterDB, "COUNTER_DB")
	if v := os.Getenv("MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("MAX_BODY_BYTES: %w", err)
		}
		c.MaxBodyBytes = n
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if _, err := resolver.ParsePattern(c.FilePattern); err != nil {
		return err
	}
	switch c.Naming {
	case resolver.StrategyScan, resolver.StrategyCounter, resolver.StrategyUUID:
	default:
		return fmt.Errorf("unknown naming strategy %q", c.Naming)
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if (c.HTTPUser == "") != (c.HTTPPassword == "") {
		return errors.New("http_user and http_password must be set together")
	}
	if c.Password == "" && c.HTTPUser == "" {
		return errors.New("no authentication configured: set password or http_user/http_password")
	}
	if strings.TrimSpace(c.UploadDir) == "" {
		return errors.New("upload_dir is required")
	}
	return nil
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}

	return def
}
