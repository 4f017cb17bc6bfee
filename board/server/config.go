// ABOUTME: Server configuration loaded with viper from an optional YAML file and KANBANSYNC_* env vars.
// ABOUTME: Enforces security constraint: remote access requires auth token.
package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/2389-research/kanbansync/board/core"
	"github.com/2389-research/kanbansync/board/persist"
	"github.com/2389-research/kanbansync/board/store"
)

var (
	ErrRemoteWithoutToken = errors.New(
		"allow_remote is true but auth_token is not set; refusing to start without authentication",
	)
	ErrNonLoopbackBind = errors.New(
		"bind is a non-loopback address but allow_remote is not true; set KANBANSYNC_ALLOW_REMOTE=true and KANBANSYNC_AUTH_TOKEN to allow remote access",
	)
)

// Backend names the persistence service.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// RedisConfig addresses the Redis backend.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	Namespace string `mapstructure:"namespace"`
}

// RetryConfig maps onto persist.RetryPolicy.
type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// Config holds everything the server needs to run one board.
type Config struct {
	Home           string        `mapstructure:"home"`
	Board          string        `mapstructure:"board"`
	Bind           string        `mapstructure:"bind"`
	AllowRemote    bool          `mapstructure:"allow_remote"`
	AuthToken      string        `mapstructure:"auth_token"`
	DefaultUser    string        `mapstructure:"default_user"`
	Backend        string        `mapstructure:"backend"`
	ActiveLanes    []string      `mapstructure:"active_lanes"`
	ReservedLanes  []string      `mapstructure:"reserved_lanes"`
	ResyncInterval time.Duration `mapstructure:"resync_interval"`
	SnapshotEvery  int           `mapstructure:"snapshot_every"`
	SnapshotKeep   int           `mapstructure:"snapshot_keep"`
	LogLevel       string        `mapstructure:"log_level"`
	Redis          RedisConfig   `mapstructure:"redis"`
	Retry          RetryConfig   `mapstructure:"retry"`
}

// RetryPolicy builds the bridge policy from the config, keeping the default
// multiplier and jitter.
func (c *Config) RetryPolicy() persist.RetryPolicy {
	p := persist.DefaultRetryPolicy()
	p.MaxRetries = c.Retry.MaxRetries
	p.BaseDelay = c.Retry.BaseDelay
	p.MaxDelay = c.Retry.MaxDelay
	return p
}

// defaultHome checks XDG_DATA_HOME first, then falls back to
// ~/.local/share/kanbansync.
func defaultHome() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "kanbansync")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.TempDir()
	}
	return filepath.Join(homeDir, ".local", "share", "kanbansync")
}

func setDefaults(v *viper.Viper) {
	def := persist.DefaultRetryPolicy()
	v.SetDefault("home", defaultHome())
	v.SetDefault("board", "default")
	v.SetDefault("bind", "127.0.0.1:7780")
	v.SetDefault("allow_remote", false)
	v.SetDefault("auth_token", "")
	v.SetDefault("default_user", "local")
	v.SetDefault("backend", BackendSQLite)
	v.SetDefault("active_lanes", []string{"Todo", "Doing", "Review"})
	v.SetDefault("reserved_lanes", core.DefaultReservedLanes())
	v.SetDefault("resync_interval", 30*time.Second)
	v.SetDefault("snapshot_every", 100)
	v.SetDefault("snapshot_keep", 5)
	v.SetDefault("log_level", "info")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.namespace", "")
	v.SetDefault("retry.max_retries", def.MaxRetries)
	v.SetDefault("retry.base_delay", def.BaseDelay)
	v.SetDefault("retry.max_delay", def.MaxDelay)
	v.SetDefault("retry.attempt_timeout", 10*time.Second)
}

// LoadConfig reads configuration from path (optional, YAML) overlaid with
// KANBANSYNC_* environment variables, e.g. KANBANSYNC_REDIS_ADDR for
// redis.addr. List values from the environment are comma separated.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("KANBANSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Redis.Namespace == "" {
		cfg.Redis.Namespace = cfg.Board
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the security constraints and the lane layout.
func (c *Config) Validate() error {
	// Security: remote access requires auth token
	if c.AllowRemote && c.AuthToken == "" {
		return ErrRemoteWithoutToken
	}

	// Security: refuse non-loopback binds unless explicitly opting into remote access.
	// Only 127.0.0.0/8, ::1, and "localhost" are considered safe.
	if !c.AllowRemote {
		if host, _, err := net.SplitHostPort(c.Bind); err == nil && host != "" {
			ip := net.ParseIP(host)
			switch {
			case ip != nil && ip.IsLoopback():
			case ip != nil:
				return fmt.Errorf("%w: bind=%s", ErrNonLoopbackBind, c.Bind)
			case host == "localhost":
			default:
				return fmt.Errorf("%w: bind=%s", ErrNonLoopbackBind, c.Bind)
			}
		}
	}

	switch c.Backend {
	case BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unknown backend %q (want sqlite or redis)", c.Backend)
	}
	if !store.ValidBoardName(c.Board) {
		return fmt.Errorf("invalid board name %q", c.Board)
	}
	if len(c.ActiveLanes) == 0 {
		return fmt.Errorf("at least one active lane is required")
	}
	reserved := make(map[string]bool, len(c.ReservedLanes))
	for _, l := range c.ReservedLanes {
		reserved[l] = true
	}
	seen := make(map[string]bool, len(c.ActiveLanes))
	for _, l := range c.ActiveLanes {
		if strings.TrimSpace(l) == "" {
			return fmt.Errorf("active lane names cannot be blank")
		}
		if reserved[l] {
			return fmt.Errorf("lane %q is both active and reserved", l)
		}
		if seen[l] {
			return fmt.Errorf("active lane %q listed twice", l)
		}
		seen[l] = true
	}
	return nil
}
