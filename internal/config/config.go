// Package config loads ~/.chatsync/config.toml. Every field has a default,
// so an empty or missing file yields a working single-node setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Presence backends.
const (
	PresenceMemory = "memory"
	PresenceRedis  = "redis"
)

// Duration is a time.Duration written as "1500ms" or "5m" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultInstance string       `toml:"default_instance"`
	Server          ServerConfig `toml:"server"`
	Client          ClientConfig `toml:"client"`
}

type ServerConfig struct {
	Listen         string         `toml:"listen"`
	AdminSocket    string         `toml:"admin_socket"`
	InstanceID     string         `toml:"instance_id"`
	HistoryLimit   int            `toml:"history_limit"`
	ReplyQuota     int            `toml:"reply_quota"`
	Workers        int            `toml:"workers"`
	SendBuffer     int            `toml:"send_buffer"`
	AllowedOrigins []string       `toml:"allowed_origins"`
	Store          StoreConfig    `toml:"store"`
	Presence       PresenceConfig `toml:"presence"`
	Media          MediaConfig    `toml:"media"`
}

// StoreConfig selects the server store. An empty sqlite3 DSN means the
// instance's chat.db.
type StoreConfig struct {
	Driver   string `toml:"driver"`
	DSN      string `toml:"dsn"`
	Database string `toml:"database"`
}

type PresenceConfig struct {
	Backend       string `toml:"backend"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Prefix        string `toml:"prefix"`
}

// MediaConfig controls image payload storage. An empty Dir means the
// instance's media directory.
type MediaConfig struct {
	Dir           string `toml:"dir"`
	PublicBaseURL string `toml:"public_base_url"`
	MaxWidth      uint   `toml:"max_width"`
}

type ClientConfig struct {
	ServerURL      string      `toml:"server_url"`
	UserID         string      `toml:"user_id"`
	RequestTimeout Duration    `toml:"request_timeout"`
	TypingIdle     Duration    `toml:"typing_idle"`
	SeenThreshold  float64     `toml:"seen_threshold"`
	Cache          CacheConfig `toml:"cache"`
}

type CacheConfig struct {
	TTL     Duration `toml:"ttl"`
	MaxSize int      `toml:"max_size"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DefaultInstance: "main",
		Server: ServerConfig{
			Listen:         ":8080",
			HistoryLimit:   10,
			ReplyQuota:     10,
			Workers:        8,
			SendBuffer:     64,
			AllowedOrigins: []string{"http://localhost:5173"},
			Store:          StoreConfig{Driver: DriverSQLite, Database: "chatsync"},
			Presence: PresenceConfig{
				Backend:   PresenceMemory,
				RedisAddr: "localhost:6379",
				Prefix:    "chatsync:",
			},
			Media: MediaConfig{PublicBaseURL: "http://localhost:8080", MaxWidth: 1280},
		},
		Client: ClientConfig{
			ServerURL:      "http://localhost:8080",
			RequestTimeout: Duration{15 * time.Second},
			TypingIdle:     Duration{1500 * time.Millisecond},
			SeenThreshold:  0.5,
			Cache:          CacheConfig{TTL: Duration{5 * time.Minute}, MaxSize: 50},
		},
	}
}

// Load reads config from the given path on top of the defaults. Returns an
// error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

// Validate rejects unknown drivers and backends.
func (c *Config) Validate() error {
	switch c.Server.Store.Driver {
	case DriverSQLite, DriverPostgres, DriverMongo:
	default:
		return fmt.Errorf("unknown store driver %q", c.Server.Store.Driver)
	}
	switch c.Server.Presence.Backend {
	case PresenceMemory, PresenceRedis:
	default:
		return fmt.Errorf("unknown presence backend %q", c.Server.Presence.Backend)
	}
	if c.Client.SeenThreshold < 0 || c.Client.SeenThreshold > 1 {
		return fmt.Errorf("seen_threshold %v out of range [0,1]", c.Client.SeenThreshold)
	}
	return nil
}

// ApplyEnv overrides the server settings that deployments usually inject:
// CHATSYNC_DB_DSN, CHATSYNC_REDIS_ADDR and CHATSYNC_LISTEN. A Redis address
// also switches presence to Redis. A DSN with a mongodb scheme selects the
// mongo driver and a postgres one the postgres driver.
func (c *Config) ApplyEnv() {
	if dsn, ok := os.LookupEnv("CHATSYNC_DB_DSN"); ok && dsn != "" {
		c.Server.Store.DSN = dsn
		switch {
		case strings.HasPrefix(dsn, "mongodb://"), strings.HasPrefix(dsn, "mongodb+srv://"):
			c.Server.Store.Driver = DriverMongo
		case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
			c.Server.Store.Driver = DriverPostgres
		}
	}
	if addr, ok := os.LookupEnv("CHATSYNC_REDIS_ADDR"); ok && addr != "" {
		c.Server.Presence.RedisAddr = addr
		c.Server.Presence.Backend = PresenceRedis
	}
	if listen, ok := os.LookupEnv("CHATSYNC_LISTEN"); ok && listen != "" {
		c.Server.Listen = listen
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
