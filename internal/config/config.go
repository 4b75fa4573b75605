package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the global ~/.chatline/config.toml.
type Config struct {
	DefaultProfile string          `toml:"default_profile"`
	Server         ServerConfig    `toml:"server"`
	User           UserConfig      `toml:"user"`
	Chat           ChatConfig      `toml:"chat"`
	Transport      TransportConfig `toml:"transport"`
	Contacts       []ContactSeed   `toml:"contacts"`
}

// ServerConfig locates the chat backend.
type ServerConfig struct {
	BaseURL    string `toml:"base_url"`
	SocketPath string `toml:"socket_path"`
	// Cookie is sent verbatim on REST requests and the websocket handshake.
	Cookie string `toml:"cookie"`
}

// UserConfig identifies the viewer.
type UserConfig struct {
	ID       string `toml:"id"`
	Username string `toml:"username"`
}

// ChatConfig tunes the conversation pipeline.
type ChatConfig struct {
	FetchTimeout time.Duration `toml:"fetch_timeout"`
	EchoWindow   time.Duration `toml:"echo_window"`
	Locale       string        `toml:"locale"`
	Timezone     string        `toml:"timezone"`
	QueueSize    int           `toml:"queue_size"`
	Outbox       bool          `toml:"outbox"`
}

// TransportConfig tunes the realtime channel.
type TransportConfig struct {
	ReconnectMin time.Duration `toml:"reconnect_min"`
	ReconnectMax time.Duration `toml:"reconnect_max"`
	PingInterval time.Duration `toml:"ping_interval"`
}

// ContactSeed pre-populates the contact list.
type ContactSeed struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
}

// Default returns a config with every tunable set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:    "http://127.0.0.1:39399",
			SocketPath: "/socket",
		},
		Chat: ChatConfig{
			FetchTimeout: 10 * time.Second,
			EchoWindow:   30 * time.Second,
			Locale:       "zh",
			Timezone:     "Local",
			QueueSize:    256,
			Outbox:       true,
		},
		Transport: TransportConfig{
			ReconnectMin: time.Second,
			ReconnectMax: 30 * time.Second,
			PingInterval: 25 * time.Second,
		},
	}
}

// Load reads config from the given path on top of Default. Returns nil and error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return cfg, nil
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

// Environment variables that override file values.
const (
	EnvServerURL = "CHATLINE_SERVER_URL"
	EnvUserID    = "CHATLINE_USER_ID"
	EnvUsername  = "CHATLINE_USERNAME"
	EnvCookie    = "CHATLINE_COOKIE"
)

// ApplyEnv loads the optional dotenv files (missing files are ignored) and applies
// CHATLINE_* overrides. Variables already set in the process win over dotenv values.
func (c *Config) ApplyEnv(dotenvFiles ...string) {
	for _, f := range dotenvFiles {
		_ = godotenv.Load(f)
	}
	if v := os.Getenv(EnvServerURL); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv(EnvUserID); v != "" {
		c.User.ID = v
	}
	if v := os.Getenv(EnvUsername); v != "" {
		c.User.Username = v
	}
	if v := os.Getenv(EnvCookie); v != "" {
		c.Server.Cookie = v
	}
}

// Location resolves the configured display timezone.
func (c *Config) Location() *time.Location {
	switch c.Chat.Timezone {
	case "", "Local":
		return time.Local
	}
	loc, err := time.LoadLocation(c.Chat.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.Server.SocketPath == "" {
		c.Server.SocketPath = d.Server.SocketPath
	}
	if c.Chat.FetchTimeout <= 0 {
		c.Chat.FetchTimeout = d.Chat.FetchTimeout
	}
	if c.Chat.EchoWindow <= 0 {
		c.Chat.EchoWindow = d.Chat.EchoWindow
	}
	if c.Chat.QueueSize <= 0 {
		c.Chat.QueueSize = d.Chat.QueueSize
	}
	if c.Chat.Locale == "" {
		c.Chat.Locale = d.Chat.Locale
	}
	if c.Transport.ReconnectMin <= 0 {
		c.Transport.ReconnectMin = d.Transport.ReconnectMin
	}
	if c.Transport.ReconnectMax < c.Transport.ReconnectMin {
		c.Transport.ReconnectMax = d.Transport.ReconnectMax
	}
	if c.Transport.PingInterval <= 0 {
		c.Transport.PingInterval = d.Transport.PingInterval
	}
}
