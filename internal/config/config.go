// Package config holds the runtime configuration. Precedence, lowest to
// highest: built-in defaults, the TOML config file, environment
// variables, CLI flag overrides.
package config

import (
	"fmt"
	"time"
)

const DefaultConfigPath = ".laptopmcp.toml"

type Config struct {
	Server ServerConfig `toml:"server"`
	Store  StoreConfig  `toml:"store"`
	Embed  EmbedConfig  `toml:"embed"`
	Ingest IngestConfig `toml:"ingest"`
	Index  IndexConfig  `toml:"index"`
}

type ServerConfig struct {
	Listen    string   `toml:"listen"`
	MCPPath   string   `toml:"mcp_path"`
	TCPListen string   `toml:"tcp_listen"`
	KeepAlive duration `toml:"keepalive"`
}

type StoreConfig struct {
	// Backend selects the metadata store: "sqlite" or "redis".
	Backend    string `toml:"backend"`
	RedisAddr  string `toml:"redis_addr"`
	RedisDB    int    `toml:"redis_db"`
	SQLitePath string `toml:"sqlite_path"`
}

type EmbedConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"-"`
	Model     string `toml:"model"`
	Dimension int    `toml:"dimension"`
}

type IngestConfig struct {
	FeedURL  string   `toml:"feed_url"`
	Interval duration `toml:"interval"`
	Timeout  duration `toml:"timeout"`
}

type IndexConfig struct {
	Path string `toml:"path"`
}

// duration lets TOML carry values like "15s" or "24h".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:    "127.0.0.1:8080",
			MCPPath:   "/mcp",
			TCPListen: "127.0.0.1:9876",
			KeepAlive: duration{15 * time.Second},
		},
		Store: StoreConfig{
			Backend:    "sqlite",
			RedisAddr:  "127.0.0.1:6379",
			SQLitePath: "laptops.sqlite",
		},
		Embed: EmbedConfig{
			Model:     "all-minilm-l6-v2",
			Dimension: 384,
		},
		Ingest: IngestConfig{
			Timeout: duration{30 * time.Second},
		},
		Index: IndexConfig{
			Path: "vectors.gob",
		},
	}
}

func Validate(cfg *Config) error {
	switch cfg.Store.Backend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("CONFIG_INVALID: unknown store backend %q (want sqlite or redis)", cfg.Store.Backend)
	}
	if cfg.Embed.Dimension <= 0 {
		return fmt.Errorf("CONFIG_INVALID: embed dimension must be positive, got %d", cfg.Embed.Dimension)
	}
	if cfg.Server.Listen == "" {
		return fmt.Errorf("CONFIG_INVALID: server listen address is required")
	}
	if cfg.Server.KeepAlive.Duration <= 0 {
		return fmt.Errorf("CONFIG_INVALID: server keepalive must be positive")
	}
	return nil
}
