package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Options for loading config. ConfigPath is relative to RootDir when not
// absolute.
type Options struct {
	ConfigPath   string
	RootDir      string
	SkipValidate bool
	// Overrides apply last (flags > env > file > defaults). Nil means no
	// CLI overrides.
	Overrides *Overrides
}

// Overrides holds CLI flag values. Only non-nil fields are applied.
type Overrides struct {
	Listen       *string
	TCPListen    *string
	MCPPath      *string
	StoreBackend *string
	FeedURL      *string
}

// Load builds config with precedence: defaults → .laptopmcp.toml → env
// vars → Overrides.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	// Optional local dotenv files for developer ergonomics. Precedence
	// stays: explicit env > .env.local > .env.
	if err := loadDotEnvFiles(".env.local", ".env"); err != nil {
		return nil, fmt.Errorf("CONFIG_INVALID: failed loading dotenv files: %w", err)
	}

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	if !filepath.IsAbs(configPath) && opts.RootDir != "" {
		configPath = filepath.Join(opts.RootDir, configPath)
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("CONFIG_INVALID: cannot read config file %s: %w", configPath, err)
		}
	} else {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("CONFIG_INVALID: malformed TOML in %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if opts.Overrides != nil {
		applyOverrides(&cfg, opts.Overrides)
	}

	if !opts.SkipValidate {
		if err := Validate(&cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// loadDotEnvFiles loads each file that exists without clobbering
// variables already present in the environment.
func loadDotEnvFiles(names ...string) error {
	for _, name := range names {
		values, err := godotenv.Read(name)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("%s: %w", name, err)
		}
		for key, value := range values {
			if _, exists := os.LookupEnv(key); !exists {
				if err := os.Setenv(key, value); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LAPTOPMCP_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("LAPTOPMCP_TCP_LISTEN"); v != "" {
		cfg.Server.TCPListen = v
	}
	if v := os.Getenv("LAPTOPMCP_STORE"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("LAPTOPMCP_REDIS_ADDR"); v != "" {
		cfg.Store.RedisAddr = v
	}
	if v := os.Getenv("LAPTOPMCP_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Store.RedisDB = db
		}
	}
	if v := os.Getenv("LAPTOPMCP_FEED_URL"); v != "" {
		cfg.Ingest.FeedURL = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Embed.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Embed.APIKey = v
	}
}

func applyOverrides(cfg *Config, o *Overrides) {
	if o.Listen != nil {
		cfg.Server.Listen = *o.Listen
	}
	if o.TCPListen != nil {
		cfg.Server.TCPListen = *o.TCPListen
	}
	if o.MCPPath != nil {
		cfg.Server.MCPPath = *o.MCPPath
	}
	if o.StoreBackend != nil {
		cfg.Store.Backend = *o.StoreBackend
	}
	if o.FeedURL != nil {
		cfg.Ingest.FeedURL = *o.FeedURL
	}
}
