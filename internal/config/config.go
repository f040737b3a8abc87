package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const insecureJWTSecret = "supersecretkey"

type Config struct {
	Addr           string        `yaml:"addr"`
	PublicURL      string        `yaml:"public_url"`
	JWTSecret      string        `yaml:"jwt_secret"`
	APITimeout     time.Duration `yaml:"timeout"`
	DatabaseDriver string        `yaml:"database_driver"`
	DatabasePath   string        `yaml:"database_path"`
	MigrateOnStart bool          `yaml:"migrate_on_start"`
	TokenDuration  time.Duration `yaml:"token_duration"`
	ServerName     string        `yaml:"server_name"`
	AdminIDs       []string      `yaml:"admin_ids"`

	Discord DiscordConfig `yaml:"discord"`
	Media   MediaConfig   `yaml:"media"`
	Cleanup CleanupConfig `yaml:"cleanup"`
	Apply   ApplyConfig   `yaml:"apply"`
	Jobs    JobsConfig    `yaml:"jobs"`
}

type DiscordConfig struct {
	ClientID        string        `yaml:"client_id"`
	ClientSecret    string        `yaml:"client_secret"`
	RedirectURL     string        `yaml:"redirect_url"`
	BotToken        string        `yaml:"bot_token"`
	GuildID         string        `yaml:"guild_id"`
	WhitelistRoleID string        `yaml:"whitelist_role_id"`
	WebhookURL      string        `yaml:"webhook_url"`
	APIBase         string        `yaml:"api_base"`
	Timeout         time.Duration `yaml:"timeout"`
}

type MediaConfig struct {
	// Driver is "cloudinary" or "local".
	Driver    string        `yaml:"driver"`
	CloudName string        `yaml:"cloud_name"`
	APIKey    string        `yaml:"api_key"`
	APISecret string        `yaml:"api_secret"`
	Folder    string        `yaml:"folder"`
	LocalDir  string        `yaml:"local_dir"`
	Timeout   time.Duration `yaml:"timeout"`
}

type CleanupConfig struct {
	// Secret is only read from the environment or file and is replaced by its
	// bcrypt hash during LoadConfig.
	Secret     string        `yaml:"secret"`
	SecretHash string        `yaml:"secret_hash"`
	Retention  time.Duration `yaml:"retention"`
	Schedule   string        `yaml:"schedule"`
}

type ApplyConfig struct {
	MaxAudioBytes int64   `yaml:"max_audio_bytes"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst"`
}

type JobsConfig struct {
	Workers     int `yaml:"workers"`
	MaxAttempts int `yaml:"max_attempts"`
}

func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Addr:           getEnv("WL_ADDR", ":8080"),
		PublicURL:      getEnv("WL_PUBLIC_URL", "http://localhost:8080"),
		JWTSecret:      getEnv("WL_JWT_SECRET", insecureJWTSecret),
		APITimeout:     15 * time.Second,
		DatabaseDriver: getEnv("WL_DATABASE_DRIVER", "sqlite"),
		DatabasePath:   getEnv("WL_DATABASE_PATH", "whitelist.db"),
		MigrateOnStart: getEnv("WL_MIGRATE_ON_START", "true") == "true",
		TokenDuration:  7 * 24 * time.Hour,
		ServerName:     getEnv("SERVER_NAME", "Our Server"),
		AdminIDs:       splitList(os.Getenv("ADMIN_DISCORD_IDS")),
		Discord: DiscordConfig{
			ClientID:        os.Getenv("DISCORD_CLIENT_ID"),
			ClientSecret:    os.Getenv("DISCORD_CLIENT_SECRET"),
			RedirectURL:     os.Getenv("DISCORD_REDIRECT_URL"),
			BotToken:        os.Getenv("DISCORD_BOT_TOKEN"),
			GuildID:         os.Getenv("DISCORD_GUILD_ID"),
			WhitelistRoleID: os.Getenv("DISCORD_WHITELIST_ROLE_ID"),
			WebhookURL:      os.Getenv("DISCORD_WEBHOOK_URL"),
			APIBase:         getEnv("DISCORD_API_BASE", "https://discord.com/api/v10"),
			Timeout:         10 * time.Second,
		},
		Media: MediaConfig{
			Driver:    getEnv("WL_MEDIA_DRIVER", "cloudinary"),
			CloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
			APIKey:    os.Getenv("CLOUDINARY_API_KEY"),
			APISecret: os.Getenv("CLOUDINARY_API_SECRET"),
			Folder:    "whitelist-applications",
			LocalDir:  getEnv("WL_MEDIA_DIR", "media"),
			Timeout:   60 * time.Second,
		},
		Cleanup: CleanupConfig{
			Secret:    os.Getenv("CLEANUP_SECRET"),
			Retention: 7 * 24 * time.Hour,
			Schedule:  os.Getenv("WL_CLEANUP_SCHEDULE"),
		},
		Apply: ApplyConfig{
			MaxAudioBytes: 10 << 20,
			RatePerSecond: 1,
			RateBurst:     5,
		},
		Jobs: JobsConfig{
			Workers:     1,
			MaxAttempts: 3,
		},
	}
	if v := os.Getenv("WL_RETENTION_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WL_RETENTION_DAYS: %w", err)
		}
		cfg.Cleanup.Retention = time.Duration(days) * 24 * time.Hour
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.Discord.RedirectURL == "" {
		cfg.Discord.RedirectURL = strings.TrimRight(cfg.PublicURL, "/") + "/auth/callback"
	}

	if cfg.Cleanup.Secret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Cleanup.Secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash cleanup secret: %w", err)
		}
		cfg.Cleanup.SecretHash = string(hash)
		cfg.Cleanup.Secret = ""
	}

	return cfg, nil
}

// Validate checks the configuration for values the server cannot run without.
// Outside development (WL_ENV=development) the default JWT secret is rejected.
func (c *Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	} else if c.JWTSecret == insecureJWTSecret && os.Getenv("WL_ENV") != "development" {
		errs = append(errs, errors.New("jwt_secret uses the insecure default"))
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported database_driver %q", c.DatabaseDriver))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if c.TokenDuration <= 0 {
		errs = append(errs, errors.New("token_duration must be positive"))
	}
	switch c.Media.Driver {
	case "cloudinary":
		if c.Media.CloudName == "" || c.Media.APIKey == "" || c.Media.APISecret == "" {
			errs = append(errs, errors.New("cloudinary media driver needs cloud_name, api_key and api_secret"))
		}
	case "local":
		if c.Media.LocalDir == "" {
			errs = append(errs, errors.New("local media driver needs local_dir"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported media driver %q", c.Media.Driver))
	}
	if c.Cleanup.Retention <= 0 {
		errs = append(errs, errors.New("cleanup.retention must be positive"))
	}
	if c.Apply.MaxAudioBytes <= 0 {
		errs = append(errs, errors.New("apply.max_audio_bytes must be positive"))
	}

	// sensible defaults for optional tuning knobs
	if c.APITimeout <= 0 {
		c.APITimeout = 15 * time.Second
	}
	if c.Discord.Timeout <= 0 {
		c.Discord.Timeout = 10 * time.Second
	}
	if c.Discord.APIBase == "" {
		c.Discord.APIBase = "https://discord.com/api/v10"
	}
	if c.Media.Timeout <= 0 {
		c.Media.Timeout = 60 * time.Second
	}
	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = 1
	}
	if c.Jobs.MaxAttempts <= 0 {
		c.Jobs.MaxAttempts = 3
	}
	if c.Apply.RatePerSecond <= 0 {
		c.Apply.RatePerSecond = 1
	}
	if c.Apply.RateBurst <= 0 {
		c.Apply.RateBurst = 5
	}

	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
