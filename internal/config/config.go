// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Source   SourceConfig   `mapstructure:"source"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Poll     PollConfig     `mapstructure:"poll"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// TelegramConfig holds Telegram bot configuration.
type TelegramConfig struct {
	Token string `mapstructure:"token"`
	Debug bool   `mapstructure:"debug"`
}

// SourceConfig describes where and how the replacement page is fetched.
type SourceConfig struct {
	FragmentURL    string        `mapstructure:"fragment_url"` // lightweight endpoint
	PageURL        string        `mapstructure:"page_url"`     // page rendered by the browser fallback
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	BrowserEnabled bool          `mapstructure:"browser_enabled"`
	BrowserPath    string        `mapstructure:"browser_path"`
	BrowserTimeout time.Duration `mapstructure:"browser_timeout"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	Container      string        `mapstructure:"container"`
}

// ExtractConfig holds institution-specific table markers.
type ExtractConfig struct {
	HeaderLabel  string   `mapstructure:"header_label"`
	AdminMarkers []string `mapstructure:"admin_markers"`
	NoiseMarkers []string `mapstructure:"noise_markers"`
}

// PollConfig holds the polling cadence.
type PollConfig struct {
	PublishHour      int           `mapstructure:"publish_hour"`
	Timezone         string        `mapstructure:"timezone"`
	PeakInterval     time.Duration `mapstructure:"peak_interval"`
	RegularInterval  time.Duration `mapstructure:"regular_interval"`
	FailureBackoff   time.Duration `mapstructure:"failure_backoff"`
	CycleTimeout     time.Duration `mapstructure:"cycle_timeout"`
	AnnounceTimeout  time.Duration `mapstructure:"announce_timeout"`
	HousekeepingCron string        `mapstructure:"housekeeping_cron"`
	LedgerRetention  int           `mapstructure:"ledger_retention_days"`
}

// StorageConfig holds persistence locations.
type StorageConfig struct {
	SnapshotPath string        `mapstructure:"snapshot_path"`
	DatabasePath string        `mapstructure:"database_path"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// NotifyConfig holds delivery settings.
type NotifyConfig struct {
	RatePerSec int `mapstructure:"rate_per_sec"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Load reads configuration from a .env file, the config file and environment variables.
func Load(configPath string) (*Config, error) {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("REPBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers every key. Unmarshal only sees keys viper knows, so a
// key without a default could not be set from the environment alone.
func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.debug", false)

	v.SetDefault("source.fragment_url", "http://rep.spb-kit.ru/replacements/api/fetch-rep")
	v.SetDefault("source.page_url", "http://rep.spb-kit.ru/replacements/view.html")
	v.SetDefault("source.http_timeout", "15s")
	v.SetDefault("source.browser_enabled", true)
	v.SetDefault("source.browser_path", "")
	v.SetDefault("source.browser_timeout", "20s")
	v.SetDefault("source.settle_delay", "3s")
	v.SetDefault("source.container", "#content")

	v.SetDefault("extract.header_label", "№ пары")
	v.SetDefault("extract.admin_markers", []string{"директор"})
	v.SetDefault("extract.noise_markers", []string{"венедиктова"})

	v.SetDefault("poll.publish_hour", 14)
	v.SetDefault("poll.timezone", "Europe/Moscow")
	v.SetDefault("poll.peak_interval", "20m")
	v.SetDefault("poll.regular_interval", "30m")
	v.SetDefault("poll.failure_backoff", "5m")
	v.SetDefault("poll.cycle_timeout", "2m")
	v.SetDefault("poll.announce_timeout", "10m")
	v.SetDefault("poll.housekeeping_cron", "0 3 * * *")
	v.SetDefault("poll.ledger_retention_days", 30)

	v.SetDefault("storage.snapshot_path", "./data/replacements.json")
	v.SetDefault("storage.database_path", "./data/bot.db")
	v.SetDefault("storage.cache_ttl", "1m")

	v.SetDefault("notify.rate_per_sec", 20)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Validate checks if all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return errors.New("telegram token is required")
	}
	if c.Source.FragmentURL == "" && c.Source.PageURL == "" {
		return errors.New("source.fragment_url or source.page_url is required")
	}
	if c.Source.BrowserEnabled && c.Source.PageURL == "" {
		return errors.New("source.page_url is required when the browser fallback is enabled")
	}
	if c.Poll.PublishHour < 0 || c.Poll.PublishHour > 23 {
		return fmt.Errorf("poll.publish_hour must be within 0..23, got %d", c.Poll.PublishHour)
	}
	if c.Poll.PeakInterval <= 0 || c.Poll.RegularInterval <= 0 || c.Poll.FailureBackoff <= 0 {
		return errors.New("poll intervals must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the poll time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Poll.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Poll.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid poll.timezone %q: %w", c.Poll.Timezone, err)
	}
	return loc, nil
}

// ServerAddress returns the full server address.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
