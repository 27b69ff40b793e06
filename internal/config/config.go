package config

import (
	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/curatorhq/curator/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	Curation  CurationConfig  `yaml:"curation"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Auth      AuthConfig      `yaml:"auth"`
	Sources   []SourceConfig  `yaml:"sources"`
	Feeds     []FeedSeed      `yaml:"feeds"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type CurationConfig struct {
	// BotUsername is the service's own handle on source platforms; its
	// mention is stripped out of curator notes.
	BotUsername         string `yaml:"bot_username"`
	MaxDailySubmissions int    `yaml:"max_daily_submissions"`
}

type SchedulerConfig struct {
	FetchInterval string `yaml:"fetch_interval"`
	Enabled       bool   `yaml:"enabled"`
}

type AuthConfig struct {
	TOTPSecret string `yaml:"totp_secret"`
}

// SourceConfig describes one polling source. Platform is the key used for
// per-feed approver and blacklist lookups; FeedID is the feed its items are
// routed into.
type SourceConfig struct {
	Name     string `yaml:"name"`
	Platform string `yaml:"platform"`
	Endpoint string `yaml:"endpoint"`
	SearchID string `yaml:"search_id"`
	Token    string `yaml:"token"`
	FeedID   string `yaml:"feed_id"`
}

// FeedSeed is applied at startup when the feeds table is empty.
type FeedSeed struct {
	ID          string              `yaml:"id"`
	DisplayName string              `yaml:"display_name"`
	Approvers   map[string][]string `yaml:"approvers"`
	Blacklist   map[string][]string `yaml:"blacklist"`
	Stream      StreamSeed          `yaml:"stream"`
}

type StreamSeed struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5410
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Curation.MaxDailySubmissions == 0 {
		cfg.Curation.MaxDailySubmissions = 10
	}
	if cfg.Scheduler.FetchInterval == "" {
		cfg.Scheduler.FetchInterval = "5m"
	}

	return cfg, nil
}
