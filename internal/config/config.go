package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/elonfeng/bestpick/pkg/enrich"
	"github.com/elonfeng/bestpick/pkg/rank"
	"github.com/elonfeng/bestpick/pkg/score"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Sources  SourcesConfig  `yaml:"sources"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Ranking  rank.Options   `yaml:"ranking"`
	Tiers    TiersConfig    `yaml:"tiers"`
	LLM      LLMConfig      `yaml:"llm"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Server   ServerConfig   `yaml:"server"`
	Watch    WatchConfig    `yaml:"watch"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig configures the optional search response cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// ScheduleConfig configures how often watched queries are refreshed.
type ScheduleConfig struct {
	RefreshInterval string `yaml:"refresh_interval"`
}

// ParseRefreshInterval returns the refresh interval as time.Duration.
func (s ScheduleConfig) ParseRefreshInterval() time.Duration {
	d, err := time.ParseDuration(s.RefreshInterval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// SourcesConfig holds configuration for all search channels.
type SourcesConfig struct {
	Reddit  RedditConfig  `yaml:"reddit"`
	YouTube YouTubeConfig `yaml:"youtube"`
	Web     WebConfig     `yaml:"web"`
	RSS     RSSConfig     `yaml:"rss"`
	Excerpt ExcerptConfig `yaml:"excerpt"`
	// SearchLimit caps raw hits kept per query after pre-ranking.
	SearchLimit int `yaml:"search_limit"`
}

// RedditConfig for Reddit search. Without credentials the public JSON
// endpoint is used.
type RedditConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Limit        int    `yaml:"limit"`
	Window       string `yaml:"window"` // hour, day, week, month, year, all
}

// YouTubeConfig for YouTube Data API search.
type YouTubeConfig struct {
	Enabled    bool   `yaml:"enabled"`
	APIKey     string `yaml:"api_key"`
	MaxResults int    `yaml:"max_results"`
}

// WebConfig for web search through Serper.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Num     int    `yaml:"num"`
}

// RSSConfig for review site feeds searched by keyword.
type RSSConfig struct {
	Enabled bool       `yaml:"enabled"`
	MaxAge  string     `yaml:"max_age"`
	Feeds   []FeedItem `yaml:"feeds"`
}

// ParseMaxAge returns the feed entry cutoff; 0 keeps everything.
func (r RSSConfig) ParseMaxAge() time.Duration {
	d, err := time.ParseDuration(r.MaxAge)
	if err != nil {
		return 0
	}
	return d
}

// FeedItem is a single RSS feed entry.
type FeedItem struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ExcerptConfig controls article fetching for web hits without a snippet.
type ExcerptConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Timeout  string `yaml:"timeout"`
	MaxItems int    `yaml:"max_items"`
}

// ParseTimeout returns the per-page timeout.
func (e ExcerptConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(e.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// ScoringConfig holds the evidence weighting tables.
type ScoringConfig struct {
	Weights      score.Weights      `yaml:"weights"`
	Credibility  enrich.Credibility `yaml:"credibility"`
	ForumDomains []string           `yaml:"forum_domains"`
}

// TiersConfig points at a reviewer tier file. Empty uses the built-in table.
type TiersConfig struct {
	Path string `yaml:"path"`
}

// LLMConfig configures the sentiment classifier.
type LLMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"` // "openai" or "anthropic"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"` // custom endpoint (optional)
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// WatchConfig lists queries the scheduler keeps fresh.
type WatchConfig struct {
	Queries  []string `yaml:"queries"`
	MinScore int      `yaml:"min_score"` // alert threshold, 0-100
}

// Default returns a Config with the reference constants.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./bestpick.db"},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "bestpick",
		},
		Schedule: ScheduleConfig{RefreshInterval: "1h"},
		Sources: SourcesConfig{
			Reddit:  RedditConfig{Enabled: true, Limit: 25, Window: "year"},
			YouTube: YouTubeConfig{MaxResults: 15},
			Web:     WebConfig{Num: 10},
			RSS: RSSConfig{
				MaxAge: "8760h",
				Feeds: []FeedItem{
					{Name: "RunRepeat", URL: "https://runrepeat.com/feed"},
					{Name: "Believe in the Run", URL: "https://believeintherun.com/feed/"},
					{Name: "OutdoorGearLab", URL: "https://www.outdoorgearlab.com/rss"},
				},
			},
			Excerpt:     ExcerptConfig{Timeout: "10s", MaxItems: 5},
			SearchLimit: 30,
		},
		Scoring: ScoringConfig{
			Weights:     score.DefaultWeights(),
			Credibility: enrich.DefaultCredibility(),
		},
		Ranking: rank.DefaultOptions(),
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Server: ServerConfig{Port: 8080},
		Watch:  WatchConfig{MinScore: 70},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
// A .env file in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BESTPICK_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDDIT_CLIENT_ID"); v != "" {
		cfg.Sources.Reddit.ClientID = v
	}
	if v := os.Getenv("REDDIT_CLIENT_SECRET"); v != "" {
		cfg.Sources.Reddit.ClientSecret = v
	}
	if v := os.Getenv("YOUTUBE_API_KEY"); v != "" {
		cfg.Sources.YouTube.APIKey = v
		cfg.Sources.YouTube.Enabled = true
	}
	if v := os.Getenv("SERPER_API_KEY"); v != "" {
		cfg.Sources.Web.APIKey = v
		cfg.Sources.Web.Enabled = true
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Enabled = true
		cfg.LLM.Provider = "openai"
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Enabled = true
		cfg.LLM.Provider = "anthropic"
	}
}
