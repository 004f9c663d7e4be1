package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	ServerPort int    `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	LogFormat  string `mapstructure:"LOG_FORMAT"` // "text" or "json"

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	QdrantHost string `mapstructure:"QDRANT_HOST"`
	QdrantPort int    `mapstructure:"QDRANT_PORT"`
	QdrantKey  string `mapstructure:"QDRANT_API_KEY"`

	OpenAIBaseURL string `mapstructure:"OPENAI_BASE_URL"`
	OpenAIKey     string `mapstructure:"OPENAI_API_KEY"`
	ChatModel     string `mapstructure:"CHAT_MODEL"`
	EmbedModel    string `mapstructure:"EMBED_MODEL"`
	EmbedDim      int    `mapstructure:"EMBED_DIM"`

	MaxConcurrentCrawls int `mapstructure:"MAX_CONCURRENT_CRAWLS"`
	DefaultCrawlLimit   int `mapstructure:"DEFAULT_CRAWL_LIMIT"`
	SettleWaitMS        int `mapstructure:"SETTLE_WAIT_MS"`
	CrawlTimeoutSec     int `mapstructure:"CRAWL_TIMEOUT"`
	IndexBatchSize      int `mapstructure:"INDEX_BATCH_SIZE"`

	DefaultSearchResults int     `mapstructure:"DEFAULT_SEARCH_RESULTS"`
	SimilarityThreshold  float64 `mapstructure:"SIMILARITY_THRESHOLD"`

	CleanupHours    int `mapstructure:"CLEANUP_HOURS"`
	WatchTimeoutSec int `mapstructure:"WATCH_TIMEOUT"`
}

// Load reads configuration from a .env file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present.
	// This allows configuration purely through environment variables in production.
	_ = viper.ReadInConfig()

	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("QDRANT_HOST", "localhost")
	viper.SetDefault("QDRANT_PORT", 6334)
	viper.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	viper.SetDefault("CHAT_MODEL", "gpt-4o-mini")
	viper.SetDefault("EMBED_MODEL", "text-embedding-3-small")
	viper.SetDefault("EMBED_DIM", 1536)
	viper.SetDefault("MAX_CONCURRENT_CRAWLS", 3)
	viper.SetDefault("DEFAULT_CRAWL_LIMIT", 10)
	viper.SetDefault("SETTLE_WAIT_MS", 3000)
	viper.SetDefault("CRAWL_TIMEOUT", 60) // per page, in seconds
	viper.SetDefault("INDEX_BATCH_SIZE", 100)
	viper.SetDefault("DEFAULT_SEARCH_RESULTS", 5)
	viper.SetDefault("SIMILARITY_THRESHOLD", 0.8)
	viper.SetDefault("CLEANUP_HOURS", 24)
	viper.SetDefault("WATCH_TIMEOUT", 300)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SettleWait returns the JavaScript settle wait as a duration.
func (c *Config) SettleWait() time.Duration {
	return time.Duration(c.SettleWaitMS) * time.Millisecond
}

// CrawlTimeout returns the per-page crawl timeout as a duration.
func (c *Config) CrawlTimeout() time.Duration {
	return time.Duration(c.CrawlTimeoutSec) * time.Second
}

// WatchTimeout returns the status-watch timeout as a duration.
func (c *Config) WatchTimeout() time.Duration {
	return time.Duration(c.WatchTimeoutSec) * time.Second
}
