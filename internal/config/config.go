package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
)

const (
	defaultDataDir         = "."
	defaultServerPort      = "0.0.0.0:3000"
	defaultStoreDriver     = "bolt"
	defaultLogLevel        = "info"
	defaultTMDBLanguage    = "en-US"
	defaultTMDBBaseURL     = "https://api.themoviedb.org/3"
	defaultFallbackPoster  = "https://i.imgur.com/4eDKRcS.jpeg"
	defaultGroupWait       = 30 * time.Second
	maxWaitFactor          = 5
	defaultRetryCount      = 3
	defaultRetryDelay      = 2 * time.Second
	defaultRequeueInterval = "@every 1m"
	defaultPublishRate     = 1.0
	defaultPublishBurst    = 1
	defaultHTTPTimeout     = 15 * time.Second
	defaultDBFilePerms     = 0666
)

const (
	StoreBolt   = "bolt"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

type Config struct {
	BotToken          string
	SourceChannel     string
	DestChannel       string
	FileStoreBot      string
	TMDBAPIKey        string
	TMDBLanguage      string
	TMDBBaseURL       string
	FallbackPoster    string
	GroupWait         time.Duration
	GroupMaxWait      time.Duration
	DataDir           string
	StoreDriver       string
	ServerPort        string
	LogLevel          string
	RetryCount        int
	RetryDelay        time.Duration
	RequeueInterval   string
	PublishRate       float64
	PublishBurst      int
	HTTPTimeout       time.Duration
	Languages         map[string]string
	DBFilePermissions os.FileMode
}

func Load() (*Config, error) {
	cfg := &Config{
		TMDBLanguage:      getEnvOrDefault("TMDB_LANGUAGE", defaultTMDBLanguage),
		TMDBBaseURL:       getEnvOrDefault("TMDB_BASE_URL", defaultTMDBBaseURL),
		FallbackPoster:    getEnvOrDefault("FALLBACK_POSTER", defaultFallbackPoster),
		DataDir:           getEnvOrDefault("DATA_DIR", defaultDataDir),
		StoreDriver:       strings.ToLower(getEnvOrDefault("STORE_DRIVER", defaultStoreDriver)),
		ServerPort:        getEnvOrDefault("SERVER_PORT", defaultServerPort),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", defaultLogLevel),
		RequeueInterval:   getEnvOrDefault("REQUEUE_INTERVAL", defaultRequeueInterval),
		DBFilePermissions: defaultDBFilePerms,
	}

	if err := cfg.loadRequired(); err != nil {
		return nil, err
	}
	if err := cfg.loadTyped(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadStorage reads only the settings needed to open the stores, for
// offline commands that never talk to Telegram or TMDB.
func LoadStorage() (*Config, error) {
	cfg := &Config{
		DataDir:           getEnvOrDefault("DATA_DIR", defaultDataDir),
		StoreDriver:       strings.ToLower(getEnvOrDefault("STORE_DRIVER", defaultStoreDriver)),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", defaultLogLevel),
		DBFilePermissions: defaultDBFilePerms,
	}
	if err := cfg.validateDriver(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadRequired() error {
	required := map[string]*string{
		"BOT_TOKEN":      &c.BotToken,
		"SOURCE_CHANNEL": &c.SourceChannel,
		"DEST_CHANNEL":   &c.DestChannel,
		"FILE_STORE_BOT": &c.FileStoreBot,
		"TMDB_API_KEY":   &c.TMDBAPIKey,
	}

	for key, ptr := range required {
		value := os.Getenv(key)
		if value == "" {
			return fmt.Errorf("required environment variable missing: %s", key)
		}
		*ptr = value
	}
	c.FileStoreBot = strings.TrimPrefix(c.FileStoreBot, "@")
	return nil
}

func (c *Config) loadTyped() error {
	var err error

	if c.GroupWait, err = getDuration("GROUP_WAIT", defaultGroupWait); err != nil {
		return err
	}
	if c.GroupMaxWait, err = getDuration("GROUP_MAX_WAIT", maxWaitFactor*c.GroupWait); err != nil {
		return err
	}
	if c.RetryDelay, err = getDuration("RETRY_DELAY", defaultRetryDelay); err != nil {
		return err
	}
	if c.HTTPTimeout, err = getDuration("HTTP_TIMEOUT", defaultHTTPTimeout); err != nil {
		return err
	}
	if c.RetryCount, err = getInt("RETRY_COUNT", defaultRetryCount); err != nil {
		return err
	}
	if c.PublishBurst, err = getInt("PUBLISH_BURST", defaultPublishBurst); err != nil {
		return err
	}
	if c.PublishRate, err = getFloat("PUBLISH_RATE", defaultPublishRate); err != nil {
		return err
	}
	if c.Languages, err = parseLanguages(os.Getenv("LANGUAGES")); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDriver() error {
	switch c.StoreDriver {
	case StoreBolt, StoreSQLite, StoreMemory:
		return nil
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %s", c.StoreDriver)
	}
}

func (c *Config) validate() error {
	if err := c.validateDriver(); err != nil {
		return err
	}
	if c.GroupWait <= 0 {
		return fmt.Errorf("GROUP_WAIT must be positive, got %v", c.GroupWait)
	}
	if c.GroupMaxWait < c.GroupWait {
		return fmt.Errorf("GROUP_MAX_WAIT %v is shorter than GROUP_WAIT %v", c.GroupMaxWait, c.GroupWait)
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("RETRY_COUNT must not be negative, got %d", c.RetryCount)
	}
	if c.PublishRate <= 0 || c.PublishBurst <= 0 {
		return fmt.Errorf("PUBLISH_RATE and PUBLISH_BURST must be positive")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration accepts Go durations ("45s", "2m") and plain seconds ("45").
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if seconds, err := cast.ToInt64E(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := cast.ToDurationE(value)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := cast.ToIntE(value)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return f, nil
}

// parseLanguages reads "odia=Odia,bhojpuri=Bhojpuri".
func parseLanguages(value string) (map[string]string, error) {
	languages := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		spelling, name, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(spelling) == "" || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("parsing LANGUAGES: invalid pair %q", pair)
		}
		languages[strings.TrimSpace(spelling)] = strings.TrimSpace(name)
	}
	return languages, nil
}

func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "autopost.db")
}

func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "autopost.sqlite")
}
