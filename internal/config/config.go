package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const envPrefix = "NOPRIME"

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Retailer RetailerConfig `mapstructure:"retailer"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Bus      BusConfig      `mapstructure:"bus"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"` // gin mode: debug, release or test
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logrus settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// RetailerConfig describes the origin retailer pages
type RetailerConfig struct {
	TabPatterns []string `mapstructure:"tab_patterns"`
}

// CatalogConfig points at an external brand catalog. Empty uses the built-in one.
type CatalogConfig struct {
	File string `mapstructure:"file"`
}

// ResolverConfig holds the redirect URL bases
type ResolverConfig struct {
	SearchURL           string `mapstructure:"search_url"`
	SearchName          string `mapstructure:"search_name"` // Shown on search buttons
	ExcludeTerm         string `mapstructure:"exclude_term"`
	BookSellerEANURL    string `mapstructure:"bookseller_ean_url"`
	BookSellerSearchURL string `mapstructure:"bookseller_search_url"`
}

// StorageConfig selects the settings and tab state backends
type StorageConfig struct {
	Durable    string        `mapstructure:"durable"` // memory, redis or postgres
	Session    string        `mapstructure:"session"` // memory or redis
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// BusConfig selects the message transport
type BusConfig struct {
	Transport      string        `mapstructure:"transport"` // memory or redis
	ConsumerGroup  string        `mapstructure:"consumer_group"`
	MinIdleTime    time.Duration `mapstructure:"min_idle_time"`
	BlockTime      time.Duration `mapstructure:"block_time"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// FetcherConfig holds product page fetching configuration
type FetcherConfig struct {
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxRetries           int           `mapstructure:"max_retries"`
	MaxWorkers           int           `mapstructure:"max_workers"`
	MaxRequestsPerSecond int           `mapstructure:"max_requests_per_second"`
	FailureThreshold     int           `mapstructure:"failure_threshold"`
	Cooldown             time.Duration `mapstructure:"cooldown"`
	UserAgent            string        `mapstructure:"user_agent"`
	Proxies              []string      `mapstructure:"proxies"`
	ProxyCheckURL        string        `mapstructure:"proxy_check_url"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// RedisConfig holds Redis connection details
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	Database int    `mapstructure:"database"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Storage.Durable == "redis" || c.Storage.Session == "redis" || c.Bus.Transport == "redis"
}

// UsesPostgres reports whether the durable store lives in Postgres.
func (c *Config) UsesPostgres() bool {
	return c.Storage.Durable == "postgres"
}

// Load reads configuration from a YAML file with environment variable
// overrides. An empty path searches for config.yaml in the usual places;
// a missing file is not an error. A .env file, when present, is loaded into
// the environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/noprime/")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults and environment")
	} else {
		log.Infof("📄 Using config file %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// DefaultTabPatterns are the storefronts whose tabs receive toggle broadcasts.
var DefaultTabPatterns = []string{
	"https://www.amazon.com/*",
	"https://www.amazon.co.uk/*",
	"https://www.amazon.ca/*",
	"https://www.amazon.de/*",
	"https://www.amazon.fr/*",
	"https://www.amazon.it/*",
	"https://www.amazon.es/*",
	"https://www.amazon.co.jp/*",
	"https://www.amazon.com.au/*",
	"https://www.amazon.in/*",
	"https://www.amazon.com.br/*",
	"https://www.amazon.nl/*",
	"https://www.amazon.sg/*",
	"https://www.amazon.com.mx/*",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.request_timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("retailer.tab_patterns", DefaultTabPatterns)

	v.SetDefault("catalog.file", "")

	v.SetDefault("resolver.search_url", "https://duckduckgo.com/?q=")
	v.SetDefault("resolver.search_name", "DuckDuckGo")
	v.SetDefault("resolver.exclude_term", "-amazon")
	v.SetDefault("resolver.bookseller_ean_url", "https://www.barnesandnoble.com/w/?ean=")
	v.SetDefault("resolver.bookseller_search_url", "https://www.barnesandnoble.com/s/")

	v.SetDefault("storage.durable", "memory")
	v.SetDefault("storage.session", "memory")
	v.SetDefault("storage.session_ttl", "12h")

	v.SetDefault("bus.transport", "memory")
	v.SetDefault("bus.consumer_group", "noprime")
	v.SetDefault("bus.min_idle_time", "2m")
	v.SetDefault("bus.block_time", "2s")
	v.SetDefault("bus.request_timeout", "5s")

	v.SetDefault("fetcher.timeout", "30s")
	v.SetDefault("fetcher.max_retries", 3)
	v.SetDefault("fetcher.max_workers", 4)
	v.SetDefault("fetcher.max_requests_per_second", 2)
	v.SetDefault("fetcher.failure_threshold", 5)
	v.SetDefault("fetcher.cooldown", "1m")
	v.SetDefault("fetcher.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36")
	v.SetDefault("fetcher.proxies", []string{})
	v.SetDefault("fetcher.proxy_check_url", "https://www.amazon.com/robots.txt")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "noprime")
	v.SetDefault("database.user", "noprime")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)
}

func validate(config *Config) error {
	if _, err := log.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	if config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("log format must be 'text' or 'json', got: %s", config.Log.Format)
	}

	switch config.Storage.Durable {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("durable storage must be 'memory', 'redis' or 'postgres', got: %s", config.Storage.Durable)
	}

	if config.Storage.Session != "memory" && config.Storage.Session != "redis" {
		return fmt.Errorf("session storage must be 'memory' or 'redis', got: %s", config.Storage.Session)
	}

	if config.Bus.Transport != "memory" && config.Bus.Transport != "redis" {
		return fmt.Errorf("bus transport must be 'memory' or 'redis', got: %s", config.Bus.Transport)
	}

	if config.Bus.Transport == "redis" && config.Bus.ConsumerGroup == "" {
		return fmt.Errorf("bus consumer group is required for the redis transport")
	}

	if len(config.Retailer.TabPatterns) == 0 {
		return fmt.Errorf("at least one retailer tab pattern is required")
	}

	switch config.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server mode must be 'debug', 'release' or 'test', got: %s", config.Server.Mode)
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", config.Server.Port)
	}

	if config.Fetcher.MaxWorkers <= 0 {
		return fmt.Errorf("fetcher max workers must be positive, got: %d", config.Fetcher.MaxWorkers)
	}

	if config.Fetcher.MaxRequestsPerSecond <= 0 {
		return fmt.Errorf("fetcher rate must be positive, got: %d", config.Fetcher.MaxRequestsPerSecond)
	}

	return nil
}
