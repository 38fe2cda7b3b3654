package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Detect     DetectConfig     `mapstructure:"detect"`
	Handoff    HandoffConfig    `mapstructure:"handoff"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Matcher    MatcherConfig    `mapstructure:"matcher"`
	Mail       MailConfig       `mapstructure:"mail"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Recovery   RecoveryConfig   `mapstructure:"recovery"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// PipelineWorkers bounds concurrent handoff processing in the API process.
	PipelineWorkers int `mapstructure:"pipeline_workers"`
	PipelineQueue   int `mapstructure:"pipeline_queue"`
	// AllowedOrigins lists dashboard origins permitted by CORS.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // s3, r2, s3compatible, minio, memory
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// DetectConfig holds the change-detection pass options.
type DetectConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	RequestDelay time.Duration `mapstructure:"request_delay"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxTier      int           `mapstructure:"tier"`
	SourceID     string        `mapstructure:"source"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxDocBytes  int64         `mapstructure:"max_doc_bytes"`
	// Schedule is a cron spec; empty runs a single pass.
	Schedule string `mapstructure:"schedule"`
	// BrowserURL is a remote DevTools websocket; empty launches local Chrome.
	BrowserURL string `mapstructure:"browser_url"`
}

type HandoffConfig struct {
	// URL of the pipeline entry point. Empty hands off in-process.
	URL     string        `mapstructure:"url"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ExtractionConfig struct {
	Provider    string        `mapstructure:"provider"` // openai, anthropic, gemini
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MinTextLen  int           `mapstructure:"min_text_length"`
	MaxTextLen  int           `mapstructure:"max_text_length"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
}

type MatcherConfig struct {
	URL     string        `mapstructure:"url"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MailConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	From     string        `mapstructure:"from"`
	SiteURL  string        `mapstructure:"site_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type DispatchConfig struct {
	Secret      string        `mapstructure:"secret"`
	LockBackend string        `mapstructure:"lock_backend"` // redis, database
	LockName    string        `mapstructure:"lock_name"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
	BatchSize   int           `mapstructure:"batch_size"`
	SendDelay   time.Duration `mapstructure:"send_delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type RecoveryConfig struct {
	StaleAfter time.Duration `mapstructure:"stale_after"`
	Limit      int           `mapstructure:"limit"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.bucket", "STORAGE_BUCKET")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("detect.concurrency", "DETECT_CONCURRENCY")
	v.BindEnv("detect.request_delay", "DETECT_REQUEST_DELAY")
	v.BindEnv("detect.timeout", "DETECT_TIMEOUT")
	v.BindEnv("detect.tier", "DETECT_TIER")
	v.BindEnv("detect.source", "DETECT_SOURCE")
	v.BindEnv("handoff.url", "HANDOFF_URL")
	v.BindEnv("handoff.secret", "HANDOFF_SECRET")
	v.BindEnv("extraction.provider", "EXTRACTION_PROVIDER")
	v.BindEnv("extraction.api_key", "EXTRACTION_API_KEY")
	v.BindEnv("extraction.model", "EXTRACTION_MODEL")
	v.BindEnv("matcher.url", "MATCHER_URL")
	v.BindEnv("matcher.secret", "MATCHER_SECRET")
	v.BindEnv("mail.api_key", "MAIL_API_KEY")
	v.BindEnv("dispatch.secret", "DRAIN_SECRET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.pipeline_workers", 2)
	v.SetDefault("server.pipeline_queue", 64)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/examwatch.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "notifications")
	v.SetDefault("registry.path", "./configs/sites.yaml")
	v.SetDefault("detect.concurrency", 3)
	v.SetDefault("detect.request_delay", "1s")
	v.SetDefault("detect.timeout", "30s")
	v.SetDefault("detect.tier", 0)
	v.SetDefault("detect.user_agent", "Mozilla/5.0 (compatible; examwatch/1.0)")
	v.SetDefault("detect.max_doc_bytes", 25*1024*1024)
	v.SetDefault("handoff.timeout", "10s")
	v.SetDefault("extraction.provider", "openai")
	v.SetDefault("extraction.model", "gpt-4o-mini")
	v.SetDefault("extraction.base_url", "https://api.openai.com/v1")
	v.SetDefault("extraction.timeout", "90s")
	v.SetDefault("extraction.min_text_length", 100)
	v.SetDefault("extraction.max_text_length", 30000)
	v.SetDefault("extraction.max_tokens", 2048)
	v.SetDefault("matcher.timeout", "10s")
	v.SetDefault("mail.endpoint", "https://api.resend.com/emails")
	v.SetDefault("mail.timeout", "15s")
	v.SetDefault("dispatch.lock_backend", "database")
	v.SetDefault("dispatch.lock_name", "notification-drain")
	v.SetDefault("dispatch.lock_ttl", "10m")
	v.SetDefault("dispatch.batch_size", 50)
	v.SetDefault("dispatch.send_delay", "600ms")
	v.SetDefault("dispatch.max_attempts", 5)
	v.SetDefault("recovery.stale_after", "15m")
	v.SetDefault("recovery.limit", 100)
}

// Validate checks option combinations that would otherwise fail at runtime.
func (c *Config) Validate() error {
	if c.Detect.Concurrency <= 0 {
		return fmt.Errorf("detect.concurrency must be positive")
	}
	switch c.Extraction.Provider {
	case "openai", "anthropic", "gemini":
	default:
		return fmt.Errorf("extraction: unknown provider %q", c.Extraction.Provider)
	}
	switch c.Dispatch.LockBackend {
	case "redis":
		if c.Redis.Address == "" {
			return fmt.Errorf("dispatch.lock_backend=redis requires redis.address")
		}
	case "database":
	default:
		return fmt.Errorf("dispatch: unknown lock backend %q", c.Dispatch.LockBackend)
	}
	if c.Dispatch.MaxAttempts <= 0 {
		return fmt.Errorf("dispatch.max_attempts must be positive")
	}
	return nil
}
