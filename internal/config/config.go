package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig     `json:"basic_config" yaml:"basic_config"`
	Database    DatabaseConfig  `json:"database" yaml:"database"`
	Redis       RedisConfig     `json:"redis" yaml:"redis"`
	Worker      WorkerConfig    `json:"worker" yaml:"worker"`
	Log         LogConfig       `json:"log" yaml:"log"`
	Providers   ProvidersConfig `json:"providers" yaml:"providers"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address" yaml:"server_address" env:"SERVER_ADDRESS" env-default:":8090"`
	Port              string `json:"port" yaml:"port" env:"PORT"`
	DefaultProvider   string `json:"default_provider" yaml:"default_provider" env:"DEFAULT_PROVIDER" env-default:"openai" validate:"required"`
	RetentionDays     int    `json:"retention_days" yaml:"retention_days" env:"RETENTION_DAYS" env-default:"0" validate:"gte=0"`
	RetentionInterval int    `json:"retention_interval_minutes" yaml:"retention_interval_minutes" env:"RETENTION_INTERVAL_MINUTES" env-default:"60" validate:"gte=0"`
}

type DatabaseConfig struct {
	Driver   string `json:"driver" yaml:"driver" env:"DB_DRIVER" env-default:"sqlite3" validate:"oneof=sqlite sqlite3 mysql"`
	Path     string `json:"path" yaml:"path" env:"DATABASE_PATH" env-default:"data/conversations.db"`
	Host     string `json:"host" yaml:"host" env:"MYSQL_HOST" env-default:"127.0.0.1"`
	Port     int    `json:"port" yaml:"port" env:"MYSQL_PORT" env-default:"3306"`
	Username string `json:"username" yaml:"username" env:"MYSQL_USER"`
	Password string `json:"-" yaml:"-" env:"MYSQL_PASSWORD"`
	DBName   string `json:"db_name" yaml:"db_name" env:"MYSQL_DATABASE" env-default:"promptrelay"`
	Params   string `json:"params" yaml:"params" env:"MYSQL_PARAMS" env-default:"parseTime=true&loc=UTC&charset=utf8mb4"`
}

// RedisConfig is optional; an empty Addr disables caching.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr" env:"REDIS_ADDR"`
	Username string `json:"username" yaml:"username" env:"REDIS_USERNAME"`
	Password string `json:"-" yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `json:"db" yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type WorkerConfig struct {
	MinWorkers      int `json:"min_workers" yaml:"min_workers" env:"WORKER_MIN" env-default:"2" validate:"gte=0"`
	MaxWorkers      int `json:"max_workers" yaml:"max_workers" env:"WORKER_MAX" env-default:"16" validate:"gte=1"`
	QueueSize       int `json:"queue_size" yaml:"queue_size" env:"WORKER_QUEUE_SIZE" env-default:"64" validate:"gte=1"`
	IdleTimeoutSecs int `json:"idle_timeout_seconds" yaml:"idle_timeout_seconds" env:"WORKER_IDLE_SECONDS" env-default:"30" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT" env-default:"console" validate:"oneof=console json"`
}

// ProvidersConfig holds one entry per supported vendor. A provider is enabled
// only when its API key is present.
type ProvidersConfig struct {
	OpenAI ProviderConfig `json:"openai" yaml:"openai" env-prefix:"OPENAI_"`
	Claude ProviderConfig `json:"claude" yaml:"claude" env-prefix:"ANTHROPIC_"`
	Groq   ProviderConfig `json:"groq" yaml:"groq" env-prefix:"GROQ_"`
	Gemini ProviderConfig `json:"gemini" yaml:"gemini" env-prefix:"GEMINI_"`
}

type ProviderConfig struct {
	APIKey         string   `json:"-" yaml:"-" env:"API_KEY"`
	BaseURL        string   `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	Model          string   `json:"model" yaml:"model" env:"MODEL"`
	Models         []string `json:"models" yaml:"models" env:"MODELS"`
	TimeoutSeconds int      `json:"timeout_seconds" yaml:"timeout_seconds" env:"TIMEOUT_SECONDS" env-default:"60" validate:"gte=0"`
}

// Enabled reports whether credentials are present.
func (p ProviderConfig) Enabled() bool {
	return strings.TrimSpace(p.APIKey) != ""
}

// Timeout returns the per-call deadline for the provider.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// ByName exposes the providers keyed by their public name.
func (p ProvidersConfig) ByName() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"openai": p.OpenAI,
		"claude": p.Claude,
		"groq":   p.Groq,
		"gemini": p.Gemini,
	}
}

// Addr returns the listen address, letting PORT override the port part.
func (b BasicConfig) Addr() string {
	addr := b.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	if b.Port == "" {
		return addr
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = ""
	}
	return net.JoinHostPort(host, b.Port)
}

// Load reads configuration from the provided path, then applies environment
// overrides. With an empty path only the environment is used; a path that
// does not exist is an error.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("open config %s: %w", absPath, err)
		}
		if err := cleanenv.ReadConfig(absPath, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if cfg.Database.Path != "" && cfg.Database.Path != ":memory:" && !filepath.IsAbs(cfg.Database.Path) {
			cfg.Database.Path = filepath.Join(filepath.Dir(absPath), cfg.Database.Path)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct constraints of a loaded configuration.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Worker.MaxWorkers < cfg.Worker.MinWorkers {
		return fmt.Errorf("invalid config: worker max (%d) below min (%d)", cfg.Worker.MaxWorkers, cfg.Worker.MinWorkers)
	}
	if cfg.Database.Driver != "mysql" && cfg.Database.Path == "" {
		return fmt.Errorf("database path must be configured")
	}
	if _, ok := cfg.Providers.ByName()[cfg.BasicConfig.DefaultProvider]; !ok {
		return fmt.Errorf("invalid config: unknown default provider %q", cfg.BasicConfig.DefaultProvider)
	}
	return nil
}
