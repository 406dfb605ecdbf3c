package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the subsidy chat service.
type Config struct {
	BindAddr         string        `env:"APP_BIND_ADDR" envDefault:":8080"`
	ShutdownTimeout  time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	MetricsNamespace string        `env:"APP_METRICS_NAMESPACE" envDefault:"hojokin"`
	AllowAnyOrigin   bool          `env:"APP_ALLOW_ANY_ORIGIN" envDefault:"false"`
	Debug            bool          `env:"APP_DEBUG" envDefault:"false"`
	MaxBodyBytes     int64         `env:"APP_MAX_BODY_BYTES" envDefault:"1048576"`

	Mem0APIKey  string `env:"MEM0_API_KEY"`
	Mem0BaseURL string `env:"MEM0_BASE_URL" envDefault:"https://api.mem0.ai"`

	MemoryOwnerID            string        `env:"MEMORY_OWNER_ID" envDefault:"default-user"`
	MemoryRecallTimeout      time.Duration `env:"MEMORY_RECALL_TIMEOUT" envDefault:"3s"`
	MemoryWriteTimeout       time.Duration `env:"MEMORY_WRITE_TIMEOUT" envDefault:"10s"`
	MemoryTopK               int           `env:"MEMORY_TOP_K" envDefault:"30"`
	MemoryThreshold          float64       `env:"MEMORY_THRESHOLD" envDefault:"0.4"`
	MemoryKeywordSearch      bool          `env:"MEMORY_KEYWORD_SEARCH" envDefault:"true"`
	MemoryRerank             bool          `env:"MEMORY_RERANK" envDefault:"true"`
	MemoryShortTermPageSize  int           `env:"MEMORY_SHORT_TERM_PAGE_SIZE" envDefault:"50"`
	MemoryRedactPII          bool          `env:"MEMORY_REDACT_PII" envDefault:"false"`
	MemoryTimezone           string        `env:"MEMORY_TIMEZONE" envDefault:"Asia/Tokyo"`
	MemoryCustomInstructions string        `env:"MEMORY_CUSTOM_INSTRUCTIONS" envDefault:"補助金の検索条件（業種・地域・従業員数・利用目的）とユーザーの事業内容を記憶してください。"`

	JGrantsBaseURL   string        `env:"JGRANTS_BASE_URL" envDefault:"https://api.jgrants-portal.go.jp/exp/v1/public"`
	JGrantsTimeout   time.Duration `env:"JGRANTS_TIMEOUT" envDefault:"15s"`
	JGrantsRateLimit float64       `env:"JGRANTS_RATE_LIMIT" envDefault:"2"`
	JGrantsRateBurst int           `env:"JGRANTS_RATE_BURST" envDefault:"4"`

	AgentName          string `env:"AGENT_NAME" envDefault:"subsidy-search"`
	AgentMode          string `env:"AGENT_MODE" envDefault:"auto"`
	OpenAIAPIKey       string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL      string `env:"OPENAI_BASE_URL"`
	OpenAIModel        string `env:"OPENAI_MODEL" envDefault:"gpt-5-nano"`
	AgentMaxToolRounds int    `env:"AGENT_MAX_TOOL_ROUNDS" envDefault:"5"`
	AgentHistoryLimit  int    `env:"AGENT_HISTORY_LIMIT" envDefault:"10"`

	DatabaseURL string `env:"DATABASE_URL"`
}

// ErrMissingMem0APIKey is returned by Validate when the memory service key is absent.
var ErrMissingMem0APIKey = errors.New("MEM0_API_KEY environment variable is required")

// Load reads a .env file when present, then environment variables, and applies defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Mem0APIKey = strings.TrimSpace(cfg.Mem0APIKey)
	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.AgentMode = strings.ToLower(strings.TrimSpace(cfg.AgentMode))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadTools reads only what the subsidy tools need. The memory key is not required.
func LoadTools() (Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validateJGrants(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Mem0APIKey == "" {
		return ErrMissingMem0APIKey
	}
	if _, err := url.ParseRequestURI(c.Mem0BaseURL); err != nil {
		return fmt.Errorf("MEM0_BASE_URL is invalid: %w", err)
	}
	if strings.TrimSpace(c.MemoryOwnerID) == "" {
		return errors.New("MEMORY_OWNER_ID must not be empty")
	}
	if c.MemoryRecallTimeout <= 0 {
		return errors.New("MEMORY_RECALL_TIMEOUT must be positive")
	}
	if c.MemoryWriteTimeout <= 0 {
		return errors.New("MEMORY_WRITE_TIMEOUT must be positive")
	}
	if c.MemoryTopK <= 0 {
		return errors.New("MEMORY_TOP_K must be positive")
	}
	if c.MemoryThreshold <= 0 || c.MemoryThreshold > 1 {
		return errors.New("MEMORY_THRESHOLD must be within (0,1]")
	}
	if c.MemoryShortTermPageSize <= 0 {
		return errors.New("MEMORY_SHORT_TERM_PAGE_SIZE must be positive")
	}
	if _, err := time.LoadLocation(c.MemoryTimezone); err != nil {
		return fmt.Errorf("MEMORY_TIMEZONE is invalid: %w", err)
	}
	if err := c.validateJGrants(); err != nil {
		return err
	}
	switch c.AgentMode {
	case "auto", "mock":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return errors.New("AGENT_MODE=openai but OPENAI_API_KEY is not set")
		}
	default:
		return fmt.Errorf("invalid AGENT_MODE: %q (expected auto|openai|mock)", c.AgentMode)
	}
	if strings.TrimSpace(c.AgentName) == "" {
		return errors.New("AGENT_NAME must not be empty")
	}
	if c.AgentMaxToolRounds <= 0 {
		return errors.New("AGENT_MAX_TOOL_ROUNDS must be positive")
	}
	if c.AgentHistoryLimit < 0 {
		return errors.New("AGENT_HISTORY_LIMIT must be >= 0")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("APP_MAX_BODY_BYTES must be positive")
	}
	return nil
}

func (c Config) validateJGrants() error {
	if _, err := url.ParseRequestURI(c.JGrantsBaseURL); err != nil {
		return fmt.Errorf("JGRANTS_BASE_URL is invalid: %w", err)
	}
	if c.JGrantsTimeout <= 0 {
		return errors.New("JGRANTS_TIMEOUT must be positive")
	}
	if c.JGrantsRateLimit < 0 {
		return errors.New("JGRANTS_RATE_LIMIT must be >= 0")
	}
	if c.JGrantsRateLimit > 0 && c.JGrantsRateBurst <= 0 {
		return errors.New("JGRANTS_RATE_BURST must be positive when rate limiting is enabled")
	}
	return nil
}

// Location returns the time zone used to date memory records.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.MemoryTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
