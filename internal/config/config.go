// Package config loads service settings from the environment.
//
// A .env file is read first when present; real environment variables win
// over it. Every setting has a default, so an empty environment yields a
// runnable configuration apart from the model API key.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/ahrav/go-grader/internal/jobs"
	"github.com/ahrav/go-grader/internal/llm/configuration"
)

// ErrLogLevelInvalid indicates an unrecognised LOG_LEVEL.
var ErrLogLevelInvalid = errors.New("log level must be one of debug, info, warn, error")

// ErrLogFormatInvalid indicates an unrecognised LOG_FORMAT.
var ErrLogFormatInvalid = errors.New("log format must be text or json")

// Config is the complete service configuration.
type Config struct {
	Server  serverConfig
	LLM     llmConfig
	Jobs    jobsConfig
	Redis   redisConfig
	Prompts promptsConfig
	Data    dataConfig
	Log     logConfig
}

type serverConfig struct {
	Address         string        `envconfig:"GRADER_ADDRESS" default:":8000"`
	ShutdownTimeout time.Duration `envconfig:"GRADER_SHUTDOWN_TIMEOUT" default:"15s"`
	CORSOrigins     []string      `envconfig:"GRADER_CORS_ORIGINS" default:"*"`
}

type llmConfig struct {
	APIKey        string        `envconfig:"OPENAI_API_KEY"`
	BaseURL       string        `envconfig:"OPENAI_API_BASE"`
	Model         string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	Temperature   float64       `envconfig:"LLM_TEMPERATURE" default:"0"`
	Timeout       time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
	MaxAttempts   int           `envconfig:"LLM_MAX_ATTEMPTS" default:"3"`
	RetryInterval time.Duration `envconfig:"LLM_RETRY_INTERVAL" default:"2s"`
	MaxInFlight   int           `envconfig:"LLM_MAX_IN_FLIGHT" default:"16"`
	// RateLimit is tokens per second; zero disables the limiter.
	RateLimit    float64 `envconfig:"LLM_RATE_LIMIT" default:"10"`
	RateBurst    int     `envconfig:"LLM_RATE_BURST" default:"20"`
	LogPrompts   bool    `envconfig:"LLM_LOG_PROMPTS" default:"false"`
	LogResponses bool    `envconfig:"LLM_LOG_RESPONSES" default:"false"`
}

type jobsConfig struct {
	MaxActive   int           `envconfig:"JOBS_MAX_ACTIVE" default:"10"`
	SweepDelay  time.Duration `envconfig:"JOBS_SWEEP_DELAY" default:"10s"`
	ResultTTL   time.Duration `envconfig:"JOBS_RESULT_TTL" default:"24h"`
	HistoryTTL  time.Duration `envconfig:"JOBS_HISTORY_TTL" default:"24h"`
	MetadataTTL time.Duration `envconfig:"JOBS_METADATA_TTL" default:"720h"`
	MaxResults  int           `envconfig:"JOBS_MAX_RESULTS" default:"1000"`
	MaxHistory  int           `envconfig:"JOBS_MAX_HISTORY" default:"1000"`
	MaxMetadata int           `envconfig:"JOBS_MAX_METADATA" default:"1000"`
	MaxScore    float64       `envconfig:"JOBS_MAX_SCORE" default:"10"`
}

// redisConfig enables the model reply cache when Addr is set.
type redisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR" default:""`
	Password string        `envconfig:"REDIS_PASSWORD" default:""`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	TTL      time.Duration `envconfig:"CACHE_TTL" default:"24h"`
}

type promptsConfig struct {
	// Path is a YAML bundle or a directory of <id>.txt files. Empty uses the
	// bundled templates.
	Path string `envconfig:"PROMPTS_PATH" default:""`
	// DiagnosticsDir receives unparseable model replies. Empty logs them instead.
	DiagnosticsDir string `envconfig:"DIAGNOSTICS_DIR" default:""`
}

type dataConfig struct {
	ProblemsFile string `envconfig:"DATA_PROBLEMS_FILE" default:""`
	StudentsFile string `envconfig:"DATA_STUDENTS_FILE" default:""`
}

type logConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"text"`
}

// Load reads envFile if it exists, then the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the sections that are not validated by their consumers.
func (c *Config) Validate() error {
	var errs []error
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w, got %q", ErrLogFormatInvalid, c.Log.Format))
	}
	if err := c.LLMConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.JobsConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LLMConfig maps the environment onto the model pipeline configuration.
func (c *Config) LLMConfig() *configuration.Config {
	out := configuration.DefaultConfig()
	out.Provider.APIKey = c.LLM.APIKey
	out.Provider.BaseURL = c.LLM.BaseURL
	out.Provider.Model = c.LLM.Model
	out.Provider.Temperature = c.LLM.Temperature
	out.Provider.Timeout = c.LLM.Timeout
	out.Retry.MaxAttempts = c.LLM.MaxAttempts
	out.Retry.Interval = c.LLM.RetryInterval
	out.MaxInFlight = c.LLM.MaxInFlight
	out.RateLimit.Enabled = c.LLM.RateLimit > 0
	out.RateLimit.TokensPerSecond = c.LLM.RateLimit
	out.RateLimit.BurstSize = c.LLM.RateBurst
	out.Cache.Enabled = c.Redis.Addr != ""
	out.Cache.RedisAddr = c.Redis.Addr
	out.Cache.RedisPassword = c.Redis.Password
	out.Cache.RedisDB = c.Redis.DB
	out.Cache.TTL = c.Redis.TTL
	out.Observability.LogPrompts = c.LLM.LogPrompts
	out.Observability.LogResponses = c.LLM.LogResponses
	return out
}

// JobsConfig maps the environment onto admission and retention settings.
func (c *Config) JobsConfig() jobs.Config {
	return jobs.Config{
		MaxActiveJobs: c.Jobs.MaxActive,
		SweepDelay:    c.Jobs.SweepDelay,
		ResultTTL:     c.Jobs.ResultTTL,
		HistoryTTL:    c.Jobs.HistoryTTL,
		MetadataTTL:   c.Jobs.MetadataTTL,
		MaxResults:    c.Jobs.MaxResults,
		MaxHistory:    c.Jobs.MaxHistory,
		MaxMetadata:   c.Jobs.MaxMetadata,
		MaxScore:      c.Jobs.MaxScore,
	}
}

// NewLogger builds the process logger described by the Log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w, got %q", ErrLogLevelInvalid, s)
	}
	return level, nil
}
