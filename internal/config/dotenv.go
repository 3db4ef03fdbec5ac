package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type Config struct {
	Addr                     string
	RoundSeconds             int
	TickMillis               int
	LivenessIntervalSeconds  int
	InactivitySeconds        int
	MinCanvasLength          int
	DefaultJudgeModel        string
	JudgeTimeoutSeconds      int
	JudgeAttempts            int
	JudgeBackoffMillis       int
	OpenAIAPIKey             string
	OpenAIModel              string
	OpenAIBaseURL            string
	KeywordsFile             string
	DatabaseURL              string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeSeconds int
	ArchiveBuffer            int
	RateLimitPerSecond       float64
	RateLimitBurst           int
	Log                      LogConfig
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

func Default() Config {
	return Config{
		Addr:                     ":8080",
		RoundSeconds:             60,
		TickMillis:               1000,
		LivenessIntervalSeconds:  15,
		InactivitySeconds:        30,
		MinCanvasLength:          200,
		DefaultJudgeModel:        "openai",
		JudgeTimeoutSeconds:      30,
		JudgeAttempts:            3,
		JudgeBackoffMillis:       1000,
		OpenAIModel:              "gpt-4o-mini",
		OpenAIBaseURL:            "https://api.openai.com/v1",
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           10,
		DBConnMaxLifetimeSeconds: 300,
		ArchiveBuffer:            256,
		RateLimitPerSecond:       10,
		RateLimitBurst:           20,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the configuration from the environment, falling back to Default
// for anything unset or invalid.
func Load() Config {
	def := Default()
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("ADDR", def.Addr)
	v.SetDefault("ROUND_SECONDS", def.RoundSeconds)
	v.SetDefault("TICK_MILLIS", def.TickMillis)
	v.SetDefault("LIVENESS_INTERVAL_SECONDS", def.LivenessIntervalSeconds)
	v.SetDefault("INACTIVITY_SECONDS", def.InactivitySeconds)
	v.SetDefault("MIN_CANVAS_LENGTH", def.MinCanvasLength)
	v.SetDefault("DEFAULT_JUDGE_MODEL", def.DefaultJudgeModel)
	v.SetDefault("JUDGE_TIMEOUT_SECONDS", def.JudgeTimeoutSeconds)
	v.SetDefault("JUDGE_ATTEMPTS", def.JudgeAttempts)
	v.SetDefault("JUDGE_BACKOFF_MILLIS", def.JudgeBackoffMillis)
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_MODEL", def.OpenAIModel)
	v.SetDefault("OPENAI_BASE_URL", def.OpenAIBaseURL)
	v.SetDefault("KEYWORDS_FILE", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MAX_OPEN_CONNS", def.DBMaxOpenConns)
	v.SetDefault("DB_MAX_IDLE_CONNS", def.DBMaxIdleConns)
	v.SetDefault("DB_CONN_MAX_LIFETIME_SECONDS", def.DBConnMaxLifetimeSeconds)
	v.SetDefault("ARCHIVE_BUFFER", def.ArchiveBuffer)
	v.SetDefault("RATE_LIMIT_PER_SECOND", def.RateLimitPerSecond)
	v.SetDefault("RATE_LIMIT_BURST", def.RateLimitBurst)
	v.SetDefault("LOG_LEVEL", def.Log.Level)
	v.SetDefault("LOG_FORMAT", def.Log.Format)
	v.SetDefault("LOG_FILE", "")

	cfg := Config{
		Addr:                     strings.TrimSpace(v.GetString("ADDR")),
		RoundSeconds:             positiveOr(v.GetInt("ROUND_SECONDS"), def.RoundSeconds),
		TickMillis:               positiveOr(v.GetInt("TICK_MILLIS"), def.TickMillis),
		LivenessIntervalSeconds:  positiveOr(v.GetInt("LIVENESS_INTERVAL_SECONDS"), def.LivenessIntervalSeconds),
		InactivitySeconds:        positiveOr(v.GetInt("INACTIVITY_SECONDS"), def.InactivitySeconds),
		MinCanvasLength:          v.GetInt("MIN_CANVAS_LENGTH"),
		DefaultJudgeModel:        strings.TrimSpace(v.GetString("DEFAULT_JUDGE_MODEL")),
		JudgeTimeoutSeconds:      positiveOr(v.GetInt("JUDGE_TIMEOUT_SECONDS"), def.JudgeTimeoutSeconds),
		JudgeAttempts:            positiveOr(v.GetInt("JUDGE_ATTEMPTS"), def.JudgeAttempts),
		JudgeBackoffMillis:       v.GetInt("JUDGE_BACKOFF_MILLIS"),
		OpenAIAPIKey:             strings.TrimSpace(v.GetString("OPENAI_API_KEY")),
		OpenAIModel:              strings.TrimSpace(v.GetString("OPENAI_MODEL")),
		OpenAIBaseURL:            strings.TrimRight(strings.TrimSpace(v.GetString("OPENAI_BASE_URL")), "/"),
		KeywordsFile:             strings.TrimSpace(v.GetString("KEYWORDS_FILE")),
		DatabaseURL:              strings.TrimSpace(v.GetString("DATABASE_URL")),
		DBMaxOpenConns:           positiveOr(v.GetInt("DB_MAX_OPEN_CONNS"), def.DBMaxOpenConns),
		DBMaxIdleConns:           positiveOr(v.GetInt("DB_MAX_IDLE_CONNS"), def.DBMaxIdleConns),
		DBConnMaxLifetimeSeconds: positiveOr(v.GetInt("DB_CONN_MAX_LIFETIME_SECONDS"), def.DBConnMaxLifetimeSeconds),
		ArchiveBuffer:            positiveOr(v.GetInt("ARCHIVE_BUFFER"), def.ArchiveBuffer),
		RateLimitPerSecond:       v.GetFloat64("RATE_LIMIT_PER_SECOND"),
		RateLimitBurst:           positiveOr(v.GetInt("RATE_LIMIT_BURST"), def.RateLimitBurst),
		Log: LogConfig{
			Level:  strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
			Format: strings.ToLower(strings.TrimSpace(v.GetString("LOG_FORMAT"))),
			File:   strings.TrimSpace(v.GetString("LOG_FILE")),
		},
	}
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.MinCanvasLength < 0 {
		cfg.MinCanvasLength = def.MinCanvasLength
	}
	if cfg.JudgeBackoffMillis < 0 {
		cfg.JudgeBackoffMillis = def.JudgeBackoffMillis
	}
	if cfg.DefaultJudgeModel == "" {
		cfg.DefaultJudgeModel = def.DefaultJudgeModel
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = def.OpenAIModel
	}
	if cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = def.OpenAIBaseURL
	}
	if cfg.RateLimitPerSecond < 0 {
		cfg.RateLimitPerSecond = def.RateLimitPerSecond
	}
	return cfg
}

func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickMillis) * time.Millisecond
}

func (c Config) LivenessInterval() time.Duration {
	return time.Duration(c.LivenessIntervalSeconds) * time.Second
}

func (c Config) InactivityThreshold() time.Duration {
	return time.Duration(c.InactivitySeconds) * time.Second
}

func (c Config) JudgeTimeout() time.Duration {
	return time.Duration(c.JudgeTimeoutSeconds) * time.Second
}

func (c Config) JudgeBackoff() time.Duration {
	return time.Duration(c.JudgeBackoffMillis) * time.Millisecond
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
