package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "codecouncil.yaml"

// DefaultEnvFile is the dotenv file loaded before the environment overlay.
const DefaultEnvFile = ".env"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// Both the YAML file and the .env file are optional.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	if err := loadDotEnv(DefaultEnvFile); err != nil {
		return nil, fmt.Errorf("config dotenv: %w", err)
	}
	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadDotEnv populates the process environment from a dotenv file.
// Variables already set in the environment are left untouched.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "COUNCIL_PORT")
	setString(&cfg.Server.CORSOrigin, "COUNCIL_CORS_ORIGIN")
	setDuration(&cfg.Server.RequestTimeout, "COUNCIL_REQUEST_TIMEOUT")
	setInt64(&cfg.Server.MaxBodyBytes, "COUNCIL_MAX_BODY_BYTES")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "COUNCIL_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "COUNCIL_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "COUNCIL_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "COUNCIL_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "COUNCIL_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Logging.Level, "COUNCIL_LOG_LEVEL")
	setString(&cfg.Logging.Service, "COUNCIL_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "COUNCIL_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "COUNCIL_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "COUNCIL_BREAKER_TIMEOUT")

	setFloat64(&cfg.Rate.RequestsPerSecond, "COUNCIL_RATE_RPS")
	setInt(&cfg.Rate.Burst, "COUNCIL_RATE_BURST")
	setDuration(&cfg.Rate.MaxIdleTime, "COUNCIL_RATE_MAX_IDLE_TIME")

	setInt(&cfg.Git.MaxConcurrent, "COUNCIL_GIT_MAX_CONCURRENT")
	setString(&cfg.Git.AuthorName, "COUNCIL_GIT_AUTHOR_NAME")
	setString(&cfg.Git.AuthorEmail, "COUNCIL_GIT_AUTHOR_EMAIL")

	setInt64(&cfg.Cache.L1MaxSizeMB, "COUNCIL_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "COUNCIL_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.TTL, "COUNCIL_CACHE_TTL")

	// Provider credentials keep their conventional names.
	setString(&cfg.Providers.Groq.APIKey, "GROQ_API_KEY")
	setString(&cfg.Providers.OpenRouter.APIKey, "OPENROUTER_API_KEY")
	setString(&cfg.Providers.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Providers.Ollama.BaseURL, "OLLAMA_BASE_URL")

	setString(&cfg.Council.Backend, "COUNCIL_BACKEND")
	setString(&cfg.Council.ChairmanModel, "COUNCIL_CHAIRMAN_MODEL")
	setFloat64(&cfg.Council.Temperature, "COUNCIL_TEMPERATURE")
	setDuration(&cfg.Council.CallTimeout, "COUNCIL_CALL_TIMEOUT")

	setString(&cfg.Implementer.WorkspaceRoot, "PROJECTS_DIR")
	setString(&cfg.Implementer.SandboxURL, "SANDBOX_SERVICE_URL")
	setString(&cfg.Implementer.DefaultEnvironment, "COUNCIL_DEFAULT_ENVIRONMENT")
	setInt(&cfg.Implementer.MaxIterations, "COUNCIL_MAX_ITERATIONS")
	setInt(&cfg.Implementer.MaxAttempts, "COUNCIL_MAX_ATTEMPTS")
	setDuration(&cfg.Implementer.Backoff, "COUNCIL_RETRY_BACKOFF")
	setDuration(&cfg.Implementer.SandboxLifetime, "COUNCIL_SANDBOX_LIFETIME")
	setDuration(&cfg.Implementer.ExecuteTimeout, "COUNCIL_EXECUTE_TIMEOUT")

	setString(&cfg.Notify.WebhookURL, "COUNCIL_WEBHOOK_URL")
	setString(&cfg.Notify.DiscordWebhookURL, "COUNCIL_DISCORD_WEBHOOK_URL")
	setInt(&cfg.Notify.QueueSize, "COUNCIL_NOTIFY_QUEUE_SIZE")
	setDuration(&cfg.Notify.Timeout, "COUNCIL_NOTIFY_TIMEOUT")

	setBool(&cfg.OTEL.Enabled, "COUNCIL_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTEL.Insecure, "COUNCIL_OTEL_INSECURE")

	setBool(&cfg.MCP.Enabled, "COUNCIL_MCP_ENABLED")
	setString(&cfg.MCP.APIKey, "COUNCIL_MCP_API_KEY")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN != "" && cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Implementer.WorkspaceRoot == "" {
		return errors.New("implementer.workspace_root is required")
	}
	if cfg.Implementer.SandboxURL == "" {
		return errors.New("implementer.sandbox_url is required")
	}
	if cfg.Implementer.MaxAttempts < 1 {
		return errors.New("implementer.max_attempts must be >= 1")
	}
	if cfg.Implementer.MaxIterations < 1 {
		return errors.New("implementer.max_iterations must be >= 1")
	}
	if cfg.Notify.QueueSize < 1 {
		return errors.New("notify.queue_size must be >= 1")
	}
	if cfg.Council.ChairmanModel == "" {
		return errors.New("council.chairman_model is required")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
