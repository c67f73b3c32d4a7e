// Package config provides hierarchical configuration loading for CodeCouncil.
// Precedence: defaults < YAML file < environment variables (.env included).
package config

import "time"

// Config holds all runtime configuration for the CodeCouncil service.
type Config struct {
	Server      Server      `yaml:"server"`
	Postgres    Postgres    `yaml:"postgres"`
	NATS        NATS        `yaml:"nats"`
	Logging     Logging     `yaml:"logging"`
	Breaker     Breaker     `yaml:"breaker"`
	Rate        Rate        `yaml:"rate"`
	Git         Git         `yaml:"git"`
	Cache       Cache       `yaml:"cache"`
	Providers   Providers   `yaml:"providers"`
	Council     Council     `yaml:"council"`
	Implementer Implementer `yaml:"implementer"`
	Notify      Notify      `yaml:"notify"`
	OTEL        OTEL        `yaml:"otel"`
	MCP         MCP         `yaml:"mcp"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port           string        `yaml:"port"`
	CORSOrigin     string        `yaml:"cors_origin"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

// Postgres holds PostgreSQL connection configuration.
// An empty DSN selects the in-memory session store.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// NATS holds NATS JetStream configuration. An empty URL disables the event bus.
type NATS struct {
	URL string `yaml:"url"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration shared by every outbound client.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Rate holds per-IP rate limiter configuration.
type Rate struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	MaxIdleTime       time.Duration `yaml:"max_idle_time"`
}

// Git holds git CLI configuration.
type Git struct {
	MaxConcurrent int    `yaml:"max_concurrent"`
	AuthorName    string `yaml:"author_name"`
	AuthorEmail   string `yaml:"author_email"`
}

// Cache holds review report cache configuration.
type Cache struct {
	L1MaxSizeMB int64         `yaml:"l1_max_size_mb"`
	L2Bucket    string        `yaml:"l2_bucket"`
	TTL         time.Duration `yaml:"ttl"`
}

// Provider holds one backend's credentials and endpoint.
type Provider struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Providers holds every backend the router may use.
type Providers struct {
	Groq       Provider `yaml:"groq"`
	OpenRouter Provider `yaml:"openrouter"`
	Ollama     Provider `yaml:"ollama"`
	Anthropic  Provider `yaml:"anthropic"`
	OpenAI     Provider `yaml:"openai"`
}

// Council holds deliberation configuration.
type Council struct {
	// Backend serving the council members and chairman ("openrouter" by default,
	// which can reach every vendor's model by tag).
	Backend            string            `yaml:"backend"`
	Models             map[string]string `yaml:"models"` // role -> model tag
	ChairmanModel      string            `yaml:"chairman_model"`
	Temperature        float64           `yaml:"temperature"`
	RankingTemperature float64           `yaml:"ranking_temperature"`
	ChairmanMaxTokens  int               `yaml:"chairman_max_tokens"`
	CallTimeout        time.Duration     `yaml:"call_timeout"`
}

// Implementer holds the autonomous build loop configuration.
type Implementer struct {
	WorkspaceRoot      string        `yaml:"workspace_root"`
	SandboxURL         string        `yaml:"sandbox_url"`
	DefaultEnvironment string        `yaml:"default_environment"`
	MaxIterations      int           `yaml:"max_iterations"`
	MaxAttempts        int           `yaml:"max_attempts"`
	Backoff            time.Duration `yaml:"backoff"`
	SandboxLifetime    time.Duration `yaml:"sandbox_lifetime"`
	ExecuteTimeout     time.Duration `yaml:"execute_timeout"`
}

// Notify holds progress delivery configuration.
type Notify struct {
	WebhookURL        string        `yaml:"webhook_url"` // global sink in addition to per-session URLs
	DiscordWebhookURL string        `yaml:"discord_webhook_url"`
	QueueSize         int           `yaml:"queue_size"`
	Timeout           time.Duration `yaml:"timeout"`
}

// OTEL holds OpenTelemetry export configuration.
type OTEL struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// MCP holds Model Context Protocol server configuration.
type MCP struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:           "8001",
			CORSOrigin:     "http://localhost:3000",
			RequestTimeout: 5 * time.Minute,
			MaxBodyBytes:   2 << 20,
		},
		Postgres: Postgres{
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		Logging: Logging{
			Level:   "info",
			Service: "codecouncil",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Rate: Rate{
			RequestsPerSecond: 5,
			Burst:             20,
			MaxIdleTime:       10 * time.Minute,
		},
		Git: Git{
			MaxConcurrent: 4,
			AuthorName:    "CodeCouncil",
			AuthorEmail:   "codecouncil@localhost",
		},
		Cache: Cache{
			L1MaxSizeMB: 64,
			L2Bucket:    "COUNCIL_REPORTS",
			TTL:         time.Hour,
		},
		Providers: Providers{
			Groq:       Provider{BaseURL: "https://api.groq.com/openai/v1", Timeout: 60 * time.Second},
			OpenRouter: Provider{BaseURL: "https://openrouter.ai/api/v1", Timeout: 120 * time.Second},
			Ollama:     Provider{BaseURL: "http://localhost:11434/v1", Timeout: 120 * time.Second},
			Anthropic:  Provider{BaseURL: "https://api.anthropic.com/v1", Timeout: 120 * time.Second},
			OpenAI:     Provider{BaseURL: "https://api.openai.com/v1", Timeout: 120 * time.Second},
		},
		Council: Council{
			Backend: "openrouter",
			Models: map[string]string{
				"architecture": "anthropic/claude-sonnet-4.5",
				"security":     "openai/gpt-4.1-mini",
				"performance":  "google/gemini-2.5-flash",
				"qa":           "x-ai/grok-4",
			},
			ChairmanModel:      "anthropic/claude-sonnet-4.5",
			Temperature:        0.7,
			RankingTemperature: 0.3,
			ChairmanMaxTokens:  4096,
			CallTimeout:        120 * time.Second,
		},
		Implementer: Implementer{
			WorkspaceRoot:      "./projects",
			SandboxURL:         "http://localhost:8004",
			DefaultEnvironment: "nodejs-18",
			MaxIterations:      100,
			MaxAttempts:        3,
			Backoff:            2 * time.Second,
			SandboxLifetime:    time.Hour,
			ExecuteTimeout:     5 * time.Minute,
		},
		Notify: Notify{
			QueueSize: 256,
			Timeout:   10 * time.Second,
		},
		OTEL: OTEL{
			Endpoint: "localhost:4317",
			Insecure: true,
		},
	}
}
