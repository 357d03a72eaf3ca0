package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Runner backends.
const (
	RunnerBackendProcess = "process"
	RunnerBackendDocker  = "docker"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	CORSOrigins []string

	IdentitySecret   string
	IdentityIssuer   string
	IdentityAudience string

	QuestionsCacheTTL time.Duration
	DashboardCacheTTL time.Duration
	EventsChannel     string

	Runner RunnerConfig
}

// RunnerConfig configures code execution hosts.
type RunnerConfig struct {
	Backend           string
	NodeBin           string
	PythonBin         string
	JSTimeout         time.Duration
	PythonTimeout     time.Duration
	MaxTimeout        time.Duration
	PythonPoolSize    int
	PythonMaxRuns     int
	MemoryMB          int
	CPUShares         int
	DockerHost        string
	JSImage           string
	PythonImage       string
	WorkspaceRoot     string
	RateLimitPerMin   int
	RateLimitDuration time.Duration
}

// Production reports whether the service runs in the production environment.
func (c Config) Production() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CODEMEET")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "CodeMeet API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("questions.cache_ttl", "2m")
	v.SetDefault("dashboard.cache_ttl", "5m")
	v.SetDefault("events.channel", "codemeet:events")

	v.SetDefault("runner.backend", RunnerBackendProcess)
	v.SetDefault("runner.node_bin", "node")
	v.SetDefault("runner.python_bin", "python3")
	v.SetDefault("runner.js_timeout_ms", 8000)
	v.SetDefault("runner.python_timeout_ms", 20000)
	v.SetDefault("runner.max_timeout_ms", 60000)
	v.SetDefault("runner.python_pool_size", 2)
	v.SetDefault("runner.python_max_runs", 50)
	v.SetDefault("runner.memory_mb", 256)
	v.SetDefault("runner.cpu_shares", 512)
	v.SetDefault("runner.js_image", "node:20-alpine")
	v.SetDefault("runner.python_image", "python:3.11-alpine")
	v.SetDefault("runner.rate_limit", 30)
	v.SetDefault("runner.rate_limit_window", "1m")
}

func fromViper(v *viper.Viper) (Config, error) {
	setDefaults(v)

	questionsTTL, err := parseDuration(v, "questions.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	dashboardTTL, err := parseDuration(v, "dashboard.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	window, err := parseDuration(v, "runner.rate_limit_window")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		DatabaseURL:       v.GetString("database.url"),
		RedisURL:          v.GetString("redis.url"),
		NATSURL:           v.GetString("nats.url"),
		CORSOrigins:       splitList(v.GetString("http.cors_origins")),
		IdentitySecret:    v.GetString("identity.secret"),
		IdentityIssuer:    v.GetString("identity.issuer"),
		IdentityAudience:  v.GetString("identity.audience"),
		QuestionsCacheTTL: questionsTTL,
		DashboardCacheTTL: dashboardTTL,
		EventsChannel:     v.GetString("events.channel"),
		Runner: RunnerConfig{
			Backend:           strings.ToLower(strings.TrimSpace(v.GetString("runner.backend"))),
			NodeBin:           v.GetString("runner.node_bin"),
			PythonBin:         v.GetString("runner.python_bin"),
			JSTimeout:         millis(v.GetInt("runner.js_timeout_ms"), 8000),
			PythonTimeout:     millis(v.GetInt("runner.python_timeout_ms"), 20000),
			MaxTimeout:        millis(v.GetInt("runner.max_timeout_ms"), 60000),
			PythonPoolSize:    positive(v.GetInt("runner.python_pool_size"), 2),
			PythonMaxRuns:     positive(v.GetInt("runner.python_max_runs"), 50),
			MemoryMB:          positive(v.GetInt("runner.memory_mb"), 256),
			CPUShares:         positive(v.GetInt("runner.cpu_shares"), 512),
			DockerHost:        v.GetString("runner.docker_host"),
			JSImage:           v.GetString("runner.js_image"),
			PythonImage:       v.GetString("runner.python_image"),
			WorkspaceRoot:     v.GetString("runner.workspace_root"),
			RateLimitPerMin:   v.GetInt("runner.rate_limit"),
			RateLimitDuration: window,
		},
	}

	if cfg.IdentitySecret == "" {
		return Config{}, fmt.Errorf("identity secret must be provided")
	}

	switch cfg.Runner.Backend {
	case RunnerBackendProcess, RunnerBackendDocker:
	default:
		return Config{}, fmt.Errorf("unknown runner backend %q", cfg.Runner.Backend)
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	value, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func millis(value, fallback int) time.Duration {
	return time.Duration(positive(value, fallback)) * time.Millisecond
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func positive(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
