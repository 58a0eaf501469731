package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName   string
	AppEnv    string
	AppPort   string
	JWTSecret string

	DatabaseURL string
	RedisURL    string
	NATSURL     string

	// Remote judge (Judge0 CE via RapidAPI).
	Judge0URL             string
	Judge0APIKey          string
	Judge0APIHost         string
	Judge0PollInterval    time.Duration
	Judge0MaxPollAttempts int
	Judge0TestCaseDelay   time.Duration

	// Local sandbox.
	DockerHost         string
	SandboxImage       string
	TestCaseTimeout    time.Duration
	SandboxMemoryMB    int
	SandboxCPUShares   int
	SubmissionCacheTTL time.Duration
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
	v.SetEnvPrefix("DEVARENA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "DevArena API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("judge0.url", "https://judge0-ce.p.rapidapi.com")
	v.SetDefault("judge0.api_host", "judge0-ce.p.rapidapi.com")
	v.SetDefault("judge0.poll_interval_ms", 1000)
	v.SetDefault("judge0.max_poll_attempts", 10)
	v.SetDefault("judge0.test_case_delay_ms", 500)
	v.SetDefault("sandbox.image", "node:20-alpine")
	v.SetDefault("test_case_timeout_ms", 5000)
	v.SetDefault("sandbox.memory_mb", 256)
	v.SetDefault("sandbox.cpu_shares", 512)
	v.SetDefault("submission.cache_ttl", "5m")

	cacheTTLString := v.GetString("submission.cache_ttl")
	if cacheTTLString == "" {
		cacheTTLString = "5m"
	}
	cacheTTL, err := time.ParseDuration(cacheTTLString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid submission cache ttl: %w", err)
	}

	timeoutMs := v.GetInt("test_case_timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}

	cfg := Config{
		AppName:   v.GetString("app.name"),
		AppEnv:    v.GetString("app.env"),
		AppPort:   v.GetString("app.port"),
		JWTSecret: v.GetString("jwt.secret"),

		DatabaseURL: v.GetString("database.url"),
		RedisURL:    v.GetString("redis.url"),
		NATSURL:     v.GetString("nats.url"),

		Judge0URL:             v.GetString("judge0.url"),
		Judge0APIKey:          v.GetString("judge0.api_key"),
		Judge0APIHost:         v.GetString("judge0.api_host"),
		Judge0PollInterval:    time.Duration(v.GetInt("judge0.poll_interval_ms")) * time.Millisecond,
		Judge0MaxPollAttempts: v.GetInt("judge0.max_poll_attempts"),
		Judge0TestCaseDelay:   time.Duration(v.GetInt("judge0.test_case_delay_ms")) * time.Millisecond,

		DockerHost:         v.GetString("docker_host"),
		SandboxImage:       v.GetString("sandbox.image"),
		TestCaseTimeout:    time.Duration(timeoutMs) * time.Millisecond,
		SandboxMemoryMB:    v.GetInt("sandbox.memory_mb"),
		SandboxCPUShares:   v.GetInt("sandbox.cpu_shares"),
		SubmissionCacheTTL: cacheTTL,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.Judge0MaxPollAttempts <= 0 {
		cfg.Judge0MaxPollAttempts = 10
	}
	if cfg.SandboxMemoryMB <= 0 {
		cfg.SandboxMemoryMB = 256
	}
	if cfg.SandboxCPUShares <= 0 {
		cfg.SandboxCPUShares = 512
	}

	return cfg, nil
}
