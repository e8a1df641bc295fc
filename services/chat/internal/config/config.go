package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default location of the service config file.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML. Environment
// variables override file values so deployments can keep secrets out of
// the file.
type FileConfig struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	DatabaseURL string `yaml:"databaseURL"`

	OpenAIAPIKey     string `yaml:"openaiAPIKey"`
	AssistantID      string `yaml:"assistantID"`
	AssistantBaseURL string `yaml:"assistantBaseURL"`

	PollIntervalSeconds int `yaml:"pollIntervalSeconds"`
	WaitBudgetSeconds   int `yaml:"waitBudgetSeconds"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	AuthJWKSURL string `yaml:"authJWKSURL"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`

	RateLimit       int      `yaml:"rateLimit"`
	RateLimitWindow int      `yaml:"rateLimitWindowSeconds"`
	TrustedProxies  []string `yaml:"trustedProxies"`
}

// Load reads config from path (defaults to config.yaml). A missing file is
// fine; hosted deployments configure everything through the environment.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("ASSISTANT_ID"); v != "" {
		cfg.AssistantID = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AUTH_JWKS_URL"); v != "" {
		cfg.AuthJWKSURL = v
	}
}

// validateConfig checks the few settings the process cannot run without.
// Assistant credentials are deliberately not required: the service starts
// degraded and keeps serving fallback-compatible errors when they are
// missing.
func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if cfg.PollIntervalSeconds < 0 || cfg.WaitBudgetSeconds < 0 {
		return errors.New("config: poll interval and wait budget must not be negative")
	}
	if cfg.RateLimit < 0 || cfg.RateLimitWindow < 0 {
		return errors.New("config: rate limit settings must not be negative")
	}
	return nil
}
