package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for structured environment overrides.
// MEDIATOR_SERVER__PORT=9000 sets server.port.
const EnvPrefix = "MEDIATOR_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Auth      AuthConfig      `koanf:"auth"`
	Models    ModelsConfig    `koanf:"models"`
	Monitor   MonitorConfig   `koanf:"monitor"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	MaxBodyBytes   int64         `koanf:"max_body_bytes"`
}

type UpstreamConfig struct {
	BaseURL string        `koanf:"base_url"`
	APIKey  string        `koanf:"api_key"`
	OrgID   string        `koanf:"org_id"`
	Timeout time.Duration `koanf:"timeout"`
}

type AuthConfig struct {
	AccessCodes []string `koanf:"access_codes"`
	// AccessCodeHashes holds hex SHA-256 digests of codes, for deployments
	// that do not want plaintext codes in config (see the hash-code command).
	AccessCodeHashes []string `koanf:"access_code_hashes"`
	HideUserAPIKey   bool     `koanf:"hide_user_api_key"`
}

// ModelsConfig controls model catalog rewriting.
type ModelsConfig struct {
	DisableAdvanced bool `koanf:"disable_advanced"` // Hide gpt-4/o1/o3 families from /v1/models
}

// MonitorConfig configures the conversation monitor side channel.
// An empty WebhookURL disables it entirely.
type MonitorConfig struct {
	WebhookURL  string        `koanf:"webhook_url"`
	MaxInFlight int           `koanf:"max_in_flight"`
	Timeout     time.Duration `koanf:"timeout"`
}

type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// legacyEnv maps the flat environment names used by existing deployments
// onto config keys.
var legacyEnv = map[string]string{
	"OPENAI_API_KEY":      "upstream.api_key",
	"BASE_URL":            "upstream.base_url",
	"OPENAI_ORG_ID":       "upstream.org_id",
	"CODE":                "auth.access_codes",
	"HIDE_USER_API_KEY":   "auth.hide_user_api_key",
	"DISABLE_GPT4":        "models.disable_advanced",
	"DISCORD_WEBHOOK_URL": "monitor.webhook_url",
}

// legacyFlags are the legacy names treated as on/off switches.
var legacyFlags = map[string]bool{
	"HIDE_USER_API_KEY": true,
	"DISABLE_GPT4":      true,
}

// listKeys are split on commas when they come from the environment.
var listKeys = map[string]bool{
	"auth.access_codes":       true,
	"auth.access_code_hashes": true,
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads configuration from the YAML file at path (a missing file is
// fine), then the legacy environment names, then MEDIATOR_ overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	setDefaults(k)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		mapped, ok := legacyEnv[key]
		if !ok || value == "" {
			return "", nil
		}
		if legacyFlags[key] {
			// Presence turns the flag on, whatever the value.
			return mapped, true
		}
		return mapped, envValue(mapped, value)
	}), nil); err != nil {
		return nil, fmt.Errorf("load legacy env: %w", err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		mapped := strings.Replace(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "__", ".", -1)
		return mapped, envValue(mapped, value)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Substitute environment variables in secrets and addresses
	cfg.Upstream.APIKey = substituteEnvVars(cfg.Upstream.APIKey)
	cfg.Upstream.BaseURL = strings.TrimRight(substituteEnvVars(cfg.Upstream.BaseURL), "/")
	cfg.Monitor.WebhookURL = substituteEnvVars(cfg.Monitor.WebhookURL)
	cfg.Auth.AccessCodes = cleanList(cfg.Auth.AccessCodes)
	cfg.Auth.AccessCodeHashes = cleanList(cfg.Auth.AccessCodeHashes)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	k.Set("server.port", 8080)
	k.Set("server.request_timeout", "10m")
	k.Set("server.max_body_bytes", 32<<20)
	k.Set("upstream.base_url", "https://api.openai.com")
	k.Set("upstream.timeout", "10m")
	k.Set("monitor.max_in_flight", 16)
	k.Set("monitor.timeout", "15s")
	k.Set("metrics.enabled", true)
	k.Set("telemetry.service_name", "llm-mediator")
	k.Set("log.level", "info")
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if _, err := url.ParseRequestURI(c.Upstream.BaseURL); err != nil {
		return fmt.Errorf("invalid upstream.base_url %q: %w", c.Upstream.BaseURL, err)
	}
	if c.Monitor.WebhookURL != "" {
		if _, err := url.ParseRequestURI(c.Monitor.WebhookURL); err != nil {
			return fmt.Errorf("invalid monitor.webhook_url: %w", err)
		}
	}
	for _, h := range c.Auth.AccessCodeHashes {
		if len(h) != 64 {
			return fmt.Errorf("invalid auth.access_code_hashes entry %q: want a hex SHA-256 digest", h)
		}
	}
	if c.Monitor.MaxInFlight <= 0 {
		return fmt.Errorf("monitor.max_in_flight must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	return nil
}

// MonitorEnabled reports whether a notification sink is configured.
func (c *Config) MonitorEnabled() bool {
	return c.Monitor.WebhookURL != ""
}

func envValue(key, value string) interface{} {
	if listKeys[key] {
		return strings.Split(value, ",")
	}
	return value
}

func cleanList(in []string) []string {
	out := in[:0:0]
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
