package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by LoadConfig.
const (
	EnvAPIURL        = "STUDYPLAN_API_URL"
	EnvAPIURLLegacy  = "NEXT_PUBLIC_API_URL"
	EnvStorePath     = "STUDYPLAN_STORE"
	EnvLogLevel      = "STUDYPLAN_LOG_LEVEL"
	EnvRefreshPolicy = "STUDYPLAN_REFRESH_POLICY"
)

const (
	DefaultRefreshPath = "/auth/refresh"
	configFileName     = ".studyplan.yaml"
	storeFileName      = "studyplan/store.json"
)

// Refresh policies. "skip" lets only the first failing call refresh; "share"
// makes concurrent failing calls wait for and reuse that refresh.
const (
	RefreshPolicySkip  = "skip"
	RefreshPolicyShare = "share"
)

// Duration decodes YAML strings like "15s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config holds everything needed to build the API client.
type Config struct {
	// APIURL is the backend base address. Empty is allowed here; the client
	// reports it per call.
	APIURL        string    `yaml:"api_url"`
	UserAgent     string    `yaml:"user_agent"`
	Timeout       Duration  `yaml:"timeout"`
	RefreshPath   string    `yaml:"refresh_path"`
	RefreshPolicy string    `yaml:"refresh_policy"`
	StorePath     string    `yaml:"store_path"`
	Log           LogConfig `yaml:"log"`

	// Auth describes the provider used to build login URLs.
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig describes the OAuth provider the backend brokers logins for.
type AuthConfig struct {
	ClientID    string   `yaml:"client_id"`
	AuthURL     string   `yaml:"auth_url"`
	RedirectURL string   `yaml:"redirect_url"`
	Scopes      []string `yaml:"scopes"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		UserAgent:     DefaultUserAgent,
		RefreshPath:   DefaultRefreshPath,
		RefreshPolicy: RefreshPolicySkip,
		StorePath:     defaultStorePath(),
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Auth: AuthConfig{
			AuthURL: "https://accounts.google.com/o/oauth2/v2/auth",
			Scopes: []string{
				"https://www.googleapis.com/auth/calendar",
				"https://www.googleapis.com/auth/calendar.events",
				"openid", "email", "profile",
			},
		},
	}
}

// DefaultConfigPath returns ~/.studyplan.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, configFileName), nil
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = "."
	}
	return filepath.Join(dir, storeFileName)
}

// LoadConfig reads .env from the working directory (if present), then the
// YAML file at path (if present; "" means the default path), then applies
// environment overrides.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		p, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err) && !explicit:
		// defaults only
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.APIURL = v
	} else if v := os.Getenv(EnvAPIURLLegacy); v != "" && c.APIURL == "" {
		c.APIURL = v
	}
	if v := os.Getenv(EnvStorePath); v != "" {
		c.StorePath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvRefreshPolicy); v != "" {
		c.RefreshPolicy = v
	}
}

// Validate checks fields that have a fixed set of values.
func (c *Config) Validate() error {
	c.RefreshPolicy = strings.ToLower(strings.TrimSpace(c.RefreshPolicy))
	switch c.RefreshPolicy {
	case "":
		c.RefreshPolicy = RefreshPolicySkip
	case RefreshPolicySkip, RefreshPolicyShare:
	default:
		return fmt.Errorf("unknown refresh policy %q (want %q or %q)", c.RefreshPolicy, RefreshPolicySkip, RefreshPolicyShare)
	}
	if c.RefreshPath == "" {
		c.RefreshPath = DefaultRefreshPath
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
