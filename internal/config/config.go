package config

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Port                 string        `mapstructure:"port"`
	DBPath               string        `mapstructure:"db_path"`
	DataDir              string        `mapstructure:"data_dir"`
	ArchivePath          string        `mapstructure:"archive_path"` // empty disables the file archive
	APIToken             string        `mapstructure:"api_token"`    // empty disables auth
	Timezone             string        `mapstructure:"timezone"`
	HistoryRetentionDays int           `mapstructure:"history_retention_days"` // 0 keeps history forever
	RateLimit            int           `mapstructure:"rate_limit"`             // requests per minute per client, 0 disables
	LLMBaseURL           string        `mapstructure:"llm_base_url"`
	LLMAPIKey            string        `mapstructure:"llm_api_key"` // empty uses the mock generator
	LLMModel             string        `mapstructure:"llm_model"`
	LLMMaxTokens         int           `mapstructure:"llm_max_tokens"`
	LLMTimeout           time.Duration `mapstructure:"llm_timeout"`
	LLMMaxAttempts       int           `mapstructure:"llm_max_attempts"`
	TopBooks             int           `mapstructure:"top_books"`
}

var defaults = map[string]any{
	"port":                   "8080",
	"db_path":                "bible-research.db",
	"data_dir":               "data",
	"archive_path":           "",
	"api_token":              "",
	"timezone":               "UTC",
	"history_retention_days": 90,
	"rate_limit":             60,
	"llm_base_url":           "https://api.anthropic.com/v1/",
	"llm_api_key":            "",
	"llm_model":              "claude-3-5-haiku-20241022",
	"llm_max_tokens":         2000,
	"llm_timeout":            "120s",
	"llm_max_attempts":       3,
	"top_books":              5,
}

// Manager loads configuration and reloads it when the config file changes.
type Manager struct {
	v         *viper.Viper
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager reads defaults, the optional YAML config file and BIBLE_*
// environment variables. cfgFile may be empty.
func NewManager(cfgFile string) (*Manager, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix("BIBLE")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("bible-research")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.bible-research")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	m := &Manager{v: v}
	cfg, err := m.load()
	if err != nil {
		return nil, err
	}
	m.config = cfg
	return m, nil
}

// Load returns the configuration without watching for changes.
func Load(cfgFile string) (*Config, error) {
	m, err := NewManager(cfgFile)
	if err != nil {
		return nil, err
	}
	return m.Get(), nil
}

func (m *Manager) load() (*Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// ConfigFile returns the config file in use, or "" when none was found.
func (m *Manager) ConfigFile() string {
	return m.v.ConfigFileUsed()
}

// OnChange registers a callback run after a successful reload.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Watch reloads the config file on change. An invalid file is logged and
// the previous configuration kept.
func (m *Manager) Watch() {
	if m.ConfigFile() == "" {
		return
	}
	m.v.OnConfigChange(func(e fsnotify.Event) {
		m.reload(e.Name)
	})
	m.v.WatchConfig()
}

func (m *Manager) reload(name string) {
	cfg, err := m.load()
	if err != nil {
		log.Printf("Ignoring config change in %s: %v", name, err)
		return
	}

	m.mu.Lock()
	m.config = cfg
	callbacks := make([]func(*Config), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	log.Printf("Config reloaded from %s", name)
	for _, fn := range callbacks {
		fn(cfg)
	}
}

func (c *Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if c.HistoryRetentionDays < 0 {
		return fmt.Errorf("history_retention_days must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if c.LLMMaxTokens <= 0 {
		return fmt.Errorf("llm_max_tokens must be positive")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("llm_timeout must be positive")
	}
	if c.LLMMaxAttempts < 1 {
		return fmt.Errorf("llm_max_attempts must be at least 1")
	}
	if c.TopBooks < 1 {
		return fmt.Errorf("top_books must be at least 1")
	}
	return nil
}

// Location returns the configured timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AuthEnabled reports whether API requests need a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.APIToken != ""
}

// Authorized checks a bearer token. Every token is accepted when auth is disabled.
func (c *Config) Authorized(token string) bool {
	if !c.AuthEnabled() {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(c.APIToken)) == 1
}

// UseMockLLM reports whether no API key is configured.
func (c *Config) UseMockLLM() bool {
	return c.LLMAPIKey == ""
}
