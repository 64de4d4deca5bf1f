package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pders01/searchpreview/internal/validation"
)

type Config struct {
	Wiki      WikiConfig      `mapstructure:"wiki"`
	API       APIConfig       `mapstructure:"api"`
	Session   SessionConfig   `mapstructure:"session"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
}

// WikiConfig describes the wiki the results page belongs to.
type WikiConfig struct {
	ID       string `mapstructure:"id"`
	Language string `mapstructure:"language"`
	Anon     bool   `mapstructure:"anon"`
	Mobile   bool   `mapstructure:"mobile"`
}

type APIConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
}

type SessionConfig struct {
	Path   string        `mapstructure:"path"`
	Window time.Duration `mapstructure:"window"`
}

type AnalyticsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Stream   string `mapstructure:"stream"`
	Schema   string `mapstructure:"schema"`
}

// ServerConfig configures the REST proxy. An empty upstream disables the
// part of the media response it would serve.
type ServerConfig struct {
	Addr                     string `mapstructure:"addr"`
	ActionAPI                string `mapstructure:"action_api"`
	MediaRepositoryAPI       string `mapstructure:"media_repository_api"`
	DataRepositoryAPI        string `mapstructure:"data_repository_api"`
	SearchFilterForQID       string `mapstructure:"search_filter_for_qid"`
	MediaRepositorySearchURI string `mapstructure:"media_repository_search_uri"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Wiki: WikiConfig{
			ID:       "enwiki",
			Language: "en",
			Anon:     true,
		},
		API: APIConfig{
			BaseURL:     "https://en.wikipedia.org/w/rest.php",
			HTTPTimeout: 30 * time.Second,
			UserAgent:   "searchpreview/1.0 (https://github.com/pders01/searchpreview)",
		},
		Session: SessionConfig{
			Path:   filepath.Join(homeDir, ".searchpreview", "session.db"),
			Window: 10 * time.Minute,
		},
		Analytics: AnalyticsConfig{
			Enabled:  false,
			Endpoint: "https://intake-analytics.wikimedia.org/v1/events?hasty=true",
			Stream:   "mediawiki.searchpreview",
			Schema:   "/analytics/mediawiki/searchpreview/3.0.0",
		},
		Server: ServerConfig{
			Addr:                     ":8080",
			ActionAPI:                "https://en.wikipedia.org/w/api.php",
			MediaRepositoryAPI:       "https://commons.wikimedia.org/w/api.php",
			DataRepositoryAPI:        "https://www.wikidata.org/w/api.php",
			SearchFilterForQID:       "haswbstatement:P180=%s",
			MediaRepositorySearchURI: "https://commons.wikimedia.org/w/index.php?search=%s&title=Special:MediaSearch&type=image",
		},
		Log: LogConfig{
			Level: "off",
		},
	}
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v, defaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		configDir := filepath.Join(homeDir, ".config", "searchpreview")

		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	// SEARCHPREVIEW_WIKI_ID overrides wiki.id
	v.SetEnvPrefix("SEARCHPREVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandPaths(&config)

	return &config, nil
}

// setDefaults registers every leaf key so that a file or environment
// override of one key keeps the defaults of its siblings.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("wiki.id", cfg.Wiki.ID)
	v.SetDefault("wiki.language", cfg.Wiki.Language)
	v.SetDefault("wiki.anon", cfg.Wiki.Anon)
	v.SetDefault("wiki.mobile", cfg.Wiki.Mobile)

	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.http_timeout", cfg.API.HTTPTimeout)
	v.SetDefault("api.user_agent", cfg.API.UserAgent)

	v.SetDefault("session.path", cfg.Session.Path)
	v.SetDefault("session.window", cfg.Session.Window)

	v.SetDefault("analytics.enabled", cfg.Analytics.Enabled)
	v.SetDefault("analytics.endpoint", cfg.Analytics.Endpoint)
	v.SetDefault("analytics.stream", cfg.Analytics.Stream)
	v.SetDefault("analytics.schema", cfg.Analytics.Schema)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.action_api", cfg.Server.ActionAPI)
	v.SetDefault("server.media_repository_api", cfg.Server.MediaRepositoryAPI)
	v.SetDefault("server.data_repository_api", cfg.Server.DataRepositoryAPI)
	v.SetDefault("server.search_filter_for_qid", cfg.Server.SearchFilterForQID)
	v.SetDefault("server.media_repository_search_uri", cfg.Server.MediaRepositorySearchURI)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
}

// Validate checks the configured endpoints and normalizes them in place.
// Empty server upstreams are allowed.
func (c *Config) Validate(permissive bool) error {
	v := validation.NewEndpointValidator()
	if permissive {
		v = validation.NewPermissiveEndpointValidator()
	}

	required := map[string]*string{
		"api.base_url": &c.API.BaseURL,
	}
	if c.Analytics.Enabled {
		required["analytics.endpoint"] = &c.Analytics.Endpoint
	}
	optional := map[string]*string{
		"server.action_api":           &c.Server.ActionAPI,
		"server.media_repository_api": &c.Server.MediaRepositoryAPI,
		"server.data_repository_api":  &c.Server.DataRepositoryAPI,
	}

	for name, ptr := range required {
		normalized, err := v.ValidateAndNormalize(*ptr)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*ptr = normalized
	}
	for name, ptr := range optional {
		if *ptr == "" {
			continue
		}
		normalized, err := v.ValidateAndNormalize(*ptr)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*ptr = normalized
	}

	if c.Session.Window <= 0 {
		return fmt.Errorf("session.window must be positive, got %s", c.Session.Window)
	}
	return nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

func expandPaths(cfg *Config) {
	cfg.Session.Path = expandPath(cfg.Session.Path)
	cfg.Log.File = expandPath(cfg.Log.File)
}

func Save(config *Config, path string) error {
	v := viper.New()

	// Durations are written as strings for TOML readability
	v.Set("wiki", map[string]interface{}{
		"id":       config.Wiki.ID,
		"language": config.Wiki.Language,
		"anon":     config.Wiki.Anon,
		"mobile":   config.Wiki.Mobile,
	})
	v.Set("api", map[string]interface{}{
		"base_url":     config.API.BaseURL,
		"http_timeout": config.API.HTTPTimeout.String(),
		"user_agent":   config.API.UserAgent,
	})
	v.Set("session", map[string]interface{}{
		"path":   config.Session.Path,
		"window": config.Session.Window.String(),
	})
	v.Set("analytics", map[string]interface{}{
		"enabled":  config.Analytics.Enabled,
		"endpoint": config.Analytics.Endpoint,
		"stream":   config.Analytics.Stream,
		"schema":   config.Analytics.Schema,
	})
	v.Set("server", map[string]interface{}{
		"addr":                        config.Server.Addr,
		"action_api":                  config.Server.ActionAPI,
		"media_repository_api":        config.Server.MediaRepositoryAPI,
		"data_repository_api":         config.Server.DataRepositoryAPI,
		"search_filter_for_qid":       config.Server.SearchFilterForQID,
		"media_repository_search_uri": config.Server.MediaRepositorySearchURI,
	})
	v.Set("log", map[string]interface{}{
		"level": config.Log.Level,
		"file":  config.Log.File,
	})

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}
