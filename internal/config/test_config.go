package config

import "time"

// TestConfig returns a config suitable for testing
func TestConfig() *Config {
	return &Config{
		Wiki: WikiConfig{
			ID:       "testwiki",
			Language: "en",
			Anon:     true,
		},
		API: APIConfig{
			BaseURL:     "http://localhost/w/rest.php",
			HTTPTimeout: 5 * time.Second,
			UserAgent:   "searchpreview-test/1.0",
		},
		Session: SessionConfig{
			Path:   "",
			Window: 10 * time.Minute,
		},
		Analytics: defaultConfig().Analytics,
		Server: ServerConfig{
			Addr:                     "127.0.0.1:0",
			SearchFilterForQID:       "haswbstatement:P180=%s",
			MediaRepositorySearchURI: "https://commons.example/search?q=%s",
		},
		Log: LogConfig{
			Level: "off",
		},
	}
}
