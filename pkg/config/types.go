package config

import "fmt"

// Config is the main configuration struct loaded from YAML.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Security SecurityConfig `yaml:"security"`
	Logging  LoggingConfig  `yaml:"logging"`
	Live     LiveConfig     `yaml:"live"`
	Widget   WidgetConfig   `yaml:"widget"`
	Events   EventsConfig   `yaml:"events"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
}

// ServerConfig holds http, storage and tls settings.
type ServerConfig struct {
	Address string    `yaml:"address"`
	Port    int       `yaml:"port"`
	DBPath  string    `yaml:"db_path"`
	TLS     TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// SecurityConfig holds auth, CORS and rate-limit settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
	APIKeys     struct {
		Backend  []string `yaml:"backend"`
		Frontend []string `yaml:"frontend"`
		Admin    []string `yaml:"admin"`
	} `yaml:"api_keys"`
	AuditDir string `yaml:"audit_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LiveConfig tunes the subscription broker and its polling fallback.
type LiveConfig struct {
	// Buffer is the per-subscriber snapshot channel depth
	Buffer int `yaml:"buffer"`
	// PollIntervalMs drives the polling fallback source; 0 keeps the
	// default of 5000ms
	PollIntervalMs int `yaml:"poll_interval_ms"`
}

// WidgetConfig tunes widget sessions and bridge limits.
type WidgetConfig struct {
	// SessionTTLSeconds bounds widget session token validity (default 24h)
	SessionTTLSeconds int `yaml:"session_ttl_seconds"`
	MaxWidth          int `yaml:"max_width"`
	MaxHeight         int `yaml:"max_height"`
}

// EventsConfig configures the optional AMQP event publisher.
type EventsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// SweeperConfig configures the cron-scheduled widget-session sweep.
type SweeperConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}
