// Package config loads server configuration from a YAML file, environment
// variables and command-line flags. Precedence: CLI > environment > file >
// defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Server holds the game-channel and operational settings.
type Server struct {
	IP       string `yaml:"ip" env:"RELAY_IP" envDefault:"0.0.0.0"`
	Port     int    `yaml:"port" env:"RELAY_PORT" envDefault:"12000"`
	Name     string `yaml:"name" env:"RELAY_NAME" envDefault:"gamerelay server"`
	Owner    string `yaml:"owner" env:"RELAY_OWNER"`
	Debug    bool   `yaml:"debug" env:"RELAY_DEBUG"`
	AuthFile string `yaml:"auth_file" env:"RELAY_AUTH_FILE" envDefault:"admins.auth"`
	BanFile  string `yaml:"ban_file" env:"RELAY_BAN_FILE" envDefault:"bans.txt"`
	MOTDFile string `yaml:"motd_file" env:"RELAY_MOTD_FILE" envDefault:"motd.txt"`
	Password string `yaml:"password" env:"RELAY_PASSWORD"`

	// Operational extras.
	MetricsAddr   string `yaml:"metrics_addr" env:"RELAY_METRICS_ADDR"`
	WebSocketPort int    `yaml:"websocket_port" env:"RELAY_WEBSOCKET_PORT"`
	ScriptCommand string `yaml:"script_command" env:"RELAY_SCRIPT_COMMAND"`
	NATSURL       string `yaml:"nats_url" env:"RELAY_NATS_URL"`
	PrintStats    bool   `yaml:"print_stats" env:"RELAY_PRINT_STATS"`

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" envDefault:"json"`

	// Connection admission limits (token bucket, per IP and global).
	ConnRateIPBurst      int     `yaml:"conn_rate_ip_burst" env:"RELAY_CONN_RATE_IP_BURST" envDefault:"10"`
	ConnRateIPPerSec     float64 `yaml:"conn_rate_ip_per_sec" env:"RELAY_CONN_RATE_IP_PER_SEC" envDefault:"1"`
	ConnRateGlobalBurst  int     `yaml:"conn_rate_global_burst" env:"RELAY_CONN_RATE_GLOBAL_BURST" envDefault:"100"`
	ConnRateGlobalPerSec float64 `yaml:"conn_rate_global_per_sec" env:"RELAY_CONN_RATE_GLOBAL_PER_SEC" envDefault:"25"`
}

// API holds the master-registry client settings.
type API struct {
	Endpoint          string        `yaml:"endpoint" env:"RELAY_API_ENDPOINT"`
	Key               string        `yaml:"key" env:"RELAY_API_KEY"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"RELAY_HEARTBEAT_INTERVAL" envDefault:"60s"`
}

// Game holds gameplay-facing settings.
type Game struct {
	MaxPlayers int    `yaml:"max_players" env:"RELAY_MAX_PLAYERS" envDefault:"16"`
	Terrain    string `yaml:"terrain" env:"RELAY_TERRAIN" envDefault:"any"`
}

// Config is the full configuration tree.
type Config struct {
	Server Server `yaml:"server"`
	API    API    `yaml:"api"`
	Game   Game   `yaml:"game"`
}

// Load builds the configuration. The file is optional; environment
// variables override it, and flag values already parsed into fs override
// everything.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// Environment overrides file values; envDefault fills fields still
	// unset after both.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if fs != nil {
		cfg.applyFlags(fs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// BindFlags registers the CLI surface on fs. Every registered key can also
// be given as --<key>=<value>.
func BindFlags(fs *pflag.FlagSet) {
	fs.IntP("port", "p", 0, "listen port for the game channel")
	fs.StringP("owner", "o", "", "server owner shown in the registry")
	fs.StringP("name", "n", "", "server name shown in the registry")
	fs.StringP("config", "c", "", "path to YAML configuration file")
	fs.String("ip", "", "listen address")
	fs.Int("max-players", 0, "client table capacity")
	fs.String("terrain", "", "advertised terrain name")
	fs.String("password", "", "server password (empty disables)")
	fs.String("auth-file", "", "auth cache file")
	fs.String("ban-file", "", "persisted ban list file")
	fs.String("motd-file", "", "message-of-the-day file")
	fs.String("metrics-addr", "", "address for /metrics and /health (empty disables)")
	fs.Int("websocket-port", 0, "optional WebSocket transport port (0 disables)")
	fs.String("script-command", "", "lifecycle hook command (empty disables)")
	fs.String("nats-url", "", "NATS URL for user events (empty disables)")
	fs.Bool("debug", false, "enable debug logging")
	fs.Bool("print-stats", false, "log occupancy and traffic tables")
}

func (c *Config) applyFlags(fs *pflag.FlagSet) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("port", func() { c.Server.Port, _ = fs.GetInt("port") })
	set("owner", func() { c.Server.Owner, _ = fs.GetString("owner") })
	set("name", func() { c.Server.Name, _ = fs.GetString("name") })
	set("ip", func() { c.Server.IP, _ = fs.GetString("ip") })
	set("max-players", func() { c.Game.MaxPlayers, _ = fs.GetInt("max-players") })
	set("terrain", func() { c.Game.Terrain, _ = fs.GetString("terrain") })
	set("password", func() { c.Server.Password, _ = fs.GetString("password") })
	set("auth-file", func() { c.Server.AuthFile, _ = fs.GetString("auth-file") })
	set("ban-file", func() { c.Server.BanFile, _ = fs.GetString("ban-file") })
	set("motd-file", func() { c.Server.MOTDFile, _ = fs.GetString("motd-file") })
	set("metrics-addr", func() { c.Server.MetricsAddr, _ = fs.GetString("metrics-addr") })
	set("websocket-port", func() { c.Server.WebSocketPort, _ = fs.GetInt("websocket-port") })
	set("script-command", func() { c.Server.ScriptCommand, _ = fs.GetString("script-command") })
	set("nats-url", func() { c.Server.NATSURL, _ = fs.GetString("nats-url") })
	set("debug", func() {
		if d, _ := fs.GetBool("debug"); d {
			c.Server.Debug = true
			c.Server.LogLevel = "debug"
		}
	})
	set("print-stats", func() { c.Server.PrintStats, _ = fs.GetBool("print-stats") })
}

// Validate checks ranges and enums.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.WebSocketPort < 0 || c.Server.WebSocketPort > 65535 {
		return fmt.Errorf("server.websocket_port must be 0-65535, got %d", c.Server.WebSocketPort)
	}
	if c.Game.MaxPlayers < 1 {
		return fmt.Errorf("game.max_players must be > 0, got %d", c.Game.MaxPlayers)
	}
	if c.Server.Name == "" {
		return fmt.Errorf("server.name is required")
	}
	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of: debug, info, warn, error (got: %s)", c.Server.LogLevel)
	}
	switch c.Server.LogFormat {
	case "json", "pretty":
	default:
		return fmt.Errorf("log_format must be one of: json, pretty (got: %s)", c.Server.LogFormat)
	}
	return nil
}

// ListenAddr is the game-channel bind address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.IP, c.Server.Port)
}

// LogConfig logs the effective configuration at startup.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("addr", c.ListenAddr()).
		Str("name", c.Server.Name).
		Str("owner", c.Server.Owner).
		Int("max_players", c.Game.MaxPlayers).
		Str("terrain", c.Game.Terrain).
		Bool("password_protected", c.Server.Password != "").
		Str("api_endpoint", c.API.Endpoint).
		Str("metrics_addr", c.Server.MetricsAddr).
		Int("websocket_port", c.Server.WebSocketPort).
		Str("log_level", c.Server.LogLevel).
		Str("log_format", c.Server.LogFormat).
		Msg("Configuration loaded")
}
