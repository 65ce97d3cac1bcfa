package shared

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const (
	SessionMemory   = "memory"
	SessionDatabase = "database"
	SessionRedis    = "redis"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Session     SessionConfig     `toml:"session"`
	Redis       RedisConfig       `toml:"redis"`
	Sync        SyncConfig        `toml:"sync"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
//
// AuthURL, TokenURL and APIURL are optional overrides of the public Spotify endpoints.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AuthURL      string `toml:"auth_url"`
	TokenURL     string `toml:"token_url"`
	APIURL       string `toml:"api_url"`
}

// DatabaseConfig contains database connection settings.
//
// Path is used by the sqlite3 driver, DSN by postgres.
type DatabaseConfig struct {
	Driver       string `toml:"driver"`
	Path         string `toml:"path"`
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Timezone string `toml:"timezone"`
}

// SessionConfig selects and tunes the server-side session store.
type SessionConfig struct {
	Backend    string `toml:"backend"`
	CookieName string `toml:"cookie_name"`
	TTL        string `toml:"ttl"`
	Capacity   int    `toml:"capacity"`
	Secure     bool   `toml:"secure"`
}

// RedisConfig contains connection settings for the redis session backend.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

// SyncConfig tunes how the catalog is fetched from Spotify.
type SyncConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Workers           int     `toml:"workers"`
	PageSize          int     `toml:"page_size"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Addr returns the host:port pair the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Location loads the configured time zone, falling back to UTC when unset.
func (s ServerConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// Duration parses the session TTL. An empty or invalid value yields 30 days.
func (s SessionConfig) Duration() time.Duration {
	d, err := time.ParseDuration(s.TTL)
	if err != nil || d <= 0 {
		return 30 * 24 * time.Hour
	}
	return d
}

// DataSource returns the driver-specific connection string.
func (d DatabaseConfig) DataSource() string {
	if d.Driver == DriverPostgres {
		return d.DSN
	}
	return d.Path
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the defaults from the embedded example config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes the config as TOML and writes it to path, replacing any existing file.
func SaveConfig(path string, config *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables on top of the file configuration.
//
// POSTGRES_* variables build a postgres DSN (and select the postgres driver) when DATABASE_DSN is unset.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set("CLIENT_ID", &c.Credentials.Spotify.ClientID)
	set("CLIENT_SECRET", &c.Credentials.Spotify.ClientSecret)
	set("REDIRECT_URI", &c.Credentials.Spotify.RedirectURI)
	set("DATABASE_DRIVER", &c.Database.Driver)
	set("DATABASE_PATH", &c.Database.Path)
	set("DATABASE_DSN", &c.Database.DSN)
	set("SESSION_BACKEND", &c.Session.Backend)
	set("REDIS_ADDR", &c.Redis.Addr)
	set("REDIS_PASSWORD", &c.Redis.Password)
	set("LOG_LEVEL", &c.Log.Level)
	set("TZ_NAME", &c.Server.Timezone)

	if v, ok := lookup("SERVER_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}

	if _, ok := lookup("DATABASE_DSN"); !ok {
		if user, ok := lookup("POSTGRES_USER"); ok && user != "" {
			password, _ := lookup("POSTGRES_PASSWORD")
			host, _ := lookup("POSTGRES_HOST")
			port, _ := lookup("POSTGRES_PORT")
			name, _ := lookup("POSTGRES_DB")
			c.Database.Driver = DriverPostgres
			c.Database.DSN = PostgresDSN(user, password, host, port, name)
		}
	}
}

// PostgresDSN builds a postgres connection URL. Empty host and port default to localhost:5432.
func PostgresDSN(user, password, host, port, name string) string {
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     host + ":" + port,
		Path:     "/" + name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.Database.Driver)
	}

	if c.Database.DataSource() == "" {
		return fmt.Errorf("%w: database %s has no data source", ErrInvalidConfig, c.Database.Driver)
	}

	switch c.Session.Backend {
	case SessionMemory, SessionDatabase, SessionRedis:
	default:
		return fmt.Errorf("%w: unknown session backend %q", ErrInvalidConfig, c.Session.Backend)
	}

	if _, err := c.Server.Location(); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Server.Timezone, err)
	}

	return nil
}
