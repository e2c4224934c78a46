package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	TransportAuto      = "auto"
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"

	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

type Config struct {
	// APIBaseURL is the backend root, without the /api suffix.
	APIBaseURL string `mapstructure:"API_BASE_URL"`
	// RealtimeURL is the websocket endpoint; derived from APIBaseURL when empty.
	RealtimeURL       string        `mapstructure:"REALTIME_URL"`
	RealtimeTransport string        `mapstructure:"REALTIME_TRANSPORT"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ReconnectAttempts int           `mapstructure:"RECONNECT_ATTEMPTS"`
	ReconnectDelay    time.Duration `mapstructure:"RECONNECT_DELAY"`
	ReconnectMaxDelay time.Duration `mapstructure:"RECONNECT_MAX_DELAY"`
	StorageDriver     string        `mapstructure:"STORAGE_DRIVER"`
	StorageDSN        string        `mapstructure:"STORAGE_DSN"`
	Debug             bool          `mapstructure:"DEBUG"`

	// Dev backend only.
	DevServerAddr     string        `mapstructure:"DEV_SERVER_ADDR"`
	DevJWTSecret      string        `mapstructure:"DEV_JWT_SECRET"`
	DevTokenTTL       time.Duration `mapstructure:"DEV_TOKEN_TTL"`
	DevDatabaseDriver string        `mapstructure:"DEV_DATABASE_DRIVER"`
	DevDatabaseDSN    string        `mapstructure:"DEV_DATABASE_DSN"`
}

// Load reads .env (if present) and the environment. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("API_BASE_URL", "http://localhost:5000")
	v.SetDefault("REALTIME_URL", "")
	v.SetDefault("REALTIME_TRANSPORT", TransportAuto)
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("RECONNECT_ATTEMPTS", 5)
	v.SetDefault("RECONNECT_DELAY", "1s")
	v.SetDefault("RECONNECT_MAX_DELAY", "5s")
	v.SetDefault("STORAGE_DRIVER", DriverSQLite)
	v.SetDefault("STORAGE_DSN", "")
	v.SetDefault("DEBUG", false)
	v.SetDefault("DEV_SERVER_ADDR", ":5000")
	v.SetDefault("DEV_JWT_SECRET", "dev-secret-change-me")
	v.SetDefault("DEV_TOKEN_TTL", "24h")
	v.SetDefault("DEV_DATABASE_DRIVER", DriverSQLite)
	v.SetDefault("DEV_DATABASE_DSN", ":memory:")
}

func (c *Config) normalize() error {
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	base, err := url.Parse(c.APIBaseURL)
	if err != nil || base.Host == "" {
		return errors.New("config: API_BASE_URL must be an absolute URL")
	}

	if c.RealtimeURL == "" {
		c.RealtimeURL = DeriveRealtimeURL(base)
	}

	switch c.RealtimeTransport {
	case TransportAuto, TransportWebSocket, TransportPolling:
	default:
		return fmt.Errorf("config: REALTIME_TRANSPORT must be one of auto, websocket, polling (got %q)", c.RealtimeTransport)
	}

	if c.ReconnectAttempts < 0 {
		return errors.New("config: RECONNECT_ATTEMPTS must not be negative")
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = time.Second
	}
	if c.ReconnectMaxDelay < c.ReconnectDelay {
		c.ReconnectMaxDelay = c.ReconnectDelay
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}

	switch c.StorageDriver {
	case DriverSQLite:
		if c.StorageDSN == "" {
			c.StorageDSN = DefaultSQLitePath()
		}
	case DriverMySQL, DriverPostgres:
		if c.StorageDSN == "" {
			return fmt.Errorf("config: STORAGE_DSN is required for driver %s", c.StorageDriver)
		}
	default:
		return fmt.Errorf("config: unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}

	if c.DevTokenTTL <= 0 {
		c.DevTokenTTL = 24 * time.Hour
	}

	return nil
}

// DeriveRealtimeURL maps http(s)://host/... to ws(s)://host/realtime.
func DeriveRealtimeURL(base *url.URL) string {
	u := *base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime"
	u.RawQuery = ""
	return u.String()
}

// DefaultSQLitePath is where the session database lives when no DSN is configured.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".taskboard", "session.db")
	}
	return filepath.Join(home, ".taskboard", "session.db")
}
