package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

var ErrMissingRequiredValue = errors.New("missing required value")
var ErrInvalidValue = errors.New("invalid value")

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

type StoreBackend string

const (
	StoreBackendMemory   StoreBackend = "memory"
	StoreBackendPostgres StoreBackend = "postgres"
	StoreBackendRedis    StoreBackend = "redis"
	StoreBackendPebble   StoreBackend = "pebble"
)

const DEFAULT_PORT = "8080"
const DEVELOPMENT_UPSTREAM_BASE_URL = "http://localhost:5173"

type Config struct {
	port                   string
	upstreamBaseURL        string
	upstreamToken          string
	sentryDSN              string
	storeBackend           StoreBackend
	cloudSQLUnixSocketPath string
	dBPassword             string
	dBUsername             string
	redisAddr              string
	pebblePath             string
	env                    environment
}

func (c *Config) Port() string {
	return c.port
}

func (c *Config) UpstreamBaseURL() string {
	return c.upstreamBaseURL
}

func (c *Config) UpstreamToken() string {
	return c.upstreamToken
}

func (c *Config) SentryDSN() string {
	return c.sentryDSN
}

func (c *Config) StoreBackend() StoreBackend {
	return c.storeBackend
}

func (c *Config) CloudSQLUnixSocketPath() string {
	return c.cloudSQLUnixSocketPath
}

func (c *Config) DBPassword() string {
	return c.dBPassword
}

func (c *Config) DBUsername() string {
	return c.dBUsername
}

func (c *Config) RedisAddr() string {
	return c.redisAddr
}

func (c *Config) PebblePath() string {
	return c.pebblePath
}

func (c *Config) IsProduction() bool {
	return c.env == production
}

func (c *Config) IsStaging() bool {
	return c.env == staging
}

func (c *Config) IsDevelopment() bool {
	return c.env == development
}

// Return a string representation suitable for logging etc
func (c *Config) NonSensitiveString() string {
	return fmt.Sprintf(
		"Config{env: %s, port: %s, upstream: %s, store: %s, ...}",
		string(c.env),
		c.port,
		c.upstreamBaseURL,
		string(c.storeBackend),
	)
}

func ConfigFromEnv() (Config, error) {
	missingKey := func(key string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingRequiredValue, key)
	}
	invalidValue := func(key, value string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s (%s)", ErrInvalidValue, key, value)
	}

	var env environment
	rawEnv, ok := os.LookupEnv("DECKCACHE_ENVIRONMENT")
	if !ok {
		return missingKey("DECKCACHE_ENVIRONMENT")
	}
	switch rawEnv {
	case "production":
		env = production
	case "staging":
		env = staging
	case "development":
		env = development
	default:
		return invalidValue("DECKCACHE_ENVIRONMENT", rawEnv)
	}
	if string(env) == "" {
		panic("logic error: env is empty")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = DEFAULT_PORT
	}
	if portNumber, err := strconv.Atoi(port); err != nil || portNumber <= 0 || portNumber > 65535 {
		return invalidValue("PORT", port)
	}

	upstreamBaseURL := strings.TrimSuffix(os.Getenv("UPSTREAM_BASE_URL"), "/")
	if upstreamBaseURL == "" {
		if env != development {
			return missingKey("UPSTREAM_BASE_URL")
		}
		upstreamBaseURL = DEVELOPMENT_UPSTREAM_BASE_URL
	}
	parsed, err := url.Parse(upstreamBaseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return invalidValue("UPSTREAM_BASE_URL", upstreamBaseURL)
	}

	sentryDSN := os.Getenv("SENTRY_DSN")
	if sentryDSN == "" && env != development {
		return missingKey("SENTRY_DSN")
	}

	var storeBackend StoreBackend
	rawStoreBackend := os.Getenv("STORE_BACKEND")
	switch rawStoreBackend {
	case "":
		if env != development {
			return missingKey("STORE_BACKEND")
		}
		storeBackend = StoreBackendMemory
	case string(StoreBackendMemory), string(StoreBackendPostgres), string(StoreBackendRedis), string(StoreBackendPebble):
		storeBackend = StoreBackend(rawStoreBackend)
	default:
		return invalidValue("STORE_BACKEND", rawStoreBackend)
	}

	cloudSQLUnixSocketPath := os.Getenv("CLOUDSQL_UNIX_SOCKET")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbUsername := os.Getenv("DB_USERNAME")
	redisAddr := os.Getenv("REDIS_ADDR")
	pebblePath := os.Getenv("PEBBLE_PATH")

	switch storeBackend {
	case StoreBackendPostgres:
		if env != development {
			if cloudSQLUnixSocketPath == "" {
				return missingKey("CLOUDSQL_UNIX_SOCKET")
			}
			if dbUsername == "" {
				return missingKey("DB_USERNAME")
			}
			if dbPassword == "" {
				return missingKey("DB_PASSWORD")
			}
		}
	case StoreBackendRedis:
		if redisAddr == "" {
			return missingKey("REDIS_ADDR")
		}
	case StoreBackendPebble:
		if pebblePath == "" {
			return missingKey("PEBBLE_PATH")
		}
	}

	return Config{
		port:                   port,
		upstreamBaseURL:        upstreamBaseURL,
		upstreamToken:          os.Getenv("UPSTREAM_TOKEN"),
		sentryDSN:              sentryDSN,
		storeBackend:           storeBackend,
		cloudSQLUnixSocketPath: cloudSQLUnixSocketPath,
		dBPassword:             dbPassword,
		dBUsername:             dbUsername,
		redisAddr:              redisAddr,
		pebblePath:             pebblePath,
		env:                    env,
	}, nil
}
