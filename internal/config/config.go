package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var ErrMissingRequiredValue = errors.New("missing required value")
var ErrInvalidValue = errors.New("invalid value")

const (
	defaultPort           = "8123"
	defaultMaxImageBytes  = 10 * 1024 * 1024
	defaultMaxImagePixels = 40_000_000
)

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

type Config struct {
	sentryDSN         string
	port              string
	allowedImageHosts []string
	allowedOrigins    []string
	maxImageBytes     int64
	maxImagePixels    int
	enableTelemetry   bool
	env               environment
}

func (c *Config) SentryDSN() string {
	return c.sentryDSN
}

func (c *Config) Port() string {
	return c.port
}

// AllowedImageHosts returns the host suffixes images may be fetched from.
// Empty means any host.
func (c *Config) AllowedImageHosts() []string {
	return c.allowedImageHosts
}

// AllowedOrigins returns the domain suffixes browsers may call the API from
func (c *Config) AllowedOrigins() []string {
	return c.allowedOrigins
}

func (c *Config) MaxImageBytes() int64 {
	return c.maxImageBytes
}

func (c *Config) MaxImagePixels() int {
	return c.maxImagePixels
}

func (c *Config) EnableTelemetry() bool {
	return c.enableTelemetry
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
		"Config{env: %s, port: %s, allowedImageHosts: %v, allowedOrigins: %v, maxImageBytes: %d, maxImagePixels: %d, enableTelemetry: %t, ...}",
		string(c.env), c.port, c.allowedImageHosts, c.allowedOrigins, c.maxImageBytes, c.maxImagePixels, c.enableTelemetry,
	)
}

func parsePositiveInt(key string, defaultValue int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%w: %s (%s)", ErrInvalidValue, key, raw)
	}
	return value, nil
}

func parseHostList(raw string) []string {
	hosts := []string{}
	for host := range strings.SplitSeq(raw, ",") {
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" {
			continue
		}
		hosts = append(hosts, host)
	}
	return hosts
}

func ConfigFromEnv() (Config, error) {
	missingKey := func(key string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingRequiredValue, key)
	}

	var env environment
	rawEnv, ok := os.LookupEnv("FETCHLIGHT_ENVIRONMENT")
	if !ok {
		return missingKey("FETCHLIGHT_ENVIRONMENT")
	}
	switch rawEnv {
	case "production":
		env = production
	case "staging":
		env = staging
	case "development":
		env = development
	default:
		return Config{}, fmt.Errorf("%w: FETCHLIGHT_ENVIRONMENT (%s)", ErrInvalidValue, rawEnv)
	}
	if string(env) == "" {
		panic("logic error: env is empty")
	}

	sentryDSN := os.Getenv("SENTRY_DSN")
	allowedImageHosts := parseHostList(os.Getenv("FETCHLIGHT_ALLOWED_IMAGE_HOSTS"))

	allowedOrigins := parseHostList(os.Getenv("FETCHLIGHT_ALLOWED_ORIGINS"))
	for _, origin := range allowedOrigins {
		if strings.HasPrefix(origin, ".") || strings.Contains(origin, "://") {
			return Config{}, fmt.Errorf("%w: FETCHLIGHT_ALLOWED_ORIGINS (%s)", ErrInvalidValue, origin)
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return Config{}, fmt.Errorf("%w: PORT (%s)", ErrInvalidValue, port)
	}

	maxImageBytes, err := parsePositiveInt("FETCHLIGHT_MAX_IMAGE_BYTES", defaultMaxImageBytes)
	if err != nil {
		return Config{}, err
	}

	maxImagePixels, err := parsePositiveInt("FETCHLIGHT_MAX_IMAGE_PIXELS", defaultMaxImagePixels)
	if err != nil {
		return Config{}, err
	}

	enableTelemetry := false
	if rawEnableTelemetry := os.Getenv("FETCHLIGHT_ENABLE_TELEMETRY"); rawEnableTelemetry != "" {
		enableTelemetry, err = strconv.ParseBool(rawEnableTelemetry)
		if err != nil {
			return Config{}, fmt.Errorf("%w: FETCHLIGHT_ENABLE_TELEMETRY (%s)", ErrInvalidValue, rawEnableTelemetry)
		}
	}

	if env == production || env == staging {
		if sentryDSN == "" {
			return missingKey("SENTRY_DSN")
		}
		if len(allowedImageHosts) == 0 {
			return missingKey("FETCHLIGHT_ALLOWED_IMAGE_HOSTS")
		}
	}

	return Config{
		sentryDSN:         sentryDSN,
		port:              port,
		allowedImageHosts: allowedImageHosts,
		allowedOrigins:    allowedOrigins,
		maxImageBytes:     maxImageBytes,
		maxImagePixels:    int(maxImagePixels),
		enableTelemetry:   enableTelemetry,
		env:               env,
	}, nil
}
