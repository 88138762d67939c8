package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BriceLerendu/TuyaRealtimeVB/internal/events"
)

const (
	DefaultEndpoint       = "wss://mqe.tuyaeu.com:8285/"
	DefaultForwardURL     = "http://localhost:5000/tuya-event"
	DefaultForwardTimeout = 1 * time.Second
	DefaultForwardSubject = events.SubjectDeviceEvent
)

var ErrMissingCredentials = errors.New("TUYA_ACCESS_ID and TUYA_ACCESS_KEY are required")

type Config struct {
	Env string
	Log string

	// Tuya cloud credentials, from the cloud project's authorization page.
	AccessID  string
	AccessKey string

	// Websocket endpoint of the regional message queue, with trailing slash.
	Endpoint string
	// "prod" or "test"; mapped to the Pulsar topic by the pulsar package.
	Topic string

	ForwardURL     string
	ForwardTimeout time.Duration
	// Only used when ForwardURL is a nats:// URL.
	ForwardSubject string

	// Address of the status server (/health, /ready, /metrics). Empty disables it.
	StatusAddr string
}

func Load() Config {
	topic := getEnv("TUYA_TOPIC", "")
	if topic == "" {
		topic = getEnv("TUYA_ENV", "prod")
	}

	return Config{
		Env: getEnv("APP_ENV", "dev"),
		Log: getEnv("LOG_LEVEL", "info"),

		AccessID:  getEnv("TUYA_ACCESS_ID", ""),
		AccessKey: getEnv("TUYA_ACCESS_KEY", ""),

		Endpoint: getEnv("TUYA_MQ_ENDPOINT", DefaultEndpoint),
		Topic:    topic,

		ForwardURL:     getEnv("FORWARD_URL", DefaultForwardURL),
		ForwardTimeout: getEnvDuration("FORWARD_TIMEOUT", DefaultForwardTimeout),
		ForwardSubject: getEnv("FORWARD_SUBJECT", DefaultForwardSubject),

		StatusAddr: getEnv("STATUS_ADDR", ""),
	}
}

// Validate checks what the bridge cannot run without. It does not dial anything.
func (c Config) Validate() error {
	if strings.TrimSpace(c.AccessID) == "" || strings.TrimSpace(c.AccessKey) == "" {
		return ErrMissingCredentials
	}
	if len(c.AccessKey) < 24 {
		return fmt.Errorf("TUYA_ACCESS_KEY is too short (%d chars)", len(c.AccessKey))
	}

	ep, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("parse TUYA_MQ_ENDPOINT: %w", err)
	}
	if ep.Scheme != "ws" && ep.Scheme != "wss" {
		return fmt.Errorf("TUYA_MQ_ENDPOINT must be a ws:// or wss:// URL, got %q", c.Endpoint)
	}

	target, err := url.Parse(c.ForwardURL)
	if err != nil {
		return fmt.Errorf("parse FORWARD_URL: %w", err)
	}
	switch target.Scheme {
	case "http", "https":
	case "nats":
		if strings.TrimSpace(c.ForwardSubject) == "" {
			return fmt.Errorf("FORWARD_SUBJECT is required for a nats:// FORWARD_URL")
		}
	default:
		return fmt.Errorf("FORWARD_URL must be http(s):// or nats://, got %q", c.ForwardURL)
	}

	if c.ForwardTimeout <= 0 {
		return fmt.Errorf("FORWARD_TIMEOUT must be positive")
	}
	return nil
}

func (c Config) LogLevel() slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(c.Log)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		// Allow numeric levels for easy tweaking (-4 debug, 0 info, 4 warn, 8 error).
		if n, err := strconv.Atoi(c.Log); err == nil {
			return slog.Level(n)
		}
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// getEnvDuration accepts Go durations ("1s", "750ms") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	return parseDuration(os.Getenv(key), fallback)
}

func parseDuration(v string, fallback time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return fallback
}
