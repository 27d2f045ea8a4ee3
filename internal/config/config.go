package config

import (
	"os"
	"strconv"
	"time"

	"checkers_server/internal/logger"

	"github.com/joho/godotenv"
)

// Defaults. Port and bind come from the CLI contract; the rest match the
// protocol's documented tunables.
const (
	DefaultPort       = 12345
	DefaultBind       = "0.0.0.0"
	DefaultMaxClients = 100
	DefaultMaxRooms   = 50

	// A single violation disconnects. Raising this keeps the connection
	// alive until the counter reaches the threshold.
	DefaultMaxViolations = 1

	DefaultPingInterval   = 5 * time.Second
	DefaultPongTimeout    = 3 * time.Second
	DefaultMaxMissedPongs = 3
	DefaultLongDisconnect = 80 * time.Second
)

type Config struct {
	Port int
	Bind string

	MaxClients    int
	MaxRooms      int
	MaxViolations int

	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMissedPongs int
	LongDisconnect time.Duration

	// MetricsAddr enables the ops HTTP endpoint when non-empty.
	MetricsAddr string

	LogLevel string
	LogJSON  bool
}

// Load builds the configuration from the environment. Every key is
// optional; unparsable values fall back to the default.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           DefaultPort,
		Bind:           DefaultBind,
		MaxClients:     DefaultMaxClients,
		MaxRooms:       DefaultMaxRooms,
		MaxViolations:  DefaultMaxViolations,
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
		LongDisconnect: DefaultLongDisconnect,
		MetricsAddr:    os.Getenv("CHECKERS_METRICS_ADDR"),
		LogLevel:       "info",
		LogJSON:        os.Getenv("LOG_JSON") == "true",
	}

	if v := os.Getenv("CHECKERS_PORT"); v != "" {
		cfg.Port = ParsePort(v)
	}

	if v := os.Getenv("CHECKERS_BIND"); v != "" {
		cfg.Bind = v
	}

	if v := os.Getenv("CHECKERS_MAX_CLIENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxClients = n
		}
	}

	if v := os.Getenv("CHECKERS_MAX_ROOMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxRooms = n
		}
	}

	if v := os.Getenv("CHECKERS_MAX_VIOLATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxViolations = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}

// ParsePort parses a port argument. Anything outside 1-65535 reverts to the
// default port rather than failing startup.
func ParsePort(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		logger.Warn("invalid port, using default", "given", s, "default", DefaultPort)
		return DefaultPort
	}
	return n
}
