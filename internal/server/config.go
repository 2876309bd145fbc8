// Package server provides configuration helpers that define runtime defaults,
// validation, and security parameters for the chat relay service.
package server

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultRoom is the room a connection belongs to until it joins another one.
const DefaultRoom = "General"

// RateLimitConfig defines the parameters for per-connection event rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the relay configuration, including the shared passkey gate,
// the optional identity allow-list, and the upload collaborator settings.
type Config struct {
	Port           string
	Passkey        string
	AllowedUsers   []string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig
	UploadDir      string
	MaxUploadSize  int64
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
	allowedUsers    map[string]struct{}
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port:    ":8080",
		Passkey: "secure123",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
		UploadDir:     "./uploads",
		MaxUploadSize: 32 << 20,
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}

	if cfg.Passkey == "" {
		cfg.Passkey = "secure123"
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 10
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.UploadDir == "" {
		cfg.UploadDir = "./uploads"
	}

	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = 32 << 20
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	normalizedUsers := normalizeUsers(cfg.AllowedUsers)
	cfg.AllowedUsers = normalizedUsers

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}
	allowedUsers = make(map[string]struct{}, len(normalizedUsers))
	for _, user := range normalizedUsers {
		allowedUsers[user] = struct{}{}
	}

	return cfg
}

func normalizeUsers(users []string) []string {
	normalized := make([]string, 0, len(users))
	for _, user := range users {
		trimmed := strings.TrimSpace(user)
		if trimmed == "" {
			continue
		}
		normalized = append(normalized, trimmed)
	}
	return normalized
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		defaultCfg := defaultConfig()
		sanitizeConfig(defaultCfg)
		return
	}

	sanitized := Config{
		Port:           cfg.Port,
		Passkey:        cfg.Passkey,
		AllowedUsers:   append([]string(nil), cfg.AllowedUsers...),
		AllowedOrigins: append([]string(nil), cfg.AllowedOrigins...),
		MaxMessageSize: cfg.MaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          cfg.RateLimit.Burst,
			RefillInterval: cfg.RateLimit.RefillInterval,
		},
		UploadDir:     cfg.UploadDir,
		MaxUploadSize: cfg.MaxUploadSize,
	}
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedUsers = append([]string(nil), cfg.AllowedUsers...)
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// isUserAllowed reports whether the identity passes the configured allow-list.
// An empty allow-list admits any identity.
func isUserAllowed(username string) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if len(allowedUsers) == 0 {
		return true
	}

	_, exists := allowedUsers[username]
	return exists
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	// Load SERVER_PORT
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	// Load PASSKEY (the shared secret every client must present)
	if passkey := os.Getenv("PASSKEY"); passkey != "" {
		cfg.Passkey = passkey
	}

	// Load ALLOWED_USERS
	if users := os.Getenv("ALLOWED_USERS"); users != "" {
		cfg.AllowedUsers = parseList(users)
	}

	// Load ALLOWED_ORIGINS
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseList(origins)
	}

	// Load MAX_MESSAGE_SIZE
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseInt64Value(maxSize, cfg.MaxMessageSize)
	}

	// Load RATE_LIMIT_BURST
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	// Load RATE_LIMIT_REFILL_INTERVAL
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}

	// Load UPLOAD_DIR
	if dir := os.Getenv("UPLOAD_DIR"); dir != "" {
		cfg.UploadDir = dir
	}

	// Load MAX_UPLOAD_SIZE
	if maxUpload := os.Getenv("MAX_UPLOAD_SIZE"); maxUpload != "" {
		cfg.MaxUploadSize = parseInt64Value(maxUpload, cfg.MaxUploadSize)
	}

	return &cfg
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseInt64Value(value string, defaultValue int64) int64 {
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
