package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/chatgate/internal/gateway/service"
	"github.com/aussiebroadwan/chatgate/pkg/httpx"
)

type Config struct {
	Issuer string // Required: issuer claim for minted tokens

	UpstreamBaseURL string  // Required: base URL of the chat completion provider
	UpstreamAPIKey  string  // Optional: credential forwarded to the provider
	UpstreamRPS     float64 // Optional: outbound requests per second cap (default: 20)
	UpstreamBurst   int     // Optional: outbound burst allowance (default: 10)

	StaticSecrets []service.StaticSecret // Optional: pre-shared gateway secrets

	SigningKeyPEM string // Optional: PKCS8 Ed25519 private key; ephemeral key when empty
	SigningKeyKID string // Optional: key id for the signing key (default: gateway-1)

	VerificationURI string // Optional: page approvers visit to enter a user code

	GrantTTL     time.Duration // Optional: device grant lifetime (default: 10m)
	TokenTTL     time.Duration // Optional: access token lifetime (default: 1h)
	PollInterval time.Duration // Optional: device poll interval (default: 5s)

	CreditsPerUnit       int64 // Optional: credits charged per usage unit (default: 1)
	MinBalance           int64 // Optional: pre-flight balance floor (default: 0)
	FallbackBytesPerUnit int64 // Optional: bytes per unit for estimated billing (default: 4)

	RedisAddr string // Optional: shared revocation tier; local-only when empty

	DatabaseFile         string        // Optional: path to SQLite database file (default: ./gateway.db)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 5m)
	SecureCookies        bool          // Set the Secure flag on session cookies (default: true outside dev)
}

func LoadConfig() (Config, error) {
	cfg := Config{
		Issuer:          getEnvOrDefault("GATEWAY_ISSUER", "chatgate"),
		UpstreamBaseURL: os.Getenv("GATEWAY_UPSTREAM_URL"),
		UpstreamAPIKey:  os.Getenv("GATEWAY_UPSTREAM_API_KEY"),
		UpstreamRPS:     getEnvFloatOrDefault("GATEWAY_UPSTREAM_RPS", 20),
		UpstreamBurst:   getEnvIntOrDefault("GATEWAY_UPSTREAM_BURST", 10),

		SigningKeyPEM: os.Getenv("GATEWAY_SIGNING_KEY_PEM"),
		SigningKeyKID: getEnvOrDefault("GATEWAY_SIGNING_KID", "gateway-1"),

		GrantTTL:     getEnvDurationOrDefault("GATEWAY_GRANT_TTL", service.DefaultGrantTTL),
		TokenTTL:     getEnvDurationOrDefault("GATEWAY_TOKEN_TTL", time.Hour),
		PollInterval: getEnvDurationOrDefault("GATEWAY_POLL_INTERVAL", service.DefaultPollInterval),

		CreditsPerUnit:       getEnvInt64OrDefault("GATEWAY_CREDITS_PER_UNIT", service.DefaultCreditsPerUnit),
		MinBalance:           getEnvInt64OrDefault("GATEWAY_MIN_BALANCE", 0),
		FallbackBytesPerUnit: getEnvInt64OrDefault("GATEWAY_FALLBACK_BYTES_PER_UNIT", service.DefaultFallbackBytesPerUnit),

		RedisAddr: os.Getenv("GATEWAY_REVOKE_REDIS_ADDR"),

		DatabaseFile:         getEnvOrDefault("GATEWAY_DATABASE_FILE", "gateway.db"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 5*time.Minute),
	}

	cfg.SecureCookies = cfg.Env != "dev"

	if cfg.VerificationURI == "" {
		cfg.VerificationURI = getEnvOrDefault("GATEWAY_VERIFICATION_URI",
			fmt.Sprintf("http://localhost:%d/activate", cfg.Port))
	}

	if cfg.UpstreamBaseURL == "" {
		return cfg, fmt.Errorf("GATEWAY_UPSTREAM_URL is required")
	}

	secrets, err := ParseStaticSecrets(os.Getenv("GATEWAY_STATIC_SECRETS"))
	if err != nil {
		return cfg, err
	}
	cfg.StaticSecrets = secrets

	return cfg, nil
}

// ParseStaticSecrets parses the GATEWAY_STATIC_SECRETS environment value.
//
// Format is semicolon-separated entries of "name=value=scope1 scope2". The
// value is either the plaintext secret or an argon2id PHC hash ("$argon2id$"
// prefix), which is detected automatically.
//
//	GATEWAY_STATIC_SECRETS="ci=gw-tok=llm:chat;ops=$argon2id$...=llm:chat usage:read"
func ParseStaticSecrets(raw string) ([]service.StaticSecret, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var secrets []service.StaticSecret
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		// Argon2 PHC hashes contain "=", so the value is everything between
		// the first separator (after the name) and the last one (before the
		// scopes).
		first := strings.Index(entry, "=")
		last := strings.LastIndex(entry, "=")
		if first < 0 || first == last {
			return nil, fmt.Errorf("static secret entry %q: want name=value=scopes", entry)
		}

		name := strings.TrimSpace(entry[:first])
		value := strings.TrimSpace(entry[first+1 : last])
		scopes := httpx.ParseSpaceDelimitedFields(entry[last+1:])
		if name == "" || value == "" || len(scopes) == 0 {
			return nil, fmt.Errorf("static secret entry %q: empty name, value or scopes", entry)
		}

		secrets = append(secrets, service.StaticSecret{
			Name:   name,
			Value:  value,
			Hashed: strings.HasPrefix(value, "$argon2id$"),
			Scopes: scopes,
		})
	}
	return secrets, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
		return floatValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
