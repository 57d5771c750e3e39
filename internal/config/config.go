package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment   string
	HTTPPort      string
	DatabaseURL   string
	AdminEmail    string
	AdminPassword string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SigningSecret    string
	SigningAlgorithm string
	TokenIssuer      string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	SessionTTL       time.Duration
	SessionTokenLen  int

	// Consent policy knobs. Adult threshold and registrable bounds are in
	// whole years; enforcement can be switched off for non-production use.
	AdultAgeThreshold int
	MinRegistrableAge int
	MaxRegistrableAge int
	ConsentEnforced   bool

	ProviderVerifyURL string
	ProviderAudience  string
	ProviderTimeout   time.Duration

	HTTPReadTimeout     time.Duration
	HTTPWriteTimeout    time.Duration
	HTTPIdleTimeout     time.Duration
	HTTPShutdownTimeout time.Duration

	ServiceName          string
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	secret := strings.TrimSpace(os.Getenv("SIGNING_SECRET"))
	if secret == "" {
		return Config{}, fmt.Errorf("SIGNING_SECRET is required")
	}

	cfg := Config{
		Environment:   getEnv("APP_ENV", "development"),
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		AdminEmail:    strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword: strings.TrimSpace(os.Getenv("ADMIN_PASSWORD")),
		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),

		SigningSecret:    secret,
		SigningAlgorithm: getEnv("SIGNING_ALGORITHM", "HS256"),
		TokenIssuer:      getEnv("TOKEN_ISSUER", "gymguard-auth"),
		AccessTokenTTL:   getDuration("ACCESS_TOKEN_TTL", 30*time.Minute),
		RefreshTokenTTL:  getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		SessionTTL:       getDuration("SESSION_TTL", 7*24*time.Hour),
		SessionTokenLen:  getInt("SESSION_TOKEN_BYTES", 32),

		AdultAgeThreshold: getInt("ADULT_AGE_THRESHOLD", 18),
		MinRegistrableAge: getInt("MIN_REGISTRABLE_AGE", 13),
		MaxRegistrableAge: getInt("MAX_REGISTRABLE_AGE", 19),
		ConsentEnforced:   getBool("PARENTAL_CONSENT_REQUIRED", true),

		ProviderVerifyURL: os.Getenv("IDP_VERIFY_URL"),
		ProviderAudience:  os.Getenv("IDP_AUDIENCE"),
		ProviderTimeout:   getDuration("IDP_TIMEOUT", 5*time.Second),

		HTTPReadTimeout:     getDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		HTTPWriteTimeout:    getDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		HTTPIdleTimeout:     getDuration("HTTP_IDLE_TIMEOUT", time.Minute),
		HTTPShutdownTimeout: getDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),

		ServiceName:          getEnv("SERVICE_NAME", "gymguard-auth"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SessionTokenLen < 32 {
		cfg.SessionTokenLen = 32
	}
	if cfg.AdultAgeThreshold <= 0 {
		cfg.AdultAgeThreshold = 18
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
