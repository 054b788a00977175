package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	PublicBaseURL string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	KeycloakIssuer        string
	KeycloakClientID      string
	KeycloakRedirectURL   string
	KeycloakPublicBaseURL string

	RedisAddr     string
	RedisPassword string

	DatabaseDSN string

	CookieHashKey  string
	CookieBlockKey string

	StorageRoot      string
	StoragePublicURL string

	RequireEmailConfirmation bool

	AuthSessionTTL    time.Duration
	AuthRefreshWindow time.Duration
	BootstrapTimeout  time.Duration
	GuardWaitTimeout  time.Duration
	ClientIdleTTL     time.Duration

	LogLevel string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	publicBaseURL := strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/")

	cfg := Config{

		AppPort:       getenv("APP_PORT", "8080"),
		PublicBaseURL: publicBaseURL,

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),

		KeycloakIssuer:        os.Getenv("KEYCLOAK_ISSUER"),
		KeycloakClientID:      os.Getenv("KEYCLOAK_CLIENT_ID"),
		KeycloakRedirectURL:   os.Getenv("KEYCLOAK_REDIRECT_URL"),
		KeycloakPublicBaseURL: os.Getenv("KEYCLOAK_PUBLIC_BASE_URL"),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		DatabaseDSN: os.Getenv("DATABASE_DSN"),

		CookieHashKey:  os.Getenv("COOKIE_HASH_KEY"),
		CookieBlockKey: os.Getenv("COOKIE_BLOCK_KEY"),

		StorageRoot:      getenv("STORAGE_ROOT", "./storage"),
		StoragePublicURL: strings.TrimRight(getenv("STORAGE_PUBLIC_URL", publicBaseURL+"/storage"), "/"),

		RequireEmailConfirmation: getbool("REQUIRE_EMAIL_CONFIRMATION", true),

		AuthSessionTTL:    getduration("AUTH_SESSION_TTL", 24*time.Hour),
		AuthRefreshWindow: getduration("AUTH_REFRESH_WINDOW", time.Hour),
		BootstrapTimeout:  getduration("BOOTSTRAP_TIMEOUT", 5*time.Second),
		GuardWaitTimeout:  getduration("GUARD_WAIT_TIMEOUT", 10*time.Second),
		ClientIdleTTL:     getduration("CLIENT_IDLE_TTL", 30*time.Minute),

		LogLevel: getenv("LOG_LEVEL", "info"),
	}

	return cfg

}

// Validate reports the first setting the server cannot start without.
func (c Config) Validate() error {
	if c.DatabaseDSN == "" {
		return errors.New("config: DATABASE_DSN is required")
	}
	if c.CookieBlockKey != "" && c.CookieHashKey == "" {
		return errors.New("config: COOKIE_BLOCK_KEY needs COOKIE_HASH_KEY")
	}
	if !strings.HasPrefix(c.PublicBaseURL, "http://") && !strings.HasPrefix(c.PublicBaseURL, "https://") {
		return fmt.Errorf("config: PUBLIC_BASE_URL must be an http(s) URL, got %q", c.PublicBaseURL)
	}
	if c.AuthRefreshWindow >= c.AuthSessionTTL {
		return errors.New("config: AUTH_REFRESH_WINDOW must be shorter than AUTH_SESSION_TTL")
	}
	return nil
}

// GoogleEnabled reports whether every Google OAuth key is set.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

// KeycloakEnabled reports whether every Keycloak key is set.
func (c Config) KeycloakEnabled() bool {
	return c.KeycloakIssuer != "" && c.KeycloakClientID != "" &&
		c.KeycloakRedirectURL != "" && c.KeycloakPublicBaseURL != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getduration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
