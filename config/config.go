package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	JWT       JWTConfig
	Backend   BackendConfig
	Admin     AdminConfig
	Firestore FirestoreConfig
	Geocode   GeocodeConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port        string
	Host        string
	Environment string
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// BackendConfig points at the upstream civic-complaint REST API.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// AdminConfig covers the credential table and session lifetime of the
// admin console.
type AdminConfig struct {
	CredentialsPath string
	SessionTTL      time.Duration
}

// FirestoreConfig backs the durable admin session store and audit log.
// Disabled deployments fall back to the in-memory store.
type FirestoreConfig struct {
	ProjectID       string
	CredentialsPath string
	Disabled        bool
}

type GeocodeConfig struct {
	BaseURL string
	Timeout time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Host:        getEnv("HOST", "0.0.0.0"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "dev-secret-key"),
			Expiration: parseDuration(getEnv("JWT_EXPIRATION", "24h"), 24*time.Hour),
		},
		Backend: BackendConfig{
			BaseURL: getEnv("BACKEND_BASE_URL", "http://localhost:8000/api"),
			Timeout: parseDuration(getEnv("BACKEND_TIMEOUT", "15"), 15*time.Second),
		},
		Admin: AdminConfig{
			CredentialsPath: getEnv("ADMIN_CREDENTIALS_PATH", "./admin_credentials.json"),
			SessionTTL:      parseDuration(getEnv("ADMIN_SESSION_TTL", "12h"), 12*time.Hour),
		},
		Firestore: FirestoreConfig{
			ProjectID:       getEnv("FIRESTORE_PROJECT_ID", ""),
			CredentialsPath: getEnv("FIRESTORE_CREDENTIALS_PATH", "./serviceAccountKey.json"),
			Disabled:        getEnv("FIRESTORE_DISABLED", "") == "true",
		},
		Geocode: GeocodeConfig{
			BaseURL: getEnv("GEOCODE_BASE_URL", "https://nominatim.openstreetmap.org"),
			Timeout: parseDuration(getEnv("GEOCODE_TIMEOUT", "10"), 10*time.Second),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseStringSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:5174")),
		},
		RateLimit: RateLimitConfig{
			Requests: parseInt(getEnv("RATE_LIMIT_REQUESTS", "100"), 100),
			Window:   parseDuration(getEnv("RATE_LIMIT_WINDOW", "60"), 60*time.Second),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, defaultValue int) int {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return defaultValue
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	// Handle simple formats like "30m", "12h", "60"
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	// If it's just a number, assume seconds
	if i, err := strconv.Atoi(s); err == nil {
		return time.Duration(i) * time.Second
	}
	return defaultValue
}

func parseStringSlice(s string) []string {
	if s == "" {
		return []string{}
	}
	result := []string{}
	for i := 0; i < len(s); {
		end := i
		for end < len(s) && s[end] != ',' {
			end++
		}
		if i < end {
			result = append(result, s[i:end])
		}
		i = end + 1
	}
	return result
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

func (c *Config) Validate() {
	if c.JWT.Secret == "dev-secret-key" && c.IsProduction() {
		log.Fatal("JWT_SECRET must be set in production")
	}
	if _, err := os.Stat(c.Admin.CredentialsPath); os.IsNotExist(err) {
		log.Fatalf("Admin credentials file not found: %s", c.Admin.CredentialsPath)
	}
	if !c.Firestore.Disabled && c.Firestore.ProjectID == "" {
		log.Fatal("FIRESTORE_PROJECT_ID must be set (or set FIRESTORE_DISABLED=true)")
	}
}
