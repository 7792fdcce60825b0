package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Env  string
	Port int

	// storage
	StoreDriver     string
	MongoURL        string
	DBName          string
	DBURL           string
	ForceMemoryMode bool

	// auth
	JWTSecret   string
	JWTTTLHours int

	// seeded nutritionist account
	SeedEmail    string
	SeedPassword string
	SeedName     string

	InviteDefaultTTLHours int
	// base url of the client app, used to build invite links
	PublicURL string

	CORSOrigins []string
	// proxies allowed to set X-Forwarded-For; empty means the socket address wins
	TrustedProxies []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitPerWindow    int
	RateLimitWindowSecs   int
	MaxBodyBytes          int64
	OTELEndpoint          string
	LatestCacheTTLSeconds int
}

func Load() Config {
	// a missing .env is fine, the real environment wins anyway
	_ = godotenv.Load()

	return Config{
		Env:  getEnv("APP_ENV", "dev"),
		Port: getEnvInt("PORT", 8000),

		StoreDriver:     strings.ToLower(getEnv("STORE_DRIVER", DriverMongo)),
		MongoURL:        getEnv("MONGO_URL", "mongodb://127.0.0.1:27017"),
		DBName:          getEnv("DB_NAME", "difitNutri"),
		DBURL:           buildDBURL(),
		ForceMemoryMode: getEnvBool("FORCE_MEMORY_MODE", false),

		JWTSecret:   getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTTTLHours: getEnvInt("JWT_TTL_HOURS", 24*7),

		SeedEmail:    getEnv("SEED_EMAIL", "pro@dinutri.app"),
		SeedPassword: getEnv("SEED_PASSWORD", "password123"),
		SeedName:     getEnv("SEED_NAME", "Pro Nutritionist"),

		InviteDefaultTTLHours: getEnvInt("INVITE_DEFAULT_TTL_HOURS", 24),
		PublicURL:             strings.TrimRight(getEnv("APP_PUBLIC_URL", "http://localhost:3000"), "/"),

		CORSOrigins:    splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001")),
		TrustedProxies: splitCSV(getEnv("TRUSTED_PROXIES", "")),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitPerWindow:    getEnvInt("RATE_LIMIT_PER_WINDOW", 100),
		RateLimitWindowSecs:   getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 15*60),
		MaxBodyBytes:          int64(getEnvInt("MAX_BODY_BYTES", 10<<20)),
		OTELEndpoint:          getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		LatestCacheTTLSeconds: getEnvInt("LATEST_CACHE_TTL_SECONDS", 5),
	}
}

func (c Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLHours) * time.Hour
}

func (c Config) InviteDefaultTTL() time.Duration {
	return time.Duration(c.InviteDefaultTTLHours) * time.Hour
}

func (c Config) LatestCacheTTL() time.Duration {
	return time.Duration(c.LatestCacheTTLSeconds) * time.Second
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSecs) * time.Second
}

func buildDBURL() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "dinutri")
	pass := getEnv("DB_PASSWORD", "dinutri")
	name := getEnv("DB_NAME", "dinutri")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

// WithTimeout bounds a request-scoped call. A nil parent means Background.
func WithTimeout(parent context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %s=%q is not an int, using %d\n", key, v, fallback)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return b
	}
	return fallback
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
