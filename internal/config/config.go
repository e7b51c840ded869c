package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth0     Auth0Config
	RateLimit RateLimitConfig
	Cookie    CookieConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	BaseURL        string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// Auth0Config holds identity provider settings. Management credentials are optional:
// without them the admin gate falls back to token-derived permissions.
type Auth0Config struct {
	IssuerBaseURL          string
	Audience               string
	ClientID               string
	ClientSecret           string
	Scope                  string
	AdminPermission        string
	ManagementClientID     string
	ManagementClientSecret string
	JWKSCacheTTL           time.Duration
	UserInfoCacheTTL       time.Duration
	UserInfoCacheSize      int
	PermissionCacheTTL     time.Duration
	HTTPTimeout            time.Duration
}

// HasManagementCredentials reports whether live permission checks are possible
func (c *Auth0Config) HasManagementCredentials() bool {
	return c.ManagementClientID != "" && c.ManagementClientSecret != ""
}

// Issuer returns the issuer base URL normalized with a trailing slash
func (c *Auth0Config) Issuer() string {
	return NormalizeIssuer(c.IssuerBaseURL)
}

// Budget is a (max, window) pair for one traffic class
type Budget struct {
	Max    int
	Window time.Duration
}

type RateLimitConfig struct {
	Backend        string // "memory" or "redis"
	RedisURL       string
	Read           Budget
	Write          Budget
	Admin          Budget
	Auth           Budget
	SweepThreshold int
	GlobalPerMin   int
}

type CookieConfig struct {
	Domain string
	Secure bool
	MaxAge int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: loadDatabase(),
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			BaseURL:        strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: splitList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth0: Auth0Config{
			IssuerBaseURL:          getEnv("AUTH0_ISSUER_BASE_URL", ""),
			Audience:               getEnv("AUTH0_AUDIENCE", ""),
			ClientID:               getEnv("AUTH0_CLIENT_ID", ""),
			ClientSecret:           getEnv("AUTH0_CLIENT_SECRET", ""),
			Scope:                  getEnv("AUTH0_SCOPE", "openid profile email"),
			AdminPermission:        getEnv("AUTH0_ADMIN_PERMISSION", "access:admin"),
			ManagementClientID:     getEnv("AUTH0_MANAGEMENT_CLIENT_ID", ""),
			ManagementClientSecret: getEnv("AUTH0_MANAGEMENT_CLIENT_SECRET", ""),
			JWKSCacheTTL:           getEnvAsDuration("AUTH0_JWKS_CACHE_TTL", 10*time.Minute),
			UserInfoCacheTTL:       getEnvAsDuration("AUTH0_USERINFO_CACHE_TTL", 5*time.Minute),
			UserInfoCacheSize:      getEnvAsInt("AUTH0_USERINFO_CACHE_SIZE", 1000),
			PermissionCacheTTL:     getEnvAsDuration("AUTH0_PERMISSION_CACHE_TTL", 60*time.Second),
			HTTPTimeout:            getEnvAsDuration("AUTH0_HTTP_TIMEOUT", 5*time.Second),
		},
		RateLimit: RateLimitConfig{
			Backend:        strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "memory")),
			RedisURL:       getEnv("REDIS_URL", ""),
			Read:           getEnvAsBudget("RATE_LIMIT_READ", Budget{Max: 100, Window: time.Minute}),
			Write:          getEnvAsBudget("RATE_LIMIT_WRITE", Budget{Max: 30, Window: time.Minute}),
			Admin:          getEnvAsBudget("RATE_LIMIT_ADMIN", Budget{Max: 60, Window: time.Minute}),
			Auth:           getEnvAsBudget("RATE_LIMIT_AUTH", Budget{Max: 10, Window: time.Minute}),
			SweepThreshold: getEnvAsInt("RATE_LIMIT_SWEEP_THRESHOLD", 10000),
			GlobalPerMin:   getEnvAsInt("RATE_LIMIT_GLOBAL_PER_MINUTE", 600),
		},
		Cookie: CookieConfig{
			Domain: getEnv("COOKIE_DOMAIN", ""),
			Secure: getEnvAsBool("COOKIE_SECURE", true),
			MaxAge: getEnvAsInt("COOKIE_MAX_AGE", 86400),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDatabase reads only the database settings, for tools that never
// talk to the identity provider
func LoadDatabase() (*DatabaseConfig, error) {
	_ = godotenv.Load()

	cfg := loadDatabase()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDatabase() DatabaseConfig {
	return DatabaseConfig{
		Host:              getEnv("DB_HOST", "localhost"),
		Port:              getEnvAsInt("DB_PORT", 5432),
		User:              getEnv("DB_USER", "postgres"),
		Password:          getEnv("DB_PASSWORD", ""),
		Name:              getEnv("DB_NAME", "toiletmap"),
		SSLMode:           getEnv("DB_SSLMODE", "disable"),
		MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
		MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 2)),
		MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
		MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
		HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", false),
	}
}

// Validate fails fast on missing or malformed required settings
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}

	if c.Auth0.IssuerBaseURL == "" {
		return fmt.Errorf("AUTH0_ISSUER_BASE_URL is required")
	}
	u, err := url.Parse(c.Auth0.IssuerBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("AUTH0_ISSUER_BASE_URL must be an absolute URL")
	}
	if c.Server.Env == "production" && u.Scheme != "https" {
		return fmt.Errorf("AUTH0_ISSUER_BASE_URL must use https in production")
	}
	if c.Auth0.Audience == "" {
		return fmt.Errorf("AUTH0_AUDIENCE is required")
	}
	if c.Auth0.ClientID == "" {
		return fmt.Errorf("AUTH0_CLIENT_ID is required")
	}
	if c.Auth0.AdminPermission == "" {
		return fmt.Errorf("AUTH0_ADMIN_PERMISSION cannot be empty")
	}

	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.RateLimit.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when RATE_LIMIT_BACKEND=redis")
		}
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be memory or redis (got %q)", c.RateLimit.Backend)
	}

	for name, b := range map[string]Budget{
		"RATE_LIMIT_READ":  c.RateLimit.Read,
		"RATE_LIMIT_WRITE": c.RateLimit.Write,
		"RATE_LIMIT_ADMIN": c.RateLimit.Admin,
		"RATE_LIMIT_AUTH":  c.RateLimit.Auth,
	} {
		if b.Max < 1 || b.Window <= 0 {
			return fmt.Errorf("%s must have a positive max and window", name)
		}
	}

	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// NormalizeIssuer adds the trailing slash Auth0 puts in the iss claim
func NormalizeIssuer(issuer string) string {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return ""
	}
	return strings.TrimRight(issuer, "/") + "/"
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// getEnvAsBudget reads KEY_MAX and KEY_WINDOW
func getEnvAsBudget(prefix string, defaultVal Budget) Budget {
	return Budget{
		Max:    getEnvAsInt(prefix+"_MAX", defaultVal.Max),
		Window: getEnvAsDuration(prefix+"_WINDOW", defaultVal.Window),
	}
}

func splitList(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return splitList(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
