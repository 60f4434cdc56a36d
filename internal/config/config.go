package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string
	OTelEnabled  bool

	// Language model
	LLMProvider   string // openai | gemini
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string

	// Shopify
	ShopURL            string
	ShopifyAPIVersion  string
	ShopifyAccessToken string
	StorefrontURL      string
	ReturnsPortalURL   string

	// Geocoding
	GoogleMapsAPIKey  string
	GoogleMapsBaseURL string

	// Outbound calls
	OutboundCallURL    string
	CarrierPhoneNumber string

	// E-mail
	PostmarkServerToken string
	PostmarkBaseURL     string
	PostmarkFrom        string
	SupportMailbox      string

	// Ticket store
	TicketStore        string // memory | supabase | postgres
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	DatabaseURL        string

	// Rate limiting
	RateLimitBackend  string // memory | redis
	RedisAddr         string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Chat timeouts
	ClassifyTimeout time.Duration
	ReplyTimeout    time.Duration
	RequestTimeout  time.Duration

	// Call-status polling (shipped-order address change)
	CallPollInterval time.Duration
	CallSoftCap      time.Duration
	CallHardCap      time.Duration

	// JWT / Admin
	JWTSecret         string
	JWTAccessTTL      time.Duration
	AdminUsername     string
	AdminPasswordHash string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 15*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", time.Second),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelEnabled:  getEnvBool("OTEL_ENABLED", false),

		LLMProvider:   strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		ShopURL:            strings.TrimRight(getEnv("SHOP_URL", ""), "/"),
		ShopifyAPIVersion:  getEnv("SHOPIFY_API_VERSION", "2024-10"),
		ShopifyAccessToken: getEnv("SHOPIFY_ACCESS_TOKEN", ""),
		StorefrontURL:      strings.TrimRight(getEnv("STOREFRONT_URL", "https://shamelesscollective.com"), "/"),
		ReturnsPortalURL:   getEnv("RETURNS_PORTAL_URL", "https://shameless-returns-web.vercel.app"),

		GoogleMapsAPIKey:  getEnv("GOOGLE_MAPS_API_KEY", ""),
		GoogleMapsBaseURL: getEnv("GOOGLE_MAPS_BASE_URL", ""),

		OutboundCallURL:    strings.TrimRight(getEnv("OUTBOUND_CALL_URL", "http://localhost:8000"), "/"),
		CarrierPhoneNumber: getEnv("CARRIER_PHONE_NUMBER", "+34608667749"),

		PostmarkServerToken: getEnv("POSTMARK_SERVER_TOKEN", ""),
		PostmarkBaseURL:     getEnv("POSTMARK_BASE_URL", ""),
		PostmarkFrom:        getEnv("POSTMARK_FROM", "hello@shamelesscollective.com"),
		SupportMailbox:      getEnv("SUPPORT_MAILBOX", "hello@shamelesscollective.com"),

		TicketStore:        strings.ToLower(getEnv("TICKET_STORE", "memory")),
		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),

		RateLimitBackend:  strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "memory")),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 20),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		ClassifyTimeout: getEnvDuration("CLASSIFY_TIMEOUT", 30*time.Second),
		ReplyTimeout:    getEnvDuration("REPLY_TIMEOUT", 30*time.Second),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),

		CallPollInterval: getEnvDuration("CALL_POLL_INTERVAL", 5*time.Second),
		CallSoftCap:      getEnvDuration("CALL_SOFT_CAP", 30*time.Second),
		CallHardCap:      getEnvDuration("CALL_HARD_CAP", 300*time.Second),

		JWTSecret:         getEnv("JWT_SECRET", "bfa-default-dev-secret-change-me"),
		JWTAccessTTL:      getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
	}
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.LLMProvider {
	case "openai", "gemini":
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER must be openai or gemini, got %q", c.LLMProvider))
	}

	switch c.TicketStore {
	case "memory":
	case "supabase":
		if c.SupabaseURL == "" {
			errs = append(errs, errors.New("TICKET_STORE=supabase requires SUPABASE_URL"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("TICKET_STORE=postgres requires DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("TICKET_STORE must be memory, supabase or postgres, got %q", c.TicketStore))
	}

	switch c.RateLimitBackend {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("RATE_LIMIT_BACKEND=redis requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND must be memory or redis, got %q", c.RateLimitBackend))
	}

	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive"))
	}
	if c.CallPollInterval <= 0 {
		errs = append(errs, errors.New("CALL_POLL_INTERVAL must be positive"))
	}
	if c.CallSoftCap > c.CallHardCap {
		errs = append(errs, fmt.Errorf("CALL_SOFT_CAP (%s) must not exceed CALL_HARD_CAP (%s)", c.CallSoftCap, c.CallHardCap))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("MAX_RETRIES must not be negative"))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
