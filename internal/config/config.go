package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment
// variables. Provider credentials are validated once here; a missing secret
// refuses startup instead of failing mid-fulfillment.
type Config struct {
	Port        int
	DatabaseURL string
	JWTSecret   string
	FrontendURL string
	CORSOrigins []string

	AdminEmail    string
	AdminPassword string

	// Payment provider (Stripe Checkout).
	StripeSecretKey     string
	StripeWebhookSecret string // empty disables signature verification

	// eSIM provisioning provider (eSIM Access).
	EsimAccessBaseURL    string
	EsimAccessAccessCode string
	EsimAccessSecretKey  string
	EsimSMDPDomain       string
	// FallbackPackageCode is substituted exactly once when the provider
	// rejects a plan's package code as unknown.
	FallbackPackageCode string
	PollInterval        time.Duration
	PollMaxAttempts     int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	port, _ := strconv.Atoi(getEnv("PORT", "4002"))

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	stripeKey := getEnv("STRIPE_SECRET_KEY", "")
	if stripeKey == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY is required")
	}

	accessCode := getEnv("ESIM_ACCESS_ACCESS_CODE", "")
	secretKey := getEnv("ESIM_ACCESS_SECRET_KEY", "")
	if accessCode == "" || secretKey == "" {
		return nil, fmt.Errorf("ESIM_ACCESS_ACCESS_CODE and ESIM_ACCESS_SECRET_KEY are required")
	}

	pollIntervalMs, err := strconv.Atoi(getEnv("ESIM_POLL_INTERVAL_MS", "2000"))
	if err != nil || pollIntervalMs <= 0 {
		return nil, fmt.Errorf("ESIM_POLL_INTERVAL_MS must be a positive integer")
	}
	pollAttempts, err := strconv.Atoi(getEnv("ESIM_POLL_MAX_ATTEMPTS", "10"))
	if err != nil || pollAttempts <= 0 {
		return nil, fmt.Errorf("ESIM_POLL_MAX_ATTEMPTS must be a positive integer")
	}

	origins := strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return &Config{
		Port:        port,
		DatabaseURL: dbURL,
		JWTSecret:   jwtSecret,
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		CORSOrigins: origins,

		AdminEmail:    getEnv("ADMIN_EMAIL", "admin@voyasim.com"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin123"),

		StripeSecretKey:     stripeKey,
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		EsimAccessBaseURL:    getEnv("ESIM_ACCESS_BASE_URL", "https://api.esimaccess.com/api/v1"),
		EsimAccessAccessCode: accessCode,
		EsimAccessSecretKey:  secretKey,
		EsimSMDPDomain:       getEnv("ESIM_SMDP_DOMAIN", "rsp.esimaccess.com"),
		FallbackPackageCode:  getEnv("ESIM_FALLBACK_PACKAGE_CODE", "CKH006"),
		PollInterval:         time.Duration(pollIntervalMs) * time.Millisecond,
		PollMaxAttempts:      pollAttempts,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
