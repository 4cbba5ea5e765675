package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

// Config holds the application configuration
type Config struct {
	Port        string
	Env         string
	StoreDriver string
	DatabaseURL string
	MongoURI    string
	MongoDB     string
	JWTSecret   string
	OTPSalt     string
	TokenTTL    time.Duration
	OTPTTL      time.Duration
	BcryptCost  int
	OTPEnabled  bool
	OTPDevMode  bool

	SweepInterval time.Duration
	NotifyTimeout time.Duration

	Twilio  TwilioConfig
	Brevo   BrevoConfig
	Breaker BreakerConfig
}

// TwilioConfig holds SMS transport credentials
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Configured reports whether all credentials are present
func (c TwilioConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

// BrevoConfig holds transactional email credentials
type BrevoConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// Configured reports whether all credentials are present
func (c BrevoConfig) Configured() bool {
	return c.APIKey != "" && c.FromEmail != "" && c.FromName != ""
}

// BreakerConfig tunes the circuit breaker around notification channels
type BreakerConfig struct {
	MaxFailures uint32
	Timeout     time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:          "8080",
		Env:           "development",
		StoreDriver:   StorePostgres,
		TokenTTL:      7 * 24 * time.Hour,
		OTPTTL:        10 * time.Minute,
		BcryptCost:    10,
		OTPEnabled:    true,
		SweepInterval: time.Minute,
		NotifyTimeout: 10 * time.Second,
		Breaker: BreakerConfig{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		cfg.Env = env
	}

	if driver := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER"))); driver != "" {
		cfg.StoreDriver = driver
	}

	switch cfg.StoreDriver {
	case StorePostgres:
		databaseURL := os.Getenv("DATABASE_URL")
		if databaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required")
		}
		if _, err := url.Parse(databaseURL); err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		cfg.DatabaseURL = databaseURL
	case StoreMongo:
		cfg.MongoURI = os.Getenv("MONGO_URI")
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGO_URI environment variable is required")
		}
		cfg.MongoDB = os.Getenv("MONGO_DB")
		if cfg.MongoDB == "" {
			return nil, fmt.Errorf("MONGO_DB environment variable is required")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	// Load JWT_SECRET (required)
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	cfg.JWTSecret = jwtSecret

	// Load OTP_SALT (required)
	otpSalt := os.Getenv("OTP_SALT")
	if otpSalt == "" {
		return nil, fmt.Errorf("OTP_SALT environment variable is required")
	}
	cfg.OTPSalt = otpSalt

	var err error
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", cfg.TokenTTL); err != nil {
		return nil, err
	}
	if cfg.OTPTTL, err = durationEnv("OTP_TTL", cfg.OTPTTL); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = durationEnv("SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return nil, err
	}
	if cfg.NotifyTimeout, err = durationEnv("NOTIFY_TIMEOUT", cfg.NotifyTimeout); err != nil {
		return nil, err
	}
	if cfg.Breaker.Timeout, err = durationEnv("BREAKER_TIMEOUT", cfg.Breaker.Timeout); err != nil {
		return nil, err
	}

	if v := os.Getenv("BCRYPT_COST"); v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil || cost < 4 || cost > 31 {
			return nil, fmt.Errorf("BCRYPT_COST must be an integer between 4 and 31, got %q", v)
		}
		cfg.BcryptCost = cost
	}
	if v := os.Getenv("BREAKER_MAX_FAILURES"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("BREAKER_MAX_FAILURES must be a positive integer, got %q", v)
		}
		cfg.Breaker.MaxFailures = uint32(n)
	}

	// OTP_ENABLED defaults to true; only an explicit "false" switches to direct activation
	cfg.OTPEnabled = os.Getenv("OTP_ENABLED") != "false"
	cfg.OTPDevMode = os.Getenv("OTP_DEV_MODE") == "true"

	cfg.Twilio = TwilioConfig{
		AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		AuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		FromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
	}
	cfg.Brevo = BrevoConfig{
		APIKey:    os.Getenv("BREVO_API_KEY"),
		FromEmail: os.Getenv("BREVO_FROM_EMAIL"),
		FromName:  os.Getenv("BREVO_FROM_NAME"),
	}

	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

// RedactedDatabaseURL returns DATABASE_URL with the password replaced by ****
func (c *Config) RedactedDatabaseURL() string {
	u, err := url.Parse(c.DatabaseURL)
	if err != nil {
		return "(invalid DATABASE_URL)"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}
