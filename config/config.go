package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config holds application configuration
type Config struct {
	AppEnv string
	Port   string

	DatabaseURL string
	JWTKey      string

	SignatureSecret string // HMAC key for verification links, never sent to clients
	PublicBaseURL   string // prefix of /verify links
	AllowedOrigins  []string

	EmailSender    string
	SMTPHost       string
	SMTPPort       string
	SMTPUser       string
	SMTPPassword   string
	SendGridAPIKey string

	GeocoderURL string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	OTPTTL               time.Duration
	ReminderInitialDelay time.Duration
	ReminderInterval     time.Duration
	MissionOrderMaxKm    float64

	RateLimitPolicyFile string

	LogLevel  string
	LogFormat string
}

// AppConfig is a global variable to access configuration
var AppConfig *Config

// LoadConfig initializes configuration from environment variables or defaults
func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found. Using system environment variables.")
	}

	AppConfig = FromEnv()
	return AppConfig
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() *Config {
	cfg := &Config{
		AppEnv: getEnv("APP_ENV", EnvDevelopment),
		Port:   getEnv("PORT", "3000"),

		DatabaseURL: getEnv("DATABASE_URL", "conventions.db"),
		JWTKey:      getEnv("JWT_SECRET_KEY", ""),

		SignatureSecret: getEnv("SIGNATURE_SECRET", ""),
		PublicBaseURL:   strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", "")),

		EmailSender:    getEnv("EMAIL_SENDER", "no-reply@pfmp.local"),
		SMTPHost:       getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:       getEnv("SMTP_PORT", "587"),
		SMTPUser:       getEnv("SMTP_USER", ""),
		SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),

		GeocoderURL: getEnv("GEOCODER_URL", "https://api-adresse.data.gouv.fr"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "signatures"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		OTPTTL:               getEnvDuration("OTP_TTL", 10*time.Minute),
		ReminderInitialDelay: getEnvDuration("REMINDER_INITIAL_DELAY", 5*time.Second),
		ReminderInterval:     getEnvDuration("REMINDER_INTERVAL", 48*time.Hour),
		MissionOrderMaxKm:    getEnvFloat("MISSION_ORDER_MAX_KM", 100),

		RateLimitPolicyFile: getEnv("RATE_LIMIT_POLICY_FILE", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	if cfg.JWTKey == "" {
		log.Println("Warning: JWT_SECRET_KEY is not set. Update it in your environment.")
	}
	return cfg
}

// IsProduction reports whether the service runs with production guarantees.
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// Validate rejects configurations that must never reach production.
func (c *Config) Validate() error {
	if !c.IsProduction() {
		return nil
	}
	var errs []error
	if c.SignatureSecret == "" {
		errs = append(errs, errors.New("SIGNATURE_SECRET is required in production"))
	}
	if c.JWTKey == "" {
		errs = append(errs, errors.New("JWT_SECRET_KEY is required in production"))
	}
	return errors.Join(errs...)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns the default integer value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to int: %v", key, err)
		return defaultValue
	}
	return intValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Error converting environment variable %s to float: %v", key, err)
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to bool: %v", key, err)
		return defaultValue
	}
	return b
}

// getEnvDuration accepts Go durations ("48h") or a plain number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs := getEnvInt(key, -1); secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
