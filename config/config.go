package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	GinMode   string
	LogLevel  string
	LogFormat string

	DBDriver string
	DBDSN    string

	JWTSecret       []byte
	PublicBaseURL   string
	FeedbackFormURL string
	CORSOrigin      string

	MailRelayURL   string
	MailRelayToken string
	SMTP           SMTPConfig

	Upload UploadConfig

	RatingMaxRetries      int
	SideChannelMaxRetries int
	SideChannelWait       time.Duration
	ApprovalClaimLease    time.Duration
	ClaimMonitorInterval  time.Duration

	AdminEmail    string
	AdminPassword string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type UploadConfig struct {
	Driver            string // local | s3
	Dir               string
	PublicBaseURL     string
	S3Bucket          string
	S3Endpoint        string
	S3Region          string
	S3AccessKey       string
	S3SecretKey       string
	S3UsePathStyle    bool
	S3PublicObjectURL string
}

// Load reads .env (if present) and then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or error loading: %v", err)
	}

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		GinMode:   os.Getenv("GIN_MODE"),
		LogLevel:  os.Getenv("LOG_LEVEL"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DBDriver: strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBDSN:    getEnv("DB_DSN", "restaurant_feedback.db"),

		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		CORSOrigin:    getEnv("CORS_ORIGIN", "http://127.0.0.1:5500"),

		MailRelayURL:   getEnv("MAIL_RELAY_URL", "http://localhost:8080/send-email"),
		MailRelayToken: os.Getenv("MAIL_RELAY_TOKEN"),
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},

		Upload: UploadConfig{
			Driver:            strings.ToLower(getEnv("UPLOAD_DRIVER", "local")),
			Dir:               getEnv("UPLOAD_DIR", "public/uploads"),
			S3Bucket:          os.Getenv("S3_BUCKET_NAME"),
			S3Endpoint:        os.Getenv("S3_ENDPOINT"),
			S3Region:          getEnv("AWS_REGION", "us-east-1"),
			S3AccessKey:       os.Getenv("AWS_ACCESS_KEY_ID"),
			S3SecretKey:       os.Getenv("AWS_SECRET_ACCESS_KEY"),
			S3UsePathStyle:    os.Getenv("S3_USE_PATH_STYLE") == "true",
			S3PublicObjectURL: strings.TrimRight(os.Getenv("S3_PUBLIC_BASE_URL"), "/"),
		},

		RatingMaxRetries:      getEnvInt("RATING_MAX_RETRIES", 5),
		SideChannelMaxRetries: getEnvInt("SIDE_CHANNEL_MAX_RETRIES", 3),
		SideChannelWait:       getEnvDuration("SIDE_CHANNEL_WAIT", 0),
		ApprovalClaimLease:    getEnvDuration("APPROVAL_CLAIM_LEASE", 5*time.Minute),
		ClaimMonitorInterval:  getEnvDuration("CLAIM_MONITOR_INTERVAL", time.Minute),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}
	cfg.Upload.PublicBaseURL = cfg.PublicBaseURL + "/uploads"
	cfg.FeedbackFormURL = strings.TrimRight(getEnv("FEEDBACK_FORM_URL", defaultFormURL(cfg)), "/")

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Printf("Warning: JWT_SECRET not found in environment, using development secret")
		secret = "dev-only-restaurant-feedback-secret"
	}
	cfg.JWTSecret = []byte(secret)

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: %s=%q is not an integer, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Warning: %s=%q is not a duration, using %s", key, v, fallback)
		return fallback
	}
	return d
}

// defaultFormURL is the front-end origin: the first concrete CORS origin,
// else the API itself.
func defaultFormURL(cfg *Config) string {
	first := strings.TrimSpace(strings.Split(cfg.CORSOrigin, ",")[0])
	if first == "" || first == "*" {
		return cfg.PublicBaseURL
	}
	return first
}
