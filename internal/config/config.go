package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		Name      string
		Env       string
		LogLevel  string
		LogPretty bool
	}

	API struct {
		Host            string
		Port            string
		PublicURL       string
		ClickURL        string
		ShutdownTimeout time.Duration
	}

	Auth struct {
		// SigningKey verifies the HMAC signature of ingestion requests.
		SigningKey string
		// ServiceKey guards the query endpoints.
		ServiceKey string
	}

	DB struct {
		Host            string
		Port            int
		User            string
		Password        string
		Name            string
		SSLMode         string
		MaxOpenConns    int
		MaxIdleConns    int
		ConnMaxLifetime time.Duration
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	Templates struct {
		// Dir serves templates from disk when set, otherwise BaseURL is used.
		Dir          string
		BaseURL      string
		FetchTimeout time.Duration
		MaxRetries   int
	}

	Attachments struct {
		StoreURL       string
		PDFRendererURL string
		Timeout        time.Duration
	}

	Mandrill struct {
		URL        string
		Key        string
		WebhookKey string
		WebhookURL string
		Timeout    time.Duration
	}

	SES struct {
		Region           string
		ConfigurationSet string
	}

	MessageBird struct {
		URL             string
		Key             string
		Originator      string
		USOriginator    string
		Timeout         time.Duration
		DefaultSMSPrice float64
	}

	Provider struct {
		RatePerSecond float64
		Burst         int
		MaxRetries    int
		TestOutputDir string
	}

	Quota struct {
		EmailTestAllowance int
		SMSTestAllowance   int
		Window             time.Duration
	}

	Scheduler struct {
		Interval     time.Duration
		BatchTimeout time.Duration
		Retention    time.Duration
	}

	Worker struct {
		Concurrency  int
		JobTimeout   time.Duration
		MaxAttempts  int
		RetryBase    time.Duration
		LeaseTimeout time.Duration
		PollTimeout  time.Duration
	}
}

func New() *Config {
	_ = godotenv.Load()

	cfg := &Config{}

	// App
	cfg.App.Name = getEnv("APP_NAME", "courier")
	cfg.App.Env = getEnv("APP_ENV", "development")
	cfg.App.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.App.LogPretty = getBool("LOG_PRETTY", cfg.App.Env == "development")

	// API
	cfg.API.Host = getEnv("API_HOST", "0.0.0.0")
	cfg.API.Port = getEnv("API_PORT", "8080")
	cfg.API.PublicURL = strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/")
	cfg.API.ClickURL = getEnv("CLICK_URL", cfg.API.PublicURL+"/l/")
	cfg.API.ShutdownTimeout = getDuration("API_SHUTDOWN_TIMEOUT", 10*time.Second)

	// Auth
	cfg.Auth.SigningKey = getEnv("AUTH_KEY", "testing")
	cfg.Auth.ServiceKey = getEnv("SERVICE_KEY", "testing")

	// DB
	cfg.DB.Host = getEnv("DB_HOST", "db")
	cfg.DB.Port = getInt("DB_PORT", 5432)
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Name = getEnv("DB_NAME", "courier")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.DB.MaxOpenConns = getInt("DB_MAX_OPEN_CONNS", 20)
	cfg.DB.MaxIdleConns = getInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DB.ConnMaxLifetime = getDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)

	// Redis
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "redis:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getInt("REDIS_DB", 0)

	// Templates
	cfg.Templates.Dir = getEnv("TEMPLATE_DIR", "")
	cfg.Templates.BaseURL = getEnv("TEMPLATE_BASE_URL", "")
	cfg.Templates.FetchTimeout = getDuration("TEMPLATE_FETCH_TIMEOUT", 5*time.Second)
	cfg.Templates.MaxRetries = getInt("TEMPLATE_MAX_RETRIES", 4)

	// Attachments
	cfg.Attachments.StoreURL = getEnv("ATTACHMENT_STORE_URL", "")
	cfg.Attachments.PDFRendererURL = getEnv("PDF_RENDERER_URL", "")
	cfg.Attachments.Timeout = getDuration("ATTACHMENT_TIMEOUT", 20*time.Second)

	// Mandrill
	cfg.Mandrill.URL = strings.TrimRight(getEnv("MANDRILL_URL", "https://mandrillapp.com/api/1.0"), "/")
	cfg.Mandrill.Key = getEnv("MANDRILL_KEY", "")
	cfg.Mandrill.WebhookKey = getEnv("MANDRILL_WEBHOOK_KEY", "")
	cfg.Mandrill.WebhookURL = getEnv("MANDRILL_WEBHOOK_URL", cfg.API.PublicURL+"/webhook/mandrill/")
	cfg.Mandrill.Timeout = getDuration("MANDRILL_TIMEOUT", 30*time.Second)

	// SES
	cfg.SES.Region = getEnv("SES_REGION", "eu-west-1")
	cfg.SES.ConfigurationSet = getEnv("SES_CONFIGURATION_SET", "")

	// MessageBird
	cfg.MessageBird.URL = strings.TrimRight(getEnv("MESSAGEBIRD_URL", "https://rest.messagebird.com"), "/")
	cfg.MessageBird.Key = getEnv("MESSAGEBIRD_KEY", "")
	cfg.MessageBird.Originator = getEnv("MESSAGEBIRD_ORIGINATOR", "Courier")
	cfg.MessageBird.USOriginator = getEnv("MESSAGEBIRD_US_ORIGINATOR", "15744445663")
	cfg.MessageBird.Timeout = getDuration("MESSAGEBIRD_TIMEOUT", 10*time.Second)
	cfg.MessageBird.DefaultSMSPrice = getFloat("MESSAGEBIRD_DEFAULT_PRICE", 0)

	// Provider clients
	cfg.Provider.RatePerSecond = getFloat("PROVIDER_RATE_PER_SECOND", 50)
	cfg.Provider.Burst = getInt("PROVIDER_BURST", 10)
	cfg.Provider.MaxRetries = getInt("PROVIDER_MAX_RETRIES", 3)
	cfg.Provider.TestOutputDir = getEnv("TEST_OUTPUT_DIR", "")

	// Quota emulation for the test send methods
	cfg.Quota.EmailTestAllowance = getInt("QUOTA_EMAIL_TEST_ALLOWANCE", 10000)
	cfg.Quota.SMSTestAllowance = getInt("QUOTA_SMS_TEST_ALLOWANCE", 1000)
	cfg.Quota.Window = getDuration("QUOTA_WINDOW", time.Hour)

	// Scheduler
	cfg.Scheduler.Interval = getDuration("SCHEDULER_INTERVAL", 5*time.Second)
	cfg.Scheduler.BatchTimeout = getDuration("SCHEDULER_BATCH_TIMEOUT", 30*time.Second)
	cfg.Scheduler.Retention = getDuration("MESSAGE_RETENTION", 365*24*time.Hour)

	// Worker / job processing
	cfg.Worker.Concurrency = getInt("WORKER_CONCURRENCY", 8)
	cfg.Worker.JobTimeout = getDuration("WORKER_JOB_TIMEOUT", 2*time.Minute)
	cfg.Worker.MaxAttempts = getInt("WORKER_MAX_ATTEMPTS", 5)
	cfg.Worker.RetryBase = getDuration("WORKER_RETRY_BASE", 5*time.Second)
	cfg.Worker.LeaseTimeout = getDuration("WORKER_LEASE_TIMEOUT", 5*time.Minute)
	cfg.Worker.PollTimeout = getDuration("WORKER_POLL_TIMEOUT", 2*time.Second)

	return cfg
}

func getEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return isTruthy(v)
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}
