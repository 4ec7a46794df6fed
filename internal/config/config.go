package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName string
	AppEnv  string
	AppURL  string
	Port    string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Security
	JWTSecret string
	JWTExpiry time.Duration

	// Files
	UploadDir   string // Root for question/answer image URLs
	DownloadDir string // Root of the {recordID}/question.pdf tree
	TempDir     string // Scratch space for page images
	DownloadTTL time.Duration

	// Generation worker
	WorkerPollInterval time.Duration
	JobTimeout         time.Duration
	JobMaxAttempts     int
	NamingCacheTTL     time.Duration

	// Page layout
	PageWidthPx     int
	PageHeightPx    int
	PageGapPx       int
	NumberQuestions bool
	PDFTopMargin    float64

	// Observability (optional)
	SentryDSN string

	// Packet mirror (optional, S3-compatible: MinIO, AWS S3, Cloudflare R2, etc.)
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName: envString("APP_NAME", "Tiku"),
		AppEnv:  envRequired("APP_ENV"), // Required: 'development' or 'production'
		AppURL:  envString("APP_URL", "http://localhost:3001"),
		Port:    envString("PORT", "3001"),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/qbank.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),

		// Security
		JWTSecret: envRequired("JWT_SECRET"),
		JWTExpiry: envDuration("JWT_EXPIRY", 168*time.Hour),

		// Files
		UploadDir:   envString("UPLOAD_DIR", "./uploads"),
		DownloadDir: envString("DOWNLOAD_DIR", "./downloads"),
		TempDir:     envString("TEMP_DIR", os.TempDir()),
		DownloadTTL: envDuration("DOWNLOAD_TTL", 168*time.Hour), // 7 days

		// Generation worker
		WorkerPollInterval: envDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		JobTimeout:         envDuration("JOB_TIMEOUT", 2*time.Minute),
		JobMaxAttempts:     envInt("JOB_MAX_ATTEMPTS", 2),
		NamingCacheTTL:     envDuration("NAMING_CACHE_TTL", 10*time.Minute),

		// Page layout (A4 at ~150 DPI)
		PageWidthPx:     envInt("PAGE_WIDTH_PX", 1240),
		PageHeightPx:    envInt("PAGE_HEIGHT_PX", 1754),
		PageGapPx:       envInt("PAGE_GAP_PX", 12),
		NumberQuestions: envBool("NUMBER_QUESTIONS", true),
		PDFTopMargin:    envFloat("PDF_TOP_MARGIN", 24),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),

		// Packet mirror (disabled unless S3_BUCKET is set)
		S3Region:    envString("S3_REGION", "us-east-1"),
		S3Bucket:    envString("S3_BUCKET", ""),
		S3AccessKey: envString("S3_ACCESS_KEY", ""),
		S3SecretKey: envString("S3_SECRET_KEY", ""),
		S3Endpoint:  envString("S3_ENDPOINT", ""),
	}

	validate(cfg)

	return cfg
}

// validate stops the process on settings the worker cannot run with.
func validate(cfg *Config) {
	if cfg.JobMaxAttempts < 1 {
		slog.Error("JOB_MAX_ATTEMPTS must be at least 1", "value", cfg.JobMaxAttempts)
		os.Exit(1)
	}
	if cfg.PageWidthPx <= 0 || cfg.PageHeightPx <= 0 || cfg.PageGapPx < 0 {
		slog.Error("invalid page layout",
			"width", cfg.PageWidthPx, "height", cfg.PageHeightPx, "gap", cfg.PageGapPx)
		os.Exit(1)
	}
	if cfg.IsProduction() && cfg.JWTSecret == "change-me" {
		slog.Error("production deployment requires a real JWT_SECRET")
		os.Exit(1)
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("config invalid float, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MirrorEnabled reports whether generated packets are copied to object storage.
func (c *Config) MirrorEnabled() bool {
	return c.S3Bucket != ""
}
