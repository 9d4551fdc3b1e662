package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration

	StorageProvider string
	RawBucket       string
	ProcessedBucket string

	RawDir       string
	ProcessedDir string

	FFmpegPath string
	JobTimeout time.Duration

	RedisAddr string
	RedisDB   int
	LockTTL   time.Duration

	DatabaseURL string

	GCSEndpoint           string
	GoogleCredentialsJSON string

	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3Region       string
	S3UsePathStyle bool

	StorageLocalRoot string

	QueueName        string
	RequeueOnFailure bool
}

// LoadDotenv loads .env files into the process environment when they exist.
// Variables already set are never overridden.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func Load() Config {
	return Config{
		Port:            getEnv("PORT", "3000"),
		MaxBodyBytes:    getEnvInt64("MAX_BODY_BYTES", 1<<20),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		StorageProvider: strings.ToLower(getEnv("STORAGE_PROVIDER", "gcs")),
		RawBucket:       getEnv("RAW_BUCKET", "ssva-raw-videos"),
		ProcessedBucket: getEnv("PROCESSED_BUCKET", "ssva-processed-videos"),

		RawDir:       getEnv("RAW_DIR", "./raw-videos"),
		ProcessedDir: getEnv("PROCESSED_DIR", "./processed-videos"),

		FFmpegPath: getEnv("FFMPEG_PATH", "ffmpeg"),
		JobTimeout: getEnvDuration("JOB_TIMEOUT", 0),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		RedisDB:   getEnvInt("REDIS_DB", 0),
		LockTTL:   getEnvDuration("LOCK_TTL", 30*time.Minute),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		GCSEndpoint:           getEnv("GCS_ENDPOINT", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_CREDENTIALS_JSON", ""),

		S3Endpoint:     getEnv("S3_ENDPOINT", "http://localhost:9000"),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),
		S3Region:       getEnv("S3_REGION", "us-east-1"),
		S3UsePathStyle: getEnvBool("S3_USE_PATH_STYLE", true),

		StorageLocalRoot: getEnv("STORAGE_LOCAL_ROOT", "./buckets"),

		QueueName:        getEnv("JOB_QUEUE_NAME", "video:jobs"),
		RequeueOnFailure: getEnvBool("REQUEUE_ON_FAILURE", false),
	}
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return "0.0.0.0:" + c.Port
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvBool accepts anything strconv.ParseBool does; invalid values fall back.
func getEnvBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
