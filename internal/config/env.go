package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	SslCertPath  string
	AIAPIKey     string
	EmbedModel   string
	EmbedDim     int
	GenModel     string
	AIRatePerSec float64
	Port         string
	JWTSecret    string
	LogLevel     string

	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Ingestion queue and retry policy.
	IngestQueue       string
	WorkerConcurrency int
	JobMaxAttempts    int
	JobBackoffBase    time.Duration
	JobBackoffJitter  float64
	JobTimeout        time.Duration

	// Chunking and indexing.
	ChunkSize       int
	ChunkOverlap    int
	ChunkPreviewLen int
	UpsertBatchSize int
	RetrievalTopK   int
	VectorBackend   string

	// Per-call timeouts for outbound capabilities.
	FetchTimeout    time.Duration
	EmbedTimeout    time.Duration
	VectorTimeout   time.Duration
	CompleteTimeout time.Duration
	TitleTimeout    time.Duration

	MaxDocumentsPerChat int
	MaxUploadBytes      int64

	AIRateLimit      int
	AIRateWindow     time.Duration
	UploadRateLimit  int
	UploadRateWindow time.Duration
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "contexta-docs"),
		SslCertPath:  getEnv("SSL_CERT_PATH", ""),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "gemini-embedding-001"),
		EmbedDim:     getEnvInt("EMBED_DIM", 3072),
		GenModel:     getEnv("GEN_MODEL", "gemini-1.5-flash"),
		AIRatePerSec: getEnvFloat("AI_REQUESTS_PER_SECOND", 5),
		Port:         getEnv("PORT", "8080"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		IngestQueue:       getEnv("INGEST_QUEUE", "ingestion"),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),
		JobMaxAttempts:    getEnvInt("JOB_MAX_ATTEMPTS", 5),
		JobBackoffBase:    getEnvDuration("JOB_BACKOFF_BASE", 3*time.Second),
		JobBackoffJitter:  getEnvFloat("JOB_BACKOFF_JITTER", 0.3),
		JobTimeout:        getEnvDuration("JOB_TIMEOUT", 15*time.Minute),

		ChunkSize:       getEnvInt("CHUNK_SIZE", 2000),
		ChunkOverlap:    getEnvInt("CHUNK_OVERLAP", 200),
		ChunkPreviewLen: getEnvInt("CHUNK_PREVIEW_LEN", 200),
		UpsertBatchSize: getEnvInt("UPSERT_BATCH_SIZE", 100),
		RetrievalTopK:   getEnvInt("RETRIEVAL_TOP_K", 3),
		VectorBackend:   getEnv("VECTOR_BACKEND", "pgvector"),

		FetchTimeout:    getEnvDuration("FETCH_TIMEOUT", 60*time.Second),
		EmbedTimeout:    getEnvDuration("EMBED_TIMEOUT", 60*time.Second),
		VectorTimeout:   getEnvDuration("VECTOR_TIMEOUT", 30*time.Second),
		CompleteTimeout: getEnvDuration("COMPLETE_TIMEOUT", 60*time.Second),
		TitleTimeout:    getEnvDuration("TITLE_TIMEOUT", 20*time.Second),

		MaxDocumentsPerChat: getEnvInt("MAX_DOCUMENTS_PER_CHAT", 5),
		MaxUploadBytes:      int64(getEnvInt("MAX_UPLOAD_BYTES", 5<<20)),

		AIRateLimit:      getEnvInt("AI_RATE_LIMIT", 20),
		AIRateWindow:     getEnvDuration("AI_RATE_WINDOW", 24*time.Hour),
		UploadRateLimit:  getEnvInt("UPLOAD_RATE_LIMIT", 3),
		UploadRateWindow: getEnvDuration("UPLOAD_RATE_WINDOW", 24*time.Hour),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		log.Printf("WARN: CHUNK_OVERLAP=%d must be below CHUNK_SIZE=%d, using %d", cfg.ChunkOverlap, cfg.ChunkSize, cfg.ChunkSize/10)
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}
	if cfg.JobMaxAttempts < 1 {
		cfg.JobMaxAttempts = 1
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a number, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
