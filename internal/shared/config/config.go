package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Port                string
	Env                 string
	CORSAllowOrigins    []string
	JWTSecret           string
	TrustGatewayHeaders bool

	StoreBackend   string // local | s3 | minio
	LocalStoreDir  string
	LocalBaseURL   string
	Bucket         string
	StorePrefix    string
	AWSRegion      string
	SSEKMSKeyID    string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	IndexDriver   string // postgres | mongo | memory
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	TriggerKind       string // sqs | webhook | none
	SQSQueueURL       string
	TriggerWebhookURL string

	MaxFileSizeBytes  int64
	AllowedExtensions []string
	ExtractionEnabled bool
	PresignTTL        time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	RetryAttempts int
	RetryDelay    time.Duration

	ReconcileDryRun      bool
	ReconcileConcurrency int
	ReconcilePageSize    int
}

// Load reads configuration from the environment, with a best-effort .env
// load for development. Every key has a default except the ones a given
// backend requires; those are validated at bootstrap when the backend is
// selected.
func Load() Config {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("APP_ENV", "dev")
	viper.SetDefault("CORS_ALLOW_ORIGINS", "http://localhost:5173")
	viper.SetDefault("AUTH_TRUST_GATEWAY_HEADERS", false)
	viper.SetDefault("STORE_BACKEND", "local")
	viper.SetDefault("STORE_LOCAL_DIR", "./data")
	viper.SetDefault("STORE_LOCAL_BASE_URL", "http://localhost:8080")
	viper.SetDefault("INDEX_DRIVER", "memory")
	viper.SetDefault("TRIGGER_KIND", "none")
	viper.SetDefault("MAX_FILE_SIZE_BYTES", int64(25<<20))
	viper.SetDefault("ALLOWED_EXTENSIONS", "pdf,doc,docx,txt,md,html,csv,xls,xlsx")
	viper.SetDefault("EXTRACTION_ENABLED", false)
	viper.SetDefault("PRESIGN_TTL_MINUTES", 15)
	viper.SetDefault("RATE_LIMIT_RPS", 10.0)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("RETRY_ATTEMPTS", 3)
	viper.SetDefault("RETRY_DELAY_MS", 200)
	viper.SetDefault("RECONCILE_DRY_RUN", false)
	viper.SetDefault("RECONCILE_CONCURRENCY", 4)
	viper.SetDefault("RECONCILE_PAGE_SIZE", 200)

	env := normalizeEnv(viper.GetString("APP_ENV"))
	driver := normalizeIndexDriver(viper.GetString("INDEX_DRIVER"))
	dbURL := viper.GetString("DATABASE_URL")

	if env == "production" && driver == "postgres" && dbURL == "" {
		log.Printf("DATABASE_URL is required when INDEX_DRIVER=postgres")
	}
	if env == "production" && viper.GetString("AUTH_JWT_SECRET") == "" {
		log.Printf("AUTH_JWT_SECRET is not set; bearer tokens will be rejected")
	}

	return Config{
		Port:                viper.GetString("SERVER_PORT"),
		Env:                 env,
		CORSAllowOrigins:    splitAndTrim(viper.GetString("CORS_ALLOW_ORIGINS")),
		JWTSecret:           viper.GetString("AUTH_JWT_SECRET"),
		TrustGatewayHeaders: viper.GetBool("AUTH_TRUST_GATEWAY_HEADERS"),

		StoreBackend:   normalizeStoreBackend(viper.GetString("STORE_BACKEND")),
		LocalStoreDir:  viper.GetString("STORE_LOCAL_DIR"),
		LocalBaseURL:   strings.TrimRight(viper.GetString("STORE_LOCAL_BASE_URL"), "/"),
		Bucket:         viper.GetString("STORE_BUCKET"),
		StorePrefix:    viper.GetString("STORE_PREFIX"),
		AWSRegion:      viper.GetString("AWS_REGION"),
		SSEKMSKeyID:    viper.GetString("STORE_KMS_KEY_ID"),
		MinioEndpoint:  viper.GetString("MINIO_ENDPOINT"),
		MinioAccessKey: viper.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey: viper.GetString("MINIO_SECRET_KEY"),
		MinioUseSSL:    viper.GetBool("MINIO_USE_SSL"),

		IndexDriver:   driver,
		DatabaseURL:   dbURL,
		MongoURI:      viper.GetString("MONGO_URI"),
		MongoDatabase: viper.GetString("MONGO_DATABASE"),

		TriggerKind:       normalizeTriggerKind(viper.GetString("TRIGGER_KIND")),
		SQSQueueURL:       viper.GetString("SQS_QUEUE_URL"),
		TriggerWebhookURL: viper.GetString("TRIGGER_WEBHOOK_URL"),

		MaxFileSizeBytes:  viper.GetInt64("MAX_FILE_SIZE_BYTES"),
		AllowedExtensions: splitAndTrim(strings.ToLower(viper.GetString("ALLOWED_EXTENSIONS"))),
		ExtractionEnabled: viper.GetBool("EXTRACTION_ENABLED"),
		PresignTTL:        time.Duration(viper.GetInt("PRESIGN_TTL_MINUTES")) * time.Minute,

		RateLimitRPS:   viper.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst: viper.GetInt("RATE_LIMIT_BURST"),
		RedisAddr:      viper.GetString("REDIS_ADDR"),
		RedisPassword:  viper.GetString("REDIS_PASSWORD"),
		RedisDB:        viper.GetInt("REDIS_DB"),

		RetryAttempts: viper.GetInt("RETRY_ATTEMPTS"),
		RetryDelay:    time.Duration(viper.GetInt("RETRY_DELAY_MS")) * time.Millisecond,

		ReconcileDryRun:      viper.GetBool("RECONCILE_DRY_RUN"),
		ReconcileConcurrency: viper.GetInt("RECONCILE_CONCURRENCY"),
		ReconcilePageSize:    viper.GetInt("RECONCILE_PAGE_SIZE"),
	}
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "test":
		return "test"
	case "staging":
		return "staging"
	default:
		return "dev"
	}
}

func normalizeStoreBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "minio":
		return "minio"
	default:
		return "local"
	}
}

func normalizeIndexDriver(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "pg":
		return "postgres"
	case "mongo", "mongodb":
		return "mongo"
	default:
		return "memory"
	}
}

func normalizeTriggerKind(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sqs":
		return "sqs"
	case "webhook":
		return "webhook"
	default:
		return "none"
	}
}
