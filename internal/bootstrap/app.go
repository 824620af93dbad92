// Package bootstrap builds the application's dependency graph from
// configuration: store backend, index driver, ingestion trigger, rate
// limiter, and the HTTP router on top of them.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"casedocs-backend/internal/documents"
	"casedocs-backend/internal/files"
	"casedocs-backend/internal/ingest"
	"casedocs-backend/internal/reconcile"
	"casedocs-backend/internal/services/health"
	"casedocs-backend/internal/shared/config"
	"casedocs-backend/internal/shared/metrics"
	"casedocs-backend/internal/shared/server"
	"casedocs-backend/internal/shared/storage/db"
	"casedocs-backend/internal/shared/storage/object"
	localstore "casedocs-backend/internal/shared/storage/object/local"
	"casedocs-backend/internal/shared/storage/object/miniostore"
	s3store "casedocs-backend/internal/shared/storage/object/s3"
	"casedocs-backend/internal/uploads"
)

const defaultMongoDatabase = "casedocs"

var registerMetricsOnce sync.Once

// App holds the built dependencies. Everything hanging off it is ready to
// use; Close releases the connections Build opened.
type App struct {
	Config config.Config
	Router *gin.Engine

	DB    *sql.DB
	Mongo *mongo.Client
	Redis *redis.Client

	Store   object.Store
	Repo    documents.Repo
	Trigger ingest.Trigger

	DocumentsService *documents.Service
	DocumentsHandler *documents.Handler
	UploadsHandler   *uploads.Handler
	FilesHandler     *files.Handler
	Health           *health.Service
	Sweeper          *reconcile.Sweeper
}

// Build prepares every dependency and wires the router.
func Build(cfg config.Config) (*App, error) {
	registerMetricsOnce.Do(func() {
		metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	})
	ctx := context.Background()

	store, localStore, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	repo, sqlDB, mongoClient, err := buildRepo(ctx, cfg)
	if err != nil {
		return nil, err
	}

	trigger, err := buildTrigger(ctx, cfg)
	if err != nil {
		return nil, err
	}

	redisClient := buildRedis(ctx, cfg)

	rules := documents.NewRules(cfg.MaxFileSizeBytes, cfg.AllowedExtensions)
	docSvc := &documents.Service{
		Repo:              repo,
		Store:             store,
		Trigger:           trigger,
		Rules:             rules,
		PresignTTL:        cfg.PresignTTL,
		RetryAttempts:     cfg.RetryAttempts,
		RetryDelay:        cfg.RetryDelay,
		ExtractionEnabled: cfg.ExtractionEnabled,
	}

	app := &App{
		Config:  cfg,
		DB:      sqlDB,
		Mongo:   mongoClient,
		Redis:   redisClient,
		Store:   store,
		Repo:    repo,
		Trigger: trigger,

		DocumentsService: docSvc,
		DocumentsHandler: documents.NewHandler(docSvc),
		UploadsHandler:   uploads.NewHandler(store, rules, cfg.PresignTTL),
		Health:           buildHealth(store, repo, sqlDB),
		Sweeper: &reconcile.Sweeper{
			Repo:        repo,
			Store:       store,
			DryRun:      cfg.ReconcileDryRun,
			PageSize:    cfg.ReconcilePageSize,
			Concurrency: cfg.ReconcileConcurrency,
		},
	}
	if localStore != nil {
		app.FilesHandler = files.NewHandler(localStore)
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:    cfg,
		Documents: app.DocumentsHandler,
		Uploads:   app.UploadsHandler,
		Files:     app.FilesHandler,
		Health:    app.Health,
		Redis:     app.Redis,
	})

	return app, nil
}

// Close releases the connections Build opened. Safe on a partially built app.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if a.Mongo != nil {
		if err := a.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect mongo: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

func buildStore(cfg config.Config) (object.Store, *localstore.Store, error) {
	ctx := context.Background()
	switch cfg.StoreBackend {
	case "s3":
		if strings.TrimSpace(cfg.Bucket) == "" {
			return nil, nil, fmt.Errorf("STORE_BACKEND=s3 requires STORE_BUCKET")
		}
		store, err := s3store.New(ctx, cfg.AWSRegion, cfg.Bucket, cfg.StorePrefix, cfg.SSEKMSKeyID)
		if err != nil {
			return nil, nil, fmt.Errorf("build s3 store: %w", err)
		}
		return store, nil, nil
	case "minio":
		if strings.TrimSpace(cfg.MinioEndpoint) == "" || strings.TrimSpace(cfg.Bucket) == "" {
			return nil, nil, fmt.Errorf("STORE_BACKEND=minio requires MINIO_ENDPOINT and STORE_BUCKET")
		}
		store, err := miniostore.New(ctx, miniostore.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Bucket:    cfg.Bucket,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build minio store: %w", err)
		}
		return store, nil, nil
	default:
		store := localstore.New(cfg.LocalStoreDir, cfg.LocalBaseURL, []byte(cfg.JWTSecret))
		return store, store, nil
	}
}

func buildRepo(ctx context.Context, cfg config.Config) (documents.Repo, *sql.DB, *mongo.Client, error) {
	switch cfg.IndexDriver {
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			if isDevLike(cfg.Env) {
				log.Printf("bootstrap: DATABASE_URL empty; using in-memory index")
				return documents.NewMemoryRepo(), nil, nil, nil
			}
			return nil, nil, nil, fmt.Errorf("INDEX_DRIVER=postgres requires DATABASE_URL")
		}

		var (
			sqlDB *sql.DB
			err   error
		)
		if db.IsLambdaRuntime() {
			sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultLambdaOptions()))
		} else {
			sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
		}
		if err != nil {
			if isDevLike(cfg.Env) {
				log.Printf("bootstrap: database connect failed; using in-memory index: %v", err)
				return documents.NewMemoryRepo(), nil, nil, nil
			}
			return nil, nil, nil, err
		}
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		return &documents.PGRepo{DB: sqlDB}, sqlDB, nil, nil

	case "mongo":
		if strings.TrimSpace(cfg.MongoURI) == "" {
			if isDevLike(cfg.Env) {
				log.Printf("bootstrap: MONGO_URI empty; using in-memory index")
				return documents.NewMemoryRepo(), nil, nil, nil
			}
			return nil, nil, nil, fmt.Errorf("INDEX_DRIVER=mongo requires MONGO_URI")
		}
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		dbName := cfg.MongoDatabase
		if dbName == "" {
			dbName = defaultMongoDatabase
		}
		repo, err := documents.NewMongoRepo(ctx, client.Database(dbName).Collection("documents"))
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, nil, fmt.Errorf("prepare mongo index: %w", err)
		}
		return repo, nil, client, nil

	default:
		return documents.NewMemoryRepo(), nil, nil, nil
	}
}

func buildTrigger(ctx context.Context, cfg config.Config) (ingest.Trigger, error) {
	switch cfg.TriggerKind {
	case "sqs":
		if strings.TrimSpace(cfg.SQSQueueURL) == "" {
			return nil, fmt.Errorf("TRIGGER_KIND=sqs requires SQS_QUEUE_URL")
		}
		return ingest.NewSQSTrigger(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
	case "webhook":
		return ingest.NewWebhookTrigger(cfg.TriggerWebhookURL)
	default:
		return ingest.Noop{}, nil
	}
}

func buildRedis(ctx context.Context, cfg config.Config) *redis.Client {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("bootstrap: redis ping failed; rate limiting falls back to fail-open: %v", err)
	}
	return client
}

func buildHealth(store object.Store, repo documents.Repo, sqlDB *sql.DB) *health.Service {
	svc := health.NewService()
	svc.Register("store", func(ctx context.Context) error {
		_, err := store.Stat(ctx, "healthcheck/probe")
		if errors.Is(err, object.ErrNotFound) {
			return nil
		}
		return err
	})
	if sqlDB != nil {
		svc.Register("index", func(ctx context.Context) error {
			return sqlDB.PingContext(ctx)
		})
	} else {
		svc.Register("index", func(ctx context.Context) error {
			_, err := repo.Organizations(ctx)
			return err
		})
	}
	return svc
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local", "test":
		return true
	default:
		return false
	}
}
