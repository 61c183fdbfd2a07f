package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freightwise/shipmentqa/internal/db"
	mid "github.com/freightwise/shipmentqa/internal/server/middleware"
	"github.com/freightwise/shipmentqa/internal/storage"
	"github.com/freightwise/shipmentqa/internal/util"
	"github.com/freightwise/shipmentqa/pkg/analytics"
	"github.com/freightwise/shipmentqa/pkg/leaselock"
	"github.com/freightwise/shipmentqa/pkg/logger"
	"github.com/freightwise/shipmentqa/pkg/pipeline"
	"github.com/freightwise/shipmentqa/pkg/scope"
	scopepgx "github.com/freightwise/shipmentqa/pkg/scope/pgx"
	searchpgx "github.com/freightwise/shipmentqa/pkg/search/pgx"
	"github.com/freightwise/shipmentqa/pkg/session"

	aiopenai "github.com/freightwise/shipmentqa/pkg/ai/openai"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	var key *keyfunc.Keyfunc
	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := util.Retry(3, func() (keyfunc.Keyfunc, error) {
			return keyfunc.NewDefault([]string{authURL + "/jwks"})
		})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		key = &k
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	databaseURL := util.GetEnv("DATABASE_URL")
	if databaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}
	conn, err := db.Connect(ctx, databaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	if path := util.GetEnvString("MIGRATIONS_PATH", "internal/db/migrations"); path != "" {
		locks := leaselock.New(conn)
		if err := locks.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to prepare lock table", "err", err)
		}
		err := locks.WithLease(ctx, "migrations", leaselock.Options{Wait: true}, func(ctx context.Context) error {
			return db.RunMigrations(databaseURL, path)
		})
		if err != nil {
			logger.Fatal("Failed to run migrations", "err", err)
		}
	}

	sessions := newSessionStore(ctx)

	dataset := loadDataset(ctx)
	catalog := analytics.DefaultCatalog()

	pipe := &pipeline.Pipeline{
		Searcher:         searchpgx.NewDocSearcher(conn),
		Tabular:          analytics.NewMemoryBackend(catalog, dataset),
		Catalog:          catalog,
		Sessions:         sessions,
		Hierarchy:        newHierarchy(conn),
		SearchTimeout:    util.GetEnvDuration("SEARCH_TIMEOUT_MS", 10*time.Second),
		AnalyticsTimeout: util.GetEnvDuration("ANALYTICS_TIMEOUT_MS", 15*time.Second),
	}
	if embedKey := util.GetEnv("AI_EMBED_KEY"); embedKey != "" {
		pipe.Embedder = aiopenai.NewClient(aiopenai.NewClientParams{
			EmbeddingModel: util.GetEnvString("AI_EMBED_MODEL", "text-embedding-3-small"),
			EmbeddingURL:   util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey:   embedKey,
		})
	}

	app := &mid.App{
		Pipeline:     pipe,
		Sessions:     sessions,
		Registry:     scope.LoadIdentityRegistry(),
		Key:          key,
		MasterAPIKey: util.GetEnv("MASTER_API_KEY"),
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

// newSessionStore picks redis when configured, in-process memory otherwise.
func newSessionStore(ctx context.Context) session.Store {
	ttl := util.GetEnvDuration("SESSION_TTL_MS", 30*time.Minute)

	addr := util.GetEnv("REDIS_ADDR")
	if addr == "" {
		return session.NewMemoryStore(ttl)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: util.GetEnv("REDIS_PASSWORD"),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to redis", "err", err)
	}
	return session.NewRedisStore(client, ttl)
}

// newHierarchy prefers the static JSON mapping when provided, falling back
// to the database hierarchy table.
func newHierarchy(conn *pgxpool.Pool) scope.Hierarchy {
	if util.GetEnv("CONSIGNEE_HIERARCHY_JSON") != "" {
		return scope.LoadStaticHierarchy()
	}
	return scopepgx.NewHierarchy(conn)
}

// loadDataset reads the analytics master dataset from S3 when a bucket is
// configured, or from a local CSV path.
func loadDataset(ctx context.Context) *analytics.Dataset {
	if util.GetEnv("AWS_BUCKET") != "" {
		s3Client := storage.NewS3Client(ctx)
		dataset, err := storage.LoadAnalyticsDataset(ctx, s3Client)
		if err != nil {
			logger.Fatal("Failed to load analytics dataset", "err", err)
		}
		return dataset
	}

	path := util.GetEnv("ANALYTICS_DATASET_PATH")
	if path == "" {
		logger.Fatal("No analytics dataset configured")
	}
	f, err := os.Open(path)
	if err != nil {
		logger.Fatal("Failed to open analytics dataset", "err", err)
	}
	defer f.Close()

	dataset, err := analytics.ReadCSV(f)
	if err != nil {
		logger.Fatal("Failed to parse analytics dataset", "err", err)
	}
	return dataset
}
