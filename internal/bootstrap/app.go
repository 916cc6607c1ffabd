package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"chartyap-backend/internal/analysis"
	"chartyap-backend/internal/analysis/remote"
	"chartyap-backend/internal/events"
	"chartyap-backend/internal/gallery/raster"
	"chartyap-backend/internal/runs"
	"chartyap-backend/internal/services/health"
	"chartyap-backend/internal/session"
	"chartyap-backend/internal/shared/config"
	"chartyap-backend/internal/shared/server"
	"chartyap-backend/internal/shared/server/middleware"
	"chartyap-backend/internal/shared/storage/db"
	"chartyap-backend/internal/shared/storage/object"
	localstore "chartyap-backend/internal/shared/storage/object/local"
	s3store "chartyap-backend/internal/shared/storage/object/s3"
)

// App holds shared dependencies.
type App struct {
	Config   config.Config
	Router   *gin.Engine
	DB       *sql.DB
	Store    object.ObjectStore
	Events   events.Publisher
	Runs     runs.Repo
	Analysis analysis.Client
	Engine   *raster.Engine
	Sessions *session.Manager
	Health   *health.Service
}

// Build prepares shared dependencies and wires routes.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	publisher, err := buildEvents(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client, err := remote.New(cfg.AnalysisBaseURL, cfg.AnalysisTimeout, cfg.MaxDatasetRows)
	if err != nil {
		return nil, fmt.Errorf("analysis client: %w", err)
	}

	app := &App{
		Config:   cfg,
		DB:       sqlDB,
		Store:    store,
		Events:   publisher,
		Runs:     buildRuns(sqlDB),
		Analysis: analysis.WithRetry(client, cfg.AnalysisRetries),
		Engine:   raster.New(),
		Health:   health.NewService(client),
	}
	app.Sessions = session.NewManager(session.Deps{
		Objects:             app.Store,
		Analysis:            app.Analysis,
		Engine:              app.Engine,
		Runs:                app.Runs,
		Events:              app.Events,
		PreviewMaxDimension: cfg.PreviewMaxDimension,
		PreviewMaxPixels:    cfg.PreviewMaxPixels,
	}, cfg.SessionIdleTTL)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:         app.Config,
		SessionHandler: session.NewHandler(app.Sessions, app.Runs, cfg.UploadMaxBytes),
		Health:         app.Health,
		RateLimiter:    middleware.NewRateLimiter(nil),
	})

	return app, nil
}

// Close releases sessions and the database pool.
func (a *App) Close(ctx context.Context) error {
	err := a.Sessions.Close(ctx)
	if a.DB != nil {
		if cerr := a.DB.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory run history")
		}
		return nil, nil
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory run history: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildRuns(sqlDB *sql.DB) runs.Repo {
	if sqlDB != nil {
		return &runs.PGRepo{DB: sqlDB}
	}
	return runs.NewMemoryRepo()
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildEvents(ctx context.Context, cfg config.Config) (events.Publisher, error) {
	if strings.TrimSpace(cfg.EventsQueueURL) == "" {
		return events.Nop{}, nil
	}
	return events.NewSQSPublisher(ctx, cfg.AWSRegion, cfg.EventsQueueURL)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
