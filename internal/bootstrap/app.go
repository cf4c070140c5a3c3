package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	googleauth "estimate-backend/internal/auth"
	"estimate-backend/internal/artifacts"
	"estimate-backend/internal/documents"
	"estimate-backend/internal/entitlement"
	"estimate-backend/internal/estimates"
	"estimate-backend/internal/pipeline"
	"estimate-backend/internal/shared/config"
	"estimate-backend/internal/shared/server"
	"estimate-backend/internal/shared/storage/db"
	"estimate-backend/internal/shared/storage/object"
	localstore "estimate-backend/internal/shared/storage/object/local"
	s3store "estimate-backend/internal/shared/storage/object/s3"
	"estimate-backend/internal/users"
	"estimate-backend/internal/workspace"
)

// App holds the wired dependencies for one server process.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore

	Artifacts  *artifacts.Adapter
	Workspaces *workspace.Manager
	Runner     estimates.PipelineRunner

	DocumentsRepo documents.DocumentsRepo
	EstimatesRepo estimates.Repo
	UsersRepo     users.Repo

	DocumentsService   *documents.Service
	EstimatesService   *estimates.Service
	EntitlementService *entitlement.Service
	UsersService       *users.Service

	DocumentsHandler   *documents.Handler
	EstimatesHandler   *estimates.Handler
	EntitlementHandler *entitlement.Handler
	UsersHandler       *users.Handler
	GoogleAuth         *googleauth.GoogleService
}

// Build prepares shared dependencies and wires the router. Everything is
// constructed once here; nothing is resolved ad hoc at request time.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	runner, err := buildRunner(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:     cfg,
		DB:         sqlDB,
		Store:      store,
		Artifacts:  artifacts.NewAdapter(store, cfg.AssetBaseURL, cfg.AssetLegacyURLs),
		Workspaces: workspace.New(cfg.WorkspaceDir, cfg.CleanupGrace),
		Runner:     runner,
	}

	buildServices(app)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:             app.Config,
		DocumentsHandler:   app.DocumentsHandler,
		EstimatesHandler:   app.EstimatesHandler,
		EntitlementHandler: app.EntitlementHandler,
		UsersHandler:       app.UsersHandler,
		GoogleAuth:         app.GoogleAuth,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.AWSRegion) == "" || strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires AWS_REGION and S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

// buildRunner resolves the external pipeline once at startup. A missing
// installation is fatal in production; in development the server still comes
// up and generation requests surface the resolution error.
func buildRunner(cfg config.Config) (estimates.PipelineRunner, error) {
	runner, err := pipeline.NewRunner(cfg.PipelineDir, cfg.PipelineTimeout)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: pipeline tools not found; generation disabled: %v", err)
			return unavailableRunner{err: err}, nil
		}
		return nil, err
	}
	return runner, nil
}

type unavailableRunner struct {
	err error
}

func (r unavailableRunner) Run(context.Context, string, string, string) (*pipeline.Result, error) {
	return nil, r.err
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) {
	var docRepo documents.DocumentsRepo
	var estRepo estimates.Repo
	var userRepo users.Repo
	var entitlementSvc *entitlement.Service

	if app.DB != nil {
		docRepo = &documents.PGRepo{DB: app.DB}
		estRepo = &estimates.PGRepo{DB: app.DB}
		userRepo = &users.PGRepo{DB: app.DB}
		entitlementSvc = entitlement.NewPostgresService(entitlement.NewPGStore(app.DB))
	} else {
		docRepo = documents.NewMemoryRepo()
		estRepo = estimates.NewMemoryRepo()
		userRepo = users.NewMemoryRepo()
		entitlementSvc = entitlement.NewAllowAllService()
	}

	docSvc := &documents.Service{
		Artifacts: app.Artifacts,
		Repo:      docRepo,
		MaxBytes:  app.Config.MaxUploadBytes,
	}

	estSvc := &estimates.Service{
		Repo:         estRepo,
		Docs:         docRepo,
		Artifacts:    app.Artifacts,
		Workspaces:   app.Workspaces,
		Runner:       app.Runner,
		Materializer: &estimates.Materializer{Repo: estRepo},
		DB:           app.DB,
		Cooldown:     app.Config.CooldownDuration,
		CleanupGrace: app.Config.CleanupGrace,
	}

	userSvc := users.NewService(userRepo)
	googleAuthSvc := googleauth.NewGoogleService(
		app.Config.GoogleClientID,
		app.Config.GoogleClientSecret,
		app.Config.GoogleRedirectURL,
		app.Config.UIRedirectURL,
		userSvc,
	)

	app.DocumentsRepo = docRepo
	app.EstimatesRepo = estRepo
	app.UsersRepo = userRepo
	app.DocumentsService = docSvc
	app.EstimatesService = estSvc
	app.EntitlementService = entitlementSvc
	app.UsersService = userSvc
	app.DocumentsHandler = documents.NewHandler(docSvc)
	app.EstimatesHandler = estimates.NewHandler(estSvc, entitlementSvc, app.Config.IsDev())
	app.EntitlementHandler = entitlement.NewHandler(entitlementSvc)
	app.UsersHandler = users.NewHandler(userSvc)
	app.GoogleAuth = googleAuthSvc
}
