package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"document-backend/internal/documents"
	"document-backend/internal/llm"
	"document-backend/internal/llm/gemini"
	"document-backend/internal/llm/openai"
	"document-backend/internal/queue"
	"document-backend/internal/services/health"
	"document-backend/internal/shared/config"
	"document-backend/internal/shared/lock"
	"document-backend/internal/shared/server"
	"document-backend/internal/shared/storage/db"
	"document-backend/internal/shared/storage/object"
	gcsstore "document-backend/internal/shared/storage/object/gcs"
	localstore "document-backend/internal/shared/storage/object/local"
	miniostore "document-backend/internal/shared/storage/object/minio"
	s3store "document-backend/internal/shared/storage/object/s3"
	"document-backend/internal/shared/telemetry"
)

// App holds the composed dependencies of a process.
type App struct {
	Config  config.Config
	Router  *gin.Engine
	Store   object.ObjectStore
	Repo    documents.DocumentsRepo
	LLM     llm.Client
	Service *documents.Service
	Handler *documents.Handler
	Health  *health.Service

	closers []func() error
}

// Option overrides a dependency Build would otherwise construct from config.
type Option func(*overrides)

type overrides struct {
	store object.ObjectStore
	repo  documents.DocumentsRepo
	llm   llm.Client
}

// WithObjectStore uses store instead of the configured blob backend.
func WithObjectStore(store object.ObjectStore) Option {
	return func(o *overrides) { o.store = store }
}

// WithRepo uses repo instead of the configured repository backend.
func WithRepo(repo documents.DocumentsRepo) Option {
	return func(o *overrides) { o.repo = repo }
}

// WithLLMClient uses client instead of the configured provider.
func WithLLMClient(client llm.Client) Option {
	return func(o *overrides) { o.llm = client }
}

// Build wires configuration into a ready-to-serve App.
// On error every resource opened so far is released.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o overrides
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{Config: cfg}
	if err := app.build(ctx, o); err != nil {
		_ = app.Close()
		return nil, err
	}

	telemetry.Info("bootstrap.ready", map[string]any{
		"env":          cfg.Env,
		"object_store": cfg.ObjectStoreType,
		"repo":         cfg.RepoBackend,
		"llm":          providerLabel(cfg, o.llm != nil),
		"redis":        cfg.RedisEnabled(),
		"auto_analyze": app.Service.Queue != nil,
	})
	return app, nil
}

func (a *App) build(ctx context.Context, o overrides) error {
	var err error

	a.Health = health.NewService()

	a.Store = o.store
	if a.Store == nil {
		if a.Store, err = a.buildStore(ctx); err != nil {
			return err
		}
	}

	a.Repo = o.repo
	if a.Repo == nil {
		if a.Repo, err = a.buildRepo(ctx); err != nil {
			return err
		}
	}

	client := o.llm
	if client == nil {
		if client, err = a.buildLLM(ctx); err != nil {
			return err
		}
	}
	a.LLM = llm.Observed{Next: client, Provider: providerLabel(a.Config, o.llm != nil), Timeout: a.Config.LLMTimeout}

	a.Service = documents.NewService(a.Store, a.Repo, a.LLM)
	a.wireRedis()

	a.Handler = documents.NewHandler(a.Service, a.Config.MaxUploadBytes)
	a.Router = server.NewRouter(a.Config, a.Health, a.Handler)
	return nil
}

// Close releases every resource Build opened, in reverse order.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *App) buildStore(ctx context.Context) (object.ObjectStore, error) {
	cfg := a.Config
	switch cfg.ObjectStoreType {
	case "local":
		return localstore.New(cfg.LocalStoreDir, cfg.Bucket), nil
	case "s3":
		return s3store.New(ctx, s3store.Options{
			Region:          cfg.AWSRegion,
			Bucket:          cfg.Bucket,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			ForcePathStyle:  cfg.S3ForcePathStyle,
			KMSKeyID:        cfg.S3KMSKeyID,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
		})
	case "gcs":
		store, client, err := gcsstore.New(ctx, cfg.GCPProjectID, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		a.onClose(client.Close)
		return store, nil
	case "minio":
		return miniostore.New(miniostore.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Region:    cfg.MinioRegion,
			Bucket:    cfg.Bucket,
		})
	default:
		return nil, fmt.Errorf("unknown OBJECT_STORE %q", cfg.ObjectStoreType)
	}
}

func (a *App) buildRepo(ctx context.Context) (documents.DocumentsRepo, error) {
	cfg := a.Config
	var repo documents.DocumentsRepo
	switch cfg.RepoBackend {
	case "memory":
		repo = documents.NewMemoryRepo()
	case "postgres":
		sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, DBOptions(cfg, db.DefaultServerOptions()))
		if err != nil {
			return nil, err
		}
		a.onClose(sqlDB.Close)
		a.Health.Add("postgres", sqlDB.PingContext)
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			return nil, err
		}
		repo = &documents.PGRepo{DB: sqlDB}
	case "firestore":
		fs, err := documents.NewFirestoreRepo(ctx, cfg.GCPProjectID, cfg.FirestoreCollection)
		if err != nil {
			return nil, err
		}
		a.onClose(fs.Close)
		repo = fs
	default:
		return nil, fmt.Errorf("unknown REPO_BACKEND %q", cfg.RepoBackend)
	}

	if cfg.RepoCacheSize > 0 {
		repo = documents.NewCachedRepo(repo, cfg.RepoCacheSize, cfg.RepoCacheTTL)
	}
	return repo, nil
}

func (a *App) buildLLM(ctx context.Context) (llm.Client, error) {
	cfg := a.Config
	switch cfg.LLMProvider {
	case "gemini":
		client, err := gemini.NewClient(ctx, gemini.Options{
			ProjectID: cfg.GCPProjectID,
			Location:  cfg.GeminiLocation,
			Model:     cfg.LLMModel,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(client.Close)
		return client, nil
	case "openai":
		return openai.NewClient(openai.Options{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.LLMModel,
			Timeout: cfg.LLMTimeout,
		})
	case "", "none":
		telemetry.Warn("bootstrap.llm_disabled", map[string]any{"reason": "LLM_PROVIDER=none"})
		return llm.PlaceholderClient{}, nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

// wireRedis attaches the analysis lock and, when enabled, the analysis queue.
func (a *App) wireRedis() {
	cfg := a.Config
	if !cfg.RedisEnabled() {
		if cfg.AutoAnalyze {
			telemetry.Warn("bootstrap.auto_analyze_disabled", map[string]any{"reason": "REDIS_ADDR not set"})
		}
		return
	}

	redisClient := lock.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	a.onClose(redisClient.Close)
	a.Health.Add("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	a.Service.Locker = lock.NewRedisLocker(redisClient, cfg.AnalysisLockTTL)

	if cfg.AutoAnalyze {
		client := asynq.NewClient(RedisOpt(cfg))
		a.onClose(client.Close)
		a.Service.Queue = queue.NewAsynqEnqueuer(client, queue.Options{MaxRetry: cfg.QueueMaxRetry})
	}
}

// DBOptions layers the configured pool settings over defaults.
func DBOptions(cfg config.Config, defaults db.Options) db.Options {
	return defaults.Override(db.Options{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		PingTimeout:     cfg.DBPingTimeout,
	})
}

// RedisOpt returns the asynq connection settings for cfg.
func RedisOpt(cfg config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     strings.TrimSpace(cfg.RedisAddr),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

func providerLabel(cfg config.Config, injected bool) string {
	switch {
	case injected:
		return "custom"
	case cfg.LLMProvider == "":
		return "none"
	default:
		return cfg.LLMProvider
	}
}
