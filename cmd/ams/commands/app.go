package commands

import (
	"context"
	"database/sql"
	"io"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/teranos/AMS/am"
	"github.com/teranos/AMS/ams/authz"
	"github.com/teranos/AMS/ams/destroy"
	"github.com/teranos/AMS/ams/index"
	"github.com/teranos/AMS/ams/ingest"
	"github.com/teranos/AMS/ams/mirror"
	"github.com/teranos/AMS/ams/storage"
	"github.com/teranos/AMS/db"
	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/internal/tracing"
	"github.com/teranos/AMS/logger"
	"github.com/teranos/AMS/pbcore"
	"github.com/teranos/AMS/pulse"
	"github.com/teranos/AMS/pulse/async"
)

// app holds every collaborator a command may need, wired from the am config
type app struct {
	cfg    *am.Config
	db     *sql.DB
	gormDB *gorm.DB
	index  index.Index
	mirror *mirror.Mirror
	deps   *ingest.Deps
	pool   *async.WorkerPool
	log    *zap.SugaredLogger

	shutdownTracing func(context.Context) error
}

// openApp loads configuration and opens the stores. Close must be called.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.OrNop(logger.Logger)

	a := &app{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	a.shutdownTracing, err = tracing.Init(ctx, cfg.Tracing.Enabled, nil, log)
	if err != nil {
		return nil, err
	}

	a.db, err = db.OpenWithMigrations(cfg.GetDatabasePath(), log)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", cfg.GetDatabasePath())
	}

	store := storage.NewDocumentStore(a.db, log.Named("storage"))

	a.gormDB, err = mirror.Open(cfg.Mirror.Path)
	if err != nil {
		return nil, err
	}
	a.mirror, err = mirror.New(a.gormDB, store, log.Named("mirror"))
	if err != nil {
		return nil, err
	}

	a.index, err = index.Open(ctx, cfg, log.Named("index"))
	if err != nil {
		return nil, err
	}

	grants, err := authz.LoadGrants(cfg.Authz.GrantsPath)
	if err != nil {
		return nil, err
	}
	engine, err := authz.NewPolicyEngine(ctx, grants)
	if err != nil {
		return nil, err
	}

	policy, err := pbcore.ParseUnknownTypePolicy(cfg.PBCore.UnknownTypePolicy)
	if err != nil {
		return nil, err
	}

	registry := async.NewHandlerRegistry()
	a.pool = async.NewWorkerPoolWithRegistry(ctx, a.db, async.PoolConfigFromAm(cfg), log, registry)

	a.deps = &ingest.Deps{
		Store:     store,
		Batches:   storage.NewBatchStore(a.db),
		AdminData: storage.NewAdminDataStore(a.db),
		Workflow:  storage.NewWorkflowStore(a.db),
		Users:     storage.NewUserStore(a.db),
		Index:     a.index,
		Mirror:    a.mirror,
		Gate:      authz.NewGate(engine, log.Named("authz")),
		Mapper:    pbcore.NewMapper(cfg.PBCore.Authority, policy),
		Jobs:      a.pool.GetQueue(),
		Logger:    log.Named("ingest"),
	}
	ingest.RegisterHandlers(registry, a.deps)

	ok = true
	return a, nil
}

// destroyer builds a destroyer acting as userEmail, or destroy.user_email when empty
func (a *app) destroyer(userEmail string, progress pulse.ProgressEmitter) *destroy.Destroyer {
	if userEmail == "" {
		userEmail = a.cfg.Destroy.UserEmail
	}
	return destroy.New(destroy.Deps{
		Store:     a.deps.Store,
		Index:     a.index,
		Mirror:    a.mirror,
		Workflow:  a.deps.Workflow,
		Users:     a.deps.Users,
		UserEmail: userEmail,
		Progress:  progress,
		Logger:    a.log,
	})
}

// Close releases everything openApp opened
func (a *app) Close() {
	if a.pool != nil {
		a.pool.Stop()
	}
	if closer, ok := a.index.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.log.Warnw("Failed to close index", logger.FieldError, err)
		}
	}
	if a.gormDB != nil {
		if sqlDB, err := a.gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(context.Background()); err != nil {
			a.log.Warnw("Failed to flush traces", logger.FieldError, err)
		}
	}
}
