package app

import (
	"context"
	"fmt"
	nethttp "net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/veridata/trialbridge-backend/internal/clients/redis"
	"github.com/veridata/trialbridge-backend/internal/data/db"
	"github.com/veridata/trialbridge-backend/internal/jobs"
	"github.com/veridata/trialbridge-backend/internal/pkg/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services

	lock   redis.RunLock
	server *nethttp.Server
	cancel context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	lock, err := redis.NewRunLock(cfg.RedisAddr, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init redis run lock: %w", err)
	}

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, reposet, lock)
	if err != nil {
		log.Sync()
		return nil, err
	}

	if cfg.CRFSchemaPath != "" {
		if _, err := serviceset.CRF.SeedFromFile(context.Background(), cfg.CRFSchemaPath); err != nil {
			log.Sync()
			return nil, fmt.Errorf("seed CRF schema: %w", err)
		}
	}

	handlerset := wireHandlers(log, serviceset)
	router := wireRouter(cfg, log, handlerset)

	return &App{
		Log:      log,
		DB:       theDB,
		Router:   router,
		Cfg:      cfg,
		Repos:    reposet,
		Services: serviceset,
		lock:     lock,
	}, nil
}

func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	worker := jobs.NewAnchorWorker(a.Log, a.Services.Anchor, a.Cfg.AnchorInterval)
	worker.Start(ctx)

	a.server = &nethttp.Server{
		Addr:    ":" + a.Cfg.Port,
		Handler: a.Router,
	}
	a.Log.Info("HTTP server listening", "port", a.Cfg.Port)
	if err := a.server.ListenAndServe(); err != nil && err != nethttp.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.server.Shutdown(ctx)
	}
	if a.lock != nil {
		_ = a.lock.Close()
	}
	a.Log.Sync()
}
