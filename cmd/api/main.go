package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sanar/product-scheduler/internal/config"
	"github.com/sanar/product-scheduler/internal/handler"
	"github.com/sanar/product-scheduler/internal/middleware"
	"github.com/sanar/product-scheduler/internal/migration"
	"github.com/sanar/product-scheduler/internal/plugin"
	"github.com/sanar/product-scheduler/internal/repository"
	"github.com/sanar/product-scheduler/internal/routes"
	"github.com/sanar/product-scheduler/internal/scheduler"
	"github.com/sanar/product-scheduler/internal/service"
	"github.com/sanar/product-scheduler/pkg/cache"
	"github.com/sanar/product-scheduler/pkg/lock"
	"github.com/sanar/product-scheduler/pkg/logger"
	redisclient "github.com/sanar/product-scheduler/pkg/redis"
)

// @title Product Scheduler API
// @version 1.0
// @description Schedules all-or-nothing replacement of product content with prepared revisions.
// @BasePath /api/v1
func main() {
	logger.Init()
	loaded := config.LoadDotEnv()

	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger.InitStructured(cfg.App.Env)
	log := logger.GetLogger()
	if len(loaded) > 0 {
		log.Info().Strs("files", loaded).Msg("env files loaded")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}

	if err := migration.Run(db); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	redisClient, err := redisclient.NewClient(
		cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
	if err != nil {
		// Degraded mode: applies still run, but without cross-instance
		// locking or caching. Single-instance deployments work fine.
		log.Warn().Err(err).Msg("redis unavailable, running without locks and cache")
		redisClient = nil
	}

	productRepo := repository.NewProductRepository(db)
	revisionRepo := repository.NewRevisionRepository(db)
	systemRepo := repository.NewSystemRepository(db)

	cacheSvc := cache.NewService(redisClient)
	hooks := plugin.NewHookManager()

	var locks service.ProductLocker
	if redisClient != nil {
		locks = lock.NewManager(redisClient, cfg.Scheduler.LockTTL)
	} else {
		locks = localLocker{}
	}

	applySvc := service.NewApplyService(productRepo, revisionRepo, systemRepo, hooks, cacheSvc, cfg.Scheduler.ProtectedMetaKeys)
	revisionSvc := service.NewRevisionService(revisionRepo, productRepo)
	schedulerSvc := service.NewSchedulerService(revisionRepo, cacheSvc)
	runnerSvc := service.NewRunnerService(revisionRepo, systemRepo, applySvc, locks, cfg.Scheduler.BatchSize)
	migrationSvc := service.NewMigrationService(revisionRepo, productRepo, systemRepo)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ticker := scheduler.NewTicker(cfg.Scheduler.TickInterval)
	ticker.Register("due-scan", cfg.Scheduler.TickInterval, func(ctx context.Context) error {
		_, err := runnerSvc.RunDueNow(ctx, 0)
		return err
	})
	ticker.Register("legacy-migration", time.Hour, func(ctx context.Context) error {
		if _, err := migrationSvc.MigrateLegacy(ctx, 0); err != nil {
			return err
		}
		_, err := migrationSvc.NormalizeTimestamps(ctx)
		return err
	})
	ticker.Start(ctx)
	defer ticker.Stop()

	router := buildRouter(cfg, revisionSvc, schedulerSvc, runnerSvc, migrationSvc, systemRepo)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("api server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}
	if cfg.IsDevelopment() {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}
	return gorm.Open(mysql.Open(cfg.Database.GetDSN()), gormCfg)
}

func buildRouter(
	cfg *config.Config,
	revisionSvc service.RevisionService,
	schedulerSvc service.SchedulerService,
	runnerSvc service.RunnerService,
	migrationSvc service.MigrationService,
	systemRepo repository.SystemRepository,
) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.Metrics())

	corsCfg := cors.DefaultConfig()
	if cfg.CORS.AllowOrigins != "" {
		corsCfg.AllowOrigins = strings.Split(cfg.CORS.AllowOrigins, ",")
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "X-Cron-Key", "X-Request-ID")
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.IsDevelopment() {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	revisionHandler := handler.NewRevisionHandler(revisionSvc, schedulerSvc)
	schedulerHandler := handler.NewSchedulerHandler(runnerSvc, schedulerSvc, migrationSvc, systemRepo)
	routes.Setup(r, revisionHandler, schedulerHandler, cfg.Scheduler.CronKey)

	return r
}

// localLocker is the degraded single-instance fallback when Redis is
// down. The in-process guard in the runner already prevents overlap
// within one instance.
type localLocker struct{}

func (localLocker) Acquire(ctx context.Context, productID uint64) (bool, error) { return true, nil }
func (localLocker) Release(ctx context.Context, productID uint64) error         { return nil }
