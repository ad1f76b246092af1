package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sanar/product-scheduler/internal/config"
	"github.com/sanar/product-scheduler/internal/migration"
	"github.com/sanar/product-scheduler/internal/plugin"
	"github.com/sanar/product-scheduler/internal/repository"
	"github.com/sanar/product-scheduler/internal/service"
	"github.com/sanar/product-scheduler/pkg/cache"
	"github.com/sanar/product-scheduler/pkg/lock"
	"github.com/sanar/product-scheduler/pkg/logger"
	redisclient "github.com/sanar/product-scheduler/pkg/redis"
)

const usage = `Usage:
  scheduler run --due-now [--limit N]   process all currently due revisions
  scheduler run --id N                  process one scheduled revision now
  scheduler list --scheduled [--limit N] [--offset N]
                                        list scheduled revisions, soonest first
  scheduler retry <revision-id>         requeue a failed revision
  scheduler migrate [--batch N]         run one legacy-migration batch
  scheduler migrate --timestamps        backfill unix due timestamps
  scheduler state                       show migration progress
`

type app struct {
	revisions service.RevisionService
	scheduler service.SchedulerService
	runner    service.RunnerService
	migration service.MigrationService
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	logger.Init()
	config.LoadDotEnv()
	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.InitStructured(cfg.App.Env)

	a, err := wire(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	switch os.Args[1] {
	case "run":
		err = a.cmdRun(ctx, os.Args[2:])
	case "list":
		err = a.cmdList(ctx, os.Args[2:])
	case "retry":
		err = a.cmdRetry(ctx, os.Args[2:])
	case "migrate":
		err = a.cmdMigrate(ctx, os.Args[2:])
	case "state":
		err = a.cmdState(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

func wire(cfg *config.Config) (*app, error) {
	db, err := gorm.Open(mysql.Open(cfg.Database.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := migration.Run(db); err != nil {
		return nil, fmt.Errorf("schema migration: %w", err)
	}

	redisClient, err := redisclient.NewClient(
		cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
	if err != nil {
		logger.GetLogger().Warn().Err(err).Msg("redis unavailable, running without locks and cache")
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
		locks = noLocker{}
	}

	applySvc := service.NewApplyService(productRepo, revisionRepo, systemRepo, hooks, cacheSvc, cfg.Scheduler.ProtectedMetaKeys)
	return &app{
		revisions: service.NewRevisionService(revisionRepo, productRepo),
		scheduler: service.NewSchedulerService(revisionRepo, cacheSvc),
		runner:    service.NewRunnerService(revisionRepo, systemRepo, applySvc, locks, cfg.Scheduler.BatchSize),
		migration: service.NewMigrationService(revisionRepo, productRepo, systemRepo),
	}, nil
}

func (a *app) cmdRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dueNow := fs.Bool("due-now", false, "process all currently due revisions")
	id := fs.Uint64("id", 0, "process one revision by id")
	limit := fs.Int("limit", 0, "batch limit override")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *id > 0:
		result, err := a.runner.RunOne(ctx, *id)
		if err != nil {
			// A skipped or locked revision is an outcome, not a wiring
			// failure.
			fmt.Printf("revision %d: %s (%v)\n", *id, result, err)
			return nil
		}
		fmt.Printf("revision %d: %s\n", *id, result)
		return nil
	case *dueNow:
		summary, err := a.runner.RunDueNow(ctx, *limit)
		if err != nil {
			return err
		}
		return printJSON(summary)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
		return nil
	}
}

func (a *app) cmdList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	scheduled := fs.Bool("scheduled", false, "list scheduled revisions")
	limit := fs.Int("limit", 50, "page size")
	offset := fs.Int("offset", 0, "page offset")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*scheduled {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	revs, total, err := a.scheduler.ListScheduled(ctx, *limit, *offset)
	if err != nil {
		return err
	}

	fmt.Printf("%-8s %-10s %-20s %-24s %s\n", "ID", "PRODUCT", "STATUS", "DUE (UTC)", "TITLE")
	for _, rev := range revs {
		due := rev.ScheduledAtUTC
		if due == "" && rev.ScheduledAt > 0 {
			due = time.Unix(rev.ScheduledAt, 0).UTC().Format(time.RFC3339)
		}
		fmt.Printf("%-8d %-10d %-20s %-24s %s\n", rev.ID, rev.ProductID, rev.Status, due, rev.Title)
	}
	fmt.Printf("total: %d\n", total)
	return nil
}

func (a *app) cmdRetry(ctx context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	rev, err := a.runner.Retry(ctx, id)
	if err != nil {
		fmt.Printf("revision %d: not retried (%v)\n", id, err)
		return nil
	}
	fmt.Printf("revision %d requeued, due %s\n", rev.ID, rev.ScheduledAtUTC)
	return nil
}

func (a *app) cmdMigrate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	batch := fs.Int("batch", 0, "batch size (1-500)")
	timestamps := fs.Bool("timestamps", false, "backfill unix due timestamps")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *timestamps {
		summary, err := a.migration.NormalizeTimestamps(ctx)
		if err != nil {
			return err
		}
		return printJSON(summary)
	}

	summary, err := a.migration.MigrateLegacy(ctx, *batch)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func (a *app) cmdState(ctx context.Context) error {
	state, err := a.migration.State(ctx)
	if err != nil {
		return err
	}
	return printJSON(state)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// noLocker runs without cross-instance locking when Redis is down
type noLocker struct{}

func (noLocker) Acquire(ctx context.Context, productID uint64) (bool, error) { return true, nil }
func (noLocker) Release(ctx context.Context, productID uint64) error         { return nil }
