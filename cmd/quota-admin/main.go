package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-hours-api/internal/repository"
	"github.com/noah-isme/activity-hours-api/internal/service"
	"github.com/noah-isme/activity-hours-api/migrations"
	"github.com/noah-isme/activity-hours-api/pkg/cache"
	"github.com/noah-isme/activity-hours-api/pkg/config"
	"github.com/noah-isme/activity-hours-api/pkg/database"
	"github.com/noah-isme/activity-hours-api/pkg/logger"
)

const usage = `usage: quota-admin <command> [flags]

commands:
  migrate        apply schema migrations: up, up-by-one, up-to N, down, down-to N, redo, reset, status, version
  recompute      re-run the status cascade for a student (optionally one quota category)
  copy-term      copy quota categories from one term into another
  hash-password  print a bcrypt hash, or store it for --email
`

var errUsage = errors.New("invalid usage")

var (
	openDB    = database.NewPostgres
	openRedis = cache.NewRedis
	gooseRun  = goose.RunContext
)

var migrateCommands = map[string]bool{
	"up": true, "up-by-one": true, "up-to": true, "down": true, "down-to": true,
	"redo": true, "reset": true, "status": true, "version": true,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, logr, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		logr.Error("command failed", zap.String("command", os.Args[1]), zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger, command string, args []string, out io.Writer) error {
	switch command {
	case "migrate":
		return migrate(ctx, cfg, logr, args)
	case "recompute":
		return recompute(ctx, cfg, logr, args, out)
	case "copy-term":
		return copyTerm(ctx, cfg, logr, args, out)
	case "hash-password":
		return hashPassword(ctx, cfg, args, out)
	default:
		return errUsage
	}
}

func migrate(ctx context.Context, cfg *config.Config, logr *zap.Logger, args []string) error {
	if len(args) == 0 || !migrateCommands[args[0]] {
		return fmt.Errorf("%w: migrate needs one of up, up-by-one, up-to, down, down-to, redo, reset, status, version", errUsage)
	}
	if (args[0] == "up-to" || args[0] == "down-to") && len(args) < 2 {
		return fmt.Errorf("%w: %s needs a VERSION", errUsage, args[0])
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(zap.NewStdLog(logr))
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return gooseRun(ctx, args[0], db.DB, ".", args[1:]...)
}

func recompute(ctx context.Context, cfg *config.Config, logr *zap.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("recompute", flag.ContinueOnError)
	studentID := fs.String("student", "", "student id")
	quotaCategoryID := fs.String("quota-category", "", "quota category id; all of the student's categories when empty")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *studentID == "" {
		return fmt.Errorf("%w: --student is required", errUsage)
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	metrics := service.NewMetricsService()
	invalidator, closeCache := directInvalidator(cfg, logr, metrics)
	defer closeCache()

	activityRepo := repository.NewActivityRepository(db)
	engine := service.NewQuotaEngine(
		repository.NewQuotaStore(db, cfg.Quota.LockTimeout),
		activityRepo,
		invalidator,
		metrics,
		logr,
		service.QuotaEngineConfig{
			BatchSize:       cfg.Quota.CascadeBatchSize,
			ZeroLimitPolicy: service.ParseZeroLimitPolicy(cfg.Quota.ZeroLimitPolicy),
		},
	)

	pairs := []string{*quotaCategoryID}
	if *quotaCategoryID == "" {
		pairs, err = activityRepo.ListStudentPairs(ctx, *studentID)
		if err != nil {
			return err
		}
	}

	total := 0
	for _, qc := range pairs {
		changed, err := engine.Recompute(ctx, *studentID, qc)
		if err != nil {
			return fmt.Errorf("recompute %s: %w", qc, err)
		}
		fmt.Fprintf(out, "%s\t%d rewritten\n", qc, changed)
		total += changed
	}
	fmt.Fprintf(out, "done: %d categories, %d rewritten\n", len(pairs), total)
	return nil
}

func copyTerm(ctx context.Context, cfg *config.Config, logr *zap.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("copy-term", flag.ContinueOnError)
	from := fs.String("from", "", "source term id")
	to := fs.String("to", "", "destination term id")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *from == "" || *to == "" {
		return fmt.Errorf("%w: --from and --to are required", errUsage)
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	result, err := repository.NewQuotaCategoryRepository(db).CopyFromTerm(ctx, *to, *from)
	if err != nil {
		return err
	}
	logr.Info("quota categories copied", zap.String("from", *from), zap.String("to", *to), zap.Int("created", result.Created))
	fmt.Fprintf(out, "created %d, skipped %d\n", result.Created, result.Skipped)
	return nil
}

func hashPassword(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	password := fs.String("password", "", "plain text password")
	email := fs.String("email", "", "store the hash for this user")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *password == "" {
		return fmt.Errorf("%w: --password is required", errUsage)
	}

	hash, err := service.HashPassword(*password)
	if err != nil {
		return err
	}
	if *email == "" {
		fmt.Fprintln(out, hash)
		return nil
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	if err := repository.NewUserRepository(db).UpdatePassword(ctx, *email, hash); err != nil {
		return err
	}
	fmt.Fprintf(out, "password updated for %s\n", *email)
	return nil
}

// directInvalidator drops cached summaries synchronously; a CLI run has no
// queue to hand them to. The returned func closes the redis client.
func directInvalidator(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService) (service.HoursInvalidator, func()) {
	var client *redis.Client
	if cfg.HoursCache.Enabled {
		c, err := openRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, cached summaries expire by TTL", zap.Error(err))
		} else {
			client = c
		}
	}
	closer := func() {
		if client != nil {
			_ = client.Close()
		}
	}
	cacheSvc := service.NewCacheService(repository.NewCacheRepository(client, logr), metrics, cfg.HoursCache.TTL, logr, client != nil)
	return service.NewDirectInvalidator(cacheSvc, logr), closer
}
