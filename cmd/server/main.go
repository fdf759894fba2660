package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/JustJay7/court-sync/internal/cache"
	"github.com/JustJay7/court-sync/internal/config"
	"github.com/JustJay7/court-sync/internal/courtapi"
	"github.com/JustJay7/court-sync/internal/courtsync"
	"github.com/JustJay7/court-sync/internal/database"
	"github.com/JustJay7/court-sync/internal/metrics"
	"github.com/JustJay7/court-sync/internal/repository"
	"github.com/JustJay7/court-sync/internal/scheduler"
	"github.com/JustJay7/court-sync/internal/server"
	"github.com/JustJay7/court-sync/pkg/logger"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
)

// app carries the wired dependencies shared by every command.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	repo    *repository.Repository
	tokens  cache.TokenCache
	metrics *metrics.Metrics
	service *courtsync.Service
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "court-sync",
		Short:         "Synchronizes legal proceedings from court APIs",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.AddCommand(
		a.serveCmd(),
		a.migrateCmd(),
		a.seedCmd(),
		a.syncCmd(),
		a.testConnectionCmd(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := database.Initialize(cfg.DatabaseDriver, cfg.DatabaseSource())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	var tokens cache.TokenCache
	switch cfg.TokenCache {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		tokens = cache.NewRedisCache(client, "court-sync:token:", nil)
	default:
		tokens = cache.NewMemoryCache(cfg.CacheSize, cfg.TokenTTL, nil)
	}

	m := metrics.New()
	client := courtapi.NewClient(tokens,
		courtapi.WithTimeouts(cfg.CourtHTTPTimeout, cfg.CourtAuthTimeout),
		courtapi.WithTokenTTL(cfg.TokenTTL),
		courtapi.WithLogger(log),
		courtapi.WithObserver(m),
	)
	repo := repository.New(db)

	a.cfg = cfg
	a.log = log
	a.repo = repo
	a.tokens = tokens
	a.metrics = m
	a.service = courtsync.NewService(repo, client,
		courtsync.WithMetrics(m),
		courtsync.WithLogger(log),
	)
	return nil
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the schedule runner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.CourtsFile != "" {
				if err := a.seed(a.cfg.CourtsFile); err != nil {
					return err
				}
			}

			var sched *scheduler.Scheduler
			if a.cfg.SchedulerEnabled {
				var err error
				sched, err = scheduler.New(a.service, a.cfg.SchedulerSpec, a.log)
				if err != nil {
					return err
				}
			}

			srv := server.New(a.cfg, a.repo, a.service, a.tokens, a.metrics, sched, a.log)

			a.log.Info("Starting Court Sync",
				"host", a.cfg.Host,
				"port", a.cfg.Port,
				"database", a.cfg.DatabaseDriver,
				"token_cache", a.cfg.TokenCache,
				"scheduler", a.cfg.SchedulerEnabled,
			)
			return srv.Run()
		},
	}
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			// setup already migrated the schema
			a.log.Info("Database migrations completed successfully")
			return nil
		},
	}
}

func (a *app) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-courts [file]",
		Short: "Create or update courts from a YAML file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.CourtsFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no courts file given and COURTS_FILE is not set")
			}
			return a.seed(path)
		},
	}
}

func (a *app) seed(path string) error {
	n, err := database.SeedCourts(a.repo.DB(), path)
	if err != nil {
		return fmt.Errorf("failed to seed courts: %w", err)
	}
	a.log.Info("Courts seeded", "file", path, "count", n)
	return nil
}

func (a *app) syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run synchronizations once from the command line",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "schedules",
		Short: "Run every schedule that is due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			results, err := a.service.RunPendingSchedules(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, results)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "court <court-id> [process-number...]",
		Short: "Synchronize the given processes, or every active process of the court",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			court, err := a.court(ctx, args[0])
			if err != nil {
				return err
			}

			var log *database.CourtSyncLog
			if len(args) > 1 {
				log = a.service.SyncMultipleProcesses(ctx, court, args[1:], nil, courtsync.Actor{UserAgent: "court-sync-cli"})
			} else {
				log = a.service.SyncAllActiveProcesses(ctx, court, nil, courtsync.Actor{UserAgent: "court-sync-cli"})
			}
			if err := printJSON(cmd, log); err != nil {
				return err
			}
			if log.Status == database.SyncFailed {
				return fmt.Errorf("synchronization failed: %s", log.ErrorMessage)
			}
			return nil
		},
	})

	return cmd
}

func (a *app) testConnectionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection <court-id>",
		Short: "Check connectivity and credentials of a court",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			court, err := a.court(ctx, args[0])
			if err != nil {
				return err
			}

			status := a.service.TestConnection(ctx, court)
			if err := printJSON(cmd, status); err != nil {
				return err
			}
			if !status.Success {
				return fmt.Errorf("connection to %s failed", court.Name)
			}
			return nil
		},
	}
}

func (a *app) court(ctx context.Context, raw string) (*database.Court, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid court id %q", raw)
	}
	court, err := a.repo.GetCourt(ctx, uint(id))
	if err != nil {
		return nil, fmt.Errorf("court %d: %w", id, err)
	}
	return court, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
