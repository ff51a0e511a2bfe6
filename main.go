package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/roadworks/authd/internal/accounts"
	"github.com/roadworks/authd/internal/audit"
	"github.com/roadworks/authd/internal/auth"
	"github.com/roadworks/authd/internal/config"
	"github.com/roadworks/authd/internal/handlers/api"
	"github.com/roadworks/authd/internal/identity"
	"github.com/roadworks/authd/internal/middlewares"
	"github.com/roadworks/authd/internal/policy"
	"github.com/roadworks/authd/internal/sessions"
	"github.com/roadworks/authd/internal/store"
	"github.com/roadworks/authd/model"
	"github.com/roadworks/authd/params"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

var (
	app       *cli.App
	gitCommit string
	gitDate   string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "authd - authentication and session authority for the roadworks back office"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name: "version",
			Action: func(ctx *cli.Context) error {
				fmt.Printf("authd %s (%s)\n", gitCommit, gitDate)
				return nil
			},
		},
	}
	app.Action = run
}

func mustInitLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func mustInitDatabase(dbConfig config.MySQLConfig) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dbConfig.Dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dbConfig.TablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if sqlDB, err := db.DB(); err == nil {
		if dbConfig.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConns)
		}
		if dbConfig.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(dbConfig.MaxOpenConns)
		}
		if dbConfig.ConnMaxIdleTime > 0 {
			sqlDB.SetConnMaxIdleTime(time.Duration(dbConfig.ConnMaxIdleTime) * time.Second)
		}
		if dbConfig.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Second)
		}
	}

	if err := model.AutoMigrate(db); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	return db
}

func mustInitRedis(redisCfg config.RedisConfig) redis.UniversalClient {
	opts, err := redis.ParseURL(redisCfg.URL)
	if err != nil {
		slog.Error("Invalid redis url", "error", err)
		os.Exit(1)
	}
	if redisCfg.PoolSize > 0 {
		opts.PoolSize = redisCfg.PoolSize
	}
	if redisCfg.ClusterMode {
		return redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{opts.Addr},
			Username: opts.Username,
			Password: opts.Password,
			PoolSize: opts.PoolSize,
		})
	}
	return redis.NewClient(opts)
}

func setupAPIRoutes(router fiber.Router, authHandler *api.AuthHandler, accountHandler *api.AccountHandler) {
	group := router.Group("/api/auth")
	group.Post("/login", authHandler.PostLogin)
	group.Post("/logout", authHandler.PostLogout)
	group.Get("/validate", authHandler.GetValidate)
	group.Get("/me", authHandler.GetMe)
	group.Post("/accounts", accountHandler.PostCreateAccount)
	group.Get("/accounts", accountHandler.GetAccounts)
	group.Get("/accounts/locked", accountHandler.GetLockedAccounts)
	group.Get("/accounts/unlinked", accountHandler.GetUnlinkedAccounts)
	group.Get("/accounts/:id", accountHandler.GetAccount)
	group.Post("/accounts/:id/unlock", accountHandler.PostUnlockAccount)
	group.Post("/sync/import", accountHandler.PostImportRemote)
	group.Post("/policy/reload", accountHandler.PostReloadPolicy)
}

func run(ctx *cli.Context) error {
	cfg, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		return err
	}

	mustInitLogger(cfg.Debug || ctx.IsSet(debugFlag.Name))

	db := mustInitDatabase(cfg.MySQL)
	rdb := mustInitRedis(cfg.Redis)
	cacheStorage := store.NewRedisStorage(rdb)

	// repositories
	var (
		accountRepo = accounts.NewRepository(db)
		sessionRepo = sessions.NewCachedRepository(sessions.NewRepository(db), cacheStorage)
		auditRepo   = audit.NewRepository(db)
	)

	// services
	recorder := audit.NewRecorder(auditRepo)
	policyService := policy.NewService(db, policy.Defaults{
		MaxAttempts:     cfg.Policy.MaxAttempts,
		SessionLifetime: cfg.Policy.SessionLifetime,
	})
	if err := policyService.Load(ctx.Context); err != nil {
		slog.Error("Failed to load auth policy", "error", err)
		return err
	}
	engine := auth.NewEngine(accountRepo, sessionRepo, policyService, recorder)

	var syncService *identity.SyncService
	var watcher *identity.Watcher
	if cfg.Firebase.CredentialsFile != "" {
		bridge, err := identity.NewFirebaseBridge(ctx.Context, cfg.Firebase.CredentialsFile, cfg.Firebase.CallTimeout)
		if err != nil {
			slog.Error("Failed to initialize identity bridge", "error", err)
			return err
		}
		syncService = identity.NewSyncService(bridge, accountRepo, recorder)
		if cfg.Firebase.WatchEnabled {
			watcher = identity.NewWatcher(bridge, cfg.Firebase.WatchInterval, syncService.HandleEvent)
		}
	} else {
		slog.Warn("Identity provider not configured; remote reconciliation disabled")
	}

	// handlers
	var (
		authHandler    = api.NewAuthHandler(engine)
		accountHandler = api.NewAccountHandler(engine, syncService, policyService)
	)

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		BodyLimit:     params.ServerBodyLimit,
		IdleTimeout:   params.ServerIdleTimeout,
		ReadTimeout:   params.ServerReadTimeout,
		WriteTimeout:  params.ServerWriteTimeout,
		ErrorHandler:  middlewares.ErrorHandler,
	})

	router.Use(recover.New())
	router.Use(logger.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	setupAPIRoutes(router, authHandler, accountHandler)

	workerCtx, term := context.WithCancel(ctx.Context)
	defer term()

	sweeper := sessions.NewSweeper(sessionRepo, cfg.SweepInterval)
	go sweeper.Run(workerCtx)
	if watcher != nil {
		go watcher.Run(workerCtx)
	}

	done := make(chan struct{})
	go startHealthCheckServer(workerCtx, done, rdb, db)
	defer func() {
		term()
		<-done
	}()
	return router.Listen(cfg.ListenAddr)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
