package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/yndnr/gridbackup-go/internal/core/service"
	"github.com/yndnr/gridbackup-go/internal/infra/buildinfo"
	"github.com/yndnr/gridbackup-go/internal/infra/confloader"
	"github.com/yndnr/gridbackup-go/internal/infra/shutdown"
	"github.com/yndnr/gridbackup-go/internal/infra/simthread"
	"github.com/yndnr/gridbackup-go/internal/server/config"
	"github.com/yndnr/gridbackup-go/internal/server/httpserver"
	"github.com/yndnr/gridbackup-go/internal/storage/gridcodec"
	"github.com/yndnr/gridbackup-go/internal/storage/history"
	"github.com/yndnr/gridbackup-go/internal/storage/layout"
	"github.com/yndnr/gridbackup-go/internal/storage/memory"
	"github.com/yndnr/gridbackup-go/internal/storage/snapshot"
	"github.com/yndnr/gridbackup-go/internal/telemetry/logger"
	"github.com/yndnr/gridbackup-go/internal/telemetry/metric"
)

const (
	shutdownTimeout = 30 * time.Second
	simBacklog      = 256
	limiterIdle     = 10 * time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		addr        = flag.String("addr", "", "HTTP listen address (overrides server.http.addr)")
		backupDir   = flag.String("backup-dir", "", "Snapshot root (overrides backup.dir)")
		seedFile    = flag.String("seed", "", "World seed file (overrides world.seed_file)")
		logLevel    = flag.String("log-level", "", "Log level (overrides log.level)")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("gridbackup-server " + buildinfo.String())
		return nil
	}

	overrides := map[string]any{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			overrides["server.http.addr"] = *addr
		case "backup-dir":
			overrides["backup.dir"] = *backupDir
		case "seed":
			overrides["world.seed_file"] = *seedFile
		case "log-level":
			overrides["log.level"] = *logLevel
		}
	})

	cfg, err := loadConfig(*configFile, overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slogLogger := log.Slog()

	log.Info("starting gridbackup-server",
		"version", buildinfo.Get().Version,
		"commit", buildinfo.Get().Commit,
		"config", *configFile)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	// The server context bounds the scheduler loop and manual runs.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownHandler := shutdown.NewHandler(shutdownTimeout, slogLogger)

	world, err := initWorld(cfg, log)
	if err != nil {
		return fmt.Errorf("init world: %w", err)
	}

	sim := simthread.New(simBacklog)
	shutdownHandler.OnShutdown("simthread", func(context.Context) error {
		sim.Close()
		return nil
	})

	store, cipher, err := initStore(cfg)
	if err != nil {
		sim.Close()
		return fmt.Errorf("init snapshot store: %w", err)
	}
	if cipher != nil {
		shutdownHandler.OnShutdown("cipher", func(context.Context) error {
			cipher.Zero()
			return nil
		})
	}

	metrics := metric.NewRegistry()

	hist, err := history.Open(history.Config{
		Dir:  cfg.History.Dir,
		Keep: cfg.History.Keep,
	}, slogLogger)
	if err != nil {
		sim.Close()
		return fmt.Errorf("open run history: %w", err)
	}
	hist.RegisterMetrics(metrics.Prometheus())
	shutdownHandler.OnShutdown("history", func(context.Context) error {
		return hist.Close()
	})

	services := initServices(cfg, world, sim, store, hist, metrics, slogLogger)
	if err := metrics.Register(metric.NewCollector(services.Scheduler)); err != nil {
		return fmt.Errorf("register collector: %w", err)
	}

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		services.Scheduler.Run(ctx)
	}()
	shutdownHandler.OnShutdown("scheduler", func(hctx context.Context) error {
		cancel()
		done := make(chan struct{})
		go func() {
			<-schedulerDone
			services.Scheduler.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-hctx.Done():
			return hctx.Err()
		}
	})

	var limiter *httpserver.RateLimiter
	if cfg.Server.HTTP.RateLimit > 0 {
		limiter = httpserver.NewRateLimiter(cfg.Server.HTTP.RateLimit, cfg.Server.HTTP.RateBurst, limiterIdle)
		go limiter.Run(ctx)
	}

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		RunContext:     ctx,
		Backups:        services.Backups,
		Metrics:        metrics.Handler(),
		Observer:       metrics,
		Logger:         slogLogger,
		RateLimiter:    limiter,
		AdminAllowList: cfg.Server.HTTP.AllowList,
		EnableAudit:    cfg.Server.HTTP.Audit,
	})

	httpServer := httpserver.New(httpserver.Config{
		Addr:        cfg.Server.HTTP.Addr,
		TLSCertFile: cfg.Server.HTTP.TLSCertFile,
		TLSKeyFile:  cfg.Server.HTTP.TLSKeyFile,
	}, router)
	if err := httpServer.Listen(); err != nil {
		cancel()
		sim.Close()
		_ = hist.Close()
		return fmt.Errorf("listen: %w", err)
	}

	if *configFile != "" {
		watcher, err := watchLogLevel(*configFile, overrides, slogLogger)
		if err != nil {
			log.Warn("config watcher disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("config watcher", func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	shutdownHandler.OnShutdown("http", func(hctx context.Context) error {
		log.Info("shutting down HTTP server")
		return httpServer.Shutdown(hctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", httpServer.Addr(), "tls", httpServer.TLS())
		if err := httpServer.Serve(); err != nil {
			log.Error("HTTP server error", "error", err)
			shutdownHandler.Trigger("http server failed")
		}
	}()

	log.Info("server started",
		"backup_dir", store.Root(),
		"interval", cfg.Backup.Interval,
		"encrypted", store.Encrypted(),
		"members", world.MemberCount())

	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads configuration from defaults, file, environment and flags.
func loadConfig(configFile string, overrides map[string]any) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{confloader.WithFlags(overrides)}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger initializes the structured logger and installs it as default.
func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)

	if cfg.Security.EncryptionPassphrase != "" {
		logger.RegisterSecret(cfg.Security.EncryptionPassphrase)
	}
	return log, nil
}

func initWorld(cfg *config.ServerConfig, log logger.Logger) (*memory.World, error) {
	if cfg.World.SeedFile == "" {
		log.Warn("no world seed configured, starting empty")
		return memory.NewWorld(), nil
	}
	world, err := memory.LoadSeed(cfg.World.SeedFile)
	if err != nil {
		return nil, err
	}
	log.Info("world seeded", "file", cfg.World.SeedFile, "members", world.MemberCount())
	return world, nil
}

// initStore opens the snapshot root, with encryption when a passphrase is set.
// A blank backup.dir falls back to layout.DefaultDirName.
func initStore(cfg *config.ServerConfig) (*snapshot.Store, *snapshot.Cipher, error) {
	root := layout.RootPath(cfg.Backup.Dir)

	var cipher *snapshot.Cipher
	if pass := cfg.Security.EncryptionPassphrase; pass != "" {
		if err := os.MkdirAll(root, 0750); err != nil {
			return nil, nil, err
		}
		salt, err := snapshot.LoadOrCreateSalt(root)
		if err != nil {
			return nil, nil, err
		}
		cipher, err = snapshot.NewCipher([]byte(pass), salt)
		if err != nil {
			return nil, nil, err
		}
	}

	store, err := snapshot.NewStore(snapshot.Config{Root: root, Cipher: cipher})
	if err != nil {
		if cipher != nil {
			cipher.Zero()
		}
		return nil, nil, err
	}
	return store, cipher, nil
}

// Services holds the wired backup engine.
type Services struct {
	Resolver  *service.GridResolver
	Queue     *service.BackupQueue
	Scheduler *service.BackupScheduler
	Backups   *service.BackupService
}

func initServices(cfg *config.ServerConfig, world *memory.World, sim *simthread.Dispatcher, store *snapshot.Store, hist *history.Store, metrics *metric.Registry, log *slog.Logger) *Services {
	codec := gridcodec.New(world)
	resolver := service.NewGridResolver(world, sim)

	queue := service.NewBackupQueue(codec, store, sim, service.QueueConfig{
		Workers:    cfg.Backup.Workers,
		JobTimeout: cfg.Backup.JobTimeout,
	}, log, metrics)

	scheduler := service.NewBackupScheduler(resolver, queue, store, hist, service.SchedulerConfig{
		IncludeConnections: cfg.Backup.Connections,
		Interval:           cfg.Backup.Interval,
		Concurrency:        cfg.Backup.Workers,
		KeepPerGrid:        cfg.Backup.KeepPerGrid,
	}, log, metrics)

	backups := service.NewBackupService(service.BackupServiceConfig{
		Resolver:           resolver,
		Queue:              queue,
		Scheduler:          scheduler,
		Store:              store,
		Serializer:         codec,
		Sim:                sim,
		History:            hist,
		Logger:             log,
		IncludeConnections: cfg.Backup.Connections,
	})

	log.Info("services initialized",
		"workers", cfg.Backup.Workers,
		"connections", cfg.Backup.Connections,
		"keep_per_grid", cfg.Backup.KeepPerGrid)

	return &Services{
		Resolver:  resolver,
		Queue:     queue,
		Scheduler: scheduler,
		Backups:   backups,
	}
}

// watchLogLevel reloads the config file on change and applies log.level.
// Other keys need a restart.
func watchLogLevel(configFile string, overrides map[string]any, log *slog.Logger) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(configFile); err != nil {
		_ = w.Stop()
		return nil, err
	}

	w.OnChange(func(path string) {
		cfg, err := loadConfig(path, overrides)
		if err != nil {
			log.Warn("ignoring config change", "file", path, "error", err)
			return
		}
		prev := logger.GetLevel()
		if err := logger.SetLevel(cfg.Log.Level); err != nil {
			log.Warn("ignoring log level", "level", cfg.Log.Level, "error", err)
			return
		}
		if now := logger.GetLevel(); now != prev {
			log.Info("log level changed", "from", prev, "to", now)
		}
	})
	w.StartAsync()
	return w, nil
}
