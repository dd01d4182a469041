package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/darshan-rambhia/voltline/internal/api"
	"github.com/darshan-rambhia/voltline/internal/config"
	"github.com/darshan-rambhia/voltline/internal/model"
	"github.com/darshan-rambhia/voltline/internal/notify"
	"github.com/darshan-rambhia/voltline/internal/remote"
	"github.com/darshan-rambhia/voltline/internal/scheduler"
	"github.com/darshan-rambhia/voltline/internal/store"
	"github.com/darshan-rambhia/voltline/internal/syncer"
	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
)

// @title voltline API
// @version 1.0
// @description Building energy sync engine control surface
// @host localhost:3900
// @BasePath /

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// buildInfo returns version, commit, build time, and VCS details. ldflags
// values win; debug.ReadBuildInfo fills in anything left as default.
func buildInfo() (ver, sha, built, dirty string) {
	ver = version
	sha = commit
	built = buildTime
	dirty = "clean"

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if sha == "none" {
				sha = s.Value
			}
		case "vcs.time":
			if built == "unknown" {
				built = s.Value
			}
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "dirty"
			}
		}
	}

	return
}

func main() {
	configPath := flag.String("config", "", "path to voltline.yml config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	syncOnce := flag.String("sync-once", "", "run a single sync (full, incremental or test) and exit")
	flag.Parse()

	ver, sha, built, dirty := buildInfo()

	if *showVersion {
		fmt.Printf("voltline %s\n  commit:    %s (%s)\n  built:     %s\n  go:        %s\n  platform:  %s/%s\n",
			ver, sha, dirty, built, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, config.ErrConfigFileNotFound) {
			fmt.Fprintf(os.Stderr, "error: %s\n\n", err)
			fmt.Fprintf(os.Stderr, "Copy the example config to get started:\n")
			fmt.Fprintf(os.Stderr, "  cp voltline.example.yml %s\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "error: loading config (%s): %s\n", *configPath, err)
		}
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting voltline",
		"version", ver,
		"commit", sha,
		"built", built,
		"dirty", dirty,
		"go", runtime.Version(),
		"listen", cfg.Listen,
		"remote", cfg.Remote.URL,
	)

	st, err := store.New(cfg.DBPath)
	if err != nil {
		slog.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	client := remote.NewClient(remote.Config{
		URL:               cfg.Remote.URL,
		Token:             cfg.Remote.Token,
		Timeout:           cfg.Remote.Timeout.Duration,
		PageSize:          cfg.Remote.PageSize,
		MaxPages:          cfg.Remote.MaxPages,
		MaxAttempts:       cfg.Remote.MaxAttempts,
		RetryDelay:        cfg.Remote.RetryDelay.Duration,
		RequestsPerSecond: cfg.Remote.RequestsPerSecond,
	})

	opts := syncer.Options{
		PowerUnits:     cfg.Sync.PowerUnits,
		TestBuildingID: cfg.Remote.TestBuildingID,
	}
	if cfg.Lock.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
		})
		defer rdb.Close()
		opts.Locker = syncer.NewRedisLocker(rdb, cfg.Lock.Key, cfg.Lock.TTL.Duration)
		slog.Info("distributed run lock enabled", "redis", cfg.Lock.RedisAddr, "key", cfg.Lock.Key)
	}

	engine := syncer.New(client, st, opts)

	notifier := notify.NewNotifier(buildTargets(cfg.Notifications)...)
	if notifier.Len() > 0 {
		engine.OnComplete(notifier.OnSyncComplete)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *syncOnce != "" {
		code := runOnce(ctx, engine, model.SyncType(*syncOnce))
		cancel()
		st.Close()
		os.Exit(code)
	}

	sched, err := scheduler.New(engine, cfg.Sync.Interval.Duration)
	if err != nil {
		slog.Error("creating scheduler", "error", err)
		os.Exit(1)
	}
	if cfg.Sync.Autostart {
		sched.Start()
	}

	g, ctx := errgroup.WithContext(ctx)

	retention := store.RetentionConfig{
		PointSeries: cfg.Retention.PointSeries.Duration,
		EnergyUsage: cfg.Retention.EnergyUsage.Duration,
	}
	if retention.Enabled() {
		pruner := store.NewPruner(st, retention)
		g.Go(func() error { return pruner.Run(ctx) })
	}

	server := api.NewServer(cfg.Listen, engine, sched)
	g.Go(func() error { return server.Run(ctx) })

	g.Go(func() error {
		<-ctx.Done()
		// Wait for an in-flight scheduled run so its SyncRun row is written.
		<-sched.Stop().Done()
		return nil
	})

	slog.Info("all components started",
		"interval", cfg.Sync.Interval.Duration,
		"autostart", cfg.Sync.Autostart,
		"notifications", notifier.Len(),
		"retention", retention.Enabled(),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "error", err)
	}

	slog.Info("voltline stopped gracefully")
}

func setupLogging(level, format string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func buildTargets(cfgs []config.NotificationConfig) []notify.Target {
	var targets []notify.Target
	for _, ncfg := range cfgs {
		var p notify.Provider
		switch ncfg.Type {
		case "ntfy":
			p = notify.NewNtfy(ncfg.URL, ncfg.Topic)
		case "webhook":
			method := ncfg.Method
			if method == "" {
				method = "POST"
			}
			p = notify.NewWebhook(ncfg.URL, method, ncfg.Headers)
		default:
			continue
		}
		t := notify.Target{Provider: p}
		for _, s := range ncfg.On {
			t.On = append(t.On, model.RunStatus(s))
		}
		targets = append(targets, t)
	}
	return targets
}

// runOnce executes one sync and returns the process exit code: 0 for
// success, 2 for partial, 1 for failed or rejected runs.
func runOnce(ctx context.Context, engine *syncer.Engine, mode model.SyncType) int {
	start := time.Now()
	var (
		res *syncer.Result
		err error
	)
	switch mode {
	case model.SyncTest:
		res, err = engine.TestSync(ctx)
	case model.SyncFull, model.SyncIncremental:
		res, err = engine.Synchronize(ctx, mode)
	default:
		slog.Error("unknown sync mode", "mode", mode)
		return 1
	}
	if err != nil {
		slog.Error("sync did not start", "mode", mode, "error", err)
		return 1
	}

	slog.Info("sync finished",
		"run_id", res.Run.RunID,
		"type", res.Run.SyncType,
		"status", res.Run.Status,
		"records", res.Run.RecordsSynced,
		"errors", res.Run.ErrorsCount,
		"elapsed", time.Since(start),
	)
	switch res.Run.Status {
	case model.StatusSuccess:
		return 0
	case model.StatusPartial:
		return 2
	default:
		return 1
	}
}
