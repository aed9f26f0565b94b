package main

import (
	"context"
	"flag"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btclog/v2"

	"github.com/roasbeef/gamecore/internal/baselib/actor"
	"github.com/roasbeef/gamecore/internal/build"
	"github.com/roasbeef/gamecore/internal/change"
	"github.com/roasbeef/gamecore/internal/db"
	"github.com/roasbeef/gamecore/internal/hotfix"
	"github.com/roasbeef/gamecore/internal/logic"
	"github.com/roasbeef/gamecore/internal/registry"
	gameruntime "github.com/roasbeef/gamecore/internal/runtime"
)

func main() {
	defaults := DefaultConfig()

	var (
		configPath     = flag.String("config", "", "Path to YAML config file (flags override)")
		dbPath         = flag.String("db", defaults.DBPath, "Path to SQLite database")
		logDir         = flag.String("log-dir", defaults.LogDir, "Directory for log files (empty to disable file logging)")
		maxLogFiles    = flag.Int("max-log-files", defaults.MaxLogFiles, "Maximum number of rotated log files to keep")
		maxLogFileSize = flag.Int("max-log-file-size", defaults.MaxLogFileSize, "Maximum log file size in MB before rotation")
		debug          = flag.Bool("debug", false, "Enable the development call guard and verbose logging")
		hotfixDir      = flag.String("hotfix-dir", "", "Directory watched for logic reload triggers (empty to disable)")
	)
	flag.Parse()

	cfg := defaults
	if *configPath != "" {
		if err := LoadConfigFile(*configPath, &cfg); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	// Explicit flags override the file. Visit only flags the operator
	// actually set, so file values survive defaults.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db":
			cfg.DBPath = *dbPath
		case "log-dir":
			cfg.LogDir = *logDir
		case "max-log-files":
			cfg.MaxLogFiles = *maxLogFiles
		case "max-log-file-size":
			cfg.MaxLogFileSize = *maxLogFileSize
		case "debug":
			cfg.Debug = *debug
		case "hotfix-dir":
			cfg.HotfixDir = *hotfixDir
		}
	})

	dbPathExpanded, err := expandHome(cfg.DBPath)
	if err != nil {
		log.Fatalf("Bad db path: %v", err)
	}
	logDirExpanded, err := expandHome(cfg.LogDir)
	if err != nil {
		log.Fatalf("Bad log dir: %v", err)
	}

	// Initialize the rotating log file writer if a log directory is
	// configured. This creates <log-dir>/gamecored.log with automatic
	// rotation and gzip compression of old files.
	var logRotator *build.RotatingLogWriter
	if logDirExpanded != "" {
		logRotator = build.NewRotatingLogWriter()
		err := logRotator.InitLogRotator(
			&build.LogRotatorConfig{
				LogDir:         logDirExpanded,
				MaxLogFiles:    cfg.MaxLogFiles,
				MaxLogFileSize: cfg.MaxLogFileSize,
			},
		)
		if err != nil {
			log.Printf(
				"Failed to init log rotator: %v "+
					"(continuing without file logging)",
				err,
			)
			logRotator = nil
		} else {
			defer logRotator.Close()

			// Redirect the standard log package to write to
			// both stderr and the log file.
			multiWriter := io.MultiWriter(os.Stderr, logRotator)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags)
		}
	}

	log.Printf("gamecored version %s commit=%s go=%s",
		build.Version(), commitInfo(), build.GoVersion,
	)

	// Create btclog handlers for structured subsystem logging. When
	// file logging is enabled, logs go to both the console and the
	// rotating log file.
	consoleHandler := btclog.NewDefaultHandler(os.Stderr)
	handlers := []btclog.Handler{consoleHandler}
	if logRotator != nil {
		handlers = append(
			handlers, btclog.NewDefaultHandler(logRotator),
		)
	}

	combinedHandler := build.NewHandlerSet(handlers...)
	if cfg.Debug {
		combinedHandler.SetLevel(btclog.LevelDebug)
	}

	// Wire up subsystem loggers so every layer's lifecycle events land
	// in the daemon logs.
	rootLogger := btclog.NewSLogger(combinedHandler)
	actor.UseLogger(rootLogger.WithPrefix(actor.Subsystem))
	gameruntime.UseLogger(rootLogger.WithPrefix(gameruntime.Subsystem))
	registry.UseLogger(rootLogger.WithPrefix(registry.Subsystem))
	hotfix.UseLogger(rootLogger.WithPrefix(hotfix.Subsystem))
	change.UseLogger(rootLogger.WithPrefix(change.Subsystem))

	// Open the state store with migrations.
	dbLogger := slog.New(combinedHandler.SubSystem("GADB"))
	stateStore, err := db.NewSqliteStateStore(&db.SqliteConfig{
		DatabaseFileName: dbPathExpanded,
	}, dbLogger)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer stateStore.Close()

	// Compile the logic surface. Registration errors are fatal: a
	// half-bound component set must never serve players.
	hotfixMgr, err := hotfix.NewManager(logic.Module{})
	if err != nil {
		log.Fatalf("Failed to compile logic modules: %v", err)
	}

	// Construct the actor runtime. Lifecycle order matters: registry,
	// then runtime (directory + partitions), then the timer-driven
	// scans below.
	rt, err := gameruntime.New(gameruntime.Config{
		Source: hotfixMgr,
		Store:  stateStore,
		Debug:  cfg.Debug,
		Guard:  gameruntime.StrictCallGuard{},
	})
	if err != nil {
		log.Fatalf("Failed to construct runtime: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Touch the server actor so the date counter exists and the open
	// time is stamped before any player arrives.
	serverAgent, err := rt.AgentOf(ctx, logic.ServerInfoAgentType)
	if err != nil {
		log.Fatalf("Failed to activate server actor: %v", err)
	}
	serverInfo := serverAgent.(*logic.ServerInfoAgent)

	lastDay, err := serverInfo.CurrentDay(ctx)
	if err != nil {
		log.Fatalf("Failed to read server day: %v", err)
	}
	log.Printf("Server actor active, open-server day %d", lastDay)

	// Signal handling: first signal starts graceful shutdown, a second
	// forces exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf(
			"Received %v, initiating graceful shutdown "+
				"(send again to force exit)...", sig,
		)
		cancel()

		sig = <-sigCh
		log.Printf("Received %v again, forcing immediate exit", sig)
		os.Exit(1)
	}()

	// Start the hotfix watcher if a trigger directory is configured.
	if cfg.HotfixDir != "" {
		go func() {
			err := hotfixMgr.Watch(ctx, cfg.HotfixDir, rt)
			if err != nil && ctx.Err() == nil {
				log.Printf("Hotfix watcher stopped: %v", err)
			}
		}()
	}

	// Timer-driven scans: idle reaping, batched saves, and the day
	// rollover check.
	go runTickers(ctx, rt, serverInfo, &cfg, lastDay)

	log.Printf("gamecored running (db=%s)", dbPathExpanded)
	<-ctx.Done()

	// Shutdown drain: raise the flag, save everything, deactivate and
	// remove every actor, stop the partition lanes.
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(), 30*time.Second,
	)
	defer shutdownCancel()

	if err := rt.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown reported error: %v", err)
	}
	log.Printf("gamecored stopped")
}

// runTickers drives the runtime's periodic work until ctx is cancelled.
func runTickers(ctx context.Context, rt *gameruntime.Runtime,
	serverInfo *logic.ServerInfoAgent, cfg *Config, lastDay int) {

	idleTicker := time.NewTicker(cfg.IdleScanInterval)
	defer idleTicker.Stop()
	saveTicker := time.NewTicker(cfg.TimerSaveInterval)
	defer saveTicker.Stop()
	dayTicker := time.NewTicker(cfg.CrossDayCheckInterval)
	defer dayTicker.Stop()

	for {
		select {
		case <-idleTicker.C:
			rt.IdleScan(ctx)

		case <-saveTicker.C:
			if err := rt.TimerSave(ctx); err != nil {
				log.Printf("Timer save failed: %v", err)
			}

		case <-dayTicker.C:
			day, err := serverInfo.OpenServerDay(ctx, time.Now())
			if err != nil {
				log.Printf("Day check failed: %v", err)
				continue
			}
			if day == lastDay {
				continue
			}

			log.Printf("Day rollover: %d -> %d", lastDay, day)
			err = rt.CrossDay(ctx, day, actor.TypeServer)
			if err != nil {
				log.Printf("Cross-day failed: %v", err)
				continue
			}
			rt.ForEachRoleCrossDay(ctx, day)
			lastDay = day

		case <-ctx.Done():
			return
		}
	}
}

// commitInfo returns the best available commit identifier. It prefers
// the Commit string set via ldflags (which includes tag info), falling
// back to the VCS commit hash from runtime/debug.
func commitInfo() string {
	if build.Commit != "" {
		return build.Commit
	}
	if build.CommitHash != "" {
		return build.CommitHash
	}

	return "dev"
}
