package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/b/portkeeper/pkg/catalog"
	"github.com/b/portkeeper/pkg/config"
	"github.com/b/portkeeper/pkg/daemon"
	"github.com/b/portkeeper/pkg/launch"
	"github.com/b/portkeeper/pkg/metrics"
	"github.com/b/portkeeper/pkg/monitor"
	"github.com/b/portkeeper/pkg/paths"
	"github.com/b/portkeeper/pkg/procscan"
	"github.com/b/portkeeper/pkg/terminate"
)

var (
	configPath  = flag.String("config", "", "path to config.yaml")
	debugMode   = flag.Bool("debug", false, "log at debug level, also to stderr")
	writeConfig = flag.Bool("write-config", false, "write the effective config, defaults filled in, and exit")
)

var crashLog *log.Logger

func initCrashLog() {
	f, err := os.OpenFile(paths.StatePath("daemon-crash.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		crashLog = log.NewWithOptions(os.Stderr, log.Options{Prefix: "CRASH", ReportTimestamp: true})
		return
	}
	crashLog = log.NewWithOptions(f, log.Options{ReportTimestamp: true, TimeFormat: time.StampMicro})
}

func logCrash(context string, r interface{}) {
	crashLog.Error("crash", "in", context, "panic", r)
	crashLog.Print(string(debug.Stack()))
}

func recoverAndLog(context string) {
	if r := recover(); r != nil {
		logCrash(context, r)
	}
}

// openLogger writes to daemon.log, plus stderr in debug mode.
func openLogger(level string) (*log.Logger, func()) {
	var out io.Writer = os.Stderr
	closeFn := func() {}
	if f, err := os.OpenFile(paths.StatePath("daemon.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
		out = f
		closeFn = func() { f.Close() }
		if *debugMode {
			out = io.MultiWriter(f, os.Stderr)
		}
	}
	logger := log.NewWithOptions(out, log.Options{ReportTimestamp: true, Prefix: "portkeeper"})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	if *debugMode {
		lvl = log.DebugLevel
	}
	logger.SetLevel(lvl)
	return logger, closeFn
}

func configFile() string {
	if *configPath != "" {
		return *configPath
	}
	return config.DefaultConfigPath()
}

// saveEffectiveConfig writes the config at path back with every default
// filled in. A file that does not load is left untouched.
func saveEffectiveConfig(path string) error {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("not overwriting %s: %w", path, err)
	}
	return config.SaveConfig(path, cfg)
}

func main() {
	flag.Parse()
	if *writeConfig {
		path := configFile()
		if err := saveEffectiveConfig(path); err != nil {
			fmt.Fprintf(os.Stderr, "portkeeper-daemon: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("wrote", path)
		return
	}
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "portkeeper-daemon: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if _, err := paths.EnsureStateDir(); err != nil {
		return err
	}
	if _, err := paths.EnsureRuntimeDir(); err != nil {
		return err
	}
	initCrashLog()
	defer recoverAndLog("main")

	path := configFile()
	cfg, cfgErr := config.LoadConfig(path)
	if cfgErr != nil {
		cfg = config.Default()
	}

	logger, closeLog := openLogger(cfg.Log.Level)
	defer closeLog()
	if cfgErr != nil {
		logger.Warn("config unreadable, using defaults", "path", path, "err", cfgErr)
	}

	source, err := procscan.NewProcFS("", logger.WithPrefix("procscan"))
	if err != nil {
		return fmt.Errorf("open /proc: %w", err)
	}

	mon := monitor.New(monitor.Deps{
		Source:   source,
		Catalog:  catalog.Open(paths.CatalogPath(), logger.WithPrefix("catalog")),
		Platform: terminate.NewPlatform(),
		Starter: launch.New(launch.Options{
			LogDir:    paths.LogDir(),
			LogOutput: cfg.Launch.LogOutputEnabled(),
			Logger:    logger.WithPrefix("launch"),
		}),
		Logger: logger,
	}, monitor.Options{
		Interval:              cfg.Discovery.Interval,
		TerminateTimeout:      cfg.Termination.Timeout,
		ForceKillWait:         cfg.Termination.ForceKillWait,
		SettleDelay:           cfg.Launch.SettleDelay,
		OnlyMonitored:         cfg.Discovery.OnlyMonitored,
		HideIgnoredRemembered: cfg.Reconcile.HideIgnoredRemembered,
	})

	server := daemon.NewServer(paths.SocketPath(), paths.PidPath(), paths.LockPath(), logger.WithPrefix("server"))
	server.OnSnapshot = mon.View
	handle := daemon.NewHandler(mon)
	server.OnRequest = func(req daemon.RequestPayload) daemon.ResultPayload {
		res := handle(req)
		if res.OK {
			logger.Debug("request", "action", req.Action, "key", req.Key, "pid", req.PID)
		} else {
			logger.Warn("request rejected", "action", req.Action, "key", req.Key, "err", res.Error)
		}
		return res
	}

	if err := server.Start(); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			return err
		}
		return fmt.Errorf("failed to start server: %w", err)
	}
	defer server.Stop()
	logger.Info("listening", "socket", server.SocketPath(), "pid", os.Getpid())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	views, unsubscribe := mon.Subscribe()
	defer unsubscribe()
	go func() {
		defer recoverAndLog("broadcast")
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-views:
				server.BroadcastSnapshot(v)
			}
		}
	}()
	mon.Start(ctx)
	defer mon.Stop()

	if cfg.Metrics.Addr != "" {
		go func() {
			defer recoverAndLog("metrics")
			logger.Info("serving metrics", "addr", cfg.Metrics.Addr)
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				logger.Error("metrics server", "err", err)
			}
		}()
	}

	// SIGUSR1 asks for an immediate poll
	refreshSigCh := make(chan os.Signal, 10)
	signal.Notify(refreshSigCh, syscall.SIGUSR1)
	go func() {
		defer recoverAndLog("refresh-signal")
		for range refreshSigCh {
			mon.Refresh()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// Shut down when the socket or pidfile is taken from under us
	go func() {
		defer recoverAndLog("socket-watch")
		ticker := time.NewTicker(3 * time.Second)
		defer ticker.Stop()
		myPid := os.Getpid()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := os.Stat(server.SocketPath()); os.IsNotExist(err) {
					logger.Warn("socket removed, shutting down", "socket", server.SocketPath())
					select {
					case sigCh <- syscall.SIGTERM:
					default:
					}
					return
				}
				if pid := daemon.ReadPid(paths.PidPath()); pid != myPid {
					logger.Warn("pidfile replaced, shutting down", "ours", myPid, "found", pid)
					select {
					case sigCh <- syscall.SIGTERM:
					default:
					}
					return
				}
			}
		}
	}()

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())
	signal.Stop(refreshSigCh)
	return nil
}
