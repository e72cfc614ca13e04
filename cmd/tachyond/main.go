// Command tachyond is the composition root: it wires logging, config,
// persistence, the circuit breaker registry, the script broker, the
// HTTP fetcher, and the scheduler together, then blocks until an OS
// signal requests shutdown, mirroring the teacher's main.go wiring
// order (logger, storage, engine, config) and
// engine.TachyonEngine.Shutdown's drain-then-checkpoint shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tachyon-core/internal/breaker"
	"tachyon-core/internal/config"
	"tachyon-core/internal/events"
	"tachyon-core/internal/history"
	"tachyon-core/internal/httpfetch"
	"tachyon-core/internal/logging"
	"tachyon-core/internal/netutil"
	"tachyon-core/internal/persist"
	"tachyon-core/internal/scheduler"
	"tachyon-core/internal/scripting"
)

func main() {
	configDir := flag.String("config-dir", defaultConfigDir(), "directory holding settings.toml, per-folder overrides, queue and history snapshots")
	scriptsDir := flag.String("scripts-dir", "", "directory of .js hook scripts (default: <config-dir>/scripts)")
	flag.Parse()

	if *scriptsDir == "" {
		*scriptsDir = fmt.Sprintf("%s/scripts", *configDir)
	}

	log, logFile, err := logging.New(*configDir+"/logs", os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tachyond: failed to initialize logging:", err)
		os.Exit(1)
	}
	defer logFile.Close()

	if err := run(*configDir, *scriptsDir, log); err != nil {
		log.Error("tachyond exiting with error", "error", err)
		os.Exit(1)
	}
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tachyond"
	}
	return home + "/.tachyond"
}

func run(configDir, scriptsDir string, log *slog.Logger) error {
	store, err := persist.New(configDir)
	if err != nil {
		return fmt.Errorf("initializing persistence: %w", err)
	}

	cfgLoader := config.NewLoader(store)
	app, err := cfgLoader.LoadApp()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	if err := cfgLoader.SaveApp(app); err != nil {
		return fmt.Errorf("seeding settings.toml: %w", err)
	}

	hist, err := history.New(store, app.HistoryCap)
	if err != nil {
		return fmt.Errorf("initializing history: %w", err)
	}

	bus := events.New(log)
	breakers := breaker.New(app.CircuitThreshold, time.Duration(app.CircuitOpenSeconds)*time.Second)

	timeout := time.Duration(app.Scripts.TimeoutS) * time.Second
	scripts := scripting.New(scriptsDir, timeout, 256, log)
	defer scripts.Close()

	bw := netutil.NewManager()
	bw.SetGlobalLimit(app.GlobalBandwidthBytesSec)

	httpClient := &http.Client{Timeout: 0} // streaming responses manage their own pacing
	fetcher := httpfetch.New(httpClient, breakers, scripts)

	mgr, err := scheduler.New(scheduler.Deps{
		Config: cfgLoader, Store: store, History: hist, Bus: bus,
		Fetcher: fetcher, Breakers: breakers, Scripts: scripts, Bandwidth: bw,
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("initializing scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	log.Info("tachyond started", "config_dir", configDir, "scripts_dir", scriptsDir)

	waitForShutdownSignal(log)

	log.Info("shutting down, draining in-flight downloads...")
	cancel()
	mgr.Stop()
	log.Info("shutdown complete")
	return nil
}

// waitForShutdownSignal blocks until SIGINT or SIGTERM arrives,
// mirroring the teacher's core.WaitForSignals helper.
func waitForShutdownSignal(log *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("received shutdown signal")
}
