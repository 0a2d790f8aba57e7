// Package main is the entry point for the corevortex simulation
// engine.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sstgo/corevortex"
	"github.com/sstgo/corevortex/internal/builtin"
	"github.com/sstgo/corevortex/internal/buildinfo"
	"github.com/sstgo/corevortex/internal/checkpoint"
	"github.com/sstgo/corevortex/internal/config"
	"github.com/sstgo/corevortex/internal/console"
	"github.com/sstgo/corevortex/internal/events"
	"github.com/sstgo/corevortex/internal/simulation"
	"github.com/sstgo/corevortex/internal/syncmgr"
	"github.com/sstgo/corevortex/internal/telemetry"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	rank := flag.Int("rank", 0, "this process's partition rank")
	mqttBroker := flag.String("mqtt-broker", "", "MQTT broker URL for cross-rank transport (required when ranks > 1)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if flag.NArg() == 0 {
		printUsage()
		return
	}

	switch flag.Arg(0) {
	case "run":
		runEngine(logger, *configPath, *rank, *mqttBroker, "")
	case "restart":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: vortexd restart <checkpoint-dir>")
			os.Exit(1)
		}
		runEngine(logger, *configPath, *rank, *mqttBroker, flag.Arg(1))
	case "inspect":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: vortexd inspect <checkpoint-dir>")
			os.Exit(1)
		}
		runInspect(logger, flag.Arg(1))
	case "version":
		fmt.Println(buildinfo.String())
		for k, v := range buildinfo.Info() {
			fmt.Printf("  %-12s %s\n", k+":", v)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("vortexd - corevortex discrete-event simulation engine")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run                     Run a simulation from a config file")
	fmt.Println("  restart <checkpoint-dir> Resume a simulation from a checkpoint")
	fmt.Println("  inspect <checkpoint-dir> Summarize a checkpoint's registry and partitions")
	fmt.Println("  version                 Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

func runEngine(logger *slog.Logger, configPath string, rank int, mqttBroker string, restartDir string) {
	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	if level, err := config.ParseLogLevel(cfg.LogLevel); err == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	logger.Info("starting corevortex", "version", buildinfo.Version, "config", cfgPath, "rank", rank, "ranks", cfg.Ranks)

	transport, err := buildTransport(cfg, rank, mqttBroker, logger)
	if err != nil {
		logger.Error("failed to build transport", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		logger.Error("failed to create output directory", "path", cfg.OutputDir, "error", err)
		os.Exit(1)
	}

	bus := events.New()

	db, err := sql.Open("sqlite3", cfg.OutputDir+"/telemetry.db")
	if err != nil {
		logger.Error("failed to open telemetry database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	telemetryStore, err := telemetry.NewStore(db)
	if err != nil {
		logger.Error("failed to initialize telemetry store", "error", err)
		os.Exit(1)
	}
	sub := telemetry.Subscribe(bus, telemetryStore, logger)
	defer sub.Stop()

	sim, err := simulation.New(cfg, rank, 0, simulation.Options{
		Factory:   builtin.Factory{},
		Transport: transport,
		Bus:       bus,
		Log:       logger,
	})
	if err != nil {
		abort(logger, err)
	}

	if restartDir != "" {
		logger.Info("restoring from checkpoint", "dir", restartDir)
		if err := sim.Restore(restartDir); err != nil {
			abort(logger, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := sim.Init(ctx); err != nil {
		abort(logger, err)
	}

	opts := setupOptionsFromConfig(sim, cfg, logger)

	var consoleServer *console.Server
	if cfg.Console.Type != "" {
		consoleServer = &console.Server{
			Addr:      fmt.Sprintf("%s:%d", cfg.Console.Address, cfg.Console.Port),
			Sim:       sim,
			Telemetry: telemetryStore,
			Log:       logger,
		}
		go func() {
			if err := consoleServer.ListenAndServe(ctx); err != nil {
				logger.Error("interactive console stopped", "error", err)
			}
		}()
		logger.Info("interactive console listening", "addr", consoleServer.Addr)
	}

	sim.Setup(opts)

	result, err := sim.Run(ctx)
	if err != nil {
		abort(logger, err)
	}
	logger.Info("run ended", "reason", result.Reason, "end_cycle", result.EndCycle)

	if err := sim.Complete(ctx); err != nil {
		abort(logger, err)
	}
	sim.Finish()

	logger.Info("corevortex stopped")
}

// setupOptionsFromConfig translates the config's UnitAlgebra period
// strings into the core-tick SetupOptions the lifecycle driver needs,
// wiring a checkpoint callback when a period is configured.
func setupOptionsFromConfig(sim *simulation.Simulation, cfg *config.Config, logger *slog.Logger) simulation.SetupOptions {
	var opts simulation.SetupOptions

	if cfg.StopAt != "" {
		core, err := sim.ToCore(cfg.StopAt)
		if err != nil {
			abort(logger, err)
		}
		opts.StopAtCore = core
	}

	if cfg.Heartbeat.SimPeriod != "" {
		core, err := sim.ToCore(cfg.Heartbeat.SimPeriod)
		if err != nil {
			abort(logger, err)
		}
		opts.HeartbeatPeriodCore = core
	}

	if cfg.Checkpoint.SimPeriod != "" {
		core, err := sim.ToCore(cfg.Checkpoint.SimPeriod)
		if err != nil {
			abort(logger, err)
		}
		opts.CheckpointPeriodCore = core
		opts.OnCheckpoint = func(now uint64) {
			id := fmt.Sprintf("%s-%d", cfg.Checkpoint.Prefix, now)
			path, err := sim.Snapshot(id, cfg.OutputDir, cfg.Checkpoint.Prefix)
			if err != nil {
				logger.Error("checkpoint snapshot failed", "error", err)
				return
			}
			logger.Info("checkpoint written", "path", path, "sim_cycle", now)
		}
	}

	return opts
}

func buildTransport(cfg *config.Config, rank int, mqttBroker string, logger *slog.Logger) (syncmgr.Transport, error) {
	if cfg.Ranks <= 1 {
		return syncmgr.NewLocalTransport(), nil
	}
	if mqttBroker == "" {
		return nil, fmt.Errorf("config requests %d ranks but -mqtt-broker was not given", cfg.Ranks)
	}
	t := syncmgr.NewMQTTTransport(syncmgr.MQTTConfig{
		Broker:   mqttBroker,
		RunID:    cfg.Prefix,
		Rank:     rank,
		NumRanks: cfg.Ranks,
	}, logger)
	if err := t.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", err)
	}
	return t, nil
}

func runInspect(logger *slog.Logger, dir string) {
	restorer := &checkpoint.Restorer{Dir: dir}
	result, err := restorer.Restore(0, 0,
		func(name string) error { return nil },
		func(blob checkpoint.ComponentBlob) error { return nil })
	if err != nil {
		logger.Error("inspect failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("checkpoint: %s\n", dir)
	fmt.Printf("  ranks:            %d\n", result.Globals.Ranks)
	fmt.Printf("  threads:          %d\n", result.Globals.Threads)
	fmt.Printf("  time base:        %s\n", result.Globals.BaseTimeString)
	fmt.Printf("  rank/thread:      %d/%d\n", result.Partition.State.MyRank, 0)
	fmt.Printf("  sim cycle:        %d\n", result.Partition.State.CurrentSimCycle)
	fmt.Printf("  min_part:         %d\n", result.Partition.State.MinPart)
	fmt.Printf("  components:       %d\n", len(result.Partition.Components))
	for _, c := range result.Partition.Components {
		fmt.Printf("    %-24s %s (%d bytes)\n", c.Name, c.ComponentID, len(c.Payload))
	}
}

// abort converts a FatalError into a logged message and a nonzero
// exit, the only place this binary calls os.Exit on an engine error —
// every library package returns errors rather than exiting itself.
func abort(logger *slog.Logger, err error) {
	var fe *corevortex.FatalError
	if errors.As(err, &fe) {
		logger.Error("fatal", "kind", fe.Kind.String(), "rank", fe.Rank, "thread", fe.Thread, "message", fe.Message, "error", fe.Err)
	} else {
		logger.Error("fatal", "error", err)
	}
	os.Exit(1)
}
