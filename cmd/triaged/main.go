package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"triage/internal/config"
	"triage/internal/ipc"
	"triage/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		logger.Error("bootstrap", logging.Error(err))
		return
	}
	defer rt.close()

	ipcServer, err := ipc.NewServer(ctx, cfg.ResolvedSocketPath(), rt.daemon, logger)
	if err != nil {
		logger.Error("start IPC server", logging.Error(err))
		return
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := rt.daemon.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}

	select {
	case <-ctx.Done():
	case <-ipcServer.ShutdownRequested():
	}
	logger.Info("triaged shutting down")
}
