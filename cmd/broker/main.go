package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/downfa11-org/rill/pkg/config"
	"github.com/downfa11-org/rill/pkg/server"
	"github.com/downfa11-org/rill/pkg/stream"
	"github.com/downfa11-org/rill/util"
)

func main() {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		util.Fatal("Failed to load config: %v", err)
	}

	util.Info("Starting broker (http=%v:%d, quic=%v:%d, persistence=%v)",
		cfg.EnableHTTP, cfg.HTTPPort, cfg.EnableQUIC, cfg.QUICPort, cfg.EnablePersistence)

	sm, err := stream.Open(cfg)
	if err != nil {
		util.Fatal("Failed to open streams: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := server.RunServer(ctx, cfg, sm)
	sm.Close()
	if runErr != nil {
		util.Fatal("Broker failed: %v", runErr)
	}
	util.Info("Broker stopped")
}
