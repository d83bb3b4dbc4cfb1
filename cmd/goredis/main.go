/*
file: goredis/cmd/goredis/main.go
*/
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kvforge/goredis/internal/common"
	"github.com/kvforge/goredis/internal/engine"
	"github.com/kvforge/goredis/internal/server"
)

// Entry point: read config, build the engine (which itself restores
// RDB then AOF and starts the writer/ingress), listen, then block in
// the accept loop until a signal tells us to shut down.
//
// Usage: goredis [config-file]
func main() {
	logger := common.NewLogger()
	fmt.Println(">>> goredis <<<")

	configPath := "./config/goredis.conf"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	if len(os.Args) > 2 {
		logger.Error("usage: goredis [config-file]")
		os.Exit(1)
	}

	cfg := common.ReadConfig(logger, configPath)

	e, err := engine.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed: %v", err)
		os.Exit(1)
	}

	l, err := server.Listen(e)
	if err != nil {
		logger.Error("listen failed: %v", err)
		os.Exit(1)
	}
	logger.Info("listening on port %d", cfg.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("signal received, shutting down")
		l.Close()
	}()

	server.Serve(e, l)

	e.Shutdown()
	logger.Info("shutdown complete")
}
