package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"checkers_server/internal/config"
	"checkers_server/internal/logger"
	"checkers_server/internal/ops"
	"checkers_server/internal/server"
)

// version is stamped by the build; "dev" otherwise.
var version = "dev"

func main() {
	args := os.Args[1:]
	if len(args) > 0 && (args[0] == "-h" || args[0] == "--help") {
		printUsage()
		return
	}

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)

	// Positional arguments beat the environment: server [port] [bind_address].
	if len(args) > 0 {
		cfg.Port = config.ParsePort(args[0])
	}
	if len(args) > 1 {
		cfg.Bind = args[1]
	}

	srv := server.New(cfg)
	if err := srv.Listen(); err != nil {
		logger.Fatal("listen failed", "err", err)
	}
	logger.Info("checkers server listening",
		"addr", srv.Addr().String(),
		"version", version,
		"max_clients", cfg.MaxClients,
		"max_rooms", cfg.MaxRooms,
		"ping_interval", cfg.PingInterval.String(),
		"reconnect_window", cfg.LongDisconnect.String(),
	)

	var opsSrv *http.Server
	if cfg.MetricsAddr != "" {
		opsSrv = ops.Serve(cfg.MetricsAddr, ops.Deps{
			Version:  version,
			Ready:    srv.Ready,
			Sessions: srv.SessionCount,
			Rooms:    srv.RoomsSnapshot,
		})
	}

	go func() {
		if err := srv.Serve(); err != nil {
			logger.Fatal("serve failed", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutting down", "signal", sig.String())
	srv.Stop()

	if opsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := opsSrv.Shutdown(ctx); err != nil {
			logger.Error("ops endpoint forced to shutdown", "err", err)
		}
	}

	logger.Info("server exited")
}

func printUsage() {
	prog := filepath.Base(os.Args[0])
	fmt.Printf("Usage: %s [port] [bind_address]\n", prog)
	fmt.Println("  port         - Port number (default: 12345)")
	fmt.Println("  bind_address - IP address to bind to (default: 0.0.0.0 - all interfaces)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s 8080                  # Port 8080, all interfaces\n", prog)
	fmt.Printf("  %s 8080 127.0.0.1        # Port 8080, localhost only\n", prog)
	fmt.Printf("  %s 12345 192.168.1.100   # Port 12345, specific IP\n", prog)
}
