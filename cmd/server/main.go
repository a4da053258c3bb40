// Command server runs the linechat TCP chat server and its HTTP surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/linechat/internal/chat"
	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/logging"
	"github.com/Tyrowin/linechat/internal/metrics"
	"github.com/Tyrowin/linechat/internal/server"
	"github.com/Tyrowin/linechat/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	reg := metrics.NewRegistry()
	router := chat.NewRouter(
		chat.WithLogger(logger),
		chat.WithMetrics(metrics.NewChatMetrics(reg)),
		chat.WithRateLimit(cfg.RateLimitBurst, cfg.RateLimitInterval),
		chat.WithHandshakeTimeout(cfg.HandshakeTimeout),
		chat.WithTCPOptions(
			transport.WithMaxLineBytes(cfg.MaxLineBytes),
			transport.WithWriteTimeout(cfg.WriteTimeout),
		),
	)

	ln, err := net.Listen("tcp", cfg.ChatAddr())
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", cfg.ChatAddr(), err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- router.Serve(ctx, ln)
	}()

	var httpServer *http.Server
	httpErr := make(chan error, 1)
	if addr := cfg.HTTPAddr(); addr != "" {
		handlers := server.NewHandlers(router, server.HandlerConfig{
			Origins:      server.NewOriginPolicy(cfg.Origins(), logger),
			MaxLineBytes: cfg.MaxLineBytes,
			WriteTimeout: cfg.WriteTimeout,
		}, logger)
		httpServer = server.CreateServer(addr, server.SetupRoutes(handlers, reg))
		go func() {
			httpErr <- server.StartServer(httpServer, logger)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		runErr = err
	case err := <-httpErr:
		runErr = err
	}
	stop()

	if httpServer != nil {
		if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := router.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("chat shutdown: %w", err))
	}

	logger.Info("server stopped")
	return runErr
}
