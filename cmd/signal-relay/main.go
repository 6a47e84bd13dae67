package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"

	"github.com/openmeet/signal-relay/internal/config"
	"github.com/openmeet/signal-relay/internal/httpserver"
	"github.com/openmeet/signal-relay/internal/metrics"
	"github.com/openmeet/signal-relay/internal/room"
	"github.com/openmeet/signal-relay/internal/signaling"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting signal-relay",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"auth_mode", cfg.AuthMode,
		"room_max_age", cfg.RoomMaxAge,
		"room_sweep_interval", cfg.RoomSweepInterval,
		"room_id_length", cfg.RoomIDLength,
		"ws_idle_timeout", cfg.SignalingWSIdleTimeout,
		"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
		"max_signaling_messages_per_second", cfg.MaxSignalingMessagesPerSecond,
		"turn_rest_enabled", cfg.TURNREST.Enabled(),
	)
	logStartupSecurityWarnings(logger, cfg)

	m := metrics.New()
	store := room.NewStore(cfg.RoomIDLength, m)

	sig, err := signaling.NewServer(cfg, store, logger, m)
	if err != nil {
		logger.Error("failed to configure signaling", "err", err)
		os.Exit(2)
	}

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	srv, err := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built}, sig, store, m)
	if err != nil {
		logger.Error("failed to configure http server", "err", err)
		os.Exit(2)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := room.NewSweeper(store, cfg.RoomMaxAge, cfg.RoomSweepInterval, logger)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(sweepCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		stopSweeper()
		wg.Wait()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
		_ = srv.Close()
	}
	stopSweeper()
	wg.Wait()

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if cfg.Mode != config.ModeProd {
		return
	}
	if cfg.AuthMode == config.AuthModeNone {
		logger.Warn("running in prod mode without signaling authentication; any client can open rooms")
	}
	if len(cfg.AllowedOrigins) == 0 {
		logger.Warn("running in prod mode without ALLOWED_ORIGINS; only same-host browser clients will be accepted")
	}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			logger.Warn("ALLOWED_ORIGINS contains *; any website can connect to this relay")
		}
	}
}

func resolveBuildInfo(commit, built string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if built == "" {
					built = s.Value
				}
			}
		}
	}
	return commit, built
}
