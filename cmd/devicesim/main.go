package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/brporter/remoteview/internal/auth"
	"github.com/brporter/remoteview/internal/devicesim"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8090"
	}

	cfg := devicesim.DefaultConfig()
	if baseURL := os.Getenv("BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.DevMode = os.Getenv("DEV_MODE") != ""
	if v := os.Getenv("FRAME_LATENCY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			logger.Error("invalid FRAME_LATENCY", "value", v, "err", err)
			os.Exit(1)
		}
		cfg.FrameLatency = d
	}
	if v := os.Getenv("PENDING_POLLS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			logger.Error("invalid PENDING_POLLS", "value", v, "err", err)
			os.Exit(1)
		}
		cfg.PendingPolls = n
	}

	// Farm API tokens are verified against one OIDC issuer when configured
	verifier := auth.NewVerifier(logger)
	ctx := context.Background()
	if issuer := os.Getenv("AUTH_ISSUER"); issuer != "" {
		if err := verifier.AddProvider(ctx, auth.ProviderConfig{
			Name:     "farm",
			Issuer:   issuer,
			ClientID: os.Getenv("AUTH_CLIENT_ID"),
		}); err != nil {
			logger.Warn("failed to register auth provider", "issuer", issuer, "err", err)
		}
	}

	hub := devicesim.NewHub(nil, logger)
	srv := devicesim.NewServer(hub, cfg, verifier, logger)

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     srv.Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("device simulator starting", "addr", addr, "base_url", cfg.BaseURL, "dev_mode", cfg.DevMode,
			"frame_latency", cfg.FrameLatency, "local_endpoint", "ws://"+addrHost(addr)+"/stream")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	hub.CloseAll()
	httpServer.Shutdown(shutdownCtx)
}

func addrHost(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
