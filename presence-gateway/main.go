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

	otelhelper "github.com/example/studysync-presence/pkg/otelhelper"
	"go.opentelemetry.io/otel"
)

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", v, "default", def)
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", v, "default", def)
	}
	return def
}

func main() {
	ctx := context.Background()

	// Initialize OpenTelemetry
	otelShutdown, err := otelhelper.Init(ctx)
	if err != nil {
		slog.Error("Failed to initialize OpenTelemetry", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(ctx)

	listenAddr := envOrDefault("LISTEN_ADDR", ":8085")
	natsURL := envOrDefault("NATS_URL", "nats://localhost:4222")
	natsUser := envOrDefault("NATS_USER", "presence-gateway")
	natsPass := envOrDefault("NATS_PASS", "presence-gateway-secret")
	typingTTL := envDuration("TYPING_TTL", defaultTypingTTL)
	lockTTL := envDuration("LOCK_TTL", defaultLockTTL)
	sendBufferSize = envInt("SEND_BUFFER", sendBufferSize)

	slog.Info("Starting Presence Gateway", "listen", listenAddr, "nats_url", natsURL,
		"typing_ttl", typingTTL, "lock_ttl", lockTTL)

	meter := otel.Meter("presence-gateway")
	reg := newRegistry()
	g := newGateway(
		reg,
		newPresenceStore(),
		newTypingTracker(typingTTL),
		newLockManager(lockTTL),
		newHub(reg),
		newGatewayMetrics(meter, reg),
	)

	nc, err := connectNATS(natsURL, natsUser, natsPass)
	if err != nil {
		slog.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()
	slog.Info("Connected to NATS", "url", nc.ConnectedUrl())

	g.attachRelay(nc)
	if err := g.startInternalAPI(nc); err != nil {
		slog.Error("Failed to start internal API", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/ws", g.handleWS)

	srv := &http.Server{
		Addr:        listenAddr,
		Handler:     mux,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("Presence gateway ready — /ws client channels, presence.activity + presence.online internal API")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	slog.Info("Shutting down presence gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "error", err)
	}
	nc.Drain()
	slog.Info("Presence gateway shutdown complete")
}
