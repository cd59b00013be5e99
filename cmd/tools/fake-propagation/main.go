// Package main runs an in-process propagation service on a local port for
// development and offline runs of the rfcoverage tools.
//
// Usage:
//
//	go run ./cmd/tools/fake-propagation --addr=:8088
//	go run ./cmd/tools/fake-propagation --towers=towers.yaml --uid=1 --key=dev
//
// Point the tools at it with:
//
//	CLOUDRF_SERVER=http://localhost:8088 CLOUDRF_API_URL=http://localhost:8088 \
//	CLOUDRF_UID=1 CLOUDRF_API_KEY=dev go run ./cmd/best-signal ...
//
// Without --towers the server answers with a built-in three-tower sample
// network for every network name.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"rfcoverage/internal/fakeserver"
	"rfcoverage/internal/input"
	"rfcoverage/internal/logging"
	"rfcoverage/internal/types"
)

func main() {
	// Credentials default to the same variables the tools read.
	_ = godotenv.Load()

	addrFlag := flag.String("addr", ":8088", "Listen address")
	towersFlag := flag.String("towers", "", "Tower table (YAML or CSV); default is a built-in sample network")
	uidFlag := flag.String("uid", envOr("CLOUDRF_UID", "1"), "Accepted account UID")
	keyFlag := flag.String("key", envOr("CLOUDRF_API_KEY", "dev"), "Accepted API key")
	failFlag := flag.String("fail", "", "Comma-separated point IDs answered with a 503")
	levelFlag := flag.String("log-level", "info", "Log level (debug, info, warn, error)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fake-propagation [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Serve the best-server, path and area endpoints locally.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := logging.New(os.Stdout, *levelFlag, "json")

	towers, err := loadTowers(*towersFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	srv := fakeserver.New(fakeserver.Config{
		UID:        *uidFlag,
		APIKey:     *keyFlag,
		Towers:     towers,
		FailCivics: splitList(*failFlag),
		Logger:     logger,
	})

	if err := serve(*addrFlag, srv.Handler(), logger); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadTowers(path string) ([]types.Tower, error) {
	if path == "" {
		return fakeserver.SampleTowers(""), nil
	}
	return input.LoadTowers(path)
}

// serve runs the HTTP server until SIGINT or SIGTERM, then shuts it down
// with a 10-second deadline.
func serve(addr string, handler http.Handler, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("fake propagation service listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped cleanly")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
