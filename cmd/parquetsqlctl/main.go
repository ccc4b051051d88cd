package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/parquetsql/parquetsql/internal/cli/parquetsqlctl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("PARQUETSQL_CLI_TIMEOUT")), 10*time.Second)
	options := parquetsqlctl.Options{
		BaseURL: envOr("PARQUETSQL_API_URL", "http://localhost:8080"),
		APIKey:  strings.TrimSpace(os.Getenv("PARQUETSQL_API_KEY")),
		Timeout: timeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}

	code := parquetsqlctl.Run(ctx, os.Args[1:], options)
	stop()
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid PARQUETSQL_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
