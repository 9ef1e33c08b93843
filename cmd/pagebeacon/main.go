// Command pagebeacon signals page presence to a relay.
//
// Usage:
//
//	pagebeacon -config pagebeacon.yaml               # signal pages from YAML config on an interval
//	pagebeacon -url https://example.com -relay URL   # one-shot signal for a single page
//	pagebeacon -url https://example.com -resolve     # resolve metadata only, print JSON, no signal
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/pagebeacon"
	"github.com/hazyhaar/pagebeacon/metadata"
)

func main() {
	configPath := flag.String("config", "", "path to pagebeacon.yaml config file")
	singleURL := flag.String("url", "", "signal a single URL once and exit")
	relayURL := flag.String("relay", "", "relay base URL (one-shot mode)")
	source := flag.String("source", "auto", "document source: static, browser, auto")
	name := flag.String("name", "", "name override (one-shot mode)")
	description := flag.String("description", "", "description override (one-shot mode)")
	resolveOnly := flag.Bool("resolve", false, "resolve metadata without signaling")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *singleURL, *relayURL, *source, *name, *description, *resolveOnly); err != nil {
		logger.Error("pagebeacon: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL, relayURL, source, name, description string, resolveOnly bool) error {
	if singleURL != "" {
		return runSingle(ctx, logger, singleURL, relayURL, source, name, description, resolveOnly)
	}

	if configPath != "" {
		return runConfig(ctx, logger, configPath)
	}

	fmt.Fprintln(os.Stderr, "usage: pagebeacon -config <file> | -url <url> [-relay <url>] [-resolve]")
	os.Exit(1)
	return nil
}

func runSingle(ctx context.Context, logger *slog.Logger, pageURL, relayURL, source, name, description string, resolveOnly bool) error {
	cfg := &pagebeacon.RunnerConfig{
		Relay: pagebeacon.RelayConfig{URL: relayURL},
	}
	cfg.ApplyDefaults()

	r := pagebeacon.NewRunner(cfg, pagebeacon.WithRunnerLogger(logger))
	ov := metadata.Overrides{Name: name, Description: description}

	if resolveOnly {
		resolved, err := r.ResolveOnce(ctx, pageURL, source, ov)
		if err != nil {
			return fmt.Errorf("resolve: %w", err)
		}
		return printJSON(resolved)
	}

	res, err := r.SignalOnce(ctx, pageURL, source, ov)
	if err != nil {
		return fmt.Errorf("signal: %w", err)
	}
	return printJSON(res)
}

func runConfig(ctx context.Context, logger *slog.Logger, path string) error {
	cfg, err := pagebeacon.LoadConfigFile(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	r := pagebeacon.NewRunner(cfg,
		pagebeacon.WithRunnerLogger(logger),
		pagebeacon.WithResultFunc(func(pageID string, res pagebeacon.Result, err error) {
			if err != nil {
				return
			}
			logger.Info("pagebeacon: signal result",
				"page", pageID, "outcome", res.Outcome, "reason", res.Reason)
		}),
	)

	err = r.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
