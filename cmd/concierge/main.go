// Concierge is a conversational booking assistant for small service
// businesses.
//
// It accepts customer messages over HTTP, runs each through the turn
// pipeline (plan, tool dispatch, validation, review) and delivers exactly
// one reply per message through the configured channels. Configuration
// is loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	concierge serve                    Start the API server
//	concierge init [dir]               Write an example config.yaml
//	concierge ask <user> <message...>  Run one turn and print the reply
//	concierge hash-token <token>       Print a bcrypt hash for admin.token_hashes
//	concierge version                  Print version and build information
//	concierge -o json version          Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/concierge/internal/agent"
	"github.com/nugget/concierge/internal/api"
	"github.com/nugget/concierge/internal/buildinfo"
	"github.com/nugget/concierge/internal/config"
	"github.com/nugget/concierge/internal/replier"
)

// main constructs the OS-level environment and delegates to [run], so
// the whole lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand because the
// flag package's global state interferes with parallel tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command != "":
			cmdArgs = append(cmdArgs, args[i])
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) < 2 {
			return fmt.Errorf("usage: concierge ask <user> <message>")
		}
		return runAsk(ctx, stdout, stderr, configPath, outputFmt, cmdArgs[0], strings.Join(cmdArgs[1:], " "))
	case "hash-token":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("usage: concierge hash-token <token>")
		}
		return runHashToken(stdout, cmdArgs[0])
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Current()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	fmt.Fprintf(w, "  %-12s %s\n", "go:", info.GoVersion)
	fmt.Fprintf(w, "  %-12s %s\n", "platform:", info.Platform)
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Concierge - conversational booking assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: concierge [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                    Start the API server")
	fmt.Fprintln(w, "  init [dir]               Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  ask <user> <message>     Run one turn and print the reply")
	fmt.Fprintln(w, "  hash-token <token>       Print a bcrypt hash for admin.token_hashes")
	fmt.Fprintln(w, "  version                  Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  "+strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

func runHashToken(w io.Writer, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token must not be empty")
	}
	h, err := api.HashToken(token)
	if err != nil {
		return fmt.Errorf("hash token: %w", err)
	}
	fmt.Fprintln(w, h)
	return nil
}

// runAsk runs a single turn against the configured stores and prints the
// reply. Replies go to stdout instead of the configured channels.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt, user, message string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := config.NewLogger(stderr, level, cfg.LogFormat)

	var printed string
	a, err := newApp(ctx, cfg, logger, replier.Func(func(_ context.Context, _, _, text string) error {
		printed = text
		return nil
	}))
	if err != nil {
		return err
	}
	defer a.Close()

	reply, err := a.coordinator.HandleMessage(ctx, agent.Inbound{
		BusinessID: cfg.Business.ID,
		UserID:     user,
		Text:       message,
	})
	if err != nil {
		logger.Warn("turn completed with errors", "error", err)
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"request_id": reply.RequestID,
			"text":       printed,
			"metadata":   reply.Answer.Metadata.Map(),
			"iterations": reply.Iterations,
			"tools":      len(reply.Records),
		})
	}
	fmt.Fprintln(stdout, printed)
	return nil
}

// runServe is the primary operating mode. Shutdown order on SIGINT or
// SIGTERM: the HTTP server drains, MQTT publishes offline, then stores
// close via Close.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := config.NewLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting Concierge", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// ParseLogLevel was already checked by config.Validate.
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger = config.NewLogger(stdout, level, cfg.LogFormat)
	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"business", cfg.Business.ID,
		"chat_model", cfg.Models.Chat,
		"format_model", cfg.Models.Format,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	a.StartBackground(ctx)

	server := api.NewServer(api.Options{
		Address:     cfg.Listen.Address,
		Port:        cfg.Listen.Port,
		BusinessID:  cfg.Business.ID,
		TokenHashes: cfg.Admin.TokenHashes,
	}, api.Deps{
		Turns:        a.coordinator,
		Hub:          a.hub,
		Sessions:     a.sessions,
		Appointments: a.bookings,
		Usage:        a.usage,
		Health:       a.health,
	}, logger)

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
		a.StopBackground(shutdownCtx)
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Concierge stopped")
	return nil
}

// loadConfig locates and parses the YAML configuration file.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
