package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kurtnissen/ai-swarm/internal/artifacts"
	"github.com/kurtnissen/ai-swarm/internal/config"
	"github.com/kurtnissen/ai-swarm/internal/editor"
	"github.com/kurtnissen/ai-swarm/internal/judge"
	"github.com/kurtnissen/ai-swarm/internal/natsbus"
	"github.com/kurtnissen/ai-swarm/internal/notify"
	"github.com/kurtnissen/ai-swarm/internal/parser"
	"github.com/kurtnissen/ai-swarm/internal/renderer"
	"github.com/kurtnissen/ai-swarm/internal/store"
	"github.com/kurtnissen/ai-swarm/internal/swarm"
	"github.com/kurtnissen/ai-swarm/internal/vault"
	"github.com/kurtnissen/ai-swarm/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("swarmd %s\n", version)
	case "gateway":
		if err := runGateway(); err != nil {
			slog.Error("gateway failed", "error", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: swarmd <command>\n\nCommands:\n  gateway    Start the swarm gateway service\n  version    Print version\n")
}

func runGateway() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting swarmd gateway", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Embedded NATS
	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()
	slog.Info("nats started", "port", bus.Port())

	events, err := natsbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("init nats client: %w", err)
	}
	defer events.Close()

	// Screenshot archive
	archive, err := artifacts.New(cfg.Artifacts.Dir)
	if err != nil {
		return fmt.Errorf("init artifact archive: %w", err)
	}

	// Credential vault for authenticated page loads
	v := vault.New(cfg.Vault.Passphrase)

	// Edit agent
	edit := editor.New(cfg.Editor)
	if !edit.HasCredentials() {
		slog.Warn("no edit agent credentials found, edits will fail")
	}

	// Headless browser
	rend, err := renderer.New(cfg.Renderer, sessionCookieSource(db, v))
	if err != nil {
		return fmt.Errorf("init renderer: %w", err)
	}
	defer rend.Close()

	// Judge and planning model
	gemini, err := judge.NewGeminiClient(ctx, cfg.Judge)
	if err != nil {
		return fmt.Errorf("init judge client: %w", err)
	}
	verifier := judge.NewVerifier(gemini)
	plan := parser.New(gemini)

	// Telegram notifications
	var notifier swarm.Notifier
	if cfg.Telegram.Token != "" {
		tn, err := notify.NewTelegramNotifier(cfg.Telegram)
		if err != nil {
			return fmt.Errorf("init telegram notifier: %w", err)
		}
		notifier = tn
		slog.Info("telegram notifications enabled")
	} else {
		slog.Warn("telegram token not set, notifications disabled")
	}

	// Swarm coordinator
	controller := swarm.NewController(edit, rend, verifier)
	coord := swarm.NewCoordinator(controller, notifier, db, events, archive, cfg.Editor.BaseDir)

	// Web API
	if cfg.Web.Enabled {
		srv := web.NewServer(db, bus, coord, plan, archive, cfg.Web, cfg.Editor.BaseDir, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()

	return nil
}

// sessionCookieSource reads the stored session cookie credential and
// decrypts it for authenticated renders.
func sessionCookieSource(db *store.Store, v *vault.Vault) renderer.CookieProvider {
	return func(ctx context.Context) (string, error) {
		cred, err := db.GetCredential("session_cookie")
		if err != nil {
			return "", fmt.Errorf("load session cookie credential: %w", err)
		}
		if cred == nil {
			return "", fmt.Errorf("no session cookie credential stored")
		}
		plain, err := v.Open(cred.Value, cred.Nonce)
		if err != nil {
			return "", fmt.Errorf("decrypt session cookie: %w", err)
		}
		return string(plain), nil
	}
}
