// Tillsync keeps a point-of-sale till usable through network outages: it
// mirrors the central Postgres catalogue into a local SQLite database and
// pushes locally captured orders back out as soon as the link returns.
//
// Usage:
//
//	tillsync serve [--config <path>]      # run the background sync loop
//	tillsync sync-once [--config <path>]  # single full sync pass then exit
//	tillsync status [--config <path>]     # show config, mirror, and link state
//	tillsync version                      # print version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/okoumis/tillsync/internal/config"
	"github.com/okoumis/tillsync/internal/mirror"
	"github.com/okoumis/tillsync/internal/remote"
	"github.com/okoumis/tillsync/internal/repo"
	"github.com/okoumis/tillsync/internal/settings"
	syncp "github.com/okoumis/tillsync/internal/sync"
	"github.com/okoumis/tillsync/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// A .env next to the binary may carry TILLSYNC_REMOTE_DSN; absence is
	// fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		return printUsage()
	}

	switch cmd := os.Args[1]; cmd {
	case "serve":
		return runSync(os.Args[2:], true)
	case "sync-once":
		return runSync(os.Args[2:], false)
	case "status":
		return runStatus(os.Args[2:])
	case "version":
		fmt.Println("tillsync", version)
		return nil
	default:
		return fmt.Errorf("unknown command %q — run 'tillsync' for usage", cmd)
	}
}

func printUsage() error {
	fmt.Fprintln(os.Stderr, "Tillsync — offline-first till data sync")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  tillsync serve [--config ...]      Run the background sync loop")
	fmt.Fprintln(os.Stderr, "  tillsync sync-once [--config ...]  Single full sync pass then exit")
	fmt.Fprintln(os.Stderr, "  tillsync status [--config ...]     Show config, mirror, and link state")
	fmt.Fprintln(os.Stderr, "  tillsync version                   Print version")
	fmt.Fprintln(os.Stderr, "")

	os.Exit(1)
	return nil // unreachable
}

// --- Subcommands -------------------------------------------------------------

// runSync handles both "serve" and "sync-once".
func runSync(args []string, serve bool) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// --- Logger --------------------------------------------------------------

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// --- Config --------------------------------------------------------------

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("loading config from %q: %w", *cfgPath, err)
	}
	logger.Info("config loaded",
		"connect_timeout", cfg.ConnectTimeout,
		"sync_interval", cfg.SyncInterval,
		"auto_sync", cfg.AutoSync,
	)

	// --- Telemetry (optional) ------------------------------------------------

	if cfg.Telemetry != nil {
		telCfg := telemetry.Config{
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure:     cfg.Telemetry.Insecure,
			ServiceName:  cfg.Telemetry.ServiceName,
			Headers:      cfg.Telemetry.Headers,
		}
		shutdownTel, err := telemetry.Setup(context.Background(), telCfg)
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					logger.Error("telemetry shutdown error", "error", err)
				}
			}()
		}
	}

	// --- Mirror --------------------------------------------------------------

	store, err := openMirror(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("closing mirror", "error", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// --- Settings & stores ---------------------------------------------------

	prefs, err := settings.Load(ctx, store)
	if err != nil {
		return err
	}
	if !cfg.AutoSync {
		if err := prefs.SetAutoSync(ctx, false); err != nil {
			return err
		}
	}
	central := remote.New(cfg.RemoteDSN, cfg.ConnectTimeout)

	// --- Engine --------------------------------------------------------------

	engine := syncp.NewEngine(central, store, prefs, logger,
		syncp.WithProgress(func(p syncp.Progress) {
			logger.Info("sync progress", "stage", p.Stage, "percent", p.Percent)
		}))

	if !serve {
		logger.Info("running single sync pass")
		stats, err := engine.SyncAll(ctx)
		logger.Info("sync complete",
			"rows_pulled", stats.Pulled(),
			"orders_pushed", stats.PushedOrders,
			"orders_failed", stats.FailedOrders,
		)
		return err
	}

	logger.Info("serve starting", "sync_interval", prefs.SyncInterval())
	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("sync engine: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// runStatus prints the current configuration, mirror, and connectivity state.
func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Println("Tillsync Status")
	fmt.Println("───────────────")

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Printf("  Config:     %s (invalid: %v)\n", *cfgPath, err)
		return nil
	}
	fmt.Printf("  Config:     %s ✓\n", *cfgPath)

	mirrorPath := cfg.MirrorPath
	if mirrorPath == "" {
		mirrorPath, _ = mirror.DefaultPath()
	}
	if info, statErr := os.Stat(mirrorPath); statErr == nil {
		fmt.Printf("  Mirror:     %s (%s)\n", mirrorPath, humanSize(info.Size()))
	} else {
		fmt.Printf("  Mirror:     not found (%s)\n", mirrorPath)
		return nil
	}

	store, err := mirror.Open(mirrorPath)
	if err != nil {
		return fmt.Errorf("opening mirror at %q: %w", mirrorPath, err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	prefs, err := settings.Load(ctx, store)
	if err != nil {
		return err
	}
	fmt.Printf("  Offline:    forced=%v auto_sync=%v interval=%s\n",
		prefs.ForceOffline(), prefs.AutoSync(), prefs.SyncInterval())

	if last, err := store.LastSyncTime(ctx); err == nil {
		if last.IsZero() {
			fmt.Println("  Last sync:  never")
		} else {
			fmt.Printf("  Last sync:  %s (%s ago)\n",
				last.Local().Format(time.RFC3339), time.Since(last).Round(time.Second))
		}
	}
	if pending, err := store.PendingOrderCount(ctx); err == nil {
		fmt.Printf("  Pending:    %d order(s)\n", pending)
	}

	central := remote.New(cfg.RemoteDSN, cfg.ConnectTimeout)
	if err := central.Probe(ctx); err != nil {
		fmt.Printf("  Central DB: unreachable (%v)\n", err)
	} else {
		fmt.Println("  Central DB: reachable ✓")
	}

	// Data counts go through the repositories, so they come from the central
	// database when reachable and from the mirror otherwise, exactly as the
	// till screens would see them.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	products := repo.NewProducts(central, store, prefs, central, logger)
	orders := repo.NewOrders(central, store, products, prefs, central, logger)

	if catalogue, err := products.GetAll(ctx); err == nil {
		fmt.Printf("  Catalogue:  %d product(s)\n", len(catalogue))
	}
	if active, err := orders.GetActive(ctx); err == nil {
		fmt.Printf("  Open:       %d active order(s)\n", len(active))
	}

	return nil
}

// openMirror opens the configured mirror path, defaulting to the per-user
// location.
func openMirror(cfg *config.Config) (*mirror.Store, error) {
	path := cfg.MirrorPath
	if path == "" {
		var err error
		path, err = mirror.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	store, err := mirror.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mirror at %q: %w", path, err)
	}
	slog.Info("mirror opened", "path", path)
	return store, nil
}

// humanSize returns a human-readable file size string.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
