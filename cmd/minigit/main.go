package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mustafaquraish/minigit/internal/config"
	"github.com/mustafaquraish/minigit/internal/fetch"
	"github.com/mustafaquraish/minigit/internal/provenance"
)

// initLogging picks a slog handler based on whether stderr is a terminal:
// a human-readable text handler for interactive use, JSON when output is
// redirected or piped (log aggregators, CI).
func initLogging() {
	level := slog.LevelInfo
	if os.Getenv("MINIGIT_DEBUG") != "" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	initLogging()
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: minigit <command> [args]\n\nCommands:\n  init <dir>\n  clone <url> <dir>\n  cat-file -p <hash>\n  hash-object [-w] <file>\n  ls-tree <hash>\n  commit-tree <tree> -p <parent> -m <msg>\n  serve-metrics\n")
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit(os.Args[2:])
	case "clone":
		err = cmdClone(os.Args[2:])
	case "cat-file":
		err = cmdCatFile(os.Args[2:])
	case "hash-object":
		err = cmdHashObject(os.Args[2:])
	case "ls-tree":
		err = cmdLsTree(os.Args[2:])
	case "commit-tree":
		err = cmdCommitTree(os.Args[2:])
	case "serve-metrics":
		err = cmdServeMetrics(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("minigit %s: %v", os.Args[1], err)
	}
}

func cmdClone(args []string) error {
	fs := flag.NewFlagSet("clone", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	username := fs.String("username", "", "basic auth username (falls back to MINIGIT_USERNAME)")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) != 2 {
		return fmt.Errorf("usage: minigit clone [-config path] <url> <dir>")
	}
	remoteURL, destDir := rest[0], rest[1]

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateFetch(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if remote, ok := cfg.Remotes[remoteURL]; ok && remote.URL != "" {
		remoteURL = remote.URL
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout())
	defer cancel()

	shutdownTracing, err := fetch.InitTracing(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	gitDir := filepath.Join(destDir, ".git")
	if err := initGitSkeleton(gitDir); err != nil {
		return fmt.Errorf("init .git skeleton: %w", err)
	}

	user := *username
	if user == "" {
		user = os.Getenv("MINIGIT_USERNAME")
	}
	password := os.Getenv("MINIGIT_PASSWORD")

	opts := []fetch.Option{}
	if cfg.Creds.CachePath != "" {
		secret := os.Getenv("MINIGIT_CREDENTIAL_SECRET")
		if secret != "" {
			opts = append(opts, fetch.WithCredentialCache(filepath.Join(gitDir, cfg.Creds.CachePath), secret, cfg.CredCacheTTL()))
		}
	}
	if cfg.Telemetry.ProvenanceDBDSN != "" {
		db, err := provenance.Open(cfg.Telemetry.ProvenanceDBDSN)
		if err != nil {
			return fmt.Errorf("open provenance db: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate provenance db: %w", err)
		}
		opts = append(opts, fetch.WithProvenance(db))
	}

	driver := fetch.NewDriver(cfg, opts...)
	result, err := driver.Clone(ctx, remoteURL, gitDir, destDir, fetch.Credentials{Username: user, Password: password})
	if err != nil {
		return err
	}

	slog.Info("clone complete",
		"hash", result.Hash.String(),
		"objects", result.ObjectCount,
		"deltas", result.DeltaCount,
		"files", result.CheckoutFiles,
	)
	return nil
}

func cmdServeMetrics(args []string) error {
	fs := flag.NewFlagSet("serve-metrics", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	addr := cfg.Telemetry.MetricsAddr
	if addr == "" {
		addr = ":9090"
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	httpServer := &http.Server{Addr: addr, Handler: mux}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt)

	go func() {
		slog.Info("serving metrics", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-done
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
