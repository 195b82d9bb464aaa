// Package main is the entry point for the rdlindex server.
//
// rdlindex keeps a master spreadsheet of report definitions in a data
// directory, merges uploaded spreadsheets into it, searches it and serves the
// referenced .rdl files. Configuration is read from CLI flags, a .env file and
// server_config.json (JWT secret, quotas, rate limits).
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
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/maruel/rdlindex/internal/identity"
	"github.com/maruel/rdlindex/internal/reports"
	"github.com/maruel/rdlindex/internal/server"
	"github.com/maruel/rdlindex/internal/server/handlers"
	"github.com/maruel/rdlindex/internal/server/ipgeo"
	"github.com/maruel/rdlindex/internal/server/ratelimit"
	"github.com/maruel/rdlindex/internal/storage"
	"github.com/maruel/rdlindex/internal/storage/git"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "rdlindex: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	httpAddr := flag.String("http", "localhost:5000", "Address to listen on (e.g., localhost:5000, :5000, 0.0.0.0:5000)")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	geoDB := flag.String("geo-db", "", "Path to MaxMind MMDB file for IP geolocation (optional)")
	history := flag.Bool("history", true, "Record every merge of the master workbook in a git repository in the data directory")
	secureCookies := flag.Bool("secure-cookies", false, "Mark the session cookie Secure; set when served over HTTPS")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			// Drop localhost IPs.
			if a.Key == "ip" {
				if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
					return slog.Attr{}
				}
			}
			skip := false
			switch t := a.Value.Any().(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case uint64:
				skip = t == 0
			case int64:
				skip = t == 0
			case float64:
				skip = t == 0
			case time.Time:
				skip = t.IsZero()
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(*dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	env, err := loadDotEnv(*dataDir)
	if err != nil {
		return err
	}

	// .env values apply to flags not set on the command line.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	overrideString := func(name, key string, dst *string) {
		if v := env[key]; !set[name] && v != "" {
			*dst = v
		}
	}
	overrideBool := func(name, key string, dst *bool) error {
		v := env[key]
		if set[name] || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s in .env: %w", key, err)
		}
		*dst = b
		return nil
	}
	overrideString("http", "HTTP", httpAddr)
	overrideString("log-level", "LOG_LEVEL", logLevel)
	overrideString("geo-db", "GEO_DB", geoDB)
	if err := overrideBool("history", "HISTORY", history); err != nil {
		return err
	}
	if err := overrideBool("secure-cookies", "SECURE_COOKIES", secureCookies); err != nil {
		return err
	}

	addr := *httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}

	serverCfg, err := storage.LoadServerConfig(*dataDir)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", storage.ConfigFile, err)
	}

	var repo *git.Repo
	if *history {
		if repo, err = git.Open(ctx, *dataDir, "", "", storage.MasterFile); err != nil {
			return fmt.Errorf("failed to open dataset history: %w", err)
		}
	}
	ingestions, err := storage.NewIngestionLog(*dataDir)
	if err != nil {
		return fmt.Errorf("failed to open ingestion log: %w", err)
	}
	store, err := storage.NewStore(*dataDir, repo, ingestions)
	if err != nil {
		return fmt.Errorf("failed to initialize dataset store: %w", err)
	}
	// A broken master file must not keep the server down; uploads replace it.
	if err := store.Refresh(ctx); err != nil {
		slog.ErrorContext(ctx, "Failed to load dataset", "err", err)
	}
	if err := store.Watch(ctx); err != nil {
		return fmt.Errorf("failed to watch data directory: %w", err)
	}

	creds := identity.NewCredentials(filepath.Join(*dataDir, identity.CredentialsFile))
	if !creds.Enabled() {
		slog.WarnContext(ctx, "No credential table, authentication disabled", "path", filepath.Join(*dataDir, identity.CredentialsFile))
	}

	limiters := ratelimit.New(serverCfg.RateLimits)
	defer limiters.Close()

	var geoChecker *ipgeo.Checker
	if *geoDB != "" {
		if geoChecker, err = ipgeo.Open(*geoDB); err != nil {
			return fmt.Errorf("failed to open geo database: %w", err)
		}
		defer func() { _ = geoChecker.Close() }()
		slog.InfoContext(ctx, "IP geolocation enabled", "db", *geoDB)
	}

	// Watch own executable for modifications (for development restarts)
	if err := watchExecutable(ctx, stop); err != nil {
		return fmt.Errorf("failed to watch executable: %w", err)
	}

	svc := &handlers.Services{
		Store:       store,
		Ingestions:  ingestions,
		History:     repo,
		Reports:     reports.NewDir(filepath.Join(*dataDir, reports.DirName)),
		Credentials: creds,
		Tokens:      identity.NewTokens(serverCfg.JWTSecret),
	}
	buildVersion, _, _, _ := getBuildInfo()
	cfg := &server.Config{
		Config: handlers.Config{
			Version:       buildVersion,
			Quotas:        serverCfg.Quotas,
			SecureCookies: *secureCookies,
		},
		Limiters: limiters,
		IPGeo:    geoChecker,
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(svc, cfg),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "version", buildVersion, "rows", store.View().Len())
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("rdlindex %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}

// loadDotEnv reads KEY=value lines from <dataDir>/.env. A missing file yields
// an empty map.
func loadDotEnv(dataDir string) (map[string]string, error) {
	env := make(map[string]string)
	path := filepath.Join(dataDir, ".env")
	content, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir flag, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, err
	}
	for line := range strings.SplitSeq(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if strings.HasPrefix(val, "'") || strings.HasSuffix(val, "'") {
			if strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'") {
				return nil, fmt.Errorf("single quotes are not supported for wrapping in .env: %s", line)
			}
			return nil, fmt.Errorf("unbalanced single quotes in .env: %s", line)
		}
		if strings.HasPrefix(val, "\"") {
			unquoted, err := strconv.Unquote(val)
			if err != nil {
				return nil, fmt.Errorf("failed to unquote %s: %w", key, err)
			}
			val = unquoted
		}
		env[key] = val
	}
	return env, nil
}

// watchExecutable watches the current executable for modifications and calls
// stop to trigger graceful shutdown when detected.
func watchExecutable(ctx context.Context, stop context.CancelFunc) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(exe); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) {
					slog.InfoContext(ctx, "Executable modified, initiating shutdown")
					stop()
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching executable", "err", err)
			}
		}
	}()
	return nil
}
