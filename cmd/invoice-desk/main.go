package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"go.etcd.io/bbolt"

	"github.com/zombor/invoice-desk/internal/account"
	"github.com/zombor/invoice-desk/internal/cache"
	"github.com/zombor/invoice-desk/internal/invoice"
	"github.com/zombor/invoice-desk/internal/scanning"
	"github.com/zombor/invoice-desk/internal/web"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("Exiting", "error", err)
		os.Exit(1)
	}
}

// run wires and serves the application until it is interrupted. Every resource it opens
// is released before it returns.
func run(args []string) error {
	// Check for version flag before parsing other flags
	for _, arg := range args {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			return nil
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	flags := ff.NewFlagSet("invoice-desk")
	var (
		port        = flags.IntLong("port", 8080, "HTTP server port")
		dbPath      = flags.StringLong("db", "invoice-desk.db", "bbolt database file (users, and invoices with --store bolt)")
		storeType   = flags.StringLong("store", "bolt", "Invoice store: 'bolt' or 'postgres'")
		postgresURL = flags.StringLong("postgres-url", "", "PostgreSQL connection URL for --store postgres")
		documents   = flags.StringLong("documents", "./documents", "Directory for scanned invoice documents")
		binderTTL   = flags.DurationLong("binder-ttl", 30*time.Minute, "How long the cached invoice binder lives (0 = forever)")
		sessionTTL  = flags.DurationLong("session-ttl", 12*time.Hour, "Idle session timeout")
		scannerType = flags.StringLong("scanner", "none", "Scanner type: 'none', 'gemini' or 'ollama'")
		geminiKey   = flags.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = flags.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL   = flags.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = flags.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		seedUsers   = flags.StringLong("seed-users", "", "Users created when missing, as user:password:role,... (roles: manager, clerk)")
		logLevel    = flags.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat   = flags.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		_           = flags.StringLong("config", "", "Optional config file with one 'flag value' per line")
		showVersion = flags.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(flags, args,
		ff.WithEnvVarPrefix("INVOICE_DESK"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithConfigAllowMissingFile(),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(flags))
		return fmt.Errorf("parsing flags: %w", err)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		return nil
	}

	logger, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx := context.Background()

	// Initialize database
	slog.Info("Opening database...", "path", *dbPath)
	db, err := bbolt.Open(*dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	var repo invoice.Repository
	switch *storeType {
	case "bolt":
		repo, err = invoice.NewBoltDB(db)
		if err != nil {
			return fmt.Errorf("initializing invoice store: %w", err)
		}
	case "postgres":
		if *postgresURL == "" {
			return errors.New("postgres URL is required: set --postgres-url or INVOICE_DESK_POSTGRES_URL")
		}
		slog.Info("Connecting to PostgreSQL...")
		pg, err := invoice.NewPostgresDB(ctx, *postgresURL)
		if err != nil {
			return fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
		repo = pg
	default:
		return fmt.Errorf("invalid store type %q (valid: bolt or postgres)", *storeType)
	}

	// Initialize users
	users, err := account.NewBoltStore(db)
	if err != nil {
		return fmt.Errorf("initializing user store: %w", err)
	}
	if *seedUsers != "" {
		seeds, err := account.ParseSeeds(*seedUsers)
		if err != nil {
			return fmt.Errorf("invalid --seed-users: %w", err)
		}
		added, err := users.EnsureUsers(seeds)
		if err != nil {
			return fmt.Errorf("seeding users: %w", err)
		}
		slog.Info("Seeded users", "added", added, "requested", len(seeds))
	}

	// Initialize scanner based on type
	var scanner scanning.Scanner
	switch *scannerType {
	case "none":
		slog.Info("Document scanning disabled")
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		gemini, err := scanning.NewGemini(ctx, apiKey, *geminiModel)
		if err != nil {
			return fmt.Errorf("initializing Gemini: %w", err)
		}
		scanner = gemini
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		ollama, err := scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			return fmt.Errorf("initializing Ollama: %w", err)
		}
		scanner = ollama
	default:
		return fmt.Errorf("invalid scanner type %q (valid: none, gemini or ollama)", *scannerType)
	}
	if scanner != nil {
		defer scanner.Close()
	}

	// Initialize document storage
	docs, err := invoice.NewLocalDocuments(*documents)
	if err != nil {
		return fmt.Errorf("initializing document storage: %w", err)
	}

	binders := cache.New[*invoice.Binder](*binderTTL)
	defer binders.Close()
	// Scanned documents never attached to an invoice are deleted with their session
	sessions := account.NewSessionsWithExpiry(*sessionTTL, web.DiscardUploads(docs))
	defer sessions.Close()

	server := web.NewServer(web.Deps{
		Repository: repo,
		Binders:    binders,
		Users:      users,
		Sessions:   sessions,
		Documents:  docs,
		Scanner:    scanner,
	})

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(addr)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version, "store", *storeType)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-sigChan:
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
	return nil
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (valid: text or json)", format)
	}
}
