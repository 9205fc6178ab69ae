package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/challan-book/internal/export"
	"github.com/zombor/challan-book/internal/receipt"
	"github.com/zombor/challan-book/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("challan-book")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		dbPath       = fs.StringLong("db", "challan-book.db", "Database file path")
		storagePath  = fs.StringLong("storage", "./challans", "Directory for scanned paper challans")
		scannerType  = fs.StringLong("scanner", "none", "Challan scanner: 'none', 'gemini' or 'ollama'")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "llava", "Ollama vision model name")
		searchDelay  = fs.DurationLong("search-delay", 300*time.Millisecond, "Pause in typing before the search applies")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		businessName = fs.StringLong("business-name", receipt.DefaultLetterhead.Name, "Business name printed on the challan")
		tagline      = fs.StringLong("tagline", receipt.DefaultLetterhead.Tagline, "Tagline printed under the business name")
		address      = fs.StringLong("address", receipt.DefaultLetterhead.Address, "Address printed on the challan")
		phonesLeft   = fs.StringLong("phones-left", strings.Join(receipt.DefaultLetterhead.PhonesLeft, ","), "Comma separated phone numbers, left of the header")
		phonesRight  = fs.StringLong("phones-right", strings.Join(receipt.DefaultLetterhead.PhonesRight, ","), "Comma separated phone numbers, right of the header")
		_            = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("CHALLAN_BOOK"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	slog.Info("Initializing database...", "path", *dbPath)
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store, err := receipt.NewStore(db)
	if err != nil {
		slog.Error("Failed to load receipts", "error", err)
		os.Exit(1)
	}
	slog.Info("Receipts loaded", "count", len(store.List()), "next_ch_no", store.NextVoucherNumber())

	var scanner scanning.Scanner
	switch *scannerType {
	case "none", "":
		scanner = scanning.NopScanner{}
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		scanner, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		scanner, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "none, gemini or ollama")
		os.Exit(1)
	}
	defer scanner.Close()

	files, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	session := receipt.NewSession(store, *searchDelay)
	defer session.Close()

	service := receipt.NewService(store, session, scanner, files, receipt.ExporterFunc(export.XLSX))

	letterhead := receipt.DefaultLetterhead
	letterhead.Name = *businessName
	letterhead.Tagline = *tagline
	letterhead.Address = *address
	letterhead.PhonesLeft = splitList(*phonesLeft)
	letterhead.PhonesRight = splitList(*phonesRight)

	server := receipt.NewServer(service, receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}, letterhead)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Warn("Shutdown incomplete", "error", err)
	}
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
