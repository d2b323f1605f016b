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

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/ysaito/expense-filer/internal/console"
	"github.com/ysaito/expense-filer/internal/expense"
	"github.com/ysaito/expense-filer/internal/gdrive"
	"github.com/ysaito/expense-filer/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	fs := ff.NewFlagSet("expense-filer")
	var (
		settingsPath = fs.StringLong("settings", "settings.json", "Settings file path")
		credentials  = fs.StringLong("credentials", "credentials.json", "OAuth client credentials file")
		tokenDB      = fs.StringLong("token-db", "tokens.db", "OAuth token cache path")
		logPath      = fs.StringLong("log", "expense-filer.log", "Log file path")
		archiveDir   = fs.StringLong("archive", "", "Directory for local copies of uploaded PDFs (optional)")
		scannerType  = fs.StringLong("scanner", "none", "Receipt scanner: 'gemini', 'ollama' or 'none'")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("EXPENSE_FILER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Log to a file so the interactive console stays readable.
	logFile, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, nil)))
	slog.Info("starting", "version", version)

	store := expense.NewJSONSettingsStore(*settingsPath)
	settings, err := store.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading settings: %v\n", err)
		os.Exit(1)
	}

	tokens, err := gdrive.NewTokenStore(*tokenDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening token cache: %v\n", err)
		os.Exit(1)
	}
	defer tokens.Close()

	var scanner scanning.Scanner
	switch *scannerType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			fmt.Fprintln(os.Stderr, "error: Gemini API key is required. Set --gemini-key or GEMINI_API_KEY")
			os.Exit(1)
		}
		scanner, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: initializing Gemini: %v\n", err)
			os.Exit(1)
		}
	case "ollama":
		scanner, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: initializing Ollama: %v\n", err)
			os.Exit(1)
		}
	case "none":
		// Scanning disabled; fields are entered by hand.
	default:
		fmt.Fprintf(os.Stderr, "error: invalid scanner type %q (gemini, ollama or none)\n", *scannerType)
		os.Exit(1)
	}
	if scanner != nil {
		defer scanner.Close()
	}

	var archive expense.Archive
	if *archiveDir != "" {
		archive, err = expense.NewLocalArchive(*archiveDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: initializing archive: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("interrupt received, shutting down")
		cancel()
		os.Stdin.Close()
	}()

	mailbox := expense.NewMailbox()
	connector := gdrive.NewConnector(*credentials, tokens)
	worker := expense.NewWorker(connector, store, settings, scanner, archive, mailbox)
	go worker.Run(ctx)

	frontend := console.New(mailbox, settings, os.Stdin, os.Stdout)
	if err := frontend.Run(ctx); err != nil {
		slog.Error("frontend error", "error", err)
	}
	slog.Info("exiting")
}
